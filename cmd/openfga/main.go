package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/freekieb7/playlog/internal/config"
	"github.com/freekieb7/playlog/internal/logger"
	"github.com/freekieb7/playlog/internal/openfga"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx := context.Background()
	command := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	// Admin commands always talk to the server, whatever the service flag says.
	cfg.OpenFGA.Enabled = true

	fgaClient, err := openfga.NewClient(cfg.OpenFGA, logger.Default(*cfg))
	if err != nil {
		log.Fatalf("Failed to create OpenFGA client: %v", err)
	}

	switch command {
	case "create-store":
		handleCreateStore(ctx, fgaClient, os.Args[2:])
	case "write-model":
		handleWriteModel(ctx, fgaClient)
	case "check":
		handleCheck(ctx, fgaClient, os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
}

func handleCreateStore(ctx context.Context, fgaClient *openfga.Client, args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: openfga create-store <name>")
		os.Exit(1)
	}

	id, err := fgaClient.CreateStore(ctx, args[0])
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Created store with ID: %s\n", id)
	fmt.Println("Set OPENFGA_STORE_ID to this value, then run write-model.")
}

func handleWriteModel(ctx context.Context, fgaClient *openfga.Client) {
	id, err := fgaClient.WriteAuthorizationModel(ctx)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Wrote authorization model with ID: %s\n", id)
	fmt.Println("Set OPENFGA_AUTHORIZATION_MODEL_ID to this value.")
}

func handleCheck(ctx context.Context, fgaClient *openfga.Client, args []string) {
	if len(args) < 3 {
		fmt.Println("Usage: openfga check <user> <relation> <object>")
		fmt.Println("Example: openfga check user:alice viewer library_entry:<id>")
		os.Exit(1)
	}

	allowed, err := fgaClient.Check(ctx, args[0], args[1], args[2])
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%s %s %s: %t\n", args[0], args[1], args[2], allowed)
}

func printUsage() {
	fmt.Println("Usage: go run ./cmd/openfga <command> [args]")
	fmt.Println("Commands:")
	fmt.Println("  create-store <name>               - Create a new store")
	fmt.Println("  write-model                       - Upload the playlog authorization model")
	fmt.Println("  check <user> <relation> <object>  - Check a relation")
}
