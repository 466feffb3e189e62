package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/freekieb7/playlog/internal/audit"
	"github.com/freekieb7/playlog/internal/auth"
	"github.com/freekieb7/playlog/internal/cache"
	"github.com/freekieb7/playlog/internal/config"
	"github.com/freekieb7/playlog/internal/daemon"
	"github.com/freekieb7/playlog/internal/database"
	"github.com/freekieb7/playlog/internal/group"
	"github.com/freekieb7/playlog/internal/library"
	"github.com/freekieb7/playlog/internal/logger"
	"github.com/freekieb7/playlog/internal/openfga"
	"github.com/freekieb7/playlog/internal/playsession"
	"github.com/freekieb7/playlog/internal/share"
	"github.com/freekieb7/playlog/internal/telemetry"
	"github.com/freekieb7/playlog/internal/validator"
	"github.com/freekieb7/playlog/internal/web"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "playlog:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.Default(*cfg)

	tel, err := telemetry.New(ctx, cfg.Telemetry, log)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			log.Error("Failed to shut down telemetry", "error", err)
		}
	}()

	instruments, err := telemetry.DefaultInstruments()
	if err != nil {
		return fmt.Errorf("failed to create metric instruments: %w", err)
	}

	db := database.NewDatabase()
	if err := db.Connect(ctx, cfg.Database); err != nil {
		return err
	}
	defer db.Close()

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	} else {
		log.Info("Redis is disabled, membership lookups go straight to the database")
	}

	fgaClient, err := openfga.NewClient(cfg.OpenFGA, log)
	if err != nil {
		return err
	}
	authorization := openfga.NewAuthorizationService(fgaClient)

	auditor := audit.NewAuditor(log, &db)
	groupStore := group.NewDBStore(&db)
	membership := cache.NewMembershipCache(redisClient, groupStore, cfg.Redis.MembershipTTL, log)
	sharing := share.NewAuthorizer(groupStore)

	groupManager := group.NewManager(log, groupStore, &auditor, authorization, membership, cache.NewRateLimiter(redisClient), instruments)
	libraryManager := library.NewManager(log, &db, membership, sharing, &auditor, authorization, instruments)
	sessionManager := playsession.NewManager(log, &db, membership, sharing, &auditor, authorization, instruments)

	daemons := daemon.NewDaemonManager(log)
	daemons.Add("invite-code-purge", daemon.PurgeExpiredInviteCodesTask(&db, log, cfg.Invites.PurgeInterval, instruments))
	daemons.Start(ctx)

	handler := web.NewAPIHandler(log, &db, groupManager, libraryManager, sessionManager, validator.New())
	tokens := auth.NewTokenValidator(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	app := web.NewApp(cfg.Server, log, handler, tokens, membership)

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	serverErr := make(chan error, 1)
	go func() {
		log.Info("Server listening", "addr", addr, "environment", cfg.Server.Environment)
		serverErr <- app.Listen(addr)
	}()

	select {
	case err := <-serverErr:
		stop()
		daemons.Wait()
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		log.Error("Failed to shut down server", "error", err)
	}
	if err := <-serverErr; err != nil && !errors.Is(err, net.ErrClosed) {
		log.Error("Server stopped with error", "error", err)
	}
	daemons.Wait()

	return nil
}
