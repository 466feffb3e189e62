package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/freekieb7/playlog/internal/audit"
	"github.com/freekieb7/playlog/internal/auth"
	"github.com/freekieb7/playlog/internal/cache"
	"github.com/freekieb7/playlog/internal/config"
	"github.com/freekieb7/playlog/internal/database"
	"github.com/freekieb7/playlog/internal/group"
	"github.com/freekieb7/playlog/internal/library"
	"github.com/freekieb7/playlog/internal/logger"
	"github.com/freekieb7/playlog/internal/openfga"
	"github.com/freekieb7/playlog/internal/playsession"
	"github.com/freekieb7/playlog/internal/share"
	"github.com/freekieb7/playlog/internal/telemetry"
	"github.com/freekieb7/playlog/internal/util"

	"github.com/golang-jwt/jwt/v5"
)

// seed fills a development database with a small game night: one group with
// two members, a few library entries and some logged plays.
func main() {
	owner := flag.String("owner", "alice", "user id of the group owner")
	guest := flag.String("guest", "bob", "user id of the member that joins by invite code")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of the printed development tokens")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logr := logger.Default(*cfg)

	db := database.NewDatabase()
	if err := db.Connect(ctx, cfg.Database); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	fgaClient, err := openfga.NewClient(cfg.OpenFGA, logr)
	if err != nil {
		log.Fatalf("Failed to create OpenFGA client: %v", err)
	}
	authorization := openfga.NewAuthorizationService(fgaClient)

	instruments, err := telemetry.DefaultInstruments()
	if err != nil {
		log.Fatalf("Failed to create metric instruments: %v", err)
	}

	auditor := audit.NewAuditor(logr, &db)
	groupStore := group.NewDBStore(&db)
	membership := cache.NewMembershipCache(nil, groupStore, cfg.Redis.MembershipTTL, logr)
	sharing := share.NewAuthorizer(groupStore)

	groups := group.NewManager(logr, groupStore, &auditor, authorization, membership, cache.NewRateLimiter(nil), instruments)
	entries := library.NewManager(logr, &db, membership, sharing, &auditor, authorization, instruments)
	sessions := playsession.NewManager(logr, &db, membership, sharing, &auditor, authorization, instruments)

	asOwner := share.WithViewer(auth.WithUserID(ctx, *owner), share.NewViewer(membership))
	asGuest := share.WithViewer(auth.WithUserID(ctx, *guest), share.NewViewer(membership))

	g, err := groups.CreateGroup(asOwner, group.CreateGroupParams{
		Name:        "Thursday Game Night",
		Description: "Weekly board games at the community centre",
	})
	if err != nil {
		log.Fatalf("Failed to create group: %v", err)
	}

	codes := g.InviteCodes()
	if len(codes) == 0 {
		log.Fatalf("Group %s has no invite code", g.ID())
	}
	if _, err := groups.JoinByInviteCode(asGuest, codes[0].Code, time.Now()); err != nil {
		log.Fatalf("Failed to join group: %v", err)
	}

	titles := []library.EntryDetails{
		{Title: "Catan", Publisher: "Kosmos", MinPlayers: 3, MaxPlayers: 4},
		{Title: "Azul", Publisher: "Plan B Games", MinPlayers: 2, MaxPlayers: 4},
		{Title: "Wingspan", Publisher: "Stonemaier Games", MinPlayers: 1, MaxPlayers: 5, Notes: "Missing two egg tokens"},
	}
	var shared []*library.Entry
	for _, details := range titles {
		entry, err := entries.AddEntry(asOwner, details)
		if err != nil {
			log.Fatalf("Failed to add %q: %v", details.Title, err)
		}
		entry, err = entries.ShareEntry(asOwner, entry.ID, g.ID())
		if err != nil {
			log.Fatalf("Failed to share %q: %v", details.Title, err)
		}
		shared = append(shared, entry)
	}

	for i, entry := range shared {
		session, err := sessions.LogSession(asOwner, playsession.SessionDetails{
			EntryID:         util.Some(entry.ID),
			PlayedAt:        time.Now().Add(-time.Duration(7*(i+1)) * 24 * time.Hour),
			DurationMinutes: 45 + 15*i,
			Players: []playsession.Player{
				{Name: *owner, Score: 40 + i, Winner: i%2 == 0},
				{Name: *guest, Score: 38 + 2*i, Winner: i%2 == 1},
			},
		})
		if err != nil {
			log.Fatalf("Failed to log a play of %q: %v", entry.Title, err)
		}
		if _, err := sessions.ShareSession(asOwner, session.ID, g.ID()); err != nil {
			log.Fatalf("Failed to share a play of %q: %v", entry.Title, err)
		}
	}

	if _, err := sessions.LogSession(asGuest, playsession.SessionDetails{
		GameTitle:       "Hanabi",
		PlayedAt:        time.Now().Add(-48 * time.Hour),
		DurationMinutes: 25,
		Players:         []playsession.Player{{Name: *guest, Score: 21}},
	}); err != nil {
		log.Fatalf("Failed to log private play: %v", err)
	}

	fmt.Printf("Seeded group %s (invite code %s)\n", g.ID(), codes[0].Code)
	for _, userID := range []string{*owner, *guest} {
		token, err := devToken(cfg.Auth, userID, *tokenTTL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to sign token for %s: %v\n", userID, err)
			continue
		}
		fmt.Printf("%s: Bearer %s\n", userID, token)
	}
}

func devToken(cfg config.AuthConfig, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
}
