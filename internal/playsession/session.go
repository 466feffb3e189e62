// Package playsession records played games: who played, who won, and for
// how long. Sessions follow the same sharing rules as library entries.
package playsession

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/freekieb7/playlog/internal/domain"
	"github.com/freekieb7/playlog/internal/share"
	"github.com/freekieb7/playlog/internal/util"

	"github.com/google/uuid"
)

const (
	FieldGameTitle = "GameTitle"
	FieldPlayedAt  = "PlayedAt"
	FieldDuration  = "Duration"
	FieldPlayers   = "Players"
	FieldNotes     = "Notes"

	MaxGameTitleLength  = 200
	MaxPlayerNameLength = 100
	MaxPlayers          = 50
	MaxDurationMinutes  = 7 * 24 * 60
	MaxNotesLength      = 2000
)

type Player struct {
	Name   string `json:"name"`
	Score  int    `json:"score"`
	Winner bool   `json:"winner"`
}

type Session struct {
	share.Resource

	ID              uuid.UUID
	EntryID         util.Optional[uuid.UUID]
	GameTitle       string
	PlayedAt        time.Time
	DurationMinutes int
	Players         []Player
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type SessionDetails struct {
	EntryID         util.Optional[uuid.UUID]
	GameTitle       string
	PlayedAt        time.Time
	DurationMinutes int
	Players         []Player
	Notes           string
}

// NewSession records a private play by ownerUserID. Every violated rule is
// reported in the returned error.
func NewSession(ownerUserID string, details SessionDetails, now time.Time) (*Session, error) {
	details.GameTitle = strings.TrimSpace(details.GameTitle)
	details.Notes = strings.TrimSpace(details.Notes)
	players := make([]Player, len(details.Players))
	for i, p := range details.Players {
		p.Name = strings.TrimSpace(p.Name)
		players[i] = p
	}
	details.Players = players

	if err := validate(details, now); err != nil {
		return nil, err
	}

	now = now.UTC()
	return &Session{
		Resource:        share.NewResource(ownerUserID),
		ID:              uuid.New(),
		EntryID:         details.EntryID,
		GameTitle:       details.GameTitle,
		PlayedAt:        details.PlayedAt.UTC(),
		DurationMinutes: details.DurationMinutes,
		Players:         players,
		Notes:           details.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Winners returns the names of the players marked as winner.
func (s *Session) Winners() []string {
	var names []string
	for _, p := range s.Players {
		if p.Winner {
			names = append(names, p.Name)
		}
	}
	return names
}

func validate(d SessionDetails, now time.Time) error {
	var errs domain.Errors

	switch {
	case d.GameTitle == "":
		errs.Add(FieldGameTitle, "game title is required")
	case utf8.RuneCountInString(d.GameTitle) > MaxGameTitleLength:
		errs.Add(FieldGameTitle, "game title must be at most 200 characters")
	}

	switch {
	case d.PlayedAt.IsZero():
		errs.Add(FieldPlayedAt, "played at is required")
	case d.PlayedAt.After(now):
		errs.Add(FieldPlayedAt, "played at cannot be in the future")
	}

	if d.DurationMinutes < 0 || d.DurationMinutes > MaxDurationMinutes {
		errs.Add(FieldDuration, "duration must be between 0 and 10080 minutes")
	}

	switch {
	case len(d.Players) == 0:
		errs.Add(FieldPlayers, "at least one player is required")
	case len(d.Players) > MaxPlayers:
		errs.Add(FieldPlayers, "at most 50 players can be recorded")
	default:
		seen := make(map[string]bool, len(d.Players))
		for _, p := range d.Players {
			key := strings.ToLower(p.Name)
			switch {
			case p.Name == "":
				errs.Add(FieldPlayers, "player name is required")
			case utf8.RuneCountInString(p.Name) > MaxPlayerNameLength:
				errs.Add(FieldPlayers, "player name must be at most 100 characters")
			case seen[key]:
				errs.Add(FieldPlayers, "player "+p.Name+" is listed twice")
			}
			seen[key] = true
		}
	}

	if utf8.RuneCountInString(d.Notes) > MaxNotesLength {
		errs.Add(FieldNotes, "notes must be at most 2000 characters")
	}

	return errs.Err()
}
