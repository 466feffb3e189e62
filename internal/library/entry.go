// Package library keeps the board games a user owns or wants to track. Entries
// are private to their owner until shared with one of the owner's groups.
package library

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/freekieb7/playlog/internal/domain"
	"github.com/freekieb7/playlog/internal/share"

	"github.com/google/uuid"
)

const (
	FieldTitle     = "Title"
	FieldPublisher = "Publisher"
	FieldPlayers   = "Players"
	FieldNotes     = "Notes"

	MaxTitleLength     = 200
	MaxPublisherLength = 200
	MaxNotesLength     = 2000
	MaxPlayerCount     = 100
)

type Entry struct {
	share.Resource

	ID         uuid.UUID
	Title      string
	Publisher  string
	MinPlayers int
	MaxPlayers int
	Notes      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type EntryDetails struct {
	Title      string
	Publisher  string
	MinPlayers int
	MaxPlayers int
	Notes      string
}

// NewEntry creates a private entry owned by ownerUserID.
func NewEntry(ownerUserID string, details EntryDetails, now time.Time) (*Entry, error) {
	details = normalize(details)
	if err := validate(details); err != nil {
		return nil, err
	}

	now = now.UTC()
	e := &Entry{
		Resource:  share.NewResource(ownerUserID),
		ID:        uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	e.apply(details)
	return e, nil
}

// Update replaces the descriptive fields. Nothing changes when any field is
// invalid.
func (e *Entry) Update(details EntryDetails, now time.Time) error {
	details = normalize(details)
	if err := validate(details); err != nil {
		return err
	}
	e.apply(details)
	e.UpdatedAt = now.UTC()
	return nil
}

func (e *Entry) Details() EntryDetails {
	return EntryDetails{
		Title:      e.Title,
		Publisher:  e.Publisher,
		MinPlayers: e.MinPlayers,
		MaxPlayers: e.MaxPlayers,
		Notes:      e.Notes,
	}
}

func (e *Entry) apply(d EntryDetails) {
	e.Title = d.Title
	e.Publisher = d.Publisher
	e.MinPlayers = d.MinPlayers
	e.MaxPlayers = d.MaxPlayers
	e.Notes = d.Notes
}

func normalize(d EntryDetails) EntryDetails {
	d.Title = strings.TrimSpace(d.Title)
	d.Publisher = strings.TrimSpace(d.Publisher)
	d.Notes = strings.TrimSpace(d.Notes)
	return d
}

func validate(d EntryDetails) error {
	var errs domain.Errors

	switch {
	case d.Title == "":
		errs.Add(FieldTitle, "title is required")
	case utf8.RuneCountInString(d.Title) > MaxTitleLength:
		errs.Add(FieldTitle, "title must be at most 200 characters")
	}
	if utf8.RuneCountInString(d.Publisher) > MaxPublisherLength {
		errs.Add(FieldPublisher, "publisher must be at most 200 characters")
	}

	// Zero means unknown for both bounds.
	switch {
	case d.MinPlayers < 0 || d.MaxPlayers < 0:
		errs.Add(FieldPlayers, "player counts cannot be negative")
	case d.MinPlayers > MaxPlayerCount || d.MaxPlayers > MaxPlayerCount:
		errs.Add(FieldPlayers, "player counts must be at most 100")
	case d.MinPlayers > 0 && d.MaxPlayers > 0 && d.MinPlayers > d.MaxPlayers:
		errs.Add(FieldPlayers, "minimum players cannot exceed maximum players")
	}

	if utf8.RuneCountInString(d.Notes) > MaxNotesLength {
		errs.Add(FieldNotes, "notes must be at most 2000 characters")
	}

	return errs.Err()
}
