package library

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/freekieb7/playlog/internal/apperr"
	"github.com/freekieb7/playlog/internal/audit"
	"github.com/freekieb7/playlog/internal/auth"
	"github.com/freekieb7/playlog/internal/database"
	"github.com/freekieb7/playlog/internal/openfga"
	"github.com/freekieb7/playlog/internal/share"
	"github.com/freekieb7/playlog/internal/telemetry"
	"github.com/freekieb7/playlog/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

type repository interface {
	CreateLibraryEntry(ctx context.Context, e database.LibraryEntry) error
	GetLibraryEntryByID(ctx context.Context, id uuid.UUID) (database.LibraryEntry, error)
	ListLibraryEntries(ctx context.Context, params database.ListLibraryEntriesParams) ([]database.LibraryEntry, error)
	UpdateLibraryEntry(ctx context.Context, e database.LibraryEntry) error
	DeleteLibraryEntryByID(ctx context.Context, id uuid.UUID) error
}

type auditLogger interface {
	LogEvent(ctx context.Context, params audit.LogEventParam) error
}

type resourceMirror interface {
	SetResourceOwner(ctx context.Context, objectType string, id uuid.UUID, userID string) error
	ShareResource(ctx context.Context, objectType string, id, groupID uuid.UUID) error
	UnshareResource(ctx context.Context, objectType string, id, groupID uuid.UUID) error
}

type Manager struct {
	logger      *slog.Logger
	repo        repository
	membership  share.MembershipSource
	authorizer  share.Authorizer
	auditor     auditLogger
	mirror      resourceMirror
	instruments *telemetry.Instruments
	now         func() time.Time
}

func NewManager(logger *slog.Logger, repo repository, membership share.MembershipSource, authorizer share.Authorizer, auditor auditLogger, mirror resourceMirror, instruments *telemetry.Instruments) *Manager {
	return &Manager{
		logger:      logger,
		repo:        repo,
		membership:  membership,
		authorizer:  authorizer,
		auditor:     auditor,
		mirror:      mirror,
		instruments: instruments,
		now:         time.Now,
	}
}

// AddEntry adds a private entry to the caller's library.
func (m *Manager) AddEntry(ctx context.Context, details EntryDetails) (_ *Entry, err error) {
	ctx, span := telemetry.StartSpan(ctx, "library.AddEntry")
	defer func() { telemetry.EndSpan(span, err) }()

	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}

	e, err := NewEntry(userID, details, m.now())
	if err != nil {
		return nil, apperr.FromDomain(err)
	}
	if err := m.repo.CreateLibraryEntry(ctx, toRow(e)); err != nil {
		return nil, err
	}

	if err := m.mirror.SetResourceOwner(ctx, openfga.TypeLibraryEntry, e.ID, userID); err != nil {
		m.logger.ErrorContext(ctx, "Failed to sync library entry owner", "entry_id", e.ID, "error", err)
	}

	m.logger.InfoContext(ctx, "Library entry added", "entry_id", e.ID, "owner_user_id", userID)
	return e, nil
}

// GetEntry returns an entry the caller can see.
func (m *Manager) GetEntry(ctx context.Context, id uuid.UUID) (_ *Entry, err error) {
	ctx, span := telemetry.StartSpan(ctx, "library.GetEntry", attribute.String("entry.id", id.String()))
	defer func() { telemetry.EndSpan(span, err) }()

	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}
	return m.loadVisible(ctx, id, userID)
}

type ListEntriesParams struct {
	GroupID util.Optional[uuid.UUID]
	Search  util.Optional[string]
	Limit   int
	Offset  int
}

// ListEntries returns the caller's own entries plus those shared with any of
// the caller's groups.
func (m *Manager) ListEntries(ctx context.Context, params ListEntriesParams) (_ []*Entry, err error) {
	ctx, span := telemetry.StartSpan(ctx, "library.ListEntries")
	defer func() { telemetry.EndSpan(span, err) }()

	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}
	visibility, err := share.ViewerFor(ctx, m.membership).Predicate(ctx, userID)
	if err != nil {
		return nil, err
	}

	rows, err := m.repo.ListLibraryEntries(ctx, database.ListLibraryEntriesParams{
		Visibility: visibility,
		GroupID:    params.GroupID,
		Search:     params.Search,
		Limit:      PageSize(params.Limit),
		Offset:     max(params.Offset, 0),
	})
	if err != nil {
		return nil, err
	}

	entries := make([]*Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, fromRow(row))
	}
	return entries, nil
}

// UpdateEntry changes the descriptive fields of an entry. Owner only.
func (m *Manager) UpdateEntry(ctx context.Context, id uuid.UUID, details EntryDetails) (_ *Entry, err error) {
	ctx, span := telemetry.StartSpan(ctx, "library.UpdateEntry", attribute.String("entry.id", id.String()))
	defer func() { telemetry.EndSpan(span, err) }()

	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}
	e, err := m.loadVisible(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if e.OwnerUserID() != userID {
		return nil, apperr.Forbidden("only the owner can update this entry")
	}
	if err := e.Update(details, m.now()); err != nil {
		return nil, apperr.FromDomain(err)
	}
	if err := m.repo.UpdateLibraryEntry(ctx, toRow(e)); err != nil {
		return nil, translate(err)
	}

	m.logger.InfoContext(ctx, "Library entry updated", "entry_id", e.ID)
	return e, nil
}

// DeleteEntry removes an entry. Owner only.
func (m *Manager) DeleteEntry(ctx context.Context, id uuid.UUID) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "library.DeleteEntry", attribute.String("entry.id", id.String()))
	defer func() { telemetry.EndSpan(span, err) }()

	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return err
	}
	e, err := m.loadVisible(ctx, id, userID)
	if err != nil {
		return err
	}
	if e.OwnerUserID() != userID {
		return apperr.Forbidden("only the owner can delete this entry")
	}
	if err := m.repo.DeleteLibraryEntryByID(ctx, e.ID); err != nil {
		return translate(err)
	}
	if groupID, ok := e.SharedGroupID(); ok {
		if err := m.mirror.UnshareResource(ctx, openfga.TypeLibraryEntry, e.ID, groupID); err != nil {
			m.logger.ErrorContext(ctx, "Failed to revoke group access to deleted entry", "entry_id", e.ID, "error", err)
		}
	}

	m.logger.InfoContext(ctx, "Library entry deleted", "entry_id", e.ID)
	return nil
}

// ShareEntry exposes an entry to one of the owner's groups, replacing any
// previous share.
func (m *Manager) ShareEntry(ctx context.Context, id, groupID uuid.UUID) (_ *Entry, err error) {
	ctx, span := telemetry.StartSpan(ctx, "library.ShareEntry", attribute.String("entry.id", id.String()), attribute.String("group.id", groupID.String()))
	defer func() { telemetry.EndSpan(span, err) }()

	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}
	e, err := m.loadVisible(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	previous, wasShared := e.SharedGroupID()
	if err := m.authorizer.Share(ctx, userID, e, groupID); err != nil {
		return nil, err
	}
	if wasShared && previous == groupID {
		return e, nil
	}

	e.UpdatedAt = m.now().UTC()
	if err := m.repo.UpdateLibraryEntry(ctx, toRow(e)); err != nil {
		return nil, translate(err)
	}
	if err := m.auditor.LogEvent(ctx, audit.LogEventParam{
		ActorUserID: userID,
		SubjectID:   e.ID,
		Type:        audit.AuditLogEventTypeResourceShare,
		Data: map[string]any{
			"resource_type": openfga.TypeLibraryEntry,
			"group_id":      groupID,
		},
	}); err != nil {
		return e, err
	}

	if wasShared {
		if err := m.mirror.UnshareResource(ctx, openfga.TypeLibraryEntry, e.ID, previous); err != nil {
			m.logger.ErrorContext(ctx, "Failed to revoke previous group access", "entry_id", e.ID, "group_id", previous, "error", err)
		}
	}
	if err := m.mirror.ShareResource(ctx, openfga.TypeLibraryEntry, e.ID, groupID); err != nil {
		m.logger.ErrorContext(ctx, "Failed to grant group access", "entry_id", e.ID, "group_id", groupID, "error", err)
	}
	m.instruments.ResourcesShared.Add(ctx, 1, telemetry.ResourceType(openfga.TypeLibraryEntry))

	m.logger.InfoContext(ctx, "Library entry shared", "entry_id", e.ID, "group_id", groupID)
	return e, nil
}

// UnshareEntry makes an entry private again. Unsharing a private entry
// changes nothing.
func (m *Manager) UnshareEntry(ctx context.Context, id uuid.UUID) (_ *Entry, err error) {
	ctx, span := telemetry.StartSpan(ctx, "library.UnshareEntry", attribute.String("entry.id", id.String()))
	defer func() { telemetry.EndSpan(span, err) }()

	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}
	e, err := m.loadVisible(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	previous, wasShared := e.SharedGroupID()
	if err := m.authorizer.Unshare(userID, e); err != nil {
		return nil, err
	}
	if !wasShared {
		return e, nil
	}

	e.UpdatedAt = m.now().UTC()
	if err := m.repo.UpdateLibraryEntry(ctx, toRow(e)); err != nil {
		return nil, translate(err)
	}
	if err := m.auditor.LogEvent(ctx, audit.LogEventParam{
		ActorUserID: userID,
		SubjectID:   e.ID,
		Type:        audit.AuditLogEventTypeResourceUnshare,
		Data: map[string]any{
			"resource_type": openfga.TypeLibraryEntry,
			"group_id":      previous,
		},
	}); err != nil {
		return e, err
	}

	if err := m.mirror.UnshareResource(ctx, openfga.TypeLibraryEntry, e.ID, previous); err != nil {
		m.logger.ErrorContext(ctx, "Failed to revoke group access", "entry_id", e.ID, "group_id", previous, "error", err)
	}

	m.logger.InfoContext(ctx, "Library entry unshared", "entry_id", e.ID, "group_id", previous)
	return e, nil
}

// loadVisible loads an entry and reports entries the caller cannot see as
// not found.
func (m *Manager) loadVisible(ctx context.Context, id uuid.UUID, userID string) (*Entry, error) {
	row, err := m.repo.GetLibraryEntryByID(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	e := fromRow(row)

	visibility, err := share.ViewerFor(ctx, m.membership).Predicate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !visibility.Allows(e) {
		return nil, apperr.NotFound("library entry")
	}
	return e, nil
}

// PageSize clamps a requested page size to the supported range.
func PageSize(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageSize
	case limit > MaxPageSize:
		return MaxPageSize
	default:
		return limit
	}
}

func toRow(e *Entry) database.LibraryEntry {
	return database.LibraryEntry{
		ID:          e.ID,
		OwnerUserID: e.OwnerUserID(),
		GroupID:     e.GroupID(),
		Title:       e.Title,
		Publisher:   e.Publisher,
		MinPlayers:  e.MinPlayers,
		MaxPlayers:  e.MaxPlayers,
		Notes:       e.Notes,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func fromRow(row database.LibraryEntry) *Entry {
	return &Entry{
		Resource:   share.RestoreResource(row.OwnerUserID, row.GroupID),
		ID:         row.ID,
		Title:      row.Title,
		Publisher:  row.Publisher,
		MinPlayers: row.MinPlayers,
		MaxPlayers: row.MaxPlayers,
		Notes:      row.Notes,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
}

func translate(err error) error {
	if errors.Is(err, database.ErrLibraryEntryNotFound) {
		return &apperr.Error{Kind: apperr.KindNotFound, Message: "library entry not found", Err: err}
	}
	return err
}
