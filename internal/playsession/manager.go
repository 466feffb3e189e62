package playsession

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
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
	CreatePlaySession(ctx context.Context, s database.PlaySession) error
	GetPlaySessionByID(ctx context.Context, id uuid.UUID) (database.PlaySession, error)
	ListPlaySessions(ctx context.Context, params database.ListPlaySessionsParams) ([]database.PlaySession, error)
	UpdatePlaySessionSharing(ctx context.Context, id uuid.UUID, groupID util.Optional[uuid.UUID]) error
	DeletePlaySessionByID(ctx context.Context, id uuid.UUID) error
	GetLibraryEntryByID(ctx context.Context, id uuid.UUID) (database.LibraryEntry, error)
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

// LogSession records a play by the caller. When the play refers to a library
// entry the caller can see, the entry title is used if none is given.
func (m *Manager) LogSession(ctx context.Context, details SessionDetails) (_ *Session, err error) {
	ctx, span := telemetry.StartSpan(ctx, "playsession.LogSession")
	defer func() { telemetry.EndSpan(span, err) }()

	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}

	if details.EntryID.IsSet {
		entry, err := m.repo.GetLibraryEntryByID(ctx, details.EntryID.Val)
		if err != nil {
			if errors.Is(err, database.ErrLibraryEntryNotFound) {
				return nil, apperr.NotFound("library entry")
			}
			return nil, err
		}
		visibility, err := share.ViewerFor(ctx, m.membership).Predicate(ctx, userID)
		if err != nil {
			return nil, err
		}
		resource := share.RestoreResource(entry.OwnerUserID, entry.GroupID)
		if !visibility.Allows(&resource) {
			return nil, apperr.NotFound("library entry")
		}
		if details.GameTitle == "" {
			details.GameTitle = entry.Title
		}
	}

	s, err := NewSession(userID, details, m.now())
	if err != nil {
		return nil, apperr.FromDomain(err)
	}
	row, err := toRow(s)
	if err != nil {
		return nil, err
	}
	if err := m.repo.CreatePlaySession(ctx, row); err != nil {
		return nil, err
	}

	if err := m.mirror.SetResourceOwner(ctx, openfga.TypePlaySession, s.ID, userID); err != nil {
		m.logger.ErrorContext(ctx, "Failed to sync play session owner", "session_id", s.ID, "error", err)
	}

	m.logger.InfoContext(ctx, "Play session logged", "session_id", s.ID, "owner_user_id", userID, "players", len(s.Players))
	return s, nil
}

func (m *Manager) GetSession(ctx context.Context, id uuid.UUID) (_ *Session, err error) {
	ctx, span := telemetry.StartSpan(ctx, "playsession.GetSession", attribute.String("session.id", id.String()))
	defer func() { telemetry.EndSpan(span, err) }()

	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}
	return m.loadVisible(ctx, id, userID)
}

type ListSessionsParams struct {
	GroupID     util.Optional[uuid.UUID]
	EntryID     util.Optional[uuid.UUID]
	From        util.Optional[time.Time]
	To          util.Optional[time.Time]
	OldestFirst bool
	Limit       int
	Offset      int
}

// ListSessions returns the sessions the caller can see, newest first unless
// asked otherwise.
func (m *Manager) ListSessions(ctx context.Context, params ListSessionsParams) (_ []*Session, err error) {
	ctx, span := telemetry.StartSpan(ctx, "playsession.ListSessions")
	defer func() { telemetry.EndSpan(span, err) }()

	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}
	visibility, err := share.ViewerFor(ctx, m.membership).Predicate(ctx, userID)
	if err != nil {
		return nil, err
	}

	order := database.OrderByDESC
	if params.OldestFirst {
		order = database.OrderByASC
	}
	rows, err := m.repo.ListPlaySessions(ctx, database.ListPlaySessionsParams{
		Visibility: visibility,
		GroupID:    params.GroupID,
		EntryID:    params.EntryID,
		From:       params.From,
		To:         params.To,
		Order:      order,
		Limit:      PageSize(params.Limit),
		Offset:     max(params.Offset, 0),
	})
	if err != nil {
		return nil, err
	}

	sessions := make([]*Session, 0, len(rows))
	for _, row := range rows {
		s, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// DeleteSession removes a session. Owner only.
func (m *Manager) DeleteSession(ctx context.Context, id uuid.UUID) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "playsession.DeleteSession", attribute.String("session.id", id.String()))
	defer func() { telemetry.EndSpan(span, err) }()

	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return err
	}
	s, err := m.loadVisible(ctx, id, userID)
	if err != nil {
		return err
	}
	if s.OwnerUserID() != userID {
		return apperr.Forbidden("only the owner can delete this session")
	}
	if err := m.repo.DeletePlaySessionByID(ctx, s.ID); err != nil {
		return translate(err)
	}
	if groupID, ok := s.SharedGroupID(); ok {
		if err := m.mirror.UnshareResource(ctx, openfga.TypePlaySession, s.ID, groupID); err != nil {
			m.logger.ErrorContext(ctx, "Failed to revoke group access to deleted session", "session_id", s.ID, "error", err)
		}
	}

	m.logger.InfoContext(ctx, "Play session deleted", "session_id", s.ID)
	return nil
}

// ShareSession exposes a session to one of the owner's groups, replacing any
// previous share.
func (m *Manager) ShareSession(ctx context.Context, id, groupID uuid.UUID) (_ *Session, err error) {
	ctx, span := telemetry.StartSpan(ctx, "playsession.ShareSession", attribute.String("session.id", id.String()), attribute.String("group.id", groupID.String()))
	defer func() { telemetry.EndSpan(span, err) }()

	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}
	s, err := m.loadVisible(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	previous, wasShared := s.SharedGroupID()
	if err := m.authorizer.Share(ctx, userID, s, groupID); err != nil {
		return nil, err
	}
	if wasShared && previous == groupID {
		return s, nil
	}
	if err := m.repo.UpdatePlaySessionSharing(ctx, s.ID, s.GroupID()); err != nil {
		return nil, translate(err)
	}
	if err := m.auditor.LogEvent(ctx, audit.LogEventParam{
		ActorUserID: userID,
		SubjectID:   s.ID,
		Type:        audit.AuditLogEventTypeResourceShare,
		Data: map[string]any{
			"resource_type": openfga.TypePlaySession,
			"group_id":      groupID,
		},
	}); err != nil {
		return s, err
	}

	if wasShared {
		if err := m.mirror.UnshareResource(ctx, openfga.TypePlaySession, s.ID, previous); err != nil {
			m.logger.ErrorContext(ctx, "Failed to revoke previous group access", "session_id", s.ID, "group_id", previous, "error", err)
		}
	}
	if err := m.mirror.ShareResource(ctx, openfga.TypePlaySession, s.ID, groupID); err != nil {
		m.logger.ErrorContext(ctx, "Failed to grant group access", "session_id", s.ID, "group_id", groupID, "error", err)
	}
	m.instruments.ResourcesShared.Add(ctx, 1, telemetry.ResourceType(openfga.TypePlaySession))

	m.logger.InfoContext(ctx, "Play session shared", "session_id", s.ID, "group_id", groupID)
	return s, nil
}

// UnshareSession makes a session private again.
func (m *Manager) UnshareSession(ctx context.Context, id uuid.UUID) (_ *Session, err error) {
	ctx, span := telemetry.StartSpan(ctx, "playsession.UnshareSession", attribute.String("session.id", id.String()))
	defer func() { telemetry.EndSpan(span, err) }()

	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}
	s, err := m.loadVisible(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	previous, wasShared := s.SharedGroupID()
	if err := m.authorizer.Unshare(userID, s); err != nil {
		return nil, err
	}
	if !wasShared {
		return s, nil
	}
	if err := m.repo.UpdatePlaySessionSharing(ctx, s.ID, s.GroupID()); err != nil {
		return nil, translate(err)
	}
	if err := m.auditor.LogEvent(ctx, audit.LogEventParam{
		ActorUserID: userID,
		SubjectID:   s.ID,
		Type:        audit.AuditLogEventTypeResourceUnshare,
		Data: map[string]any{
			"resource_type": openfga.TypePlaySession,
			"group_id":      previous,
		},
	}); err != nil {
		return s, err
	}

	if err := m.mirror.UnshareResource(ctx, openfga.TypePlaySession, s.ID, previous); err != nil {
		m.logger.ErrorContext(ctx, "Failed to revoke group access", "session_id", s.ID, "group_id", previous, "error", err)
	}

	m.logger.InfoContext(ctx, "Play session unshared", "session_id", s.ID, "group_id", previous)
	return s, nil
}

func (m *Manager) loadVisible(ctx context.Context, id uuid.UUID, userID string) (*Session, error) {
	row, err := m.repo.GetPlaySessionByID(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	s, err := fromRow(row)
	if err != nil {
		return nil, err
	}

	visibility, err := share.ViewerFor(ctx, m.membership).Predicate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !visibility.Allows(s) {
		return nil, apperr.NotFound("play session")
	}
	return s, nil
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

func toRow(s *Session) (database.PlaySession, error) {
	players, err := json.Marshal(s.Players)
	if err != nil {
		return database.PlaySession{}, fmt.Errorf("failed to encode players: %w", err)
	}
	return database.PlaySession{
		ID:              s.ID,
		OwnerUserID:     s.OwnerUserID(),
		GroupID:         s.GroupID(),
		EntryID:         s.EntryID,
		GameTitle:       s.GameTitle,
		PlayedAt:        s.PlayedAt,
		DurationMinutes: s.DurationMinutes,
		Players:         players,
		Notes:           s.Notes,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}, nil
}

func fromRow(row database.PlaySession) (*Session, error) {
	var players []Player
	if len(row.Players) > 0 {
		if err := json.Unmarshal(row.Players, &players); err != nil {
			return nil, fmt.Errorf("failed to decode players of session %s: %w", row.ID, err)
		}
	}
	return &Session{
		Resource:        share.RestoreResource(row.OwnerUserID, row.GroupID),
		ID:              row.ID,
		EntryID:         row.EntryID,
		GameTitle:       row.GameTitle,
		PlayedAt:        row.PlayedAt,
		DurationMinutes: row.DurationMinutes,
		Players:         players,
		Notes:           row.Notes,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}, nil
}

func translate(err error) error {
	if errors.Is(err, database.ErrPlaySessionNotFound) {
		return &apperr.Error{Kind: apperr.KindNotFound, Message: "play session not found", Err: err}
	}
	return err
}
