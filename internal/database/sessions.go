package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/freekieb7/playlog/internal/share"
	"github.com/freekieb7/playlog/internal/util"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type PlaySession struct {
	ID              uuid.UUID
	OwnerUserID     string
	GroupID         util.Optional[uuid.UUID]
	EntryID         util.Optional[uuid.UUID]
	GameTitle       string
	PlayedAt        time.Time
	DurationMinutes int
	Players         json.RawMessage
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

const playSessionColumns = `id, owner_user_id, group_id, entry_id, game_title, played_at, duration_minutes, players, notes, created_at, updated_at`

func scanPlaySession(row pgx.Row, s *PlaySession) error {
	return row.Scan(&s.ID, &s.OwnerUserID, &s.GroupID, &s.EntryID, &s.GameTitle, &s.PlayedAt, &s.DurationMinutes, &s.Players, &s.Notes, &s.CreatedAt, &s.UpdatedAt)
}

func (db *Database) CreatePlaySession(ctx context.Context, s PlaySession) error {
	if _, err := db.Pool.Exec(ctx, `INSERT INTO tbl_play_session (`+playSessionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		s.ID, s.OwnerUserID, s.GroupID, s.EntryID, s.GameTitle, s.PlayedAt, s.DurationMinutes, s.Players, s.Notes, s.CreatedAt, s.UpdatedAt); err != nil {
		return fmt.Errorf("database: failed to insert play session (owner_user_id=%s): %w", s.OwnerUserID, err)
	}
	return nil
}

func (db *Database) GetPlaySessionByID(ctx context.Context, id uuid.UUID) (PlaySession, error) {
	var s PlaySession
	err := scanPlaySession(db.Pool.QueryRow(ctx, `SELECT `+playSessionColumns+` FROM tbl_play_session WHERE id = $1`, id), &s)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return s, ErrPlaySessionNotFound
		}
		return s, fmt.Errorf("database: failed to scan play session (id=%s): %w", id, err)
	}
	return s, nil
}

type ListPlaySessionsParams struct {
	Visibility share.Predicate
	GroupID    util.Optional[uuid.UUID]
	EntryID    util.Optional[uuid.UUID]
	From       util.Optional[time.Time]
	To         util.Optional[time.Time]
	Order      OrderBy
	Limit      int
	Offset     int
}

// ListPlaySessions returns the sessions the visibility predicate allows.
func (db *Database) ListPlaySessions(ctx context.Context, params ListPlaySessionsParams) ([]PlaySession, error) {
	var query strings.Builder
	query.WriteString(`SELECT ` + playSessionColumns + ` FROM tbl_play_session WHERE `)

	clause, args := params.Visibility.Clause("owner_user_id", "group_id", 1)
	query.WriteString(clause)
	argNum := len(args) + 1

	if params.GroupID.IsSet {
		query.WriteString(fmt.Sprintf(" AND group_id = $%d", argNum))
		args = append(args, params.GroupID.Val)
		argNum++
	}
	if params.EntryID.IsSet {
		query.WriteString(fmt.Sprintf(" AND entry_id = $%d", argNum))
		args = append(args, params.EntryID.Val)
		argNum++
	}
	if params.From.IsSet {
		query.WriteString(fmt.Sprintf(" AND played_at >= $%d", argNum))
		args = append(args, params.From.Val)
		argNum++
	}
	if params.To.IsSet {
		query.WriteString(fmt.Sprintf(" AND played_at < $%d", argNum))
		args = append(args, params.To.Val)
		argNum++
	}

	query.WriteString(" ORDER BY played_at " + params.Order.SQL() + ", id ASC")
	if params.Limit > 0 {
		query.WriteString(fmt.Sprintf(" LIMIT $%d OFFSET $%d", argNum, argNum+1))
		args = append(args, params.Limit, params.Offset)
	}

	rows, err := db.Pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("database: failed to list play sessions: %w", err)
	}
	defer rows.Close()

	var sessions []PlaySession
	for rows.Next() {
		var s PlaySession
		if err := scanPlaySession(rows, &s); err != nil {
			return nil, fmt.Errorf("database: failed to scan play session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database: failed to iterate play sessions: %w", err)
	}
	return sessions, nil
}

// UpdatePlaySessionSharing writes the sharing state of a session.
func (db *Database) UpdatePlaySessionSharing(ctx context.Context, id uuid.UUID, groupID util.Optional[uuid.UUID]) error {
	tag, err := db.Pool.Exec(ctx, `UPDATE tbl_play_session SET group_id = $1, updated_at = $2 WHERE id = $3`, groupID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("database: failed to update play session sharing (id=%s): %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPlaySessionNotFound
	}
	return nil
}

func (db *Database) DeletePlaySessionByID(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM tbl_play_session WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("database: failed to delete play session (id=%s): %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPlaySessionNotFound
	}
	return nil
}
