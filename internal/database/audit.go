package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/freekieb7/playlog/internal/util"

	"github.com/google/uuid"
)

type AuditLogEvent struct {
	ID          uuid.UUID
	ActorUserID string
	SubjectID   uuid.UUID
	Type        string
	Data        json.RawMessage
	CreatedAt   time.Time
}

type CreateAuditLogEventParams struct {
	ActorUserID string
	SubjectID   uuid.UUID
	EventType   string
	EventData   json.RawMessage
}

func (db *Database) CreateAuditLogEvent(ctx context.Context, params CreateAuditLogEventParams) (AuditLogEvent, error) {
	event := AuditLogEvent{
		ID:          uuid.New(),
		ActorUserID: params.ActorUserID,
		SubjectID:   params.SubjectID,
		Type:        params.EventType,
		Data:        params.EventData,
		CreatedAt:   time.Now().UTC(),
	}

	if _, err := db.Pool.Exec(ctx, `INSERT INTO tbl_audit_log_event (id, actor_user_id, subject_id, type, data, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.ActorUserID, event.SubjectID, event.Type, event.Data, event.CreatedAt); err != nil {
		return event, fmt.Errorf("database: failed to insert audit log event (subject_id=%s): %w", event.SubjectID, err)
	}
	return event, nil
}

type ListAuditLogEventsParams struct {
	SubjectID      util.Optional[uuid.UUID]
	StartTimestamp util.Optional[time.Time]
	EndTimestamp   util.Optional[time.Time]
	Limit          util.Optional[int]
}

func (db *Database) ListAuditLogEvents(ctx context.Context, params ListAuditLogEventsParams) ([]AuditLogEvent, error) {
	var query strings.Builder
	query.WriteString(`SELECT id, actor_user_id, subject_id, type, data, created_at FROM tbl_audit_log_event WHERE 1=1`)
	var args []any
	argNum := 1

	if params.SubjectID.IsSet {
		query.WriteString(fmt.Sprintf(" AND subject_id = $%d", argNum))
		args = append(args, params.SubjectID.Val)
		argNum++
	}
	if params.StartTimestamp.IsSet {
		query.WriteString(fmt.Sprintf(" AND created_at >= $%d", argNum))
		args = append(args, params.StartTimestamp.Val)
		argNum++
	}
	if params.EndTimestamp.IsSet {
		query.WriteString(fmt.Sprintf(" AND created_at <= $%d", argNum))
		args = append(args, params.EndTimestamp.Val)
		argNum++
	}
	query.WriteString(" ORDER BY created_at DESC")
	if params.Limit.IsSet {
		query.WriteString(fmt.Sprintf(" LIMIT $%d", argNum))
		args = append(args, params.Limit.Val)
	}

	rows, err := db.Pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("database: failed to list audit log events: %w", err)
	}
	defer rows.Close()

	var events []AuditLogEvent
	for rows.Next() {
		var e AuditLogEvent
		if err := rows.Scan(&e.ID, &e.ActorUserID, &e.SubjectID, &e.Type, &e.Data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("database: failed to scan audit log event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database: failed to iterate audit log events: %w", err)
	}
	return events, nil
}
