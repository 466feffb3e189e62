package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/freekieb7/playlog/internal/database"

	"github.com/google/uuid"
)

type AuditLogEventType string

const (
	AuditLogEventTypeGroupCreate            AuditLogEventType = "group.create"
	AuditLogEventTypeGroupUpdate            AuditLogEventType = "group.update"
	AuditLogEventTypeGroupDelete            AuditLogEventType = "group.delete"
	AuditLogEventTypeGroupMemberJoin        AuditLogEventType = "group.member_join"
	AuditLogEventTypeGroupMemberRemove      AuditLogEventType = "group.member_remove"
	AuditLogEventTypeGroupMemberLeave       AuditLogEventType = "group.member_leave"
	AuditLogEventTypeGroupOwnershipTransfer AuditLogEventType = "group.ownership_transfer"
	AuditLogEventTypeGroupInviteCreate      AuditLogEventType = "group.invite_create"
	AuditLogEventTypeGroupInviteRevoke      AuditLogEventType = "group.invite_revoke"
	AuditLogEventTypeResourceShare          AuditLogEventType = "resource.share"
	AuditLogEventTypeResourceUnshare        AuditLogEventType = "resource.unshare"
)

type eventStore interface {
	CreateAuditLogEvent(ctx context.Context, params database.CreateAuditLogEventParams) (database.AuditLogEvent, error)
}

type Auditor struct {
	logger *slog.Logger
	db     eventStore
}

func NewAuditor(logger *slog.Logger, db eventStore) Auditor {
	return Auditor{logger: logger, db: db}
}

type LogEventParam struct {
	ActorUserID string
	SubjectID   uuid.UUID
	Type        AuditLogEventType
	Data        map[string]any
}

func (a *Auditor) LogEvent(ctx context.Context, params LogEventParam) error {
	data, err := json.Marshal(params.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal audit log event data: %w", err)
	}

	if _, err = a.db.CreateAuditLogEvent(ctx, database.CreateAuditLogEventParams{
		ActorUserID: params.ActorUserID,
		SubjectID:   params.SubjectID,
		EventType:   string(params.Type),
		EventData:   data,
	}); err != nil {
		return fmt.Errorf("failed to create audit log event: %w", err)
	}

	a.logger.DebugContext(ctx, "Audit event recorded", "type", params.Type, "subject_id", params.SubjectID, "actor", params.ActorUserID)
	return nil
}
