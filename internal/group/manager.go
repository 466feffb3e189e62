package group

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/freekieb7/playlog/internal/apperr"
	"github.com/freekieb7/playlog/internal/audit"
	"github.com/freekieb7/playlog/internal/auth"
	"github.com/freekieb7/playlog/internal/cache"
	"github.com/freekieb7/playlog/internal/domain"
	"github.com/freekieb7/playlog/internal/share"
	"github.com/freekieb7/playlog/internal/telemetry"
	"github.com/freekieb7/playlog/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

type auditLogger interface {
	LogEvent(ctx context.Context, params audit.LogEventParam) error
}

// roleMirror keeps the external authorization store in line with group roles.
type roleMirror interface {
	SetGroupRole(ctx context.Context, groupID uuid.UUID, userID string, role string) error
	RemoveGroupMember(ctx context.Context, groupID uuid.UUID, userID string) error
}

type membershipCache interface {
	Invalidate(ctx context.Context, userIDs ...string) error
}

type redeemLimiter interface {
	CheckInviteRedeem(ctx context.Context, userID string) error
	ResetInviteRedeem(ctx context.Context, userID string) error
}

// Manager runs group commands on behalf of the user in the context.
type Manager struct {
	logger      *slog.Logger
	store       Store
	auditor     auditLogger
	roles       roleMirror
	membership  membershipCache
	limiter     redeemLimiter
	instruments *telemetry.Instruments
	now         func() time.Time
}

func NewManager(logger *slog.Logger, store Store, auditor auditLogger, roles roleMirror, membership membershipCache, limiter redeemLimiter, instruments *telemetry.Instruments) *Manager {
	return &Manager{
		logger:      logger,
		store:       store,
		auditor:     auditor,
		roles:       roles,
		membership:  membership,
		limiter:     limiter,
		instruments: instruments,
		now:         time.Now,
	}
}

type CreateGroupParams struct {
	Name        string
	Description string
}

// CreateGroup creates a group owned by the caller, together with its first
// invite code.
func (m *Manager) CreateGroup(ctx context.Context, params CreateGroupParams) (_ *Group, err error) {
	ctx, span := telemetry.StartSpan(ctx, "group.CreateGroup")
	defer func() { telemetry.EndSpan(span, err) }()

	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}

	g, err := New(params.Name, userID, m.now(), params.Description)
	if err != nil {
		return nil, apperr.FromDomain(err)
	}
	if err := m.store.Save(ctx, g); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("group.id", g.ID().String()))

	data := map[string]any{"name": g.Name()}
	if codes := g.InviteCodes(); len(codes) > 0 {
		data["invite_code_id"] = codes[0].ID
	}
	if err := m.auditor.LogEvent(ctx, audit.LogEventParam{
		ActorUserID: userID,
		SubjectID:   g.ID(),
		Type:        audit.AuditLogEventTypeGroupCreate,
		Data:        data,
	}); err != nil {
		return g, err
	}

	m.mirrorRole(ctx, g.ID(), userID, RoleOwner)
	m.membershipChanged(ctx, userID)
	m.instruments.GroupsCreated.Add(ctx, 1)
	m.instruments.InviteCodesCreated.Add(ctx, 1)

	m.logger.InfoContext(ctx, "Group created", "group_id", g.ID(), "owner_user_id", userID)
	return g, nil
}

// GetGroup returns a group the caller belongs to. Groups the caller is not a
// member of are reported as not found.
func (m *Manager) GetGroup(ctx context.Context, groupID uuid.UUID) (_ *Group, err error) {
	ctx, span := telemetry.StartSpan(ctx, "group.GetGroup", attribute.String("group.id", groupID.String()))
	defer func() { telemetry.EndSpan(span, err) }()

	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}
	return m.loadForMember(ctx, groupID, userID)
}

func (m *Manager) ListMyGroups(ctx context.Context) (_ []*Group, err error) {
	ctx, span := telemetry.StartSpan(ctx, "group.ListMyGroups")
	defer func() { telemetry.EndSpan(span, err) }()

	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}
	return m.store.ListForUser(ctx, userID)
}

type UpdateGroupParams struct {
	GroupID     uuid.UUID
	Name        util.Optional[string]
	Description util.Optional[string]
}

// UpdateGroup renames the group or changes its description. Owner only.
func (m *Manager) UpdateGroup(ctx context.Context, params UpdateGroupParams) (_ *Group, err error) {
	ctx, span := telemetry.StartSpan(ctx, "group.UpdateGroup", attribute.String("group.id", params.GroupID.String()))
	defer func() { telemetry.EndSpan(span, err) }()

	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}
	g, err := m.loadForMember(ctx, params.GroupID, userID)
	if err != nil {
		return nil, err
	}
	if !g.IsOwner(userID) {
		return nil, apperr.Forbidden("only the owner can update the group")
	}

	var errs domain.Errors
	changes := map[string]any{}
	if params.Name.IsSet {
		if err := g.SetName(params.Name.Val); err != nil {
			collect(&errs, err)
		} else {
			changes["name"] = g.Name()
		}
	}
	if params.Description.IsSet {
		if err := g.SetDescription(params.Description.Val); err != nil {
			collect(&errs, err)
		} else {
			changes["description"] = g.Description()
		}
	}
	if err := errs.Err(); err != nil {
		return nil, apperr.FromDomain(err)
	}
	if len(changes) == 0 {
		return g, nil
	}

	if err := m.store.Save(ctx, g); err != nil {
		return nil, err
	}
	if err := m.auditor.LogEvent(ctx, audit.LogEventParam{
		ActorUserID: userID,
		SubjectID:   g.ID(),
		Type:        audit.AuditLogEventTypeGroupUpdate,
		Data:        changes,
	}); err != nil {
		return g, err
	}

	m.logger.InfoContext(ctx, "Group updated", "group_id", g.ID())
	return g, nil
}

// JoinByInviteCode adds the caller to the group that issued code.
func (m *Manager) JoinByInviteCode(ctx context.Context, code string, now time.Time) (_ *Group, err error) {
	ctx, span := telemetry.StartSpan(ctx, "group.JoinByInviteCode")
	defer func() { telemetry.EndSpan(span, err) }()

	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}

	if err := m.limiter.CheckInviteRedeem(ctx, userID); err != nil {
		if errors.Is(err, cache.ErrTooManyAttempts) {
			m.instruments.InviteRedeemRefused.Add(ctx, 1)
			return nil, apperr.RateLimited("too many invite code attempts, try again later", err)
		}
		m.logger.WarnContext(ctx, "Invite redeem limiter unavailable", "user_id", userID, "error", err)
	}

	g, err := m.store.LoadByInviteCode(ctx, code)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("group.id", g.ID().String()))

	invite, ok := g.FindInviteCode(code)
	if !ok {
		return nil, apperr.NotFound("invite code")
	}
	if !invite.IsValid(now) {
		return nil, apperr.Validation([]domain.DomainError{{Name: domain.FieldInviteCode, Message: "invite code has expired"}})
	}

	member, err := g.AddMember(userID, now)
	if err != nil {
		return nil, apperr.FromDomain(err)
	}
	if err := m.store.Save(ctx, g); err != nil {
		return nil, err
	}
	if err := m.auditor.LogEvent(ctx, audit.LogEventParam{
		ActorUserID: userID,
		SubjectID:   g.ID(),
		Type:        audit.AuditLogEventTypeGroupMemberJoin,
		Data: map[string]any{
			"user_id":        userID,
			"member_id":      member.ID,
			"invite_code_id": invite.ID,
		},
	}); err != nil {
		return g, err
	}

	m.mirrorRole(ctx, g.ID(), userID, RoleMember)
	m.membershipChanged(ctx, userID)
	if err := m.limiter.ResetInviteRedeem(ctx, userID); err != nil {
		m.logger.WarnContext(ctx, "Failed to reset invite redeem attempts", "user_id", userID, "error", err)
	}
	m.instruments.MembersJoined.Add(ctx, 1)

	m.logger.InfoContext(ctx, "Member joined group", "group_id", g.ID(), "user_id", userID)
	return g, nil
}

// RemoveMember lets the owner remove another member.
func (m *Manager) RemoveMember(ctx context.Context, groupID uuid.UUID, memberUserID string) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "group.RemoveMember", attribute.String("group.id", groupID.String()))
	defer func() { telemetry.EndSpan(span, err) }()

	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return err
	}
	g, err := m.loadForMember(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !g.IsOwner(userID) {
		return apperr.Forbidden("only the owner can remove members")
	}
	if err := g.RemoveMember(memberUserID); err != nil {
		return apperr.FromDomain(err)
	}
	if err := m.store.Save(ctx, g); err != nil {
		return err
	}
	if err := m.auditor.LogEvent(ctx, audit.LogEventParam{
		ActorUserID: userID,
		SubjectID:   g.ID(),
		Type:        audit.AuditLogEventTypeGroupMemberRemove,
		Data:        map[string]any{"user_id": memberUserID},
	}); err != nil {
		return err
	}

	m.mirrorRemoval(ctx, g.ID(), memberUserID)
	m.membershipChanged(ctx, memberUserID)

	m.logger.InfoContext(ctx, "Member removed from group", "group_id", g.ID(), "user_id", memberUserID)
	return nil
}

// LeaveGroup removes the caller from the group. The owner has to hand over
// ownership first.
func (m *Manager) LeaveGroup(ctx context.Context, groupID uuid.UUID) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "group.LeaveGroup", attribute.String("group.id", groupID.String()))
	defer func() { telemetry.EndSpan(span, err) }()

	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return err
	}
	g, err := m.loadForMember(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if g.IsOwner(userID) {
		return apperr.Validation([]domain.DomainError{{Name: domain.FieldMembers, Message: "the owner must transfer ownership before leaving"}})
	}
	if err := g.RemoveMember(userID); err != nil {
		return apperr.FromDomain(err)
	}
	if err := m.store.Save(ctx, g); err != nil {
		return err
	}
	if err := m.auditor.LogEvent(ctx, audit.LogEventParam{
		ActorUserID: userID,
		SubjectID:   g.ID(),
		Type:        audit.AuditLogEventTypeGroupMemberLeave,
		Data:        map[string]any{"user_id": userID},
	}); err != nil {
		return err
	}

	m.mirrorRemoval(ctx, g.ID(), userID)
	m.membershipChanged(ctx, userID)

	m.logger.InfoContext(ctx, "Member left group", "group_id", g.ID(), "user_id", userID)
	return nil
}

// TransferOwnership hands the owner role to another member; the caller
// becomes a regular member.
func (m *Manager) TransferOwnership(ctx context.Context, groupID uuid.UUID, newOwnerUserID string) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "group.TransferOwnership", attribute.String("group.id", groupID.String()))
	defer func() { telemetry.EndSpan(span, err) }()

	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return err
	}
	g, err := m.loadForMember(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if err := g.TransferOwnership(userID, newOwnerUserID); err != nil {
		return apperr.FromDomain(err)
	}
	if userID == newOwnerUserID {
		return nil
	}

	if err := m.store.Save(ctx, g); err != nil {
		return err
	}
	if err := m.auditor.LogEvent(ctx, audit.LogEventParam{
		ActorUserID: userID,
		SubjectID:   g.ID(),
		Type:        audit.AuditLogEventTypeGroupOwnershipTransfer,
		Data: map[string]any{
			"previous_owner_user_id": userID,
			"new_owner_user_id":      newOwnerUserID,
		},
	}); err != nil {
		return err
	}

	m.mirrorRole(ctx, g.ID(), newOwnerUserID, RoleOwner)
	m.mirrorRole(ctx, g.ID(), userID, RoleMember)

	m.logger.InfoContext(ctx, "Group ownership transferred", "group_id", g.ID(), "from_user_id", userID, "to_user_id", newOwnerUserID)
	return nil
}

// CreateInviteCode issues a new invite code. Owner only.
func (m *Manager) CreateInviteCode(ctx context.Context, groupID uuid.UUID) (_ InviteCode, err error) {
	ctx, span := telemetry.StartSpan(ctx, "group.CreateInviteCode", attribute.String("group.id", groupID.String()))
	defer func() { telemetry.EndSpan(span, err) }()

	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return InviteCode{}, err
	}
	g, err := m.loadForMember(ctx, groupID, userID)
	if err != nil {
		return InviteCode{}, err
	}
	code, err := g.CreateInviteCode(userID, m.now())
	if err != nil {
		return InviteCode{}, apperr.FromDomain(err)
	}
	if err := m.store.Save(ctx, g); err != nil {
		return InviteCode{}, err
	}
	if err := m.auditor.LogEvent(ctx, audit.LogEventParam{
		ActorUserID: userID,
		SubjectID:   g.ID(),
		Type:        audit.AuditLogEventTypeGroupInviteCreate,
		Data: map[string]any{
			"invite_code_id": code.ID,
			"expires_at":     code.ExpiresAt,
		},
	}); err != nil {
		return code, err
	}
	m.instruments.InviteCodesCreated.Add(ctx, 1)

	m.logger.InfoContext(ctx, "Invite code created", "group_id", g.ID(), "invite_code_id", code.ID)
	return code, nil
}

// RevokeInviteCode withdraws an invite code. Owner only; revoking an unknown
// code succeeds without changes.
func (m *Manager) RevokeInviteCode(ctx context.Context, groupID, codeID uuid.UUID) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "group.RevokeInviteCode", attribute.String("group.id", groupID.String()))
	defer func() { telemetry.EndSpan(span, err) }()

	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return err
	}
	g, err := m.loadForMember(ctx, groupID, userID)
	if err != nil {
		return err
	}

	before := len(g.inviteCodes)
	if err := g.RevokeInviteCode(codeID, userID); err != nil {
		return apperr.FromDomain(err)
	}
	if len(g.inviteCodes) == before {
		return nil
	}

	if err := m.store.Save(ctx, g); err != nil {
		return err
	}
	if err := m.auditor.LogEvent(ctx, audit.LogEventParam{
		ActorUserID: userID,
		SubjectID:   g.ID(),
		Type:        audit.AuditLogEventTypeGroupInviteRevoke,
		Data:        map[string]any{"invite_code_id": codeID},
	}); err != nil {
		return err
	}
	m.instruments.InviteCodesRevoked.Add(ctx, 1)

	m.logger.InfoContext(ctx, "Invite code revoked", "group_id", g.ID(), "invite_code_id", codeID)
	return nil
}

// ListInviteCodes returns the group's invite codes, expired ones included.
// Owner only.
func (m *Manager) ListInviteCodes(ctx context.Context, groupID uuid.UUID) (_ []InviteCode, err error) {
	ctx, span := telemetry.StartSpan(ctx, "group.ListInviteCodes", attribute.String("group.id", groupID.String()))
	defer func() { telemetry.EndSpan(span, err) }()

	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}
	g, err := m.loadForMember(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if !g.IsOwner(userID) {
		return nil, apperr.Forbidden("only the owner can list invite codes")
	}
	return g.InviteCodes(), nil
}

// DeleteGroup removes the group. Records shared with it become private.
// Owner only.
func (m *Manager) DeleteGroup(ctx context.Context, groupID uuid.UUID) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "group.DeleteGroup", attribute.String("group.id", groupID.String()))
	defer func() { telemetry.EndSpan(span, err) }()

	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return err
	}
	g, err := m.loadForMember(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !g.IsOwner(userID) {
		return apperr.Forbidden("only the owner can delete the group")
	}
	if err := m.store.Delete(ctx, g.ID()); err != nil {
		return err
	}
	if err := m.auditor.LogEvent(ctx, audit.LogEventParam{
		ActorUserID: userID,
		SubjectID:   g.ID(),
		Type:        audit.AuditLogEventTypeGroupDelete,
		Data:        map[string]any{"name": g.Name(), "member_count": len(g.members)},
	}); err != nil {
		return err
	}

	userIDs := make([]string, 0, len(g.members))
	for _, member := range g.members {
		m.mirrorRemoval(ctx, g.ID(), member.UserID)
		userIDs = append(userIDs, member.UserID)
	}
	m.membershipChanged(ctx, userIDs...)

	m.logger.InfoContext(ctx, "Group deleted", "group_id", g.ID())
	return nil
}

// loadForMember loads a group and hides it from users outside it.
func (m *Manager) loadForMember(ctx context.Context, groupID uuid.UUID, userID string) (*Group, error) {
	g, err := m.store.LoadWithMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !g.IsMember(userID) {
		return nil, apperr.NotFound("group")
	}
	return g, nil
}

// mirrorRole and mirrorRemoval update the authorization store. The database
// stays authoritative, so a failed mirror write is logged and not returned.
func (m *Manager) mirrorRole(ctx context.Context, groupID uuid.UUID, userID string, role Role) {
	if err := m.roles.SetGroupRole(ctx, groupID, userID, string(role)); err != nil {
		m.logger.ErrorContext(ctx, "Failed to sync group role", "group_id", groupID, "user_id", userID, "role", role, "error", err)
	}
}

func (m *Manager) mirrorRemoval(ctx context.Context, groupID uuid.UUID, userID string) {
	if err := m.roles.RemoveGroupMember(ctx, groupID, userID); err != nil {
		m.logger.ErrorContext(ctx, "Failed to remove group role", "group_id", groupID, "user_id", userID, "error", err)
	}
}

func (m *Manager) membershipChanged(ctx context.Context, userIDs ...string) {
	if err := m.membership.Invalidate(ctx, userIDs...); err != nil {
		m.logger.WarnContext(ctx, "Failed to invalidate membership cache", "user_ids", userIDs, "error", err)
	}
	viewer := share.ViewerFor(ctx, nil)
	for _, id := range userIDs {
		viewer.Forget(id)
	}
}

func collect(errs *domain.Errors, err error) {
	list, _ := domain.AsErrors(err)
	for _, e := range list {
		errs.Add(e.Name, e.Message)
	}
}
