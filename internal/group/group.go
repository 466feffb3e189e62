// Package group implements the group aggregate: membership, roles and invite
// codes, plus the command handlers that drive it.
package group

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/freekieb7/playlog/internal/domain"

	"github.com/google/uuid"
)

const (
	MaxNameLength        = 100
	MaxDescriptionLength = 500
)

type Role string

const (
	RoleOwner  Role = "owner"
	RoleMember Role = "member"
)

// Member is a role-tagged membership. Members only come into existence through
// the Group they belong to.
type Member struct {
	ID       uuid.UUID
	GroupID  uuid.UUID
	UserID   string
	Role     Role
	JoinedAt time.Time
}

// Group is the aggregate root. It always holds exactly one owner.
type Group struct {
	id          uuid.UUID
	name        string
	description string
	members     []Member
	inviteCodes []InviteCode
	createdAt   time.Time
	updatedAt   time.Time
	version     int64
}

// New creates a group owned by ownerUserID together with its first invite
// code. Every violated rule is reported in the returned error.
func New(name, ownerUserID string, now time.Time, description string) (*Group, error) {
	var errs domain.Errors

	name = strings.TrimSpace(name)
	validateName(&errs, name)
	description = strings.TrimSpace(description)
	validateDescription(&errs, description)
	if strings.TrimSpace(ownerUserID) == "" {
		errs.Add(domain.FieldMembers, "owner user id is required")
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	now = now.UTC()
	g := &Group{
		id:          uuid.New(),
		name:        name,
		description: description,
		createdAt:   now,
		updatedAt:   now,
	}
	g.members = []Member{{
		ID:       uuid.New(),
		GroupID:  g.id,
		UserID:   ownerUserID,
		Role:     RoleOwner,
		JoinedAt: now,
	}}

	code, err := newInviteCode(g.id, ownerUserID, now)
	if err != nil {
		return nil, err
	}
	g.inviteCodes = []InviteCode{code}

	return g, nil
}

type RestoreParams struct {
	ID          uuid.UUID
	Name        string
	Description string
	Members     []Member
	InviteCodes []InviteCode
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Version     int64
}

// Restore rebuilds a group from persisted state without re-validating it.
func Restore(params RestoreParams) *Group {
	g := &Group{
		id:          params.ID,
		name:        params.Name,
		description: params.Description,
		createdAt:   params.CreatedAt,
		updatedAt:   params.UpdatedAt,
		version:     params.Version,
	}
	g.members = append([]Member(nil), params.Members...)
	g.inviteCodes = append([]InviteCode(nil), params.InviteCodes...)
	return g
}

func (g *Group) ID() uuid.UUID        { return g.id }
func (g *Group) Name() string         { return g.name }
func (g *Group) Description() string  { return g.description }
func (g *Group) CreatedAt() time.Time { return g.createdAt }
func (g *Group) UpdatedAt() time.Time { return g.updatedAt }
func (g *Group) Version() int64       { return g.version }

// Members returns a copy of the member list in join order.
func (g *Group) Members() []Member {
	return append([]Member(nil), g.members...)
}

// InviteCodes returns a copy of the invite code list in creation order.
func (g *Group) InviteCodes() []InviteCode {
	return append([]InviteCode(nil), g.inviteCodes...)
}

// Owner returns the single owner membership.
func (g *Group) Owner() Member {
	for _, m := range g.members {
		if m.Role == RoleOwner {
			return m
		}
	}
	return Member{}
}

// Touch records the time of the last persisted change.
func (g *Group) Touch(now time.Time, version int64) {
	g.updatedAt = now.UTC()
	g.version = version
}

func (g *Group) SetName(name string) error {
	var errs domain.Errors
	name = strings.TrimSpace(name)
	validateName(&errs, name)
	if err := errs.Err(); err != nil {
		return err
	}
	g.name = name
	return nil
}

func (g *Group) SetDescription(description string) error {
	var errs domain.Errors
	description = strings.TrimSpace(description)
	validateDescription(&errs, description)
	if err := errs.Err(); err != nil {
		return err
	}
	g.description = description
	return nil
}

// AddMember adds userID with the member role. Adding someone who already
// belongs to the group, the owner included, is rejected.
func (g *Group) AddMember(userID string, now time.Time) (Member, error) {
	if strings.TrimSpace(userID) == "" {
		return Member{}, domain.Fail(domain.FieldMembers, "user id is required")
	}
	if g.IsMember(userID) {
		return Member{}, domain.Fail(domain.FieldMembers, "already a member")
	}

	m := Member{
		ID:       uuid.New(),
		GroupID:  g.id,
		UserID:   userID,
		Role:     RoleMember,
		JoinedAt: now.UTC(),
	}
	g.members = append(g.members, m)
	return m, nil
}

// RemoveMember drops userID from the group. The owner can only leave after
// handing ownership to someone else.
func (g *Group) RemoveMember(userID string) error {
	idx := g.memberIndex(userID)
	if idx < 0 {
		return domain.Fail(domain.FieldMembers, "not a member")
	}
	if g.members[idx].Role == RoleOwner {
		return domain.Fail(domain.FieldMembers, "cannot remove the owner")
	}
	g.members = append(g.members[:idx], g.members[idx+1:]...)
	return nil
}

// TransferOwnership swaps the owner and member roles of the two users in one
// step. Transferring to oneself is accepted and changes nothing.
func (g *Group) TransferOwnership(currentOwnerID, newOwnerID string) error {
	from := g.memberIndex(currentOwnerID)
	if from < 0 || g.members[from].Role != RoleOwner {
		return domain.Fail(domain.FieldPermissions, "only the owner can transfer ownership")
	}
	to := g.memberIndex(newOwnerID)
	if to < 0 {
		return domain.Fail(domain.FieldMembers, "new owner must be a member")
	}
	if from == to {
		return nil
	}

	g.members[from].Role = RoleMember
	g.members[to].Role = RoleOwner
	return nil
}

// Role returns the role userID holds in the group.
func (g *Group) Role(userID string) (Role, bool) {
	idx := g.memberIndex(userID)
	if idx < 0 {
		return "", false
	}
	return g.members[idx].Role, true
}

func (g *Group) IsMember(userID string) bool {
	return g.memberIndex(userID) >= 0
}

func (g *Group) IsOwner(userID string) bool {
	role, ok := g.Role(userID)
	return ok && role == RoleOwner
}

func (g *Group) memberIndex(userID string) int {
	for i, m := range g.members {
		if m.UserID == userID {
			return i
		}
	}
	return -1
}

func validateName(errs *domain.Errors, name string) {
	if name == "" {
		errs.Add(domain.FieldName, "name is required")
		return
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		errs.Add(domain.FieldName, "name must be at most 100 characters")
	}
}

func validateDescription(errs *domain.Errors, description string) {
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		errs.Add(domain.FieldDescription, "description must be at most 500 characters")
	}
}
