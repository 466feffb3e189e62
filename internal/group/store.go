package group

import (
	"context"
	"errors"

	"github.com/freekieb7/playlog/internal/apperr"
	"github.com/freekieb7/playlog/internal/database"

	"github.com/google/uuid"
)

// Store persists whole Group aggregates. Missing groups and invite codes are
// reported as apperr NotFound failures, lost updates as Conflict.
type Store interface {
	Load(ctx context.Context, id uuid.UUID) (*Group, error)
	LoadWithMembers(ctx context.Context, id uuid.UUID) (*Group, error)
	LoadByInviteCode(ctx context.Context, code string) (*Group, error)
	Save(ctx context.Context, g *Group) error
	Delete(ctx context.Context, id uuid.UUID) error
	GetUserGroupIDs(ctx context.Context, userID string) ([]uuid.UUID, error)
	IsUserMember(ctx context.Context, groupID uuid.UUID, userID string) (bool, error)
	ListForUser(ctx context.Context, userID string) ([]*Group, error)
}

// DBStore is the Postgres backed Store.
type DBStore struct {
	db *database.Database
}

func NewDBStore(db *database.Database) *DBStore {
	return &DBStore{db: db}
}

// Load returns the full aggregate. A group without its members could not
// answer ownership questions, so members and invite codes are always loaded.
func (s *DBStore) Load(ctx context.Context, id uuid.UUID) (*Group, error) {
	row, err := s.db.GetGroupByID(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	return s.restore(ctx, row)
}

func (s *DBStore) LoadWithMembers(ctx context.Context, id uuid.UUID) (*Group, error) {
	return s.Load(ctx, id)
}

// LoadByInviteCode resolves the group that issued code. Lookup ignores case
// and surrounding whitespace.
func (s *DBStore) LoadByInviteCode(ctx context.Context, code string) (*Group, error) {
	groupID, err := s.db.GetGroupIDByInviteCode(ctx, NormalizeInviteCode(code))
	if err != nil {
		return nil, translate(err)
	}
	return s.Load(ctx, groupID)
}

// Save inserts a new group (version 0) or updates a loaded one, replacing its
// member and invite code rows. The aggregate picks up the stored version.
func (s *DBStore) Save(ctx context.Context, g *Group) error {
	params := database.SaveGroupParams{
		Group: database.Group{
			ID:          g.ID(),
			Name:        g.Name(),
			Description: g.Description(),
			CreatedAt:   g.CreatedAt(),
		},
		ExpectedVersion: g.Version(),
	}
	for _, m := range g.members {
		params.Members = append(params.Members, database.GroupMember{
			ID:       m.ID,
			GroupID:  m.GroupID,
			UserID:   m.UserID,
			Role:     string(m.Role),
			JoinedAt: m.JoinedAt,
		})
	}
	for _, c := range g.inviteCodes {
		params.InviteCodes = append(params.InviteCodes, database.GroupInviteCode{
			ID:              c.ID,
			GroupID:         c.GroupID,
			Code:            c.Code,
			CreatedByUserID: c.CreatedByUserID,
			CreatedAt:       c.CreatedAt,
			ExpiresAt:       c.ExpiresAt,
		})
	}

	version, updatedAt, err := s.db.SaveGroup(ctx, params)
	if err != nil {
		return translate(err)
	}
	g.Touch(updatedAt, version)
	return nil
}

func (s *DBStore) Delete(ctx context.Context, id uuid.UUID) error {
	return translate(s.db.DeleteGroupByID(ctx, id))
}

func (s *DBStore) GetUserGroupIDs(ctx context.Context, userID string) ([]uuid.UUID, error) {
	return s.db.ListGroupIDsByUserID(ctx, userID)
}

func (s *DBStore) IsUserMember(ctx context.Context, groupID uuid.UUID, userID string) (bool, error) {
	return s.db.IsGroupMember(ctx, groupID, userID)
}

// ListForUser returns every group userID belongs to, ordered by name.
// Members and invite codes of all groups are loaded with one query each.
func (s *DBStore) ListForUser(ctx context.Context, userID string) ([]*Group, error) {
	rows, err := s.db.ListGroupsByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []*Group{}, nil
	}

	ids := make([]uuid.UUID, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	memberRows, err := s.db.ListGroupMembersByGroupIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	codeRows, err := s.db.ListGroupInviteCodesByGroupIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	members := make(map[uuid.UUID][]database.GroupMember, len(rows))
	for _, m := range memberRows {
		members[m.GroupID] = append(members[m.GroupID], m)
	}
	codes := make(map[uuid.UUID][]database.GroupInviteCode, len(rows))
	for _, c := range codeRows {
		codes[c.GroupID] = append(codes[c.GroupID], c)
	}

	groups := make([]*Group, 0, len(rows))
	for _, row := range rows {
		groups = append(groups, Restore(restoreParams(row, members[row.ID], codes[row.ID])))
	}
	return groups, nil
}

func (s *DBStore) restore(ctx context.Context, row database.Group) (*Group, error) {
	memberRows, err := s.db.ListGroupMembers(ctx, row.ID)
	if err != nil {
		return nil, err
	}
	codeRows, err := s.db.ListGroupInviteCodes(ctx, row.ID)
	if err != nil {
		return nil, err
	}
	return Restore(restoreParams(row, memberRows, codeRows)), nil
}

func restoreParams(row database.Group, memberRows []database.GroupMember, codeRows []database.GroupInviteCode) RestoreParams {
	params := RestoreParams{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
		Version:     row.Version,
	}
	for _, m := range memberRows {
		params.Members = append(params.Members, Member{
			ID:       m.ID,
			GroupID:  m.GroupID,
			UserID:   m.UserID,
			Role:     Role(m.Role),
			JoinedAt: m.JoinedAt,
		})
	}
	for _, c := range codeRows {
		params.InviteCodes = append(params.InviteCodes, InviteCode{
			ID:              c.ID,
			GroupID:         c.GroupID,
			Code:            c.Code,
			CreatedByUserID: c.CreatedByUserID,
			CreatedAt:       c.CreatedAt,
			ExpiresAt:       c.ExpiresAt,
		})
	}
	return params
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, database.ErrGroupNotFound):
		return &apperr.Error{Kind: apperr.KindNotFound, Message: "group not found", Err: err}
	case errors.Is(err, database.ErrInviteCodeNotFound):
		return &apperr.Error{Kind: apperr.KindNotFound, Message: "invite code not found", Err: err}
	case errors.Is(err, database.ErrGroupVersionConflict):
		return apperr.Conflict("group was modified concurrently, reload and retry", err)
	default:
		return err
	}
}
