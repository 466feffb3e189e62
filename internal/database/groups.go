package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type Group struct {
	ID          uuid.UUID
	Name        string
	Description string
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type GroupMember struct {
	ID       uuid.UUID
	GroupID  uuid.UUID
	UserID   string
	Role     string
	JoinedAt time.Time
}

type GroupInviteCode struct {
	ID              uuid.UUID
	GroupID         uuid.UUID
	Code            string
	CreatedByUserID string
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

func (db *Database) GetGroupByID(ctx context.Context, id uuid.UUID) (Group, error) {
	var group Group
	err := db.Pool.QueryRow(ctx, `SELECT id, name, description, version, created_at, updated_at FROM tbl_group WHERE id = $1`, id).Scan(
		&group.ID, &group.Name, &group.Description, &group.Version, &group.CreatedAt, &group.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return group, ErrGroupNotFound
		}
		return group, fmt.Errorf("database: failed to scan group (id=%s): %w", id, err)
	}
	return group, nil
}

const (
	groupMemberColumns     = `id, group_id, user_id, role, joined_at`
	groupInviteCodeColumns = `id, group_id, code, created_by_user_id, created_at, expires_at`
)

func (db *Database) ListGroupMembers(ctx context.Context, groupID uuid.UUID) ([]GroupMember, error) {
	members, err := db.queryGroupMembers(ctx, `SELECT `+groupMemberColumns+` FROM tbl_group_member WHERE group_id = $1 ORDER BY joined_at ASC, id ASC`, groupID)
	if err != nil {
		return nil, fmt.Errorf("database: failed to list group members (group_id=%s): %w", groupID, err)
	}
	return members, nil
}

// ListGroupMembersByGroupIDs loads the members of several groups in one query.
func (db *Database) ListGroupMembersByGroupIDs(ctx context.Context, groupIDs []uuid.UUID) ([]GroupMember, error) {
	members, err := db.queryGroupMembers(ctx, `SELECT `+groupMemberColumns+` FROM tbl_group_member WHERE group_id = ANY($1) ORDER BY group_id, joined_at ASC, id ASC`, groupIDs)
	if err != nil {
		return nil, fmt.Errorf("database: failed to list members of %d groups: %w", len(groupIDs), err)
	}
	return members, nil
}

func (db *Database) queryGroupMembers(ctx context.Context, query string, args ...any) ([]GroupMember, error) {
	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []GroupMember
	for rows.Next() {
		var m GroupMember
		if err := rows.Scan(&m.ID, &m.GroupID, &m.UserID, &m.Role, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan group member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (db *Database) ListGroupInviteCodes(ctx context.Context, groupID uuid.UUID) ([]GroupInviteCode, error) {
	codes, err := db.queryGroupInviteCodes(ctx, `SELECT `+groupInviteCodeColumns+` FROM tbl_group_invite_code WHERE group_id = $1 ORDER BY created_at ASC, id ASC`, groupID)
	if err != nil {
		return nil, fmt.Errorf("database: failed to list invite codes (group_id=%s): %w", groupID, err)
	}
	return codes, nil
}

// ListGroupInviteCodesByGroupIDs loads the invite codes of several groups in
// one query.
func (db *Database) ListGroupInviteCodesByGroupIDs(ctx context.Context, groupIDs []uuid.UUID) ([]GroupInviteCode, error) {
	codes, err := db.queryGroupInviteCodes(ctx, `SELECT `+groupInviteCodeColumns+` FROM tbl_group_invite_code WHERE group_id = ANY($1) ORDER BY group_id, created_at ASC, id ASC`, groupIDs)
	if err != nil {
		return nil, fmt.Errorf("database: failed to list invite codes of %d groups: %w", len(groupIDs), err)
	}
	return codes, nil
}

func (db *Database) queryGroupInviteCodes(ctx context.Context, query string, args ...any) ([]GroupInviteCode, error) {
	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []GroupInviteCode
	for rows.Next() {
		var c GroupInviteCode
		if err := rows.Scan(&c.ID, &c.GroupID, &c.Code, &c.CreatedByUserID, &c.CreatedAt, &c.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan invite code: %w", err)
		}
		codes = append(codes, c)
	}
	return codes, rows.Err()
}

// GetGroupIDByInviteCode resolves the group that issued code, expired or not.
func (db *Database) GetGroupIDByInviteCode(ctx context.Context, code string) (uuid.UUID, error) {
	var groupID uuid.UUID
	err := db.Pool.QueryRow(ctx, `SELECT group_id FROM tbl_group_invite_code WHERE code = $1`, code).Scan(&groupID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return groupID, ErrInviteCodeNotFound
		}
		return groupID, fmt.Errorf("database: failed to look up invite code: %w", err)
	}
	return groupID, nil
}

func (db *Database) ListGroupIDsByUserID(ctx context.Context, userID string) ([]uuid.UUID, error) {
	rows, err := db.Pool.Query(ctx, `SELECT group_id FROM tbl_group_member WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("database: failed to list group ids (user_id=%s): %w", userID, err)
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("database: failed to scan group id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database: failed to iterate group ids: %w", err)
	}
	return ids, nil
}

func (db *Database) IsGroupMember(ctx context.Context, groupID uuid.UUID, userID string) (bool, error) {
	var exists bool
	if err := db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tbl_group_member WHERE group_id = $1 AND user_id = $2)`, groupID, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("database: failed to check group membership (group_id=%s, user_id=%s): %w", groupID, userID, err)
	}
	return exists, nil
}

func (db *Database) ListGroupsByUserID(ctx context.Context, userID string) ([]Group, error) {
	rows, err := db.Pool.Query(ctx, `SELECT g.id, g.name, g.description, g.version, g.created_at, g.updated_at
		FROM tbl_group g
		JOIN tbl_group_member m ON m.group_id = g.id
		WHERE m.user_id = $1
		ORDER BY g.name ASC, g.id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("database: failed to list groups (user_id=%s): %w", userID, err)
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.Version, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("database: failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database: failed to iterate groups: %w", err)
	}
	return groups, nil
}

type SaveGroupParams struct {
	Group       Group
	Members     []GroupMember
	InviteCodes []GroupInviteCode
	// ExpectedVersion is the version the group was loaded at; zero inserts.
	ExpectedVersion int64
}

// SaveGroup writes the group and replaces its member and invite code rows in
// one transaction. It returns the new version.
func (db *Database) SaveGroup(ctx context.Context, params SaveGroupParams) (int64, time.Time, error) {
	g := params.Group
	now := time.Now().UTC()
	var version int64

	err := db.WithTx(ctx, func(tx pgx.Tx) error {
		if params.ExpectedVersion == 0 {
			version = 1
			if _, err := tx.Exec(ctx, `INSERT INTO tbl_group (id, name, description, version, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
				g.ID, g.Name, g.Description, version, g.CreatedAt, now); err != nil {
				return fmt.Errorf("database: failed to insert group (id=%s): %w", g.ID, err)
			}
		} else {
			err := tx.QueryRow(ctx, `UPDATE tbl_group SET name = $1, description = $2, version = version + 1, updated_at = $3 WHERE id = $4 AND version = $5 RETURNING version`,
				g.Name, g.Description, now, g.ID, params.ExpectedVersion).Scan(&version)
			if errors.Is(err, pgx.ErrNoRows) {
				var exists bool
				if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tbl_group WHERE id = $1)`, g.ID).Scan(&exists); err != nil {
					return fmt.Errorf("database: failed to check group (id=%s): %w", g.ID, err)
				}
				if !exists {
					return ErrGroupNotFound
				}
				return ErrGroupVersionConflict
			}
			if err != nil {
				return fmt.Errorf("database: failed to update group (id=%s): %w", g.ID, err)
			}
		}

		if err := replaceGroupMembers(ctx, tx, g.ID, params.Members); err != nil {
			return err
		}
		return replaceGroupInviteCodes(ctx, tx, g.ID, params.InviteCodes)
	})
	if err != nil {
		return 0, time.Time{}, err
	}
	return version, now, nil
}

func replaceGroupMembers(ctx context.Context, tx pgx.Tx, groupID uuid.UUID, members []GroupMember) error {
	userIDs := make([]string, len(members))
	for i, m := range members {
		userIDs[i] = m.UserID
	}
	if _, err := tx.Exec(ctx, `DELETE FROM tbl_group_member WHERE group_id = $1 AND NOT (user_id = ANY($2::text[]))`, groupID, userIDs); err != nil {
		return fmt.Errorf("database: failed to delete removed group members (group_id=%s): %w", groupID, err)
	}

	batch := &pgx.Batch{}
	for _, m := range members {
		batch.Queue(`INSERT INTO tbl_group_member (id, group_id, user_id, role, joined_at) VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (group_id, user_id) DO UPDATE SET role = EXCLUDED.role`,
			m.ID, groupID, m.UserID, m.Role, m.JoinedAt)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("database: failed to upsert group members (group_id=%s): %w", groupID, err)
	}
	return nil
}

func replaceGroupInviteCodes(ctx context.Context, tx pgx.Tx, groupID uuid.UUID, codes []GroupInviteCode) error {
	ids := make([]string, len(codes))
	for i, c := range codes {
		ids[i] = c.ID.String()
	}
	if _, err := tx.Exec(ctx, `DELETE FROM tbl_group_invite_code WHERE group_id = $1 AND NOT (id = ANY($2::uuid[]))`, groupID, ids); err != nil {
		return fmt.Errorf("database: failed to delete revoked invite codes (group_id=%s): %w", groupID, err)
	}

	batch := &pgx.Batch{}
	for _, c := range codes {
		batch.Queue(`INSERT INTO tbl_group_invite_code (id, group_id, code, created_by_user_id, created_at, expires_at) VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING`,
			c.ID, groupID, c.Code, c.CreatedByUserID, c.CreatedAt, c.ExpiresAt)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("database: failed to insert invite codes (group_id=%s): %w", groupID, err)
	}
	return nil
}

func (db *Database) DeleteGroupByID(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM tbl_group WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("database: failed to delete group (id=%s): %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrGroupNotFound
	}
	return nil
}

// DeleteExpiredGroupInviteCodes removes codes that expired before the given
// time and reports how many were removed.
func (db *Database) DeleteExpiredGroupInviteCodes(ctx context.Context, before time.Time) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM tbl_group_invite_code WHERE expires_at <= $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("database: failed to delete expired invite codes: %w", err)
	}
	return tag.RowsAffected(), nil
}
