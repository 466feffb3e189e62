package group

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/freekieb7/playlog/internal/domain"

	"github.com/google/uuid"
)

const (
	InviteCodeLength   = 16
	InviteCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	InviteCodeLifetime = 7 * 24 * time.Hour
)

// randomSource feeds invite code generation. Tests may swap it.
var randomSource io.Reader = rand.Reader

// InviteCode grants membership to whoever presents it before ExpiresAt.
type InviteCode struct {
	ID              uuid.UUID
	GroupID         uuid.UUID
	Code            string
	CreatedByUserID string
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

// IsValid reports whether the code can still be redeemed at now.
func (c InviteCode) IsValid(now time.Time) bool {
	return now.Before(c.ExpiresAt)
}

// CreateInviteCode issues a fresh code valid for seven days. Only the owner may
// issue codes.
func (g *Group) CreateInviteCode(createdByUserID string, now time.Time) (InviteCode, error) {
	if !g.IsOwner(createdByUserID) {
		return InviteCode{}, domain.Fail(domain.FieldPermissions, "only the owner can create invite codes")
	}

	code, err := newInviteCode(g.id, createdByUserID, now)
	if err != nil {
		return InviteCode{}, err
	}
	g.inviteCodes = append(g.inviteCodes, code)
	return code, nil
}

// RevokeInviteCode removes the code with the given id. Revoking a code that
// does not exist succeeds without changes.
func (g *Group) RevokeInviteCode(codeID uuid.UUID, revokedByUserID string) error {
	if !g.IsOwner(revokedByUserID) {
		return domain.Fail(domain.FieldPermissions, "only the owner can revoke invite codes")
	}

	for i, c := range g.inviteCodes {
		if c.ID == codeID {
			g.inviteCodes = append(g.inviteCodes[:i], g.inviteCodes[i+1:]...)
			return nil
		}
	}
	return nil
}

// FindInviteCode looks up a code by its value. Lookup ignores case and
// surrounding whitespace.
func (g *Group) FindInviteCode(code string) (InviteCode, bool) {
	code = NormalizeInviteCode(code)
	for _, c := range g.inviteCodes {
		if c.Code == code {
			return c, true
		}
	}
	return InviteCode{}, false
}

// NormalizeInviteCode brings user input into the stored code form.
func NormalizeInviteCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func newInviteCode(groupID uuid.UUID, createdByUserID string, now time.Time) (InviteCode, error) {
	value, err := generateCode()
	if err != nil {
		return InviteCode{}, err
	}
	now = now.UTC()
	return InviteCode{
		ID:              uuid.New(),
		GroupID:         groupID,
		Code:            value,
		CreatedByUserID: createdByUserID,
		CreatedAt:       now,
		ExpiresAt:       now.Add(InviteCodeLifetime),
	}, nil
}

// generateCode draws each character independently and uniformly from the
// alphabet. Bytes at or above the largest multiple of the alphabet size are
// discarded so no character is favoured.
func generateCode() (string, error) {
	const limit = 256 - 256%len(InviteCodeAlphabet)

	out := make([]byte, 0, InviteCodeLength)
	buf := make([]byte, InviteCodeLength*2)
	for len(out) < InviteCodeLength {
		if _, err := io.ReadFull(randomSource, buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes for invite code: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, InviteCodeAlphabet[int(b)%len(InviteCodeAlphabet)])
			if len(out) == InviteCodeLength {
				break
			}
		}
	}
	return string(out), nil
}
