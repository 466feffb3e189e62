package share

import (
	"context"
	"fmt"

	"github.com/freekieb7/playlog/internal/apperr"

	"github.com/google/uuid"
)

type MembershipChecker interface {
	IsUserMember(ctx context.Context, groupID uuid.UUID, userID string) (bool, error)
}

// Authorizer guards sharing and unsharing for every shareable type.
type Authorizer struct {
	members MembershipChecker
}

func NewAuthorizer(members MembershipChecker) Authorizer {
	return Authorizer{members: members}
}

// AuthorizeShare allows the owner of r to share it with a group they belong to.
func (a Authorizer) AuthorizeShare(ctx context.Context, actorID string, r Shareable, groupID uuid.UUID) error {
	if r.OwnerUserID() != actorID {
		return apperr.Forbidden("only the owner can share this resource")
	}

	ok, err := a.members.IsUserMember(ctx, groupID, actorID)
	if err != nil {
		return fmt.Errorf("failed to check membership of group %s: %w", groupID, err)
	}
	if !ok {
		return apperr.Forbidden("you can only share with groups you belong to")
	}
	return nil
}

// AuthorizeUnshare allows only the owner of r to make it private again.
func (a Authorizer) AuthorizeUnshare(actorID string, r Shareable) error {
	if r.OwnerUserID() != actorID {
		return apperr.Forbidden("only the owner can unshare this resource")
	}
	return nil
}

// Share authorizes and applies sharing r with groupID.
func (a Authorizer) Share(ctx context.Context, actorID string, r Shareable, groupID uuid.UUID) error {
	if err := a.AuthorizeShare(ctx, actorID, r, groupID); err != nil {
		return err
	}
	r.ShareWithGroup(groupID)
	return nil
}

// Unshare authorizes and applies making r private.
func (a Authorizer) Unshare(actorID string, r Shareable) error {
	if err := a.AuthorizeUnshare(actorID, r); err != nil {
		return err
	}
	r.MakePrivate()
	return nil
}
