// Package share holds the contract every user-owned record that can be exposed
// to a group follows, and the single visibility rule applied to all of them.
package share

import (
	"github.com/freekieb7/playlog/internal/util"

	"github.com/google/uuid"
)

// Shareable is a record owned by one user that can optionally be shared with
// one group.
type Shareable interface {
	OwnerUserID() string
	SharedGroupID() (uuid.UUID, bool)
	ShareWithGroup(groupID uuid.UUID)
	MakePrivate()
}

// Resource implements Shareable and is meant to be embedded. The owner cannot
// change after construction.
type Resource struct {
	ownerUserID string
	groupID     util.Optional[uuid.UUID]
}

func NewResource(ownerUserID string) Resource {
	return Resource{ownerUserID: ownerUserID}
}

// RestoreResource rebuilds the sharing state read from storage.
func RestoreResource(ownerUserID string, groupID util.Optional[uuid.UUID]) Resource {
	return Resource{ownerUserID: ownerUserID, groupID: groupID}
}

func (r *Resource) OwnerUserID() string {
	return r.ownerUserID
}

func (r *Resource) SharedGroupID() (uuid.UUID, bool) {
	return r.groupID.Val, r.groupID.IsSet
}

// GroupID exposes the sharing state in its storable form.
func (r *Resource) GroupID() util.Optional[uuid.UUID] {
	return r.groupID
}

func (r *Resource) ShareWithGroup(groupID uuid.UUID) {
	r.groupID = util.Some(groupID)
}

func (r *Resource) MakePrivate() {
	r.groupID = util.None[uuid.UUID]()
}
