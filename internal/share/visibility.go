package share

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// GroupSet is the set of groups a user belongs to.
type GroupSet map[uuid.UUID]struct{}

func NewGroupSet(ids ...uuid.UUID) GroupSet {
	s := make(GroupSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s GroupSet) Contains(id uuid.UUID) bool {
	_, ok := s[id]
	return ok
}

// IDs returns the members of the set in a stable order.
func (s GroupSet) IDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].String() < ids[j].String()
	})
	return ids
}

// Predicate decides whether a user may see a shareable record: the user owns
// it, or it is shared with a group the user belongs to.
type Predicate struct {
	userID string
	groups GroupSet
}

func VisibleTo(userID string, groups GroupSet) Predicate {
	if groups == nil {
		groups = GroupSet{}
	}
	return Predicate{userID: userID, groups: groups}
}

func (p Predicate) UserID() string {
	return p.userID
}

func (p Predicate) Allows(r Shareable) bool {
	if p.userID != "" && r.OwnerUserID() == p.userID {
		return true
	}
	groupID, ok := r.SharedGroupID()
	return ok && p.groups.Contains(groupID)
}

// Clause renders the predicate as a SQL condition over the given owner and
// group columns. Placeholders start at $argStart.
func (p Predicate) Clause(ownerColumn, groupColumn string, argStart int) (string, []any) {
	ids := p.groups.IDs()
	if len(ids) == 0 {
		return fmt.Sprintf("%s = $%d", ownerColumn, argStart), []any{p.userID}
	}

	groupIDs := make([]string, len(ids))
	for i, id := range ids {
		groupIDs[i] = id.String()
	}
	clause := fmt.Sprintf("(%s = $%d OR %s = ANY($%d::uuid[]))", ownerColumn, argStart, groupColumn, argStart+1)
	return clause, []any{p.userID, groupIDs}
}

// MembershipSource lists the groups a user belongs to.
type MembershipSource interface {
	GetUserGroupIDs(ctx context.Context, userID string) ([]uuid.UUID, error)
}

// Viewer memoizes group membership for the lifetime of one request so every
// query over shareable records reuses the same lookup.
type Viewer struct {
	source MembershipSource
	mu     sync.Mutex
	groups map[string]GroupSet
}

func NewViewer(source MembershipSource) *Viewer {
	return &Viewer{source: source, groups: make(map[string]GroupSet)}
}

func (v *Viewer) GroupsOf(ctx context.Context, userID string) (GroupSet, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if set, ok := v.groups[userID]; ok {
		return set, nil
	}

	ids, err := v.source.GetUserGroupIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load groups of user %s: %w", userID, err)
	}
	set := NewGroupSet(ids...)
	v.groups[userID] = set
	return set, nil
}

// Predicate builds the visibility predicate for userID.
func (v *Viewer) Predicate(ctx context.Context, userID string) (Predicate, error) {
	groups, err := v.GroupsOf(ctx, userID)
	if err != nil {
		return Predicate{}, err
	}
	return VisibleTo(userID, groups), nil
}

// Forget drops the memoized membership of userID, used after the request
// itself changes that membership.
func (v *Viewer) Forget(userID string) {
	v.mu.Lock()
	delete(v.groups, userID)
	v.mu.Unlock()
}

type viewerKey struct{}

func WithViewer(ctx context.Context, v *Viewer) context.Context {
	return context.WithValue(ctx, viewerKey{}, v)
}

// ViewerFor returns the request's Viewer, or a fresh one over source when the
// context carries none.
func ViewerFor(ctx context.Context, source MembershipSource) *Viewer {
	if v, ok := ctx.Value(viewerKey{}).(*Viewer); ok && v != nil {
		return v
	}
	return NewViewer(source)
}
