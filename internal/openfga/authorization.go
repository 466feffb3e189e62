package openfga

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/google/uuid"
)

//go:embed model.json
var authorizationModel []byte

const (
	TypeUser         = "user"
	TypeGroup        = "group"
	TypeLibraryEntry = "library_entry"
	TypePlaySession  = "play_session"

	RelationOwner  = "owner"
	RelationMember = "member"
	RelationViewer = "viewer"
)

// Tuple is a relationship tuple in its wire form, e.g.
// {User: "user:abc", Relation: "member", Object: "group:123"}.
type Tuple struct {
	User     string `json:"user"`
	Relation string `json:"relation"`
	Object   string `json:"object"`
}

func UserRef(userID string) string {
	return fmt.Sprintf("%s:%s", TypeUser, userID)
}

func ObjectRef(objectType string, id uuid.UUID) string {
	return fmt.Sprintf("%s:%s", objectType, id)
}

// GroupMembersRef is the userset of all members of a group.
func GroupMembersRef(groupID uuid.UUID) string {
	return fmt.Sprintf("%s:%s#%s", TypeGroup, groupID, RelationMember)
}

type tupleStore interface {
	Check(ctx context.Context, user, relation, object string) (bool, error)
	Exists(ctx context.Context, t Tuple) (bool, error)
	Write(ctx context.Context, writes, deletes []Tuple) error
}

// AuthorizationService mirrors group roles and resource sharing into OpenFGA.
type AuthorizationService struct {
	client tupleStore
}

func NewAuthorizationService(client tupleStore) *AuthorizationService {
	return &AuthorizationService{client: client}
}

// SetGroupRole records role for userID in the group and clears the other role.
func (s *AuthorizationService) SetGroupRole(ctx context.Context, groupID uuid.UUID, userID string, role string) error {
	other := RelationMember
	if role == RelationMember {
		other = RelationOwner
	}
	object := ObjectRef(TypeGroup, groupID)
	return s.apply(ctx,
		[]Tuple{{User: UserRef(userID), Relation: role, Object: object}},
		[]Tuple{{User: UserRef(userID), Relation: other, Object: object}},
	)
}

// RemoveGroupMember drops every role userID holds in the group.
func (s *AuthorizationService) RemoveGroupMember(ctx context.Context, groupID uuid.UUID, userID string) error {
	object := ObjectRef(TypeGroup, groupID)
	return s.apply(ctx, nil, []Tuple{
		{User: UserRef(userID), Relation: RelationOwner, Object: object},
		{User: UserRef(userID), Relation: RelationMember, Object: object},
	})
}

// SetResourceOwner records the owner of a shareable record.
func (s *AuthorizationService) SetResourceOwner(ctx context.Context, objectType string, id uuid.UUID, userID string) error {
	return s.apply(ctx, []Tuple{{User: UserRef(userID), Relation: RelationOwner, Object: ObjectRef(objectType, id)}}, nil)
}

// ShareResource lets every member of groupID view the record.
func (s *AuthorizationService) ShareResource(ctx context.Context, objectType string, id, groupID uuid.UUID) error {
	return s.apply(ctx, []Tuple{{User: GroupMembersRef(groupID), Relation: RelationViewer, Object: ObjectRef(objectType, id)}}, nil)
}

// UnshareResource revokes group access to the record.
func (s *AuthorizationService) UnshareResource(ctx context.Context, objectType string, id, groupID uuid.UUID) error {
	return s.apply(ctx, nil, []Tuple{{User: GroupMembersRef(groupID), Relation: RelationViewer, Object: ObjectRef(objectType, id)}})
}

func (s *AuthorizationService) CanViewResource(ctx context.Context, userID, objectType string, id uuid.UUID) (bool, error) {
	return s.client.Check(ctx, UserRef(userID), RelationViewer, ObjectRef(objectType, id))
}

// apply writes the tuples in want that are missing and deletes the tuples in
// drop that are stored. OpenFGA rejects duplicate writes and missing deletes.
func (s *AuthorizationService) apply(ctx context.Context, want, drop []Tuple) error {
	var writes, deletes []Tuple
	for _, t := range want {
		ok, err := s.client.Exists(ctx, t)
		if err != nil {
			return err
		}
		if !ok {
			writes = append(writes, t)
		}
	}
	for _, t := range drop {
		ok, err := s.client.Exists(ctx, t)
		if err != nil {
			return err
		}
		if ok {
			deletes = append(deletes, t)
		}
	}
	return s.client.Write(ctx, writes, deletes)
}
