package group

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/freekieb7/playlog/internal/apperr"
	"github.com/freekieb7/playlog/internal/audit"
	"github.com/freekieb7/playlog/internal/auth"
	"github.com/freekieb7/playlog/internal/cache"
	"github.com/freekieb7/playlog/internal/domain"
	"github.com/freekieb7/playlog/internal/logger"
	"github.com/freekieb7/playlog/internal/telemetry"
	"github.com/freekieb7/playlog/internal/util"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Load(ctx context.Context, id uuid.UUID) (*Group, error) {
	args := m.Called(ctx, id)
	g, _ := args.Get(0).(*Group)
	return g, args.Error(1)
}

func (m *mockStore) LoadWithMembers(ctx context.Context, id uuid.UUID) (*Group, error) {
	args := m.Called(ctx, id)
	g, _ := args.Get(0).(*Group)
	return g, args.Error(1)
}

func (m *mockStore) LoadByInviteCode(ctx context.Context, code string) (*Group, error) {
	args := m.Called(ctx, code)
	g, _ := args.Get(0).(*Group)
	return g, args.Error(1)
}

func (m *mockStore) Save(ctx context.Context, g *Group) error {
	return m.Called(ctx, g).Error(0)
}

func (m *mockStore) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockStore) GetUserGroupIDs(ctx context.Context, userID string) ([]uuid.UUID, error) {
	args := m.Called(ctx, userID)
	ids, _ := args.Get(0).([]uuid.UUID)
	return ids, args.Error(1)
}

func (m *mockStore) IsUserMember(ctx context.Context, groupID uuid.UUID, userID string) (bool, error) {
	args := m.Called(ctx, groupID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) ListForUser(ctx context.Context, userID string) ([]*Group, error) {
	args := m.Called(ctx, userID)
	groups, _ := args.Get(0).([]*Group)
	return groups, args.Error(1)
}

type mockAuditor struct {
	mock.Mock
}

func (m *mockAuditor) LogEvent(ctx context.Context, params audit.LogEventParam) error {
	return m.Called(ctx, params).Error(0)
}

type mockRoles struct {
	mock.Mock
}

func (m *mockRoles) SetGroupRole(ctx context.Context, groupID uuid.UUID, userID string, role string) error {
	return m.Called(ctx, groupID, userID, role).Error(0)
}

func (m *mockRoles) RemoveGroupMember(ctx context.Context, groupID uuid.UUID, userID string) error {
	return m.Called(ctx, groupID, userID).Error(0)
}

type mockMembership struct {
	mock.Mock
}

func (m *mockMembership) Invalidate(ctx context.Context, userIDs ...string) error {
	return m.Called(ctx, userIDs).Error(0)
}

type mockLimiter struct {
	mock.Mock
}

func (m *mockLimiter) CheckInviteRedeem(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *mockLimiter) ResetInviteRedeem(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store      *mockStore
	auditor    *mockAuditor
	roles      *mockRoles
	membership *mockMembership
	limiter    *mockLimiter
	manager    *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:      new(mockStore),
		auditor:    new(mockAuditor),
		roles:      new(mockRoles),
		membership: new(mockMembership),
		limiter:    new(mockLimiter),
	}
	f.manager = NewManager(logger.Discard(), f.store, f.auditor, f.roles, f.membership, f.limiter, telemetry.NoopInstruments())
	f.manager.now = func() time.Time { return testNow }
	return f
}

func asUser(userID string) context.Context {
	return auth.WithUserID(context.Background(), userID)
}

// clubWithMember builds a group owned by "owner" with "member" joined.
func clubWithMember(t *testing.T) *Group {
	t.Helper()
	g, err := New("Catan Club", "owner", testNow, "")
	require.NoError(t, err)
	_, err = g.AddMember("member", testNow)
	require.NoError(t, err)
	g.Touch(testNow, 1)
	return g
}

func assertKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	require.Error(t, err)
	got, ok := apperr.KindOf(err)
	require.True(t, ok, "expected an apperr.Error, got %v", err)
	assert.Equal(t, kind, got)
}

func TestManager_CreateGroup(t *testing.T) {
	f := newFixture(t)
	f.store.On("Save", mock.Anything, mock.AnythingOfType("*group.Group")).Return(nil).Once()
	f.auditor.On("LogEvent", mock.Anything, mock.MatchedBy(func(p audit.LogEventParam) bool {
		return p.Type == audit.AuditLogEventTypeGroupCreate && p.ActorUserID == "owner"
	})).Return(nil).Once()
	f.roles.On("SetGroupRole", mock.Anything, mock.Anything, "owner", "owner").Return(nil).Once()
	f.membership.On("Invalidate", mock.Anything, []string{"owner"}).Return(nil).Once()

	g, err := f.manager.CreateGroup(asUser("owner"), CreateGroupParams{Name: "  Catan Club ", Description: "Weekly"})
	require.NoError(t, err)

	assert.Equal(t, "Catan Club", g.Name())
	assert.True(t, g.IsOwner("owner"))
	assert.Len(t, g.InviteCodes(), 1)
	f.store.AssertExpectations(t)
	f.auditor.AssertExpectations(t)
	f.roles.AssertExpectations(t)
	f.membership.AssertExpectations(t)
}

func TestManager_CreateGroup_Failures(t *testing.T) {
	t.Run("unauthenticated", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.manager.CreateGroup(context.Background(), CreateGroupParams{Name: "Catan Club"})
		assertKind(t, err, apperr.KindUnauthenticated)
		f.store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("invalid_name", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.manager.CreateGroup(asUser("owner"), CreateGroupParams{Name: "   "})
		assertKind(t, err, apperr.KindValidation)

		var appErr *apperr.Error
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, []domain.DomainError{{Name: domain.FieldName, Message: "name is required"}}, appErr.Details)
		f.store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("save_fails", func(t *testing.T) {
		f := newFixture(t)
		f.store.On("Save", mock.Anything, mock.Anything).Return(errors.New("connection reset"))

		_, err := f.manager.CreateGroup(asUser("owner"), CreateGroupParams{Name: "Catan Club"})
		assert.ErrorContains(t, err, "connection reset")
		f.auditor.AssertNotCalled(t, "LogEvent", mock.Anything, mock.Anything)
	})
}

func TestManager_GetGroup(t *testing.T) {
	g := clubWithMember(t)

	tests := []struct {
		name     string
		userID   string
		wantKind apperr.Kind
	}{
		{name: "owner", userID: "owner"},
		{name: "member", userID: "member"},
		{name: "outsider", userID: "stranger", wantKind: apperr.KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.store.On("LoadWithMembers", mock.Anything, g.ID()).Return(g, nil)

			got, err := f.manager.GetGroup(asUser(tt.userID), g.ID())
			if tt.wantKind != 0 {
				assertKind(t, err, tt.wantKind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, g.ID(), got.ID())
		})
	}
}

func TestManager_UpdateGroup(t *testing.T) {
	t.Run("owner_renames", func(t *testing.T) {
		f := newFixture(t)
		g := clubWithMember(t)
		f.store.On("LoadWithMembers", mock.Anything, g.ID()).Return(g, nil)
		f.store.On("Save", mock.Anything, g).Return(nil).Once()
		f.auditor.On("LogEvent", mock.Anything, mock.MatchedBy(func(p audit.LogEventParam) bool {
			return p.Type == audit.AuditLogEventTypeGroupUpdate && p.Data["name"] == "Carcassonne Club"
		})).Return(nil).Once()

		got, err := f.manager.UpdateGroup(asUser("owner"), UpdateGroupParams{GroupID: g.ID(), Name: util.Some("Carcassonne Club")})
		require.NoError(t, err)
		assert.Equal(t, "Carcassonne Club", got.Name())
		f.store.AssertExpectations(t)
		f.auditor.AssertExpectations(t)
	})

	t.Run("member_forbidden", func(t *testing.T) {
		f := newFixture(t)
		g := clubWithMember(t)
		f.store.On("LoadWithMembers", mock.Anything, g.ID()).Return(g, nil)

		_, err := f.manager.UpdateGroup(asUser("member"), UpdateGroupParams{GroupID: g.ID(), Name: util.Some("Mine now")})
		assertKind(t, err, apperr.KindForbidden)
		assert.Equal(t, "Catan Club", g.Name())
	})

	t.Run("reports_every_violation", func(t *testing.T) {
		f := newFixture(t)
		g := clubWithMember(t)
		f.store.On("LoadWithMembers", mock.Anything, g.ID()).Return(g, nil)

		long := make([]rune, MaxDescriptionLength+1)
		for i := range long {
			long[i] = 'x'
		}
		_, err := f.manager.UpdateGroup(asUser("owner"), UpdateGroupParams{
			GroupID:     g.ID(),
			Name:        util.Some(""),
			Description: util.Some(string(long)),
		})
		assertKind(t, err, apperr.KindValidation)

		var appErr *apperr.Error
		require.ErrorAs(t, err, &appErr)
		assert.Len(t, appErr.Details, 2)
		f.store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("nothing_to_change", func(t *testing.T) {
		f := newFixture(t)
		g := clubWithMember(t)
		f.store.On("LoadWithMembers", mock.Anything, g.ID()).Return(g, nil)

		_, err := f.manager.UpdateGroup(asUser("owner"), UpdateGroupParams{GroupID: g.ID()})
		require.NoError(t, err)
		f.store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})
}

func TestManager_JoinByInviteCode(t *testing.T) {
	t.Run("joins_as_member", func(t *testing.T) {
		f := newFixture(t)
		g := clubWithMember(t)
		code := g.InviteCodes()[0]

		f.limiter.On("CheckInviteRedeem", mock.Anything, "newcomer").Return(nil)
		f.limiter.On("ResetInviteRedeem", mock.Anything, "newcomer").Return(nil)
		f.store.On("LoadByInviteCode", mock.Anything, "  "+code.Code+" ").Return(g, nil)
		f.store.On("Save", mock.Anything, g).Return(nil).Once()
		f.auditor.On("LogEvent", mock.Anything, mock.MatchedBy(func(p audit.LogEventParam) bool {
			return p.Type == audit.AuditLogEventTypeGroupMemberJoin && p.Data["invite_code_id"] == code.ID
		})).Return(nil).Once()
		f.roles.On("SetGroupRole", mock.Anything, g.ID(), "newcomer", "member").Return(nil).Once()
		f.membership.On("Invalidate", mock.Anything, []string{"newcomer"}).Return(nil).Once()

		got, err := f.manager.JoinByInviteCode(asUser("newcomer"), "  "+code.Code+" ", testNow.Add(time.Hour))
		require.NoError(t, err)

		role, ok := got.Role("newcomer")
		assert.True(t, ok)
		assert.Equal(t, RoleMember, role)
		f.roles.AssertExpectations(t)
		f.membership.AssertExpectations(t)
		f.limiter.AssertExpectations(t)
	})

	t.Run("expired", func(t *testing.T) {
		f := newFixture(t)
		g := clubWithMember(t)
		code := g.InviteCodes()[0]

		f.limiter.On("CheckInviteRedeem", mock.Anything, "newcomer").Return(nil)
		f.store.On("LoadByInviteCode", mock.Anything, code.Code).Return(g, nil)

		_, err := f.manager.JoinByInviteCode(asUser("newcomer"), code.Code, code.ExpiresAt)
		assertKind(t, err, apperr.KindValidation)

		var appErr *apperr.Error
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, []domain.DomainError{{Name: domain.FieldInviteCode, Message: "invite code has expired"}}, appErr.Details)
		assert.False(t, g.IsMember("newcomer"))
		f.store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("unknown_code", func(t *testing.T) {
		f := newFixture(t)
		f.limiter.On("CheckInviteRedeem", mock.Anything, "newcomer").Return(nil)
		f.store.On("LoadByInviteCode", mock.Anything, "NOPE").Return(nil, apperr.NotFound("invite code"))

		_, err := f.manager.JoinByInviteCode(asUser("newcomer"), "NOPE", testNow)
		assertKind(t, err, apperr.KindNotFound)
	})

	t.Run("already_member", func(t *testing.T) {
		f := newFixture(t)
		g := clubWithMember(t)
		code := g.InviteCodes()[0]
		f.limiter.On("CheckInviteRedeem", mock.Anything, "member").Return(nil)
		f.store.On("LoadByInviteCode", mock.Anything, code.Code).Return(g, nil)

		_, err := f.manager.JoinByInviteCode(asUser("member"), code.Code, testNow)
		assertKind(t, err, apperr.KindValidation)
	})

	t.Run("rate_limited", func(t *testing.T) {
		f := newFixture(t)
		f.limiter.On("CheckInviteRedeem", mock.Anything, "newcomer").Return(cache.ErrTooManyAttempts)

		_, err := f.manager.JoinByInviteCode(asUser("newcomer"), "ABCD", testNow)
		assertKind(t, err, apperr.KindRateLimited)
		f.store.AssertNotCalled(t, "LoadByInviteCode", mock.Anything, mock.Anything)
	})
}

func TestManager_RemoveMember(t *testing.T) {
	tests := []struct {
		name     string
		actor    string
		target   string
		wantKind apperr.Kind
	}{
		{name: "owner_removes_member", actor: "owner", target: "member"},
		{name: "member_cannot_remove", actor: "member", target: "owner", wantKind: apperr.KindForbidden},
		{name: "owner_cannot_remove_self", actor: "owner", target: "owner", wantKind: apperr.KindValidation},
		{name: "unknown_target", actor: "owner", target: "stranger", wantKind: apperr.KindValidation},
		{name: "outsider", actor: "stranger", target: "member", wantKind: apperr.KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			g := clubWithMember(t)
			f.store.On("LoadWithMembers", mock.Anything, g.ID()).Return(g, nil)
			f.store.On("Save", mock.Anything, g).Return(nil)
			f.auditor.On("LogEvent", mock.Anything, mock.Anything).Return(nil)
			f.roles.On("RemoveGroupMember", mock.Anything, g.ID(), tt.target).Return(nil)
			f.membership.On("Invalidate", mock.Anything, []string{tt.target}).Return(nil)

			err := f.manager.RemoveMember(asUser(tt.actor), g.ID(), tt.target)
			if tt.wantKind != 0 {
				assertKind(t, err, tt.wantKind)
				f.store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
				return
			}
			require.NoError(t, err)
			assert.False(t, g.IsMember(tt.target))
			f.roles.AssertCalled(t, "RemoveGroupMember", mock.Anything, g.ID(), tt.target)
			f.membership.AssertCalled(t, "Invalidate", mock.Anything, []string{tt.target})
		})
	}
}

func TestManager_LeaveGroup(t *testing.T) {
	t.Run("member_leaves", func(t *testing.T) {
		f := newFixture(t)
		g := clubWithMember(t)
		f.store.On("LoadWithMembers", mock.Anything, g.ID()).Return(g, nil)
		f.store.On("Save", mock.Anything, g).Return(nil).Once()
		f.auditor.On("LogEvent", mock.Anything, mock.MatchedBy(func(p audit.LogEventParam) bool {
			return p.Type == audit.AuditLogEventTypeGroupMemberLeave
		})).Return(nil).Once()
		f.roles.On("RemoveGroupMember", mock.Anything, g.ID(), "member").Return(nil).Once()
		f.membership.On("Invalidate", mock.Anything, []string{"member"}).Return(nil).Once()

		require.NoError(t, f.manager.LeaveGroup(asUser("member"), g.ID()))
		assert.False(t, g.IsMember("member"))
		f.auditor.AssertExpectations(t)
	})

	t.Run("owner_must_transfer_first", func(t *testing.T) {
		f := newFixture(t)
		g := clubWithMember(t)
		f.store.On("LoadWithMembers", mock.Anything, g.ID()).Return(g, nil)

		err := f.manager.LeaveGroup(asUser("owner"), g.ID())
		assertKind(t, err, apperr.KindValidation)
		assert.True(t, g.IsOwner("owner"))
	})
}

func TestManager_TransferOwnership(t *testing.T) {
	t.Run("owner_hands_over", func(t *testing.T) {
		f := newFixture(t)
		g := clubWithMember(t)
		f.store.On("LoadWithMembers", mock.Anything, g.ID()).Return(g, nil)
		f.store.On("Save", mock.Anything, g).Return(nil).Once()
		f.auditor.On("LogEvent", mock.Anything, mock.Anything).Return(nil).Once()
		f.roles.On("SetGroupRole", mock.Anything, g.ID(), "member", "owner").Return(nil).Once()
		f.roles.On("SetGroupRole", mock.Anything, g.ID(), "owner", "member").Return(nil).Once()

		require.NoError(t, f.manager.TransferOwnership(asUser("owner"), g.ID(), "member"))
		assert.True(t, g.IsOwner("member"))
		assert.False(t, g.IsOwner("owner"))
		f.roles.AssertExpectations(t)
	})

	t.Run("member_forbidden", func(t *testing.T) {
		f := newFixture(t)
		g := clubWithMember(t)
		f.store.On("LoadWithMembers", mock.Anything, g.ID()).Return(g, nil)

		err := f.manager.TransferOwnership(asUser("member"), g.ID(), "member")
		assertKind(t, err, apperr.KindForbidden)
	})

	t.Run("to_self_is_a_no_op", func(t *testing.T) {
		f := newFixture(t)
		g := clubWithMember(t)
		f.store.On("LoadWithMembers", mock.Anything, g.ID()).Return(g, nil)

		require.NoError(t, f.manager.TransferOwnership(asUser("owner"), g.ID(), "owner"))
		f.store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
		f.auditor.AssertNotCalled(t, "LogEvent", mock.Anything, mock.Anything)
	})

	t.Run("mirror_failure_is_not_fatal", func(t *testing.T) {
		f := newFixture(t)
		g := clubWithMember(t)
		f.store.On("LoadWithMembers", mock.Anything, g.ID()).Return(g, nil)
		f.store.On("Save", mock.Anything, g).Return(nil)
		f.auditor.On("LogEvent", mock.Anything, mock.Anything).Return(nil)
		f.roles.On("SetGroupRole", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("openfga unavailable"))

		assert.NoError(t, f.manager.TransferOwnership(asUser("owner"), g.ID(), "member"))
	})

	t.Run("concurrent_change", func(t *testing.T) {
		f := newFixture(t)
		g := clubWithMember(t)
		f.store.On("LoadWithMembers", mock.Anything, g.ID()).Return(g, nil)
		f.store.On("Save", mock.Anything, g).Return(apperr.Conflict("group was modified concurrently", nil))

		err := f.manager.TransferOwnership(asUser("owner"), g.ID(), "member")
		assertKind(t, err, apperr.KindConflict)
		f.roles.AssertNotCalled(t, "SetGroupRole", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestManager_InviteCodes(t *testing.T) {
	t.Run("owner_creates", func(t *testing.T) {
		f := newFixture(t)
		g := clubWithMember(t)
		f.store.On("LoadWithMembers", mock.Anything, g.ID()).Return(g, nil)
		f.store.On("Save", mock.Anything, g).Return(nil).Once()
		f.auditor.On("LogEvent", mock.Anything, mock.MatchedBy(func(p audit.LogEventParam) bool {
			return p.Type == audit.AuditLogEventTypeGroupInviteCreate
		})).Return(nil).Once()

		code, err := f.manager.CreateInviteCode(asUser("owner"), g.ID())
		require.NoError(t, err)
		assert.Equal(t, testNow.Add(InviteCodeLifetime), code.ExpiresAt)
		assert.Len(t, g.InviteCodes(), 2)
	})

	t.Run("member_cannot_create", func(t *testing.T) {
		f := newFixture(t)
		g := clubWithMember(t)
		f.store.On("LoadWithMembers", mock.Anything, g.ID()).Return(g, nil)

		_, err := f.manager.CreateInviteCode(asUser("member"), g.ID())
		assertKind(t, err, apperr.KindForbidden)
	})

	t.Run("owner_revokes", func(t *testing.T) {
		f := newFixture(t)
		g := clubWithMember(t)
		codeID := g.InviteCodes()[0].ID
		f.store.On("LoadWithMembers", mock.Anything, g.ID()).Return(g, nil)
		f.store.On("Save", mock.Anything, g).Return(nil).Once()
		f.auditor.On("LogEvent", mock.Anything, mock.MatchedBy(func(p audit.LogEventParam) bool {
			return p.Type == audit.AuditLogEventTypeGroupInviteRevoke && p.Data["invite_code_id"] == codeID
		})).Return(nil).Once()

		require.NoError(t, f.manager.RevokeInviteCode(asUser("owner"), g.ID(), codeID))
		assert.Empty(t, g.InviteCodes())
		f.auditor.AssertExpectations(t)
	})

	t.Run("revoke_unknown_changes_nothing", func(t *testing.T) {
		f := newFixture(t)
		g := clubWithMember(t)
		f.store.On("LoadWithMembers", mock.Anything, g.ID()).Return(g, nil)

		require.NoError(t, f.manager.RevokeInviteCode(asUser("owner"), g.ID(), uuid.New()))
		f.store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("list_is_owner_only", func(t *testing.T) {
		f := newFixture(t)
		g := clubWithMember(t)
		f.store.On("LoadWithMembers", mock.Anything, g.ID()).Return(g, nil)

		codes, err := f.manager.ListInviteCodes(asUser("owner"), g.ID())
		require.NoError(t, err)
		assert.Len(t, codes, 1)

		_, err = f.manager.ListInviteCodes(asUser("member"), g.ID())
		assertKind(t, err, apperr.KindForbidden)
	})
}

func TestManager_DeleteGroup(t *testing.T) {
	t.Run("owner_deletes", func(t *testing.T) {
		f := newFixture(t)
		g := clubWithMember(t)
		f.store.On("LoadWithMembers", mock.Anything, g.ID()).Return(g, nil)
		f.store.On("Delete", mock.Anything, g.ID()).Return(nil).Once()
		f.auditor.On("LogEvent", mock.Anything, mock.Anything).Return(nil).Once()
		f.roles.On("RemoveGroupMember", mock.Anything, g.ID(), "owner").Return(nil).Once()
		f.roles.On("RemoveGroupMember", mock.Anything, g.ID(), "member").Return(nil).Once()
		f.membership.On("Invalidate", mock.Anything, []string{"owner", "member"}).Return(nil).Once()

		require.NoError(t, f.manager.DeleteGroup(asUser("owner"), g.ID()))
		f.store.AssertExpectations(t)
		f.roles.AssertExpectations(t)
		f.membership.AssertExpectations(t)
	})

	t.Run("member_forbidden", func(t *testing.T) {
		f := newFixture(t)
		g := clubWithMember(t)
		f.store.On("LoadWithMembers", mock.Anything, g.ID()).Return(g, nil)

		err := f.manager.DeleteGroup(asUser("member"), g.ID())
		assertKind(t, err, apperr.KindForbidden)
		f.store.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})
}

func TestManager_ListMyGroups(t *testing.T) {
	f := newFixture(t)
	g := clubWithMember(t)
	f.store.On("ListForUser", mock.Anything, "member").Return([]*Group{g}, nil)

	groups, err := f.manager.ListMyGroups(asUser("member"))
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, g.ID(), groups[0].ID())
}
