package playsession

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/freekieb7/playlog/internal/apperr"
	"github.com/freekieb7/playlog/internal/audit"
	"github.com/freekieb7/playlog/internal/auth"
	"github.com/freekieb7/playlog/internal/database"
	"github.com/freekieb7/playlog/internal/domain"
	"github.com/freekieb7/playlog/internal/logger"
	"github.com/freekieb7/playlog/internal/openfga"
	"github.com/freekieb7/playlog/internal/share"
	"github.com/freekieb7/playlog/internal/telemetry"
	"github.com/freekieb7/playlog/internal/util"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) CreatePlaySession(ctx context.Context, s database.PlaySession) error {
	return m.Called(ctx, s).Error(0)
}

func (m *mockRepo) GetPlaySessionByID(ctx context.Context, id uuid.UUID) (database.PlaySession, error) {
	args := m.Called(ctx, id)
	row, _ := args.Get(0).(database.PlaySession)
	return row, args.Error(1)
}

func (m *mockRepo) ListPlaySessions(ctx context.Context, params database.ListPlaySessionsParams) ([]database.PlaySession, error) {
	args := m.Called(ctx, params)
	rows, _ := args.Get(0).([]database.PlaySession)
	return rows, args.Error(1)
}

func (m *mockRepo) UpdatePlaySessionSharing(ctx context.Context, id uuid.UUID, groupID util.Optional[uuid.UUID]) error {
	return m.Called(ctx, id, groupID).Error(0)
}

func (m *mockRepo) DeletePlaySessionByID(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockRepo) GetLibraryEntryByID(ctx context.Context, id uuid.UUID) (database.LibraryEntry, error) {
	args := m.Called(ctx, id)
	row, _ := args.Get(0).(database.LibraryEntry)
	return row, args.Error(1)
}

type mockGroups struct {
	mock.Mock
}

func (m *mockGroups) GetUserGroupIDs(ctx context.Context, userID string) ([]uuid.UUID, error) {
	args := m.Called(ctx, userID)
	ids, _ := args.Get(0).([]uuid.UUID)
	return ids, args.Error(1)
}

func (m *mockGroups) IsUserMember(ctx context.Context, groupID uuid.UUID, userID string) (bool, error) {
	args := m.Called(ctx, groupID, userID)
	return args.Bool(0), args.Error(1)
}

type mockAuditor struct {
	mock.Mock
}

func (m *mockAuditor) LogEvent(ctx context.Context, params audit.LogEventParam) error {
	return m.Called(ctx, params).Error(0)
}

type mockMirror struct {
	mock.Mock
}

func (m *mockMirror) SetResourceOwner(ctx context.Context, objectType string, id uuid.UUID, userID string) error {
	return m.Called(ctx, objectType, id, userID).Error(0)
}

func (m *mockMirror) ShareResource(ctx context.Context, objectType string, id, groupID uuid.UUID) error {
	return m.Called(ctx, objectType, id, groupID).Error(0)
}

func (m *mockMirror) UnshareResource(ctx context.Context, objectType string, id, groupID uuid.UUID) error {
	return m.Called(ctx, objectType, id, groupID).Error(0)
}

var (
	testNow = time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)
	groupX  = uuid.MustParse("11111111-1111-4111-8111-111111111111")
	groupY  = uuid.MustParse("22222222-2222-4222-8222-222222222222")
)

type fixture struct {
	repo    *mockRepo
	groups  *mockGroups
	auditor *mockAuditor
	mirror  *mockMirror
	manager *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:    new(mockRepo),
		groups:  new(mockGroups),
		auditor: new(mockAuditor),
		mirror:  new(mockMirror),
	}
	f.manager = NewManager(logger.Discard(), f.repo, f.groups, share.NewAuthorizer(f.groups), f.auditor, f.mirror, telemetry.NoopInstruments())
	f.manager.now = func() time.Time { return testNow }
	return f
}

func asUser(userID string) context.Context {
	return auth.WithUserID(context.Background(), userID)
}

func assertKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	require.Error(t, err)
	got, ok := apperr.KindOf(err)
	require.True(t, ok, "expected an apperr.Error, got %v", err)
	assert.Equal(t, kind, got)
}

func validDetails() SessionDetails {
	return SessionDetails{
		GameTitle:       "Carcassonne",
		PlayedAt:        testNow.Add(-2 * time.Hour),
		DurationMinutes: 45,
		Players: []Player{
			{Name: "Anna", Score: 120, Winner: true},
			{Name: "Bram", Score: 98},
		},
	}
}

func sessionRow(t *testing.T, owner string, groupID util.Optional[uuid.UUID]) database.PlaySession {
	t.Helper()
	players, err := json.Marshal([]Player{{Name: "Anna", Score: 10, Winner: true}})
	require.NoError(t, err)
	return database.PlaySession{
		ID:              uuid.New(),
		OwnerUserID:     owner,
		GroupID:         groupID,
		GameTitle:       "Carcassonne",
		PlayedAt:        testNow.Add(-time.Hour),
		DurationMinutes: 30,
		Players:         players,
		CreatedAt:       testNow,
		UpdatedAt:       testNow,
	}
}

func TestNewSession_Validation(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(d *SessionDetails)
		wantFields []string
	}{
		{name: "valid", mutate: func(d *SessionDetails) {}},
		{name: "zero_duration", mutate: func(d *SessionDetails) { d.DurationMinutes = 0 }},
		{name: "missing_title", mutate: func(d *SessionDetails) { d.GameTitle = " " }, wantFields: []string{FieldGameTitle}},
		{name: "title_too_long", mutate: func(d *SessionDetails) { d.GameTitle = strings.Repeat("a", MaxGameTitleLength+1) }, wantFields: []string{FieldGameTitle}},
		{name: "missing_played_at", mutate: func(d *SessionDetails) { d.PlayedAt = time.Time{} }, wantFields: []string{FieldPlayedAt}},
		{name: "played_in_future", mutate: func(d *SessionDetails) { d.PlayedAt = testNow.Add(time.Minute) }, wantFields: []string{FieldPlayedAt}},
		{name: "negative_duration", mutate: func(d *SessionDetails) { d.DurationMinutes = -1 }, wantFields: []string{FieldDuration}},
		{name: "duration_too_long", mutate: func(d *SessionDetails) { d.DurationMinutes = MaxDurationMinutes + 1 }, wantFields: []string{FieldDuration}},
		{name: "no_players", mutate: func(d *SessionDetails) { d.Players = nil }, wantFields: []string{FieldPlayers}},
		{name: "blank_player", mutate: func(d *SessionDetails) { d.Players = append(d.Players, Player{Name: "  "}) }, wantFields: []string{FieldPlayers}},
		{name: "duplicate_player", mutate: func(d *SessionDetails) { d.Players = append(d.Players, Player{Name: "anna "}) }, wantFields: []string{FieldPlayers}},
		{
			name: "everything_wrong",
			mutate: func(d *SessionDetails) {
				*d = SessionDetails{DurationMinutes: -5, Notes: strings.Repeat("n", MaxNotesLength+1)}
			},
			wantFields: []string{FieldGameTitle, FieldPlayedAt, FieldDuration, FieldPlayers, FieldNotes},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			details := validDetails()
			tt.mutate(&details)

			s, err := NewSession("user-A", details, testNow)
			if len(tt.wantFields) == 0 {
				require.NoError(t, err)
				assert.Equal(t, "user-A", s.OwnerUserID())
				_, shared := s.SharedGroupID()
				assert.False(t, shared)
				return
			}

			list, ok := domain.AsErrors(err)
			require.True(t, ok)
			var fields []string
			for _, de := range list {
				fields = append(fields, de.Name)
			}
			assert.Equal(t, tt.wantFields, fields)
		})
	}
}

func TestSession_Winners(t *testing.T) {
	s, err := NewSession("user-A", SessionDetails{
		GameTitle: "Codenames",
		PlayedAt:  testNow,
		Players: []Player{
			{Name: "Anna", Winner: true},
			{Name: "Bram"},
			{Name: " Cas ", Winner: true},
		},
	}, testNow)
	require.NoError(t, err)

	assert.Equal(t, []string{"Anna", "Cas"}, s.Winners())
}

func TestManager_LogSession(t *testing.T) {
	t.Run("stores_private_session", func(t *testing.T) {
		f := newFixture(t)
		f.repo.On("CreatePlaySession", mock.Anything, mock.MatchedBy(func(row database.PlaySession) bool {
			var players []Player
			_ = json.Unmarshal(row.Players, &players)
			return row.OwnerUserID == "user-A" && !row.GroupID.IsSet && len(players) == 2 && players[0].Winner
		})).Return(nil)
		f.mirror.On("SetResourceOwner", mock.Anything, openfga.TypePlaySession, mock.Anything, "user-A").Return(nil)

		s, err := f.manager.LogSession(asUser("user-A"), validDetails())
		require.NoError(t, err)
		assert.Equal(t, "Carcassonne", s.GameTitle)
		f.repo.AssertExpectations(t)
		f.mirror.AssertExpectations(t)
	})

	t.Run("takes_title_from_visible_entry", func(t *testing.T) {
		f := newFixture(t)
		entryID := uuid.New()
		f.repo.On("GetLibraryEntryByID", mock.Anything, entryID).Return(database.LibraryEntry{
			ID: entryID, OwnerUserID: "user-B", GroupID: util.Some(groupX), Title: "Azul",
		}, nil)
		f.groups.On("GetUserGroupIDs", mock.Anything, "user-A").Return([]uuid.UUID{groupX}, nil)
		f.repo.On("CreatePlaySession", mock.Anything, mock.MatchedBy(func(row database.PlaySession) bool {
			return row.GameTitle == "Azul" && row.EntryID == util.Some(entryID)
		})).Return(nil)
		f.mirror.On("SetResourceOwner", mock.Anything, openfga.TypePlaySession, mock.Anything, "user-A").Return(nil)

		details := validDetails()
		details.GameTitle = ""
		details.EntryID = util.Some(entryID)

		s, err := f.manager.LogSession(asUser("user-A"), details)
		require.NoError(t, err)
		assert.Equal(t, "Azul", s.GameTitle)
	})

	t.Run("hidden_entry", func(t *testing.T) {
		f := newFixture(t)
		entryID := uuid.New()
		f.repo.On("GetLibraryEntryByID", mock.Anything, entryID).Return(database.LibraryEntry{
			ID: entryID, OwnerUserID: "user-B", GroupID: util.Some(groupY), Title: "Azul",
		}, nil)
		f.groups.On("GetUserGroupIDs", mock.Anything, "user-A").Return([]uuid.UUID{groupX}, nil)

		details := validDetails()
		details.EntryID = util.Some(entryID)

		_, err := f.manager.LogSession(asUser("user-A"), details)
		assertKind(t, err, apperr.KindNotFound)
		f.repo.AssertNotCalled(t, "CreatePlaySession", mock.Anything, mock.Anything)
	})

	t.Run("invalid", func(t *testing.T) {
		f := newFixture(t)
		details := validDetails()
		details.Players = nil

		_, err := f.manager.LogSession(asUser("user-A"), details)
		assertKind(t, err, apperr.KindValidation)
		f.repo.AssertNotCalled(t, "CreatePlaySession", mock.Anything, mock.Anything)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.manager.LogSession(context.Background(), validDetails())
		assertKind(t, err, apperr.KindUnauthenticated)
	})
}

func TestManager_GetSession_Visibility(t *testing.T) {
	tests := []struct {
		name    string
		owner   string
		groupID util.Optional[uuid.UUID]
		groups  []uuid.UUID
		visible bool
	}{
		{name: "own_private", owner: "user-A", groupID: util.None[uuid.UUID](), visible: true},
		{name: "other_private", owner: "user-B", groupID: util.None[uuid.UUID](), groups: []uuid.UUID{groupX}},
		{name: "shared_with_my_group", owner: "user-B", groupID: util.Some(groupX), groups: []uuid.UUID{groupX}, visible: true},
		{name: "shared_elsewhere", owner: "user-B", groupID: util.Some(groupY), groups: []uuid.UUID{groupX}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			row := sessionRow(t, tt.owner, tt.groupID)
			f.repo.On("GetPlaySessionByID", mock.Anything, row.ID).Return(row, nil)
			f.groups.On("GetUserGroupIDs", mock.Anything, "user-A").Return(tt.groups, nil)

			s, err := f.manager.GetSession(asUser("user-A"), row.ID)
			if !tt.visible {
				assertKind(t, err, apperr.KindNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{"Anna"}, s.Winners())
		})
	}
}

func TestManager_GetSession_Missing(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	f.repo.On("GetPlaySessionByID", mock.Anything, id).Return(nil, database.ErrPlaySessionNotFound)

	_, err := f.manager.GetSession(asUser("user-A"), id)
	assertKind(t, err, apperr.KindNotFound)
}

func TestManager_ListSessions(t *testing.T) {
	tests := []struct {
		name      string
		params    ListSessionsParams
		wantOrder database.OrderBy
		wantLimit int
	}{
		{name: "defaults", params: ListSessionsParams{}, wantOrder: database.OrderByDESC, wantLimit: DefaultPageSize},
		{name: "oldest_first", params: ListSessionsParams{OldestFirst: true, Limit: 10}, wantOrder: database.OrderByASC, wantLimit: 10},
		{name: "capped", params: ListSessionsParams{Limit: MaxPageSize + 1}, wantOrder: database.OrderByDESC, wantLimit: MaxPageSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.groups.On("GetUserGroupIDs", mock.Anything, "user-A").Return([]uuid.UUID{groupX}, nil)
			f.repo.On("ListPlaySessions", mock.Anything, mock.MatchedBy(func(p database.ListPlaySessionsParams) bool {
				return p.Order == tt.wantOrder && p.Limit == tt.wantLimit && p.Visibility.UserID() == "user-A"
			})).Return([]database.PlaySession{sessionRow(t, "user-A", util.None[uuid.UUID]())}, nil)

			sessions, err := f.manager.ListSessions(asUser("user-A"), tt.params)
			require.NoError(t, err)
			assert.Len(t, sessions, 1)
			f.repo.AssertExpectations(t)
		})
	}
}

func TestManager_ListSessions_CorruptPlayers(t *testing.T) {
	f := newFixture(t)
	row := sessionRow(t, "user-A", util.None[uuid.UUID]())
	row.Players = json.RawMessage(`{not json`)
	f.groups.On("GetUserGroupIDs", mock.Anything, "user-A").Return(nil, nil)
	f.repo.On("ListPlaySessions", mock.Anything, mock.Anything).Return([]database.PlaySession{row}, nil)

	_, err := f.manager.ListSessions(asUser("user-A"), ListSessionsParams{})
	require.Error(t, err)
}

func TestManager_DeleteSession(t *testing.T) {
	t.Run("owner_only", func(t *testing.T) {
		f := newFixture(t)
		row := sessionRow(t, "user-B", util.Some(groupX))
		f.repo.On("GetPlaySessionByID", mock.Anything, row.ID).Return(row, nil)
		f.groups.On("GetUserGroupIDs", mock.Anything, "user-A").Return([]uuid.UUID{groupX}, nil)

		err := f.manager.DeleteSession(asUser("user-A"), row.ID)
		assertKind(t, err, apperr.KindForbidden)
		f.repo.AssertNotCalled(t, "DeletePlaySessionByID", mock.Anything, mock.Anything)
	})

	t.Run("revokes_share", func(t *testing.T) {
		f := newFixture(t)
		row := sessionRow(t, "user-A", util.Some(groupX))
		f.repo.On("GetPlaySessionByID", mock.Anything, row.ID).Return(row, nil)
		f.groups.On("GetUserGroupIDs", mock.Anything, "user-A").Return([]uuid.UUID{groupX}, nil)
		f.repo.On("DeletePlaySessionByID", mock.Anything, row.ID).Return(nil)
		f.mirror.On("UnshareResource", mock.Anything, openfga.TypePlaySession, row.ID, groupX).Return(nil)

		require.NoError(t, f.manager.DeleteSession(asUser("user-A"), row.ID))
		f.mirror.AssertExpectations(t)
	})
}

func TestManager_ShareSession(t *testing.T) {
	t.Run("shares_with_member_group", func(t *testing.T) {
		f := newFixture(t)
		row := sessionRow(t, "user-A", util.None[uuid.UUID]())
		f.repo.On("GetPlaySessionByID", mock.Anything, row.ID).Return(row, nil)
		f.groups.On("GetUserGroupIDs", mock.Anything, "user-A").Return([]uuid.UUID{groupX}, nil)
		f.groups.On("IsUserMember", mock.Anything, groupX, "user-A").Return(true, nil)
		f.repo.On("UpdatePlaySessionSharing", mock.Anything, row.ID, util.Some(groupX)).Return(nil)
		f.auditor.On("LogEvent", mock.Anything, mock.MatchedBy(func(p audit.LogEventParam) bool {
			return p.Type == audit.AuditLogEventTypeResourceShare && p.SubjectID == row.ID
		})).Return(nil)
		f.mirror.On("ShareResource", mock.Anything, openfga.TypePlaySession, row.ID, groupX).Return(nil)

		s, err := f.manager.ShareSession(asUser("user-A"), row.ID, groupX)
		require.NoError(t, err)
		groupID, shared := s.SharedGroupID()
		assert.True(t, shared)
		assert.Equal(t, groupX, groupID)
		f.repo.AssertExpectations(t)
		f.auditor.AssertExpectations(t)
		f.mirror.AssertExpectations(t)
	})

	t.Run("non_member_group", func(t *testing.T) {
		f := newFixture(t)
		row := sessionRow(t, "user-A", util.None[uuid.UUID]())
		f.repo.On("GetPlaySessionByID", mock.Anything, row.ID).Return(row, nil)
		f.groups.On("GetUserGroupIDs", mock.Anything, "user-A").Return([]uuid.UUID{groupX}, nil)
		f.groups.On("IsUserMember", mock.Anything, groupY, "user-A").Return(false, nil)

		_, err := f.manager.ShareSession(asUser("user-A"), row.ID, groupY)
		assertKind(t, err, apperr.KindForbidden)
		f.repo.AssertNotCalled(t, "UpdatePlaySessionSharing", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("not_owner", func(t *testing.T) {
		f := newFixture(t)
		row := sessionRow(t, "user-B", util.Some(groupX))
		f.repo.On("GetPlaySessionByID", mock.Anything, row.ID).Return(row, nil)
		f.groups.On("GetUserGroupIDs", mock.Anything, "user-A").Return([]uuid.UUID{groupX}, nil)

		_, err := f.manager.ShareSession(asUser("user-A"), row.ID, groupX)
		assertKind(t, err, apperr.KindForbidden)
	})

	t.Run("same_group_is_noop", func(t *testing.T) {
		f := newFixture(t)
		row := sessionRow(t, "user-A", util.Some(groupX))
		f.repo.On("GetPlaySessionByID", mock.Anything, row.ID).Return(row, nil)
		f.groups.On("GetUserGroupIDs", mock.Anything, "user-A").Return([]uuid.UUID{groupX}, nil)
		f.groups.On("IsUserMember", mock.Anything, groupX, "user-A").Return(true, nil)

		_, err := f.manager.ShareSession(asUser("user-A"), row.ID, groupX)
		require.NoError(t, err)
		f.repo.AssertNotCalled(t, "UpdatePlaySessionSharing", mock.Anything, mock.Anything, mock.Anything)
		f.auditor.AssertNotCalled(t, "LogEvent", mock.Anything, mock.Anything)
	})
}

func TestManager_UnshareSession(t *testing.T) {
	t.Run("makes_private", func(t *testing.T) {
		f := newFixture(t)
		row := sessionRow(t, "user-A", util.Some(groupX))
		f.repo.On("GetPlaySessionByID", mock.Anything, row.ID).Return(row, nil)
		f.groups.On("GetUserGroupIDs", mock.Anything, "user-A").Return([]uuid.UUID{groupX}, nil)
		f.repo.On("UpdatePlaySessionSharing", mock.Anything, row.ID, util.None[uuid.UUID]()).Return(nil)
		f.auditor.On("LogEvent", mock.Anything, mock.MatchedBy(func(p audit.LogEventParam) bool {
			return p.Type == audit.AuditLogEventTypeResourceUnshare && p.Data["group_id"] == groupX
		})).Return(nil)
		f.mirror.On("UnshareResource", mock.Anything, openfga.TypePlaySession, row.ID, groupX).Return(nil)

		s, err := f.manager.UnshareSession(asUser("user-A"), row.ID)
		require.NoError(t, err)
		_, shared := s.SharedGroupID()
		assert.False(t, shared)
		f.mirror.AssertExpectations(t)
	})

	t.Run("already_private", func(t *testing.T) {
		f := newFixture(t)
		row := sessionRow(t, "user-A", util.None[uuid.UUID]())
		f.repo.On("GetPlaySessionByID", mock.Anything, row.ID).Return(row, nil)
		f.groups.On("GetUserGroupIDs", mock.Anything, "user-A").Return(nil, nil)

		_, err := f.manager.UnshareSession(asUser("user-A"), row.ID)
		require.NoError(t, err)
		f.repo.AssertNotCalled(t, "UpdatePlaySessionSharing", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("mirror_failure_is_not_fatal", func(t *testing.T) {
		f := newFixture(t)
		row := sessionRow(t, "user-A", util.Some(groupX))
		f.repo.On("GetPlaySessionByID", mock.Anything, row.ID).Return(row, nil)
		f.groups.On("GetUserGroupIDs", mock.Anything, "user-A").Return([]uuid.UUID{groupX}, nil)
		f.repo.On("UpdatePlaySessionSharing", mock.Anything, row.ID, util.None[uuid.UUID]()).Return(nil)
		f.auditor.On("LogEvent", mock.Anything, mock.Anything).Return(nil)
		f.mirror.On("UnshareResource", mock.Anything, openfga.TypePlaySession, row.ID, groupX).Return(assert.AnError)

		_, err := f.manager.UnshareSession(asUser("user-A"), row.ID)
		require.NoError(t, err)
	})
}
