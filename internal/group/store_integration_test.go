package group

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/freekieb7/playlog/internal/apperr"
	"github.com/freekieb7/playlog/internal/config"
	"github.com/freekieb7/playlog/internal/database"
	"github.com/freekieb7/playlog/internal/database/migrations"
	"github.com/freekieb7/playlog/internal/share"
	"github.com/freekieb7/playlog/internal/util"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestDatabase connects to PLAYLOG_TEST_DATABASE_URL and applies the
// migrations. Tests using it are skipped when the variable is unset.
func openTestDatabase(t *testing.T) *database.Database {
	t.Helper()
	dsn := os.Getenv("PLAYLOG_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("PLAYLOG_TEST_DATABASE_URL is not set")
	}

	require.NoError(t, migrations.Up(dsn))

	db := database.NewDatabase()
	require.NoError(t, db.Connect(context.Background(), config.DatabaseConfig{URL: dsn}))
	t.Cleanup(db.Close)
	return &db
}

func TestDBStore_Integration(t *testing.T) {
	db := openTestDatabase(t)
	store := NewDBStore(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	owner := "owner-" + uuid.NewString()
	member := "member-" + uuid.NewString()

	g, err := New("Integration club", owner, now, "")
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, g))
	assert.Equal(t, int64(1), g.Version())
	t.Cleanup(func() { _ = store.Delete(context.Background(), g.ID()) })

	t.Run("round_trip", func(t *testing.T) {
		loaded, err := store.LoadWithMembers(ctx, g.ID())
		require.NoError(t, err)
		assert.Equal(t, g.Name(), loaded.Name())
		assert.Equal(t, owner, loaded.Owner().UserID)
		require.Len(t, loaded.InviteCodes(), 1)

		byCode, err := store.LoadByInviteCode(ctx, " "+loaded.InviteCodes()[0].Code+" ")
		require.NoError(t, err)
		assert.Equal(t, g.ID(), byCode.ID())
	})

	t.Run("membership", func(t *testing.T) {
		loaded, err := store.Load(ctx, g.ID())
		require.NoError(t, err)
		_, err = loaded.AddMember(member, now)
		require.NoError(t, err)
		require.NoError(t, store.Save(ctx, loaded))

		ids, err := store.GetUserGroupIDs(ctx, member)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{g.ID()}, ids)

		ok, err := store.IsUserMember(ctx, g.ID(), member)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("stale_save_conflicts", func(t *testing.T) {
		first, err := store.Load(ctx, g.ID())
		require.NoError(t, err)
		second, err := store.Load(ctx, g.ID())
		require.NoError(t, err)

		require.NoError(t, first.SetName("Renamed club"))
		require.NoError(t, store.Save(ctx, first))

		require.NoError(t, second.SetName("Other name"))
		err = store.Save(ctx, second)
		assert.True(t, apperr.Is(err, apperr.KindConflict), "got %v", err)
	})

	t.Run("visibility_clause", func(t *testing.T) {
		entry := database.LibraryEntry{
			ID:          uuid.New(),
			OwnerUserID: owner,
			GroupID:     util.Some(g.ID()),
			Title:       "Azul",
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		require.NoError(t, db.CreateLibraryEntry(ctx, entry))
		t.Cleanup(func() { _ = db.DeleteLibraryEntryByID(context.Background(), entry.ID) })

		groups, err := store.GetUserGroupIDs(ctx, member)
		require.NoError(t, err)
		visible, err := db.ListLibraryEntries(ctx, database.ListLibraryEntriesParams{
			Visibility: share.VisibleTo(member, share.NewGroupSet(groups...)),
		})
		require.NoError(t, err)
		require.Len(t, visible, 1)
		assert.Equal(t, entry.ID, visible[0].ID)

		hidden, err := db.ListLibraryEntries(ctx, database.ListLibraryEntriesParams{
			Visibility: share.VisibleTo("stranger-"+uuid.NewString(), nil),
		})
		require.NoError(t, err)
		for _, e := range hidden {
			assert.NotEqual(t, entry.ID, e.ID)
		}
	})

	t.Run("list_for_user_loads_every_group", func(t *testing.T) {
		second, err := New("Second club", member, now, "")
		require.NoError(t, err)
		require.NoError(t, store.Save(ctx, second))
		t.Cleanup(func() { _ = store.Delete(context.Background(), second.ID()) })

		groups, err := store.ListForUser(ctx, member)
		require.NoError(t, err)
		require.Len(t, groups, 2)

		byID := map[uuid.UUID]*Group{}
		for _, listed := range groups {
			byID[listed.ID()] = listed
		}
		require.Contains(t, byID, g.ID())
		require.Contains(t, byID, second.ID())
		assert.Len(t, byID[g.ID()].Members(), 2)
		assert.True(t, byID[g.ID()].IsOwner(owner))
		assert.NotEmpty(t, byID[g.ID()].InviteCodes())
		assert.Len(t, byID[second.ID()].Members(), 1)
		assert.True(t, byID[second.ID()].IsOwner(member))
		require.Len(t, byID[second.ID()].InviteCodes(), 1)
		assert.Equal(t, second.InviteCodes()[0].Code, byID[second.ID()].InviteCodes()[0].Code)

		none, err := store.ListForUser(ctx, "stranger-"+uuid.NewString())
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("search_matches_wildcards_literally", func(t *testing.T) {
		searcher := "searcher-" + uuid.NewString()
		for _, title := range []string{"100% Orange Juice", "1000 Blank White Cards", "7_Wonders", "7 Wonders Duel"} {
			entry := database.LibraryEntry{
				ID:          uuid.New(),
				OwnerUserID: searcher,
				Title:       title,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			require.NoError(t, db.CreateLibraryEntry(ctx, entry))
			t.Cleanup(func() { _ = db.DeleteLibraryEntryByID(context.Background(), entry.ID) })
		}

		tests := []struct {
			search string
			want   []string
		}{
			{search: "100%", want: []string{"100% Orange Juice"}},
			{search: "7_", want: []string{"7_Wonders"}},
			{search: "wonders", want: []string{"7 Wonders Duel", "7_Wonders"}},
		}
		for _, tt := range tests {
			found, err := db.ListLibraryEntries(ctx, database.ListLibraryEntriesParams{
				Visibility: share.VisibleTo(searcher, nil),
				Search:     util.Some(tt.search),
			})
			require.NoError(t, err)

			titles := make([]string, len(found))
			for i, e := range found {
				titles[i] = e.Title
			}
			assert.ElementsMatch(t, tt.want, titles, "search %q", tt.search)
		}
	})

	t.Run("expired_codes_are_purged", func(t *testing.T) {
		loaded, err := store.Load(ctx, g.ID())
		require.NoError(t, err)
		code, err := loaded.CreateInviteCode(owner, now.Add(-8*24*time.Hour))
		require.NoError(t, err)
		require.NoError(t, store.Save(ctx, loaded))

		removed, err := db.DeleteExpiredGroupInviteCodes(ctx, now)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, removed, int64(1))

		_, err = store.LoadByInviteCode(ctx, code.Code)
		assert.True(t, apperr.Is(err, apperr.KindNotFound), "got %v", err)
	})

	t.Run("delete_makes_shared_records_private", func(t *testing.T) {
		other, err := New("Short lived", owner, now, "")
		require.NoError(t, err)
		require.NoError(t, store.Save(ctx, other))

		entry := database.LibraryEntry{
			ID:          uuid.New(),
			OwnerUserID: owner,
			GroupID:     util.Some(other.ID()),
			Title:       "Carcassonne",
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		require.NoError(t, db.CreateLibraryEntry(ctx, entry))
		t.Cleanup(func() { _ = db.DeleteLibraryEntryByID(context.Background(), entry.ID) })

		require.NoError(t, store.Delete(ctx, other.ID()))

		row, err := db.GetLibraryEntryByID(ctx, entry.ID)
		require.NoError(t, err)
		assert.False(t, row.GroupID.IsSet)
	})
}
