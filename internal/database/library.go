package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/freekieb7/playlog/internal/share"
	"github.com/freekieb7/playlog/internal/util"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type LibraryEntry struct {
	ID          uuid.UUID
	OwnerUserID string
	GroupID     util.Optional[uuid.UUID]
	Title       string
	Publisher   string
	MinPlayers  int
	MaxPlayers  int
	Notes       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const libraryEntryColumns = `id, owner_user_id, group_id, title, publisher, min_players, max_players, notes, created_at, updated_at`

func scanLibraryEntry(row pgx.Row, e *LibraryEntry) error {
	return row.Scan(&e.ID, &e.OwnerUserID, &e.GroupID, &e.Title, &e.Publisher, &e.MinPlayers, &e.MaxPlayers, &e.Notes, &e.CreatedAt, &e.UpdatedAt)
}

func (db *Database) CreateLibraryEntry(ctx context.Context, e LibraryEntry) error {
	if _, err := db.Pool.Exec(ctx, `INSERT INTO tbl_library_entry (`+libraryEntryColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.OwnerUserID, e.GroupID, e.Title, e.Publisher, e.MinPlayers, e.MaxPlayers, e.Notes, e.CreatedAt, e.UpdatedAt); err != nil {
		return fmt.Errorf("database: failed to insert library entry (owner_user_id=%s): %w", e.OwnerUserID, err)
	}
	return nil
}

func (db *Database) GetLibraryEntryByID(ctx context.Context, id uuid.UUID) (LibraryEntry, error) {
	var e LibraryEntry
	err := scanLibraryEntry(db.Pool.QueryRow(ctx, `SELECT `+libraryEntryColumns+` FROM tbl_library_entry WHERE id = $1`, id), &e)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return e, ErrLibraryEntryNotFound
		}
		return e, fmt.Errorf("database: failed to scan library entry (id=%s): %w", id, err)
	}
	return e, nil
}

type ListLibraryEntriesParams struct {
	Visibility share.Predicate
	GroupID    util.Optional[uuid.UUID]
	Search     util.Optional[string]
	Limit      int
	Offset     int
}

// ListLibraryEntries returns the entries the visibility predicate allows.
func (db *Database) ListLibraryEntries(ctx context.Context, params ListLibraryEntriesParams) ([]LibraryEntry, error) {
	var query strings.Builder
	query.WriteString(`SELECT ` + libraryEntryColumns + ` FROM tbl_library_entry WHERE `)

	clause, args := params.Visibility.Clause("owner_user_id", "group_id", 1)
	query.WriteString(clause)
	argNum := len(args) + 1

	if params.GroupID.IsSet {
		query.WriteString(fmt.Sprintf(" AND group_id = $%d", argNum))
		args = append(args, params.GroupID.Val)
		argNum++
	}
	if params.Search.IsSet {
		query.WriteString(fmt.Sprintf(` AND title ILIKE $%d ESCAPE '\'`, argNum))
		args = append(args, "%"+escapeLike(params.Search.Val)+"%")
		argNum++
	}

	query.WriteString(" ORDER BY title ASC, id ASC")
	if params.Limit > 0 {
		query.WriteString(fmt.Sprintf(" LIMIT $%d OFFSET $%d", argNum, argNum+1))
		args = append(args, params.Limit, params.Offset)
	}

	rows, err := db.Pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("database: failed to list library entries: %w", err)
	}
	defer rows.Close()

	var entries []LibraryEntry
	for rows.Next() {
		var e LibraryEntry
		if err := scanLibraryEntry(rows, &e); err != nil {
			return nil, fmt.Errorf("database: failed to scan library entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database: failed to iterate library entries: %w", err)
	}
	return entries, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside a LIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func (db *Database) UpdateLibraryEntry(ctx context.Context, e LibraryEntry) error {
	tag, err := db.Pool.Exec(ctx, `UPDATE tbl_library_entry SET group_id = $1, title = $2, publisher = $3, min_players = $4, max_players = $5, notes = $6, updated_at = $7 WHERE id = $8`,
		e.GroupID, e.Title, e.Publisher, e.MinPlayers, e.MaxPlayers, e.Notes, e.UpdatedAt, e.ID)
	if err != nil {
		return fmt.Errorf("database: failed to update library entry (id=%s): %w", e.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLibraryEntryNotFound
	}
	return nil
}

func (db *Database) DeleteLibraryEntryByID(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM tbl_library_entry WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("database: failed to delete library entry (id=%s): %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLibraryEntryNotFound
	}
	return nil
}
