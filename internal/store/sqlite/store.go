package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/ivlev/cruisereel/internal/journal"
)

const schemaVersion = "1"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS cruises (
		id         TEXT PRIMARY KEY,
		version    TEXT NOT NULL DEFAULT '',
		name       TEXT NOT NULL,
		ship       TEXT NOT NULL DEFAULT '',
		home_port  TEXT NOT NULL DEFAULT '',
		start_date TEXT NOT NULL DEFAULT '',
		end_date   TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS entries (
		cruise_id TEXT NOT NULL REFERENCES cruises(id) ON DELETE CASCADE,
		id        TEXT NOT NULL,
		position  INTEGER NOT NULL,
		day       INTEGER NOT NULL DEFAULT 0,
		date      TEXT NOT NULL DEFAULT '',
		port      TEXT NOT NULL DEFAULT '',
		title     TEXT NOT NULL DEFAULT '',
		body      TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (cruise_id, id)
	)`,
	`CREATE TABLE IF NOT EXISTS activities (
		cruise_id TEXT NOT NULL REFERENCES cruises(id) ON DELETE CASCADE,
		entry_id  TEXT NOT NULL,
		id        TEXT NOT NULL,
		position  INTEGER NOT NULL,
		name      TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (cruise_id, entry_id, id)
	)`,
	`CREATE TABLE IF NOT EXISTS photos (
		cruise_id   TEXT NOT NULL REFERENCES cruises(id) ON DELETE CASCADE,
		entry_id    TEXT NOT NULL,
		activity_id TEXT NOT NULL DEFAULT '',
		position    INTEGER NOT NULL,
		photo_id    TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS photos_owner ON photos (cruise_id, entry_id, activity_id, position)`,
	`CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)`,
}

// JournalStore persists cruise journals in SQLite.
type JournalStore struct {
	db *sql.DB
}

// Open creates or opens the database at path. Use ":memory:" for tests.
func Open(ctx context.Context, path string) (*JournalStore, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// a second connection to ":memory:" would see a different database
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	s := &JournalStore{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// dsn carries the pragmas in the connection string so every connection the
// pool opens gets them, not just the first.
func dsn(path string) string {
	const pragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if path == ":memory:" {
		return "file::memory:?" + pragmas
	}
	return "file:" + path + "?" + pragmas
}

func (s *JournalStore) migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO schema_migrations (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

func (s *JournalStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Import replaces the stored journal for j.Cruise.ID.
func (s *JournalStore) Import(ctx context.Context, j *journal.Journal) error {
	if err := j.Validate(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	c := j.Cruise
	if _, err := tx.ExecContext(ctx, "DELETE FROM cruises WHERE id = ?", c.ID); err != nil {
		return fmt.Errorf("delete cruise %s: %w", c.ID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO cruises (id, version, name, ship, home_port, start_date, end_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, j.Version, c.Name, c.Ship, c.HomePort, c.StartDate, c.EndDate,
	); err != nil {
		return fmt.Errorf("insert cruise %s: %w", c.ID, err)
	}

	for i, e := range j.Entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO entries (cruise_id, id, position, day, date, port, title, body)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, e.ID, i, e.Day, e.Date, e.Port, e.Title, e.Text,
		); err != nil {
			return fmt.Errorf("insert entry %s: %w", e.ID, err)
		}
		if err := insertPhotos(ctx, tx, c.ID, e.ID, "", e.Photos); err != nil {
			return err
		}
		for k, a := range e.Activities {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO activities (cruise_id, entry_id, id, position, name) VALUES (?, ?, ?, ?, ?)`,
				c.ID, e.ID, a.ID, k, a.Name,
			); err != nil {
				return fmt.Errorf("insert activity %s/%s: %w", e.ID, a.ID, err)
			}
			if err := insertPhotos(ctx, tx, c.ID, e.ID, a.ID, a.Photos); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

func insertPhotos(ctx context.Context, tx *sql.Tx, cruiseID, entryID, activityID string, ids []string) error {
	for i, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO photos (cruise_id, entry_id, activity_id, position, photo_id) VALUES (?, ?, ?, ?, ?)`,
			cruiseID, entryID, activityID, i, id,
		); err != nil {
			return fmt.Errorf("insert photo %s: %w", id, err)
		}
	}
	return nil
}

// Load implements journal.Store.
func (s *JournalStore) Load(ctx context.Context, cruiseID string) (*journal.Journal, error) {
	j := &journal.Journal{}
	c := &j.Cruise
	err := s.db.QueryRowContext(ctx,
		`SELECT id, version, name, ship, home_port, start_date, end_date FROM cruises WHERE id = ?`, cruiseID,
	).Scan(&c.ID, &j.Version, &c.Name, &c.Ship, &c.HomePort, &c.StartDate, &c.EndDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cruise %q: %w", cruiseID, journal.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load cruise %s: %w", cruiseID, err)
	}

	if err := s.loadEntries(ctx, j); err != nil {
		return nil, err
	}
	photos, err := s.loadPhotos(ctx, cruiseID)
	if err != nil {
		return nil, err
	}
	if err := s.loadActivities(ctx, j, photos); err != nil {
		return nil, err
	}
	for i := range j.Entries {
		j.Entries[i].Photos = photos[ownerKey{entry: j.Entries[i].ID}]
	}
	return j, nil
}

func (s *JournalStore) loadEntries(ctx context.Context, j *journal.Journal) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, day, date, port, title, body FROM entries WHERE cruise_id = ? ORDER BY position`, j.Cruise.ID)
	if err != nil {
		return fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e journal.Entry
		if err := rows.Scan(&e.ID, &e.Day, &e.Date, &e.Port, &e.Title, &e.Text); err != nil {
			return fmt.Errorf("scan entry: %w", err)
		}
		j.Entries = append(j.Entries, e)
	}
	return rows.Err()
}

func (s *JournalStore) loadActivities(ctx context.Context, j *journal.Journal, photos map[ownerKey][]string) error {
	index := make(map[string]int, len(j.Entries))
	for i, e := range j.Entries {
		index[e.ID] = i
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT entry_id, id, name FROM activities WHERE cruise_id = ? ORDER BY entry_id, position`, j.Cruise.ID)
	if err != nil {
		return fmt.Errorf("query activities: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var entryID string
		var a journal.Activity
		if err := rows.Scan(&entryID, &a.ID, &a.Name); err != nil {
			return fmt.Errorf("scan activity: %w", err)
		}
		a.Photos = photos[ownerKey{entry: entryID, activity: a.ID}]
		if i, ok := index[entryID]; ok {
			j.Entries[i].Activities = append(j.Entries[i].Activities, a)
		}
	}
	return rows.Err()
}

type ownerKey struct {
	entry    string
	activity string
}

func (s *JournalStore) loadPhotos(ctx context.Context, cruiseID string) (map[ownerKey][]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entry_id, activity_id, photo_id FROM photos WHERE cruise_id = ? ORDER BY entry_id, activity_id, position`, cruiseID)
	if err != nil {
		return nil, fmt.Errorf("query photos: %w", err)
	}
	defer rows.Close()
	out := make(map[ownerKey][]string)
	for rows.Next() {
		var k ownerKey
		var id string
		if err := rows.Scan(&k.entry, &k.activity, &id); err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		out[k] = append(out[k], id)
	}
	return out, rows.Err()
}

// Cruises lists stored cruises ordered by start date.
func (s *JournalStore) Cruises(ctx context.Context) ([]journal.Cruise, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, ship, home_port, start_date, end_date FROM cruises ORDER BY start_date, id`)
	if err != nil {
		return nil, fmt.Errorf("query cruises: %w", err)
	}
	defer rows.Close()
	var out []journal.Cruise
	for rows.Next() {
		var c journal.Cruise
		if err := rows.Scan(&c.ID, &c.Name, &c.Ship, &c.HomePort, &c.StartDate, &c.EndDate); err != nil {
			return nil, fmt.Errorf("scan cruise: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
