package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/cruisereel/internal/journal"
)

func sampleJournal() *journal.Journal {
	return &journal.Journal{
		Version: "1.0",
		Cruise:  journal.Cruise{ID: "nor-24", Name: "Norwegian Fjords", HomePort: "Southampton", StartDate: "2024-05-02"},
		Entries: []journal.Entry{
			{ID: "d1", Day: 1, Port: "Southampton", Photos: []string{"p1", "p2"}},
			{ID: "d2", Day: 2, Port: "Stavanger", Text: "Pulpit Rock", Activities: []journal.Activity{
				{ID: "hike", Name: "Preikestolen", Photos: []string{"p3", "p4"}},
				{ID: "boat", Name: "Lysefjord", Photos: []string{"p5"}},
			}, Photos: []string{"p6"}},
			{ID: "a0", Day: 3, Port: "Bergen", Photos: []string{"p7"}},
		},
	}
}

func TestImportLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer s.Close()

	want := sampleJournal()
	require.NoError(t, s.Import(ctx, want))

	got, err := s.Load(ctx, "nor-24")
	require.NoError(t, err)
	assert.Equal(t, want.Cruise, got.Cruise)
	assert.Equal(t, want.Version, got.Version)
	// entry order follows import order, not id order
	assert.Equal(t, []string{"d1", "d2", "a0"}, []string{got.Entries[0].ID, got.Entries[1].ID, got.Entries[2].ID})
	assert.Equal(t, "Pulpit Rock", got.Entries[1].Text)
	assert.Equal(t, []string{"p1", "p2", "p6", "p3", "p4", "p5", "p7"}, got.PhotoIDs())
}

func TestImportReplaces(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, ":memory:")
	require.NoError(t, err)
	defer s.Close()

	j := sampleJournal()
	require.NoError(t, s.Import(ctx, j))
	j.Entries = j.Entries[:1]
	j.Entries[0].Photos = []string{"only"}
	require.NoError(t, s.Import(ctx, j))

	got, err := s.Load(ctx, "nor-24")
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, got.PhotoIDs())

	cruises, err := s.Cruises(ctx)
	require.NoError(t, err)
	assert.Len(t, cruises, 1)
}

func TestLoadUnknownCruise(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, ":memory:")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Load(ctx, "nope")
	assert.ErrorIs(t, err, journal.ErrNotFound)
}

func TestPragmasApplyToNewConnections(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer s.Close()

	// no idle connections: every statement below runs on a fresh connection
	s.db.SetMaxIdleConns(0)

	var fk, timeout int
	require.NoError(t, s.db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk))
	require.NoError(t, s.db.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout))
	assert.Equal(t, 1, fk)
	assert.Equal(t, 5000, timeout)

	j := sampleJournal()
	require.NoError(t, s.Import(ctx, j))
	require.NoError(t, s.Import(ctx, j))

	var photos int
	require.NoError(t, s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM photos").Scan(&photos))
	assert.Equal(t, len(j.PhotoIDs()), photos)
}
