package journal

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
version: "1.0"
cruise:
  id: med-2025
  name: Western Mediterranean
  home_port: Barcelona
  start_date: "2025-06-01"
  end_date: "2025-06-08"
entries:
  - id: d1
    day: 1
    port: Barcelona
    photos: [p1, p2]
    activities:
      - id: a1
        name: Sagrada Familia
        photos: [p3]
      - id: a2
        name: Tapas
        photos: [p4, p1]
  - id: d2
    day: 2
    port: At sea
  - id: d3
    day: 3
    port: Marseille
    photos: [p5]
`

func TestParseAndFlatten(t *testing.T) {
	j, err := Parse([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, "Western Mediterranean", j.Cruise.Name)
	assert.Len(t, j.Entries, 3)
	assert.Equal(t, []string{"p1", "p2", "p3", "p4", "p1", "p5"}, j.PhotoIDs())
}

func TestEmptyJournalHasNoPhotos(t *testing.T) {
	j := &Journal{Cruise: Cruise{ID: "x"}}
	assert.Empty(t, j.PhotoIDs())
}

func TestParseRejectsInvalid(t *testing.T) {
	_, err := Parse([]byte("cruise: {name: x}"))
	assert.Error(t, err)

	_, err = Parse([]byte("cruise: {id: x}\nentries: [{id: a}, {id: a}]"))
	assert.Error(t, err)

	_, err = Parse([]byte("cruise: ["))
	assert.Error(t, err)
}

func TestSubtitle(t *testing.T) {
	c := Cruise{HomePort: "Kiel", StartDate: "2025-07-01", EndDate: "2025-07-10"}
	assert.Equal(t, "Kiel · 2025-07-01 – 2025-07-10", c.Subtitle())
	assert.Equal(t, "Kiel", Cruise{HomePort: "Kiel"}.Subtitle())
	assert.Equal(t, "Aurora", Cruise{Ship: "Aurora"}.Subtitle())
}

func TestWriteReadFile(t *testing.T) {
	j, err := Parse([]byte(sample))
	require.NoError(t, err)
	j.Version = ""

	path := filepath.Join(t.TempDir(), "journal.yaml")
	require.NoError(t, WriteFile(j, path))

	back, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, Version, back.Version)
	assert.Equal(t, j.PhotoIDs(), back.PhotoIDs())
	assert.Equal(t, j.Cruise, back.Cruise)
}

func TestFileStore(t *testing.T) {
	j, err := Parse([]byte(sample))
	require.NoError(t, err)
	s := &FileStore{Journal: j}

	got, err := s.Load(context.Background(), "med-2025")
	require.NoError(t, err)
	assert.Same(t, j, got)

	_, err = s.Load(context.Background(), "other")
	assert.ErrorIs(t, err, ErrNotFound)
}
