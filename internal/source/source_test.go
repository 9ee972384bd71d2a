package source

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/cruisereel/internal/config"
)

type memStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
	gets  int
}

func (m *memStore) Get(ctx context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	b, ok := m.blobs[id]
	if !ok {
		return nil, ErrBlobNotFound
	}
	return b, nil
}

func encodePNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testLoader(store PhotoStore) *Loader {
	cfg := config.Default()
	cfg.Render.Width, cfg.Render.Height = 64, 36
	return NewLoader(store, cfg)
}

func TestDedupe(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, Dedupe([]string{"a", "b", "a", "", "c", "b"}, 0))
	assert.Equal(t, []string{"a", "b"}, Dedupe([]string{"a", "a", "b", "c"}, 2))
	assert.Empty(t, Dedupe(nil, 20))
}

func TestLoadKeepsOrderAndSkipsBroken(t *testing.T) {
	store := &memStore{blobs: map[string][]byte{
		"p1": encodePNG(t, 40, 30, color.RGBA{R: 255, A: 255}),
		"p2": []byte("definitely not an image"),
		"p3": encodePNG(t, 20, 20, color.RGBA{B: 255, A: 255}),
		"p4": encodePNG(t, 16, 9, color.RGBA{G: 255, A: 255}),
	}}
	l := testLoader(store)
	l.Workers = 3

	photos, err := l.Load(context.Background(), []string{"p4", "missing", "p1", "p2", "p3", "p1"})
	require.NoError(t, err)
	require.Len(t, photos, 3)
	assert.Equal(t, "p4", photos[0].ID)
	assert.Equal(t, "p1", photos[1].ID)
	assert.Equal(t, "p3", photos[2].ID)

	r, g, b, _ := photos[1].Image.At(5, 5).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Zero(t, g)
	assert.Zero(t, b)
}

func TestLoadReportsSkippedPhotos(t *testing.T) {
	store := &memStore{blobs: map[string][]byte{
		"p1": encodePNG(t, 40, 30, color.RGBA{R: 255, A: 255}),
		"p2": []byte("definitely not an image"),
	}}
	l := testLoader(store)
	l.Workers = 2

	var mu sync.Mutex
	skipped := map[string]error{}
	l.OnSkip = func(id string, err error) {
		mu.Lock()
		defer mu.Unlock()
		skipped[id] = err
	}

	photos, err := l.Load(context.Background(), []string{"p1", "p2", "gone"})
	require.NoError(t, err)
	assert.Len(t, photos, 1)
	require.Len(t, skipped, 2)
	assert.ErrorIs(t, skipped["p2"], ErrPhotoSkipped)
	assert.ErrorIs(t, skipped["gone"], ErrBlobNotFound)
}

func TestLoadNothingDisplayable(t *testing.T) {
	store := &memStore{blobs: map[string][]byte{"bad": []byte("xx")}}
	l := testLoader(store)

	_, err := l.Load(context.Background(), []string{"bad", "gone"})
	assert.ErrorIs(t, err, ErrNoDisplayablePhotos)

	_, err = l.Load(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoDisplayablePhotos)
}

func TestLoadCapsPhotoCount(t *testing.T) {
	blob := encodePNG(t, 8, 8, color.White)
	store := &memStore{blobs: map[string][]byte{}}
	var ids []string
	for i := 0; i < 30; i++ {
		id := string(rune('A' + i))
		store.blobs[id] = blob
		ids = append(ids, id)
	}
	l := testLoader(store)

	photos, err := l.Load(context.Background(), ids)
	require.NoError(t, err)
	assert.Len(t, photos, 20)
	assert.Equal(t, 20, store.gets)
	assert.Equal(t, ids[19], photos[19].ID)
}

type blockingStore struct {
	calls atomic.Int32
}

func (b *blockingStore) Get(ctx context.Context, id string) ([]byte, error) {
	b.calls.Add(1)
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestLoadHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := &blockingStore{}
	l := testLoader(store)

	done := make(chan error, 1)
	go func() {
		_, err := l.Load(ctx, []string{"a", "b", "c"})
		done <- err
	}()
	cancel()
	err := <-done
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestDecodeDownscalesLargePhotos(t *testing.T) {
	blob := encodePNG(t, 400, 300, color.Gray{Y: 128})
	img, err := Decode(blob, image.Pt(64, 36), 1.1)
	require.NoError(t, err)
	// cover factor max(64/400, 36/300) * 1.1 = 0.176
	assert.Equal(t, image.Pt(71, 53), img.Bounds().Size())

	small, err := Decode(encodePNG(t, 10, 10, color.Black), image.Pt(64, 36), 1.1)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(10, 10), small.Bounds().Size())
}

func TestDirStore(t *testing.T) {
	dir := t.TempDir()
	blob := encodePNG(t, 4, 4, color.White)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.png"), blob, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.JPG"), blob, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	s, err := NewDirStore(dir)
	require.NoError(t, err)

	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.JPG", "b.png"}, names)

	got, err := s.Get(context.Background(), "b.png")
	require.NoError(t, err)
	assert.Equal(t, blob, got)

	_, err = s.Get(context.Background(), "nope.png")
	assert.ErrorIs(t, err, ErrBlobNotFound)

	_, err = s.Get(context.Background(), "../etc/passwd")
	assert.Error(t, err)
}
