package source

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/cruisereel/internal/config"
	"github.com/ivlev/cruisereel/internal/log"
	"github.com/ivlev/cruisereel/internal/metrics"
)

var (
	// ErrNoDisplayablePhotos means every requested photo was missing or failed to decode.
	ErrNoDisplayablePhotos = errors.New("no displayable photos")
	// ErrPhotoSkipped wraps the per-photo reason a photo was left out.
	ErrPhotoSkipped = errors.New("photo skipped")
	// ErrBlobNotFound is returned by stores that have no blob for an id.
	ErrBlobNotFound = errors.New("photo blob not found")
)

// PhotoStore is keyed binary storage for photo blobs.
// A nil blob with a nil error is treated the same as ErrBlobNotFound.
type PhotoStore interface {
	Get(ctx context.Context, id string) ([]byte, error)
}

// Photo is a decoded, read-only raster ready for the renderer.
type Photo struct {
	ID    string
	Image *image.RGBA
}

// Loader resolves photo ids to decoded images in id order.
type Loader struct {
	Store     PhotoStore
	MaxPhotos int
	Workers   int
	Frame     image.Point
	MaxScale  float64
	// OnSkip, when set, is called for every photo that is skipped. It may be
	// called from several goroutines at once.
	OnSkip func(id string, err error)

	logger zerolog.Logger
}

func NewLoader(store PhotoStore, cfg *config.Config) *Loader {
	return &Loader{
		Store:     store,
		MaxPhotos: cfg.Loader.MaxPhotos,
		Workers:   cfg.Loader.Workers,
		Frame:     image.Pt(cfg.Render.Width, cfg.Render.Height),
		MaxScale:  cfg.Render.MaxScale,
		logger:    log.WithComponent("loader"),
	}
}

// Load fetches and decodes ids (deduplicated, capped at MaxPhotos). Photos
// that cannot be fetched or decoded are logged and skipped; the call fails only
// when nothing is left or ctx is cancelled.
func (l *Loader) Load(ctx context.Context, ids []string) ([]Photo, error) {
	ids = Dedupe(ids, l.MaxPhotos)
	if len(ids) == 0 {
		return nil, ErrNoDisplayablePhotos
	}

	workers := l.Workers
	if workers <= 0 {
		workers = 1
	}

	results := make([]*image.RGBA, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			img, err := l.loadOne(gctx, id)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				l.logger.Warn().Str("photo", id).Err(err).Msg("photo skipped")
				if l.OnSkip != nil {
					l.OnSkip(id, err)
				}
				return nil
			}
			results[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	photos := make([]Photo, 0, len(ids))
	for i, img := range results {
		if img != nil {
			photos = append(photos, Photo{ID: ids[i], Image: img})
		}
	}
	if len(photos) == 0 {
		return nil, ErrNoDisplayablePhotos
	}
	l.logger.Debug().Int("requested", len(ids)).Int("loaded", len(photos)).Msg("photos loaded")
	return photos, nil
}

func (l *Loader) loadOne(ctx context.Context, id string) (*image.RGBA, error) {
	blob, err := l.Store.Get(ctx, id)
	if err == nil && blob == nil {
		err = ErrBlobNotFound
	}
	if err != nil {
		metrics.PhotosSkipped.WithLabelValues("fetch").Inc()
		return nil, fmt.Errorf("%w: fetch %s: %w", ErrPhotoSkipped, id, err)
	}
	img, err := Decode(blob, l.Frame, l.MaxScale)
	if err != nil {
		metrics.PhotosSkipped.WithLabelValues("decode").Inc()
		return nil, fmt.Errorf("%w: decode %s: %w", ErrPhotoSkipped, id, err)
	}
	return img, nil
}

// Dedupe keeps the first occurrence of every non-empty id and caps the result at max.
func Dedupe(ids []string, max int) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}

// Release drops the pixel buffers so the decoded images can be collected.
func Release(photos []Photo) {
	for i := range photos {
		photos[i].Image = nil
	}
}
