package generator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ivlev/cruisereel/internal/config"
	"github.com/ivlev/cruisereel/internal/engine"
	"github.com/ivlev/cruisereel/internal/journal"
	"github.com/ivlev/cruisereel/internal/log"
	"github.com/ivlev/cruisereel/internal/metrics"
	"github.com/ivlev/cruisereel/internal/renderer"
	"github.com/ivlev/cruisereel/internal/source"
	"github.com/ivlev/cruisereel/internal/system"
	"github.com/ivlev/cruisereel/internal/timeline"
	"github.com/ivlev/cruisereel/internal/video"
)

type Status string

const (
	StatusIdle      Status = "idle"
	StatusLoading   Status = "loading"
	StatusRendering Status = "rendering"
	StatusDone      Status = "done"
	StatusError     Status = "error"
)

// Running reports whether a run is in flight.
func (s Status) Running() bool {
	return s == StatusLoading || s == StatusRendering
}

// Job is a snapshot of one generation run.
type Job struct {
	ID          string    `json:"id,omitempty"`
	CruiseID    string    `json:"cruise_id"`
	Status      Status    `json:"status"`
	Progress    int       `json:"progress"`
	FrameIndex  int       `json:"frame_index"`
	TotalFrames int       `json:"total_frames"`
	Photos      int       `json:"photos"`
	Partial     bool      `json:"partial,omitempty"`
	Errors      []string  `json:"errors,omitempty"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
}

// Deps are the collaborators a controller runs against.
type Deps struct {
	Config   *config.Config
	Journals journal.Store
	Photos   source.PhotoStore
	Encoder  video.VideoEncoder
	// EncoderName overrides Config.Encode.VideoEncoder, typically with a probe result.
	EncoderName string
}

// Controller owns the generation lifecycle for one cruise:
// idle -> loading -> rendering -> done | error.
type Controller struct {
	cruiseID string
	deps     Deps
	logger   zerolog.Logger

	mu     sync.Mutex
	job    Job
	output *video.Output
	photos []source.Photo
	cancel context.CancelCauseFunc
	done   chan struct{}
}

func NewController(cruiseID string, deps Deps) *Controller {
	return &Controller{
		cruiseID: cruiseID,
		deps:     deps,
		logger:   log.WithComponent("generator").With().Str("cruise", cruiseID).Logger(),
		job:      Job{CruiseID: cruiseID, Status: StatusIdle},
	}
}

// Start begins a run and returns its job id. While a run is in flight it
// returns that run's id and does nothing else. A finished run is reset first.
// The run is detached from ctx's cancellation; use Cancel to stop it.
func (c *Controller) Start(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.job.Status.Running() {
		return c.job.ID, nil
	}
	if c.deps.Config == nil || c.deps.Journals == nil || c.deps.Photos == nil || c.deps.Encoder == nil {
		return "", errors.New("generator: missing dependencies")
	}
	c.resetLocked()

	id := uuid.NewString()
	runCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	done := make(chan struct{})
	c.job = Job{
		ID:        id,
		CruiseID:  c.cruiseID,
		Status:    StatusLoading,
		StartedAt: time.Now().UTC(),
	}
	c.cancel = cancel
	c.done = done

	go c.run(runCtx, id, done)
	c.logger.Info().Str("job", id).Msg("generation started")
	return id, nil
}

// Cancel stops the current run. Rendering that already produced frames
// finishes with a partial video; otherwise the run ends with ErrCancelled.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil && c.job.Status.Running() {
		c.cancel(ErrCancelled)
		c.logger.Info().Str("job", c.job.ID).Msg("cancel requested")
	}
}

// Reset returns to idle, discarding output and decoded photos. A run in
// flight is cancelled and waited for.
func (c *Controller) Reset() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	running := c.job.Status.Running()
	c.mu.Unlock()

	if running && cancel != nil {
		cancel(ErrCancelled)
		<-done
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

func (c *Controller) resetLocked() {
	if c.job.Status.Running() {
		return
	}
	source.Release(c.photos)
	c.photos = nil
	c.output = nil
	if c.cancel != nil {
		c.cancel(nil)
	}
	c.cancel = nil
	c.job = Job{CruiseID: c.cruiseID, Status: StatusIdle}
}

// Job returns a snapshot of the current job.
func (c *Controller) Job() Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	j := c.job
	j.Errors = append([]string(nil), c.job.Errors...)
	return j
}

// Output returns the finished video, if the last run is done.
func (c *Controller) Output() (*video.Output, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.job.Status != StatusDone || c.output == nil {
		return nil, false
	}
	return c.output, true
}

// Wait blocks until the current run finishes or ctx is done.
func (c *Controller) Wait(ctx context.Context) (Job, error) {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return c.Job(), ctx.Err()
		}
	}
	return c.Job(), nil
}

func (c *Controller) run(ctx context.Context, jobID string, done chan struct{}) {
	defer close(done)
	start := time.Now()
	logger := c.logger.With().Str("job", jobID).Logger()

	out, photos, err := c.generate(ctx, jobID, logger)
	if engine.IsCancelled(err) && !errors.Is(err, ErrCancelled) {
		err = fmt.Errorf("%w: %w", ErrCancelled, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.job.ID != jobID {
		source.Release(photos)
		return
	}
	c.photos = photos
	c.job.FinishedAt = time.Now().UTC()
	if err != nil {
		c.job.Status = StatusError
		c.job.Errors = append(c.job.Errors, UserMessage(err))
		metrics.Generations.WithLabelValues("error").Inc()
		logger.Error().Err(err).Msg("generation failed")
	} else {
		out.Filename = Filename(c.cruiseID)
		c.output = out
		c.job.Status = StatusDone
		c.job.Progress = 100
		c.job.Partial = out.Partial
		result := "done"
		if out.Partial {
			result = "partial"
		}
		metrics.Generations.WithLabelValues(result).Inc()
		logger.Info().Int("frames", out.Frames).Int("bytes", len(out.Data)).Bool("partial", out.Partial).Msg("generation finished")
	}
	metrics.GenerationDuration.Observe(time.Since(start).Seconds())
}

func (c *Controller) generate(ctx context.Context, jobID string, logger zerolog.Logger) (*video.Output, []source.Photo, error) {
	cfg := c.deps.Config

	j, err := c.deps.Journals.Load(ctx, c.cruiseID)
	if err != nil {
		if errors.Is(err, journal.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: %w", ErrNoJournalData, err)
		}
		return nil, nil, fmt.Errorf("load journal: %w", err)
	}
	if j == nil || len(j.Entries) == 0 {
		return nil, nil, ErrNoJournalData
	}

	loader := source.NewLoader(c.deps.Photos, cfg)
	loader.MaxPhotos = system.PhotoBudget(cfg.Loader.MaxPhotos, photoBytes(cfg), cfg.Loader.MemoryFraction)
	loader.OnSkip = func(id string, err error) {
		c.update(jobID, func(job *Job) {
			job.Errors = append(job.Errors, SkipMessage(id))
		})
	}
	photos, err := loader.Load(ctx, j.PhotoIDs())
	if err != nil {
		return nil, nil, err
	}

	total := timeline.New(cfg.Timeline, len(photos)).TotalFrames()
	if !c.update(jobID, func(job *Job) {
		job.Status = StatusRendering
		job.Photos = len(photos)
		job.TotalFrames = total
	}) {
		return nil, photos, ErrCancelled
	}
	logger.Info().Int("photos", len(photos)).Int("frames", total).Msg("photos loaded")

	r, err := renderer.New(cfg.Render, cfg.Timeline, renderer.Card{Title: j.Cruise.Name, Subtitle: j.Cruise.Subtitle()})
	if err != nil {
		return nil, photos, fmt.Errorf("renderer: %w", err)
	}
	defer r.Close()

	project := engine.NewVideoProject(cfg, c.deps.Encoder, r, video.NewParams(cfg, c.deps.EncoderName))
	out, err := project.Run(ctx, photos, func(frame, total int) {
		c.update(jobID, func(job *Job) {
			job.FrameIndex = frame
			if p := frame * 100 / total; p > job.Progress {
				job.Progress = p
			}
		})
	})
	return out, photos, err
}

// update applies fn to the job if jobID is still current.
func (c *Controller) update(jobID string, fn func(*Job)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.job.ID != jobID {
		return false
	}
	fn(&c.job)
	return true
}

// photoBytes estimates the decoded size of one photo kept at cover size for
// the maximum zoom, allowing for aspect ratios wider than the frame.
func photoBytes(cfg *config.Config) uint64 {
	s := cfg.Render.MaxScale
	if s < 1 {
		s = 1
	}
	return uint64(float64(cfg.Render.Width*cfg.Render.Height*4) * s * s * 2)
}
