package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesRendered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cruisereel_frames_rendered_total",
		Help: "Total number of frames painted and submitted to the encoder",
	})

	PhotosSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cruisereel_photos_skipped_total",
		Help: "Photos excluded from a slideshow because the blob was missing or undecodable",
	}, []string{"reason"})

	Generations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cruisereel_generations_total",
		Help: "Finished generation runs by result",
	}, []string{"result"})

	GenerationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cruisereel_generation_duration_seconds",
		Help:    "Wall-clock time from start to a terminal state",
		Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
	})

	EncoderExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cruisereel_ffmpeg_exit_total",
		Help: "Encoder process exits by reason",
	}, []string{"reason"})
)
