package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Timeline Timeline `yaml:"timeline"`
	Render   Render   `yaml:"render"`
	Audio    Audio    `yaml:"audio"`
	Encode   Encode   `yaml:"encode"`
	Loader   Loader   `yaml:"loader"`
	LogLevel string   `yaml:"log_level"`
}

// Timeline holds the fixed three-segment schedule.
type Timeline struct {
	IntroSeconds      float64 `yaml:"intro_seconds"`
	OutroSeconds      float64 `yaml:"outro_seconds"`
	SecondsPerPhoto   float64 `yaml:"seconds_per_photo"`
	TransitionSeconds float64 `yaml:"transition_seconds"`
	FPS               int     `yaml:"fps"`
}

type Render struct {
	Width      int     `yaml:"width"`
	Height     int     `yaml:"height"`
	Effect     string  `yaml:"effect"`    // kenburns | still
	ZoomRate   float64 `yaml:"zoom_rate"` // scale gained per second of a photo slot
	MaxScale   float64 `yaml:"max_scale"`
	Background string  `yaml:"background"` // #rrggbb
	TextColor  string  `yaml:"text_color"`
	Brand      string  `yaml:"brand"`
	ShareURL   string  `yaml:"share_url"` // rendered as a QR code on the outro card when set
	TitleSize  float64 `yaml:"title_size"`
	BodySize   float64 `yaml:"body_size"`
}

// Audio describes the ambient pad: three sustained voices with a slow pitch LFO each.
type Audio struct {
	SampleRate  int        `yaml:"sample_rate"`
	Channels    int        `yaml:"channels"`
	Gain        float64    `yaml:"gain"`
	Frequencies [3]float64 `yaml:"frequencies"`
	LFORates    [3]float64 `yaml:"lfo_rates"`
	LFODepth    float64    `yaml:"lfo_depth"`
	FadeSeconds float64    `yaml:"fade_seconds"`
	TailSeconds float64    `yaml:"tail_seconds"`
}

type Encode struct {
	FFmpegPath   string `yaml:"ffmpeg_path"`
	VideoEncoder string `yaml:"video_encoder"` // empty = probe
	Quality      int    `yaml:"quality"`       // 0 = encoder default
	AudioBitrate string `yaml:"audio_bitrate"`
}

type Loader struct {
	MaxPhotos      int     `yaml:"max_photos"`
	Workers        int     `yaml:"workers"`
	MemoryFraction float64 `yaml:"memory_fraction"`
}

// Default returns the stock configuration: 3s intro, 4s per photo, 3s outro at 30 fps, 1280x720.
func Default() *Config {
	return &Config{
		Timeline: Timeline{
			IntroSeconds:      3,
			OutroSeconds:      3,
			SecondsPerPhoto:   4,
			TransitionSeconds: 1,
			FPS:               30,
		},
		Render: Render{
			Width:      1280,
			Height:     720,
			Effect:     "kenburns",
			ZoomRate:   0.025,
			MaxScale:   1.1,
			Background: "#000000",
			TextColor:  "#ffffff",
			Brand:      "Cruise Journal",
			TitleSize:  64,
			BodySize:   32,
		},
		Audio: Audio{
			SampleRate:  48000,
			Channels:    2,
			Gain:        0.05,
			Frequencies: [3]float64{110.00, 130.81, 196.00},
			LFORates:    [3]float64{0.10, 0.15, 0.20},
			LFODepth:    1.5,
			FadeSeconds: 0.5,
			TailSeconds: 1,
		},
		Encode: Encode{
			FFmpegPath:   "ffmpeg",
			AudioBitrate: "128k",
		},
		Loader: Loader{
			MaxPhotos:      20,
			Workers:        4,
			MemoryFraction: 0.25,
		},
		LogLevel: "info",
	}
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	t := c.Timeline
	switch {
	case t.FPS <= 0:
		return fmt.Errorf("timeline.fps must be positive, got %d", t.FPS)
	case t.SecondsPerPhoto <= 0:
		return fmt.Errorf("timeline.seconds_per_photo must be positive, got %v", t.SecondsPerPhoto)
	case t.IntroSeconds < 0 || t.OutroSeconds < 0:
		return fmt.Errorf("timeline intro/outro must not be negative")
	case t.TransitionSeconds < 0 || t.TransitionSeconds > t.SecondsPerPhoto:
		return fmt.Errorf("timeline.transition_seconds must be within [0, %v]", t.SecondsPerPhoto)
	}

	r := c.Render
	// yuv420p needs even dimensions
	if r.Width <= 0 || r.Height <= 0 || r.Width%2 != 0 || r.Height%2 != 0 {
		return fmt.Errorf("render size must be positive and even, got %dx%d", r.Width, r.Height)
	}
	if r.MaxScale < 1 {
		return fmt.Errorf("render.max_scale must be >= 1, got %v", r.MaxScale)
	}
	if _, err := ParseColor(r.Background); err != nil {
		return fmt.Errorf("render.background: %w", err)
	}
	if _, err := ParseColor(r.TextColor); err != nil {
		return fmt.Errorf("render.text_color: %w", err)
	}

	a := c.Audio
	if a.SampleRate <= 0 || a.Channels <= 0 {
		return fmt.Errorf("audio sample_rate and channels must be positive")
	}
	if a.Gain < 0 || a.Gain > 1 {
		return fmt.Errorf("audio.gain must be within [0, 1], got %v", a.Gain)
	}

	if c.Loader.MaxPhotos <= 0 {
		return fmt.Errorf("loader.max_photos must be positive, got %d", c.Loader.MaxPhotos)
	}
	return nil
}
