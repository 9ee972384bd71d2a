package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/ivlev/cruisereel/internal/config"
)

const (
	BitDepth    = 16
	chunkFrames = 2048
	maxInt16    = 32767
)

// Voice is one sustained tone whose pitch drifts with a slow sine LFO.
type Voice struct {
	Freq     float64 // Hz
	LFORate  float64 // Hz
	LFODepth float64 // Hz of pitch deviation
}

// Pad is the ambient "breathing" chord laid under the slideshow.
type Pad struct {
	SampleRate int
	Channels   int
	Gain       float64
	Voices     []Voice
	Fade       float64
	Tail       float64
}

func NewPad(cfg config.Audio) *Pad {
	voices := make([]Voice, 0, len(cfg.Frequencies))
	for i, f := range cfg.Frequencies {
		voices = append(voices, Voice{Freq: f, LFORate: cfg.LFORates[i], LFODepth: cfg.LFODepth})
	}
	return &Pad{
		SampleRate: cfg.SampleRate,
		Channels:   cfg.Channels,
		Gain:       cfg.Gain,
		Voices:     voices,
		Fade:       cfg.FadeSeconds,
		Tail:       cfg.TailSeconds,
	}
}

// Sample is the raw chord value at time t, bounded by Gain.
// The phase is the closed-form integral of the modulated frequency, so the
// value depends on t alone.
func (p *Pad) Sample(t float64) float64 {
	if len(p.Voices) == 0 {
		return 0
	}
	var sum float64
	for _, v := range p.Voices {
		phase := 2 * math.Pi * v.Freq * t
		if v.LFORate > 0 {
			phase += v.LFODepth / v.LFORate * (1 - math.Cos(2*math.Pi*v.LFORate*t))
		}
		sum += math.Sin(phase)
	}
	return p.Gain * sum / float64(len(p.Voices))
}

// Envelope fades in over Fade seconds from 0 and out over the last Fade
// seconds before duration. The tail after duration stays silent.
func (p *Pad) Envelope(t, duration float64) float64 {
	if t < 0 || t >= duration {
		return 0
	}
	if p.Fade <= 0 {
		return 1
	}
	env := 1.0
	if t < p.Fade {
		env = t / p.Fade
	}
	if rem := duration - t; rem < p.Fade {
		env = math.Min(env, rem/p.Fade)
	}
	return env
}

// FrameCount is the number of sample frames streamed for a video of duration seconds.
func (p *Pad) FrameCount(duration float64) int64 {
	return int64(math.Ceil((duration + p.Tail) * float64(p.SampleRate)))
}

// Chunk renders n sample frames starting at frame index start.
func (p *Pad) Chunk(start int64, n int, duration float64) *goaudio.IntBuffer {
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: p.Channels, SampleRate: p.SampleRate},
		Data:           make([]int, n*p.Channels),
		SourceBitDepth: BitDepth,
	}
	for i := 0; i < n; i++ {
		t := float64(start+int64(i)) / float64(p.SampleRate)
		v := p.Sample(t) * p.Envelope(t, duration)
		s := int(math.Round(v * maxInt16))
		for c := 0; c < p.Channels; c++ {
			buf.Data[i*p.Channels+c] = s
		}
	}
	return buf
}

// NewReader streams signed 16-bit little-endian interleaved PCM covering
// duration plus the tail margin, then returns io.EOF.
func (p *Pad) NewReader(duration float64) io.Reader {
	return &padReader{pad: p, duration: duration, total: p.FrameCount(duration)}
}

type padReader struct {
	pad      *Pad
	duration float64
	total    int64
	pos      int64
	scratch  []byte
	pending  []byte
}

func (r *padReader) Read(b []byte) (int, error) {
	if len(r.pending) == 0 {
		if r.pos >= r.total {
			return 0, io.EOF
		}
		n := chunkFrames
		if left := r.total - r.pos; left < int64(n) {
			n = int(left)
		}
		r.scratch = encodeS16LE(r.pad.Chunk(r.pos, n, r.duration), r.scratch)
		r.pending = r.scratch
		r.pos += int64(n)
	}
	n := copy(b, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

func encodeS16LE(buf *goaudio.IntBuffer, dst []byte) []byte {
	need := len(buf.Data) * 2
	if cap(dst) < need {
		dst = make([]byte, need)
	}
	dst = dst[:need]
	for i, s := range buf.Data {
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(int16(s)))
	}
	return dst
}

// WriteWAV renders the pad for duration (plus tail) into a WAV container.
func (p *Pad) WriteWAV(w io.WriteSeeker, duration float64) error {
	enc := wav.NewEncoder(w, p.SampleRate, BitDepth, p.Channels, 1)
	total := p.FrameCount(duration)
	for pos := int64(0); pos < total; pos += chunkFrames {
		n := chunkFrames
		if left := total - pos; left < int64(n) {
			n = int(left)
		}
		if err := enc.Write(p.Chunk(pos, n, duration)); err != nil {
			return fmt.Errorf("write wav chunk: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav: %w", err)
	}
	return nil
}
