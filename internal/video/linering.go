package video

import (
	"strings"
	"sync"
)

// LineRing keeps the last lines written to it. It is the encoder's stderr sink,
// so error messages can quote what ffmpeg said without buffering all of it.
type LineRing struct {
	mu      sync.Mutex
	lines   []string
	head    int
	count   int
	partial strings.Builder
}

func NewLineRing(capacity int) *LineRing {
	if capacity < 1 {
		capacity = 32
	}
	return &LineRing{lines: make([]string, capacity)}
}

// Write splits p into lines; an unterminated trailing fragment is held until
// the rest of the line arrives.
func (r *LineRing) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := string(p)
	for {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			r.partial.WriteString(s)
			break
		}
		r.partial.WriteString(s[:i])
		r.push(r.partial.String())
		r.partial.Reset()
		s = s[i+1:]
	}
	return len(p), nil
}

func (r *LineRing) push(line string) {
	line = strings.TrimRight(line, "\r")
	if strings.TrimSpace(line) == "" {
		return
	}
	r.lines[r.head] = line
	r.head = (r.head + 1) % len(r.lines)
	if r.count < len(r.lines) {
		r.count++
	}
}

// LastN returns up to n of the most recent lines, oldest first. A pending
// unterminated line counts as the newest.
func (r *LineRing) LastN(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, r.count+1)
	start := (r.head - r.count + len(r.lines)) % len(r.lines)
	for i := 0; i < r.count; i++ {
		out = append(out, r.lines[(start+i)%len(r.lines)])
	}
	if tail := strings.TrimSpace(r.partial.String()); tail != "" {
		out = append(out, tail)
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

// Tail joins the last n lines for use in an error message.
func (r *LineRing) Tail(n int) string {
	return strings.Join(r.LastN(n), "; ")
}
