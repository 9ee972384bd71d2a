package video

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLineRing(t *testing.T) {
	r := NewLineRing(3)

	_, _ = fmt.Fprintf(r, "line1\n")
	_, _ = fmt.Fprintf(r, "line2\n")
	assert.Equal(t, []string{"line1", "line2"}, r.LastN(10))

	_, _ = fmt.Fprintf(r, "line3\n")
	_, _ = fmt.Fprintf(r, "line4\n")
	assert.Equal(t, []string{"line2", "line3", "line4"}, r.LastN(10))
	assert.Equal(t, []string{"line3", "line4"}, r.LastN(2))
}

func TestLineRingJoinsSplitWrites(t *testing.T) {
	r := NewLineRing(5)
	_, _ = r.Write([]byte("Unknown enc"))
	_, _ = r.Write([]byte("oder 'h264_nvenc'\r\n\nConversion failed!"))

	assert.Equal(t, []string{"Unknown encoder 'h264_nvenc'", "Conversion failed!"}, r.LastN(10))
	assert.Equal(t, "Unknown encoder 'h264_nvenc'; Conversion failed!", r.Tail(5))
}
