package system

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/ivlev/cruisereel/internal/log"
)

// Hardware encoders in order of preference; libx264 is the software fallback.
var hardwareEncoders = []string{"h264_videotoolbox", "h264_nvenc"}

const SoftwareEncoder = "libx264"

// RaiseFileLimit lifts the soft open-file limit towards want (capped at the hard
// limit). The badger photo store keeps many table files open.
func RaiseFileLimit(want uint64) (uint64, error) {
	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, fmt.Errorf("getrlimit: %w", err)
	}
	if rLimit.Cur >= want {
		return rLimit.Cur, nil
	}
	rLimit.Cur = want
	if rLimit.Cur > rLimit.Max {
		rLimit.Cur = rLimit.Max
	}
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, fmt.Errorf("setrlimit: %w", err)
	}
	return rLimit.Cur, nil
}

// BestH264Encoder asks ffmpeg which encoders it was built with and returns the
// preferred available H.264 encoder.
func BestH264Encoder(ctx context.Context, ffmpegPath string) string {
	out, err := exec.CommandContext(ctx, ffmpegPath, "-hide_banner", "-encoders").CombinedOutput()
	if err != nil {
		logger := log.WithComponent("system")
		logger.Debug().Err(err).Msg("encoder probe failed, using software encoder")
		return SoftwareEncoder
	}
	return pickEncoder(string(out))
}

func pickEncoder(list string) string {
	available := make(map[string]bool)
	for _, line := range strings.Split(list, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			available[fields[1]] = true
		}
	}
	for _, name := range hardwareEncoders {
		if available[name] {
			return name
		}
	}
	return SoftwareEncoder
}

// FFprobePath derives the ffprobe binary that ships next to ffmpegPath.
func FFprobePath(ffmpegPath string) string {
	dir := filepath.Dir(ffmpegPath)
	if dir == "." && !strings.ContainsRune(ffmpegPath, filepath.Separator) {
		return "ffprobe"
	}
	return filepath.Join(dir, "ffprobe")
}

// ProbeDuration reads the container duration of a media file in seconds.
func ProbeDuration(ctx context.Context, ffprobePath, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, ffprobePath, "-v", "error", "-show_entries", "format=duration", "-of", "default=noprint_wrappers=1:nokey=1", path)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w: %s", path, err, bytes.TrimSpace(out))
	}
	return parseDuration(out)
}

func parseDuration(out []byte) (float64, error) {
	d, err := strconv.ParseFloat(string(bytes.TrimSpace(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", bytes.TrimSpace(out), err)
	}
	return d, nil
}

// PhotoBudget lowers max so that the decoded photos fit into fraction of the
// memory currently available. It never returns less than 1.
func PhotoBudget(max int, perPhoto uint64, fraction float64) int {
	vm, err := mem.VirtualMemory()
	if err != nil {
		logger := log.WithComponent("system")
		logger.Debug().Err(err).Msg("memory probe failed, keeping photo cap")
		return max
	}
	return budget(max, perPhoto, vm.Available, fraction)
}

func budget(max int, perPhoto, available uint64, fraction float64) int {
	if perPhoto == 0 || fraction <= 0 {
		return max
	}
	n := int(float64(available) * fraction / float64(perPhoto))
	if n < 1 {
		n = 1
	}
	if max > 0 && n > max {
		n = max
	}
	return n
}
