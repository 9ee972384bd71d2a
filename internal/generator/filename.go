package generator

import "strings"

// Filename is the download name for a cruise video: cruise-<id>.mp4 with the
// id reduced to lowercase letters, digits, '-' and '_'.
func Filename(cruiseID string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(cruiseID) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	id := strings.TrimRight(b.String(), "-")
	if id == "" {
		id = "video"
	}
	return "cruise-" + id + ".mp4"
}
