package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/ivlev/cruisereel/internal/effects"
)

var photoExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".webp": true, ".bmp": true, ".tif": true, ".tiff": true,
}

// IsPhoto reports whether name has an extension the decoder registry understands.
func IsPhoto(name string) bool {
	return photoExts[strings.ToLower(filepath.Ext(name))]
}

// Decode turns an encoded blob into an RGBA raster, downscaled once so that it
// never exceeds what a frame of size frame needs at maxScale.
func Decode(blob []byte, frame image.Point, maxScale float64) (*image.RGBA, error) {
	img, _, err := image.Decode(bytes.NewReader(blob))
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("empty image %v", b)
	}

	size := b.Size()
	if frame.X > 0 && frame.Y > 0 {
		size = effects.FitSize(size, frame, maxScale)
	}
	dst := image.NewRGBA(image.Rectangle{Max: size})
	if size == b.Size() {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return dst, nil
	}
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst, nil
}

// DirStore serves photo blobs from a directory; the id is the file name.
type DirStore struct {
	Dir string
}

func NewDirStore(dir string) (*DirStore, error) {
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	return &DirStore{Dir: dir}, nil
}

func (s *DirStore) Get(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id != filepath.Base(id) || id == "." || id == ".." {
		return nil, fmt.Errorf("invalid photo id %q", id)
	}
	data, err := os.ReadFile(filepath.Join(s.Dir, id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	return data, err
}

// List returns the photo file names in the directory, sorted.
func (s *DirStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && IsPhoto(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
