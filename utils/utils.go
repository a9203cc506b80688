package utils

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// TempPattern names in-progress saves. Its extension is not .png so a file
// left behind by an interrupted run is never picked up as input.
const TempPattern = ".bgmask-*.tmp"

// DecodeError means a file could not be opened or decoded as an image.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode %s: %v", e.Path, e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError means an image could not be encoded or written to Path.
type EncodeError struct {
	Path string
	Err  error
}

func (e *EncodeError) Error() string { return fmt.Sprintf("encode %s: %v", e.Path, e.Err) }
func (e *EncodeError) Unwrap() error { return e.Err }

// ReadImage decodes the file at path by content, so a .png file holding
// JPEG, GIF, BMP, TIFF or WebP data still loads.
func ReadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	defer file.Close()
	img, _, err := image.Decode(file)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	return img, nil
}

// SaveImage writes img as PNG. The data goes to a temporary file next to
// filename which then replaces it, so a failed encode leaves the old file intact.
// An existing file keeps its permission bits; new files get 0644.
// Missing parent directories are created.
func SaveImage(img image.Image, filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &EncodeError{Path: filename, Err: err}
	}
	perm := fs.FileMode(0o644)
	if fi, err := os.Stat(filename); err == nil && fi.Mode().IsRegular() {
		perm = fi.Mode().Perm()
	}
	f, err := os.CreateTemp(dir, TempPattern)
	if err != nil {
		return &EncodeError{Path: filename, Err: err}
	}
	tmp := f.Name()
	fail := func(err error) error {
		f.Close()
		os.Remove(tmp)
		return &EncodeError{Path: filename, Err: err}
	}
	if err := png.Encode(f, img); err != nil {
		return fail(err)
	}
	if err := f.Chmod(perm); err != nil {
		return fail(err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return &EncodeError{Path: filename, Err: err}
	}
	if err := os.Rename(tmp, filename); err != nil {
		os.Remove(tmp)
		return &EncodeError{Path: filename, Err: err}
	}
	return nil
}
