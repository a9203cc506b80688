package bgmask

import (
	"errors"
	"io/fs"
	"iter"
	"path/filepath"
	"strings"
)

// errStop unwinds WalkDir when the consumer stops iterating.
var errStop = errors.New("walk stopped")

// IsImagePath reports whether path names a PNG file (extension compared case-insensitively).
func IsImagePath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".png")
}

// Walk yields every PNG file under root in lexical order. A directory that
// cannot be read is yielded once as a *DiscoveryError and the walk ends.
// The sequence can be ranged over again to rescan the tree.
func Walk(root string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return &DiscoveryError{Path: path, Err: err}
			}
			if d.IsDir() || !IsImagePath(path) {
				return nil
			}
			if !yield(path, nil) {
				return errStop
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStop) {
			yield("", err)
		}
	}
}
