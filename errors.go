package bgmask

import (
	"github.com/setanarut/bgmask/utils"
)

// DecodeError and EncodeError are defined next to the I/O helpers that
// produce them; they are aliased here so callers only need this package.
type (
	DecodeError = utils.DecodeError
	EncodeError = utils.EncodeError
)

// DiscoveryError reports a path under the root that could not be traversed.
// It ends a batch.
type DiscoveryError struct {
	Path string
	Err  error
}

func (e *DiscoveryError) Error() string { return "discover " + e.Path + ": " + e.Err.Error() }
func (e *DiscoveryError) Unwrap() error { return e.Err }
