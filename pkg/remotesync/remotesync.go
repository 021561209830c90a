// Package remotesync mirrors directory trees between the local filesystem and
// a remote server. The only shipping backend drives an external transfer
// client through a generated script file, the same way an operator would run
// it by hand; the package classifies the client's outcome into a small set of
// failure kinds the workflow engine can act on.
package remotesync

import (
	"context"
	"errors"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"pixelgardenlabs.io/pgl-publish/pkg/util"
)

// Failure kinds reported by backends. The engine treats all three as fatal
// for the step that hit them.
var (
	// ErrConnectionFailed means the remote server could not be reached.
	ErrConnectionFailed = errors.New("connection to remote server failed")
	// ErrAuthFailed means the server rejected the configured credentials.
	ErrAuthFailed = errors.New("authentication failed")
	// ErrPartialTransfer means the client ran but could not bring both sides
	// into agreement; the remote or local tree may be in a mixed state.
	ErrPartialTransfer = errors.New("transfer completed partially")
)

// SyncTask describes one mirror operation.
type SyncTask struct {
	Direction Direction
	// LocalPath is the local side of the mirror.
	LocalPath string
	// RemotePath is the absolute path on the server.
	RemotePath string
	// Excludes are glob patterns, relative to the mirror root, that are
	// left untouched on both sides.
	Excludes []string
	// DeleteExtraneous removes files on the target side that do not exist
	// on the source side, making the mirror exact.
	DeleteExtraneous bool
}

// SyncOutcome summarizes what a completed synchronization did.
type SyncOutcome struct {
	FilesTransferred int
	FilesDeleted     int
	// Transcript holds the tail of the client output for diagnostics.
	Transcript string
}

// Synchronizer mirrors a directory tree in the given direction.
type Synchronizer interface {
	Synchronize(ctx context.Context, task SyncTask) (SyncOutcome, error)
}

// ExclusionSet matches relative paths against a list of glob patterns.
// Patterns ending in '/' match the directory and everything below it.
type ExclusionSet struct {
	patterns []string
}

// NewExclusionSet compiles the patterns. Invalid patterns are reported
// immediately rather than silently never matching.
func NewExclusionSet(patterns []string) (*ExclusionSet, error) {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(normalizePattern(p)) {
			return nil, errors.New("invalid exclude pattern: " + p)
		}
	}
	return &ExclusionSet{patterns: patterns}, nil
}

// Match reports whether the slash-separated relative path is excluded.
func (e *ExclusionSet) Match(relPath string) bool {
	rel := strings.TrimPrefix(util.NormalizePath(relPath), "/")
	for _, p := range e.patterns {
		pattern := normalizePattern(p)
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
		// A directory exclusion covers everything beneath it.
		if ok, _ := doublestar.Match(pattern+"/**", rel); ok {
			return true
		}
	}
	return false
}

// Patterns returns the raw pattern list, for backends that translate the
// exclusions into their client's own mask syntax.
func (e *ExclusionSet) Patterns() []string {
	return e.patterns
}

func normalizePattern(p string) string {
	p = util.NormalizePath(p)
	p = strings.TrimPrefix(p, "/")
	return strings.TrimSuffix(p, "/")
}
