// Package lockfile guards an export directory against concurrent publish runs
// from any process on any machine that can see the directory. A second
// invocation for the same site is rejected with ErrLockActive rather than
// queued, so the operator always knows which run owns the target.
package lockfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"pixelgardenlabs.io/pgl-publish/pkg/plog"
	"pixelgardenlabs.io/pgl-publish/pkg/util"
)

// LockFileName is the name of the lock file created in the export directory.
// The '~' prefix marks it as temporary.
const LockFileName = ".~pgl-publish.lock"

// LockContent defines the structure of the data written to the lock file.
type LockContent struct {
	PID        int64     `json:"pid"`
	Hostname   string    `json:"hostname"`
	Site       string    `json:"site"`
	LastUpdate time.Time `json:"lastUpdate"`
}

// ErrLockActive is a structured error returned when a lock is already held by another process.
type ErrLockActive struct {
	PID       int64
	Hostname  string
	Site      string
	TimeSince time.Duration
}

func (e *ErrLockActive) Error() string {
	return fmt.Sprintf("a publish for site %q is already running, held by PID %d on host %q, last updated %s ago",
		e.Site, e.PID, e.Hostname, e.TimeSince.Truncate(time.Second))
}

// These are vars to allow modification during testing.
var (
	heartbeatInterval = 30 * time.Second
	// staleTimeout is defined in relation to the heartbeat to ensure a safe margin.
	staleTimeout = 4 * heartbeatInterval
)

// Lock manages the state of an acquired lock file.
type Lock struct {
	path    string
	content LockContent
	cancel  context.CancelFunc
	mu      sync.Mutex
	held    bool
}

// Acquire attempts to create the lock file in dirPath. It returns
// (nil, *ErrLockActive) if another live run holds the lock. A lock whose
// timestamp has not been refreshed within the stale timeout is considered
// abandoned and taken over.
func Acquire(ctx context.Context, dirPath, site string) (*Lock, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	absLockFilePath := filepath.Join(dirPath, LockFileName)

	lock, err := tryAcquire(absLockFilePath, site)
	if err == nil {
		lock.startHeartbeat()
		return lock, nil
	}
	if !os.IsExist(err) {
		return nil, fmt.Errorf("failed to access lock file: %w", err)
	}

	// The file exists. Decide whether its holder is still alive.
	content, readErr := readLockContent(absLockFilePath)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			// Holder released between our create attempt and the read. One retry.
			lock, err := tryAcquire(absLockFilePath, site)
			if err != nil {
				return nil, fmt.Errorf("failed to re-acquire released lock: %w", err)
			}
			lock.startHeartbeat()
			return lock, nil
		}
		// Unreadable or corrupt content is treated as stale.
		plog.Warn("Found unreadable lock file, treating as stale", "path", absLockFilePath, "error", readErr)
	} else {
		elapsed := time.Since(content.LastUpdate)
		if elapsed < staleTimeout {
			return nil, &ErrLockActive{
				PID:       content.PID,
				Hostname:  content.Hostname,
				Site:      content.Site,
				TimeSince: elapsed,
			}
		}
		plog.Warn("Found stale lock, taking over", "pid", content.PID, "age", elapsed.Truncate(time.Second))
	}

	lock, err = takeover(absLockFilePath, site)
	if err != nil {
		return nil, err
	}
	lock.startHeartbeat()
	return lock, nil
}

// tryAcquire attempts atomic creation using O_EXCL to guarantee "I created this file first".
func tryAcquire(absLockFilePath, site string) (*Lock, error) {
	f, err := os.OpenFile(absLockFilePath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, util.UserWritableFilePerms)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	content, err := newLockContent(site)
	if err != nil {
		return nil, err
	}

	l := &Lock{path: absLockFilePath, content: content, held: true}
	if err := writeLockContent(f, content); err != nil {
		l.removeFile()
		return nil, err
	}
	return l, nil
}

// takeover replaces a stale lock file atomically via temp file + rename.
func takeover(absLockFilePath, site string) (*Lock, error) {
	content, err := newLockContent(site)
	if err != nil {
		return nil, err
	}
	if err := updateLockFileAtomic(absLockFilePath, content); err != nil {
		return nil, err
	}

	// Read back to confirm we won any concurrent takeover race.
	readback, err := readLockContent(absLockFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read back lock file after takeover: %w", err)
	}
	if readback.PID != content.PID || readback.Hostname != content.Hostname {
		return nil, &ErrLockActive{
			PID:       readback.PID,
			Hostname:  readback.Hostname,
			Site:      readback.Site,
			TimeSince: time.Since(readback.LastUpdate),
		}
	}
	return &Lock{path: absLockFilePath, content: content, held: true}, nil
}

func newLockContent(site string) (LockContent, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return LockContent{}, fmt.Errorf("could not determine hostname: %w", err)
	}
	return LockContent{
		PID:        int64(os.Getpid()),
		Hostname:   hostname,
		Site:       site,
		LastUpdate: time.Now().UTC(),
	}, nil
}

// startHeartbeat refreshes the lock timestamp so long transfers are not
// mistaken for abandoned runs by another invocation.
func (l *Lock) startHeartbeat() {
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel

	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.mu.Lock()
				l.content.LastUpdate = time.Now().UTC()
				content := l.content
				l.mu.Unlock()
				if err := updateLockFileAtomic(l.path, content); err != nil {
					plog.Warn("Heartbeat failed to update lock file", "error", err)
					// Try again next tick.
				}
			}
		}
	}()
}

// Release stops the heartbeat and removes the lock file. Safe to call twice.
func (l *Lock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return
	}
	if l.cancel != nil {
		l.cancel()
	}
	l.removeFile()
	l.held = false
}

func (l *Lock) removeFile() {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		plog.Warn("Failed to remove lock file", "path", l.path, "error", err)
	}
}

// updateLockFileAtomic writes the content to a temporary file in the same
// directory and renames it over the target, so the lock file is never
// observed empty or half-written.
func updateLockFileAtomic(absLockFilePath string, content LockContent) error {
	dir := filepath.Dir(absLockFilePath)
	tmpF, err := os.CreateTemp(dir, filepath.Base(absLockFilePath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp lock file: %w", err)
	}
	defer func() {
		if err := os.Remove(tmpF.Name()); err != nil && !os.IsNotExist(err) {
			plog.Warn("Failed to remove temporary lock file", "path", tmpF.Name(), "error", err)
		}
	}()

	if err := writeLockContent(tmpF, content); err != nil {
		tmpF.Close()
		return err
	}
	if err := tmpF.Sync(); err != nil {
		tmpF.Close()
		return err
	}
	if err := tmpF.Close(); err != nil {
		return fmt.Errorf("failed to close temp lock file: %w", err)
	}
	if err := os.Rename(tmpF.Name(), absLockFilePath); err != nil {
		return fmt.Errorf("failed to rename temp file to lock file: %w", err)
	}
	return nil
}

func writeLockContent(w io.Writer, content LockContent) error {
	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal lock content: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write lock content: %w", err)
	}
	return nil
}

func readLockContent(absLockFilePath string) (LockContent, error) {
	data, err := os.ReadFile(absLockFilePath)
	if err != nil {
		return LockContent{}, err
	}
	if len(data) == 0 {
		return LockContent{}, errors.New("lock file is empty")
	}
	var content LockContent
	if err := json.Unmarshal(data, &content); err != nil {
		return LockContent{}, fmt.Errorf("could not parse lock file %s: %w", absLockFilePath, err)
	}
	return content, nil
}
