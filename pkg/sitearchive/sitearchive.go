// Package sitearchive creates dated archive artifacts of a published export
// directory. Artifacts are named {site}_{YYYY-MM-DD} with the format's
// extension and written through a temporary file, so an interrupted run
// never leaves a truncated artifact under the final name.
package sitearchive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"pixelgardenlabs.io/pgl-publish/pkg/plog"
	"pixelgardenlabs.io/pgl-publish/pkg/util"
)

var (
	// ErrArchiveExists is returned under the reject collision policy when an
	// artifact for the same site and day is already present.
	ErrArchiveExists = errors.New("archive for this day already exists")
	// ErrInsufficientDiskSpace is returned when the destination filesystem
	// cannot hold the new artifact.
	ErrInsufficientDiskSpace = errors.New("insufficient disk space for archive")
)

// freeSpaceMargin is headroom kept beyond the estimated artifact size.
const freeSpaceMargin = 64 << 20

// ArchiveTask describes one archive operation.
type ArchiveTask struct {
	Site      string
	SourceDir string
	// DestDir is the per-site archive directory the artifact goes into.
	DestDir   string
	Format    Format
	Collision CollisionPolicy
	// Keep limits how many dated artifacts remain after this one. 0 keeps all.
	Keep int
}

// ArchiveResult describes the artifact that was written.
type ArchiveResult struct {
	Path      string
	SizeBytes int64
	FileCount int
}

// Archiver writes dated artifacts. The clock is injectable for tests.
type Archiver struct {
	now func() time.Time
}

func NewArchiver() *Archiver {
	return &Archiver{now: time.Now}
}

// ArchiveFileName returns the deterministic artifact name for a site and day.
func ArchiveFileName(site string, day time.Time, format Format) string {
	return fmt.Sprintf("%s_%s%s", site, day.Format("2006-01-02"), format.Extension())
}

// Create archives the source directory into the destination. Re-running on
// the same day follows the collision policy: overwrite converges on the
// latest content, reject keeps the existing artifact and fails the step.
func (a *Archiver) Create(ctx context.Context, task ArchiveTask) (ArchiveResult, error) {
	if err := ctx.Err(); err != nil {
		return ArchiveResult{}, err
	}

	if err := os.MkdirAll(task.DestDir, util.UserWritableDirPerms); err != nil {
		return ArchiveResult{}, fmt.Errorf("could not create archive directory %s: %w", task.DestDir, err)
	}

	name := ArchiveFileName(task.Site, a.now(), task.Format)
	finalPath := filepath.Join(task.DestDir, name)

	if _, err := os.Stat(finalPath); err == nil && task.Collision == CollisionReject {
		return ArchiveResult{}, fmt.Errorf("%w: %s", ErrArchiveExists, finalPath)
	}

	sourceSize, err := dirSize(task.SourceDir)
	if err != nil {
		return ArchiveResult{}, fmt.Errorf("could not measure export directory %s: %w", task.SourceDir, err)
	}
	free, err := availableSpace(task.DestDir)
	if err != nil {
		plog.Warn("Could not determine free disk space", "path", task.DestDir, "error", err)
	} else if free < uint64(sourceSize)+freeSpaceMargin {
		return ArchiveResult{}, fmt.Errorf("%w: need about %d bytes, %d available", ErrInsufficientDiskSpace, sourceSize, free)
	}

	tempPath := filepath.Join(task.DestDir, "."+name+".partial")
	defer os.Remove(tempPath)

	plog.Info("Creating archive", "site", task.Site, "path", finalPath, "format", task.Format.String())

	var fileCount int
	switch task.Format {
	case FormatZip:
		fileCount, err = writeZip(ctx, tempPath, task.SourceDir)
	case FormatTarGz:
		fileCount, err = writeTarGz(ctx, tempPath, task.SourceDir)
	default:
		return ArchiveResult{}, fmt.Errorf("unsupported archive format: %s", task.Format)
	}
	if err != nil {
		return ArchiveResult{}, err
	}

	if err := os.Rename(tempPath, finalPath); err != nil {
		return ArchiveResult{}, fmt.Errorf("could not finalize archive %s: %w", finalPath, err)
	}

	info, err := os.Stat(finalPath)
	if err != nil {
		return ArchiveResult{}, fmt.Errorf("could not stat archive %s: %w", finalPath, err)
	}

	if task.Keep > 0 {
		if pruned, err := pruneOldArchives(task.DestDir, task.Site, task.Keep); err != nil {
			plog.Warn("Archive retention pruning failed", "error", err)
		} else if pruned > 0 {
			plog.Info("Pruned old archives", "site", task.Site, "count", pruned)
		}
	}

	plog.Info("Archive created", "path", finalPath, "sizeBytes", info.Size(), "files", fileCount)
	return ArchiveResult{Path: finalPath, SizeBytes: info.Size(), FileCount: fileCount}, nil
}

var archiveNamePattern = regexp.MustCompile(`^(.+)_(\d{4}-\d{2}-\d{2})\.(zip|tar\.gz)$`)

// pruneOldArchives removes dated artifacts for the site beyond the newest
// keep. Files that do not follow the artifact naming stay untouched.
func pruneOldArchives(destDir, site string, keep int) (int, error) {
	entries, err := os.ReadDir(destDir)
	if err != nil {
		return 0, err
	}

	var dated []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := archiveNamePattern.FindStringSubmatch(e.Name())
		if m == nil || m[1] != site {
			continue
		}
		dated = append(dated, e.Name())
	}

	// The date sits in a sortable position, so lexical order is
	// chronological order.
	sort.Sort(sort.Reverse(sort.StringSlice(dated)))

	pruned := 0
	for _, name := range dated[min(keep, len(dated)):] {
		if err := os.Remove(filepath.Join(destDir, name)); err != nil {
			return pruned, err
		}
		pruned++
	}
	return pruned, nil
}

func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	return total, err
}
