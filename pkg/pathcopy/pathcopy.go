// Package pathcopy copies directory trees on the local filesystem. Mirror
// makes the destination an exact copy of the source, including the removal
// of destination entries the source does not have.
package pathcopy

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"pixelgardenlabs.io/pgl-publish/pkg/plog"
	"pixelgardenlabs.io/pgl-publish/pkg/util"
)

// Outcome reports what a mirror operation did.
type Outcome struct {
	FilesCopied  int
	FilesDeleted int
}

// Mirror copies srcDir into dstDir and deletes everything in dstDir that has
// no counterpart in srcDir. File copies run concurrently; the delete pass
// runs only after every copy finished so a failed run never removes data it
// did not replace.
func Mirror(ctx context.Context, srcDir, dstDir string) (Outcome, error) {
	info, err := os.Stat(srcDir)
	if err != nil {
		return Outcome{}, fmt.Errorf("could not read source directory %s: %w", srcDir, err)
	}
	if !info.IsDir() {
		return Outcome{}, fmt.Errorf("source path %s is not a directory", srcDir)
	}

	if err := os.MkdirAll(dstDir, util.UserWritableDirPerms); err != nil {
		return Outcome{}, fmt.Errorf("could not create destination directory %s: %w", dstDir, err)
	}

	wanted, copied, err := copyTree(ctx, srcDir, dstDir)
	if err != nil {
		return Outcome{FilesCopied: copied}, err
	}

	deleted, err := pruneExtraneous(dstDir, wanted)
	if err != nil {
		return Outcome{FilesCopied: copied, FilesDeleted: deleted}, err
	}

	plog.Debug("Mirror finished", "src", srcDir, "dst", dstDir, "copied", copied, "deleted", deleted)
	return Outcome{FilesCopied: copied, FilesDeleted: deleted}, nil
}

// copyTree walks srcDir and copies every regular file into dstDir. It
// returns the set of relative paths the destination must end up with.
func copyTree(ctx context.Context, srcDir, dstDir string) (map[string]bool, int, error) {
	wanted := map[string]bool{}
	var copied atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	err := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if gctx.Err() != nil {
			return gctx.Err()
		}

		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		wanted[rel] = true

		target := filepath.Join(dstDir, rel)
		if d.IsDir() {
			return os.MkdirAll(target, util.UserWritableDirPerms)
		}
		if !d.Type().IsRegular() {
			plog.Warn("Skipping irregular file", "path", path)
			return nil
		}

		g.Go(func() error {
			if err := copyFile(path, target); err != nil {
				return err
			}
			copied.Add(1)
			return nil
		})
		return nil
	})

	if gerr := g.Wait(); gerr != nil && err == nil {
		err = gerr
	}
	return wanted, int(copied.Load()), err
}

// copyFile copies one regular file, preserving its modification time so
// timestamp-based comparisons keep working on the copy.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("could not open %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("could not stat %s: %w", src, err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("could not create directory for %s: %w", dst, err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("could not create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("could not copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("could not finalize %s: %w", dst, err)
	}

	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

// pruneExtraneous removes destination entries that are not in the wanted
// set. Deeper paths are removed first so directories empty out before their
// own removal.
func pruneExtraneous(dstDir string, wanted map[string]bool) (int, error) {
	var extraneous []string
	err := filepath.WalkDir(dstDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dstDir, path)
		if err != nil {
			return err
		}
		if rel == "." || wanted[rel] {
			return nil
		}
		extraneous = append(extraneous, path)
		if d.IsDir() {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	sort.Sort(sort.Reverse(sort.StringSlice(extraneous)))

	deleted := 0
	for _, path := range extraneous {
		if err := os.RemoveAll(path); err != nil {
			return deleted, fmt.Errorf("could not remove extraneous path %s: %w", path, err)
		}
		deleted++
	}
	return deleted, nil
}
