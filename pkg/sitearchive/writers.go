package sitearchive

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/pgzip"

	"pixelgardenlabs.io/pgl-publish/pkg/util"
)

// bookkeepingPatterns match transient files of the tool itself, such as the
// run lock inside the export directory. They never belong in an artifact.
var bookkeepingPatterns = []string{".~*", ".*.partial"}

func isBookkeepingFile(name string) bool {
	for _, pattern := range bookkeepingPatterns {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// writeZip archives sourceDir into a zip file at destPath. Entries use
// slash-separated paths relative to the source root, the way web servers
// and extraction tools expect them.
func writeZip(ctx context.Context, destPath, sourceDir string) (int, error) {
	out, err := os.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("could not create archive file %s: %w", destPath, err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.DefaultCompression)
	})

	count := 0
	err = walkRegularFiles(ctx, sourceDir, func(path, rel string, info fs.FileInfo) error {
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = util.NormalizePath(rel)
		header.Method = zip.Deflate

		w, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		if err := streamFile(w, path); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		zw.Close()
		return count, err
	}

	if err := zw.Close(); err != nil {
		return count, fmt.Errorf("could not finalize zip archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return count, fmt.Errorf("could not close archive file: %w", err)
	}
	return count, nil
}

// writeTarGz archives sourceDir into a gzip-compressed tarball at destPath.
func writeTarGz(ctx context.Context, destPath, sourceDir string) (int, error) {
	out, err := os.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("could not create archive file %s: %w", destPath, err)
	}
	defer out.Close()

	gz := pgzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	count := 0
	err = walkRegularFiles(ctx, sourceDir, func(path, rel string, info fs.FileInfo) error {
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = util.NormalizePath(rel)

		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if err := streamFile(tw, path); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		tw.Close()
		gz.Close()
		return count, err
	}

	if err := tw.Close(); err != nil {
		return count, fmt.Errorf("could not finalize tar stream: %w", err)
	}
	if err := gz.Close(); err != nil {
		return count, fmt.Errorf("could not finalize gzip stream: %w", err)
	}
	if err := out.Close(); err != nil {
		return count, fmt.Errorf("could not close archive file: %w", err)
	}
	return count, nil
}

// walkRegularFiles visits every regular file under sourceDir in lexical
// order, checking for cancellation between files.
func walkRegularFiles(ctx context.Context, sourceDir string, visit func(path, rel string, info fs.FileInfo) error) error {
	return filepath.WalkDir(sourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !d.Type().IsRegular() || isBookkeepingFile(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return visit(path, rel, info)
	})
}

func streamFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}
