package pathcopy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("could not create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("could not write file: %v", err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("could not read file: %v", err)
	}
	return string(data)
}

func TestMirrorCopiesTree(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "index.html"), "home")
	writeFile(t, filepath.Join(src, "pages", "about.html"), "about")
	writeFile(t, filepath.Join(src, "media", "img", "logo.png"), "png")

	outcome, err := Mirror(context.Background(), src, dst)
	if err != nil {
		t.Fatalf("Mirror failed: %v", err)
	}
	if outcome.FilesCopied != 3 {
		t.Errorf("expected 3 copied files, got %d", outcome.FilesCopied)
	}
	if got := readFile(t, filepath.Join(dst, "pages", "about.html")); got != "about" {
		t.Errorf("unexpected file content: %q", got)
	}
}

func TestMirrorRemovesExtraneousEntries(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "keep.html"), "new")
	writeFile(t, filepath.Join(dst, "keep.html"), "old")
	writeFile(t, filepath.Join(dst, "stale.html"), "stale")
	writeFile(t, filepath.Join(dst, "stale-dir", "nested.html"), "stale")

	outcome, err := Mirror(context.Background(), src, dst)
	if err != nil {
		t.Fatalf("Mirror failed: %v", err)
	}

	if got := readFile(t, filepath.Join(dst, "keep.html")); got != "new" {
		t.Errorf("expected overwrite, got %q", got)
	}
	if _, err := os.Stat(filepath.Join(dst, "stale.html")); !os.IsNotExist(err) {
		t.Error("expected stale file to be removed")
	}
	if _, err := os.Stat(filepath.Join(dst, "stale-dir")); !os.IsNotExist(err) {
		t.Error("expected stale directory to be removed")
	}
	if outcome.FilesDeleted != 2 {
		t.Errorf("expected 2 deleted entries, got %d", outcome.FilesDeleted)
	}
}

func TestMirrorCreatesDestination(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), "a")
	dst := filepath.Join(t.TempDir(), "fresh", "copy")

	if _, err := Mirror(context.Background(), src, dst); err != nil {
		t.Fatalf("Mirror failed: %v", err)
	}
	if got := readFile(t, filepath.Join(dst, "a.txt")); got != "a" {
		t.Errorf("unexpected file content: %q", got)
	}
}

func TestMirrorMissingSourceFails(t *testing.T) {
	if _, err := Mirror(context.Background(), filepath.Join(t.TempDir(), "nope"), t.TempDir()); err == nil {
		t.Error("expected error for missing source")
	}
}

func TestMirrorCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), "a")

	if _, err := Mirror(ctx, src, t.TempDir()); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestMirrorPreservesModTime(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	path := filepath.Join(src, "page.html")
	writeFile(t, path, "content")

	srcInfo, err := os.Stat(path)
	if err != nil {
		t.Fatalf("could not stat source: %v", err)
	}

	if _, err := Mirror(context.Background(), src, dst); err != nil {
		t.Fatalf("Mirror failed: %v", err)
	}

	dstInfo, err := os.Stat(filepath.Join(dst, "page.html"))
	if err != nil {
		t.Fatalf("could not stat copy: %v", err)
	}
	if !dstInfo.ModTime().Equal(srcInfo.ModTime()) {
		t.Errorf("expected mod time %v, got %v", srcInfo.ModTime(), dstInfo.ModTime())
	}
}
