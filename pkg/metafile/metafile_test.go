package metafile

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteAndRead(t *testing.T) {
	dir := t.TempDir()
	started := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)

	receipt := Receipt{
		RunID:            "0c6c6f2e-9d3c-4a46-9e1c-2f6a1b7c8d9e",
		Site:             "blog",
		StartedAt:        started,
		FinishedAt:       started.Add(2 * time.Minute),
		ArchivePath:      "/archives/blog/blog_2026-08-31.zip",
		ArchiveFormat:    "zip",
		FilesTransferred: 42,
		WikiSynced:       true,
	}
	if err := Write(dir, receipt); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	loaded, err := Read(dir)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if loaded.Version != 1 {
		t.Errorf("expected version to be stamped, got %d", loaded.Version)
	}
	if loaded.RunID != receipt.RunID || loaded.Site != "blog" {
		t.Errorf("receipt fields not preserved: %+v", loaded)
	}
	if !loaded.FinishedAt.Equal(receipt.FinishedAt) {
		t.Errorf("expected finish time %v, got %v", receipt.FinishedAt, loaded.FinishedAt)
	}
	if !loaded.WikiSynced {
		t.Error("expected wiki sync flag to be preserved")
	}
}

func TestWriteOverwritesPrevious(t *testing.T) {
	dir := t.TempDir()
	if err := Write(dir, Receipt{RunID: "first", Site: "blog"}); err != nil {
		t.Fatalf("first Write failed: %v", err)
	}
	if err := Write(dir, Receipt{RunID: "second", Site: "blog"}); err != nil {
		t.Fatalf("second Write failed: %v", err)
	}

	loaded, err := Read(dir)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if loaded.RunID != "second" {
		t.Errorf("expected latest receipt, got run %q", loaded.RunID)
	}
}

func TestReadMissingReceipt(t *testing.T) {
	_, err := Read(t.TempDir())
	if !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestReadCorruptReceipt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, MetaFileName), []byte("{broken"), 0o644); err != nil {
		t.Fatalf("could not write corrupt receipt: %v", err)
	}
	if _, err := Read(dir); err == nil {
		t.Error("expected error for corrupt receipt")
	}
}

func TestReadFutureVersionRejected(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, MetaFileName), []byte(`{"version": 99}`), 0o644); err != nil {
		t.Fatalf("could not write receipt: %v", err)
	}
	if _, err := Read(dir); err == nil {
		t.Error("expected error for future receipt version")
	}
}
