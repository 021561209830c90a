// Package wikisnapshot keeps the local wiki snapshot and the export
// directory's wiki subtree in agreement. The snapshot is the local source of
// truth between publishes; every mutation of it goes through a staged copy
// and an atomic swap so a failed run leaves the previous snapshot intact.
package wikisnapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"pixelgardenlabs.io/pgl-publish/pkg/hints"
	"pixelgardenlabs.io/pgl-publish/pkg/pathcopy"
	"pixelgardenlabs.io/pgl-publish/pkg/plog"
	"pixelgardenlabs.io/pgl-publish/pkg/util"
)

// Reconciler moves wiki content between the snapshot and the export tree.
type Reconciler struct{}

func NewReconciler() *Reconciler {
	return &Reconciler{}
}

// Seed overwrites the export directory's wiki subtree with the snapshot.
// A missing snapshot is an operator problem with a documented fix, so it is
// reported as a hint rather than a hard failure.
func (r *Reconciler) Seed(ctx context.Context, snapshotDir, exportWikiDir string) error {
	info, err := os.Stat(snapshotDir)
	if err != nil {
		return hints.New(fmt.Sprintf(
			"wiki snapshot %s does not exist; run publish with --wiki-init=remote or --wiki-init-from=DIR", snapshotDir))
	}
	if !info.IsDir() {
		return fmt.Errorf("wiki snapshot path %s is not a directory", snapshotDir)
	}

	plog.Info("Seeding export wiki from snapshot", "snapshot", snapshotDir, "target", exportWikiDir)
	outcome, err := pathcopy.Mirror(ctx, snapshotDir, exportWikiDir)
	if err != nil {
		return fmt.Errorf("could not seed export wiki from snapshot: %w", err)
	}
	plog.Debug("Export wiki seeded", "copied", outcome.FilesCopied, "deleted", outcome.FilesDeleted)
	return nil
}

// UpdateSnapshot replaces the snapshot with the export directory's wiki
// subtree. The new content is staged next to the snapshot first and swapped
// in with renames, so an error anywhere before the swap leaves the snapshot
// byte for byte as it was.
func (r *Reconciler) UpdateSnapshot(ctx context.Context, exportWikiDir, snapshotDir string) error {
	if _, err := os.Stat(exportWikiDir); err != nil {
		return fmt.Errorf("export wiki directory %s is not readable: %w", exportWikiDir, err)
	}

	parent := filepath.Dir(snapshotDir)
	if err := os.MkdirAll(parent, util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("could not create snapshot parent directory %s: %w", parent, err)
	}

	// Staging and retirement directories live beside the snapshot so the
	// final renames stay on one filesystem.
	stageDir := snapshotDir + ".staging"
	retireDir := snapshotDir + ".previous"
	if err := os.RemoveAll(stageDir); err != nil {
		return fmt.Errorf("could not clear staging directory %s: %w", stageDir, err)
	}
	if err := os.RemoveAll(retireDir); err != nil {
		return fmt.Errorf("could not clear retirement directory %s: %w", retireDir, err)
	}

	plog.Info("Updating wiki snapshot", "source", exportWikiDir, "snapshot", snapshotDir)
	if _, err := pathcopy.Mirror(ctx, exportWikiDir, stageDir); err != nil {
		os.RemoveAll(stageDir)
		return fmt.Errorf("could not stage snapshot update: %w", err)
	}

	snapshotExists := false
	if _, err := os.Stat(snapshotDir); err == nil {
		snapshotExists = true
		if err := os.Rename(snapshotDir, retireDir); err != nil {
			os.RemoveAll(stageDir)
			return fmt.Errorf("could not retire current snapshot: %w", err)
		}
	}

	if err := os.Rename(stageDir, snapshotDir); err != nil {
		// Put the old snapshot back; the staged copy is the expendable side.
		if snapshotExists {
			if restoreErr := os.Rename(retireDir, snapshotDir); restoreErr != nil {
				plog.Error("Could not restore previous snapshot", "path", retireDir, "error", restoreErr)
			}
		}
		os.RemoveAll(stageDir)
		return fmt.Errorf("could not activate staged snapshot: %w", err)
	}

	if err := os.RemoveAll(retireDir); err != nil {
		plog.Warn("Could not remove retired snapshot", "path", retireDir, "error", err)
	}

	plog.Info("Wiki snapshot updated", "snapshot", snapshotDir)
	return nil
}

// PrepareFresh creates an empty snapshot directory for a first publish that
// will pull the wiki content from the remote server.
func (r *Reconciler) PrepareFresh(snapshotDir string) error {
	if info, err := os.Stat(snapshotDir); err == nil {
		if !info.IsDir() {
			return fmt.Errorf("snapshot path %s exists and is not a directory", snapshotDir)
		}
		plog.Debug("Snapshot directory already present", "path", snapshotDir)
		return nil
	}
	if err := os.MkdirAll(snapshotDir, util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("could not create snapshot directory %s: %w", snapshotDir, err)
	}
	plog.Info("Created empty wiki snapshot", "path", snapshotDir)
	return nil
}

// AdoptFolder initializes the snapshot from an existing wiki folder. It
// refuses to overwrite an existing snapshot; reinitializing must be an
// explicit operator decision, not a flag typo.
func (r *Reconciler) AdoptFolder(ctx context.Context, sourceDir, snapshotDir string) error {
	if _, err := os.Stat(snapshotDir); err == nil {
		return fmt.Errorf("wiki snapshot %s already exists; remove it first to adopt a different folder", snapshotDir)
	}

	info, err := os.Stat(sourceDir)
	if err != nil {
		return fmt.Errorf("adoption source %s is not readable: %w", sourceDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("adoption source %s is not a directory", sourceDir)
	}

	plog.Info("Adopting wiki folder as snapshot", "source", sourceDir, "snapshot", snapshotDir)
	if _, err := pathcopy.Mirror(ctx, sourceDir, snapshotDir); err != nil {
		os.RemoveAll(snapshotDir)
		return fmt.Errorf("could not adopt wiki folder: %w", err)
	}
	return nil
}
