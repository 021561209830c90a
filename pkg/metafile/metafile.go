// Package metafile writes and reads the publish receipt stored beside a
// site's archive artifacts. The receipt records what the last successful
// publish did; tooling and operators use it to answer "when did this site
// last go out, and with what" without trawling logs.
package metafile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"pixelgardenlabs.io/pgl-publish/pkg/util"
)

// MetaFileName is the receipt file name inside a site's archive directory.
const MetaFileName = ".pgl-publish.meta.json"

// formatVersion guards against silently misreading future receipt layouts.
const formatVersion = 1

// Receipt is the durable record of one completed publish.
type Receipt struct {
	Version     int       `json:"version"`
	RunID       string    `json:"runId"`
	Site        string    `json:"site"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
	ArchivePath string    `json:"archivePath"`
	// ArchiveFormat is the string form of the artifact format.
	ArchiveFormat string `json:"archiveFormat"`
	// FilesTransferred counts files pushed to the remote server.
	FilesTransferred int `json:"filesTransferred"`
	// WikiSynced records whether the wiki round trip ran in this publish.
	WikiSynced bool `json:"wikiSynced"`
}

// Write stores the receipt in dir. The write goes through a temp file and a
// rename; a crash mid-write never corrupts the previous receipt.
func Write(dir string, receipt Receipt) error {
	receipt.Version = formatVersion

	data, err := json.MarshalIndent(receipt, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal publish receipt: %w", err)
	}

	if err := os.MkdirAll(dir, util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("could not create receipt directory %s: %w", dir, err)
	}

	finalPath := filepath.Join(dir, MetaFileName)
	tempPath := finalPath + ".tmp"
	if err := os.WriteFile(tempPath, data, util.UserWritableFilePerms); err != nil {
		return fmt.Errorf("could not write publish receipt: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("could not finalize publish receipt: %w", err)
	}
	return nil
}

// Read loads the receipt from dir. A missing receipt is reported via
// os.IsNotExist on the returned error.
func Read(dir string) (Receipt, error) {
	path := filepath.Join(dir, MetaFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return Receipt{}, err
	}

	var receipt Receipt
	if err := json.Unmarshal(data, &receipt); err != nil {
		return Receipt{}, fmt.Errorf("could not parse publish receipt %s: %w", path, err)
	}
	if receipt.Version > formatVersion {
		return Receipt{}, fmt.Errorf("publish receipt %s has unsupported version %d", path, receipt.Version)
	}
	return receipt, nil
}
