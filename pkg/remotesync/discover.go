package remotesync

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"pixelgardenlabs.io/pgl-publish/pkg/plog"
)

// clientBinaryName is the console binary of the external transfer client.
func clientBinaryName() string {
	if runtime.GOOS == "windows" {
		return "winscp.com"
	}
	return "winscp"
}

// commonClientPaths lists well-known install locations checked after the
// configured path and before $PATH.
func commonClientPaths() []string {
	if runtime.GOOS != "windows" {
		return nil
	}
	paths := []string{
		`C:\Program Files (x86)\WinSCP\winscp.com`,
		`C:\Program Files\WinSCP\winscp.com`,
	}
	if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
		paths = append(paths, filepath.Join(localAppData, "Programs", "WinSCP", "winscp.com"))
	}
	return paths
}

// DiscoverClient locates the transfer client binary. The configured path
// wins; otherwise common install locations and then $PATH are searched.
// When discovery succeeds away from the configured path, the result is
// reported through persist so the config can remember it for the next run.
func DiscoverClient(configuredPath string, persist func(path string)) (string, error) {
	if configuredPath != "" {
		if isFile(configuredPath) {
			return configuredPath, nil
		}
		plog.Warn("Configured transfer client path is invalid", "path", configuredPath)
	}

	for _, path := range commonClientPaths() {
		if isFile(path) {
			plog.Debug("Found transfer client in common location", "path", path)
			if persist != nil {
				persist(path)
			}
			return path, nil
		}
	}

	if path, err := exec.LookPath(clientBinaryName()); err == nil {
		plog.Debug("Found transfer client in PATH", "path", path)
		if persist != nil {
			persist(path)
		}
		return path, nil
	}

	return "", fmt.Errorf("transfer client %q not found in configured path, common locations or PATH", clientBinaryName())
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
