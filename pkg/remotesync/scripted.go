package remotesync

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"pixelgardenlabs.io/pgl-publish/pkg/plog"
)

// transcriptTailLines bounds how much client output is kept for diagnostics.
const transcriptTailLines = 40

// ScriptedSyncer drives the external transfer client through a generated
// script file. One instance is safe for sequential reuse across steps of a
// run; it holds no per-operation state.
type ScriptedSyncer struct {
	clientPath string
	endpoint   Endpoint
	// onOutput receives each client output line as it arrives. Optional.
	onOutput func(line string)
}

func NewScriptedSyncer(clientPath string, endpoint Endpoint, onOutput func(line string)) *ScriptedSyncer {
	return &ScriptedSyncer{
		clientPath: clientPath,
		endpoint:   endpoint,
		onOutput:   onOutput,
	}
}

// Synchronize runs one mirror operation. The script file holds credentials,
// so it is created with owner-only permissions and removed as soon as the
// client exits.
func (s *ScriptedSyncer) Synchronize(ctx context.Context, task SyncTask) (SyncOutcome, error) {
	if err := ctx.Err(); err != nil {
		return SyncOutcome{}, err
	}
	if _, err := NewExclusionSet(task.Excludes); err != nil {
		return SyncOutcome{}, err
	}

	scriptPath, err := writeScriptFile(buildScript(s.endpoint, task))
	if err != nil {
		return SyncOutcome{}, err
	}
	defer os.Remove(scriptPath)

	plog.Info("Starting remote synchronization",
		"direction", task.Direction.String(),
		"local", task.LocalPath,
		"remote", task.RemotePath,
	)

	// The client is started without the context's kill switch: a transfer
	// interrupted halfway leaves the remote tree in a mixed state, which is
	// worse than letting the running step finish. Cancellation takes effect
	// before the next step begins.
	cmd := exec.Command(s.clientPath, "/ini=nul", fmt.Sprintf("/script=%s", scriptPath))
	configureProcAttributes(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return SyncOutcome{}, fmt.Errorf("could not attach to transfer client output: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return SyncOutcome{}, fmt.Errorf("could not start transfer client %s: %w", s.clientPath, err)
	}

	outcome := s.consumeOutput(stdout)

	waitErr := cmd.Wait()
	if waitErr != nil {
		return outcome, classifyFailure(outcome, waitErr)
	}

	plog.Info("Synchronization finished",
		"direction", task.Direction.String(),
		"transferred", outcome.FilesTransferred,
		"deleted", outcome.FilesDeleted,
	)
	return outcome, nil
}

// consumeOutput streams client output, counting transfer activity and
// keeping a bounded tail for diagnostics.
func (s *ScriptedSyncer) consumeOutput(r io.Reader) SyncOutcome {
	var outcome SyncOutcome
	tail := make([]string, 0, transcriptTailLines)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if s.onOutput != nil {
			s.onOutput(line)
		}
		switch {
		case isTransferLine(line):
			outcome.FilesTransferred++
		case isDeleteLine(line):
			outcome.FilesDeleted++
		}
		if len(tail) == transcriptTailLines {
			tail = tail[1:]
		}
		tail = append(tail, line)
	}

	outcome.Transcript = strings.Join(tail, "\n")
	return outcome
}

// classifyFailure maps client output and exit status onto the package's
// failure kinds. Anything that transferred at least one file before failing
// left the two sides disagreeing and is therefore a partial transfer.
func classifyFailure(outcome SyncOutcome, waitErr error) error {
	transcript := strings.ToLower(outcome.Transcript)

	switch {
	case containsAny(transcript, "access denied", "authentication failed", "password authentication", "login incorrect"):
		return fmt.Errorf("%w: %v", ErrAuthFailed, waitErr)
	case outcome.FilesTransferred > 0 || outcome.FilesDeleted > 0:
		return fmt.Errorf("%w after %d file(s): %v", ErrPartialTransfer, outcome.FilesTransferred, waitErr)
	case containsAny(transcript, "connection failed", "connection refused", "timed out", "host does not exist", "network error", "lost connection"):
		return fmt.Errorf("%w: %v", ErrConnectionFailed, waitErr)
	default:
		return fmt.Errorf("%w: %v", ErrConnectionFailed, waitErr)
	}
}

func isTransferLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	// Transfer progress lines end in a percentage, e.g. "index.html | 12 KB | 100%".
	return strings.HasSuffix(trimmed, "%") && strings.Contains(trimmed, "|")
}

func isDeleteLine(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "Removing ")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func writeScriptFile(content string) (string, error) {
	f, err := os.CreateTemp("", "pgl-publish-*.txt")
	if err != nil {
		return "", fmt.Errorf("could not create script file: %w", err)
	}
	if err := f.Chmod(0o600); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("could not restrict script file permissions: %w", err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("could not write script file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("could not close script file: %w", err)
	}
	return f.Name(), nil
}
