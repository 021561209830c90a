package remotesync

import (
	"fmt"
	"net/url"
	"strings"
)

// Endpoint holds the connection parameters for the scripted backend.
type Endpoint struct {
	Protocol string
	Host     string
	Port     int
	Username string
	Password string
}

// openCommand builds the session open line. The password is URL-encoded so
// special characters survive the URL form the client expects.
func (e Endpoint) openCommand() string {
	sessionURL := fmt.Sprintf("%s://%s:%s@%s:%d",
		e.Protocol,
		e.Username,
		url.QueryEscape(e.Password),
		e.Host,
		e.Port,
	)
	return fmt.Sprintf(`open "%s" -passive=on -timeout=30`, sessionURL)
}

// buildScript renders the full client script for one synchronization.
// Batch mode aborts on the first unanswerable prompt so a wedged session
// fails instead of hanging.
func buildScript(endpoint Endpoint, task SyncTask) string {
	lines := []string{
		"option batch abort",
		"option confirm off",
		"option reconnecttime 15",
		endpoint.openCommand(),
		syncCommand(task),
		"exit",
	}
	return strings.Join(lines, "\n")
}

func syncCommand(task SyncTask) string {
	var b strings.Builder
	b.WriteString("synchronize ")
	switch task.Direction {
	case DirectionPush:
		b.WriteString("remote")
	case DirectionPull:
		b.WriteString("local")
	}
	if task.DeleteExtraneous {
		b.WriteString(" -delete")
	}
	if mask := filemask(task.Excludes); mask != "" {
		b.WriteString(fmt.Sprintf(` -filemask="%s"`, mask))
	}
	b.WriteString(fmt.Sprintf(` "%s" "%s"`, task.LocalPath, task.RemotePath))
	return b.String()
}

// filemask translates exclusion patterns into the client's exclude mask.
// Directory patterns keep their trailing slash; the mask syntax requires it
// to mean "the directory and its contents".
func filemask(excludes []string) string {
	if len(excludes) == 0 {
		return ""
	}
	parts := make([]string, 0, len(excludes))
	for _, p := range excludes {
		p = strings.TrimPrefix(p, "/")
		parts = append(parts, p)
	}
	return "|" + strings.Join(parts, ";")
}
