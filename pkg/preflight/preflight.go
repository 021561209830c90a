// Package preflight validates that a site profile is actually publishable
// before any remote or local state is touched. Checks run in a fixed order,
// grouped into categories; the first failing category stops the run so the
// operator sees the earliest real problem instead of a wall of follow-on
// errors. Within a category every finding is collected.
package preflight

import (
	"context"
	"fmt"
	"os"
	"strings"

	"pixelgardenlabs.io/pgl-publish/pkg/config"
	"pixelgardenlabs.io/pgl-publish/pkg/plog"
)

// Finding is one concrete problem discovered during validation.
type Finding struct {
	Severity Severity `json:"severity"`
	Category string   `json:"category"`
	Message  string   `json:"message"`
	// Remedy tells the operator what to do about it, when there is a
	// documented action. Empty for plain fatal findings.
	Remedy string `json:"remedy,omitempty"`
}

func (f Finding) String() string {
	if f.Remedy != "" {
		return fmt.Sprintf("[%s] %s: %s (%s)", f.Severity, f.Category, f.Message, f.Remedy)
	}
	return fmt.Sprintf("[%s] %s: %s", f.Severity, f.Category, f.Message)
}

// Report is the outcome of a validation pass.
type Report struct {
	Findings []Finding `json:"findings"`
}

// OK reports whether the profile passed every check.
func (r Report) OK() bool {
	return len(r.Findings) == 0
}

// ActionRequired reports whether every finding is resolvable by a documented
// operator action rather than being outright fatal.
func (r Report) ActionRequired() bool {
	if len(r.Findings) == 0 {
		return false
	}
	for _, f := range r.Findings {
		if f.Severity != SeverityActionRequired {
			return false
		}
	}
	return true
}

// ClientLocator resolves the external transfer client binary. It matches the
// discovery function of the transfer layer so the validator exercises the
// same lookup the publish itself will use.
type ClientLocator func() (string, error)

// ValidateTask carries everything a validation pass needs.
type ValidateTask struct {
	Profile      config.SiteProfile
	LocateClient ClientLocator
	// AllowMissingWikiSnapshot downgrades nothing; it skips the snapshot
	// presence check entirely because the run was started with an explicit
	// first-time initialization mode.
	AllowMissingWikiSnapshot bool
}

// Validator runs preflight checks for site profiles.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// Run executes the checks in order and returns the collected findings. The
// returned error is reserved for environmental failures of the validator
// itself; problems with the profile are reported as findings.
func (v *Validator) Run(ctx context.Context, task ValidateTask) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	categories := []func(ValidateTask) []Finding{
		v.checkExportDir,
		v.checkTransferClient,
		v.checkCredentials,
		v.checkWikiSnapshot,
	}

	for _, category := range categories {
		findings := category(task)
		if len(findings) > 0 {
			for _, f := range findings {
				plog.Warn("Preflight finding", "severity", f.Severity.String(), "category", f.Category, "message", f.Message)
			}
			return Report{Findings: findings}, nil
		}
	}

	plog.Debug("Preflight passed", "site", task.Profile.Name)
	return Report{}, nil
}

func (v *Validator) checkExportDir(task ValidateTask) []Finding {
	dir := task.Profile.ExportDir

	info, err := os.Stat(dir)
	if err != nil {
		return []Finding{{
			Severity: SeverityFatal,
			Category: "export",
			Message:  fmt.Sprintf("export directory %s does not exist", dir),
		}}
	}
	if !info.IsDir() {
		return []Finding{{
			Severity: SeverityFatal,
			Category: "export",
			Message:  fmt.Sprintf("export path %s is not a directory", dir),
		}}
	}

	empty, err := isEmptyDir(dir)
	if err != nil {
		return []Finding{{
			Severity: SeverityFatal,
			Category: "export",
			Message:  fmt.Sprintf("could not inspect export directory %s: %v", dir, err),
		}}
	}
	if empty {
		return []Finding{{
			Severity: SeverityFatal,
			Category: "export",
			Message:  fmt.Sprintf("export directory %s is empty; nothing to publish", dir),
		}}
	}
	return nil
}

func (v *Validator) checkTransferClient(task ValidateTask) []Finding {
	if task.LocateClient == nil {
		return nil
	}
	if _, err := task.LocateClient(); err != nil {
		return []Finding{{
			Severity: SeverityFatal,
			Category: "client",
			Message:  fmt.Sprintf("transfer client not available: %v", err),
			Remedy:   "install the transfer client or set clientPath in the config file",
		}}
	}
	return nil
}

func (v *Validator) checkCredentials(task ValidateTask) []Finding {
	var findings []Finding
	ep := task.Profile.Endpoint

	if strings.TrimSpace(ep.Host) == "" {
		findings = append(findings, Finding{
			Severity: SeverityFatal,
			Category: "credentials",
			Message:  "endpoint host is not configured",
		})
	}
	if strings.TrimSpace(ep.Username) == "" {
		findings = append(findings, Finding{
			Severity: SeverityFatal,
			Category: "credentials",
			Message:  "endpoint username is not configured",
		})
	}
	if task.Profile.ResolvePassword() == "" {
		findings = append(findings, Finding{
			Severity: SeverityFatal,
			Category: "credentials",
			Message:  "no password configured",
			Remedy:   fmt.Sprintf("set endpoint.password or export %s", config.PasswordEnvVar(task.Profile.Name)),
		})
	}
	return findings
}

func (v *Validator) checkWikiSnapshot(task ValidateTask) []Finding {
	p := task.Profile
	if !p.HasWiki || task.AllowMissingWikiSnapshot {
		return nil
	}

	info, err := os.Stat(p.WikiSnapshotDir)
	if err != nil || !info.IsDir() {
		return []Finding{{
			Severity: SeverityActionRequired,
			Category: "wiki",
			Message:  fmt.Sprintf("wiki snapshot directory %s does not exist", p.WikiSnapshotDir),
			Remedy:   "run publish with --wiki-init=remote or --wiki-init-from=DIR to create the first snapshot",
		}}
	}
	return nil
}

func isEmptyDir(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}
	// Stray hidden bookkeeping files do not count as publishable content.
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), ".") {
			return false, nil
		}
	}
	return true, nil
}
