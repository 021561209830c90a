package engine

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"pixelgardenlabs.io/pgl-publish/pkg/util"
)

// StepKind identifies one stage of a publish workflow.
type StepKind int

const (
	// StepValidate runs the preflight checks.
	StepValidate StepKind = iota
	// StepSeedWiki overwrites the export wiki subtree with the snapshot.
	StepSeedWiki
	// StepPush uploads the export directory to the remote server.
	StepPush
	// StepPullWiki mirrors the live wiki from the server into the export tree.
	StepPullWiki
	// StepUpdateSnapshot replaces the snapshot with the freshly pulled wiki.
	StepUpdateSnapshot
	// StepArchive writes the dated artifact of the published export.
	StepArchive
)

var stepKindToString = map[StepKind]string{
	StepValidate:       "validate",
	StepSeedWiki:       "seedWiki",
	StepPush:           "push",
	StepPullWiki:       "pullWiki",
	StepUpdateSnapshot: "updateSnapshot",
	StepArchive:        "archive",
}

var stringToStepKind = util.InvertMap(stepKindToString)

func (k StepKind) String() string {
	if str, ok := stepKindToString[k]; ok {
		return str
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// Label returns the operator-facing name shown in the transcript.
func (k StepKind) Label() string {
	switch k {
	case StepValidate:
		return "Validate"
	case StepSeedWiki:
		return "Seed wiki from snapshot"
	case StepPush:
		return "Push export to server"
	case StepPullWiki:
		return "Pull wiki from server"
	case StepUpdateSnapshot:
		return "Update wiki snapshot"
	case StepArchive:
		return "Archive"
	default:
		return k.String()
	}
}

// ParseStepKind converts a string into a StepKind, case-insensitively.
func ParseStepKind(s string) (StepKind, error) {
	if k, ok := stringToStepKind[s]; ok {
		return k, nil
	}
	for str, k := range stringToStepKind {
		if strings.EqualFold(str, s) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown step kind: %q", s)
}

func (k StepKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *StepKind) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	kind, err := ParseStepKind(str)
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// StepStatus is the terminal state of one executed or skipped step.
type StepStatus int

const (
	StatusSucceeded StepStatus = iota
	StatusFailed
	// StatusSkipped marks steps never attempted because an earlier step
	// failed or the run was a dry run.
	StatusSkipped
	// StatusAborted marks steps never attempted because the run was
	// cancelled between steps.
	StatusAborted
)

var stepStatusToString = map[StepStatus]string{
	StatusSucceeded: "succeeded",
	StatusFailed:    "failed",
	StatusSkipped:   "skipped",
	StatusAborted:   "aborted",
}

func (s StepStatus) String() string {
	if str, ok := stepStatusToString[s]; ok {
		return str
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

func (s StepStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// StepResult records how one step of a run ended.
type StepResult struct {
	Kind       StepKind      `json:"kind"`
	Status     StepStatus    `json:"status"`
	StartedAt  time.Time     `json:"startedAt,omitzero"`
	Duration   time.Duration `json:"durationNs,omitempty"`
	Diagnostic string        `json:"diagnostic,omitempty"`
}
