package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"pixelgardenlabs.io/pgl-publish/pkg/util"
)

// RunOutcome is the terminal state of a whole publish run.
type RunOutcome int

const (
	RunSucceeded RunOutcome = iota
	RunFailed
	// RunAborted means cancellation stopped the run between steps; the step
	// that was in flight ran to completion first.
	RunAborted
	// RunActionRequired means validation stopped the run on a condition the
	// operator has to resolve first, such as a missing wiki snapshot. Nothing
	// was mutated; the run is paused, not failed.
	RunActionRequired
)

var runOutcomeToString = map[RunOutcome]string{
	RunSucceeded:      "succeeded",
	RunFailed:         "failed",
	RunAborted:        "aborted",
	RunActionRequired: "actionRequired",
}

var stringToRunOutcome = util.InvertMap(runOutcomeToString)

func (o RunOutcome) String() string {
	if str, ok := runOutcomeToString[o]; ok {
		return str
	}
	return fmt.Sprintf("unknown(%d)", int(o))
}

func (o RunOutcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

func (o *RunOutcome) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	outcome, ok := stringToRunOutcome[str]
	if !ok {
		return fmt.Errorf("unknown run outcome: %q", str)
	}
	*o = outcome
	return nil
}

// WorkflowRun is the complete record of one publish run.
type WorkflowRun struct {
	ID         string       `json:"id"`
	Site       string       `json:"site"`
	DryRun     bool         `json:"dryRun,omitempty"`
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt time.Time    `json:"finishedAt"`
	Outcome    RunOutcome   `json:"outcome"`
	// LivePublished is set once the push step succeeded. A failed run with
	// this flag set still changed the live site.
	LivePublished bool         `json:"livePublished"`
	// FilesTransferred counts files the push step sent to the server.
	FilesTransferred int          `json:"filesTransferred"`
	Steps            []StepResult `json:"steps"`
	// Diagnostic summarizes why a failed or aborted run ended.
	Diagnostic string `json:"diagnostic,omitempty"`
}

// StepResultFor returns the recorded result for a step kind, if present.
func (r *WorkflowRun) StepResultFor(kind StepKind) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Kind == kind {
			return s, true
		}
	}
	return StepResult{}, false
}
