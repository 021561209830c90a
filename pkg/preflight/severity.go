package preflight

import (
	"encoding/json"
	"fmt"
	"strings"

	"pixelgardenlabs.io/pgl-publish/pkg/util"
)

// Severity classifies a validation finding.
type Severity int

const (
	// SeverityFatal marks a finding that blocks the publish outright.
	SeverityFatal Severity = iota
	// SeverityActionRequired marks a finding the operator can resolve with a
	// documented one-time action, such as initializing the wiki snapshot.
	SeverityActionRequired
)

var severityToString = map[Severity]string{
	SeverityFatal:          "fatal",
	SeverityActionRequired: "actionRequired",
}

var stringToSeverity = util.InvertMap(severityToString)

func (s Severity) String() string {
	if str, ok := severityToString[s]; ok {
		return str
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// ParseSeverity converts a string into a Severity, case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	if sev, ok := stringToSeverity[s]; ok {
		return sev, nil
	}
	for str, sev := range stringToSeverity {
		if strings.EqualFold(str, s) {
			return sev, nil
		}
	}
	return 0, fmt.Errorf("unknown severity: %q", s)
}

func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	sev, err := ParseSeverity(str)
	if err != nil {
		return err
	}
	*s = sev
	return nil
}
