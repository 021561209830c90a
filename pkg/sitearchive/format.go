package sitearchive

import (
	"encoding/json"
	"fmt"
	"strings"

	"pixelgardenlabs.io/pgl-publish/pkg/util"
)

// Format selects the archive artifact type.
type Format int

const (
	FormatZip Format = iota
	FormatTarGz
)

var formatToString = map[Format]string{
	FormatZip:   "zip",
	FormatTarGz: "tar.gz",
}

var stringToFormat = util.InvertMap(formatToString)

func (f Format) String() string {
	if str, ok := formatToString[f]; ok {
		return str
	}
	return fmt.Sprintf("unknown(%d)", int(f))
}

// Extension returns the file extension including the leading dot.
func (f Format) Extension() string {
	return "." + f.String()
}

// ParseFormat converts a string into a Format, case-insensitively.
func ParseFormat(s string) (Format, error) {
	if f, ok := stringToFormat[s]; ok {
		return f, nil
	}
	for str, f := range stringToFormat {
		if strings.EqualFold(str, s) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown archive format: %q", s)
}

func (f Format) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.String())
}

func (f *Format) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	format, err := ParseFormat(str)
	if err != nil {
		return err
	}
	*f = format
	return nil
}

// CollisionPolicy decides what happens when an artifact for the same site
// and calendar day already exists.
type CollisionPolicy int

const (
	// CollisionOverwrite replaces the existing artifact. Same-day repeat
	// publishes converge on the latest content.
	CollisionOverwrite CollisionPolicy = iota
	// CollisionReject fails the archive step and keeps the existing artifact.
	CollisionReject
)

var collisionToString = map[CollisionPolicy]string{
	CollisionOverwrite: "overwrite",
	CollisionReject:    "reject",
}

var stringToCollision = util.InvertMap(collisionToString)

func (c CollisionPolicy) String() string {
	if str, ok := collisionToString[c]; ok {
		return str
	}
	return fmt.Sprintf("unknown(%d)", int(c))
}

// ParseCollisionPolicy converts a string into a CollisionPolicy,
// case-insensitively.
func ParseCollisionPolicy(s string) (CollisionPolicy, error) {
	if c, ok := stringToCollision[s]; ok {
		return c, nil
	}
	for str, c := range stringToCollision {
		if strings.EqualFold(str, s) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown collision policy: %q", s)
}
