package remotesync

import (
	"encoding/json"
	"fmt"
	"strings"

	"pixelgardenlabs.io/pgl-publish/pkg/util"
)

// Direction selects which side of a synchronization is authoritative.
type Direction int

const (
	// DirectionPush mirrors the local tree onto the remote.
	DirectionPush Direction = iota
	// DirectionPull mirrors the remote tree into the local directory.
	DirectionPull
)

var directionToString = map[Direction]string{
	DirectionPush: "push",
	DirectionPull: "pull",
}

var stringToDirection = util.InvertMap(directionToString)

func (d Direction) String() string {
	if str, ok := directionToString[d]; ok {
		return str
	}
	return fmt.Sprintf("unknown(%d)", int(d))
}

// ParseDirection converts a string into a Direction, case-insensitively.
func ParseDirection(s string) (Direction, error) {
	if d, ok := stringToDirection[s]; ok {
		return d, nil
	}
	for str, d := range stringToDirection {
		if strings.EqualFold(str, s) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown sync direction: %q", s)
}

func (d Direction) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Direction) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	dir, err := ParseDirection(str)
	if err != nil {
		return err
	}
	*d = dir
	return nil
}
