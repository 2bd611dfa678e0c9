// Package timecode decodes the timestamp embedded in radar frame filenames
// and defines the adjacency relation used to detect gaps between frames.
//
// Frame names look like "IDR043.T.201801011206.png": the third dot-delimited
// segment carries year, month, day, hour and minute as fixed-width digits.
package timecode

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Cadence is the publishing interval of radar frames in minutes.
const Cadence = 6

// stampSegment is the zero-based index of the timestamp segment in a frame name.
const stampSegment = 2

// stampWidth is the number of leading digits consumed from the timestamp segment.
const stampWidth = 12

// ErrMalformed is returned when a name does not follow the frame naming convention.
var ErrMalformed = errors.New("malformed frame name")

// Timecode is the year/month/day/hour/minute tuple decoded from a frame name.
type Timecode struct {
	Year   int
	Month  int
	Day    int
	Hour   int
	Minute int
}

// Parse extracts the Timecode from a frame's base name.
func Parse(name string) (Timecode, error) {
	segments := strings.Split(name, ".")
	if len(segments) <= stampSegment {
		return Timecode{}, fmt.Errorf("%w: %q has no timestamp segment", ErrMalformed, name)
	}

	stamp := segments[stampSegment]
	if len(stamp) < stampWidth {
		return Timecode{}, fmt.Errorf("%w: %q timestamp %q is shorter than %d digits", ErrMalformed, name, stamp, stampWidth)
	}
	for _, r := range stamp {
		if r < '0' || r > '9' {
			return Timecode{}, fmt.Errorf("%w: %q timestamp %q is not numeric", ErrMalformed, name, stamp)
		}
	}

	fields := [5]int{}
	widths := [5]int{4, 2, 2, 2, 2}
	offset := 0
	for i, w := range widths {
		v, err := strconv.Atoi(stamp[offset : offset+w])
		if err != nil {
			return Timecode{}, fmt.Errorf("%w: %q: %w", ErrMalformed, name, err)
		}
		fields[i] = v
		offset += w
	}

	return Timecode{
		Year:   fields[0],
		Month:  fields[1],
		Day:    fields[2],
		Hour:   fields[3],
		Minute: fields[4],
	}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(name string) Timecode {
	tc, err := Parse(name)
	if err != nil {
		panic(err)
	}
	return tc
}

// Consecutive reports whether next directly follows prev at the publishing cadence.
//
// Rollovers are detected from the fields of next alone: a minute at or below
// the cadence starts a new hour, hour zero starts a new day, day zero starts a
// new month and month zero starts a new year. Real calendar lengths are not
// consulted.
func Consecutive(prev, next Timecode) bool {
	switch {
	case prev.Minute+Cadence == next.Minute:
		return true
	case next.Minute <= Cadence && prev.Hour+1 == next.Hour:
		return true
	case next.Hour == 0 && prev.Day+1 == next.Day:
		return true
	case next.Day == 0 && prev.Month+1 == next.Month:
		return true
	case next.Month == 0 && prev.Year+1 == next.Year:
		return true
	default:
		return false
	}
}

// Time converts the timecode to a UTC time.
func (t Timecode) Time() time.Time {
	return time.Date(t.Year, time.Month(t.Month), t.Day, t.Hour, t.Minute, 0, 0, time.UTC)
}

// String formats the timecode the way it appears in frame names.
func (t Timecode) String() string {
	return fmt.Sprintf("%04d%02d%02d%02d%02d", t.Year, t.Month, t.Day, t.Hour, t.Minute)
}
