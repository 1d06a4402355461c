package laps

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"lapfusion/internal/telemetry"
)

// Unbounded marks an interval with no known end.
var Unbounded = time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)

// Epoch is the start used when a driver has no lap start and no samples.
var Epoch = time.Unix(0, 0).UTC()

// ErrBrokenPartition reports a timeline that is not a gapless partition.
var ErrBrokenPartition = errors.New("lap timeline is not a gapless partition")

// Interval is one lap of one driver.
type Interval struct {
	Driver int
	Lap    int
	Start  time.Time
	End    time.Time
}

// Unbounded reports whether the interval never closes.
func (iv Interval) Unbounded() bool {
	return iv.End.Equal(Unbounded)
}

// Contains reports whether t lies in [Start, End).
func (iv Interval) Contains(t time.Time) bool {
	return !t.Before(iv.Start) && t.Before(iv.End)
}

// Timeline is one driver's ordered laps.
type Timeline []Interval

// Timelines maps driver number to timeline.
type Timelines map[int]Timeline

// Build constructs a validated timeline for every driver that has lap records.
// earliest holds each driver's first observed sample time.
func Build(records []telemetry.Lap, earliest map[int]time.Time) (Timelines, error) {
	byDriver := make(map[int][]telemetry.Lap)
	for _, lap := range records {
		byDriver[lap.Driver] = append(byDriver[lap.Driver], lap)
	}

	out := make(Timelines, len(byDriver))
	for driver, driverLaps := range byDriver {
		first, hasFirst := earliest[driver]
		tl := BuildDriver(driver, driverLaps, first, hasFirst)
		if err := Validate(tl, first, hasFirst); err != nil {
			return nil, fmt.Errorf("driver %d: %w", driver, err)
		}
		out[driver] = tl
	}
	return out, nil
}

// BuildDriver constructs one driver's timeline without validating it.
func BuildDriver(driver int, records []telemetry.Lap, earliest time.Time, hasEarliest bool) Timeline {
	laps := dedupeByNumber(records)
	if len(laps) == 0 {
		return nil
	}

	n := len(laps)
	starts := make([]time.Time, n)
	ends := make([]time.Time, n)
	resolved := make([]bool, n)

	for i, lap := range laps {
		switch {
		case i == 0:
			starts[i] = firstStart(lap, earliest, hasEarliest)
		case lap.HasStart:
			starts[i] = lap.Start
			if starts[i].Before(starts[i-1]) {
				starts[i] = starts[i-1]
			}
		case resolved[i-1]:
			starts[i] = ends[i-1]
		default:
			starts[i] = starts[i-1]
		}

		switch {
		case i+1 < n && laps[i+1].HasStart:
			ends[i] = laps[i+1].Start
			resolved[i] = true
		case lap.HasDuration:
			ends[i] = starts[i].Add(telemetry.Seconds(lap.Duration))
			resolved[i] = true
		}
	}

	// Declared next starts may have been clamped above; keep the boundary
	// shared with the lap that follows.
	for i := 0; i+1 < n; i++ {
		if resolved[i] && laps[i+1].HasStart {
			ends[i] = starts[i+1]
		}
	}

	tl := make(Timeline, n)
	for i, lap := range laps {
		end := ends[i]
		if !resolved[i] || !end.After(starts[i]) {
			if i+1 < n {
				end = starts[i+1]
			} else {
				end = Unbounded
			}
		}
		tl[i] = Interval{Driver: driver, Lap: lap.Number, Start: starts[i], End: end}
	}
	return tl
}

func firstStart(lap telemetry.Lap, earliest time.Time, hasEarliest bool) time.Time {
	switch {
	case lap.HasStart && hasEarliest && earliest.Before(lap.Start):
		return earliest
	case lap.HasStart:
		return lap.Start
	case hasEarliest:
		return earliest
	default:
		return Epoch
	}
}

// dedupeByNumber sorts laps by number. The last record for a lap number wins.
func dedupeByNumber(records []telemetry.Lap) []telemetry.Lap {
	byNumber := make(map[int]telemetry.Lap, len(records))
	for _, lap := range records {
		byNumber[lap.Number] = lap
	}
	laps := make([]telemetry.Lap, 0, len(byNumber))
	for _, lap := range byNumber {
		laps = append(laps, lap)
	}
	sort.Slice(laps, func(i, j int) bool { return laps[i].Number < laps[j].Number })
	return laps
}

// Validate checks the partition invariants of tl.
func Validate(tl Timeline, earliest time.Time, hasEarliest bool) error {
	if len(tl) == 0 {
		return nil
	}
	if hasEarliest && tl[0].Start.After(earliest) {
		return fmt.Errorf("%w: lap %d starts at %s after first sample %s",
			ErrBrokenPartition, tl[0].Lap, tl[0].Start.Format(time.RFC3339Nano), earliest.Format(time.RFC3339Nano))
	}
	for i, iv := range tl {
		if iv.End.Before(iv.Start) {
			return fmt.Errorf("%w: lap %d ends before it starts", ErrBrokenPartition, iv.Lap)
		}
		if i+1 < len(tl) {
			if !iv.End.Equal(tl[i+1].Start) {
				return fmt.Errorf("%w: lap %d end %s != lap %d start %s", ErrBrokenPartition,
					iv.Lap, iv.End.Format(time.RFC3339Nano), tl[i+1].Lap, tl[i+1].Start.Format(time.RFC3339Nano))
			}
			if tl[i+1].Lap <= iv.Lap {
				return fmt.Errorf("%w: lap numbers not increasing at lap %d", ErrBrokenPartition, iv.Lap)
			}
		}
	}
	return nil
}

// MaxLap returns the highest lap number in any timeline.
func (t Timelines) MaxLap() int {
	max := 0
	for _, tl := range t {
		if len(tl) > 0 && tl[len(tl)-1].Lap > max {
			max = tl[len(tl)-1].Lap
		}
	}
	return max
}

// Drivers returns the driver numbers with a timeline, ascending.
func (t Timelines) Drivers() []int {
	out := make([]int, 0, len(t))
	for d := range t {
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}
