// Package fusion pairs two independently sampled per-driver series into one
// lap-annotated stream.
//
// The primary series sets the row cadence. Each primary sample is matched to
// the secondary sample closest in time using a single forward pass, so both
// series must be in ascending time order; Fuse checks this at its boundary and
// sorts a copy when a driver's slice is out of order.
package fusion

import (
	"slices"
	"time"

	"lapfusion/internal/laps"
	"lapfusion/internal/series"
	"lapfusion/internal/telemetry"
)

// Sample is one fused row.
type Sample struct {
	Driver    int
	Timestamp time.Time
	Lap       int
	HasLap    bool
	Primary   telemetry.Record
	// Secondary is nil when the driver has no secondary samples.
	Secondary     telemetry.Record
	SecondaryTime time.Time
}

// Stats describes a fusion pass.
type Stats struct {
	Drivers          int
	Rows             int
	Resorted         int
	NoSecondary      []int
	NoLapTimeline    []int
	DriversNoPrimary []int
}

// Fuse merges primary and secondary per driver. Rows are ordered by driver
// number, then primary time. locators may be nil, in which case no lap numbers
// are resolved.
func Fuse(primary, secondary series.Grouped, locators laps.Locators) ([]Sample, Stats) {
	var stats Stats
	total := primary.Len()
	out := make([]Sample, 0, total)

	for _, driver := range primary.Drivers() {
		a := ensureSorted(primary[driver], &stats)
		b := ensureSorted(secondary[driver], &stats)
		if len(a) == 0 {
			stats.DriversNoPrimary = append(stats.DriversNoPrimary, driver)
			continue
		}
		stats.Drivers++
		if len(b) == 0 {
			stats.NoSecondary = append(stats.NoSecondary, driver)
		}
		loc := locators[driver]
		if loc == nil {
			stats.NoLapTimeline = append(stats.NoLapTimeline, driver)
		}
		out = fuseDriver(out, driver, a, b, loc)
	}
	for _, driver := range secondary.Drivers() {
		if _, ok := primary[driver]; !ok {
			stats.DriversNoPrimary = append(stats.DriversNoPrimary, driver)
		}
	}
	stats.Rows = len(out)
	return out, stats
}

func fuseDriver(out []Sample, driver int, a, b []telemetry.TimedEntry, loc *laps.Locator) []Sample {
	j := 0
	for _, entry := range a {
		row := Sample{
			Driver:    driver,
			Timestamp: entry.Timestamp,
			Primary:   entry.Payload,
		}
		if loc != nil {
			row.Lap, row.HasLap = loc.Locate(entry.Timestamp)
		}
		if len(b) > 0 {
			j = Nearest(b, entry.Timestamp, j)
			row.Secondary = b[j].Payload
			row.SecondaryTime = b[j].Timestamp
		}
		out = append(out, row)
	}
	return out
}

// Nearest returns the index in b of the entry closest to t, preferring the
// later entry on a tie, starting the search at from. It returns -1 when b is
// empty.
func Nearest(b []telemetry.TimedEntry, t time.Time, from int) int {
	if len(b) == 0 {
		return -1
	}
	j := min(max(from, 0), len(b)-1)
	for j+1 < len(b) && distance(b[j+1].Timestamp, t) <= distance(b[j].Timestamp, t) {
		j++
	}
	return j
}

func distance(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}

func ensureSorted(entries []telemetry.TimedEntry, stats *Stats) []telemetry.TimedEntry {
	if series.IsSorted(entries) {
		return entries
	}
	stats.Resorted++
	cp := slices.Clone(entries)
	series.SortEntries(cp)
	return cp
}
