// Package series normalizes raw provider records into per-driver, time-ordered
// sequences.
package series

import (
	"slices"
	"sort"
	"time"

	"lapfusion/internal/telemetry"
)

// Grouped maps a driver number to that driver's entries in ascending time.
type Grouped map[int][]telemetry.TimedEntry

// Stats counts what normalization kept and dropped.
type Stats struct {
	Kept       int
	BadTime    int
	BadDriver  int
	DriverSeen int
}

// Dropped is the total number of rejected records.
func (s Stats) Dropped() int { return s.BadTime + s.BadDriver }

// Normalize parses every record into a TimedEntry and groups the results by
// driver. Records with an unparsable timestamp or a non-numeric driver id are
// skipped.
func Normalize(records []telemetry.Record) (Grouped, Stats) {
	var stats Stats
	grouped := make(Grouped)
	for _, rec := range records {
		ts, ok := rec.Timestamp()
		if !ok {
			stats.BadTime++
			continue
		}
		driver, ok := rec.Driver()
		if !ok {
			stats.BadDriver++
			continue
		}
		grouped[driver] = append(grouped[driver], telemetry.TimedEntry{
			Timestamp: ts,
			Driver:    driver,
			Payload:   rec,
		})
		stats.Kept++
	}
	for driver := range grouped {
		SortEntries(grouped[driver])
	}
	stats.DriverSeen = len(grouped)
	return grouped, stats
}

// SortEntries orders entries by timestamp, keeping source order for ties.
func SortEntries(entries []telemetry.TimedEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
}

// IsSorted reports whether entries are in non-decreasing time order.
func IsSorted(entries []telemetry.TimedEntry) bool {
	return slices.IsSortedFunc(entries, func(a, b telemetry.TimedEntry) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
}

// Drivers returns the driver numbers present in g, ascending.
func (g Grouped) Drivers() []int {
	drivers := make([]int, 0, len(g))
	for d := range g {
		drivers = append(drivers, d)
	}
	sort.Ints(drivers)
	return drivers
}

// Len returns the total number of entries across all drivers.
func (g Grouped) Len() int {
	n := 0
	for _, entries := range g {
		n += len(entries)
	}
	return n
}

// Earliest returns, per driver, the earliest timestamp found in any of the
// given groupings. Groupings must already be sorted.
func Earliest(groups ...Grouped) map[int]time.Time {
	out := make(map[int]time.Time)
	for _, g := range groups {
		for driver, entries := range g {
			if len(entries) == 0 {
				continue
			}
			first := entries[0].Timestamp
			if cur, ok := out[driver]; !ok || first.Before(cur) {
				out[driver] = first
			}
		}
	}
	return out
}
