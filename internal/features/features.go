// Package features builds the per-lap race state table used for model
// training.
//
// Every lap from 1 to the highest lap seen gets one Row. A lap's reference
// time is the leader's finish: the earliest finish among drivers still
// running. Weather, safety car state, and the label are all evaluated against
// that time. When the minimum gap or average tyre age cannot be computed for a
// lap, the previous lap's value is carried forward so the exported table stays
// dense.
package features

import (
	"sort"
	"time"

	"lapfusion/internal/laps"
	"lapfusion/internal/racecontrol"
	"lapfusion/internal/telemetry"
)

// DefaultGapThreshold is the close-pair threshold in seconds.
const DefaultGapThreshold = 1.0

// Row is one lap of race state.
type Row struct {
	SessionKey     string
	LapNumber      int
	TotalLaps      int
	ReferenceTime  time.Time
	SCActive       bool
	VSCActive      bool
	NumCarsRunning int
	MinGap         *float64
	PairsBelow     int
	PitCount       int
	AvgTyreAge     *float64
	Weather        *telemetry.WeatherSample
	Label          int
}

// Input bundles everything the aggregator reads.
type Input struct {
	SessionKey   string
	SessionStart time.Time
	Laps         []telemetry.Lap
	Timelines    laps.Timelines
	PitStops     []telemetry.PitStop
	Stints       []telemetry.Stint
	Weather      []telemetry.WeatherSample
	Safety       racecontrol.Result
}

// Options tunes aggregation.
type Options struct {
	GapThreshold float64
	ForwardFill  bool
}

// DefaultOptions returns the standard aggregation settings.
func DefaultOptions() Options {
	return Options{GapThreshold: DefaultGapThreshold, ForwardFill: true}
}

// Build computes one Row per lap. It returns nil when no lap is resolvable.
func Build(in Input, opts Options) []Row {
	if opts.GapThreshold <= 0 {
		opts.GapThreshold = DefaultGapThreshold
	}
	maxLap := maxLapByDriver(in)
	total := 0
	for _, m := range maxLap {
		total = max(total, m)
	}
	if total == 0 {
		return nil
	}

	finishes := finishTable(in, maxLap, total)
	weather := sortedWeather(in.Weather)
	pits := pitCounts(in.PitStops)
	stints := stintsByDriver(in.Stints)

	rows := make([]Row, total)
	for lap := 1; lap <= total; lap++ {
		row := Row{SessionKey: in.SessionKey, LapNumber: lap, TotalLaps: total}

		ranked := make([]time.Time, 0, len(maxLap))
		var leader time.Time
		for driver, m := range maxLap {
			if m < lap {
				continue
			}
			row.NumCarsRunning++
			f := finishes[driver]
			ranked = append(ranked, f.at[lap])
			if f.declared[lap] && (leader.IsZero() || f.at[lap].Before(leader)) {
				leader = f.at[lap]
			}
		}
		sort.Slice(ranked, func(i, j int) bool { return ranked[i].Before(ranked[j]) })

		// A carried finish belongs to an earlier lap, so it only stands in
		// when nobody has a timed finish for this one.
		switch {
		case !leader.IsZero():
			row.ReferenceTime = leader
		case len(ranked) > 0:
			row.ReferenceTime = ranked[0]
		default:
			row.ReferenceTime = in.SessionStart
		}
		row.MinGap, row.PairsBelow = GapStats(secondsFrom(ranked), opts.GapThreshold)
		row.PitCount = pits[lap]
		row.AvgTyreAge = averageTyreAge(stints, lap)
		row.Weather = weatherAt(weather, row.ReferenceTime)
		row.SCActive = in.Safety.Intervals.Active(racecontrol.SC, row.ReferenceTime)
		row.VSCActive = in.Safety.Intervals.Active(racecontrol.VSC, row.ReferenceTime)

		if opts.ForwardFill && lap > 1 {
			prev := rows[lap-2]
			if row.MinGap == nil {
				row.MinGap = prev.MinGap
			}
			if row.AvgTyreAge == nil {
				row.AvgTyreAge = prev.AvgTyreAge
			}
		}
		rows[lap-1] = row
	}

	for i := range rows {
		from := rows[i].ReferenceTime
		to := laps.Unbounded
		if i+1 < len(rows) {
			to = rows[i+1].ReferenceTime
		}
		if deploymentWithin(in.Safety.Deployments, from, to) {
			rows[i].Label = 1
		}
	}
	return rows
}

// GapStats returns the smallest positive gap between consecutive ranked
// values and the number of consecutive pairs closer than threshold. Values
// must be sorted ascending; non-positive gaps are skipped.
func GapStats(ranked []float64, threshold float64) (*float64, int) {
	var minGap *float64
	pairs := 0
	for i := 1; i < len(ranked); i++ {
		gap := ranked[i] - ranked[i-1]
		if gap <= 0 {
			continue
		}
		if minGap == nil || gap < *minGap {
			g := gap
			minGap = &g
		}
		if gap < threshold {
			pairs++
		}
	}
	return minGap, pairs
}

func secondsFrom(ranked []time.Time) []float64 {
	if len(ranked) == 0 {
		return nil
	}
	out := make([]float64, len(ranked))
	for i, t := range ranked {
		out[i] = t.Sub(ranked[0]).Seconds()
	}
	return out
}

// maxLapByDriver prefers the reconstructed timelines and falls back to raw lap
// records for drivers without one.
func maxLapByDriver(in Input) map[int]int {
	out := make(map[int]int)
	for driver, tl := range in.Timelines {
		if len(tl) > 0 {
			out[driver] = tl[len(tl)-1].Lap
		}
	}
	for _, lap := range in.Laps {
		if _, ok := in.Timelines[lap.Driver]; ok {
			continue
		}
		out[lap.Driver] = max(out[lap.Driver], lap.Number)
	}
	return out
}

// lapFinishes holds one driver's finish per lap, indexed by lap number.
// declared is false where the time was carried from an earlier lap.
type lapFinishes struct {
	at       []time.Time
	declared []bool
}

// finishTable computes each driver's finish time for laps 1..maxLap: the
// declared start plus duration, else the previous lap's finish, else the
// session start.
func finishTable(in Input, maxLap map[int]int, total int) map[int]lapFinishes {
	byDriver := make(map[int]map[int]telemetry.Lap)
	for _, lap := range in.Laps {
		if byDriver[lap.Driver] == nil {
			byDriver[lap.Driver] = make(map[int]telemetry.Lap)
		}
		byDriver[lap.Driver][lap.Number] = lap
	}

	out := make(map[int]lapFinishes, len(maxLap))
	for driver := range maxLap {
		finishes := lapFinishes{at: make([]time.Time, total+1), declared: make([]bool, total+1)}
		prev := in.SessionStart
		for n := 1; n <= total; n++ {
			if lap, ok := byDriver[driver][n]; ok {
				if f, ok := lap.Finish(); ok {
					prev = f
					finishes.declared[n] = true
				}
			}
			finishes.at[n] = prev
		}
		out[driver] = finishes
	}
	return out
}

func pitCounts(stops []telemetry.PitStop) map[int]int {
	out := make(map[int]int)
	for _, p := range stops {
		out[p.Lap]++
	}
	return out
}

func stintsByDriver(stints []telemetry.Stint) map[int][]telemetry.Stint {
	out := make(map[int][]telemetry.Stint)
	for _, s := range stints {
		if !s.HasTyreAge {
			continue
		}
		out[s.Driver] = append(out[s.Driver], s)
	}
	return out
}

func averageTyreAge(stints map[int][]telemetry.Stint, lap int) *float64 {
	sum, n := 0.0, 0
	for _, driverStints := range stints {
		var best *telemetry.Stint
		for i := range driverStints {
			s := &driverStints[i]
			if !s.Covers(lap) {
				continue
			}
			if best == nil || s.Number >= best.Number {
				best = s
			}
		}
		if best == nil {
			continue
		}
		sum += float64(best.TyreAge + (lap - best.LapStart + 1))
		n++
	}
	if n == 0 {
		return nil
	}
	avg := sum / float64(n)
	return &avg
}

func sortedWeather(samples []telemetry.WeatherSample) []telemetry.WeatherSample {
	out := make([]telemetry.WeatherSample, len(samples))
	copy(out, samples)
	sort.SliceStable(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	return out
}

// weatherAt returns the last sample recorded at or before t.
func weatherAt(sorted []telemetry.WeatherSample, t time.Time) *telemetry.WeatherSample {
	idx := sort.Search(len(sorted), func(i int) bool { return sorted[i].RecordedAt.After(t) })
	if idx == 0 {
		return nil
	}
	w := sorted[idx-1]
	return &w
}

func deploymentWithin(deployments []time.Time, from, to time.Time) bool {
	for _, d := range deployments {
		if d.After(from) && !d.After(to) {
			return true
		}
	}
	return false
}
