// Package racecontrol turns race director messages into safety car and
// virtual safety car intervals.
//
// Classification is pluggable (see Classifier). Extraction runs a two-state
// machine per interval kind: a start opens an interval if none is open, an end
// closes the open one. Nested starts and stray ends are ignored. An interval
// still open when the log ends is dropped and counted, not emitted half-open.
package racecontrol

import (
	"sort"
	"time"

	"lapfusion/internal/telemetry"
)

// IntervalKind distinguishes full and virtual safety car periods.
type IntervalKind string

const (
	SC  IntervalKind = "SC"
	VSC IntervalKind = "VSC"
)

// Interval is a closed safety period. Start is always before End.
type Interval struct {
	Kind  IntervalKind
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies within [Start, End].
func (iv Interval) Contains(t time.Time) bool {
	return !t.Before(iv.Start) && !t.After(iv.End)
}

// Intervals is a chronological list of closed intervals.
type Intervals []Interval

// Active reports whether any interval of kind contains t.
func (ivs Intervals) Active(kind IntervalKind, t time.Time) bool {
	for _, iv := range ivs {
		if iv.Kind == kind && iv.Contains(t) {
			return true
		}
	}
	return false
}

// Result is the outcome of Extract.
type Result struct {
	Intervals Intervals
	// Deployments holds every accepted SC start, including one left open.
	Deployments []time.Time
	Unmatched   []telemetry.RaceControlEvent
	Dropped     []Interval
	IgnoredEnds int
	NestedStart int
}

type openState struct {
	open  bool
	start time.Time
}

// Extract classifies events and builds closed intervals. Events are processed
// in chronological order; the input slice is not modified.
func Extract(events []telemetry.RaceControlEvent, classifier Classifier) Result {
	if classifier == nil {
		classifier = NewRuleClassifier()
	}
	ordered := make([]telemetry.RaceControlEvent, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Time.Before(ordered[j].Time) })

	var res Result
	states := map[IntervalKind]*openState{SC: {}, VSC: {}}

	for _, ev := range ordered {
		kind := classifier.Classify(ev)
		switch kind {
		case KindSCStart:
			if res.open(states[SC], ev.Time) {
				res.Deployments = append(res.Deployments, ev.Time)
			}
		case KindVSCStart:
			res.open(states[VSC], ev.Time)
		case KindSCEnd:
			res.close(SC, states[SC], ev.Time)
		case KindVSCEnd:
			res.close(VSC, states[VSC], ev.Time)
		case KindUnmatched:
			res.Unmatched = append(res.Unmatched, ev)
		}
	}

	for _, kind := range []IntervalKind{SC, VSC} {
		if st := states[kind]; st.open {
			res.Dropped = append(res.Dropped, Interval{Kind: kind, Start: st.start})
		}
	}
	return res
}

func (r *Result) open(st *openState, at time.Time) bool {
	if st.open {
		r.NestedStart++
		return false
	}
	st.open = true
	st.start = at
	return true
}

func (r *Result) close(kind IntervalKind, st *openState, at time.Time) {
	if !st.open {
		r.IgnoredEnds++
		return
	}
	st.open = false
	if !at.After(st.start) {
		// Zero-length period; nothing to emit.
		return
	}
	r.Intervals = append(r.Intervals, Interval{Kind: kind, Start: st.start, End: at})
}
