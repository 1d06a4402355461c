package laps

import "time"

// Locator resolves timestamps to lap numbers for one driver using a cursor that
// only moves forward.
type Locator struct {
	timeline Timeline
	cursor   int
}

// NewLocator returns a locator positioned at the first lap.
func NewLocator(tl Timeline) *Locator {
	return &Locator{timeline: tl}
}

// Locate returns the lap containing t. Calls must use non-decreasing t; an
// earlier t after a later one returns the lap of the later query. ok is false
// when the timeline is empty.
func (l *Locator) Locate(t time.Time) (int, bool) {
	if len(l.timeline) == 0 {
		return 0, false
	}
	last := len(l.timeline) - 1
	for l.cursor < last && !l.timeline[l.cursor+1].Start.After(t) {
		l.cursor++
	}
	for l.cursor < last && t.After(l.timeline[l.cursor].End) {
		l.cursor++
	}
	return l.timeline[l.cursor].Lap, true
}

// Locators holds one locator per driver.
type Locators map[int]*Locator

// NewLocators builds a fresh locator for every timeline.
func NewLocators(timelines Timelines) Locators {
	out := make(Locators, len(timelines))
	for driver, tl := range timelines {
		out[driver] = NewLocator(tl)
	}
	return out
}

// Locate resolves t for driver. ok is false when the driver has no timeline.
func (ls Locators) Locate(driver int, t time.Time) (int, bool) {
	loc, ok := ls[driver]
	if !ok {
		return 0, false
	}
	return loc.Locate(t)
}
