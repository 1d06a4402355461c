package fusion_test

import (
	"testing"
	"time"

	"lapfusion/internal/fusion"
	"lapfusion/internal/laps"
	"lapfusion/internal/series"
	"lapfusion/internal/telemetry"
)

var t0 = time.Date(2023, 9, 17, 12, 0, 0, 0, time.UTC)

func entry(driver int, sec float64, key string, value float64) telemetry.TimedEntry {
	return telemetry.TimedEntry{
		Timestamp: t0.Add(telemetry.Seconds(sec)),
		Driver:    driver,
		Payload:   telemetry.Record{key: value},
	}
}

func TestFuseTieBreakPrefersLaterCandidate(t *testing.T) {
	primary := series.Grouped{1: {entry(1, 100, "speed", 300)}}
	secondary := series.Grouped{1: {entry(1, 90, "x", 90), entry(1, 110, "x", 110)}}

	rows, _ := fusion.Fuse(primary, secondary, nil)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	x, _ := rows[0].Secondary.Float("x")
	if x != 110 {
		t.Fatalf("expected later secondary sample (110) on tie, got %v", x)
	}
	if !rows[0].SecondaryTime.Equal(t0.Add(110 * time.Second)) {
		t.Fatalf("unexpected secondary time %v", rows[0].SecondaryTime)
	}
}

func TestFuseRowCountMatchesPrimaryAndPicksNearest(t *testing.T) {
	primary := series.Grouped{
		1: {entry(1, 0, "speed", 1), entry(1, 1, "speed", 2), entry(1, 2, "speed", 3), entry(1, 10, "speed", 4)},
		2: {entry(2, 5, "speed", 5)},
	}
	secondary := series.Grouped{
		1: {entry(1, 0.2, "x", 1), entry(1, 1.6, "x", 2), entry(1, 3, "x", 3)},
	}

	rows, stats := fusion.Fuse(primary, secondary, nil)
	if len(rows) != 5 || stats.Rows != 5 {
		t.Fatalf("expected 5 rows, got %d (stats %d)", len(rows), stats.Rows)
	}
	wantX := []float64{1, 2, 2, 3}
	for i, want := range wantX {
		got, _ := rows[i].Secondary.Float("x")
		if rows[i].Driver != 1 || got != want {
			t.Fatalf("row %d: driver=%d x=%v want x=%v", i, rows[i].Driver, got, want)
		}
	}
	if rows[4].Driver != 2 || rows[4].Secondary != nil {
		t.Fatalf("expected driver 2 row with nil secondary, got %+v", rows[4])
	}
	if len(stats.NoSecondary) != 1 || stats.NoSecondary[0] != 2 {
		t.Fatalf("expected driver 2 flagged without secondary, got %v", stats.NoSecondary)
	}
}

func TestFuseSortsUnorderedInput(t *testing.T) {
	primary := series.Grouped{1: {entry(1, 2, "speed", 2), entry(1, 0, "speed", 0)}}
	secondary := series.Grouped{1: {entry(1, 2.1, "x", 2), entry(1, 0.1, "x", 0)}}

	rows, stats := fusion.Fuse(primary, secondary, nil)
	if stats.Resorted != 2 {
		t.Fatalf("expected both series resorted, got %d", stats.Resorted)
	}
	for i, want := range []float64{0, 2} {
		speed, _ := rows[i].Primary.Float("speed")
		x, _ := rows[i].Secondary.Float("x")
		if speed != want || x != want {
			t.Fatalf("row %d: speed=%v x=%v want %v", i, speed, x, want)
		}
	}
	// Caller's slice is untouched.
	if first, _ := primary[1][0].Payload.Float("speed"); first != 2 {
		t.Fatal("expected input slice left unmodified")
	}
}

func TestFuseAnnotatesLaps(t *testing.T) {
	primary := series.Grouped{1: {entry(1, 10, "speed", 1), entry(1, 95, "speed", 2), entry(1, 200, "speed", 3)}}
	timelines := laps.Timelines{1: {
		{Driver: 1, Lap: 1, Start: t0, End: t0.Add(90 * time.Second)},
		{Driver: 1, Lap: 2, Start: t0.Add(90 * time.Second), End: laps.Unbounded},
	}}

	rows, stats := fusion.Fuse(primary, series.Grouped{}, laps.NewLocators(timelines))
	for i, want := range []int{1, 2, 2} {
		if !rows[i].HasLap || rows[i].Lap != want {
			t.Fatalf("row %d lap = %d (has=%v) want %d", i, rows[i].Lap, rows[i].HasLap, want)
		}
	}
	if len(stats.NoLapTimeline) != 0 {
		t.Fatalf("unexpected drivers without timeline: %v", stats.NoLapTimeline)
	}
}

func TestFuseSkipsDriversWithoutPrimary(t *testing.T) {
	rows, stats := fusion.Fuse(series.Grouped{}, series.Grouped{9: {entry(9, 0, "x", 1)}}, nil)
	if len(rows) != 0 {
		t.Fatalf("expected no rows, got %d", len(rows))
	}
	if len(stats.DriversNoPrimary) != 1 || stats.DriversNoPrimary[0] != 9 {
		t.Fatalf("expected driver 9 reported, got %v", stats.DriversNoPrimary)
	}
}

func TestNearestHandlesEmptyAndOutOfRangeStart(t *testing.T) {
	if got := fusion.Nearest(nil, t0, 0); got != -1 {
		t.Fatalf("expected -1 for empty, got %d", got)
	}
	b := []telemetry.TimedEntry{entry(1, 0, "x", 0), entry(1, 5, "x", 5)}
	if got := fusion.Nearest(b, t0.Add(5*time.Second), 10); got != 1 {
		t.Fatalf("expected clamp to last index, got %d", got)
	}
}
