package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"lapfusion/internal/features"
	"lapfusion/internal/fusion"
	"lapfusion/internal/racecontrol"
	"lapfusion/internal/store"
	"lapfusion/internal/telemetry"
	"lapfusion/internal/testsupport"
)

var base = time.Date(2023, 9, 17, 13, 0, 0, 0, time.UTC)

func sampleArtifacts() store.Artifacts {
	gap := 0.8
	return store.Artifacts{
		Fused: []fusion.Sample{
			{
				Driver:        1,
				Timestamp:     base.Add(10 * time.Second),
				Lap:           1,
				HasLap:        true,
				Primary:       telemetry.Record{"speed": 280.0},
				Secondary:     telemetry.Record{"x": 100.0},
				SecondaryTime: base.Add(10*time.Second + 200*time.Millisecond),
			},
			{Driver: 44, Timestamp: base.Add(11 * time.Second), Primary: telemetry.Record{"speed": 279.0}},
		},
		Features: []features.Row{
			{
				SessionKey: "9161", LapNumber: 1, TotalLaps: 2, ReferenceTime: base.Add(90 * time.Second),
				NumCarsRunning: 2, MinGap: &gap, PairsBelow: 1,
				Weather: &telemetry.WeatherSample{RecordedAt: base, AirTemperature: 30.1},
			},
			{SessionKey: "9161", LapNumber: 2, TotalLaps: 2, ReferenceTime: base.Add(180 * time.Second), SCActive: true, Label: 0},
		},
		Intervals: racecontrol.Intervals{
			{Kind: racecontrol.SC, Start: base.Add(120 * time.Second), End: base.Add(160 * time.Second)},
		},
	}
}

func TestSaveRunRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	run := store.Run{
		ID:         "0b6d3c1e-run-a",
		SessionKey: "9161",
		SourceDir:  "/data/9161",
		StartedAt:  base,
		FinishedAt: base.Add(2 * time.Second),
	}
	if err := st.SaveRun(ctx, run, sampleArtifacts()); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := st.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got == nil {
		t.Fatal("expected run to be stored")
	}
	if got.Status != store.StatusCompleted {
		t.Fatalf("status = %s", got.Status)
	}
	if got.FusedRows != 2 || got.LapCount != 2 || got.SCIntervals != 1 || got.VSCIntervals != 0 {
		t.Fatalf("unexpected counts %+v", got)
	}
	if got.Duration() != 2*time.Second {
		t.Fatalf("duration = %s", got.Duration())
	}

	rows, err := st.LapFeatures(ctx, run.ID)
	if err != nil {
		t.Fatalf("LapFeatures: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 feature rows, got %d", len(rows))
	}
	if rows[0].MinGap == nil || *rows[0].MinGap != 0.8 || rows[0].PairsBelow != 1 {
		t.Fatalf("unexpected gap stats %+v", rows[0])
	}
	if rows[0].Weather == nil || rows[0].Weather.AirTemperature != 30.1 {
		t.Fatalf("expected weather to round trip, got %+v", rows[0].Weather)
	}
	if !rows[0].ReferenceTime.Equal(base.Add(90 * time.Second)) {
		t.Fatalf("reference time = %s", rows[0].ReferenceTime)
	}
	if rows[1].MinGap != nil || rows[1].Weather != nil || !rows[1].SCActive {
		t.Fatalf("unexpected second row %+v", rows[1])
	}

	intervals, err := st.SafetyIntervals(ctx, run.ID)
	if err != nil {
		t.Fatalf("SafetyIntervals: %v", err)
	}
	if len(intervals) != 1 || intervals[0].Kind != racecontrol.SC || !intervals[0].End.Equal(base.Add(160*time.Second)) {
		t.Fatalf("unexpected intervals %+v", intervals)
	}

	n, err := st.FusedCount(ctx, run.ID)
	if err != nil || n != 2 {
		t.Fatalf("FusedCount = %d, %v", n, err)
	}
}

func TestSaveRunIsAllOrNothing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	run := store.Run{ID: "dup", SessionKey: "9161", StartedAt: base}
	if err := st.SaveRun(ctx, run, sampleArtifacts()); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	art := sampleArtifacts()
	art.Features = append(art.Features, art.Features[0])
	if err := st.SaveRun(ctx, store.Run{ID: "second", SessionKey: "9161", StartedAt: base}, art); err == nil {
		t.Fatal("expected duplicate lap number to fail")
	}
	got, err := st.GetRun(ctx, "second")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got != nil {
		t.Fatalf("failed save should leave no run behind, got %+v", got)
	}
	n, err := st.FusedCount(ctx, "second")
	if err != nil || n != 0 {
		t.Fatalf("failed save left %d fused rows (%v)", n, err)
	}
}

func TestRecordFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	run := store.Run{ID: "failed-1", SessionKey: "9161", StartedAt: base, ErrorMessage: "broken partition"}
	if err := st.RecordFailure(ctx, run); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	got, err := st.GetRun(ctx, "failed-1")
	if err != nil || got == nil {
		t.Fatalf("GetRun = %v, %v", got, err)
	}
	if got.Status != store.StatusFailed || got.ErrorMessage != "broken partition" {
		t.Fatalf("unexpected run %+v", got)
	}
	if !got.FinishedAt.IsZero() {
		t.Fatalf("expected no finish time, got %s", got.FinishedAt)
	}
}

func TestGetRunByPrefix(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	for _, id := range []string{"abc-1", "abc-2", "xyz_1"} {
		if err := st.RecordFailure(ctx, store.Run{ID: id, SessionKey: "s", StartedAt: base}); err != nil {
			t.Fatalf("RecordFailure %s: %v", id, err)
		}
	}

	got, err := st.GetRun(ctx, "xyz")
	if err != nil || got == nil || got.ID != "xyz_1" {
		t.Fatalf("prefix lookup = %+v, %v", got, err)
	}
	if _, err := st.GetRun(ctx, "abc"); !errors.Is(err, store.ErrAmbiguousRunID) {
		t.Fatalf("expected ambiguous error, got %v", err)
	}
	got, err = st.GetRun(ctx, "xy_")
	if err != nil || got != nil {
		t.Fatalf("underscore should match literally, got %+v, %v", got, err)
	}
	got, err = st.GetRun(ctx, "missing")
	if err != nil || got != nil {
		t.Fatalf("expected no match, got %+v, %v", got, err)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	runs := []store.Run{
		{ID: "old", SessionKey: "a", StartedAt: base},
		{ID: "new", SessionKey: "a", StartedAt: base.Add(time.Hour)},
		{ID: "other", SessionKey: "b", StartedAt: base.Add(30 * time.Minute)},
	}
	for _, run := range runs {
		if err := st.RecordFailure(ctx, run); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}

	all, err := st.ListRuns(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(all) != 3 || all[0].ID != "new" || all[1].ID != "other" || all[2].ID != "old" {
		t.Fatalf("unexpected order %+v", all)
	}

	scoped, err := st.ListRuns(ctx, "a", 1)
	if err != nil {
		t.Fatalf("ListRuns scoped: %v", err)
	}
	if len(scoped) != 1 || scoped[0].ID != "new" {
		t.Fatalf("unexpected scoped list %+v", scoped)
	}
}

func TestDeleteRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if err := st.SaveRun(ctx, store.Run{ID: "gone", SessionKey: "9161", StartedAt: base}, sampleArtifacts()); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	removed, err := st.DeleteRun(ctx, "gone")
	if err != nil || !removed {
		t.Fatalf("DeleteRun = %v, %v", removed, err)
	}
	rows, err := st.LapFeatures(ctx, "gone")
	if err != nil || len(rows) != 0 {
		t.Fatalf("expected feature rows removed, got %d (%v)", len(rows), err)
	}
	removed, err = st.DeleteRun(ctx, "gone")
	if err != nil || removed {
		t.Fatalf("second delete = %v, %v", removed, err)
	}
}

func TestOpenReusesExistingDatabase(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := first.RecordFailure(context.Background(), store.Run{ID: "kept", SessionKey: "s", StartedAt: base}); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second := testsupport.MustOpenStore(t, cfg)
	got, err := second.GetRun(context.Background(), "kept")
	if err != nil || got == nil {
		t.Fatalf("expected run to survive reopen, got %+v, %v", got, err)
	}
}
