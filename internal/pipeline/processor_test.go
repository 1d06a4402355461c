package pipeline_test

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"lapfusion/internal/export"
	"lapfusion/internal/outputdir"
	"lapfusion/internal/pipeline"
	"lapfusion/internal/source"
	"lapfusion/internal/store"
	"lapfusion/internal/testsupport"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	return records
}

func TestProcessPublishesAndStores(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	dir := testsupport.WriteSession(t, t.TempDir(), "9161", testsupport.RaceSession())

	report, err := pipeline.NewProcessor(cfg, st, nil).Process(context.Background(), dir, "")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if report.Run.Status != store.StatusCompleted || report.Run.LapCount != 3 || report.Run.SCIntervals != 1 {
		t.Fatalf("unexpected run %+v", report.Run)
	}
	if len(report.Artifacts) != 3 {
		t.Fatalf("expected 3 artifacts, got %+v", report.Artifacts)
	}

	outDir := filepath.Join(cfg.Paths.OutputDir, "9161")
	featureRows := readCSV(t, filepath.Join(outDir, outputdir.FeaturesFile))
	if len(featureRows) != 4 || featureRows[0][0] != export.FeatureHeader[0] {
		t.Fatalf("unexpected features.csv %v", featureRows)
	}
	fused := readCSV(t, filepath.Join(outDir, outputdir.FusedFile))
	if len(fused) != 4 || fused[0][3] != "speed" {
		t.Fatalf("unexpected fused.csv header %v", fused[0])
	}
	intervals := readCSV(t, filepath.Join(outDir, outputdir.IntervalsFile))
	if len(intervals) != 2 || intervals[1][0] != "SC" {
		t.Fatalf("unexpected intervals.csv %v", intervals)
	}
	if _, err := os.Stat(filepath.Join(outDir, "logs", report.Run.ID+".log")); err != nil {
		t.Fatalf("expected run log: %v", err)
	}

	stored, err := st.GetRun(context.Background(), report.Run.ID)
	if err != nil || stored == nil {
		t.Fatalf("GetRun = %+v, %v", stored, err)
	}
	if stored.OutputDir != outDir || stored.FusedRows != 3 {
		t.Fatalf("unexpected stored run %+v", stored)
	}
	rows, err := st.LapFeatures(context.Background(), report.Run.ID)
	if err != nil || len(rows) != 3 || rows[0].Label != 1 {
		t.Fatalf("stored features = %+v, %v", rows, err)
	}
}

func TestProcessWithoutStore(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutStore())
	dir := testsupport.WriteSession(t, t.TempDir(), "9161", testsupport.RaceSession())

	report, err := pipeline.NewProcessor(cfg, nil, nil).Process(context.Background(), dir, "monza-race")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if report.Run.SessionKey != "monza-race" {
		t.Fatalf("explicit key should win, got %q", report.Run.SessionKey)
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.OutputDir, "monza-race", outputdir.FeaturesFile)); err != nil {
		t.Fatalf("expected features.csv: %v", err)
	}
	if _, err := os.Stat(cfg.Paths.DatabasePath); !os.IsNotExist(err) {
		t.Fatalf("database must not be created when the store is disabled, stat err=%v", err)
	}
}

func TestProcessMalformedSessionPublishesNothing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	files := testsupport.RaceSession()
	files["pit"] = `{"driver_number": 1}`
	dir := testsupport.WriteSession(t, t.TempDir(), "9161", files)

	report, err := pipeline.NewProcessor(cfg, st, nil).Process(context.Background(), dir, "")
	if report != nil {
		t.Fatal("failed run must not return a report")
	}
	if !errors.Is(err, pipeline.ErrInput) || !errors.Is(err, source.ErrMalformed) {
		t.Fatalf("expected malformed input error, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.OutputDir, "9161", outputdir.FeaturesFile)); !os.IsNotExist(err) {
		t.Fatalf("no output may be published, stat err=%v", err)
	}

	runs, err := st.ListRuns(context.Background(), "9161", 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != store.StatusFailed || runs[0].ErrorMessage == "" {
		t.Fatalf("expected one failed run, got %+v", runs)
	}
}

func TestProcessRejectsBusySession(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutStore())
	dir := testsupport.WriteSession(t, t.TempDir(), "9161", testsupport.RaceSession())

	held, err := outputdir.Open(cfg.Paths.OutputDir, "9161")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer held.Close()

	_, err = pipeline.NewProcessor(cfg, nil, nil).Process(context.Background(), dir, "")
	if !errors.Is(err, pipeline.ErrBusy) || !errors.Is(err, outputdir.ErrLocked) {
		t.Fatalf("expected busy error, got %v", err)
	}
	if code := pipeline.ExitCode(err); code != 6 {
		t.Fatalf("exit code = %d", code)
	}
}

func TestProcessPreflightRejectsIncompleteSession(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutStore())
	dir := testsupport.WriteSession(t, t.TempDir(), "9161", map[string]string{"laps": "[]"})

	_, err := pipeline.NewProcessor(cfg, nil, nil).Process(context.Background(), dir, "")
	if !errors.Is(err, pipeline.ErrInput) {
		t.Fatalf("expected input error from preflight, got %v", err)
	}

	p := pipeline.NewProcessor(cfg, nil, nil)
	p.SkipPreflight = true
	report, err := p.Process(context.Background(), dir, "")
	if err != nil {
		t.Fatalf("missing series are empty once preflight is skipped: %v", err)
	}
	if len(report.Result.Fused) != 0 || len(report.Missing) != len(source.Endpoints)-1 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestProcessAllKeepsSessionsIndependent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	root := t.TempDir()
	good := testsupport.WriteSession(t, root, "9161", testsupport.RaceSession())
	badFiles := testsupport.RaceSession()
	badFiles["laps"] = `[1, 2, 3]`
	bad := testsupport.WriteSession(t, root, "9162", badFiles)
	other := testsupport.WriteSession(t, root, "9163", testsupport.RaceSession())

	var seen int
	outcomes := pipeline.NewProcessor(cfg, st, nil).ProcessAll(context.Background(), []pipeline.Job{
		{Dir: good}, {Dir: bad}, {Dir: other},
	}, 2, func(pipeline.Outcome) { seen++ })

	if seen != 3 || len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d (callback %d)", len(outcomes), seen)
	}
	if outcomes[0].Err != nil || outcomes[2].Err != nil {
		t.Fatalf("good sessions failed: %v / %v", outcomes[0].Err, outcomes[2].Err)
	}
	if outcomes[1].Err == nil || outcomes[1].Job.Dir != bad {
		t.Fatalf("expected second job to fail, got %+v", outcomes[1])
	}
	runs, err := st.ListRuns(context.Background(), "", 0)
	if err != nil || len(runs) != 3 {
		t.Fatalf("expected 3 stored runs, got %d (%v)", len(runs), err)
	}
}
