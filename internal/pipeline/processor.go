package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"lapfusion/internal/config"
	"lapfusion/internal/export"
	"lapfusion/internal/logging"
	"lapfusion/internal/outputdir"
	"lapfusion/internal/preflight"
	"lapfusion/internal/racecontrol"
	"lapfusion/internal/source"
	"lapfusion/internal/store"
)

// Processor runs sessions end to end: load, fuse, stage the CSV outputs,
// persist to the store, then publish.
type Processor struct {
	cfg    *config.Config
	store  *store.Store
	logger *slog.Logger

	// SkipPreflight disables the directory and database checks.
	SkipPreflight bool
	now           func() time.Time
}

// Report describes one processed session.
type Report struct {
	Run       store.Run
	Result    *Result
	Artifacts []outputdir.Artifact
	// Missing lists endpoints with no file in the session directory.
	Missing []string
}

// NewProcessor builds a Processor. st may be nil when persistence is
// disabled.
func NewProcessor(cfg *config.Config, st *store.Store, logger *slog.Logger) *Processor {
	return &Processor{
		cfg:    cfg,
		store:  st,
		logger: logging.NewComponentLogger(logger, "processor"),
		now:    time.Now,
	}
}

// Process handles one session directory. key overrides the session key,
// which otherwise is the directory name.
func (p *Processor) Process(ctx context.Context, dir, key string) (*Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	run := store.Run{
		ID:         uuid.NewString(),
		SessionKey: sessionKeyFor(dir, key),
		SourceDir:  dir,
		StartedAt:  p.now().UTC(),
	}
	ctx = logging.WithSessionKey(logging.WithRunID(ctx, run.ID), run.SessionKey)
	logger := logging.WithContext(ctx, p.logger)

	if !p.SkipPreflight {
		if err := p.preflight(ctx, dir); err != nil {
			return nil, p.fail(ctx, logger, run, err)
		}
	}

	sess, err := source.Load(dir, run.SessionKey)
	if err != nil {
		return nil, p.fail(ctx, logger, run, Wrap(ErrInput, "source", "load", dir, err))
	}
	if len(sess.Missing) > 0 {
		logger.Info("session files missing, treated as empty",
			logging.String(logging.FieldEventType, "source_missing"),
			logging.Any("endpoints", sess.Missing),
		)
	}

	ws, err := outputdir.Open(p.cfg.Paths.OutputDir, run.SessionKey)
	if err != nil {
		marker := ErrStorage
		if errors.Is(err, outputdir.ErrLocked) {
			marker = ErrBusy
		}
		return nil, p.fail(ctx, logger, run, Wrap(marker, "output", "lock", run.SessionKey, err))
	}
	defer func() {
		if cerr := ws.Close(); cerr != nil {
			logger.Warn("release output lock failed", logging.Error(cerr))
		}
	}()
	run.OutputDir = ws.Dir()

	// The run log keeps info detail even when the console is quieter.
	runLogger := logger
	if handler, closer, err := ws.OpenRunLog(run.ID, min(logging.ParseLevel(p.cfg.Logging.Level), slog.LevelInfo)); err != nil {
		logging.WarnWithContext(logger, "run log unavailable", "run_log_unavailable",
			logging.Error(err),
			logging.String(logging.FieldImpact, "run details only in the main log"),
		)
	} else {
		defer closer.Close()
		runLogger = logging.TeeLogger(logger, handler)
	}

	result, err := Run(ctx, InputFromSession(sess, p.cfg.Fusion.Primary, p.cfg.Fusion.Secondary), Options{
		RunID:      run.ID,
		Classifier: p.cfg.Classifier(),
		Features:   p.cfg.FeatureOptions(),
		Logger:     runLogger,
	})
	if err != nil {
		return nil, p.fail(ctx, runLogger, run, err)
	}
	run.DroppedIntervals = len(result.Safety.Dropped)

	if err := p.stage(ws, result); err != nil {
		return nil, p.fail(ctx, runLogger, run, Wrap(ErrStorage, "output", "stage", "", err))
	}

	run.FinishedAt = p.now().UTC()
	if p.store != nil {
		err := p.store.SaveRun(ctx, run, store.Artifacts{
			Fused:     result.Fused,
			Features:  result.Features,
			Intervals: result.Safety.Intervals,
		})
		if err != nil {
			ws.Abort()
			return nil, p.fail(ctx, runLogger, run, Wrap(ErrStorage, "store", "save run", "", err))
		}
	}

	artifacts, err := ws.Commit()
	if err != nil {
		if p.store != nil {
			if _, derr := p.store.DeleteRun(context.WithoutCancel(ctx), run.ID); derr != nil {
				runLogger.Warn("roll back stored run failed", logging.Error(derr))
			}
		}
		run.FinishedAt = time.Time{}
		return nil, p.fail(ctx, runLogger, run, Wrap(ErrStorage, "output", "publish", "", err))
	}
	for _, a := range artifacts {
		runLogger.Debug("published output",
			logging.String("file", a.Name),
			logging.String("sha256", a.Digest.SHA256),
			logging.Int("bytes", int(a.Digest.Size)),
		)
	}

	run.Status = store.StatusCompleted
	run.FusedRows = len(result.Fused)
	run.LapCount = len(result.Features)
	for _, iv := range result.Safety.Intervals {
		if iv.Kind == racecontrol.SC {
			run.SCIntervals++
		} else {
			run.VSCIntervals++
		}
	}
	runLogger.Info("session processed",
		logging.String(logging.FieldEventType, "session_processed"),
		logging.String("output_dir", run.OutputDir),
		logging.Duration("elapsed", run.Duration()),
	)
	return &Report{Run: run, Result: result, Artifacts: artifacts, Missing: sess.Missing}, nil
}

// Job is one session to process.
type Job struct {
	Dir string
	Key string
}

// Outcome pairs a Job with its report or error.
type Outcome struct {
	Job    Job
	Report *Report
	Err    error
}

// ProcessAll runs jobs on up to workers goroutines. Sessions are independent,
// so one failure does not stop the others. Outcomes keep job order. done is
// called after each job when non-nil.
func (p *Processor) ProcessAll(ctx context.Context, jobs []Job, workers int, done func(Outcome)) []Outcome {
	if workers < 1 {
		workers = 1
	}
	workers = min(workers, len(jobs))
	out := make([]Outcome, len(jobs))

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		queued = make(chan int)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range queued {
				job := jobs[idx]
				report, err := p.Process(ctx, job.Dir, job.Key)
				out[idx] = Outcome{Job: job, Report: report, Err: err}
				if done != nil {
					mu.Lock()
					done(out[idx])
					mu.Unlock()
				}
			}
		}()
	}
	for idx := range jobs {
		queued <- idx
	}
	close(queued)
	wg.Wait()
	return out
}

func (p *Processor) preflight(ctx context.Context, dir string) error {
	if err := p.cfg.EnsureDirectories(); err != nil {
		return Wrap(ErrStorage, "preflight", "ensure directories", "", err)
	}
	if res := preflight.CheckSessionDir(dir, p.cfg); !res.Passed {
		return Wrap(ErrInput, "preflight", res.Name, res.Detail, nil)
	}
	results := preflight.RunAll(ctx, p.cfg)
	if failed := preflight.Failed(results); len(failed) > 0 {
		return Wrap(ErrStorage, "preflight", failed[0].Name, failed[0].Detail, nil)
	}
	return nil
}

func (p *Processor) stage(ws *outputdir.Workspace, result *Result) error {
	cols := export.FusedColumns{
		Primary:         export.ParseColumns(p.cfg.Fusion.PrimaryColumns),
		Secondary:       export.ParseColumns(p.cfg.Fusion.SecondaryColumns),
		SecondaryPrefix: p.cfg.Fusion.SecondaryPrefix,
	}
	if err := ws.Stage(outputdir.FusedFile, func(w io.Writer) error {
		return export.WriteFused(w, result.Fused, cols)
	}); err != nil {
		return err
	}
	if err := ws.Stage(outputdir.FeaturesFile, func(w io.Writer) error {
		return export.WriteFeatures(w, result.Features)
	}); err != nil {
		return err
	}
	return ws.Stage(outputdir.IntervalsFile, func(w io.Writer) error {
		return export.WriteIntervals(w, result.Safety.Intervals)
	})
}

// fail logs err, records a failed run when a store is attached, and returns
// err unchanged.
func (p *Processor) fail(ctx context.Context, logger *slog.Logger, run store.Run, err error) error {
	logging.ErrorWithContext(logger, "session failed", "session_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, Hint(err)),
	)
	if p.store == nil {
		return err
	}
	run.ErrorMessage = err.Error()
	if rerr := p.store.RecordFailure(context.WithoutCancel(ctx), run); rerr != nil {
		logger.Warn("record failed run", logging.Error(rerr))
	}
	return err
}

func sessionKeyFor(dir, key string) string {
	if key = strings.TrimSpace(key); key != "" {
		return key
	}
	return filepath.Base(filepath.Clean(dir))
}
