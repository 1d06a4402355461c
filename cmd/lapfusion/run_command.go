package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"lapfusion/internal/pipeline"
	"lapfusion/internal/store"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		keyFlag       string
		jobs          int
		skipPreflight bool
		noStore       bool
		formatFlag    string
	)

	cmd := &cobra.Command{
		Use:   "run <session-dir> [session-dir...]",
		Short: "Fuse telemetry and build lap features for one or more sessions",
		Long: "Each session directory holds the provider's JSON exports (car_data.json, location.json,\n" +
			"laps.json, race_control.json, pit.json, stints.json, weather.json). Outputs are written\n" +
			"to <output_dir>/<session>/ and recorded in the result database.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseFormat(formatFlag, false)
			if err != nil {
				return err
			}
			if strings.TrimSpace(keyFlag) != "" && len(args) > 1 {
				return fmt.Errorf("--key applies to a single session, got %d directories", len(args))
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			var st *store.Store
			if cfg.Store.Enabled && !noStore {
				st, err = store.Open(cfg)
				if err != nil {
					return pipeline.Wrap(pipeline.ErrStorage, "store", "open", cfg.Paths.DatabasePath, err)
				}
				defer st.Close()
			}

			processor := pipeline.NewProcessor(cfg, st, logger)
			processor.SkipPreflight = skipPreflight

			runJobs := make([]pipeline.Job, len(args))
			for i, dir := range args {
				runJobs[i] = pipeline.Job{Dir: dir, Key: keyFlag}
			}

			var bar *progressbar.ProgressBar
			if len(runJobs) > 1 && isTerminal(cmd.ErrOrStderr()) {
				bar = newProgressBar(cmd.ErrOrStderr(), len(runJobs))
			}
			outcomes := processor.ProcessAll(cmd.Context(), runJobs, jobs, func(pipeline.Outcome) {
				if bar != nil {
					_ = bar.Add(1)
				}
			})
			if bar != nil {
				_ = bar.Finish()
			}

			return reportOutcomes(cmd, format, outcomes)
		},
	}

	cmd.Flags().StringVarP(&keyFlag, "key", "k", "", "Session key (defaults to the directory name)")
	cmd.Flags().IntVarP(&jobs, "jobs", "j", 1, "Sessions to process in parallel")
	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Skip directory, free space, and database checks")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "Do not record the run in the result database")
	cmd.Flags().StringVar(&formatFlag, "format", "auto", "Summary format: auto, table, or csv")
	return cmd
}

func newProgressBar(w io.Writer, total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("fusing sessions"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

// reportOutcomes prints one summary row per session and folds failures into
// the highest exit code seen.
func reportOutcomes(cmd *cobra.Command, format outputFormat, outcomes []pipeline.Outcome) error {
	headers := []string{"Session", "Run", "Laps", "Fused", "SC", "VSC", "Status", "Output"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft, alignLeft}
	rows := make([][]string, 0, len(outcomes))

	var (
		failures []string
		code     int
		firstErr error
	)
	for _, o := range outcomes {
		if o.Err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v (hint: %s)", o.Job.Dir, o.Err, pipeline.Hint(o.Err)))
			if c := pipeline.ExitCode(o.Err); c > code {
				code = c
			}
			if firstErr == nil {
				firstErr = o.Err
			}
			rows = append(rows, []string{sessionLabel(o.Job), "", "", "", "", "", "failed", ""})
			continue
		}
		run := o.Report.Run
		rows = append(rows, []string{
			run.SessionKey,
			shortID(run.ID),
			strconv.Itoa(run.LapCount),
			strconv.Itoa(run.FusedRows),
			strconv.Itoa(run.SCIntervals),
			strconv.Itoa(run.VSCIntervals),
			string(run.Status),
			run.OutputDir,
		})
	}

	if err := writeRows(cmd, format, headers, rows, aligns); err != nil {
		return err
	}
	if len(failures) == 0 {
		return nil
	}
	if len(outcomes) == 1 {
		fmt.Fprintf(cmd.ErrOrStderr(), "hint: %s\n", pipeline.Hint(firstErr))
		return firstErr
	}
	for _, f := range failures {
		fmt.Fprintln(cmd.ErrOrStderr(), f)
	}
	return &exitError{code: code, err: fmt.Errorf("%d of %d sessions failed", len(failures), len(outcomes))}
}

func sessionLabel(job pipeline.Job) string {
	if strings.TrimSpace(job.Key) != "" {
		return job.Key
	}
	return job.Dir
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
