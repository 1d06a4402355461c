package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"lapfusion/internal/store"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect and manage recorded runs",
	}
	runsCmd.AddCommand(newRunsListCommand(ctx))
	runsCmd.AddCommand(newRunsShowCommand(ctx))
	runsCmd.AddCommand(newRunsRemoveCommand(ctx))
	runsCmd.AddCommand(newRunsLogCommand(ctx))
	return runsCmd
}

func newRunsListCommand(ctx *commandContext) *cobra.Command {
	var sessionFlag string
	var limit int
	var formatFlag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseFormat(formatFlag, true)
			if err != nil {
				return err
			}
			return ctx.withStore(func(st *store.Store) error {
				runs, err := st.ListRuns(cmd.Context(), sessionFlag, limit)
				if err != nil {
					return err
				}
				if format == formatJSON {
					views := make([]runView, 0, len(runs))
					for _, run := range runs {
						views = append(views, newRunView(run))
					}
					return writeJSON(cmd, views)
				}
				if len(runs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
					return nil
				}
				headers := []string{"ID", "Session", "Status", "Started", "Laps", "Fused", "SC", "VSC"}
				aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight}
				rows := make([][]string, 0, len(runs))
				now := time.Now()
				for _, run := range runs {
					rows = append(rows, []string{
						shortID(run.ID),
						run.SessionKey,
						string(run.Status),
						humanize.RelTime(run.StartedAt, now, "ago", "from now"),
						strconv.Itoa(run.LapCount),
						strconv.Itoa(run.FusedRows),
						strconv.Itoa(run.SCIntervals),
						strconv.Itoa(run.VSCIntervals),
					})
				}
				return writeRows(cmd, format, headers, rows, aligns)
			})
		},
	}

	cmd.Flags().StringVarP(&sessionFlag, "session", "s", "", "Only list runs of this session")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs (0 for all)")
	cmd.Flags().StringVar(&formatFlag, "format", "auto", "Output format: auto, table, csv, or json")
	return cmd
}

func newRunsShowCommand(ctx *commandContext) *cobra.Command {
	var formatFlag string

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show details of a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseFormat(formatFlag, true)
			if err != nil {
				return err
			}
			return ctx.withStore(func(st *store.Store) error {
				run, err := st.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if run == nil {
					return fmt.Errorf("run %s not found", args[0])
				}
				intervals, err := st.SafetyIntervals(cmd.Context(), run.ID)
				if err != nil {
					return err
				}

				view := newRunView(*run)
				for _, iv := range intervals {
					view.Intervals = append(view.Intervals, intervalView{
						Kind:     string(iv.Kind),
						Start:    iv.Start.UTC(),
						End:      iv.End.UTC(),
						Duration: iv.End.Sub(iv.Start).Seconds(),
					})
				}
				if format == formatJSON {
					return writeJSON(cmd, view)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Run:        %s\n", run.ID)
				fmt.Fprintf(out, "Session:    %s\n", run.SessionKey)
				fmt.Fprintf(out, "Status:     %s\n", run.Status)
				if run.ErrorMessage != "" {
					fmt.Fprintf(out, "Error:      %s\n", run.ErrorMessage)
				}
				fmt.Fprintf(out, "Source:     %s\n", run.SourceDir)
				if run.OutputDir != "" {
					fmt.Fprintf(out, "Output:     %s\n", run.OutputDir)
				}
				fmt.Fprintf(out, "Started:    %s (%s)\n", run.StartedAt.Local().Format(time.DateTime), humanize.Time(run.StartedAt))
				if d := run.Duration(); d > 0 {
					fmt.Fprintf(out, "Duration:   %s\n", d.Round(time.Millisecond))
				}
				fmt.Fprintf(out, "Laps:       %d\n", run.LapCount)
				fmt.Fprintf(out, "Fused rows: %s\n", humanize.Comma(int64(run.FusedRows)))
				if run.DroppedIntervals > 0 {
					fmt.Fprintf(out, "Dropped:    %d unclosed interval(s)\n", run.DroppedIntervals)
				}
				if len(intervals) == 0 {
					return nil
				}
				fmt.Fprintln(out)
				return writeRows(cmd, format, []string{"Kind", "Start", "End", "Duration"},
					intervalRows(intervals), []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight})
			})
		},
	}

	cmd.Flags().StringVar(&formatFlag, "format", "auto", "Output format: auto, table, csv, or json")
	return cmd
}

func newRunsRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <run-id> [run-id...]",
		Short: "Remove runs and their stored artifacts from the database",
		Long:  "Output files under the session directory are left in place.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				out := cmd.OutOrStdout()
				var missing []string
				for _, id := range args {
					run, err := st.GetRun(cmd.Context(), id)
					if err != nil {
						return err
					}
					if run == nil {
						missing = append(missing, id)
						continue
					}
					removed, err := st.DeleteRun(cmd.Context(), run.ID)
					if err != nil {
						return fmt.Errorf("remove run %s: %w", shortID(run.ID), err)
					}
					if removed {
						fmt.Fprintf(out, "Removed run %s (%s)\n", shortID(run.ID), run.SessionKey)
					}
				}
				if len(missing) > 0 {
					return errors.New("runs not found: " + strings.Join(missing, ", "))
				}
				return nil
			})
		},
	}
}

type runView struct {
	ID               string         `json:"id"`
	SessionKey       string         `json:"session_key"`
	Status           string         `json:"status"`
	Error            string         `json:"error,omitempty"`
	SourceDir        string         `json:"source_dir"`
	OutputDir        string         `json:"output_dir,omitempty"`
	StartedAt        time.Time      `json:"started_at"`
	FinishedAt       *time.Time     `json:"finished_at,omitempty"`
	LapCount         int            `json:"lap_count"`
	FusedRows        int            `json:"fused_rows"`
	SCIntervals      int            `json:"sc_intervals"`
	VSCIntervals     int            `json:"vsc_intervals"`
	DroppedIntervals int            `json:"dropped_intervals"`
	Intervals        []intervalView `json:"intervals,omitempty"`
}

type intervalView struct {
	Kind     string    `json:"kind"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Duration float64   `json:"duration_s"`
}

func newRunView(run store.Run) runView {
	view := runView{
		ID:               run.ID,
		SessionKey:       run.SessionKey,
		Status:           string(run.Status),
		Error:            run.ErrorMessage,
		SourceDir:        run.SourceDir,
		OutputDir:        run.OutputDir,
		StartedAt:        run.StartedAt.UTC(),
		LapCount:         run.LapCount,
		FusedRows:        run.FusedRows,
		SCIntervals:      run.SCIntervals,
		VSCIntervals:     run.VSCIntervals,
		DroppedIntervals: run.DroppedIntervals,
	}
	if !run.FinishedAt.IsZero() {
		finished := run.FinishedAt.UTC()
		view.FinishedAt = &finished
	}
	return view
}
