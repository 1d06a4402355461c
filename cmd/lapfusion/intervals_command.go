package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"lapfusion/internal/export"
	"lapfusion/internal/racecontrol"
	"lapfusion/internal/source"
	"lapfusion/internal/telemetry"
)

func newIntervalsCommand(ctx *commandContext) *cobra.Command {
	var formatFlag string
	var showUnmatched bool

	cmd := &cobra.Command{
		Use:   "intervals <session-dir>",
		Short: "Extract safety car and VSC periods from a session's race control log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseFormat(formatFlag, false)
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			records, err := source.ReadFile(filepath.Join(args[0], source.RaceControl+".json"))
			if err != nil {
				return fmt.Errorf("read race control log: %w", err)
			}
			events, _ := telemetry.ParseAll(records, telemetry.ParseRaceControl)
			res := racecontrol.Extract(events, cfg.Classifier())

			if format == formatCSV || (format == formatAuto && !isTerminal(cmd.OutOrStdout())) {
				if err := export.WriteIntervals(cmd.OutOrStdout(), res.Intervals); err != nil {
					return err
				}
			} else {
				if err := writeRows(cmd, formatTable, []string{"Kind", "Start", "End", "Duration"},
					intervalRows(res.Intervals), []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight}); err != nil {
					return err
				}
			}

			errOut := cmd.ErrOrStderr()
			for _, iv := range res.Dropped {
				fmt.Fprintf(errOut, "warning: %s started %s never ended; not counted\n", iv.Kind, iv.Start.Format("15:04:05"))
			}
			if len(res.Unmatched) > 0 {
				fmt.Fprintf(errOut, "warning: %d safety car messages matched no rule\n", len(res.Unmatched))
				if showUnmatched {
					for _, ev := range res.Unmatched {
						fmt.Fprintf(errOut, "  %s  %s\n", ev.Time.Format("15:04:05"), ev.Message)
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&formatFlag, "format", "auto", "Output format: auto, table, or csv")
	cmd.Flags().BoolVar(&showUnmatched, "show-unmatched", false, "List messages no classifier rule matched")
	return cmd
}

func intervalRows(intervals racecontrol.Intervals) [][]string {
	rows := make([][]string, 0, len(intervals))
	for _, iv := range intervals {
		rows = append(rows, []string{
			string(iv.Kind),
			iv.Start.UTC().Format("2006-01-02 15:04:05.000"),
			iv.End.UTC().Format("2006-01-02 15:04:05.000"),
			strconv.FormatFloat(iv.End.Sub(iv.Start).Seconds(), 'f', 1, 64) + "s",
		})
	}
	return rows
}
