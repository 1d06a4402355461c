package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"lapfusion/internal/export"
	"lapfusion/internal/features"
	"lapfusion/internal/store"
)

func newFeaturesCommand(ctx *commandContext) *cobra.Command {
	var sessionFlag string
	var formatFlag string

	cmd := &cobra.Command{
		Use:   "features [run-id]",
		Short: "Print the lap feature table of a stored run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseFormat(formatFlag, false)
			if err != nil {
				return err
			}
			if len(args) == 0 && strings.TrimSpace(sessionFlag) == "" {
				return errors.New("specify a run id or --session")
			}
			return ctx.withStore(func(st *store.Store) error {
				run, err := resolveRun(cmd.Context(), st, args, sessionFlag)
				if err != nil {
					return err
				}
				rows, err := st.LapFeatures(cmd.Context(), run.ID)
				if err != nil {
					return err
				}
				if format == formatCSV || (format == formatAuto && !isTerminal(cmd.OutOrStdout())) {
					return export.WriteFeatures(cmd.OutOrStdout(), rows)
				}
				return writeRows(cmd, formatTable, featureTableHeaders, featureTableRows(rows), featureTableAligns)
			})
		},
	}

	cmd.Flags().StringVarP(&sessionFlag, "session", "s", "", "Use the latest completed run of this session")
	cmd.Flags().StringVar(&formatFlag, "format", "auto", "Output format: auto, table, or csv")
	return cmd
}

// resolveRun picks the run named by args[0], else the newest completed run of
// session.
func resolveRun(ctx context.Context, st *store.Store, args []string, session string) (*store.Run, error) {
	if len(args) > 0 {
		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return nil, err
		}
		if run == nil {
			return nil, fmt.Errorf("run %s not found", args[0])
		}
		if run.Status != store.StatusCompleted {
			return nil, fmt.Errorf("run %s %s: %s", shortID(run.ID), run.Status, run.ErrorMessage)
		}
		return run, nil
	}
	runs, err := st.ListRuns(ctx, session, 0)
	if err != nil {
		return nil, err
	}
	for i := range runs {
		if runs[i].Status == store.StatusCompleted {
			return &runs[i], nil
		}
	}
	return nil, fmt.Errorf("no completed run for session %q", session)
}

var featureTableHeaders = []string{"Lap", "SC", "VSC", "Cars", "Min gap", "<1s", "Pits", "Tyre age", "Air", "Track", "Rain", "Label"}

var featureTableAligns = []columnAlignment{
	alignRight, alignLeft, alignLeft, alignRight, alignRight, alignRight,
	alignRight, alignRight, alignRight, alignRight, alignRight, alignRight,
}

func featureTableRows(rows []features.Row) [][]string {
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		air, track, rain := "", "", ""
		if w := row.Weather; w != nil {
			air = strconv.FormatFloat(w.AirTemperature, 'f', 1, 64)
			track = strconv.FormatFloat(w.TrackTemperature, 'f', 1, 64)
			rain = strconv.FormatFloat(w.Rainfall, 'f', -1, 64)
		}
		out = append(out, []string{
			strconv.Itoa(row.LapNumber),
			yesNo(row.SCActive),
			yesNo(row.VSCActive),
			strconv.Itoa(row.NumCarsRunning),
			optionalFloat(row.MinGap, 3),
			strconv.Itoa(row.PairsBelow),
			strconv.Itoa(row.PitCount),
			optionalFloat(row.AvgTyreAge, 1),
			air,
			track,
			rain,
			strconv.Itoa(row.Label),
		})
	}
	return out
}

func optionalFloat(v *float64, prec int) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', prec, 64)
}
