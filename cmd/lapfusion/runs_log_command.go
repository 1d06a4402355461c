package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"lapfusion/internal/logging"
	"lapfusion/internal/logs"
	"lapfusion/internal/outputdir"
	"lapfusion/internal/store"
)

func newRunsLogCommand(ctx *commandContext) *cobra.Command {
	var (
		lines     int
		levelFlag string
		eventFlag string
	)

	cmd := &cobra.Command{
		Use:   "log <run-id>",
		Short: "Print the log written during a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				run, err := st.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if run == nil {
					return fmt.Errorf("run %s not found", args[0])
				}
				if run.OutputDir == "" {
					return fmt.Errorf("run %s has no output directory (failed before publishing)", shortID(run.ID))
				}

				filter := logs.Filter{EventType: eventFlag, Limit: lines, MinLevel: slog.LevelDebug}
				if strings.TrimSpace(levelFlag) != "" {
					filter.MinLevel = logging.ParseLevel(levelFlag)
				}
				res, err := logs.Read(outputdir.RunLogPath(run.OutputDir, run.ID), filter)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				for _, e := range res.Entries {
					line := fmt.Sprintf("%s %-5s %s", e.Time.UTC().Format("15:04:05.000"), strings.ToUpper(e.Level.String()), e.Message)
					if fields := e.FieldString(); fields != "" {
						line += " " + fields
					}
					fmt.Fprintln(out, line)
				}
				if res.Skipped > 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: skipped %d unreadable line(s)\n", res.Skipped)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 0, "Show only the last N matching entries (0 for all)")
	cmd.Flags().StringVar(&levelFlag, "level", "", "Minimum level (debug, info, warn, error)")
	cmd.Flags().StringVar(&eventFlag, "event", "", "Only entries with this event_type")
	return cmd
}
