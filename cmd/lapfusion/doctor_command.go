package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"lapfusion/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor [session-dir...]",
		Short: "Check directories, free space, the result database, and session inputs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			results := preflight.RunAll(cmd.Context(), cfg)
			for _, dir := range args {
				results = append(results, preflight.CheckSessionDir(dir, cfg))
			}

			out := cmd.OutOrStdout()
			pass := color.New(color.FgGreen, color.Bold)
			fail := color.New(color.FgRed, color.Bold)
			if !isTerminal(out) {
				pass.DisableColor()
				fail.DisableColor()
			}

			width := 0
			for _, r := range results {
				width = max(width, len(r.Name))
			}
			for _, r := range results {
				status := pass.Sprint("PASS")
				if !r.Passed {
					status = fail.Sprint("FAIL")
				}
				fmt.Fprintf(out, "%s  %-*s  %s\n", status, width, r.Name, r.Detail)
			}

			failed := preflight.Failed(results)
			if len(failed) == 0 {
				fmt.Fprintln(out, "All checks passed")
				return nil
			}
			names := make([]string, 0, len(failed))
			for _, r := range failed {
				names = append(names, r.Name)
			}
			return fmt.Errorf("%d check(s) failed: %s", len(failed), strings.Join(names, ", "))
		},
	}
}
