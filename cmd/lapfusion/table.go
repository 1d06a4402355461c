package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

type outputFormat string

const (
	formatAuto  outputFormat = "auto"
	formatTable outputFormat = "table"
	formatCSV   outputFormat = "csv"
	formatJSON  outputFormat = "json"
)

// parseFormat validates a --format value. allowJSON is false for commands
// that only print rows.
func parseFormat(value string, allowJSON bool) (outputFormat, error) {
	switch f := outputFormat(strings.ToLower(strings.TrimSpace(value))); f {
	case "", formatAuto:
		return formatAuto, nil
	case formatTable, formatCSV:
		return f, nil
	case formatJSON:
		if allowJSON {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported --format %q", value)
}

// writeRows renders a table on a terminal and CSV otherwise, unless the
// format is explicit.
func writeRows(cmd *cobra.Command, format outputFormat, headers []string, rows [][]string, aligns []columnAlignment) error {
	out := cmd.OutOrStdout()
	if format == formatAuto {
		format = formatCSV
		if isTerminal(out) {
			format = formatTable
		}
	}
	if format == formatTable {
		_, err := fmt.Fprintln(out, renderTable(headers, rows, aligns))
		return err
	}
	cw := csv.NewWriter(out)
	if err := cw.Write(headers); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}
