// Package export writes fused samples and lap features as RFC 4180 CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"lapfusion/internal/features"
	"lapfusion/internal/fusion"
	"lapfusion/internal/racecontrol"
	"lapfusion/internal/telemetry"
)

// FeatureHeader is the column order of WriteFeatures.
var FeatureHeader = []string{
	"session_key",
	"lap_number",
	"total_laps",
	"reference_time",
	"sc_active",
	"vsc_active",
	"num_cars_running",
	"min_gap",
	"pairs_lt_1s",
	"pit_count",
	"avg_tyre_age",
	"air_temperature",
	"humidity",
	"pressure",
	"rainfall",
	"track_temperature",
	"wind_direction",
	"wind_speed",
	"label",
}

// Column selects one payload field. Name is the header; Keys are looked up in
// order, so "lat|latitude" reads whichever alias the provider sent.
type Column struct {
	Name string
	Keys []string
}

// ParseColumn turns "name" or "a|b|c" into a Column named after the first
// alias.
func ParseColumn(spec string) Column {
	var keys []string
	for _, k := range strings.Split(spec, "|") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return Column{}
	}
	return Column{Name: keys[0], Keys: keys}
}

// ParseColumns applies ParseColumn to each entry and skips empty ones.
func ParseColumns(specs []string) []Column {
	out := make([]Column, 0, len(specs))
	for _, s := range specs {
		if c := ParseColumn(s); c.Name != "" {
			out = append(out, c)
		}
	}
	return out
}

// FusedColumns chooses which payload fields of each series are written.
// Secondary headers carry SecondaryPrefix so they never collide with primary
// ones.
type FusedColumns struct {
	Primary         []Column
	Secondary       []Column
	SecondaryPrefix string
}

// FusedHeader returns the header WriteFused emits for cols.
func FusedHeader(cols FusedColumns) []string {
	header := []string{"driver", "timestamp", "lap_number"}
	for _, c := range cols.Primary {
		header = append(header, c.Name)
	}
	header = append(header, "secondary_timestamp")
	for _, c := range cols.Secondary {
		header = append(header, cols.SecondaryPrefix+c.Name)
	}
	return header
}

// WriteFused writes one CSV row per fused sample.
func WriteFused(w io.Writer, samples []fusion.Sample, cols FusedColumns) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(FusedHeader(cols)); err != nil {
		return fmt.Errorf("write fused header: %w", err)
	}
	for _, s := range samples {
		rec := []string{strconv.Itoa(s.Driver), formatTime(s.Timestamp), ""}
		if s.HasLap {
			rec[2] = strconv.Itoa(s.Lap)
		}
		for _, c := range cols.Primary {
			rec = append(rec, s.Primary.String(c.Keys...))
		}
		if s.Secondary == nil {
			rec = append(rec, "")
			for range cols.Secondary {
				rec = append(rec, "")
			}
		} else {
			rec = append(rec, formatTime(s.SecondaryTime))
			for _, c := range cols.Secondary {
				rec = append(rec, s.Secondary.String(c.Keys...))
			}
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write fused row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFeatures writes the lap feature table. Missing values are empty cells.
func WriteFeatures(w io.Writer, rows []features.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(FeatureHeader); err != nil {
		return fmt.Errorf("write feature header: %w", err)
	}
	for _, row := range rows {
		if err := cw.Write(FeatureRecord(row)); err != nil {
			return fmt.Errorf("write lap %d: %w", row.LapNumber, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// FeatureRecord renders row in FeatureHeader order.
func FeatureRecord(row features.Row) []string {
	rec := []string{
		row.SessionKey,
		strconv.Itoa(row.LapNumber),
		strconv.Itoa(row.TotalLaps),
		formatTime(row.ReferenceTime),
		formatBool(row.SCActive),
		formatBool(row.VSCActive),
		strconv.Itoa(row.NumCarsRunning),
		formatOptional(row.MinGap),
		strconv.Itoa(row.PairsBelow),
		strconv.Itoa(row.PitCount),
		formatOptional(row.AvgTyreAge),
	}
	rec = append(rec, weatherCells(row.Weather)...)
	return append(rec, strconv.Itoa(row.Label))
}

// IntervalHeader is the column order of WriteIntervals.
var IntervalHeader = []string{"kind", "start", "end", "duration_s"}

// WriteIntervals writes one row per closed safety interval.
func WriteIntervals(w io.Writer, intervals racecontrol.Intervals) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(IntervalHeader); err != nil {
		return fmt.Errorf("write interval header: %w", err)
	}
	for _, iv := range intervals {
		rec := []string{
			string(iv.Kind),
			formatTime(iv.Start),
			formatTime(iv.End),
			formatFloat(iv.End.Sub(iv.Start).Seconds()),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write interval: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func weatherCells(w *telemetry.WeatherSample) []string {
	if w == nil {
		return make([]string, 7)
	}
	return []string{
		formatFloat(w.AirTemperature),
		formatFloat(w.Humidity),
		formatFloat(w.Pressure),
		formatFloat(w.Rainfall),
		formatFloat(w.TrackTemperature),
		formatFloat(w.WindDirection),
		formatFloat(w.WindSpeed),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatOptional(f *float64) string {
	if f == nil {
		return ""
	}
	return formatFloat(*f)
}
