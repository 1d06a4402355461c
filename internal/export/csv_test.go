package export_test

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"lapfusion/internal/export"
	"lapfusion/internal/features"
	"lapfusion/internal/fusion"
	"lapfusion/internal/racecontrol"
	"lapfusion/internal/telemetry"
)

func TestWriteFeaturesRoundTripsQuotedSessionKey(t *testing.T) {
	key := `Monza, "Gran Premio" 2023`
	gap := 0.25
	rows := []features.Row{
		{SessionKey: key, LapNumber: 1, TotalLaps: 2, MinGap: &gap, PairsBelow: 1, Label: 1},
		{SessionKey: key, LapNumber: 2, TotalLaps: 2},
	}

	var buf bytes.Buffer
	if err := export.WriteFeatures(&buf, rows); err != nil {
		t.Fatalf("WriteFeatures: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(records))
	}
	if strings.Join(records[0], ",") != strings.Join(export.FeatureHeader, ",") {
		t.Fatalf("unexpected header %v", records[0])
	}
	for i, rec := range records[1:] {
		if rec[0] != key {
			t.Fatalf("row %d session key = %q want %q", i, rec[0], key)
		}
	}
	if records[1][7] != "0.25" || records[1][8] != "1" || records[1][len(records[1])-1] != "1" {
		t.Fatalf("unexpected lap 1 cells %v", records[1])
	}
	if records[2][7] != "" || records[2][10] != "" || records[2][11] != "" {
		t.Fatalf("expected empty cells for missing values, got %v", records[2])
	}
}

func TestWriteFusedHandlesAliasesAndMissingSecondary(t *testing.T) {
	ts := time.Date(2023, 9, 17, 12, 0, 0, 0, time.UTC)
	samples := []fusion.Sample{
		{
			Driver: 1, Timestamp: ts, Lap: 3, HasLap: true,
			Primary:       telemetry.Record{"speed": 301.5},
			Secondary:     telemetry.Record{"latitude": "45.62"},
			SecondaryTime: ts.Add(100 * time.Millisecond),
		},
		{Driver: 2, Timestamp: ts, Primary: telemetry.Record{"speed": 280.0}},
	}
	cols := export.FusedColumns{
		Primary:         export.ParseColumns([]string{"speed"}),
		Secondary:       export.ParseColumns([]string{"lat|latitude", " "}),
		SecondaryPrefix: "pos_",
	}

	var buf bytes.Buffer
	if err := export.WriteFused(&buf, samples, cols); err != nil {
		t.Fatalf("WriteFused: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	want := [][]string{
		{"driver", "timestamp", "lap_number", "speed", "secondary_timestamp", "pos_lat"},
		{"1", "2023-09-17T12:00:00Z", "3", "301.5", "2023-09-17T12:00:00.1Z", "45.62"},
		{"2", "2023-09-17T12:00:00Z", "", "280", "", ""},
	}
	for i := range want {
		if strings.Join(records[i], "|") != strings.Join(want[i], "|") {
			t.Fatalf("row %d = %v want %v", i, records[i], want[i])
		}
	}
}

func TestWriteIntervals(t *testing.T) {
	start := time.Date(2023, 9, 17, 13, 2, 0, 0, time.UTC)
	intervals := racecontrol.Intervals{
		{Kind: racecontrol.SC, Start: start, End: start.Add(40 * time.Second)},
		{Kind: racecontrol.VSC, Start: start.Add(5 * time.Minute), End: start.Add(5*time.Minute + 1500*time.Millisecond)},
	}

	var buf bytes.Buffer
	if err := export.WriteIntervals(&buf, intervals); err != nil {
		t.Fatalf("WriteIntervals: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(records))
	}
	if got := strings.Join(records[1], ","); got != "SC,2023-09-17T13:02:00Z,2023-09-17T13:02:40Z,40" {
		t.Fatalf("row 1 = %s", got)
	}
	if records[2][0] != "VSC" || records[2][3] != "1.5" {
		t.Fatalf("row 2 = %v", records[2])
	}
}
