package logs_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lapfusion/internal/logging"
	"lapfusion/internal/logs"
)

const sampleLog = `{"ts":"2023-09-17T13:00:00Z","level":"info","msg":"run started","run_id":"r1"}
{"ts":"2023-09-17T13:00:01Z","level":"warn","msg":"unmatched safety car message","event_type":"race_control_unmatched","message":"SAFETY CAR RADIO CHECK"}
not json
{"ts":"2023-09-17T13:00:02Z","level":"warn","msg":"open interval dropped","event_type":"interval_dropped","kind":"VSC"}
{"ts":"2023-09-17T13:00:03Z","level":"info","msg":"run complete","event_type":"run_complete","laps":3}
`

func TestDecodeFiltersByLevel(t *testing.T) {
	res, err := logs.Decode(strings.NewReader(sampleLog), logs.Filter{MinLevel: slog.LevelWarn})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(res.Entries) != 2 || res.Skipped != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Entries[0].EventType() != "race_control_unmatched" || res.Entries[0].Level != slog.LevelWarn {
		t.Fatalf("unexpected first entry %+v", res.Entries[0])
	}
}

func TestDecodeFiltersByEventAndLimit(t *testing.T) {
	res, err := logs.Decode(strings.NewReader(sampleLog), logs.Filter{EventType: "run_complete"})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(res.Entries) != 1 || res.Entries[0].Message != "run complete" {
		t.Fatalf("unexpected entries %+v", res.Entries)
	}
	if got := res.Entries[0].FieldString(); got != "event_type=run_complete laps=3" {
		t.Fatalf("FieldString = %q", got)
	}

	res, err = logs.Decode(strings.NewReader(sampleLog), logs.Filter{Limit: 2})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(res.Entries) != 2 || res.Entries[0].Message != "open interval dropped" || res.Entries[1].Message != "run complete" {
		t.Fatalf("limit should keep the newest entries, got %+v", res.Entries)
	}
	if res.Entries[1].Time.Second() != 3 {
		t.Fatalf("timestamp not decoded: %v", res.Entries[1].Time)
	}
}

func TestReadRoundTripsJSONHandler(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	handler, err := logging.NewHandler(f, "json", slog.LevelDebug, false)
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(handler)
	logger.Debug("fusing", logging.String(logging.FieldSessionKey, "9161"))
	logger.Warn("dropped", logging.String(logging.FieldEventType, "interval_dropped"))
	_ = f.Close()

	res, err := logs.Read(path, logs.Filter{MinLevel: slog.LevelDebug})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(res.Entries) != 2 || res.Entries[0].Fields[logging.FieldSessionKey] != "9161" {
		t.Fatalf("unexpected entries %+v", res.Entries)
	}
	if res.Entries[1].Level != slog.LevelWarn || res.Entries[1].EventType() != "interval_dropped" {
		t.Fatalf("unexpected second entry %+v", res.Entries[1])
	}
}

func TestReadMissingLog(t *testing.T) {
	_, err := logs.Read(filepath.Join(t.TempDir(), "absent.log"), logs.Filter{})
	if !errors.Is(err, logs.ErrNoLog) {
		t.Fatalf("expected ErrNoLog, got %v", err)
	}
}
