// Package source loads one race session exported from the timing provider.
//
// A session is a directory of JSON arrays named after the provider endpoints
// (car_data.json, location.json, laps.json, ...). Missing files are empty
// series; a file that is not an array of objects aborts the load.
package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"lapfusion/internal/telemetry"
)

// Endpoint file names.
const (
	CarData     = "car_data"
	Location    = "location"
	Laps        = "laps"
	RaceControl = "race_control"
	Pit         = "pit"
	Stints      = "stints"
	Weather     = "weather"
)

// Endpoints lists every file a session directory may contain.
var Endpoints = []string{CarData, Location, Laps, RaceControl, Pit, Stints, Weather}

// ErrMalformed marks a file that exists but is not a JSON array of objects.
var ErrMalformed = errors.New("malformed session file")

// Session is the raw content of one session directory.
type Session struct {
	Key     string
	Dir     string
	Records map[string][]telemetry.Record
	// Missing lists endpoints with no file on disk.
	Missing []string
}

// Series returns the raw records of one endpoint.
func (s *Session) Series(name string) []telemetry.Record {
	if s == nil {
		return nil
	}
	return s.Records[name]
}

// Load reads every endpoint file under dir. The session key defaults to the
// directory name when key is empty.
func Load(dir, key string) (*Session, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("session directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("session directory: %s is not a directory", dir)
	}
	if strings.TrimSpace(key) == "" {
		key = filepath.Base(filepath.Clean(dir))
	}

	s := &Session{Key: key, Dir: dir, Records: make(map[string][]telemetry.Record, len(Endpoints))}
	for _, name := range Endpoints {
		path := filepath.Join(dir, name+".json")
		records, err := ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			s.Missing = append(s.Missing, name)
			continue
		}
		if err != nil {
			return nil, err
		}
		s.Records[name] = records
	}
	return s, nil
}

// ReadFile decodes one endpoint file.
func ReadFile(path string) ([]telemetry.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	records, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return records, nil
}

// Decode parses a JSON array of objects. Numbers are kept as json.Number so
// driver and lap numbers survive without float rounding. An empty input or
// JSON null is an empty series.
func Decode(r io.Reader) ([]telemetry.Record, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw []map[string]any
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after array", ErrMalformed)
	}

	out := make([]telemetry.Record, 0, len(raw))
	for i, obj := range raw {
		if obj == nil {
			return nil, fmt.Errorf("%w: element %d is null", ErrMalformed, i)
		}
		out = append(out, telemetry.Record(obj))
	}
	return out, nil
}
