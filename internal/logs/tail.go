package logs

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"lapfusion/internal/logging"
)

// Entry is one decoded log line.
type Entry struct {
	Time    time.Time
	Level   slog.Level
	Message string
	// Fields holds every attribute other than ts, level, and msg.
	Fields map[string]any
}

// EventType returns the event_type attribute, if any.
func (e Entry) EventType() string {
	v, _ := e.Fields[logging.FieldEventType].(string)
	return v
}

// Filter selects entries.
type Filter struct {
	MinLevel  slog.Level
	EventType string
	// Limit keeps the newest matches; <= 0 keeps all.
	Limit int
}

// Result is the outcome of Read.
type Result struct {
	Entries []Entry
	// Skipped counts lines that were not JSON objects.
	Skipped int
}

// ErrNoLog reports that the run never wrote a log file.
var ErrNoLog = errors.New("run log not found")

// Read decodes the log at path and applies f.
func Read(path string, f Filter) (Result, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Result{}, fmt.Errorf("%w: %s", ErrNoLog, path)
		}
		return Result{}, fmt.Errorf("open run log: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return Result{}, fmt.Errorf("stat run log: %w", err)
	}
	if info.IsDir() {
		return Result{}, fmt.Errorf("run log path %q is a directory", path)
	}
	return Decode(file, f)
}

// Decode reads JSON lines from r and applies f.
func Decode(r io.Reader, f Filter) (Result, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		result Result
		ring   []Entry
		idx    int
		count  int
	)
	if f.Limit > 0 {
		ring = make([]Entry, f.Limit)
	}
	wantEvent := strings.TrimSpace(f.EventType)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entry, ok := decodeLine(line)
		if !ok {
			result.Skipped++
			continue
		}
		if entry.Level < f.MinLevel {
			continue
		}
		if wantEvent != "" && entry.EventType() != wantEvent {
			continue
		}
		if ring == nil {
			result.Entries = append(result.Entries, entry)
			continue
		}
		ring[idx] = entry
		idx = (idx + 1) % f.Limit
		if count < f.Limit {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("read run log: %w", err)
	}

	if ring != nil {
		result.Entries = make([]Entry, count)
		if count == f.Limit {
			for i := 0; i < count; i++ {
				result.Entries[i] = ring[(idx+i)%f.Limit]
			}
		} else {
			copy(result.Entries, ring[:count])
		}
	}
	return result, nil
}

func decodeLine(line string) (Entry, bool) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil || raw == nil {
		return Entry{}, false
	}
	entry := Entry{Level: slog.LevelInfo, Fields: make(map[string]any, len(raw))}
	for key, value := range raw {
		switch key {
		case "ts", slog.TimeKey:
			if s, ok := value.(string); ok {
				entry.Time, _ = time.Parse(time.RFC3339Nano, s)
			}
		case slog.LevelKey:
			if s, ok := value.(string); ok {
				entry.Level = logging.ParseLevel(s)
			}
		case slog.MessageKey:
			entry.Message, _ = value.(string)
		default:
			entry.Fields[key] = value
		}
	}
	return entry, true
}

// FieldString renders the extra fields as sorted key=value pairs.
func (e Entry) FieldString() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s=%v", k, e.Fields[k])
	}
	return b.String()
}
