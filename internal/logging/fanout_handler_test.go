package logging

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestNewFanoutHandlerCollapses(t *testing.T) {
	if _, ok := newFanoutHandler(nil, nil).(NoopHandler); !ok {
		t.Fatal("expected NoopHandler when every handler is nil")
	}

	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	if h := newFanoutHandler(nil, inner, nil); h != inner {
		t.Fatal("expected single non-nil handler to be returned unwrapped")
	}
}

func TestFanoutHandlerWithAttrsReachesEveryHandler(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	h := newFanoutHandler(slog.NewJSONHandler(&buf1, nil), slog.NewJSONHandler(&buf2, nil))

	slog.New(h).With(FieldRunID, "abc").Info("tagged")

	for i, buf := range []*bytes.Buffer{&buf1, &buf2} {
		if !bytes.Contains(buf.Bytes(), []byte(`"run_id":"abc"`)) {
			t.Fatalf("handler %d missing attr: %s", i, buf.String())
		}
	}
}

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("disk full") }

func TestFanoutHandlerKeepsWritingAfterFailure(t *testing.T) {
	var buf bytes.Buffer
	broken := failingHandler{slog.NewJSONHandler(io.Discard, nil)}
	h := newFanoutHandler(broken, slog.NewJSONHandler(&buf, nil))

	record := slog.NewRecord(time.Now(), slog.LevelInfo, "still here", 0)
	if err := h.Handle(context.Background(), record); err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected tap error to surface, got %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("still here")) {
		t.Fatalf("second handler skipped after failure: %s", buf.String())
	}
}

func TestTeeLoggerDropsNopBase(t *testing.T) {
	var buf bytes.Buffer
	runLog := slog.NewJSONHandler(&buf, nil)
	if got := TeeLogger(NewNop(), runLog).Handler(); got != runLog {
		t.Fatalf("expected run log handler alone, got %T", got)
	}
}
