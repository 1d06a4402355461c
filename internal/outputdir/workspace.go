// Package outputdir owns the per-session output directory.
//
// A Workspace holds an exclusive file lock on its directory for as long as it
// is open, so two runs of the same session never interleave writes. Files
// are staged as hidden temp files and only renamed into place by Commit.
package outputdir

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/gofrs/flock"

	"lapfusion/internal/fileutil"
	"lapfusion/internal/logging"
)

// Published file names.
const (
	FusedFile     = "fused.csv"
	FeaturesFile  = "features.csv"
	IntervalsFile = "intervals.csv"

	lockFile  = ".lapfusion.lock"
	runLogDir = "logs"
)

// ErrLocked is returned when another run holds the session directory.
var ErrLocked = errors.New("session output is locked by another run")

// Artifact describes a published file.
type Artifact struct {
	Name   string
	Path   string
	Digest fileutil.Digest
}

// Workspace is a locked session output directory.
type Workspace struct {
	dir    string
	lock   *flock.Flock
	staged []*fileutil.Staged
}

// Open creates root/<session> and takes its lock without waiting.
func Open(root, sessionKey string) (*Workspace, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("output directory is not configured")
	}
	dir := filepath.Join(root, SafeName(sessionKey))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session output dir: %w", err)
	}

	lock := flock.New(filepath.Join(dir, lockFile))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, dir)
	}
	return &Workspace{dir: dir, lock: lock}, nil
}

// Dir returns the session output directory.
func (w *Workspace) Dir() string {
	return w.dir
}

// Path returns the published location of name.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// Stage writes name to a temp file. It becomes visible on Commit.
func (w *Workspace) Stage(name string, write func(io.Writer) error) error {
	staged, err := fileutil.Stage(w.Path(name), 0o644, write)
	if err != nil {
		return fmt.Errorf("stage %s: %w", name, err)
	}
	w.staged = append(w.staged, staged)
	return nil
}

// Commit publishes every staged file in staging order. If a rename fails the
// files not yet published are discarded.
func (w *Workspace) Commit() ([]Artifact, error) {
	artifacts := make([]Artifact, 0, len(w.staged))
	for i, staged := range w.staged {
		if err := staged.Commit(); err != nil {
			for _, rest := range w.staged[i:] {
				rest.Discard()
			}
			w.staged = nil
			return artifacts, err
		}
		artifacts = append(artifacts, Artifact{
			Name:   filepath.Base(staged.Final),
			Path:   staged.Final,
			Digest: staged.Digest,
		})
	}
	w.staged = nil
	return artifacts, nil
}

// Abort discards staged files. Published files are left alone.
func (w *Workspace) Abort() {
	for _, staged := range w.staged {
		staged.Discard()
	}
	w.staged = nil
}

// Close aborts anything still staged and releases the lock.
func (w *Workspace) Close() error {
	if w == nil || w.lock == nil {
		return nil
	}
	w.Abort()
	return w.lock.Unlock()
}

// OpenRunLog creates logs/<runID>.log in the workspace and returns a JSON
// handler writing to it. The caller closes the returned file.
func (w *Workspace) OpenRunLog(runID string, level slog.Leveler) (slog.Handler, io.Closer, error) {
	path := RunLogPath(w.dir, runID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create run log dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open run log: %w", err)
	}
	handler, err := logging.NewHandler(file, "json", level, false)
	if err != nil {
		_ = file.Close()
		return nil, nil, err
	}
	return handler, file, nil
}

// RunLogPath returns where the log of runID lives under a session output
// directory.
func RunLogPath(sessionDir, runID string) string {
	return filepath.Join(sessionDir, runLogDir, SafeName(runID)+".log")
}

// SafeName maps a session key to a single path element. Separators and
// control characters become underscores.
func SafeName(key string) string {
	key = strings.TrimSpace(key)
	if key == "" || key == "." || key == ".." {
		return "session"
	}
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator || unicode.IsControl(r) {
			return '_'
		}
		return r
	}, key)
}
