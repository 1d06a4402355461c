package fileutil

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Digest identifies the content of a written file.
type Digest struct {
	SHA256 string
	Size   int64
}

// Staged is a fully written temp file waiting to be renamed into place.
type Staged struct {
	Temp   string
	Final  string
	Digest Digest
	done   bool
}

// Stage writes a temp file next to final using write and syncs it to disk.
// Nothing is visible at final until Commit. On error the temp file is removed.
func Stage(final string, mode os.FileMode, write func(io.Writer) error) (*Staged, error) {
	dir := filepath.Dir(final)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(final)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	hasher := sha256.New()
	counter := &countingWriter{w: io.MultiWriter(tmp, hasher)}
	if err := write(counter); err != nil {
		cleanup()
		return nil, err
	}
	if err := tmp.Chmod(mode); err != nil {
		cleanup()
		return nil, fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return nil, fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	return &Staged{
		Temp:   tmpPath,
		Final:  final,
		Digest: Digest{SHA256: hex.EncodeToString(hasher.Sum(nil)), Size: counter.n},
	}, nil
}

// Commit renames the temp file over the final path.
func (s *Staged) Commit() error {
	if s == nil || s.done {
		return errors.New("staged file already finalized")
	}
	if err := os.Rename(s.Temp, s.Final); err != nil {
		return fmt.Errorf("publish %s: %w", filepath.Base(s.Final), err)
	}
	s.done = true
	return nil
}

// Discard removes the temp file. It is a no-op after Commit.
func (s *Staged) Discard() {
	if s == nil || s.done {
		return
	}
	_ = os.Remove(s.Temp)
	s.done = true
}

// WriteAtomic stages and commits in one step.
func WriteAtomic(path string, mode os.FileMode, write func(io.Writer) error) (Digest, error) {
	staged, err := Stage(path, mode, write)
	if err != nil {
		return Digest{}, err
	}
	if err := staged.Commit(); err != nil {
		staged.Discard()
		return Digest{}, err
	}
	return staged.Digest, nil
}

// FileDigest streams path through SHA256.
func FileDigest(path string) (Digest, error) {
	in, err := os.Open(path)
	if err != nil {
		return Digest{}, err
	}
	defer in.Close()

	hasher := sha256.New()
	n, err := io.Copy(hasher, in)
	if err != nil {
		return Digest{}, err
	}
	return Digest{SHA256: hex.EncodeToString(hasher.Sum(nil)), Size: n}, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
