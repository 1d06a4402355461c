package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"lapfusion/internal/config"
	"lapfusion/internal/source"
	"lapfusion/internal/store"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies that the filesystem holding path has at least
// minMiB mebibytes available to unprivileged users.
func CheckFreeSpace(name, path string, minMiB int) Result {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	avail := st.Bavail * uint64(st.Bsize)
	need := uint64(minMiB) * 1024 * 1024
	detail := fmt.Sprintf("%s free, %s required", humanize.IBytes(avail), humanize.IBytes(need))
	if avail < need {
		return Result{Name: name, Detail: detail}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckDatabase opens the result database, which also verifies its schema
// version.
func CheckDatabase(ctx context.Context, cfg *config.Config) Result {
	const name = "Result database"

	if err := ctx.Err(); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	st, err := store.Open(cfg)
	if err != nil {
		if errors.Is(err, store.ErrSchemaMismatch) {
			return Result{Name: name, Detail: "schema mismatch (delete the database to recreate it)"}
		}
		return Result{Name: name, Detail: err.Error()}
	}
	defer st.Close()

	detail := st.Path()
	if info, err := os.Stat(st.Path()); err == nil {
		detail = fmt.Sprintf("%s (%s)", st.Path(), humanize.IBytes(uint64(info.Size())))
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckSessionDir verifies that dir holds a readable session with lap data
// and the two series selected for fusion.
func CheckSessionDir(dir string, cfg *config.Config) Result {
	const name = "Session directory"

	info, err := os.Stat(dir)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", dir, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", dir)}
	}

	required := []string{source.Laps}
	if cfg != nil {
		required = append(required, cfg.Fusion.Primary, cfg.Fusion.Secondary)
	}
	var missing []string
	for _, endpoint := range required {
		if _, err := os.Stat(filepath.Join(dir, endpoint+".json")); err != nil {
			missing = append(missing, endpoint+".json")
		}
	}
	if len(missing) > 0 {
		return Result{Name: name, Detail: fmt.Sprintf("%s (missing %v)", dir, missing)}
	}
	return Result{Name: name, Passed: true, Detail: dir}
}
