package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lapfusion/internal/outputdir"
	"lapfusion/internal/source"
)

var (
	ErrInput      = errors.New("input error")
	ErrValidation = errors.New("validation error")
	ErrStorage    = errors.New("storage error")
	ErrBusy       = errors.New("session busy")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrStorage
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ExitCode maps a run error to the CLI process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrInput):
		return 3
	case errors.Is(err, ErrValidation):
		return 4
	case errors.Is(err, ErrStorage):
		return 5
	case errors.Is(err, ErrBusy):
		return 6
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return 130
	default:
		return 1
	}
}

// Hint tells the operator what to look at for a run error.
func Hint(err error) string {
	switch {
	case errors.Is(err, source.ErrMalformed):
		return "a session file is not a JSON array of objects; re-download it"
	case errors.Is(err, ErrInput):
		return "check the session directory path and file permissions"
	case errors.Is(err, ErrValidation):
		return "lap records overlap or leave gaps; inspect laps.json for the named driver"
	case errors.Is(err, outputdir.ErrLocked), errors.Is(err, ErrBusy):
		return "another run is processing this session; wait for it to finish"
	case errors.Is(err, ErrStorage):
		return "check free space and permissions of the output and database directories"
	default:
		return "check logs for details"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "pipeline failure"
	}
	return strings.Join(parts, ": ")
}
