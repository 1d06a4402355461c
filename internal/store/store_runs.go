package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"lapfusion/internal/features"
	"lapfusion/internal/racecontrol"
	"lapfusion/internal/telemetry"
)

// ErrAmbiguousRunID is returned when a run id prefix matches several runs.
var ErrAmbiguousRunID = errors.New("run id prefix is ambiguous")

const runColumns = "id, session_key, source_dir, output_dir, status, error_message, started_at, finished_at, fused_rows, lap_count, sc_intervals, vsc_intervals, dropped_intervals"

// SaveRun stores a completed run and all of its artifacts in one transaction.
func (s *Store) SaveRun(ctx context.Context, run Run, art Artifacts) error {
	if strings.TrimSpace(run.ID) == "" {
		return errors.New("run id cannot be empty")
	}
	ctx = ensureContext(ctx)
	run.Status = StatusCompleted
	run.FusedRows = len(art.Fused)
	run.LapCount = len(art.Features)
	run.SCIntervals, run.VSCIntervals = 0, 0
	for _, iv := range art.Intervals {
		if iv.Kind == racecontrol.SC {
			run.SCIntervals++
		} else {
			run.VSCIntervals++
		}
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertRun(ctx, tx, run); err != nil {
			return err
		}
		if err := insertFused(ctx, tx, run.ID, art); err != nil {
			return err
		}
		if err := insertFeatures(ctx, tx, run.ID, art.Features); err != nil {
			return err
		}
		return insertIntervals(ctx, tx, run.ID, art.Intervals)
	})
}

// RecordFailure stores a failed run without artifacts.
func (s *Store) RecordFailure(ctx context.Context, run Run) error {
	if strings.TrimSpace(run.ID) == "" {
		return errors.New("run id cannot be empty")
	}
	ctx = ensureContext(ctx)
	run.Status = StatusFailed
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertRun(ctx, tx, run)
	})
}

func insertRun(ctx context.Context, tx *sql.Tx, run Run) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.SessionKey,
		nullableString(run.SourceDir),
		nullableString(run.OutputDir),
		string(run.Status),
		nullableString(run.ErrorMessage),
		formatTime(run.StartedAt),
		nullableTime(run.FinishedAt),
		run.FusedRows,
		run.LapCount,
		run.SCIntervals,
		run.VSCIntervals,
		run.DroppedIntervals,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func insertFused(ctx context.Context, tx *sql.Tx, runID string, art Artifacts) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO fused_samples (run_id, seq, driver, ts, lap_number, primary_json, secondary_json, secondary_ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare fused insert: %w", err)
	}
	defer stmt.Close()

	for i, sample := range art.Fused {
		primary, err := json.Marshal(sample.Primary)
		if err != nil {
			return fmt.Errorf("encode primary payload: %w", err)
		}
		var (
			secondary   any
			secondaryTS any
			lap         any
		)
		if sample.Secondary != nil {
			data, err := json.Marshal(sample.Secondary)
			if err != nil {
				return fmt.Errorf("encode secondary payload: %w", err)
			}
			secondary = string(data)
			secondaryTS = formatTime(sample.SecondaryTime)
		}
		if sample.HasLap {
			lap = sample.Lap
		}
		if _, err := stmt.ExecContext(ctx, runID, i, sample.Driver, formatTime(sample.Timestamp), lap, string(primary), secondary, secondaryTS); err != nil {
			return fmt.Errorf("insert fused sample %d: %w", i, err)
		}
	}
	return nil
}

func insertFeatures(ctx context.Context, tx *sql.Tx, runID string, rows []features.Row) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO lap_features (run_id, lap_number, session_key, total_laps, reference_time, sc_active, vsc_active,
		 num_cars_running, min_gap, pairs_lt_1s, pit_count, avg_tyre_age, weather_at, air_temperature, humidity,
		 pressure, rainfall, track_temperature, wind_direction, wind_speed, label)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare feature insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		weather := make([]any, 8)
		if w := row.Weather; w != nil {
			weather = []any{formatTime(w.RecordedAt), w.AirTemperature, w.Humidity, w.Pressure,
				w.Rainfall, w.TrackTemperature, w.WindDirection, w.WindSpeed}
		}
		args := []any{
			runID, row.LapNumber, row.SessionKey, row.TotalLaps, nullableTime(row.ReferenceTime),
			boolToInt(row.SCActive), boolToInt(row.VSCActive), row.NumCarsRunning,
			nullableFloat(row.MinGap), row.PairsBelow, row.PitCount, nullableFloat(row.AvgTyreAge),
		}
		args = append(args, weather...)
		args = append(args, row.Label)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert lap %d features: %w", row.LapNumber, err)
		}
	}
	return nil
}

func insertIntervals(ctx context.Context, tx *sql.Tx, runID string, intervals racecontrol.Intervals) error {
	for i, iv := range intervals {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO safety_intervals (run_id, seq, kind, start_at, end_at) VALUES (?, ?, ?, ?, ?)`,
			runID, i, string(iv.Kind), formatTime(iv.Start), formatTime(iv.End),
		); err != nil {
			return fmt.Errorf("insert safety interval %d: %w", i, err)
		}
	}
	return nil
}

// ListRuns returns runs newest first. An empty sessionKey lists every session;
// limit <= 0 means no limit.
func (s *Store) ListRuns(ctx context.Context, sessionKey string, limit int) ([]Run, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if key := strings.TrimSpace(sessionKey); key != "" {
		query += ` WHERE session_key = ?`
		args = append(args, key)
	}
	query += ` ORDER BY started_at DESC, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetRun fetches a run by id or unique id prefix. It returns nil when nothing
// matches.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	ctx = ensureContext(ctx)
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("run id cannot be empty")
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == nil {
		return run, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id LIKE ? ESCAPE '\' LIMIT 2`, escapeLike(id)+"%")
	if err != nil {
		return nil, fmt.Errorf("lookup run prefix: %w", err)
	}
	defer rows.Close()

	var matches []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrAmbiguousRunID, id)
	}
}

// LapFeatures returns the stored feature table of a run in lap order.
func (s *Store) LapFeatures(ctx context.Context, runID string) ([]features.Row, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT lap_number, session_key, total_laps, reference_time, sc_active, vsc_active, num_cars_running,
		 min_gap, pairs_lt_1s, pit_count, avg_tyre_age, weather_at, air_temperature, humidity, pressure,
		 rainfall, track_temperature, wind_direction, wind_speed, label
		 FROM lap_features WHERE run_id = ? ORDER BY lap_number`, runID)
	if err != nil {
		return nil, fmt.Errorf("query lap features: %w", err)
	}
	defer rows.Close()

	var out []features.Row
	for rows.Next() {
		var (
			row                     features.Row
			refTime, weatherAt      sql.NullString
			scActive, vscActive     int
			minGap, avgTyreAge      sql.NullFloat64
			air, hum, pres, rain    sql.NullFloat64
			track, windDir, windSpd sql.NullFloat64
		)
		if err := rows.Scan(&row.LapNumber, &row.SessionKey, &row.TotalLaps, &refTime, &scActive, &vscActive,
			&row.NumCarsRunning, &minGap, &row.PairsBelow, &row.PitCount, &avgTyreAge, &weatherAt,
			&air, &hum, &pres, &rain, &track, &windDir, &windSpd, &row.Label); err != nil {
			return nil, fmt.Errorf("scan lap features: %w", err)
		}
		row.ReferenceTime = parseTime(refTime)
		row.SCActive = scActive != 0
		row.VSCActive = vscActive != 0
		row.MinGap = floatPtr(minGap)
		row.AvgTyreAge = floatPtr(avgTyreAge)
		if weatherAt.Valid {
			row.Weather = &telemetry.WeatherSample{
				RecordedAt:       parseTime(weatherAt),
				AirTemperature:   air.Float64,
				Humidity:         hum.Float64,
				Pressure:         pres.Float64,
				Rainfall:         rain.Float64,
				TrackTemperature: track.Float64,
				WindDirection:    windDir.Float64,
				WindSpeed:        windSpd.Float64,
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// SafetyIntervals returns the stored intervals of a run in extraction order.
func (s *Store) SafetyIntervals(ctx context.Context, runID string) (racecontrol.Intervals, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, start_at, end_at FROM safety_intervals WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query safety intervals: %w", err)
	}
	defer rows.Close()

	var out racecontrol.Intervals
	for rows.Next() {
		var kind string
		var start, end sql.NullString
		if err := rows.Scan(&kind, &start, &end); err != nil {
			return nil, fmt.Errorf("scan safety interval: %w", err)
		}
		out = append(out, racecontrol.Interval{
			Kind:  racecontrol.IntervalKind(kind),
			Start: parseTime(start),
			End:   parseTime(end),
		})
	}
	return out, rows.Err()
}

// FusedCount returns the number of fused samples stored for a run.
func (s *Store) FusedCount(ctx context.Context, runID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT COUNT(1) FROM fused_samples WHERE run_id = ?`, runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count fused samples: %w", err)
	}
	return n, nil
}

// DeleteRun removes a run and its artifacts. It reports whether a run existed.
func (s *Store) DeleteRun(ctx context.Context, id string) (bool, error) {
	ctx = ensureContext(ctx)
	var removed bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"fused_samples", "lap_features", "safety_intervals"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE run_id = ?`, id); err != nil {
				return fmt.Errorf("delete %s: %w", table, err)
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete run: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		removed = n > 0
		return nil
	})
	return removed, err
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run                     Run
		sourceDir, outputDir    sql.NullString
		status                  string
		errorMessage            sql.NullString
		startedRaw, finishedRaw sql.NullString
	)
	if err := scanner.Scan(
		&run.ID,
		&run.SessionKey,
		&sourceDir,
		&outputDir,
		&status,
		&errorMessage,
		&startedRaw,
		&finishedRaw,
		&run.FusedRows,
		&run.LapCount,
		&run.SCIntervals,
		&run.VSCIntervals,
		&run.DroppedIntervals,
	); err != nil {
		return nil, err
	}
	run.SourceDir = sourceDir.String
	run.OutputDir = outputDir.String
	run.Status = Status(status)
	run.ErrorMessage = errorMessage.String
	run.StartedAt = parseTime(startedRaw)
	run.FinishedAt = parseTime(finishedRaw)
	return &run, nil
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

func parseTime(raw sql.NullString) time.Time {
	if !raw.Valid || raw.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func nullableFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
