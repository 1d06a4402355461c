package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"lapfusion/internal/features"
	"lapfusion/internal/fusion"
	"lapfusion/internal/laps"
	"lapfusion/internal/logging"
	"lapfusion/internal/racecontrol"
	"lapfusion/internal/series"
	"lapfusion/internal/source"
	"lapfusion/internal/telemetry"
)

// Input holds the raw records of one session.
type Input struct {
	SessionKey  string
	Primary     []telemetry.Record
	Secondary   []telemetry.Record
	Laps        []telemetry.Record
	RaceControl []telemetry.Record
	PitStops    []telemetry.Record
	Stints      []telemetry.Record
	Weather     []telemetry.Record
}

// InputFromSession selects the fusion series by endpoint name.
func InputFromSession(s *source.Session, primary, secondary string) Input {
	return Input{
		SessionKey:  s.Key,
		Primary:     s.Series(primary),
		Secondary:   s.Series(secondary),
		Laps:        s.Series(source.Laps),
		RaceControl: s.Series(source.RaceControl),
		PitStops:    s.Series(source.Pit),
		Stints:      s.Series(source.Stints),
		Weather:     s.Series(source.Weather),
	}
}

// Options configures Run. Zero values fall back to defaults, except
// Features, which is used as given (features.Build defaults a non-positive
// gap threshold; pass features.DefaultOptions() for forward fill).
type Options struct {
	// RunID is generated when empty.
	RunID      string
	Classifier racecontrol.Classifier
	Features   features.Options
	Logger     *slog.Logger
}

// Dropped counts records rejected while parsing. Rejections are never
// errors.
type Dropped struct {
	Primary     series.Stats
	Secondary   series.Stats
	Laps        int
	RaceControl int
	PitStops    int
	Stints      int
	Weather     int
}

// Total returns the number of rejected records across every input.
func (d Dropped) Total() int {
	return d.Primary.Dropped() + d.Secondary.Dropped() + d.Laps + d.RaceControl + d.PitStops + d.Stints + d.Weather
}

// Result is everything one run produces.
type Result struct {
	RunID        string
	SessionKey   string
	SessionStart time.Time
	Fused        []fusion.Sample
	FusionStats  fusion.Stats
	Timelines    laps.Timelines
	Safety       racecontrol.Result
	Features     []features.Row
	Dropped      Dropped
}

// Run executes the whole pipeline for one session. It returns either a
// complete result or an error, never both.
func Run(ctx context.Context, in Input, opts Options) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	ctx = logging.WithSessionKey(logging.WithRunID(ctx, runID), in.SessionKey)
	logger := logging.WithContext(ctx, logging.NewComponentLogger(opts.Logger, "pipeline"))
	if opts.Classifier == nil {
		opts.Classifier = racecontrol.NewRuleClassifier()
	}

	res := &Result{RunID: runID, SessionKey: in.SessionKey}

	if err := checkpoint(ctx, "normalize"); err != nil {
		return nil, err
	}
	primary, primaryStats := series.Normalize(in.Primary)
	secondary, secondaryStats := series.Normalize(in.Secondary)
	lapRecords, lapsDropped := telemetry.ParseAll(in.Laps, telemetry.ParseLap)
	events, eventsDropped := telemetry.ParseAll(in.RaceControl, telemetry.ParseRaceControl)
	pits, pitsDropped := telemetry.ParseAll(in.PitStops, telemetry.ParsePitStop)
	stints, stintsDropped := telemetry.ParseAll(in.Stints, telemetry.ParseStint)
	weather, weatherDropped := telemetry.ParseAll(in.Weather, telemetry.ParseWeather)
	res.Dropped = Dropped{
		Primary:     primaryStats,
		Secondary:   secondaryStats,
		Laps:        lapsDropped,
		RaceControl: eventsDropped,
		PitStops:    pitsDropped,
		Stints:      stintsDropped,
		Weather:     weatherDropped,
	}
	if n := res.Dropped.Total(); n > 0 {
		logger.Debug("skipped unusable records",
			logging.Int("dropped", n),
			logging.Int("primary_bad_time", primaryStats.BadTime),
			logging.Int("primary_bad_driver", primaryStats.BadDriver),
			logging.Int("laps", lapsDropped),
		)
	}

	if err := checkpoint(ctx, "timelines"); err != nil {
		return nil, err
	}
	earliest := series.Earliest(primary, secondary)
	res.SessionStart = sessionStart(earliest, lapRecords)
	timelines, err := laps.Build(lapRecords, earliest)
	if err != nil {
		return nil, Wrap(ErrValidation, "timelines", "build", "lap partition", err)
	}
	res.Timelines = timelines

	if err := checkpoint(ctx, "fusion"); err != nil {
		return nil, err
	}
	res.Fused, res.FusionStats = fusion.Fuse(primary, secondary, laps.NewLocators(timelines))
	for _, driver := range res.FusionStats.NoSecondary {
		logger.Debug("driver has no secondary samples", logging.Driver(driver))
	}
	if st := res.FusionStats; st.Resorted > 0 {
		logger.Debug("sorted out-of-order series", logging.Int("series", st.Resorted))
	}

	if err := checkpoint(ctx, "intervals"); err != nil {
		return nil, err
	}
	res.Safety = racecontrol.Extract(events, opts.Classifier)
	for _, ev := range res.Safety.Unmatched {
		logging.WarnWithContext(logger, "unrecognized safety car message",
			"race_control_unmatched",
			logging.String("message", ev.Message),
			logging.Time("at", ev.Time),
			logging.String(logging.FieldErrorHint, "add a [[race_control.rules]] entry for this wording"),
			logging.String(logging.FieldImpact, "message ignored for interval extraction"),
		)
	}
	for _, iv := range res.Safety.Dropped {
		logging.WarnWithContext(logger, "safety period still open at end of log",
			"interval_dropped",
			logging.String("kind", string(iv.Kind)),
			logging.Time("start", iv.Start),
			logging.String(logging.FieldErrorHint, "race control log may be truncated"),
			logging.String(logging.FieldImpact, "period excluded from sc_active and vsc_active"),
		)
	}

	if err := checkpoint(ctx, "features"); err != nil {
		return nil, err
	}
	res.Features = features.Build(features.Input{
		SessionKey:   in.SessionKey,
		SessionStart: res.SessionStart,
		Laps:         lapRecords,
		Timelines:    timelines,
		PitStops:     pits,
		Stints:       stints,
		Weather:      weather,
		Safety:       res.Safety,
	}, opts.Features)
	if len(res.Features) == 0 {
		logger.Info("session has no resolvable laps",
			logging.String(logging.FieldEventType, "empty_output"),
			logging.Int("lap_records", len(in.Laps)),
		)
	}

	logger.Info("pipeline complete",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Int("fused_rows", len(res.Fused)),
		logging.Int("drivers", res.FusionStats.Drivers),
		logging.Int("laps", len(res.Features)),
		logging.Int("safety_intervals", len(res.Safety.Intervals)),
		logging.Int("dropped_records", res.Dropped.Total()),
	)
	return res, nil
}

func checkpoint(ctx context.Context, stage string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", stage, err)
	}
	return nil
}

// sessionStart is the earliest sample of any driver, else the earliest
// declared lap start, else laps.Epoch.
func sessionStart(earliest map[int]time.Time, lapRecords []telemetry.Lap) time.Time {
	var start time.Time
	for _, t := range earliest {
		if start.IsZero() || t.Before(start) {
			start = t
		}
	}
	if !start.IsZero() {
		return start
	}
	for _, lap := range lapRecords {
		if lap.HasStart && (start.IsZero() || lap.Start.Before(start)) {
			start = lap.Start
		}
	}
	if !start.IsZero() {
		return start
	}
	return laps.Epoch
}
