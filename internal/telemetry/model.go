package telemetry

import (
	"time"
)

// TimedEntry is a normalized sample: when it was taken, for which driver, and
// the raw payload it came from.
type TimedEntry struct {
	Timestamp time.Time
	Driver    int
	Payload   Record
}

// Lap is one lap record. Start and Duration are optional.
type Lap struct {
	Driver      int
	Number      int
	Start       time.Time
	HasStart    bool
	Duration    float64
	HasDuration bool
	Sectors     [3]float64
}

// Finish returns Start + Duration when both are known.
func (l Lap) Finish() (time.Time, bool) {
	if !l.HasStart || !l.HasDuration {
		return time.Time{}, false
	}
	return l.Start.Add(Seconds(l.Duration)), true
}

// RaceControlEvent is a race director message, read-only input.
type RaceControlEvent struct {
	Time     time.Time
	Category string
	Flag     string
	Scope    string
	Sector   int
	Message  string
	Lap      int
	Driver   int
}

// PitStop is a pit lane visit.
type PitStop struct {
	Driver   int
	Lap      int
	Duration float64
	Time     time.Time
}

// Stint is a run of laps on one set of tyres. LapEnd is zero when open-ended.
type Stint struct {
	Driver     int
	Number     int
	LapStart   int
	LapEnd     int
	Compound   string
	TyreAge    int
	HasTyreAge bool
}

// Covers reports whether lap falls inside the stint.
func (s Stint) Covers(lap int) bool {
	if lap < s.LapStart {
		return false
	}
	return s.LapEnd <= 0 || lap <= s.LapEnd
}

// WeatherSample is a track-side weather observation.
type WeatherSample struct {
	RecordedAt       time.Time
	AirTemperature   float64
	Humidity         float64
	Pressure         float64
	Rainfall         float64
	TrackTemperature float64
	WindDirection    float64
	WindSpeed        float64
}

// ParseLap builds a Lap from a provider lap record.
func ParseLap(r Record) (Lap, bool) {
	driver, ok := r.Driver()
	if !ok {
		return Lap{}, false
	}
	number, ok := r.Int("lap_number", "lap", "LapNumber")
	if !ok || number < 1 {
		return Lap{}, false
	}
	lap := Lap{Driver: driver, Number: number}
	if start, ok := r.Time("date_start"); ok {
		lap.Start = start
		lap.HasStart = true
	}
	if d, ok := r.Float("lap_duration"); ok && d > 0 {
		lap.Duration, lap.HasDuration = d, true
	} else if d, ok := ParseLapDuration(r.String("lap_duration", "lap_time")); ok && d > 0 {
		lap.Duration, lap.HasDuration = d, true
	}
	for i, key := range []string{"duration_sector_1", "duration_sector_2", "duration_sector_3"} {
		if v, ok := r.Float(key); ok {
			lap.Sectors[i] = v
		}
	}
	return lap, true
}

// ParseRaceControl builds a RaceControlEvent. The time is mandatory.
func ParseRaceControl(r Record) (RaceControlEvent, bool) {
	ts, ok := r.Timestamp()
	if !ok {
		return RaceControlEvent{}, false
	}
	ev := RaceControlEvent{
		Time:     ts,
		Category: r.String("category"),
		Flag:     r.String("flag"),
		Scope:    r.String("scope"),
		Message:  r.String("message"),
	}
	ev.Sector, _ = r.Int("sector")
	ev.Lap, _ = r.Int("lap_number")
	ev.Driver, _ = r.Driver()
	return ev, true
}

// ParsePitStop builds a PitStop. Driver and lap are mandatory.
func ParsePitStop(r Record) (PitStop, bool) {
	driver, ok := r.Driver()
	if !ok {
		return PitStop{}, false
	}
	lap, ok := r.Int("lap_number")
	if !ok {
		return PitStop{}, false
	}
	p := PitStop{Driver: driver, Lap: lap}
	p.Duration, _ = r.Float("pit_duration")
	p.Time, _ = r.Timestamp()
	return p, true
}

// ParseStint builds a Stint. Driver and lap_start are mandatory.
func ParseStint(r Record) (Stint, bool) {
	driver, ok := r.Driver()
	if !ok {
		return Stint{}, false
	}
	start, ok := r.Int("lap_start")
	if !ok {
		return Stint{}, false
	}
	s := Stint{Driver: driver, LapStart: start, Compound: r.String("compound")}
	s.Number, _ = r.Int("stint_number")
	s.LapEnd, _ = r.Int("lap_end")
	if age, ok := r.Int("tyre_age_at_start"); ok {
		s.TyreAge, s.HasTyreAge = age, true
	}
	return s, true
}

// ParseWeather builds a WeatherSample. Missing readings stay zero.
func ParseWeather(r Record) (WeatherSample, bool) {
	ts, ok := r.Time("recorded_at", "date")
	if !ok {
		return WeatherSample{}, false
	}
	w := WeatherSample{RecordedAt: ts}
	w.AirTemperature, _ = r.Float("air_temperature")
	w.Humidity, _ = r.Float("humidity")
	w.Pressure, _ = r.Float("pressure")
	w.Rainfall, _ = r.Float("rainfall")
	w.TrackTemperature, _ = r.Float("track_temperature")
	w.WindDirection, _ = r.Float("wind_direction")
	w.WindSpeed, _ = r.Float("wind_speed")
	return w, true
}

// ParseAll applies parse to every record and keeps the ones it accepts.
func ParseAll[T any](records []Record, parse func(Record) (T, bool)) ([]T, int) {
	out := make([]T, 0, len(records))
	dropped := 0
	for _, r := range records {
		v, ok := parse(r)
		if !ok {
			dropped++
			continue
		}
		out = append(out, v)
	}
	return out, dropped
}
