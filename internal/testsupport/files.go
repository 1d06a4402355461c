package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteSession creates dir/key and writes one <endpoint>.json file per entry
// in files. It returns the session directory.
func WriteSession(t testing.TB, dir, key string, files map[string]string) string {
	t.Helper()

	sessionDir := filepath.Join(dir, key)
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		t.Fatalf("mkdir session %s: %v", sessionDir, err)
	}
	for name, content := range files {
		path := filepath.Join(sessionDir, name+".json")
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	return sessionDir
}

// RaceSession is a three lap, two car race with one safety car period that
// starts during lap 2.
//
// Car 1 finishes laps at 13:01:30, 13:03:00 and 13:04:30. Car 44 trails by
// 0.8s, then 1.0s, then 1.2s.
func RaceSession() map[string]string {
	return map[string]string{
		"laps": `[
  {"driver_number": 1, "lap_number": 1, "date_start": "2023-09-17T13:00:00+00:00", "lap_duration": 90.0},
  {"driver_number": 1, "lap_number": 2, "date_start": "2023-09-17T13:01:30+00:00", "lap_duration": 90.0},
  {"driver_number": 1, "lap_number": 3, "date_start": "2023-09-17T13:03:00+00:00", "lap_duration": 90.0},
  {"driver_number": 44, "lap_number": 1, "date_start": "2023-09-17T13:00:00+00:00", "lap_duration": 90.8},
  {"driver_number": 44, "lap_number": 2, "date_start": "2023-09-17T13:01:30.8+00:00", "lap_duration": 90.2},
  {"driver_number": 44, "lap_number": 3, "date_start": "2023-09-17T13:03:01+00:00", "lap_duration": 90.2}
]`,
		"car_data": `[
  {"driver_number": 1, "date": "2023-09-17T13:00:10+00:00", "speed": 280, "throttle": 100, "brake": 0, "rpm": 11000, "n_gear": 7, "drs": 0},
  {"driver_number": 1, "date": "2023-09-17T13:02:10+00:00", "speed": 150, "throttle": 40, "brake": 0, "rpm": 8000, "n_gear": 4, "drs": 0},
  {"driver_number": 44, "date": "2023-09-17T13:00:11+00:00", "speed": 279, "throttle": 99, "brake": 0, "rpm": 10950, "n_gear": 7, "drs": 0},
  {"driver_number": 44, "date": "bad-time", "speed": 1}
]`,
		"location": `[
  {"driver_number": 1, "date": "2023-09-17T13:00:10.2+00:00", "x": 100, "y": 200, "z": 5},
  {"driver_number": 1, "date": "2023-09-17T13:02:09.9+00:00", "x": 300, "y": 400, "z": 6},
  {"driver_number": 44, "date": "2023-09-17T13:00:11.1+00:00", "x": 98, "y": 199, "z": 5}
]`,
		"race_control": `[
  {"date": "2023-09-17T13:00:00+00:00", "category": "Flag", "flag": "GREEN", "message": "GREEN LIGHT - PIT EXIT OPEN"},
  {"date": "2023-09-17T13:02:00+00:00", "category": "SafetyCar", "message": "SAFETY CAR DEPLOYED"},
  {"date": "2023-09-17T13:02:40+00:00", "category": "SafetyCar", "message": "SAFETY CAR IN THIS LAP"}
]`,
		"pit": `[
  {"driver_number": 44, "lap_number": 2, "pit_duration": 22.4, "date": "2023-09-17T13:02:50+00:00"}
]`,
		"stints": `[
  {"driver_number": 1, "stint_number": 1, "lap_start": 1, "lap_end": 3, "compound": "MEDIUM", "tyre_age_at_start": 0},
  {"driver_number": 44, "stint_number": 1, "lap_start": 1, "lap_end": 2, "compound": "MEDIUM", "tyre_age_at_start": 2},
  {"driver_number": 44, "stint_number": 2, "lap_start": 3, "lap_end": 3, "compound": "HARD", "tyre_age_at_start": 0}
]`,
		"weather": `[
  {"date": "2023-09-17T12:59:00+00:00", "air_temperature": 30.1, "humidity": 55, "pressure": 1010.2, "rainfall": 0, "track_temperature": 44.5, "wind_direction": 180, "wind_speed": 1.2}
]`,
	}
}
