package config

const (
	defaultOutputDir        = "~/.local/share/lapfusion/sessions"
	defaultDatabasePath     = "~/.local/share/lapfusion/lapfusion.db"
	defaultLogDir           = "~/.local/share/lapfusion/logs"
	defaultMinFreeMiB       = 256
	defaultPrimarySeries    = SeriesCarData
	defaultSecondarySeries  = SeriesLocation
	defaultSecondaryPrefix  = "pos_"
	defaultGapThreshold     = 1.0
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultBusyRetries      = 5
	defaultBusyBackoffMilli = 50
)

// Series names accepted by fusion.primary and fusion.secondary.
const (
	SeriesCarData  = "car_data"
	SeriesLocation = "location"
)

var (
	defaultPrimaryColumns   = []string{"speed", "throttle", "brake", "rpm", "n_gear", "drs"}
	defaultSecondaryColumns = []string{"x", "y", "z", "lat|latitude", "long|lon|longitude"}
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir:    defaultOutputDir,
			DatabasePath: defaultDatabasePath,
			LogDir:       defaultLogDir,
			MinFreeMiB:   defaultMinFreeMiB,
		},
		Fusion: Fusion{
			Primary:          defaultPrimarySeries,
			Secondary:        defaultSecondarySeries,
			PrimaryColumns:   append([]string(nil), defaultPrimaryColumns...),
			SecondaryColumns: append([]string(nil), defaultSecondaryColumns...),
			SecondaryPrefix:  defaultSecondaryPrefix,
		},
		Features: Features{
			GapThreshold: defaultGapThreshold,
			ForwardFill:  true,
		},
		Store: Store{
			Enabled:          true,
			BusyRetries:      defaultBusyRetries,
			BusyBackoffMilli: defaultBusyBackoffMilli,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
