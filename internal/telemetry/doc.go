// Package telemetry defines the data model shared by every pipeline stage.
//
// Raw provider payloads arrive as loosely typed Records (decoded JSON objects).
// The accessors in this package apply one interpretation rule per field kind:
// timestamps parse as ISO-8601, driver ids must be integral, and numeric
// fields tolerate json.Number, float, int, and numeric strings. Field lookups
// accept aliases (for example "lat" or "latitude") so upstream schema drift
// does not silently zero a column.
//
// Typed views (Lap, RaceControlEvent, PitStop, Stint, WeatherSample) are built
// from Records with the Parse* helpers; records that cannot be interpreted are
// reported through the ok return rather than an error, since a single bad
// record never aborts a run.
package telemetry
