// Package config loads, normalizes, and validates lapfusion configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// LAPFUSION_OUTPUT_DIR. The Config type centralizes every knob the pipeline
// and CLI need so output locations, fusion columns, and race control rules are
// discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
