// Package config loads, normalizes, and validates buildd configuration data.
//
// It supplies repository defaults, reads TOML files, applies BUILDD_*
// environment overrides, and expands user paths (including tilde shortcuts).
// The Config type centralizes every knob the daemon and CLI need: where the
// task cache and daemon state live, how often expiration checks run, and how
// memory pressure is measured.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
