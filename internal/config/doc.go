// Package config loads, normalizes, and validates pixelmill configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type centralizes every knob the
// daemon and CLI need: directories, the HTTP bind address, webhook target,
// worker intervals, and image transform parameters.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
