// Package config loads, normalizes, and validates shelfrate configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the environment variables the
// original container image exported (ABS_URL, API_TOKEN, LIBRARY_IDS,
// BATCH_SIZE, SLEEP_TIMER, REFRESH_DAYS, DRY_RUN). The Config type centralizes
// every knob the run engine and CLI need.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical enum values, and clear validation errors.
package config
