// Package config loads, normalizes, and validates lyrebird configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// TRANSCRIBER_API_KEY and YTDLP_COOKIES. The Config type centralizes every
// knob the daemon and CLI need, so working directories, collaborator
// endpoints, and credentials are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
