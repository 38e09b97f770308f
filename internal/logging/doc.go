// Package logging builds the slog loggers used across the daemon and CLI.
//
// It offers a console handler for interactive use, a JSON handler for log
// aggregation, attribute helpers shared by every component, and context
// helpers that stamp job/stage/correlation fields onto log records.
package logging
