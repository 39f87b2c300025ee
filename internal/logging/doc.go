// Package logging assembles structured slog loggers and formatting helpers used
// across clipmerge components.
//
// It owns the console and JSON handlers, routes file output through a
// rotating lumberjack writer, and fans records out to both sinks. Console
// output colors level labels only when stdout is a terminal. Helpers such as
// NewComponentLogger and WarnWithContext keep the shape of log records
// uniform: every warning carries an event type, a hint, and the impact on the
// current cycle.
//
// Prefer these constructors over hand-rolled slog setup.
package logging
