// Package logger builds the process-wide slog.Logger from configuration.
package logger
