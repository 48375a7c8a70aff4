package testutil

import "log/slog"

// DiscardLogger returns a logger that drops all output, keeping test
// logs quiet.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
