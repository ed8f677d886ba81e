package logging

import (
	"log/slog"
	"os"
)

// New returns the process-wide JSON logger. Constructed once in main and
// passed down; components never reach for a global.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}
