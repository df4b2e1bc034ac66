package core

import (
	"log/slog"
	"time"
)

// DefaultCallTimeout bounds every individual external call.
const DefaultCallTimeout = 20 * time.Second

func loggerOrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l
}
