package common

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"unicode/utf8"
)

// MaxLoggedPayload is the number of characters of a wire payload written to logs.
const MaxLoggedPayload = 500

// SetupLogger configures the global logger writing to stderr.
func SetupLogger(level slog.Level, format string) error {
	if format != "console" && format != "json" {
		return fmt.Errorf("invalid log format: %s", format)
	}
	slog.SetDefault(NewLogger(os.Stderr, level, format))
	return nil
}

// NewLogger builds a logger for format "json" or "console".
func NewLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Truncate shortens s to at most limit characters, marking the cut with an ellipsis.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "..."
}

// PayloadAttr returns a log attribute holding a payload cut to MaxLoggedPayload characters.
func PayloadAttr(payload []byte) slog.Attr {
	return slog.String("payload", Truncate(string(payload), MaxLoggedPayload))
}
