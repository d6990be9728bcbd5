package telemetry

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

type LogConfig struct {
	Level  string
	Format string
}

// SetupLogger installs the default slog logger. Format is one of tint, json or text.
func SetupLogger(c LogConfig) error {
	h, err := NewLogHandler(os.Stderr, c)
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(h))
	return nil
}

func NewLogHandler(w io.Writer, c LogConfig) (slog.Handler, error) {
	var lvl slog.Level
	if c.Level != "" {
		if err := lvl.UnmarshalText([]byte(c.Level)); err != nil {
			return nil, fmt.Errorf("log level %q: %w", c.Level, err)
		}
	}

	switch strings.ToLower(c.Format) {
	case "", "tint":
		return tint.NewHandler(w, &tint.Options{Level: lvl, TimeFormat: time.TimeOnly}), nil
	case "json":
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}), nil
	case "text":
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", c.Format)
	}
}
