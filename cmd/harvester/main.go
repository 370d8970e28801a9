package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"tg_harvest/internal/metrics"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a := &app{log: newLogger("info", false)}
	err := newRootCmd(a).ExecuteContext(ctx)

	if a.metricsFile != "" {
		if werr := metrics.WriteTextfile(a.metricsFile); werr != nil {
			a.log.Error("write metrics", "path", a.metricsFile, "error", werr)
		}
	}
	if err != nil {
		a.log.Error("command failed", "error", err)
		cancel()
		os.Exit(1)
	}
}

func newLogger(level string, debug bool) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	if debug {
		lvl = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      lvl,
		TimeFormat: time.RFC3339,
	}))
}
