package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/lumberjack.v2"

	"github.com/onurcolak/retention-outbox-service/environments"
)

// Init installs the default slog handler (called once from main).
// Output goes to stdout and, when LOG_FILE is set, to a rotating file.
func Init(cfg environments.LogConfig) {
	writers := []io.Writer{os.Stdout}
	if cfg.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			LocalTime:  true,
		})
	}

	h := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{Level: parseLevel(cfg.Level)})
	slog.SetDefault(slog.New(h))
}

func Infof(format string, v ...any) {
	logf(slog.LevelInfo, format, v...)
}

func Warnf(format string, v ...any) {
	logf(slog.LevelWarn, format, v...)
}

func Errorf(format string, v ...any) {
	logf(slog.LevelError, format, v...)
}

func Debugf(format string, v ...any) {
	logf(slog.LevelDebug, format, v...)
}

func Fatalf(format string, v ...any) {
	logf(slog.LevelError, format, v...)
	os.Exit(1)
}

func logf(level slog.Level, format string, v ...any) {
	l := slog.Default()
	if !l.Enabled(context.Background(), level) {
		return
	}
	l.Log(context.Background(), level, fmt.Sprintf(format, v...))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
