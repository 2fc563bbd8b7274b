// Pacote logger mantém o slog compartilhado pelos binários, sempre em JSON no stdout.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

var (
	defaultLogger = newJSON(os.Stdout, slog.LevelInfo)
)

func newJSON(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func L() *slog.Logger {
	return defaultLogger
}

func SetLevel(level slog.Level) {
	defaultLogger = newJSON(os.Stdout, level)
}

// ParseLevel aceita debug, info, warn e error; qualquer outro valor cai em info.
func ParseLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard devolve um logger silencioso para testes.
func Discard() *slog.Logger {
	return newJSON(io.Discard, slog.LevelError)
}

func Debug(msg string, args ...any) {
	defaultLogger.Debug(msg, args...)
}

func Info(msg string, args ...any) {
	defaultLogger.Info(msg, args...)
}

func Warn(msg string, args ...any) {
	defaultLogger.Warn(msg, args...)
}

func Error(msg string, args ...any) {
	defaultLogger.Error(msg, args...)
}

func Fatal(msg string, args ...any) {
	defaultLogger.Error(msg, args...)
	os.Exit(1)
}
