// Package logging provides structured logging for chatsync using zerolog.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance.
var Logger zerolog.Logger

var (
	fileMu  sync.Mutex
	logFile *os.File
)

// Config holds logging configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string

	// Format is the output format (json, console).
	Format string

	// Output is where logs are written (defaults to stderr).
	Output io.Writer

	// File, when set, receives logs instead of Output. The TUI uses it so
	// log lines do not corrupt the alternate screen.
	File string

	// EnableCaller adds caller information to logs.
	EnableCaller bool
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:        "info",
		Format:       "console",
		Output:       os.Stderr,
		EnableCaller: false,
	}
}

// Init initializes the global logger with the given configuration. A log file
// that cannot be opened is an error and leaves the current logger in place.
// A file opened by an earlier Init is closed once the new logger is set.
func Init(cfg Config) error {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	var file *os.File
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		file = f
		output = f
	}

	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	zerolog.TimeFieldFormat = time.RFC3339

	// Use console writer for human-readable output
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: "15:04:05",
			NoColor:    cfg.File != "",
		}
	}

	ctx := zerolog.New(output).With().Timestamp()

	if cfg.EnableCaller {
		ctx = ctx.Caller()
	}

	Logger = ctx.Logger()

	fileMu.Lock()
	prev := logFile
	logFile = file
	fileMu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
	return nil
}

// Close closes the log file opened by Init, if any, and sends further output
// to stderr.
func Close() error {
	fileMu.Lock()
	f := logFile
	logFile = nil
	fileMu.Unlock()
	if f == nil {
		return nil
	}
	Logger = Logger.Output(os.Stderr)
	return f.Close()
}

// parseLevel converts a string level to zerolog.Level.
func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "trace":
		return zerolog.TraceLevel
	default:
		return zerolog.InfoLevel
	}
}

// Component creates a logger with a component field.
func Component(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

// WithConversation creates a logger scoped to one conversation.
func WithConversation(userID, peerID int64) zerolog.Logger {
	return Logger.With().Int64("user_id", userID).Int64("peer_id", peerID).Logger()
}

// WithSession creates a logger carrying a channel session id.
func WithSession(logger zerolog.Logger, sessionID string) zerolog.Logger {
	return logger.With().Str("session_id", sessionID).Logger()
}

// Nop returns a disabled logger, used when a component is built without one.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

func init() {
	// Initialize with default config
	_ = Init(DefaultConfig())
}
