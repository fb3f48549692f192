// Package observability owns logger construction. Loggers are initialized
// once at startup from config and shared via package variables, mirroring
// how the CLI and server layers consume them.
package observability

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the logger for command-line entry points. It defaults to a
// no-op logger so packages can log before InitCLILogger runs (tests,
// early-start paths).
var CLILogger = zap.NewNop()

// ServerLogger is the logger for the HTTP server and its handlers.
var ServerLogger = zap.NewNop()

// InitCLILogger builds the process loggers.
//
// profile "STRUCTURED" emits JSON; anything else emits console output for
// human operators. level is a zap level name ("debug", "info", ...).
func InitCLILogger(level, profile string) error {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	if strings.EqualFold(strings.TrimSpace(profile), "STRUCTURED") {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	CLILogger = logger.Named("cli")
	ServerLogger = logger.Named("server")
	return nil
}

// Logger returns a named child of the process logger for subsystems.
func Logger(name string) *zap.Logger {
	return CLILogger.Named(name)
}

// Sync flushes buffered log entries. Safe to call on no-op loggers.
func Sync() {
	_ = CLILogger.Sync()
	_ = ServerLogger.Sync()
}
