// Package observability owns the operator-facing logger.
package observability

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the logger used by command handlers. It is a no-op until
// InitCLILogger builds a console logger on stderr named after the service.
var CLILogger = zap.NewNop()

// InitCLILogger replaces CLILogger with a console logger at info level, or
// debug when verbose is set.
func InitCLILogger(service string, verbose bool) {
	lvl := zapcore.InfoLevel
	if verbose {
		lvl = zapcore.DebugLevel
	}
	CLILogger = NewCLILogger(service, lvl)
}

// NewCLILogger returns a human-oriented logger writing to stderr.
func NewCLILogger(service string, lvl zapcore.Level) *zap.Logger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	if !isTerminal(os.Stderr) {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		zap.NewAtomicLevelAt(lvl),
	)
	return zap.New(core).Named(service)
}

// SetLevel rebuilds CLILogger at lvl, keeping the service name.
func SetLevel(service, lvl string) error {
	parsed, err := zapcore.ParseLevel(strings.TrimSpace(lvl))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", lvl, err)
	}
	CLILogger = NewCLILogger(service, parsed)
	return nil
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
