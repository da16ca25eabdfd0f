// Package logging configures the console logger for any wheel component
// that wants diagnostics instead of silence.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// Config describes how to build a logger. Component, when set, is attached
// to every log line so a process that opens both ends of a wheel for
// testing (see wheel's bootstrap round-trip test) can still tell producer
// diagnostics apart from consumer diagnostics in one stream.
type Config struct {
	// Level is the logging level.
	Level zapcore.Level `yaml:"level"`
	// Component, if non-empty, is attached to every line as a "component"
	// field.
	Component string `yaml:"component,omitempty"`
}

// DefaultConfig returns a Config at info level with no component tag.
func DefaultConfig() Config {
	return Config{Level: zapcore.InfoLevel}
}

// Init builds a console-encoded logger at the level given by cfg. Color is
// enabled only when stderr is a terminal, so piped/CI output stays plain.
func Init(cfg *Config) (*zap.SugaredLogger, zap.AtomicLevel, error) {
	encoderConfig := zap.NewDevelopmentEncoderConfig()

	if term.IsTerminal(int(os.Stderr.Fd())) {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(cfg.Level),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("failed to initialize logger: %w", err)
	}

	sugar := logger.Sugar()
	if cfg.Component != "" {
		sugar = sugar.With("component", cfg.Component)
	}

	return sugar, config.Level, nil
}

// Nop returns a logger that discards everything, for components that take an
// optional *zap.SugaredLogger and were not given one.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// OrNop returns log unless it is nil, in which case it returns Nop().
func OrNop(log *zap.SugaredLogger) *zap.SugaredLogger {
	if log == nil {
		return Nop()
	}
	return log
}
