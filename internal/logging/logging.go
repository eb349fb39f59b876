// Package logging builds the zap logger used by the sampler.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a logger at the given level together with a handle that
// changes the level at runtime. Format "json" selects the production encoder;
// "console" gets a human-readable one.
func New(level, format string) (*zap.Logger, zap.AtomicLevel, error) {
	atom := zap.NewAtomicLevel()
	if err := SetLevel(atom, level); err != nil {
		return nil, atom, err
	}

	var loggerConfig zap.Config
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		loggerConfig = zap.NewProductionConfig()
	case "", "console", "text":
		loggerConfig = zap.NewDevelopmentConfig()
		loggerConfig.Development = false
		loggerConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, atom, fmt.Errorf("invalid log format %q (want json or console)", format)
	}

	loggerConfig.Level = atom
	loggerConfig.OutputPaths = []string{"stdout"}
	logger, err := loggerConfig.Build()
	if err != nil {
		return nil, atom, err
	}
	return logger, atom, nil
}

// SetLevel parses level and applies it to atom
func SetLevel(atom zap.AtomicLevel, level string) error {
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	atom.SetLevel(lvl)
	return nil
}
