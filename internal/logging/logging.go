// Package logging builds the process-wide zap.Logger (A1), carried through
// every ambient concern — config loading, HTTP requests, job execution —
// regardless of which spec.md features a given build excludes via its
// Non-goals.
//
// Grounded on the NGOClaw gateway's internal/infrastructure/logger/logger.go
// (level/format/output-path Config, console vs JSON encoder selection).
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls the logger's verbosity, encoding, and sink.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	OutputPath string // stdout, stderr, or a file path
}

// DefaultConfig logs info-and-above as JSON to stdout.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "json", OutputPath: "stdout"}
}

// New builds a *zap.Logger from cfg, falling back to info level on an
// unparseable Level rather than failing process startup over a typo.
func New(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputPath := cfg.OutputPath
	if outputPath == "" {
		outputPath = "stdout"
	}

	zapCfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         cfg.Format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{outputPath},
		ErrorOutputPaths: []string{"stderr"},
	}
	return zapCfg.Build()
}

// ForJob returns a child logger scoped to one job: every line logged through
// it carries job_id, so one job's logs can be grepped out without a tracing
// system.
func ForJob(base *zap.Logger, jobID string) *zap.Logger {
	return base.With(zap.String("job_id", jobID))
}
