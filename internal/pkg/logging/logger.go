package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// SystemID stands in for trace and span IDs on lines logged outside any request.
const SystemID = "system"

// Options describes the process logger.
type Options struct {
	Service string
	Env     string
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// File, when set, receives a copy of every line written to stdout.
	File string
}

// New builds the JSON process logger. Every line carries service and env.
func New(opts Options) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if opts.Level != "" {
		lvl, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("logging: level %q: %w", opts.Level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stdout"}
	if opts.File != "" {
		if err := prepareFile(opts.File); err != nil {
			return nil, fmt.Errorf("logging: file %q: %w", opts.File, err)
		}
		cfg.OutputPaths = append(cfg.OutputPaths, opts.File)
		cfg.ErrorOutputPaths = append(cfg.ErrorOutputPaths, opts.File)
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	cfg.InitialFields = map[string]any{
		"service": opts.Service,
		"env":     opts.Env,
	}
	return cfg.Build()
}

// System tags l as process-level output so queries on trace_id still match.
func System(l *zap.Logger) *zap.Logger {
	if l == nil {
		l = zap.L()
	}
	return l.With(zap.String("trace_id", SystemID), zap.String("span_id", SystemID))
}

func prepareFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}
