package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with bridge-specific helpers.
type Logger struct {
	*zap.Logger
}

// Config defines logger configuration.
type Config struct {
	Level       string // "debug", "info", "warn", "error"
	Development bool
	// Output is "stdout" or "stderr". The renderer must use stderr.
	Output string
	// Process is attached to every entry ("host" or "renderer").
	Process string
}

// HostConfig returns the configuration used by the host application.
func HostConfig(level string, development bool) Config {
	return Config{Level: level, Development: development, Output: "stdout", Process: "host"}
}

// RendererConfig returns the configuration used by the renderer subprocess.
// Stdout carries wire frames there, so every log line goes to stderr.
func RendererConfig(level string, development bool) Config {
	return Config{Level: level, Development: development, Output: "stderr", Process: "renderer"}
}

// New creates a logger from cfg.
func New(cfg Config) (*Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}

	var sink zapcore.WriteSyncer
	switch cfg.Output {
	case "", "stdout":
		sink = os.Stdout
	case "stderr":
		sink = os.Stderr
	default:
		return nil, fmt.Errorf("log output %q: must be stdout or stderr", cfg.Output)
	}

	var encoder zapcore.Encoder
	opts := []zap.Option{zap.AddCaller(), zap.ErrorOutput(zapcore.Lock(os.Stderr))}
	if cfg.Development {
		encoder = zapcore.NewConsoleEncoder(developmentEncoder())
		opts = append(opts, zap.Development(), zap.AddStacktrace(zapcore.WarnLevel))
	} else {
		encoder = zapcore.NewJSONEncoder(productionEncoder())
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(sink), zap.NewAtomicLevelAt(level))
	logger := zap.New(core, opts...)
	if cfg.Process != "" {
		logger = logger.With(zap.String("process", cfg.Process))
	}
	return &Logger{Logger: logger}, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Wrap adopts an existing zap logger, e.g. one built by zaptest or an observer core.
func Wrap(l *zap.Logger) *Logger {
	if l == nil {
		return NewNop()
	}
	return &Logger{Logger: l}
}

// Named returns a child logger with the given name segment.
func (l *Logger) Named(name string) *Logger {
	return &Logger{Logger: l.Logger.Named(name)}
}

// With returns a child logger carrying the given fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

// ForBrowser tags every entry with the browser identifier.
func (l *Logger) ForBrowser(browserID string) *Logger {
	return l.With(zap.String("browser", browserID))
}

func developmentEncoder() zapcore.EncoderConfig {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	enc.EncodeDuration = zapcore.StringDurationEncoder
	return enc
}

func productionEncoder() zapcore.EncoderConfig {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.MessageKey = "message"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.SecondsDurationEncoder
	return enc
}
