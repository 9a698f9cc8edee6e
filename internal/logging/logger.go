package logging

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap with the domain-specific helpers the engines call at
// order/trade/risk/error boundaries.
type Logger struct {
	*zap.Logger
	config Config
}

// Config controls output targets and format, loaded from the application
// config file and overridable by LOG_LEVEL.
type Config struct {
	Level      string   `yaml:"level"`
	Outputs    []string `yaml:"outputs"`
	OutputFile string   `yaml:"output_file"`
	ErrorFile  string   `yaml:"error_file"`
	Format     string   `yaml:"format"`
}

func DefaultConfig() Config {
	return Config{
		Level:   "info",
		Outputs: []string{"stdout"},
		Format:  "json",
	}
}

func New(cfg Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", cfg.Level, err)
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	var cores []zapcore.Core

	if contains(cfg.Outputs, "stdout") {
		var encoder zapcore.Encoder
		if cfg.Format == "console" {
			encoder = zapcore.NewConsoleEncoder(encoderConfig)
		} else {
			encoder = zapcore.NewJSONEncoder(encoderConfig)
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level))
	}

	if contains(cfg.Outputs, "file") && cfg.OutputFile != "" {
		f, err := os.OpenFile(cfg.OutputFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file failed: %w", err)
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(f), level))
	}

	if cfg.ErrorFile != "" {
		f, err := os.OpenFile(cfg.ErrorFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open error log file failed: %w", err)
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(f), zapcore.ErrorLevel))
	}

	core := zapcore.NewTee(cores...)
	zl := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	return &Logger{Logger: zl, config: cfg}, nil
}

func (l *Logger) WithFields(fields map[string]any) *Logger {
	zf := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zf = append(zf, zap.Any(k, v))
	}
	return &Logger{Logger: l.Logger.With(zf...), config: l.config}
}

func (l *Logger) LogOrder(event string, orderID string, fields map[string]any) {
	l.logEvent("order_event", event, fields, map[string]any{"order_id": orderID})
}

func (l *Logger) LogTrade(event string, fields map[string]any) {
	l.logEvent("trade_event", event, fields, nil)
}

func (l *Logger) LogRisk(event string, fields map[string]any) {
	zf := l.toFields(event, fields, nil)
	l.Warn("risk_event", zf...)
}

func (l *Logger) LogError(err error, context map[string]any) {
	if context == nil {
		context = make(map[string]any)
	}
	context["error"] = err.Error()
	context["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	zf := make([]zap.Field, 0, len(context))
	for k, v := range context {
		zf = append(zf, zap.Any(k, v))
	}
	l.Error("error_event", zf...)
}

func (l *Logger) logEvent(msg, event string, fields, extra map[string]any) {
	zf := l.toFields(event, fields, extra)
	l.Info(msg, zf...)
}

func (l *Logger) toFields(event string, fields, extra map[string]any) []zap.Field {
	if fields == nil {
		fields = make(map[string]any)
	}
	fields["event"] = event
	fields["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	for k, v := range extra {
		fields[k] = v
	}
	zf := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zf = append(zf, zap.Any(k, v))
	}
	return zf
}

func (l *Logger) Close() error {
	return l.Sync()
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
