package logger

import (
	"os"

	"github.com/ideamans/go-l10n"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/user/capturedriver/pkg/ports"
)

// ZapOptions configures a structured logger.
type ZapOptions struct {
	Level  ports.LogLevel
	File   string // Optional rotated JSON log file
	Fields map[string]string
}

// ZapLogger writes structured JSON log lines through zap.
// Messages are translated like the console logger; the untranslated key is
// kept in the "key" field so log pipelines can group on it.
type ZapLogger struct {
	z *zap.Logger
}

// NewZap creates a JSON logger on stdout, teeing to a rotated file when opts.File is set.
func NewZap(opts ZapOptions) *ZapLogger {
	level := zap.NewAtomicLevelAt(zapLevel(opts.Level))

	cores := []zapcore.Core{
		zapcore.NewCore(jsonEncoder(), zapcore.Lock(os.Stdout), level),
	}
	if opts.File != "" {
		w := zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     14,
			Compress:   true,
		})
		cores = append(cores, zapcore.NewCore(jsonEncoder(), w, level))
	}

	z := zap.New(zapcore.NewTee(cores...))
	for k, v := range opts.Fields {
		z = z.With(zap.String(k, v))
	}
	return &ZapLogger{z: z}
}

// NewZapFromCore wraps an existing core. Used by tests with an observer core.
func NewZapFromCore(core zapcore.Core) *ZapLogger {
	return &ZapLogger{z: zap.New(core)}
}

func jsonEncoder() zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	return zapcore.NewJSONEncoder(cfg)
}

func zapLevel(level ports.LogLevel) zapcore.Level {
	switch level {
	case ports.LevelDebug:
		return zapcore.DebugLevel
	case ports.LevelWarn:
		return zapcore.WarnLevel
	case ports.LevelError:
		return zapcore.ErrorLevel
	case ports.LevelQuiet:
		return zapcore.FatalLevel + 1
	default:
		return zapcore.InfoLevel
	}
}

// Debug logs a debug message.
func (l *ZapLogger) Debug(msg string, args ...interface{}) {
	if ce := l.z.Check(zapcore.DebugLevel, ""); ce != nil {
		ce.Message = l10n.F(msg, args...)
		ce.Write(l.fields(msg, args)...)
	}
}

// Info logs an informational message.
func (l *ZapLogger) Info(msg string, args ...interface{}) {
	l.z.Info(l10n.F(msg, args...), l.fields(msg, args)...)
}

// Warn logs a warning message.
func (l *ZapLogger) Warn(msg string, args ...interface{}) {
	l.z.Warn(l10n.F(msg, args...), l.fields(msg, args)...)
}

// Error logs an error message.
func (l *ZapLogger) Error(msg string, args ...interface{}) {
	l.z.Error(l10n.F(msg, args...), l.fields(msg, args)...)
}

// WithComponent returns a logger that adds a component field.
func (l *ZapLogger) WithComponent(component string) ports.Logger {
	return &ZapLogger{z: l.z.With(zap.String("component", component))}
}

// Sync flushes buffered entries.
// Errors are dropped: syncing a terminal stdout fails on some platforms.
func (l *ZapLogger) Sync() {
	_ = l.z.Sync()
}

func (l *ZapLogger) fields(msg string, args []interface{}) []zap.Field {
	if len(args) == 0 {
		return nil
	}
	return []zap.Field{zap.String("key", msg)}
}
