// Package obslog provides the structured logging wrapper used by every
// OpenSRF process: the controller, worker children, and the HTTP gateway.
package obslog

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with the small surface the rest of the tree uses.
type Logger struct {
	logger *zap.Logger
	sugar  *zap.SugaredLogger
}

// Fields is a type alias for key-value pairs attached to a log line.
type Fields map[string]interface{}

// Level is the bootstrap config's loglevel scale (§6): 1=ERR .. 5=INTERNAL.
type Level int

// Bootstrap config loglevel values.
const (
	LevelErr Level = iota + 1
	LevelWarn
	LevelInfo
	LevelDebug
	LevelInternal
)

// ParseLevel converts a bootstrap config loglevel integer into a Level,
// defaulting to LevelInfo for anything out of range.
func ParseLevel(v int) Level {
	switch v {
	case 1:
		return LevelErr
	case 2:
		return LevelWarn
	case 3:
		return LevelInfo
	case 4:
		return LevelDebug
	case 5:
		return LevelInternal
	default:
		return LevelInfo
	}
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case LevelErr:
		return zapcore.ErrorLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelInfo:
		return zapcore.InfoLevel
	case LevelDebug, LevelInternal:
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

// Config configures a Logger. OutputPaths follows zap's convention; there
// is no syslog output. The cmd binaries pass the bootstrap config's
// logfile, or "stdout" when only the syslog key is set.
type Config struct {
	Level         Level
	Development   bool
	OutputPaths   []string
	InitialFields Fields
}

// DefaultConfig returns the production defaults: info level, stdout.
func DefaultConfig() Config {
	return Config{
		Level:       LevelInfo,
		Development: false,
		OutputPaths: []string{"stdout"},
	}
}

// New builds a Logger from Config.
func New(config Config) (*Logger, error) {
	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(config.Level.zapLevel()),
		Development:       config.Development,
		DisableCaller:     !config.Development,
		DisableStacktrace: !config.Development,
		Encoding:          "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "message",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      config.OutputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	if config.InitialFields != nil {
		zapConfig.InitialFields = make(map[string]interface{}, len(config.InitialFields))
		for k, v := range config.InitialFields {
			zapConfig.InitialFields[k] = v
		}
	}

	zapLogger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{logger: zapLogger, sugar: zapLogger.Sugar()}, nil
}

// NewProcess builds a Logger tagged with the process's service/component
// name and pid, the fields every OpenSRF log line carries.
func NewProcess(level Level, outputPaths []string, component string, pid int) (*Logger, error) {
	cfg := Config{
		Level:       level,
		OutputPaths: outputPaths,
		InitialFields: Fields{
			"component": component,
			"pid":       pid,
		},
	}
	return New(cfg)
}

// With returns a logger annotated with the given fields.
func (l *Logger) With(fields Fields) *Logger {
	if len(fields) == 0 {
		return l
	}
	zapFields := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zapFields = append(zapFields, zap.Any(k, v))
	}
	newLogger := l.logger.With(zapFields...)
	return &Logger{logger: newLogger, sugar: newLogger.Sugar()}
}

// WithThread returns a logger annotated with a session thread id, the
// correlation key carried through every osrfMessage (spec.md §3).
func (l *Logger) WithThread(thread string) *Logger {
	return l.With(Fields{"thread": thread})
}

func (l *Logger) Debug(msg string, fields ...Fields) { l.log(l.logger.Debug, msg, fields) }
func (l *Logger) Info(msg string, fields ...Fields)  { l.log(l.logger.Info, msg, fields) }
func (l *Logger) Warn(msg string, fields ...Fields)  { l.log(l.logger.Warn, msg, fields) }
func (l *Logger) Error(msg string, fields ...Fields) { l.log(l.logger.Error, msg, fields) }
func (l *Logger) Fatal(msg string, fields ...Fields) { l.log(l.logger.Fatal, msg, fields) }

func (l *Logger) log(fn func(string, ...zap.Field), msg string, fields []Fields) {
	if len(fields) > 0 {
		l.With(fields[0]).log(fn, msg, nil)
		return
	}
	fn(msg)
}

// Debugf logs a formatted message at debug level.
func (l *Logger) Debugf(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }

// Infof logs a formatted message at info level.
func (l *Logger) Infof(format string, args ...interface{}) { l.sugar.Infof(format, args...) }

// Warnf logs a formatted message at warn level.
func (l *Logger) Warnf(format string, args ...interface{}) { l.sugar.Warnf(format, args...) }

// Errorf logs a formatted message at error level.
func (l *Logger) Errorf(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// ErrorContext logs an error annotated with the calling context, used at
// transport and process boundaries where a request's context carries a
// deadline or cancellation reason worth recording.
func (l *Logger) ErrorContext(ctx context.Context, msg string, fields ...Fields) {
	if len(fields) > 0 {
		l.With(fields[0]).logger.Error(msg, zap.Error(ctx.Err()))
		return
	}
	l.logger.Error(msg, zap.Error(ctx.Err()))
}

// Sync flushes buffered log entries. Call before process exit.
func (l *Logger) Sync() error {
	return l.logger.Sync()
}

var defaultLogger, _ = New(DefaultConfig())

// Default returns the process-wide default logger.
func Default() *Logger { return defaultLogger }

// SetDefault replaces the process-wide default logger.
func SetDefault(logger *Logger) { defaultLogger = logger }
