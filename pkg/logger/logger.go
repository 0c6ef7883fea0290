// Package logger provides component-scoped structured logging on top of zap.
//
// Call sites pass a component name and an optional field map:
//
//	logger.InfoCF("memory", "profile saved", map[string]interface{}{"user_id": id})
package logger

import (
	"sort"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "debug"
	case WARN:
		return "warn"
	case ERROR:
		return "error"
	default:
		return "info"
	}
}

// ParseLevel maps a config string onto a Level, defaulting to INFO.
func ParseLevel(raw string) Level {
	switch raw {
	case "debug", "DEBUG":
		return DEBUG
	case "warn", "WARN", "warning":
		return WARN
	case "error", "ERROR":
		return ERROR
	default:
		return INFO
	}
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Options configures Init.
type Options struct {
	Level       Level
	Development bool
	OutputPaths []string
}

var (
	mu    sync.RWMutex
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	base  = mustBuild(Options{Level: INFO})
)

func mustBuild(opts Options) *zap.Logger {
	l, err := build(opts)
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func build(opts Options) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
	}
	level.SetLevel(opts.Level.zapLevel())
	cfg.Level = level
	cfg.OutputPaths = []string{"stderr"}
	if len(opts.OutputPaths) > 0 {
		cfg.OutputPaths = opts.OutputPaths
	}
	cfg.DisableStacktrace = !opts.Development
	return cfg.Build()
}

// Init rebuilds the process logger from opts.
func Init(opts Options) error {
	l, err := build(opts)
	if err != nil {
		return err
	}
	mu.Lock()
	old := base
	base = l
	mu.Unlock()
	_ = old.Sync()
	return nil
}

// SetLogger swaps the backing zap logger. Tests use zap.NewNop().
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	base = l
	mu.Unlock()
}

func SetLevel(l Level) {
	level.SetLevel(l.zapLevel())
}

func GetLevel() Level {
	switch level.Level() {
	case zapcore.DebugLevel:
		return DEBUG
	case zapcore.WarnLevel:
		return WARN
	case zapcore.ErrorLevel, zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return ERROR
	default:
		return INFO
	}
}

func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	return base.Sync()
}

func current() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func toFields(component string, fields map[string]interface{}) []zap.Field {
	out := make([]zap.Field, 0, len(fields)+1)
	out = append(out, zap.String("component", component))
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, zap.Any(k, fields[k]))
	}
	return out
}

func DebugC(component, msg string) { current().Debug(msg, toFields(component, nil)...) }
func InfoC(component, msg string)  { current().Info(msg, toFields(component, nil)...) }

func DebugCF(component, msg string, fields map[string]interface{}) {
	current().Debug(msg, toFields(component, fields)...)
}

func InfoCF(component, msg string, fields map[string]interface{}) {
	current().Info(msg, toFields(component, fields)...)
}

func WarnCF(component, msg string, fields map[string]interface{}) {
	current().Warn(msg, toFields(component, fields)...)
}

func ErrorCF(component, msg string, fields map[string]interface{}) {
	current().Error(msg, toFields(component, fields)...)
}
