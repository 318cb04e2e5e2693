package logx

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	logger = mustBuild("info", os.Getenv("APP_ENV"))
)

// useColor reports whether the console encoder should colour levels.
func useColor(env string) bool {
	return env == "local" || env == "dev"
}

func build(level, env string) (*zap.SugaredLogger, error) {
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}

	var cfg zap.Config
	if env == "prod" || env == "production" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.DisableStacktrace = true
		if useColor(env) {
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	l, err := cfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}

func mustBuild(level, env string) *zap.SugaredLogger {
	l, err := build(level, env)
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return l
}

// Init replaces the process logger. level is a zap level name
// (debug, info, warn, error); env selects the encoder.
func Init(level, env string) error {
	l, err := build(level, env)
	if err != nil {
		return err
	}
	mu.Lock()
	logger = l
	mu.Unlock()
	return nil
}

// SetLogger installs an already built logger, mostly for tests.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	logger = l.WithOptions(zap.AddCallerSkip(2)).Sugar()
	mu.Unlock()
}

// Sync flushes buffered entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = logger.Sync()
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// --- Public API ---

func Debug(component, msg string, args ...any) {
	logGeneric(zapcore.DebugLevel, component, "", msg, args...)
}

func Info(component, msg string, args ...any) {
	logGeneric(zapcore.InfoLevel, component, "", msg, args...)
}

func Warn(component, msg string, args ...any) {
	logGeneric(zapcore.WarnLevel, component, "", msg, args...)
}

func Error(component, msg string, args ...any) {
	logGeneric(zapcore.ErrorLevel, component, "", msg, args...)
}

// L logs at info level with the job id attached.
func L(id, component, msg string, args ...any) {
	logGeneric(zapcore.InfoLevel, component, id, msg, args...)
}

// --- Core ---

func logGeneric(level zapcore.Level, component, id, msg string, args ...any) {
	with(component, id).Logf(level, msg, args...)
}

// logFields is logGeneric with extra key/value pairs. Both must be called
// directly from an exported helper; the logger's caller skip counts on it.
func logFields(level zapcore.Level, component, id string, kv []any, msg string, args ...any) {
	with(component, id, kv...).Logf(level, msg, args...)
}

func with(component, id string, kv ...any) *zap.SugaredLogger {
	l := current().With("component", component)
	if id != "" {
		l = l.With("job", id)
	}
	if len(kv) > 0 {
		l = l.With(kv...)
	}
	return l
}
