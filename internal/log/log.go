package log

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var (
	mu       sync.RWMutex
	logger   *zap.SugaredLogger
	minLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// Options configures the global logger. An empty File logs to stderr.
type Options struct {
	Level string
	File  string
}

// Init replaces the global logger. Safe to call more than once; the last
// call wins. Calls made before Init go to a stderr logger at INFO.
func Init(opts Options) {
	minLevel.SetLevel(parseLevel(opts.Level))

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var sink zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
	if opts.File != "" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    50, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		})
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), sink, minLevel)

	mu.Lock()
	old := logger
	logger = zap.New(core).Sugar()
	mu.Unlock()

	if old != nil {
		_ = old.Sync()
	}
}

// SetLevel adjusts the minimum level without rebuilding the logger.
func SetLevel(l Level) {
	minLevel.SetLevel(parseLevel(string(l)))
}

// Sync flushes buffered entries. Call before exit.
func Sync() {
	_ = get().Sync()
}

func Debug(msg string, kv ...any) {
	get().Debugw(msg, kv...)
}

func Info(msg string, kv ...any) {
	get().Infow(msg, kv...)
}

func Warn(msg string, kv ...any) {
	get().Warnw(msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	// Prepend error into key-value list.
	extended := append([]any{"err", err}, kv...)
	get().Errorw(msg, extended...)
}

func get() *zap.SugaredLogger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}

	Init(Options{Level: string(LevelInfo)})

	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(LevelDebug):
		return zapcore.DebugLevel
	case string(LevelWarn), "WARNING":
		return zapcore.WarnLevel
	case string(LevelError):
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
