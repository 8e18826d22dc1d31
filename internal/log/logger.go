// Package log provides structured logging for xemu using zap.
package log

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with emulator-specific helpers.
type Logger struct {
	*zap.Logger
}

var (
	// L is the global logger instance. Nil until Init is called.
	L    *Logger
	once sync.Once
)

// Init initializes the global logger with the given configuration.
// Safe to call multiple times; only the first call takes effect.
func Init(debug bool) {
	once.Do(func() {
		L = New(debug)
	})
}

// New creates a new Logger instance.
func New(debug bool) *Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}

	// Shorter timestamps in development
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// Fallback to no-op if config fails
		logger = zap.NewNop()
	}

	return &Logger{Logger: logger}
}

// NewNop creates a no-op logger for testing.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Trace logs an emulator event. Syscall handlers report their activity
// through it.
func (l *Logger) Trace(pc uint64, category, name, detail string) {
	l.Debug("event",
		zap.String("cat", category),
		zap.String("fn", name),
		zap.String("detail", detail),
		zap.String("pc", Hex(pc)),
	)
}

// Loaded logs a resolved image.
func (l *Logger) Loaded(format string, bitness int, base, entry uint64) {
	l.Debug("loaded",
		zap.String("format", format),
		zap.Int("bits", bitness),
		Ptr("base", base),
		Ptr("entry", entry),
	)
}

// SyscallRegister logs when a syscall handler is registered.
func (l *Logger) SyscallRegister(category, name string, number uint64) {
	l.Debug("syscall registered",
		zap.String("cat", category),
		zap.String("fn", name),
		zap.String("nr", Hex(number)),
	)
}

// WithCategory returns a logger with the category field preset.
func (l *Logger) WithCategory(category string) *Logger {
	return &Logger{Logger: l.Logger.With(zap.String("cat", category))}
}

// Hex formats a uint64 as hex string for logging.
func Hex(addr uint64) string {
	return "0x" + hexString(addr)
}

func hexString(v uint64) string {
	const digits = "0123456789abcdef"
	if v == 0 {
		return "0"
	}
	buf := make([]byte, 16)
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = digits[v&0xf]
		v >>= 4
	}
	return string(buf[i:])
}

// Field helpers for common patterns.

// Addr creates an address field.
func Addr(addr uint64) zap.Field {
	return zap.String("addr", Hex(addr))
}

// Size creates a size field.
func Size(size uint64) zap.Field {
	return zap.Uint64("size", size)
}

// Ptr creates a pointer field.
func Ptr(name string, ptr uint64) zap.Field {
	return zap.String(name, Hex(ptr))
}

// Fn creates a function name field.
func Fn(name string) zap.Field {
	return zap.String("fn", name)
}

// Run creates a run identifier field.
func Run(id string) zap.Field {
	return zap.String("run", id)
}
