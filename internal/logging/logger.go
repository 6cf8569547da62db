// Package logging provides the leveled logger used across the build: a
// zap console core on stdout/stderr with optional ANSI level colors, plus an
// optional plain-text file core opened in append mode.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/AtomWave/AW-converter-2-0/internal/config"
	"github.com/AtomWave/AW-converter-2-0/internal/term"
)

const timeLayout = "2006-01-02 15:04:05"

// Logger provides leveled, optionally colored logging with optional file sink.
// Child loggers created by [Logger.Stage] and [Logger.With] share the parent's
// sinks; only the root logger should be closed.
type Logger struct {
	z    *zap.Logger
	file *os.File
}

// NewLogger resolves colors from cfg and optionally opens cfg.LogFile.
// Call Close() when done.
func NewLogger(cfg *config.Config) (*Logger, error) {
	color := term.Configure(cfg.ColorMode)
	return newLogger(cfg, zapcore.Lock(os.Stdout), zapcore.Lock(os.Stderr), color)
}

// newLogger builds the cores. Errors go to errOut; every other level to out.
func newLogger(cfg *config.Config, out, errOut zapcore.WriteSyncer, color bool) (*Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Verbose {
		level = zapcore.DebugLevel
	}

	lowPriority := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= level && l < zapcore.ErrorLevel
	})
	highPriority := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= level && l >= zapcore.ErrorLevel
	})

	consoleEnc := zapcore.NewConsoleEncoder(encoderConfig(color))
	cores := []zapcore.Core{
		zapcore.NewCore(consoleEnc, out, lowPriority),
		zapcore.NewCore(consoleEnc, errOut, highPriority),
	}

	l := &Logger{}
	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		l.file = f
		fileEnc := zapcore.NewConsoleEncoder(encoderConfig(false))
		cores = append(cores, zapcore.NewCore(fileEnc, zapcore.Lock(f), zap.NewAtomicLevelAt(level)))
	}

	l.z = zap.New(zapcore.NewTee(cores...))
	return l, nil
}

// encoderConfig returns the console layout: "<time> <LEVEL> <stage> <msg> <fields>".
func encoderConfig(color bool) zapcore.EncoderConfig {
	levelEnc := zapcore.CapitalLevelEncoder
	if color {
		levelEnc = zapcore.CapitalColorLevelEncoder
	}
	return zapcore.EncoderConfig{
		TimeKey:          "T",
		LevelKey:         "L",
		NameKey:          "N",
		MessageKey:       "M",
		CallerKey:        zapcore.OmitKey,
		FunctionKey:      zapcore.OmitKey,
		StacktraceKey:    zapcore.OmitKey,
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      levelEnc,
		EncodeTime:       zapcore.TimeEncoderOfLayout(timeLayout),
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeName:       zapcore.FullNameEncoder,
		ConsoleSeparator: " ",
	}
}

// Nop returns a logger that discards everything. Useful in tests.
func Nop() *Logger {
	return &Logger{z: zap.NewNop()}
}

// Stage returns a child logger named after a pipeline stage.
func (l *Logger) Stage(name string) *Logger {
	return &Logger{z: l.z.Named(name)}
}

// With returns a child logger carrying the given fields on every entry.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{z: l.z.With(fields...)}
}

// Close flushes buffered entries and closes the log file if one was opened.
func (l *Logger) Close() error {
	_ = l.z.Sync()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// Info logs at INFO level.
func (l *Logger) Info(format string, args ...interface{}) {
	l.z.Info(fmt.Sprintf(format, args...))
}

// Success logs a completed unit of work at INFO level, tagged result=ok.
func (l *Logger) Success(format string, args ...interface{}) {
	l.z.Info(fmt.Sprintf(format, args...), zap.String("result", "ok"))
}

// Warn logs at WARN level.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.z.Warn(fmt.Sprintf(format, args...))
}

// Error logs at ERROR level, to stderr.
func (l *Logger) Error(format string, args ...interface{}) {
	l.z.Error(fmt.Sprintf(format, args...))
}

// Debug logs at DEBUG level; dropped unless the logger was built verbose.
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.z.Core().Enabled(zapcore.DebugLevel) {
		return
	}
	l.z.Debug(fmt.Sprintf(format, args...))
}
