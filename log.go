package taonet

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is a logging severity.
type Level int8

// Logging levels, from most to least verbose.
const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelCrit
	LevelNone
)

// zap has no trace level; it is encoded one step below debug.
const zapTraceLevel = zapcore.DebugLevel - 1

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelCrit:
		return "CRIT"
	case LevelNone:
		return "NONE"
	}
	return fmt.Sprintf("Level(%d)", int8(l))
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case LevelTrace:
		return zapTraceLevel
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelInfo:
		return zapcore.InfoLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	}
	// CRIT is logged but never panics or exits.
	return zapcore.DPanicLevel
}

// ParseLevel converts a level name to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "crit", "critical":
		return LevelCrit, nil
	case "none", "off":
		return LevelNone, nil
	}
	return LevelInfo, fmt.Errorf("invalid log level %q, must be one of trace, debug, info, warn, error, crit, none", s)
}

type sink struct {
	min Level
	w   zapcore.WriteSyncer
}

var (
	logMu     sync.RWMutex
	logSinks  []sink
	logMin    = LevelNone
	logger    *zap.Logger
	stderrMin = LevelInfo
)

func init() {
	ResetSinks()
}

func encodeLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	switch l {
	case zapTraceLevel:
		enc.AppendString("TRACE")
	case zapcore.DPanicLevel:
		enc.AppendString("CRIT")
	default:
		zapcore.CapitalLevelEncoder(l, enc)
	}
}

// rebuild must be called with logMu held.
func rebuild() {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeLevel = encodeLevel
	cfg.NameKey = ""
	cores := make([]zapcore.Core, 0, len(logSinks))
	logMin = LevelNone
	for _, s := range logSinks {
		if s.min >= LevelNone {
			continue
		}
		min := s.min.zapLevel()
		enabler := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= min })
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), s.w, enabler))
		if s.min < logMin {
			logMin = s.min
		}
	}
	logger = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(2))
}

// ResetSinks drops every registered sink and restores the default stderr
// sink at the current stderr level.
func ResetSinks() {
	logMu.Lock()
	defer logMu.Unlock()
	logSinks = []sink{{min: stderrMin, w: zapcore.Lock(os.Stderr)}}
	rebuild()
}

// SetLevel sets the minimum level of the default stderr sink.
func SetLevel(l Level) {
	logMu.Lock()
	defer logMu.Unlock()
	stderrMin = l
	if len(logSinks) > 0 {
		logSinks[0].min = l
	}
	rebuild()
}

// AddSink registers an extra destination receiving every message at or above
// min.
func AddSink(min Level, w io.Writer) {
	logMu.Lock()
	defer logMu.Unlock()
	logSinks = append(logSinks, sink{min: min, w: zapcore.AddSync(&lockedWriter{w: w})})
	rebuild()
}

// Log writes msg to every sink whose minimum level admits level.
func Log(level Level, msg string) {
	logMu.RLock()
	l, min := logger, logMin
	logMu.RUnlock()
	if level < min || level >= LevelNone {
		return
	}
	// one frame less than the formatting helpers
	if ce := l.WithOptions(zap.AddCallerSkip(-1)).Check(level.zapLevel(), msg); ce != nil {
		ce.Write()
	}
}

func logEnabled(level Level) bool {
	logMu.RLock()
	defer logMu.RUnlock()
	return level >= logMin && level < LevelNone
}

func logf(level Level, format string, args ...interface{}) {
	logMu.RLock()
	l, min := logger, logMin
	logMu.RUnlock()
	if level < min || level >= LevelNone {
		return
	}
	if ce := l.Check(level.zapLevel(), fmt.Sprintf(format, args...)); ce != nil {
		ce.Write()
	}
}

func logTracef(format string, args ...interface{}) { logf(LevelTrace, format, args...) }
func logDebugf(format string, args ...interface{}) { logf(LevelDebug, format, args...) }
func logInfof(format string, args ...interface{})  { logf(LevelInfo, format, args...) }
func logWarnf(format string, args ...interface{})  { logf(LevelWarn, format, args...) }
func logErrorf(format string, args ...interface{}) { logf(LevelError, format, args...) }

// lockedWriter serializes writes from sinks that are not safe for
// concurrent use such as a bytes.Buffer.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}
