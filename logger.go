package quartz

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultLogger is used by the store and the scheduler if none is specified.
var DefaultLogger = PrintfLogger(log.New(os.Stdout, "quartz: ", log.LstdFlags))

// DiscardLogger can be used by callers to discard all log messages.
var DiscardLogger = PrintfLogger(log.New(io.Discard, "", 0))

// Logger is the interface used in this package for logging, so that any backend
// can be plugged in. It is a subset of the github.com/go-logr/logr interface.
type Logger interface {
	// Info logs routine messages about scheduling decisions.
	Info(msg string, keysAndValues ...any)
	// Error logs an error condition.
	Error(err error, msg string, keysAndValues ...any)
}

// PrintfLogger wraps a Printf-based logger (such as the standard library "log")
// into a Logger which logs errors only.
func PrintfLogger(l interface{ Printf(string, ...any) }) Logger {
	return printfLogger{l, false}
}

// VerbosePrintfLogger wraps a Printf-based logger into a Logger which logs
// everything.
func VerbosePrintfLogger(l interface{ Printf(string, ...any) }) Logger {
	return printfLogger{l, true}
}

type printfLogger struct {
	logger  interface{ Printf(string, ...any) }
	logInfo bool
}

func (pl printfLogger) Info(msg string, keysAndValues ...any) {
	if !pl.logInfo {
		return
	}
	pl.logger.Printf("%s", logfmt(msg, formatValues(keysAndValues)))
}

func (pl printfLogger) Error(err error, msg string, keysAndValues ...any) {
	pl.logger.Printf("%s", logfmt(msg, append([]any{"error", err}, formatValues(keysAndValues)...)))
}

// logfmt renders msg followed by key=value pairs.
func logfmt(msg string, keysAndValues []any) string {
	var sb strings.Builder
	sb.WriteString(msg)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		sb.WriteString(", ")
		sb.WriteString(fmt.Sprint(keysAndValues[i]))
		sb.WriteByte('=')
		sb.WriteString(fmt.Sprint(keysAndValues[i+1]))
	}
	return sb.String()
}

// formatValues formats time.Time values as RFC3339 and zero times as "none".
func formatValues(keysAndValues []any) []any {
	out := make([]any, 0, len(keysAndValues))
	for _, arg := range keysAndValues {
		if t, ok := arg.(time.Time); ok {
			if t.IsZero() {
				arg = "none"
			} else {
				arg = t.Format(time.RFC3339)
			}
		}
		out = append(out, arg)
	}
	return out
}

// SlogLogger adapts log/slog to the Logger interface.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger creates a Logger that writes to l, or to slog.Default() if l
// is nil.
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{logger: l}
}

func (s *SlogLogger) Info(msg string, keysAndValues ...any) {
	s.logger.Info(msg, keysAndValues...)
}

func (s *SlogLogger) Error(err error, msg string, keysAndValues ...any) {
	s.logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}

// ZapLogger adapts a zap SugaredLogger to the Logger interface.
type ZapLogger struct {
	logger *zap.SugaredLogger
}

// NewZapLogger creates a Logger that writes to l. A nil l selects a no-op
// logger.
func NewZapLogger(l *zap.Logger) *ZapLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return &ZapLogger{logger: l.Sugar()}
}

func (z *ZapLogger) Info(msg string, keysAndValues ...any) {
	z.logger.Infow(msg, keysAndValues...)
}

func (z *ZapLogger) Error(err error, msg string, keysAndValues ...any) {
	z.logger.Errorw(msg, append([]any{zap.Error(err)}, keysAndValues...)...)
}

// Sync flushes buffered log entries.
func (z *ZapLogger) Sync() error {
	return z.logger.Sync()
}
