package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"
)

// LogLevel is a thin enum for user friendly level configuration decoupled from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger defines the minimal logging interface for ConvoMesh. Args are
// alternating key/value pairs in the slog convention. This allows users to
// provide their own logger implementation or use the built-in adapters.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// NewDefaultSlogLogger creates a Logger using slog.Default().
func NewDefaultSlogLogger() Logger {
	return NewSlogAdapter(slog.Default())
}

// ConvoLogger wraps slog.Logger adding contextual cloning helpers and domain
// convenience methods. It should be cheap to copy via With* methods.
type ConvoLogger struct {
	logger       *slog.Logger
	level        LogLevel
	context      map[string]any
	component    string
	conversation string
	executionID  string
}

// LoggerConfig configures construction of a ConvoLogger.
type LoggerConfig struct {
	Level        LogLevel
	Format       string // json or text
	Output       io.Writer
	AddSource    bool
	Component    string
	Conversation string
	ExecutionID  string
	CustomAttrs  map[string]any
}

// DefaultLoggerConfig returns a baseline JSON info level configuration.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stdout, AddSource: true, CustomAttrs: map[string]any{}}
}

// NewLogger builds a ConvoLogger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *ConvoLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}
	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level), AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(cfg.Output, opts)
	} else {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	}
	return &ConvoLogger{logger: slog.New(handler), level: cfg.Level, context: map[string]any{}, component: cfg.Component, conversation: cfg.Conversation, executionID: cfg.ExecutionID}
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *ConvoLogger) clone() *ConvoLogger {
	nl := *l
	nl.context = map[string]any{}
	for k, v := range l.context {
		nl.context[k] = v
	}
	return &nl
}

// WithContext adds a key/value attribute that will be attached to every log entry.
func (l *ConvoLogger) WithContext(key string, value any) *ConvoLogger {
	nl := l.clone()
	nl.context[key] = value
	return nl
}

// WithComponent sets the logical component (queue, orchestrator, agent, etc.).
func (l *ConvoLogger) WithComponent(c string) *ConvoLogger {
	nl := l.clone()
	nl.component = c
	return nl
}

// WithExecution attaches conversation key and executionID identifiers so all
// entries for one cycle correlate.
func (l *ConvoLogger) WithExecution(conversation, executionID string) *ConvoLogger {
	nl := l.clone()
	nl.conversation = conversation
	nl.executionID = executionID
	return nl
}

func (l *ConvoLogger) buildAttrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, len(l.context)+4)
	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	if l.conversation != "" {
		attrs = append(attrs, slog.String("conversation", l.conversation))
	}
	if l.executionID != "" {
		attrs = append(attrs, slog.String("execution_id", l.executionID))
	}
	for k, v := range l.context {
		attrs = append(attrs, slog.Any(k, v))
	}
	return attrs
}

func (l *ConvoLogger) log(level slog.Level, allowed bool, msg string, args ...any) {
	if !allowed {
		return
	}
	attrs := l.buildAttrs()
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		attrs = append(attrs, slog.Any(key, args[i+1]))
	}
	l.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// Debug logs at debug level.
func (l *ConvoLogger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, l.level <= LogLevelDebug, msg, args...)
}

// Info logs at info level.
func (l *ConvoLogger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, l.level <= LogLevelInfo, msg, args...)
}

// Warn logs at warn level.
func (l *ConvoLogger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, l.level <= LogLevelWarn, msg, args...)
}

// Error logs at error level.
func (l *ConvoLogger) Error(msg string, args ...any) {
	l.log(slog.LevelError, l.level <= LogLevelError, msg, args...)
}

// ErrorWithStack logs an error plus a runtime stack snapshot.
func (l *ConvoLogger) ErrorWithStack(err error, msg string, args ...any) {
	if l.level > LogLevelError {
		return
	}
	stack := make([]byte, 4096)
	n := runtime.Stack(stack, false)
	args = append(args, "error", err.Error(), "stack_trace", string(stack[:n]))
	l.log(slog.LevelError, true, msg, args...)
}

// LogModelCall records model call latency and success for one generation.
func (l *ConvoLogger) LogModelCall(model string, dur time.Duration, success bool, err error) {
	level := slog.LevelInfo
	msg := "Model call completed"
	if !success {
		level = slog.LevelError
		msg = "Model call failed"
	}
	args := []any{"model", model, "duration", dur, "success", success}
	if err != nil {
		args = append(args, "error", err.Error())
	}
	l.log(level, l.level <= LogLevelInfo || !success, msg, args...)
}

// LogAgentRun records aggregate metrics for one bounded-iteration agent run.
func (l *ConvoLogger) LogAgentRun(agent string, iterations int, score float64, dur time.Duration, success bool) {
	level := slog.LevelInfo
	msg := "Agent run completed"
	if !success {
		level = slog.LevelWarn
		msg = "Agent run failed"
	}
	l.log(level, l.level <= LogLevelInfo, msg, "agent", agent, "iterations", iterations, "score", score, "duration", dur, "success", success)
}

// LogCycle records aggregate metrics for one queue processing cycle. outcome
// is one of "completed", "aborted" or "failed".
func (l *ConvoLogger) LogCycle(events int, outcome string, dur time.Duration, err error) {
	level := slog.LevelInfo
	msg := "Cycle completed"
	if err != nil {
		level = slog.LevelError
		msg = "Cycle failed"
	}
	args := []any{"event_count", events, "outcome", outcome, "duration", dur}
	if err != nil {
		args = append(args, "error", err.Error())
	}
	l.log(level, l.level <= LogLevelInfo || err != nil, msg, args...)
}

// StartTimer returns a closure that logs the elapsed duration when invoked.
func (l *ConvoLogger) StartTimer(op string) func() {
	start := time.Now()
	return func() { l.Info("Operation completed", "operation", op, "duration", time.Since(start)) }
}

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}

// NewSlogLogger creates a new ConvoLogger with the specified configuration.
func NewSlogLogger(level LogLevel, format string, addSource bool) *ConvoLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	cfg.AddSource = addSource
	return NewLogger(cfg)
}
