// Package logger wraps logrus with the conventions used across the service:
// a per-component "module" field, context-carried trace and user ids, and
// request logging helpers.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

type contextKey string

const (
	traceIDKey contextKey = "trace_id"
	userIDKey  contextKey = "user_id"
	roleKey    contextKey = "role"
)

// LoggingConfig controls output level and format.
type LoggingConfig struct {
	Level  string
	Format string
	Output io.Writer
}

// Logger is a logrus logger bound to a single module name.
type Logger struct {
	*logrus.Logger
	module string
}

// New builds a logger from the given configuration.
func New(module string, cfg LoggingConfig) *Logger {
	base := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	if strings.EqualFold(cfg.Format, "text") {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339Nano})
	} else {
		base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	}

	if cfg.Output != nil {
		base.SetOutput(cfg.Output)
	} else {
		base.SetOutput(os.Stdout)
	}

	return &Logger{Logger: base, module: module}
}

// NewDefault returns an info-level JSON logger for the module.
func NewDefault(module string) *Logger {
	return New(module, LoggingConfig{Level: "info", Format: "json"})
}

// Module returns the module name this logger was created for.
func (l *Logger) Module() string { return l.module }

// Named derives a logger sharing the same sink but reporting another module.
func (l *Logger) Named(module string) *Logger {
	return &Logger{Logger: l.Logger, module: module}
}

// Entry returns a log entry pre-populated with the module field.
func (l *Logger) Entry() *logrus.Entry {
	return l.Logger.WithField("module", l.module)
}

// WithField overrides logrus to always carry the module field.
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.Entry().WithField(key, value)
}

// WithFields overrides logrus to always carry the module field.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.Entry().WithFields(fields)
}

// WithError overrides logrus to always carry the module field.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Entry().WithError(err)
}

// WithContext returns an entry carrying trace and user ids found in ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Entry()
	if ctx == nil {
		return entry
	}
	if traceID := TraceID(ctx); traceID != "" {
		entry = entry.WithField("trace_id", traceID)
	}
	if userID := UserID(ctx); userID != "" {
		entry = entry.WithField("user_id", userID)
	}
	if role := Role(ctx); role != "" {
		entry = entry.WithField("role", role)
	}
	return entry
}

// LogRequest writes one line per served HTTP request.
func (l *Logger) LogRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"status":      status,
		"duration_ms": duration.Milliseconds(),
	})
	switch {
	case status >= 500:
		entry.Error("request failed")
	case status >= 400:
		entry.Warn("request rejected")
	default:
		entry.Info("request served")
	}
}

// WithTraceID stores the trace id in ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID returns the trace id stored in ctx, if any.
func TraceID(ctx context.Context) string {
	v, _ := ctx.Value(traceIDKey).(string)
	return v
}

// WithUserID stores the authenticated user id in ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID returns the user id stored in ctx, if any.
func UserID(ctx context.Context) string {
	v, _ := ctx.Value(userIDKey).(string)
	return v
}

// WithRole stores the caller's role claim in ctx.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleKey, role)
}

// Role returns the role stored in ctx, if any.
func Role(ctx context.Context) string {
	v, _ := ctx.Value(roleKey).(string)
	return v
}
