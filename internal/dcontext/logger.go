// Package dcontext threads a structured logger and a handful of
// well-known request fields through a context.Context, the way every
// component below the HTTP layer expects to find them.
package dcontext

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	defaultLogger   = logrus.NewEntry(logrus.StandardLogger())
	defaultLoggerMu sync.RWMutex
)

// Logger is the leveled-logging interface every component logs through.
type Logger interface {
	Debug(args ...any)
	Debugf(format string, args ...any)
	Info(args ...any)
	Infof(format string, args ...any)
	Warn(args ...any)
	Warnf(format string, args ...any)
	Error(args ...any)
	Errorf(format string, args ...any)
	WithError(err error) *logrus.Entry
}

type loggerKey struct{}

// WithLogger returns a context carrying logger as the active logger.
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// WithValues returns a context whose logger has fields merged in for
// each key/value pair, and that also carries the values themselves so
// GetLogger(ctx, keys...) can resolve them later.
func WithValues(ctx context.Context, fields map[string]any) context.Context {
	for k, v := range fields {
		ctx = context.WithValue(ctx, fieldKey(k), v)
	}
	return WithLogger(ctx, GetLogger(ctx).WithFields(toLogrusFields(fields)))
}

type fieldKey string

func toLogrusFields(m map[string]any) logrus.Fields {
	f := make(logrus.Fields, len(m))
	for k, v := range m {
		f[k] = v
	}
	return f
}

// GetLogger returns the logger active on ctx, resolving any additional
// keys as extra fields. If ctx carries no logger, the package default is
// used.
func GetLogger(ctx context.Context, keys ...any) *logrus.Entry {
	var logger *logrus.Entry
	if v := ctx.Value(loggerKey{}); v != nil {
		if entry, ok := v.(*logrus.Entry); ok {
			logger = entry
		}
	}

	if logger == nil {
		defaultLoggerMu.RLock()
		logger = defaultLogger
		defaultLoggerMu.RUnlock()
	}

	if len(keys) == 0 {
		return logger
	}

	fields := logrus.Fields{}
	for _, key := range keys {
		v := ctx.Value(key)
		if s, ok := key.(string); ok && v == nil {
			v = ctx.Value(fieldKey(s))
		}
		if v != nil {
			fields[fmt.Sprint(key)] = v
		}
	}
	return logger.WithFields(fields)
}

// SetDefaultLogger replaces the package-wide fallback logger.
func SetDefaultLogger(logger *logrus.Entry) {
	defaultLoggerMu.Lock()
	defaultLogger = logger
	defaultLoggerMu.Unlock()
}

// Background returns context.Background() carrying the default logger.
func Background() context.Context {
	return WithLogger(context.Background(), GetLogger(context.Background()))
}
