// Package log wires zap into the Kratos log.Logger interface and adds
// request-scoped fields, categorized helpers and field sanitization.
package log

import (
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
	"go.uber.org/zap"
)

// KratosAdapter adapts a zap logger to Kratos log.Logger.
type KratosAdapter struct {
	zapLogger *zap.Logger
}

// NewKratosAdapter wraps zapLogger. The Kratos caller depth is skipped so
// caller fields point at the log.Helper call site.
func NewKratosAdapter(zapLogger *zap.Logger) log.Logger {
	return &KratosAdapter{
		zapLogger: zapLogger.WithOptions(zap.AddCallerSkip(2)),
	}
}

// Log implements log.Logger. The "msg" key becomes the zap message; string
// values pass through SanitizeField.
func (a *KratosAdapter) Log(level log.Level, keyvals ...interface{}) error {
	if len(keyvals) == 0 {
		return nil
	}
	if len(keyvals)%2 != 0 {
		keyvals = append(keyvals, "KEYVALS UNPAIRED")
	}

	var msg string
	fields := make([]zap.Field, 0, len(keyvals)/2)
	for i := 0; i < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])
		switch value := keyvals[i+1].(type) {
		case string:
			if key == log.DefaultMessageKey {
				msg = value
				continue
			}
			fields = append(fields, zap.String(key, SanitizeField(key, value)))
		case error:
			fields = append(fields, zap.String(key, SanitizeField(key, value.Error())))
		default:
			fields = append(fields, zap.Any(key, value))
		}
	}

	switch level {
	case log.LevelDebug:
		a.zapLogger.Debug(msg, fields...)
	case log.LevelWarn:
		a.zapLogger.Warn(msg, fields...)
	case log.LevelError:
		a.zapLogger.Error(msg, fields...)
	case log.LevelFatal:
		a.zapLogger.Fatal(msg, fields...)
	default:
		a.zapLogger.Info(msg, fields...)
	}

	return nil
}

// Sync flushes buffered entries.
func (a *KratosAdapter) Sync() error {
	return a.zapLogger.Sync()
}
