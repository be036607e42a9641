package log

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// SlowRequestThreshold is the request duration above which RequestWithContext warns.
const SlowRequestThreshold = time.Second

// LogHelper extends log.Helper with categorized methods. Each category sets a
// "type" field that the console encoder maps to an emoji.
type LogHelper struct {
	*log.Helper
}

// NewLogHelper wraps logger.
func NewLogHelper(logger log.Logger) *LogHelper {
	return &LogHelper{Helper: log.NewHelper(logger)}
}

func withType(category, msg string, kvs []interface{}) []interface{} {
	out := make([]interface{}, 0, len(kvs)+4)
	out = append(out, "msg", msg)
	out = append(out, kvs...)
	return append(out, "type", category)
}

// Startup logs process lifecycle events.
func (h *LogHelper) Startup(msg string, kvs ...interface{}) {
	h.Infow(withType("startup", msg, kvs)...)
}

// Dependency logs a downstream call result.
func (h *LogHelper) Dependency(msg string, kvs ...interface{}) {
	h.Infow(withType("dependency", msg, kvs)...)
}

// DependencyFailure logs a downstream call that did not produce a usable answer.
func (h *LogHelper) DependencyFailure(msg string, kvs ...interface{}) {
	h.Warnw(withType("dependency", msg, kvs)...)
}

// Breaker logs circuit breaker transitions.
func (h *LogHelper) Breaker(msg string, kvs ...interface{}) {
	h.Warnw(withType("breaker", msg, kvs)...)
}

// Event logs broker publication.
func (h *LogHelper) Event(msg string, kvs ...interface{}) {
	h.Infow(withType("event", msg, kvs)...)
}

// Database logs persistence operations at debug level.
func (h *LogHelper) Database(msg string, kvs ...interface{}) {
	h.Debugw(withType("database", msg, kvs)...)
}

// Cache logs Redis operations at debug level.
func (h *LogHelper) Cache(msg string, kvs ...interface{}) {
	h.Debugw(withType("cache", msg, kvs)...)
}

// Scheduler logs cron jobs.
func (h *LogHelper) Scheduler(msg string, kvs ...interface{}) {
	h.Infow(withType("scheduler", msg, kvs)...)
}

// Success logs a completed business operation.
func (h *LogHelper) Success(msg string, kvs ...interface{}) {
	h.Infow(withType("success", msg, kvs)...)
}

// RequestWithContext logs a finished HTTP request and warns when it was slow.
func (h *LogHelper) RequestWithContext(ctx context.Context, method, path string, status int, duration time.Duration, kvs ...interface{}) {
	reqCtx := GetRequestContext(ctx)
	durationMs := duration.Milliseconds()

	msg := fmt.Sprintf("%s %s - %d (%dms)", method, path, status, durationMs)
	all := withType("request", msg, kvs)
	all = append(all,
		"request_id", reqCtx.RequestID,
		"method", method,
		"path", path,
		"status", status,
		"duration_ms", durationMs,
	)
	h.Infow(all...)

	if duration > SlowRequestThreshold {
		h.Warnw(withType("slow_request", fmt.Sprintf("[%s] slow request %s %s", reqCtx.RequestID, method, path), []interface{}{
			"request_id", reqCtx.RequestID,
			"duration_ms", durationMs,
			"threshold_ms", SlowRequestThreshold.Milliseconds(),
		})...)
	}
}
