package log

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

type contextKey struct{}

// RequestContext carries per-request tracing fields through context.Context.
type RequestContext struct {
	RequestID string
	Method    string
	Path      string
	StartTime time.Time

	mu       sync.Mutex
	metadata map[string]interface{}
}

const requestIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

var (
	idMu  sync.Mutex
	idRNG = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// GenerateRequestID returns a 12 character base36 id.
func GenerateRequestID() string {
	idMu.Lock()
	defer idMu.Unlock()

	b := make([]byte, 12)
	for i := range b {
		b[i] = requestIDAlphabet[idRNG.Intn(len(requestIDAlphabet))]
	}
	return string(b)
}

// WithRequestContext attaches a new RequestContext to ctx.
func WithRequestContext(ctx context.Context, requestID, method, path string) context.Context {
	return context.WithValue(ctx, contextKey{}, &RequestContext{
		RequestID: requestID,
		Method:    method,
		Path:      path,
		StartTime: time.Now(),
		metadata:  make(map[string]interface{}),
	})
}

// GetRequestContext returns the RequestContext in ctx, or an "unknown" placeholder.
func GetRequestContext(ctx context.Context) *RequestContext {
	if ctx != nil {
		if reqCtx, ok := ctx.Value(contextKey{}).(*RequestContext); ok {
			return reqCtx
		}
	}
	return &RequestContext{RequestID: "unknown", metadata: make(map[string]interface{})}
}

// GetRequestID is shorthand for GetRequestContext(ctx).RequestID.
func GetRequestID(ctx context.Context) string {
	return GetRequestContext(ctx).RequestID
}

// SetMetadata records an extra field for the request.
func SetMetadata(ctx context.Context, key string, value interface{}) {
	reqCtx := GetRequestContext(ctx)
	reqCtx.mu.Lock()
	defer reqCtx.mu.Unlock()
	reqCtx.metadata[key] = value
}

// GetMetadata reads a field recorded with SetMetadata.
func GetMetadata(ctx context.Context, key string) (interface{}, bool) {
	reqCtx := GetRequestContext(ctx)
	reqCtx.mu.Lock()
	defer reqCtx.mu.Unlock()
	value, ok := reqCtx.metadata[key]
	return value, ok
}

// GetElapsedTime returns milliseconds since the request started.
func GetElapsedTime(ctx context.Context) int64 {
	reqCtx := GetRequestContext(ctx)
	if reqCtx.StartTime.IsZero() {
		return 0
	}
	return time.Since(reqCtx.StartTime).Milliseconds()
}
