// Package middleware provides the request logging middleware.
package middleware

import (
	"context"
	"strings"
	"time"

	pkglog "FitTrack/pkg/log"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// RequestIDHeader carries the request id in and out of the service.
const RequestIDHeader = "X-Request-ID"

// Logging returns a middleware that attaches a request context and logs
// every finished request.
//
//	🟢 POST /workouts - 201 (12ms) | RequestID: mgrn0zfqda
func Logging(logger *pkglog.LogHelper) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			startTime := time.Now()

			var (
				method    string
				path      string
				ip        string
				userAgent string
				requestID string
			)

			if tr, ok := transport.FromServerContext(ctx); ok {
				method = "GRPC"
				path = tr.Operation()
				requestID = tr.RequestHeader().Get(RequestIDHeader)

				if ht, ok := tr.(http.Transporter); ok {
					httpReq := ht.Request()
					method = httpReq.Method
					path = httpReq.URL.Path
					if httpReq.URL.RawQuery != "" {
						path = path + "?" + httpReq.URL.RawQuery
					}
					ip = extractClientIP(httpReq)
					userAgent = httpReq.Header.Get("User-Agent")
				}
			}
			if requestID == "" {
				requestID = pkglog.GenerateRequestID()
			}
			if tr, ok := transport.FromServerContext(ctx); ok {
				tr.ReplyHeader().Set(RequestIDHeader, requestID)
			}

			ctx = pkglog.WithRequestContext(ctx, requestID, method, path)

			reply, err := handler(ctx, req)

			status := 200
			if err != nil {
				status = int(errors.FromError(err).Code)
			}

			logger.RequestWithContext(ctx, method, path, status, time.Since(startTime),
				"ip", ip,
				"user_agent", userAgent,
			)

			return reply, err
		}
	}
}

// extractClientIP prefers X-Real-IP, then the first X-Forwarded-For hop.
func extractClientIP(req *http.Request) string {
	if ip := req.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}

	if forwarded := req.Header.Get("X-Forwarded-For"); forwarded != "" {
		ips := strings.Split(forwarded, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	return req.RemoteAddr
}
