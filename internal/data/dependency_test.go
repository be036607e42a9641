package data

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"FitTrack/internal/conf"
	"FitTrack/internal/model"
	"FitTrack/pkg/breaker"
	pkglog "FitTrack/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubService struct {
	server *httptest.Server
	hits   atomic.Int32
	lastID atomic.Value
}

// newStubService serves /api/users/{id} with handler and counts requests.
func newStubService(t *testing.T, handler http.HandlerFunc) *stubService {
	t.Helper()
	s := &stubService{}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		s.lastID.Store(r.Header.Get("X-Request-ID"))
		handler(w, r)
	}))
	t.Cleanup(s.server.Close)
	return s
}

func newTestDependencyClient(t *testing.T, baseURL string, timeout time.Duration, threshold uint32) (*DependencyClient, *breaker.Registry) {
	t.Helper()
	deps := &conf.Dependencies{
		Services: map[string]*conf.Dependency{
			"users": {Name: "users", BaseURL: baseURL, Path: "/api/users/{id}", Timeout: timeout},
		},
	}
	registry := NewBreakerRegistry(deps, &conf.Breaker{FailureThreshold: threshold, ResetTimeout: time.Hour}, log.DefaultLogger)
	client, err := NewDependencyClient(deps, registry, log.DefaultLogger)
	require.NoError(t, err)
	return client, registry
}

func usersBreaker(t *testing.T, r *breaker.Registry) *breaker.Breaker {
	b, err := r.Get("users")
	require.NoError(t, err)
	return b
}

func TestDependencyClient_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantKind   model.OutcomeKind
		wantReason string
		wantFail   uint32
	}{
		{"ok", http.StatusOK, `{"user_id":1}`, model.OutcomeSuccess, "", 0},
		{"not found", http.StatusNotFound, `{"detail":"no such user"}`, model.OutcomeNotFound, "", 0},
		{"server error", http.StatusInternalServerError, "boom", model.OutcomeUnavailable, model.ReasonDownstreamError, 1},
		{"bad gateway", http.StatusBadGateway, "upstream", model.OutcomeUnavailable, model.ReasonDownstreamError, 1},
		{"teapot", http.StatusTeapot, "short and stout", model.OutcomeUnavailable, model.ReasonUnexpectedStatus, 1},
		{"created is not ok", http.StatusCreated, "{}", model.OutcomeUnavailable, model.ReasonUnexpectedStatus, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := newStubService(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/users/1", r.URL.Path)
				assert.Equal(t, http.MethodGet, r.Method)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			client, registry := newTestDependencyClient(t, stub.server.URL, time.Second, 3)

			out := client.CheckExists(context.Background(), "users", 1)

			assert.Equal(t, tt.wantKind, out.Kind)
			assert.Equal(t, tt.wantReason, out.Reason)
			assert.Equal(t, tt.status, out.StatusCode)
			assert.Equal(t, "users", out.Dependency)
			if tt.wantReason != "" {
				assert.Equal(t, tt.body, out.Detail)
			}
			assert.Equal(t, tt.wantFail, usersBreaker(t, registry).Snapshot().FailureCount)
		})
	}
}

func TestDependencyClient_FetchDecodesBody(t *testing.T) {
	stub := newStubService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"user_id":7,"name":"Ada"}`))
	})
	client, _ := newTestDependencyClient(t, stub.server.URL, time.Second, 3)

	out := client.Fetch(context.Background(), "users", 7)
	require.True(t, out.OK())

	body, ok := out.Body.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Ada", body["name"])
	assert.EqualValues(t, 7, body["user_id"])
}

func TestDependencyClient_UndecodableBodyIsNotABreakerFailure(t *testing.T) {
	stub := newStubService(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	})
	client, registry := newTestDependencyClient(t, stub.server.URL, time.Second, 1)

	out := client.Fetch(context.Background(), "users", 1)
	assert.Equal(t, model.OutcomeError, out.Kind)
	assert.Contains(t, out.Detail, "decode body")
	assert.Equal(t, breaker.StateClosed, usersBreaker(t, registry).State())

	// CheckExists ignores the body, so the same answer is a success.
	assert.True(t, client.CheckExists(context.Background(), "users", 1).OK())
}

func TestDependencyClient_DetailIsTruncated(t *testing.T) {
	stub := newStubService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(strings.Repeat("x", 1000)))
	})
	client, _ := newTestDependencyClient(t, stub.server.URL, time.Second, 3)

	out := client.CheckExists(context.Background(), "users", 1)
	assert.Equal(t, model.ReasonDownstreamError, out.Reason)
	assert.Len(t, out.Detail, maxDetailBytes+len("..."))
}

func TestDependencyClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	stub := newStubService(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)
	client, registry := newTestDependencyClient(t, stub.server.URL, 50*time.Millisecond, 3)

	start := time.Now()
	out := client.CheckExists(context.Background(), "users", 1)

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, model.OutcomeUnavailable, out.Kind)
	assert.Equal(t, model.ReasonTransport, out.Reason)
	assert.Equal(t, uint32(1), usersBreaker(t, registry).Snapshot().FailureCount)
}

func TestDependencyClient_ConnectionRefused(t *testing.T) {
	stub := newStubService(t, func(http.ResponseWriter, *http.Request) {})
	url := stub.server.URL
	stub.server.Close()

	client, _ := newTestDependencyClient(t, url, time.Second, 3)

	out := client.CheckExists(context.Background(), "users", 1)
	assert.Equal(t, model.OutcomeUnavailable, out.Kind)
	assert.Equal(t, model.ReasonTransport, out.Reason)
}

func TestDependencyClient_CircuitOpensAndFailsFast(t *testing.T) {
	stub := newStubService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	client, registry := newTestDependencyClient(t, stub.server.URL, time.Second, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		out := client.CheckExists(ctx, "users", 1)
		require.Equal(t, model.ReasonDownstreamError, out.Reason, "call %d", i+1)
	}
	require.Equal(t, breaker.StateOpen, usersBreaker(t, registry).State())
	require.Equal(t, int32(3), stub.hits.Load())

	out := client.CheckExists(ctx, "users", 1)
	assert.Equal(t, model.OutcomeUnavailable, out.Kind)
	assert.Equal(t, model.ReasonCircuitOpen, out.Reason)
	assert.Equal(t, int32(3), stub.hits.Load(), "an open circuit must not reach the network")
}

func TestDependencyClient_CanceledCallerIsNotCounted(t *testing.T) {
	stub := newStubService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	client, registry := newTestDependencyClient(t, stub.server.URL, time.Second, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := client.CheckExists(ctx, "users", 1)
	assert.Equal(t, model.OutcomeUnavailable, out.Kind)
	assert.Equal(t, model.ReasonTransport, out.Reason)
	assert.Equal(t, int32(0), stub.hits.Load())
	assert.Equal(t, breaker.StateClosed, usersBreaker(t, registry).State())
}

func TestDependencyClient_AbandonedCallKeepsFailureCount(t *testing.T) {
	var slow atomic.Bool
	stub := newStubService(t, func(w http.ResponseWriter, r *http.Request) {
		if slow.Load() {
			select {
			case <-time.After(200 * time.Millisecond):
			case <-r.Context().Done():
				return
			}
		}
		w.WriteHeader(http.StatusInternalServerError)
	})
	client, registry := newTestDependencyClient(t, stub.server.URL, time.Second, 3)

	for i := 0; i < 2; i++ {
		client.CheckExists(context.Background(), "users", 1)
	}
	require.Equal(t, uint32(2), usersBreaker(t, registry).Snapshot().FailureCount)

	slow.Store(true)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	out := client.CheckExists(ctx, "users", 1)

	assert.Equal(t, model.ReasonTransport, out.Reason)
	snap := usersBreaker(t, registry).Snapshot()
	assert.Equal(t, breaker.StateClosed, snap.State)
	assert.Equal(t, uint32(2), snap.FailureCount)
}

func TestDependencyClient_CanceledHalfOpenTrialReopens(t *testing.T) {
	var slow atomic.Bool
	stub := newStubService(t, func(w http.ResponseWriter, r *http.Request) {
		if slow.Load() {
			select {
			case <-time.After(200 * time.Millisecond):
			case <-r.Context().Done():
				return
			}
		}
		w.WriteHeader(http.StatusInternalServerError)
	})

	deps := &conf.Dependencies{
		Services: map[string]*conf.Dependency{
			"users": {Name: "users", BaseURL: stub.server.URL, Path: "/api/users/{id}", Timeout: time.Second},
		},
	}
	registry := NewBreakerRegistry(deps, &conf.Breaker{FailureThreshold: 3, ResetTimeout: 50 * time.Millisecond}, log.DefaultLogger)
	client, err := NewDependencyClient(deps, registry, log.DefaultLogger)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		client.CheckExists(context.Background(), "users", 1)
	}
	require.Equal(t, breaker.StateOpen, usersBreaker(t, registry).State())

	time.Sleep(80 * time.Millisecond)
	slow.Store(true)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	out := client.CheckExists(ctx, "users", 1)
	assert.Equal(t, model.ReasonTransport, out.Reason)

	snap := usersBreaker(t, registry).Snapshot()
	assert.Equal(t, breaker.StateOpen, snap.State, "a trial the caller abandoned must not close the circuit")
	assert.Equal(t, uint32(3), snap.FailureCount)

	hits := stub.hits.Load()
	out = client.CheckExists(context.Background(), "users", 1)
	assert.Equal(t, model.ReasonCircuitOpen, out.Reason)
	assert.Equal(t, hits, stub.hits.Load())
}

func TestDependencyClient_ForwardsRequestID(t *testing.T) {
	stub := newStubService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	client, _ := newTestDependencyClient(t, stub.server.URL, time.Second, 3)

	ctx := pkglog.WithRequestContext(context.Background(), "req123", http.MethodPost, "/workouts")
	require.True(t, client.CheckExists(ctx, "users", 1).OK())
	assert.Equal(t, "req123", stub.lastID.Load())
}

func TestDependencyClient_UnknownDependency(t *testing.T) {
	client, _ := newTestDependencyClient(t, "http://127.0.0.1:1", time.Second, 3)

	out := client.CheckExists(context.Background(), "badges", 1)
	assert.Equal(t, model.OutcomeError, out.Kind)
	assert.Equal(t, []string{"users"}, client.Names())
}

func TestNewDependencyClient_InvalidProxy(t *testing.T) {
	deps := &conf.Dependencies{
		ProxyURL: "ftp://proxy:21",
		Services: map[string]*conf.Dependency{
			"users": {Name: "users", BaseURL: "http://users", Path: "/api/users/{id}", Timeout: time.Second},
		},
	}
	registry := NewBreakerRegistry(deps, &conf.Breaker{FailureThreshold: 1}, log.DefaultLogger)

	_, err := NewDependencyClient(deps, registry, log.DefaultLogger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported proxy scheme")
}

func TestBreakerListener_LogsTransitions(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	helper := pkglog.NewLogHelper(pkglog.NewKratosAdapter(zap.New(core)))

	b := breaker.New("goals", breaker.Config{FailureThreshold: 2, ResetTimeout: 0}, newBreakerListener(helper))
	fail := func() error { return fmt.Errorf("boom") }

	_ = b.Execute(fail)
	_ = b.Execute(fail)
	require.NoError(t, b.Execute(func() error { return nil }))

	opened := logs.FilterMessage("circuit opened").All()
	require.Len(t, opened, 1)
	assert.Equal(t, "goals", opened[0].ContextMap()["dependency"])
	assert.EqualValues(t, 2, opened[0].ContextMap()["failure_count"])
	assert.Equal(t, "breaker", opened[0].ContextMap()["type"])

	assert.Equal(t, 1, logs.FilterMessage("circuit half-open, allowing one trial call").Len())
	assert.Equal(t, 1, logs.FilterMessage("circuit closed").Len())
}
