package data

import (
	"sort"

	"FitTrack/internal/conf"
	"FitTrack/internal/model"
	"FitTrack/pkg/breaker"
	pkglog "FitTrack/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
)

// NewBreakerRegistry creates one breaker per configured dependency.
func NewBreakerRegistry(deps *conf.Dependencies, c *conf.Breaker, logger log.Logger) *breaker.Registry {
	names := make([]string, 0, len(deps.Services))
	for name := range deps.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	helper := pkglog.NewLogHelper(logger)
	helper.Startup("circuit breakers created",
		"dependencies", names,
		"failure_threshold", c.FailureThreshold,
		"reset_timeout", c.ResetTimeout.String())

	return breaker.NewRegistry(names, breaker.Config{
		FailureThreshold: c.FailureThreshold,
		ResetTimeout:     c.ResetTimeout,
	}, newBreakerListener(helper))
}

// newBreakerListener logs circuit opened/closed events.
func newBreakerListener(helper *pkglog.LogHelper) breaker.Listener {
	return func(tr breaker.Transition) {
		switch tr.To {
		case breaker.StateOpen:
			ev := model.CircuitOpenedEvent{
				Dependency:   tr.Name,
				FailureCount: tr.FailureCount,
				OpenedAt:     tr.OpenedAt,
				Reopened:     tr.From == breaker.StateHalfOpen,
			}
			helper.Breaker("circuit opened",
				"dependency", ev.Dependency,
				"failure_count", ev.FailureCount,
				"opened_at", ev.OpenedAt.Format("2006-01-02T15:04:05.000Z07:00"),
				"reopened", ev.Reopened)
		case breaker.StateClosed:
			ev := model.CircuitClosedEvent{
				Dependency:  tr.Name,
				RecoveredAt: tr.At,
			}
			if !tr.OpenedAt.IsZero() {
				ev.OpenedFor = tr.At.Sub(tr.OpenedAt)
			}
			helper.Breaker("circuit closed",
				"dependency", ev.Dependency,
				"opened_for", ev.OpenedFor.String())
		case breaker.StateHalfOpen:
			helper.Breaker("circuit half-open, allowing one trial call", "dependency", tr.Name)
		}
	}
}
