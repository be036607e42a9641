package main

import (
	"FitTrack/internal/conf"
	"FitTrack/pkg/breaker"
	pkglog "FitTrack/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
)

// newBreakerReport schedules a periodic log of every breaker that is not
// closed. An empty spec leaves the scheduler without jobs.
// The spec has a seconds field: "0 */5 * * * *" runs every five minutes.
func newBreakerReport(registry *breaker.Registry, c *conf.Breaker, logger log.Logger) (*cron.Cron, error) {
	helper := pkglog.NewLogHelper(logger)

	sched := cron.New(cron.WithSeconds())
	if c == nil || c.ReportSpec == "" {
		return sched, nil
	}

	if _, err := sched.AddFunc(c.ReportSpec, func() { reportBreakers(registry, helper) }); err != nil {
		return nil, err
	}

	helper.Scheduler("breaker report scheduled", "spec", c.ReportSpec)
	return sched, nil
}

func reportBreakers(registry *breaker.Registry, helper *pkglog.LogHelper) {
	degraded := 0
	for _, s := range registry.Snapshots() {
		if s.State == breaker.StateClosed {
			continue
		}
		degraded++
		kvs := []interface{}{
			"dependency", s.Name,
			"state", string(s.State),
			"failure_count", s.FailureCount,
		}
		if s.OpenedAt != nil {
			kvs = append(kvs, "opened_at", s.OpenedAt.UTC().Format("2006-01-02T15:04:05Z"))
		}
		helper.Breaker("dependency breaker not closed", kvs...)
	}
	helper.Scheduler("breaker report finished", "degraded", degraded)
}
