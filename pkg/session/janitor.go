package session

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/stockroom/pkg/observability"
)

// DefaultJanitorSchedule runs the expired-session sweep every 15 minutes
const DefaultJanitorSchedule = "*/15 * * * *"

// Janitor periodically removes expired sessions from stores that do not
// expire records on their own
type Janitor struct {
	store  Store
	cron   *cron.Cron
	logger *observability.Logger
	purged prometheus.Counter
}

// NewJanitor schedules Sweep on the given cron schedule. purged may be nil.
func NewJanitor(store Store, schedule string, logger *observability.Logger, purged prometheus.Counter) (*Janitor, error) {
	if schedule == "" {
		schedule = DefaultJanitorSchedule
	}
	j := &Janitor{store: store, cron: cron.New(), logger: logger, purged: purged}
	if _, err := j.cron.AddFunc(schedule, func() {
		defer observability.RecoverPanic(logger, "session janitor")
		j.Sweep(context.Background())
	}); err != nil {
		return nil, fmt.Errorf("invalid janitor schedule %q: %w", schedule, err)
	}
	return j, nil
}

// Start begins running the schedule in the background
func (j *Janitor) Start() {
	j.cron.Start()
	j.logger.Info("Session janitor started")
}

// Stop waits for a running sweep to finish, or for ctx to end
func (j *Janitor) Stop(ctx context.Context) error {
	done := j.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep deletes every session expired at the time of the call
func (j *Janitor) Sweep(ctx context.Context) int64 {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	n, err := j.store.DeleteExpired(ctx, time.Now())
	if err != nil {
		j.logger.WithError(err).Error("Failed to delete expired sessions")
		return 0
	}
	if n > 0 {
		j.logger.WithField("count", n).Info("Deleted expired sessions")
	}
	if j.purged != nil {
		j.purged.Add(float64(n))
	}
	return n
}
