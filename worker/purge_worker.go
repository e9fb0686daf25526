package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"mailnexy/internal/clock"
	"mailnexy/internal/store"
)

// PurgeWorker enforces the 7-day PlanEntry retention window from
// spec.md §4.4 / §6 (plan.retention). It has no dedicated cadence in
// spec.md's Configuration table, so it runs once per day.
type PurgeWorker struct {
	Store     *store.Store
	Clock     clock.Clock
	Retention time.Duration
	Log       *logrus.Entry
}

func NewPurgeWorker(st *store.Store, clk clock.Clock, retention time.Duration, log *logrus.Logger) *PurgeWorker {
	return &PurgeWorker{Store: st, Clock: clk, Retention: retention, Log: log.WithField("worker", "purge")}
}

func (w *PurgeWorker) Start(ctx context.Context) {
	w.Log.Info("starting")
	time.Sleep(30 * time.Second)

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.Log.Info("stopping")
			return
		case <-ticker.C:
			cutoff := w.Clock.Now().Add(-w.Retention)
			n, err := w.Store.Purge(ctx, cutoff)
			if err != nil {
				w.Log.WithError(err).Error("purge failed")
				continue
			}
			if n > 0 {
				w.Log.WithField("rows", n).Info("purged old plan entries")
			}
		}
	}
}
