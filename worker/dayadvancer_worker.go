package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"mailnexy/internal/dayadvancer"
)

type DayAdvancerWorker struct {
	Advancer *dayadvancer.Advancer
	Interval time.Duration
	Log      *logrus.Entry
}

func NewDayAdvancerWorker(a *dayadvancer.Advancer, interval time.Duration, log *logrus.Logger) *DayAdvancerWorker {
	return &DayAdvancerWorker{Advancer: a, Interval: interval, Log: log.WithField("worker", "dayadvancer")}
}

func (w *DayAdvancerWorker) Start(ctx context.Context) {
	w.Log.Info("starting")
	time.Sleep(10 * time.Second)

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.Log.Info("stopping")
			return
		case <-ticker.C:
			if err := w.Advancer.Tick(ctx); err != nil {
				w.Log.WithError(err).Error("tick failed")
			}
		}
	}
}
