package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"mailnexy/internal/dispatcher"
)

// DispatcherWorker drives the Dispatcher's tick loop, grounded on the
// teacher's original warmup worker: a short startup delay followed by a
// fixed-interval ticker, exiting cleanly on context cancellation.
type DispatcherWorker struct {
	Dispatcher *dispatcher.Dispatcher
	Interval   time.Duration
	Log        *logrus.Entry
}

func NewDispatcherWorker(d *dispatcher.Dispatcher, interval time.Duration, log *logrus.Logger) *DispatcherWorker {
	return &DispatcherWorker{Dispatcher: d, Interval: interval, Log: log.WithField("worker", "dispatcher")}
}

func (w *DispatcherWorker) Start(ctx context.Context) {
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
			if err := w.Dispatcher.Tick(ctx); err != nil {
				w.Log.WithError(err).Error("tick failed")
			}
		}
	}
}
