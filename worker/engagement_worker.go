package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"mailnexy/internal/engagement"
)

type EngagementWorker struct {
	Simulator *engagement.Simulator
	Interval  time.Duration
	Log       *logrus.Entry
}

func NewEngagementWorker(s *engagement.Simulator, interval time.Duration, log *logrus.Logger) *EngagementWorker {
	return &EngagementWorker{Simulator: s, Interval: interval, Log: log.WithField("worker", "engagement")}
}

func (w *EngagementWorker) Start(ctx context.Context) {
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
			if err := w.Simulator.Tick(ctx); err != nil {
				w.Log.WithError(err).Error("tick failed")
			}
		}
	}
}
