package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"mailnexy/internal/clock"
	"mailnexy/internal/spamrecovery"
)

type SpamRecoveryWorker struct {
	Recovery *spamrecovery.Recovery
	Clock    clock.Clock
	Interval time.Duration
	Log      *logrus.Entry
}

func NewSpamRecoveryWorker(r *spamrecovery.Recovery, clk clock.Clock, interval time.Duration, log *logrus.Logger) *SpamRecoveryWorker {
	return &SpamRecoveryWorker{Recovery: r, Clock: clk, Interval: interval, Log: log.WithField("worker", "spamrecovery")}
}

func (w *SpamRecoveryWorker) Start(ctx context.Context) {
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
			if err := w.Recovery.Tick(ctx, w.Clock.Now()); err != nil {
				w.Log.WithError(err).Error("tick failed")
			}
		}
	}
}
