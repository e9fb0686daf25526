package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"mailnexy/internal/clock"
	"mailnexy/internal/replymatcher"
)

type ReplyMatcherWorker struct {
	Matcher  *replymatcher.Matcher
	Clock    clock.Clock
	Interval time.Duration
	Log      *logrus.Entry
}

func NewReplyMatcherWorker(m *replymatcher.Matcher, clk clock.Clock, interval time.Duration, log *logrus.Logger) *ReplyMatcherWorker {
	return &ReplyMatcherWorker{Matcher: m, Clock: clk, Interval: interval, Log: log.WithField("worker", "replymatcher")}
}

func (w *ReplyMatcherWorker) Start(ctx context.Context) {
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
			if err := w.Matcher.Tick(ctx, w.Clock.Now()); err != nil {
				w.Log.WithError(err).Error("tick failed")
			}
		}
	}
}
