package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"mailnexy/internal/score"
)

type ScoreWorker struct {
	Engine   *score.Engine
	Interval time.Duration
	Log      *logrus.Entry
}

func NewScoreWorker(e *score.Engine, interval time.Duration, log *logrus.Logger) *ScoreWorker {
	return &ScoreWorker{Engine: e, Interval: interval, Log: log.WithField("worker", "score")}
}

func (w *ScoreWorker) Start(ctx context.Context) {
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
			if err := w.Engine.Tick(ctx); err != nil {
				w.Log.WithError(err).Error("tick failed")
			}
		}
	}
}
