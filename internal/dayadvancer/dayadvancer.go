// Package dayadvancer implements the Day Advancer (C9): an hourly tick
// that increments warmup_day and recomputes each sender's daily_limit,
// guaranteed at-most-once per local calendar day per mailbox.
package dayadvancer

import (
	"context"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mailnexy/internal/apperr"
	"mailnexy/internal/clock"
	"mailnexy/internal/phase"
	"mailnexy/models"
)

type Advancer struct {
	DB    *gorm.DB
	Clock clock.Clock
	Log   *logrus.Entry
}

func New(db *gorm.DB, clk clock.Clock, log *logrus.Logger) *Advancer {
	return &Advancer{DB: db, Clock: clk, Log: log.WithField("component", "dayadvancer")}
}

func (a *Advancer) Tick(ctx context.Context) error {
	var senders []models.Mailbox
	if err := a.DB.WithContext(ctx).Where("role = ? AND active = ?", models.RoleSender, true).Find(&senders).Error; err != nil {
		return apperr.New("dayadvancer.tick.load_senders", apperr.KindTransientNetwork, err)
	}
	for _, s := range senders {
		a.maybeAdvance(ctx, &s)
	}
	return nil
}

func (a *Advancer) maybeAdvance(ctx context.Context, sender *models.Mailbox) {
	log := a.Log.WithField("sender", sender.Email)

	local, err := clock.NowIn(a.Clock, sender.TZ)
	if err != nil {
		log.WithError(err).Warn("bad timezone, skipping advance")
		return
	}
	loc := local.Location()
	today := clock.LocalMidnight(local)

	// LastAdvanceDate is read back from the DB in whatever location the
	// driver scans timestamps into (typically UTC), not sender's TZ; convert
	// it into sender's zone before taking its calendar date so the
	// comparison is against the same local day as today, not the UTC day.
	if sender.LastAdvanceDate != nil && !today.After(clock.LocalMidnight(sender.LastAdvanceDate.In(loc))) {
		return // already advanced today; at-most-once guarantee
	}

	err = a.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var fresh models.Mailbox
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", sender.ID).First(&fresh).Error; err != nil {
			return err
		}
		if fresh.LastAdvanceDate != nil && !today.After(clock.LocalMidnight(fresh.LastAdvanceDate.In(loc))) {
			return nil // lost the race to another tick; no-op
		}

		newDay := fresh.WarmupDay + 1
		result := phase.Evaluate(newDay, fresh.Target)
		oldPhase := fresh.Phase

		updates := map[string]interface{}{
			"warmup_day":        newDay,
			"daily_limit":       result.DailyLimit,
			"phase":             result.Phase,
			"last_advance_date": today,
		}
		if err := tx.Model(&models.Mailbox{}).Where("id = ?", fresh.ID).Updates(updates).Error; err != nil {
			return err
		}

		if phase.IsPhaseBoundary(newDay) {
			log.WithFields(logrus.Fields{
				"from_phase": oldPhase,
				"to_phase":   result.Phase,
				"old_limit":  fresh.DailyLimit,
				"new_limit":  result.DailyLimit,
			}).Info("phase transition")
		}
		return nil
	})
	if err != nil {
		log.WithError(err).Error("failed to advance warmup day")
	}
}
