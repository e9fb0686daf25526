// Package score implements the Score Engine (C10): a 0-100 reputation
// score per SENDER computed from its last 30 days of Messages and
// SpamEvents, per spec.md §4.10.
package score

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"mailnexy/internal/apperr"
	"mailnexy/internal/clock"
	"mailnexy/models"
)

// Window is the lookback period, per spec.md §6 Configuration
// (score.window, default 30d). The window is calendar days, not
// business days — see SPEC_FULL.md's Open Question decision.
const Window = 30 * 24 * time.Hour

type Breakdown struct {
	Score      float64
	Grade      string
	SOpen      float64
	SReply     float64
	SPhase     float64
	SSpam      float64
	OpenRate   float64
	ReplyRate  float64
	SpamRate   float64
	Status     string
}

type Engine struct {
	DB    *gorm.DB
	Clock clock.Clock
	Log   *logrus.Entry
}

func New(db *gorm.DB, clk clock.Clock, log *logrus.Logger) *Engine {
	return &Engine{DB: db, Clock: clk, Log: log.WithField("component", "score")}
}

func (e *Engine) Tick(ctx context.Context) error {
	var senders []models.Mailbox
	if err := e.DB.WithContext(ctx).Where("role = ?", models.RoleSender).Find(&senders).Error; err != nil {
		return apperr.New("score.tick.load_senders", apperr.KindTransientNetwork, err)
	}
	for _, s := range senders {
		bd, err := e.Compute(ctx, &s)
		if err != nil {
			e.Log.WithError(err).WithField("sender", s.Email).Error("score computation failed")
			continue
		}
		now := e.Clock.Now()
		updates := map[string]interface{}{
			"score":         bd.Score,
			"score_grade":   bd.Grade,
			"score_updated": now,
		}
		if err := e.DB.WithContext(ctx).Model(&models.Mailbox{}).Where("id = ?", s.ID).Updates(updates).Error; err != nil {
			e.Log.WithError(err).WithField("sender", s.Email).Error("failed to persist score")
		}
	}
	return nil
}

// Compute computes the full score breakdown for one sender without
// persisting it, usable directly by the admin/analytics surface.
func (e *Engine) Compute(ctx context.Context, sender *models.Mailbox) (Breakdown, error) {
	now := e.Clock.Now()
	since := now.Add(-Window)

	var sent, opened, replied int64
	if err := e.DB.WithContext(ctx).Model(&models.Message{}).
		Where("sender_id = ? AND sent_at >= ?", sender.ID, since).Count(&sent).Error; err != nil {
		return Breakdown{}, apperr.New("score.compute.sent", apperr.KindTransientNetwork, err)
	}
	if sent == 0 {
		return Breakdown{Score: 0, Grade: "F", Status: "no messages sent in window"}, nil
	}
	if err := e.DB.WithContext(ctx).Model(&models.Message{}).
		Where("sender_id = ? AND sent_at >= ? AND opened_at IS NOT NULL", sender.ID, since).Count(&opened).Error; err != nil {
		return Breakdown{}, apperr.New("score.compute.opened", apperr.KindTransientNetwork, err)
	}
	if err := e.DB.WithContext(ctx).Model(&models.Message{}).
		Where("sender_id = ? AND sent_at >= ? AND replied_at IS NOT NULL", sender.ID, since).Count(&replied).Error; err != nil {
		return Breakdown{}, apperr.New("score.compute.replied", apperr.KindTransientNetwork, err)
	}

	spamDetected, recovered, err := e.spamCounts(ctx, sender.ID, since)
	if err != nil {
		return Breakdown{}, err
	}

	openRate := float64(opened) / float64(sent)
	replyRate := float64(replied) / float64(sent)
	spamRate := float64(spamDetected) / float64(sent)
	recoveryRate := 0.0
	if spamDetected > 0 {
		recoveryRate = float64(recovered) / float64(spamDetected)
	}

	phaseActual, err := e.avgSentLast7BusinessDays(ctx, sender.ID, now)
	if err != nil {
		return Breakdown{}, err
	}

	sOpen := sOpen(openRate)
	sReply := sReply(replyRate)
	sPhase := sPhase(sender.Phase, phaseActual, float64(sender.DailyLimit))
	sSpam := sSpam(spamRate, recoveryRate)

	total := 0.40*sOpen + 0.30*sReply + 0.20*sPhase + 0.10*sSpam
	total = math.Round(total*10) / 10
	total = clamp(total, 0, 100)

	bd := Breakdown{
		Score:     total,
		Grade:     grade(total),
		SOpen:     sOpen,
		SReply:    sReply,
		SPhase:    sPhase,
		SSpam:     sSpam,
		OpenRate:  openRate,
		ReplyRate: replyRate,
		SpamRate:  spamRate,
	}
	bd.Status = fmt.Sprintf("score=%.1f grade=%s open=%.0f%% reply=%.0f%% spam=%.1f%%", total, bd.Grade, openRate*100, replyRate*100, spamRate*100)
	return bd, nil
}

// spamCounts counts SpamEvents whose underlying Message belongs to sender,
// since SpamEvent is keyed by recipient_id/provider_msg rather than
// sender_id directly.
func (e *Engine) spamCounts(ctx context.Context, senderID uint, since time.Time) (detected, recovered int64, err error) {
	var msgIDs []uint
	if err := e.DB.WithContext(ctx).Model(&models.Message{}).
		Where("sender_id = ? AND sent_at >= ?", senderID, since).Pluck("id", &msgIDs).Error; err != nil {
		return 0, 0, apperr.New("score.spam_counts.messages", apperr.KindTransientNetwork, err)
	}
	if len(msgIDs) == 0 {
		return 0, 0, nil
	}

	var detectedCount, recoveredCount int64
	if err := e.DB.WithContext(ctx).Model(&models.SpamEvent{}).
		Where("message_ref IN ?", msgIDs).Count(&detectedCount).Error; err != nil {
		return 0, 0, apperr.New("score.spam_counts.detected", apperr.KindTransientNetwork, err)
	}
	if err := e.DB.WithContext(ctx).Model(&models.SpamEvent{}).
		Where("message_ref IN ? AND status = ?", msgIDs, models.SpamRecovered).Count(&recoveredCount).Error; err != nil {
		return 0, 0, apperr.New("score.spam_counts.recovered", apperr.KindTransientNetwork, err)
	}
	return detectedCount, recoveredCount, nil
}

func (e *Engine) avgSentLast7BusinessDays(ctx context.Context, senderID uint, now time.Time) (float64, error) {
	since := now.Add(-7 * 24 * time.Hour)
	var count int64
	if err := e.DB.WithContext(ctx).Model(&models.Message{}).
		Where("sender_id = ? AND sent_at >= ?", senderID, since).Count(&count).Error; err != nil {
		return 0, apperr.New("score.avg_sent", apperr.KindTransientNetwork, err)
	}
	return float64(count) / 5.0, nil
}

func sOpen(rate float64) float64 {
	switch {
	case rate >= 0.6:
		return 100
	case rate >= 0.4:
		return 80
	case rate >= 0.2:
		return 60
	default:
		return (rate / 0.2) * 60
	}
}

func sReply(rate float64) float64 {
	switch {
	case rate >= 0.25:
		return 100
	case rate >= 0.15:
		return 85
	case rate >= 0.05:
		return 70
	default:
		return (rate / 0.05) * 70
	}
}

func sPhase(phaseNum int, phaseActual, phaseTarget float64) float64 {
	base := map[int]float64{1: 50, 2: 65, 3: 80, 4: 90, 5: 100}[phaseNum]
	if base == 0 {
		base = 50
	}
	if phaseTarget > 0 {
		if phaseActual >= 0.9*phaseTarget {
			base += 10
		} else if phaseActual < 0.5*phaseTarget {
			base -= 15
		}
	}
	return clamp(base, 0, 100)
}

func sSpam(spamRate, recoveryRate float64) float64 {
	var base float64
	switch {
	case spamRate <= 0.02:
		base = 100
	case spamRate <= 0.05:
		base = 85
	case spamRate <= 0.10:
		base = 60
	default:
		base = math.Max(0, 100-spamRate*100*8)
	}
	if recoveryRate >= 0.8 {
		base += 10
	} else if recoveryRate < 0.5 {
		base -= 10
	}
	return clamp(base, 0, 100)
}

func grade(score float64) string {
	switch {
	case score >= 90:
		return "A+"
	case score >= 80:
		return "A"
	case score >= 70:
		return "B"
	case score >= 60:
		return "C"
	case score >= 50:
		return "D"
	default:
		return "F"
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
