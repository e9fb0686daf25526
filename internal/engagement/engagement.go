// Package engagement implements the Engagement Simulator (C6): on
// recipient mailboxes, opens, stars and replies to warmup mail using the
// sender-snapshotted rates captured at send time.
package engagement

import (
	"context"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat/distuv"
	"gorm.io/gorm"

	"mailnexy/internal/apperr"
	"mailnexy/internal/clock"
	"mailnexy/internal/mailclient"
	"mailnexy/models"
)

// StarDelayMin and StarDelayMax have no config.AppConfig.Engagement
// counterpart (spec.md §6 only exposes open/reply delays and star
// probability), so they stay fixed package constants.
const (
	StarDelayMin = 45 * time.Second
	StarDelayMax = 100 * time.Second
)

// Timing holds the configurable delay/probability knobs from spec.md §4.6 /
// §6 Configuration. Callers should build this from config.AppConfig.Engagement;
// DefaultTiming is used by tests and matches the spec's documented defaults.
type Timing struct {
	OpenDelayMin    time.Duration
	OpenDelayMax    time.Duration
	ReplyDelayMin   time.Duration
	ReplyDelayMax   time.Duration
	StarProbability float64
}

func DefaultTiming() Timing {
	return Timing{
		OpenDelayMin:    30 * time.Second,
		OpenDelayMax:    10 * time.Minute,
		ReplyDelayMin:   5 * time.Minute,
		ReplyDelayMax:   30 * time.Minute,
		StarProbability: 0.20,
	}
}

type Simulator struct {
	DB      *gorm.DB
	Clock   clock.Clock
	Clients *mailclient.Registry
	Rand    *rand.Rand
	Log     *logrus.Entry
	Timing  Timing
}

func New(db *gorm.DB, clk clock.Clock, clients *mailclient.Registry, rnd *rand.Rand, log *logrus.Logger, timing Timing) *Simulator {
	if timing == (Timing{}) {
		timing = DefaultTiming()
	}
	return &Simulator{DB: db, Clock: clk, Clients: clients, Rand: rnd, Log: log.WithField("component", "engagement"), Timing: timing}
}

// Tick processes one pass over every active RECIPIENT mailbox, grounded on
// the teacher's worker/unibox_worker.go per-mailbox iteration shape.
func (s *Simulator) Tick(ctx context.Context) error {
	now := s.Clock.Now()

	var recipients []models.Mailbox
	err := s.DB.WithContext(ctx).Where("role = ? AND active = ?", models.RoleRecipient, true).Find(&recipients).Error
	if err != nil {
		return apperr.New("engagement.tick.load_recipients", apperr.KindTransientNetwork, err)
	}

	for _, r := range recipients {
		s.processRecipient(ctx, &r, now)
	}
	return nil
}

func (s *Simulator) processRecipient(ctx context.Context, recipient *models.Mailbox, now time.Time) {
	var messages []models.Message
	err := s.DB.WithContext(ctx).
		Where("recipient_address = ? AND sent_at < ? AND opened_at IS NULL", recipient.Email, now.Add(-s.Timing.OpenDelayMin)).
		Find(&messages).Error
	if err != nil {
		s.Log.WithError(err).WithField("recipient", recipient.Email).Error("failed to load pending messages")
		return
	}

	for _, m := range messages {
		s.maybeOpen(ctx, recipient, &m, now)
	}

	var opened []models.Message
	err = s.DB.WithContext(ctx).
		Where("recipient_address = ? AND opened_at IS NOT NULL", recipient.Email).
		Where("starred_at IS NULL OR replied_at IS NULL").
		Find(&opened).Error
	if err != nil {
		s.Log.WithError(err).WithField("recipient", recipient.Email).Error("failed to load opened messages")
		return
	}
	for _, m := range opened {
		if m.StarredAt == nil {
			s.maybeStar(ctx, recipient, &m, now)
		}
		if m.RepliedAt == nil {
			s.maybeReply(ctx, recipient, &m, now)
		}
	}
}

func (s *Simulator) maybeOpen(ctx context.Context, recipient *models.Mailbox, m *models.Message, now time.Time) {
	if s.Rand.Float64() >= m.OpenRateTargetSnapshot {
		return
	}

	delay := betaDelay(s.Rand, s.Timing.OpenDelayMin, s.Timing.OpenDelayMax)
	if now.Before(m.SentAt.Add(delay)) {
		return // not yet time; re-evaluated next tick
	}

	client, ok := s.Clients.For(recipient.Provider)
	if !ok {
		s.Log.WithField("recipient", recipient.Email).Error("unknown provider, cannot open message")
		return
	}
	ep := endpointFor(recipient)
	if err := client.MarkRead(ctx, ep, recipient.Credentials, m.ProviderMsgID); err != nil {
		s.Log.WithError(err).WithField("message", m.ID).Warn("mark_read failed")
		return
	}

	res := s.DB.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND opened_at IS NULL", m.ID).
		Update("opened_at", now)
	if res.Error != nil {
		s.Log.WithError(res.Error).Error("failed to stamp opened_at")
	}
}

func (s *Simulator) maybeStar(ctx context.Context, recipient *models.Mailbox, m *models.Message, now time.Time) {
	if s.Rand.Float64() >= s.Timing.StarProbability {
		return
	}
	delay := uniformDelay(s.Rand, StarDelayMin, StarDelayMax)
	if m.OpenedAt == nil || now.Before(m.OpenedAt.Add(delay)) {
		return
	}

	client, ok := s.Clients.For(recipient.Provider)
	if !ok {
		return
	}
	ep := endpointFor(recipient)
	if err := client.MarkImportant(ctx, ep, recipient.Credentials, m.ProviderMsgID); err != nil {
		s.Log.WithError(err).WithField("message", m.ID).Warn("mark_important failed")
		return
	}

	res := s.DB.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND starred_at IS NULL", m.ID).
		Update("starred_at", now)
	if res.Error != nil {
		s.Log.WithError(res.Error).Error("failed to stamp starred_at")
	}
}

func (s *Simulator) maybeReply(ctx context.Context, recipient *models.Mailbox, m *models.Message, now time.Time) {
	if s.Rand.Float64() >= m.ReplyRateTargetSnapshot {
		return
	}
	delay := uniformDelay(s.Rand, s.Timing.ReplyDelayMin, s.Timing.ReplyDelayMax)
	if m.OpenedAt == nil || now.Before(m.OpenedAt.Add(delay)) {
		return
	}

	var sender models.Mailbox
	if err := s.DB.WithContext(ctx).First(&sender, m.SenderID).Error; err != nil {
		s.Log.WithError(err).WithField("message", m.ID).Error("failed to load sender for reply")
		return
	}
	client, ok := s.Clients.For(recipient.Provider)
	if !ok {
		return
	}
	ep := endpointFor(recipient)
	_, err := client.SendReply(ctx, ep, recipient.Credentials, recipient.Email, m.ProviderThreadID, m.ProviderMsgID, m.Subject, "<p>Thanks, sounds good.</p>")
	if err != nil {
		s.Log.WithError(err).WithField("message", m.ID).Warn("send_reply failed")
		return
	}

	res := s.DB.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND replied_at IS NULL", m.ID).
		Update("replied_at", now)
	if res.Error != nil {
		s.Log.WithError(res.Error).Error("failed to stamp replied_at")
	}
}

// betaDelay scales a Beta(2,5) draw into [min, max], per spec.md §4.6.
func betaDelay(rnd *rand.Rand, min, max time.Duration) time.Duration {
	beta := distuv.Beta{Alpha: 2, Beta: 5, Src: rnd}
	frac := beta.Rand()
	return min + time.Duration(frac*float64(max-min))
}

func uniformDelay(rnd *rand.Rand, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	span := float64(max - min)
	return min + time.Duration(rnd.Float64()*span)
}

func endpointFor(m *models.Mailbox) mailclient.Endpoint {
	return mailclient.Endpoint{
		SMTPHost:       m.SMTPHost,
		SMTPPort:       m.SMTPPort,
		SMTPUsername:   m.SMTPUsername,
		IMAPHost:       m.IMAPHost,
		IMAPPort:       m.IMAPPort,
		IMAPUsername:   m.IMAPUsername,
		IMAPMailbox:    m.IMAPMailbox,
		IMAPEncryption: m.IMAPEncryption,
	}
}
