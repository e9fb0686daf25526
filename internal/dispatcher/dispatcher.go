// Package dispatcher implements the Dispatcher (C5): a periodic tick that
// converts due PlanEntries into sent Messages via the mail client,
// grounded on the teacher's worker/warmup_worker.go tick shape.
package dispatcher

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"mailnexy/internal/apperr"
	"mailnexy/internal/clock"
	"mailnexy/internal/mailclient"
	"mailnexy/internal/planner"
	"mailnexy/internal/store"
	"mailnexy/models"
)

// maxAttemptsPerDay is the threshold from spec.md §4.11: once a sender has
// more than this many FAILED entries in one local day, checkReplanThreshold
// drops the remaining PENDING entries of that day rather than letting the
// dispatcher keep hitting the same failure.
const maxAttemptsPerDay = 3

type Dispatcher struct {
	DB            *gorm.DB
	Store         *store.Store
	Clock         clock.Clock
	Clients       *mailclient.Registry
	Generator     mailclient.ContentGenerator
	Rand          *rand.Rand
	Log           *logrus.Entry
	BusinessHours clock.Config
	Bands         planner.BandWeights
}

func New(db *gorm.DB, st *store.Store, clk clock.Clock, clients *mailclient.Registry, gen mailclient.ContentGenerator, rnd *rand.Rand, log *logrus.Logger, businessHours clock.Config, bands planner.BandWeights) *Dispatcher {
	return &Dispatcher{
		DB:            db,
		Store:         st,
		Clock:         clk,
		Clients:       clients,
		Generator:     gen,
		Rand:          rnd,
		Log:           log.WithField("component", "dispatcher"),
		BusinessHours: businessHours,
		Bands:         bands,
	}
}

// Tick runs one dispatcher pass: group senders by zone, gate on business
// hours, fetch due plans, send each in order. Grounded on
// worker/warmup_worker.go's processActiveWarmups per-sender loop shape.
func (d *Dispatcher) Tick(ctx context.Context) error {
	now := d.Clock.Now()

	var senders []models.Mailbox
	err := d.DB.WithContext(ctx).
		Where("role = ? AND active = ?", models.RoleSender, true).
		Find(&senders).Error
	if err != nil {
		return apperr.New("dispatcher.tick.load_senders", apperr.KindTransientNetwork, err)
	}

	byZone := make(map[string][]models.Mailbox)
	for _, s := range senders {
		byZone[s.TZ] = append(byZone[s.TZ], s)
	}

	for tz, zoneSenders := range byZone {
		local, err := clock.NowIn(d.Clock, tz)
		if err != nil {
			d.Log.WithError(err).WithField("tz", tz).Warn("skipping zone: bad timezone")
			continue
		}
		if clock.IsWeekend(local) || !clock.IsBusinessHours(local, d.BusinessHours) {
			continue
		}
		for i := range zoneSenders {
			if err := d.EnsurePlanned(ctx, &zoneSenders[i], d.BusinessHours); err != nil {
				d.Log.WithError(err).WithField("sender", zoneSenders[i].Email).Warn("failed to ensure plan exists")
			}
		}
		d.dispatchZone(ctx, now, zoneSenders)
	}
	return nil
}

func (d *Dispatcher) dispatchZone(ctx context.Context, now time.Time, senders []models.Mailbox) {
	senderByID := make(map[uint]models.Mailbox, len(senders))
	for _, s := range senders {
		senderByID[s.ID] = s
	}

	due, err := d.Store.DuePending(ctx, now)
	if err != nil {
		d.Log.WithError(err).Error("due_pending failed")
		return
	}

	for _, entry := range due {
		sender, ok := senderByID[entry.SenderID]
		if !ok {
			continue // not one of this zone's senders
		}
		d.dispatchOne(ctx, &sender, &entry)
	}
}

func (d *Dispatcher) dispatchOne(ctx context.Context, sender *models.Mailbox, entry *models.PlanEntry) {
	log := d.Log.WithFields(logrus.Fields{"sender": sender.Email, "plan_entry": entry.ID})

	client, ok := d.Clients.For(sender.Provider)
	if !ok {
		log.Error("unknown provider, pausing mailbox")
		d.pauseSender(ctx, sender, "unknown mail provider")
		return
	}

	recipient, err := d.pickRecipient(ctx)
	if err != nil {
		log.WithError(err).Error("no active recipient available")
		d.failEntry(ctx, entry, err)
		return
	}

	subject, bodyHTML, err := d.Generator.Generate(ctx, "general")
	if err != nil {
		log.WithError(err).Error("content generator failed")
		d.failEntry(ctx, entry, err)
		return
	}

	ep := endpointFor(sender)
	creds := sender.Credentials

	result, sendErr := client.Send(ctx, ep, creds, sender.Email, recipient.Email, subject, bodyHTML)
	if sendErr != nil && apperr.Is(sendErr, apperr.KindExpiredToken) {
		refreshed, refreshErr := client.Refresh(ctx, creds)
		if refreshErr != nil {
			log.WithError(refreshErr).Warn("token refresh failed, needs reauth")
			d.pauseSender(ctx, sender, "token refresh failed: "+refreshErr.Error())
			d.failEntry(ctx, entry, refreshErr)
			return
		}
		if err := d.DB.WithContext(ctx).Model(sender).Update("credentials", refreshed).Error; err != nil {
			log.WithError(err).Error("failed to persist refreshed credentials")
			d.failEntry(ctx, entry, err)
			return
		}
		sender.Credentials = refreshed
		result, sendErr = client.Send(ctx, ep, refreshed, sender.Email, recipient.Email, subject, bodyHTML)
	}

	if sendErr != nil {
		if apperr.Is(sendErr, apperr.KindNeedsReauth) {
			log.WithError(sendErr).Warn("needs reauth, pausing mailbox")
			d.pauseSender(ctx, sender, sendErr.Error())
		}
		d.failEntry(ctx, entry, sendErr)
		return
	}

	msg := models.Message{
		SenderID:                sender.ID,
		RecipientAddress:        recipient.Email,
		Subject:                 subject,
		Body:                    bodyHTML,
		ProviderMsgID:           result.ProviderMsgID,
		ProviderThreadID:        result.ProviderThreadID,
		TrackingID:              uuid.New().String(),
		SentAt:                  d.Clock.Now(),
		OpenRateTargetSnapshot:  sender.OpenRateTarget,
		ReplyRateTargetSnapshot: sender.ReplyRateTarget,
		PlanEntryID:             entry.ID,
	}
	if err := d.DB.WithContext(ctx).Create(&msg).Error; err != nil {
		log.WithError(err).Error("failed to persist message")
		d.failEntry(ctx, entry, err)
		return
	}

	if err := d.Store.Mark(ctx, entry.ID, models.PlanSent, &msg.ID, nil); err != nil {
		if apperr.Is(err, apperr.KindDuplicateDispatch) {
			log.Warn("plan entry already dispatched by another worker")
			return
		}
		log.WithError(err).Error("failed to mark plan entry SENT")
	}
}

func (d *Dispatcher) failEntry(ctx context.Context, entry *models.PlanEntry, cause error) {
	msg := cause.Error()
	if err := d.Store.Mark(ctx, entry.ID, models.PlanFailed, nil, &msg); err != nil && !apperr.Is(err, apperr.KindDuplicateDispatch) {
		d.Log.WithError(err).Error("failed to mark plan entry FAILED")
		return
	}
	d.checkReplanThreshold(ctx, entry.SenderID, entry.LocalDate)
}

// checkReplanThreshold drops the remaining PENDING tail for (senderID, day)
// once today's FAILED count exceeds maxAttemptsPerDay, per spec.md §4.11.
// The dropped entries are not re-planned: EnsurePlanned skips the day
// because HasPlanFor still finds its SENT and FAILED entries, so the sender
// sends nothing more that local day.
func (d *Dispatcher) checkReplanThreshold(ctx context.Context, senderID uint, day time.Time) {
	var failedCount int64
	err := d.DB.WithContext(ctx).Model(&models.PlanEntry{}).
		Where("sender_id = ? AND local_date = ? AND status = ?", senderID, day, models.PlanFailed).
		Count(&failedCount).Error
	if err != nil {
		d.Log.WithError(err).Warn("failed to count today's failures")
		return
	}
	if failedCount <= maxAttemptsPerDay {
		return
	}
	if err := d.DB.WithContext(ctx).Where("sender_id = ? AND local_date = ? AND status = ?", senderID, day, models.PlanPending).
		Delete(&models.PlanEntry{}).Error; err != nil {
		d.Log.WithError(err).Warn("failed to drop pending tail for replan")
		return
	}
	d.Log.WithFields(logrus.Fields{"sender_id": senderID, "local_date": day}).
		Info("attempts exceeded threshold, dropped remaining plan for re-generation")
}

func (d *Dispatcher) pauseSender(ctx context.Context, sender *models.Mailbox, reason string) {
	sender.Pause(reason)
	if err := d.DB.WithContext(ctx).Model(&models.Mailbox{}).Where("id = ?", sender.ID).
		Updates(map[string]interface{}{"active": false, "needs_reauth": true, "last_error": reason}).Error; err != nil {
		d.Log.WithError(err).Error("failed to persist mailbox pause")
	}
	if err := d.Store.SkipFuturePlans(ctx, sender.ID, d.Clock.Now()); err != nil {
		d.Log.WithError(err).Error("failed to skip future plans")
	}
}

func (d *Dispatcher) pickRecipient(ctx context.Context) (*models.Mailbox, error) {
	var recipients []models.Mailbox
	err := d.DB.WithContext(ctx).Where("role = ? AND active = ?", models.RoleRecipient, true).Find(&recipients).Error
	if err != nil {
		return nil, apperr.New("dispatcher.pick_recipient", apperr.KindTransientNetwork, err)
	}
	if len(recipients) == 0 {
		return nil, apperr.New("dispatcher.pick_recipient", apperr.KindInvalidPlan, fmt.Errorf("no active recipient mailboxes"))
	}
	r := recipients[d.Rand.Intn(len(recipients))]
	return &r, nil
}

// EnsurePlanned triggers the planner for (sender, today) if no plan exists
// yet, per spec.md §4.9's "planner is triggered implicitly" note.
func (d *Dispatcher) EnsurePlanned(ctx context.Context, sender *models.Mailbox, cfg clock.Config) error {
	local, err := clock.NowIn(d.Clock, sender.TZ)
	if err != nil {
		return apperr.New("dispatcher.ensure_planned", apperr.KindInvalidPlan, err)
	}
	today := clock.LocalMidnight(local)

	has, err := d.Store.HasPlanFor(ctx, sender.ID, today)
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	entries, err := planner.Plan(planner.Input{
		TZ:         sender.TZ,
		LocalDate:  today,
		DailyLimit: sender.DailyLimit,
		Config:     cfg,
		Bands:      d.Bands,
	}, d.Rand)
	if err != nil {
		return apperr.New("dispatcher.ensure_planned.plan", apperr.KindInvalidPlan, err)
	}

	planned := make([]store.PlannedEntry, 0, len(entries))
	for _, e := range entries {
		planned = append(planned, store.PlannedEntry{FireAt: e.UTC, Band: string(e.Band)})
	}
	return d.Store.UpsertPlan(ctx, sender.ID, today, planned)
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

