// Package spamrecovery implements Spam Recovery (C8): finds warmup mail in
// recipient spam folders and restores it to the inbox.
package spamrecovery

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"mailnexy/internal/apperr"
	"mailnexy/internal/mailclient"
	"mailnexy/models"
)

// MaxAttempts bounds retries per spec.md §4.8.
const MaxAttempts = 3

type Recovery struct {
	DB      *gorm.DB
	Clients *mailclient.Registry
	Log     *logrus.Entry
}

func New(db *gorm.DB, clients *mailclient.Registry, log *logrus.Logger) *Recovery {
	return &Recovery{DB: db, Clients: clients, Log: log.WithField("component", "spamrecovery")}
}

func (r *Recovery) Tick(ctx context.Context, now time.Time) error {
	var recipients []models.Mailbox
	if err := r.DB.WithContext(ctx).Where("role = ? AND active = ?", models.RoleRecipient, true).Find(&recipients).Error; err != nil {
		return apperr.New("spamrecovery.tick.load_recipients", apperr.KindTransientNetwork, err)
	}

	var senders []models.Mailbox
	if err := r.DB.WithContext(ctx).Where("role = ? AND active = ?", models.RoleSender, true).Find(&senders).Error; err != nil {
		return apperr.New("spamrecovery.tick.load_senders", apperr.KindTransientNetwork, err)
	}
	senderAddrs := make([]string, 0, len(senders))
	for _, s := range senders {
		senderAddrs = append(senderAddrs, s.Email)
	}
	if len(senderAddrs) == 0 {
		return nil
	}

	for _, rec := range recipients {
		r.processRecipient(ctx, &rec, senderAddrs, now)
	}
	return nil
}

func (r *Recovery) processRecipient(ctx context.Context, recipient *models.Mailbox, senderAddrs []string, now time.Time) {
	log := r.Log.WithField("recipient", recipient.Email)

	client, ok := r.Clients.For(recipient.Provider)
	if !ok {
		log.Error("unknown provider, skipping spam recovery")
		return
	}

	ep := mailclient.Endpoint{
		SMTPHost: recipient.SMTPHost, SMTPPort: recipient.SMTPPort, SMTPUsername: recipient.SMTPUsername,
		IMAPHost: recipient.IMAPHost, IMAPPort: recipient.IMAPPort, IMAPUsername: recipient.IMAPUsername,
		IMAPMailbox: recipient.IMAPMailbox, IMAPEncryption: recipient.IMAPEncryption,
	}
	found, err := client.ListSpamFrom(ctx, ep, recipient.Credentials, senderAddrs)
	if err != nil {
		log.WithError(err).Warn("list_spam_from failed")
		return
	}

	for _, msg := range found {
		r.recoverOne(ctx, recipient, client, ep, msg, now)
	}
}

func (r *Recovery) recoverOne(ctx context.Context, recipient *models.Mailbox, client mailclient.Client, ep mailclient.Endpoint, in mailclient.InboundMessage, now time.Time) {
	event, err := r.findOrCreateEvent(ctx, recipient, in, now)
	if err != nil {
		r.Log.WithError(err).Error("failed to find or create spam event")
		return
	}
	if !event.IsOpen() {
		return // already terminal, nothing to do (idempotent)
	}
	if event.Attempts >= MaxAttempts {
		return
	}

	unspamErr := client.Unspam(ctx, ep, recipient.Credentials, in.ProviderMsgID)

	updates := map[string]interface{}{"attempts": event.Attempts + 1}
	if unspamErr != nil {
		msg := unspamErr.Error()
		updates["error"] = msg
		if event.Attempts+1 >= MaxAttempts {
			updates["status"] = models.SpamFailed
		}
		// else: leave status SpamDetected so IsOpen() keeps retrying next tick
	} else {
		updates["status"] = models.SpamRecovered
		updates["recovered_at"] = now
	}

	if err := r.DB.WithContext(ctx).Model(&models.SpamEvent{}).Where("id = ?", event.ID).Updates(updates).Error; err != nil {
		r.Log.WithError(err).Error("failed to persist spam event update")
	}
}

func (r *Recovery) findOrCreateEvent(ctx context.Context, recipient *models.Mailbox, in mailclient.InboundMessage, now time.Time) (*models.SpamEvent, error) {
	var event models.SpamEvent
	err := r.DB.WithContext(ctx).
		Where("recipient_id = ? AND provider_msg = ?", recipient.ID, in.ProviderMsgID).
		First(&event).Error
	if err == nil {
		return &event, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New("spamrecovery.find_event", apperr.KindTransientNetwork, err)
	}

	var messageRef *uint
	var msg models.Message
	if err := r.DB.WithContext(ctx).Where("provider_msg_id = ?", in.ProviderMsgID).First(&msg).Error; err == nil {
		messageRef = &msg.ID
	}

	event = models.SpamEvent{
		RecipientID: recipient.ID,
		MessageRef:  messageRef,
		ProviderMsg: in.ProviderMsgID,
		DetectedAt:  now,
		Status:      models.SpamDetected,
	}
	if err := r.DB.WithContext(ctx).Create(&event).Error; err != nil {
		return nil, apperr.New("spamrecovery.create_event", apperr.KindTransientNetwork, err)
	}
	return &event, nil
}
