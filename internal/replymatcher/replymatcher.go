// Package replymatcher implements the Reply Matcher (C7): for each active
// SENDER, polls for unread inbound mail and matches it against outbound
// Messages by provider_thread_id or normalized subject.
package replymatcher

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"mailnexy/internal/apperr"
	"mailnexy/internal/mailclient"
	"mailnexy/models"
)

type Matcher struct {
	DB         *gorm.DB
	Clients    *mailclient.Registry
	Log        *logrus.Entry
	lastPollAt map[uint]time.Time
}

func New(db *gorm.DB, clients *mailclient.Registry, log *logrus.Logger) *Matcher {
	return &Matcher{
		DB:         db,
		Clients:    clients,
		Log:        log.WithField("component", "replymatcher"),
		lastPollAt: make(map[uint]time.Time),
	}
}

// Tick polls every active SENDER's inbox for unread messages arriving
// since its last poll, grounded on the teacher's worker/unibox_worker.go
// per-mailbox IMAP loop.
func (m *Matcher) Tick(ctx context.Context, now time.Time) error {
	var senders []models.Mailbox
	err := m.DB.WithContext(ctx).Where("role = ? AND active = ?", models.RoleSender, true).Find(&senders).Error
	if err != nil {
		return apperr.New("replymatcher.tick.load_senders", apperr.KindTransientNetwork, err)
	}

	for _, s := range senders {
		m.processSender(ctx, &s, now)
	}
	return nil
}

func (m *Matcher) processSender(ctx context.Context, sender *models.Mailbox, now time.Time) {
	log := m.Log.WithField("sender", sender.Email)

	client, ok := m.Clients.For(sender.Provider)
	if !ok {
		log.Error("unknown provider, skipping reply poll")
		return
	}

	since, polled := m.lastPollAt[sender.ID]
	if !polled {
		since = now.Add(-1 * time.Hour)
	}

	ep := mailclient.Endpoint{
		SMTPHost: sender.SMTPHost, SMTPPort: sender.SMTPPort, SMTPUsername: sender.SMTPUsername,
		IMAPHost: sender.IMAPHost, IMAPPort: sender.IMAPPort, IMAPUsername: sender.IMAPUsername,
		IMAPMailbox: sender.IMAPMailbox, IMAPEncryption: sender.IMAPEncryption,
	}
	inbound, err := client.ListUnreadTo(ctx, ep, sender.Credentials, since)
	if err != nil {
		log.WithError(err).Warn("list_unread_to failed")
		return
	}
	m.lastPollAt[sender.ID] = now

	for _, in := range inbound {
		m.matchAndStamp(ctx, sender, in, now)
	}
}

func (m *Matcher) matchAndStamp(ctx context.Context, sender *models.Mailbox, in mailclient.InboundMessage, now time.Time) {
	var msg models.Message
	err := m.DB.WithContext(ctx).
		Where("sender_id = ? AND provider_thread_id = ?", sender.ID, in.ProviderThreadID).
		First(&msg).Error

	if err != nil {
		if !isNotFound(err) {
			m.Log.WithError(err).Warn("reply match by thread id query failed")
			return
		}
		// Fallback: normalized subject match, per spec.md §4.7.
		normalized := normalizeSubject(in.Subject)
		var candidates []models.Message
		if err := m.DB.WithContext(ctx).Where("sender_id = ? AND replied_at IS NULL", sender.ID).Find(&candidates).Error; err != nil {
			m.Log.WithError(err).Warn("reply match fallback query failed")
			return
		}
		found := false
		for _, c := range candidates {
			if normalizeSubject(c.Subject) == normalized {
				msg = c
				found = true
				break
			}
		}
		if !found {
			return
		}
	}

	if msg.RepliedAt != nil {
		return // idempotent: already matched
	}

	res := m.DB.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND replied_at IS NULL", msg.ID).
		Update("replied_at", now)
	if res.Error != nil {
		m.Log.WithError(res.Error).Error("failed to stamp replied_at")
	}
}

func normalizeSubject(s string) string {
	s = strings.TrimSpace(s)
	for {
		lower := strings.ToLower(s)
		if strings.HasPrefix(lower, "re:") {
			s = strings.TrimSpace(s[3:])
			continue
		}
		break
	}
	return strings.ToLower(s)
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
