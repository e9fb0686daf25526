package models

import (
	"time"

	"gorm.io/gorm"
)

// Message is one sent warmup email, tracked through its engagement
// lifecycle (opened/starred/replied), per spec.md §3.
type Message struct {
	gorm.Model

	SenderID         uint   `gorm:"not null;index;uniqueIndex:idx_sender_provider_msg" json:"sender_id"`
	RecipientAddress string `gorm:"not null;index" json:"recipient_address"`

	Subject string `gorm:"not null" json:"subject"`
	Body    string `gorm:"type:text;not null" json:"body"`

	ProviderMsgID    string `gorm:"not null;uniqueIndex:idx_sender_provider_msg" json:"provider_msg_id"`
	ProviderThreadID string `gorm:"index" json:"provider_thread_id"`

	TrackingID string `gorm:"uniqueIndex;not null" json:"tracking_id"`

	SentAt     time.Time  `gorm:"not null;index" json:"sent_at"`
	OpenedAt   *time.Time `json:"opened_at,omitempty"`
	StarredAt  *time.Time `json:"starred_at,omitempty"`
	RepliedAt  *time.Time `json:"replied_at,omitempty"`

	// Engagement policy snapshot captured at send time, per spec.md §3 and
	// E4: later simulation must use the policy that existed when the mail
	// was produced, not whatever the sender's current policy is.
	OpenRateTargetSnapshot  float64 `gorm:"not null" json:"open_rate_target_snapshot"`
	ReplyRateTargetSnapshot float64 `gorm:"not null" json:"reply_rate_target_snapshot"`

	PlanEntryID uint `gorm:"not null;uniqueIndex" json:"plan_entry_id"`
}

// MarkOpened is a no-op if already opened (engagement draws happen exactly
// once per message, per spec.md §4.6).
func (m *Message) MarkOpened(at time.Time) bool {
	if m.OpenedAt != nil {
		return false
	}
	m.OpenedAt = &at
	return true
}
