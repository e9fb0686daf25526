package models

import (
	"time"

	"gorm.io/gorm"
)

// SpamEventStatus tracks one spam-folder detection through recovery.
type SpamEventStatus string

const (
	SpamDetected  SpamEventStatus = "DETECTED"
	SpamRecovered SpamEventStatus = "RECOVERED"
	SpamFailed    SpamEventStatus = "FAILED"
)

// SpamEvent records one detection of warmup mail in a recipient's spam
// folder (C8), per spec.md §3.
type SpamEvent struct {
	gorm.Model

	RecipientID uint   `gorm:"not null;index" json:"recipient_id"`
	MessageRef  *uint  `json:"message_ref,omitempty"`
	ProviderMsg string `gorm:"not null;index" json:"provider_msg_id"`

	DetectedAt  time.Time  `gorm:"not null" json:"detected_at"`
	RecoveredAt *time.Time `json:"recovered_at,omitempty"`

	Status   SpamEventStatus `gorm:"not null;default:'DETECTED'" json:"status"`
	Attempts int             `gorm:"default:0" json:"attempts"`
	Error    *string         `json:"error,omitempty"`
}

// IsOpen reports whether this event is still non-terminal, used to enforce
// "at most one open SpamEvent per underlying spam placement".
func (s *SpamEvent) IsOpen() bool {
	return s.Status == SpamDetected
}
