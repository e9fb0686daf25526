package models

import (
	"time"

	"gorm.io/gorm"
)

// Provider identifies which mail-client adapter owns a Mailbox.
type Provider string

const (
	ProviderGmail Provider = "gmail"
	ProviderOther Provider = "other"
)

// Role is mutually exclusive per spec.md §3: a Mailbox is either warmed
// (SENDER) or only engages with warmup mail (RECIPIENT).
type Role string

const (
	RoleSender    Role = "SENDER"
	RoleRecipient Role = "RECIPIENT"
)

// Mailbox is an email account the engine controls: a SENDER being warmed,
// or a RECIPIENT that only opens/stars/replies to warmup mail.
type Mailbox struct {
	gorm.Model

	UserID   uint     `gorm:"not null;index" json:"user_id"`
	Email    string   `gorm:"uniqueIndex;not null" json:"email"`
	Provider Provider `gorm:"not null" json:"provider"`
	Role     Role     `gorm:"not null" json:"role"`

	// Credentials is opaque to every component except the mail client
	// adapters; it is never logged (see CredentialBundle.String).
	Credentials CredentialBundle `gorm:"type:text" json:"-"`

	// SMTP/IMAP host settings back the "other" provider adapter, mirroring
	// the teacher's Sender model fields for non-OAuth mailboxes.
	SMTPHost       string `json:"smtp_host,omitempty"`
	SMTPPort       int    `json:"smtp_port,omitempty"`
	SMTPUsername   string `json:"smtp_username,omitempty"`
	IMAPHost       string `json:"imap_host,omitempty"`
	IMAPPort       int    `gorm:"default:993" json:"imap_port,omitempty"`
	IMAPUsername   string `json:"imap_username,omitempty"`
	IMAPMailbox    string `gorm:"default:'INBOX'" json:"imap_mailbox,omitempty"`
	IMAPEncryption string `gorm:"default:'SSL'" json:"imap_encryption,omitempty"`

	Active bool   `gorm:"default:true;index" json:"active"`
	TZ     string `gorm:"not null;default:'UTC'" json:"tz"`

	// Warmup state (SENDER only).
	Target          int        `gorm:"default:0" json:"target"`
	WarmupDay       int        `gorm:"default:0" json:"warmup_day"`
	DailyLimit      int        `gorm:"default:0" json:"daily_limit"`
	Phase           int        `gorm:"default:0" json:"phase"`
	LastAdvanceDate *time.Time `json:"last_advance_date,omitempty"`

	OpenRateTarget  float64 `gorm:"default:0.4" json:"open_rate_target"`
	ReplyRateTarget float64 `gorm:"default:0.15" json:"reply_rate_target"`

	Score        float64    `gorm:"default:0" json:"score"`
	ScoreGrade   string     `json:"score_grade,omitempty"`
	ScoreUpdated *time.Time `json:"score_updated_at,omitempty"`

	NeedsReauth bool       `gorm:"default:false;index" json:"needs_reauth"`
	LastError   *string    `json:"last_error,omitempty"`
	LastTested  *time.Time `json:"last_tested_at,omitempty"`
}

// IsSender reports whether this mailbox is being warmed rather than merely
// engaging with warmup mail.
func (m *Mailbox) IsSender() bool { return m.Role == RoleSender }

// Pause marks the mailbox as paused due to unrecoverable credential
// failure, per spec.md §4.5's needs-reauth policy. Callers must also mark
// future PlanEntries SKIPPED in the same transaction.
func (m *Mailbox) Pause(reason string) {
	m.Active = false
	m.NeedsReauth = true
	m.LastError = &reason
}
