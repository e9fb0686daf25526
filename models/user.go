package models

import (
	"time"

	"gorm.io/gorm"
)

// User is an operator account on the admin/analytics surface — the human
// who owns a pool of Mailboxes and watches their warmup progress. The
// engine itself never reasons about User; only the HTTP layer does.
type User struct {
	gorm.Model

	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`

	Name     *string `json:"name,omitempty"`
	IsActive bool    `gorm:"default:true" json:"is_active"`
	IsAdmin  bool    `gorm:"default:false" json:"is_admin"`

	TokenVersion uint `gorm:"default:0" json:"-"`

	Mailboxes []Mailbox `gorm:"foreignKey:UserID" json:"mailboxes,omitempty"`
}

// RefreshToken tracks one issued refresh-token session, per the teacher's
// rotate-and-revoke pattern in utils/jwt.go.
type RefreshToken struct {
	gorm.Model
	UserID    uint      `gorm:"index;not null"`
	TokenHash string    `gorm:"not null"`
	SessionID string    `gorm:"index;not null"`
	UserAgent string    `gorm:"size:512"`
	IPAddress string    `gorm:"size:45"`
	ExpiresAt time.Time `gorm:"not null"`
	IsRevoked bool      `gorm:"default:false;not null"`
}
