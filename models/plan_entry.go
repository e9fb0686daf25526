package models

import (
	"time"

	"gorm.io/gorm"
)

// Band is the time-of-day bucket a planned send falls into.
type Band string

const (
	BandPeak   Band = "PEAK"
	BandNormal Band = "NORMAL"
	BandLow    Band = "LOW"
)

// PlanEntryStatus tracks a PlanEntry's one-way lifecycle: PENDING -> one of
// {SENT, FAILED, SKIPPED}.
type PlanEntryStatus string

const (
	PlanPending PlanEntryStatus = "PENDING"
	PlanSent    PlanEntryStatus = "SENT"
	PlanFailed  PlanEntryStatus = "FAILED"
	PlanSkipped PlanEntryStatus = "SKIPPED"
)

// PlanEntry is one intended send produced by the Schedule Planner (C3) and
// consumed by the Dispatcher (C5), per spec.md §3.
type PlanEntry struct {
	gorm.Model

	SenderID  uint      `gorm:"not null;index:idx_plan_sender_date" json:"sender_id"`
	LocalDate time.Time `gorm:"not null;index:idx_plan_sender_date" json:"local_date"`
	FireAt    time.Time `gorm:"not null;index:idx_plan_status_fire" json:"fire_at"`
	Band      Band      `gorm:"not null" json:"band"`

	Status PlanEntryStatus `gorm:"not null;default:'PENDING';index:idx_plan_status_fire" json:"status"`

	MessageID *uint   `json:"message_id,omitempty"`
	Attempts  int     `gorm:"default:0" json:"attempts"`
	LastError *string `json:"last_error,omitempty"`

	Sender *Mailbox `gorm:"foreignKey:SenderID" json:"-"`
}

// CanTransitionTo enforces the one-way PENDING -> {SENT,FAILED,SKIPPED}
// transition invariant from spec.md §3.
func (p *PlanEntry) CanTransitionTo(next PlanEntryStatus) bool {
	if p.Status != PlanPending {
		return false
	}
	switch next {
	case PlanSent, PlanFailed, PlanSkipped:
		return true
	default:
		return false
	}
}
