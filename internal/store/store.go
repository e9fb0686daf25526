// Package store implements the Schedule Store (C4): persistence and
// lifecycle management for PlanEntry rows, plus the per-row serialization
// that keeps two dispatcher workers from ever sending the same entry twice.
package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mailnexy/internal/apperr"
	"mailnexy/internal/clock"
	"mailnexy/models"
)

// Retention is the default PlanEntry retention window, per spec.md §4.4.
const Retention = 7 * 24 * time.Hour

type Store struct {
	DB *gorm.DB

	// Grace and Window bound due_pending's lookback/lookahead, per spec.md
	// §6 Configuration (plan.grace_window / plan.fire_window).
	Grace  time.Duration
	Window time.Duration
}

func New(db *gorm.DB, grace, window time.Duration) *Store {
	return &Store{DB: db, Grace: grace, Window: window}
}

// UpsertPlan replaces the PENDING tail for (senderID, localDate). It is
// idempotent and only ever deletes PENDING rows — SENT/FAILED/SKIPPED rows
// from an earlier plan for the same day are left untouched, since
// spec.md's replacement rule only allows rewriting entries that haven't
// dispatched yet.
func (s *Store) UpsertPlan(ctx context.Context, senderID uint, localDate time.Time, entries []PlannedEntry) error {
	day := clock.LocalMidnight(localDate)

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("sender_id = ? AND local_date = ? AND status = ?", senderID, day, models.PlanPending).
			Delete(&models.PlanEntry{}).Error; err != nil {
			return apperr.New("store.upsert_plan.delete", apperr.KindTransientNetwork, err)
		}

		rows := make([]models.PlanEntry, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, models.PlanEntry{
				SenderID:  senderID,
				LocalDate: day,
				FireAt:    e.FireAt,
				Band:      models.Band(e.Band),
				Status:    models.PlanPending,
			})
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.Create(&rows).Error; err != nil {
			return apperr.New("store.upsert_plan.create", apperr.KindTransientNetwork, err)
		}
		return nil
	})
}

// PlannedEntry is the planner's output shape, decoupled from the models
// package so internal/planner doesn't need to import models.
type PlannedEntry struct {
	FireAt time.Time
	Band   string
}

// DuePending returns PENDING entries whose fire_at falls in
// (now-grace, now+window], per spec.md §4.4, eager-loading the Sender so
// the dispatcher can group by timezone without a second query.
func (s *Store) DuePending(ctx context.Context, now time.Time) ([]models.PlanEntry, error) {
	var entries []models.PlanEntry
	lo := now.Add(-s.Grace)
	hi := now.Add(s.Window)
	err := s.DB.WithContext(ctx).
		Preload("Sender").
		Where("status = ? AND fire_at > ? AND fire_at <= ?", models.PlanPending, lo, hi).
		Order("fire_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, apperr.New("store.due_pending", apperr.KindTransientNetwork, err)
	}
	return entries, nil
}

// HasPlanFor reports whether any PlanEntry exists for (senderID, localDate),
// used by the dispatcher to decide whether to trigger the planner.
func (s *Store) HasPlanFor(ctx context.Context, senderID uint, localDate time.Time) (bool, error) {
	day := clock.LocalMidnight(localDate)
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.PlanEntry{}).
		Where("sender_id = ? AND local_date = ?", senderID, day).
		Count(&count).Error
	if err != nil {
		return false, apperr.New("store.has_plan_for", apperr.KindTransientNetwork, err)
	}
	return count > 0, nil
}

// Mark performs the one-way PENDING→{SENT,FAILED,SKIPPED} transition via a
// single conditional UPDATE, per spec.md §4.4's concurrency note — this is
// the compare-and-swap that makes due_pending+mark serializable per row
// without a separate row lock, keeping the engine a single stateless
// process that can scale horizontally (spec.md §9).
//
// ErrAlreadyMarked is returned when the conditional UPDATE affected zero
// rows, meaning another worker already transitioned this entry; callers
// must treat that as spec.md §7's DuplicateDispatch kind and skip silently.
var ErrAlreadyMarked = errors.New("store: plan entry already marked")

func (s *Store) Mark(ctx context.Context, entryID uint, status models.PlanEntryStatus, messageID *uint, lastErr *string) error {
	updates := map[string]interface{}{"status": status}
	if messageID != nil {
		updates["message_id"] = *messageID
	}
	if lastErr != nil {
		updates["last_error"] = *lastErr
		updates["attempts"] = gorm.Expr("attempts + 1")
	}

	res := s.DB.WithContext(ctx).Model(&models.PlanEntry{}).
		Where("id = ? AND status = ?", entryID, models.PlanPending).
		Updates(updates)
	if res.Error != nil {
		return apperr.New("store.mark", apperr.KindTransientNetwork, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.New("store.mark", apperr.KindDuplicateDispatch, ErrAlreadyMarked)
	}
	return nil
}

// SkipFuturePlans marks every PENDING entry for senderID with fire_at after
// from as SKIPPED, used when a mailbox is paused as needs-reauth per
// spec.md §4.5 / §7.
func (s *Store) SkipFuturePlans(ctx context.Context, senderID uint, from time.Time) error {
	err := s.DB.WithContext(ctx).Model(&models.PlanEntry{}).
		Where("sender_id = ? AND status = ? AND fire_at > ?", senderID, models.PlanPending, from).
		Update("status", models.PlanSkipped).Error
	if err != nil {
		return apperr.New("store.skip_future_plans", apperr.KindTransientNetwork, err)
	}
	return nil
}

// LockForUpdate fetches a single PlanEntry with SELECT ... FOR UPDATE SKIP
// LOCKED inside an active transaction, for callers that need to inspect an
// entry before deciding how to mark it without racing a concurrent
// dispatcher. The dispatcher does not call it; its guard against double
// dispatch is Mark's conditional UPDATE alone.
func (s *Store) LockForUpdate(tx *gorm.DB, entryID uint) (*models.PlanEntry, error) {
	var entry models.PlanEntry
	err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("id = ?", entryID).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.New("store.lock_for_update", apperr.KindTransientNetwork, err)
	}
	return &entry, nil
}

// Purge deletes PlanEntry rows older than olderThan (default 7 days), per
// spec.md §4.4's retention window.
func (s *Store) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	res := s.DB.WithContext(ctx).Unscoped().Where("local_date < ?", olderThan).Delete(&models.PlanEntry{})
	if res.Error != nil {
		return 0, apperr.New("store.purge", apperr.KindTransientNetwork, res.Error)
	}
	return res.RowsAffected, nil
}
