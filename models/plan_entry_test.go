package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlanEntry_CanTransitionTo(t *testing.T) {
	t.Run("pending can move to any terminal state", func(t *testing.T) {
		p := PlanEntry{Status: PlanPending}
		assert.True(t, p.CanTransitionTo(PlanSent))
		assert.True(t, p.CanTransitionTo(PlanFailed))
		assert.True(t, p.CanTransitionTo(PlanSkipped))
	})

	t.Run("pending cannot move back to pending", func(t *testing.T) {
		p := PlanEntry{Status: PlanPending}
		assert.False(t, p.CanTransitionTo(PlanPending))
	})

	t.Run("terminal states never transition again", func(t *testing.T) {
		for _, terminal := range []PlanEntryStatus{PlanSent, PlanFailed, PlanSkipped} {
			p := PlanEntry{Status: terminal}
			assert.False(t, p.CanTransitionTo(PlanSent))
			assert.False(t, p.CanTransitionTo(PlanFailed))
			assert.False(t, p.CanTransitionTo(PlanSkipped))
		}
	})
}
