package phase

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluate_NotStarted(t *testing.T) {
	r := Evaluate(0, 500)
	assert.Equal(t, Result{Phase: 0, DailyLimit: 0}, r)
}

func TestEvaluate_PhaseBoundaries(t *testing.T) {
	tests := []struct {
		name       string
		warmupDay  int
		target     int
		wantPhase  int
		wantLimit  int
	}{
		{"day 1 of phase 1, floor beats minimum", 1, 1000, 1, 100},
		{"day 1 of phase 1, minimum beats floor", 1, 20, 1, 5},
		{"day 7 still phase 1", 7, 1000, 1, 100},
		{"day 8 enters phase 2", 8, 1000, 2, 250},
		{"day 14 still phase 2", 14, 1000, 2, 250},
		{"day 15 enters phase 3", 15, 1000, 3, 500},
		{"day 21 still phase 3", 21, 1000, 3, 500},
		{"day 22 enters phase 4", 22, 1000, 4, 750},
		{"day 28 still phase 4", 28, 1000, 4, 750},
		{"day 29 reaches full target", 29, 1000, 5, 1000},
		{"far beyond day 29 stays at target", 90, 1000, 5, 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Evaluate(tt.warmupDay, tt.target)
			assert.Equal(t, tt.wantPhase, r.Phase)
			assert.Equal(t, tt.wantLimit, r.DailyLimit)
		})
	}
}

func TestIsPhaseBoundary(t *testing.T) {
	boundaries := map[int]bool{
		1: true, 2: false, 7: false,
		8: true, 9: false, 14: false,
		15: true, 21: false,
		22: true, 28: false,
		29: true, 30: false, 100: false,
	}
	for day, want := range boundaries {
		assert.Equal(t, want, IsPhaseBoundary(day), "day %d", day)
	}
}
