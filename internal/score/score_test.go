package score

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSOpen(t *testing.T) {
	assert.Equal(t, 100.0, sOpen(0.6))
	assert.Equal(t, 100.0, sOpen(0.9))
	assert.Equal(t, 80.0, sOpen(0.4))
	assert.Equal(t, 80.0, sOpen(0.59))
	assert.Equal(t, 60.0, sOpen(0.2))
	assert.Equal(t, 30.0, sOpen(0.1))
	assert.Equal(t, 0.0, sOpen(0))
}

func TestSReply(t *testing.T) {
	assert.Equal(t, 100.0, sReply(0.25))
	assert.Equal(t, 85.0, sReply(0.15))
	assert.Equal(t, 70.0, sReply(0.05))
	assert.Equal(t, 35.0, sReply(0.025))
	assert.Equal(t, 0.0, sReply(0))
}

func TestSPhase(t *testing.T) {
	t.Run("on pace gets base only", func(t *testing.T) {
		got := sPhase(2, 65, 100)
		assert.Equal(t, 65.0, got)
	})
	t.Run("ahead of pace adds bonus", func(t *testing.T) {
		got := sPhase(2, 95, 100)
		assert.Equal(t, 75.0, got)
	})
	t.Run("far behind pace subtracts penalty", func(t *testing.T) {
		got := sPhase(2, 10, 100)
		assert.Equal(t, 50.0, got)
	})
	t.Run("zero target skips pace adjustment", func(t *testing.T) {
		got := sPhase(3, 0, 0)
		assert.Equal(t, 80.0, got)
	})
	t.Run("unknown phase defaults to 50 base", func(t *testing.T) {
		got := sPhase(99, 0, 0)
		assert.Equal(t, 50.0, got)
	})
	t.Run("clamped at 100", func(t *testing.T) {
		got := sPhase(5, 1000, 100)
		assert.Equal(t, 100.0, got)
	})
}

func TestSSpam(t *testing.T) {
	t.Run("low spam rate, good recovery", func(t *testing.T) {
		got := sSpam(0.01, 0.9)
		assert.Equal(t, 100.0, got)
	})
	t.Run("low spam rate, poor recovery", func(t *testing.T) {
		got := sSpam(0.01, 0.2)
		assert.Equal(t, 90.0, got)
	})
	t.Run("moderate spam rate", func(t *testing.T) {
		got := sSpam(0.04, 0.6)
		assert.Equal(t, 85.0, got)
	})
	t.Run("high spam rate clamps at zero floor", func(t *testing.T) {
		got := sSpam(1.0, 0)
		assert.Equal(t, 0.0, got)
	})
}

func TestGrade(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{95, "A+"}, {90, "A+"}, {89.9, "A"}, {80, "A"},
		{79.9, "B"}, {70, "B"}, {69.9, "C"}, {60, "C"},
		{59.9, "D"}, {50, "D"}, {49.9, "F"}, {0, "F"},
	}
	for _, tt := range cases {
		assert.Equal(t, tt.want, grade(tt.score), "score %v", tt.score)
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, clamp(-5, 0, 100))
	assert.Equal(t, 100.0, clamp(150, 0, 100))
	assert.Equal(t, 42.0, clamp(42, 0, 100))
}
