package engagement

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBetaDelay_StaysWithinBounds(t *testing.T) {
	timing := DefaultTiming()
	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		d := betaDelay(rnd, timing.OpenDelayMin, timing.OpenDelayMax)
		assert.GreaterOrEqual(t, d, timing.OpenDelayMin)
		assert.LessOrEqual(t, d, timing.OpenDelayMax)
	}
}

func TestUniformDelay_StaysWithinBounds(t *testing.T) {
	rnd := rand.New(rand.NewSource(2))
	for i := 0; i < 200; i++ {
		d := uniformDelay(rnd, StarDelayMin, StarDelayMax)
		assert.GreaterOrEqual(t, d, StarDelayMin)
		assert.LessOrEqual(t, d, StarDelayMax)
	}
}

func TestUniformDelay_DegenerateRangeReturnsMin(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	d := uniformDelay(rnd, 5*time.Second, 5*time.Second)
	assert.Equal(t, 5*time.Second, d)

	d = uniformDelay(rnd, 10*time.Second, 5*time.Second)
	assert.Equal(t, 10*time.Second, d)
}
