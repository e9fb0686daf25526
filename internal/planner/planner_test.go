package planner

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailnexy/internal/clock"
)

func monday(t *testing.T) time.Time {
	t.Helper()
	return time.Date(2026, time.March, 9, 0, 0, 0, 0, time.UTC)
}

func TestPlan_WeekendProducesNoEntries(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	saturday := time.Date(2026, time.March, 7, 0, 0, 0, 0, time.UTC)

	entries, err := Plan(Input{TZ: "UTC", LocalDate: saturday, DailyLimit: 50, Config: clock.DefaultConfig()}, rnd)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPlan_ZeroLimitProducesNoEntries(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	entries, err := Plan(Input{TZ: "UTC", LocalDate: monday(t), DailyLimit: 0, Config: clock.DefaultConfig()}, rnd)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPlan_InvalidTimezone(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	_, err := Plan(Input{TZ: "Not/A_Zone", LocalDate: monday(t), DailyLimit: 10, Config: clock.DefaultConfig()}, rnd)
	assert.Error(t, err)
}

func TestPlan_EntriesFallWithinBusinessHoursAndAreOrdered(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	cfg := clock.DefaultConfig()

	entries, err := Plan(Input{TZ: "UTC", LocalDate: monday(t), DailyLimit: 40, Config: cfg}, rnd)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	for i, e := range entries {
		assert.True(t, clock.IsBusinessHours(e.Local, cfg), "entry %d at %v outside business hours", i, e.Local)
		if i > 0 {
			assert.False(t, e.Local.Before(entries[i-1].Local), "entries must be sorted ascending")
		}
	}
}

func TestPlan_NoTwoEntriesWithinOneMinute(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	entries, err := Plan(Input{TZ: "UTC", LocalDate: monday(t), DailyLimit: 30, Config: clock.DefaultConfig()}, rnd)
	require.NoError(t, err)

	for i := 1; i < len(entries); i++ {
		gap := entries[i].Local.Sub(entries[i-1].Local)
		assert.GreaterOrEqual(t, gap, 60*time.Second)
	}
}

func TestPlan_IsDeterministicForAFixedSeed(t *testing.T) {
	in := Input{TZ: "UTC", LocalDate: monday(t), DailyLimit: 25, Config: clock.DefaultConfig()}

	first, err := Plan(in, rand.New(rand.NewSource(99)))
	require.NoError(t, err)
	second, err := Plan(in, rand.New(rand.NewSource(99)))
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.True(t, first[i].Local.Equal(second[i].Local))
		assert.Equal(t, first[i].Band, second[i].Band)
	}
}

func TestBandCounts_SumsToInputAndRespectsWeights(t *testing.T) {
	counts := bandCounts(100, DefaultBandWeights())
	total := counts[clock.BandPeak] + counts[clock.BandNormal] + counts[clock.BandLow]
	assert.Equal(t, 100, total)
	assert.Equal(t, 60, counts[clock.BandPeak])
	assert.Equal(t, 10, counts[clock.BandLow])
	assert.Equal(t, 30, counts[clock.BandNormal])
}
