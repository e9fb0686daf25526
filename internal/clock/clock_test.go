package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedClock(t *testing.T) {
	at := time.Date(2026, time.March, 5, 10, 0, 0, 0, time.UTC)
	c := Fixed{At: at}
	assert.Equal(t, at, c.Now())
}

func TestNowIn(t *testing.T) {
	at := time.Date(2026, time.March, 5, 12, 0, 0, 0, time.UTC) // Thursday noon UTC
	c := Fixed{At: at}

	local, err := NowIn(c, "America/New_York")
	require.NoError(t, err)
	assert.Equal(t, 7, local.Hour()) // UTC-5: US daylight saving time starts on 8 March 2026

	_, err = NowIn(c, "Not/A_Real_Zone")
	assert.Error(t, err)
}

func TestIsWeekend(t *testing.T) {
	saturday := time.Date(2026, time.March, 7, 12, 0, 0, 0, time.UTC)
	sunday := time.Date(2026, time.March, 8, 12, 0, 0, 0, time.UTC)
	monday := time.Date(2026, time.March, 9, 12, 0, 0, 0, time.UTC)

	assert.True(t, IsWeekend(saturday))
	assert.True(t, IsWeekend(sunday))
	assert.False(t, IsWeekend(monday))
}

func TestIsBusinessHours(t *testing.T) {
	cfg := DefaultConfig()
	monday9am := time.Date(2026, time.March, 9, 9, 0, 0, 0, time.UTC)
	monday8am := time.Date(2026, time.March, 9, 8, 59, 0, 0, time.UTC)
	monday6pm := time.Date(2026, time.March, 9, 18, 0, 0, 0, time.UTC)
	saturday10am := time.Date(2026, time.March, 7, 10, 0, 0, 0, time.UTC)

	assert.True(t, IsBusinessHours(monday9am, cfg))
	assert.False(t, IsBusinessHours(monday8am, cfg))
	assert.False(t, IsBusinessHours(monday6pm, cfg), "end hour is exclusive")
	assert.False(t, IsBusinessHours(saturday10am, cfg))
}

func TestBandFor(t *testing.T) {
	cases := map[int]Band{
		9:  BandPeak,
		10: BandPeak,
		11: BandNormal,
		12: BandLow,
		13: BandLow,
		14: BandPeak,
		15: BandPeak,
		16: BandNormal,
		17: BandNormal,
	}
	for hour, want := range cases {
		assert.Equal(t, want, BandFor(hour), "hour %d", hour)
	}
}
