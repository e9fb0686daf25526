// Package planner implements the Schedule Planner (C3): for a
// (sender, local_date) it produces an ordered list of absolute send
// timestamps, per spec.md §4.3.
package planner

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"mailnexy/internal/clock"
)

// hourRange is a half-open [Start, End) local hour window.
type hourRange struct {
	Start, End int
}

func (r hourRange) lengthMinutes() float64 {
	return float64(r.End-r.Start) * 60
}

// bandRanges mirrors clock.BandFor's fixed hour buckets from spec.md §4.1.
var bandRanges = map[clock.Band][]hourRange{
	clock.BandPeak:   {{9, 11}, {14, 16}},
	clock.BandNormal: {{11, 12}, {16, 18}},
	clock.BandLow:    {{12, 14}},
}

// BandWeights controls how a day's DailyLimit splits across the
// peak/normal/low time-of-day bands, per spec.md §6 Configuration
// (bands.peak_weight / normal_weight / low_weight). Callers should supply
// config.AppConfig.Bands; DefaultBandWeights is used when Input.Bands is
// left at its zero value (e.g. in tests).
type BandWeights struct {
	Peak, Normal, Low float64
}

// DefaultBandWeights mirrors spec.md §4.3's fixed 0.6/0.3/0.1 split.
func DefaultBandWeights() BandWeights {
	return BandWeights{Peak: 0.6, Normal: 0.3, Low: 0.1}
}

// Input describes the mailbox and date being planned for.
type Input struct {
	TZ         string
	LocalDate  time.Time // midnight local, date component only
	DailyLimit int
	Config     clock.Config
	Bands      BandWeights
}

// Entry is one planned send: its local clock time and absolute UTC instant.
type Entry struct {
	Local time.Time
	UTC   time.Time
	Band  clock.Band
}

// Plan produces the ordered list of send entries for in, drawing randomness
// from rnd so callers can seed it deterministically in tests (spec.md §9:
// "every sampling site receives a random source explicitly").
func Plan(in Input, rnd *rand.Rand) ([]Entry, error) {
	loc, err := time.LoadLocation(in.TZ)
	if err != nil {
		return nil, err
	}
	localDate := clock.LocalMidnight(in.LocalDate.In(loc))

	if clock.IsWeekend(localDate) {
		return nil, nil
	}

	n := in.DailyLimit
	if n <= 0 {
		return nil, nil
	}

	weights := in.Bands
	if weights == (BandWeights{}) {
		weights = DefaultBandWeights()
	}
	counts := bandCounts(n, weights)

	jitter := distuv.Normal{Mu: 0, Sigma: 180, Src: rnd} // seconds, ~3min stddev

	var entries []Entry
	for band, count := range counts {
		for i := 0; i < count; i++ {
			t, ok := sampleOne(band, localDate, in.Config, jitter, rnd, entries)
			if !ok {
				// Narrow business window or repeated collisions: skip this
				// entry rather than loop forever. daily_limit is an upper
				// bound (spec.md §4.11).
				continue
			}
			entries = append(entries, Entry{Local: t, UTC: t.In(time.UTC), Band: band})
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Local.Before(entries[j].Local) })
	return entries, nil
}

// bandCounts splits N into {peak, normal, low} using w, clamped to be
// non-negative and to sum to N.
func bandCounts(n int, w BandWeights) map[clock.Band]int {
	peak := int(math.Round(w.Peak * float64(n)))
	low := int(math.Round(w.Low * float64(n)))
	if peak > n {
		peak = n
	}
	if low > n-peak {
		low = n - peak
	}
	normal := n - peak - low
	if normal < 0 {
		normal = 0
	}
	return map[clock.Band]int{
		clock.BandPeak:   peak,
		clock.BandNormal: normal,
		clock.BandLow:    low,
	}
}

// sampleOne draws one candidate timestamp for band on localDate, retrying
// against business-hours and 60s-duplicate rejection up to a bounded number
// of attempts.
func sampleOne(band clock.Band, localDate time.Time, cfg clock.Config, jitter distuv.Normal, rnd *rand.Rand, existing []Entry) (time.Time, bool) {
	ranges := bandRanges[band]

	for attempt := 0; attempt < 50; attempt++ {
		sub := pickWeightedRange(ranges, rnd)
		spanMinutes := (sub.End - sub.Start) * 60
		offsetMin := rnd.Float64() * float64(spanMinutes)

		t := localDate.Add(time.Duration(sub.Start) * time.Hour).Add(time.Duration(offsetMin * float64(time.Minute)))

		t = t.Add(time.Duration(jitter.Rand()) * time.Second)
		t = t.Add(time.Duration(rnd.Intn(61)-30) * time.Second)

		if !clock.IsBusinessHours(t, cfg) {
			continue
		}
		if tooClose(t, existing) {
			continue
		}
		return t, true
	}
	return time.Time{}, false
}

func tooClose(t time.Time, existing []Entry) bool {
	for _, e := range existing {
		d := t.Sub(e.Local)
		if d < 0 {
			d = -d
		}
		if d < 60*time.Second {
			return true
		}
	}
	return false
}

// pickWeightedRange chooses among ranges proportionally to each range's
// length, so the chosen instant is uniform over the union of hour ranges by
// length (spec.md §4.3 step 3).
func pickWeightedRange(ranges []hourRange, rnd *rand.Rand) hourRange {
	if len(ranges) == 1 {
		return ranges[0]
	}
	var total float64
	for _, r := range ranges {
		total += r.lengthMinutes()
	}
	x := rnd.Float64() * total
	for _, r := range ranges {
		if x < r.lengthMinutes() {
			return r
		}
		x -= r.lengthMinutes()
	}
	return ranges[len(ranges)-1]
}
