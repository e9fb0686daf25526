// Package phase implements the warmup ramp (C2): mapping a mailbox's
// (warmup_day, target) pair to a phase number and daily send limit, per
// spec.md §4.2.
package phase

import "math"

// Result is the outcome of evaluating the phase model for one mailbox.
type Result struct {
	Phase      int
	DailyLimit int
}

// Evaluate returns the phase (1-5) and daily_limit for warmupDay and target.
// warmupDay == 0 means "not started": limit 0, phase 0.
func Evaluate(warmupDay, target int) Result {
	if warmupDay <= 0 {
		return Result{Phase: 0, DailyLimit: 0}
	}

	switch {
	case warmupDay <= 7:
		return Result{Phase: 1, DailyLimit: maxInt(5, floorFrac(target, 0.10))}
	case warmupDay <= 14:
		return Result{Phase: 2, DailyLimit: maxInt(10, floorFrac(target, 0.25))}
	case warmupDay <= 21:
		return Result{Phase: 3, DailyLimit: maxInt(15, floorFrac(target, 0.50))}
	case warmupDay <= 28:
		return Result{Phase: 4, DailyLimit: maxInt(20, floorFrac(target, 0.75))}
	default:
		return Result{Phase: 5, DailyLimit: target}
	}
}

// IsPhaseBoundary reports whether warmupDay is the first day of a new
// phase (1, 8, 15, 22 or 29), the observable event the Day Advancer (C9)
// must log.
func IsPhaseBoundary(warmupDay int) bool {
	switch warmupDay {
	case 1, 8, 15, 22, 29:
		return true
	default:
		return false
	}
}

func floorFrac(target int, frac float64) int {
	return int(math.Floor(float64(target) * frac))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
