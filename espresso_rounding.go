// espresso_rounding.go - FPSCR rounding control

package main

import "math"

// RoundingMode mirrors the four FPSCR.RN encodings onto the host float
// helpers. Go offers no fesetround, so the mode travels with the thread
// state and the conversion helpers consult it.
type RoundingMode int

const (
	RoundNearest RoundingMode = iota
	RoundTowardZero
	RoundUpward
	RoundDownward
)

var roundingModes = [4]RoundingMode{
	RoundNearest, RoundTowardZero, RoundUpward, RoundDownward,
}

// updateRoundingMode maps FPSCR.RN onto the host mode. It runs on every
// resume before guest code executes and on any guest FPSCR write.
func updateRoundingMode(state *ThreadState) {
	state.HostRounding = roundingModes[state.FPSCR&FPSCR_RN_MASK]
}

// roundToNearestEven is the RN=0 integer conversion.
func roundToNearestEven(v float64) float64 {
	return math.RoundToEven(v)
}

// roundByMode applies the active rounding mode to a value being
// converted to integral.
func roundByMode(v float64, mode RoundingMode) float64 {
	switch mode {
	case RoundTowardZero:
		return math.Trunc(v)
	case RoundUpward:
		return math.Ceil(v)
	case RoundDownward:
		return math.Floor(v)
	default:
		return math.RoundToEven(v)
	}
}

// frspRound narrows a double to single precision under the active mode.
// Nearest is the hardware float32 conversion; the directed modes adjust
// when the narrowed value moved the wrong way.
func frspRound(v float64, mode RoundingMode) float64 {
	narrowed := float64(float32(v))
	if mode == RoundNearest || math.IsNaN(narrowed) || math.IsInf(narrowed, 0) {
		return narrowed
	}
	switch mode {
	case RoundTowardZero:
		if math.Abs(narrowed) > math.Abs(v) {
			narrowed = nextSingleToward(narrowed, 0)
		}
	case RoundUpward:
		if narrowed < v {
			narrowed = nextSingleToward(narrowed, math.Inf(1))
		}
	case RoundDownward:
		if narrowed > v {
			narrowed = nextSingleToward(narrowed, math.Inf(-1))
		}
	}
	return narrowed
}

func nextSingleToward(v, dir float64) float64 {
	f := float32(v)
	return float64(math.Nextafter32(f, float32(dir)))
}
