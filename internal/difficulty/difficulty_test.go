package difficulty

import (
	"testing"

	"wimblechain.dev/node/internal/chain"
)

func TestNextDifficultyStableWindowHoldsDifficulty(t *testing.T) {
	params := chain.AutomatedTest()
	var window []HeaderInfo
	ts := uint64(1000)
	for i := 0; i < params.DifficultyAdjustWindow; i++ {
		window = append(window, HeaderInfo{Timestamp: ts, Difficulty: 100, SecondaryScaling: 4})
		ts += params.BlockTimeSec
	}
	info := NextDifficulty(uint64(len(window)), window, params)
	if info.Difficulty == 0 {
		t.Fatal("difficulty must never be zero")
	}
	// Blocks arriving exactly on schedule should keep difficulty roughly flat.
	if info.Difficulty < 50 || info.Difficulty > 200 {
		t.Fatalf("difficulty drifted too far from stable input: got %d", info.Difficulty)
	}
}

func TestNextDifficultyRisesWhenBlocksArriveFast(t *testing.T) {
	params := chain.Mainnet()
	var window []HeaderInfo
	ts := uint64(1000)
	for i := 0; i < params.DifficultyAdjustWindow; i++ {
		window = append(window, HeaderInfo{Timestamp: ts, Difficulty: 100, SecondaryScaling: 4})
		ts++ // far faster than BlockTimeSec
	}
	info := NextDifficulty(uint64(len(window)), window, params)
	if info.Difficulty <= 100 {
		t.Fatalf("expected difficulty to rise for fast blocks, got %d", info.Difficulty)
	}
}

func TestNextDifficultyNeverZero(t *testing.T) {
	params := chain.AutomatedTest()
	info := NextDifficulty(0, nil, params)
	if info.Difficulty == 0 {
		t.Fatal("difficulty must default to a positive value with an empty window")
	}
}

func TestMedianScalingPicksMiddle(t *testing.T) {
	window := []HeaderInfo{
		{SecondaryScaling: 1},
		{SecondaryScaling: 9},
		{SecondaryScaling: 5},
	}
	if got := medianScaling(window); got != 5 {
		t.Fatalf("median = %d, want 5", got)
	}
}
