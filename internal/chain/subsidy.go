package chain

// Subsidy constants, grounded in the teacher's linear-emission subsidy
// model (consensus/subsidy.go: SUBSIDY_TOTAL_MINED / SUBSIDY_DURATION_BLOCKS),
// adapted to a MimbleWimble-style fixed per-block reward that simply halves
// on a schedule — closer to the original kepler-network/kepler emission curve
// referenced by original_source/.
const (
	// InitialSubsidy is the block reward paid to the coinbase kernel at
	// height 0, before any halving.
	InitialSubsidy uint64 = 60 * 1_000_000_000 // 60 "coins" at 1e9 minimal units
	// HalvingInterval is the number of blocks between reward halvings.
	HalvingInterval uint64 = 1_051_200 // ~2 years at 60s blocks
)

// Subsidy returns the coinbase reward due at the given height.
func Subsidy(height uint64) uint64 {
	halvings := height / HalvingInterval
	if halvings >= 64 {
		return 0
	}
	return InitialSubsidy >> halvings
}

// Overage is the net issuance adjustment for a block: subsidy minus fees
// collected, per spec GLOSSARY. Every connected block carries exactly one
// coinbase kernel (enforced by the pipeline's block-structure check), so overage is always
// subsidy-at-height minus the fees the block's other kernels paid out.
func Overage(height uint64, feesCollected uint64) int64 {
	return int64(Subsidy(height)) - int64(feesCollected)
}
