// Package chain defines the wire types, canonical encoding, and consensus
// constants shared by every layer of the block acceptance pipeline.
package chain

// Params collects the consensus constants that the original upstream keyed
// off a compiled chain type (mainnet/testnet/automated-test). Keeping them as
// a value the pipeline and store both take lets tests run an automated-test
// profile instead of patching globals.
type Params struct {
	// BlockTimeSec is the target seconds between blocks.
	BlockTimeSec uint64
	// CoinbaseMaturity is the number of confirmations a coinbase output
	// needs before it can be spent (spec I5).
	CoinbaseMaturity uint64
	// DifficultyAdjustWindow is the number of trailing headers the
	// difficulty engine looks at.
	DifficultyAdjustWindow int
	// DifficultyDampFactor damps the retarget's measured window timespan
	// toward the target timespan.
	DifficultyDampFactor uint64
	// ClampFactor bounds how far a single retarget may move, expressed as
	// a divisor/multiplier pair (new target in [old/ClampFactor,
	// old*ClampFactor]).
	ClampFactor uint64
	// MaxFutureBlockTimeMultiple bounds how far into the future a header's
	// timestamp may be, expressed as a multiple of BlockTimeSec.
	MaxFutureBlockTimeMultiple uint64
	// MaxBlockWeight bounds total serialized block weight.
	MaxBlockWeight uint64
	// GenesisDifficulty seeds TotalDifficulty at height 0.
	GenesisDifficulty uint64
	// GenesisEdgeBits seeds the genesis header's PoW edge_bits.
	GenesisEdgeBits uint8
}

// Mainnet returns the production consensus parameter set, modeled on
// kepler-network/kepler's defaults (1-minute blocks, 1,440-block coinbase
// maturity, a 60-header difficulty window).
func Mainnet() Params {
	return Params{
		BlockTimeSec:               60,
		CoinbaseMaturity:           1440,
		DifficultyAdjustWindow:     60,
		DifficultyDampFactor:       3,
		ClampFactor:                4,
		MaxFutureBlockTimeMultiple: 12,
		MaxBlockWeight:             4_000_000,
	}
}

// AutomatedTest returns a fast parameter set for property and integration
// tests: short maturity, a small difficulty window, generous future-time
// bound.
func AutomatedTest() Params {
	return Params{
		BlockTimeSec:               1,
		CoinbaseMaturity:           3,
		DifficultyAdjustWindow:     6,
		DifficultyDampFactor:       3,
		ClampFactor:                4,
		MaxFutureBlockTimeMultiple: 720,
		MaxBlockWeight:             4_000_000,
	}
}
