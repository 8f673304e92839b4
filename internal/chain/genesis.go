package chain

// Genesis builds the canonical genesis block for a given parameter set: an
// empty body and a header whose PrevHash is the zero hash. Callers that need
// a different genesis payload (e.g. a premine output) build their own header
// and call this only for the zero-value fields.
func Genesis(p Params) *Block {
	h := BlockHeader{
		Version:           1,
		Height:            0,
		PrevHash:          ZeroHash,
		Timestamp:         0,
		TotalDifficulty:   p.GenesisDifficulty,
		OutputMMRSize:     0,
		KernelMMRSize:     0,
		TotalKernelOffset: [32]byte{},
		PoW: ProofOfWork{
			EdgeBits:         p.GenesisEdgeBits,
			SecondaryScaling: 0,
			Nonces:           nil,
		},
	}
	return &Block{Header: h}
}
