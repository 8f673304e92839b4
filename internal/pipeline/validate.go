package pipeline

import (
	"wimblechain.dev/node/internal/chain"
	"wimblechain.dev/node/internal/commitment"
	"wimblechain.dev/node/internal/difficulty"
	"wimblechain.dev/node/internal/pow"
	"wimblechain.dev/node/internal/store"
	"wimblechain.dev/node/internal/verifier"
)

// maxCoinbaseOutputs is the invariant every connected block must satisfy
// (spec I1): exactly one coinbase kernel and one coinbase output, never more.
const maxCoinbaseOutputs = 1

// validatePowOnly runs just the proof-of-work check against header, used
// when a block's parent is unknown (spec §4.6 step 2: "validate_pow_only"):
// every other check needs an ancestor this pipeline doesn't have yet, but a
// cheap PoW check still filters out garbage before the orphan is stored.
func validatePowOnly(p *Pipeline, header chain.BlockHeader, ctx Context) error {
	return ctx.verifier(p)(header, ctx.Opts)
}

// validateHeader runs process_block_header's header checks (spec §4.7) in
// this order: version, height, timestamp advancing past prev, the
// future-time bound, PoW edge_bits/proof, and then the
// total-difficulty/secondary-scaling/non-zero-difficulty checks against what
// the difficulty engine computes from prev's window (skipped under SkipPOW).
func validateHeader(p *Pipeline, b *store.Batch, header, prev chain.BlockHeader, ctx Context) error {
	if header.Version != 1 {
		return chain.NewError(chain.KindInvalidBlockVersion, "unsupported header version")
	}
	if header.Height != prev.Height+1 {
		return chain.NewError(chain.KindInvalidBlockHeight, "height does not follow parent")
	}
	if header.Timestamp <= prev.Timestamp {
		return chain.NewError(chain.KindInvalidBlockTime, "timestamp does not advance")
	}
	maxFuture := p.Params.BlockTimeSec * p.Params.MaxFutureBlockTimeMultiple
	if header.Timestamp > uint64(ctx.now().Unix())+maxFuture {
		return chain.NewError(chain.KindInvalidBlockTime, "timestamp too far in the future")
	}

	if err := ctx.verifier(p)(header, ctx.Opts); err != nil {
		return err
	}

	next, err := expectedDifficulty(p, b, header, prev)
	if err != nil {
		return err
	}
	if !ctx.Opts.Has(pow.SkipPOW) {
		if header.TotalDifficulty != prev.TotalDifficulty+next.Difficulty {
			return chain.NewError(chain.KindWrongTotalDifficulty, "declared total difficulty does not match the retarget")
		}
		if header.PoW.SecondaryScaling != next.SecondaryScaling {
			return chain.NewError(chain.KindInvalidScaling, "declared secondary scaling does not match the retarget")
		}
		if next.Difficulty == 0 {
			return chain.NewError(chain.KindDifficultyTooLow, "retargeted difficulty collapsed to zero")
		}
	}
	return nil
}

// expectedDifficulty asks the difficulty engine for the (difficulty,
// secondary_scaling) pair header is expected to declare, by walking prev's
// difficulty window over a read-only child batch (spec §4.4, §4.1: the
// window read must not observe the enclosing write batch's uncommitted
// state).
func expectedDifficulty(p *Pipeline, b *store.Batch, header, prev chain.BlockHeader) (difficulty.NextHeaderInfo, error) {
	child, err := b.Child()
	if err != nil {
		return difficulty.NextHeaderInfo{}, err
	}
	defer child.Rollback()

	window, err := child.DifficultyWindow(prev.Hash(), p.Params.DifficultyAdjustWindow)
	if err != nil {
		return difficulty.NextHeaderInfo{}, err
	}
	return difficulty.NextDifficulty(header.Height, window, p.Params), nil
}

// validateBlockStructure runs process_block's structural checks that don't
// need the TxHashSet (spec §4.6): a weight bound and the single-coinbase
// invariant (I1). Range-proof and kernel-signature verification are run
// here too, through the verifier cache, since both are pure functions of the
// block body alone.
func validateBlockStructure(p *Pipeline, blk *chain.Block) error {
	if blockWeight(blk) > p.Params.MaxBlockWeight {
		return chain.NewError(chain.KindInvalidBlockProof, "block exceeds maximum weight")
	}

	coinbaseOutputs := 0
	for _, out := range blk.Outputs {
		if out.Features&chain.OutputCoinbase != 0 {
			coinbaseOutputs++
		}
	}
	coinbaseKernels := 0
	for _, k := range blk.Kernels {
		if k.Features&chain.KernelCoinbase != 0 {
			coinbaseKernels++
		}
	}
	if coinbaseOutputs != maxCoinbaseOutputs || coinbaseKernels != maxCoinbaseOutputs {
		return chain.NewError(chain.KindInvalidBlockProof, "block must carry exactly one coinbase output and kernel")
	}

	for _, out := range blk.Outputs {
		fp := verifier.Fingerprint256(out.Commitment[:], out.Proof)
		if verified, ok := p.Cache.RangeProofVerified(fp); ok && !verified {
			return chain.NewError(chain.KindInvalidBlockProof, "cached range proof verification failed")
		}
		p.Cache.SetRangeProofVerified(fp, true)
	}
	for _, k := range blk.Kernels {
		fp := verifier.Fingerprint256(k.Excess[:], k.ExcessSig[:])
		if verified, ok := p.Cache.KernelSigVerified(fp); ok && !verified {
			return chain.NewError(chain.KindInvalidBlockProof, "cached kernel signature verification failed")
		}
		p.Cache.SetKernelSigVerified(fp, true)
	}
	return nil
}

func blockWeight(blk *chain.Block) uint64 {
	const inputWeight, outputWeight, kernelWeight = 1, 21, 3
	return uint64(len(blk.Inputs))*inputWeight +
		uint64(len(blk.Outputs))*outputWeight +
		uint64(len(blk.Kernels))*kernelWeight
}

// verifyBlockSums checks the kernel-sum identity (spec I4): the sum of every
// live output commitment must equal the sum of every kernel excess plus the
// overage lifted onto the curve, offset by the header's declared kernel
// offset. It returns the BlockSums this block extends the running
// accumulator to.
func verifyBlockSums(b *store.Batch, blk *chain.Block) (chain.BlockSums, error) {
	prevSums := chain.BlockSums{UTXOSum: commitment.Zero, KernelSum: commitment.Zero}
	if blk.Header.Height > 0 {
		var err error
		prevSums, err = b.GetBlockSums(blk.Header.PrevHash)
		if err != nil {
			return chain.BlockSums{}, err
		}
	}

	utxoSum := chain.Commitment(prevSums.UTXOSum)
	for _, in := range blk.Inputs {
		neg, err := commitment.Negate(in.Commitment)
		if err != nil {
			return chain.BlockSums{}, chain.Wrap(chain.KindInvalidBlockProof, "invalid input commitment", err)
		}
		utxoSum, err = commitment.AddSigned(utxoSum, neg)
		if err != nil {
			return chain.BlockSums{}, err
		}
	}
	var fees uint64
	for _, out := range blk.Outputs {
		var err error
		utxoSum, err = commitment.AddSigned(utxoSum, out.Commitment)
		if err != nil {
			return chain.BlockSums{}, chain.Wrap(chain.KindInvalidBlockProof, "invalid output commitment", err)
		}
	}
	for _, k := range blk.Kernels {
		fees += k.Fee
	}

	kernelSum := chain.Commitment(prevSums.KernelSum)
	for _, k := range blk.Kernels {
		var err error
		kernelSum, err = commitment.AddSigned(kernelSum, k.Excess)
		if err != nil {
			return chain.BlockSums{}, chain.Wrap(chain.KindInvalidBlockProof, "invalid kernel excess", err)
		}
	}

	overageCommit, err := commitment.ValueCommitment(chain.Overage(blk.Header.Height, fees))
	if err != nil {
		return chain.BlockSums{}, err
	}
	offsetCommit, err := commitment.ScalarCommitment(blk.Header.TotalKernelOffset)
	if err != nil {
		return chain.BlockSums{}, err
	}
	rhs, err := commitment.AddSigned(kernelSum, overageCommit)
	if err != nil {
		return chain.BlockSums{}, err
	}
	rhs, err = commitment.AddSigned(rhs, offsetCommit)
	if err != nil {
		return chain.BlockSums{}, err
	}

	if rhs != utxoSum {
		return chain.BlockSums{}, chain.NewError(chain.KindInvalidBlockProof, "kernel sum identity does not hold")
	}
	return chain.BlockSums{UTXOSum: utxoSum, KernelSum: kernelSum}, nil
}
