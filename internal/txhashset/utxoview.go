package txhashset

import (
	"wimblechain.dev/node/internal/chain"
)

// UTXOView is a read-only snapshot of an Extension's current output state,
// used by the pipeline's validate_utxo and verify_coinbase_maturity steps
// (spec §4.6, grounded on pipe.rs validate_utxo/verify_coinbase_maturity).
type UTXOView struct {
	txh *TxHashSet
}

// Exists reports whether an output with this commitment has ever been
// created on the current chain (spent or not).
func (v *UTXOView) Exists(c chain.Commitment) bool {
	_, ok := v.txh.outputIndex[c]
	return ok
}

// IsUnspent reports whether an output with this commitment exists and has
// not been spent.
func (v *UTXOView) IsUnspent(c chain.Commitment) (bool, error) {
	entry, ok := v.txh.outputIndex[c]
	if !ok {
		return false, nil
	}
	pruned, err := v.txh.Output.Pruned(entry.Position)
	if err != nil {
		return false, err
	}
	return !pruned, nil
}

// ValidateBlock checks every input spends an existing, unspent output and no
// output collides with one already on the chain.
func (v *UTXOView) ValidateBlock(blk *chain.Block) error {
	for _, in := range blk.Inputs {
		unspent, err := v.IsUnspent(in.Commitment)
		if err != nil {
			return err
		}
		if !unspent {
			return chain.NewError(chain.KindInvalidBlockProof, "input spends a missing or already-spent output")
		}
	}
	for _, out := range blk.Outputs {
		if v.Exists(out.Commitment) {
			return chain.NewError(chain.KindInvalidBlockProof, "output commitment already exists on this chain")
		}
	}
	return nil
}

// VerifyCoinbaseMaturity checks that every coinbase-sourced input being
// spent at spendHeight is at least maturity blocks old (spec invariant I5,
// grounded on pipe.rs verify_coinbase_maturity).
func (v *UTXOView) VerifyCoinbaseMaturity(inputs chain.InputList, spendHeight uint64, maturity uint64) error {
	for _, in := range inputs {
		if in.Features&chain.OutputCoinbase == 0 {
			continue
		}
		entry, ok := v.txh.outputIndex[in.Commitment]
		if !ok {
			return chain.NewError(chain.KindInvalidBlockProof, "coinbase input has no matching output")
		}
		if !entry.Coinbase {
			return chain.NewError(chain.KindInvalidBlockProof, "input claims coinbase features but output was plain")
		}
		if entry.Height+maturity > spendHeight {
			return chain.NewError(chain.KindInvalidBlockProof, "coinbase output has not yet matured")
		}
	}
	return nil
}
