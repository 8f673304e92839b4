package txhashset

import (
	"wimblechain.dev/node/internal/chain"
	"wimblechain.dev/node/internal/store"
)

// Extension is the scoped, save-pointed view over the three body MMRs that
// every block-application path must go through (spec §4.2). It is opened by
// Extending, mutated by ApplyBlock/Rewind, and closed by committing the
// save point (keep the mutations) or rolling it back (discard them) -- never
// both, and never neither.
//
// undo records every outputIndex mutation in the order it happened so a
// rollback can reverse them LIFO, in addition to truncating the three MMRs
// back to their entry sizes: MMR size is not the only state an Extension
// touches, the commitment index must unwind in lock-step or a rolled-back
// extension would leave stale or missing index entries behind.
type Extension struct {
	txh   *TxHashSet
	batch *store.Batch
	head  chain.Tip

	savedOutputSize     uint64
	savedRangeProofSize uint64
	savedKernelSize     uint64

	undo     []func()
	rollback bool
}

// Extending opens a body extension over txh's three body MMRs at head and
// runs fn. If fn returns an error or calls ForceRollback, every mutation fn made
// -- MMR appends/prunes and outputIndex changes alike -- is undone and the
// batch's writes are left for the caller to roll back; rolledBack reports
// which of these happened. If fn succeeds without forcing a rollback, its
// mutations are kept and newHead is the resulting tip.
func Extending(txh *TxHashSet, batch *store.Batch, head chain.Tip, fn func(*Extension) error) (newHead chain.Tip, rolledBack bool, err error) {
	ext := &Extension{txh: txh, batch: batch, head: head}

	ext.savedOutputSize, err = txh.Output.Size()
	if err != nil {
		return chain.Tip{}, false, err
	}
	ext.savedRangeProofSize, err = txh.RangeProof.Size()
	if err != nil {
		return chain.Tip{}, false, err
	}
	ext.savedKernelSize, err = txh.Kernel.Size()
	if err != nil {
		return chain.Tip{}, false, err
	}

	runErr := fn(ext)
	if runErr != nil || ext.rollback {
		for i := len(ext.undo) - 1; i >= 0; i-- {
			ext.undo[i]()
		}
		_ = txh.Output.Rewind(ext.savedOutputSize)
		_ = txh.RangeProof.Rewind(ext.savedRangeProofSize)
		_ = txh.Kernel.Rewind(ext.savedKernelSize)
		return head, true, runErr
	}
	return ext.head, false, nil
}

// ForceRollback marks the current extension to be discarded even though fn
// is about to return nil, used when the pipeline wants to validate a
// candidate block's effects without keeping them (e.g. it does not improve
// on the current chain).
func (e *Extension) ForceRollback() { e.rollback = true }

// Batch returns the store batch this extension is scoped to.
func (e *Extension) Batch() *store.Batch { return e.batch }

// Head returns the tip this extension currently represents.
func (e *Extension) Head() chain.Tip { return e.head }

// IsOnCurrentChain reports whether header is on the chain the shared header
// MMR currently holds (spec §4.2); that chain can run ahead of, or differ
// from, this body extension's own head.
func (e *Extension) IsOnCurrentChain(header chain.BlockHeader) (bool, error) {
	return e.txh.isOnCurrentChain(header)
}

// UTXOView returns a read-only view over this extension's current output
// state, used for UTXO-validity and coinbase-maturity checks.
func (e *Extension) UTXOView() *UTXOView { return &UTXOView{txh: e.txh} }

// ValidateHeaderRoot checks that header is positioned to extend exactly this
// extension's current head, i.e. that no other block has been applied
// in between (spec §4.2 Extension.validate_header_root, simplified: Grin
// additionally roots the header chain into the block header itself, but
// this pipeline's BlockHeader carries no such root field, see DESIGN.md).
func (e *Extension) ValidateHeaderRoot(header chain.BlockHeader) error {
	if header.PrevHash != e.head.LastBlockHash {
		return chain.NewError(chain.KindInvalidBlockHeight, "block does not extend this extension's head")
	}
	return nil
}

// ApplyBlock appends block's outputs/proofs/kernels to the three body MMRs,
// prunes its spent inputs, and advances the extension's head. Every
// business-rule check (UTXO validity, coinbase maturity, sum identity) must
// already have passed before this is called (spec §4.6 step ordering).
func (e *Extension) ApplyBlock(blk *chain.Block) error {
	for _, in := range blk.Inputs {
		entry, ok := e.txh.outputIndex[in.Commitment]
		if !ok {
			return chain.NewError(chain.KindInternal, "apply_block: spent commitment has no index entry")
		}
		if err := e.txh.Output.Remove(entry.Position); err != nil {
			return err
		}
		if err := e.txh.RangeProof.Remove(entry.Position); err != nil {
			return err
		}
		pos := entry.Position
		e.undo = append(e.undo, func() {
			_ = e.txh.Output.Unprune(pos)
			_ = e.txh.RangeProof.Unprune(pos)
		})
	}
	for _, out := range blk.Outputs {
		pos, err := e.txh.Output.Append(outputLeaf(out))
		if err != nil {
			return err
		}
		if _, err := e.txh.RangeProof.Append(rangeProofLeaf(out)); err != nil {
			return err
		}
		e.txh.outputIndex[out.Commitment] = outputEntry{
			Position: pos,
			Height:   blk.Header.Height,
			Coinbase: out.Features&chain.OutputCoinbase != 0,
		}
		commitment := out.Commitment
		e.undo = append(e.undo, func() {
			delete(e.txh.outputIndex, commitment)
		})
	}
	for _, k := range blk.Kernels {
		if _, err := e.txh.Kernel.Append(kernelLeaf(k)); err != nil {
			return err
		}
	}
	e.head = chain.TipFromHeader(blk.Header)
	return nil
}

// ValidateRoots checks that, after ApplyBlock, the three body MMR roots
// match header's declared roots (spec invariant I3).
func (e *Extension) ValidateRoots(header chain.BlockHeader) error {
	outRoot, err := e.txh.Output.Root()
	if err != nil {
		return err
	}
	if outRoot != header.OutputRoot {
		return chain.NewError(chain.KindInvalidBlockProof, "output root mismatch")
	}
	rpRoot, err := e.txh.RangeProof.Root()
	if err != nil {
		return err
	}
	if rpRoot != header.RangeProofRoot {
		return chain.NewError(chain.KindInvalidBlockProof, "range proof root mismatch")
	}
	kRoot, err := e.txh.Kernel.Root()
	if err != nil {
		return err
	}
	if kRoot != header.KernelRoot {
		return chain.NewError(chain.KindInvalidBlockProof, "kernel root mismatch")
	}
	return nil
}

// ValidateSizes checks that, after ApplyBlock, the output and kernel MMR
// sizes match header's declared sizes (spec invariant I3).
func (e *Extension) ValidateSizes(header chain.BlockHeader) error {
	outSize, err := e.txh.Output.Size()
	if err != nil {
		return err
	}
	if outSize != header.OutputMMRSize {
		return chain.NewError(chain.KindInvalidBlockProof, "output MMR size mismatch")
	}
	kSize, err := e.txh.Kernel.Size()
	if err != nil {
		return err
	}
	if kSize != header.KernelMMRSize {
		return chain.NewError(chain.KindInvalidBlockProof, "kernel MMR size mismatch")
	}
	return nil
}

// Rewind walks blocks backward from this extension's current head down to
// toHeader, whose own effects are kept, un-pruning every input spent by the
// blocks above it and removing the index entries for every output they
// introduced, then truncates the body MMRs to toHeader's declared sizes
// (spec §4.2 "rewind to a prior root/size pair"; §9 fork resolution). Every
// index mutation is logged so a later rollback of the enclosing extension
// can restore it.
func (e *Extension) Rewind(toHeader chain.BlockHeader) error {
	if e.head.Height < toHeader.Height {
		return chain.NewError(chain.KindInternal, "rewind target is ahead of extension head")
	}
	cur := e.head.LastBlockHash
	target := toHeader.Hash()
	for cur != target {
		h, err := e.batch.GetBlockHeader(cur)
		if err != nil {
			return err
		}
		if h.Height == 0 {
			// Reached genesis without ever hitting target: toHeader is not
			// actually an ancestor of this extension's current head (e.g. it
			// sits on a branch the body chain never applied while header
			// sync raced ahead of it, spec §9's "two fork points" case).
			// Truncating the MMRs to toHeader's declared sizes here would
			// silently desynchronize body state from what this extension's
			// index believes is live; fail instead.
			return chain.NewError(chain.KindInternal, "rewind target is not an ancestor of this extension's head")
		}
		blk, err := e.batch.GetBlock(cur)
		if err != nil {
			return err
		}
		for _, in := range blk.Inputs {
			if entry, ok := e.txh.outputIndex[in.Commitment]; ok {
				if err := e.txh.Output.Unprune(entry.Position); err != nil {
					return err
				}
				if err := e.txh.RangeProof.Unprune(entry.Position); err != nil {
					return err
				}
				pos := entry.Position
				e.undo = append(e.undo, func() {
					_ = e.txh.Output.Remove(pos)
					_ = e.txh.RangeProof.Remove(pos)
				})
			}
		}
		for _, out := range blk.Outputs {
			if entry, ok := e.txh.outputIndex[out.Commitment]; ok {
				delete(e.txh.outputIndex, out.Commitment)
				commitment := out.Commitment
				e.undo = append(e.undo, func() {
					e.txh.outputIndex[commitment] = entry
				})
			}
		}
		cur = h.PrevHash
	}

	if err := e.txh.Output.Rewind(toHeader.OutputMMRSize); err != nil {
		return err
	}
	if err := e.txh.RangeProof.Rewind(toHeader.OutputMMRSize); err != nil {
		return err
	}
	if err := e.txh.Kernel.Rewind(toHeader.KernelMMRSize); err != nil {
		return err
	}
	e.head = chain.TipFromHeader(toHeader)
	return nil
}

// HeaderExtension is the scoped view over the header MMR alone, used by
// sync_block_headers to accumulate a candidate header chain ahead of the
// full body extension (spec §4.2, §4.5).
type HeaderExtension struct {
	txh   *TxHashSet
	batch *store.Batch
	head  chain.Tip

	savedSize uint64
	rollback  bool
}

// HeaderExtending opens a header-only extension, runs fn, and commits or
// rolls back exactly as Extending does.
func HeaderExtending(txh *TxHashSet, batch *store.Batch, head chain.Tip, fn func(*HeaderExtension) error) (newHead chain.Tip, rolledBack bool, err error) {
	ext := &HeaderExtension{txh: txh, batch: batch, head: head}
	ext.savedSize, err = txh.Header.Size()
	if err != nil {
		return chain.Tip{}, false, err
	}

	runErr := fn(ext)
	if runErr != nil || ext.rollback {
		_ = txh.Header.Rewind(ext.savedSize)
		return head, true, runErr
	}
	return ext.head, false, nil
}

// SyncExtending opens a header-only extension scoped to the scratch sync
// head rather than the canonical header head, used while validating a batch
// of headers received from a peer before they are adopted (spec §4.5).
func SyncExtending(txh *TxHashSet, batch *store.Batch, head chain.Tip, fn func(*HeaderExtension) error) (chain.Tip, bool, error) {
	return HeaderExtending(txh, batch, head, fn)
}

// ForceRollback marks the current header extension to be discarded even
// though fn is about to return nil.
func (e *HeaderExtension) ForceRollback() { e.rollback = true }

// Batch returns the store batch this extension is scoped to.
func (e *HeaderExtension) Batch() *store.Batch { return e.batch }

// Head returns the tip this extension currently represents.
func (e *HeaderExtension) Head() chain.Tip { return e.head }

// IsOnCurrentChain reports whether header is an ancestor of this extension's
// head, via the shared header MMR.
func (e *HeaderExtension) IsOnCurrentChain(header chain.BlockHeader) (bool, error) {
	return e.txh.isOnCurrentChain(header)
}

// ValidateRoot checks that header extends exactly this extension's current
// head before it is appended to the header MMR.
func (e *HeaderExtension) ValidateRoot(header chain.BlockHeader) error {
	if header.PrevHash != e.head.LastBlockHash {
		return chain.NewError(chain.KindInvalidBlockHeight, "header does not extend this extension's head")
	}
	return nil
}

// ApplyHeader appends header's hash to the header MMR at position ==
// header.Height and advances the extension's head.
func (e *HeaderExtension) ApplyHeader(header chain.BlockHeader) error {
	size, err := e.txh.Header.Size()
	if err != nil {
		return err
	}
	if size != header.Height {
		return chain.NewError(chain.KindInternal, "apply_header: header MMR size does not equal header height")
	}
	if _, err := e.txh.Header.Append(header.Hash()); err != nil {
		return err
	}
	e.head = chain.TipFromHeader(header)
	return nil
}

// Rewind truncates the header MMR back to toHeader.Height+1 leaves.
func (e *HeaderExtension) Rewind(toHeader chain.BlockHeader) error {
	if err := e.txh.Header.Rewind(toHeader.Height + 1); err != nil {
		return err
	}
	e.head = chain.TipFromHeader(toHeader)
	return nil
}
