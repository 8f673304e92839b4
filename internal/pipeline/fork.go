package pipeline

import (
	"wimblechain.dev/node/internal/chain"
	"wimblechain.dev/node/internal/txhashset"
)

// forkHashes walks backward from cur until it reaches a header the extension
// already recognizes as being on its current chain (or genesis), collecting
// every header hash strictly above that point, newest first. That header is
// the fork point; hashes is everything on cur's branch that needs reapplying
// on top of it. Only this one fork point, on cur's own branch, is computed;
// where header_head's branch forks off is not.
func forkHashes(batch interface {
	GetBlockHeader(chain.Hash) (chain.BlockHeader, error)
}, onChain func(chain.BlockHeader) (bool, error), cur chain.BlockHeader) (forkPoint chain.BlockHeader, hashes []chain.Hash, err error) {
	for {
		known, err := onChain(cur)
		if err != nil {
			return chain.BlockHeader{}, nil, err
		}
		if known || cur.Height == 0 {
			return cur, hashes, nil
		}
		hashes = append(hashes, cur.Hash())
		cur, err = batch.GetBlockHeader(cur.PrevHash)
		if err != nil {
			return chain.BlockHeader{}, nil, err
		}
	}
}

// reverse returns hashes oldest-first, given forkHashes' newest-first order.
func reverse(hashes []chain.Hash) []chain.Hash {
	out := make([]chain.Hash, len(hashes))
	for i, h := range hashes {
		out[len(hashes)-1-i] = h
	}
	return out
}

// rewindAndApplyHeaderFork makes ext's header MMR represent prevHeader's
// branch: it walks back to the common ancestor (a no-op rewind when
// prevHeader is already the extension's current tip) and replays every
// header on prevHeader's branch back in (spec §4.9, §4.5). prevHeader being
// merely an ancestor further back than the current tip still requires
// rewinding the extension down to it before the new header can extend it --
// forkHashes/Rewind handle that uniformly, so there is no separate
// short-circuit here.
func rewindAndApplyHeaderFork(prevHeader chain.BlockHeader, ext *txhashset.HeaderExtension) error {
	forkPoint, hashes, err := forkHashes(ext.Batch(), ext.IsOnCurrentChain, prevHeader)
	if err != nil {
		return err
	}
	if err := ext.Rewind(forkPoint); err != nil {
		return err
	}
	for _, h := range reverse(hashes) {
		header, err := ext.Batch().GetBlockHeader(h)
		if err != nil {
			return err
		}
		if err := ext.ValidateRoot(header); err != nil {
			return err
		}
		if err := ext.ApplyHeader(header); err != nil {
			return err
		}
	}
	return nil
}

// rewindAndApplyFork is rewindAndApplyHeaderFork's body-extension
// counterpart: it makes ext represent prevHeader's branch by rewinding to
// the fork point (a no-op rewind when prevHeader is already the current
// tip) and replaying every full block on prevHeader's branch, re-running
// the same UTXO/sum checks those blocks passed the first time (spec §4.9,
// §4.6). headerHead is unused beyond documenting that this is only ever
// called after the header side has already advanced to at least prevHeader.
func rewindAndApplyFork(p *Pipeline, prevHeader chain.BlockHeader, headerHead chain.Tip, ext *txhashset.Extension) error {
	forkPoint, hashes, err := forkHashes(ext.Batch(), ext.IsOnCurrentChain, prevHeader)
	if err != nil {
		return err
	}
	if err := ext.Rewind(forkPoint); err != nil {
		return err
	}
	for _, h := range reverse(hashes) {
		blk, err := ext.Batch().GetBlock(h)
		if err != nil {
			return err
		}
		view := ext.UTXOView()
		if err := view.VerifyCoinbaseMaturity(blk.Inputs, blk.Header.Height, p.Params.CoinbaseMaturity); err != nil {
			return err
		}
		if err := view.ValidateBlock(blk); err != nil {
			return err
		}
		if _, err := verifyBlockSums(ext.Batch(), blk); err != nil {
			return err
		}
		if err := ext.ValidateHeaderRoot(blk.Header); err != nil {
			return err
		}
		if err := ext.ApplyBlock(blk); err != nil {
			return err
		}
		if err := ext.ValidateRoots(blk.Header); err != nil {
			return err
		}
		if err := ext.ValidateSizes(blk.Header); err != nil {
			return err
		}
	}
	return nil
}
