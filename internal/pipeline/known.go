package pipeline

import (
	"wimblechain.dev/node/internal/chain"
	"wimblechain.dev/node/internal/store"
)

// checkKnownHeader implements process_block_header's known-check (spec §4.5
// steps 2-3): a header matching the current head's hash or its parent, or
// already stored without adding work beyond header_head, needs no further
// processing.
func checkKnownHeader(b *store.Batch, header chain.BlockHeader) (skip bool, err error) {
	if head, err := b.Head(); err == nil {
		hash := header.Hash()
		if hash == head.LastBlockHash || hash == head.PrevBlockHash {
			return true, nil
		}
	} else if !chain.IsKind(err, chain.KindNotFound) {
		return false, err
	}

	if _, err := b.GetBlockHeader(header.Hash()); err == nil {
		headerHead, hhErr := b.HeaderHead()
		if hhErr != nil && !chain.IsKind(hhErr, chain.KindNotFound) {
			return false, hhErr
		}
		if hhErr != nil || !chain.TipFromHeader(header).MoreWorkThan(headerHead) {
			return true, nil
		}
	} else if !chain.IsKind(err, chain.KindNotFound) {
		return false, err
	}

	return false, nil
}

// checkKnownBlock implements process_block's known-check (spec §4.6 step 1):
// a block matching the current head's hash or its parent is Unfit; a block
// already stored that does not improve on head is Unfit unless it is more
// than 50 blocks behind, which is flagged as OldBlock (an abuse signal, per
// spec §7).
func checkKnownBlock(b *store.Batch, header chain.BlockHeader, head chain.Tip, headKnown bool) (chain.Kind, error) {
	hash := header.Hash()
	if headKnown && (hash == head.LastBlockHash || hash == head.PrevBlockHash) {
		return chain.KindUnfit, nil
	}

	exists, err := b.BlockExists(hash)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", nil
	}
	if headKnown && !chain.TipFromHeader(header).MoreWorkThan(head) {
		if head.Height > header.Height && head.Height-header.Height > 50 {
			return chain.KindOldBlock, nil
		}
		return chain.KindUnfit, nil
	}
	return "", nil
}
