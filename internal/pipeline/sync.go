package pipeline

import (
	"wimblechain.dev/node/internal/chain"
	"wimblechain.dev/node/internal/txhashset"
)

// SyncBlockHeaders is the pipeline's bulk header-sync entry point (spec
// §4.8): it validates and accepts a batch of headers received from a peer
// against the scratch sync_head, one header at a time, each committed in its
// own store batch: every accepted header advances sync_head, and header_head
// too when it carries more total difficulty. Unfit headers are skipped; any
// other error stops the batch without rolling back earlier ones -- headers
// before the first bad one are kept, matching a peer that sent a long,
// mostly-honest chain with one corrupt tail header.
func (p *Pipeline) SyncBlockHeaders(headers []chain.BlockHeader, ctx Context) (int, error) {
	accepted := 0
	for _, h := range headers {
		if err := p.syncOneHeader(h, ctx); err != nil {
			if chain.IsKind(err, chain.KindUnfit) {
				continue
			}
			return accepted, err
		}
		accepted++
	}
	return accepted, nil
}

func (p *Pipeline) syncOneHeader(header chain.BlockHeader, ctx Context) error {
	b, err := p.Store.NewBatch()
	if err != nil {
		return err
	}
	defer b.Rollback()

	prev, err := b.GetBlockHeader(header.PrevHash)
	if err != nil {
		if chain.IsKind(err, chain.KindNotFound) {
			return chain.NewError(chain.KindOrphan, "parent header unknown")
		}
		return err
	}

	syncHead, shErr := b.SyncHead()
	shKnown := shErr == nil
	if shErr != nil && !chain.IsKind(shErr, chain.KindNotFound) {
		return shErr
	}
	startHead := syncHead
	if !shKnown {
		startHead = chain.Tip{}
	}

	newSyncHead, rolledBack, err := txhashset.SyncExtending(p.TxHashSet, b, startHead, func(ext *txhashset.HeaderExtension) error {
		if err := rewindAndApplyHeaderFork(prev, ext); err != nil {
			return err
		}
		if err := ext.ValidateRoot(header); err != nil {
			return err
		}
		return ext.ApplyHeader(header)
	})
	if err != nil {
		return err
	}
	if rolledBack {
		return chain.NewError(chain.KindUnfit, "sync header extension force-rolled-back")
	}

	if err := validateHeader(p, b, header, prev, ctx); err != nil {
		return err
	}
	if err := b.SaveBlockHeader(header); err != nil {
		return err
	}
	if err := b.SaveSyncHead(newSyncHead); err != nil {
		return err
	}

	headerHead, hhErr := b.HeaderHead()
	if hhErr != nil && !chain.IsKind(hhErr, chain.KindNotFound) {
		return hhErr
	}
	if hhErr != nil || chain.TipFromHeader(header).MoreWorkThan(headerHead) {
		if err := b.SaveHeaderHead(newSyncHead); err != nil {
			return err
		}
	}
	return b.Commit()
}
