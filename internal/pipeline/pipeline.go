// Package pipeline implements the block/header acceptance pipeline (spec §4):
// process_block, process_block_header, and sync_block_headers, plus the
// fork rewind-and-reapply routines they share. This is the coordination
// layer tying together the KV store, the TxHashSet's scoped extensions, the
// verifier cache, and the difficulty engine.
package pipeline

import (
	"time"

	"github.com/sirupsen/logrus"

	"wimblechain.dev/node/internal/chain"
	"wimblechain.dev/node/internal/pow"
	"wimblechain.dev/node/internal/store"
	"wimblechain.dev/node/internal/txhashset"
	"wimblechain.dev/node/internal/verifier"
)

// Context is the per-call BlockContext of spec §6: the option bitset and an
// optional PoW verifier override. The live TxHashSet, the owned Batch, and
// the shared VerifierCache are threaded through Pipeline itself rather than
// reconstructed per call, since this node runs a single Pipeline per chain.
type Context struct {
	Opts        pow.Options
	PowVerifier pow.Verifier
	// Now supplies the wall clock a header's future-time bound (spec §4.7
	// step 2) is checked against. Defaults to time.Now when nil; setting it
	// lets a caller (a test, for one) check headers against its own clock
	// instead of the validation code reading the wall clock directly.
	Now func() time.Time
}

func (c Context) verifier(p *Pipeline) pow.Verifier {
	if c.PowVerifier != nil {
		return c.PowVerifier
	}
	return func(h chain.BlockHeader, opts pow.Options) error {
		return pow.Verify(h, opts, p.MinEdgeBits)
	}
}

func (c Context) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Pipeline holds the long-lived handles every pipeline invocation shares:
// the store, the live TxHashSet, the verifier cache, and the consensus
// parameter set (spec §5: "the chain object is process-wide").
type Pipeline struct {
	Store       *store.Store
	TxHashSet   *txhashset.TxHashSet
	Cache       *verifier.Cache
	Params      chain.Params
	MinEdgeBits uint8
}

// New builds a Pipeline over already-opened collaborators.
func New(s *store.Store, txh *txhashset.TxHashSet, cache *verifier.Cache, params chain.Params, minEdgeBits uint8) *Pipeline {
	return &Pipeline{Store: s, TxHashSet: txh, Cache: cache, Params: params, MinEdgeBits: minEdgeBits}
}

// InitGenesis bootstraps an empty store with the chain's genesis block. It
// is not part of process_block's fork-resolution machinery -- there is
// nothing to rewind from -- so it writes the header, block, zero BlockSums,
// and all four tips directly.
func (p *Pipeline) InitGenesis(genesis *chain.Block) error {
	b, err := p.Store.NewBatch()
	if err != nil {
		return err
	}
	defer b.Rollback()

	if _, err := b.Head(); err == nil {
		return chain.NewError(chain.KindUnfit, "genesis already initialized")
	} else if !chain.IsKind(err, chain.KindNotFound) {
		return err
	}

	newHead, rolledBack, err := txhashset.Extending(p.TxHashSet, b, chain.Tip{}, func(ext *txhashset.Extension) error {
		return ext.ApplyBlock(genesis)
	})
	if err != nil {
		return err
	}
	if rolledBack {
		return chain.NewError(chain.KindInternal, "genesis extension unexpectedly rolled back")
	}
	if _, _, err := txhashset.HeaderExtending(p.TxHashSet, b, chain.Tip{}, func(ext *txhashset.HeaderExtension) error {
		return ext.ApplyHeader(genesis.Header)
	}); err != nil {
		return err
	}

	if err := b.SaveBlockHeader(genesis.Header); err != nil {
		return err
	}
	if err := b.SaveBlock(genesis); err != nil {
		return err
	}
	if err := b.SaveBlockSums(genesis.Header.Hash(), chain.BlockSums{}); err != nil {
		return err
	}
	if err := b.SaveBodyHead(newHead); err != nil {
		return err
	}
	if err := b.SaveHeaderHead(newHead); err != nil {
		return err
	}
	if err := b.SaveSyncHead(newHead); err != nil {
		return err
	}
	if err := b.SaveBodyTail(newHead); err != nil {
		return err
	}
	logrus.WithField("hash", genesis.Header.Hash()).Info("genesis initialized")
	return b.Commit()
}

// advanceBodyTail moves body_tail forward to newHead's ancestor at height
// newHead.Height-maturity, once that ancestor is deeper than the current
// tail. This is the pruning boundary kepler tracks alongside head (spec §3
// body_tail, SPEC_FULL's "body_tail pruning boundary tracking" supplement);
// the pruner that would actually compact storage beyond this point stays
// out of scope per spec §1.
func advanceBodyTail(b *store.Batch, newHead chain.Tip, maturity uint64) error {
	if newHead.Height <= maturity {
		return nil
	}
	targetHeight := newHead.Height - maturity

	tail, err := b.Tail()
	if err != nil {
		return err
	}
	if tail.Height >= targetHeight {
		return nil
	}

	cur, err := b.GetBlockHeader(newHead.LastBlockHash)
	if err != nil {
		return err
	}
	for cur.Height > targetHeight {
		cur, err = b.GetPreviousHeader(cur)
		if err != nil {
			return err
		}
	}
	return b.SaveBodyTail(chain.TipFromHeader(cur))
}

// ProcessBlockHeader is the pipeline's header-only entry point (spec §4.5).
func (p *Pipeline) ProcessBlockHeader(header chain.BlockHeader, ctx Context) error {
	b, err := p.Store.NewBatch()
	if err != nil {
		return err
	}
	defer b.Rollback()

	if err := p.processHeader(b, header, ctx); err != nil {
		return err
	}
	return b.Commit()
}

// processHeader runs process_block_header's logic (spec §4.5) against an
// already-open batch, so ProcessBlock can fold header processing into its
// own single bbolt transaction instead of nesting a second writable
// transaction (bbolt allows only one at a time per goroutine).
func (p *Pipeline) processHeader(b *store.Batch, header chain.BlockHeader, ctx Context) error {
	prev, err := b.GetBlockHeader(header.PrevHash)
	if err != nil {
		if chain.IsKind(err, chain.KindNotFound) {
			return chain.NewError(chain.KindOrphan, "parent header unknown")
		}
		return err
	}

	if skip, err := checkKnownHeader(b, header); err != nil {
		return err
	} else if skip {
		return chain.NewError(chain.KindUnfit, "header already known")
	}

	headerHead, hhErr := b.HeaderHead()
	hhKnown := hhErr == nil
	if hhErr != nil && !chain.IsKind(hhErr, chain.KindNotFound) {
		return hhErr
	}
	candidateTip := chain.TipFromHeader(header)

	// validateHeader must run before the header ever touches the
	// HeaderExtension: none of its checks (version, height, timestamp, PoW,
	// difficulty) depend on the extension, and running it after would leave
	// a rejected header's hash permanently appended to the header MMR --
	// ApplyHeader's own mutation is only undone by this same extension's
	// rollback, which a validateHeader failure outside the closure can't
	// trigger anymore once the closure has already returned successfully.
	if err := validateHeader(p, b, header, prev, ctx); err != nil {
		return err
	}

	startHead := headerHead
	if !hhKnown {
		startHead = chain.Tip{}
	}

	newHead, rolledBack, err := txhashset.HeaderExtending(p.TxHashSet, b, startHead, func(ext *txhashset.HeaderExtension) error {
		if err := rewindAndApplyHeaderFork(prev, ext); err != nil {
			return err
		}
		if err := ext.ValidateRoot(header); err != nil {
			return err
		}
		if err := ext.ApplyHeader(header); err != nil {
			return err
		}
		if hhKnown && !candidateTip.MoreWorkThan(headerHead) {
			ext.ForceRollback()
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := b.SaveBlockHeader(header); err != nil {
		return err
	}

	if !rolledBack {
		if err := b.SaveHeaderHead(newHead); err != nil {
			return err
		}
	}
	return nil
}

// ProcessBlock is the pipeline's full-block entry point (spec §4.6). It
// returns the new head tip if head advanced, nil otherwise (nil, nil is the
// "stored on a side fork" outcome; a non-nil error is a rejection).
func (p *Pipeline) ProcessBlock(blk *chain.Block, ctx Context) (*chain.Tip, error) {
	b, err := p.Store.NewBatch()
	if err != nil {
		return nil, err
	}
	defer b.Rollback()

	head, headErr := b.Head()
	headKnown := headErr == nil
	if headErr != nil && !chain.IsKind(headErr, chain.KindNotFound) {
		return nil, headErr
	}

	if skip, err := checkKnownBlock(b, blk.Header, head, headKnown); err != nil {
		return nil, err
	} else if skip != chain.Kind("") {
		return nil, chain.NewError(skip, "block already known")
	}

	prev, prevErr := b.GetBlockHeader(blk.Header.PrevHash)
	if prevErr != nil {
		if !chain.IsKind(prevErr, chain.KindNotFound) {
			return nil, prevErr
		}
		if blk.Header.PrevHash != head.LastBlockHash {
			if err := validatePowOnly(p, blk.Header, ctx); err != nil {
				return nil, err
			}
			return nil, chain.NewError(chain.KindOrphan, "parent block unknown")
		}
	}

	if err := p.processHeader(b, blk.Header, ctx); err != nil && !chain.IsKind(err, chain.KindUnfit) {
		return nil, err
	}

	headerHead, hhErr := b.HeaderHead()
	if hhErr != nil && !chain.IsKind(hhErr, chain.KindNotFound) {
		return nil, hhErr
	}

	if err := validateBlockStructure(p, blk); err != nil {
		return nil, err
	}

	startHead := head
	if !headKnown {
		startHead = chain.Tip{}
	}
	candidateTip := chain.TipFromHeader(blk.Header)

	newHead, rolledBack, err := txhashset.Extending(p.TxHashSet, b, startHead, func(ext *txhashset.Extension) error {
		if err := rewindAndApplyFork(p, prev, headerHead, ext); err != nil {
			return err
		}

		view := ext.UTXOView()
		if err := view.VerifyCoinbaseMaturity(blk.Inputs, blk.Header.Height, p.Params.CoinbaseMaturity); err != nil {
			return err
		}
		if err := view.ValidateBlock(blk); err != nil {
			return err
		}
		newSums, err := verifyBlockSums(b, blk)
		if err != nil {
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
		if err := b.SaveBlockSums(blk.Header.Hash(), newSums); err != nil {
			return err
		}
		if !candidateTip.MoreWorkThan(head) {
			// applying did not increase work over the committed head (not
			// this extension's own rewound fork tip -- comparing against
			// the fork tip would let a losing side fork that merely
			// out-works its own parent slip through and persist its MMR
			// state without head ever pointing at it): keep the block
			// stored on a side fork but don't promote it (spec §4.6 step 5).
			ext.ForceRollback()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := b.SaveBlock(blk); err != nil {
		return nil, err
	}
	if _, err := b.Tail(); err != nil {
		if !chain.IsKind(err, chain.KindNotFound) {
			return nil, err
		}
		if err := b.SaveBodyTail(chain.TipFromHeader(blk.Header)); err != nil {
			return nil, err
		}
	}

	var result *chain.Tip
	if !rolledBack && candidateTip.MoreWorkThan(head) {
		if err := b.SaveBodyHead(newHead); err != nil {
			return nil, err
		}
		result = &newHead
		if err := advanceBodyTail(b, newHead, p.Params.CoinbaseMaturity); err != nil {
			return nil, err
		}
	}

	if err := b.Commit(); err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"height":   blk.Header.Height,
		"hash":     blk.Header.Hash(),
		"promoted": result != nil,
	}).Info("block processed")
	return result, nil
}
