// Package p2p is the thin header/block sync driver that feeds the
// pipeline's three entry points from peer traffic (spec §1: "peer-to-peer
// transport and header/block sync driver ... feeds the pipeline through
// the same three entry points"). Full wire transport, peer handshake, and
// ban-scoring are out of scope; this package only does the
// weak-back-reference handoff the pipeline needs from its callers.
package p2p

import (
	"errors"
	"sync"

	"wimblechain.dev/node/internal/chain"
	"wimblechain.dev/node/internal/pipeline"
)

// ErrChainClosed is returned by every Driver method once Shutdown has run.
// Handlers hold a non-owning reference to the chain (spec §9's "weak
// back-reference" note: "I know about you, but I don't keep you alive") and
// must fail cleanly rather than dereference a torn-down pipeline.
var ErrChainClosed = errors.New("p2p: chain has been shut down")

// Chain is the subset of *pipeline.Pipeline the driver needs; defined as an
// interface so tests can substitute a fake without standing up a full store
// and TxHashSet.
type Chain interface {
	ProcessBlockHeader(header chain.BlockHeader, ctx pipeline.Context) error
	ProcessBlock(blk *chain.Block, ctx pipeline.Context) (*chain.Tip, error)
	SyncBlockHeaders(headers []chain.BlockHeader, ctx pipeline.Context) (int, error)
}

// Driver dispatches inbound peer messages to the pipeline. It holds its
// chain reference behind a mutex so Shutdown can atomically clear it; this
// is the "weak reference" the design notes call for -- the driver observes
// the chain's lifecycle, it does not extend it.
type Driver struct {
	mu    sync.RWMutex
	chain Chain
	ctx   pipeline.Context
}

// New builds a Driver over an already-running chain.
func New(chain Chain, ctx pipeline.Context) *Driver {
	return &Driver{chain: chain, ctx: ctx}
}

// Shutdown clears the driver's chain reference. Subsequent calls from any
// in-flight peer handler return ErrChainClosed instead of touching torn-down
// state.
func (d *Driver) Shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chain = nil
}

func (d *Driver) live() (Chain, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.chain == nil {
		return nil, ErrChainClosed
	}
	return d.chain, nil
}

// OnHeader handles a single unsolicited header announcement by routing it
// to process_block_header.
func (d *Driver) OnHeader(header chain.BlockHeader) error {
	c, err := d.live()
	if err != nil {
		return err
	}
	return c.ProcessBlockHeader(header, d.ctx)
}

// OnHeaders handles a batch of headers from a `headers` or `getheaders`
// response by routing it to sync_block_headers. It returns the number of
// headers accepted before either the batch ran out or a non-Unfit error
// stopped it short.
func (d *Driver) OnHeaders(headers []chain.BlockHeader) (int, error) {
	c, err := d.live()
	if err != nil {
		return 0, err
	}
	return c.SyncBlockHeaders(headers, d.ctx)
}

// OnBlock handles a full block announcement by routing it to process_block.
// It returns the new tip if the block advanced head, nil otherwise.
func (d *Driver) OnBlock(blk *chain.Block) (*chain.Tip, error) {
	c, err := d.live()
	if err != nil {
		return nil, err
	}
	return c.ProcessBlock(blk, d.ctx)
}
