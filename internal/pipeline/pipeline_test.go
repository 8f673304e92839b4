package pipeline

import (
	"path/filepath"
	"testing"

	"wimblechain.dev/node/internal/chain"
	"wimblechain.dev/node/internal/commitment"
	"wimblechain.dev/node/internal/pow"
	"wimblechain.dev/node/internal/store"
	"wimblechain.dev/node/internal/txhashset"
	"wimblechain.dev/node/internal/verifier"
)

// Every test block here carries exactly one coinbase output and kernel and
// no inputs, so the kernel-sum identity only ever exercises ScalarCommitment
// and the Zero-sentinel paths of package commitment, never a real point
// cancellation. Two outputs with the same subsidy would otherwise collide on
// the same commitment (this pipeline's commitment scheme has no independent
// blinding axis, see DESIGN.md); giving each block's coinbase output scalar
// subsidy+index and folding index into the header's total kernel offset
// keeps every commitment unique while the identity still holds, by the
// curve's additive homomorphism.
func scalarBytes(v uint64) [32]byte {
	var s [32]byte
	for i := 0; i < 8; i++ {
		s[31-i] = byte(v >> (8 * i))
	}
	return s
}

func coinbaseBlock(t *testing.T, params chain.Params, prev chain.BlockHeader, step, index uint64) *chain.Block {
	t.Helper()
	height := prev.Height + 1
	subsidy := chain.Subsidy(height)
	outCommit, err := commitment.ScalarCommitment(scalarBytes(subsidy + index))
	if err != nil {
		t.Fatalf("ScalarCommitment: %v", err)
	}
	return &chain.Block{
		Header: chain.BlockHeader{
			Version:           1,
			Height:            height,
			PrevHash:          prev.Hash(),
			Timestamp:         prev.Timestamp + 1,
			TotalDifficulty:   prev.TotalDifficulty + step,
			TotalKernelOffset: scalarBytes(index),
		},
		Outputs: chain.OutputList{{
			Features:   chain.OutputCoinbase,
			Commitment: outCommit,
			Proof:      []byte{byte(index)},
		}},
		Kernels: chain.KernelList{{
			Features: chain.KernelCoinbase,
			Excess:   commitment.Zero,
		}},
	}
}

// fillRoots speculatively applies blk to txh (via a throwaway, always-rolled
// -back extension) to compute the body-MMR roots/sizes it must declare,
// exactly as a miner assembling a candidate block would before announcing
// it.
func fillRoots(t *testing.T, txh *txhashset.TxHashSet, b *store.Batch, prev chain.BlockHeader, blk *chain.Block) {
	t.Helper()
	_, _, err := txhashset.Extending(txh, b, chain.TipFromHeader(prev), func(ext *txhashset.Extension) error {
		if err := ext.ApplyBlock(blk); err != nil {
			return err
		}
		var err error
		if blk.Header.OutputRoot, err = txh.Output.Root(); err != nil {
			return err
		}
		if blk.Header.RangeProofRoot, err = txh.RangeProof.Root(); err != nil {
			return err
		}
		if blk.Header.KernelRoot, err = txh.Kernel.Root(); err != nil {
			return err
		}
		if blk.Header.OutputMMRSize, err = txh.Output.Size(); err != nil {
			return err
		}
		if blk.Header.KernelMMRSize, err = txh.Kernel.Size(); err != nil {
			return err
		}
		ext.ForceRollback()
		return nil
	})
	if err != nil {
		t.Fatalf("fillRoots: %v", err)
	}
}

// testChain wires a fresh scratch store+TxHashSet used purely to compute
// correct roots/sizes while building a candidate chain; it is never the
// thing under test.
type testChain struct {
	t      *testing.T
	params chain.Params
	store  *store.Store
	txh    *txhashset.TxHashSet
	batch  *store.Batch
	head   chain.BlockHeader
}

func newTestChain(t *testing.T, params chain.Params) *testChain {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "scratch.db"))
	if err != nil {
		t.Fatalf("open scratch store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	txh := txhashset.OpenMem()
	b, err := s.NewBatch()
	if err != nil {
		t.Fatalf("new scratch batch: %v", err)
	}
	// This batch is held open for the scratch chain's entire lifetime (it
	// only ever backs throwaway GetBlockHeader/GetBlock reads used while
	// assembling candidate headers, never real persistence), so roll it
	// back before the store closes rather than per call.
	t.Cleanup(func() { b.Rollback() })

	genesis := chain.Genesis(params)
	if _, _, err := txhashset.Extending(txh, b, chain.Tip{}, func(ext *txhashset.Extension) error {
		return ext.ApplyBlock(genesis)
	}); err != nil {
		t.Fatalf("apply genesis to scratch: %v", err)
	}

	return &testChain{t: t, params: params, store: s, txh: txh, batch: b, head: genesis.Header}
}

// extend builds n further coinbase-only blocks on top of c's current head,
// advances c's head to the last one, and returns the new blocks in order.
func (c *testChain) extend(n int, step, startIndex uint64) []*chain.Block {
	c.t.Helper()
	out := make([]*chain.Block, 0, n)
	idx := startIndex
	for i := 0; i < n; i++ {
		blk := coinbaseBlock(c.t, c.params, c.head, step, idx)
		fillRoots(c.t, c.txh, c.batch, c.head, blk)
		if _, _, err := txhashset.Extending(c.txh, c.batch, chain.TipFromHeader(c.head), func(ext *txhashset.Extension) error {
			return ext.ApplyBlock(blk)
		}); err != nil {
			c.t.Fatalf("apply block %d to scratch: %v", blk.Header.Height, err)
		}
		c.head = blk.Header
		out = append(out, blk)
		idx++
	}
	return out
}

// replayPrefix builds a brand new scratch chain (genesis + blocks, applied
// in order) and returns it positioned at blocks' tip, so a caller can extend
// it independently of whatever built blocks in the first place -- used to
// construct a second, diverging branch from a shared prefix.
func replayPrefix(t *testing.T, params chain.Params, blocks []*chain.Block) *testChain {
	t.Helper()
	c := newTestChain(t, params)
	for _, blk := range blocks {
		if _, _, err := txhashset.Extending(c.txh, c.batch, chain.TipFromHeader(c.head), func(ext *txhashset.Extension) error {
			return ext.ApplyBlock(blk)
		}); err != nil {
			t.Fatalf("replay block %d: %v", blk.Header.Height, err)
		}
		c.head = blk.Header
	}
	return c
}

func newPipeline(t *testing.T, params chain.Params) *Pipeline {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "chain.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	cache, err := verifier.New(verifier.DefaultCapacity)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	p := New(s, txhashset.OpenMem(), cache, params, 0)
	if err := p.InitGenesis(chain.Genesis(params)); err != nil {
		t.Fatalf("InitGenesis: %v", err)
	}
	return p
}

var skipPOW = Context{Opts: pow.SkipPOW}

func TestGenesisPlusOneBlockAdvancesHead(t *testing.T) {
	params := chain.AutomatedTest()
	p := newPipeline(t, params)
	c := newTestChain(t, params)
	blocks := c.extend(1, 1, 0)

	tip, err := p.ProcessBlock(blocks[0], skipPOW)
	if err != nil {
		t.Fatalf("ProcessBlock: %v", err)
	}
	if tip == nil {
		t.Fatal("expected head to advance")
	}
	if tip.Height != 1 || tip.LastBlockHash != blocks[0].Header.Hash() {
		t.Fatalf("unexpected new tip: %+v", tip)
	}

	b, err := p.Store.NewReadBatch()
	if err != nil {
		t.Fatalf("NewReadBatch: %v", err)
	}
	defer b.Rollback()
	head, err := b.Head()
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head.Height != 1 {
		t.Fatalf("stored head height = %d, want 1", head.Height)
	}
}

func TestOrphanBlockThenParentPromotesBoth(t *testing.T) {
	params := chain.AutomatedTest()
	p := newPipeline(t, params)
	c := newTestChain(t, params)
	blocks := c.extend(2, 1, 0)

	if _, err := p.ProcessBlock(blocks[1], skipPOW); !chain.IsKind(err, chain.KindOrphan) {
		t.Fatalf("expected Orphan submitting height 2 before height 1, got %v", err)
	}

	if _, err := p.ProcessBlock(blocks[0], skipPOW); err != nil {
		t.Fatalf("ProcessBlock(height 1): %v", err)
	}

	tip, err := p.ProcessBlock(blocks[1], skipPOW)
	if err != nil {
		t.Fatalf("ProcessBlock(height 2) after parent arrived: %v", err)
	}
	if tip == nil || tip.Height != 2 {
		t.Fatalf("expected head at height 2, got %+v", tip)
	}
}

func TestDuplicateSubmissionIsUnfit(t *testing.T) {
	params := chain.AutomatedTest()
	p := newPipeline(t, params)
	c := newTestChain(t, params)
	blocks := c.extend(1, 1, 0)

	if _, err := p.ProcessBlock(blocks[0], skipPOW); err != nil {
		t.Fatalf("first submission: %v", err)
	}
	if _, err := p.ProcessBlock(blocks[0], skipPOW); !chain.IsKind(err, chain.KindUnfit) {
		t.Fatalf("expected Unfit on duplicate submission, got %v", err)
	}
}

func TestNonAdvancingTimestampRejected(t *testing.T) {
	params := chain.AutomatedTest()
	p := newPipeline(t, params)
	c := newTestChain(t, params)
	blocks := c.extend(1, 1, 0)
	blocks[0].Header.Timestamp = chain.Genesis(params).Header.Timestamp

	if _, err := p.ProcessBlock(blocks[0], skipPOW); !chain.IsKind(err, chain.KindInvalidBlockTime) {
		t.Fatalf("expected InvalidBlockTime, got %v", err)
	}
}

func TestBodyTailAdvancesPastCoinbaseMaturity(t *testing.T) {
	params := chain.AutomatedTest()
	p := newPipeline(t, params)
	c := newTestChain(t, params)
	// AutomatedTest's CoinbaseMaturity is 3; extend well past it so
	// body_tail has room to advance more than once.
	blocks := c.extend(7, 1, 0)

	var lastTip *chain.Tip
	for _, blk := range blocks {
		tip, err := p.ProcessBlock(blk, skipPOW)
		if err != nil {
			t.Fatalf("ProcessBlock height %d: %v", blk.Header.Height, err)
		}
		lastTip = tip
	}
	if lastTip == nil || lastTip.Height != 7 {
		t.Fatalf("expected head at height 7, got %+v", lastTip)
	}

	b, err := p.Store.NewReadBatch()
	if err != nil {
		t.Fatalf("NewReadBatch: %v", err)
	}
	defer b.Rollback()
	tail, err := b.Tail()
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	wantHeight := lastTip.Height - params.CoinbaseMaturity
	if tail.Height != wantHeight {
		t.Fatalf("body_tail height = %d, want %d", tail.Height, wantHeight)
	}
	if tail.LastBlockHash != blocks[wantHeight-1].Header.Hash() {
		t.Fatalf("body_tail does not match the ancestor at height %d", wantHeight)
	}
}

// TestLosingSideForkDoesNotCorruptTxHashSet exercises the scenario where a
// submitted block out-works its own fork point but not the real chain head:
// head sits on chain A at height 5 (TD 7), and a side-fork block at height 4
// off the shared prefix (TD 4, which beats the prefix's TD 3 but not head's
// TD 7) must be stored without being promoted, and must leave the body MMRs
// representing chain A so the next chain-A block still applies cleanly
// (spec P3, I3, §4.6 step 5).
func TestLosingSideForkDoesNotCorruptTxHashSet(t *testing.T) {
	params := chain.AutomatedTest()
	p := newPipeline(t, params)

	prefixChain := newTestChain(t, params)
	prefix := prefixChain.extend(3, 1, 0)

	branchA := replayPrefix(t, params, prefix)
	chainA := branchA.extend(2, 2, 100)

	branchB := replayPrefix(t, params, prefix)
	sideFork := branchB.extend(1, 1, 200)

	for _, blk := range prefix {
		if _, err := p.ProcessBlock(blk, skipPOW); err != nil {
			t.Fatalf("submit prefix block %d: %v", blk.Header.Height, err)
		}
	}
	for _, blk := range chainA {
		if _, err := p.ProcessBlock(blk, skipPOW); err != nil {
			t.Fatalf("submit chain A block %d: %v", blk.Header.Height, err)
		}
	}

	tip, err := p.ProcessBlock(sideFork[0], skipPOW)
	if err != nil {
		t.Fatalf("submitting losing side fork: %v", err)
	}
	if tip != nil {
		t.Fatalf("expected losing side fork not to be promoted, got %+v", tip)
	}

	b, err := p.Store.NewReadBatch()
	if err != nil {
		t.Fatalf("NewReadBatch: %v", err)
	}
	head, err := b.Head()
	if err != nil {
		b.Rollback()
		t.Fatalf("Head: %v", err)
	}
	if head.LastBlockHash != chainA[len(chainA)-1].Header.Hash() {
		b.Rollback()
		t.Fatalf("expected head to remain chain A's tip after a losing side fork")
	}
	if _, err := b.GetBlockSums(sideFork[0].Header.Hash()); err != nil {
		b.Rollback()
		t.Fatalf("expected the side fork's block sums to be persisted: %v", err)
	}
	b.Rollback()

	next := branchA.extend(1, 1, 300)
	nextTip, err := p.ProcessBlock(next[0], skipPOW)
	if err != nil {
		t.Fatalf("extending chain A after the losing side fork: %v", err)
	}
	if nextTip == nil || nextTip.Height != 6 {
		t.Fatalf("expected chain A to extend to height 6, got %+v", nextTip)
	}
}

func TestReorgSwitchesToHigherTotalDifficultyBranch(t *testing.T) {
	params := chain.AutomatedTest()
	p := newPipeline(t, params)

	prefixChain := newTestChain(t, params)
	prefix := prefixChain.extend(3, 1, 0)

	branchA := replayPrefix(t, params, prefix)
	chainA := branchA.extend(2, 1, 100)

	branchB := replayPrefix(t, params, prefix)
	chainB := branchB.extend(2, 3, 200)

	for _, blk := range prefix {
		if _, err := p.ProcessBlock(blk, skipPOW); err != nil {
			t.Fatalf("submit prefix block %d: %v", blk.Header.Height, err)
		}
	}
	for _, blk := range chainA {
		if _, err := p.ProcessBlock(blk, skipPOW); err != nil {
			t.Fatalf("submit chain A block %d: %v", blk.Header.Height, err)
		}
	}

	b, err := p.Store.NewReadBatch()
	if err != nil {
		t.Fatalf("NewReadBatch: %v", err)
	}
	head, err := b.Head()
	b.Rollback()
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head.LastBlockHash != chainA[len(chainA)-1].Header.Hash() {
		t.Fatalf("expected chain A tip as head before reorg")
	}

	var lastTip *chain.Tip
	for _, blk := range chainB {
		tip, err := p.ProcessBlock(blk, skipPOW)
		if err != nil {
			t.Fatalf("submit chain B block %d: %v", blk.Header.Height, err)
		}
		lastTip = tip
	}
	if lastTip == nil {
		t.Fatal("expected chain B's final block to promote head (higher total difficulty)")
	}
	if lastTip.LastBlockHash != chainB[len(chainB)-1].Header.Hash() {
		t.Fatalf("expected head to reorg onto chain B's tip, got %+v", lastTip)
	}

	b2, err := p.Store.NewReadBatch()
	if err != nil {
		t.Fatalf("NewReadBatch: %v", err)
	}
	defer b2.Rollback()
	head2, err := b2.Head()
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head2.TotalDifficulty != chainB[len(chainB)-1].Header.TotalDifficulty {
		t.Fatalf("stored head total difficulty = %d, want %d", head2.TotalDifficulty, chainB[len(chainB)-1].Header.TotalDifficulty)
	}
}
