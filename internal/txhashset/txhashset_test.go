package txhashset

import (
	"testing"

	"wimblechain.dev/node/internal/chain"
	"wimblechain.dev/node/internal/store"
)

func openTestBatch(t *testing.T) *store.Batch {
	t.Helper()
	s, err := store.Open(t.TempDir() + "/kv.db")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	b, err := s.NewBatch()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { b.Rollback() })
	return b
}

func commit(i byte) chain.Commitment {
	var c chain.Commitment
	c[0] = i
	return c
}

func blockWithOneOutput(height uint64, prev chain.BlockHeader, c chain.Commitment, coinbase bool) *chain.Block {
	feat := chain.OutputPlain
	if coinbase {
		feat = chain.OutputCoinbase
	}
	blk := &chain.Block{
		Header: chain.BlockHeader{
			Version:   1,
			Height:    height,
			PrevHash:  prev.Hash(),
			Timestamp: 1000 + height,
		},
		Outputs: chain.OutputList{{Features: feat, Commitment: c, Proof: []byte{0x01}}},
	}
	return blk
}

func TestApplyBlockGrowsMMRsAndIndex(t *testing.T) {
	txh := OpenMem()
	b := openTestBatch(t)

	genesis := chain.BlockHeader{Height: 0, PrevHash: chain.ZeroHash}
	blk := blockWithOneOutput(1, genesis, commit(1), false)

	newHead, rolledBack, err := Extending(txh, b, chain.TipFromHeader(genesis), func(ext *Extension) error {
		if err := ext.ValidateHeaderRoot(blk.Header); err != nil {
			return err
		}
		if err := ext.ApplyBlock(blk); err != nil {
			return err
		}
		outRoot, err := txh.Output.Root()
		if err != nil {
			return err
		}
		blk.Header.OutputRoot = outRoot
		rpRoot, err := txh.RangeProof.Root()
		if err != nil {
			return err
		}
		blk.Header.RangeProofRoot = rpRoot
		blk.Header.OutputMMRSize = 1
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if rolledBack {
		t.Fatal("successful extension should not be rolled back")
	}
	if newHead.Height != 1 {
		t.Fatalf("head height = %d, want 1", newHead.Height)
	}

	view := &UTXOView{txh: txh}
	if !view.Exists(commit(1)) {
		t.Fatal("output should exist after apply")
	}
	unspent, err := view.IsUnspent(commit(1))
	if err != nil || !unspent {
		t.Fatalf("output should be unspent: %v %v", unspent, err)
	}
}

func TestForceRollbackUndoesApply(t *testing.T) {
	txh := OpenMem()
	b := openTestBatch(t)
	genesis := chain.BlockHeader{Height: 0, PrevHash: chain.ZeroHash}
	blk := blockWithOneOutput(1, genesis, commit(7), false)

	_, rolledBack, err := Extending(txh, b, chain.Tip{}, func(ext *Extension) error {
		if err := ext.ApplyBlock(blk); err != nil {
			return err
		}
		ext.ForceRollback()
		return nil
	})
	if err != nil {
		t.Fatalf("forced rollback without a real error should not surface one: %v", err)
	}
	if !rolledBack {
		t.Fatal("expected rolledBack to be true")
	}

	size, err := txh.Output.Size()
	if err != nil {
		t.Fatal(err)
	}
	if size != 0 {
		t.Fatalf("output MMR size after rollback = %d, want 0", size)
	}
	view := &UTXOView{txh: txh}
	if view.Exists(commit(7)) {
		t.Fatal("output index should be empty after rollback")
	}
}

func TestErrorRollsBackApply(t *testing.T) {
	txh := OpenMem()
	b := openTestBatch(t)
	genesis := chain.BlockHeader{Height: 0, PrevHash: chain.ZeroHash}
	blk := blockWithOneOutput(1, genesis, commit(9), false)

	_, rolledBack, err := Extending(txh, b, chain.Tip{}, func(ext *Extension) error {
		if err := ext.ApplyBlock(blk); err != nil {
			return err
		}
		return chain.NewError(chain.KindInvalidBlockProof, "boom")
	})
	if err == nil {
		t.Fatal("expected the injected error to propagate")
	}
	if !rolledBack {
		t.Fatal("expected rolledBack to be true")
	}
	view := &UTXOView{txh: txh}
	if view.Exists(commit(9)) {
		t.Fatal("output index should be empty after an errored extension")
	}
}

func TestRewindUnprunesSpentInputs(t *testing.T) {
	txh := OpenMem()
	b := openTestBatch(t)

	genesis := chain.BlockHeader{Height: 0, PrevHash: chain.ZeroHash}
	blk1 := blockWithOneOutput(1, genesis, commit(1), false)
	blk1.Header.OutputMMRSize = 1
	head, _, err := Extending(txh, b, chain.Tip{}, func(ext *Extension) error {
		return ext.ApplyBlock(blk1)
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := b.SaveBlockHeader(blk1.Header); err != nil {
		t.Fatal(err)
	}
	if err := b.SaveBlock(blk1); err != nil {
		t.Fatal(err)
	}

	blk2 := &chain.Block{
		Header: chain.BlockHeader{Version: 1, Height: 2, PrevHash: blk1.Header.Hash(), Timestamp: 2000},
		Inputs: chain.InputList{{Features: chain.OutputPlain, Commitment: commit(1)}},
	}
	head, _, err = Extending(txh, b, head, func(ext *Extension) error {
		return ext.ApplyBlock(blk2)
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := b.SaveBlockHeader(blk2.Header); err != nil {
		t.Fatal(err)
	}
	if err := b.SaveBlock(blk2); err != nil {
		t.Fatal(err)
	}

	view := &UTXOView{txh: txh}
	unspent, err := view.IsUnspent(commit(1))
	if err != nil {
		t.Fatal(err)
	}
	if unspent {
		t.Fatal("output should be spent before rewind")
	}

	_, _, err = Extending(txh, b, head, func(ext *Extension) error {
		return ext.Rewind(blk1.Header)
	})
	if err != nil {
		t.Fatal(err)
	}

	unspent, err = view.IsUnspent(commit(1))
	if err != nil {
		t.Fatal(err)
	}
	if !unspent {
		t.Fatal("rewinding past the spending block should unprune its input")
	}
}

// TestRewindRejectsTargetNotOnHeadsAncestry exercises the defensive check
// added for spec §9's "two fork points" case: if the backward walk from the
// extension's head runs off the end of the chain (reaches genesis) without
// ever encountering the requested target header, Rewind must fail instead of
// falling through to truncate the body MMRs against a header that was never
// actually applied on this branch.
func TestRewindRejectsTargetNotOnHeadsAncestry(t *testing.T) {
	txh := OpenMem()
	b := openTestBatch(t)

	genesis := chain.BlockHeader{Height: 0, PrevHash: chain.ZeroHash}
	if err := b.SaveBlockHeader(genesis); err != nil {
		t.Fatal(err)
	}

	blk1A := blockWithOneOutput(1, genesis, commit(1), false)
	blk1A.Header.OutputMMRSize = 1
	head, _, err := Extending(txh, b, chain.Tip{}, func(ext *Extension) error {
		return ext.ApplyBlock(blk1A)
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := b.SaveBlockHeader(blk1A.Header); err != nil {
		t.Fatal(err)
	}
	if err := b.SaveBlock(blk1A); err != nil {
		t.Fatal(err)
	}

	blk2A := blockWithOneOutput(2, blk1A.Header, commit(2), false)
	blk2A.Header.OutputMMRSize = 2
	head, _, err = Extending(txh, b, head, func(ext *Extension) error {
		return ext.ApplyBlock(blk2A)
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := b.SaveBlockHeader(blk2A.Header); err != nil {
		t.Fatal(err)
	}
	if err := b.SaveBlock(blk2A); err != nil {
		t.Fatal(err)
	}

	// blk1B is a header at the same height as blk1A, descending from the
	// same genesis, but never applied to this extension -- it stands in for
	// a sibling branch's header that header-only sync raced ahead on.
	blk1B := blockWithOneOutput(1, genesis, commit(3), false)
	blk1B.Header.OutputMMRSize = 99

	_, _, err = Extending(txh, b, head, func(ext *Extension) error {
		return ext.Rewind(blk1B.Header)
	})
	if err == nil {
		t.Fatal("expected error rewinding to a header not on the head's ancestry")
	}
	if !chain.IsKind(err, chain.KindInternal) {
		t.Fatalf("err=%v, want KindInternal", err)
	}
}
