package store

import (
	"path/filepath"
	"testing"

	"wimblechain.dev/node/internal/chain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testHeader(height uint64, prev chain.Hash) chain.BlockHeader {
	return chain.BlockHeader{
		Version:         1,
		Height:          height,
		PrevHash:        prev,
		Timestamp:       1000 + height,
		TotalDifficulty: height + 1,
	}
}

func TestSaveAndGetHeaderRoundTrip(t *testing.T) {
	s := openTestStore(t)
	b, err := s.NewBatch()
	if err != nil {
		t.Fatal(err)
	}
	h := testHeader(0, chain.ZeroHash)
	if err := b.SaveBlockHeader(h); err != nil {
		t.Fatal(err)
	}
	got, err := b.GetBlockHeader(h.Hash())
	if err != nil {
		t.Fatal(err)
	}
	if got.Hash() != h.Hash() {
		t.Fatal("round-tripped header hash mismatch")
	}
	if err := b.Commit(); err != nil {
		t.Fatal(err)
	}
}

func TestRollbackDiscardsWrites(t *testing.T) {
	s := openTestStore(t)
	h := testHeader(0, chain.ZeroHash)

	b, err := s.NewBatch()
	if err != nil {
		t.Fatal(err)
	}
	if err := b.SaveBlockHeader(h); err != nil {
		t.Fatal(err)
	}
	if err := b.Rollback(); err != nil {
		t.Fatal(err)
	}

	b2, err := s.NewBatch()
	if err != nil {
		t.Fatal(err)
	}
	defer b2.Rollback()
	if _, err := b2.GetBlockHeader(h.Hash()); !chain.IsKind(err, chain.KindNotFound) {
		t.Fatalf("expected NotFound after rollback, got %v", err)
	}
}

func TestNotFoundKindForMissingEntities(t *testing.T) {
	s := openTestStore(t)
	b, err := s.NewBatch()
	if err != nil {
		t.Fatal(err)
	}
	defer b.Rollback()

	if _, err := b.GetBlockHeader(chain.Hash{0xAA}); !chain.IsKind(err, chain.KindNotFound) {
		t.Fatalf("GetBlockHeader: got %v, want NotFound", err)
	}
	if _, err := b.GetBlock(chain.Hash{0xAA}); !chain.IsKind(err, chain.KindNotFound) {
		t.Fatalf("GetBlock: got %v, want NotFound", err)
	}
	if _, err := b.GetBlockSums(chain.Hash{0xAA}); !chain.IsKind(err, chain.KindNotFound) {
		t.Fatalf("GetBlockSums: got %v, want NotFound", err)
	}
	if _, err := b.Head(); !chain.IsKind(err, chain.KindNotFound) {
		t.Fatalf("Head: got %v, want NotFound", err)
	}
}

func TestTipsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	b, err := s.NewBatch()
	if err != nil {
		t.Fatal(err)
	}
	defer b.Rollback()

	tip := chain.Tip{LastBlockHash: chain.Hash{1}, PrevBlockHash: chain.Hash{2}, Height: 5, TotalDifficulty: 50}
	if err := b.SaveBodyHead(tip); err != nil {
		t.Fatal(err)
	}
	got, err := b.Head()
	if err != nil {
		t.Fatal(err)
	}
	if got != tip {
		t.Fatalf("Head() = %+v, want %+v", got, tip)
	}
}

func TestDifficultyWindowWalksBack(t *testing.T) {
	s := openTestStore(t)
	b, err := s.NewBatch()
	if err != nil {
		t.Fatal(err)
	}
	defer b.Rollback()

	genesis := testHeader(0, chain.ZeroHash)
	if err := b.SaveBlockHeader(genesis); err != nil {
		t.Fatal(err)
	}
	prevHash := genesis.Hash()
	var last chain.BlockHeader
	for height := uint64(1); height <= 5; height++ {
		h := testHeader(height, prevHash)
		if err := b.SaveBlockHeader(h); err != nil {
			t.Fatal(err)
		}
		prevHash = h.Hash()
		last = h
	}

	window, err := b.DifficultyWindow(last.PrevHash, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(window) != 3 {
		t.Fatalf("window length = %d, want 3", len(window))
	}
	for i := 1; i < len(window); i++ {
		if window[i].Timestamp <= window[i-1].Timestamp {
			t.Fatal("window must be ordered oldest-first")
		}
	}
}
