package p2p

import (
	"errors"
	"testing"

	"wimblechain.dev/node/internal/chain"
	"wimblechain.dev/node/internal/pipeline"
)

type fakeChain struct {
	headerErr  error
	blockTip   *chain.Tip
	blockErr   error
	syncCount  int
	syncErr    error
	lastHeader chain.BlockHeader
	lastBlock  *chain.Block
	lastBatch  []chain.BlockHeader
}

func (f *fakeChain) ProcessBlockHeader(header chain.BlockHeader, _ pipeline.Context) error {
	f.lastHeader = header
	return f.headerErr
}

func (f *fakeChain) ProcessBlock(blk *chain.Block, _ pipeline.Context) (*chain.Tip, error) {
	f.lastBlock = blk
	return f.blockTip, f.blockErr
}

func (f *fakeChain) SyncBlockHeaders(headers []chain.BlockHeader, _ pipeline.Context) (int, error) {
	f.lastBatch = headers
	return f.syncCount, f.syncErr
}

func TestDriverDispatchesToChain(t *testing.T) {
	fc := &fakeChain{blockTip: &chain.Tip{Height: 1}, syncCount: 3}
	d := New(fc, pipeline.Context{})

	h := chain.BlockHeader{Height: 1}
	if err := d.OnHeader(h); err != nil {
		t.Fatalf("OnHeader: %v", err)
	}
	if fc.lastHeader.Height != 1 {
		t.Fatal("header was not forwarded")
	}

	blk := &chain.Block{Header: chain.BlockHeader{Height: 2}}
	tip, err := d.OnBlock(blk)
	if err != nil {
		t.Fatalf("OnBlock: %v", err)
	}
	if tip == nil || tip.Height != 1 {
		t.Fatal("block result was not forwarded")
	}

	n, err := d.OnHeaders([]chain.BlockHeader{h})
	if err != nil {
		t.Fatalf("OnHeaders: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 accepted headers, got %d", n)
	}
}

func TestDriverFailsCleanlyAfterShutdown(t *testing.T) {
	fc := &fakeChain{}
	d := New(fc, pipeline.Context{})
	d.Shutdown()

	if _, err := d.OnHeaders(nil); !errors.Is(err, ErrChainClosed) {
		t.Fatalf("expected ErrChainClosed, got %v", err)
	}
	if _, err := d.OnBlock(&chain.Block{}); !errors.Is(err, ErrChainClosed) {
		t.Fatalf("expected ErrChainClosed, got %v", err)
	}
	if err := d.OnHeader(chain.BlockHeader{}); !errors.Is(err, ErrChainClosed) {
		t.Fatalf("expected ErrChainClosed, got %v", err)
	}
}

// Shutdown is safe to call concurrently with in-flight handlers; this
// doesn't assert much beyond "doesn't race", which `go test -race` checks.
func TestDriverShutdownDuringUse(t *testing.T) {
	fc := &fakeChain{}
	d := New(fc, pipeline.Context{})
	done := make(chan struct{})
	go func() {
		_, _ = d.OnHeaders(nil)
		close(done)
	}()
	d.Shutdown()
	<-done
}
