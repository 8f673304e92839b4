package store

import (
	bolt "go.etcd.io/bbolt"

	"wimblechain.dev/node/internal/chain"
)

// Batch wraps a single bbolt transaction. All reads within one pipeline
// invocation see that invocation's own pending writes layered over
// previously committed state, because they are the same bbolt
// read-write transaction; Commit is all-or-nothing and Rollback discards
// every write the batch made (spec §4.1).
type Batch struct {
	tx       *bolt.Tx
	store    *Store
	readOnly bool
}

// Commit makes every write in the batch durable and visible to subsequent
// readers.
func (b *Batch) Commit() error {
	if err := b.tx.Commit(); err != nil {
		return chain.Wrap(chain.KindStore, "commit batch", err)
	}
	return nil
}

// Rollback discards every write the batch made. Safe to call after Commit
// (bbolt no-ops it); the pipeline's scoped-extension discipline always
// calls exactly one of Commit/Rollback, but callers that bail out early via
// defer benefit from the no-op-after-commit behavior.
func (b *Batch) Rollback() error {
	err := b.tx.Rollback()
	if err != nil && err != bolt.ErrTxClosed {
		return chain.Wrap(chain.KindStore, "rollback batch", err)
	}
	return nil
}

// Child opens an independent read-only batch over the store's last
// committed state, for read-only iteration (e.g. the difficulty window)
// that must not observe or affect the parent batch's uncommitted writes
// (spec §4.1). bbolt transactions cannot see another in-flight
// transaction's writes, which is exactly the isolation a child batch needs:
// by the time a block is being validated, every ancestor header the
// difficulty window walks is already-committed history.
func (b *Batch) Child() (*Batch, error) {
	return b.store.NewReadBatch()
}

func (b *Batch) blocks() *bolt.Bucket    { return b.tx.Bucket(bucketBlocks) }
func (b *Batch) headers() *bolt.Bucket   { return b.tx.Bucket(bucketHeaders) }
func (b *Batch) blockSums() *bolt.Bucket { return b.tx.Bucket(bucketBlockSums) }
func (b *Batch) tips() *bolt.Bucket      { return b.tx.Bucket(bucketTips) }

// SaveBlockHeader persists a header keyed by its hash.
func (b *Batch) SaveBlockHeader(h chain.BlockHeader) error {
	if err := b.headers().Put(h.Hash().Bytes(), h.Bytes()); err != nil {
		return chain.Wrap(chain.KindStore, "save_block_header", err)
	}
	return nil
}

// GetBlockHeader loads the header stored at hash.
func (b *Batch) GetBlockHeader(hash chain.Hash) (chain.BlockHeader, error) {
	raw := b.headers().Get(hash.Bytes())
	if raw == nil {
		return chain.BlockHeader{}, chain.NewError(chain.KindNotFound, "header "+hash.String())
	}
	h, err := chain.DecodeBlockHeader(raw)
	if err != nil {
		return chain.BlockHeader{}, chain.Wrap(chain.KindStore, "decode header", err)
	}
	return h, nil
}

// GetPreviousHeader loads the header that h.PrevHash points at.
func (b *Batch) GetPreviousHeader(h chain.BlockHeader) (chain.BlockHeader, error) {
	return b.GetBlockHeader(h.PrevHash)
}

// SaveBlock persists a full block body keyed by its header hash.
func (b *Batch) SaveBlock(blk *chain.Block) error {
	if err := b.blocks().Put(blk.Header.Hash().Bytes(), blk.Bytes()); err != nil {
		return chain.Wrap(chain.KindStore, "save_block", err)
	}
	return nil
}

// GetBlock loads the full block stored at hash.
func (b *Batch) GetBlock(hash chain.Hash) (*chain.Block, error) {
	raw := b.blocks().Get(hash.Bytes())
	if raw == nil {
		return nil, chain.NewError(chain.KindNotFound, "block "+hash.String())
	}
	blk, err := chain.DecodeBlock(raw)
	if err != nil {
		return nil, chain.Wrap(chain.KindStore, "decode block", err)
	}
	return blk, nil
}

// BlockExists reports whether a full block body is stored for hash.
func (b *Batch) BlockExists(hash chain.Hash) (bool, error) {
	return b.blocks().Get(hash.Bytes()) != nil, nil
}

// SaveBlockSums persists the running Pedersen-sum accumulator for hash.
func (b *Batch) SaveBlockSums(hash chain.Hash, sums chain.BlockSums) error {
	if err := b.blockSums().Put(hash.Bytes(), encodeBlockSums(sums)); err != nil {
		return chain.Wrap(chain.KindStore, "save_block_sums", err)
	}
	return nil
}

// GetBlockSums loads the block-sums record for hash.
func (b *Batch) GetBlockSums(hash chain.Hash) (chain.BlockSums, error) {
	raw := b.blockSums().Get(hash.Bytes())
	if raw == nil {
		return chain.BlockSums{}, chain.NewError(chain.KindNotFound, "block_sums "+hash.String())
	}
	return decodeBlockSums(raw)
}

func encodeBlockSums(s chain.BlockSums) []byte {
	out := make([]byte, 0, 66)
	out = append(out, s.UTXOSum[:]...)
	out = append(out, s.KernelSum[:]...)
	return out
}

func decodeBlockSums(raw []byte) (chain.BlockSums, error) {
	if len(raw) != 66 {
		return chain.BlockSums{}, chain.NewError(chain.KindInternal, "block_sums: bad length")
	}
	var s chain.BlockSums
	copy(s.UTXOSum[:], raw[:33])
	copy(s.KernelSum[:], raw[33:])
	return s, nil
}

func (b *Batch) getTip(key string) (chain.Tip, error) {
	raw := b.tips().Get([]byte(key))
	if raw == nil {
		return chain.Tip{}, chain.NewError(chain.KindNotFound, "tip "+key)
	}
	return decodeTip(raw)
}

func (b *Batch) saveTip(key string, t chain.Tip) error {
	if err := b.tips().Put([]byte(key), encodeTip(t)); err != nil {
		return chain.Wrap(chain.KindStore, "save tip "+key, err)
	}
	return nil
}

// Head returns the current best full-block tip.
func (b *Batch) Head() (chain.Tip, error) { return b.getTip(tipKeyHead) }

// HeaderHead returns the current best header-only tip.
func (b *Batch) HeaderHead() (chain.Tip, error) { return b.getTip(tipKeyHeaderHead) }

// SyncHead returns the scratch tip used during header sync.
func (b *Batch) SyncHead() (chain.Tip, error) { return b.getTip(tipKeySyncHead) }

// Tail returns the earliest full block retained.
func (b *Batch) Tail() (chain.Tip, error) { return b.getTip(tipKeyBodyTail) }

// SaveBodyHead updates the head tip.
func (b *Batch) SaveBodyHead(t chain.Tip) error { return b.saveTip(tipKeyHead, t) }

// SaveHeaderHead updates the header_head tip.
func (b *Batch) SaveHeaderHead(t chain.Tip) error { return b.saveTip(tipKeyHeaderHead, t) }

// SaveSyncHead updates the sync_head tip.
func (b *Batch) SaveSyncHead(t chain.Tip) error { return b.saveTip(tipKeySyncHead, t) }

// SaveBodyTail updates the body_tail tip.
func (b *Batch) SaveBodyTail(t chain.Tip) error { return b.saveTip(tipKeyBodyTail, t) }

func encodeTip(t chain.Tip) []byte {
	out := make([]byte, 0, 80)
	out = append(out, t.LastBlockHash.Bytes()...)
	out = append(out, t.PrevBlockHash.Bytes()...)
	out = appendU64(out, t.Height)
	out = appendU64(out, t.TotalDifficulty)
	return out
}

func decodeTip(raw []byte) (chain.Tip, error) {
	if len(raw) != 80 {
		return chain.Tip{}, chain.NewError(chain.KindInternal, "tip: bad length")
	}
	var t chain.Tip
	copy(t.LastBlockHash[:], raw[:32])
	copy(t.PrevBlockHash[:], raw[32:64])
	t.Height = readU64(raw[64:72])
	t.TotalDifficulty = readU64(raw[72:80])
	return t, nil
}

func appendU64(dst []byte, v uint64) []byte {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return append(dst, b[:]...)
}

func readU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
