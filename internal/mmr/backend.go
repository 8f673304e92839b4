package mmr

import (
	"wimblechain.dev/node/internal/chain"
)

// MemBackend is an in-memory Backend, used by header/sync extensions during
// tests and by callers that do not need cross-process persistence.
type MemBackend struct {
	leaves []chain.Hash
	pruned map[uint64]bool
}

// NewMemBackend returns an empty in-memory backend.
func NewMemBackend() *MemBackend {
	return &MemBackend{pruned: make(map[uint64]bool)}
}

func (b *MemBackend) Append(h chain.Hash) error {
	b.leaves = append(b.leaves, h)
	return nil
}

func (b *MemBackend) Get(pos uint64) (chain.Hash, bool, error) {
	if pos >= uint64(len(b.leaves)) {
		return chain.Hash{}, false, nil
	}
	return b.leaves[pos], true, nil
}

func (b *MemBackend) Size() (uint64, error) {
	return uint64(len(b.leaves)), nil
}

func (b *MemBackend) Truncate(size uint64) error {
	b.leaves = b.leaves[:size]
	for pos := range b.pruned {
		if pos >= size {
			delete(b.pruned, pos)
		}
	}
	return nil
}

func (b *MemBackend) Remove(pos uint64) error {
	if b.pruned == nil {
		b.pruned = make(map[uint64]bool)
	}
	b.pruned[pos] = true
	return nil
}

func (b *MemBackend) Unprune(pos uint64) error {
	delete(b.pruned, pos)
	return nil
}

func (b *MemBackend) Pruned(pos uint64) (bool, error) {
	return b.pruned[pos], nil
}

// Clone returns a deep, independent copy, used to fork a read-only snapshot
// before a scoped extension mutates it.
func (b *MemBackend) Clone() *MemBackend {
	out := &MemBackend{
		leaves: append([]chain.Hash(nil), b.leaves...),
		pruned: make(map[uint64]bool, len(b.pruned)),
	}
	for k, v := range b.pruned {
		out.pruned[k] = v
	}
	return out
}
