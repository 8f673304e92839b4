// Package mmr implements the append-only Merkle Mountain Range accumulator
// that backs every TxHashSet (spec §3, §4.2): output, range-proof, kernel,
// and header MMRs are each one instance of this type over a different
// Backend.
//
// Position here counts leaves only (0-indexed), not the interior nodes Grin's
// on-disk "pos" addressing also counts. That keeps the accumulator small and
// easy to reason about; it is not wire-compatible with kepler's pruned-MMR
// file format, which is out of scope for this pipeline.
package mmr

import (
	"fmt"

	"wimblechain.dev/node/internal/chain"
)

// Backend persists MMR leaf hashes. Append/Truncate/Remove are the only
// mutating operations; everything else is a read.
type Backend interface {
	// Append adds a new leaf at the current size and grows size by one.
	Append(h chain.Hash) error
	// Get returns the leaf hash stored at pos, if any.
	Get(pos uint64) (chain.Hash, bool, error)
	// Size returns the current leaf count.
	Size() (uint64, error)
	// Truncate shrinks the backend to the given leaf count (rewind).
	Truncate(size uint64) error
	// Remove marks pos as pruned (spent); it stays part of the hash
	// accumulator (Get must still return it) but is flagged for UTXOView
	// spend-checks.
	Remove(pos uint64) error
	// Unprune reverses a prior Remove, used when a rewind walks back past
	// the block that spent pos.
	Unprune(pos uint64) error
	// Pruned reports whether pos has been marked removed.
	Pruned(pos uint64) (bool, error)
}

// MMR is a rewindable Merkle Mountain Range over a Backend.
type MMR struct {
	backend Backend
}

// New wraps a Backend as an MMR.
func New(backend Backend) *MMR {
	return &MMR{backend: backend}
}

// Size returns the current number of leaves.
func (m *MMR) Size() (uint64, error) {
	return m.backend.Size()
}

// Append adds leaf to the accumulator and returns its position.
func (m *MMR) Append(leaf chain.Hash) (uint64, error) {
	pos, err := m.backend.Size()
	if err != nil {
		return 0, err
	}
	if err := m.backend.Append(leaf); err != nil {
		return 0, err
	}
	return pos, nil
}

// Rewind truncates the accumulator back to size leaves. size must not exceed
// the current size (spec §4.2: rewind-to-position, never forward).
func (m *MMR) Rewind(size uint64) error {
	cur, err := m.backend.Size()
	if err != nil {
		return err
	}
	if size > cur {
		return fmt.Errorf("mmr: rewind target %d exceeds current size %d", size, cur)
	}
	return m.backend.Truncate(size)
}

// Remove marks the leaf at pos as pruned/spent.
func (m *MMR) Remove(pos uint64) error {
	return m.backend.Remove(pos)
}

// Unprune reverses a prior Remove, used by a rewind that walks back past
// the block which spent pos.
func (m *MMR) Unprune(pos uint64) error {
	return m.backend.Unprune(pos)
}

// Pruned reports whether the leaf at pos has been removed.
func (m *MMR) Pruned(pos uint64) (bool, error) {
	return m.backend.Pruned(pos)
}

// Leaf returns the leaf hash at pos.
func (m *MMR) Leaf(pos uint64) (chain.Hash, bool, error) {
	return m.backend.Get(pos)
}

// Root bags the peaks of the current forest into a single root hash. An
// empty MMR has the zero hash as its root.
func (m *MMR) Root() (chain.Hash, error) {
	size, err := m.backend.Size()
	if err != nil {
		return chain.Hash{}, err
	}
	if size == 0 {
		return chain.Hash{}, nil
	}

	peaks := peakSizes(size)
	var root chain.Hash
	start := uint64(0)
	first := true
	for _, width := range peaks {
		peakRoot, err := m.peakHash(start, width)
		if err != nil {
			return chain.Hash{}, err
		}
		if first {
			root = peakRoot
			first = false
		} else {
			root = nodeHash(root, peakRoot)
		}
		start += width
	}
	return root, nil
}

// peakHash recursively hashes the perfect binary subtree of `width` leaves
// starting at leaf index `start`.
func (m *MMR) peakHash(start, width uint64) (chain.Hash, error) {
	if width == 1 {
		h, ok, err := m.backend.Get(start)
		if err != nil {
			return chain.Hash{}, err
		}
		if !ok {
			return chain.Hash{}, fmt.Errorf("mmr: missing leaf at position %d", start)
		}
		return h, nil
	}
	half := width / 2
	left, err := m.peakHash(start, half)
	if err != nil {
		return chain.Hash{}, err
	}
	right, err := m.peakHash(start+half, half)
	if err != nil {
		return chain.Hash{}, err
	}
	return nodeHash(left, right), nil
}

// peakSizes decomposes size into descending powers of two, one per set bit
// of size, e.g. 13 (0b1101) -> [8, 4, 1].
func peakSizes(size uint64) []uint64 {
	var peaks []uint64
	for bit := uint(63); ; bit-- {
		w := uint64(1) << bit
		if size&w != 0 {
			peaks = append(peaks, w)
		}
		if bit == 0 {
			break
		}
	}
	return peaks
}

func nodeHash(left, right chain.Hash) chain.Hash {
	buf := make([]byte, 0, 65)
	buf = append(buf, 0x01)
	buf = append(buf, left[:]...)
	buf = append(buf, right[:]...)
	return chain.Hash(blake2bSum256(buf))
}
