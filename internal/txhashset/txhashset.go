// Package txhashset implements the rewindable accumulator at the center of
// the pipeline (spec §4.2): three body MMRs (output, range-proof, kernel)
// plus a header MMR, mutated only through a scoped Extension/HeaderExtension
// opened by Extending/HeaderExtending/SyncExtending.
package txhashset

import (
	"wimblechain.dev/node/internal/chain"
	"wimblechain.dev/node/internal/mmr"
)

// outputEntry is the side index the output MMR needs to answer "does this
// commitment exist" and "is it currently spent" in O(1), since a commitment
// carries no positional information of its own.
type outputEntry struct {
	Position uint64
	Height   uint64
	Coinbase bool
}

// TxHashSet holds the four MMRs and the output commitment index every
// Extension reads and mutates.
type TxHashSet struct {
	Output     *mmr.MMR
	RangeProof *mmr.MMR
	Kernel     *mmr.MMR
	Header     *mmr.MMR

	outputIndex map[chain.Commitment]outputEntry
}

// Open wraps four already-opened MMR backends (in-memory for tests, file
// backends for a running node) as a TxHashSet.
func Open(output, rangeProof, kernel, header mmr.Backend) *TxHashSet {
	return &TxHashSet{
		Output:      mmr.New(output),
		RangeProof:  mmr.New(rangeProof),
		Kernel:      mmr.New(kernel),
		Header:      mmr.New(header),
		outputIndex: make(map[chain.Commitment]outputEntry),
	}
}

// OpenMem returns a TxHashSet backed entirely by in-memory MMRs, for tests
// and the automated-test node profile.
func OpenMem() *TxHashSet {
	return Open(mmr.NewMemBackend(), mmr.NewMemBackend(), mmr.NewMemBackend(), mmr.NewMemBackend())
}

// outputLeaf is the MMR leaf committed for an output: its feature flag and
// commitment, not the (potentially large, prunable) range proof.
func outputLeaf(o chain.Output) chain.Hash {
	buf := make([]byte, 0, 34)
	buf = append(buf, byte(o.Features))
	buf = append(buf, o.Commitment[:]...)
	return chain.Hash(mmr.LeafHash(buf))
}

func rangeProofLeaf(o chain.Output) chain.Hash {
	return chain.Hash(mmr.LeafHash(o.Proof))
}

func kernelLeaf(k chain.TxKernel) chain.Hash {
	buf := make([]byte, 0, 1+8+8+33+64)
	buf = append(buf, byte(k.Features))
	buf = appendU64(buf, k.Fee)
	buf = appendU64(buf, k.LockHeight)
	buf = append(buf, k.Excess[:]...)
	buf = append(buf, k.ExcessSig[:]...)
	return chain.Hash(mmr.LeafHash(buf))
}

func appendU64(dst []byte, v uint64) []byte {
	for i := 0; i < 8; i++ {
		dst = append(dst, byte(v>>(8*i)))
	}
	return dst
}

// OutputRecord is the read-only projection of an outputIndex entry exposed
// to callers outside a scoped extension (the REST facade's
// GET /v1/chain/output/<commit-hex>, spec §6).
type OutputRecord struct {
	Position uint64
	Height   uint64
	Coinbase bool
	Spent    bool
}

// OutputByCommitment looks up the current state of an output by its
// Pedersen commitment, for read-only queries outside any open extension.
func (t *TxHashSet) OutputByCommitment(c chain.Commitment) (OutputRecord, bool, error) {
	entry, ok := t.outputIndex[c]
	if !ok {
		return OutputRecord{}, false, nil
	}
	spent, err := t.Output.Pruned(entry.Position)
	if err != nil {
		return OutputRecord{}, false, err
	}
	return OutputRecord{
		Position: entry.Position,
		Height:   entry.Height,
		Coinbase: entry.Coinbase,
		Spent:    spent,
	}, true, nil
}

// CanonicalHashAtHeight returns the header hash committed at position height
// in the header MMR, i.e. the hash on whatever chain the header MMR
// currently represents -- used by the REST facade to resolve a height to a
// hash (spec §6 height/hash/commitment disambiguation).
func (t *TxHashSet) CanonicalHashAtHeight(height uint64) (chain.Hash, bool, error) {
	size, err := t.Header.Size()
	if err != nil {
		return chain.Hash{}, false, err
	}
	if height >= size {
		return chain.Hash{}, false, nil
	}
	return t.Header.Leaf(height)
}

// isOnCurrentChain reports whether header sits at its own height in the
// header MMR, i.e. whether it is an ancestor of whatever chain the header
// MMR currently represents (spec §4.2 Extension.is_on_current_chain).
func (t *TxHashSet) isOnCurrentChain(header chain.BlockHeader) (bool, error) {
	size, err := t.Header.Size()
	if err != nil {
		return false, err
	}
	if header.Height >= size {
		return false, nil
	}
	leaf, ok, err := t.Header.Leaf(header.Height)
	if err != nil || !ok {
		return false, err
	}
	return leaf == header.Hash(), nil
}
