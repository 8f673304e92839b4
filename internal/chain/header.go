package chain

import "golang.org/x/crypto/blake2b"

// ProofOfWork carries the cuckoo-cycle proof fields the spec requires on a
// header: edge_bits, the cycle nonces, and the secondary scaling factor used
// by the dual cuckoo ASIC-resistance scheme.
type ProofOfWork struct {
	EdgeBits         uint8
	SecondaryScaling uint32
	Nonces           []uint64
}

func (p ProofOfWork) encode(w *writer) {
	w.writeU8(p.EdgeBits)
	w.writeU32(p.SecondaryScaling)
	w.writeCompactSize(uint64(len(p.Nonces)))
	for _, n := range p.Nonces {
		w.writeU64(n)
	}
}

func decodeProofOfWork(c *cursor) (ProofOfWork, error) {
	var p ProofOfWork
	edgeBits, err := c.readU8()
	if err != nil {
		return p, err
	}
	p.EdgeBits = edgeBits
	scaling, err := c.readU32()
	if err != nil {
		return p, err
	}
	p.SecondaryScaling = scaling
	count, err := c.readCompactSize()
	if err != nil {
		return p, err
	}
	if count > 256 {
		return p, NewError(KindInternal, "pow: too many nonces")
	}
	p.Nonces = make([]uint64, count)
	for i := range p.Nonces {
		n, err := c.readU64()
		if err != nil {
			return p, err
		}
		p.Nonces[i] = n
	}
	return p, nil
}

// BlockHeader is the canonical header type (spec §3). TotalDifficulty is
// cumulative; OutputMMRSize/KernelMMRSize are the output and kernel MMR sizes
// declared at this header (the range-proof MMR shares the output MMR's size)
// so the pipeline can validate them against the TxHashSet after applying the
// block's body (spec I3).
type BlockHeader struct {
	Version           uint16
	Height            uint64
	PrevHash          Hash
	Timestamp         uint64
	TotalDifficulty   uint64
	OutputRoot        Hash
	RangeProofRoot    Hash
	KernelRoot        Hash
	OutputMMRSize     uint64
	KernelMMRSize     uint64
	TotalKernelOffset [32]byte // scalar, big-endian
	PoW               ProofOfWork
}

// Bytes returns the canonical little-endian serialization used both for
// on-disk storage and for hashing.
func (h BlockHeader) Bytes() []byte {
	w := newWriter()
	w.writeU32(uint32(h.Version))
	w.writeU64(h.Height)
	w.writeHash(h.PrevHash)
	w.writeU64(h.Timestamp)
	w.writeU64(h.TotalDifficulty)
	w.writeHash(h.OutputRoot)
	w.writeHash(h.RangeProofRoot)
	w.writeHash(h.KernelRoot)
	w.writeU64(h.OutputMMRSize)
	w.writeU64(h.KernelMMRSize)
	w.writeRaw(h.TotalKernelOffset[:])
	h.PoW.encode(w)
	return w.Bytes()
}

// DecodeBlockHeader parses a BlockHeader from its canonical byte layout.
func DecodeBlockHeader(b []byte) (BlockHeader, error) {
	c := newCursor(b)
	h, err := decodeHeaderFields(c)
	if err != nil {
		return h, err
	}
	if c.remaining() != 0 {
		return h, NewError(KindInternal, "header: trailing bytes")
	}
	return h, nil
}

// decodeHeaderFields reads one BlockHeader's fields from c without requiring
// c to be fully consumed — used by DecodeBlock, where the header is followed
// by the body.
func decodeHeaderFields(c *cursor) (BlockHeader, error) {
	var h BlockHeader
	version, err := c.readU32()
	if err != nil {
		return h, err
	}
	h.Version = uint16(version)
	if h.Height, err = c.readU64(); err != nil {
		return h, err
	}
	if h.PrevHash, err = c.readHash(); err != nil {
		return h, err
	}
	if h.Timestamp, err = c.readU64(); err != nil {
		return h, err
	}
	if h.TotalDifficulty, err = c.readU64(); err != nil {
		return h, err
	}
	if h.OutputRoot, err = c.readHash(); err != nil {
		return h, err
	}
	if h.RangeProofRoot, err = c.readHash(); err != nil {
		return h, err
	}
	if h.KernelRoot, err = c.readHash(); err != nil {
		return h, err
	}
	if h.OutputMMRSize, err = c.readU64(); err != nil {
		return h, err
	}
	if h.KernelMMRSize, err = c.readU64(); err != nil {
		return h, err
	}
	offset, err := c.readExact(32)
	if err != nil {
		return h, err
	}
	copy(h.TotalKernelOffset[:], offset)
	pow, err := decodeProofOfWork(c)
	if err != nil {
		return h, err
	}
	h.PoW = pow
	return h, nil
}

// Hash returns the header's BLAKE2b-256 digest over its canonical encoding.
func (h BlockHeader) Hash() Hash {
	return Hash(blake2b.Sum256(h.Bytes()))
}
