package chain

import (
	"bytes"
	"sort"
)

// OutputFeatures is the output feature-flag bitset (grounded in
// dblokhin-gringo's OutputFeatures: plain vs coinbase).
type OutputFeatures uint8

const (
	OutputPlain    OutputFeatures = 0
	OutputCoinbase OutputFeatures = 1 << 0
)

// KernelFeatures is the kernel feature-flag bitset.
type KernelFeatures uint8

const (
	KernelPlain    KernelFeatures = 0
	KernelCoinbase KernelFeatures = 1 << 0
)

// Commitment is a compressed Pedersen commitment rG+vH (spec GLOSSARY).
type Commitment [33]byte

// RangeProof is an opaque range-proof blob; its verification is delegated to
// a pluggable verifier (spec §1: crypto primitives are pure verifiers).
type RangeProof []byte

// Signature is an opaque Schnorr kernel signature; likewise pluggable.
type Signature [64]byte

// Input references a prior output by its Pedersen commitment (MimbleWimble
// has no separate outpoint index — the commitment IS the spend reference).
type Input struct {
	Features   OutputFeatures
	Commitment Commitment
}

// Output is a commitment, its range proof, and a feature flag.
type Output struct {
	Features   OutputFeatures
	Commitment Commitment
	Proof      RangeProof
}

// TxKernel carries the excess commitment, Schnorr signature, and fee/lock
// metadata for one aggregated transaction's worth of balance.
type TxKernel struct {
	Features     KernelFeatures
	Fee          uint64
	LockHeight   uint64
	Excess       Commitment
	ExcessSig    Signature
}

type (
	InputList  []Input
	OutputList []Output
	KernelList []TxKernel
)

func (l InputList) Len() int      { return len(l) }
func (l InputList) Swap(i, j int) { l[i], l[j] = l[j], l[i] }
func (l InputList) Less(i, j int) bool {
	return bytes.Compare(l[i].Commitment[:], l[j].Commitment[:]) < 0
}

func (l OutputList) Len() int      { return len(l) }
func (l OutputList) Swap(i, j int) { l[i], l[j] = l[j], l[i] }
func (l OutputList) Less(i, j int) bool {
	return bytes.Compare(l[i].Commitment[:], l[j].Commitment[:]) < 0
}

func (l KernelList) Len() int      { return len(l) }
func (l KernelList) Swap(i, j int) { l[i], l[j] = l[j], l[i] }
func (l KernelList) Less(i, j int) bool {
	return bytes.Compare(l[i].Excess[:], l[j].Excess[:]) < 0
}

// Block is a header plus the three ordered body sequences (spec §3).
type Block struct {
	Header  BlockHeader
	Inputs  InputList
	Outputs OutputList
	Kernels KernelList
}

// Bytes serializes the block body in canonical sorted order, consensus rule
// inherited from the MimbleWimble family (dblokhin-gringo's Block.Bytes):
// inputs, outputs, and kernels must each be sorted by commitment before
// being written, so two blocks with the same contents hash identically
// regardless of construction order.
func (b *Block) Bytes() []byte {
	sort.Sort(b.Inputs)
	sort.Sort(b.Outputs)
	sort.Sort(b.Kernels)

	w := newWriter()
	w.writeRaw(b.Header.Bytes())
	w.writeCompactSize(uint64(len(b.Inputs)))
	w.writeCompactSize(uint64(len(b.Outputs)))
	w.writeCompactSize(uint64(len(b.Kernels)))

	for _, in := range b.Inputs {
		w.writeU8(byte(in.Features))
		w.writeRaw(in.Commitment[:])
	}
	for _, out := range b.Outputs {
		w.writeU8(byte(out.Features))
		w.writeRaw(out.Commitment[:])
		w.writeCompactSize(uint64(len(out.Proof)))
		w.writeRaw(out.Proof)
	}
	for _, k := range b.Kernels {
		w.writeU8(byte(k.Features))
		w.writeU64(k.Fee)
		w.writeU64(k.LockHeight)
		w.writeRaw(k.Excess[:])
		w.writeRaw(k.ExcessSig[:])
	}
	return w.Bytes()
}

// DecodeBlock parses a Block from its canonical byte layout.
func DecodeBlock(raw []byte) (*Block, error) {
	c := newCursor(raw)
	header, err := decodeHeaderFields(c)
	if err != nil {
		return nil, err
	}

	nIn, err := c.readCompactSize()
	if err != nil {
		return nil, err
	}
	nOut, err := c.readCompactSize()
	if err != nil {
		return nil, err
	}
	nKern, err := c.readCompactSize()
	if err != nil {
		return nil, err
	}
	const maxCount = 1_000_000
	if nIn > maxCount || nOut > maxCount || nKern > maxCount {
		return nil, NewError(KindInternal, "block: count exceeds sanity bound")
	}

	blk := &Block{Header: header}
	blk.Inputs = make(InputList, nIn)
	for i := range blk.Inputs {
		feat, err := c.readU8()
		if err != nil {
			return nil, err
		}
		commit, err := c.readExact(33)
		if err != nil {
			return nil, err
		}
		var cm Commitment
		copy(cm[:], commit)
		blk.Inputs[i] = Input{Features: OutputFeatures(feat), Commitment: cm}
	}

	blk.Outputs = make(OutputList, nOut)
	for i := range blk.Outputs {
		feat, err := c.readU8()
		if err != nil {
			return nil, err
		}
		commit, err := c.readExact(33)
		if err != nil {
			return nil, err
		}
		proofLen, err := c.readCompactSize()
		if err != nil {
			return nil, err
		}
		if proofLen > 10_000 {
			return nil, NewError(KindInternal, "block: range proof too large")
		}
		proof, err := c.readExact(int(proofLen))
		if err != nil {
			return nil, err
		}
		var cm Commitment
		copy(cm[:], commit)
		blk.Outputs[i] = Output{
			Features:   OutputFeatures(feat),
			Commitment: cm,
			Proof:      append(RangeProof(nil), proof...),
		}
	}

	blk.Kernels = make(KernelList, nKern)
	for i := range blk.Kernels {
		feat, err := c.readU8()
		if err != nil {
			return nil, err
		}
		fee, err := c.readU64()
		if err != nil {
			return nil, err
		}
		lockHeight, err := c.readU64()
		if err != nil {
			return nil, err
		}
		excess, err := c.readExact(33)
		if err != nil {
			return nil, err
		}
		sig, err := c.readExact(64)
		if err != nil {
			return nil, err
		}
		var excessC Commitment
		copy(excessC[:], excess)
		var sigC Signature
		copy(sigC[:], sig)
		blk.Kernels[i] = TxKernel{
			Features:   KernelFeatures(feat),
			Fee:        fee,
			LockHeight: lockHeight,
			Excess:     excessC,
			ExcessSig:  sigC,
		}
	}

	if c.remaining() != 0 {
		return nil, NewError(KindInternal, "block: trailing bytes")
	}
	return blk, nil
}
