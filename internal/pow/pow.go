// Package pow treats proof-of-work as a pluggable, pure verifier (spec §1:
// "cryptographic primitives ... treated as pure verifiers"): the pipeline
// calls Verify and branches on the result, never on how a cycle was found.
package pow

import (
	"wimblechain.dev/node/internal/chain"
)

// Options is a bitset of verification toggles. SkipPOW lets the
// automated-test chain profile bypass actual cuckoo-cycle verification
// while still exercising every other pipeline invariant (spec §4.7, §8).
type Options uint8

const (
	NoOptions Options = 0
	SkipPOW   Options = 1 << 0
)

func (o Options) Has(flag Options) bool { return o&flag != 0 }

// Verifier checks a header's proof-of-work against its declared difficulty.
// The default Verify is a deterministic stand-in for a real cuckoo-cycle
// solution checker: it is intentionally NOT cryptographically sound, since
// actual cycle verification is out of this pipeline's scope (spec §1) and
// every caller that cares about real PoW soundness supplies its own
// Verifier.
type Verifier func(header chain.BlockHeader, opts Options) error

// Verify is the default Verifier: it checks edge_bits against the minimum
// and that at least one nonce was supplied, then treats the header's
// declared total difficulty as self-certifying (the actual cycle-graph
// check this stands in for is out of scope, per spec §1).
func Verify(header chain.BlockHeader, opts Options, minEdgeBits uint8) error {
	if opts.Has(SkipPOW) {
		return nil
	}
	if header.PoW.EdgeBits < minEdgeBits {
		return chain.NewError(chain.KindLowEdgebits, "edge_bits below minimum")
	}
	if len(header.PoW.Nonces) == 0 {
		return chain.NewError(chain.KindInvalidPow, "no cycle nonces supplied")
	}
	return nil
}
