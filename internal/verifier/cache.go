// Package verifier implements the block-validation verifier cache (spec
// §4.3): a bounded, concurrency-safe memoization of expensive per-signature
// and per-range-proof verifications, keyed by a BLAKE2b fingerprint of the
// thing being verified. Its presence never changes a verdict, only whether
// that verdict had to be recomputed (spec §9: "correctness must not depend
// on hits").
package verifier

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/blake2b"
)

// Fingerprint is the cache key: a BLAKE2b-256 digest over whatever bytes
// uniquely identify the verification (signature+message, or proof+commitment).
type Fingerprint [32]byte

// Fingerprint256 hashes one or more byte slices into a single Fingerprint.
// Each part is prefixed with its length, so moving a boundary between parts
// changes the result.
func Fingerprint256(parts ...[]byte) Fingerprint {
	h, _ := blake2b.New256(nil)
	for _, p := range parts {
		var n [8]byte
		for i := range n {
			n[i] = byte(uint64(len(p)) >> (8 * i))
		}
		h.Write(n[:])
		h.Write(p)
	}
	var out Fingerprint
	copy(out[:], h.Sum(nil))
	return out
}

// Cache memoizes a verification's boolean outcome. It is safe for
// concurrent use (golang-lru/v2's Cache is internally mutex-guarded) and is
// shared by every pipeline invocation via a single handle, per spec §5.
type Cache struct {
	rangeProofs *lru.Cache[Fingerprint, bool]
	kernelSigs  *lru.Cache[Fingerprint, bool]
}

// DefaultCapacity is the per-kind entry bound used when none is specified.
const DefaultCapacity = 50_000

// New returns a Cache with the given per-kind capacity.
func New(capacity int) (*Cache, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	rp, err := lru.New[Fingerprint, bool](capacity)
	if err != nil {
		return nil, err
	}
	ks, err := lru.New[Fingerprint, bool](capacity)
	if err != nil {
		return nil, err
	}
	return &Cache{rangeProofs: rp, kernelSigs: ks}, nil
}

// RangeProofVerified looks up a cached range-proof verdict.
func (c *Cache) RangeProofVerified(fp Fingerprint) (bool, bool) {
	if c == nil {
		return false, false
	}
	return c.rangeProofs.Get(fp)
}

// SetRangeProofVerified records a range-proof verdict.
func (c *Cache) SetRangeProofVerified(fp Fingerprint, verified bool) {
	if c == nil {
		return
	}
	c.rangeProofs.Add(fp, verified)
}

// KernelSigVerified looks up a cached kernel-signature verdict.
func (c *Cache) KernelSigVerified(fp Fingerprint) (bool, bool) {
	if c == nil {
		return false, false
	}
	return c.kernelSigs.Get(fp)
}

// SetKernelSigVerified records a kernel-signature verdict.
func (c *Cache) SetKernelSigVerified(fp Fingerprint, verified bool) {
	if c == nil {
		return
	}
	c.kernelSigs.Add(fp, verified)
}
