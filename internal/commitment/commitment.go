// Package commitment implements the Pedersen-commitment group arithmetic the
// pipeline's kernel-sum identity (spec I4) needs: adding and negating
// 33-byte compressed commitments over secp256k1. Range-proof and
// Schnorr-signature verification stay behind the pluggable verifier
// interfaces spec §1 calls for; this package only ever does group addition,
// never anything that requires knowing the committed value or blinding
// factor.
package commitment

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"

	"wimblechain.dev/node/internal/chain"
)

// Zero is the identity-like placeholder used when summing an empty set; it
// is not a valid curve point and must never be returned from Sum/Add.
var Zero chain.Commitment

// Parse decodes a 33-byte compressed commitment into a curve point.
func Parse(c chain.Commitment) (*btcec.PublicKey, error) {
	pk, err := btcec.ParsePubKey(c[:])
	if err != nil {
		return nil, fmt.Errorf("commitment: invalid point: %w", err)
	}
	return pk, nil
}

// Serialize re-encodes a curve point as a compressed commitment.
func Serialize(pk *btcec.PublicKey) chain.Commitment {
	var c chain.Commitment
	copy(c[:], pk.SerializeCompressed())
	return c
}

// Add returns the commitment sum a+b (homomorphic addition: (r1+r2)G +
// (v1+v2)H).
func Add(a, b chain.Commitment) (chain.Commitment, error) {
	pa, err := Parse(a)
	if err != nil {
		return chain.Commitment{}, err
	}
	pb, err := Parse(b)
	if err != nil {
		return chain.Commitment{}, err
	}
	var jA, jB, sum btcec.JacobianPoint
	pa.AsJacobian(&jA)
	pb.AsJacobian(&jB)
	btcec.AddNonConst(&jA, &jB, &sum)
	sum.ToAffine()
	return Serialize(btcec.NewPublicKey(&sum.X, &sum.Y)), nil
}

// Negate returns -a, i.e. the commitment to (-r, -v).
func Negate(a chain.Commitment) (chain.Commitment, error) {
	pa, err := Parse(a)
	if err != nil {
		return chain.Commitment{}, err
	}
	var j btcec.JacobianPoint
	pa.AsJacobian(&j)
	j.Y.Negate(1)
	j.Y.Normalize()
	j.ToAffine()
	return Serialize(btcec.NewPublicKey(&j.X, &j.Y)), nil
}

// Sum folds Add across a slice of commitments; an empty slice is an error,
// since there is no well-defined "zero commitment" on the curve.
func Sum(cs []chain.Commitment) (chain.Commitment, error) {
	if len(cs) == 0 {
		return chain.Commitment{}, fmt.Errorf("commitment: sum of empty set")
	}
	acc := cs[0]
	for _, c := range cs[1:] {
		var err error
		acc, err = Add(acc, c)
		if err != nil {
			return chain.Commitment{}, err
		}
	}
	return acc, nil
}

// SumOrZero is Sum but tolerates an empty slice by returning Zero, for
// call-sites that fold an optional commitment into a running sum via Add.
func SumOrZero(cs []chain.Commitment) (chain.Commitment, error) {
	if len(cs) == 0 {
		return Zero, nil
	}
	return Sum(cs)
}

// ScalarCommitment returns scalar*G, the group element a bare (unblinded)
// scalar maps to. The kernel-sum identity (spec I4) closes an equation of
// curve points; overage (an int64 value) and the kernel offset (a scalar)
// both need to be lifted onto the curve via this before they can be added
// to or subtracted from a Pedersen sum. Using a single generator for both
// the value and blinding axes is the toy simplification this pipeline makes
// per spec §1 ("range proofs ... treated as pure verifiers"): it preserves
// the additive homomorphism the identity relies on without pulling in a
// second independent generator point.
func ScalarCommitment(scalar [32]byte) (chain.Commitment, error) {
	var modScalar btcec.ModNScalar
	modScalar.SetBytes(&scalar)
	var result btcec.JacobianPoint
	btcec.ScalarBaseMultNonConst(&modScalar, &result)
	if result.Z.IsZero() {
		// scalar == 0: the identity element. Represent it as the
		// generator point minus itself is undefined on the curve, so
		// return an explicit zero-commitment sentinel instead.
		return Zero, nil
	}
	result.ToAffine()
	return Serialize(btcec.NewPublicKey(&result.X, &result.Y)), nil
}

// ValueCommitment lifts a signed integer value (e.g. overage) onto the
// curve via ScalarCommitment, encoding negative values as the negation of
// the positive magnitude's commitment.
func ValueCommitment(v int64) (chain.Commitment, error) {
	neg := v < 0
	mag := uint64(v)
	if neg {
		mag = uint64(-v)
	}
	var scalar [32]byte
	for i := 0; i < 8; i++ {
		scalar[31-i] = byte(mag >> (8 * i))
	}
	c, err := ScalarCommitment(scalar)
	if err != nil {
		return chain.Commitment{}, err
	}
	if c == Zero {
		return Zero, nil
	}
	if neg {
		return Negate(c)
	}
	return c, nil
}

// AddSigned adds b to a if b != Zero, tolerating the Zero sentinel produced
// by ValueCommitment/ScalarCommitment for a zero scalar.
func AddSigned(a, b chain.Commitment) (chain.Commitment, error) {
	if b == Zero {
		return a, nil
	}
	if a == Zero {
		return b, nil
	}
	return Add(a, b)
}
