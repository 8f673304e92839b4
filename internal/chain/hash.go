package chain

import "encoding/hex"

// Hash is a 32-byte BLAKE2b digest identifying a header, block, or kernel.
type Hash [32]byte

// ZeroHash is the distinguished "no parent" hash used by the genesis header.
var ZeroHash = Hash{}

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// Bytes returns h as a slice, for use as a store key or hash-function input.
func (h Hash) Bytes() []byte { return h[:] }

// IsZero reports whether h is the all-zero hash.
func (h Hash) IsZero() bool { return h == Hash{} }

// HashFromHex decodes a 64-character hex string into a Hash.
func HashFromHex(s string) (Hash, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, err
	}
	if len(raw) != 32 {
		return Hash{}, errLenMismatch("hash", 32, len(raw))
	}
	var h Hash
	copy(h[:], raw)
	return h, nil
}
