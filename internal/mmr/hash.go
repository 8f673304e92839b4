package mmr

import "golang.org/x/crypto/blake2b"

func blake2bSum256(b []byte) [32]byte {
	return blake2b.Sum256(b)
}

// LeafHash hashes an arbitrary value into the 32-byte leaf form the MMR
// stores, tagging it so leaf and interior-node preimages never collide.
func LeafHash(b []byte) [32]byte {
	buf := make([]byte, 0, len(b)+1)
	buf = append(buf, 0x00)
	buf = append(buf, b...)
	return blake2b.Sum256(buf)
}
