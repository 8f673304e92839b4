package chain

// Tip identifies a chain frontier: the four named tips of spec §3
// (head, header_head, sync_head, body_tail) are all values of this type.
type Tip struct {
	LastBlockHash Hash
	PrevBlockHash Hash
	Height        uint64
	TotalDifficulty uint64
}

// TipFromHeader builds the Tip a header represents, taking its hash, parent
// hash, height and total difficulty from the header itself.
func TipFromHeader(h BlockHeader) Tip {
	return Tip{
		LastBlockHash:   h.Hash(),
		PrevBlockHash:   h.PrevHash,
		Height:          h.Height,
		TotalDifficulty: h.TotalDifficulty,
	}
}

// MoreWorkThan reports whether t has strictly greater total difficulty than
// other — the sole fork-choice rule (spec §4.9, P7: ties favor whichever
// arrived first, i.e. the existing tip is kept on a tie).
func (t Tip) MoreWorkThan(other Tip) bool {
	return t.TotalDifficulty > other.TotalDifficulty
}
