package store

import (
	"wimblechain.dev/node/internal/chain"
	"wimblechain.dev/node/internal/difficulty"
)

// DifficultyWindow walks back at most window headers starting at parent,
// oldest first, for use by the difficulty engine (spec §4.4). It is always
// called against a child (read-only) batch so iterating it can never
// observe or disturb the enclosing write batch's pending state.
func (b *Batch) DifficultyWindow(parent chain.Hash, window int) ([]difficulty.HeaderInfo, error) {
	var reversed []difficulty.HeaderInfo
	cur, err := b.GetBlockHeader(parent)
	if err != nil {
		return nil, err
	}
	for i := 0; i < window; i++ {
		blockDifficulty := cur.TotalDifficulty
		if cur.Height > 0 {
			prev, err := b.GetPreviousHeader(cur)
			if err != nil {
				return nil, err
			}
			blockDifficulty = cur.TotalDifficulty - prev.TotalDifficulty
		}
		reversed = append(reversed, difficulty.HeaderInfo{
			Timestamp:        cur.Timestamp,
			Difficulty:       blockDifficulty,
			SecondaryScaling: cur.PoW.SecondaryScaling,
		})
		if cur.Height == 0 {
			break
		}
		cur, err = b.GetPreviousHeader(cur)
		if err != nil {
			return nil, err
		}
	}

	out := make([]difficulty.HeaderInfo, len(reversed))
	for i, v := range reversed {
		out[len(reversed)-1-i] = v
	}
	return out, nil
}
