package loadgen

import (
	"fmt"

	"github.com/okian/hiscore/internal/domain/leaderboard"
	"github.com/okian/hiscore/internal/domain/types"
)

// Compare checks that got lists exactly the entries of want in order, with
// 1-based ranks.
func Compare(want []leaderboard.Entry, got []types.Entry) error {
	if len(want) != len(got) {
		return fmt.Errorf("%w: want %d entries, got %d", ErrMismatch, len(want), len(got))
	}
	for i := range want {
		w, g := want[i], got[i]
		if g.Rank != i+1 || g.Identity != w.Identity || g.Score != w.Score {
			return fmt.Errorf("%w: rank %d: want %s/%d, got %d %s/%d",
				ErrMismatch, i+1, w.Identity, w.Score, g.Rank, g.Identity, g.Score)
		}
	}
	return nil
}
