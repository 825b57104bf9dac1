package loadgen

import (
	"math/rand/v2"
	"strconv"

	"github.com/google/uuid"

	"github.com/okian/hiscore/internal/adapters/http/api"
)

const maxGeneratedScore = 1_000_000

// Generate builds cfg.Submissions requests spread over lists. Every
// cfg.DupEvery-th request repeats an earlier one verbatim.
func Generate(cfg Config, lists int) []api.ScoreRequest {
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	identities := max(cfg.Identities, 1)

	out := make([]api.ScoreRequest, 0, cfg.Submissions)
	for i := 0; i < cfg.Submissions; i++ {
		if cfg.DupEvery > 0 && i > 0 && i%cfg.DupEvery == 0 {
			out = append(out, out[rng.IntN(len(out))])
			continue
		}
		out = append(out, api.ScoreRequest{
			SubmissionID: uuid.NewString(),
			List:         rng.IntN(lists),
			Identity:     "player-" + strconv.Itoa(rng.IntN(identities)),
			Score:        rng.Int64N(maxGeneratedScore),
		})
	}
	return out
}
