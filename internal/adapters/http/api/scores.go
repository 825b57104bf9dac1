package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/okian/hiscore/internal/domain/leaderboard"
	"github.com/okian/hiscore/internal/domain/model"
	"github.com/okian/hiscore/pkg/logger"
)

const maxScoreBodyBytes = 4 << 10

// ScoreRequest is the body of POST /scores.
type ScoreRequest struct {
	SubmissionID string `json:"submission_id,omitempty"`
	List         int    `json:"list"`
	Identity     string `json:"identity"`
	Score        int64  `json:"score"`
}

// ScoreResponse acknowledges a submission.
type ScoreResponse struct {
	Status       string `json:"status"`
	SubmissionID string `json:"submission_id"`
}

// ScoresHandler accepts local score submissions.
type ScoresHandler struct {
	deps Dependencies
}

// NewScoresHandler creates a new scores handler.
func NewScoresHandler(deps Dependencies) *ScoresHandler {
	return &ScoresHandler{deps: deps}
}

// HandlePostScore handles POST /scores. Accepted submissions are merged
// asynchronously; a repeated submission_id is acknowledged without effect.
func (h *ScoresHandler) HandlePostScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.scores.post"

	var req ScoreRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxScoreBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := h.validate(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_submission", WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.SubmissionID == "" {
		req.SubmissionID = uuid.NewString()
	}

	ctx := r.Context()
	if h.deps.SeenAndRecord(ctx, req.SubmissionID) {
		writeJSON(w, http.StatusOK, ScoreResponse{Status: "duplicate", SubmissionID: req.SubmissionID})
		return
	}

	sub := model.Submission{
		SubmissionID: req.SubmissionID,
		List:         req.List,
		Identity:     req.Identity,
		Score:        req.Score,
		TS:           time.Now(),
	}
	if !h.deps.Enqueue(ctx, sub) {
		// Let the client retry the same id.
		h.deps.Unrecord(ctx, req.SubmissionID)
		logger.Get().Warn(ctx, "submission rejected by backpressure",
			logger.String("submission_id", req.SubmissionID),
			logger.Int("list", req.List))
		writeError(w, http.StatusTooManyRequests, "backpressure", NewKind(op, ErrBackpressure))
		return
	}

	writeJSON(w, http.StatusAccepted, ScoreResponse{Status: "accepted", SubmissionID: req.SubmissionID})
}

func (h *ScoresHandler) validate(req ScoreRequest) error {
	if req.List < 0 || req.List >= h.deps.ListCount() {
		return fmt.Errorf("list %d out of range [0,%d)", req.List, h.deps.ListCount())
	}
	return leaderboard.Entry{Identity: req.Identity, Score: req.Score}.Validate()
}
