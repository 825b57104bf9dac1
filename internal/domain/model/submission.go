// Package model contains domain models passed between layers.
package model

import "time"

// Submission is a locally produced score waiting to be merged into a list.
type Submission struct {
	SubmissionID string    // unique id for idempotency
	List         int       // leaderboard index
	Identity     string    // score owner
	Score        int64     // raw score, higher is better
	TS           time.Time // time the submission was accepted
}
