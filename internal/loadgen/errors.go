package loadgen

import "errors"

// Sentinel errors for load runs.
var (
	ErrUnexpectedResponse = errors.New("unexpected response")
	ErrMismatch           = errors.New("leaderboard mismatch")
)
