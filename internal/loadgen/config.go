// Package loadgen drives a running hiscore service over HTTP: it submits
// generated scores concurrently, then checks every list against the ranking
// the same submissions produce in a local store.
package loadgen

import "time"

// Config holds configuration for a load run.
type Config struct {
	BaseURL     string        // Base URL of the service
	Submissions int           // Number of submissions to send
	Identities  int           // Distinct identities the scores are spread over
	Workers     int           // Concurrent HTTP senders
	Timeout     time.Duration // Per-request timeout
	WaitTimeout time.Duration // How long to wait for the service to converge
	Seed        uint64        // Generator seed
	DupEvery    int           // Resend an earlier submission every N; zero disables
}

// Stats holds run statistics.
type Stats struct {
	Generated  int
	Accepted   int64
	Duplicate  int64
	Rejected   int64
	Failed     int64
	ListsValid int
	Duration   time.Duration
}
