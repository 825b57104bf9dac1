package leaderboard

import "errors"

// Sentinel kinds for leaderboard errors.
var (
	ErrInvalidConfig   = errors.New("invalid leaderboard configuration")
	ErrInvalidEntry    = errors.New("invalid entry")
	ErrUnknownList     = errors.New("unknown list")
	ErrCorruptSnapshot = errors.New("corrupt snapshot")
	ErrDecodeRecord    = errors.New("decode sync record")
	ErrEncodeRecord    = errors.New("encode sync record")
	ErrSyncInProgress  = errors.New("synchronization pass already in progress")
	ErrSyncNotActive   = errors.New("no synchronization pass in progress")
	ErrPersist         = errors.New("persist leaderboards")
)
