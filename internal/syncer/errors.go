package syncer

import "errors"

// Sentinel kinds for synchronization errors.
var (
	ErrTransportClosed = errors.New("transport closed")
	ErrNoDialer        = errors.New("no dial function configured")
)
