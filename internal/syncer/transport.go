// Package syncer runs leaderboard synchronization passes against a peer over a
// packet transport supplied by the caller.
package syncer

import (
	"context"

	"github.com/spacemeshos/go-scale"
)

// Transport moves whole packets between two replicas. Packets are delivered
// reliably and in order. Implementations report a closed peer from Receive.
type Transport interface {
	Send(ctx context.Context, packet []byte) error
	Receive(ctx context.Context) ([]byte, error)
}

// DialFunc opens a transport to the peer for one pass.
type DialFunc func(ctx context.Context) (Transport, error)

// Replica is the side of a leaderboard store a pass drives.
type Replica interface {
	BeginSync() error
	EndSync(ctx context.Context) error
	PrepareSend()
	ReadInboundRecord(dec *scale.Decoder) (bool, error)
	WriteOutboundRecord(enc *scale.Encoder) (bool, error)
}
