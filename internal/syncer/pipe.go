package syncer

import (
	"context"
	"slices"
	"sync"
)

const pipeBuffer = 16

// Pipe returns two connected in-memory transports. Packets sent on one are
// received on the other. Closing either end makes the peer's Receive return
// ErrTransportClosed once it has drained what was already sent.
func Pipe() (*PipeEnd, *PipeEnd) {
	ab := make(chan []byte, pipeBuffer)
	ba := make(chan []byte, pipeBuffer)
	a := &PipeEnd{in: ba, out: ab, done: make(chan struct{})}
	b := &PipeEnd{in: ab, out: ba, done: make(chan struct{})}
	a.peer, b.peer = b, a
	return a, b
}

// PipeEnd is one side of a Pipe.
type PipeEnd struct {
	in   <-chan []byte
	out  chan<- []byte
	done chan struct{}
	once sync.Once
	peer *PipeEnd
}

var _ Transport = (*PipeEnd)(nil)

// Send copies packet to the peer.
func (p *PipeEnd) Send(ctx context.Context, packet []byte) error {
	select {
	case <-p.done:
		return ErrTransportClosed
	case <-p.peer.done:
		return ErrTransportClosed
	default:
	}
	select {
	case p.out <- slices.Clone(packet):
		return nil
	case <-p.done:
		return ErrTransportClosed
	case <-p.peer.done:
		return ErrTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive returns the next packet from the peer.
func (p *PipeEnd) Receive(ctx context.Context) ([]byte, error) {
	select {
	case pkt := <-p.in:
		return pkt, nil
	default:
	}
	select {
	case pkt := <-p.in:
		return pkt, nil
	case <-p.done:
		return nil, ErrTransportClosed
	case <-p.peer.done:
		select {
		case pkt := <-p.in:
			return pkt, nil
		default:
			return nil, ErrTransportClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close shuts this end down. It is safe to call more than once.
func (p *PipeEnd) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
