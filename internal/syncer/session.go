package syncer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spacemeshos/go-scale"
	"golang.org/x/sync/errgroup"

	"github.com/okian/hiscore/pkg/logger"
	"github.com/okian/hiscore/pkg/metrics"
)

// Session runs one synchronization pass: it streams the local container to
// the peer while merging everything the peer streams back.
type Session struct {
	replica          Replica
	id               string
	recordsPerPacket int
	logger           logger.Logger
}

// NewSession creates a session over replica.
func NewSession(replica Replica, opts ...Option) *Session {
	s := &Session{
		replica:          replica,
		id:               uuid.NewString(),
		recordsPerPacket: DefaultRecordsPerPacket,
		logger:           logger.Get().Named("sync"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Run performs the pass over t. Send and receive run concurrently and the pass
// ends when both directions have seen CONTAINER_END or one of them fails.
// EndSync always runs, so entries merged before a failure are still persisted.
func (s *Session) Run(ctx context.Context, t Transport) error {
	if err := s.replica.BeginSync(); err != nil {
		return err
	}
	start := time.Now()
	s.replica.PrepareSend()
	s.logger.Debug(ctx, "sync pass started", logger.String("session_id", s.id))

	g, gctx := errgroup.WithContext(ctx)
	var sent, received int
	g.Go(func() error {
		n, err := s.send(gctx, t)
		sent = n
		return err
	})
	g.Go(func() error {
		n, err := s.receive(gctx, t)
		received = n
		return err
	})
	runErr := g.Wait()

	endErr := s.replica.EndSync(context.WithoutCancel(ctx))
	err := errors.Join(runErr, endErr)
	elapsed := time.Since(start)

	fields := []logger.Field{
		logger.String("session_id", s.id),
		logger.Int("packets_sent", sent),
		logger.Int("packets_received", received),
		logger.Int64("elapsed_ms", elapsed.Milliseconds()),
	}
	if err != nil {
		metrics.RecordSyncPass("failed", elapsed)
		metrics.RecordErrorByComponent("sync", "pass")
		s.logger.Warn(ctx, "sync pass failed", append(fields, logger.Error(err))...)
		return err
	}
	metrics.RecordSyncPass("ok", elapsed)
	s.logger.Info(ctx, "sync pass completed", fields...)
	return nil
}

func (s *Session) send(ctx context.Context, t Transport) (int, error) {
	packets := 0
	for {
		var buf bytes.Buffer
		enc := scale.NewEncoder(&buf)
		done := false
		for i := 0; i < s.recordsPerPacket && !done; i++ {
			var err error
			if done, err = s.replica.WriteOutboundRecord(enc); err != nil {
				return packets, err
			}
		}
		if err := t.Send(ctx, buf.Bytes()); err != nil {
			return packets, fmt.Errorf("send packet %d: %w", packets, err)
		}
		packets++
		metrics.RecordPacketSent()
		if done {
			return packets, nil
		}
	}
}

func (s *Session) receive(ctx context.Context, t Transport) (int, error) {
	packets := 0
	for {
		pkt, err := t.Receive(ctx)
		if err != nil {
			return packets, fmt.Errorf("receive packet %d: %w", packets, err)
		}
		packets++
		metrics.RecordPacketReceived()

		r := bytes.NewReader(pkt)
		dec := scale.NewDecoder(r)
		for r.Len() > 0 {
			done, err := s.replica.ReadInboundRecord(dec)
			if err != nil {
				return packets, fmt.Errorf("packet %d: %w", packets, err)
			}
			if done {
				return packets, nil
			}
		}
	}
}
