package syncer

import (
	"time"

	"github.com/okian/hiscore/pkg/logger"
)

// DefaultRecordsPerPacket is how many records a Session packs into one packet.
const DefaultRecordsPerPacket = 16

// Option applies a configuration option to the Session.
type Option func(*Session)

// WithRecordsPerPacket sets the maximum number of records per outbound packet.
func WithRecordsPerPacket(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.recordsPerPacket = n
		}
	}
}

// WithSessionID sets the identifier attached to the pass's log lines.
func WithSessionID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// WithLogger sets a custom logger for the session.
func WithLogger(l logger.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// CoordinatorOption applies a configuration option to the Coordinator.
type CoordinatorOption func(*Coordinator)

// WithMinInterval sets the minimum time between the starts of two passes.
func WithMinInterval(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.minInterval = d
		}
	}
}

// WithSessionOptions sets options applied to every Session the coordinator runs.
func WithSessionOptions(opts ...Option) CoordinatorOption {
	return func(c *Coordinator) {
		c.sessionOpts = append(c.sessionOpts, opts...)
	}
}

// WithCoordinatorLogger sets a custom logger for the coordinator.
func WithCoordinatorLogger(l logger.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}
