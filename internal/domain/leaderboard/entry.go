// Package leaderboard implements bounded ranked score lists and the container
// that persists them and synchronizes them with a peer record by record.
package leaderboard

import (
	"fmt"
	"unicode/utf8"

	"github.com/spacemeshos/go-scale"
)

// MaxIdentityLength bounds the byte length of an identity accepted from local
// submissions and inbound records.
const MaxIdentityLength = 64

// Entry is a single ranked record: who owns the score and how good it is.
//
// LastFillRank is the 1-based rank the entry had the last time it was copied
// into a page. It is never persisted or sent to peers and plays no part in
// ordering.
type Entry struct {
	Identity     string
	Score        int64
	LastFillRank int
}

// IsEmpty reports whether e is an unfilled page slot.
func (e Entry) IsEmpty() bool {
	return e.Identity == ""
}

// Validate checks that e can be stored in a list.
func (e Entry) Validate() error {
	switch {
	case e.Identity == "":
		return fmt.Errorf("%w: empty identity", ErrInvalidEntry)
	case len(e.Identity) > MaxIdentityLength:
		return fmt.Errorf("%w: identity longer than %d bytes", ErrInvalidEntry, MaxIdentityLength)
	case !utf8.ValidString(e.Identity):
		return fmt.Errorf("%w: identity is not valid utf-8", ErrInvalidEntry)
	}
	return nil
}

// ranksBefore orders entries by score DESC, then identity ASC. The tie-break
// keeps replicas that hold the same set of entries in the same order.
func ranksBefore(a, b *Entry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Identity < b.Identity
}

// EncodeScale implements scale.Encodable.
func (e *Entry) EncodeScale(enc *scale.Encoder) (int, error) {
	total := 0
	n, err := scale.EncodeString(enc, e.Identity)
	if err != nil {
		return total, fmt.Errorf("encode identity: %w", err)
	}
	total += n
	n, err = scale.EncodeUint64(enc, uint64(e.Score))
	if err != nil {
		return total, fmt.Errorf("encode score: %w", err)
	}
	total += n
	return total, nil
}

// DecodeScale implements scale.Decodable.
//
// An identity longer than MaxIdentityLength is consumed along with its score
// and reported as ErrInvalidEntry, leaving dec at the next record.
func (e *Entry) DecodeScale(dec *scale.Decoder) (int, error) {
	size, total, err := scale.DecodeCompact32(dec)
	if err != nil {
		return total, fmt.Errorf("decode identity length: %w", err)
	}
	oversize := size > MaxIdentityLength
	var id string
	if oversize {
		n, err := skipBytes(dec, size)
		total += n
		if err != nil {
			return total, fmt.Errorf("skip identity: %w", err)
		}
	} else if size > 0 {
		buf := make([]byte, size)
		n, err := scale.DecodeByteArray(dec, buf)
		total += n
		if err != nil {
			return total, fmt.Errorf("decode identity: %w", err)
		}
		id = string(buf)
	}
	score, n, err := scale.DecodeUint64(dec)
	if err != nil {
		return total, fmt.Errorf("decode score: %w", err)
	}
	total += n
	if oversize {
		return total, fmt.Errorf("%w: identity of %d bytes exceeds %d", ErrInvalidEntry, size, MaxIdentityLength)
	}
	e.Identity = id
	e.Score = int64(score)
	e.LastFillRank = 0
	return total, nil
}

func skipBytes(dec *scale.Decoder, size uint32) (int, error) {
	var buf [256]byte
	total := 0
	for remaining := int(size); remaining > 0; {
		chunk := min(remaining, len(buf))
		n, err := scale.DecodeByteArray(dec, buf[:chunk])
		total += n
		if err != nil {
			return total, err
		}
		remaining -= chunk
	}
	return total, nil
}

// IdentitySet is a set of identities used to filter a list, typically the
// caller plus their friends.
type IdentitySet map[string]struct{}

// NewIdentitySet builds a set from ids.
func NewIdentitySet(ids ...string) IdentitySet {
	s := make(IdentitySet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Contains reports whether id is in the set. A nil set contains nothing.
func (s IdentitySet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}
