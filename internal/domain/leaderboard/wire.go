package leaderboard

import (
	"fmt"

	"github.com/spacemeshos/go-scale"
)

// Transfer record markers. A pass is an unbounded sequence of ENTRY records
// terminated by exactly one CONTAINER_END.
//
//	0x00 ENTRY:         byte listIndex, string identity, uint64 score
//	0x55 CONTAINER_END: no payload
//
// Records carry no length prefix, so a receiver that meets a marker it does
// not know cannot skip the payload that follows it. Unknown markers consume
// only the marker byte.
const (
	MarkerEntry        byte = 0x00
	MarkerContainerEnd byte = 0x55
)

// MaxLists is the number of lists addressable by the one-byte list index.
const MaxLists = 256

func encodeEntryRecord(enc *scale.Encoder, listIndex int, e *Entry) error {
	if _, err := scale.EncodeByte(enc, MarkerEntry); err != nil {
		return fmt.Errorf("%w: marker: %w", ErrEncodeRecord, err)
	}
	if _, err := scale.EncodeByte(enc, byte(listIndex)); err != nil {
		return fmt.Errorf("%w: list index: %w", ErrEncodeRecord, err)
	}
	if _, err := e.EncodeScale(enc); err != nil {
		return fmt.Errorf("%w: %w", ErrEncodeRecord, err)
	}
	return nil
}

func encodeContainerEnd(enc *scale.Encoder) error {
	if _, err := scale.EncodeByte(enc, MarkerContainerEnd); err != nil {
		return fmt.Errorf("%w: container end: %w", ErrEncodeRecord, err)
	}
	return nil
}
