package leaderboard

import (
	"fmt"
	"slices"
	"sort"

	"github.com/spacemeshos/go-scale"
)

// Sentinels returned in place of a rank or cursor.
const (
	// NotFound is returned by the page-containing fills when the identity is absent.
	NotFound = -1
	// Exhausted is the transfer cursor value once a list has nothing left to send.
	Exhausted = -1
)

// RankedList is a capacity-bounded leaderboard for one category.
//
// Ordering: score DESC, then identity ASC. Identities are unique within the
// list and the lowest ranked entry is evicted when an insertion overflows
// capacity. RankedList does no locking of its own; Store serializes access.
type RankedList struct {
	capacity int
	entries  []Entry
	cursor   int
}

func newRankedList(capacity int) *RankedList {
	return &RankedList{
		capacity: capacity,
		entries:  make([]Entry, 0, min(capacity, 64)),
		cursor:   Exhausted,
	}
}

// Capacity returns the maximum number of retained entries.
func (l *RankedList) Capacity() int { return l.capacity }

// Len returns the number of entries in the full list.
func (l *RankedList) Len() int { return len(l.entries) }

// Contains reports whether an entry with identity exists.
func (l *RankedList) Contains(identity string) bool {
	return l.indexOf(identity) >= 0
}

func (l *RankedList) indexOf(identity string) int {
	return slices.IndexFunc(l.entries, func(e Entry) bool { return e.Identity == identity })
}

// position returns the index e would occupy among the current entries.
func (l *RankedList) position(e *Entry) int {
	return sort.Search(len(l.entries), func(i int) bool {
		return ranksBefore(e, &l.entries[i])
	})
}

// Merge applies e under keep-best-score-per-identity semantics and reports
// whether the stored data changed.
//
// An existing identity is replaced only by a strictly greater score. A new
// identity is inserted at its sorted position; if that overflows capacity the
// tail is evicted, which may be e itself (reported as unchanged).
func (l *RankedList) Merge(e Entry) bool {
	e.LastFillRank = 0

	if i := l.indexOf(e.Identity); i >= 0 {
		if e.Score <= l.entries[i].Score {
			return false
		}
		l.entries = slices.Delete(l.entries, i, i+1)
		l.entries = slices.Insert(l.entries, l.position(&e), e)
		return true
	}

	pos := l.position(&e)
	if pos >= l.capacity {
		return false
	}
	l.entries = slices.Insert(l.entries, pos, e)
	if len(l.entries) > l.capacity {
		clear(l.entries[l.capacity:])
		l.entries = l.entries[:l.capacity]
	}
	return true
}

// FilteredLen counts the entries whose identity is in set.
func (l *RankedList) FilteredLen(set IdentitySet) int {
	n := 0
	for i := range l.entries {
		if set.Contains(l.entries[i].Identity) {
			n++
		}
	}
	return n
}

// FillPage copies entries [pageNumber*len(page), (pageNumber+1)*len(page)) of
// the full list into page and returns how many slots were filled. Remaining
// slots are reset to the zero Entry.
func (l *RankedList) FillPage(pageNumber int, page []Entry) int {
	clear(page)
	start, ok := pageStart(pageNumber, len(page))
	if !ok {
		return 0
	}
	n := 0
	for i := range page {
		idx := start + i
		if idx >= len(l.entries) {
			break
		}
		page[i] = l.fill(idx)
		n++
	}
	return n
}

// FillFilteredPage is FillPage over the subsequence of entries in set. Ranks
// recorded are positions in the full list.
func (l *RankedList) FillFilteredPage(pageNumber int, set IdentitySet, page []Entry) int {
	clear(page)
	start, ok := pageStart(pageNumber, len(page))
	if !ok {
		return 0
	}
	n, k := 0, 0
	for idx := range l.entries {
		if !set.Contains(l.entries[idx].Identity) {
			continue
		}
		if k >= start {
			page[n] = l.fill(idx)
			n++
			if n == len(page) {
				break
			}
		}
		k++
	}
	return n
}

// FillPageContaining fills the page that holds identity and returns its rank.
// When identity is absent it fills page 0 and returns NotFound.
func (l *RankedList) FillPageContaining(identity string, page []Entry) int {
	idx := l.indexOf(identity)
	if idx < 0 {
		l.FillPage(0, page)
		return NotFound
	}
	if len(page) > 0 {
		l.FillPage(idx/len(page), page)
	}
	return idx + 1
}

// FillPageAround is FillPageContaining that also reports the page number it
// filled and the list length.
func (l *RankedList) FillPageAround(identity string, page []Entry) (rank, pageNumber, total int) {
	rank = l.FillPageContaining(identity, page)
	if rank != NotFound && len(page) > 0 {
		pageNumber = (rank - 1) / len(page)
	}
	return rank, pageNumber, len(l.entries)
}

// FillFilteredPageContaining fills the filtered page that holds identity and
// returns its full-list rank. Identity must be both in the list and in set;
// otherwise filtered page 0 is filled and NotFound returned.
func (l *RankedList) FillFilteredPageContaining(identity string, set IdentitySet, page []Entry) int {
	rank, _, _ := l.FillFilteredPageAround(identity, set, page)
	return rank
}

// FillFilteredPageAround is FillFilteredPageContaining that also reports the
// filtered page number it filled and the number of entries in set, all from
// one scan.
func (l *RankedList) FillFilteredPageAround(identity string, set IdentitySet, page []Entry) (rank, pageNumber, total int) {
	rank = NotFound
	pos := NotFound
	for idx := range l.entries {
		id := l.entries[idx].Identity
		if !set.Contains(id) {
			continue
		}
		if id == identity {
			rank, pos = idx+1, total
		}
		total++
	}
	if pos != NotFound && len(page) > 0 {
		pageNumber = pos / len(page)
	}
	l.FillFilteredPage(pageNumber, set, page)
	return rank, pageNumber, total
}

// fill stamps the rank on the stored entry and returns a copy for the page.
func (l *RankedList) fill(idx int) Entry {
	l.entries[idx].LastFillRank = idx + 1
	return l.entries[idx]
}

func pageStart(pageNumber, pageSize int) (int, bool) {
	if pageNumber < 0 || pageSize <= 0 {
		return 0, false
	}
	start := pageNumber * pageSize
	if start/pageSize != pageNumber {
		return 0, false
	}
	return start, true
}

// Entries returns a copy of the list in rank order.
func (l *RankedList) Entries() []Entry {
	return slices.Clone(l.entries)
}

// encode writes the entry count followed by every entry in stored order.
func (l *RankedList) encode(enc *scale.Encoder) (int, error) {
	total, err := scale.EncodeUint32(enc, uint32(len(l.entries)))
	if err != nil {
		return total, fmt.Errorf("encode entry count: %w", err)
	}
	for i := range l.entries {
		n, err := l.entries[i].EncodeScale(enc)
		total += n
		if err != nil {
			return total, fmt.Errorf("encode entry %d: %w", i, err)
		}
	}
	return total, nil
}

// decodeRankedList reads a list written by encode. Entries are taken in stored
// order; any beyond capacity are consumed and dropped.
func decodeRankedList(dec *scale.Decoder, capacity int) (*RankedList, error) {
	count, _, err := scale.DecodeUint32(dec)
	if err != nil {
		return nil, fmt.Errorf("decode entry count: %w", err)
	}
	l := newRankedList(capacity)
	for i := uint32(0); i < count; i++ {
		var e Entry
		if _, err := e.DecodeScale(dec); err != nil {
			return nil, fmt.Errorf("decode entry %d of %d: %w", i, count, err)
		}
		if len(l.entries) < capacity {
			l.entries = append(l.entries, e)
		}
	}
	return l, nil
}

// beginTransferPass rewinds the transfer cursor to the top of the list.
func (l *RankedList) beginTransferPass() {
	l.cursor = 0
}

// mergeInboundEntry decodes one entry payload and merges it. A payload that
// decodes but fails validation returns ErrInvalidEntry with nothing merged.
func (l *RankedList) mergeInboundEntry(dec *scale.Decoder) (bool, error) {
	var e Entry
	if _, err := e.DecodeScale(dec); err != nil {
		return false, err
	}
	if err := e.Validate(); err != nil {
		return false, err
	}
	return l.Merge(e), nil
}

// writeNextOutboundEntry encodes the entry under the cursor as an ENTRY record
// tagged with listIndex and returns the advanced cursor. It writes nothing and
// returns Exhausted once the list has been fully sent.
func (l *RankedList) writeNextOutboundEntry(enc *scale.Encoder, listIndex int) (int, error) {
	if l.cursor < 0 || l.cursor >= len(l.entries) {
		l.cursor = Exhausted
		return Exhausted, nil
	}
	if err := encodeEntryRecord(enc, listIndex, &l.entries[l.cursor]); err != nil {
		return l.cursor, err
	}
	l.cursor++
	return l.cursor, nil
}
