package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/hiscore/internal/domain/leaderboard"
	"github.com/okian/hiscore/internal/domain/types"
)

// LeaderboardHandler serves read queries over the ranked lists.
type LeaderboardHandler struct {
	lists       Leaderboards
	maxPageSize int
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(lists Leaderboards, maxPageSize int) *LeaderboardHandler {
	if maxPageSize <= 0 {
		maxPageSize = DefaultMaxPageSize
	}
	return &LeaderboardHandler{lists: lists, maxPageSize: maxPageSize}
}

type pageQuery struct {
	list    int
	page    int
	size    int
	friends leaderboard.IdentitySet
}

// HandleGetPage handles GET /leaderboards/{list}?page=N&size=M&friends=a,b.
func (h *LeaderboardHandler) HandleGetPage(w http.ResponseWriter, r *http.Request) {
	const op = "api.leaderboard.page"

	q, err := h.parseQuery(r)
	if err != nil {
		h.writeQueryError(w, op, err)
		return
	}

	buf := make([]leaderboard.Entry, q.size)
	n, total := h.lists.ReadPage(q.list, q.page, q.friends, buf)
	writeJSON(w, http.StatusOK, toPage(q, total, buf[:n], nil))
}

// HandleGetAround handles GET /leaderboards/{list}/around/{identity}. It
// returns the page holding identity and its rank; when identity is not
// ranked it returns page 0 without a rank.
func (h *LeaderboardHandler) HandleGetAround(w http.ResponseWriter, r *http.Request) {
	const op = "api.leaderboard.around"

	q, err := h.parseQuery(r)
	if err != nil {
		h.writeQueryError(w, op, err)
		return
	}
	identity := r.PathValue("identity")
	if identity == "" {
		writeError(w, http.StatusBadRequest, "invalid_identity", NewKind(op, ErrBadRequest))
		return
	}

	buf := make([]leaderboard.Entry, q.size)
	var rank, total int
	if q.friends != nil {
		rank, q.page, total = h.lists.FillFilteredPageAround(q.list, identity, q.friends, buf)
	} else {
		rank, q.page, total = h.lists.FillPageAround(q.list, identity, buf)
	}

	var rankPtr *int
	if rank != leaderboard.NotFound {
		rankPtr = &rank
	}
	writeJSON(w, http.StatusOK, toPage(q, total, filled(buf), rankPtr))
}

func (h *LeaderboardHandler) parseQuery(r *http.Request) (pageQuery, error) {
	q := pageQuery{size: DefaultPageSize}

	list, err := strconv.Atoi(r.PathValue("list"))
	if err != nil {
		return q, fmt.Errorf("%w: list: %w", ErrBadRequest, err)
	}
	if list < 0 || list >= h.lists.ListCount() {
		return q, fmt.Errorf("%w: list %d", ErrNotFound, list)
	}
	q.list = list

	values := r.URL.Query()
	if v := values.Get("page"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p < 0 {
			return q, fmt.Errorf("%w: page %q", ErrBadRequest, v)
		}
		q.page = p
	}
	if v := values.Get("size"); v != "" {
		s, err := strconv.Atoi(v)
		if err != nil || s <= 0 {
			return q, fmt.Errorf("%w: size %q", ErrBadRequest, v)
		}
		q.size = s
	}
	q.size = min(q.size, h.maxPageSize)
	if values.Has("friends") {
		var ids []string
		for _, id := range strings.Split(values.Get("friends"), ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		q.friends = leaderboard.NewIdentitySet(ids...)
	}
	return q, nil
}

func (h *LeaderboardHandler) writeQueryError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown_list", Wrap(op, err))
		return
	}
	writeError(w, http.StatusBadRequest, "invalid_query", Wrap(op, err))
}

// filled trims the unfilled tail of a page buffer.
func filled(buf []leaderboard.Entry) []leaderboard.Entry {
	for i, e := range buf {
		if e.IsEmpty() {
			return buf[:i]
		}
	}
	return buf
}

func toPage(q pageQuery, total int, entries []leaderboard.Entry, rank *int) types.Page {
	out := types.Page{
		List:    q.list,
		Page:    q.page,
		Size:    q.size,
		Total:   total,
		Rank:    rank,
		Entries: make([]types.Entry, 0, len(entries)),
	}
	for _, e := range entries {
		out.Entries = append(out.Entries, types.Entry{
			Rank:     e.LastFillRank,
			Identity: e.Identity,
			Score:    e.Score,
		})
	}
	return out
}
