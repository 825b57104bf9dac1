package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/okian/hiscore/internal/adapters/http/api"
	"github.com/okian/hiscore/internal/domain/types"
)

// Submission outcomes reported by PostScore.
const (
	OutcomeAccepted  = "accepted"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
)

// Client talks to the hiscore HTTP API.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a client for the service at base.
func NewClient(base string, timeout time.Duration) *Client {
	return &Client{base: base, http: &http.Client{Timeout: timeout}}
}

// ServiceShape is the part of /stats a run depends on.
type ServiceShape struct {
	Lists    []int `json:"lists"`
	Capacity int   `json:"capacity"`
}

// Shape reads list count and capacity from /stats.
func (c *Client) Shape(ctx context.Context) (ServiceShape, error) {
	var shape ServiceShape
	if err := c.getJSON(ctx, "/stats", &shape); err != nil {
		return shape, err
	}
	if len(shape.Lists) == 0 || shape.Capacity < 1 {
		return shape, fmt.Errorf("%w: stats carry no list shape", ErrUnexpectedResponse)
	}
	return shape, nil
}

// PostScore submits one score and classifies the response.
func (c *Client) PostScore(ctx context.Context, req api.ScoreRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/scores", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusAccepted:
		return OutcomeAccepted, nil
	case http.StatusOK:
		return OutcomeDuplicate, nil
	case http.StatusTooManyRequests:
		return OutcomeRejected, nil
	default:
		return "", fmt.Errorf("%w: POST /scores status %d", ErrUnexpectedResponse, resp.StatusCode)
	}
}

// Page fetches one page of list.
func (c *Client) Page(ctx context.Context, list, page, size int) (types.Page, error) {
	var out types.Page
	q := url.Values{"page": {strconv.Itoa(page)}, "size": {strconv.Itoa(size)}}
	err := c.getJSON(ctx, "/leaderboards/"+strconv.Itoa(list)+"?"+q.Encode(), &out)
	return out, err
}

// All walks the pages of list and returns every entry. The server may cap
// the requested size, so the size it reports drives the walk.
func (c *Client) All(ctx context.Context, list, sizeHint int) ([]types.Entry, error) {
	var all []types.Entry
	size := max(sizeHint, 1)
	for page := 0; ; page++ {
		p, err := c.Page(ctx, list, page, size)
		if err != nil {
			return nil, err
		}
		all = append(all, p.Entries...)
		if len(p.Entries) < p.Size || len(all) >= p.Total {
			return all, nil
		}
		size = p.Size
	}
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: GET %s status %d", ErrUnexpectedResponse, path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: decode %s: %w", ErrUnexpectedResponse, path, err)
	}
	return nil
}
