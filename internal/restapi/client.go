// Package restapi is the client for the research server's REST collaborator
// endpoints: liveness, thread listing and authoritative thread state.
package restapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/Milix-M/DeepReSearch/pkg/errors"
)

// Health is the /healthz response.
type Health struct {
	Status    string         `json:"status"`
	Timestamp string         `json:"timestamp"`
	Details   map[string]any `json:"details"`
}

// ThreadList is the /threads response.
type ThreadList struct {
	ActiveThreadIDs     []string `json:"active_thread_ids"`
	PendingInterruptIDs []string `json:"pending_interrupt_ids"`
	ActiveCount         int      `json:"active_count"`
	PendingCount        int      `json:"pending_count"`
}

// Interrupt is a pending human-approval checkpoint as reported by the server.
type Interrupt struct {
	ID    string `json:"id"`
	Value any    `json:"value"`
}

// ThreadState is the /threads/{id}/state response. State is kept loosely
// typed; its known keys (research_plan, research_parameters, report,
// research_report, analysys, messages) vary by workflow phase.
type ThreadState struct {
	ThreadID         string         `json:"thread_id"`
	Status           string         `json:"status"`
	State            map[string]any `json:"state"`
	PendingInterrupt *Interrupt     `json:"pending_interrupt"`
}

// Client calls the research server. Safe for concurrent use.
type Client struct {
	base string
	http *http.Client
}

// New creates a client for the given base URL, e.g. "http://localhost:8000".
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

// Health checks server liveness.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	if err := c.getJSON(ctx, "/healthz", &out); err != nil {
		return Health{}, apperrors.Wrap(err, "RestAPI.Health", "health check failed")
	}
	return out, nil
}

// Threads lists active and pending-interrupt thread ids.
func (c *Client) Threads(ctx context.Context) (ThreadList, error) {
	var out ThreadList
	if err := c.getJSON(ctx, "/threads", &out); err != nil {
		return ThreadList{}, apperrors.Wrap(err, "RestAPI.Threads", "list threads failed")
	}
	return out, nil
}

// ThreadState fetches one thread's authoritative state. An unknown id yields
// ErrNotFound.
func (c *Client) ThreadState(ctx context.Context, threadID string) (ThreadState, error) {
	id := strings.TrimSpace(threadID)
	if id == "" {
		return ThreadState{}, apperrors.Wrap(apperrors.ErrInvalidInput, "RestAPI.ThreadState", "empty thread id")
	}
	var out ThreadState
	path := "/threads/" + url.PathEscape(id) + "/state"
	if err := c.getJSON(ctx, path, &out); err != nil {
		return ThreadState{}, apperrors.Wrapf(err, "RestAPI.ThreadState", "fetch state for %s", id)
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: %v", apperrors.ErrTimeout, err)
		}
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return apperrors.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

// isTimeout matches both a context deadline and the http.Client timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
