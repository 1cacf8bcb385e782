package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/randalmurphal/careflow"
	"github.com/randalmurphal/careflow/checkpoint"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 30 * time.Second

// DefaultMaxRetries is the default number of attempts per request.
const DefaultMaxRetries = 3

// DefaultRetryWait is the default initial wait between retries.
const DefaultRetryWait = 1 * time.Second

// Client talks to a careflow server.
type Client struct {
	http       *http.Client
	baseURL    string
	token      string
	maxRetries int
	retryWait  time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. The replacement
// should not set a Timeout if Stream is used; stream connections stay
// open indefinitely.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithToken sets the bearer credential: an API key or a reviewer JWT.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithMaxRetries overrides the number of attempts per request.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

// WithRetryWait overrides the initial wait between retries.
func WithRetryWait(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.retryWait = d
		}
	}
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		maxRetries: DefaultMaxRetries,
		retryWait:  DefaultRetryWait,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: DefaultTimeout}
	}
	return c
}

// =============================================================================
// Operations
// =============================================================================

// StartThreadRequest starts a new workflow thread.
type StartThreadRequest struct {
	Intent       string `json:"intent"`
	Mode         string `json:"mode,omitempty"`
	MaxRevisions int    `json:"maxRevisions,omitempty"`
}

// ResumeRequest carries a reviewer decision for a suspended thread.
type ResumeRequest struct {
	Action   string             `json:"action"`
	Feedback string             `json:"feedback,omitempty"`
	Draft    *careflow.Exercise `json:"draft,omitempty"`
}

// StartThread starts a thread and returns its id. The thread executes
// server-side; watch it with Stream or poll GetState.
func (c *Client) StartThread(ctx context.Context, req StartThreadRequest) (string, error) {
	var resp struct {
		ThreadID string `json:"threadId"`
	}
	if err := c.post(ctx, "/api/v1/threads", req, &resp); err != nil {
		return "", err
	}
	return resp.ThreadID, nil
}

// GetState returns the thread's state from its latest checkpoint.
func (c *Client) GetState(ctx context.Context, threadID string) (careflow.State, error) {
	var state careflow.State
	err := c.get(ctx, "/api/v1/threads/"+url.PathEscape(threadID), &state)
	return state, err
}

// Threads lists registered threads, most recently updated first. A
// limit <= 0 uses the server default.
func (c *Client) Threads(ctx context.Context, limit int) ([]checkpoint.ThreadMeta, error) {
	var resp struct {
		Threads []checkpoint.ThreadMeta `json:"threads"`
	}
	if err := c.get(ctx, "/api/v1/threads"+limitQuery(limit), &resp); err != nil {
		return nil, err
	}
	return resp.Threads, nil
}

// History returns the thread's checkpoints in ascending seq order. A
// limit <= 0 returns all of them.
func (c *Client) History(ctx context.Context, threadID string, limit int) ([]checkpoint.Checkpoint, error) {
	var resp struct {
		Checkpoints []checkpoint.Checkpoint `json:"checkpoints"`
	}
	path := "/api/v1/threads/" + url.PathEscape(threadID) + "/history" + limitQuery(limit)
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Checkpoints, nil
}

// Resume applies a decision to a thread suspended at the human gate.
func (c *Client) Resume(ctx context.Context, threadID string, req ResumeRequest) error {
	path := "/api/v1/threads/" + url.PathEscape(threadID) + "/resume"
	return c.post(ctx, path, req, nil)
}

// Approve accepts the suspended thread's draft as-is.
func (c *Client) Approve(ctx context.Context, threadID string) error {
	return c.Resume(ctx, threadID, ResumeRequest{Action: string(careflow.DecisionApprove)})
}

// Revise sends the suspended thread's draft back with feedback.
func (c *Client) Revise(ctx context.Context, threadID, feedback string) error {
	return c.Resume(ctx, threadID, ResumeRequest{
		Action:   string(careflow.DecisionRevise),
		Feedback: feedback,
	})
}

// CreateExercise runs a full autonomous thread and returns the
// rendered exercise. Blocks for the duration of the workflow.
func (c *Client) CreateExercise(ctx context.Context, intent string) (careflow.Artifact, error) {
	var artifact careflow.Artifact
	err := c.post(ctx, "/api/v1/exercise", struct {
		Intent string `json:"intent"`
	}{Intent: intent}, &artifact)
	return artifact, err
}

// Health checks the server's liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/healthz", nil)
}

// =============================================================================
// Transport
// =============================================================================

// do executes a request with retries for transient failures: network
// errors, 429, and 5xx. A 429's Retry-After header overrides the
// exponential backoff.
func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		payload = data
	}

	var lastErr error
	for attempt := range c.maxRetries {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if attempt < c.maxRetries-1 {
				if waitErr := c.wait(ctx, c.retryWait*time.Duration(1<<attempt)); waitErr != nil {
					return nil, waitErr
				}
				continue
			}
			return nil, fmt.Errorf("careflow request failed: %w", err)
		}

		if retryableStatus(resp.StatusCode) && attempt < c.maxRetries-1 {
			wait := c.retryDelay(resp, attempt)
			resp.Body.Close()
			if waitErr := c.wait(ctx, wait); waitErr != nil {
				return nil, waitErr
			}
			continue
		}

		return resp, nil
	}

	return nil, lastErr
}

func (c *Client) wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// retryDelay prefers the server's Retry-After over local backoff.
func (c *Client) retryDelay(resp *http.Response, attempt int) time.Duration {
	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return c.retryWait * time.Duration(1<<attempt)
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.handleResponse(resp, path, result)
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	resp, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.handleResponse(resp, path, result)
}

func (c *Client) handleResponse(resp *http.Response, path string, result any) error {
	if resp.StatusCode >= 400 {
		return parseError(resp, path)
	}
	if result == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode careflow response: %w", err)
	}
	return nil
}

// parseError builds an APIError from the server's {error, code} body.
func parseError(resp *http.Response, path string) error {
	body, _ := io.ReadAll(resp.Body)

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Endpoint:   path,
	}

	var errResp struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if json.Unmarshal(body, &errResp) == nil {
		apiErr.Message = errResp.Error
		apiErr.Code = errResp.Code
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}

	return apiErr
}

func limitQuery(limit int) string {
	if limit <= 0 {
		return ""
	}
	return "?limit=" + strconv.Itoa(limit)
}
