package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/randalmurphal/careflow/stream"
)

// EventStream is a live SSE subscription to one thread's events.
// Events arrive on C until the thread reaches a terminal status, the
// context is cancelled, or Close is called; C is closed afterward.
type EventStream struct {
	// C delivers events in order. Closed when the stream ends.
	C <-chan stream.Event

	body io.Closer

	mu  sync.Mutex
	err error
}

// Close terminates the stream. Safe to call more than once.
func (s *EventStream) Close() error {
	return s.body.Close()
}

// Err reports why the stream ended. Nil after a terminal event or a
// clean Close.
func (s *EventStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *EventStream) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Stream subscribes to a thread's event feed. Requests with no
// deadline hold the connection open until the thread finishes;
// cancelling ctx closes it. Streaming bypasses the client's retry
// logic, a broken stream surfaces through Err.
func (c *Client) Stream(ctx context.Context, threadID string) (*EventStream, error) {
	path := "/api/v1/threads/" + url.PathEscape(threadID) + "/stream"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	// The default client carries a Timeout that would sever long
	// streams; use its transport with no deadline instead.
	streamClient := &http.Client{Transport: c.http.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("careflow stream failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, parseError(resp, path)
	}

	ch := make(chan stream.Event, 16)
	es := &EventStream{C: ch, body: resp.Body}
	go es.read(ctx, resp.Body, ch)
	return es, nil
}

// read parses the SSE body line by line. Comment lines (heartbeats)
// are skipped; only data lines carry events.
func (s *EventStream) read(ctx context.Context, body io.Reader, ch chan<- stream.Event) {
	defer close(ch)

	scanner := bufio.NewScanner(body)
	// State snapshots ride inside events; allow lines well past the
	// scanner's default.
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}

		var ev stream.Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			s.setErr(fmt.Errorf("decode stream event: %w", err))
			return
		}

		select {
		case ch <- ev:
		case <-ctx.Done():
			s.setErr(ctx.Err())
			return
		}

		if ev.Type == stream.EventCompleted || ev.Type == stream.EventError {
			return
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		s.setErr(fmt.Errorf("read stream: %w", err))
	}
}
