package integrationtest

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/careflow"
	"github.com/randalmurphal/careflow/client"
	"github.com/randalmurphal/careflow/llm"
	"github.com/randalmurphal/careflow/server"
	"github.com/randalmurphal/careflow/testutil"
)

// stack is a full careflow deployment under test: a real service over
// a throwaway SQLite store, the HTTP server in front of it, and an SDK
// client pointed at it. Tests assert through the API only; the store
// and service stay behind the HTTP boundary.
type stack struct {
	api *client.Client
	url string
}

// newStack builds the deployment. Server options come from cfg; client
// options apply on top of a fast retry wait.
func newStack(t *testing.T, llmClient llm.Client, cfg server.Config, clientOpts ...client.Option) *stack {
	t.Helper()

	svc := testutil.NewService(t, llmClient, careflow.ServiceConfig{})

	srv := server.New(svc, cfg)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	opts := append([]client.Option{client.WithRetryWait(time.Millisecond)}, clientOpts...)
	return &stack{
		api: client.New(ts.URL, opts...),
		url: ts.URL,
	}
}

// waitStatus polls the API until the thread reports the wanted status
// and returns the state it saw.
func waitStatus(t *testing.T, api *client.Client, threadID string, want careflow.Status) careflow.State {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		state, err := api.GetState(context.Background(), threadID)
		if err == nil && state.Status == want {
			return state
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("thread %s never reached status %q", threadID, want)
	return careflow.State{}
}

// resume retries a gate decision while the thread's executor slot is
// still held between the pending checkpoint and the slot release.
func resume(t *testing.T, fn func() error) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for {
		err := fn()
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.Code == "busy" && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		require.NoError(t, err)
		return
	}
}
