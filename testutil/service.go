package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/randalmurphal/careflow"
	"github.com/randalmurphal/careflow/checkpoint"
	carecontext "github.com/randalmurphal/careflow/context"
	"github.com/randalmurphal/careflow/llm"
	"github.com/randalmurphal/careflow/stream"
)

// NewService builds a service over a temporary SQLite store and the
// given client. Zero config fields get test-friendly values: three
// revisions, millisecond retry backoff, interactive mode. The service
// is closed when the test ends.
func NewService(t *testing.T, client llm.Client, cfg careflow.ServiceConfig) *careflow.Service {
	t.Helper()

	store, err := checkpoint.NewSQLiteStore(filepath.Join(t.TempDir(), "careflow.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}

	if cfg.Node.MaxRevisions == 0 {
		cfg.Node.MaxRevisions = 3
	}
	if cfg.Node.RetryBase == 0 {
		cfg.Node.RetryBase = time.Millisecond
	}
	if cfg.DefaultMode == "" {
		cfg.DefaultMode = careflow.ModeInteractive
	}

	svc, err := careflow.NewService(&carecontext.Services{
		Store:   store,
		LLM:     client,
		Emitter: stream.NewEmitter(),
	}, cfg)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

// WaitForStatus polls until the thread reaches the wanted status and
// returns its state. Fails the test after five seconds.
func WaitForStatus(t *testing.T, svc *careflow.Service, threadID string, want careflow.Status) careflow.State {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		state, err := svc.GetState(context.Background(), threadID)
		if err == nil && state.Status == want {
			return state
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("thread %s never reached status %q", threadID, want)
	return careflow.State{}
}
