package careflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/randalmurphal/careflow/notify"
)

// ReaperConfig controls the stale-gate sweep.
type ReaperConfig struct {
	// Timeout is how long a thread may wait at the human gate before
	// it expires.
	Timeout time.Duration

	// Interval is how often the reaper sweeps.
	Interval time.Duration
}

// DefaultReaperConfig returns the production sweep settings.
func DefaultReaperConfig() ReaperConfig {
	return ReaperConfig{
		Timeout:  24 * time.Hour,
		Interval: time.Minute,
	}
}

// Reaper expires threads that have waited too long at the human gate.
// An expired thread is marked as error through a normal checkpoint
// append; nothing is ever approved or revised on the reviewer's behalf.
type Reaper struct {
	svc *Service
	cfg ReaperConfig
}

// NewReaper creates a reaper over the service's threads.
func NewReaper(svc *Service, cfg ReaperConfig) *Reaper {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 24 * time.Hour
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Reaper{svc: svc, cfg: cfg}
}

// Run sweeps on the configured interval until ctx is done.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				slog.Error("gate sweep failed", "error", err)
			}
		}
	}
}

// Sweep expires every thread that has been pending_human longer than
// the timeout and returns how many it expired.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-r.cfg.Timeout)

	ids, err := r.svc.services.Store.StaleThreads(ctx, string(StatusPendingHuman), cutoff)
	if err != nil {
		return 0, &PersistenceError{Op: "load", Err: err}
	}

	expired := 0
	for _, id := range ids {
		ok, err := r.expire(ctx, id)
		if err != nil {
			if errors.Is(err, ErrClosed) {
				return expired, nil
			}
			if errors.Is(err, ErrThreadBusy) {
				// A resume is in flight; leave the thread to it.
				continue
			}
			slog.Error("failed to expire thread", "threadId", id, "error", err)
			continue
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}

// expire claims the thread's executor slot and appends the error
// checkpoint through the runner's normal persistence path. A thread
// that moved past the gate since the stale query is left untouched.
func (r *Reaper) expire(ctx context.Context, threadID string) (bool, error) {
	if err := r.svc.acquire(threadID); err != nil {
		return false, err
	}
	defer r.svc.release(threadID)

	runCtx := r.svc.services.InjectAll(ctx)

	state, err := r.svc.loadState(runCtx, threadID)
	if err != nil {
		return false, err
	}
	if state.Status != StatusPendingHuman {
		return false, nil
	}

	_, err = r.svc.runner.Commit(runCtx, state, Delta{
		Status:  statusPtr(StatusError),
		Failure: strPtr("human review window expired"),
		Notes: []Note{NewNote("runner", fmt.Sprintf(
			"Human review window expired after %s.", r.cfg.Timeout))},
	}, NodeHumanGate)
	if err != nil {
		return false, err
	}

	r.svc.services.Notifier.Notify(ctx, notify.Event{
		Type:      notify.EventGateExpired,
		ThreadID:  threadID,
		NodeID:    NodeHumanGate,
		Message:   fmt.Sprintf("Human review window expired after %s", r.cfg.Timeout),
		Severity:  notify.SeverityWarning,
		Timestamp: time.Now(),
	})
	recordGateExpired()

	return true, nil
}
