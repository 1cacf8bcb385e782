package careflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	carecontext "github.com/randalmurphal/careflow/context"
	"github.com/randalmurphal/careflow/notify"
	"github.com/randalmurphal/careflow/stream"
	"github.com/randalmurphal/careflow/transcript"
)

// =============================================================================
// Runner
// =============================================================================

// Runner drives one thread's workflow loop: route, run the node, merge
// the delta, checkpoint, advance. The checkpoint always lands before the
// next node runs, so a crash never loses more than the node in flight.
type Runner struct {
	graph *Graph
}

// NewRunner creates a runner over the given graph.
func NewRunner(graph *Graph) *Runner {
	return &Runner{graph: graph}
}

// Run executes the workflow until the thread completes, fails, or parks
// at the human gate. The returned state always matches the latest
// checkpoint; on a node failure the error checkpoint is written first
// and the node's error is returned.
func (r *Runner) Run(ctx context.Context, state State) (State, error) {
	if store := carecontext.Store(ctx); store == nil {
		return state, &PersistenceError{
			Op:       "save",
			ThreadID: state.ThreadID,
			Err:      fmt.Errorf("checkpoint.Store not found in context"),
		}
	}

	for {
		next := NextNode(state)
		if next == END || next == NodeHumanGate {
			return state, nil
		}

		fn, ok := r.graph.Node(next)
		if !ok {
			return state, fmt.Errorf("no node registered for %q", next)
		}

		delta, err := fn(ctx, state)
		if err != nil {
			return r.halt(ctx, state, next, err)
		}

		state, err = r.Commit(ctx, state, delta, next)
		if err != nil {
			return state, err
		}
	}
}

// Commit merges a delta into state, checkpoints the result, and
// announces the new position. Exported so the human gate and the reaper
// push their transitions through the same persistence path as the nodes.
func (r *Runner) Commit(ctx context.Context, state State, delta Delta, node string) (State, error) {
	state = Merge(state, delta)

	seq, snapshot, err := r.checkpoint(ctx, state)
	if err != nil {
		return state, err
	}

	r.announce(ctx, state, seq, node, snapshot)
	return state, nil
}

// halt records a node failure as a terminal error checkpoint. The last
// successful checkpoint stays intact, so the thread's final good state
// remains readable next to the failure record.
//
// A cancelled context is not a failure: the thread simply stops
// advancing and its latest checkpoint stays authoritative, the same as
// a crash between nodes.
func (r *Runner) halt(ctx context.Context, state State, node string, cause error) (State, error) {
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		slog.Info("thread execution stopped",
			"threadId", state.ThreadID,
			"node", node,
			"error", cause)
		return state, cause
	}

	state = Merge(state, Delta{
		Status:  statusPtr(StatusError),
		Failure: strPtr(cause.Error()),
		Notes:   []Note{NewNote("runner", fmt.Sprintf("Node %s failed: %v", node, cause))},
	})

	seq, snapshot, err := r.checkpoint(ctx, state)
	if err != nil {
		slog.Error("failed to checkpoint error state",
			"threadId", state.ThreadID,
			"node", node,
			"error", err)
		return state, cause
	}

	if n := notify.NotifierFromContext(ctx); n != nil {
		n.Notify(ctx, notify.Event{
			Type:      notify.EventNodeFailed,
			ThreadID:  state.ThreadID,
			NodeID:    node,
			Message:   cause.Error(),
			Severity:  notify.SeverityError,
			Timestamp: time.Now(),
		})
	}

	r.announce(ctx, state, seq, node, snapshot)
	return state, cause
}

// checkpoint persists the full state snapshot and returns its sequence
// number. Every state change flows through here before the thread moves.
func (r *Runner) checkpoint(ctx context.Context, state State) (int64, json.RawMessage, error) {
	snapshot, err := state.Snapshot()
	if err != nil {
		return 0, nil, &PersistenceError{Op: "save", ThreadID: state.ThreadID, Err: err}
	}

	store := carecontext.MustStore(ctx)
	seq, err := store.Save(ctx, state.ThreadID, snapshot, string(state.Status))
	if err != nil {
		return 0, nil, &PersistenceError{Op: "save", ThreadID: state.ThreadID, Err: err}
	}

	recordCheckpoint()
	return seq, snapshot, nil
}

// announce publishes the checkpoint to subscribers and fires lifecycle
// side effects for terminal and suspended positions. Streaming and
// notification are best effort: the checkpoint log is already written.
func (r *Runner) announce(ctx context.Context, state State, seq int64, node string, snapshot json.RawMessage) {
	emitter := carecontext.Emitter(ctx)

	switch state.Status {
	case StatusPendingHuman:
		if emitter != nil {
			emitter.Publish(stream.Event{
				Type:      stream.EventInterrupt,
				ThreadID:  state.ThreadID,
				Seq:       seq,
				Node:      node,
				Status:    string(state.Status),
				State:     snapshot,
				Timestamp: time.Now(),
			})
		}
		if n := notify.NotifierFromContext(ctx); n != nil {
			n.Notify(ctx, notify.Event{
				Type:      notify.EventReviewNeeded,
				ThreadID:  state.ThreadID,
				NodeID:    node,
				Message:   "Draft ready for human review",
				Severity:  notify.SeverityInfo,
				Timestamp: time.Now(),
			})
		}
		if tm := carecontext.Transcript(ctx); tm != nil {
			tm.EndThread(state.ThreadID, transcript.StatusSuspended)
		}

	case StatusCompleted:
		r.finalize(ctx, state)
		if emitter != nil {
			emitter.Publish(stream.Event{
				Type:      stream.EventCompleted,
				ThreadID:  state.ThreadID,
				Seq:       seq,
				Node:      node,
				Status:    string(state.Status),
				State:     snapshot,
				Timestamp: time.Now(),
			})
		}
		if n := notify.NotifierFromContext(ctx); n != nil {
			n.Notify(ctx, notify.Event{
				Type:      notify.EventThreadCompleted,
				ThreadID:  state.ThreadID,
				Message:   "Exercise generation completed",
				Severity:  notify.SeverityInfo,
				Timestamp: time.Now(),
			})
		}
		recordThreadCompleted()

	case StatusError:
		if emitter != nil {
			emitter.Publish(stream.Event{
				Type:      stream.EventError,
				ThreadID:  state.ThreadID,
				Seq:       seq,
				Node:      node,
				Status:    string(state.Status),
				State:     snapshot,
				Reason:    state.Failure,
				Timestamp: time.Now(),
			})
		}
		if n := notify.NotifierFromContext(ctx); n != nil {
			n.Notify(ctx, notify.Event{
				Type:      notify.EventThreadFailed,
				ThreadID:  state.ThreadID,
				NodeID:    node,
				Message:   state.Failure,
				Severity:  notify.SeverityError,
				Timestamp: time.Now(),
			})
		}
		if tm := carecontext.Transcript(ctx); tm != nil {
			tm.EndThread(state.ThreadID, transcript.StatusFailed)
		}
		recordThreadFailed()

	default:
		if emitter != nil {
			emitter.Publish(stream.Event{
				Type:      stream.EventStep,
				ThreadID:  state.ThreadID,
				Seq:       seq,
				Node:      node,
				Status:    string(state.Status),
				State:     snapshot,
				Timestamp: time.Now(),
			})
		}
	}
}

// finalize renders the markdown artifact and closes out the transcript
// for a completed thread. Failures are logged, not fatal: the checkpoint
// log already holds the completed state.
func (r *Runner) finalize(ctx context.Context, state State) {
	if state.CurrentDraft != nil {
		markdown := RenderExercise(*state.CurrentDraft)

		if store := carecontext.Store(ctx); store != nil {
			if err := store.SetFinalArtifact(ctx, state.ThreadID, markdown); err != nil {
				slog.Warn("failed to record final artifact",
					"threadId", state.ThreadID,
					"error", err)
			}
		}
		if artifacts := carecontext.Artifact(ctx); artifacts != nil {
			if err := artifacts.SaveFinal(state.ThreadID, []byte(markdown)); err != nil {
				slog.Warn("failed to save final artifact",
					"threadId", state.ThreadID,
					"error", err)
			}
		}
	}

	if tm := carecontext.Transcript(ctx); tm != nil {
		tm.EndThread(state.ThreadID, transcript.StatusCompleted)
	}
}
