package integrationtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/careflow"
	"github.com/randalmurphal/careflow/client"
	"github.com/randalmurphal/careflow/llm"
	"github.com/randalmurphal/careflow/server"
	"github.com/randalmurphal/careflow/stream"
	"github.com/randalmurphal/careflow/testutil"
)

// TestStreamDeliversCompletion opens an SSE stream on a parked thread
// and receives the completion event produced by the approval.
func TestStreamDeliversCompletion(t *testing.T) {
	st := newStack(t, testutil.ApprovingClient(), server.Config{})
	ctx := context.Background()

	threadID, err := st.api.StartThread(ctx, client.StartThreadRequest{
		Intent: "An exercise for stress at work",
	})
	require.NoError(t, err)
	waitStatus(t, st.api, threadID, careflow.StatusPendingHuman)

	streamCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	es, err := st.api.Stream(streamCtx, threadID)
	require.NoError(t, err)
	defer es.Close()

	resume(t, func() error {
		return st.api.Approve(ctx, threadID)
	})

	var events []stream.Event
	for ev := range es.C {
		events = append(events, ev)
	}
	require.NoError(t, es.Err())
	require.Len(t, events, 1)

	got := events[0]
	assert.Equal(t, stream.EventCompleted, got.Type)
	assert.Equal(t, threadID, got.ThreadID)
	assert.Equal(t, careflow.NodeHumanGate, got.Node)
	assert.Equal(t, int64(6), got.Seq)
}

// TestStreamObservesProgress watches a running thread park at the
// human gate. Stage calls are slowed down so the subscription lands
// before the workflow outruns it.
func TestStreamObservesProgress(t *testing.T) {
	scripted := testutil.ApprovingClient()
	slow := llm.NewMockClient().WithCompleteFunc(func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		time.Sleep(25 * time.Millisecond)
		return scripted.Complete(ctx, req)
	})

	st := newStack(t, slow, server.Config{})
	ctx := context.Background()

	threadID, err := st.api.StartThread(ctx, client.StartThreadRequest{
		Intent: "An exercise for racing thoughts",
	})
	require.NoError(t, err)

	streamCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	es, err := st.api.Stream(streamCtx, threadID)
	require.NoError(t, err)
	defer es.Close()

	var events []stream.Event
	for ev := range es.C {
		events = append(events, ev)
		if ev.Type == stream.EventInterrupt {
			break
		}
	}
	require.NotEmpty(t, events, "no events before the gate")

	for i := 1; i < len(events); i++ {
		assert.Greater(t, events[i].Seq, events[i-1].Seq, "event %d out of order", i)
	}

	parked := events[len(events)-1]
	assert.Equal(t, stream.EventInterrupt, parked.Type)
	assert.Equal(t, careflow.NodeSupervise, parked.Node)
	assert.Equal(t, string(careflow.StatusPendingHuman), parked.Status)
	assert.Equal(t, int64(5), parked.Seq)
}

// TestStreamOnFinishedThread gets a synthetic terminal event instead
// of waiting on heartbeats.
func TestStreamOnFinishedThread(t *testing.T) {
	st := newStack(t, testutil.ApprovingClient(), server.Config{})
	ctx := context.Background()

	art, err := st.api.CreateExercise(ctx, "A wind-down exercise before bed")
	require.NoError(t, err)

	streamCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	es, err := st.api.Stream(streamCtx, art.ThreadID)
	require.NoError(t, err)
	defer es.Close()

	var events []stream.Event
	for ev := range es.C {
		events = append(events, ev)
	}
	require.NoError(t, es.Err())
	require.Len(t, events, 1)
	assert.Equal(t, stream.EventCompleted, events[0].Type)
	assert.Equal(t, string(careflow.StatusCompleted), events[0].Status)
}

// TestStreamUnknownThread fails fast with a 404 rather than holding
// the connection open.
func TestStreamUnknownThread(t *testing.T) {
	st := newStack(t, testutil.ApprovingClient(), server.Config{})

	_, err := st.api.Stream(context.Background(), "thr_doesnotexist00000")
	require.Error(t, err)
	assert.True(t, client.IsNotFound(err), "want not found, got %v", err)
}
