package careflow

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/randalmurphal/careflow/checkpoint"
	carecontext "github.com/randalmurphal/careflow/context"
	"github.com/randalmurphal/careflow/llm"
	"github.com/randalmurphal/careflow/notify"
	"github.com/randalmurphal/careflow/stream"
)

// =============================================================================
// Test Harness
// =============================================================================

// captureNotifier records notifications for assertions.
type captureNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (c *captureNotifier) Notify(ctx context.Context, ev notify.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *captureNotifier) byType(et notify.EventType) []notify.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []notify.Event
	for _, ev := range c.events {
		if ev.Type == et {
			out = append(out, ev)
		}
	}
	return out
}

// runnerEnv wires a runner over real sqlite persistence and a scripted
// LLM client.
type runnerEnv struct {
	store    checkpoint.Store
	emitter  *stream.Emitter
	notifier *captureNotifier
	ctx      context.Context
	runner   *Runner
	dbPath   string
}

func newRunnerEnv(t *testing.T, mock *llm.MockClient) *runnerEnv {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "careflow.db")
	store, err := checkpoint.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	emitter := stream.NewEmitter()
	notifier := &captureNotifier{}

	services := &carecontext.Services{
		Store:    store,
		LLM:      mock,
		Emitter:  emitter,
		Notifier: notifier,
	}

	return &runnerEnv{
		store:    store,
		emitter:  emitter,
		notifier: notifier,
		ctx:      services.InjectAll(context.Background()),
		runner:   NewRunner(NewGraph(NodeConfig{MaxRevisions: 3, MaxNodeRetries: 0, RetryBase: time.Millisecond})),
		dbPath:   dbPath,
	}
}

// beginThread registers the thread so SetFinalArtifact has a row to update.
func (env *runnerEnv) beginThread(t *testing.T, state State) {
	t.Helper()
	err := env.store.CreateThread(env.ctx, checkpoint.ThreadMeta{
		ThreadID:   state.ThreadID,
		UserIntent: state.UserIntent,
		Mode:       string(state.Mode),
		Status:     string(state.Status),
		CreatedAt:  state.CreatedAt,
		UpdatedAt:  state.UpdatedAt,
	})
	if err != nil {
		t.Fatalf("CreateThread() error = %v", err)
	}
}

// stageScript answers draft, safety, and clinical calls by temperature,
// which uniquely identifies the stage.
func stageScript(draft, safety, clinical func(call int) string) func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var mu sync.Mutex
	counts := map[float64]int{}
	return func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		mu.Lock()
		call := counts[req.Temperature]
		counts[req.Temperature]++
		mu.Unlock()

		var content string
		switch req.Temperature {
		case 0.7:
			content = draft(call)
		case 0.0:
			content = safety(call)
		default:
			content = clinical(call)
		}
		return &llm.CompletionResponse{
			Content: content,
			Model:   "mock",
			Usage:   llm.Usage{InputTokens: 10, OutputTokens: 20},
		}, nil
	}
}

func constScript(s string) func(int) string {
	return func(int) string { return s }
}

func drainEvents(sub *stream.Subscription) []stream.Event {
	var events []stream.Event
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return events
			}
			events = append(events, ev)
		default:
			return events
		}
	}
}

func assertGaplessHistory(t *testing.T, history []checkpoint.Checkpoint) {
	t.Helper()
	for i, cp := range history {
		if cp.Seq != int64(i+1) {
			t.Fatalf("checkpoint %d has seq %d, want %d (gapless, strictly increasing)", i, cp.Seq, i+1)
		}
	}
}

func scratchpadContents(state State) []string {
	out := make([]string, len(state.Scratchpad))
	for i, note := range state.Scratchpad {
		out[i] = note.Content
	}
	return out
}

// =============================================================================
// Runner Tests
// =============================================================================

func TestRunner_AutonomousRunCompletes(t *testing.T) {
	mock := llm.NewMockClient().WithCompleteFunc(stageScript(
		constScript(testDraftJSON),
		constScript(testSafetyPassJSON),
		constScript(testClinicalPassJSON),
	))
	env := newRunnerEnv(t, mock)

	state := NewState("thr_auto1", "reduce anxiety before presentations", ModeAutonomous)
	env.beginThread(t, state)
	sub := env.emitter.Subscribe(state.ThreadID)
	defer sub.Unsubscribe()

	final, err := env.runner.Run(env.ctx, state)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if final.Status != StatusCompleted {
		t.Fatalf("Status = %q, want completed", final.Status)
	}
	if final.CurrentDraft == nil || final.CurrentDraft.Title != "Box Breathing" {
		t.Errorf("CurrentDraft = %+v", final.CurrentDraft)
	}
	if final.RevisionCount != 0 {
		t.Errorf("RevisionCount = %d, want 0", final.RevisionCount)
	}
	if final.Warning != "" {
		t.Errorf("Warning = %q, want empty", final.Warning)
	}
	if final.TokensIn == 0 || final.TokensOut == 0 {
		t.Error("usage should accumulate across stages")
	}

	notes := scratchpadContents(final)
	wantNotes := []string{
		"Created initial draft.",
		"Safety Check Complete. Safe: true, Score: 9",
		"Clinical Review Complete. Empathy: 9, Quality: 9",
		"Draft approved by Supervisor.",
	}
	if len(notes) != len(wantNotes) {
		t.Fatalf("scratchpad = %v, want %v", notes, wantNotes)
	}
	for i := range wantNotes {
		if notes[i] != wantNotes[i] {
			t.Errorf("scratchpad[%d] = %q, want %q", i, notes[i], wantNotes[i])
		}
	}

	// One checkpoint per node, gapless from 1
	history, err := env.store.History(env.ctx, state.ThreadID, 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 4 {
		t.Fatalf("history length = %d, want 4", len(history))
	}
	assertGaplessHistory(t, history)

	// Every snapshot is independently decodable
	for _, cp := range history {
		if _, err := DecodeState(cp.Snapshot); err != nil {
			t.Errorf("checkpoint %d snapshot undecodable: %v", cp.Seq, err)
		}
	}

	// Final artifact lands on the registry row
	meta, err := env.store.Thread(env.ctx, state.ThreadID)
	if err != nil {
		t.Fatalf("Thread() error = %v", err)
	}
	if !strings.HasPrefix(meta.FinalArtifact, "# Box Breathing") {
		t.Errorf("FinalArtifact = %q, want rendered markdown", meta.FinalArtifact)
	}
	if meta.Status != string(StatusCompleted) {
		t.Errorf("registry Status = %q, want completed", meta.Status)
	}

	// Stream saw every checkpoint, terminating with completed
	events := drainEvents(sub)
	if len(events) != 4 {
		t.Fatalf("events = %d, want 4", len(events))
	}
	if events[len(events)-1].Type != stream.EventCompleted {
		t.Errorf("last event = %q, want completed", events[len(events)-1].Type)
	}
	if got := env.notifier.byType(notify.EventThreadCompleted); len(got) != 1 {
		t.Errorf("thread_completed notifications = %d, want 1", len(got))
	}
}

func TestRunner_InteractiveParksAtGate(t *testing.T) {
	mock := llm.NewMockClient().WithCompleteFunc(stageScript(
		constScript(testDraftJSON),
		constScript(testSafetyPassJSON),
		constScript(testClinicalPassJSON),
	))
	env := newRunnerEnv(t, mock)

	state := NewState("thr_gate7", "sleep hygiene protocol", ModeInteractive)
	env.beginThread(t, state)
	sub := env.emitter.Subscribe(state.ThreadID)
	defer sub.Unsubscribe()

	final, err := env.runner.Run(env.ctx, state)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if final.Status != StatusPendingHuman {
		t.Fatalf("Status = %q, want pending_human", final.Status)
	}

	// The suspension is durable before Run returns
	cp, err := env.store.LoadLatest(env.ctx, state.ThreadID)
	if err != nil {
		t.Fatalf("LoadLatest() error = %v", err)
	}
	persisted, err := DecodeState(cp.Snapshot)
	if err != nil {
		t.Fatalf("DecodeState() error = %v", err)
	}
	if persisted.Status != StatusPendingHuman {
		t.Errorf("persisted Status = %q, want pending_human", persisted.Status)
	}

	events := drainEvents(sub)
	last := events[len(events)-1]
	if last.Type != stream.EventInterrupt {
		t.Errorf("last event = %q, want interrupt", last.Type)
	}
	if last.Node != NodeSupervise {
		t.Errorf("interrupt Node = %q, want supervise", last.Node)
	}
	if got := env.notifier.byType(notify.EventReviewNeeded); len(got) != 1 {
		t.Errorf("review_needed notifications = %d, want 1", len(got))
	}
}

func TestRunner_RevisionCycle(t *testing.T) {
	// Safety fails the first draft, passes the revision
	safetyByCall := func(call int) string {
		if call == 0 {
			return testSafetyFailJSON
		}
		return testSafetyPassJSON
	}
	mock := llm.NewMockClient().WithCompleteFunc(stageScript(
		constScript(testDraftJSON),
		safetyByCall,
		constScript(testClinicalPassJSON),
	))
	env := newRunnerEnv(t, mock)

	state := NewState("thr_cycle1", "grounding for flashbacks", ModeAutonomous)
	env.beginThread(t, state)

	final, err := env.runner.Run(env.ctx, state)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if final.Status != StatusCompleted {
		t.Fatalf("Status = %q, want completed", final.Status)
	}
	if final.RevisionCount != 1 {
		t.Errorf("RevisionCount = %d, want 1", final.RevisionCount)
	}
	if len(final.DraftHistory) != 1 {
		t.Errorf("DraftHistory = %d drafts, want 1", len(final.DraftHistory))
	}

	foundFeedback := false
	for _, f := range final.Feedback {
		if strings.HasPrefix(f, "Safety Issues:") {
			foundFeedback = true
		}
	}
	if !foundFeedback {
		t.Errorf("Feedback = %v, want a Safety Issues entry", final.Feedback)
	}

	notes := scratchpadContents(final)
	wantRevisionNote := "Draft needs revision. Safety: 4, Empathy: 9"
	found := false
	for _, n := range notes {
		if n == wantRevisionNote {
			found = true
		}
	}
	if !found {
		t.Errorf("scratchpad = %v, want %q", notes, wantRevisionNote)
	}

	// 2 full cycles: 4 checkpoints each
	history, _ := env.store.History(env.ctx, state.ThreadID, 0)
	if len(history) != 8 {
		t.Errorf("history length = %d, want 8", len(history))
	}
	assertGaplessHistory(t, history)
}

func TestRunner_MaxRevisionsCompletesWithWarning(t *testing.T) {
	mock := llm.NewMockClient().WithCompleteFunc(stageScript(
		constScript(testDraftJSON),
		constScript(testSafetyFailJSON),
		constScript(testClinicalPassJSON),
	))
	env := newRunnerEnv(t, mock)

	state := NewState("thr_budget1", "exposure hierarchy", ModeAutonomous).WithMaxRevisions(2)
	env.beginThread(t, state)

	final, err := env.runner.Run(env.ctx, state)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// The budget guarantees completion, never a failure
	if final.Status != StatusCompleted {
		t.Fatalf("Status = %q, want completed", final.Status)
	}
	if final.Warning == "" {
		t.Error("Warning should record the exhausted budget")
	}
	if final.HasFailure() {
		t.Errorf("Failure = %q, want none", final.Failure)
	}
	if final.RevisionCount != 2 {
		t.Errorf("RevisionCount = %d, want 2", final.RevisionCount)
	}
	if final.CurrentDraft == nil {
		t.Error("the current draft should survive budget exhaustion")
	}

	notes := scratchpadContents(final)
	if notes[len(notes)-1] != "Max revisions reached. Proceeding with current draft." {
		t.Errorf("final note = %q", notes[len(notes)-1])
	}

	// The final artifact is still rendered
	meta, _ := env.store.Thread(env.ctx, state.ThreadID)
	if meta.FinalArtifact == "" {
		t.Error("FinalArtifact should be set for budget-exhausted completion")
	}
}

func TestRunner_NodeFailureHaltsThread(t *testing.T) {
	mock := llm.NewMockClient().WithCompleteFunc(func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		if req.Temperature == 0.0 {
			return nil, fmt.Errorf("model overloaded")
		}
		return &llm.CompletionResponse{Content: testDraftJSON, Model: "mock"}, nil
	})
	env := newRunnerEnv(t, mock)

	state := NewState("thr_fail1", "goal", ModeAutonomous)
	env.beginThread(t, state)
	sub := env.emitter.Subscribe(state.ThreadID)
	defer sub.Unsubscribe()

	final, err := env.runner.Run(env.ctx, state)
	if err == nil {
		t.Fatal("Run() should surface the node error")
	}
	if !IsExecution(err) {
		t.Errorf("error = %T, want ExecutionError", err)
	}

	if final.Status != StatusError {
		t.Fatalf("Status = %q, want error", final.Status)
	}
	if !strings.Contains(final.Failure, "model overloaded") {
		t.Errorf("Failure = %q", final.Failure)
	}

	notes := scratchpadContents(final)
	last := notes[len(notes)-1]
	if !strings.HasPrefix(last, "Node safety_review failed:") {
		t.Errorf("final note = %q", last)
	}

	// The last good checkpoint is intact alongside the failure record
	history, _ := env.store.History(env.ctx, state.ThreadID, 0)
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2 (draft + error)", len(history))
	}
	good, err := DecodeState(history[0].Snapshot)
	if err != nil {
		t.Fatalf("DecodeState() error = %v", err)
	}
	if good.Status != StatusAwaitingReview || good.CurrentDraft == nil {
		t.Errorf("prior checkpoint = %q with draft %v", good.Status, good.CurrentDraft != nil)
	}

	events := drainEvents(sub)
	last2 := events[len(events)-1]
	if last2.Type != stream.EventError {
		t.Errorf("last event = %q, want error", last2.Type)
	}
	if !strings.Contains(last2.Reason, "model overloaded") {
		t.Errorf("event Reason = %q", last2.Reason)
	}
	if got := env.notifier.byType(notify.EventThreadFailed); len(got) != 1 {
		t.Errorf("thread_failed notifications = %d, want 1", len(got))
	}
	if got := env.notifier.byType(notify.EventNodeFailed); len(got) != 1 {
		t.Errorf("node_failed notifications = %d, want 1", len(got))
	}
}

func TestRunner_RoutingMatchesReplay(t *testing.T) {
	// Every event's node must equal what NextNode derives from the
	// previous checkpoint: a thread reloaded anywhere in its history
	// continues exactly where the live run did.
	safetyByCall := func(call int) string {
		if call == 0 {
			return testSafetyFailJSON
		}
		return testSafetyPassJSON
	}
	mock := llm.NewMockClient().WithCompleteFunc(stageScript(
		constScript(testDraftJSON),
		safetyByCall,
		constScript(testClinicalPassJSON),
	))
	env := newRunnerEnv(t, mock)

	initial := NewState("thr_replay1", "goal", ModeInteractive)
	env.beginThread(t, initial)
	sub := env.emitter.Subscribe(initial.ThreadID)
	defer sub.Unsubscribe()

	if _, err := env.runner.Run(env.ctx, initial); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	events := drainEvents(sub)
	history, _ := env.store.History(env.ctx, initial.ThreadID, 0)
	if len(events) != len(history) {
		t.Fatalf("events = %d, history = %d, want equal", len(events), len(history))
	}

	prev := initial
	for i, ev := range events {
		if ev.Seq != history[i].Seq {
			t.Fatalf("event %d seq = %d, want %d", i, ev.Seq, history[i].Seq)
		}
		if want := NextNode(prev); ev.Node != want {
			t.Errorf("event %d node = %q, replay wants %q", i, ev.Node, want)
		}
		next, err := DecodeState(history[i].Snapshot)
		if err != nil {
			t.Fatalf("DecodeState(%d) error = %v", i, err)
		}
		prev = next
	}
}

func TestRunner_ResumeAfterRestart(t *testing.T) {
	script := stageScript(
		constScript(testDraftJSON),
		constScript(testSafetyPassJSON),
		constScript(testClinicalPassJSON),
	)
	mock := llm.NewMockClient().WithCompleteFunc(script)
	env := newRunnerEnv(t, mock)

	state := NewState("thr_restart1", "goal", ModeInteractive)
	env.beginThread(t, state)

	parked, err := env.runner.Run(env.ctx, state)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if parked.Status != StatusPendingHuman {
		t.Fatalf("Status = %q, want pending_human", parked.Status)
	}
	env.store.Close()

	// Restart: a fresh store handle over the same database
	store2, err := checkpoint.NewSQLiteStore(env.dbPath)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer store2.Close()

	services := &carecontext.Services{
		Store:    store2,
		LLM:      llm.NewMockClient().WithCompleteFunc(script),
		Emitter:  stream.NewEmitter(),
		Notifier: &captureNotifier{},
	}
	ctx := services.InjectAll(context.Background())
	runner := NewRunner(NewGraph(NodeConfig{MaxRevisions: 3, MaxNodeRetries: 0, RetryBase: time.Millisecond}))

	cp, err := store2.LoadLatest(ctx, state.ThreadID)
	if err != nil {
		t.Fatalf("LoadLatest() error = %v", err)
	}
	reloaded, err := DecodeState(cp.Snapshot)
	if err != nil {
		t.Fatalf("DecodeState() error = %v", err)
	}
	if NextNode(reloaded) != NodeHumanGate {
		t.Fatalf("NextNode(reloaded) = %q, want the gate", NextNode(reloaded))
	}

	// Apply the human decision against the reloaded state
	gateDelta, err := ApplyDecision(reloaded, DecisionRevise, ResumePayload{Feedback: "Shorter steps please"})
	if err != nil {
		t.Fatalf("ApplyDecision() error = %v", err)
	}
	resumed, err := runner.Commit(ctx, reloaded, gateDelta, NodeHumanGate)
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	final, err := runner.Run(ctx, resumed)
	if err != nil {
		t.Fatalf("Run() after restart error = %v", err)
	}

	// Second approval parks at the gate again; approve to finish
	if final.Status != StatusPendingHuman {
		t.Fatalf("Status = %q, want pending_human after revision", final.Status)
	}
	if final.RevisionCount != 1 {
		t.Errorf("RevisionCount = %d, want 1", final.RevisionCount)
	}
	if final.HumanFeedback != "Shorter steps please" {
		t.Errorf("HumanFeedback = %q", final.HumanFeedback)
	}

	approveDelta, err := ApplyDecision(final, DecisionApprove, ResumePayload{})
	if err != nil {
		t.Fatalf("ApplyDecision(approve) error = %v", err)
	}
	done, err := runner.Commit(ctx, final, approveDelta, NodeHumanGate)
	if err != nil {
		t.Fatalf("Commit(approve) error = %v", err)
	}
	if done.Status != StatusCompleted {
		t.Fatalf("Status = %q, want completed", done.Status)
	}

	history, _ := store2.History(ctx, state.ThreadID, 0)
	assertGaplessHistory(t, history)
}
