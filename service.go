package careflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/randalmurphal/careflow/checkpoint"
	carecontext "github.com/randalmurphal/careflow/context"
	"github.com/randalmurphal/careflow/notify"
	"github.com/randalmurphal/careflow/stream"
	"github.com/randalmurphal/careflow/transcript"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrThreadBusy indicates the thread is already being advanced by
	// its executor. Threads are strictly sequential: retry after the
	// current step finishes.
	ErrThreadBusy = errors.New("careflow: thread is busy")

	// ErrClosed indicates the service has been shut down.
	ErrClosed = errors.New("careflow: service closed")
)

// =============================================================================
// Service Configuration
// =============================================================================

// MaxIntentLen caps the user goal length accepted by Start and
// CreateExercise.
const MaxIntentLen = 4096

// ServiceConfig controls workflow execution defaults.
type ServiceConfig struct {
	// Node holds retry and revision settings for the graph.
	Node NodeConfig

	// DefaultMode is used by Start when the caller does not choose one.
	DefaultMode Mode
}

// DefaultServiceConfig returns production defaults: interactive threads
// that suspend for human review before completing.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Node:        DefaultNodeConfig(),
		DefaultMode: ModeInteractive,
	}
}

// =============================================================================
// Service
// =============================================================================

// Service is the public face of the exercise workflow. It owns the
// graph, the runner, and the executor table that keeps each thread on a
// single goroutine while unrelated threads run in parallel.
type Service struct {
	services *carecontext.Services
	runner   *Runner
	cfg      ServiceConfig

	baseCtx context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	running map[string]struct{}
	wg      sync.WaitGroup
	closed  bool
}

// NewService wires a service over the given dependencies. A nil Emitter
// or Notifier is replaced with a working default; the store and LLM
// client are required.
func NewService(services *carecontext.Services, cfg ServiceConfig) (*Service, error) {
	if services == nil || services.Store == nil {
		return nil, fmt.Errorf("careflow: checkpoint store is required")
	}
	if services.LLM == nil {
		return nil, fmt.Errorf("careflow: llm client is required")
	}
	if services.Emitter == nil {
		services.Emitter = stream.NewEmitter()
	}
	if services.Notifier == nil {
		services.Notifier = notify.NopNotifier{}
	}
	if cfg.DefaultMode == "" {
		cfg.DefaultMode = ModeInteractive
	}
	if cfg.Node.MaxNodeRetries == 0 && cfg.Node.RetryBase == 0 {
		cfg.Node = DefaultNodeConfig()
	}

	graph := NewGraph(cfg.Node)
	if err := graph.Validate(); err != nil {
		return nil, err
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	return &Service{
		services: services,
		runner:   NewRunner(graph),
		cfg:      cfg,
		baseCtx:  baseCtx,
		cancel:   cancel,
		running:  make(map[string]struct{}),
	}, nil
}

// =============================================================================
// Start Options
// =============================================================================

// StartOption customizes a new thread.
type StartOption func(State) State

// WithStartMode overrides the service's default mode for this thread.
func WithStartMode(mode Mode) StartOption {
	return func(s State) State { return s.WithMode(mode) }
}

// WithStartMaxRevisions overrides the revision budget for this thread.
func WithStartMaxRevisions(n int) StartOption {
	return func(s State) State { return s.WithMaxRevisions(n) }
}

// WithStartThreadID pins the thread id instead of generating one.
func WithStartThreadID(id string) StartOption {
	return func(s State) State {
		s.ThreadID = id
		return s
	}
}

// =============================================================================
// Operations
// =============================================================================

// Start creates a thread for the given goal and begins executing it on
// its own goroutine. It returns as soon as the first checkpoint is
// durable; progress streams via Subscribe and GetState.
func (s *Service) Start(ctx context.Context, intent string, opts ...StartOption) (string, error) {
	if err := validateIntent(intent); err != nil {
		return "", err
	}

	state := s.newThreadState(intent, s.cfg.DefaultMode)
	for _, opt := range opts {
		state = opt(state)
	}

	if err := s.acquire(state.ThreadID); err != nil {
		return "", err
	}

	runCtx := s.services.InjectAll(s.baseCtx)
	if err := s.begin(runCtx, state); err != nil {
		s.release(state.ThreadID)
		return "", err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(state.ThreadID)
		s.runner.Run(runCtx, state)
	}()

	return state.ThreadID, nil
}

// Resume applies a human decision to a suspended thread. The decision is
// checkpointed before Resume returns; a revise continues the drafting
// cycle on the thread's executor goroutine afterward.
func (s *Service) Resume(ctx context.Context, threadID string, decision Decision, payload ResumePayload) error {
	if err := s.acquire(threadID); err != nil {
		return err
	}

	state, err := s.loadState(ctx, threadID)
	if err != nil {
		s.release(threadID)
		return err
	}

	gateDelta, err := ApplyDecision(state, decision, payload)
	if err != nil {
		s.release(threadID)
		return err
	}

	runCtx := s.services.InjectAll(s.baseCtx)
	state, err = s.runner.Commit(runCtx, state, gateDelta, NodeHumanGate)
	if err != nil {
		s.release(threadID)
		return err
	}

	if NextNode(state) == END {
		s.release(threadID)
		return nil
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(threadID)
		s.runner.Run(runCtx, state)
	}()

	return nil
}

// CreateExercise runs a full autonomous thread to completion in the
// caller's context and returns the rendered exercise. No human gate is
// involved; this is the synchronous machine-to-machine surface.
func (s *Service) CreateExercise(ctx context.Context, intent string) (Artifact, error) {
	if err := validateIntent(intent); err != nil {
		return Artifact{}, err
	}

	state := s.newThreadState(intent, ModeAutonomous)
	if err := s.acquire(state.ThreadID); err != nil {
		return Artifact{}, err
	}
	defer s.release(state.ThreadID)

	runCtx := s.services.InjectAll(ctx)
	if err := s.begin(runCtx, state); err != nil {
		return Artifact{}, err
	}

	final, err := s.runner.Run(runCtx, state)
	if err != nil {
		return Artifact{}, err
	}
	if final.CurrentDraft == nil {
		return Artifact{}, fmt.Errorf("thread %s completed without a draft", final.ThreadID)
	}

	return Artifact{
		ThreadID: final.ThreadID,
		Markdown: RenderExercise(*final.CurrentDraft),
		Exercise: final.CurrentDraft,
		State:    final,
	}, nil
}

// GetState returns the thread's state decoded from its latest
// checkpoint. The store is authoritative: this is how disconnected
// stream subscribers re-sync.
func (s *Service) GetState(ctx context.Context, threadID string) (State, error) {
	return s.loadState(ctx, threadID)
}

// History returns the thread's checkpoints in ascending seq order.
func (s *Service) History(ctx context.Context, threadID string, limit int) ([]checkpoint.Checkpoint, error) {
	return s.services.Store.History(ctx, threadID, limit)
}

// Threads lists registered threads, most recently updated first.
func (s *Service) Threads(ctx context.Context, limit int) ([]checkpoint.ThreadMeta, error) {
	return s.services.Store.Threads(ctx, limit)
}

// Thread returns the registry row for one thread.
func (s *Service) Thread(ctx context.Context, threadID string) (*checkpoint.ThreadMeta, error) {
	return s.services.Store.Thread(ctx, threadID)
}

// Subscribe attaches a bounded event subscription for the thread.
func (s *Service) Subscribe(threadID string) *stream.Subscription {
	return s.services.Emitter.Subscribe(threadID)
}

// Close stops thread executors, waits for them to wind down, and closes
// the store. In-flight threads keep their latest checkpoint and can be
// inspected after restart.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	s.services.Emitter.Close()
	return s.services.Store.Close()
}

// =============================================================================
// Internals
// =============================================================================

// begin registers the thread and writes its first checkpoint, so the
// thread is durable and listable before any node runs.
func (s *Service) begin(ctx context.Context, state State) error {
	err := s.services.Store.CreateThread(ctx, checkpoint.ThreadMeta{
		ThreadID:   state.ThreadID,
		UserIntent: state.UserIntent,
		Mode:       string(state.Mode),
		Status:     string(state.Status),
		CreatedAt:  state.CreatedAt,
		UpdatedAt:  state.UpdatedAt,
	})
	if err != nil {
		return &PersistenceError{Op: "create", ThreadID: state.ThreadID, Err: err}
	}

	if tm := s.services.Transcripts; tm != nil {
		tm.StartThread(state.ThreadID, transcript.ThreadMetadata{UserIntent: state.UserIntent})
	}

	seq, snapshot, err := s.runner.checkpoint(ctx, state)
	if err != nil {
		return err
	}

	s.services.Emitter.Publish(stream.Event{
		Type:      stream.EventStep,
		ThreadID:  state.ThreadID,
		Seq:       seq,
		Status:    string(state.Status),
		State:     snapshot,
		Timestamp: time.Now(),
	})
	s.services.Notifier.Notify(ctx, notify.Event{
		Type:      notify.EventThreadStarted,
		ThreadID:  state.ThreadID,
		Message:   state.UserIntent,
		Severity:  notify.SeverityInfo,
		Timestamp: time.Now(),
	})
	recordThreadStarted()

	return nil
}

// newThreadState creates a fresh state carrying the service's revision
// budget.
func (s *Service) newThreadState(intent string, mode Mode) State {
	state := NewState(NewThreadID(), intent, mode)
	if s.cfg.Node.MaxRevisions > 0 {
		state = state.WithMaxRevisions(s.cfg.Node.MaxRevisions)
	}
	return state
}

// loadState decodes the latest checkpoint for the thread.
func (s *Service) loadState(ctx context.Context, threadID string) (State, error) {
	cp, err := s.services.Store.LoadLatest(ctx, threadID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return State{}, err
		}
		return State{}, &PersistenceError{Op: "load", ThreadID: threadID, Err: err}
	}

	state, err := DecodeState(cp.Snapshot)
	if err != nil {
		return State{}, &PersistenceError{Op: "load", ThreadID: threadID, Err: err}
	}
	return state, nil
}

// acquire claims the thread's executor slot.
func (s *Service) acquire(threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, busy := s.running[threadID]; busy {
		return ErrThreadBusy
	}
	s.running[threadID] = struct{}{}
	return nil
}

// release frees the thread's executor slot.
func (s *Service) release(threadID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, threadID)
}

// validateIntent rejects goals the workflow cannot act on.
func validateIntent(intent string) error {
	if intent == "" {
		return &ValidationError{Field: "intent", Reason: "must not be empty"}
	}
	if len(intent) > MaxIntentLen {
		return &ValidationError{
			Field:  "intent",
			Reason: fmt.Sprintf("must be at most %d bytes, got %d", MaxIntentLen, len(intent)),
		}
	}
	return nil
}
