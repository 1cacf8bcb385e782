package careflow

import (
	"encoding/json"
	"fmt"
	"time"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// SnapshotVersion is the current persisted snapshot format version.
// Decoding ignores unknown fields, so newer snapshots load on older code.
const SnapshotVersion = 1

// =============================================================================
// Exercise Type
// =============================================================================

// Exercise is the structured behavioral-health exercise produced by the
// drafting stage and refined across revision cycles.
type Exercise struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Steps       []string `json:"steps"`
	Rationale   string   `json:"rationale"`
	SafetyNotes string   `json:"safetyNotes,omitempty"`
}

// Note is one scratchpad entry left by a stage.
type Note struct {
	AgentName string    `json:"agentName"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// =============================================================================
// Review Results
// =============================================================================

// SafetyReview holds the safety screening verdict for the current draft.
// A nil SafetyReview on state means the current draft has not been screened.
type SafetyReview struct {
	Safe            bool     `json:"safe"`
	Score           int      `json:"score"` // 0-10
	Issues          []string `json:"issues,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// ClinicalReview holds the clinical quality verdict for the current draft.
// A nil ClinicalReview on state means the current draft has not been reviewed.
type ClinicalReview struct {
	EmpathyScore int    `json:"empathyScore"` // 0-10
	QualityScore int    `json:"qualityScore"` // 0-10
	Feedback     string `json:"feedback,omitempty"`
}

// =============================================================================
// Status and Mode
// =============================================================================

// Status is the workflow position of a thread. Routing is derived from
// Status (plus review presence), never from a separate execution pointer.
type Status string

const (
	StatusDrafting       Status = "drafting"
	StatusAwaitingReview Status = "awaiting_review"
	StatusRevisionNeeded Status = "revision_needed"
	StatusPendingHuman   Status = "pending_human"
	StatusCompleted      Status = "completed"
	StatusError          Status = "error"
)

// Terminal reports whether the status ends the driver loop.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusDrafting, StatusAwaitingReview, StatusRevisionNeeded,
		StatusPendingHuman, StatusCompleted, StatusError:
		return true
	}
	return false
}

// Mode selects the gate behavior of a thread.
type Mode string

const (
	// ModeAutonomous runs to completion without the human gate.
	ModeAutonomous Mode = "autonomous"

	// ModeInteractive suspends at the human gate for an external decision.
	ModeInteractive Mode = "interactive"
)

// Valid reports whether m is a known mode value.
func (m Mode) Valid() bool {
	return m == ModeAutonomous || m == ModeInteractive
}

// =============================================================================
// Embeddable State Components
// =============================================================================

// DraftState tracks the draft and its revision history.
type DraftState struct {
	CurrentDraft  *Exercise  `json:"currentDraft,omitempty"`
	DraftHistory  []Exercise `json:"draftHistory,omitempty"`
	RevisionCount int        `json:"revisionCount"`
}

// ReviewsState tracks the per-cycle review verdicts. Both pointers are
// cleared when a new draft lands, so nil means "not yet this cycle".
type ReviewsState struct {
	SafetyReview   *SafetyReview   `json:"safetyReview,omitempty"`
	ClinicalReview *ClinicalReview `json:"clinicalReview,omitempty"`
}

// GateState tracks the human gate.
type GateState struct {
	HumanFeedback string `json:"humanFeedback,omitempty"`
}

// UsageState accumulates LLM usage across all stages of a thread.
type UsageState struct {
	TokensIn  int     `json:"tokensIn,omitempty"`
	TokensOut int     `json:"tokensOut,omitempty"`
	Cost      float64 `json:"cost,omitempty"`
}

// =============================================================================
// State - Thread Blackboard
// =============================================================================

// State is the blackboard for one thread: every stage reads a snapshot of
// it and contributes a Delta that the runner merges back in.
type State struct {
	Version int `json:"version"`

	// Identification
	ThreadID string `json:"threadId"`

	// Input; immutable after creation
	UserIntent string `json:"userIntent"`

	Mode         Mode `json:"mode"`
	MaxRevisions int  `json:"maxRevisions"`

	// Embedded state components
	DraftState
	ReviewsState
	GateState
	UsageState

	// Append-only records
	Scratchpad []Note   `json:"scratchpad,omitempty"`
	Feedback   []string `json:"feedback,omitempty"`

	Status  Status `json:"status"`
	Warning string `json:"warning,omitempty"`
	Failure string `json:"failure,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DefaultMaxRevisions bounds revision cycles when no override is configured.
const DefaultMaxRevisions = 3

// NewState creates the blackboard for a new thread.
func NewState(threadID, intent string, mode Mode) State {
	now := time.Now().UTC()
	return State{
		Version:      SnapshotVersion,
		ThreadID:     threadID,
		UserIntent:   intent,
		Mode:         mode,
		MaxRevisions: DefaultMaxRevisions,
		Status:       StatusDrafting,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// WithMaxRevisions sets the revision bound for this thread.
func (s State) WithMaxRevisions(n int) State {
	if n > 0 {
		s.MaxRevisions = n
	}
	return s
}

// WithMode sets the gate mode.
func (s State) WithMode(mode Mode) State {
	s.Mode = mode
	return s
}

// SafetyScore returns the safety score, or -1 when absent.
func (s State) SafetyScore() int {
	if s.SafetyReview == nil {
		return -1
	}
	return s.SafetyReview.Score
}

// EmpathyScore returns the empathy score, or -1 when absent.
func (s State) EmpathyScore() int {
	if s.ClinicalReview == nil {
		return -1
	}
	return s.ClinicalReview.EmpathyScore
}

// LastFeedback returns up to n of the most recent feedback entries.
func (s State) LastFeedback(n int) []string {
	if n <= 0 || len(s.Feedback) == 0 {
		return nil
	}
	if len(s.Feedback) <= n {
		return s.Feedback
	}
	return s.Feedback[len(s.Feedback)-n:]
}

// HasFailure returns true if the thread halted with an error.
func (s State) HasFailure() bool {
	return s.Failure != ""
}

// =============================================================================
// State Validation
// =============================================================================

// StateRequirement defines a state prerequisite.
type StateRequirement string

const (
	RequireIntent         StateRequirement = "intent"
	RequireDraft          StateRequirement = "draft"
	RequireSafetyReview   StateRequirement = "safety_review"
	RequireClinicalReview StateRequirement = "clinical_review"
)

// Validate checks if state has required fields.
func (s State) Validate(requirements ...StateRequirement) error {
	for _, req := range requirements {
		switch req {
		case RequireIntent:
			if s.UserIntent == "" {
				return fmt.Errorf("user intent required")
			}
		case RequireDraft:
			if s.CurrentDraft == nil {
				return fmt.Errorf("draft required")
			}
		case RequireSafetyReview:
			if s.SafetyReview == nil {
				return fmt.Errorf("safety review required")
			}
		case RequireClinicalReview:
			if s.ClinicalReview == nil {
				return fmt.Errorf("clinical review required")
			}
		default:
			return fmt.Errorf("unknown requirement: %s", req)
		}
	}
	return nil
}

// =============================================================================
// Delta and Merge
// =============================================================================

// Delta is one stage's contribution to the blackboard. Scalar fields use
// replace semantics (nil pointer = leave untouched); Notes, Feedback and
// ArchivedDrafts append.
type Delta struct {
	Status         *Status
	Draft          *Exercise
	SafetyReview   *SafetyReview
	ClinicalReview *ClinicalReview
	ClearReviews   bool
	HumanFeedback  *string
	Warning        *string
	Failure        *string
	RevisionCount  *int

	Notes          []Note
	Feedback       []string
	ArchivedDrafts []Exercise

	TokensIn  int
	TokensOut int
	Cost      float64
}

// Merge applies a delta to a state snapshot and returns the new state.
// It is pure: given the same snapshot and delta it always produces the
// same result, so replaying from a checkpoint is reproducible. The caller
// fixes the stage order (safety before clinical); Merge never reorders.
func Merge(s State, d Delta) State {
	if d.ClearReviews {
		s.SafetyReview = nil
		s.ClinicalReview = nil
	}
	if d.Status != nil {
		s.Status = *d.Status
	}
	if d.Draft != nil {
		s.CurrentDraft = d.Draft
	}
	if d.SafetyReview != nil {
		s.SafetyReview = d.SafetyReview
	}
	if d.ClinicalReview != nil {
		s.ClinicalReview = d.ClinicalReview
	}
	if d.HumanFeedback != nil {
		s.HumanFeedback = *d.HumanFeedback
	}
	if d.Warning != nil {
		s.Warning = *d.Warning
	}
	if d.Failure != nil {
		s.Failure = *d.Failure
	}
	if d.RevisionCount != nil {
		s.RevisionCount = *d.RevisionCount
	}

	if len(d.ArchivedDrafts) > 0 {
		s.DraftHistory = append(s.DraftHistory, d.ArchivedDrafts...)
	}
	if len(d.Notes) > 0 {
		s.Scratchpad = append(s.Scratchpad, d.Notes...)
	}
	if len(d.Feedback) > 0 {
		s.Feedback = append(s.Feedback, d.Feedback...)
	}

	s.TokensIn += d.TokensIn
	s.TokensOut += d.TokensOut
	s.Cost += d.Cost

	s.UpdatedAt = time.Now().UTC()
	return s
}

// NewNote builds a scratchpad entry stamped now.
func NewNote(agent, content string) Note {
	return Note{AgentName: agent, Content: content, Timestamp: time.Now().UTC()}
}

// statusDelta is a shorthand for deltas that only move status.
func statusDelta(status Status) Delta {
	return Delta{Status: &status}
}

func statusPtr(s Status) *Status { return &s }
func strPtr(s string) *string    { return &s }
func intPtr(n int) *int          { return &n }

// =============================================================================
// Snapshot Encoding
// =============================================================================

// Snapshot serializes the state for checkpointing.
func (s State) Snapshot() (json.RawMessage, error) {
	s.Version = SnapshotVersion
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal state snapshot: %w", err)
	}
	return data, nil
}

// DecodeState deserializes a checkpoint snapshot. Unknown fields are
// ignored so snapshots written by newer format revisions still load.
func DecodeState(data []byte) (State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("decode state snapshot: %w", err)
	}
	if s.ThreadID == "" {
		return State{}, fmt.Errorf("decode state snapshot: missing thread id")
	}
	return s, nil
}

// =============================================================================
// Helper Functions
// =============================================================================

const threadIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewThreadID creates a unique thread identifier.
func NewThreadID() string {
	id, err := nanoid.Generate(threadIDAlphabet, 21)
	if err != nil {
		// crypto/rand is the only failure source; fall back to a timestamp id
		return fmt.Sprintf("thr_%d", time.Now().UnixNano())
	}
	return "thr_" + id
}

// =============================================================================
// State Summary
// =============================================================================

// Summary returns a human-readable summary of the state.
func (s State) Summary() string {
	title := "(no draft)"
	if s.CurrentDraft != nil {
		title = s.CurrentDraft.Title
	}
	return fmt.Sprintf("Thread %s [%s] rev %d: %q (safety: %s, empathy: %s, tokens: %d in, %d out, cost: $%.4f)",
		s.ThreadID, s.Status, s.RevisionCount, title,
		scoreString(s.SafetyScore()), scoreString(s.EmpathyScore()),
		s.TokensIn, s.TokensOut, s.Cost)
}

func scoreString(score int) string {
	if score < 0 {
		return "-"
	}
	return fmt.Sprintf("%d", score)
}
