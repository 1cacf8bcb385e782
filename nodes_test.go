package careflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	carecontext "github.com/randalmurphal/careflow/context"
	"github.com/randalmurphal/careflow/llm"
	"github.com/randalmurphal/careflow/prompt"
)

const (
	testDraftJSON = `{"title":"Box Breathing","description":"A calming breathing exercise.","steps":["Inhale for 4 counts","Hold for 4 counts","Exhale for 4 counts"],"rationale":"Paced breathing activates the parasympathetic nervous system.","safetyNotes":"Stop if you feel dizzy."}`

	testSafetyPassJSON = `{"safe":true,"score":9,"issues":[],"recommendations":[]}`
	testSafetyFailJSON = `{"safe":false,"score":4,"issues":["No abort protocol"],"recommendations":["Add a stop condition"]}`

	testClinicalPassJSON = `{"empathyScore":9,"qualityScore":9,"feedback":"Warm and actionable."}`
	testClinicalFailJSON = `{"empathyScore":5,"qualityScore":6,"feedback":"Too clinical in tone."}`
)

// nodeCtx builds a context with just the services a node under test needs.
func nodeCtx(mock *llm.MockClient) context.Context {
	ctx := carecontext.WithLLM(context.Background(), mock)
	return carecontext.WithPrompt(ctx, prompt.NewLoader(""))
}

func testDraftState(threadID string) State {
	state := NewState(threadID, "reduce anxiety before presentations", ModeAutonomous)
	state.Status = StatusAwaitingReview
	state.CurrentDraft = &Exercise{
		Title:       "Box Breathing",
		Description: "A calming breathing exercise.",
		Steps:       []string{"Inhale for 4 counts"},
	}
	return state
}

// =============================================================================
// DraftNode
// =============================================================================

func TestDraftNode_InitialDraft(t *testing.T) {
	mock := llm.NewMockClient().WithResponses(testDraftJSON)
	state := NewState("thr_draft1", "reduce anxiety before presentations", ModeAutonomous)

	delta, err := DraftNode(nodeCtx(mock), state)
	if err != nil {
		t.Fatalf("DraftNode() error = %v", err)
	}

	if delta.Status == nil || *delta.Status != StatusAwaitingReview {
		t.Errorf("Status delta = %v, want awaiting_review", delta.Status)
	}
	if delta.Draft == nil || delta.Draft.Title != "Box Breathing" {
		t.Fatalf("Draft = %+v", delta.Draft)
	}
	if len(delta.Draft.Steps) != 3 {
		t.Errorf("Steps = %d, want 3", len(delta.Draft.Steps))
	}
	if !delta.ClearReviews {
		t.Error("a new draft must clear both reviews")
	}
	if len(delta.ArchivedDrafts) != 0 {
		t.Error("initial draft should not archive anything")
	}
	if len(delta.Notes) != 1 || delta.Notes[0].Content != "Created initial draft." {
		t.Errorf("Notes = %+v", delta.Notes)
	}
	if delta.Notes[0].AgentName != "drafter" {
		t.Errorf("AgentName = %q, want drafter", delta.Notes[0].AgentName)
	}
	if delta.TokensIn == 0 || delta.TokensOut == 0 {
		t.Error("token usage should accumulate into the delta")
	}

	req := mock.Requests[0]
	if req.Temperature != 0.7 {
		t.Errorf("Temperature = %v, want 0.7", req.Temperature)
	}
	if !strings.Contains(req.Messages[0].Content, "reduce anxiety before presentations") {
		t.Error("user prompt should carry the goal")
	}
	if !strings.Contains(req.SystemPrompt, "exercise designer") {
		t.Errorf("SystemPrompt = %q, want the draft template", req.SystemPrompt)
	}
}

func TestDraftNode_Revision(t *testing.T) {
	mock := llm.NewMockClient().WithResponses(`{"title":"Box Breathing v2","description":"Updated.","steps":["Inhale"],"rationale":"r"}`)
	state := testDraftState("thr_rev1")
	state.Status = StatusRevisionNeeded
	state.Feedback = []string{"one", "two", "three", "Safety Issues: No abort protocol; Recommendations: Add a stop condition"}

	delta, err := DraftNode(nodeCtx(mock), state)
	if err != nil {
		t.Fatalf("DraftNode() error = %v", err)
	}

	if delta.Notes[0].Content != "Revised draft based on feedback." {
		t.Errorf("Note = %q", delta.Notes[0].Content)
	}
	if len(delta.ArchivedDrafts) != 1 || delta.ArchivedDrafts[0].Title != "Box Breathing" {
		t.Errorf("ArchivedDrafts = %+v, want the prior draft", delta.ArchivedDrafts)
	}
	if delta.Draft.Title != "Box Breathing v2" {
		t.Errorf("Draft.Title = %q", delta.Draft.Title)
	}

	userPrompt := mock.Requests[0].Messages[0].Content
	if !strings.Contains(userPrompt, "Feedback to Address") {
		t.Error("revision prompt should list feedback")
	}
	if !strings.Contains(userPrompt, "No abort protocol") {
		t.Error("revision prompt should carry the latest feedback")
	}
	if strings.Contains(userPrompt, "- one\n") {
		t.Error("revision prompt should only carry the last three feedback entries")
	}
	if !strings.Contains(mock.Requests[0].SystemPrompt, "revising") {
		t.Error("revision should use the revise template")
	}
}

func TestDraftNode_FencedResponse(t *testing.T) {
	mock := llm.NewMockClient().WithResponses("Here is the exercise:\n```json\n" + testDraftJSON + "\n```\n")
	state := NewState("thr_fence", "goal", ModeAutonomous)

	delta, err := DraftNode(nodeCtx(mock), state)
	if err != nil {
		t.Fatalf("DraftNode() error = %v", err)
	}
	if delta.Draft.Title != "Box Breathing" {
		t.Errorf("Draft.Title = %q", delta.Draft.Title)
	}
}

func TestDraftNode_MalformedOutputIsError(t *testing.T) {
	// A draft that cannot be parsed has nothing safe to review, so the
	// node fails (and gets retried) instead of falling back.
	mock := llm.NewMockClient().WithResponses("I'm sorry, I can't produce JSON today.")
	state := NewState("thr_bad", "goal", ModeAutonomous)

	if _, err := DraftNode(nodeCtx(mock), state); err == nil {
		t.Fatal("DraftNode should fail on unparseable output")
	}

	mock = llm.NewMockClient().WithResponses(`{"title":"","steps":[]}`)
	if _, err := DraftNode(nodeCtx(mock), state); err == nil {
		t.Fatal("DraftNode should fail on a draft without title or steps")
	}
}

func TestDraftNode_RequiresIntent(t *testing.T) {
	mock := llm.NewMockClient().WithResponses(testDraftJSON)
	state := NewState("thr_x", "", ModeAutonomous)

	if _, err := DraftNode(nodeCtx(mock), state); err == nil {
		t.Fatal("DraftNode should fail without a user intent")
	}
	if mock.CallCount() != 0 {
		t.Error("validation failures must not reach the LLM")
	}
}

// =============================================================================
// SafetyReviewNode
// =============================================================================

func TestSafetyReviewNode_Pass(t *testing.T) {
	mock := llm.NewMockClient().WithResponses(testSafetyPassJSON)
	state := testDraftState("thr_safe1")

	delta, err := SafetyReviewNode(nodeCtx(mock), state)
	if err != nil {
		t.Fatalf("SafetyReviewNode() error = %v", err)
	}

	if delta.SafetyReview == nil || !delta.SafetyReview.Safe || delta.SafetyReview.Score != 9 {
		t.Fatalf("SafetyReview = %+v", delta.SafetyReview)
	}
	if delta.Status != nil {
		t.Error("review nodes must not move status; routing reads the pointers")
	}
	if len(delta.Feedback) != 0 {
		t.Errorf("Feedback = %v, want none on a passing review", delta.Feedback)
	}
	if delta.Notes[0].AgentName != "guardian" {
		t.Errorf("AgentName = %q, want guardian", delta.Notes[0].AgentName)
	}
	if delta.Notes[0].Content != "Safety Check Complete. Safe: true, Score: 9" {
		t.Errorf("Note = %q", delta.Notes[0].Content)
	}
	if mock.Requests[0].Temperature != 0.0 {
		t.Errorf("Temperature = %v, want 0.0", mock.Requests[0].Temperature)
	}
}

func TestSafetyReviewNode_FailAppendsFeedback(t *testing.T) {
	mock := llm.NewMockClient().WithResponses(testSafetyFailJSON)
	state := testDraftState("thr_safe2")

	delta, err := SafetyReviewNode(nodeCtx(mock), state)
	if err != nil {
		t.Fatalf("SafetyReviewNode() error = %v", err)
	}

	if len(delta.Feedback) != 1 {
		t.Fatalf("Feedback = %v, want one entry", delta.Feedback)
	}
	want := "Safety Issues: No abort protocol; Recommendations: Add a stop condition"
	if delta.Feedback[0] != want {
		t.Errorf("Feedback[0] = %q, want %q", delta.Feedback[0], want)
	}
	if delta.Notes[0].Content != "Safety Check Complete. Safe: false, Score: 4" {
		t.Errorf("Note = %q", delta.Notes[0].Content)
	}
}

func TestSafetyReviewNode_MalformedFailsSafe(t *testing.T) {
	mock := llm.NewMockClient().WithResponses("The draft looks fine to me!")
	state := testDraftState("thr_safe3")

	delta, err := SafetyReviewNode(nodeCtx(mock), state)
	if err != nil {
		t.Fatalf("SafetyReviewNode() error = %v", err)
	}

	review := delta.SafetyReview
	if review == nil || review.Safe || review.Score != 0 {
		t.Fatalf("malformed output should fail safe, got %+v", review)
	}
	if len(review.Issues) == 0 || !strings.Contains(review.Issues[0], "could not be parsed") {
		t.Errorf("Issues = %v", review.Issues)
	}
	if len(delta.Feedback) != 1 {
		t.Error("a failed-safe review should append feedback")
	}
}

func TestSafetyReviewNode_RequiresDraft(t *testing.T) {
	mock := llm.NewMockClient().WithResponses(testSafetyPassJSON)
	state := NewState("thr_x", "goal", ModeAutonomous)

	if _, err := SafetyReviewNode(nodeCtx(mock), state); err == nil {
		t.Fatal("SafetyReviewNode should fail without a draft")
	}
}

// =============================================================================
// ClinicalReviewNode
// =============================================================================

func TestClinicalReviewNode_Pass(t *testing.T) {
	mock := llm.NewMockClient().WithResponses(testClinicalPassJSON)
	state := testDraftState("thr_clin1")
	state.SafetyReview = &SafetyReview{Safe: true, Score: 9}

	delta, err := ClinicalReviewNode(nodeCtx(mock), state)
	if err != nil {
		t.Fatalf("ClinicalReviewNode() error = %v", err)
	}

	if delta.ClinicalReview == nil || delta.ClinicalReview.EmpathyScore != 9 {
		t.Fatalf("ClinicalReview = %+v", delta.ClinicalReview)
	}
	if delta.Notes[0].AgentName != "critic" {
		t.Errorf("AgentName = %q, want critic", delta.Notes[0].AgentName)
	}
	if delta.Notes[0].Content != "Clinical Review Complete. Empathy: 9, Quality: 9" {
		t.Errorf("Note = %q", delta.Notes[0].Content)
	}
	if len(delta.Feedback) != 0 {
		t.Errorf("Feedback = %v, want none", delta.Feedback)
	}
	if mock.Requests[0].Temperature != 0.3 {
		t.Errorf("Temperature = %v, want 0.3", mock.Requests[0].Temperature)
	}
}

func TestClinicalReviewNode_LowScoreAppendsFeedback(t *testing.T) {
	mock := llm.NewMockClient().WithResponses(testClinicalFailJSON)
	state := testDraftState("thr_clin2")
	state.SafetyReview = &SafetyReview{Safe: true, Score: 9}

	delta, err := ClinicalReviewNode(nodeCtx(mock), state)
	if err != nil {
		t.Fatalf("ClinicalReviewNode() error = %v", err)
	}

	if len(delta.Feedback) != 1 || delta.Feedback[0] != "Clinical Feedback: Too clinical in tone." {
		t.Errorf("Feedback = %v", delta.Feedback)
	}
}

func TestClinicalReviewNode_MalformedFallsBack(t *testing.T) {
	mock := llm.NewMockClient().WithResponses("Great empathy, would recommend.")
	state := testDraftState("thr_clin3")
	state.SafetyReview = &SafetyReview{Safe: true, Score: 9}

	delta, err := ClinicalReviewNode(nodeCtx(mock), state)
	if err != nil {
		t.Fatalf("ClinicalReviewNode() error = %v", err)
	}

	review := delta.ClinicalReview
	if review.EmpathyScore != 0 || review.QualityScore != 0 {
		t.Errorf("scores = %d/%d, want 0/0", review.EmpathyScore, review.QualityScore)
	}
	if review.Feedback != "Great empathy, would recommend." {
		t.Errorf("Feedback = %q, want the raw output", review.Feedback)
	}
}

func TestClinicalReviewNode_RequiresSafetyReviewFirst(t *testing.T) {
	mock := llm.NewMockClient().WithResponses(testClinicalPassJSON)
	state := testDraftState("thr_clin4")
	// Draft present, safety review absent: the order invariant holds.

	if _, err := ClinicalReviewNode(nodeCtx(mock), state); err == nil {
		t.Fatal("ClinicalReviewNode should fail before the safety review ran")
	}
	if mock.CallCount() != 0 {
		t.Error("validation failures must not reach the LLM")
	}
}

// =============================================================================
// SuperviseNode
// =============================================================================

func TestSuperviseNode(t *testing.T) {
	tests := []struct {
		name       string
		mode       Mode
		safety     *SafetyReview
		clinical   *ClinicalReview
		revisions  int
		wantStatus Status
		wantCount  *int
		wantNote   string
	}{
		{
			name:       "approved interactive goes to gate",
			mode:       ModeInteractive,
			safety:     &SafetyReview{Safe: true, Score: 9},
			clinical:   &ClinicalReview{EmpathyScore: 9, QualityScore: 9},
			wantStatus: StatusPendingHuman,
			wantNote:   "Draft approved by Supervisor.",
		},
		{
			name:       "approved autonomous completes",
			mode:       ModeAutonomous,
			safety:     &SafetyReview{Safe: true, Score: 8},
			clinical:   &ClinicalReview{EmpathyScore: 8, QualityScore: 8},
			wantStatus: StatusCompleted,
			wantNote:   "Draft approved by Supervisor.",
		},
		{
			name:       "low safety score revises",
			mode:       ModeAutonomous,
			safety:     &SafetyReview{Safe: true, Score: 6},
			clinical:   &ClinicalReview{EmpathyScore: 9, QualityScore: 9},
			wantStatus: StatusRevisionNeeded,
			wantCount:  intPtr(1),
			wantNote:   "Draft needs revision. Safety: 6, Empathy: 9",
		},
		{
			name:       "unsafe draft revises regardless of score",
			mode:       ModeAutonomous,
			safety:     &SafetyReview{Safe: false, Score: 9},
			clinical:   &ClinicalReview{EmpathyScore: 9, QualityScore: 9},
			wantStatus: StatusRevisionNeeded,
			wantCount:  intPtr(1),
			wantNote:   "Draft needs revision. Safety: 9, Empathy: 9",
		},
		{
			name:       "low quality score revises",
			mode:       ModeAutonomous,
			safety:     &SafetyReview{Safe: true, Score: 9},
			clinical:   &ClinicalReview{EmpathyScore: 9, QualityScore: 5},
			wantStatus: StatusRevisionNeeded,
			wantCount:  intPtr(1),
		},
		{
			name:       "budget exhausted completes with warning",
			mode:       ModeAutonomous,
			safety:     &SafetyReview{Safe: true, Score: 6},
			clinical:   &ClinicalReview{EmpathyScore: 6, QualityScore: 6},
			revisions:  3,
			wantStatus: StatusCompleted,
			wantNote:   "Max revisions reached. Proceeding with current draft.",
		},
		{
			name:       "budget exhausted completes in interactive mode too",
			mode:       ModeInteractive,
			safety:     &SafetyReview{Safe: false, Score: 2},
			clinical:   &ClinicalReview{EmpathyScore: 3, QualityScore: 3},
			revisions:  3,
			wantStatus: StatusCompleted,
			wantNote:   "Max revisions reached. Proceeding with current draft.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := testDraftState("thr_sup")
			state.Mode = tt.mode
			state.SafetyReview = tt.safety
			state.ClinicalReview = tt.clinical
			state.RevisionCount = tt.revisions

			delta, err := SuperviseNode(context.Background(), state)
			if err != nil {
				t.Fatalf("SuperviseNode() error = %v", err)
			}

			if delta.Status == nil || *delta.Status != tt.wantStatus {
				t.Errorf("Status = %v, want %v", delta.Status, tt.wantStatus)
			}
			if tt.wantCount != nil {
				if delta.RevisionCount == nil || *delta.RevisionCount != *tt.wantCount {
					t.Errorf("RevisionCount = %v, want %d", delta.RevisionCount, *tt.wantCount)
				}
			} else if delta.RevisionCount != nil {
				t.Errorf("RevisionCount = %d, want untouched", *delta.RevisionCount)
			}
			if tt.wantNote != "" {
				if len(delta.Notes) != 1 || delta.Notes[0].Content != tt.wantNote {
					t.Errorf("Notes = %+v, want %q", delta.Notes, tt.wantNote)
				}
				if delta.Notes[0].AgentName != "supervisor" {
					t.Errorf("AgentName = %q, want supervisor", delta.Notes[0].AgentName)
				}
			}
			if tt.wantStatus == StatusCompleted && tt.revisions >= state.MaxRevisions {
				if delta.Warning == nil || *delta.Warning == "" {
					t.Error("exhausted budget should set a warning")
				}
			}
		})
	}
}

func TestSuperviseNode_RequiresBothReviews(t *testing.T) {
	state := testDraftState("thr_sup2")
	state.SafetyReview = &SafetyReview{Safe: true, Score: 9}

	if _, err := SuperviseNode(context.Background(), state); err == nil {
		t.Fatal("SuperviseNode should fail without the clinical review")
	}
}

// =============================================================================
// ApplyDecision (human gate)
// =============================================================================

func TestApplyDecision_Approve(t *testing.T) {
	state := testDraftState("thr_gate1")
	state.Status = StatusPendingHuman

	delta, err := ApplyDecision(state, DecisionApprove, ResumePayload{})
	if err != nil {
		t.Fatalf("ApplyDecision() error = %v", err)
	}

	if delta.Status == nil || *delta.Status != StatusCompleted {
		t.Errorf("Status = %v, want completed", delta.Status)
	}
	if delta.Draft != nil {
		t.Error("approve without a draft override should not touch the draft")
	}
	if len(delta.Notes) != 1 || delta.Notes[0].Content != "Human approved the draft." {
		t.Errorf("Notes = %+v", delta.Notes)
	}
	if delta.Notes[0].AgentName != "human" {
		t.Errorf("AgentName = %q, want human", delta.Notes[0].AgentName)
	}
}

func TestApplyDecision_ApproveWithDraftOverride(t *testing.T) {
	state := testDraftState("thr_gate2")
	state.Status = StatusPendingHuman

	edited := &Exercise{Title: "Box Breathing (edited)", Steps: []string{"Inhale slowly"}}
	delta, err := ApplyDecision(state, DecisionApprove, ResumePayload{Draft: edited})
	if err != nil {
		t.Fatalf("ApplyDecision() error = %v", err)
	}

	if delta.Draft != edited {
		t.Error("approve should install the reviewer's draft")
	}
	if len(delta.ArchivedDrafts) != 1 || delta.ArchivedDrafts[0].Title != "Box Breathing" {
		t.Errorf("ArchivedDrafts = %+v, want the replaced draft", delta.ArchivedDrafts)
	}
}

func TestApplyDecision_Revise(t *testing.T) {
	state := testDraftState("thr_gate3")
	state.Status = StatusPendingHuman
	state.RevisionCount = 1

	delta, err := ApplyDecision(state, DecisionRevise, ResumePayload{Feedback: "Add a grounding step"})
	if err != nil {
		t.Fatalf("ApplyDecision() error = %v", err)
	}

	if delta.Status == nil || *delta.Status != StatusRevisionNeeded {
		t.Errorf("Status = %v, want revision_needed", delta.Status)
	}
	if delta.RevisionCount == nil || *delta.RevisionCount != 2 {
		t.Errorf("RevisionCount = %v, want 2", delta.RevisionCount)
	}
	if delta.HumanFeedback == nil || *delta.HumanFeedback != "Add a grounding step" {
		t.Errorf("HumanFeedback = %v", delta.HumanFeedback)
	}
	if len(delta.Feedback) != 1 || delta.Feedback[0] != "Human Reviewer: Add a grounding step" {
		t.Errorf("Feedback = %v", delta.Feedback)
	}
	if delta.Notes[0].Content != "Human feedback: Add a grounding step" {
		t.Errorf("Note = %q", delta.Notes[0].Content)
	}
	if delta.ClearReviews {
		t.Error("the gate must not clear reviews; the drafter does when it revises")
	}
}

func TestApplyDecision_ReviseRequiresFeedback(t *testing.T) {
	state := testDraftState("thr_gate4")
	state.Status = StatusPendingHuman

	_, err := ApplyDecision(state, DecisionRevise, ResumePayload{})
	if err == nil {
		t.Fatal("revise without feedback should fail")
	}
	if !IsValidation(err) {
		t.Errorf("error = %T, want ValidationError", err)
	}
}

func TestApplyDecision_WrongStatus(t *testing.T) {
	for _, status := range []Status{StatusDrafting, StatusAwaitingReview, StatusRevisionNeeded, StatusCompleted, StatusError} {
		state := testDraftState("thr_gate5")
		state.Status = status

		_, err := ApplyDecision(state, DecisionApprove, ResumePayload{})
		if err == nil {
			t.Fatalf("ApplyDecision on %s should fail", status)
		}
		if !IsTransition(err) {
			t.Errorf("error = %T, want TransitionError", err)
		}
		var terr *TransitionError
		if errors.As(err, &terr) {
			if terr.From != status || terr.Op != "resume" {
				t.Errorf("TransitionError = %+v", terr)
			}
		}
	}
}

func TestApplyDecision_UnknownDecision(t *testing.T) {
	state := testDraftState("thr_gate6")
	state.Status = StatusPendingHuman

	_, err := ApplyDecision(state, Decision("defer"), ResumePayload{})
	if err == nil {
		t.Fatal("unknown decision should fail")
	}
	if !IsValidation(err) {
		t.Errorf("error = %T, want ValidationError", err)
	}
}

// =============================================================================
// Middleware
// =============================================================================

func TestWithRetry_EventualSuccess(t *testing.T) {
	calls := 0
	node := func(ctx context.Context, state State) (Delta, error) {
		calls++
		if calls < 3 {
			return Delta{}, fmt.Errorf("transient failure %d", calls)
		}
		return statusDelta(StatusCompleted), nil
	}

	wrapped := WithRetry(node, "flaky", 2, time.Millisecond)
	delta, err := wrapped(context.Background(), State{})
	if err != nil {
		t.Fatalf("WithRetry() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if delta.Status == nil || *delta.Status != StatusCompleted {
		t.Error("successful delta should pass through")
	}
}

func TestWithRetry_Exhaustion(t *testing.T) {
	calls := 0
	node := func(ctx context.Context, state State) (Delta, error) {
		calls++
		return Delta{}, fmt.Errorf("permanent failure")
	}

	_, err := WithRetry(node, "broken", 2, time.Millisecond)(context.Background(), State{})
	if err == nil {
		t.Fatal("WithRetry should surface the final error")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (initial + 2 retries)", calls)
	}

	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("error = %T, want ExecutionError", err)
	}
	if execErr.Node != "broken" || execErr.Attempts != 3 {
		t.Errorf("ExecutionError = %+v", execErr)
	}
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	node := func(ctx context.Context, state State) (Delta, error) {
		return Delta{}, fmt.Errorf("fails, forcing a backoff wait")
	}

	_, err := WithRetry(node, "cancelled", 3, 50*time.Millisecond)(ctx, State{})
	if err == nil {
		t.Fatal("WithRetry should stop when the context is cancelled")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled in the chain", err)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"fence with prose", "Sure!\n```json\n{\"a\":1}\n```\nDone.", `{"a":1}`},
		{"unterminated fence", "```json\n{\"a\":1}", "```json\n{\"a\":1}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSON(tt.input); got != tt.want {
				t.Errorf("extractJSON(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
