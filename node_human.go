package careflow

import "fmt"

// Decision is the action a human reviewer takes on a suspended thread.
type Decision string

const (
	// DecisionApprove accepts the draft and completes the thread.
	DecisionApprove Decision = "approve"

	// DecisionRevise sends the draft back to the drafter with feedback.
	DecisionRevise Decision = "revise"
)

// ResumePayload carries the reviewer's input when resuming a thread.
type ResumePayload struct {
	// Feedback is the reviewer's guidance. Required for revise.
	Feedback string `json:"feedback,omitempty"`

	// Draft optionally replaces the current draft on approve, for
	// reviewers who fix small wording issues themselves.
	Draft *Exercise `json:"draft,omitempty"`
}

// ApplyDecision turns a human decision into a state delta. It is the only
// path out of pending_human: a thread in any other status rejects the
// resume without mutation.
//
// The reviews are left in place so the record shows what the human saw;
// the drafter clears them when a revision produces a new draft.
func ApplyDecision(state State, decision Decision, payload ResumePayload) (Delta, error) {
	if state.Status != StatusPendingHuman {
		return Delta{}, &TransitionError{
			ThreadID: state.ThreadID,
			From:     state.Status,
			Op:       "resume",
		}
	}

	switch decision {
	case DecisionApprove:
		delta := Delta{
			Status: statusPtr(StatusCompleted),
			Notes:  []Note{NewNote("human", "Human approved the draft.")},
		}
		if payload.Draft != nil {
			delta.Draft = payload.Draft
			if state.CurrentDraft != nil {
				delta.ArchivedDrafts = []Exercise{*state.CurrentDraft}
			}
		}
		return delta, nil

	case DecisionRevise:
		if payload.Feedback == "" {
			return Delta{}, &ValidationError{
				Field:  "feedback",
				Reason: "revise requires feedback",
			}
		}
		return Delta{
			Status:        statusPtr(StatusRevisionNeeded),
			RevisionCount: intPtr(state.RevisionCount + 1),
			HumanFeedback: strPtr(payload.Feedback),
			Feedback:      []string{fmt.Sprintf("Human Reviewer: %s", payload.Feedback)},
			Notes:         []Note{NewNote("human", fmt.Sprintf("Human feedback: %s", payload.Feedback))},
		}, nil

	default:
		return Delta{}, &ValidationError{
			Field:  "action",
			Reason: fmt.Sprintf("unknown decision %q, want approve or revise", decision),
		}
	}
}
