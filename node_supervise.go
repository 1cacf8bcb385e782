package careflow

import (
	"context"
	"fmt"
)

// SuperviseNode decides where the thread goes after both reviews are in.
// It is pure routing logic and never calls the LLM: the decision is a
// function of the review scores, the revision budget, and the thread mode.
//
// Prerequisites: state.CurrentDraft, state.SafetyReview, and
// state.ClinicalReview must be set
// Updates: status, and RevisionCount when sending the draft back
func SuperviseNode(ctx context.Context, state State) (Delta, error) {
	if err := state.Validate(RequireDraft, RequireSafetyReview, RequireClinicalReview); err != nil {
		return Delta{}, err
	}

	safety := state.SafetyReview
	clinical := state.ClinicalReview

	approved := safety.Safe &&
		safety.Score >= minReviewScore &&
		clinical.EmpathyScore >= minReviewScore &&
		clinical.QualityScore >= minReviewScore

	if approved {
		next := StatusCompleted
		if state.Mode == ModeInteractive {
			next = StatusPendingHuman
		}
		return Delta{
			Status: statusPtr(next),
			Notes:  []Note{NewNote("supervisor", "Draft approved by Supervisor.")},
		}, nil
	}

	// The revision budget is a completion guarantee, not a quality gate:
	// when it runs out the thread completes with the current draft and a
	// warning instead of failing.
	if state.RevisionCount >= state.MaxRevisions {
		return Delta{
			Status:  statusPtr(StatusCompleted),
			Warning: strPtr("max revisions reached; completing with current draft"),
			Notes: []Note{NewNote("supervisor",
				"Max revisions reached. Proceeding with current draft.")},
		}, nil
	}

	return Delta{
		Status:        statusPtr(StatusRevisionNeeded),
		RevisionCount: intPtr(state.RevisionCount + 1),
		Notes: []Note{NewNote("supervisor", fmt.Sprintf(
			"Draft needs revision. Safety: %d, Empathy: %d",
			safety.Score, clinical.EmpathyScore))},
	}, nil
}
