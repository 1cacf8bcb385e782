package careflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	carecontext "github.com/randalmurphal/careflow/context"
	"github.com/randalmurphal/careflow/stage"
)

// ClinicalReviewNode evaluates the current draft for empathy and
// therapeutic quality. It only runs after the safety review has
// completed for the same draft.
//
// Prerequisites: state.CurrentDraft and state.SafetyReview must be set
// Updates: ClinicalReview, appends feedback when either score is below
// threshold
func ClinicalReviewNode(ctx context.Context, state State) (Delta, error) {
	if err := state.Validate(RequireDraft, RequireSafetyReview); err != nil {
		return Delta{}, err
	}

	result, err := runStage(ctx, state, stage.ClinicalReview, "clinical-review", formatClinicalPrompt(state))
	if err != nil {
		return Delta{}, err
	}

	review := parseClinicalReview(result.Content)

	delta := Delta{
		ClinicalReview: review,
		Notes: []Note{NewNote("critic", fmt.Sprintf(
			"Clinical Review Complete. Empathy: %d, Quality: %d",
			review.EmpathyScore, review.QualityScore))},
		TokensIn:  result.Usage.InputTokens,
		TokensOut: result.Usage.OutputTokens,
		Cost:      result.Usage.Cost,
	}

	if review.EmpathyScore < minReviewScore || review.QualityScore < minReviewScore {
		delta.Feedback = []string{fmt.Sprintf("Clinical Feedback: %s", review.Feedback)}
	}

	// Save review artifact
	if artifacts := carecontext.Artifact(ctx); artifacts != nil {
		if data, err := json.MarshalIndent(review, "", "  "); err == nil {
			artifacts.SaveReview(state.ThreadID, "clinical-review", state.RevisionCount, data)
		}
	}

	return delta, nil
}

// formatClinicalPrompt creates the prompt for the clinical review
func formatClinicalPrompt(state State) string {
	var b strings.Builder
	b.WriteString("Review this behavioral health exercise for empathy and clinical quality.\n\n")
	b.WriteString(fmt.Sprintf("**User goal**: %s\n\n", state.UserIntent))

	b.WriteString("## Draft\n\n```json\n")
	draftJSON, _ := json.MarshalIndent(state.CurrentDraft, "", "  ")
	b.Write(draftJSON)
	b.WriteString("\n```\n")

	return b.String()
}

// parseClinicalReview parses the clinical review from LLM output. When
// the output cannot be parsed the raw text becomes the feedback and both
// scores stay at zero, forcing a revision instead of a silent pass.
func parseClinicalReview(output string) *ClinicalReview {
	var review ClinicalReview
	if err := json.Unmarshal([]byte(extractJSON(output)), &review); err != nil {
		return &ClinicalReview{
			EmpathyScore: 0,
			QualityScore: 0,
			Feedback:     output,
		}
	}
	return &review
}
