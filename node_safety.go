package careflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	carecontext "github.com/randalmurphal/careflow/context"
	"github.com/randalmurphal/careflow/stage"
)

// minReviewScore is the threshold a draft must meet on every review
// dimension before the supervisor will approve it.
const minReviewScore = 8

// SafetyReviewNode screens the current draft for contraindications,
// crisis-inappropriate advice, and medical overreach. It always runs
// before the clinical review.
//
// Prerequisites: state.CurrentDraft must be set
// Updates: SafetyReview, appends feedback when the draft is unsafe or
// scores below threshold
func SafetyReviewNode(ctx context.Context, state State) (Delta, error) {
	if err := state.Validate(RequireDraft); err != nil {
		return Delta{}, err
	}

	result, err := runStage(ctx, state, stage.SafetyReview, "safety-review", formatSafetyPrompt(state))
	if err != nil {
		return Delta{}, err
	}

	review := parseSafetyReview(result.Content)

	delta := Delta{
		SafetyReview: review,
		Notes: []Note{NewNote("guardian", fmt.Sprintf(
			"Safety Check Complete. Safe: %v, Score: %d", review.Safe, review.Score))},
		TokensIn:  result.Usage.InputTokens,
		TokensOut: result.Usage.OutputTokens,
		Cost:      result.Usage.Cost,
	}

	if !review.Safe || review.Score < minReviewScore {
		delta.Feedback = []string{fmt.Sprintf("Safety Issues: %s; Recommendations: %s",
			strings.Join(review.Issues, "; "),
			strings.Join(review.Recommendations, "; "))}
	}

	// Save review artifact
	if artifacts := carecontext.Artifact(ctx); artifacts != nil {
		if data, err := json.MarshalIndent(review, "", "  "); err == nil {
			artifacts.SaveReview(state.ThreadID, "safety-review", state.RevisionCount, data)
		}
	}

	return delta, nil
}

// formatSafetyPrompt creates the prompt for the safety review
func formatSafetyPrompt(state State) string {
	var b strings.Builder
	b.WriteString("Review this behavioral health exercise for safety.\n\n")
	b.WriteString(fmt.Sprintf("**User goal**: %s\n\n", state.UserIntent))

	b.WriteString("## Draft\n\n```json\n")
	draftJSON, _ := json.MarshalIndent(state.CurrentDraft, "", "  ")
	b.Write(draftJSON)
	b.WriteString("\n```\n")

	return b.String()
}

// parseSafetyReview parses the safety review from LLM output. A review
// that cannot be parsed fails safe: the draft is treated as unsafe and
// sent back for revision rather than allowed through unreviewed.
func parseSafetyReview(output string) *SafetyReview {
	var review SafetyReview
	if err := json.Unmarshal([]byte(extractJSON(output)), &review); err != nil {
		return &SafetyReview{
			Safe:  false,
			Score: 0,
			Issues: []string{fmt.Sprintf(
				"Safety review output could not be parsed: %v", err)},
			Recommendations: []string{"Regenerate the draft and re-run the safety review"},
		}
	}
	return &review
}
