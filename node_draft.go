package careflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	carecontext "github.com/randalmurphal/careflow/context"
	"github.com/randalmurphal/careflow/stage"
)

// DraftNode writes the initial exercise draft from the user's goal, or
// revises the current draft after reviewer feedback.
//
// Prerequisites: state.UserIntent must be set
// Updates: CurrentDraft (both reviews cleared), DraftHistory on revision,
// status -> awaiting_review
func DraftNode(ctx context.Context, state State) (Delta, error) {
	if err := state.Validate(RequireIntent); err != nil {
		return Delta{}, err
	}

	revising := state.CurrentDraft != nil

	var promptName, userPrompt string
	if revising {
		promptName = "draft-revise"
		userPrompt = formatRevisePrompt(state)
	} else {
		promptName = "draft"
		userPrompt = formatDraftPrompt(state)
	}

	result, err := runStage(ctx, state, stage.Draft, promptName, userPrompt)
	if err != nil {
		return Delta{}, err
	}

	draft, err := parseExercise(result.Content)
	if err != nil {
		return Delta{}, fmt.Errorf("parse draft: %w", err)
	}

	note := "Created initial draft."
	if revising {
		note = "Revised draft based on feedback."
	}

	delta := Delta{
		Status:       statusPtr(StatusAwaitingReview),
		Draft:        draft,
		ClearReviews: true,
		Notes:        []Note{NewNote("drafter", note)},
		TokensIn:     result.Usage.InputTokens,
		TokensOut:    result.Usage.OutputTokens,
		Cost:         result.Usage.Cost,
	}
	if revising {
		delta.ArchivedDrafts = []Exercise{*state.CurrentDraft}
	}

	// Save draft artifact
	if artifacts := carecontext.Artifact(ctx); artifacts != nil {
		if data, err := json.MarshalIndent(draft, "", "  "); err == nil {
			artifacts.SaveDraft(state.ThreadID, state.RevisionCount, data)
		}
	}

	return delta, nil
}

// formatDraftPrompt creates the initial drafting prompt
func formatDraftPrompt(state State) string {
	var b strings.Builder
	b.WriteString("Create a behavioral health exercise for this goal:\n\n")
	b.WriteString(fmt.Sprintf("**Goal**: %s\n", state.UserIntent))
	return b.String()
}

// formatRevisePrompt creates the revision prompt with the current draft
// and the most recent feedback
func formatRevisePrompt(state State) string {
	var b strings.Builder
	b.WriteString("Revise this behavioral health exercise based on reviewer feedback.\n\n")
	b.WriteString(fmt.Sprintf("**Original goal**: %s\n\n", state.UserIntent))

	b.WriteString("## Current Draft\n\n```json\n")
	draftJSON, _ := json.MarshalIndent(state.CurrentDraft, "", "  ")
	b.Write(draftJSON)
	b.WriteString("\n```\n\n")

	if feedback := state.LastFeedback(3); len(feedback) > 0 {
		b.WriteString("## Feedback to Address\n\n")
		for _, f := range feedback {
			b.WriteString(fmt.Sprintf("- %s\n", f))
		}
	}

	return b.String()
}

// parseExercise parses an exercise draft from LLM output. A draft that
// cannot be parsed is a failed invocation, not a fallback case: there is
// nothing safe to review.
func parseExercise(output string) (*Exercise, error) {
	var ex Exercise
	if err := json.Unmarshal([]byte(extractJSON(output)), &ex); err != nil {
		return nil, err
	}
	if ex.Title == "" || len(ex.Steps) == 0 {
		return nil, fmt.Errorf("draft missing title or steps")
	}
	return &ex, nil
}
