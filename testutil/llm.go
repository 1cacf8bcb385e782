package testutil

import (
	"context"

	"github.com/randalmurphal/careflow/llm"
)

// StageClient returns a mock that answers each stage with a fixed
// payload, dispatching on the request temperature: 0.7 identifies the
// drafter, 0.0 the safety screen, anything else the clinical review.
func StageClient(draft, safety, clinical string) *llm.MockClient {
	return llm.NewMockClient().WithCompleteFunc(func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		var content string
		switch req.Temperature {
		case 0.7:
			content = draft
		case 0.0:
			content = safety
		default:
			content = clinical
		}
		return &llm.CompletionResponse{
			Content: content,
			Model:   "mock",
			Usage:   llm.Usage{InputTokens: 10, OutputTokens: 20},
		}, nil
	})
}

// ApprovingClient returns a mock whose reviews always pass, so
// interactive threads park at the human gate on the first cycle and
// autonomous threads complete.
func ApprovingClient() *llm.MockClient {
	return StageClient(DraftJSON, SafetyPassJSON, ClinicalPassJSON)
}
