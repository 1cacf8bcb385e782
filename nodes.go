package careflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	carecontext "github.com/randalmurphal/careflow/context"
	"github.com/randalmurphal/careflow/llm"
	"github.com/randalmurphal/careflow/stage"
	"github.com/randalmurphal/careflow/transcript"
)

// =============================================================================
// Node Types
// =============================================================================

// NodeFunc processes a state snapshot and returns the stage's delta.
// Nodes never mutate shared state; the runner merges the delta and
// checkpoints the result before routing continues.
type NodeFunc func(ctx context.Context, state State) (Delta, error)

// NodeConfig configures node behavior
type NodeConfig struct {
	MaxRevisions   int           // Max revision cycles (default: 3)
	MaxNodeRetries int           // Retries after the first attempt (default: 2)
	RetryBase      time.Duration // Backoff base, doubled per retry (default: 500ms)
}

// DefaultNodeConfig returns sensible defaults
func DefaultNodeConfig() NodeConfig {
	return NodeConfig{
		MaxRevisions:   DefaultMaxRevisions,
		MaxNodeRetries: 2,
		RetryBase:      500 * time.Millisecond,
	}
}

// =============================================================================
// Node Wrappers
// =============================================================================

// WithRetry wraps a node with bounded retries and exponential backoff.
// Exhausting the retries returns an ExecutionError carrying the attempt
// count and the last underlying error.
func WithRetry(node NodeFunc, name string, maxRetries int, retryBase time.Duration) NodeFunc {
	return func(ctx context.Context, state State) (Delta, error) {
		var lastErr error
		for attempt := 0; attempt <= maxRetries; attempt++ {
			if attempt > 0 {
				wait := retryBase * time.Duration(1<<(attempt-1))
				slog.Debug("retrying node",
					"threadId", state.ThreadID,
					"node", name,
					"attempt", attempt,
					"wait", wait)
				recordNodeRetry(name)
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return Delta{}, &ExecutionError{Node: name, Attempts: attempt, Err: ctx.Err()}
				}
			}
			delta, err := node(ctx, state)
			if err == nil {
				return delta, nil
			}
			lastErr = err
		}
		return Delta{}, &ExecutionError{Node: name, Attempts: maxRetries + 1, Err: lastErr}
	}
}

// WithTranscript wraps a node so failures still leave a trace in the
// thread's transcript. Successful LLM turns are recorded by the nodes
// themselves, which hold the prompt and response.
func WithTranscript(node NodeFunc, nodeName string) NodeFunc {
	return func(ctx context.Context, state State) (Delta, error) {
		start := time.Now()
		delta, err := node(ctx, state)
		if err != nil {
			if mgr := carecontext.Transcript(ctx); mgr != nil {
				mgr.RecordTurn(state.ThreadID, transcript.Turn{
					Agent:      nodeName,
					Response:   fmt.Sprintf("node failed: %v", err),
					DurationMs: time.Since(start).Milliseconds(),
				})
			}
		}
		return delta, err
	}
}

// WithTiming wraps a node with timing metrics
func WithTiming(node NodeFunc, nodeName string) NodeFunc {
	return func(ctx context.Context, state State) (Delta, error) {
		start := time.Now()
		delta, err := node(ctx, state)
		duration := time.Since(start)
		slog.Debug("node execution completed",
			"threadId", state.ThreadID,
			"node", nodeName,
			"duration", duration)
		return delta, err
	}
}

// =============================================================================
// Stage Execution Helpers
// =============================================================================

// runStage executes one LLM call for a stage: system prompt from the
// loader, model and temperature from the stage mapping, and the turn
// recorded in the thread's transcript.
func runStage(ctx context.Context, state State, st stage.Type, promptName, userPrompt string) (*llm.CompletionResponse, error) {
	client := carecontext.LLM(ctx)
	if client == nil {
		return nil, fmt.Errorf("llm.Client not found in context")
	}

	var systemPrompt string
	if loader := carecontext.Prompt(ctx); loader != nil {
		if sp, err := loader.Load(promptName); err == nil {
			systemPrompt = sp
		}
	}

	start := time.Now()
	result, err := client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     llm.UserMessage(userPrompt),
		Model:        string(stage.SelectModel(st)),
		Temperature:  stage.TemperatureForStage(st),
	})
	if err != nil {
		return nil, err
	}

	if mgr := carecontext.Transcript(ctx); mgr != nil {
		mgr.RecordTurn(state.ThreadID, transcript.Turn{
			Agent:      string(st),
			Model:      result.Model,
			Prompt:     userPrompt,
			Response:   result.Content,
			TokensIn:   result.Usage.InputTokens,
			TokensOut:  result.Usage.OutputTokens,
			DurationMs: time.Since(start).Milliseconds(),
		})
		if result.Usage.Cost > 0 {
			mgr.AddCost(state.ThreadID, result.Usage.Cost)
		}
	}

	return result, nil
}

// extractJSON pulls a JSON object out of an LLM response, tolerating
// markdown code fences around it.
func extractJSON(output string) string {
	output = strings.TrimSpace(output)

	if start := strings.Index(output, "```json"); start != -1 {
		start += 7
		if end := strings.Index(output[start:], "```"); end != -1 {
			return strings.TrimSpace(output[start : start+end])
		}
	} else if start := strings.Index(output, "```"); start != -1 {
		start += 3
		if end := strings.Index(output[start:], "```"); end != -1 {
			return strings.TrimSpace(output[start : start+end])
		}
	}

	return output
}
