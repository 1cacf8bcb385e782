package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Claude CLI errors
var (
	// ErrClaudeNotFound indicates the claude CLI binary was not found.
	ErrClaudeNotFound = errors.New("claude CLI not found")

	// ErrClaudeTimeout indicates the claude CLI execution timed out.
	ErrClaudeTimeout = errors.New("claude CLI timed out")

	// ErrClaudeFailed indicates the claude CLI exited with an error.
	ErrClaudeFailed = errors.New("claude CLI failed")
)

// DefaultClaudeTimeout bounds a single completion call.
const DefaultClaudeTimeout = 5 * time.Minute

// ClaudeCLI implements Client by shelling out to the claude binary in
// non-interactive print mode.
type ClaudeCLI struct {
	binaryPath string        // Path to claude binary
	model      string        // Default model (empty = use claude default)
	timeout    time.Duration // Per-call timeout
	workdir    string        // Working directory for the process
}

// ClaudeOption configures the Claude CLI client.
type ClaudeOption func(*ClaudeCLI)

// WithBinaryPath sets the path to the claude binary (default "claude").
func WithBinaryPath(path string) ClaudeOption {
	return func(c *ClaudeCLI) { c.binaryPath = path }
}

// WithModel sets the default model for completions.
func WithModel(model string) ClaudeOption {
	return func(c *ClaudeCLI) { c.model = model }
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) ClaudeOption {
	return func(c *ClaudeCLI) { c.timeout = d }
}

// WithWorkdir sets the working directory for the claude process.
func WithWorkdir(dir string) ClaudeOption {
	return func(c *ClaudeCLI) { c.workdir = dir }
}

// NewClaudeCLI creates a Claude CLI client.
// Returns ErrClaudeNotFound if the claude binary is not installed.
func NewClaudeCLI(opts ...ClaudeOption) (*ClaudeCLI, error) {
	c := &ClaudeCLI{
		binaryPath: "claude",
		timeout:    DefaultClaudeTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	if _, err := exec.LookPath(c.binaryPath); err != nil {
		return nil, ErrClaudeNotFound
	}

	return c, nil
}

// Complete implements Client.
func (c *ClaudeCLI) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	prompt := renderPrompt(req.Messages)
	if prompt == "" {
		return nil, fmt.Errorf("%w: empty prompt", ErrClaudeFailed)
	}

	args := c.buildArgs(req, prompt)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.binaryPath, args...)
	if c.workdir != "" {
		cmd.Dir = c.workdir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: after %v", ErrClaudeTimeout, c.timeout)
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		stderrStr := strings.TrimSpace(stderr.String())
		if stderrStr != "" {
			return nil, fmt.Errorf("%w: %s", ErrClaudeFailed, stderrStr)
		}
		return nil, fmt.Errorf("%w: %v", ErrClaudeFailed, err)
	}

	resp, err := parseClaudeOutput(stdout.Bytes())
	if err != nil {
		// Fallback to raw output
		resp = &CompletionResponse{
			Content: strings.TrimSpace(stdout.String()),
		}
	}

	if resp.Model == "" {
		resp.Model = c.model
	}
	return resp, nil
}

// renderPrompt flattens a conversation into one prompt for print mode.
func renderPrompt(messages []Message) string {
	if len(messages) == 1 {
		return messages[0].Content
	}

	var sb strings.Builder
	for _, m := range messages {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		switch m.Role {
		case RoleAssistant:
			sb.WriteString("Assistant: ")
		default:
			sb.WriteString("User: ")
		}
		sb.WriteString(m.Content)
	}
	return sb.String()
}

// buildArgs constructs command line arguments for claude CLI.
func (c *ClaudeCLI) buildArgs(req CompletionRequest, prompt string) []string {
	args := []string{"--print", "--output-format", "json"}

	model := req.Model
	if model == "" {
		model = c.model
	}
	if model != "" {
		args = append(args, "--model", model)
	}
	if req.SystemPrompt != "" {
		args = append(args, "--system-prompt", req.SystemPrompt)
	}

	args = append(args, "-p", prompt)
	return args
}

// claudeJSONOutput represents the JSON output from claude CLI.
type claudeJSONOutput struct {
	Result       string  `json:"result"`
	Model        string  `json:"model"`
	TokensIn     int     `json:"tokens_in"`
	TokensOut    int     `json:"tokens_out"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost"`
	CostUSD      float64 `json:"cost_usd"`
}

// parseClaudeOutput parses the JSON output from claude CLI.
func parseClaudeOutput(data []byte) (*CompletionResponse, error) {
	data = bytes.TrimSpace(data)

	// Try direct parse first; the CLI may mix JSON with other content
	var output claudeJSONOutput
	if err := json.Unmarshal(data, &output); err != nil {
		start := bytes.Index(data, []byte("{"))
		end := bytes.LastIndex(data, []byte("}"))
		if start >= 0 && end > start {
			if err := json.Unmarshal(data[start:end+1], &output); err != nil {
				return nil, fmt.Errorf("parse json output: %w", err)
			}
		} else {
			return nil, fmt.Errorf("no json found in output")
		}
	}

	// Handle different field names for tokens
	tokensIn := output.TokensIn
	if tokensIn == 0 {
		tokensIn = output.InputTokens
	}
	tokensOut := output.TokensOut
	if tokensOut == 0 {
		tokensOut = output.OutputTokens
	}

	cost := output.Cost
	if cost == 0 {
		cost = output.CostUSD
	}

	return &CompletionResponse{
		Content: output.Result,
		Model:   output.Model,
		Usage: Usage{
			InputTokens:  tokensIn,
			OutputTokens: tokensOut,
			Cost:         cost,
		},
	}, nil
}

// BinaryPath returns the path to the claude binary.
func (c *ClaudeCLI) BinaryPath() string {
	return c.binaryPath
}

// DefaultModel returns the default model.
func (c *ClaudeCLI) DefaultModel() string {
	return c.model
}

// Timeout returns the per-call timeout.
func (c *ClaudeCLI) Timeout() time.Duration {
	return c.timeout
}
