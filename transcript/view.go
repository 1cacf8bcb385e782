package transcript

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// Viewer displays transcripts
type Viewer struct{}

// NewViewer creates a viewer
func NewViewer() *Viewer {
	return &Viewer{}
}

// ViewFull displays the complete transcript
func (v *Viewer) ViewFull(w io.Writer, t *Transcript) error {
	v.writeHeader(w, t)

	for _, turn := range t.Turns {
		v.writeTurn(w, turn)
	}

	return nil
}

// ViewSummary displays a brief summary
func (v *Viewer) ViewSummary(w io.Writer, t *Transcript) error {
	v.writeHeader(w, t)

	fmt.Fprintln(w, "\nTurn Summary:")
	for _, turn := range t.Turns {
		preview := turn.Response
		if len(preview) > 100 {
			preview = preview[:100] + "..."
		}
		preview = strings.ReplaceAll(preview, "\n", " ")
		fmt.Fprintf(w, "  [%d] %s: %s\n", turn.ID, turn.Agent, preview)
	}

	return nil
}

// ViewAgentOnly displays only turns from the given agent
func (v *Viewer) ViewAgentOnly(w io.Writer, t *Transcript, agent string) error {
	v.writeHeader(w, t)

	for _, turn := range t.Turns {
		if turn.Agent == agent {
			v.writeTurn(w, turn)
		}
	}

	return nil
}

func (v *Viewer) writeHeader(w io.Writer, t *Transcript) {
	sep := strings.Repeat("=", 60)

	fmt.Fprintln(w, sep)
	fmt.Fprintf(w, "Thread: %s\n", t.ThreadID)
	fmt.Fprintf(w, "Intent: %s | Status: %s\n", t.Metadata.UserIntent, t.Metadata.Status)

	duration := t.Duration()
	fmt.Fprintf(w, "Started: %s | Duration: %s\n",
		t.Metadata.StartedAt.Format("2006-01-02 15:04:05"),
		duration.Round(time.Second))

	fmt.Fprintf(w, "Tokens: %d in / %d out | Cost: $%.2f\n",
		t.Metadata.TotalTokensIn,
		t.Metadata.TotalTokensOut,
		t.Metadata.TotalCost)

	if t.Metadata.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", t.Metadata.Error)
	}

	fmt.Fprintln(w, sep)
}

func (v *Viewer) writeTurn(w io.Writer, turn Turn) {
	fmt.Fprintln(w)

	// Turn header
	header := fmt.Sprintf("[%d] %s (%s)",
		turn.ID,
		strings.ToUpper(turn.Agent),
		turn.Timestamp.Format("15:04:05"))

	if turn.Model != "" {
		header += fmt.Sprintf(" [%s]", turn.Model)
	}
	if turn.TokensIn > 0 {
		header += fmt.Sprintf(" [%d tokens in]", turn.TokensIn)
	}
	if turn.TokensOut > 0 {
		header += fmt.Sprintf(" [%d tokens out]", turn.TokensOut)
	}
	if turn.DurationMs > 0 {
		header += fmt.Sprintf(" [%dms]", turn.DurationMs)
	}

	fmt.Fprintln(w, header)
	fmt.Fprintln(w, strings.Repeat("-", 60))

	prompt := turn.Prompt
	if len(prompt) > 500 {
		prompt = prompt[:500] + "..."
	}
	fmt.Fprintf(w, "Prompt:\n%s\n\n", prompt)
	fmt.Fprintf(w, "Response:\n%s\n", turn.Response)
}

// ExportMarkdown exports to markdown format
func (v *Viewer) ExportMarkdown(w io.Writer, t *Transcript) error {
	fmt.Fprintf(w, "# Transcript: %s\n\n", t.ThreadID)

	// Metadata
	fmt.Fprintf(w, "## Metadata\n\n")
	fmt.Fprintf(w, "| Field | Value |\n")
	fmt.Fprintf(w, "|-------|-------|\n")
	fmt.Fprintf(w, "| Intent | %s |\n", t.Metadata.UserIntent)
	fmt.Fprintf(w, "| Status | %s |\n", t.Metadata.Status)
	fmt.Fprintf(w, "| Started | %s |\n", t.Metadata.StartedAt.Format(time.RFC3339))
	if !t.Metadata.EndedAt.IsZero() {
		fmt.Fprintf(w, "| Ended | %s |\n", t.Metadata.EndedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "| Duration | %s |\n", t.Duration().Round(time.Second))
	fmt.Fprintf(w, "| Tokens In | %d |\n", t.Metadata.TotalTokensIn)
	fmt.Fprintf(w, "| Tokens Out | %d |\n", t.Metadata.TotalTokensOut)
	fmt.Fprintf(w, "| Cost | $%.2f |\n", t.Metadata.TotalCost)
	if t.Metadata.Error != "" {
		fmt.Fprintf(w, "| Error | %s |\n", t.Metadata.Error)
	}
	fmt.Fprintln(w)

	// Agent calls
	fmt.Fprintf(w, "## Agent Calls\n\n")

	for _, turn := range t.Turns {
		fmt.Fprintf(w, "### %s (Turn %d)\n\n", title(turn.Agent), turn.ID)

		if turn.Model != "" {
			fmt.Fprintf(w, "*Model: %s*\n\n", turn.Model)
		}
		if turn.TokensIn > 0 || turn.TokensOut > 0 {
			fmt.Fprintf(w, "*%d tokens in / %d tokens out*\n\n", turn.TokensIn, turn.TokensOut)
		}

		fmt.Fprintf(w, "**Prompt:**\n\n```\n%s\n```\n\n", turn.Prompt)
		fmt.Fprintf(w, "**Response:**\n\n```\n%s\n```\n\n", turn.Response)
	}

	return nil
}

// ExportJSON exports to JSON format
func (v *Viewer) ExportJSON(w io.Writer, t *Transcript) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(t)
}

// FormatMetaList formats a list of metadata for display
func (v *Viewer) FormatMetaList(w io.Writer, metas []Meta) error {
	if len(metas) == 0 {
		fmt.Fprintln(w, "No transcripts found.")
		return nil
	}

	fmt.Fprintf(w, "%-26s %-10s %-20s %10s %10s\n",
		"THREAD", "STATUS", "STARTED", "TOKENS", "COST")

	for _, meta := range metas {
		tokens := meta.TotalTokensIn + meta.TotalTokensOut
		fmt.Fprintf(w, "%-26s %-10s %-20s %10d %9.2f$\n",
			meta.ThreadID,
			meta.Status,
			meta.StartedAt.Format("2006-01-02 15:04:05"),
			tokens,
			meta.TotalCost)
	}

	return nil
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
