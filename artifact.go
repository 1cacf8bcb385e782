package careflow

import (
	"fmt"
	"strings"
)

// Artifact is the deliverable of a completed thread: the rendered
// markdown plus the structured exercise and final state it came from.
type Artifact struct {
	ThreadID string    `json:"threadId"`
	Markdown string    `json:"markdown"`
	Exercise *Exercise `json:"exercise,omitempty"`
	State    State     `json:"-"`
}

// RenderExercise renders an exercise as the markdown document handed to
// practitioners: title, description, rationale, numbered steps, and
// safety notes when present.
func RenderExercise(ex Exercise) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("# %s\n\n", ex.Title))

	if ex.Description != "" {
		b.WriteString(ex.Description)
		b.WriteString("\n\n")
	}

	if ex.Rationale != "" {
		b.WriteString("## Rationale\n\n")
		b.WriteString(ex.Rationale)
		b.WriteString("\n\n")
	}

	b.WriteString("## Steps\n\n")
	for i, step := range ex.Steps {
		b.WriteString(fmt.Sprintf("%d. %s\n", i+1, step))
	}

	if ex.SafetyNotes != "" {
		b.WriteString("\n## Safety Notes\n\n")
		b.WriteString(ex.SafetyNotes)
		b.WriteString("\n")
	}

	return b.String()
}
