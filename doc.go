// Package careflow generates behavioral health exercises through a
// checkpointed multi-stage workflow: draft, safety review, clinical
// review, supervision, and an optional human approval gate.
//
// The package is organized into subpackages by domain:
//
//   - checkpoint: Durable state snapshots (SQLite, Redis)
//   - stream: In-process progress event fanout
//   - transcript: LLM conversation recording and search
//   - artifact: Exercise artifact storage and lifecycle management
//   - notify: Notification services (Slack, webhook)
//   - context: Service dependency injection
//   - prompt: Prompt template loading
//   - stage: Stage-based model selection
//   - llm: LLM client (Claude CLI, mock)
//   - server: HTTP API over the workflow service
//   - client: HTTP client for the API
//   - config: File and environment configuration
//   - auth: API keys and JWT for the server
//   - testutil: Test utilities and fixtures
//
// # Quick Start
//
//	import (
//	    "github.com/randalmurphal/careflow"
//	    carecontext "github.com/randalmurphal/careflow/context"
//	)
//
//	// Build default services (SQLite store, Claude CLI client)
//	services, _ := carecontext.NewServices(carecontext.Config{BaseDir: ".careflow"})
//
//	// Create the workflow service
//	svc, _ := careflow.NewService(services, careflow.DefaultServiceConfig())
//	defer svc.Close()
//
//	// Run an exercise to completion
//	artifact, _ := svc.CreateExercise(ctx, "help with panic attacks at work")
//	fmt.Println(artifact.Markdown)
//
// Interactive threads suspend at the human gate instead of completing:
// Start returns immediately, Subscribe streams progress, and Resume
// applies the reviewer's approve or revise decision.
//
// See individual package documentation for detailed usage.
package careflow
