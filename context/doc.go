// Package context provides dependency injection for workflow services.
//
// Core types:
//   - Services: Collection of all careflow services for injection
//   - Config: Defaults for NewServices
//
// Context injection functions:
//   - WithStore/Store: Checkpoint store injection
//   - WithLLM/LLM: LLM client injection
//   - WithEmitter/Emitter: Stream emitter injection (optional, best effort)
//   - WithTranscript/Transcript: Transcript manager injection
//   - WithArtifact/Artifact: Artifact manager injection
//   - WithPrompt/Prompt: Prompt loader injection
//   - WithModels/Models: Model selector injection
//
// Example usage:
//
//	services, err := context.NewServices(context.Config{
//	    BaseDir: ".careflow",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ctx := services.InjectAll(ctx)
//
//	// Later, retrieve services
//	store := context.MustStore(ctx)
//	llm := context.MustLLM(ctx)
package context
