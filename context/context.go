package context

import (
	"context"

	"github.com/randalmurphal/careflow/artifact"
	"github.com/randalmurphal/careflow/checkpoint"
	"github.com/randalmurphal/careflow/llm"
	"github.com/randalmurphal/careflow/prompt"
	"github.com/randalmurphal/careflow/stream"
	"github.com/randalmurphal/careflow/transcript"
	"github.com/randalmurphal/llmkit/model"
)

// =============================================================================
// Context Injection Helpers
// =============================================================================
// These helpers allow careflow services to be injected into context.Context
// for use by workflow nodes.

// serviceContextKey is a private type for context keys to avoid collisions
type serviceContextKey string

// Context keys for careflow services
const (
	storeServiceKey      serviceContextKey = "careflow.store"
	llmServiceKey        serviceContextKey = "careflow.llm"
	emitterServiceKey    serviceContextKey = "careflow.emitter"
	transcriptServiceKey serviceContextKey = "careflow.transcripts"
	artifactServiceKey   serviceContextKey = "careflow.artifacts"
	promptServiceKey     serviceContextKey = "careflow.prompts"
	modelsServiceKey     serviceContextKey = "careflow.models"
)

// WithStore adds a checkpoint store to the context
func WithStore(ctx context.Context, store checkpoint.Store) context.Context {
	return context.WithValue(ctx, storeServiceKey, store)
}

// Store extracts the checkpoint store from context
func Store(ctx context.Context) checkpoint.Store {
	if store, ok := ctx.Value(storeServiceKey).(checkpoint.Store); ok {
		return store
	}
	return nil
}

// MustStore extracts the checkpoint store or panics
func MustStore(ctx context.Context) checkpoint.Store {
	store := Store(ctx)
	if store == nil {
		panic("careflow/context: checkpoint.Store not found in context")
	}
	return store
}

// WithLLM adds an LLM client to the context
func WithLLM(ctx context.Context, client llm.Client) context.Context {
	return context.WithValue(ctx, llmServiceKey, client)
}

// LLM extracts the LLM client from context
func LLM(ctx context.Context) llm.Client {
	if client, ok := ctx.Value(llmServiceKey).(llm.Client); ok {
		return client
	}
	return nil
}

// MustLLM extracts the LLM client or panics
func MustLLM(ctx context.Context) llm.Client {
	client := LLM(ctx)
	if client == nil {
		panic("careflow/context: llm.Client not found in context")
	}
	return client
}

// WithEmitter adds a stream emitter to the context
func WithEmitter(ctx context.Context, emitter *stream.Emitter) context.Context {
	return context.WithValue(ctx, emitterServiceKey, emitter)
}

// Emitter extracts the stream emitter from context.
// Returns nil if not set - streaming is best effort and callers skip
// emission when no emitter is configured.
func Emitter(ctx context.Context) *stream.Emitter {
	if emitter, ok := ctx.Value(emitterServiceKey).(*stream.Emitter); ok {
		return emitter
	}
	return nil
}

// WithTranscript adds a transcript manager to the context
func WithTranscript(ctx context.Context, mgr transcript.Manager) context.Context {
	return context.WithValue(ctx, transcriptServiceKey, mgr)
}

// Transcript extracts transcript manager from context
func Transcript(ctx context.Context) transcript.Manager {
	if mgr, ok := ctx.Value(transcriptServiceKey).(transcript.Manager); ok {
		return mgr
	}
	return nil
}

// MustTranscript extracts transcript manager or panics
func MustTranscript(ctx context.Context) transcript.Manager {
	mgr := Transcript(ctx)
	if mgr == nil {
		panic("careflow/context: transcript.Manager not found in context")
	}
	return mgr
}

// WithArtifact adds an artifact manager to the context
func WithArtifact(ctx context.Context, mgr *artifact.Manager) context.Context {
	return context.WithValue(ctx, artifactServiceKey, mgr)
}

// Artifact extracts artifact manager from context
func Artifact(ctx context.Context) *artifact.Manager {
	if mgr, ok := ctx.Value(artifactServiceKey).(*artifact.Manager); ok {
		return mgr
	}
	return nil
}

// MustArtifact extracts artifact manager or panics
func MustArtifact(ctx context.Context) *artifact.Manager {
	mgr := Artifact(ctx)
	if mgr == nil {
		panic("careflow/context: artifact.Manager not found in context")
	}
	return mgr
}

// WithPrompt adds a prompt loader to the context
func WithPrompt(ctx context.Context, loader *prompt.Loader) context.Context {
	return context.WithValue(ctx, promptServiceKey, loader)
}

// Prompt extracts prompt loader from context
func Prompt(ctx context.Context) *prompt.Loader {
	if loader, ok := ctx.Value(promptServiceKey).(*prompt.Loader); ok {
		return loader
	}
	return nil
}

// MustPrompt extracts prompt loader or panics
func MustPrompt(ctx context.Context) *prompt.Loader {
	loader := Prompt(ctx)
	if loader == nil {
		panic("careflow/context: prompt.Loader not found in context")
	}
	return loader
}

// WithModels adds a model selector to the context
func WithModels(ctx context.Context, selector *model.Selector) context.Context {
	return context.WithValue(ctx, modelsServiceKey, selector)
}

// Models extracts the model selector from context.
// Returns nil if not set - nodes fall back to the default stage mapping.
func Models(ctx context.Context) *model.Selector {
	if selector, ok := ctx.Value(modelsServiceKey).(*model.Selector); ok {
		return selector
	}
	return nil
}
