package context

import (
	"context"
	"path/filepath"

	"github.com/randalmurphal/careflow/artifact"
	"github.com/randalmurphal/careflow/checkpoint"
	"github.com/randalmurphal/careflow/llm"
	"github.com/randalmurphal/careflow/notify"
	"github.com/randalmurphal/careflow/prompt"
	"github.com/randalmurphal/careflow/stage"
	"github.com/randalmurphal/careflow/stream"
	"github.com/randalmurphal/careflow/transcript"
	"github.com/randalmurphal/llmkit/model"
)

// Services wraps all careflow services for convenient initialization
type Services struct {
	Store       checkpoint.Store
	LLM         llm.Client
	Emitter     *stream.Emitter
	Transcripts transcript.Manager
	Artifacts   *artifact.Manager
	Prompts     *prompt.Loader
	Models      *model.Selector
	Notifier    notify.Notifier // Optional notification service
}

// InjectAll adds all configured services to the context
func (s *Services) InjectAll(ctx context.Context) context.Context {
	if s.Store != nil {
		ctx = WithStore(ctx, s.Store)
	}
	if s.LLM != nil {
		ctx = WithLLM(ctx, s.LLM)
	}
	if s.Emitter != nil {
		ctx = WithEmitter(ctx, s.Emitter)
	}
	if s.Transcripts != nil {
		ctx = WithTranscript(ctx, s.Transcripts)
	}
	if s.Artifacts != nil {
		ctx = WithArtifact(ctx, s.Artifacts)
	}
	if s.Prompts != nil {
		ctx = WithPrompt(ctx, s.Prompts)
	}
	if s.Models != nil {
		ctx = WithModels(ctx, s.Models)
	}
	if s.Notifier != nil {
		ctx = notify.WithNotifier(ctx, s.Notifier)
	}
	return ctx
}

// Config configures NewServices
type Config struct {
	BaseDir   string // Base directory for storage (default: ".careflow")
	DBPath    string // Checkpoint database path (default: <BaseDir>/careflow.db)
	PromptDir string // Directory for prompt overrides (default: <BaseDir>/prompts)

	// LLM configuration
	LLMModel   string // Model to use (default: "claude-sonnet-4-20250514")
	LLMWorkdir string // Working directory for the LLM client
}

// NewServices creates Services with common defaults
func NewServices(cfg Config) (*Services, error) {
	s := &Services{}

	baseDir := cfg.BaseDir
	if baseDir == "" {
		baseDir = ".careflow"
	}

	// Create checkpoint store
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = filepath.Join(baseDir, "careflow.db")
	}
	store, err := checkpoint.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, err
	}
	s.Store = store

	// Create LLM client
	llmModel := cfg.LLMModel
	if llmModel == "" {
		llmModel = "claude-sonnet-4-20250514"
	}
	llmOpts := []llm.ClaudeOption{llm.WithModel(llmModel)}
	if cfg.LLMWorkdir != "" {
		llmOpts = append(llmOpts, llm.WithWorkdir(cfg.LLMWorkdir))
	}
	llmClient, err := llm.NewClaudeCLI(llmOpts...)
	if err != nil {
		return nil, err
	}
	s.LLM = llmClient

	// Create stream emitter
	s.Emitter = stream.NewEmitter()

	// Create transcript manager
	transcripts, err := transcript.NewFileStore(transcript.StoreConfig{
		BaseDir: baseDir,
	})
	if err != nil {
		return nil, err
	}
	s.Transcripts = transcripts

	// Create artifact manager
	s.Artifacts = artifact.NewManager(artifact.Config{
		BaseDir: baseDir,
	})

	// Create prompt loader
	promptDir := cfg.PromptDir
	if promptDir == "" {
		promptDir = filepath.Join(baseDir, "prompts")
	}
	s.Prompts = prompt.NewLoader(promptDir)

	// Create model selector
	s.Models = stage.NewSelector()

	return s, nil
}
