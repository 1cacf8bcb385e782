package transcript

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Transcript errors
var (
	ErrThreadNotFound   = errors.New("thread transcript not found")
	ErrThreadExists     = errors.New("thread transcript already exists")
	ErrThreadNotStarted = errors.New("thread transcript not started")
)

// ThreadStatus indicates the status of a thread's transcript
type ThreadStatus string

const (
	StatusRunning   ThreadStatus = "running"
	StatusSuspended ThreadStatus = "suspended"
	StatusCompleted ThreadStatus = "completed"
	StatusFailed    ThreadStatus = "failed"
)

// Transcript records every model call made while generating one exercise
type Transcript struct {
	ThreadID string `json:"threadId"`
	Metadata Meta   `json:"metadata"`
	Turns    []Turn `json:"turns"`
}

// Meta contains thread-level transcript metadata
type Meta struct {
	ThreadID       string       `json:"threadId"`
	UserIntent     string       `json:"userIntent,omitempty"`
	StartedAt      time.Time    `json:"startedAt"`
	EndedAt        time.Time    `json:"endedAt,omitempty"`
	Status         ThreadStatus `json:"status"`
	TotalTokensIn  int          `json:"totalTokensIn"`
	TotalTokensOut int          `json:"totalTokensOut"`
	TotalCost      float64      `json:"totalCost"`
	TurnCount      int          `json:"turnCount"`
	Error          string       `json:"error,omitempty"`
}

// Turn represents one agent's model call
type Turn struct {
	ID         int       `json:"id"`
	Agent      string    `json:"agent"` // drafter, guardian, critic
	Model      string    `json:"model,omitempty"`
	Prompt     string    `json:"prompt"`
	Response   string    `json:"response"`
	TokensIn   int       `json:"tokensIn,omitempty"`
	TokensOut  int       `json:"tokensOut,omitempty"`
	DurationMs int64     `json:"durationMs,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// ThreadMetadata is input for starting a new transcript
type ThreadMetadata struct {
	UserIntent string
}

// NewTranscript creates a new transcript
func NewTranscript(threadID, userIntent string) *Transcript {
	return &Transcript{
		ThreadID: threadID,
		Metadata: Meta{
			ThreadID:   threadID,
			UserIntent: userIntent,
			StartedAt:  time.Now(),
			Status:     StatusRunning,
		},
		Turns: make([]Turn, 0),
	}
}

// AddTurn appends a turn, assigning its ID and updating token totals
func (t *Transcript) AddTurn(turn Turn) *Turn {
	turn.ID = len(t.Turns) + 1
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}

	t.Metadata.TotalTokensIn += turn.TokensIn
	t.Metadata.TotalTokensOut += turn.TokensOut

	t.Turns = append(t.Turns, turn)
	t.Metadata.TurnCount = len(t.Turns)
	return &t.Turns[len(t.Turns)-1]
}

// AddCost adds to the total cost
func (t *Transcript) AddCost(cost float64) {
	t.Metadata.TotalCost += cost
}

// Complete marks the transcript as completed
func (t *Transcript) Complete() {
	t.Metadata.Status = StatusCompleted
	t.Metadata.EndedAt = time.Now()
}

// Suspend marks the transcript as suspended for human review
func (t *Transcript) Suspend() {
	t.Metadata.Status = StatusSuspended
}

// Fail marks the transcript as failed
func (t *Transcript) Fail(err error) {
	t.Metadata.Status = StatusFailed
	t.Metadata.EndedAt = time.Now()
	if err != nil {
		t.Metadata.Error = err.Error()
	}
}

// Duration returns the thread duration
func (t *Transcript) Duration() time.Duration {
	if t.Metadata.EndedAt.IsZero() {
		return time.Since(t.Metadata.StartedAt)
	}
	return t.Metadata.EndedAt.Sub(t.Metadata.StartedAt)
}

// IsActive returns true if the thread is still in progress
func (t *Transcript) IsActive() bool {
	return t.Metadata.Status == StatusRunning || t.Metadata.Status == StatusSuspended
}

// LastTurn returns the last turn or nil
func (t *Transcript) LastTurn() *Turn {
	if len(t.Turns) == 0 {
		return nil
	}
	return &t.Turns[len(t.Turns)-1]
}

// TurnsByAgent returns all turns recorded by the given agent
func (t *Transcript) TurnsByAgent(agent string) []Turn {
	var result []Turn
	for _, turn := range t.Turns {
		if turn.Agent == agent {
			result = append(result, turn)
		}
	}
	return result
}

// compressionThreshold is the size above which transcripts are compressed
const compressionThreshold = 100 * 1024 // 100KB

// Save writes the transcript to disk
func (t *Transcript) Save(baseDir string) error {
	threadDir := filepath.Join(baseDir, "threads", t.ThreadID)
	if err := os.MkdirAll(threadDir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}

	// Compress if large
	if len(data) > compressionThreshold {
		return t.saveCompressed(threadDir, data)
	}

	// Remove compressed version if it exists
	os.Remove(filepath.Join(threadDir, "transcript.json.gz"))

	return os.WriteFile(filepath.Join(threadDir, "transcript.json"), data, 0644)
}

func (t *Transcript) saveCompressed(threadDir string, data []byte) error {
	// Remove uncompressed version if it exists
	os.Remove(filepath.Join(threadDir, "transcript.json"))

	f, err := os.Create(filepath.Join(threadDir, "transcript.json.gz"))
	if err != nil {
		return err
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	defer gz.Close()

	_, err = gz.Write(data)
	return err
}

// Load reads a transcript from disk
func Load(baseDir, threadID string) (*Transcript, error) {
	threadDir := filepath.Join(baseDir, "threads", threadID)

	// Try compressed first
	data, err := loadCompressed(filepath.Join(threadDir, "transcript.json.gz"))
	if err != nil {
		// Try uncompressed
		data, err = os.ReadFile(filepath.Join(threadDir, "transcript.json"))
		if err != nil {
			if os.IsNotExist(err) {
				return nil, ErrThreadNotFound
			}
			return nil, err
		}
	}

	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}

	return &t, nil
}

func loadCompressed(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	return io.ReadAll(gz)
}
