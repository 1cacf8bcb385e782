// Package checkpoint persists the per-thread state log that makes
// workflows resumable. Every step appends one immutable snapshot; the
// latest snapshot is the authoritative state of a thread.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Store errors
var (
	// ErrNotFound indicates no thread or checkpoint exists for the id.
	ErrNotFound = errors.New("checkpoint: thread not found")

	// ErrThreadExists indicates the thread id is already registered.
	ErrThreadExists = errors.New("checkpoint: thread already exists")

	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("checkpoint: store closed")
)

// Checkpoint is one durable snapshot of a thread's state. Seq values are
// strictly increasing and gapless per thread; a checkpoint is immutable
// once written.
type Checkpoint struct {
	ThreadID  string          `json:"threadId"`
	Seq       int64           `json:"seq"`
	Snapshot  json.RawMessage `json:"snapshot"`
	WrittenAt time.Time       `json:"writtenAt"`
}

// ThreadMeta is the registry row for one thread. It exists so threads
// can be listed and reaped without decoding snapshots.
type ThreadMeta struct {
	ThreadID      string    `json:"threadId"`
	UserIntent    string    `json:"userIntent"`
	Mode          string    `json:"mode"`
	Status        string    `json:"status"`
	FinalArtifact string    `json:"finalArtifact,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Store is the durable checkpoint log. Exactly one executor writes a
// given thread at a time (enforced by the caller); reads are always
// permitted and observe fully-written snapshots only.
type Store interface {
	// CreateThread registers a new thread. Returns ErrThreadExists if
	// the id is taken.
	CreateThread(ctx context.Context, meta ThreadMeta) error

	// Save appends a snapshot for the thread and returns its seq. The
	// registry row's status and updated_at move in the same write.
	Save(ctx context.Context, threadID string, snapshot json.RawMessage, status string) (int64, error)

	// LoadLatest returns the highest-seq checkpoint for the thread.
	LoadLatest(ctx context.Context, threadID string) (*Checkpoint, error)

	// History returns checkpoints in ascending seq order. A limit <= 0
	// returns all of them.
	History(ctx context.Context, threadID string, limit int) ([]Checkpoint, error)

	// Thread returns the registry row for one thread.
	Thread(ctx context.Context, threadID string) (*ThreadMeta, error)

	// Threads lists registry rows, most recently updated first. A
	// limit <= 0 returns all of them.
	Threads(ctx context.Context, limit int) ([]ThreadMeta, error)

	// SetFinalArtifact records the rendered artifact on the registry row.
	SetFinalArtifact(ctx context.Context, threadID, artifact string) error

	// StaleThreads returns ids of threads in the given status whose
	// last update is older than before. Used by the gate reaper.
	StaleThreads(ctx context.Context, status string, before time.Time) ([]string, error)

	Close() error
}
