package transcript

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FileStore stores transcripts as files
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
	active  map[string]*Transcript
}

// StoreConfig holds configuration for transcript storage
type StoreConfig struct {
	BaseDir string
}

// NewFileStore creates a file-based transcript store
func NewFileStore(config StoreConfig) (*FileStore, error) {
	threadsDir := filepath.Join(config.BaseDir, "threads")
	if err := os.MkdirAll(threadsDir, 0755); err != nil {
		return nil, err
	}

	return &FileStore{
		baseDir: config.BaseDir,
		active:  make(map[string]*Transcript),
	}, nil
}

// StartThread begins a new transcript
func (s *FileStore) StartThread(threadID string, meta ThreadMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.active[threadID]; exists {
		return ErrThreadExists
	}

	// Check if the thread already exists on disk
	threadDir := filepath.Join(s.baseDir, "threads", threadID)
	if _, err := os.Stat(threadDir); err == nil {
		return ErrThreadExists
	}

	if err := os.MkdirAll(threadDir, 0755); err != nil {
		return err
	}

	t := NewTranscript(threadID, meta.UserIntent)

	// Write initial metadata
	if err := s.writeMetadata(threadID, &t.Metadata); err != nil {
		return err
	}

	s.active[threadID] = t
	return nil
}

// RecordTurn adds a turn to a transcript. A thread suspended for human
// review survives process restarts, so an inactive thread is reloaded
// from disk before the turn is appended.
func (s *FileStore) RecordTurn(threadID string, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.activate(threadID)
	if err != nil {
		return err
	}

	t.AddTurn(turn)
	return nil
}

// AddCost adds cost to a transcript
func (s *FileStore) AddCost(threadID string, cost float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.activate(threadID)
	if err != nil {
		return err
	}

	t.AddCost(cost)
	return nil
}

// EndThread completes a transcript and writes it to disk
func (s *FileStore) EndThread(threadID string, status ThreadStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.activate(threadID)
	if err != nil {
		return err
	}

	t.Metadata.Status = status
	switch status {
	case StatusSuspended:
		// Still in progress; keep EndedAt unset
	default:
		t.Metadata.EndedAt = time.Now()
	}

	if err := t.Save(s.baseDir); err != nil {
		return err
	}
	if err := s.writeMetadata(threadID, &t.Metadata); err != nil {
		return err
	}

	delete(s.active, threadID)
	return nil
}

// EndThreadWithError completes a transcript with an error
func (s *FileStore) EndThreadWithError(threadID string, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.activate(threadID)
	if err != nil {
		return err
	}

	t.Fail(cause)

	if err := t.Save(s.baseDir); err != nil {
		return err
	}
	if err := s.writeMetadata(threadID, &t.Metadata); err != nil {
		return err
	}

	delete(s.active, threadID)
	return nil
}

// activate returns the in-memory transcript, falling back to disk.
// Caller must hold the write lock.
func (s *FileStore) activate(threadID string) (*Transcript, error) {
	if t, ok := s.active[threadID]; ok {
		return t, nil
	}

	t, err := Load(s.baseDir, threadID)
	if err != nil {
		if err == ErrThreadNotFound {
			return nil, ErrThreadNotStarted
		}
		return nil, err
	}
	t.Metadata.Status = StatusRunning
	s.active[threadID] = t
	return t, nil
}

// Load retrieves a complete transcript
func (s *FileStore) Load(threadID string) (*Transcript, error) {
	// Check if it's an active thread
	s.mu.RLock()
	if t, ok := s.active[threadID]; ok {
		s.mu.RUnlock()
		// Return a copy to prevent concurrent modification
		data, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		var copied Transcript
		if err := json.Unmarshal(data, &copied); err != nil {
			return nil, err
		}
		return &copied, nil
	}
	s.mu.RUnlock()

	return Load(s.baseDir, threadID)
}

// LoadMetadata retrieves just the metadata
func (s *FileStore) LoadMetadata(threadID string) (*Meta, error) {
	// Check if it's an active thread
	s.mu.RLock()
	if t, ok := s.active[threadID]; ok {
		s.mu.RUnlock()
		meta := t.Metadata
		return &meta, nil
	}
	s.mu.RUnlock()

	path := filepath.Join(s.baseDir, "threads", threadID, "metadata.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrThreadNotFound
		}
		return nil, err
	}

	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	return &meta, nil
}

// List returns metadata for threads matching filter
func (s *FileStore) List(filter ListFilter) ([]Meta, error) {
	threadsDir := filepath.Join(s.baseDir, "threads")
	entries, err := os.ReadDir(threadsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var results []Meta

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		meta, err := s.LoadMetadata(entry.Name())
		if err != nil {
			continue
		}

		// Apply filters
		if filter.Status != "" && meta.Status != filter.Status {
			continue
		}
		if !filter.After.IsZero() && meta.StartedAt.Before(filter.After) {
			continue
		}
		if !filter.Before.IsZero() && meta.StartedAt.After(filter.Before) {
			continue
		}

		results = append(results, *meta)
	}

	// Sort by start time (newest first)
	sort.Slice(results, func(i, j int) bool {
		return results[i].StartedAt.After(results[j].StartedAt)
	})

	// Apply limit
	if filter.Limit > 0 && len(results) > filter.Limit {
		results = results[:filter.Limit]
	}

	return results, nil
}

// Delete removes a thread's transcript
func (s *FileStore) Delete(threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Remove from active if present
	delete(s.active, threadID)

	threadDir := filepath.Join(s.baseDir, "threads", threadID)
	if err := os.RemoveAll(threadDir); err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}

// GetActive returns an active transcript (for monitoring)
func (s *FileStore) GetActive(threadID string) (*Transcript, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.active[threadID]
	return t, ok
}

// ListActive returns all active thread IDs
func (s *FileStore) ListActive() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	return ids
}

func (s *FileStore) writeMetadata(threadID string, meta *Meta) error {
	path := filepath.Join(s.baseDir, "threads", threadID, "metadata.json")
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// BaseDir returns the base directory for the store
func (s *FileStore) BaseDir() string {
	return s.baseDir
}
