package transcript

import "time"

// Manager is the interface for transcript operations
type Manager interface {
	// Lifecycle
	StartThread(threadID string, metadata ThreadMetadata) error
	RecordTurn(threadID string, turn Turn) error
	AddCost(threadID string, cost float64) error
	EndThread(threadID string, status ThreadStatus) error

	// Retrieval
	Load(threadID string) (*Transcript, error)
	LoadMetadata(threadID string) (*Meta, error)
	List(filter ListFilter) ([]Meta, error)

	// Maintenance
	Delete(threadID string) error
}

// ListFilter filters transcript listing
type ListFilter struct {
	Status ThreadStatus
	After  time.Time
	Before time.Time
	Limit  int
}
