package transcript

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Searcher provides search capabilities over stored transcripts
type Searcher struct {
	baseDir string
}

// NewSearcher creates a searcher
func NewSearcher(baseDir string) *Searcher {
	return &Searcher{baseDir: baseDir}
}

// SearchOptions configures content search
type SearchOptions struct {
	CaseSensitive bool
	MaxResults    int
}

// SearchResult represents a search match
type SearchResult struct {
	ThreadID string `json:"threadId"`
	TurnID   int    `json:"turnId"`
	Agent    string `json:"agent"`
	Snippet  string `json:"snippet"`
}

// SearchContent searches turn prompts and responses for the query
func (s *Searcher) SearchContent(query string, opts SearchOptions) ([]SearchResult, error) {
	threadsDir := filepath.Join(s.baseDir, "threads")
	entries, err := os.ReadDir(threadsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	match := func(text string) bool {
		if opts.CaseSensitive {
			return strings.Contains(text, query)
		}
		return strings.Contains(strings.ToLower(text), strings.ToLower(query))
	}

	var results []SearchResult
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		t, err := Load(s.baseDir, entry.Name())
		if err != nil {
			slog.Debug("skipping unreadable transcript",
				slog.String("thread_id", entry.Name()),
				slog.String("error", err.Error()))
			continue
		}

		for _, turn := range t.Turns {
			var text string
			switch {
			case match(turn.Response):
				text = turn.Response
			case match(turn.Prompt):
				text = turn.Prompt
			default:
				continue
			}

			results = append(results, SearchResult{
				ThreadID: t.ThreadID,
				TurnID:   turn.ID,
				Agent:    turn.Agent,
				Snippet:  snippet(text, query, opts.CaseSensitive),
			})

			if opts.MaxResults > 0 && len(results) >= opts.MaxResults {
				return results, nil
			}
		}
	}

	return results, nil
}

// snippet extracts the matching line, trimmed to a readable length
func snippet(text, query string, caseSensitive bool) string {
	haystack := text
	needle := query
	if !caseSensitive {
		haystack = strings.ToLower(text)
		needle = strings.ToLower(query)
	}

	idx := strings.Index(haystack, needle)
	if idx < 0 {
		return ""
	}

	start := strings.LastIndexByte(text[:idx], '\n') + 1
	end := strings.IndexByte(text[idx:], '\n')
	if end < 0 {
		end = len(text)
	} else {
		end += idx
	}

	line := strings.TrimSpace(text[start:end])
	if len(line) > 200 {
		line = line[:200] + "..."
	}
	return line
}

// FindByStatus returns transcripts with status
func (s *Searcher) FindByStatus(status ThreadStatus) ([]Meta, error) {
	return s.findByMetadata(func(m *Meta) bool {
		return m.Status == status
	})
}

// FindByDateRange returns transcripts in date range
func (s *Searcher) FindByDateRange(start, end time.Time) ([]Meta, error) {
	return s.findByMetadata(func(m *Meta) bool {
		return m.StartedAt.After(start) && m.StartedAt.Before(end)
	})
}

func (s *Searcher) findByMetadata(predicate func(*Meta) bool) ([]Meta, error) {
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

		metaPath := filepath.Join(threadsDir, entry.Name(), "metadata.json")
		data, err := os.ReadFile(metaPath)
		if err != nil {
			slog.Debug("skipping transcript with unreadable metadata",
				slog.String("path", metaPath),
				slog.String("error", err.Error()))
			continue
		}

		var meta Meta
		if err := json.Unmarshal(data, &meta); err != nil {
			slog.Debug("skipping transcript with malformed metadata",
				slog.String("path", metaPath),
				slog.String("error", err.Error()))
			continue
		}

		if predicate(&meta) {
			results = append(results, meta)
		}
	}

	return results, nil
}

// Statistics holds aggregated thread statistics
type Statistics struct {
	TotalThreads     int
	CompletedThreads int
	FailedThreads    int
	SuspendedThreads int
	ActiveThreads    int
	TotalTokensIn    int
	TotalTokensOut   int
	TotalCost        float64
	AvgTokensIn      int
	AvgTokensOut     int
	AvgCost          float64
}

// Stats returns statistics for matching threads
func (s *Searcher) Stats(filter ListFilter) (*Statistics, error) {
	store, err := NewFileStore(StoreConfig{BaseDir: s.baseDir})
	if err != nil {
		return nil, err
	}

	threads, err := store.List(filter)
	if err != nil {
		return nil, err
	}

	stats := &Statistics{}
	for _, meta := range threads {
		stats.TotalThreads++
		stats.TotalTokensIn += meta.TotalTokensIn
		stats.TotalTokensOut += meta.TotalTokensOut
		stats.TotalCost += meta.TotalCost

		switch meta.Status {
		case StatusCompleted:
			stats.CompletedThreads++
		case StatusFailed:
			stats.FailedThreads++
		case StatusSuspended:
			stats.SuspendedThreads++
		case StatusRunning:
			stats.ActiveThreads++
		}
	}

	if stats.TotalThreads > 0 {
		stats.AvgTokensIn = stats.TotalTokensIn / stats.TotalThreads
		stats.AvgTokensOut = stats.TotalTokensOut / stats.TotalThreads
		stats.AvgCost = stats.TotalCost / float64(stats.TotalThreads)
	}

	return stats, nil
}
