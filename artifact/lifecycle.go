package artifact

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// RetentionConfig defines retention policy
type RetentionConfig struct {
	RetentionDays        int  // Days to keep active threads
	ArchiveAfterDays     int  // Days before archiving
	ArchiveRetentionDays int  // Days to keep archived threads
	KeepFailed           bool // Keep failed threads longer
	KeepMinThreads       int  // Minimum threads to keep regardless of age
}

// DefaultRetentionConfig returns sensible defaults
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		RetentionDays:        30,
		ArchiveAfterDays:     7,
		ArchiveRetentionDays: 90,
		KeepFailed:           true,
		KeepMinThreads:       100,
	}
}

// LifecycleManager handles artifact lifecycle
type LifecycleManager struct {
	baseDir string
	config  RetentionConfig
}

// NewLifecycleManager creates a lifecycle manager
func NewLifecycleManager(baseDir string, config RetentionConfig) *LifecycleManager {
	return &LifecycleManager{
		baseDir: baseDir,
		config:  config,
	}
}

// CleanupResult summarizes cleanup actions
type CleanupResult struct {
	Archived   []string `json:"archived"`
	Deleted    []string `json:"deleted"`
	Kept       []string `json:"kept"`
	Errors     []string `json:"errors,omitempty"`
	SpaceSaved int64    `json:"spaceSaved"`
}

// Cleanup performs retention policy
func (m *LifecycleManager) Cleanup(dryRun bool) (*CleanupResult, error) {
	result := &CleanupResult{
		Archived: make([]string, 0),
		Deleted:  make([]string, 0),
		Kept:     make([]string, 0),
		Errors:   make([]string, 0),
	}

	threadsDir := filepath.Join(m.baseDir, "threads")
	entries, err := os.ReadDir(threadsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return nil, err
	}

	now := time.Now()
	archiveThreshold := now.Add(-time.Duration(m.config.ArchiveAfterDays) * 24 * time.Hour)
	deleteThreshold := now.Add(-time.Duration(m.config.RetentionDays) * 24 * time.Hour)

	type threadInfo struct {
		id      string
		meta    *threadMeta
		size    int64
		endedAt time.Time
	}

	var threads []threadInfo

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		threadID := entry.Name()
		threadDir := filepath.Join(threadsDir, threadID)

		// Load metadata
		meta, err := loadThreadMetadataFromDir(threadDir)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("load %s: %v", threadID, err))
			continue
		}

		// Calculate directory size
		size := dirSize(threadDir)

		threads = append(threads, threadInfo{
			id:      threadID,
			meta:    meta,
			size:    size,
			endedAt: meta.EndedAt,
		})
	}

	// Sort by end time (oldest first)
	sort.Slice(threads, func(i, j int) bool {
		return threads[i].endedAt.Before(threads[j].endedAt)
	})

	removed := 0
	for _, th := range threads {
		// Skip failed threads if configured
		if m.config.KeepFailed && th.meta.Status == "failed" {
			result.Kept = append(result.Kept, th.id)
			continue
		}

		// Still running - keep
		if th.meta.Status == "running" {
			result.Kept = append(result.Kept, th.id)
			continue
		}

		// Suspended threads are waiting on a human reviewer - keep
		if th.meta.Status == "suspended" {
			result.Kept = append(result.Kept, th.id)
			continue
		}

		// Ensure we keep minimum threads
		remainingAfterThis := len(threads) - removed - 1
		if remainingAfterThis < m.config.KeepMinThreads {
			result.Kept = append(result.Kept, th.id)
			continue
		}

		threadDir := filepath.Join(threadsDir, th.id)

		// Determine action based on age
		if th.endedAt.Before(deleteThreshold) {
			// Delete
			if !dryRun {
				if err := os.RemoveAll(threadDir); err != nil {
					result.Errors = append(result.Errors, fmt.Sprintf("delete %s: %v", th.id, err))
					continue
				}
			}
			result.Deleted = append(result.Deleted, th.id)
			result.SpaceSaved += th.size
			removed++

		} else if th.endedAt.Before(archiveThreshold) {
			// Archive
			if !dryRun {
				if err := m.archiveThread(th.id, th.endedAt); err != nil {
					result.Errors = append(result.Errors, fmt.Sprintf("archive %s: %v", th.id, err))
					continue
				}
			}
			result.Archived = append(result.Archived, th.id)
			// Archives are smaller due to compression
			result.SpaceSaved += th.size / 2 // Rough estimate
			removed++

		} else {
			result.Kept = append(result.Kept, th.id)
		}
	}

	return result, nil
}

// archiveThread compresses a thread directory to archive.
// Thread IDs carry no date, so the archive month comes from the
// thread's recorded end time.
func (m *LifecycleManager) archiveThread(threadID string, endedAt time.Time) error {
	threadDir := filepath.Join(m.baseDir, "threads", threadID)

	archiveMonth := endedAt.Format("2006-01")
	if endedAt.IsZero() {
		archiveMonth = time.Now().Format("2006-01")
	}
	archiveDir := filepath.Join(m.baseDir, "archive", archiveMonth)
	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return err
	}

	archivePath := filepath.Join(archiveDir, threadID+".tar.gz")

	// Create archive
	f, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	defer gz.Close()

	tw := tar.NewWriter(gz)
	defer tw.Close()

	// Add all files from thread directory
	err = filepath.Walk(threadDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}

		relPath, _ := filepath.Rel(threadDir, path)
		header.Name = filepath.Join(threadID, relPath)

		if err := tw.WriteHeader(header); err != nil {
			return err
		}

		if !info.IsDir() {
			file, err := os.Open(path)
			if err != nil {
				return err
			}
			defer file.Close()
			_, err = io.Copy(tw, file)
			if err != nil {
				return err
			}
		}

		return nil
	})

	if err != nil {
		os.Remove(archivePath)
		return err
	}

	// Close writers before removing source
	tw.Close()
	gz.Close()
	f.Close()

	// Remove original
	return os.RemoveAll(threadDir)
}

// RestoreArchive restores an archived thread
func (m *LifecycleManager) RestoreArchive(threadID string) error {
	// Find archive
	archivePath := m.findArchive(threadID)
	if archivePath == "" {
		return fmt.Errorf("archive not found: %s", threadID)
	}

	threadDir := filepath.Join(m.baseDir, "threads", threadID)

	// Check if thread already exists
	if _, err := os.Stat(threadDir); err == nil {
		return fmt.Errorf("thread already exists: %s", threadID)
	}

	// Extract
	if err := m.extractArchive(archivePath, filepath.Dir(threadDir)); err != nil {
		return err
	}

	return nil
}

// ListArchives returns all archived thread IDs
func (m *LifecycleManager) ListArchives() ([]string, error) {
	archiveDir := filepath.Join(m.baseDir, "archive")
	var archives []string

	err := filepath.Walk(archiveDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Ignore errors, just skip
		}
		if info.IsDir() {
			return nil
		}
		if strings.HasSuffix(info.Name(), ".tar.gz") {
			threadID := strings.TrimSuffix(info.Name(), ".tar.gz")
			archives = append(archives, threadID)
		}
		return nil
	})

	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return archives, nil
}

// DeleteArchive removes an archived thread
func (m *LifecycleManager) DeleteArchive(threadID string) error {
	archivePath := m.findArchive(threadID)
	if archivePath == "" {
		return fmt.Errorf("archive not found: %s", threadID)
	}
	return os.Remove(archivePath)
}

// GetArchiveSize returns the size of an archive
func (m *LifecycleManager) GetArchiveSize(threadID string) (int64, error) {
	archivePath := m.findArchive(threadID)
	if archivePath == "" {
		return 0, fmt.Errorf("archive not found: %s", threadID)
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// findArchive searches the month directories for a thread's archive.
// The month cannot be derived from the thread ID, so this walks.
func (m *LifecycleManager) findArchive(threadID string) string {
	archiveDir := filepath.Join(m.baseDir, "archive")
	var found string
	filepath.Walk(archiveDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.Name() == threadID+".tar.gz" {
			found = path
			return filepath.SkipAll
		}
		return nil
	})

	return found
}

func (m *LifecycleManager) extractArchive(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		target := filepath.Join(destDir, header.Name)

		// Ensure target is within destDir (security check)
		if !strings.HasPrefix(filepath.Clean(target), filepath.Clean(destDir)) {
			return fmt.Errorf("invalid path in archive: %s", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			out, err := os.Create(target)
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()

			// Restore file permissions
			if err := os.Chmod(target, os.FileMode(header.Mode)); err != nil {
				return err
			}
		}
	}

	return nil
}

// CleanupArchives removes archives older than retention period
func (m *LifecycleManager) CleanupArchives(dryRun bool) (*CleanupResult, error) {
	result := &CleanupResult{
		Deleted: make([]string, 0),
		Kept:    make([]string, 0),
		Errors:  make([]string, 0),
	}

	archiveDir := filepath.Join(m.baseDir, "archive")
	threshold := time.Now().Add(-time.Duration(m.config.ArchiveRetentionDays) * 24 * time.Hour)

	err := filepath.Walk(archiveDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if !strings.HasSuffix(info.Name(), ".tar.gz") {
			return nil
		}

		threadID := strings.TrimSuffix(info.Name(), ".tar.gz")

		if info.ModTime().Before(threshold) {
			if !dryRun {
				if err := os.Remove(path); err != nil {
					result.Errors = append(result.Errors, fmt.Sprintf("delete archive %s: %v", threadID, err))
					return nil
				}
			}
			result.Deleted = append(result.Deleted, threadID)
			result.SpaceSaved += info.Size()
		} else {
			result.Kept = append(result.Kept, threadID)
		}

		return nil
	})

	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return result, nil
}

// DiskUsage returns disk usage statistics
func (m *LifecycleManager) DiskUsage() (*DiskUsageStats, error) {
	stats := &DiskUsageStats{}

	threadsDir := filepath.Join(m.baseDir, "threads")
	archiveDir := filepath.Join(m.baseDir, "archive")

	// Calculate threads directory size
	threadEntries, err := os.ReadDir(threadsDir)
	if err == nil {
		stats.ThreadCount = len(threadEntries)
		for _, entry := range threadEntries {
			if entry.IsDir() {
				stats.ActiveSize += dirSize(filepath.Join(threadsDir, entry.Name()))
			}
		}
	}

	// Calculate archive directory size
	filepath.Walk(archiveDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() && strings.HasSuffix(info.Name(), ".tar.gz") {
			stats.ArchiveSize += info.Size()
			stats.ArchiveCount++
		}
		return nil
	})

	stats.TotalSize = stats.ActiveSize + stats.ArchiveSize

	return stats, nil
}

// DiskUsageStats contains disk usage statistics
type DiskUsageStats struct {
	ThreadCount  int   `json:"threadCount"`
	ArchiveCount int   `json:"archiveCount"`
	ActiveSize   int64 `json:"activeSize"`
	ArchiveSize  int64 `json:"archiveSize"`
	TotalSize    int64 `json:"totalSize"`
}

// Helper functions

// threadMeta is a minimal type for reading metadata
// This avoids circular imports with the transcript package
type threadMeta struct {
	Status  string    `json:"status"`
	EndedAt time.Time `json:"endedAt"`
}

func loadThreadMetadataFromDir(threadDir string) (*threadMeta, error) {
	data, err := os.ReadFile(filepath.Join(threadDir, "metadata.json"))
	if err != nil {
		return nil, err
	}
	var meta threadMeta
	return &meta, json.Unmarshal(data, &meta)
}

func dirSize(path string) int64 {
	var size int64
	filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size
}
