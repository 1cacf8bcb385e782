package artifact

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Artifact errors
var (
	ErrNotFound = errors.New("artifact not found")
)

// Config holds configuration for artifact management
type Config struct {
	BaseDir       string // Base directory for storage (default: ".careflow")
	CompressAbove int64  // Compress artifacts larger than this (default: 10KB)
	RetentionDays int    // Days to keep artifacts (default: 30)
}

// Manager stores the documents produced while generating an exercise:
// draft snapshots, review payloads, and the final rendered markdown.
type Manager struct {
	baseDir       string
	compressAbove int64
	retentionDays int
}

// Info contains metadata about a stored artifact
type Info struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	Compressed bool      `json:"compressed"`
	CreatedAt  time.Time `json:"createdAt"`
	Type       string    `json:"type"`
}

// ArtifactExercise is the final rendered exercise document
const ArtifactExercise = "exercise.md"

// DraftArtifact names the draft snapshot for a revision
func DraftArtifact(revision int) string {
	return fmt.Sprintf("draft-r%d.json", revision)
}

// ReviewArtifact names a review payload for a stage and revision
func ReviewArtifact(stage string, revision int) string {
	return fmt.Sprintf("%s-r%d.json", stage, revision)
}

// Type describes an artifact type
type Type struct {
	Name         string
	Extensions   []string
	Compressible bool
	Searchable   bool
}

// KnownTypes maps type names to their definitions
var KnownTypes = map[string]Type{
	"markdown": {"markdown", []string{".md"}, true, true},
	"json":     {"json", []string{".json"}, true, true},
	"text":     {"text", []string{".txt", ".log"}, true, true},
	"binary":   {"binary", []string{".png", ".jpg", ".pdf", ".zip", ".tar", ".gz"}, false, false},
}

// NewManager creates an artifact manager with the given config
func NewManager(cfg Config) *Manager {
	if cfg.BaseDir == "" {
		cfg.BaseDir = ".careflow"
	}
	if cfg.CompressAbove == 0 {
		cfg.CompressAbove = 10 * 1024 // 10KB
	}
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = 30
	}

	return &Manager{
		baseDir:       cfg.BaseDir,
		compressAbove: cfg.CompressAbove,
		retentionDays: cfg.RetentionDays,
	}
}

// ThreadDir returns the directory for a thread
func (m *Manager) ThreadDir(threadID string) string {
	return filepath.Join(m.baseDir, "threads", threadID)
}

// ArtifactDir returns the artifacts directory for a thread
func (m *Manager) ArtifactDir(threadID string) string {
	return filepath.Join(m.ThreadDir(threadID), "artifacts")
}

// EnsureThreadDir creates the thread directory structure
func (m *Manager) EnsureThreadDir(threadID string) error {
	return os.MkdirAll(m.ArtifactDir(threadID), 0755)
}

// Save saves an artifact with automatic compression
func (m *Manager) Save(threadID, name string, data []byte) error {
	artifactType := InferType(name)
	artifactPath := filepath.Join(m.ArtifactDir(threadID), name)

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(artifactPath), 0755); err != nil {
		return err
	}

	// Compress if needed
	if m.shouldCompress(artifactType, int64(len(data))) {
		// Remove uncompressed version if it exists
		os.Remove(artifactPath)
		return m.saveCompressed(artifactPath+".gz", data)
	}

	// Remove compressed version if it exists
	os.Remove(artifactPath + ".gz")
	return os.WriteFile(artifactPath, data, 0644)
}

// Load loads an artifact (handles compression transparently)
func (m *Manager) Load(threadID, name string) ([]byte, error) {
	artifactPath := filepath.Join(m.ArtifactDir(threadID), name)

	// Try compressed first
	if data, err := m.loadCompressed(artifactPath + ".gz"); err == nil {
		return data, nil
	}

	// Try uncompressed
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// SaveDraft stores the draft snapshot for a revision
func (m *Manager) SaveDraft(threadID string, revision int, data []byte) error {
	return m.Save(threadID, DraftArtifact(revision), data)
}

// SaveReview stores a review payload for a stage and revision
func (m *Manager) SaveReview(threadID, stage string, revision int, data []byte) error {
	return m.Save(threadID, ReviewArtifact(stage, revision), data)
}

// SaveFinal stores the rendered exercise document
func (m *Manager) SaveFinal(threadID string, markdown []byte) error {
	return m.Save(threadID, ArtifactExercise, markdown)
}

// LoadFinal loads the rendered exercise document
func (m *Manager) LoadFinal(threadID string) ([]byte, error) {
	return m.Load(threadID, ArtifactExercise)
}

// Delete removes an artifact
func (m *Manager) Delete(threadID, name string) error {
	artifactPath := filepath.Join(m.ArtifactDir(threadID), name)

	// Try to remove both compressed and uncompressed
	os.Remove(artifactPath + ".gz")
	err := os.Remove(artifactPath)
	if err != nil && os.IsNotExist(err) {
		return ErrNotFound
	}
	return err
}

// List returns all artifacts for a thread
func (m *Manager) List(threadID string) ([]Info, error) {
	artifactDir := m.ArtifactDir(threadID)
	entries, err := os.ReadDir(artifactDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var artifacts []Info

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		compressed := false

		// Handle .gz extension
		if strings.HasSuffix(name, ".gz") {
			name = strings.TrimSuffix(name, ".gz")
			compressed = true
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		artifactType := InferType(name)

		artifacts = append(artifacts, Info{
			Name:       name,
			Size:       info.Size(),
			Compressed: compressed,
			CreatedAt:  info.ModTime(),
			Type:       artifactType.Name,
		})
	}

	// Sort by name
	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].Name < artifacts[j].Name
	})

	return artifacts, nil
}

// Has checks if an artifact exists
func (m *Manager) Has(threadID, name string) bool {
	artifactPath := filepath.Join(m.ArtifactDir(threadID), name)

	// Check both compressed and uncompressed
	if _, err := os.Stat(artifactPath + ".gz"); err == nil {
		return true
	}
	if _, err := os.Stat(artifactPath); err == nil {
		return true
	}
	return false
}

// GetInfo returns info about a specific artifact
func (m *Manager) GetInfo(threadID, name string) (*Info, error) {
	artifactPath := filepath.Join(m.ArtifactDir(threadID), name)

	// Try compressed first
	if info, err := os.Stat(artifactPath + ".gz"); err == nil {
		artifactType := InferType(name)
		return &Info{
			Name:       name,
			Size:       info.Size(),
			Compressed: true,
			CreatedAt:  info.ModTime(),
			Type:       artifactType.Name,
		}, nil
	}

	// Try uncompressed
	info, err := os.Stat(artifactPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	artifactType := InferType(name)
	return &Info{
		Name:       name,
		Size:       info.Size(),
		Compressed: false,
		CreatedAt:  info.ModTime(),
		Type:       artifactType.Name,
	}, nil
}

// BaseDir returns the base directory
func (m *Manager) BaseDir() string {
	return m.baseDir
}

func (m *Manager) shouldCompress(at Type, size int64) bool {
	if !at.Compressible {
		return false
	}
	return size >= m.compressAbove
}

func (m *Manager) saveCompressed(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	defer gz.Close()

	_, err = gz.Write(data)
	return err
}

func (m *Manager) loadCompressed(path string) ([]byte, error) {
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

// InferType infers the artifact type from filename
func InferType(filename string) Type {
	ext := strings.ToLower(filepath.Ext(filename))

	for _, at := range KnownTypes {
		for _, e := range at.Extensions {
			if e == ext {
				return at
			}
		}
	}

	// Default to text
	return Type{
		Name:         "unknown",
		Compressible: true,
		Searchable:   true,
	}
}
