package mfa

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

const fileRepositoryName = "mfa.json"

// FileRepository implements Repository on a JSON file that is rewritten
// atomically after every change.
type FileRepository struct {
	*MemoryRepository
	dataDir string
}

type fileSnapshot struct {
	Profiles   []Profile   `json:"profiles"`
	Factors    []Factor    `json:"factors"`
	Challenges []Challenge `json:"challenges"`
}

// NewFileRepository creates a new file-based MFA repository
func NewFileRepository(dataDir string) (*FileRepository, error) {
	// Create data directory if it doesn't exist
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	repo := &FileRepository{
		MemoryRepository: NewMemoryRepository(),
		dataDir:          dataDir,
	}

	// Load existing data
	if err := repo.load(); err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}
	repo.persist = repo.save

	return repo, nil
}

// load reads MFA data from file
func (r *FileRepository) load() error {
	filePath := filepath.Join(r.dataDir, fileRepositoryName)

	// If file doesn't exist, start empty
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var snapshot fileSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}

	for _, p := range snapshot.Profiles {
		r.profiles[p.Actor] = p
	}
	for _, f := range snapshot.Factors {
		r.factors[f.ID] = f
	}
	for _, c := range snapshot.Challenges {
		r.challenges[c.ID] = c
	}
	return nil
}

// save writes MFA data to file atomically. Callers hold the write lock.
func (r *FileRepository) save() error {
	snapshot := fileSnapshot{
		Profiles:   make([]Profile, 0, len(r.profiles)),
		Factors:    make([]Factor, 0, len(r.factors)),
		Challenges: make([]Challenge, 0, len(r.challenges)),
	}
	for _, p := range r.profiles {
		snapshot.Profiles = append(snapshot.Profiles, p)
	}
	for _, f := range r.factors {
		snapshot.Factors = append(snapshot.Factors, f)
	}
	for _, c := range r.challenges {
		snapshot.Challenges = append(snapshot.Challenges, c)
	}
	sort.Slice(snapshot.Profiles, func(i, j int) bool { return snapshot.Profiles[i].Actor.String() < snapshot.Profiles[j].Actor.String() })
	sort.Slice(snapshot.Factors, func(i, j int) bool { return snapshot.Factors[i].ID.String() < snapshot.Factors[j].ID.String() })
	sort.Slice(snapshot.Challenges, func(i, j int) bool { return snapshot.Challenges[i].ID.String() < snapshot.Challenges[j].ID.String() })

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	// Write to temp file first
	tempFile := filepath.Join(r.dataDir, fileRepositoryName+".tmp")
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	// Atomic rename
	finalFile := filepath.Join(r.dataDir, fileRepositoryName)
	if err := os.Rename(tempFile, finalFile); err != nil {
		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}
