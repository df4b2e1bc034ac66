// Package storage persists worktree records on the local filesystem.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/valter-silva-au/devflow/pkg/models"
	"gopkg.in/yaml.v3"
)

const (
	storeDir      = ".devflow"
	storeFile     = "worktrees.yaml"
	storeVersion  = "1.0"
	lockExtension = ".lock"
)

// WorktreeFile is the on-disk layout of the worktree store.
type WorktreeFile struct {
	Version   string                           `yaml:"version"`
	Worktrees map[string]models.WorktreeRecord `yaml:"worktrees"`
}

// WorktreeStore keeps one record per branch.
type WorktreeStore interface {
	// Get returns the record for branch, or nil when none exists.
	Get(branch string) (*models.WorktreeRecord, error)
	// FindByTask returns the live record bound to taskID, or nil.
	FindByTask(taskID string) (*models.WorktreeRecord, error)
	List() ([]models.WorktreeRecord, error)
	Put(rec models.WorktreeRecord) error
	Delete(branch string) error
	// Path is the YAML file backing the store.
	Path() string
}

type fileWorktreeStore struct {
	basePath string
}

// NewWorktreeStore returns a store rooted at basePath. The file lives at
// {basePath}/.devflow/worktrees.yaml and is created on first write.
func NewWorktreeStore(basePath string) WorktreeStore {
	return &fileWorktreeStore{basePath: basePath}
}

func (s *fileWorktreeStore) Path() string {
	return filepath.Join(s.basePath, storeDir, storeFile)
}

func (s *fileWorktreeStore) Get(branch string) (*models.WorktreeRecord, error) {
	if branch == "" {
		return nil, errors.New("branch is required")
	}
	data, err := s.load()
	if err != nil {
		return nil, err
	}
	rec, ok := data.Worktrees[branch]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *fileWorktreeStore) FindByTask(taskID string) (*models.WorktreeRecord, error) {
	if taskID == "" {
		return nil, errors.New("task id is required")
	}
	recs, err := s.List()
	if err != nil {
		return nil, err
	}
	var found *models.WorktreeRecord
	for i := range recs {
		rec := recs[i]
		if rec.TaskID != taskID || rec.State == models.WorktreeRemoved {
			continue
		}
		if found == nil || rec.Updated.After(found.Updated) {
			found = &rec
		}
	}
	return found, nil
}

func (s *fileWorktreeStore) List() ([]models.WorktreeRecord, error) {
	data, err := s.load()
	if err != nil {
		return nil, err
	}
	recs := make([]models.WorktreeRecord, 0, len(data.Worktrees))
	for _, rec := range data.Worktrees {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].Branch < recs[j].Branch
	})
	return recs, nil
}

func (s *fileWorktreeStore) Put(rec models.WorktreeRecord) error {
	if rec.Branch == "" {
		return errors.New("saving worktree record: branch is required")
	}
	return s.update(func(data *WorktreeFile) {
		data.Worktrees[rec.Branch] = rec
	})
}

func (s *fileWorktreeStore) Delete(branch string) error {
	return s.update(func(data *WorktreeFile) {
		delete(data.Worktrees, branch)
	})
}

// update runs fn between a load and a save under the store lock.
func (s *fileWorktreeStore) update(fn func(*WorktreeFile)) error {
	if err := os.MkdirAll(filepath.Dir(s.Path()), 0o750); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}
	unlock, err := lockFile(s.Path() + lockExtension)
	if err != nil {
		return err
	}
	defer func() { _ = unlock() }()

	data, err := s.load()
	if err != nil {
		return err
	}
	fn(&data)
	return s.save(data)
}

func (s *fileWorktreeStore) load() (WorktreeFile, error) {
	raw, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return WorktreeFile{Version: storeVersion, Worktrees: make(map[string]models.WorktreeRecord)}, nil
		}
		return WorktreeFile{}, fmt.Errorf("loading worktree store: %w", err)
	}
	var data WorktreeFile
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return WorktreeFile{}, fmt.Errorf("loading worktree store: parsing YAML: %w", err)
	}
	if data.Worktrees == nil {
		data.Worktrees = make(map[string]models.WorktreeRecord)
	}
	if data.Version == "" {
		data.Version = storeVersion
	}
	return data, nil
}

// save writes through a temp file and a rename.
func (s *fileWorktreeStore) save(data WorktreeFile) error {
	raw, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("saving worktree store: marshalling YAML: %w", err)
	}
	tmp := s.Path() + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("saving worktree store: %w", err)
	}
	if err := os.Rename(tmp, s.Path()); err != nil {
		return fmt.Errorf("saving worktree store: %w", err)
	}
	return nil
}
