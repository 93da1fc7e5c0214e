package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	appLog "studycal/internal/log"
	"studycal/internal/model"
)

// ErrBadStore marks persisted-store corruption: invalid encoding or a
// top-level shape that is not a JSON array. It is fatal for the whole
// merge run; the store is never silently discarded or partially written.
var ErrBadStore = errors.New("task store is corrupt")

// Store is the persisted task list plus the backup snapshot that receives
// a verbatim copy of the pre-merge content before every write.
type Store struct {
	Path       string
	BackupPath string
}

// New builds a Store rooted in dir with the conventional file names.
func New(dir string) *Store {
	return &Store{
		Path:       filepath.Join(dir, "tasks.json"),
		BackupPath: filepath.Join(dir, "tasks_backup_before_sync.json"),
	}
}

// Load reads the persisted task list together with the original raw bytes
// (kept for the backup snapshot). A missing file is an empty store;
// malformed content is a fatal ErrBadStore.
func (s *Store) Load() ([]model.Task, []byte, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, []byte("[]\n"), nil
		}
		return nil, nil, fmt.Errorf("read %s: %w", s.Path, err)
	}

	var tasks []model.Task
	if err := json.Unmarshal(raw, &tasks); err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrBadStore, s.Path, err)
	}
	return tasks, raw, nil
}

// MergeResult summarizes one merge run.
type MergeResult struct {
	Added   int
	Updated int
}

// Merge reconciles a freshly-fetched batch against the existing store by
// natural key. Existing tasks keep their key fields (and type) untouched;
// the remaining fields are replaced wholesale with the fetched values.
// Unknown keys are appended; nothing is ever removed or reordered.
// Duplicate keys within one incoming batch apply in order, last wins.
func Merge(existing, incoming []model.Task) ([]model.Task, MergeResult) {
	merged := make([]model.Task, len(existing))
	copy(merged, existing)

	index := make(map[model.TaskKey]int, len(merged))
	for i, task := range merged {
		index[task.Key()] = i
	}

	var result MergeResult
	for _, task := range incoming {
		key := task.Key()
		if i, ok := index[key]; ok {
			merged[i] = overwriteNonKeyFields(merged[i], task)
			result.Updated++
			continue
		}
		merged = append(merged, task)
		index[key] = len(merged) - 1
		result.Added++
	}
	return merged, result
}

// overwriteNonKeyFields replaces every field outside the natural key with
// the incoming value. Type travels with the key set: once a task exists
// its identity fields stay byte-identical across merges.
func overwriteNonKeyFields(stored, incoming model.Task) model.Task {
	stored.Description = incoming.Description
	stored.CanvasURL = incoming.CanvasURL
	stored.RelatedDocuments = incoming.RelatedDocuments
	stored.DocumentCount = incoming.DocumentCount
	return stored
}

// Save writes the merged task list. The pre-merge original bytes are
// durably copied to the backup path first; if that write fails the main
// store is left untouched.
func (s *Store) Save(tasks []model.Task, original []byte) error {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	if err := os.WriteFile(s.BackupPath, original, 0o600); err != nil {
		return fmt.Errorf("write backup %s: %w", s.BackupPath, err)
	}

	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	// Atomic write: temp file in the same directory, then rename.
	tmp, err := os.CreateTemp(dir, ".tasks-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmpName, s.Path); err != nil {
		return err
	}

	appLog.Debug("task store written", "path", s.Path, "tasks", len(tasks))
	return nil
}

// Sync is the read-modify-write-with-backup cycle in one call: load,
// merge the incoming batch, back up, write. Concurrent runs against the
// same store must be serialized by the caller.
func (s *Store) Sync(incoming []model.Task) (MergeResult, error) {
	existing, original, err := s.Load()
	if err != nil {
		return MergeResult{}, err
	}
	merged, result := Merge(existing, incoming)
	if err := s.Save(merged, original); err != nil {
		return MergeResult{}, err
	}
	return result, nil
}
