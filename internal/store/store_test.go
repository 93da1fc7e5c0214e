package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"studycal/internal/model"
)

func task(course, title, dueDate, dueTime string) model.Task {
	return model.Task{
		Title:   title,
		Course:  course,
		DueDate: dueDate,
		DueTime: dueTime,
		Type:    "assignment",
	}
}

func TestMergeInsertAndUpdate(t *testing.T) {
	existing := []model.Task{task("ML", "HW1", "2025-11-10", "23:59")}

	incoming := []model.Task{
		// Same key, fresh description: update in place.
		func() model.Task {
			tk := task("ML", "HW1", "2025-11-10", "23:59")
			tk.Description = "Updated"
			return tk
		}(),
		// New key: appended.
		task("ML", "HW2", "2025-11-17", "23:59"),
	}

	merged, result := Merge(existing, incoming)
	if result.Added != 1 || result.Updated != 1 {
		t.Fatalf("result = %+v, want Added=1 Updated=1", result)
	}
	if len(merged) != 2 {
		t.Fatalf("len(merged) = %d, want 2", len(merged))
	}
	if merged[0].Description != "Updated" {
		t.Errorf("description = %q, want Updated", merged[0].Description)
	}
	if merged[0].DueDate != "2025-11-10" || merged[0].DueTime != "23:59" {
		t.Errorf("key fields changed: %+v", merged[0])
	}
}

// Re-merging an already-absorbed batch must not change the store.
func TestMergeIdempotence(t *testing.T) {
	batch := []model.Task{
		task("ML", "HW1", "2025-11-10", "23:59"),
		task("Strategy", "Case memo", "2025-11-14", ""),
	}

	once, first := Merge(nil, batch)
	if first.Added != 2 {
		t.Fatalf("first merge Added = %d, want 2", first.Added)
	}
	twice, second := Merge(once, batch)
	if second.Added != 0 {
		t.Errorf("second merge Added = %d, want 0", second.Added)
	}
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("store changed on re-merge:\n%+v\n%+v", once, twice)
	}
}

// A stored task absent from the incoming batch is a standing commitment
// and survives the merge.
func TestMergeNeverDeletes(t *testing.T) {
	existing := []model.Task{task("ML", "Old exam prep", "2025-10-01", "")}
	merged, _ := Merge(existing, []model.Task{task("ML", "HW3", "2025-12-01", "23:59")})

	if len(merged) != 2 {
		t.Fatalf("len(merged) = %d, want 2", len(merged))
	}
	if merged[0].Title != "Old exam prep" {
		t.Errorf("existing entry moved or vanished: %+v", merged)
	}
}

// Duplicate keys inside one incoming batch apply in order; the later one
// wins for the overwritable fields.
func TestMergeBatchDuplicatesLastWins(t *testing.T) {
	a := task("ML", "HW1", "2025-11-10", "23:59")
	a.Description = "first"
	b := task("ML", "HW1", "2025-11-10", "23:59")
	b.Description = "second"

	merged, result := Merge(nil, []model.Task{a, b})
	if len(merged) != 1 {
		t.Fatalf("len(merged) = %d, want 1", len(merged))
	}
	if result.Added != 1 || result.Updated != 1 {
		t.Errorf("result = %+v, want Added=1 Updated=1", result)
	}
	if merged[0].Description != "second" {
		t.Errorf("description = %q, want second", merged[0].Description)
	}
}

func TestLoadMissingFileIsEmptyStore(t *testing.T) {
	s := New(t.TempDir())
	tasks, original, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("tasks = %+v, want empty", tasks)
	}
	if string(original) != "[]\n" {
		t.Errorf("original = %q, want []\\n", original)
	}
}

func TestLoadCorruptStoreIsFatal(t *testing.T) {
	for _, content := range []string{"{not json", `{"oops": "object"}`, `"just a string"`} {
		dir := t.TempDir()
		s := New(dir)
		if err := os.WriteFile(s.Path, []byte(content), 0o600); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
		_, _, err := s.Load()
		if !errors.Is(err, ErrBadStore) {
			t.Errorf("Load(%q) err = %v, want ErrBadStore", content, err)
		}
	}
}

func TestSaveBackupFailureLeavesStoreUntouched(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	original := []byte("[{\"title\": \"precious\"}]\n")
	if err := os.WriteFile(s.Path, original, 0o600); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	// A directory at the backup path makes the backup write fail.
	if err := os.Mkdir(s.BackupPath, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	err := s.Save([]model.Task{task("ML", "HW1", "2025-11-10", "23:59")}, original)
	if err == nil {
		t.Fatal("Save should fail when the backup cannot be written")
	}

	after, rerr := os.ReadFile(s.Path)
	if rerr != nil {
		t.Fatalf("read store: %v", rerr)
	}
	if string(after) != string(original) {
		t.Error("main store was modified despite backup failure")
	}
}

// End-to-end: merging an updated description against a seeded store file
// keeps the key fields byte-identical, updates the description, and the
// backup equals the pre-merge content exactly.
func TestSyncEndToEnd(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	seeded := `[
  {
    "title": "HW1",
    "course": "ML",
    "due_date": "2025-11-10",
    "due_time": "23:59",
    "type": "assignment"
  }
]
`
	if err := os.WriteFile(s.Path, []byte(seeded), 0o600); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	incoming := task("ML", "HW1", "2025-11-10", "23:59")
	incoming.Description = "Updated"

	result, err := s.Sync([]model.Task{incoming})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if result.Added != 0 || result.Updated != 1 {
		t.Errorf("result = %+v, want Added=0 Updated=1", result)
	}

	backup, err := os.ReadFile(s.BackupPath)
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if string(backup) != seeded {
		t.Errorf("backup is not a verbatim pre-merge copy:\n%q", backup)
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		t.Fatalf("read store: %v", err)
	}
	var tasks []model.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		t.Fatalf("unmarshal store: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("len(tasks) = %d, want 1", len(tasks))
	}
	if tasks[0].DueDate != "2025-11-10" || tasks[0].DueTime != "23:59" {
		t.Errorf("key fields changed: %+v", tasks[0])
	}
	if tasks[0].Description != "Updated" {
		t.Errorf("description = %q, want Updated", tasks[0].Description)
	}
}

func TestStorePaths(t *testing.T) {
	s := New("/data")
	if s.Path != filepath.Join("/data", "tasks.json") {
		t.Errorf("Path = %q", s.Path)
	}
	if s.BackupPath != filepath.Join("/data", "tasks_backup_before_sync.json") {
		t.Errorf("BackupPath = %q", s.BackupPath)
	}
}
