package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"studycal/internal/config"
	"studycal/internal/model"
	"studycal/internal/temporal"
)

func newCanvasStub(t *testing.T, filesStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/courses", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"id": 1, "name": "Scientific Methods HT25", "course_code": "2FE000", "workflow_state": "available", "term": {"name": "HT25"}},
			{"id": 2, "name": "Pottery for Beginners", "course_code": "POT101", "workflow_state": "available"}
		]`)
	})
	mux.HandleFunc("/courses/1/assignments", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"id": 10, "name": "HW1", "due_at": "2025-11-10T22:59:00Z", "description": "<p>Submit &amp; relax</p>", "html_url": "https://canvas.test/hw1"},
			{"id": 11, "name": "Far future", "due_at": "2026-05-01T22:59:00Z", "html_url": "https://canvas.test/far"},
			{"id": 12, "name": "Draft", "due_at": "", "html_url": "https://canvas.test/draft"}
		]`)
	})
	mux.HandleFunc("/courses/1/files", func(w http.ResponseWriter, r *http.Request) {
		if filesStatus != http.StatusOK {
			w.WriteHeader(filesStatus)
			return
		}
		fmt.Fprint(w, `[
			{"id": 100, "display_name": "Scientific writing guide", "content-type": "application/pdf", "size": 2048, "updated_at": "2025-10-01T08:00:00Z", "url": "https://canvas.test/f100"},
			{"id": 101, "filename": "methods_slides.pdf", "content_type": "application/pdf", "size": 4096, "updated_at": "2025-10-02T08:00:00Z", "url": "https://canvas.test/f101"}
		]`)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request: %s", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	})
	return httptest.NewServer(mux)
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	t.Setenv("SYNC_TEST_TOKEN", "secret")
	return &config.Config{
		Timezone:             "UTC",
		LookaheadDays:        60,
		DataDir:              t.TempDir(),
		Canvas:               config.CanvasConfig{BaseURL: baseURL, TokenEnv: "SYNC_TEST_TOKEN"},
		CourseFilterKeywords: []string{"scientific"},
		DocumentFocusKeywords: []string{
			"scientific",
		},
	}
}

func fixedClock() temporal.Clock {
	return temporal.FixedClock(
		time.Date(2025, 11, 1, 9, 0, 0, 0, time.UTC), time.UTC)
}

func TestRun(t *testing.T) {
	srv := newCanvasStub(t, http.StatusOK)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	summary, err := Run(context.Background(), cfg, fixedClock())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Pottery is filtered out by the course keywords; Far future misses
	// the lookahead window and Draft has no due date.
	if summary.Courses != 1 || summary.Assignments != 3 || summary.NewTasks != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if summary.Documents != 2 || summary.DocumentCourses != 1 {
		t.Errorf("document summary = %+v", summary)
	}

	data, err := os.ReadFile(filepath.Join(cfg.DataDir, "tasks.json"))
	if err != nil {
		t.Fatalf("read tasks.json: %v", err)
	}
	var tasks []model.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		t.Fatalf("unmarshal tasks.json: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("tasks = %+v, want 1", tasks)
	}
	got := tasks[0]
	if got.Title != "HW1" || got.Course != "Scientific Methods HT25" {
		t.Errorf("task identity = %+v", got)
	}
	if got.DueDate != "2025-11-10" || got.DueTime != "22:59" {
		t.Errorf("due = %q %q", got.DueDate, got.DueTime)
	}
	if got.Description != "Submit & relax" {
		t.Errorf("description = %q", got.Description)
	}
	if got.DocumentCount != 2 || len(got.RelatedDocuments) != 2 {
		t.Errorf("documents on task = %d %v", got.DocumentCount, got.RelatedDocuments)
	}
	if got.RelatedDocuments[0] != "Scientific writing guide" || got.RelatedDocuments[1] != "methods_slides.pdf" {
		t.Errorf("related documents = %v", got.RelatedDocuments)
	}

	var courses []model.Course
	readJSON(t, filepath.Join(cfg.DataDir, "canvas_courses.json"), &courses)
	if len(courses) != 1 || courses[0].Code != "2FE000" || courses[0].Term != "HT25" {
		t.Errorf("courses = %+v", courses)
	}

	var documents map[string][]model.Document
	readJSON(t, filepath.Join(cfg.DataDir, "canvas_documents.json"), &documents)
	docs := documents["Scientific Methods HT25"]
	if len(docs) != 2 {
		t.Fatalf("documents = %+v", documents)
	}
	if docs[0].UpdatedAt != "2025-10-01 08:00" {
		t.Errorf("UpdatedAt = %q", docs[0].UpdatedAt)
	}
}

// A second run re-fetching the same assignments must not duplicate tasks,
// and the backup must hold the verbatim pre-merge store.
func TestRunTwiceMergesInPlace(t *testing.T) {
	srv := newCanvasStub(t, http.StatusOK)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	if _, err := Run(context.Background(), cfg, fixedClock()); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	firstStore, err := os.ReadFile(filepath.Join(cfg.DataDir, "tasks.json"))
	if err != nil {
		t.Fatalf("read tasks.json: %v", err)
	}

	summary, err := Run(context.Background(), cfg, fixedClock())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if summary.NewTasks != 0 || summary.UpdatedTasks != 1 {
		t.Errorf("second run summary = %+v", summary)
	}

	backup, err := os.ReadFile(filepath.Join(cfg.DataDir, "tasks_backup_before_sync.json"))
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if string(backup) != string(firstStore) {
		t.Error("backup is not the verbatim pre-merge store")
	}
}

func TestRunSkipsInaccessibleFiles(t *testing.T) {
	srv := newCanvasStub(t, http.StatusForbidden)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	summary, err := Run(context.Background(), cfg, fixedClock())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Documents != 0 || summary.DocumentCourses != 0 {
		t.Errorf("document summary = %+v", summary)
	}
	if summary.NewTasks != 1 {
		t.Errorf("NewTasks = %d, want 1", summary.NewTasks)
	}
}

func TestRunRequiresToken(t *testing.T) {
	cfg := testConfig(t, "https://canvas.test/api/v1")
	t.Setenv("SYNC_TEST_TOKEN", "")

	if _, err := Run(context.Background(), cfg, fixedClock()); err == nil {
		t.Fatal("expected an error with an empty token")
	}

	cfg.Canvas.BaseURL = ""
	if _, err := Run(context.Background(), cfg, fixedClock()); err == nil {
		t.Fatal("expected an error with no base URL")
	}
}

func TestMatchesKeywords(t *testing.T) {
	tests := []struct {
		name     string
		keywords []string
		want     bool
	}{
		{"Scientific Methods HT25", []string{"scientific"}, true},
		{"SCIENTIFIC METHODS", []string{"scientific"}, true},
		{"Pottery", []string{"scientific"}, false},
		{"Anything", nil, true},
		{"Anything", []string{""}, false},
	}
	for _, tt := range tests {
		if got := matchesKeywords(tt.name, tt.keywords); got != tt.want {
			t.Errorf("matchesKeywords(%q, %v) = %v, want %v", tt.name, tt.keywords, got, tt.want)
		}
	}
}

func readJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("unmarshal %s: %v", path, err)
	}
}
