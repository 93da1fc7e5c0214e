// Package sync performs one assignment-sync run: fetch courses and
// assignments from the remote API, normalize them into tasks, merge them
// into the persisted store with a backup, and refresh the course and
// document side files.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"studycal/internal/canvas"
	"studycal/internal/config"
	appLog "studycal/internal/log"
	"studycal/internal/model"
	"studycal/internal/normalize"
	"studycal/internal/store"
	"studycal/internal/temporal"
)

// documentHighlightLimit caps how many document names ride along on a
// task as related-document highlights.
const documentHighlightLimit = 5

// Summary reports what one run fetched and changed.
type Summary struct {
	Courses         int
	Assignments     int
	NewTasks        int
	UpdatedTasks    int
	Documents       int
	DocumentCourses int
}

// Run executes a full sync. "Now" is resolved once via the clock and
// reused throughout, so every window and bucket agrees on today.
func Run(ctx context.Context, cfg *config.Config, clock temporal.Clock) (Summary, error) {
	var summary Summary

	if cfg.Canvas.BaseURL == "" {
		return summary, errors.New("canvas base_url is not configured")
	}
	token := cfg.Token()
	if token == "" {
		return summary, fmt.Errorf("environment variable %s is empty", cfg.Canvas.TokenEnv)
	}

	client := canvas.NewClient(cfg.Canvas.BaseURL, token)

	courses, err := client.ActiveCourses(ctx)
	if err != nil {
		return summary, fmt.Errorf("fetch courses: %w", err)
	}

	documents, err := collectCourseDocuments(ctx, client, courses, cfg.DocumentFocusKeywords, clock)
	if err != nil {
		return summary, err
	}
	if err := writeJSONFile(filepath.Join(cfg.DataDir, "canvas_documents.json"), documents); err != nil {
		return summary, err
	}

	highlights := make(map[string][]string, len(documents))
	counts := make(map[string]int, len(documents))
	for courseName, docs := range documents {
		counts[courseName] = len(docs)
		for _, doc := range docs {
			if len(highlights[courseName]) >= documentHighlightLimit {
				break
			}
			if doc.Name != "" {
				highlights[courseName] = append(highlights[courseName], doc.Name)
			}
		}
		summary.Documents += len(docs)
	}
	summary.DocumentCourses = len(documents)

	windowStart := clock.Today().Format("2006-01-02")
	windowEnd := clock.Today().AddDate(0, 0, cfg.LookaheadDays).Format("2006-01-02")

	var incoming []model.Task
	var filtered []canvas.Course
	for _, course := range courses {
		if !matchesKeywords(course.Name, cfg.CourseFilterKeywords) {
			continue
		}
		filtered = append(filtered, course)

		assignments, err := client.CourseAssignments(ctx, course.ID)
		if err != nil {
			return summary, fmt.Errorf("fetch assignments for %q: %w", course.Name, err)
		}
		summary.Assignments += len(assignments)

		for _, a := range assignments {
			task, ok := normalize.TaskFromAssignment(model.RawAssignment{
				Title:       a.Name,
				DueAt:       a.DueAt,
				Description: a.Description,
				HTMLURL:     a.HTMLURL,
			}, course.Name, clock)
			if !ok {
				continue
			}
			if task.DueDate < windowStart || task.DueDate > windowEnd {
				continue
			}
			if names := highlights[course.Name]; len(names) > 0 {
				task.RelatedDocuments = names
				task.DocumentCount = counts[course.Name]
			}
			incoming = append(incoming, task)
		}
	}
	summary.Courses = len(filtered)

	st := store.New(cfg.DataDir)
	result, err := st.Sync(incoming)
	if err != nil {
		return summary, err
	}
	summary.NewTasks = result.Added
	summary.UpdatedTasks = result.Updated

	if err := writeJSONFile(filepath.Join(cfg.DataDir, "canvas_courses.json"), simplifyCourses(filtered)); err != nil {
		return summary, err
	}

	appLog.Info("sync completed",
		"courses", summary.Courses,
		"assignments", summary.Assignments,
		"new_tasks", summary.NewTasks,
		"updated_tasks", summary.UpdatedTasks,
		"documents", summary.Documents,
		"document_courses", summary.DocumentCourses,
		"window_days", cfg.LookaheadDays,
	)
	return summary, nil
}

// collectCourseDocuments catalogs the files of every focus-keyword course.
// Courses the token cannot read files for are skipped, not fatal.
func collectCourseDocuments(ctx context.Context, client *canvas.Client, courses []canvas.Course, keywords []string, clock temporal.Clock) (map[string][]model.Document, error) {
	documents := make(map[string][]model.Document)

	for _, course := range courses {
		if course.ID == 0 || !matchesKeywords(course.Name, keywords) {
			continue
		}

		files, err := client.CourseFiles(ctx, course.ID)
		if err != nil {
			if errors.Is(err, canvas.ErrNoAccess) {
				appLog.Warn("skipping documents: token lacks file access", "course", course.Name)
				continue
			}
			return nil, fmt.Errorf("fetch files for %q: %w", course.Name, err)
		}
		if len(files) == 0 {
			continue
		}

		simplified := make([]model.Document, 0, len(files))
		for _, f := range files {
			simplified = append(simplified, model.Document{
				ID:          f.ID,
				Name:        f.Name(),
				ContentType: f.ContentType(),
				Size:        f.Size,
				UpdatedAt:   localTimestamp(f.UpdatedAt, clock),
				URL:         f.URL,
			})
		}
		documents[course.Name] = simplified
	}
	return documents, nil
}

// localTimestamp converts a remote timestamp into "YYYY-MM-DD HH:MM" in
// the display zone, passing unparseable values through unchanged.
func localTimestamp(value string, clock temporal.Clock) string {
	t, ok := clock.ParseRemoteTime(value)
	if !ok {
		return value
	}
	return t.Format("2006-01-02 15:04")
}

func matchesKeywords(name string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	lowered := strings.ToLower(name)
	for _, keyword := range keywords {
		if keyword == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}

func simplifyCourses(courses []canvas.Course) []model.Course {
	simplified := make([]model.Course, 0, len(courses))
	for _, course := range courses {
		if course.Name == "" {
			continue
		}
		term := ""
		if course.Term != nil {
			term = course.Term.Name
		}
		simplified = append(simplified, model.Course{
			Name: course.Name,
			Code: course.CourseCode,
			Term: term,
		})
	}
	sort.Slice(simplified, func(i, j int) bool {
		return simplified[i].Name < simplified[j].Name
	})
	return simplified
}

func writeJSONFile(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}
