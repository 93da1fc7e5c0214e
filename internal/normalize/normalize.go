package normalize

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"studycal/internal/model"
	"studycal/internal/temporal"
)

// categoryRule pairs a predicate with the category it yields. The rules
// are evaluated in order and the first match wins, so the tie-break order
// is a first-class, testable artifact.
type categoryRule struct {
	match    func(lowered string) bool
	category model.Category
}

func containsAny(substrings ...string) func(string) bool {
	return func(lowered string) bool {
		for _, sub := range substrings {
			if strings.Contains(lowered, sub) {
				return true
			}
		}
		return false
	}
}

var categoryRules = []categoryRule{
	{containsAny("workshop"), model.CategoryWorkshop},
	{containsAny("hand-in", "handin"), model.CategoryHandIn},
	{containsAny("seminar"), model.CategorySeminar},
	{containsAny("exam"), model.CategoryExam},
	{containsAny("lecture"), model.CategoryLecture},
}

// Classify maps a raw type string onto a category and, for workshops, a
// track. Unmatched types fall through to CategoryOther; the caller keeps
// the literal string as the display label.
func Classify(rawType string) (model.Category, model.Track) {
	lowered := strings.ToLower(rawType)
	for _, rule := range categoryRules {
		if !rule.match(lowered) {
			continue
		}
		track := model.TrackNone
		if rule.category == model.CategoryWorkshop {
			switch {
			case strings.Contains(lowered, "qualitative"):
				track = model.TrackQualitative
			case strings.Contains(lowered, "quantitative"):
				track = model.TrackQuantitative
			}
		}
		return rule.category, track
	}
	return model.CategoryOther, model.TrackNone
}

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lower-cases s, replaces runs of non-alphanumerics with a single
// hyphen, and trims leading/trailing hyphens. An empty result becomes
// "item" so slugs are never empty.
func Slugify(s string) string {
	slug := nonAlphanumeric.ReplaceAllString(strings.ToLower(s), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return "item"
	}
	return slug
}

// EventID builds the stable identity for an event: the same course, date,
// and title always produce the same id. Dateless events use "tba" as the
// date component.
func EventID(courseSlug, date, title string) string {
	datePart := "tba"
	if date != "" {
		datePart = strings.ReplaceAll(date, "-", "")
	}
	return courseSlug + "_" + datePart + "_" + Slugify(title)
}

// Events normalizes a batch of raw schedule entries into canonical events.
// Entries missing a title or type are dropped; entries without a parseable
// date are kept with HasDate=false. Same-day same-slug collisions within
// one course get an index suffix so ids stay unique in the batch.
func Events(entries []model.ScheduleEntry, defaultCourse model.CourseInfo) []model.Event {
	seen := make(map[string]int, len(entries))
	events := make([]model.Event, 0, len(entries))

	for _, entry := range entries {
		title := strings.TrimSpace(entry.Title)
		rawType := strings.TrimSpace(entry.Type)
		if title == "" || rawType == "" {
			continue
		}

		course := defaultCourse
		if entry.Course != "" {
			course = model.CourseInfo{
				Name:  entry.Course,
				Short: entry.CourseShort,
				Slug:  Slugify(entry.Course),
			}
		}
		if course.Slug == "" {
			course.Slug = Slugify(course.Name)
		}

		date := ""
		hasDate := false
		if _, ok := temporal.ParseDate(entry.Date); ok {
			date = entry.Date
			hasDate = true
		}

		start, end := temporal.SplitTimeRange(entry.Time)
		category, track := Classify(rawType)

		id := EventID(course.Slug, date, title)
		seen[id]++
		if n := seen[id]; n > 1 {
			id = id + "-" + strconv.Itoa(n)
		}

		events = append(events, model.Event{
			ID:          id,
			Course:      course.Name,
			CourseShort: course.Short,
			CourseSlug:  course.Slug,
			Title:       title,
			Category:    category,
			TypeLabel:   rawType,
			Track:       track,
			HasDate:     hasDate,
			Date:        date,
			StartTime:   start,
			EndTime:     end,
			Location:    strings.TrimSpace(entry.Location),
			Teacher:     strings.TrimSpace(entry.Teacher),
			Details:     strings.TrimSpace(entry.Details),
		})
	}
	return events
}

// TaskFromAssignment converts a fetched assignment into a Task due in the
// clock's display zone. Assignments without a parseable due timestamp
// report !ok and are skipped (per-record loss is acceptable).
func TaskFromAssignment(a model.RawAssignment, courseName string, clock temporal.Clock) (model.Task, bool) {
	due, ok := clock.ParseRemoteTime(a.DueAt)
	if !ok {
		return model.Task{}, false
	}

	title := strings.TrimSpace(a.Title)
	if title == "" {
		title = "Untitled assignment"
	}

	return model.Task{
		Title:       title,
		Course:      courseName,
		DueDate:     due.Format("2006-01-02"),
		DueTime:     due.Format("15:04"),
		Type:        "assignment",
		CanvasURL:   a.HTMLURL,
		Description: ExcerptHTML(a.Description, DescriptionExcerptLimit),
	}, true
}

// DescriptionExcerptLimit bounds assignment description excerpts.
const DescriptionExcerptLimit = 300

var htmlTag = regexp.MustCompile(`<[^>]+>`)

// ExcerptHTML strips tags and entities from an HTML fragment, collapses
// whitespace, and truncates to limit characters with a trailing ellipsis.
func ExcerptHTML(s string, limit int) string {
	if s == "" {
		return ""
	}
	withoutTags := htmlTag.ReplaceAllString(s, " ")
	collapsed := strings.Join(strings.Fields(html.UnescapeString(withoutTags)), " ")
	runes := []rune(collapsed)
	if len(runes) <= limit {
		return collapsed
	}
	return strings.TrimRight(string(runes[:limit]), " ") + "..."
}
