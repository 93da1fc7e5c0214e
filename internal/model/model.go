package model

// Category classifies a normalized schedule event.
type Category string

const (
	CategoryLecture  Category = "Lecture"
	CategoryWorkshop Category = "Workshop"
	CategorySeminar  Category = "Seminar"
	CategoryExam     Category = "Exam"
	CategoryHandIn   Category = "Hand-in"
	CategoryOther    Category = "Other"
)

// Track is the workshop sub-track. Only Workshop events carry one.
type Track string

const (
	TrackNone         Track = ""
	TrackQualitative  Track = "Qualitative"
	TrackQuantitative Track = "Quantitative"
)

// CourseInfo is the denormalized course identity attached to events.
type CourseInfo struct {
	Name  string `json:"name"`
	Short string `json:"short"`
	Slug  string `json:"slug"`
}

// Event is the canonical, source-agnostic occurrence produced by the
// normalizer. It is derived state: rebuilt on every aggregation request
// and never persisted.
type Event struct {
	ID          string   `json:"id"`
	Course      string   `json:"course"`
	CourseShort string   `json:"course_short,omitempty"`
	CourseSlug  string   `json:"course_slug"`
	Title       string   `json:"title"`
	Category    Category `json:"category"`
	// TypeLabel keeps the raw source type string; for CategoryOther it is
	// the only human-readable label there is.
	TypeLabel string `json:"type"`
	Track     Track  `json:"track,omitempty"`

	// HasDate is false for entries whose date could not be resolved.
	// Dateless events are excluded from date buckets but still listed,
	// sorted after every dated event, with a "Date TBA" label.
	HasDate bool   `json:"has_date"`
	Date    string `json:"date,omitempty"` // YYYY-MM-DD

	StartTime string `json:"start_time,omitempty"` // HH:MM, empty means time TBA
	EndTime   string `json:"end_time,omitempty"`

	Location string `json:"location,omitempty"`
	Teacher  string `json:"teacher,omitempty"`
	Details  string `json:"details,omitempty"`
}

// CategoryLabel returns the display label for the event's category. For
// CategoryOther the literal source type string is the label.
func (e Event) CategoryLabel() string {
	if e.Category == CategoryOther && e.TypeLabel != "" {
		return e.TypeLabel
	}
	return string(e.Category)
}

// TimeRange returns the display form of the event's clock times:
// "10:15–12:00", "10:15", or "" when the start time is unknown.
func (e Event) TimeRange() string {
	if e.StartTime == "" {
		return ""
	}
	if e.EndTime == "" {
		return e.StartTime
	}
	return e.StartTime + "–" + e.EndTime
}

// Task is a persisted to-do item, one per fetched assignment (or added by
// hand). The JSON field names are the on-disk store format.
type Task struct {
	Title   string `json:"title"`
	Course  string `json:"course"`
	DueDate string `json:"due_date"`           // YYYY-MM-DD
	DueTime string `json:"due_time,omitempty"` // HH:MM, may be empty
	Type    string `json:"type"`

	Description      string   `json:"description,omitempty"`
	CanvasURL        string   `json:"canvas_url,omitempty"`
	RelatedDocuments []string `json:"related_documents,omitempty"`
	DocumentCount    int      `json:"document_count,omitempty"`
}

// TaskKey is the natural key: two tasks with equal keys are the same
// logical task no matter what the remaining fields say.
type TaskKey struct {
	Course  string
	Title   string
	DueDate string
	DueTime string
}

// Key computes the task's natural key.
func (t Task) Key() TaskKey {
	return TaskKey{
		Course:  t.Course,
		Title:   t.Title,
		DueDate: t.DueDate,
		DueTime: t.DueTime,
	}
}

// RawAssignment is the finite contract consumed from the remote
// learning-management API for a single assignment.
type RawAssignment struct {
	Title       string
	DueAt       string // ISO-8601 or empty
	Description string // optional HTML
	HTMLURL     string
}

// ScheduleEntry is a raw static/semi-static schedule record as read from
// the schedule file (or the embedded default schedule).
type ScheduleEntry struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Title string `json:"title"`
	Type  string `json:"type"`
	Time  string `json:"time,omitempty"` // range string, e.g. "10:15–12:00"

	Location string `json:"location,omitempty"`
	Teacher  string `json:"teacher,omitempty"`
	Details  string `json:"details,omitempty"`

	// Course/CourseShort override the configured default course identity
	// for multi-course schedule files.
	Course      string `json:"course,omitempty"`
	CourseShort string `json:"course_short,omitempty"`

	// RRule, when set, turns this entry into a recurring series anchored
	// at Date/Time and expanded within the aggregation window.
	RRule string `json:"rrule,omitempty"`
}

// Course is a simplified course record written to canvas_courses.json.
type Course struct {
	Name string `json:"name"`
	Code string `json:"code"`
	Term string `json:"term,omitempty"`
}

// Document is a simplified course file record written to
// canvas_documents.json.
type Document struct {
	ID          int64  `json:"id,omitempty"`
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"` // local "YYYY-MM-DD HH:MM"
	URL         string `json:"url,omitempty"`
}
