package bucket

import (
	"fmt"
	"sort"
	"time"

	"studycal/internal/model"
	"studycal/internal/temporal"
)

// Bucket labels, in display order.
const (
	BucketToday    = "TODAY"
	BucketThisWeek = "THIS WEEK"
	BucketLater    = "LATER"
)

// Buckets lists the day-bucket labels in display order.
var Buckets = []string{BucketToday, BucketThisWeek, BucketLater}

// GroupByDay buckets a due datetime relative to today. THIS WEEK means
// the same ISO calendar week (year + week number), not a rolling window:
// a date two days out can land in LATER when it crosses a week boundary,
// while a date six days out can still be THIS WEEK. That asymmetry is
// intentional and load-bearing.
func GroupByDay(due, today time.Time) string {
	if sameDate(due, today) {
		return BucketToday
	}
	dueYear, dueWeek := due.ISOWeek()
	todayYear, todayWeek := today.ISOWeek()
	if dueYear == todayYear && dueWeek == todayWeek {
		return BucketThisWeek
	}
	return BucketLater
}

// InWeekWindow reports whether d falls in the rolling [today, today+7]
// window, inclusive on both ends. This is the cross-course schedule
// view's notion of "this week" and is deliberately distinct from
// GroupByDay's ISO-week buckets.
func InWeekWindow(d, today time.Time) bool {
	day := dateOnly(d)
	start := dateOnly(today)
	end := start.AddDate(0, 0, 7)
	return !day.Before(start) && !day.After(end)
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// TaskView is a Task enriched with precomputed display strings for the
// grouped dashboard.
type TaskView struct {
	model.Task
	DueDisplay string `json:"due_display"`
	DueNice    string `json:"due_nice"`
}

// DueDisplay formats a task's due moment for compact display: just HH:MM
// when it is due today with a known time, date plus time when the time is
// known but the date differs, and the bare date otherwise.
func DueDisplay(t model.Task, today time.Time) string {
	if t.DueTime != "" {
		if t.DueDate == today.Format("2006-01-02") {
			return t.DueTime
		}
		return t.DueDate + " " + t.DueTime
	}
	return t.DueDate
}

// GroupTasks buckets the persisted tasks into TODAY / THIS WEEK / LATER
// relative to the clock and sorts each bucket ascending by (date, time).
// Tasks without a time sort before timed tasks on the same date (the time
// key is the empty string). A task with an unparseable due date is fatal:
// the store contract requires one.
func GroupTasks(tasks []model.Task, clock temporal.Clock) (map[string][]TaskView, error) {
	today := clock.Today()

	grouped := make(map[string][]TaskView, len(Buckets))
	for _, label := range Buckets {
		grouped[label] = []TaskView{}
	}

	for _, task := range tasks {
		due, err := temporal.CombineDateTime(task.DueDate, task.DueTime, clock.Loc)
		if err != nil {
			return nil, fmt.Errorf("task %q: %w", task.Title, err)
		}

		view := TaskView{
			Task:       task,
			DueDisplay: DueDisplay(task, today),
			DueNice:    dueNice(due, task.DueTime),
		}
		label := GroupByDay(due, today)
		grouped[label] = append(grouped[label], view)
	}

	for _, views := range grouped {
		sortTaskViews(views)
	}
	return grouped, nil
}

func dueNice(due time.Time, dueTime string) string {
	if dueTime != "" {
		return due.Format("Monday, 02 January 2006 15:04")
	}
	return due.Format("Monday, 02 January 2006")
}

func sortTaskViews(views []TaskView) {
	sort.SliceStable(views, func(i, j int) bool {
		if views[i].DueDate != views[j].DueDate {
			return views[i].DueDate < views[j].DueDate
		}
		if views[i].DueTime != views[j].DueTime {
			return views[i].DueTime < views[j].DueTime
		}
		return views[i].Title < views[j].Title
	})
}

// SortEvents orders events ascending by (date, start time, title), with
// every dateless event after every dated one.
func SortEvents(events []model.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.HasDate != b.HasDate {
			return a.HasDate
		}
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return a.Title < b.Title
	})
}

// FutureEvents keeps events dated today or later, plus all dateless
// events, sorted with SortEvents.
func FutureEvents(events []model.Event, today time.Time) []model.Event {
	cutoff := today.Format("2006-01-02")
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if !ev.HasDate || ev.Date >= cutoff {
			out = append(out, ev)
		}
	}
	SortEvents(out)
	return out
}

// WeekEvents keeps dated events inside the rolling week window, sorted.
func WeekEvents(events []model.Event, today time.Time) []model.Event {
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if !ev.HasDate {
			continue
		}
		d, ok := temporal.ParseDate(ev.Date)
		if !ok {
			continue
		}
		if InWeekWindow(d, today) {
			out = append(out, ev)
		}
	}
	SortEvents(out)
	return out
}

// MonthCell is one grid position: either a blank pad cell or a calendar
// day carrying its events.
type MonthCell struct {
	Day            int           `json:"day,omitempty"`
	Date           string        `json:"date,omitempty"`
	IsCurrentMonth bool          `json:"is_current_month"`
	IsToday        bool          `json:"is_today"`
	Events         []model.Event `json:"events,omitempty"`
}

// MonthView is the calendar-grid view model for one month.
type MonthView struct {
	Year     int         `json:"year"`
	Month    int         `json:"month"`
	Label    string      `json:"label"`
	Weekdays []string    `json:"weekdays"`
	Cells    []MonthCell `json:"cells"`
}

var weekdayLabels = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// MonthGrid builds a Monday-first 7-column grid for the given month:
// leading blanks up to the first weekday, one cell per calendar day with
// its events attached, trailing blanks padding to a multiple of 7.
func MonthGrid(year int, month time.Month, events []model.Event, today time.Time) MonthView {
	byDate := make(map[string][]model.Event)
	for _, ev := range events {
		if !ev.HasDate {
			continue
		}
		byDate[ev.Date] = append(byDate[ev.Date], ev)
	}
	for _, dayEvents := range byDate {
		SortEvents(dayEvents)
	}

	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	daysInMonth := first.AddDate(0, 1, -1).Day()
	// Monday-first column index of day 1.
	leading := (int(first.Weekday()) + 6) % 7

	cells := make([]MonthCell, 0, leading+daysInMonth+6)
	for i := 0; i < leading; i++ {
		cells = append(cells, MonthCell{})
	}
	todayStr := today.Format("2006-01-02")
	for day := 1; day <= daysInMonth; day++ {
		date := time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
		cells = append(cells, MonthCell{
			Day:            day,
			Date:           date,
			IsCurrentMonth: true,
			IsToday:        date == todayStr,
			Events:         byDate[date],
		})
	}
	for len(cells)%7 != 0 {
		cells = append(cells, MonthCell{})
	}

	return MonthView{
		Year:     year,
		Month:    int(month),
		Label:    first.Format("January 2006"),
		Weekdays: weekdayLabels,
		Cells:    cells,
	}
}
