// Package highlight picks a bounded, diversified subset of upcoming
// events for compact "what's next" display. A naive chronological top-N
// would often be dominated by one course's back-to-back lectures; the
// selector guarantees the nearest deadline and workshop still surface.
package highlight

import (
	"studycal/internal/bucket"
	"studycal/internal/model"
)

// Select takes a time-ascending future event list (bucket.FutureEvents
// output) and returns at most limit events: at most one upcoming
// hand-in/exam, then at most one workshop, then at most one lecture per
// distinct course, then chronological fill. The result is re-sorted by
// start time ascending.
func Select(events []model.Event, limit int) []model.Event {
	if limit <= 0 || len(events) == 0 {
		return []model.Event{}
	}

	picked := make([]model.Event, 0, limit)
	selected := make(map[string]bool, limit)

	take := func(ev model.Event) {
		picked = append(picked, ev)
		selected[ev.ID] = true
	}

	// 1. Nearest hand-in or exam.
	for _, ev := range events {
		if ev.Category == model.CategoryHandIn || ev.Category == model.CategoryExam {
			take(ev)
			break
		}
	}

	// 2. Nearest workshop, if a slot remains.
	if len(picked) < limit {
		for _, ev := range events {
			if ev.Category == model.CategoryWorkshop && !selected[ev.ID] {
				take(ev)
				break
			}
		}
	}

	// 3. Nearest lecture per distinct course, while slots remain.
	lectureCourses := make(map[string]bool)
	for _, ev := range events {
		if len(picked) >= limit {
			break
		}
		if ev.Category != model.CategoryLecture || selected[ev.ID] {
			continue
		}
		if lectureCourses[ev.CourseSlug] {
			continue
		}
		lectureCourses[ev.CourseSlug] = true
		take(ev)
	}

	// 4. Chronological fill.
	for _, ev := range events {
		if len(picked) >= limit {
			break
		}
		if !selected[ev.ID] {
			take(ev)
		}
	}

	bucket.SortEvents(picked)
	if len(picked) > limit {
		picked = picked[:limit]
	}
	return picked
}
