// Package schedule loads the static/semi-static schedule entries and
// expands recurring series (weekly lecture blocks) into concrete dated
// entries within the aggregation window.
package schedule

import (
	_ "embed"
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/teambition/rrule-go"

	appLog "studycal/internal/log"
	"studycal/internal/model"
	"studycal/internal/temporal"
)

//go:embed default_schedule.json
var defaultScheduleJSON []byte

// maxOccurrencesPerSeries caps RRULE expansion so a malformed unbounded
// rule cannot flood the views.
const maxOccurrencesPerSeries = 200

// Load reads schedule entries from the given JSON file. An empty path,
// unreadable file, or non-array content falls back to the embedded
// default schedule with a warning; a study schedule should still render
// when the override file is broken.
func Load(path string) []model.ScheduleEntry {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			appLog.Warn("schedule file unreadable; using embedded default", "path", path, "reason", err)
		} else if entries, ok := decode(data); ok {
			return entries
		} else {
			appLog.Warn("schedule file is not a JSON array of entries; using embedded default", "path", path)
		}
	}

	entries, ok := decode(defaultScheduleJSON)
	if !ok {
		appLog.Error("embedded default schedule is invalid", errors.New("bad embedded JSON"))
		return nil
	}
	return entries
}

func decode(data []byte) ([]model.ScheduleEntry, bool) {
	var entries []model.ScheduleEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, false
	}
	return entries, true
}

// ExpandSeries replaces every entry carrying an RRULE with its concrete
// occurrences inside [rangeStart, rangeEnd] (inclusive), anchored at the
// entry's date and start time in the clock's zone. Entries without a
// rule pass through unchanged; a series without a parseable anchor date
// or with a bad rule is kept as-is so the normalizer can still surface
// it as a dateless entry.
func ExpandSeries(entries []model.ScheduleEntry, clock temporal.Clock, rangeStart, rangeEnd time.Time) []model.ScheduleEntry {
	out := make([]model.ScheduleEntry, 0, len(entries))

	for _, entry := range entries {
		if entry.RRule == "" {
			out = append(out, entry)
			continue
		}

		anchorDate, ok := temporal.ParseDate(entry.Date)
		if !ok {
			appLog.Warn("recurring schedule entry has no anchor date", "title", entry.Title)
			out = append(out, entry)
			continue
		}

		rule, err := rrule.StrToRRule(entry.RRule)
		if err != nil {
			appLog.Error("failed to parse schedule RRULE", err, "title", entry.Title, "rrule", entry.RRule)
			out = append(out, entry)
			continue
		}

		start, _ := temporal.SplitTimeRange(entry.Time)
		hour, minute := 0, 0
		if t, terr := time.Parse("15:04", start); terr == nil {
			hour, minute = t.Hour(), t.Minute()
		}
		anchor := time.Date(anchorDate.Year(), anchorDate.Month(), anchorDate.Day(),
			hour, minute, 0, 0, clock.Loc)
		rule.DTStart(anchor)

		occTimes := rule.Between(rangeStart.In(clock.Loc), rangeEnd.In(clock.Loc), true)
		if len(occTimes) > maxOccurrencesPerSeries {
			appLog.Warn("schedule series truncated",
				"title", entry.Title, "cap", maxOccurrencesPerSeries)
			occTimes = occTimes[:maxOccurrencesPerSeries]
		}

		for _, occ := range occTimes {
			instance := entry
			instance.Date = occ.In(clock.Loc).Format("2006-01-02")
			instance.RRule = ""
			out = append(out, instance)
		}
	}
	return out
}
