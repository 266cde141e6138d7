// Package schedule holds the doctor's weekly open-interval table and
// validates clock times against it.
//
// The table is loaded once at startup and immutable thereafter. A weekday
// with no entry is a closed day.
package schedule

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BTreeMap/BookingPipe/internal/models"
	"gopkg.in/yaml.v3"
)

// Interval is a single open period within a day, with boundaries in the
// canonical 12-hour clock form ("9:00 AM").
type Interval struct {
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`
}

// Table maps lowercase weekday names to their ordered open intervals.
type Table struct {
	days map[string][]Interval
}

// Default returns the doctor's standard week: Monday through Saturday
// 9:00 AM-2:00 PM and 5:00 PM-8:00 PM, Sunday 11:00 AM-1:00 PM.
func Default() *Table {
	weekday := []Interval{
		{Start: "9:00 AM", End: "2:00 PM"},
		{Start: "5:00 PM", End: "8:00 PM"},
	}
	days := map[string][]Interval{
		"monday":    weekday,
		"tuesday":   weekday,
		"wednesday": weekday,
		"thursday":  weekday,
		"friday":    weekday,
		"saturday":  weekday,
		"sunday":    {{Start: "11:00 AM", End: "1:00 PM"}},
	}
	return &Table{days: days}
}

// Load reads a weekly schedule from a YAML file mapping weekday names to
// interval lists. Weekday keys are lowercased; a missing weekday means the
// doctor does not work that day.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Error("Schedule Load failed to read file", "error", err, "path", path)
		return nil, fmt.Errorf("failed to read schedule file %s: %w", path, err)
	}

	var raw map[string][]Interval
	if err := yaml.Unmarshal(data, &raw); err != nil {
		slog.Error("Schedule Load failed to parse YAML", "error", err, "path", path)
		return nil, fmt.Errorf("failed to parse schedule file %s: %w", path, err)
	}

	days := make(map[string][]Interval, len(raw))
	for day, intervals := range raw {
		key := strings.ToLower(strings.TrimSpace(day))
		for _, iv := range intervals {
			if _, err := models.ParseClockString(iv.Start); err != nil {
				return nil, fmt.Errorf("invalid interval start %q for %s: %w", iv.Start, key, err)
			}
			if _, err := models.ParseClockString(iv.End); err != nil {
				return nil, fmt.Errorf("invalid interval end %q for %s: %w", iv.End, key, err)
			}
		}
		days[key] = intervals
	}

	slog.Info("Schedule loaded from file", "path", path, "open_days", len(days))
	return &Table{days: days}, nil
}

// WorksOn reports whether the doctor has any open interval on the weekday.
func (t *Table) WorksOn(weekday string) bool {
	_, ok := t.days[strings.ToLower(weekday)]
	return ok
}

// HoursFor returns the ordered open intervals for a weekday, or nil for a
// closed day.
func (t *Table) HoursFor(weekday string) []Interval {
	return t.days[strings.ToLower(weekday)]
}

// IsTimeInSchedule reports whether the clock time falls inside at least one
// of the weekday's open intervals. Boundaries are inclusive on both ends;
// a weekday with no entry is closed.
func (t *Table) IsTimeInSchedule(clock models.ClockTime, weekday string) bool {
	intervals, ok := t.days[strings.ToLower(weekday)]
	if !ok {
		slog.Debug("IsTimeInSchedule closed day", "weekday", weekday)
		return false
	}

	minutes := clock.Minutes()
	for _, iv := range intervals {
		start, err := models.ParseClockString(iv.Start)
		if err != nil {
			slog.Error("IsTimeInSchedule invalid interval start", "error", err, "weekday", weekday, "start", iv.Start)
			continue
		}
		end, err := models.ParseClockString(iv.End)
		if err != nil {
			slog.Error("IsTimeInSchedule invalid interval end", "error", err, "weekday", weekday, "end", iv.End)
			continue
		}
		if minutes >= start.Minutes() && minutes <= end.Minutes() {
			return true
		}
	}
	return false
}

// IsTimeStringInSchedule validates a rendered "3:00 PM" time against the
// weekday's intervals. Unparseable times are out of schedule.
func (t *Table) IsTimeStringInSchedule(timeStr, weekday string) bool {
	clock, err := models.ParseClockString(timeStr)
	if err != nil {
		slog.Debug("IsTimeStringInSchedule unparseable time", "time", timeStr, "error", err)
		return false
	}
	return t.IsTimeInSchedule(clock, weekday)
}

// Describe renders a weekday's hours for use in a reply body.
func (t *Table) Describe(weekday string) string {
	intervals, ok := t.days[strings.ToLower(weekday)]
	if !ok {
		return fmt.Sprintf("The doctor does not work on %s.", titleDay(weekday))
	}
	lines := make([]string, 0, len(intervals))
	for _, iv := range intervals {
		lines = append(lines, fmt.Sprintf("🕒 %s - %s", iv.Start, iv.End))
	}
	return strings.Join(lines, "\n")
}

// DescribeWeek renders the full weekly table for the welcome message, in
// calendar order, skipping closed days.
func (t *Table) DescribeWeek() string {
	order := []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}
	var lines []string
	for _, day := range order {
		intervals, ok := t.days[day]
		if !ok {
			continue
		}
		parts := make([]string, 0, len(intervals))
		for _, iv := range intervals {
			parts = append(parts, fmt.Sprintf("%s - %s", iv.Start, iv.End))
		}
		lines = append(lines, fmt.Sprintf("%s: %s", titleDay(day), strings.Join(parts, " and ")))
	}
	return strings.Join(lines, "\n")
}

// titleDay capitalizes a lowercase weekday name for display.
func titleDay(day string) string {
	if day == "" {
		return day
	}
	return strings.ToUpper(day[:1]) + strings.ToLower(day[1:])
}
