// Package nlp converts free-form natural-language date and time phrases
// into normalized calendar dates and clock times.
//
// This file implements the clock-time grammar with the AM/PM disambiguation
// gate: a bare "3:00" is not guessed at, it is bounced back to the patient.
package nlp

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/BTreeMap/BookingPipe/internal/models"
)

// TimeParseResult classifies the outcome of ParseClockTime.
type TimeParseResult int

const (
	// TimeParseOK means a fully disambiguated clock time was extracted.
	TimeParseOK TimeParseResult = iota
	// TimeParseNeedsMeridiem means an hour was extracted but the text carried
	// no AM/PM or day-period cue. This is a disambiguation gate, not a failure.
	TimeParseNeedsMeridiem
	// TimeParseInvalid means no usable clock time was found.
	TimeParseInvalid
)

var (
	meridiemDots = strings.NewReplacer("a.m.", "am", "p.m.", "pm", "a.m", "am", "p.m", "pm")

	// periodCueRegex detects AM/PM markers and day-period words. Its presence
	// decides whether the meridiem gate opens at all.
	periodCueRegex = regexp.MustCompile(`\b(am|pm|morning|afternoon|evening|night|noon|midday|midnight)\b`)

	// clockRegex extracts an hour with optional minutes and an optional
	// explicit AM/PM marker, e.g. "3", "3:30", "3 pm", "15:00".
	clockRegex = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\b`)
)

// ParseClockTime extracts a normalized 12-hour clock time from free text.
// Spelled-out hours are normalized first ("five" -> "5"). Hours 1-11 with an
// afternoon/evening/PM cue gain 12; hour 12 with an AM cue becomes midnight.
// Output is always re-normalized to a 12-hour clock with an explicit meridiem.
func ParseClockTime(text string) (models.ClockTime, TimeParseResult) {
	cleaned := meridiemDots.Replace(strings.ToLower(text))
	normalized := NormalizeHourWords(cleaned)

	match := clockRegex.FindStringSubmatch(normalized)
	if match == nil {
		return models.ClockTime{}, TimeParseInvalid
	}

	hour, _ := strconv.Atoi(match[1])
	minute := 0
	if match[2] != "" {
		minute, _ = strconv.Atoi(match[2])
	}
	if hour > 23 || minute > 59 {
		return models.ClockTime{}, TimeParseInvalid
	}

	// Hours 13-23 are already unambiguous 24-hour readings.
	cue := periodCueRegex.FindString(cleaned)
	if cue == "" && hour <= 12 {
		return models.ClockTime{}, TimeParseNeedsMeridiem
	}

	meridiem := match[3]
	if meridiem == "" {
		meridiem = cueMeridiem(cue)
	}

	hour24 := hour
	if hour <= 12 {
		if meridiem == "pm" && hour < 12 {
			hour24 = hour + 12
		}
		if meridiem == "am" && hour == 12 {
			hour24 = 0
		}
	}

	return clockFrom24(hour24, minute), TimeParseOK
}

// cueMeridiem maps a day-period word to its AM/PM designation.
func cueMeridiem(cue string) string {
	switch cue {
	case "morning", "midnight":
		return "am"
	default:
		// afternoon, evening, night, noon, midday
		return "pm"
	}
}

// clockFrom24 re-normalizes a 24-hour reading into the 12-hour output form.
func clockFrom24(hour24, minute int) models.ClockTime {
	meridiem := models.MeridiemAM
	if hour24 >= 12 {
		meridiem = models.MeridiemPM
	}
	hour12 := hour24 % 12
	if hour12 == 0 {
		hour12 = 12
	}
	return models.ClockTime{Hour12: hour12, Minute: minute, Meridiem: meridiem}
}

var time24Regex = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::\d{2})?$`)

// FormatTime24 re-renders a stored 24-hour time ("15:00" or "15:00:00") in
// the 12-hour form used in replies. Strings already carrying AM/PM, and
// strings that cannot be parsed, are returned unchanged.
func FormatTime24(timeStr string) string {
	if strings.Contains(timeStr, "AM") || strings.Contains(timeStr, "PM") {
		return timeStr
	}
	match := time24Regex.FindStringSubmatch(strings.TrimSpace(timeStr))
	if match == nil {
		return timeStr
	}
	hour, _ := strconv.Atoi(match[1])
	minute, _ := strconv.Atoi(match[2])
	if hour > 23 || minute > 59 {
		return timeStr
	}
	return clockFrom24(hour, minute).String()
}
