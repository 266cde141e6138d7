// Package models defines conversation state structures for BookingPipe flows.
package models

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Step identifies the current position in the booking dialogue state machine.
// The nine constants below are the only valid values; anything else is an
// invariant violation, not a new state.
type Step string

const (
	// StepAwaitingName collects the patient's name.
	StepAwaitingName Step = "awaiting_name"
	// StepAwaitingDate collects the appointment date.
	StepAwaitingDate Step = "awaiting_date"
	// StepAwaitingTime collects the appointment time.
	StepAwaitingTime Step = "awaiting_time"
	// StepAwaitingReason collects the reason for the visit.
	StepAwaitingReason Step = "awaiting_reason"
	// StepExistingAppointmentMenu offers actions on a pre-existing pending appointment.
	StepExistingAppointmentMenu Step = "existing_appointment_menu"
	// StepModifyingDate collects a replacement date from the confirmation menu.
	StepModifyingDate Step = "modifying_date"
	// StepModifyingHour collects a replacement time from the confirmation menu.
	StepModifyingHour Step = "modifying_hour"
	// StepModifyingReason collects a replacement reason from the confirmation menu.
	StepModifyingReason Step = "modifying_reason"
	// StepConfirming shows the summary menu and awaits a final decision.
	StepConfirming Step = "confirming"
)

// IsValidStep reports whether s is one of the nine dialogue steps.
func IsValidStep(s Step) bool {
	switch s {
	case StepAwaitingName, StepAwaitingDate, StepAwaitingTime, StepAwaitingReason,
		StepExistingAppointmentMenu, StepModifyingDate, StepModifyingHour,
		StepModifyingReason, StepConfirming:
		return true
	default:
		return false
	}
}

// ConversationState holds a patient's in-progress booking conversation.
// It is treated as an immutable value: every transition produces a fresh
// copy that replaces the stored state wholesale. Weekday is cached from
// Date and must be recomputed whenever Date changes.
type ConversationState struct {
	Step    Step   `json:"step"`
	Name    string `json:"name,omitempty"`
	Date    string `json:"date,omitempty"`    // ISO civil date YYYY-MM-DD
	Weekday string `json:"weekday,omitempty"` // lowercase weekday name derived from Date
	Time    string `json:"time,omitempty"`    // rendered 12-hour time, e.g. "3:00 PM"
	Reason  string `json:"reason,omitempty"`
	// ActiveAppointment references a previously persisted pending appointment
	// when the patient entered the flow with one; nil otherwise.
	ActiveAppointment *Appointment `json:"active_appointment,omitempty"`
}

// InactiveSession is a suspended ConversationState eligible for resumption
// until ExpiresAt.
type InactiveSession struct {
	State     ConversationState `json:"state"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// Expired reports whether the inactive session is past its expiry at the given instant.
func (s InactiveSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Meridiem is an AM/PM designator.
type Meridiem string

const (
	// MeridiemAM marks a morning clock time.
	MeridiemAM Meridiem = "AM"
	// MeridiemPM marks an afternoon or evening clock time.
	MeridiemPM Meridiem = "PM"
)

// ClockTime is a normalized 12-hour clock time with an explicit meridiem.
type ClockTime struct {
	Hour12   int      `json:"hour12"` // 1..12
	Minute   int      `json:"minute"` // 0..59
	Meridiem Meridiem `json:"meridiem"`
}

// Minutes returns the time as minutes since midnight.
func (t ClockTime) Minutes() int {
	h := t.Hour12 % 12
	if t.Meridiem == MeridiemPM {
		h += 12
	}
	return h*60 + t.Minute
}

// String renders the time in the canonical "3:00 PM" form.
func (t ClockTime) String() string {
	return fmt.Sprintf("%d:%02d %s", t.Hour12, t.Minute, t.Meridiem)
}

var clockStringRegex = regexp.MustCompile(`^(\d{1,2}):(\d{2}) (AM|PM)$`)

// ParseClockString parses a canonical "3:00 PM" rendering back into a ClockTime.
// It is the inverse of ClockTime.String and is used for schedule interval
// boundaries and times restored from persistence.
func ParseClockString(s string) (ClockTime, error) {
	m := clockStringRegex.FindStringSubmatch(s)
	if m == nil {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidClockTime, s)
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if hour < 1 || hour > 12 || minute > 59 {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidClockTime, s)
	}
	return ClockTime{Hour12: hour, Minute: minute, Meridiem: Meridiem(m[3])}, nil
}
