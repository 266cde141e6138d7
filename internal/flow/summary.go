// Package flow implements the booking conversation state machine.
//
// This file renders the appointment summary shown when entering the
// confirmation step and after every successful modification or save.
package flow

import (
	"fmt"

	"github.com/BTreeMap/BookingPipe/internal/models"
	"github.com/BTreeMap/BookingPipe/internal/nlp"
)

// summaryPhase selects the header and footer phrasing of a summary.
type summaryPhase int

const (
	// summaryDraft is the pre-confirmation rendering with the decision menu.
	summaryDraft summaryPhase = iota
	// summaryConfirmed is the post-save rendering.
	summaryConfirmed
)

// renderSummary composes the appointment summary from the state's weekday,
// formatted date, time, and reason. The vocabulary switches between "new"
// and "rescheduled" when the state references a pre-existing appointment.
func (e *Engine) renderSummary(state models.ConversationState, phase summaryPhase) string {
	date := state.Date
	timeStr := state.Time
	reason := state.Reason
	if a := state.ActiveAppointment; a != nil {
		if date == "" {
			date = a.Date
		}
		if timeStr == "" {
			timeStr = nlp.FormatTime24(a.Time)
		}
		if reason == "" {
			reason = a.Reason
		}
	}

	weekday := state.Weekday
	if weekday == "" {
		weekday = "day not set"
		if wd, err := e.parser.WeekdayOf(date); err == nil {
			weekday = wd
		}
	}

	header := "📋 Your appointment so far:"
	if phase == summaryConfirmed {
		if state.ActiveAppointment != nil {
			header = "✅ Your appointment has been rescheduled:"
		} else {
			header = "✅ Your appointment is booked:"
		}
	}

	body := fmt.Sprintf(`%s
📅 %s %s
🕒 %s
📌 %s`, header, weekday, e.parser.FormatDate(date), timeStr, reason)

	if phase == summaryConfirmed {
		return body + "\n\nSee you then! If you need anything else, send *start*."
	}
	return body + `

Would you like to change anything?
1️⃣ Date
2️⃣ Time
3️⃣ Reason
4️⃣ Confirm
5️⃣ Cancel`
}

// existingAppointmentMenu renders the greeting shown when "start" finds a
// pending appointment on file.
func (e *Engine) existingAppointmentMenu(appt models.Appointment) string {
	weekday := ""
	if wd, err := e.parser.WeekdayOf(appt.Date); err == nil {
		weekday = wd
	}
	return fmt.Sprintf(`👋 Hello! I'm your virtual assistant for medical appointments.

🧾 You have the following appointment on file:
📅 %s %s
🕒 %s
📌 Reason: %s

What would you like to do?
1️⃣ Reschedule this appointment
2️⃣ Book a new one
3️⃣ Cancel the appointment
4️⃣ Exit`, weekday, e.parser.FormatDate(appt.Date), nlp.FormatTime24(appt.Time), appt.Reason)
}
