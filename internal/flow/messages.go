// Package flow implements the booking conversation state machine.
//
// This file collects the canned reply texts used across the dialogue so the
// step handlers stay focused on transition logic.
package flow

import (
	"fmt"
)

// Fixed reply texts.
const (
	// MsgNotUnderstood is the reply for input outside any active session.
	MsgNotUnderstood = "❓ I didn't understand your message. If you want to book an appointment, send 'start' to begin."
	// MsgGenericError is the best-effort reply for unexpected internal failures.
	MsgGenericError = "❌ Something went wrong. Please send 'start' to begin again, or contact the office directly."
	// MsgDateError asks for a date in an understandable form.
	MsgDateError = "❌ I couldn't understand that date. Try something like \"10 April 2026\" or \"next monday\"."
	// MsgPastDate rejects dates before today.
	MsgPastDate = "❌ You can't book an appointment on a past date. Please choose another date."
	// MsgTimeError asks for a time in an understandable form.
	MsgTimeError = "❌ I couldn't understand that time. Try something like \"10:00 AM\" or \"6 in the evening\"."
	// MsgNeedsMeridiem asks the patient to disambiguate AM/PM.
	MsgNeedsMeridiem = "⏰ Please tell me whether you mean the *morning* or the *afternoon/evening*. For example: \"9 in the morning\" or \"9 in the evening\"."
	// MsgStoreError tells the patient persistence is unavailable.
	MsgStoreError = "❌ There was a problem reaching the appointment database. Please try again later."
	// MsgAskName reprompts for an empty name.
	MsgAskName = "❌ Please tell me your name to continue."
	// MsgAskReason reprompts for an empty reason.
	MsgAskReason = "❌ Please tell me the reason for your visit to continue."
	// MsgInactivityWarning is sent when the warning timer fires.
	MsgInactivityWarning = "⏳ You seem to be inactive. If you don't reply within 2 minutes this chat will close automatically. Send 'resume' to pick up where you left off, or 'start' to begin again."
	// MsgInactivityTimeout is sent when the session is suspended.
	MsgInactivityTimeout = "⏳ You've been inactive for a while. To continue with your appointment:\n1️⃣ Send \"resume\" to pick up where you left off\n2️⃣ Send \"start\" to begin again"
	// MsgNoResumableSession is sent on "resume" with nothing to resume.
	MsgNoResumableSession = "You have no recent conversation to resume. Please send 'start' to begin."
	// MsgResumeExpired is sent on "resume" after the grace window passed.
	MsgResumeExpired = "⏳ Too much time has passed, so we'll have to start over. Please send 'start'."
	// MsgExistingMenuReprompt reprompts the existing-appointment menu.
	MsgExistingMenuReprompt = "❗ That's not a valid option. Please reply with:\n1️⃣ Reschedule\n2️⃣ New appointment\n3️⃣ Cancel\n4️⃣ Exit"
	// MsgConfirmMenuReprompt reprompts the confirmation menu.
	MsgConfirmMenuReprompt = "❗ Please reply with one of the menu options:\n1️⃣ Date\n2️⃣ Time\n3️⃣ Reason\n4️⃣ Confirm\n5️⃣ Cancel"
	// MsgAskNewDate asks for a date during rescheduling.
	MsgAskNewDate = "📅 What new date would you like for your appointment?"
	// MsgAskDateFromMenu asks for a date after choosing "date" in confirmation.
	MsgAskDateFromMenu = "📅 What date would you like for your appointment?"
	// MsgAskTimeFromMenu asks for a time after choosing "time" in confirmation.
	MsgAskTimeFromMenu = "🕒 What time would you like for your appointment?"
	// MsgAskReasonFromMenu asks for a reason after choosing "reason" in confirmation.
	MsgAskReasonFromMenu = "📝 What is the reason for your visit?"
	// MsgNewAppointmentStart restarts the new-appointment flow from the menu.
	MsgNewAppointmentStart = "📋 Let's book a new appointment.\nWhat's your name?"
	// MsgAppointmentCancelled confirms a persisted cancellation.
	MsgAppointmentCancelled = "❌ Your appointment has been cancelled. If you'd like to book another one, send *start*."
	// MsgCancelFailed reports a failed persisted cancellation.
	MsgCancelFailed = "⚠️ I couldn't cancel your appointment. Please try again later or contact the office directly."
	// MsgFarewell says goodbye on "exit".
	MsgFarewell = "👋 Goodbye! If you need anything else, just send *start*."
	// MsgProcessCancelled confirms abandoning the flow without persisting.
	MsgProcessCancelled = "❌ The booking has been cancelled. If you'd like to book an appointment, send 'start'."
	// MsgConfirmFailed reports a failed create or reschedule; the patient can
	// retry because the session stays in the confirmation step.
	MsgConfirmFailed = "❌ There was a problem saving your appointment. Please reply '4' to try again, or contact the office directly."
)

// welcomeMessage renders the greeting with the doctor's live weekly hours.
func (e *Engine) welcomeMessage() string {
	return fmt.Sprintf(`👋 Hello! I'm the virtual assistant for booking your medical appointments.

📅 You can book an appointment by answering a few questions.
⏰ The doctor's hours are:
%s

💬 Let's get started... What's your name?`, e.schedule.DescribeWeek())
}

// askDateMessage thanks the patient by name and asks for a date.
func askDateMessage(name string) string {
	return fmt.Sprintf("Thanks, %s. What date would you like for your appointment? (For example: \"10 April 2026\" or \"next monday\")", name)
}

// dateAcceptedMessage confirms the chosen date and shows that day's hours
// before asking for a time.
func (e *Engine) dateAcceptedMessage(formattedDate, weekday string) string {
	return fmt.Sprintf(`The selected date is *%s (%s)*.
The office hours for that day are:
%s

What time would you like?`, formattedDate, weekday, e.schedule.Describe(weekday))
}

// closedDayMessage rejects a date falling on a day the doctor does not work.
func closedDayMessage(weekday string) string {
	return fmt.Sprintf("❌ Sorry, the doctor does not work on %s. Please choose another date.", weekday)
}

// outOfHoursMessage rejects a time outside the weekday's open intervals and
// lists the valid ones.
func (e *Engine) outOfHoursMessage(weekday string) string {
	return fmt.Sprintf(`❌ That time is outside the office hours. The hours for %s are:
%s

Please choose another time.`, weekday, e.schedule.Describe(weekday))
}

// timeNoLongerValidMessage explains that the kept time does not fit the new
// date's hours during rescheduling.
func (e *Engine) timeNoLongerValidMessage(timeStr, weekday string) string {
	return fmt.Sprintf(`⚠️ The current time (%s) is not available on %s.

🕒 Available hours:
%s

What time would you like?`, timeStr, weekday, e.schedule.Describe(weekday))
}
