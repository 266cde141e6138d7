// Package flow implements the booking conversation state machine.
//
// This file handles the four information-gathering steps of the
// new-appointment sub-flow: name, date, time, reason.
package flow

import (
	"context"
	"log/slog"
	"time"

	"github.com/BTreeMap/BookingPipe/internal/models"
	"github.com/BTreeMap/BookingPipe/internal/nlp"
)

// handleNameStep stores the patient's name and moves on to the date.
func (e *Engine) handleNameStep(ctx context.Context, state models.ConversationState, message, user string) StepResult {
	if message == "" {
		e.send(ctx, user, MsgAskName)
		return StepResult{Success: false, NewState: &state}
	}

	next := state
	next.Name = capitalize(message)
	next.Step = models.StepAwaitingDate
	slog.Info("Engine recorded name", "user", user, "name", next.Name)

	e.send(ctx, user, askDateMessage(next.Name))
	return StepResult{Success: true, NewState: &next}
}

// validateDateInput runs the shared date checks: parseable, not in the
// past, and on a day the doctor works. It returns the ISO date and derived
// weekday, or a reply explaining the rejection.
func (e *Engine) validateDateInput(message string) (isoDate, weekday, rejection string) {
	parsed, ok := e.parser.ParseDate(message, time.Now())
	if !ok {
		return "", "", MsgDateError
	}

	if parsed.Before(e.parser.Today()) {
		return "", "", MsgPastDate
	}

	isoDate = nlp.ISODate(parsed)
	weekday, err := e.parser.WeekdayOf(isoDate)
	if err != nil {
		slog.Error("Engine failed to derive weekday from parsed date", "error", err, "date", isoDate)
		return "", "", MsgDateError
	}

	if !e.schedule.WorksOn(weekday) {
		return "", "", closedDayMessage(weekday)
	}
	return isoDate, weekday, ""
}

// handleDateStep stores a valid date (and its cached weekday) and moves on
// to the time, showing that day's office hours.
func (e *Engine) handleDateStep(ctx context.Context, state models.ConversationState, message, user string) StepResult {
	isoDate, weekday, rejection := e.validateDateInput(message)
	if rejection != "" {
		e.send(ctx, user, rejection)
		return StepResult{Success: false, NewState: &state}
	}

	next := state
	next.Date = isoDate
	next.Weekday = weekday
	next.Step = models.StepAwaitingTime
	slog.Info("Engine recorded date", "user", user, "date", isoDate, "weekday", weekday)

	e.send(ctx, user, e.dateAcceptedMessage(e.parser.FormatDate(isoDate), weekday))
	return StepResult{Success: true, NewState: &next}
}

// validateTimeInput runs the shared time checks: parseable, disambiguated,
// and inside the weekday's open intervals. It returns the rendered time or
// a reply explaining the rejection.
func (e *Engine) validateTimeInput(message, weekday string) (timeStr, rejection string) {
	clock, result := nlp.ParseClockTime(message)
	switch result {
	case nlp.TimeParseInvalid:
		return "", MsgTimeError
	case nlp.TimeParseNeedsMeridiem:
		return "", MsgNeedsMeridiem
	}

	if !e.schedule.IsTimeInSchedule(clock, weekday) {
		return "", e.outOfHoursMessage(weekday)
	}
	return clock.String(), ""
}

// handleTimeStep stores a valid time and moves on to the reason.
func (e *Engine) handleTimeStep(ctx context.Context, state models.ConversationState, message, user string) StepResult {
	timeStr, rejection := e.validateTimeInput(message, state.Weekday)
	if rejection != "" {
		e.send(ctx, user, rejection)
		return StepResult{Success: false, NewState: &state}
	}

	next := state
	next.Time = timeStr
	next.Step = models.StepAwaitingReason
	slog.Info("Engine recorded time", "user", user, "time", timeStr)

	e.send(ctx, user, "Finally, what is the reason for your visit?")
	return StepResult{Success: true, NewState: &next}
}

// handleReasonStep stores the reason and enters the confirmation step with
// the draft summary.
func (e *Engine) handleReasonStep(ctx context.Context, state models.ConversationState, message, user string) StepResult {
	if message == "" {
		e.send(ctx, user, MsgAskReason)
		return StepResult{Success: false, NewState: &state}
	}

	next := state
	next.Reason = message
	next.Step = models.StepConfirming
	slog.Info("Engine recorded reason", "user", user)

	e.send(ctx, user, e.renderSummary(next, summaryDraft))
	return StepResult{Success: true, NewState: &next}
}
