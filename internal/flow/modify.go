// Package flow implements the booking conversation state machine.
//
// This file handles the modification sub-flow reachable from the
// confirmation menu, and the confirmation step itself, including the final
// create-or-reschedule persistence.
package flow

import (
	"context"
	"log/slog"

	"github.com/BTreeMap/BookingPipe/internal/models"
	"github.com/BTreeMap/BookingPipe/internal/nlp"
)

// handleModifyDate stores a valid replacement date. If the previously
// chosen time no longer fits the new weekday's hours the flow detours to
// collect a new time; otherwise it returns to confirmation.
func (e *Engine) handleModifyDate(ctx context.Context, state models.ConversationState, message, user string) StepResult {
	isoDate, weekday, rejection := e.validateDateInput(message)
	if rejection != "" {
		e.send(ctx, user, rejection)
		return StepResult{Success: false, NewState: &state}
	}

	next := state
	next.Date = isoDate
	next.Weekday = weekday
	slog.Info("Engine recorded replacement date", "user", user, "date", isoDate, "weekday", weekday)

	if next.Time != "" && !e.schedule.IsTimeStringInSchedule(next.Time, weekday) {
		next.Step = models.StepModifyingHour
		e.send(ctx, user, e.timeNoLongerValidMessage(next.Time, weekday))
		return StepResult{Success: true, NewState: &next}
	}

	next.Step = models.StepConfirming
	e.send(ctx, user, e.renderSummary(next, summaryDraft))
	return StepResult{Success: true, NewState: &next}
}

// handleModifyHour stores a valid replacement time and returns to
// confirmation.
func (e *Engine) handleModifyHour(ctx context.Context, state models.ConversationState, message, user string) StepResult {
	timeStr, rejection := e.validateTimeInput(message, state.Weekday)
	if rejection != "" {
		e.send(ctx, user, rejection)
		return StepResult{Success: false, NewState: &state}
	}

	next := state
	next.Time = timeStr
	next.Step = models.StepConfirming
	slog.Info("Engine recorded replacement time", "user", user, "time", timeStr)

	e.send(ctx, user, e.renderSummary(next, summaryDraft))
	return StepResult{Success: true, NewState: &next}
}

// handleModifyReason stores a non-empty replacement reason and returns to
// confirmation.
func (e *Engine) handleModifyReason(ctx context.Context, state models.ConversationState, message, user string) StepResult {
	if message == "" {
		e.send(ctx, user, MsgAskReason)
		return StepResult{Success: false, NewState: &state}
	}

	next := state
	next.Reason = message
	next.Step = models.StepConfirming
	slog.Info("Engine recorded replacement reason", "user", user)

	e.send(ctx, user, e.renderSummary(next, summaryDraft))
	return StepResult{Success: true, NewState: &next}
}

// handleConfirmation routes the confirmation-menu choice: jump back to a
// modification step, persist, or abandon.
func (e *Engine) handleConfirmation(ctx context.Context, state models.ConversationState, message, user string) StepResult {
	switch {
	case matchOption(message, "1", "date", "change date"):
		next := state
		next.Step = models.StepModifyingDate
		e.send(ctx, user, MsgAskDateFromMenu)
		return StepResult{Success: true, NewState: &next}

	case matchOption(message, "2", "time", "hour", "change time"):
		next := state
		next.Step = models.StepModifyingHour
		e.send(ctx, user, MsgAskTimeFromMenu)
		return StepResult{Success: true, NewState: &next}

	case matchOption(message, "3", "reason", "change reason"):
		next := state
		next.Step = models.StepModifyingReason
		e.send(ctx, user, MsgAskReasonFromMenu)
		return StepResult{Success: true, NewState: &next}

	case matchOption(message, "4", "confirm", "confirm appointment", "yes", "y"):
		return e.confirmAppointment(ctx, state, user)

	case matchOption(message, "5", "cancel", "cancel appointment", "abort"):
		slog.Info("Engine patient abandoned booking", "user", user)
		e.supervisor.Disarm(user)
		e.sessions.Delete(user)
		e.send(ctx, user, MsgProcessCancelled)
		return StepResult{Success: true, Finished: true}

	default:
		e.send(ctx, user, MsgConfirmMenuReprompt)
		return StepResult{Success: false, NewState: &state}
	}
}

// confirmAppointment persists the appointment: a reschedule of the stored
// record when one is referenced, otherwise a fresh create. The session is
// cleared only after persistence succeeds; on failure the state stays in
// the confirmation step so the patient can retry.
func (e *Engine) confirmAppointment(ctx context.Context, state models.ConversationState, user string) StepResult {
	if appt := state.ActiveAppointment; appt != nil {
		merged := state
		if merged.Date == "" {
			merged.Date = appt.Date
		}
		if merged.Time == "" {
			merged.Time = nlp.FormatTime24(appt.Time)
		}
		if merged.Reason == "" {
			merged.Reason = appt.Reason
		}

		slog.Info("Engine rescheduling appointment", "user", user, "appointment_id", appt.ID)
		ok, err := e.store.RescheduleByID(appt.ID, merged.Date, merged.Time, merged.Reason)
		if err != nil || !ok {
			slog.Error("Engine reschedule failed", "error", err, "user", user, "appointment_id", appt.ID)
			e.send(ctx, user, MsgConfirmFailed)
			return StepResult{Success: false, NewState: &state}
		}

		e.supervisor.Disarm(user)
		e.sessions.Delete(user)
		if wd, derr := e.parser.WeekdayOf(merged.Date); derr == nil {
			merged.Weekday = wd
		}
		e.send(ctx, user, e.renderSummary(merged, summaryConfirmed))
		slog.Info("Engine conversation finished", "user", user, "outcome", "rescheduled")
		return StepResult{Success: true, Finished: true}
	}

	record := models.Appointment{
		Name:   state.Name,
		Phone:  user,
		Date:   state.Date,
		Time:   state.Time,
		Reason: state.Reason,
		Status: models.AppointmentStatusPending,
	}
	slog.Info("Engine creating appointment", "user", user, "date", record.Date, "time", record.Time)

	if _, err := e.store.CreateAppointment(record); err != nil {
		slog.Error("Engine create failed", "error", err, "user", user)
		e.send(ctx, user, MsgConfirmFailed)
		return StepResult{Success: false, NewState: &state}
	}

	e.supervisor.Disarm(user)
	e.sessions.Delete(user)
	e.send(ctx, user, e.renderSummary(state, summaryConfirmed))
	slog.Info("Engine conversation finished", "user", user, "outcome", "booked")
	return StepResult{Success: true, Finished: true}
}
