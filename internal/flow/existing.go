// Package flow implements the booking conversation state machine.
//
// This file handles the menu offered when "start" finds a pending
// appointment already on file.
package flow

import (
	"context"
	"log/slog"

	"github.com/BTreeMap/BookingPipe/internal/models"
)

// handleExistingAppointmentMenu routes the patient's choice for a
// pre-existing appointment: reschedule it, book a fresh one, cancel it, or
// leave.
func (e *Engine) handleExistingAppointmentMenu(ctx context.Context, state models.ConversationState, message, user string) StepResult {
	switch {
	case matchOption(message, "1", "reschedule", "reschedule appointment"):
		return e.startReschedule(ctx, state, user)
	case matchOption(message, "2", "new", "new appointment", "book", "book new appointment"):
		return e.startFresh(ctx, user)
	case matchOption(message, "3", "cancel", "cancel appointment"):
		return e.cancelExisting(ctx, state, user)
	case matchOption(message, "4", "exit", "quit", "bye"):
		slog.Info("Engine patient exiting", "user", user)
		e.supervisor.Disarm(user)
		e.sessions.Delete(user)
		e.send(ctx, user, MsgFarewell)
		return StepResult{Success: true, Finished: true}
	default:
		e.send(ctx, user, MsgExistingMenuReprompt)
		return StepResult{Success: false, NewState: &state}
	}
}

// startReschedule preloads the stored appointment's fields into the state
// and enters the modification sub-flow at the date step.
func (e *Engine) startReschedule(ctx context.Context, state models.ConversationState, user string) StepResult {
	slog.Info("Engine starting reschedule", "user", user, "appointment_id", state.ActiveAppointment.ID)

	next := e.preloadFromAppointment(state)
	next.Step = models.StepModifyingDate

	e.send(ctx, user, MsgAskNewDate)
	return StepResult{Success: true, NewState: &next}
}

// startFresh discards the menu state and begins a brand-new booking.
func (e *Engine) startFresh(ctx context.Context, user string) StepResult {
	slog.Info("Engine starting fresh booking from menu", "user", user)

	next := models.ConversationState{Step: models.StepAwaitingName}
	e.send(ctx, user, MsgNewAppointmentStart)
	return StepResult{Success: true, NewState: &next}
}

// cancelExisting cancels the stored appointment by id. The session ends
// whether or not the cancellation succeeded; a failure is reported to the
// patient, not retried.
func (e *Engine) cancelExisting(ctx context.Context, state models.ConversationState, user string) StepResult {
	apptID := state.ActiveAppointment.ID
	slog.Info("Engine cancelling appointment", "user", user, "appointment_id", apptID)

	cancelled, err := e.store.CancelByID(apptID)
	if err != nil {
		slog.Error("Engine cancel failed", "error", err, "user", user, "appointment_id", apptID)
		e.send(ctx, user, MsgCancelFailed)
		return StepResult{Success: false, NewState: &state}
	}

	e.supervisor.Disarm(user)
	e.sessions.Delete(user)

	if cancelled {
		e.send(ctx, user, MsgAppointmentCancelled)
	} else {
		e.send(ctx, user, MsgCancelFailed)
	}
	return StepResult{Success: true, Finished: true}
}
