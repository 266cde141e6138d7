// Package flow implements the booking conversation state machine.
//
// This file handles the global "start" and "resume" commands, which are
// recognized before any state lookup and regardless of session existence.
package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/BookingPipe/internal/models"
	"github.com/BTreeMap/BookingPipe/internal/nlp"
)

// handleStart (re)initializes the conversation. Any active or inactive
// session and any pending timers are cleared first; if the patient already
// has a pending appointment on file the flow enters the existing-appointment
// menu instead of the name step.
func (e *Engine) handleStart(ctx context.Context, user string) string {
	e.supervisor.Disarm(user)
	e.sessions.Delete(user)
	e.sessions.DeleteInactive(user)
	slog.Info("Engine (re)starting flow", "user", user)

	appt, err := e.store.FindPendingByPhone(user)
	if err != nil {
		slog.Error("Engine failed to look up pending appointment", "error", err, "user", user)
		e.send(ctx, user, MsgStoreError)
		return StatusError
	}

	if appt != nil {
		slog.Info("Engine found pending appointment", "user", user, "appointment_id", appt.ID)
		e.sessions.Set(user, models.ConversationState{
			Step:              models.StepExistingAppointmentMenu,
			ActiveAppointment: appt,
		})
		e.supervisor.Arm(user)
		e.send(ctx, user, e.existingAppointmentMenu(*appt))
		return StatusExistingMenu
	}

	e.sessions.Set(user, models.ConversationState{Step: models.StepAwaitingName})
	e.supervisor.Arm(user)
	e.send(ctx, user, e.welcomeMessage())
	return StatusWelcomeSent
}

// handleResume restores a suspended session if one exists within its grace
// window, re-arms the timers, and tells the patient where they left off.
func (e *Engine) handleResume(ctx context.Context, user string) string {
	state, result := e.sessions.Resume(user)
	switch result {
	case ResumeNotFound:
		slog.Debug("Engine resume found nothing", "user", user)
		e.send(ctx, user, MsgNoResumableSession)
		return StatusNoConversation
	case ResumeExpired:
		slog.Info("Engine resume found expired session", "user", user)
		e.send(ctx, user, MsgResumeExpired)
		return StatusResumeExpired
	}

	e.sessions.Set(user, state)
	e.supervisor.Disarm(user)
	e.supervisor.Arm(user)
	slog.Info("Engine resumed conversation", "user", user, "step", state.Step)

	e.send(ctx, user, e.continuationMessage(state))
	return StatusResumed
}

// continuationMessage keys the "continuing where you left off" reply on the
// restored step.
func (e *Engine) continuationMessage(state models.ConversationState) string {
	const prefix = "👌 Let's continue where you left off.\n"
	switch state.Step {
	case models.StepAwaitingDate:
		return prefix + "You were choosing a date for your appointment.\nWhat date would you like?"
	case models.StepAwaitingTime:
		return prefix + fmt.Sprintf("You had chosen %s.\nWhat time would you like?", e.parser.FormatDate(state.Date))
	case models.StepAwaitingReason:
		return prefix + "You had chosen a date and time. Now I just need the reason for your visit."
	case models.StepConfirming:
		return e.renderSummary(state, summaryDraft)
	case models.StepExistingAppointmentMenu:
		if state.ActiveAppointment != nil {
			return e.existingAppointmentMenu(*state.ActiveAppointment)
		}
		return prefix + "Let's continue with your appointment."
	case models.StepModifyingDate:
		return prefix + MsgAskNewDate
	case models.StepModifyingHour:
		return prefix + MsgAskTimeFromMenu
	case models.StepModifyingReason:
		return prefix + MsgAskReasonFromMenu
	default:
		return prefix + "Let's continue with your appointment."
	}
}

// nameOrFallback returns a usable patient name when preloading reschedule
// data from a stored appointment.
func nameOrFallback(name string) string {
	if name == "" {
		return "there"
	}
	return name
}

// preloadFromAppointment copies a stored appointment's fields into the
// conversation state ahead of the modification sub-flow, re-deriving the
// cached weekday from the stored date.
func (e *Engine) preloadFromAppointment(state models.ConversationState) models.ConversationState {
	appt := state.ActiveAppointment
	next := state
	next.Name = nameOrFallback(appt.Name)
	next.Date = appt.Date
	next.Time = nlp.FormatTime24(appt.Time)
	next.Reason = appt.Reason
	if wd, err := e.parser.WeekdayOf(appt.Date); err == nil {
		next.Weekday = wd
	} else {
		slog.Error("Engine could not derive weekday from stored appointment", "error", err, "date", appt.Date)
		next.Weekday = ""
	}
	return next
}
