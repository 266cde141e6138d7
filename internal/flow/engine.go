// Package flow implements the booking conversation state machine.
//
// This file implements the engine: step dispatch, global command handling,
// and the per-patient serialization that keeps timer callbacks and inbound
// messages from interleaving on the same state.
package flow

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/BookingPipe/internal/messaging"
	"github.com/BTreeMap/BookingPipe/internal/models"
	"github.com/BTreeMap/BookingPipe/internal/nlp"
	"github.com/BTreeMap/BookingPipe/internal/schedule"
	"github.com/BTreeMap/BookingPipe/internal/store"
)

// Webhook status tokens returned to the transport. Informational only.
const (
	StatusWelcomeSent     = "welcome_sent"
	StatusExistingMenu    = "existing_appointment_menu"
	StatusInstructionSent = "instruction_sent"
	StatusProcessed       = "message_processed"
	StatusFinished        = "conversation_finished"
	StatusProcessingError = "processing_error"
	StatusNoConversation  = "no_conversation"
	StatusResumeExpired   = "resume_expired"
	StatusResumed         = "conversation_resumed"
	StatusError           = "error"
)

// DefaultInactiveTTL is the grace window during which a suspended session
// can be resumed.
const DefaultInactiveTTL = 30 * time.Minute

// Global commands recognized before any state lookup.
const (
	commandStart  = "start"
	commandResume = "resume"
)

// StepResult is the outcome of one engine step: whether the input was
// understood, the replacement state (nil when the conversation ended), and
// whether the conversation reached a terminal outcome.
type StepResult struct {
	Success  bool
	NewState *models.ConversationState
	Finished bool
}

// EngineOpts holds configuration options for the conversation engine.
type EngineOpts struct {
	InactiveTTL time.Duration
}

// EngineOption defines a configuration option for the conversation engine.
type EngineOption func(*EngineOpts)

// WithInactiveTTL sets the grace window for suspended sessions.
func WithInactiveTTL(ttl time.Duration) EngineOption {
	return func(o *EngineOpts) { o.InactiveTTL = ttl }
}

// Engine drives the step-indexed booking dialogue. All collaborators are
// injected once at construction; the engine owns no hidden singletons.
type Engine struct {
	sessions   *SessionStore
	supervisor *InactivitySupervisor
	store      store.Store
	msg        messaging.Service
	schedule   *schedule.Table
	parser     *nlp.Parser

	inactiveTTL time.Duration
	userLocks   sync.Map // user -> *sync.Mutex
}

// NewEngine creates an Engine and wires the supervisor's warning and
// finalization callbacks to it.
func NewEngine(sessions *SessionStore, supervisor *InactivitySupervisor, st store.Store, msg messaging.Service, table *schedule.Table, parser *nlp.Parser, opts ...EngineOption) *Engine {
	cfg := EngineOpts{InactiveTTL: DefaultInactiveTTL}
	for _, opt := range opts {
		opt(&cfg)
	}

	e := &Engine{
		sessions:    sessions,
		supervisor:  supervisor,
		store:       st,
		msg:         msg,
		schedule:    table,
		parser:      parser,
		inactiveTTL: cfg.InactiveTTL,
	}
	supervisor.SetCallbacks(e.onInactivityWarning, e.onInactivityFinalize)
	slog.Debug("Conversation engine created", "inactive_ttl", cfg.InactiveTTL)
	return e
}

// lockUser returns the mutex serializing all work for one patient. Inbound
// messages and timer finalization both hold it across their full critical
// section, so two events can never interleave on the same state.
func (e *Engine) lockUser(user string) *sync.Mutex {
	mu, _ := e.userLocks.LoadOrStore(user, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// HandleInbound processes one inbound message end to end and returns the
// informational status token for the transport reply. Exactly one outbound
// reply is produced per invocation.
func (e *Engine) HandleInbound(ctx context.Context, user, body string) string {
	message := strings.ToLower(strings.TrimSpace(body))
	slog.Info("Engine handling inbound message", "user", user, "body_length", len(message))

	mu := e.lockUser(user)
	mu.Lock()
	defer mu.Unlock()

	switch message {
	case commandStart:
		return e.handleStart(ctx, user)
	case commandResume:
		return e.handleResume(ctx, user)
	}

	state, ok := e.sessions.Get(user)
	if !ok {
		e.send(ctx, user, MsgNotUnderstood)
		return StatusInstructionSent
	}

	// Activity observed: full timer reset before stepping.
	e.supervisor.Arm(user)

	slog.Debug("Engine stepping conversation", "user", user, "step", state.Step)
	result := e.step(ctx, state, message, user)

	if result.Finished {
		return StatusFinished
	}
	if result.NewState != nil {
		e.sessions.Set(user, *result.NewState)
	}
	if result.Success {
		return StatusProcessed
	}
	return StatusProcessingError
}

// step routes one message to the handler for the current step. Every step
// handler sends exactly one reply and returns the replacement state.
func (e *Engine) step(ctx context.Context, state models.ConversationState, message, user string) StepResult {
	switch state.Step {
	case models.StepAwaitingName:
		return e.handleNameStep(ctx, state, message, user)
	case models.StepAwaitingDate:
		return e.handleDateStep(ctx, state, message, user)
	case models.StepAwaitingTime:
		return e.handleTimeStep(ctx, state, message, user)
	case models.StepAwaitingReason:
		return e.handleReasonStep(ctx, state, message, user)
	case models.StepExistingAppointmentMenu:
		return e.handleExistingAppointmentMenu(ctx, state, message, user)
	case models.StepModifyingDate:
		return e.handleModifyDate(ctx, state, message, user)
	case models.StepModifyingHour:
		return e.handleModifyHour(ctx, state, message, user)
	case models.StepModifyingReason:
		return e.handleModifyReason(ctx, state, message, user)
	case models.StepConfirming:
		return e.handleConfirmation(ctx, state, message, user)
	default:
		// Not a legitimate state: tear the session down rather than loop.
		slog.Error("Engine encountered invalid step", "user", user, "step", state.Step)
		e.supervisor.Disarm(user)
		e.sessions.Delete(user)
		e.send(ctx, user, MsgGenericError)
		return StepResult{Success: false, Finished: true}
	}
}

// send delivers one reply, logging rather than propagating transport
// failures: a failed notification must never wedge the state machine.
func (e *Engine) send(ctx context.Context, user, text string) {
	if err := e.msg.SendMessage(ctx, user, text); err != nil {
		slog.Error("Engine failed to send reply", "error", err, "user", user)
	}
}

// onInactivityWarning runs when a patient's warning timer fires.
func (e *Engine) onInactivityWarning(user string) error {
	slog.Info("Engine sending inactivity warning", "user", user)
	return e.msg.SendMessage(context.Background(), user, MsgInactivityWarning)
}

// onInactivityFinalize runs when a patient's finalization timer fires: the
// active session is suspended into the inactive table and the patient is
// told how to resume. Holds the per-user lock so it cannot interleave with
// an in-flight inbound message, and re-validates the fire's generation
// under that lock: an inbound message that won the lock first re-armed the
// timers, and this fire must then do nothing.
func (e *Engine) onInactivityFinalize(user string, gen uint64) error {
	mu := e.lockUser(user)
	mu.Lock()
	defer mu.Unlock()

	if !e.supervisor.ConfirmFinalize(user, gen) {
		slog.Debug("Engine dropped stale finalize fire", "user", user)
		return nil
	}

	state, ok := e.sessions.Get(user)
	if !ok {
		slog.Debug("Engine finalize fired with no active session", "user", user)
		return nil
	}

	e.sessions.Suspend(user, state, e.inactiveTTL)
	e.sessions.Delete(user)
	slog.Info("Engine suspended session for inactivity", "user", user, "step", state.Step)

	return e.msg.SendMessage(context.Background(), user, MsgInactivityTimeout)
}

// matchOption reports whether the message equals one of the option's
// accepted spellings.
func matchOption(message string, options ...string) bool {
	for _, opt := range options {
		if message == opt {
			return true
		}
	}
	return false
}

// capitalize upper-cases the first letter of a name, leaving the rest as
// the patient wrote it.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
