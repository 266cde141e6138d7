// Package flow implements the booking conversation state machine.
//
// This file implements the inactivity supervisor: a two-stage timer chain
// per patient (warning, then forced suspension) that is fully reset on every
// inbound message and cancelled on every terminal outcome.
package flow

import (
	"log/slog"
	"sync"
	"time"
)

// Default inactivity stage durations.
const (
	// DefaultWarnAfter is the inactivity span before the warning fires.
	DefaultWarnAfter = 3 * time.Minute
	// DefaultFinalizeAfter is the total inactivity span before the session
	// is suspended (2 minutes after the warning).
	DefaultFinalizeAfter = 5 * time.Minute
)

// supervisorState tracks where a patient's timer chain currently is.
type supervisorState int

const (
	supervisorIdle supervisorState = iota
	supervisorArmedWarning
	supervisorArmedFinal
)

// supervisorEntry tracks the live timers for one patient. gen invalidates
// in-flight fires after a disarm or re-arm, so a stale callback can never
// act on a chain that was already torn down.
type supervisorEntry struct {
	state      supervisorState
	gen        uint64
	warnTimer  *time.Timer
	finalTimer *time.Timer
}

// SupervisorOpts holds configuration options for the inactivity supervisor.
type SupervisorOpts struct {
	WarnAfter     time.Duration
	FinalizeAfter time.Duration
}

// SupervisorOption defines a configuration option for the inactivity supervisor.
type SupervisorOption func(*SupervisorOpts)

// WithWarnAfter sets the inactivity span before the warning fires.
func WithWarnAfter(d time.Duration) SupervisorOption {
	return func(o *SupervisorOpts) { o.WarnAfter = d }
}

// WithFinalizeAfter sets the total inactivity span before forced suspension.
func WithFinalizeAfter(d time.Duration) SupervisorOption {
	return func(o *SupervisorOpts) { o.FinalizeAfter = d }
}

// InactivitySupervisor arms a warning timer and a finalization timer per
// patient. Callbacks perform outbound sends; their failures are logged and
// the timer chain still advances, so a failed notification never leaves a
// timer orphaned or re-firing.
type InactivitySupervisor struct {
	mu            sync.Mutex
	entries       map[string]*supervisorEntry
	warnAfter     time.Duration
	finalizeAfter time.Duration
	onWarn        func(user string) error
	onFinalize    func(user string, gen uint64) error
}

// NewInactivitySupervisor creates a supervisor, applying any provided
// options for customization. Callbacks are wired afterwards via SetCallbacks
// because the engine that owns them is constructed later.
func NewInactivitySupervisor(opts ...SupervisorOption) *InactivitySupervisor {
	cfg := SupervisorOpts{
		WarnAfter:     DefaultWarnAfter,
		FinalizeAfter: DefaultFinalizeAfter,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.FinalizeAfter <= cfg.WarnAfter {
		slog.Warn("InactivitySupervisor finalize span not after warning span, using defaults",
			"warn_after", cfg.WarnAfter, "finalize_after", cfg.FinalizeAfter)
		cfg.WarnAfter = DefaultWarnAfter
		cfg.FinalizeAfter = DefaultFinalizeAfter
	}

	slog.Debug("Creating InactivitySupervisor", "warn_after", cfg.WarnAfter, "finalize_after", cfg.FinalizeAfter)
	return &InactivitySupervisor{
		entries:       make(map[string]*supervisorEntry),
		warnAfter:     cfg.WarnAfter,
		finalizeAfter: cfg.FinalizeAfter,
	}
}

// SetCallbacks wires the warning and finalization actions. Must be called
// before the first Arm. The finalization callback receives the fire's
// generation and must consume it via ConfirmFinalize once it holds its own
// serialization, so a fire that lost the race to fresh activity is dropped.
func (s *InactivitySupervisor) SetCallbacks(onWarn func(user string) error, onFinalize func(user string, gen uint64) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onWarn = onWarn
	s.onFinalize = onFinalize
}

// Arm cancels any existing timers for the patient and starts a fresh warning
// timer. It is a full reset, not an incremental one, and is called on every
// inbound message.
func (s *InactivitySupervisor) Arm(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.entries[user]
	if entry == nil {
		entry = &supervisorEntry{}
		s.entries[user] = entry
	}
	s.stopTimersLocked(entry)
	entry.gen++
	entry.state = supervisorArmedWarning

	gen := entry.gen
	entry.warnTimer = time.AfterFunc(s.warnAfter, func() { s.fireWarning(user, gen) })
	slog.Debug("InactivitySupervisor armed", "user", user, "warn_after", s.warnAfter, "finalize_after", s.finalizeAfter)
}

// Disarm cancels both timers unconditionally. Called on every terminal
// outcome before any session teardown, so a callback can never fire against
// a session that no longer exists.
func (s *InactivitySupervisor) Disarm(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.entries[user]
	if entry == nil {
		return
	}
	s.stopTimersLocked(entry)
	entry.gen++
	entry.state = supervisorIdle
	delete(s.entries, user)
	slog.Debug("InactivitySupervisor disarmed", "user", user)
}

// fireWarning runs when the warning timer elapses. It invokes the warning
// callback and chains the finalization timer regardless of callback outcome.
func (s *InactivitySupervisor) fireWarning(user string, gen uint64) {
	s.mu.Lock()
	entry := s.entries[user]
	if entry == nil || entry.gen != gen || entry.state != supervisorArmedWarning {
		s.mu.Unlock()
		slog.Debug("InactivitySupervisor stale warning fire ignored", "user", user)
		return
	}
	entry.state = supervisorArmedFinal
	entry.finalTimer = time.AfterFunc(s.finalizeAfter-s.warnAfter, func() { s.fireFinalize(user, gen) })
	onWarn := s.onWarn
	s.mu.Unlock()

	slog.Info("InactivitySupervisor warning timer fired", "user", user)
	if onWarn != nil {
		if err := onWarn(user); err != nil {
			slog.Error("InactivitySupervisor warning callback failed", "error", err, "user", user)
		}
	}
}

// fireFinalize runs when the finalization timer elapses. The entry is NOT
// consumed here: the gen check below only filters fires that are already
// known stale, and the callback can still lose the race for its own lock to
// an inbound message that re-arms the chain. The callback settles that race
// through ConfirmFinalize.
func (s *InactivitySupervisor) fireFinalize(user string, gen uint64) {
	s.mu.Lock()
	entry := s.entries[user]
	if entry == nil || entry.gen != gen || entry.state != supervisorArmedFinal {
		s.mu.Unlock()
		slog.Debug("InactivitySupervisor stale finalize fire ignored", "user", user)
		return
	}
	onFinalize := s.onFinalize
	if onFinalize == nil {
		entry.state = supervisorIdle
		delete(s.entries, user)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	slog.Info("InactivitySupervisor finalization timer fired", "user", user)
	if err := onFinalize(user, gen); err != nil {
		slog.Error("InactivitySupervisor finalization callback failed", "error", err, "user", user)
	}
}

// ConfirmFinalize reports whether a finalize fire with the given generation
// is still current and, if so, terminates the chain. The caller must already
// hold its own serialization (the engine's per-user lock), so a fire that
// passed fireFinalize's check but then lost the lock race to an inbound
// message finds a newer generation here and is dropped.
func (s *InactivitySupervisor) ConfirmFinalize(user string, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.entries[user]
	if entry == nil || entry.gen != gen || entry.state != supervisorArmedFinal {
		slog.Debug("InactivitySupervisor finalize fire lost the race, dropped", "user", user)
		return false
	}
	entry.state = supervisorIdle
	delete(s.entries, user)
	return true
}

// stopTimersLocked stops any pending timers on the entry. Caller holds mu.
func (s *InactivitySupervisor) stopTimersLocked(entry *supervisorEntry) {
	if entry.warnTimer != nil {
		entry.warnTimer.Stop()
		entry.warnTimer = nil
	}
	if entry.finalTimer != nil {
		entry.finalTimer.Stop()
		entry.finalTimer = nil
	}
}
