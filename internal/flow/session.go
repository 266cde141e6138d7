// Package flow implements the booking conversation state machine: the
// per-patient session store, the inactivity supervisor, and the step-indexed
// dialogue engine.
//
// This file implements the session store: one active ConversationState per
// patient, plus a secondary table of suspended sessions eligible for
// resumption within a grace window.
package flow

import (
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/BookingPipe/internal/models"
)

// ResumeResult classifies the outcome of SessionStore.Resume.
type ResumeResult int

const (
	// ResumeNotFound means no inactive session exists for the patient.
	ResumeNotFound ResumeResult = iota
	// ResumeExpired means the inactive session existed but was past its
	// grace window; it has been discarded.
	ResumeExpired
	// ResumeRestored means the inactive session was returned and removed
	// from the inactive table.
	ResumeRestored
)

// SessionStore holds per-patient conversation state. It is an explicit
// service object: constructed once and passed by reference to all
// collaborators, never package-level state.
type SessionStore struct {
	mu       sync.RWMutex
	active   map[string]models.ConversationState
	inactive map[string]models.InactiveSession
	now      func() time.Time
}

// NewSessionStore creates an empty SessionStore.
func NewSessionStore() *SessionStore {
	slog.Debug("Creating SessionStore")
	return &SessionStore{
		active:   make(map[string]models.ConversationState),
		inactive: make(map[string]models.InactiveSession),
		now:      time.Now,
	}
}

// Get returns the active conversation state for a patient.
func (s *SessionStore) Get(user string) (models.ConversationState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.active[user]
	return state, ok
}

// Set replaces the active conversation state for a patient wholesale.
// There are no merge semantics: the stored value is always a complete state.
func (s *SessionStore) Set(user string, state models.ConversationState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[user] = state
	slog.Debug("SessionStore Set", "user", user, "step", state.Step)
}

// Delete removes the active conversation state for a patient.
func (s *SessionStore) Delete(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, user)
	slog.Debug("SessionStore Delete", "user", user)
}

// HasActive reports whether the patient has an active conversation.
func (s *SessionStore) HasActive(user string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.active[user]
	return ok
}

// Suspend moves a state into the inactive table with an absolute expiry,
// overwriting any prior inactive entry for the patient.
func (s *SessionStore) Suspend(user string, state models.ConversationState, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.inactive[user] = models.InactiveSession{
		State:     state,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	slog.Info("SessionStore suspended session", "user", user, "step", state.Step, "ttl", ttl)
}

// Resume removes and returns the patient's inactive session. An entry past
// its expiry is deleted and reported as expired rather than returned.
func (s *SessionStore) Resume(user string) (models.ConversationState, ResumeResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.inactive[user]
	if !ok {
		return models.ConversationState{}, ResumeNotFound
	}
	delete(s.inactive, user)

	if entry.Expired(s.now()) {
		slog.Info("SessionStore inactive session expired", "user", user, "expired_at", entry.ExpiresAt)
		return models.ConversationState{}, ResumeExpired
	}

	slog.Info("SessionStore restored inactive session", "user", user, "step", entry.State.Step)
	return entry.State, ResumeRestored
}

// DeleteInactive removes any inactive entry for the patient, typically when
// a fresh "start" command makes resumption moot.
func (s *SessionStore) DeleteInactive(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inactive, user)
	slog.Debug("SessionStore DeleteInactive", "user", user)
}
