package flow

import (
	"testing"
	"time"

	"github.com/BTreeMap/BookingPipe/internal/models"
)

func TestSessionStoreSetGetDelete(t *testing.T) {
	s := NewSessionStore()

	if _, ok := s.Get("user1"); ok {
		t.Fatalf("Get returned state for unknown user")
	}
	if s.HasActive("user1") {
		t.Fatalf("HasActive true for unknown user")
	}

	state := models.ConversationState{Step: models.StepAwaitingDate, Name: "Maria"}
	s.Set("user1", state)

	got, ok := s.Get("user1")
	if !ok {
		t.Fatalf("Get failed after Set")
	}
	if got.Step != models.StepAwaitingDate || got.Name != "Maria" {
		t.Errorf("Get returned wrong state: %+v", got)
	}
	if !s.HasActive("user1") {
		t.Errorf("HasActive false after Set")
	}

	s.Delete("user1")
	if _, ok := s.Get("user1"); ok {
		t.Errorf("Get returned state after Delete")
	}
}

func TestSessionStoreSetReplacesWholesale(t *testing.T) {
	s := NewSessionStore()
	s.Set("user1", models.ConversationState{Step: models.StepAwaitingDate, Name: "Maria", Date: "2026-09-07"})
	s.Set("user1", models.ConversationState{Step: models.StepAwaitingName})

	got, _ := s.Get("user1")
	if got.Name != "" || got.Date != "" {
		t.Errorf("Set merged instead of replacing: %+v", got)
	}
}

func TestSuspendAndResume(t *testing.T) {
	s := NewSessionStore()
	state := models.ConversationState{Step: models.StepAwaitingTime, Name: "Maria", Date: "2026-09-07"}

	s.Suspend("user1", state, 30*time.Minute)

	restored, result := s.Resume("user1")
	if result != ResumeRestored {
		t.Fatalf("Resume result = %d, want ResumeRestored", result)
	}
	if restored.Step != models.StepAwaitingTime || restored.Date != "2026-09-07" {
		t.Errorf("Resume returned wrong state: %+v", restored)
	}

	// Entry is consumed by a successful resume.
	if _, result := s.Resume("user1"); result != ResumeNotFound {
		t.Errorf("second Resume result = %d, want ResumeNotFound", result)
	}
}

func TestResumeExpiredEntryIsDiscarded(t *testing.T) {
	s := NewSessionStore()
	s.Suspend("user1", models.ConversationState{Step: models.StepAwaitingDate}, 30*time.Minute)

	s.now = func() time.Time { return time.Now().Add(31 * time.Minute) }

	if _, result := s.Resume("user1"); result != ResumeExpired {
		t.Fatalf("Resume of expired entry result = %d, want ResumeExpired", result)
	}
	// The expired entry was deleted, not retained.
	if _, result := s.Resume("user1"); result != ResumeNotFound {
		t.Errorf("expired entry still present after Resume")
	}
}

func TestSuspendOverwritesPriorEntry(t *testing.T) {
	s := NewSessionStore()
	s.Suspend("user1", models.ConversationState{Step: models.StepAwaitingName}, 30*time.Minute)
	s.Suspend("user1", models.ConversationState{Step: models.StepConfirming}, 30*time.Minute)

	restored, result := s.Resume("user1")
	if result != ResumeRestored || restored.Step != models.StepConfirming {
		t.Errorf("Resume = %+v (%d), want the newer suspended state", restored, result)
	}
}

func TestDeleteInactive(t *testing.T) {
	s := NewSessionStore()
	s.Suspend("user1", models.ConversationState{Step: models.StepAwaitingDate}, 30*time.Minute)
	s.DeleteInactive("user1")

	if _, result := s.Resume("user1"); result != ResumeNotFound {
		t.Errorf("inactive entry survived DeleteInactive")
	}
}
