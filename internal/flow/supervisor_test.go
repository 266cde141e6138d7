package flow

import (
	"testing"
	"time"
)

func newObservedSupervisor(t *testing.T, opts ...SupervisorOption) (*InactivitySupervisor, chan string) {
	t.Helper()
	s := NewInactivitySupervisor(opts...)
	events := make(chan string, 16)
	s.SetCallbacks(
		func(user string) error { events <- "warn:" + user; return nil },
		func(user string, gen uint64) error {
			if s.ConfirmFinalize(user, gen) {
				events <- "finalize:" + user
			}
			return nil
		},
	)
	return s, events
}

func waitEvent(t *testing.T, events chan string) string {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("no supervisor event within deadline")
		return ""
	}
}

func assertQuiet(t *testing.T, events chan string, d time.Duration) {
	t.Helper()
	select {
	case ev := <-events:
		t.Fatalf("unexpected supervisor event %q", ev)
	case <-time.After(d):
	}
}

func TestSupervisorWarnsThenFinalizes(t *testing.T) {
	s, events := newObservedSupervisor(t,
		WithWarnAfter(10*time.Millisecond), WithFinalizeAfter(30*time.Millisecond))

	s.Arm("maria")

	if ev := waitEvent(t, events); ev != "warn:maria" {
		t.Fatalf("first event = %q, want warn:maria", ev)
	}
	if ev := waitEvent(t, events); ev != "finalize:maria" {
		t.Fatalf("second event = %q, want finalize:maria", ev)
	}
	// The chain terminates after finalization.
	assertQuiet(t, events, 60*time.Millisecond)
}

func TestSupervisorDisarmCancelsChain(t *testing.T) {
	s, events := newObservedSupervisor(t,
		WithWarnAfter(20*time.Millisecond), WithFinalizeAfter(50*time.Millisecond))

	s.Arm("maria")
	s.Disarm("maria")

	assertQuiet(t, events, 100*time.Millisecond)
}

func TestSupervisorDisarmAfterWarningStopsFinalize(t *testing.T) {
	s, events := newObservedSupervisor(t,
		WithWarnAfter(10*time.Millisecond), WithFinalizeAfter(200*time.Millisecond))

	s.Arm("maria")
	if ev := waitEvent(t, events); ev != "warn:maria" {
		t.Fatalf("first event = %q, want warn:maria", ev)
	}
	s.Disarm("maria")

	assertQuiet(t, events, 250*time.Millisecond)
}

func TestSupervisorRearmResetsChain(t *testing.T) {
	s, events := newObservedSupervisor(t,
		WithWarnAfter(10*time.Millisecond), WithFinalizeAfter(40*time.Millisecond))

	s.Arm("maria")
	if ev := waitEvent(t, events); ev != "warn:maria" {
		t.Fatalf("first event = %q, want warn:maria", ev)
	}

	// Re-arming mid-chain invalidates the pending finalization: the next
	// event must be a fresh warning, never the old finalize.
	s.Arm("maria")
	if ev := waitEvent(t, events); ev != "warn:maria" {
		t.Fatalf("event after re-arm = %q, want warn:maria", ev)
	}
	if ev := waitEvent(t, events); ev != "finalize:maria" {
		t.Fatalf("final event = %q, want finalize:maria", ev)
	}
}

func TestSupervisorTracksUsersIndependently(t *testing.T) {
	s, events := newObservedSupervisor(t,
		WithWarnAfter(10*time.Millisecond), WithFinalizeAfter(150*time.Millisecond))

	s.Arm("maria")
	s.Arm("jorge")
	s.Disarm("jorge")

	if ev := waitEvent(t, events); ev != "warn:maria" {
		t.Fatalf("event = %q, want warn:maria only", ev)
	}
	s.Disarm("maria")
	assertQuiet(t, events, 60*time.Millisecond)
}

func TestSupervisorDisarmUnknownUserIsNoop(t *testing.T) {
	s, _ := newObservedSupervisor(t)
	s.Disarm("nobody")
}

func TestConfirmFinalizeRejectsStaleGeneration(t *testing.T) {
	s := NewInactivitySupervisor(
		WithWarnAfter(10*time.Millisecond), WithFinalizeAfter(30*time.Millisecond))
	fires := make(chan uint64, 4)
	s.SetCallbacks(
		func(user string) error { return nil },
		func(user string, gen uint64) error { fires <- gen; return nil },
	)

	s.Arm("maria")
	var gen uint64
	select {
	case gen = <-fires:
	case <-time.After(2 * time.Second):
		t.Fatalf("finalize never fired")
	}

	// Fresh activity between the fire and its confirmation invalidates it.
	s.Arm("maria")
	if s.ConfirmFinalize("maria", gen) {
		t.Fatalf("ConfirmFinalize accepted a fire from before the re-arm")
	}

	// The re-armed chain runs to completion and confirms exactly once.
	select {
	case gen = <-fires:
	case <-time.After(2 * time.Second):
		t.Fatalf("re-armed finalize never fired")
	}
	if !s.ConfirmFinalize("maria", gen) {
		t.Fatalf("ConfirmFinalize rejected a current fire")
	}
	if s.ConfirmFinalize("maria", gen) {
		t.Fatalf("ConfirmFinalize consumed the same fire twice")
	}
}

func TestSupervisorRejectsInvertedSpans(t *testing.T) {
	s := NewInactivitySupervisor(WithWarnAfter(5*time.Minute), WithFinalizeAfter(time.Minute))

	if s.warnAfter != DefaultWarnAfter || s.finalizeAfter != DefaultFinalizeAfter {
		t.Errorf("inverted spans not replaced by defaults: warn=%v finalize=%v",
			s.warnAfter, s.finalizeAfter)
	}
}
