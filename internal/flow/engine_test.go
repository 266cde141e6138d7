package flow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/BookingPipe/internal/messaging"
	"github.com/BTreeMap/BookingPipe/internal/models"
	"github.com/BTreeMap/BookingPipe/internal/nlp"
	"github.com/BTreeMap/BookingPipe/internal/schedule"
	"github.com/BTreeMap/BookingPipe/internal/store"
	"github.com/BTreeMap/BookingPipe/internal/twiliowhatsapp"
)

// testUser is already in canonical digit form, so the transport's recipient
// canonicalization leaves it untouched.
const testUser = "15551234567"

type engineFixture struct {
	engine     *Engine
	sessions   *SessionStore
	supervisor *InactivitySupervisor
	store      store.Store
	mock       *twiliowhatsapp.MockClient
}

func newEngineFixtureWithStore(t *testing.T, st store.Store) *engineFixture {
	t.Helper()

	parser, err := nlp.NewParser()
	if err != nil {
		t.Fatalf("NewParser failed: %v", err)
	}

	mock := twiliowhatsapp.NewMockClient()
	sessions := NewSessionStore()
	supervisor := NewInactivitySupervisor()
	engine := NewEngine(sessions, supervisor, st, messaging.NewTwilioService(mock), schedule.Default(), parser)

	return &engineFixture{
		engine:     engine,
		sessions:   sessions,
		supervisor: supervisor,
		store:      st,
		mock:       mock,
	}
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	return newEngineFixtureWithStore(t, store.NewInMemoryStore())
}

func (f *engineFixture) handle(t *testing.T, body string) string {
	t.Helper()
	return f.engine.HandleInbound(context.Background(), testUser, body)
}

func (f *engineFixture) lastBody(t *testing.T) string {
	t.Helper()
	if len(f.mock.SentMessages) == 0 {
		t.Fatalf("no outbound messages sent")
	}
	return f.mock.SentMessages[len(f.mock.SentMessages)-1].Body
}

func (f *engineFixture) mustState(t *testing.T) models.ConversationState {
	t.Helper()
	state, ok := f.sessions.Get(testUser)
	if !ok {
		t.Fatalf("no active session for %s", testUser)
	}
	return state
}

func (f *engineFixture) mustStep(t *testing.T, want models.Step) models.ConversationState {
	t.Helper()
	state := f.mustState(t)
	if state.Step != want {
		t.Fatalf("session step = %s, want %s", state.Step, want)
	}
	return state
}

// walkToConfirming drives a fresh booking up to the confirmation menu.
func (f *engineFixture) walkToConfirming(t *testing.T) {
	t.Helper()
	for _, msg := range []string{"start", "maria", "next monday", "11:30 am", "checkup"} {
		f.handle(t, msg)
	}
	f.mustStep(t, models.StepConfirming)
}

func (f *engineFixture) appointments(t *testing.T) []models.Appointment {
	t.Helper()
	appts, err := f.store.ListAppointments()
	if err != nil {
		t.Fatalf("ListAppointments failed: %v", err)
	}
	return appts
}

func TestStartBeginsNewBooking(t *testing.T) {
	f := newEngineFixture(t)

	if status := f.handle(t, "start"); status != StatusWelcomeSent {
		t.Fatalf("status = %q, want %q", status, StatusWelcomeSent)
	}
	f.mustStep(t, models.StepAwaitingName)
	if !strings.Contains(f.lastBody(t), "What's your name?") {
		t.Errorf("welcome message missing name prompt: %q", f.lastBody(t))
	}
}

func TestMessageWithoutSessionPromptsStart(t *testing.T) {
	f := newEngineFixture(t)

	if status := f.handle(t, "hello"); status != StatusInstructionSent {
		t.Fatalf("status = %q, want %q", status, StatusInstructionSent)
	}
	if f.lastBody(t) != MsgNotUnderstood {
		t.Errorf("reply = %q, want not-understood instruction", f.lastBody(t))
	}
}

func TestFullBookingFlow(t *testing.T) {
	f := newEngineFixture(t)

	f.handle(t, "start")

	if status := f.handle(t, "maria"); status != StatusProcessed {
		t.Fatalf("name step status = %q", status)
	}
	state := f.mustStep(t, models.StepAwaitingDate)
	if state.Name != "Maria" {
		t.Errorf("recorded name = %q, want Maria", state.Name)
	}

	if status := f.handle(t, "next monday"); status != StatusProcessed {
		t.Fatalf("date step status = %q", status)
	}
	state = f.mustStep(t, models.StepAwaitingTime)
	if state.Weekday != "monday" || state.Date == "" {
		t.Errorf("recorded date = %q weekday = %q", state.Date, state.Weekday)
	}

	if status := f.handle(t, "11:30 am"); status != StatusProcessed {
		t.Fatalf("time step status = %q", status)
	}
	state = f.mustStep(t, models.StepAwaitingReason)
	if state.Time != "11:30 AM" {
		t.Errorf("recorded time = %q, want 11:30 AM", state.Time)
	}

	if status := f.handle(t, "checkup"); status != StatusProcessed {
		t.Fatalf("reason step status = %q", status)
	}
	f.mustStep(t, models.StepConfirming)
	if !strings.Contains(f.lastBody(t), "Would you like to change anything?") {
		t.Errorf("draft summary missing decision menu: %q", f.lastBody(t))
	}

	if status := f.handle(t, "4"); status != StatusFinished {
		t.Fatalf("confirm status = %q, want %q", status, StatusFinished)
	}
	if _, ok := f.sessions.Get(testUser); ok {
		t.Errorf("session survived confirmation")
	}
	if !strings.Contains(f.lastBody(t), "Your appointment is booked") {
		t.Errorf("confirmation summary = %q", f.lastBody(t))
	}

	appts := f.appointments(t)
	if len(appts) != 1 {
		t.Fatalf("stored %d appointments, want 1", len(appts))
	}
	got := appts[0]
	if got.Name != "Maria" || got.Phone != testUser || got.Time != "11:30 AM" ||
		got.Reason != "checkup" || got.Status != models.AppointmentStatusPending {
		t.Errorf("stored appointment: %+v", got)
	}
}

func TestBareHourNeedsMeridiem(t *testing.T) {
	f := newEngineFixture(t)
	f.handle(t, "start")
	f.handle(t, "maria")
	f.handle(t, "next monday")

	if status := f.handle(t, "9"); status != StatusProcessingError {
		t.Fatalf("status = %q, want %q", status, StatusProcessingError)
	}
	f.mustStep(t, models.StepAwaitingTime)
	if f.lastBody(t) != MsgNeedsMeridiem {
		t.Errorf("reply = %q, want meridiem prompt", f.lastBody(t))
	}

	// Disambiguating completes the step.
	if status := f.handle(t, "9 in the morning"); status != StatusProcessed {
		t.Fatalf("disambiguated status = %q", status)
	}
	state := f.mustStep(t, models.StepAwaitingReason)
	if state.Time != "9:00 AM" {
		t.Errorf("recorded time = %q, want 9:00 AM", state.Time)
	}
}

func TestPastDateRejected(t *testing.T) {
	f := newEngineFixture(t)
	f.handle(t, "start")
	f.handle(t, "maria")

	if status := f.handle(t, "yesterday"); status != StatusProcessingError {
		t.Fatalf("status = %q, want %q", status, StatusProcessingError)
	}
	f.mustStep(t, models.StepAwaitingDate)
	if f.lastBody(t) != MsgPastDate {
		t.Errorf("reply = %q, want past-date rejection", f.lastBody(t))
	}
}

func TestOutOfHoursTimeRejected(t *testing.T) {
	f := newEngineFixture(t)
	f.handle(t, "start")
	f.handle(t, "maria")
	f.handle(t, "next monday")

	// 3:00 PM falls in the gap between the morning and evening intervals.
	if status := f.handle(t, "3:00 pm"); status != StatusProcessingError {
		t.Fatalf("status = %q, want %q", status, StatusProcessingError)
	}
	f.mustStep(t, models.StepAwaitingTime)
	if !strings.Contains(f.lastBody(t), "outside the office hours") {
		t.Errorf("reply = %q, want out-of-hours rejection", f.lastBody(t))
	}
}

func TestClosedDayRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.yaml")
	content := `
monday:
  - start: "9:00 AM"
    end: "2:00 PM"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write schedule file: %v", err)
	}
	table, err := schedule.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	f := newEngineFixture(t)
	f.engine.schedule = table

	f.handle(t, "start")
	f.handle(t, "maria")

	if status := f.handle(t, "next friday"); status != StatusProcessingError {
		t.Fatalf("status = %q, want %q", status, StatusProcessingError)
	}
	f.mustStep(t, models.StepAwaitingDate)
	if !strings.Contains(f.lastBody(t), "does not work on friday") {
		t.Errorf("reply = %q, want closed-day rejection", f.lastBody(t))
	}
}

func TestCancelFromConfirmationMenu(t *testing.T) {
	f := newEngineFixture(t)
	f.walkToConfirming(t)

	if status := f.handle(t, "5"); status != StatusFinished {
		t.Fatalf("status = %q, want %q", status, StatusFinished)
	}
	if _, ok := f.sessions.Get(testUser); ok {
		t.Errorf("session survived cancellation")
	}
	if f.lastBody(t) != MsgProcessCancelled {
		t.Errorf("reply = %q, want cancellation notice", f.lastBody(t))
	}
	if appts := f.appointments(t); len(appts) != 0 {
		t.Errorf("cancellation persisted %d appointments", len(appts))
	}
}

func TestConfirmationMenuRepromptsOnUnknownOption(t *testing.T) {
	f := newEngineFixture(t)
	f.walkToConfirming(t)

	if status := f.handle(t, "banana"); status != StatusProcessingError {
		t.Fatalf("status = %q, want %q", status, StatusProcessingError)
	}
	f.mustStep(t, models.StepConfirming)
	if f.lastBody(t) != MsgConfirmMenuReprompt {
		t.Errorf("reply = %q, want confirmation menu reprompt", f.lastBody(t))
	}
}

func TestModifyReasonFromConfirmationMenu(t *testing.T) {
	f := newEngineFixture(t)
	f.walkToConfirming(t)

	f.handle(t, "3")
	f.mustStep(t, models.StepModifyingReason)
	if f.lastBody(t) != MsgAskReasonFromMenu {
		t.Errorf("reply = %q, want reason prompt", f.lastBody(t))
	}

	if status := f.handle(t, "followup"); status != StatusProcessed {
		t.Fatalf("status = %q", status)
	}
	state := f.mustStep(t, models.StepConfirming)
	if state.Reason != "followup" {
		t.Errorf("reason = %q, want followup", state.Reason)
	}
}

func pendingAppointment(t *testing.T, st store.Store, timeStr string) int64 {
	t.Helper()
	id, err := st.CreateAppointment(models.Appointment{
		Name:   "Maria",
		Phone:  testUser,
		Date:   "2030-01-07", // a Monday
		Time:   timeStr,
		Reason: "checkup",
		Status: models.AppointmentStatusPending,
	})
	if err != nil {
		t.Fatalf("CreateAppointment failed: %v", err)
	}
	return id
}

func TestStartWithPendingAppointmentShowsMenu(t *testing.T) {
	f := newEngineFixture(t)
	pendingAppointment(t, f.store, "10:00 AM")

	if status := f.handle(t, "start"); status != StatusExistingMenu {
		t.Fatalf("status = %q, want %q", status, StatusExistingMenu)
	}
	state := f.mustStep(t, models.StepExistingAppointmentMenu)
	if state.ActiveAppointment == nil {
		t.Fatalf("menu state missing the stored appointment")
	}
	if !strings.Contains(f.lastBody(t), "Reschedule this appointment") {
		t.Errorf("menu reply = %q", f.lastBody(t))
	}
}

func TestExistingMenuCancelsAppointment(t *testing.T) {
	f := newEngineFixture(t)
	pendingAppointment(t, f.store, "10:00 AM")
	f.handle(t, "start")

	if status := f.handle(t, "3"); status != StatusFinished {
		t.Fatalf("status = %q, want %q", status, StatusFinished)
	}
	if f.lastBody(t) != MsgAppointmentCancelled {
		t.Errorf("reply = %q, want cancellation confirmation", f.lastBody(t))
	}
	appt, err := f.store.FindPendingByPhone(testUser)
	if err != nil {
		t.Fatalf("FindPendingByPhone failed: %v", err)
	}
	if appt != nil {
		t.Errorf("appointment still pending after cancellation: %+v", appt)
	}
}

func TestExistingMenuExitKeepsAppointment(t *testing.T) {
	f := newEngineFixture(t)
	pendingAppointment(t, f.store, "10:00 AM")
	f.handle(t, "start")

	if status := f.handle(t, "4"); status != StatusFinished {
		t.Fatalf("status = %q, want %q", status, StatusFinished)
	}
	if f.lastBody(t) != MsgFarewell {
		t.Errorf("reply = %q, want farewell", f.lastBody(t))
	}
	appt, err := f.store.FindPendingByPhone(testUser)
	if err != nil || appt == nil {
		t.Errorf("pending appointment lost on exit: appt=%v err=%v", appt, err)
	}
}

func TestExistingMenuStartsFreshBooking(t *testing.T) {
	f := newEngineFixture(t)
	pendingAppointment(t, f.store, "10:00 AM")
	f.handle(t, "start")

	if status := f.handle(t, "2"); status != StatusProcessed {
		t.Fatalf("status = %q", status)
	}
	f.mustStep(t, models.StepAwaitingName)
	if f.lastBody(t) != MsgNewAppointmentStart {
		t.Errorf("reply = %q, want fresh booking prompt", f.lastBody(t))
	}
}

func TestExistingMenuReschedule(t *testing.T) {
	f := newEngineFixture(t)
	pendingAppointment(t, f.store, "10:00 AM")
	f.handle(t, "start")

	f.handle(t, "1")
	state := f.mustStep(t, models.StepModifyingDate)
	if state.Time != "10:00 AM" || state.Reason != "checkup" {
		t.Errorf("preloaded state: %+v", state)
	}
	if f.lastBody(t) != MsgAskNewDate {
		t.Errorf("reply = %q, want new-date prompt", f.lastBody(t))
	}

	// 10:00 AM is still inside Monday hours, so the new date goes straight
	// to confirmation.
	f.handle(t, "next monday")
	f.mustStep(t, models.StepConfirming)

	if status := f.handle(t, "4"); status != StatusFinished {
		t.Fatalf("confirm status = %q, want %q", status, StatusFinished)
	}
	if !strings.Contains(f.lastBody(t), "has been rescheduled") {
		t.Errorf("reply = %q, want reschedule confirmation", f.lastBody(t))
	}

	appt, err := f.store.FindPendingByPhone(testUser)
	if err != nil || appt == nil {
		t.Fatalf("rescheduled appointment missing: appt=%v err=%v", appt, err)
	}
	if appt.Date == "2030-01-07" {
		t.Errorf("appointment date unchanged after reschedule")
	}
	if appt.Time != "10:00 AM" || appt.Status != models.AppointmentStatusPending {
		t.Errorf("rescheduled appointment: %+v", appt)
	}

	if appts := f.appointments(t); len(appts) != 1 {
		t.Errorf("reschedule created a new row: %d appointments", len(appts))
	}
}

func TestRescheduleDetoursWhenKeptTimeNoLongerFits(t *testing.T) {
	f := newEngineFixture(t)
	// 5:30 PM is open Monday through Saturday but not Sunday.
	pendingAppointment(t, f.store, "5:30 PM")
	f.handle(t, "start")
	f.handle(t, "1")

	if status := f.handle(t, "next sunday"); status != StatusProcessed {
		t.Fatalf("status = %q", status)
	}
	f.mustStep(t, models.StepModifyingHour)
	if !strings.Contains(f.lastBody(t), "is not available on sunday") {
		t.Errorf("reply = %q, want time-no-longer-valid notice", f.lastBody(t))
	}

	f.handle(t, "11:30 am")
	f.mustStep(t, models.StepConfirming)

	if status := f.handle(t, "4"); status != StatusFinished {
		t.Fatalf("confirm status = %q", status)
	}
	appt, err := f.store.FindPendingByPhone(testUser)
	if err != nil || appt == nil {
		t.Fatalf("rescheduled appointment missing: appt=%v err=%v", appt, err)
	}
	if appt.Time != "11:30 AM" {
		t.Errorf("rescheduled time = %q, want 11:30 AM", appt.Time)
	}
}

// failingStore simulates a persistence outage that can be lifted mid-test.
type failingStore struct {
	*store.InMemoryStore
	fail bool
}

var errStoreOffline = errors.New("store offline")

func (f *failingStore) CreateAppointment(a models.Appointment) (int64, error) {
	if f.fail {
		return 0, errStoreOffline
	}
	return f.InMemoryStore.CreateAppointment(a)
}

func (f *failingStore) RescheduleByID(id int64, date, timeStr, reason string) (bool, error) {
	if f.fail {
		return false, errStoreOffline
	}
	return f.InMemoryStore.RescheduleByID(id, date, timeStr, reason)
}

func TestConfirmFailureKeepsSessionRetryable(t *testing.T) {
	fs := &failingStore{InMemoryStore: store.NewInMemoryStore(), fail: true}
	f := newEngineFixtureWithStore(t, fs)
	f.walkToConfirming(t)

	if status := f.handle(t, "4"); status != StatusProcessingError {
		t.Fatalf("status = %q, want %q", status, StatusProcessingError)
	}
	f.mustStep(t, models.StepConfirming)
	if f.lastBody(t) != MsgConfirmFailed {
		t.Errorf("reply = %q, want save-failed notice", f.lastBody(t))
	}
	if appts := f.appointments(t); len(appts) != 0 {
		t.Fatalf("failed confirm persisted %d appointments", len(appts))
	}

	// The outage lifts and the same "4" succeeds without re-entering data.
	fs.fail = false
	if status := f.handle(t, "4"); status != StatusFinished {
		t.Fatalf("retry status = %q, want %q", status, StatusFinished)
	}
	if appts := f.appointments(t); len(appts) != 1 {
		t.Errorf("retry persisted %d appointments, want 1", len(appts))
	}
	if _, ok := f.sessions.Get(testUser); ok {
		t.Errorf("session survived successful retry")
	}
}

func TestStartRestartsMidFlow(t *testing.T) {
	f := newEngineFixture(t)
	f.handle(t, "start")
	f.handle(t, "maria")
	f.mustStep(t, models.StepAwaitingDate)

	if status := f.handle(t, "start"); status != StatusWelcomeSent {
		t.Fatalf("status = %q, want %q", status, StatusWelcomeSent)
	}
	state := f.mustStep(t, models.StepAwaitingName)
	if state.Name != "" {
		t.Errorf("restart kept prior state: %+v", state)
	}
}

func TestResumeWithoutSuspendedSession(t *testing.T) {
	f := newEngineFixture(t)

	if status := f.handle(t, "resume"); status != StatusNoConversation {
		t.Fatalf("status = %q, want %q", status, StatusNoConversation)
	}
	if f.lastBody(t) != MsgNoResumableSession {
		t.Errorf("reply = %q", f.lastBody(t))
	}
}

// advanceToFinalStage drives the armed warning timer by hand so the test
// controls exactly when each stage of the inactivity chain runs. It returns
// the generation of the now-finalize-armed chain.
func (f *engineFixture) advanceToFinalStage(t *testing.T) uint64 {
	t.Helper()
	f.supervisor.mu.Lock()
	entry := f.supervisor.entries[testUser]
	if entry == nil {
		f.supervisor.mu.Unlock()
		t.Fatalf("supervisor not armed for %s", testUser)
	}
	gen := entry.gen
	f.supervisor.mu.Unlock()
	f.supervisor.fireWarning(testUser, gen)
	return gen
}

func TestInactivityWarningSendsMessage(t *testing.T) {
	f := newEngineFixture(t)

	if err := f.engine.onInactivityWarning(testUser); err != nil {
		t.Fatalf("onInactivityWarning failed: %v", err)
	}
	if f.lastBody(t) != MsgInactivityWarning {
		t.Errorf("reply = %q, want inactivity warning", f.lastBody(t))
	}
}

func TestInactivityFinalizeSuspendsAndResumeRestores(t *testing.T) {
	f := newEngineFixture(t)
	f.handle(t, "start")
	f.handle(t, "maria")
	f.mustStep(t, models.StepAwaitingDate)

	gen := f.advanceToFinalStage(t)
	if f.lastBody(t) != MsgInactivityWarning {
		t.Fatalf("warning stage reply = %q", f.lastBody(t))
	}
	if err := f.engine.onInactivityFinalize(testUser, gen); err != nil {
		t.Fatalf("onInactivityFinalize failed: %v", err)
	}
	if _, ok := f.sessions.Get(testUser); ok {
		t.Fatalf("active session survived finalization")
	}
	if f.lastBody(t) != MsgInactivityTimeout {
		t.Errorf("reply = %q, want timeout notice", f.lastBody(t))
	}

	if status := f.handle(t, "resume"); status != StatusResumed {
		t.Fatalf("resume status = %q, want %q", status, StatusResumed)
	}
	state := f.mustStep(t, models.StepAwaitingDate)
	if state.Name != "Maria" {
		t.Errorf("resumed state lost the name: %+v", state)
	}
	if !strings.Contains(f.lastBody(t), "continue where you left off") {
		t.Errorf("resume reply = %q", f.lastBody(t))
	}
}

func TestInactivityFinalizeWithoutArmedChainIsNoop(t *testing.T) {
	f := newEngineFixture(t)

	if err := f.engine.onInactivityFinalize(testUser, 1); err != nil {
		t.Fatalf("onInactivityFinalize failed: %v", err)
	}
	if len(f.mock.SentMessages) != 0 {
		t.Errorf("finalize without an armed chain sent %d messages", len(f.mock.SentMessages))
	}
}

func TestStaleFinalizeAfterFreshActivityIsDropped(t *testing.T) {
	f := newEngineFixture(t)
	f.handle(t, "start")
	f.handle(t, "maria")

	gen := f.advanceToFinalStage(t)

	// An inbound message gets the per-user lock first: it advances the
	// conversation and re-arms the timer chain.
	f.handle(t, "next monday")
	f.mustStep(t, models.StepAwaitingTime)

	// The old fire now runs with its stale generation and must not suspend
	// the freshly active session.
	if err := f.engine.onInactivityFinalize(testUser, gen); err != nil {
		t.Fatalf("onInactivityFinalize failed: %v", err)
	}
	f.mustStep(t, models.StepAwaitingTime)
	if f.lastBody(t) == MsgInactivityTimeout {
		t.Errorf("stale finalize fire suspended a freshly active session")
	}
	if _, result := f.sessions.Resume(testUser); result != ResumeNotFound {
		t.Errorf("stale finalize fire created an inactive entry")
	}
}

func TestResumeAfterGraceWindowExpires(t *testing.T) {
	f := newEngineFixture(t)
	f.sessions.Suspend(testUser, models.ConversationState{Step: models.StepAwaitingDate}, DefaultInactiveTTL)
	f.sessions.now = func() time.Time { return time.Now().Add(DefaultInactiveTTL + time.Minute) }

	if status := f.handle(t, "resume"); status != StatusResumeExpired {
		t.Fatalf("status = %q, want %q", status, StatusResumeExpired)
	}
	if f.lastBody(t) != MsgResumeExpired {
		t.Errorf("reply = %q", f.lastBody(t))
	}
}

func TestInvalidStepTearsSessionDown(t *testing.T) {
	f := newEngineFixture(t)
	f.sessions.Set(testUser, models.ConversationState{Step: "bogus"})

	if status := f.handle(t, "anything"); status != StatusFinished {
		t.Fatalf("status = %q, want %q", status, StatusFinished)
	}
	if _, ok := f.sessions.Get(testUser); ok {
		t.Errorf("broken session survived teardown")
	}
	if f.lastBody(t) != MsgGenericError {
		t.Errorf("reply = %q, want generic error", f.lastBody(t))
	}
}
