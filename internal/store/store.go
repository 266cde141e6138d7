// Package store provides storage backends for BookingPipe.
//
// It includes an in-memory store for tests and small deployments, plus
// SQLite and PostgreSQL backends for persistent appointment storage.
package store

import (
	"sort"
	"sync"

	"github.com/BTreeMap/BookingPipe/internal/models"
)

// Store defines the persistence operations the booking flow depends on.
// Implementations must be safe for concurrent use.
type Store interface {
	// CreateAppointment inserts a new appointment and returns its id.
	CreateAppointment(appt models.Appointment) (int64, error)
	// FindPendingByPhone returns the patient's earliest pending appointment,
	// or nil when none exists.
	FindPendingByPhone(phone string) (*models.Appointment, error)
	// CancelByID marks an appointment cancelled. The bool reports whether a
	// pending appointment with that id existed.
	CancelByID(id int64) (bool, error)
	// RescheduleByID replaces the date, time, and reason of a pending
	// appointment. The bool reports whether the row was found.
	RescheduleByID(id int64, date, timeStr, reason string) (bool, error)
	// ListAppointments returns all appointments ordered by date and time.
	ListAppointments() ([]models.Appointment, error)

	AddReceipt(r models.Receipt) error
	GetReceipts() ([]models.Receipt, error)
	AddResponse(r models.Response) error
	GetResponses() ([]models.Response, error)

	Close() error
}

// appointmentBefore orders appointments chronologically: by date, then by
// the stored clock time parsed into minutes since midnight. The time column
// holds a 12-hour rendering, so a lexical comparison would put "1:00 PM"
// before "9:00 AM". Unparseable times fall back to a string comparison.
func appointmentBefore(a, b models.Appointment) bool {
	if a.Date != b.Date {
		return a.Date < b.Date
	}
	at, aerr := models.ParseClockString(a.Time)
	bt, berr := models.ParseClockString(b.Time)
	if aerr != nil || berr != nil {
		return a.Time < b.Time
	}
	return at.Minutes() < bt.Minutes()
}

// sortAppointments orders a slice chronologically in place.
func sortAppointments(appointments []models.Appointment) {
	sort.Slice(appointments, func(i, j int) bool {
		return appointmentBefore(appointments[i], appointments[j])
	})
}

// earliestPending picks the most imminent pending appointment from a slice,
// or nil when the slice is empty.
func earliestPending(appointments []models.Appointment) *models.Appointment {
	var found *models.Appointment
	for i := range appointments {
		if found == nil || appointmentBefore(appointments[i], *found) {
			found = &appointments[i]
		}
	}
	if found == nil {
		return nil
	}
	copied := *found
	return &copied
}

// InMemoryStore is a map-backed Store. It is the default backend when no
// DSN is configured, and the workhorse of the test suites.
type InMemoryStore struct {
	mu           sync.Mutex
	nextID       int64
	appointments map[int64]models.Appointment
	receipts     []models.Receipt
	responses    []models.Response
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		nextID:       1,
		appointments: make(map[int64]models.Appointment),
	}
}

func (s *InMemoryStore) CreateAppointment(appt models.Appointment) (int64, error) {
	if err := appt.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	appt.ID = s.nextID
	s.nextID++
	if appt.Status == "" {
		appt.Status = models.AppointmentStatusPending
	}
	s.appointments[appt.ID] = appt
	return appt.ID, nil
}

func (s *InMemoryStore) FindPendingByPhone(phone string) (*models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []models.Appointment
	for _, appt := range s.appointments {
		if appt.Phone == phone && appt.Status == models.AppointmentStatusPending {
			pending = append(pending, appt)
		}
	}
	return earliestPending(pending), nil
}

func (s *InMemoryStore) CancelByID(id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt, ok := s.appointments[id]
	if !ok || appt.Status != models.AppointmentStatusPending {
		return false, nil
	}
	appt.Status = models.AppointmentStatusCancelled
	s.appointments[id] = appt
	return true, nil
}

func (s *InMemoryStore) RescheduleByID(id int64, date, timeStr, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt, ok := s.appointments[id]
	if !ok || appt.Status != models.AppointmentStatusPending {
		return false, nil
	}
	appt.Date = date
	appt.Time = timeStr
	appt.Reason = reason
	s.appointments[id] = appt
	return true, nil
}

func (s *InMemoryStore) ListAppointments() ([]models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appointments := make([]models.Appointment, 0, len(s.appointments))
	for _, appt := range s.appointments {
		appointments = append(appointments, appt)
	}
	sortAppointments(appointments)
	return appointments, nil
}

func (s *InMemoryStore) AddReceipt(r models.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts = append(s.receipts, r)
	return nil
}

func (s *InMemoryStore) GetReceipts() ([]models.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Receipt, len(s.receipts))
	copy(out, s.receipts)
	return out, nil
}

func (s *InMemoryStore) AddResponse(r models.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, r)
	return nil
}

func (s *InMemoryStore) GetResponses() ([]models.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Response, len(s.responses))
	copy(out, s.responses)
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
