// Package store provides storage backends for BookingPipe.
//
// This file implements a PostgreSQL-backed store for appointments,
// receipts, and responses.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/BookingPipe/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	slog.Debug("Opening Postgres database connection")
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) CreateAppointment(appt models.Appointment) (int64, error) {
	if err := appt.Validate(); err != nil {
		return 0, err
	}
	status := appt.Status
	if status == "" {
		status = models.AppointmentStatusPending
	}
	var id int64
	err := s.db.QueryRow(
		`INSERT INTO appointments (name, phone, date, time, reason, status) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		appt.Name, appt.Phone, appt.Date, appt.Time, appt.Reason, status,
	).Scan(&id)
	if err != nil {
		slog.Error("PostgresStore CreateAppointment failed", "error", err, "phone", appt.Phone)
		return 0, fmt.Errorf("failed to insert appointment for %s: %w", appt.Phone, err)
	}
	slog.Debug("PostgresStore CreateAppointment succeeded", "id", id, "phone", appt.Phone)
	return id, nil
}

func (s *PostgresStore) FindPendingByPhone(phone string) (*models.Appointment, error) {
	// The time column holds a 12-hour rendering, so SQL cannot order it
	// chronologically; the most imminent row is picked after scanning.
	rows, err := s.db.Query(
		`SELECT id, name, phone, date, time, reason, status FROM appointments
		 WHERE phone = $1 AND status = $2`,
		phone, models.AppointmentStatusPending,
	)
	if err != nil {
		slog.Error("PostgresStore FindPendingByPhone failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to query pending appointments for %s: %w", phone, err)
	}
	defer rows.Close()

	var pending []models.Appointment
	for rows.Next() {
		var a models.Appointment
		if err := rows.Scan(&a.ID, &a.Name, &a.Phone, &a.Date, &a.Time, &a.Reason, &a.Status); err != nil {
			slog.Error("PostgresStore FindPendingByPhone scan failed", "error", err, "phone", phone)
			return nil, fmt.Errorf("failed to scan pending appointment row: %w", err)
		}
		pending = append(pending, a)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore FindPendingByPhone rows iteration failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to iterate pending appointment rows: %w", err)
	}

	found := earliestPending(pending)
	if found == nil {
		slog.Debug("PostgresStore FindPendingByPhone not found", "phone", phone)
		return nil, nil
	}
	slog.Debug("PostgresStore FindPendingByPhone found", "phone", phone, "id", found.ID)
	return found, nil
}

func (s *PostgresStore) CancelByID(id int64) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE appointments SET status = $1 WHERE id = $2 AND status = $3`,
		models.AppointmentStatusCancelled, id, models.AppointmentStatusPending,
	)
	if err != nil {
		slog.Error("PostgresStore CancelByID failed", "error", err, "id", id)
		return false, fmt.Errorf("failed to cancel appointment %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		slog.Error("PostgresStore CancelByID could not read rows affected", "error", err, "id", id)
		return false, err
	}
	slog.Debug("PostgresStore CancelByID succeeded", "id", id, "cancelled", n > 0)
	return n > 0, nil
}

func (s *PostgresStore) RescheduleByID(id int64, date, timeStr, reason string) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE appointments SET date = $1, time = $2, reason = $3 WHERE id = $4 AND status = $5`,
		date, timeStr, reason, id, models.AppointmentStatusPending,
	)
	if err != nil {
		slog.Error("PostgresStore RescheduleByID failed", "error", err, "id", id)
		return false, fmt.Errorf("failed to reschedule appointment %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		slog.Error("PostgresStore RescheduleByID could not read rows affected", "error", err, "id", id)
		return false, err
	}
	slog.Debug("PostgresStore RescheduleByID succeeded", "id", id, "rescheduled", n > 0)
	return n > 0, nil
}

func (s *PostgresStore) ListAppointments() ([]models.Appointment, error) {
	rows, err := s.db.Query(`SELECT id, name, phone, date, time, reason, status FROM appointments`)
	if err != nil {
		slog.Error("PostgresStore ListAppointments query failed", "error", err)
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	defer rows.Close()

	var appointments []models.Appointment
	for rows.Next() {
		var a models.Appointment
		if err := rows.Scan(&a.ID, &a.Name, &a.Phone, &a.Date, &a.Time, &a.Reason, &a.Status); err != nil {
			slog.Error("PostgresStore ListAppointments scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan appointment row: %w", err)
		}
		appointments = append(appointments, a)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore ListAppointments rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate appointment rows: %w", err)
	}
	sortAppointments(appointments)
	slog.Debug("PostgresStore ListAppointments succeeded", "count", len(appointments))
	return appointments, nil
}

func (s *PostgresStore) AddReceipt(r models.Receipt) error {
	_, err := s.db.Exec(`INSERT INTO receipts (recipient, status, time) VALUES ($1, $2, $3)`, r.To, r.Status, r.Time)
	if err != nil {
		slog.Error("PostgresStore AddReceipt failed", "error", err, "to", r.To)
		return fmt.Errorf("failed to insert receipt for %s: %w", r.To, err)
	}
	slog.Debug("PostgresStore AddReceipt succeeded", "to", r.To, "status", r.Status)
	return nil
}

func (s *PostgresStore) GetReceipts() ([]models.Receipt, error) {
	rows, err := s.db.Query(`SELECT recipient, status, time FROM receipts`)
	if err != nil {
		slog.Error("PostgresStore GetReceipts query failed", "error", err)
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer rows.Close()

	var receipts []models.Receipt
	for rows.Next() {
		var r models.Receipt
		if err := rows.Scan(&r.To, &r.Status, &r.Time); err != nil {
			slog.Error("PostgresStore GetReceipts scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan receipt row: %w", err)
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore GetReceipts rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate receipt rows: %w", err)
	}
	slog.Debug("PostgresStore GetReceipts succeeded", "count", len(receipts))
	return receipts, nil
}

func (s *PostgresStore) AddResponse(r models.Response) error {
	_, err := s.db.Exec(`INSERT INTO responses (sender, body, time) VALUES ($1, $2, $3)`, r.From, r.Body, r.Time)
	if err != nil {
		slog.Error("PostgresStore AddResponse failed", "error", err, "from", r.From)
		return fmt.Errorf("failed to insert response from %s: %w", r.From, err)
	}
	slog.Debug("PostgresStore AddResponse succeeded", "from", r.From)
	return nil
}

func (s *PostgresStore) GetResponses() ([]models.Response, error) {
	rows, err := s.db.Query(`SELECT sender, body, time FROM responses`)
	if err != nil {
		slog.Error("PostgresStore GetResponses query failed", "error", err)
		return nil, err
	}
	defer rows.Close()

	var responses []models.Response
	for rows.Next() {
		var r models.Response
		if err := rows.Scan(&r.From, &r.Body, &r.Time); err != nil {
			slog.Error("PostgresStore GetResponses scan failed", "error", err)
			return nil, err
		}
		responses = append(responses, r)
	}
	slog.Debug("PostgresStore GetResponses succeeded", "count", len(responses))
	return responses, nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	}
	return err
}
