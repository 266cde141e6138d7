// Package store provides storage backends for BookingPipe.
//
// This file implements an SQLite-backed store for appointments, receipts,
// and responses.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/BTreeMap/BookingPipe/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database
// directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	slog.Debug("Opening SQLite database connection")
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreateAppointment(appt models.Appointment) (int64, error) {
	if err := appt.Validate(); err != nil {
		return 0, err
	}
	status := appt.Status
	if status == "" {
		status = models.AppointmentStatusPending
	}
	res, err := s.db.Exec(
		`INSERT INTO appointments (name, phone, date, time, reason, status) VALUES (?, ?, ?, ?, ?, ?)`,
		appt.Name, appt.Phone, appt.Date, appt.Time, appt.Reason, status,
	)
	if err != nil {
		slog.Error("SQLiteStore CreateAppointment failed", "error", err, "phone", appt.Phone)
		return 0, fmt.Errorf("failed to insert appointment for %s: %w", appt.Phone, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		slog.Error("SQLiteStore CreateAppointment could not read id", "error", err)
		return 0, err
	}
	slog.Debug("SQLiteStore CreateAppointment succeeded", "id", id, "phone", appt.Phone)
	return id, nil
}

func (s *SQLiteStore) FindPendingByPhone(phone string) (*models.Appointment, error) {
	// The time column holds a 12-hour rendering, so SQL cannot order it
	// chronologically; the most imminent row is picked after scanning.
	rows, err := s.db.Query(
		`SELECT id, name, phone, date, time, reason, status FROM appointments
		 WHERE phone = ? AND status = ?`,
		phone, models.AppointmentStatusPending,
	)
	if err != nil {
		slog.Error("SQLiteStore FindPendingByPhone failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to query pending appointments for %s: %w", phone, err)
	}
	defer rows.Close()

	var pending []models.Appointment
	for rows.Next() {
		var a models.Appointment
		if err := rows.Scan(&a.ID, &a.Name, &a.Phone, &a.Date, &a.Time, &a.Reason, &a.Status); err != nil {
			slog.Error("SQLiteStore FindPendingByPhone scan failed", "error", err, "phone", phone)
			return nil, fmt.Errorf("failed to scan pending appointment row: %w", err)
		}
		pending = append(pending, a)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore FindPendingByPhone rows iteration failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to iterate pending appointment rows: %w", err)
	}

	found := earliestPending(pending)
	if found == nil {
		slog.Debug("SQLiteStore FindPendingByPhone not found", "phone", phone)
		return nil, nil
	}
	slog.Debug("SQLiteStore FindPendingByPhone found", "phone", phone, "id", found.ID)
	return found, nil
}

func (s *SQLiteStore) CancelByID(id int64) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE appointments SET status = ? WHERE id = ? AND status = ?`,
		models.AppointmentStatusCancelled, id, models.AppointmentStatusPending,
	)
	if err != nil {
		slog.Error("SQLiteStore CancelByID failed", "error", err, "id", id)
		return false, fmt.Errorf("failed to cancel appointment %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		slog.Error("SQLiteStore CancelByID could not read rows affected", "error", err, "id", id)
		return false, err
	}
	slog.Debug("SQLiteStore CancelByID succeeded", "id", id, "cancelled", n > 0)
	return n > 0, nil
}

func (s *SQLiteStore) RescheduleByID(id int64, date, timeStr, reason string) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE appointments SET date = ?, time = ?, reason = ? WHERE id = ? AND status = ?`,
		date, timeStr, reason, id, models.AppointmentStatusPending,
	)
	if err != nil {
		slog.Error("SQLiteStore RescheduleByID failed", "error", err, "id", id)
		return false, fmt.Errorf("failed to reschedule appointment %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		slog.Error("SQLiteStore RescheduleByID could not read rows affected", "error", err, "id", id)
		return false, err
	}
	slog.Debug("SQLiteStore RescheduleByID succeeded", "id", id, "rescheduled", n > 0)
	return n > 0, nil
}

func (s *SQLiteStore) ListAppointments() ([]models.Appointment, error) {
	rows, err := s.db.Query(`SELECT id, name, phone, date, time, reason, status FROM appointments`)
	if err != nil {
		slog.Error("SQLiteStore ListAppointments query failed", "error", err)
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	defer rows.Close()

	var appointments []models.Appointment
	for rows.Next() {
		var a models.Appointment
		if err := rows.Scan(&a.ID, &a.Name, &a.Phone, &a.Date, &a.Time, &a.Reason, &a.Status); err != nil {
			slog.Error("SQLiteStore ListAppointments scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan appointment row: %w", err)
		}
		appointments = append(appointments, a)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore ListAppointments rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate appointment rows: %w", err)
	}
	sortAppointments(appointments)
	slog.Debug("SQLiteStore ListAppointments succeeded", "count", len(appointments))
	return appointments, nil
}

func (s *SQLiteStore) AddReceipt(r models.Receipt) error {
	_, err := s.db.Exec(`INSERT INTO receipts (recipient, status, time) VALUES (?, ?, ?)`, r.To, r.Status, r.Time)
	if err != nil {
		slog.Error("SQLiteStore AddReceipt failed", "error", err, "to", r.To)
		return fmt.Errorf("failed to insert receipt for %s: %w", r.To, err)
	}
	slog.Debug("SQLiteStore AddReceipt succeeded", "to", r.To, "status", r.Status)
	return nil
}

func (s *SQLiteStore) GetReceipts() ([]models.Receipt, error) {
	rows, err := s.db.Query(`SELECT recipient, status, time FROM receipts`)
	if err != nil {
		slog.Error("SQLiteStore GetReceipts query failed", "error", err)
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer rows.Close()

	var receipts []models.Receipt
	for rows.Next() {
		var r models.Receipt
		if err := rows.Scan(&r.To, &r.Status, &r.Time); err != nil {
			slog.Error("SQLiteStore GetReceipts scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan receipt row: %w", err)
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore GetReceipts rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate receipt rows: %w", err)
	}
	slog.Debug("SQLiteStore GetReceipts succeeded", "count", len(receipts))
	return receipts, nil
}

func (s *SQLiteStore) AddResponse(r models.Response) error {
	_, err := s.db.Exec(`INSERT INTO responses (sender, body, time) VALUES (?, ?, ?)`, r.From, r.Body, r.Time)
	if err != nil {
		slog.Error("SQLiteStore AddResponse failed", "error", err, "from", r.From)
		return fmt.Errorf("failed to insert response from %s: %w", r.From, err)
	}
	slog.Debug("SQLiteStore AddResponse succeeded", "from", r.From)
	return nil
}

func (s *SQLiteStore) GetResponses() ([]models.Response, error) {
	rows, err := s.db.Query(`SELECT sender, body, time FROM responses`)
	if err != nil {
		slog.Error("SQLiteStore GetResponses query failed", "error", err)
		return nil, err
	}
	defer rows.Close()

	var responses []models.Response
	for rows.Next() {
		var r models.Response
		if err := rows.Scan(&r.From, &r.Body, &r.Time); err != nil {
			slog.Error("SQLiteStore GetResponses scan failed", "error", err)
			return nil, err
		}
		responses = append(responses, r)
	}
	slog.Debug("SQLiteStore GetResponses succeeded", "count", len(responses))
	return responses, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
