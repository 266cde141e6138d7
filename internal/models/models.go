// Package models defines the core data structures for BookingPipe.
//
// It includes types for appointments, inbound responses, delivery receipts,
// and the API response envelope, which are shared across modules.
package models

import (
	"errors"
	"time"
)

// AppointmentStatus represents the lifecycle status of a persisted appointment.
type AppointmentStatus string

const (
	// AppointmentStatusPending indicates the appointment is booked and upcoming.
	AppointmentStatusPending AppointmentStatus = "pending"
	// AppointmentStatusCancelled indicates the appointment was cancelled by the patient.
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
)

// Validation constants for input validation
const (
	// MaxNameLength defines the maximum allowed length for a patient name
	MaxNameLength = 200
	// MaxReasonLength defines the maximum allowed length for a visit reason
	MaxReasonLength = 1000
)

// Error variables for better error handling and testability
var (
	ErrEmptyPhone       = errors.New("phone cannot be empty")
	ErrEmptyName        = errors.New("name is required")
	ErrNameTooLong      = errors.New("name exceeds maximum length")
	ErrEmptyDate        = errors.New("date is required")
	ErrInvalidDate      = errors.New("date must be in YYYY-MM-DD form")
	ErrEmptyTime        = errors.New("time is required")
	ErrEmptyReason      = errors.New("reason is required")
	ErrReasonTooLong    = errors.New("reason exceeds maximum length")
	ErrInvalidClockTime = errors.New("invalid clock time")
)

// Appointment represents a persisted appointment record.
// Date is an ISO civil date (YYYY-MM-DD) and Time is a rendered
// 12-hour clock string such as "3:00 PM".
type Appointment struct {
	ID     int64             `json:"id"`
	Name   string            `json:"name"`
	Phone  string            `json:"phone"`
	Date   string            `json:"date"`
	Time   string            `json:"time"`
	Reason string            `json:"reason"`
	Status AppointmentStatus `json:"status"`
}

// Validate performs validation on an Appointment before it is persisted.
func (a *Appointment) Validate() error {
	if a.Phone == "" {
		return ErrEmptyPhone
	}
	if a.Name == "" {
		return ErrEmptyName
	}
	if len(a.Name) > MaxNameLength {
		return ErrNameTooLong
	}
	if a.Date == "" {
		return ErrEmptyDate
	}
	if _, err := time.Parse("2006-01-02", a.Date); err != nil {
		return ErrInvalidDate
	}
	if a.Time == "" {
		return ErrEmptyTime
	}
	if a.Reason == "" {
		return ErrEmptyReason
	}
	if len(a.Reason) > MaxReasonLength {
		return ErrReasonTooLong
	}
	return nil
}

// MessageStatus represents the delivery status of a message.
type MessageStatus string

const (
	// MessageStatusSent indicates the message was sent.
	MessageStatusSent MessageStatus = "sent"
	// MessageStatusDelivered indicates the message was delivered.
	MessageStatusDelivered MessageStatus = "delivered"
	// MessageStatusRead indicates the message was read.
	MessageStatusRead MessageStatus = "read"
	// MessageStatusFailed indicates the message failed to send.
	MessageStatusFailed MessageStatus = "failed"
)

// Receipt represents a delivery receipt for an outbound message.
type Receipt struct {
	To     string        `json:"to"`
	Status MessageStatus `json:"status"`
	Time   int64         `json:"time"`
}

// Response represents an incoming message from a patient.
type Response struct {
	From string `json:"from"`
	Body string `json:"body"`
	Time int64  `json:"time"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}

// WebhookStatus creates the informational status token returned to the
// transport for every inbound webhook, e.g. {"status": "message_processed"}.
// Tokens are informational, not contractual.
func WebhookStatus(token string) APIResponse {
	return APIResponse{Status: token}
}
