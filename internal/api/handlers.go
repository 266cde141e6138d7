// Package api provides HTTP handlers for BookingPipe endpoints.
//
// This file implements the read-only operational endpoints.
package api

import (
	"log/slog"
	"net/http"

	"github.com/BTreeMap/BookingPipe/internal/models"
)

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"service": "BookingPipe"}))
}

func (s *Server) appointmentsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.appointmentsHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	appointments, err := s.st.ListAppointments()
	if err != nil {
		slog.Error("Server.appointmentsHandler: failed to list appointments", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list appointments"))
		return
	}
	slog.Debug("Server.appointmentsHandler: succeeded", "count", len(appointments))
	writeJSONResponse(w, http.StatusOK, models.Success(appointments))
}

func (s *Server) receiptsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.receiptsHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	receipts, err := s.st.GetReceipts()
	if err != nil {
		slog.Error("Server.receiptsHandler: failed to get receipts", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to get receipts"))
		return
	}
	slog.Debug("Server.receiptsHandler: succeeded", "count", len(receipts))
	writeJSONResponse(w, http.StatusOK, models.Success(receipts))
}

func (s *Server) responsesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.responsesHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	responses, err := s.st.GetResponses()
	if err != nil {
		slog.Error("Server.responsesHandler: failed to get responses", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to get responses"))
		return
	}
	slog.Debug("Server.responsesHandler: succeeded", "count", len(responses))
	writeJSONResponse(w, http.StatusOK, models.Success(responses))
}
