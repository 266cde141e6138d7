// Package api provides HTTP handlers for BookingPipe endpoints.
//
// This file implements the inbound WhatsApp webhook, the single entry
// point of the booking conversation.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BTreeMap/BookingPipe/internal/flow"
	"github.com/BTreeMap/BookingPipe/internal/models"
)

// webhookHandler receives form-encoded inbound messages from the WhatsApp
// transport (Twilio posts From and Body) and feeds them to the
// conversation engine. The transport retries on non-200 replies, so the
// handler always answers 200 with an informational status token; a broken
// conversation must not cause redelivery storms.
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.webhookHandler: processing webhook request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.webhookHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.webhookHandler: failed to parse form", "error", err)
		writeJSONResponse(w, http.StatusOK, models.WebhookStatus(flow.StatusError))
		return
	}

	from := strings.TrimPrefix(r.FormValue("From"), "whatsapp:")
	body := r.FormValue("Body")
	if from == "" {
		slog.Warn("Server.webhookHandler: missing From field")
		writeJSONResponse(w, http.StatusOK, models.WebhookStatus(flow.StatusError))
		return
	}

	user, err := s.msgService.ValidateAndCanonicalizeRecipient(from)
	if err != nil {
		slog.Warn("Server.webhookHandler: sender validation failed", "error", err, "from", from)
		writeJSONResponse(w, http.StatusOK, models.WebhookStatus(flow.StatusError))
		return
	}

	token := s.dispatch(r.Context(), user, body)
	writeJSONResponse(w, http.StatusOK, models.WebhookStatus(token))
}

// dispatch runs one engine step under panic recovery. A panic mid-step
// yields a best-effort apology to the patient and the error token; the
// webhook response is still 200.
func (s *Server) dispatch(ctx context.Context, user, body string) (token string) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Server.webhookHandler: engine panicked", "panic", rec, "user", user)
			if err := s.msgService.SendMessage(ctx, user, flow.MsgGenericError); err != nil {
				slog.Error("Server.webhookHandler: failed to send apology after panic", "error", err, "user", user)
			}
			token = flow.StatusError
		}
	}()

	// Journaling runs through the messaging service's response channel, the
	// same path live transport events take.
	s.msgService.EmitResponse(models.Response{From: user, Body: body, Time: time.Now().Unix()})

	return s.engine.HandleInbound(ctx, user, body)
}
