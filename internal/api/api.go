// Package api provides HTTP handlers and the main API server logic for
// BookingPipe.
//
// It exposes the WhatsApp webhook that drives the booking conversation and
// read-only endpoints for appointments, receipts, and responses. The API
// wires together the store, messaging, schedule, and flow modules.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/BookingPipe/internal/flow"
	"github.com/BTreeMap/BookingPipe/internal/messaging"
	"github.com/BTreeMap/BookingPipe/internal/nlp"
	"github.com/BTreeMap/BookingPipe/internal/schedule"
	"github.com/BTreeMap/BookingPipe/internal/store"
	"github.com/BTreeMap/BookingPipe/internal/twiliowhatsapp"
	"github.com/BTreeMap/BookingPipe/internal/whatsapp"
)

// Defaults for the API server configuration
const (
	// DefaultAddr is the default API server listen address
	DefaultAddr = ":8080"
)

// Supported messaging transports
const (
	TransportTwilio    = "twilio"
	TransportWhatsmeow = "whatsmeow"
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr         string
	Transport    string
	Timezone     string
	SchedulePath string

	engineOpts     []flow.EngineOption
	supervisorOpts []flow.SupervisorOption
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the API server listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithTransport selects the messaging transport ("twilio" or "whatsmeow").
func WithTransport(transport string) Option {
	return func(o *Opts) { o.Transport = transport }
}

// WithTimezone sets the IANA timezone anchoring date interpretation.
func WithTimezone(tz string) Option {
	return func(o *Opts) { o.Timezone = tz }
}

// WithSchedulePath sets the path of the YAML doctor-schedule file. When
// unset the built-in default schedule is used.
func WithSchedulePath(path string) Option {
	return func(o *Opts) { o.SchedulePath = path }
}

// WithSupervisorOptions forwards timer configuration to the inactivity
// supervisor.
func WithSupervisorOptions(opts ...flow.SupervisorOption) Option {
	return func(o *Opts) { o.supervisorOpts = append(o.supervisorOpts, opts...) }
}

// WithEngineOptions forwards configuration to the conversation engine.
func WithEngineOptions(opts ...flow.EngineOption) Option {
	return func(o *Opts) { o.engineOpts = append(o.engineOpts, opts...) }
}

// Server holds the wired collaborators behind the HTTP handlers.
type Server struct {
	engine     *flow.Engine
	msgService messaging.Service
	st         store.Store
}

// NewServer creates a Server from already-constructed collaborators.
func NewServer(engine *flow.Engine, msgService messaging.Service, st store.Store) *Server {
	return &Server{engine: engine, msgService: msgService, st: st}
}

// Handler builds the HTTP routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.webhookHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/appointments", s.appointmentsHandler)
	mux.HandleFunc("/receipts", s.receiptsHandler)
	mux.HandleFunc("/responses", s.responsesHandler)
	return mux
}

// Run bootstraps the whole service: storage, messaging transport, schedule,
// parser, conversation engine, journaling, and the HTTP server. It blocks
// until the HTTP server exits.
func Run(storeOpts []store.Option, waOpts []whatsapp.Option, twilioOpts []twiliowhatsapp.Option, apiOpts []Option) error {
	cfg := Opts{
		Addr:      DefaultAddr,
		Transport: TransportTwilio,
	}
	for _, opt := range apiOpts {
		opt(&cfg)
	}
	slog.Debug("API Run configuration assembled", "addr", cfg.Addr, "transport", cfg.Transport, "timezone", cfg.Timezone, "schedule_path", cfg.SchedulePath)

	st, err := buildStore(storeOpts)
	if err != nil {
		return err
	}
	defer st.Close()

	msgService, err := buildMessagingService(cfg.Transport, waOpts, twilioOpts)
	if err != nil {
		return err
	}

	var parserOpts []nlp.Option
	if cfg.Timezone != "" {
		parserOpts = append(parserOpts, nlp.WithTimezone(cfg.Timezone))
	}
	parser, err := nlp.NewParser(parserOpts...)
	if err != nil {
		return err
	}

	table := schedule.Default()
	if cfg.SchedulePath != "" {
		table, err = schedule.Load(cfg.SchedulePath)
		if err != nil {
			return err
		}
	}

	sessions := flow.NewSessionStore()
	supervisor := flow.NewInactivitySupervisor(cfg.supervisorOpts...)
	engine := flow.NewEngine(sessions, supervisor, st, msgService, table, parser, cfg.engineOpts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := msgService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging service: %w", err)
	}
	defer msgService.Stop()

	server := NewServer(engine, msgService, st)
	go server.journalEvents(ctx)

	slog.Info("BookingPipe API running", "addr", cfg.Addr)
	return http.ListenAndServe(cfg.Addr, server.Handler())
}

// buildStore selects the storage backend from the collapsed store options:
// in-memory when no DSN is configured, otherwise SQLite or Postgres by DSN
// shape.
func buildStore(storeOpts []store.Option) (store.Store, error) {
	var cfg store.Opts
	for _, opt := range storeOpts {
		opt(&cfg)
	}

	if cfg.DSN == "" {
		slog.Info("No database DSN configured, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(cfg.DSN) == store.DSNTypePostgres {
		slog.Info("Using PostgreSQL store")
		return store.NewPostgresStore(storeOpts...)
	}
	slog.Info("Using SQLite store", "path", cfg.DSN)
	return store.NewSQLiteStore(storeOpts...)
}

// buildMessagingService constructs the configured transport.
func buildMessagingService(transport string, waOpts []whatsapp.Option, twilioOpts []twiliowhatsapp.Option) (messaging.Service, error) {
	switch transport {
	case TransportTwilio:
		client, err := twiliowhatsapp.NewClient(twilioOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create Twilio client: %w", err)
		}
		return messaging.NewTwilioService(client), nil
	case TransportWhatsmeow:
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create WhatsApp client: %w", err)
		}
		return messaging.NewWhatsAppService(client), nil
	default:
		return nil, fmt.Errorf("unknown messaging transport %q", transport)
	}
}

// journalEvents drains the messaging service's receipt and response
// channels into the store so message traffic survives restarts.
func (s *Server) journalEvents(ctx context.Context) {
	receipts := s.msgService.Receipts()
	responses := s.msgService.Responses()
	for {
		select {
		case r, ok := <-receipts:
			if !ok {
				receipts = nil
				break
			}
			if err := s.st.AddReceipt(r); err != nil {
				slog.Error("Server failed to journal receipt", "error", err, "to", r.To)
			}
		case resp, ok := <-responses:
			if !ok {
				responses = nil
				break
			}
			if err := s.st.AddResponse(resp); err != nil {
				slog.Error("Server failed to journal response", "error", err, "from", resp.From)
			}
		case <-ctx.Done():
			return
		}
		if receipts == nil && responses == nil {
			return
		}
	}
}
