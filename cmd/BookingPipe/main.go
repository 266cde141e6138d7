package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BTreeMap/BookingPipe/internal/api"
	"github.com/BTreeMap/BookingPipe/internal/flow"
	"github.com/BTreeMap/BookingPipe/internal/store"
	"github.com/BTreeMap/BookingPipe/internal/util"
	"github.com/BTreeMap/BookingPipe/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for BookingPipe state data
	DefaultStateDir = "/var/lib/bookingpipe"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "bookingpipe.db"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// Build module options
	storeOpts := buildStoreOptions(flags)
	waOpts := buildWhatsAppOptions(flags)
	apiOpts := buildAPIOptions(flags, config)

	slog.Info("Bootstrapping BookingPipe with configured modules")
	slog.Debug("Module options counts", "store", len(storeOpts), "whatsapp", len(waOpts), "api", len(apiOpts))
	if err := api.Run(storeOpts, waOpts, nil, apiOpts); err != nil {
		slog.Error("BookingPipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("BookingPipe exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL   string
	WhatsAppDSN   string
	StateDir      string
	APIAddr       string
	Transport     string
	Timezone      string
	SchedulePath  string
	WarnAfter     time.Duration
	FinalizeAfter time.Duration
	InactiveTTL   time.Duration
}

// Flags holds command line flag values
type Flags struct {
	qrOutput     *string
	numeric      *bool
	stateDir     *string
	dbDSN        *string
	apiAddr      *string
	transport    *string
	timezone     *string
	schedulePath *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		WhatsAppDSN:   os.Getenv("WHATSAPP_DB_DSN"),
		StateDir:      os.Getenv("BOOKINGPIPE_STATE_DIR"),
		APIAddr:       os.Getenv("API_ADDR"),
		Transport:     os.Getenv("MESSAGING_TRANSPORT"),
		Timezone:      os.Getenv("BOOKING_TIMEZONE"),
		SchedulePath:  os.Getenv("SCHEDULE_PATH"),
		WarnAfter:     util.ParseDurationEnv("INACTIVITY_WARN_AFTER", flow.DefaultWarnAfter),
		FinalizeAfter: util.ParseDurationEnv("INACTIVITY_FINALIZE_AFTER", flow.DefaultFinalizeAfter),
		InactiveTTL:   util.ParseDurationEnv("INACTIVE_SESSION_TTL", flow.DefaultInactiveTTL),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No BOOKINGPIPE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// The appointment store defaults to SQLite in the state directory.
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No DATABASE_URL provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"BOOKINGPIPE_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"MESSAGING_TRANSPORT", config.Transport,
		"BOOKING_TIMEZONE", config.Timezone,
		"SCHEDULE_PATH", config.SchedulePath,
		"INACTIVITY_WARN_AFTER", config.WarnAfter,
		"INACTIVITY_FINALIZE_AFTER", config.FinalizeAfter,
		"INACTIVE_SESSION_TTL", config.InactiveTTL)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:     flag.String("qr-output", "", "path to write login QR code (whatsmeow transport)"),
		numeric:      flag.Bool("numeric-code", false, "use numeric login code instead of QR code (whatsmeow transport)"),
		stateDir:     flag.String("state-dir", config.StateDir, "state directory for BookingPipe data (overrides $BOOKINGPIPE_STATE_DIR)"),
		dbDSN:        flag.String("db-dsn", config.DatabaseURL, "database DSN for the appointment store (overrides $DATABASE_URL)"),
		apiAddr:      flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		transport:    flag.String("transport", config.Transport, "messaging transport: twilio or whatsmeow (overrides $MESSAGING_TRANSPORT)"),
		timezone:     flag.String("timezone", config.Timezone, "IANA timezone for date interpretation (overrides $BOOKING_TIMEZONE)"),
		schedulePath: flag.String("schedule", config.SchedulePath, "path to YAML doctor schedule file (overrides $SCHEDULE_PATH)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr,
		"transport", *flags.transport,
		"timezone", *flags.timezone,
		"schedulePath", *flags.schedulePath)

	// Keep the default SQLite path in step with a state-dir override.
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == store.DSNTypeSQLite {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
	}
	return nil
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		if store.DetectDSNType(*flags.dbDSN) == store.DSNTypePostgres {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
			storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
		} else {
			slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
			storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
		}
	} else {
		slog.Debug("No database DSN provided, will use in-memory store")
	}
	return storeOpts
}

// buildWhatsAppOptions constructs WhatsApp client configuration options
// for the whatsmeow transport.
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if dsn := os.Getenv("WHATSAPP_DB_DSN"); dsn != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(dsn))
	} else {
		waOpts = append(waOpts, whatsapp.WithDBDSN(filepath.Join(*flags.stateDir, "whatsmeow.db")))
	}
	return waOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags, config Config) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.transport != "" {
		apiOpts = append(apiOpts, api.WithTransport(strings.ToLower(*flags.transport)))
	}
	if *flags.timezone != "" {
		apiOpts = append(apiOpts, api.WithTimezone(*flags.timezone))
	}
	if *flags.schedulePath != "" {
		apiOpts = append(apiOpts, api.WithSchedulePath(*flags.schedulePath))
	}
	apiOpts = append(apiOpts,
		api.WithSupervisorOptions(
			flow.WithWarnAfter(config.WarnAfter),
			flow.WithFinalizeAfter(config.FinalizeAfter),
		),
		api.WithEngineOptions(flow.WithInactiveTTL(config.InactiveTTL)),
	)
	return apiOpts
}
