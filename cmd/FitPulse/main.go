package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/FitPulse/internal/api"
	"github.com/BTreeMap/FitPulse/internal/dispatch"
	"github.com/BTreeMap/FitPulse/internal/extract"
	"github.com/BTreeMap/FitPulse/internal/genai"
	"github.com/BTreeMap/FitPulse/internal/lockfile"
	"github.com/BTreeMap/FitPulse/internal/messaging"
	"github.com/BTreeMap/FitPulse/internal/onboarding"
	"github.com/BTreeMap/FitPulse/internal/recovery"
	"github.com/BTreeMap/FitPulse/internal/scheduler"
	"github.com/BTreeMap/FitPulse/internal/session"
	"github.com/BTreeMap/FitPulse/internal/store"
	"github.com/BTreeMap/FitPulse/internal/tasks"
	"github.com/BTreeMap/FitPulse/internal/twiliowhatsapp"
	"github.com/BTreeMap/FitPulse/internal/util"
	"github.com/BTreeMap/FitPulse/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for FitPulse state data
	DefaultStateDir = "/var/lib/fitpulse"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "fitpulse.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	slog.Info("Bootstrapping FitPulse with configured modules")
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr, "transport", *flags.transport)
	if err := run(flags); err != nil {
		slog.Error("FitPulse failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("FitPulse exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL     string
	StateDir        string
	OpenAIKey       string
	APIAddr         string
	Transport       string
	TwilioAuthToken string
	PublicURL       string
}

// Flags holds command line flag values
type Flags struct {
	qrOutput  *string
	numeric   *bool
	stateDir  *string
	dbDSN     *string
	openaiKey *string
	apiAddr   *string
	transport *string
}

// initializeLogger sets up structured logging with the level taken from
// $FITPULSE_LOG_LEVEL (debug/info/warn/error, default info).
func initializeLogger() {
	level := slog.LevelInfo
	switch util.GetEnv("FITPULSE_LOG_LEVEL", "info") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
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
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		StateDir:        os.Getenv("FITPULSE_STATE_DIR"),
		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		APIAddr:         os.Getenv("API_ADDR"),
		Transport:       os.Getenv("MESSAGING_TRANSPORT"),
		TwilioAuthToken: os.Getenv("TWILIO_AUTH_TOKEN"),
		PublicURL:       os.Getenv("PUBLIC_URL"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No FITPULSE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.Transport == "" {
		config.Transport = "whatsapp"
	}

	// Default to SQLite in the state directory when no DSN is provided.
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"FITPULSE_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"MESSAGING_TRANSPORT", config.Transport)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:  flag.String("qr-output", "", "path to write login QR code"),
		numeric:   flag.Bool("numeric-code", false, "use numeric login code instead of QR code"),
		stateDir:  flag.String("state-dir", config.StateDir, "state directory for FitPulse data (overrides $FITPULSE_STATE_DIR)"),
		dbDSN:     flag.String("db-dsn", config.DatabaseURL, "database DSN: SQLite file path or Postgres URL (overrides $DATABASE_URL)"),
		openaiKey: flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:   flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		transport: flag.String("transport", config.Transport, "messaging transport: whatsapp or twilio (overrides $MESSAGING_TRANSPORT)"),
	}

	flag.Parse()

	// Follow an overridden state directory with the derived SQLite path.
	if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// run wires all components together and blocks until shutdown.
func run(flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := openStore(flags)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	completer, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return fmt.Errorf("failed to create GenAI client: %w", err)
	}

	svc, apiOpts, err := buildMessagingService(flags)
	if err != nil {
		return fmt.Errorf("failed to create messaging service: %w", err)
	}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging service: %w", err)
	}
	defer svc.Stop()

	engine := scheduler.NewEngine()
	defer engine.Stop()

	jobs := dispatch.NewJobs(st, svc, completer, engine)
	seedDefaultTips(st)

	manager := recovery.NewManager()
	recovery.RegisterJobRecovery(manager, jobs)
	if err := manager.RecoverAll(ctx); err != nil {
		slog.Warn("run: recovery completed with errors", "error", err)
	}

	runner := tasks.NewRunner()
	defer runner.Close()
	go drainTaskResults(runner)

	coordinator := onboarding.NewCoordinator(session.NewStore(), st, extract.NewExtractor(completer), completer, svc, jobs)

	server := api.NewServer(svc, engine, coordinator, runner, apiOpts...)
	return server.Run(ctx)
}

// openStore picks a storage backend from the DSN.
func openStore(flags Flags) (store.Store, error) {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithPostgresDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithSQLiteDSN(*flags.dbDSN))
}

// buildMessagingService constructs the configured transport. Twilio needs the
// inbound webhook mounted on the API server; WhatsApp pushes inbound messages
// over its own connection.
func buildMessagingService(flags Flags) (messaging.Service, []api.Option, error) {
	switch *flags.transport {
	case "twilio":
		client, err := twiliowhatsapp.NewClient()
		if err != nil {
			return nil, nil, err
		}
		svc := messaging.NewTwilioService(client)
		authToken := os.Getenv("TWILIO_AUTH_TOKEN")
		publicURL := os.Getenv("PUBLIC_URL")
		if authToken != "" && publicURL != "" {
			svc.EnableSignatureValidation(authToken, publicURL)
		} else {
			slog.Warn("buildMessagingService: Twilio signature validation disabled", "auth_token_set", authToken != "", "public_url_set", publicURL != "")
		}
		return svc, []api.Option{api.WithWebhook(svc.WebhookHandler)}, nil
	default:
		var waOpts []whatsapp.Option
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		waOpts = append(waOpts, whatsapp.WithDBDSN(filepath.Join(*flags.stateDir, "whatsapp.db")))
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, nil, err
		}
		return messaging.NewWhatsAppService(client), nil, nil
	}
}

// drainTaskResults logs the outcome of every background task.
func drainTaskResults(runner *tasks.Runner) {
	for result := range runner.Results() {
		if result.Err != nil {
			slog.Error("task failed", "task", result.Name, "error", result.Err, "duration", result.Duration)
			continue
		}
		slog.Debug("task completed", "task", result.Name, "duration", result.Duration)
	}
}

// seedDefaultTips loads a starter tip catalog on first boot so broadcasts
// have something to rotate through before operators add their own.
func seedDefaultTips(st store.Store) {
	existing, err := st.ListActiveTips()
	if err != nil {
		slog.Warn("seedDefaultTips: failed to list tips", "error", err)
		return
	}
	if len(existing) > 0 {
		return
	}

	defaults := []struct {
		text     string
		category string
	}{
		{"Drink a glass of water right after waking up to kick-start your metabolism.", "hydration"},
		{"Warm up for at least 5 minutes before lifting to protect your joints.", "training"},
		{"Aim for 7-9 hours of sleep; recovery is where the gains happen.", "recovery"},
		{"Protein with every meal keeps you full and supports muscle repair.", "nutrition"},
		{"A 10-minute walk after meals helps regulate blood sugar.", "activity"},
		{"Stretch your hip flexors daily if you sit for long hours.", "mobility"},
		{"Track your workouts; what gets measured gets improved.", "habits"},
		{"Rest days are training days for your nervous system. Take them.", "recovery"},
	}
	for _, tip := range defaults {
		if err := st.AddTip(tip.text, tip.category); err != nil {
			slog.Warn("seedDefaultTips: failed to add tip", "error", err)
			return
		}
	}
	slog.Info("seedDefaultTips: seeded starter tip catalog", "count", len(defaults))
}
