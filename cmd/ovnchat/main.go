package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/BTreeMap/ovnchat/internal/api"
	"github.com/BTreeMap/ovnchat/internal/backend"
	"github.com/BTreeMap/ovnchat/internal/catalog"
	"github.com/BTreeMap/ovnchat/internal/chatbot"
	"github.com/BTreeMap/ovnchat/internal/genai"
	"github.com/BTreeMap/ovnchat/internal/lockfile"
	"github.com/BTreeMap/ovnchat/internal/maintenance"
	"github.com/BTreeMap/ovnchat/internal/messaging"
	"github.com/BTreeMap/ovnchat/internal/resilience"
	"github.com/BTreeMap/ovnchat/internal/scheduler"
	"github.com/BTreeMap/ovnchat/internal/security"
	"github.com/BTreeMap/ovnchat/internal/session"
	"github.com/BTreeMap/ovnchat/internal/store"
	"github.com/BTreeMap/ovnchat/internal/twiliowhatsapp"
	"github.com/BTreeMap/ovnchat/internal/util"
	"github.com/BTreeMap/ovnchat/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for ovnchat state data
	DefaultStateDir = "/var/lib/ovnchat"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "ovnchat.db"
	// DefaultWhatsAppDBFileName holds the whatsmeow device store
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// TwilioWebhookPath receives Twilio's inbound message callbacks
	TwilioWebhookPath = "/webhook/twilio"

	dedupRetention   = 24 * time.Hour
	sessionRetention = 90 * 24 * time.Hour
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping ovnchat with configured modules")
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr, "whatsapp", *flags.whatsapp)
	if err := run(ctx, config, flags); err != nil {
		slog.Error("ovnchat failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("ovnchat exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir           string
	DatabaseDSN        string
	WhatsAppDSN        string
	RedisURL           string
	OpenAIKey          string
	OpenAIModel        string
	BackendURL         string
	APIAddr            string
	AdminToken         string
	JWTSecret          string
	RateLimitPerMinute int
	RateLimitBurst     int
	SessionTimeout     time.Duration
	MaxHistory         int
	WhatsAppEnabled    bool
	TwilioAccountSID   string
	TwilioAuthToken    string
	TwilioFrom         string
	PruneSchedule      string
}

// Flags holds command line flag values
type Flags struct {
	qrOutput   *string
	numeric    *bool
	stateDir   *string
	dbDSN      *string
	waDSN      *string
	redisURL   *string
	openaiKey  *string
	model      *string
	backendURL *string
	apiAddr    *string
	whatsapp   *bool
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
		StateDir:           os.Getenv("OVNCHAT_STATE_DIR"),
		DatabaseDSN:        os.Getenv("DATABASE_DSN"),
		WhatsAppDSN:        os.Getenv("WHATSAPP_DB_DSN"),
		RedisURL:           os.Getenv("REDIS_URL"),
		OpenAIKey:          os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:        os.Getenv("OPENAI_MODEL"),
		BackendURL:         os.Getenv("BACKEND_BASE_URL"),
		APIAddr:            os.Getenv("API_ADDR"),
		AdminToken:         os.Getenv("ADMIN_TOKEN"),
		JWTSecret:          os.Getenv("ADMIN_JWT_SECRET"),
		RateLimitPerMinute: util.ParseIntEnv("RATE_LIMIT_PER_MINUTE", security.DefaultRequestsPerMinute),
		RateLimitBurst:     util.ParseIntEnv("RATE_LIMIT_BURST", security.DefaultBurst),
		SessionTimeout:     time.Duration(util.ParseIntEnv("SESSION_TIMEOUT_MINUTES", int(session.DefaultTimeout/time.Minute))) * time.Minute,
		MaxHistory:         util.ParseIntEnv("MAX_CONVERSATION_HISTORY", session.DefaultMaxHistory),
		WhatsAppEnabled:    util.ParseBoolEnv("WHATSAPP_ENABLED", false),
		TwilioAccountSID:   os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:    os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:         os.Getenv("TWILIO_FROM_NUMBER"),
		PruneSchedule:      os.Getenv("PRUNE_SCHEDULE"),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No OVNCHAT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	} else {
		slog.Debug("OVNCHAT_STATE_DIR found in environment", "state_dir", config.StateDir)
	}

	// DATABASE_URL is accepted for older deployments
	if config.DatabaseDSN == "" {
		config.DatabaseDSN = os.Getenv("DATABASE_URL")
		if config.DatabaseDSN != "" {
			slog.Debug("Using DATABASE_URL as DATABASE_DSN", "dsn_set", true)
		}
	}

	// If no database DSN is provided, default to SQLite in the state directory
	if config.DatabaseDSN == "" {
		config.DatabaseDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseDSN)
	}

	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = filepath.Join(config.StateDir, DefaultWhatsAppDBFileName)
	}

	if config.PruneSchedule == "" {
		config.PruneSchedule = scheduler.DefaultPruneSchedule
	}

	slog.Debug("environment variables loaded",
		"OVNCHAT_STATE_DIR", config.StateDir,
		"DATABASE_DSN_SET", config.DatabaseDSN != "",
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"REDIS_URL_SET", config.RedisURL != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"OPENAI_MODEL", config.OpenAIModel,
		"BACKEND_BASE_URL", config.BackendURL,
		"API_ADDR", config.APIAddr,
		"ADMIN_TOKEN_SET", config.AdminToken != "",
		"ADMIN_JWT_SECRET_SET", config.JWTSecret != "",
		"RATE_LIMIT_PER_MINUTE", config.RateLimitPerMinute,
		"RATE_LIMIT_BURST", config.RateLimitBurst,
		"SESSION_TIMEOUT", config.SessionTimeout,
		"MAX_CONVERSATION_HISTORY", config.MaxHistory,
		"WHATSAPP_ENABLED", config.WhatsAppEnabled,
		"TWILIO_ACCOUNT_SID_SET", config.TwilioAccountSID != "",
		"PRUNE_SCHEDULE", config.PruneSchedule)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:   flag.String("qr-output", "", "path to write login QR code"),
		numeric:    flag.Bool("numeric-code", false, "use numeric login code instead of QR code"),
		stateDir:   flag.String("state-dir", config.StateDir, "state directory for ovnchat data (overrides $OVNCHAT_STATE_DIR)"),
		dbDSN:      flag.String("db-dsn", config.DatabaseDSN, "database DSN for the session store (overrides $DATABASE_DSN or $DATABASE_URL)"),
		waDSN:      flag.String("whatsapp-db-dsn", config.WhatsAppDSN, "database DSN for the WhatsApp device store (overrides $WHATSAPP_DB_DSN)"),
		redisURL:   flag.String("redis-url", config.RedisURL, "Redis URL for the session cache (overrides $REDIS_URL)"),
		openaiKey:  flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		model:      flag.String("openai-model", config.OpenAIModel, "OpenAI model (overrides $OPENAI_MODEL)"),
		backendURL: flag.String("backend-url", config.BackendURL, "shop backend base URL (overrides $BACKEND_BASE_URL)"),
		apiAddr:    flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		whatsapp:   flag.Bool("whatsapp", config.WhatsAppEnabled, "connect to WhatsApp through whatsmeow (overrides $WHATSAPP_ENABLED)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"redisURL_set", *flags.redisURL != "",
		"openaiKeySet", *flags.openaiKey != "",
		"model", *flags.model,
		"backendURL", *flags.backendURL,
		"apiAddr", *flags.apiAddr,
		"whatsapp", *flags.whatsapp)

	rebaseStateDir(&flags, config)
	return flags
}

// rebaseStateDir moves default file DSNs under a state directory given on the command line.
func rebaseStateDir(flags *Flags, config Config) {
	if *flags.stateDir == config.StateDir {
		return
	}
	if *flags.dbDSN == config.DatabaseDSN && config.DatabaseDSN == filepath.Join(config.StateDir, DefaultDBFileName) {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "old_state_dir", config.StateDir, "new_state_dir", *flags.stateDir)
	}
	if *flags.waDSN == config.WhatsAppDSN && config.WhatsAppDSN == filepath.Join(config.StateDir, DefaultWhatsAppDBFileName) {
		*flags.waDSN = filepath.Join(*flags.stateDir, DefaultWhatsAppDBFileName)
	}
}

// isFileDSN reports whether dsn names a SQLite file.
func isFileDSN(dsn string) bool {
	return dsn != "" && store.DetectDSNType(dsn) == "sqlite3" && !strings.HasPrefix(dsn, ":memory:")
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	dirs := []string{*flags.stateDir}
	for _, dsn := range []string{*flags.dbDSN, *flags.waDSN} {
		if isFileDSN(dsn) {
			dirs = append(dirs, filepath.Dir(strings.TrimPrefix(dsn, "file:")))
		}
	}
	for _, dir := range dirs {
		slog.Debug("Creating state directory", "state_dir", dir)
		if err := os.MkdirAll(dir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", dir)
			return err
		}
	}
	return nil
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql", "dsn_set", true)
			storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
		} else {
			slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", *flags.dbDSN)
			storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
		}
	} else {
		slog.Debug("No database DSN provided, will use in-memory store")
	}
	return storeOpts
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if *flags.waDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.waDSN))
	}
	return waOpts
}

// buildTwilioOptions constructs Twilio options, or nil when Twilio is not configured
func buildTwilioOptions(config Config) []twiliowhatsapp.Option {
	if config.TwilioAccountSID == "" || config.TwilioAuthToken == "" || config.TwilioFrom == "" {
		return nil
	}
	return []twiliowhatsapp.Option{
		twiliowhatsapp.WithAccountSID(config.TwilioAccountSID),
		twiliowhatsapp.WithAuthToken(config.TwilioAuthToken),
		twiliowhatsapp.WithSender(config.TwilioFrom),
	}
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	genaiOpts := []genai.Option{genai.WithStateDir(*flags.stateDir)}
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if *flags.model != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*flags.model))
	}
	return genaiOpts
}

// buildBackendOptions constructs shop backend client options
func buildBackendOptions(flags Flags, exec *resilience.Executor) []backend.Option {
	opts := []backend.Option{backend.WithExecutor(exec)}
	if *flags.backendURL != "" {
		opts = append(opts, backend.WithBaseURL(*flags.backendURL))
	}
	return opts
}

// buildSessionOptions constructs session manager options
func buildSessionOptions(config Config, st session.Store, exec *resilience.Executor) []session.ManagerOption {
	return []session.ManagerOption{
		session.WithStore(st),
		session.WithExecutor(exec),
		session.WithTimeout(config.SessionTimeout),
		session.WithMaxHistory(config.MaxHistory),
	}
}

// buildRateLimiterOptions constructs rate limiter options
func buildRateLimiterOptions(config Config) []security.RateLimiterOption {
	return []security.RateLimiterOption{
		security.WithRequestsPerMinute(config.RateLimitPerMinute),
		security.WithBurst(config.RateLimitBurst),
	}
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags, config Config) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if config.AdminToken != "" {
		apiOpts = append(apiOpts, api.WithAdminToken(config.AdminToken))
	}
	if config.JWTSecret != "" {
		apiOpts = append(apiOpts, api.WithJWTSecret(config.JWTSecret))
	}
	return apiOpts
}

// relayProxy lets the bot relay operator messages through a bridge built after it.
type relayProxy struct {
	mu     sync.RWMutex
	target chatbot.Relay
}

var errNoChannel = errors.New("no messaging channel configured")

func (p *relayProxy) set(r chatbot.Relay) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.target = r
}

func (p *relayProxy) Relay(ctx context.Context, sessionID, text string) error {
	p.mu.RLock()
	target := p.target
	p.mu.RUnlock()
	if target == nil {
		return errNoChannel
	}
	return target.Relay(ctx, sessionID, text)
}

// run wires every module and serves until ctx is cancelled.
func run(ctx context.Context, config Config, flags Flags) error {
	executors := resilience.NewRegistry()

	durable, err := store.Open(buildStoreOptions(flags)...)
	if err != nil {
		return err
	}
	var chatStore store.ChatStore = durable
	if *flags.redisURL != "" {
		client, err := store.NewRedisClient(ctx, *flags.redisURL)
		if err != nil {
			slog.Warn("Redis unavailable, continuing without session cache", "error", err)
		} else {
			chatStore = store.NewRedisSessionStore(client, durable, store.DefaultSessionTTL)
		}
	}
	defer func() {
		if err := chatStore.Close(); err != nil {
			slog.Error("Failed to close store", "error", err)
		}
	}()

	sessions := session.NewManager(buildSessionOptions(config, chatStore, executors.Get(resilience.NameStore))...)
	backendClient := backend.NewClient(buildBackendOptions(flags, executors.Get(resilience.NameBackend))...)

	var llm *genai.Client
	if c, err := genai.NewClient(buildGenAIOptions(flags)...); err != nil {
		slog.Warn("GenAI disabled, using rule-based answers", "error", err)
	} else {
		llm = c
	}

	limiter := security.NewRateLimiter(buildRateLimiterOptions(config)...)
	guard := security.NewMiddleware(limiter)
	relay := &relayProxy{}
	bot := chatbot.New(chatbot.Deps{
		Sessions:  sessions,
		Backend:   backendClient,
		Catalog:   catalog.NewAPICatalog(backendClient),
		AI:        genai.NewEngine(llm, executors.Get(resilience.NameLLM)),
		Analytics: chatStore,
		Relay:     relay,
	})

	apiOpts := buildAPIOptions(flags, config)
	apiOpts = append(apiOpts,
		api.WithMiddleware(guard),
		api.WithAnalytics(store.NewAnalytics(chatStore, time.Now)),
		api.WithSessionStore(chatStore),
	)

	var svc messaging.Service
	switch {
	case *flags.whatsapp:
		lock, err := lockfile.AcquireLock(*flags.stateDir)
		if err != nil {
			return err
		}
		defer lock.Release()
		waClient, err := whatsapp.NewClient(ctx, buildWhatsAppOptions(flags)...)
		if err != nil {
			return err
		}
		defer waClient.Disconnect()
		svc = messaging.NewWhatsAppService(waClient)
	case buildTwilioOptions(config) != nil:
		twClient, err := twiliowhatsapp.NewClient(buildTwilioOptions(config)...)
		if err != nil {
			return err
		}
		tw := messaging.NewTwilioService(twClient)
		apiOpts = append(apiOpts, api.WithWebhook(TwilioWebhookPath, http.HandlerFunc(tw.WebhookHandler)))
		svc = tw
	default:
		slog.Info("No messaging channel configured, serving the web API only")
	}

	if svc != nil {
		if err := svc.Start(ctx); err != nil {
			return err
		}
		defer svc.Stop()
		bridge := messaging.NewBridge(svc, bot, messaging.WithDedup(chatStore), messaging.WithMiddleware(guard))
		relay.set(bridge)
		go func() {
			if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("Bridge stopped", "error", err)
			}
		}()
	}

	janitor := maintenance.NewJanitor()
	janitor.Register("sessions", maintenance.SessionsTask(sessions))
	janitor.Register("rate_limits", maintenance.LimiterTask(limiter))
	go janitor.Run(ctx)

	pruner := maintenance.NewJanitor()
	pruner.Register("dedup", maintenance.DedupTask(chatStore, dedupRetention))
	pruner.Register("retention", maintenance.RetentionTask(chatStore, sessionRetention))
	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.AddSweep(ctx, "prune", config.PruneSchedule, pruner); err != nil {
		return fmt.Errorf("invalid PRUNE_SCHEDULE %q: %w", config.PruneSchedule, err)
	}

	server := api.NewServer(bot, apiOpts...)
	runErr := server.Run(ctx)

	saveCtx, cancel := context.WithTimeout(context.Background(), api.DefaultShutdownTimeout)
	defer cancel()
	if err := sessions.SaveAll(saveCtx); err != nil {
		slog.Error("Failed to persist sessions on shutdown", "error", err)
	}
	return runErr
}
