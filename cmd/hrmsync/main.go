package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/api"
	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/connectivity"
	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/interceptor"
	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/lifecycle"
	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/lockfile"
	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/models"
	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/notify"
	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/scheduler"
	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/store"
	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/syncer"
	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for sync agent state data
	DefaultStateDir = "/var/lib/hrmsync"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "hrmsync.db"
	// DefaultSyncCron is the safety-net drain schedule when no connectivity
	// signal fires.
	DefaultSyncCron = "*/5 * * * *"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if *flags.originURL == "" {
		slog.Error("Origin base URL is required (set ORIGIN_BASE_URL or -origin-url)")
		os.Exit(1)
	}

	// One agent per state directory; two would corrupt the outbox.
	lock, err := lockfile.Acquire(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to lock state directory", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	st, err := openStore(flags)
	if err != nil {
		slog.Error("Failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := run(flags, config, st); err != nil {
		slog.Error("Sync agent failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Sync agent exited successfully")
}

// run wires the components and serves until a shutdown signal arrives.
func run(flags Flags, config Config, st store.Store) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lm, err := lifecycle.NewManager(st)
	if err != nil {
		return err
	}

	ic, err := interceptor.NewInterceptor(st, lm.Current, buildInterceptorOptions(flags, config)...)
	if err != nil {
		return err
	}

	sy := syncer.NewSyncer(st, buildSyncerOptions(config)...)
	ic.SetEnqueueHook(sy.Kick)
	sy.SetEventFunc(buildEventFunc(config))

	watcher := connectivity.NewWatcher(buildWatcherOptions(flags)...)
	sy.SetConnectivity(watcher.Subscribe())

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.AddJob("safety-net-drain", *flags.syncCron, sy.Kick); err != nil {
		return err
	}

	go func() {
		if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("Connectivity watcher stopped", "error", err)
		}
	}()
	go func() {
		if err := sy.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("Syncer stopped", "error", err)
		}
	}()

	srv := api.NewServer(st, ic, sy, lm, watcher, sched)
	slog.Info("Bootstrapping sync agent",
		"stateDir", *flags.stateDir,
		"origin", *flags.originURL,
		"apiAddr", *flags.apiAddr,
		"syncCron", *flags.syncCron)
	return srv.Run(ctx, *flags.apiAddr)
}

// Config holds environment configuration
type Config struct {
	OriginBaseURL  string
	StateDir       string
	DatabaseURL    string
	APIAddr        string
	SyncCron       string
	ProbeURL       string
	MaxAttempts    int
	SyncInterval   time.Duration
	RequestTimeout time.Duration
	TwilioSID      string
	TwilioToken    string
	TwilioFrom     string
	TwilioTo       string
}

// Flags holds command line flag values
type Flags struct {
	originURL   *string
	stateDir    *string
	dbDSN       *string
	apiAddr     *string
	syncCron    *string
	probeURL    *string
	maxAttempts *int
}

// initializeLogger sets up structured logging. HRMSYNC_DEBUG=true lowers the
// level to debug; kiosks run at info to keep journal volume down.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("HRMSYNC_DEBUG", false) {
		level = slog.LevelDebug
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
		OriginBaseURL:  os.Getenv("ORIGIN_BASE_URL"),
		StateDir:       os.Getenv("HRMSYNC_STATE_DIR"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		APIAddr:        os.Getenv("API_ADDR"),
		SyncCron:       os.Getenv("SYNC_CRON"),
		ProbeURL:       os.Getenv("PROBE_URL"),
		MaxAttempts:    util.ParseIntEnv("MAX_ATTEMPTS", interceptor.DefaultMaxAttempts),
		SyncInterval:   util.ParseDurationEnv("SYNC_INTERVAL", syncer.DefaultInterval),
		RequestTimeout: util.ParseDurationEnv("REQUEST_TIMEOUT", interceptor.DefaultTimeout),
		TwilioSID:      os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken:    os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:     os.Getenv("TWILIO_FROM_NUMBER"),
		TwilioTo:       os.Getenv("TWILIO_OPERATOR_NUMBER"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No HRMSYNC_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.SyncCron == "" {
		config.SyncCron = DefaultSyncCron
	}
	if config.ProbeURL == "" {
		// The origin itself is the reachability probe unless told otherwise.
		config.ProbeURL = config.OriginBaseURL
	}

	slog.Debug("environment variables loaded",
		"ORIGIN_BASE_URL", config.OriginBaseURL,
		"HRMSYNC_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"API_ADDR", config.APIAddr,
		"SYNC_CRON", config.SyncCron,
		"PROBE_URL", config.ProbeURL,
		"MAX_ATTEMPTS", config.MaxAttempts,
		"TWILIO_CONFIGURED", config.TwilioSID != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		originURL:   flag.String("origin-url", config.OriginBaseURL, "origin API base URL (overrides $ORIGIN_BASE_URL)"),
		stateDir:    flag.String("state-dir", config.StateDir, "state directory for sync agent data (overrides $HRMSYNC_STATE_DIR)"),
		dbDSN:       flag.String("db-dsn", config.DatabaseURL, "database DSN for the outbox store (overrides $DATABASE_URL)"),
		apiAddr:     flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		syncCron:    flag.String("sync-cron", config.SyncCron, "safety-net drain schedule (overrides $SYNC_CRON)"),
		probeURL:    flag.String("probe-url", config.ProbeURL, "connectivity probe URL (overrides $PROBE_URL)"),
		maxAttempts: flag.Int("max-attempts", config.MaxAttempts, "replay attempts before a mutation fails permanently (overrides $MAX_ATTEMPTS)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"originURL", *flags.originURL,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr,
		"syncCron", *flags.syncCron,
		"probeURL", *flags.probeURL,
		"maxAttempts", *flags.maxAttempts)

	// Follow the state directory when the DSN was only ever a derived default.
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// openStore selects the durable backend from the DSN.
func openStore(flags Flags) (store.Store, error) {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_set", true)
		return store.NewPostgresStore(store.WithPostgresDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithSQLiteDSN(*flags.dbDSN))
}

// buildInterceptorOptions constructs interceptor configuration options
func buildInterceptorOptions(flags Flags, config Config) []interceptor.Option {
	opts := []interceptor.Option{
		interceptor.WithOriginBaseURL(*flags.originURL),
		interceptor.WithTimeout(config.RequestTimeout),
	}
	if *flags.maxAttempts > 0 {
		opts = append(opts, interceptor.WithMaxAttempts(*flags.maxAttempts))
	}
	return opts
}

// buildSyncerOptions constructs syncer configuration options
func buildSyncerOptions(config Config) []syncer.Option {
	return []syncer.Option{
		syncer.WithInterval(config.SyncInterval),
		syncer.WithTimeout(config.RequestTimeout),
	}
}

// buildWatcherOptions constructs connectivity watcher configuration options
func buildWatcherOptions(flags Flags) []connectivity.Option {
	var opts []connectivity.Option
	if *flags.probeURL != "" {
		opts = append(opts, connectivity.WithProbeURL(*flags.probeURL))
	}
	return opts
}

// buildEventFunc wires sync events into logging and, when Twilio is
// configured, operator SMS alerts on permanent failures.
func buildEventFunc(config Config) syncer.EventFunc {
	logEvent := func(ev models.SyncEvent) {
		slog.Info("sync event", "type", ev.Type, "mutationID", ev.MutationID, "subject", ev.Subject, "queueDepth", ev.QueueDepth, "error", ev.Error)
	}

	if config.TwilioSID == "" || config.TwilioToken == "" || config.TwilioFrom == "" || config.TwilioTo == "" {
		slog.Debug("Twilio not fully configured, operator alerts disabled")
		return logEvent
	}

	notifier, err := notify.NewTwilioNotifier(
		notify.WithAccountSID(config.TwilioSID),
		notify.WithAuthToken(config.TwilioToken),
		notify.WithFrom(config.TwilioFrom),
		notify.WithTo(config.TwilioTo),
	)
	if err != nil {
		slog.Warn("Failed to configure Twilio notifier, operator alerts disabled", "error", err)
		return logEvent
	}

	alert := notify.AlertOnPermanentFailure(notifier)
	return func(ev models.SyncEvent) {
		logEvent(ev)
		alert(ev)
	}
}
