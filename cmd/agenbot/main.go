package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Ronald-silva/agenbot/internal/api"
	"github.com/Ronald-silva/agenbot/internal/catalog"
	"github.com/Ronald-silva/agenbot/internal/flow"
	"github.com/Ronald-silva/agenbot/internal/genai"
	"github.com/Ronald-silva/agenbot/internal/knowledge"
	"github.com/Ronald-silva/agenbot/internal/lockfile"
	"github.com/Ronald-silva/agenbot/internal/messaging"
	"github.com/Ronald-silva/agenbot/internal/store"
	"github.com/Ronald-silva/agenbot/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for agenbot state data
	DefaultStateDir = "/var/lib/agenbot"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "agenbot.db"
	// DefaultCatalogFile is the default product catalog path
	DefaultCatalogFile = "data/store_info.json"
	// DefaultMinScore is the relevance floor for knowledge retrieval
	DefaultMinScore = 0.7
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := run(flags); err != nil {
		slog.Error("agenbot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("agenbot exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL  string
	StateDir     string
	RedisAddr    string
	RedisPass    string
	OpenAIKey    string
	APIAddr      string
	AdminToken   string
	CatalogFile  string
	KnowledgeDB  string
	Messaging    string
	VoiceReplies bool
	TopK         int
}

// Flags holds command line flag values
type Flags struct {
	stateDir     *string
	dbDSN        *string
	redisAddr    *string
	redisPass    *string
	openaiKey    *string
	apiAddr      *string
	adminToken   *string
	catalogFile  *string
	knowledgeDB  *string
	messaging    *string
	voiceReplies *bool
	topK         *int
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
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		StateDir:     os.Getenv("AGENBOT_STATE_DIR"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		RedisPass:    os.Getenv("REDIS_PASSWORD"),
		OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
		APIAddr:      os.Getenv("API_ADDR"),
		AdminToken:   os.Getenv("AGENBOT_ADMIN_TOKEN"),
		CatalogFile:  os.Getenv("AGENBOT_CATALOG_FILE"),
		KnowledgeDB:  os.Getenv("AGENBOT_KNOWLEDGE_FILE"),
		Messaging:    os.Getenv("AGENBOT_MESSAGING"),
		VoiceReplies: util.ParseBoolEnv("AGENBOT_VOICE_REPLIES", false),
		TopK:         util.ParseIntEnv("AGENBOT_TOP_K", knowledge.DefaultTopK),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No AGENBOT_STATE_DIR set, using default", "state_dir", config.StateDir)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No DATABASE_URL provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.CatalogFile == "" {
		config.CatalogFile = DefaultCatalogFile
	}
	if config.Messaging == "" {
		config.Messaging = "zapi"
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"AGENBOT_STATE_DIR", config.StateDir,
		"REDIS_ADDR_SET", config.RedisAddr != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"AGENBOT_MESSAGING", config.Messaging,
		"AGENBOT_VOICE_REPLIES", config.VoiceReplies,
		"AGENBOT_TOP_K", config.TopK)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:     flag.String("state-dir", config.StateDir, "state directory for agenbot data (overrides $AGENBOT_STATE_DIR)"),
		dbDSN:        flag.String("db-dsn", config.DatabaseURL, "database DSN for the conversation store (overrides $DATABASE_URL)"),
		redisAddr:    flag.String("redis-addr", config.RedisAddr, "Redis address for the conversation side-store (overrides $REDIS_ADDR)"),
		redisPass:    flag.String("redis-password", config.RedisPass, "Redis password (overrides $REDIS_PASSWORD)"),
		openaiKey:    flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:      flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		adminToken:   flag.String("admin-token", config.AdminToken, "bearer token for administrative endpoints (overrides $AGENBOT_ADMIN_TOKEN)"),
		catalogFile:  flag.String("catalog-file", config.CatalogFile, "product catalog JSON file (overrides $AGENBOT_CATALOG_FILE)"),
		knowledgeDB:  flag.String("knowledge-file", config.KnowledgeDB, "knowledge base JSON file with embeddings (overrides $AGENBOT_KNOWLEDGE_FILE)"),
		messaging:    flag.String("messaging", config.Messaging, "delivery backend: zapi or twilio (overrides $AGENBOT_MESSAGING)"),
		voiceReplies: flag.Bool("voice-replies", config.VoiceReplies, "synthesize audio replies alongside text (overrides $AGENBOT_VOICE_REPLIES)"),
		topK:         flag.Int("top-k", config.TopK, "knowledge snippets per generated reply (overrides $AGENBOT_TOP_K)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"redisAddr_set", *flags.redisAddr != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"messaging", *flags.messaging,
		"voiceReplies", *flags.voiceReplies,
		"topK", *flags.topK)

	// Follow the state directory when the DSN was left at its default
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// buildStore selects the durable backend (Redis, Postgres or SQLite) and
// wraps it with the in-memory cache layer so message processing survives
// backend outages.
func buildStore(flags Flags) (store.Store, error) {
	var backend store.Store
	var err error

	switch {
	case *flags.redisAddr != "":
		slog.Debug("Configuring Redis conversation store", "addr", *flags.redisAddr)
		backend, err = store.NewRedisStore(store.WithRedisAddr(*flags.redisAddr), store.WithRedisPassword(*flags.redisPass))
	case store.DetectDSNType(*flags.dbDSN) == "postgres":
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_set", true)
		backend, err = store.NewPostgresStore(store.WithPostgresDSN(*flags.dbDSN))
	default:
		slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
		backend, err = store.NewSQLiteStore(store.WithSQLiteDSN(*flags.dbDSN))
	}
	if err != nil {
		return nil, err
	}
	return store.NewCachedStore(backend), nil
}

// buildMessaging selects the delivery backend.
func buildMessaging(flags Flags) (messaging.Service, *messaging.ZAPIService, error) {
	if *flags.messaging == "twilio" {
		svc, err := messaging.NewTwilioService()
		return svc, nil, err
	}
	svc, err := messaging.NewZAPIService()
	return svc, svc, err
}

func run(flags Flags) error {
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := buildStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	msgService, gateway, err := buildMessaging(flags)
	if err != nil {
		return err
	}

	var gaClient genai.ClientInterface
	if *flags.openaiKey != "" {
		client, err := genai.NewClient(genai.WithAPIKey(*flags.openaiKey))
		if err != nil {
			return err
		}
		gaClient = client
	} else {
		slog.Warn("No OpenAI API key configured, replies will use scripted text only")
	}

	var cat *catalog.Catalog
	if c, err := catalog.Load(*flags.catalogFile); err != nil {
		slog.Warn("Product catalog unavailable, catalog intents disabled", "error", err, "path", *flags.catalogFile)
	} else {
		cat = c
	}

	var retriever flow.Retriever
	if *flags.knowledgeDB != "" && gaClient != nil {
		base, err := knowledge.LoadBase(*flags.knowledgeDB)
		if err != nil {
			slog.Warn("Knowledge base unavailable, replies will not be context-augmented", "error", err, "path", *flags.knowledgeDB)
		} else {
			retriever = knowledge.NewRetriever(base, gaClient, DefaultMinScore)
			slog.Info("Knowledge base loaded", "snippets", base.Size())
		}
	}

	states := flow.NewStateManager(st)
	engineOpts := []flow.Option{flow.WithCatalog(cat), flow.WithTopK(*flags.topK)}
	if gaClient != nil {
		engineOpts = append(engineOpts, flow.WithGenerator(gaClient))
	}
	if retriever != nil {
		engineOpts = append(engineOpts, flow.WithRetriever(retriever))
	}
	engine := flow.NewEngine(states, engineOpts...)

	apiOpts := []api.Option{
		api.WithMessagingService(msgService),
		api.WithStore(st),
		api.WithAdminToken(*flags.adminToken),
		api.WithVoiceReplies(*flags.voiceReplies),
	}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if gateway != nil {
		apiOpts = append(apiOpts, api.WithGatewayStatus(gateway))
	}
	if gaClient != nil {
		apiOpts = append(apiOpts, api.WithGenAI(gaClient))
	}
	server := api.NewServer(engine, states, apiOpts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping agenbot", "messaging", *flags.messaging, "voice_replies", *flags.voiceReplies)
	return server.Run(ctx)
}
