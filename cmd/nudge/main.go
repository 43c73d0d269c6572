// Nudge is a storefront negotiation agent: a chat "bouncer" that guards the
// merchant's prices, grants bounded discounts to customers who show real
// value, and asks consent before running external verification lookups.
//
// One binary serves every mode: the HTTP API for storefront widgets, the
// optional WhatsApp and Twilio SMS channel relays, and a terminal chat loop
// for trying the agent locally (-chat).
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/boovines/Nudge/internal/api"
	"github.com/boovines/Nudge/internal/bouncer"
	"github.com/boovines/Nudge/internal/composio"
	"github.com/boovines/Nudge/internal/config"
	"github.com/boovines/Nudge/internal/discount"
	"github.com/boovines/Nudge/internal/factcheck"
	"github.com/boovines/Nudge/internal/genai"
	"github.com/boovines/Nudge/internal/lockfile"
	"github.com/boovines/Nudge/internal/messaging"
	"github.com/boovines/Nudge/internal/pricing"
	"github.com/boovines/Nudge/internal/shopify"
	"github.com/boovines/Nudge/internal/store"
	"github.com/boovines/Nudge/internal/traits"
	"github.com/boovines/Nudge/internal/twiliosms"
	"github.com/boovines/Nudge/internal/util"
	"github.com/boovines/Nudge/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for Nudge state data
	DefaultStateDir = "/var/lib/nudge"
	// DefaultAppDBFileName is the default SQLite filename for the audit store
	DefaultAppDBFileName = "nudge.db"
	// DefaultWhatsAppDBFileName is the default SQLite filename for whatsmeow
	DefaultWhatsAppDBFileName = "whatsapp.db"
)

func main() {
	initializeLogger()

	envCfg := loadEnvironmentConfig()
	flags := parseCommandLineFlags(envCfg)

	merchant, err := config.Load(*flags.merchantConfig)
	if err != nil {
		slog.Error("Failed to load merchant config", "error", err, "path", *flags.merchantConfig)
		os.Exit(1)
	}

	if *flags.chat {
		if err := runChat(merchant, flags); err != nil {
			slog.Error("Chat session failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := runServer(merchant, flags); err != nil {
		slog.Error("Nudge failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Nudge exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir         string
	ApplicationDBDSN string
	WhatsAppDBDSN    string
	MerchantConfig   string
	APIAddr          string
}

// Flags holds command line flag values
type Flags struct {
	chat           *bool
	stateDir       *string
	merchantConfig *string
	dbDSN          *string
	waDSN          *string
	apiAddr        *string
	qrOutput       *string
	numeric        *bool
	enableWA       *bool
	enableSMS      *bool
	genaiDebug     *bool
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

	cfg := Config{
		StateDir:         os.Getenv("NUDGE_STATE_DIR"),
		ApplicationDBDSN: os.Getenv("DATABASE_DSN"),
		WhatsAppDBDSN:    os.Getenv("WHATSAPP_DB_DSN"),
		MerchantConfig:   os.Getenv("NUDGE_MERCHANT_CONFIG"),
		APIAddr:          os.Getenv("API_ADDR"),
	}

	if cfg.StateDir == "" {
		cfg.StateDir = DefaultStateDir
		slog.Debug("No NUDGE_STATE_DIR set, using default", "default_state_dir", cfg.StateDir)
	}

	// DATABASE_URL is honored as a fallback for deployments that only set
	// the conventional name.
	if cfg.ApplicationDBDSN == "" {
		cfg.ApplicationDBDSN = os.Getenv("DATABASE_URL")
		if cfg.ApplicationDBDSN != "" {
			slog.Debug("Using DATABASE_URL as application database DSN")
		}
	}
	if cfg.ApplicationDBDSN == "" {
		cfg.ApplicationDBDSN = filepath.Join(cfg.StateDir, DefaultAppDBFileName)
		slog.Debug("No application database DSN provided, defaulting to SQLite", "sqlite_path", cfg.ApplicationDBDSN)
	}

	// whatsmeow keeps its device session in its own database and wants
	// foreign keys on for SQLite.
	if cfg.WhatsAppDBDSN == "" {
		cfg.WhatsAppDBDSN = "file:" + filepath.Join(cfg.StateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
		slog.Debug("No WhatsApp database DSN provided, defaulting to SQLite", "sqlite_path", cfg.WhatsAppDBDSN)
	}

	if cfg.MerchantConfig == "" {
		cfg.MerchantConfig = "config/merchant_config.json"
	}

	slog.Debug("environment variables loaded",
		"NUDGE_STATE_DIR", cfg.StateDir,
		"DATABASE_DSN_SET", cfg.ApplicationDBDSN != "",
		"WHATSAPP_DB_DSN_SET", cfg.WhatsAppDBDSN != "",
		"NUDGE_MERCHANT_CONFIG", cfg.MerchantConfig,
		"API_ADDR", cfg.APIAddr)

	return cfg
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(cfg Config) Flags {
	flags := Flags{
		chat:           flag.Bool("chat", false, "run an interactive terminal chat session instead of the server"),
		stateDir:       flag.String("state-dir", cfg.StateDir, "state directory for Nudge data (overrides $NUDGE_STATE_DIR)"),
		merchantConfig: flag.String("merchant-config", cfg.MerchantConfig, "path to the merchant config JSON (overrides $NUDGE_MERCHANT_CONFIG)"),
		dbDSN:          flag.String("db-dsn", cfg.ApplicationDBDSN, "database DSN for the audit store (overrides $DATABASE_DSN or $DATABASE_URL)"),
		waDSN:          flag.String("whatsapp-db-dsn", cfg.WhatsAppDBDSN, "database DSN for the WhatsApp device session (overrides $WHATSAPP_DB_DSN)"),
		apiAddr:        flag.String("api-addr", cfg.APIAddr, "API server address (overrides $API_ADDR)"),
		qrOutput:       flag.String("qr-output", "", "path to write the WhatsApp login QR code"),
		numeric:        flag.Bool("numeric-code", false, "use a numeric WhatsApp login code instead of a QR code"),
		enableWA:       flag.Bool("whatsapp", false, "serve the agent over a WhatsApp channel"),
		enableSMS:      flag.Bool("sms", false, "serve the agent over a Twilio SMS channel"),
		genaiDebug:     flag.Bool("genai-debug", util.ParseBoolEnv("NUDGE_GENAI_DEBUG", false), "capture model requests/responses under the state directory (overrides $NUDGE_GENAI_DEBUG)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"chat", *flags.chat,
		"stateDir", *flags.stateDir,
		"merchantConfig", *flags.merchantConfig,
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr,
		"whatsapp", *flags.enableWA,
		"sms", *flags.enableSMS)

	// Follow a moved state directory when the DSNs were left at their
	// state-dir-derived defaults.
	if *flags.stateDir != cfg.StateDir {
		if *flags.dbDSN == filepath.Join(cfg.StateDir, DefaultAppDBFileName) {
			*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultAppDBFileName)
			slog.Debug("Updated db-dsn for state directory", "db_dsn", *flags.dbDSN)
		}
		defaultWADSN := "file:" + filepath.Join(cfg.StateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
		if *flags.waDSN == defaultWADSN {
			*flags.waDSN = "file:" + filepath.Join(*flags.stateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
			slog.Debug("Updated whatsapp-db-dsn for state directory", "whatsapp_db_dsn", *flags.waDSN)
		}
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if !strings.Contains(*flags.dbDSN, "postgres://") && !strings.Contains(*flags.dbDSN, "host=") {
		stateDir := filepath.Dir(strings.TrimPrefix(*flags.dbDSN, "file:"))
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			return fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
		}
	}
	return nil
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN == "" {
		slog.Debug("No database DSN provided, will use in-memory store")
		return storeOpts
	}
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql")
		storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
	} else {
		slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", *flags.dbDSN)
		storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
	}
	return storeOpts
}

// buildStore opens the audit store for the configured DSN.
func buildStore(flags Flags) (store.Store, error) {
	opts := buildStoreOptions(flags)
	if len(opts) == 0 {
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		return store.NewPostgresStore(opts...)
	}
	return store.NewSQLiteStore(opts...)
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

// buildModelClient selects the conversation-model provider from the
// environment: OpenAI when OPENAI_API_KEY is set, otherwise Anthropic.
func buildModelClient(flags Flags) (genai.ClientInterface, error) {
	if os.Getenv("OPENAI_API_KEY") != "" {
		return genai.NewClient(
			genai.WithDebugMode(*flags.genaiDebug),
			genai.WithStateDir(*flags.stateDir),
		)
	}
	return genai.New()
}

// buildAgent wires the full conversation agent from the merchant config and
// whatever external capabilities have credentials. Missing credentials
// degrade the matching capability, never the agent.
func buildAgent(merchant *config.Merchant, flags Flags, st store.Store) (*bouncer.Agent, error) {
	client, err := buildModelClient(flags)
	if err != nil {
		return nil, fmt.Errorf("failed to create model client: %w", err)
	}

	var search factcheck.SearchAgent
	var directory factcheck.DirectoryAgent
	if composioClient, err := composio.NewClient(); err != nil {
		slog.Warn("Composio unavailable, fact-check lookups disabled", "error", err)
	} else {
		if merchant.ToolEnabled("brave_search") {
			search = factcheck.NewBraveAgent(composioClient)
		}
		if merchant.ToolEnabled("linkedin_lookup") {
			directory = factcheck.NewLinkedInAgent(composioClient)
		}
	}
	router := factcheck.NewRouter(search, directory)

	engine := pricing.NewEngine(merchant)
	scorer := traits.NewScorer(merchant)

	var commerce discount.CommerceClient
	if shopifyClient, err := shopify.NewClient(); err != nil {
		slog.Warn("Shopify unavailable, discount codes will be simulated", "error", err)
	} else {
		commerce = shopifyClient
	}
	discounts := discount.NewService(engine, scorer, commerce)

	return bouncer.New(merchant, client, router, scorer, discounts, st), nil
}

// runServer starts the API server plus any enabled messaging channels and
// blocks until SIGINT/SIGTERM.
func runServer(merchant *config.Merchant, flags Flags) error {
	if err := ensureDirectoriesExist(flags); err != nil {
		return err
	}

	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		return fmt.Errorf("failed to acquire state directory lock: %w", err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			slog.Warn("Failed to release state directory lock", "error", err)
		}
	}()

	st, err := buildStore(flags)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	agent, err := buildAgent(merchant, flags, st)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// SQL-backed stores add durable sends and inbound dedup to the relays.
	persistence, _ := st.(store.PersistenceProvider)

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}

	if *flags.enableWA {
		waClient, err := whatsapp.NewClient(buildWhatsAppOptions(flags)...)
		if err != nil {
			return fmt.Errorf("failed to create WhatsApp client: %w", err)
		}
		defer waClient.Disconnect()
		relay := messaging.NewRelay(agent, messaging.NewWhatsAppService(waClient), "wa", persistence)
		go func() {
			if err := relay.Run(ctx); err != nil {
				slog.Error("WhatsApp relay stopped", "error", err)
			}
		}()
	}

	if *flags.enableSMS {
		smsClient, err := twiliosms.NewClient()
		if err != nil {
			return fmt.Errorf("failed to create Twilio client: %w", err)
		}
		twilioSvc := messaging.NewTwilioService(smsClient)
		apiOpts = append(apiOpts, api.WithWebhook("/webhooks/twilio", http.HandlerFunc(twilioSvc.WebhookHandler)))
		relay := messaging.NewRelay(agent, twilioSvc, "sms", persistence)
		go func() {
			if err := relay.Run(ctx); err != nil {
				slog.Error("SMS relay stopped", "error", err)
			}
		}()
	}

	slog.Info("Bootstrapping Nudge",
		"store_name", merchant.StoreName,
		"api_addr", *flags.apiAddr,
		"whatsapp", *flags.enableWA,
		"sms", *flags.enableSMS)

	server := api.NewServer(agent, st, apiOpts...)
	return server.Run(ctx)
}

// runChat runs the interactive terminal session. History lives in memory;
// nothing is persisted when the session ends.
func runChat(merchant *config.Merchant, flags Flags) error {
	agent, err := buildAgent(merchant, flags, store.NewInMemoryStore())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessionID := util.GenerateSessionID()
	fmt.Println("Welcome to Nudge!")
	fmt.Println("Chat with The Bouncer - your witty negotiation assistant.")
	fmt.Println("Type 'exit' or 'quit' to end the conversation.")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("You: ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		switch strings.ToLower(input) {
		case "exit", "quit", "bye":
			fmt.Println("Bouncer: Thanks for chatting! See you next time.")
			return nil
		}

		reply, err := agent.Chat(ctx, sessionID, input)
		if err != nil {
			fmt.Printf("Error: %v\n\n", err)
			continue
		}
		fmt.Printf("Bouncer: %s\n", reply.Text)
		if reply.ConsentRequest != "" {
			fmt.Printf("Bouncer: %s\n", reply.ConsentRequest)
		}
		if reply.DiscountCode != "" {
			fmt.Printf("[discount code: %s]\n", reply.DiscountCode)
		}
		fmt.Println()
	}
}
