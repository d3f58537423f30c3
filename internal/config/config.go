// Package config defines the configuration contract and handles loading and validating environment configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Canonical environment variable keys.
	KeyTelegramToken        = "TELEGRAM_TOKEN"
	KeyBootstrapAdmin       = "BOOTSTRAP_ADMIN_ID"
	KeyStoreDriver          = "STORE_DRIVER"
	KeyMongoURI             = "MONGO_URI"
	KeyMongoDB              = "MONGO_DB"
	KeySQLDSN               = "SQL_DSN"
	KeyAppEnv               = "APP_ENV"
	KeyLogLevel             = "LOG_LEVEL"
	KeyHTTPPort             = "HTTP_PORT"
	KeyMembershipTimeout    = "MEMBERSHIP_CHECK_TIMEOUT"
	KeyMembershipConcurrent = "MEMBERSHIP_CHECK_CONCURRENCY"

	// Allowed environment values.
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// Supported storage drivers.
	DriverMongo    = "mongo"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	// Defaults for optional settings.
	DefaultAppEnv                = EnvProduction
	DefaultLogLevel              = "info"
	DefaultHTTPPort              = 8080
	DefaultStoreDriver           = DriverMongo
	DefaultMembershipTimeout     = 3 * time.Second
	DefaultMembershipConcurrency = 4

	// Recommended database names by environment.
	DefaultMongoDBProd = "channel_gate"
	DefaultMongoDBDev  = "channel_gate_dev"
)

// VarSpec describes a single configuration key.
type VarSpec struct {
	Key         string // environment variable name
	Example     string // human-friendly sample value
	Required    bool   // whether the bot must refuse to start without this value
	Default     string // default when unset (empty when required)
	Description string // what the variable controls
	Notes       string // extra guidance or policies
}

// Contract enumerates the authoritative configuration keys for the bot.
// .env loading is only permitted when APP_ENV=development; production must rely
// on environment variables supplied by the runtime.
var Contract = []VarSpec{
	{
		Key:         KeyTelegramToken,
		Example:     "123:ABC",
		Required:    true,
		Description: "Telegram Bot Token issued by BotFather.",
	},
	{
		Key:         KeyBootstrapAdmin,
		Example:     "123456789",
		Required:    true,
		Description: "Telegram user_id seeded as the first administrator.",
		Notes:       "Seeding is insert-if-absent; restarting never duplicates the row.",
	},
	{
		Key:         KeyStoreDriver,
		Example:     DriverMongo + " / " + DriverSQLite + " / " + DriverPostgres,
		Default:     DefaultStoreDriver,
		Description: "Storage backend for admins, required channels and users.",
	},
	{
		Key:         KeyMongoURI,
		Example:     "mongodb://localhost:27017",
		Description: "MongoDB connection string.",
		Notes:       "Required when " + KeyStoreDriver + "=" + DriverMongo + ".",
	},
	{
		Key:         KeyMongoDB,
		Example:     DefaultMongoDBProd + " / " + DefaultMongoDBDev,
		Description: "MongoDB database name.",
		Notes:       "Required when " + KeyStoreDriver + "=" + DriverMongo + ".",
	},
	{
		Key:         KeySQLDSN,
		Example:     "data/channel_gate.db / postgres://user:pass@db:5432/channel_gate",
		Description: "SQLite file path or Postgres DSN.",
		Notes:       "Required when " + KeyStoreDriver + "=" + DriverSQLite + " or " + DriverPostgres + ".",
	},
	{
		Key:         KeyAppEnv,
		Example:     EnvDevelopment + " / " + EnvProduction,
		Default:     DefaultAppEnv,
		Description: "Runtime environment; controls log format and dotenv usage.",
		Notes:       "Load .env files only when APP_ENV=" + EnvDevelopment + ".",
	},
	{
		Key:         KeyLogLevel,
		Example:     DefaultLogLevel,
		Default:     DefaultLogLevel,
		Description: "Overrides default log level.",
	},
	{
		Key:         KeyHTTPPort,
		Example:     strconv.Itoa(DefaultHTTPPort),
		Default:     strconv.Itoa(DefaultHTTPPort),
		Description: "HTTP health/diagnostics port.",
	},
	{
		Key:         KeyMembershipTimeout,
		Example:     DefaultMembershipTimeout.String(),
		Default:     DefaultMembershipTimeout.String(),
		Description: "Upper bound for a single channel membership lookup.",
	},
	{
		Key:         KeyMembershipConcurrent,
		Example:     strconv.Itoa(DefaultMembershipConcurrency),
		Default:     strconv.Itoa(DefaultMembershipConcurrency),
		Description: "Maximum membership lookups running at once for one user.",
	},
}

// Config mirrors resolved configuration values after loading.
type Config struct {
	TelegramToken         string
	BootstrapAdminID      int64
	StoreDriver           string
	MongoURI              string
	MongoDB               string
	SQLDSN                string
	AppEnv                string
	LogLevel              string
	HTTPPort              int
	MembershipTimeout     time.Duration
	MembershipConcurrency int
}

// Load resolves configuration from the environment (with optional dotenv in development).
func Load() (Config, error) {
	appEnv, err := resolveAppEnv()
	if err != nil {
		return Config{}, err
	}

	if err := loadDotEnv(appEnv); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:                firstNonEmpty(normalizeEnv(os.Getenv(KeyAppEnv)), appEnv),
		TelegramToken:         strings.TrimSpace(os.Getenv(KeyTelegramToken)),
		StoreDriver:           firstNonEmpty(normalizeEnv(os.Getenv(KeyStoreDriver)), DefaultStoreDriver),
		MongoURI:              strings.TrimSpace(os.Getenv(KeyMongoURI)),
		MongoDB:               strings.TrimSpace(os.Getenv(KeyMongoDB)),
		SQLDSN:                strings.TrimSpace(os.Getenv(KeySQLDSN)),
		LogLevel:              firstNonEmpty(strings.TrimSpace(os.Getenv(KeyLogLevel)), DefaultLogLevel),
		HTTPPort:              DefaultHTTPPort,
		MembershipTimeout:     DefaultMembershipTimeout,
		MembershipConcurrency: DefaultMembershipConcurrency,
	}

	if err := validateAppEnv(cfg.AppEnv); err != nil {
		return Config{}, err
	}
	if err := validateStoreDriver(cfg.StoreDriver); err != nil {
		return Config{}, err
	}

	missing := make([]string, 0)

	if cfg.TelegramToken == "" {
		missing = append(missing, KeyTelegramToken)
	}

	adminRaw := strings.TrimSpace(os.Getenv(KeyBootstrapAdmin))
	if adminRaw == "" {
		missing = append(missing, KeyBootstrapAdmin)
	} else {
		adminID, parseErr := strconv.ParseInt(adminRaw, 10, 64)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyBootstrapAdmin, parseErr)
		}
		if adminID <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than 0", KeyBootstrapAdmin)
		}
		cfg.BootstrapAdminID = adminID
	}

	switch cfg.StoreDriver {
	case DriverMongo:
		if cfg.MongoURI == "" {
			missing = append(missing, KeyMongoURI)
		}
		if cfg.MongoDB == "" {
			missing = append(missing, KeyMongoDB)
		}
	default:
		if cfg.SQLDSN == "" {
			missing = append(missing, KeySQLDSN)
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}

	if cfg.StoreDriver == DriverMongo && !isMongoURI(cfg.MongoURI) {
		return Config{}, fmt.Errorf("invalid %s: must start with mongodb:// or mongodb+srv://", KeyMongoURI)
	}

	httpPortRaw := strings.TrimSpace(os.Getenv(KeyHTTPPort))
	if httpPortRaw != "" {
		port, parseErr := strconv.Atoi(httpPortRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyHTTPPort, parseErr)
		}
		if port <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than 0", KeyHTTPPort)
		}
		cfg.HTTPPort = port
	}

	timeoutRaw := strings.TrimSpace(os.Getenv(KeyMembershipTimeout))
	if timeoutRaw != "" {
		timeout, parseErr := time.ParseDuration(timeoutRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyMembershipTimeout, parseErr)
		}
		if timeout <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than 0", KeyMembershipTimeout)
		}
		cfg.MembershipTimeout = timeout
	}

	concurrencyRaw := strings.TrimSpace(os.Getenv(KeyMembershipConcurrent))
	if concurrencyRaw != "" {
		concurrency, parseErr := strconv.Atoi(concurrencyRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyMembershipConcurrent, parseErr)
		}
		if concurrency <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than 0", KeyMembershipConcurrent)
		}
		cfg.MembershipConcurrency = concurrency
	}

	return cfg, nil
}

// IsDevelopment reports if APP_ENV is development.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// FormatRedacted renders the resolved configuration with secrets masked so it
// can be printed during config checks.
func FormatRedacted(cfg Config) string {
	lines := []string{
		"telegram_token: " + redactToken(cfg.TelegramToken),
		"bootstrap_admin_id: " + strconv.FormatInt(cfg.BootstrapAdminID, 10),
		"store_driver: " + cfg.StoreDriver,
	}

	if cfg.StoreDriver == DriverMongo {
		lines = append(lines,
			"mongo_uri: "+redactURI(cfg.MongoURI),
			"mongo_db: "+cfg.MongoDB,
		)
	} else {
		lines = append(lines, "sql_dsn: "+redactURI(cfg.SQLDSN))
	}

	lines = append(lines,
		"app_env: "+cfg.AppEnv,
		"log_level: "+cfg.LogLevel,
		"http_port: "+strconv.Itoa(cfg.HTTPPort),
		"membership_check_timeout: "+cfg.MembershipTimeout.String(),
		"membership_check_concurrency: "+strconv.Itoa(cfg.MembershipConcurrency),
	)

	return strings.Join(lines, "\n")
}

func redactToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 4 {
		return "...redacted"
	}
	return token[:4] + "...redacted"
}

func redactURI(raw string) string {
	if strings.Contains(raw, "password=") {
		fields := strings.Fields(raw)
		for i, field := range fields {
			if strings.HasPrefix(field, "password=") {
				fields[i] = "password=redacted"
			}
		}
		return strings.Join(fields, " ")
	}

	parsed, err := url.Parse(raw)
	if err != nil || parsed.User == nil {
		return raw
	}

	parsed.User = nil
	return parsed.String()
}

func resolveAppEnv() (string, error) {
	if explicit := normalizeEnv(os.Getenv(KeyAppEnv)); explicit != "" {
		return explicit, nil
	}

	dotEnvValues, err := godotenv.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultAppEnv, nil
		}
		return "", fmt.Errorf("read .env: %w", err)
	}

	if envFromFile := normalizeEnv(dotEnvValues[KeyAppEnv]); envFromFile != "" {
		return envFromFile, nil
	}

	return DefaultAppEnv, nil
}

func loadDotEnv(appEnv string) error {
	if appEnv != EnvDevelopment {
		return nil
	}

	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}

	return nil
}

func validateAppEnv(appEnv string) error {
	if appEnv == EnvDevelopment || appEnv == EnvProduction {
		return nil
	}

	return fmt.Errorf("invalid %s: must be %q or %q", KeyAppEnv, EnvDevelopment, EnvProduction)
}

func validateStoreDriver(driver string) error {
	switch driver {
	case DriverMongo, DriverSQLite, DriverPostgres:
		return nil
	}

	return fmt.Errorf("invalid %s: must be %q, %q or %q", KeyStoreDriver, DriverMongo, DriverSQLite, DriverPostgres)
}

func isMongoURI(uri string) bool {
	return strings.HasPrefix(uri, "mongodb://") || strings.HasPrefix(uri, "mongodb+srv://")
}

func normalizeEnv(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}
