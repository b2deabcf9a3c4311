package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	defaultAppName         = "FXWallet"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultAccessTokenTTL  = time.Hour
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
	defaultCodeTTL         = 10 * time.Minute
	defaultLoginPerMinute  = 5
	defaultBaseCurrency    = "NGN"
	defaultInitialBalance  = "100"
	defaultFXRateAPIURL    = "https://api.exchangerate-api.com/v4/latest"
	defaultFXRateCacheTTL  = 300 * time.Second
	defaultFXRateTimeout   = 5 * time.Second
	defaultFXMaxRedirects  = 3
	defaultOperationTTL    = 15 * time.Second
	defaultKafkaTopic      = "user-events"
	defaultKafkaGroupID    = "fxwallet-wallets"
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
	fxTTLSecondsEnvVar     = "FX_RATE_CACHE_TTL_SECONDS"
	fxTTLDurEnvVar         = "FX_RATE_CACHE_TTL"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	JWTSecret           string
	AccessTokenTTL      time.Duration
	RefreshTokenTTL     time.Duration
	VerificationCodeTTL time.Duration
	LoginAttemptsPerMin int

	BaseCurrency         string
	InitialWalletBalance decimal.Decimal
	OperationTimeout     time.Duration

	FXRateAPIURL       string
	FXRateCacheTTL     time.Duration
	FXRateTimeout      time.Duration
	FXRateMaxRedirects int

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string
}

// Load reads configuration values from the environment and populates a Config instance.
// A .env file in the working directory is honoured when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		AppName:             getEnv("APP_NAME", defaultAppName),
		AppEnv:              getEnv("APP_ENV", defaultAppEnv),
		Port:                getEnv("PORT", defaultPort),
		LogLevel:            strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisURL:            os.Getenv("REDIS_URL"),
		ShutdownPeriod:      defaultShutdownDelay,
		IdempotencyTTL:      defaultIdempotencyTTL,
		JWTSecret:           os.Getenv("JWT_SECRET"),
		AccessTokenTTL:      defaultAccessTokenTTL,
		RefreshTokenTTL:     defaultRefreshTokenTTL,
		VerificationCodeTTL: defaultCodeTTL,
		LoginAttemptsPerMin: defaultLoginPerMinute,
		BaseCurrency:        strings.ToUpper(getEnv("BASE_CURRENCY", defaultBaseCurrency)),
		OperationTimeout:    defaultOperationTTL,
		FXRateAPIURL:        strings.TrimRight(getEnv("FX_RATE_API_URL", defaultFXRateAPIURL), "/"),
		FXRateCacheTTL:      defaultFXRateCacheTTL,
		FXRateTimeout:       defaultFXRateTimeout,
		FXRateMaxRedirects:  defaultFXMaxRedirects,
		KafkaBrokers:        splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:          getEnv("KAFKA_TOPIC", defaultKafkaTopic),
		KafkaGroupID:        getEnv("KAFKA_GROUP_ID", defaultKafkaGroupID),
	}

	var err error
	if cfg.ShutdownPeriod, err = durationFromEnv(shutdownSecondsEnvVar, shutdownDurationEnvVar, cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationFromEnv(idemTTLSecondsEnvVar, idemTTLDurEnvVar, cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.FXRateCacheTTL, err = durationFromEnv(fxTTLSecondsEnvVar, fxTTLDurEnvVar, cfg.FXRateCacheTTL); err != nil {
		return Config{}, err
	}
	if cfg.FXRateTimeout, err = durationFromEnv("", "FX_RATE_TIMEOUT", cfg.FXRateTimeout); err != nil {
		return Config{}, err
	}
	if cfg.AccessTokenTTL, err = durationFromEnv("", "ACCESS_TOKEN_TTL", cfg.AccessTokenTTL); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTokenTTL, err = durationFromEnv("", "REFRESH_TOKEN_TTL", cfg.RefreshTokenTTL); err != nil {
		return Config{}, err
	}
	if cfg.VerificationCodeTTL, err = durationFromEnv("", "VERIFICATION_CODE_TTL", cfg.VerificationCodeTTL); err != nil {
		return Config{}, err
	}
	if cfg.OperationTimeout, err = durationFromEnv("", "OPERATION_TIMEOUT", cfg.OperationTimeout); err != nil {
		return Config{}, err
	}

	if v := os.Getenv("LOGIN_ATTEMPTS_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid LOGIN_ATTEMPTS_PER_MINUTE: %q", v)
		}
		cfg.LoginAttemptsPerMin = n
	}

	if v := os.Getenv("FX_RATE_MAX_REDIRECTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("invalid FX_RATE_MAX_REDIRECTS: %q", v)
		}
		cfg.FXRateMaxRedirects = n
	}

	balance, err := decimal.NewFromString(getEnv("INITIAL_WALLET_BALANCE", defaultInitialBalance))
	if err != nil {
		return Config{}, fmt.Errorf("invalid INITIAL_WALLET_BALANCE: %w", err)
	}
	if balance.IsNegative() {
		return Config{}, fmt.Errorf("INITIAL_WALLET_BALANCE must not be negative")
	}
	cfg.InitialWalletBalance = balance.Round(2)

	if !cfg.IsDevelopment() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set")
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set")
		}
		if cfg.JWTSecret == "" {
			return Config{}, fmt.Errorf("JWT_SECRET must be set")
		}
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "development-secret"
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDevelopment reports whether the service runs in a local/dev environment where
// in-memory backends are acceptable.
func (c Config) IsDevelopment() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func durationFromEnv(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if secondsKey != "" {
		if v := os.Getenv(secondsKey); v != "" {
			seconds, err := strconv.Atoi(v)
			if err != nil {
				return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
			}
			return time.Duration(seconds) * time.Second, nil
		}
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			// plain integers are read as seconds
			seconds, convErr := strconv.Atoi(v)
			if convErr != nil {
				return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
			}
			return time.Duration(seconds) * time.Second, nil
		}
		return d, nil
	}
	return fallback, nil
}

func splitList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
