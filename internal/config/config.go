package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	ServerPort   string
	DatabaseType string
	DatabasePath string
	DatabaseURL  string

	TokenSecret string
	TokenTTL    time.Duration
	CSRFSecret  string

	ParentSessionIdle time.Duration
	PinAttemptLimit   int
	PinAttemptWindow  time.Duration

	StoreTimeout             time.Duration
	SubscriptionPollInterval time.Duration
	DefaultRewardImage       string

	AWSRegion    string
	SESFromEmail string
	SESFromName  string
	AppBaseURL   string
	EmailDebug   bool

	LogLevel string
	LogDev   bool
	LogFile  string
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is loaded first if present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServerPort:   getEnv("PORT", "8080"),
		DatabaseType: getEnv("DB_TYPE", "sqlite"),
		DatabasePath: getEnv("DB_PATH", "./stickerboard.db"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),

		TokenSecret: getEnv("TOKEN_SECRET", "dev-token-secret-change-me"),
		TokenTTL:    getDuration("TOKEN_TTL", 30*24*time.Hour),
		CSRFSecret:  getEnv("CSRF_SECRET", "dev-csrf-secret-change-me"),

		ParentSessionIdle: getDuration("PARENT_SESSION_IDLE", 12*time.Hour),
		PinAttemptLimit:   getInt("PIN_ATTEMPT_LIMIT", 5),
		PinAttemptWindow:  getDuration("PIN_ATTEMPT_WINDOW", 5*time.Minute),

		StoreTimeout:             getDuration("STORE_TIMEOUT", 10*time.Second),
		SubscriptionPollInterval: getDuration("SUBSCRIPTION_POLL_INTERVAL", 0),
		DefaultRewardImage:       getEnv("DEFAULT_REWARD_IMAGE", "/party.png"),

		AWSRegion:    getEnv("AWS_REGION", "us-east-1"),
		SESFromEmail: getEnv("SES_FROM_EMAIL", ""),
		SESFromName:  getEnv("SES_FROM_NAME", "Sticker Board"),
		AppBaseURL:   getEnv("APP_BASE_URL", "http://localhost:8080"),
		EmailDebug:   getBool("EMAIL_DEBUG", false),

		LogLevel: getEnv("LOG_LEVEL", ""),
		LogDev:   getEnv("LOG_DEV", "") == "1",
		LogFile:  getEnv("LOG_FILE", ""),
	}
}

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

// getDuration accepts Go duration strings ("90s", "12h"). Invalid values fall back to the default.
func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
