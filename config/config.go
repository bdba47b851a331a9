package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration (outbound notifier)
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// Payment feed configuration (inbound confirmations)
	PaymentFeedSubKey    string
	PaymentFeedChannel   string
	PaymentFeedUUID      string
	PaymentFeedCipherKey string

	// Webhook verification
	WebhookSecretHash string
	WebhookHMACKey    string

	// Booking policy
	CancellationWindow  time.Duration
	AdminDeadlineExempt bool
	ReserveRetries      int

	// Waitlist policy
	WaitlistNotifyTTL time.Duration

	// Response cache
	CacheTTL time.Duration

	// Rate limiting
	RateLimitPerMinute int

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		// Payment feed
		PaymentFeedSubKey:    getEnv("PAYMENT_FEED_SUB_KEY", ""),
		PaymentFeedChannel:   getEnv("PAYMENT_FEED_CHANNEL", "payment-confirmations"),
		PaymentFeedUUID:      getEnv("PAYMENT_FEED_UUID", "booking-system"),
		PaymentFeedCipherKey: getEnv("PAYMENT_FEED_CIPHER_KEY", ""),

		// Webhook
		WebhookSecretHash: getEnv("WEBHOOK_SECRET_HASH", ""),
		WebhookHMACKey:    getEnv("WEBHOOK_HMAC_KEY", ""),

		// Booking policy
		CancellationWindow:  getEnvAsDuration("CANCELLATION_WINDOW", "24h"),
		AdminDeadlineExempt: getEnvAsBool("ADMIN_DEADLINE_EXEMPT", false),
		ReserveRetries:      getEnvAsInt("RESERVE_RETRIES", 3),

		// Waitlist
		WaitlistNotifyTTL: getEnvAsDuration("WAITLIST_NOTIFY_TTL", "30m"),

		// Cache
		CacheTTL: getEnvAsDuration("CACHE_TTL", "60s"),

		// Rate limiting
		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 30),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, fall back to the default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
