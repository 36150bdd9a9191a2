// Package config loads process configuration at boot and watches a small
// hot-reloadable subset of it — loop count and the org allowlist — for
// changes while the process runs.
package config

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// Config holds everything read once at process start. Fields here never
// change after Load returns; anything that needs to change at runtime lives
// in Watcher instead.
type Config struct {
	AMQPURL   string
	AMQPPrefix string

	RedisURL    string
	DatabaseURL string

	GitHubToken   string
	GitHubBaseURL string

	CrawlerName string
	CrawlerMode string

	SentryDSN       string
	SlackWebhookURL string
	DeadletterBucket string

	ObservabilityEnabled bool
	MetricsAddr          string
	LogLevel             string
	AppEnv               string
	Port                 string

	// LoopCount and OrgAllowlist are the boot-time defaults for the values
	// the Watcher keeps fresh afterward.
	LoopCount    int
	OrgAllowlist []string
}

// Load reads .env.local/.env (if present) and then process environment
// variables, matching the teacher's .env-first startup.
func Load() *Config {
	godotenv.Load(".env.local", ".env")

	return &Config{
		AMQPURL:    os.Getenv("AMQP_URL"),
		AMQPPrefix: getEnvWithDefault("AMQP_PREFIX", "ghcrawler"),

		RedisURL:    os.Getenv("REDIS_URL"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		GitHubToken:   os.Getenv("GITHUB_API_TOKEN"),
		GitHubBaseURL: getEnvWithDefault("GITHUB_API_BASE_URL", "https://api.github.com"),

		CrawlerName: getEnvWithDefault("CRAWLER_NAME", "ghcrawler"),
		CrawlerMode: getEnvWithDefault("CRAWLER_MODE", "standard"),

		SentryDSN:        os.Getenv("SENTRY_DSN"),
		SlackWebhookURL:  os.Getenv("SLACK_WEBHOOK_URL"),
		DeadletterBucket: os.Getenv("DEADLETTER_BUCKET"),

		ObservabilityEnabled: getEnvWithDefault("OBSERVABILITY_ENABLED", "true") == "true",
		MetricsAddr:          getEnvWithDefault("METRICS_ADDR", ":9464"),
		LogLevel:             getEnvWithDefault("LOG_LEVEL", "info"),
		AppEnv:               getEnvWithDefault("APP_ENV", "development"),
		Port:                 getEnvWithDefault("PORT", "8080"),

		LoopCount:    getEnvInt("LOOP_COUNT", 1),
		OrgAllowlist: splitAllowlist(os.Getenv("ORG_ALLOWLIST")),
	}
}

func getEnvWithDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}

func splitAllowlist(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Snapshot is the subset of configuration the Watcher keeps current.
type Snapshot struct {
	LoopCount    int
	OrgAllowlist []string
}

// snapshotStore is a small mutex-guarded box so Watcher.Current is safe to
// call concurrently with a viper change callback.
type snapshotStore struct {
	mu sync.RWMutex
	s  Snapshot
}

func (b *snapshotStore) get() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.s
}

func (b *snapshotStore) set(s Snapshot) {
	b.mu.Lock()
	b.s = s
	b.mu.Unlock()
}
