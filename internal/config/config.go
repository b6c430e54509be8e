package config

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds all configuration for the service
type Config struct {
	Port        string
	GinMode     string
	MongoDBURI  string
	MongoDBName string
	RedisURL    string
	AdminAPIKey string
	TokenSecret string

	// UpstreamProxies are CORS-style proxy prefixes; the target URL is appended after a slash.
	UpstreamProxies []string
	UpstreamTimeout time.Duration

	// TrustedProxies may set X-Forwarded-For; empty trusts none and uses the peer address.
	TrustedProxies []string

	HentaiHavenBaseURL    string
	HentaiHavenPlayerAPI  string
	HanimeBaseURL         string
	HanimeSearchURL       string
	Rule34BaseURL         string
	Rule34AutocompleteURL string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "3000"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		MongoDBURI:  getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDBName: getEnv("MONGODB_DATABASE", "hentai_api"),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379"),
		AdminAPIKey: os.Getenv("ADMIN_API_KEY"),
		TokenSecret: os.Getenv("TOKEN_SECRET"),

		UpstreamProxies: splitList(os.Getenv("UPSTREAM_PROXY")),
		UpstreamTimeout: getDuration("UPSTREAM_TIMEOUT", 15*time.Second),
		TrustedProxies:  splitList(os.Getenv("TRUSTED_PROXIES")),

		HentaiHavenBaseURL:    getEnv("HENTAIHAVEN_BASE_URL", "http://hentaihaven.xxx"),
		HentaiHavenPlayerAPI:  os.Getenv("HENTAIHAVEN_PLAYER_API"),
		HanimeBaseURL:         getEnv("HANIME_BASE_URL", "https://hanime.tv"),
		HanimeSearchURL:       getEnv("HANIME_SEARCH_URL", "https://search.htv-services.com"),
		Rule34BaseURL:         getEnv("RULE34_BASE_URL", "https://rule34.xxx"),
		Rule34AutocompleteURL: getEnv("RULE34_AUTOCOMPLETE_URL", "https://ac.rule34.xxx"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		log.Warn().Str("key", key).Str("value", value).Dur("default", defaultValue).Msg("Invalid duration, using default")
		return defaultValue
	}
	return d
}

func splitList(value string) []string {
	items := []string{}
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
