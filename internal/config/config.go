// Package config loads process configuration from the environment.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// LLM settings. An empty API key disables extraction; the pipeline
	// still ingests and serves articles.
	OpenAIAPIKey string
	OpenAIModel  string

	// SMTP settings. Missing host disables the weekly send.
	SMTPHost         string
	SMTPPort         int
	SMTPUser         string
	SMTPPassword     string
	DigestRecipients []string

	// Server settings
	Port          int
	AdminToken    string
	PublicBaseURL string // absolute base for unsubscribe links

	// Storage
	DBPath string

	// Ingestion
	SourcesConfigPath string
	IngestInterval    time.Duration
	ArticleMaxAge     time.Duration

	// Scraping
	ImageScrapeCap   int // candidate articles per cycle
	ImageScrapeBatch int

	// Extraction pacing
	ExtractDelay  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration

	Debug bool
}

func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("PORT", 8080)
	v.SetDefault("DB_PATH", "hornwatch.db")
	v.SetDefault("SOURCES_CONFIG_PATH", "configs/sources.yaml")
	v.SetDefault("INGEST_INTERVAL_MINUTES", 15)
	v.SetDefault("ARTICLE_MAX_AGE_DAYS", 7)
	v.SetDefault("IMAGE_SCRAPE_CAP", 60)
	v.SetDefault("IMAGE_SCRAPE_BATCH", 10)
	v.SetDefault("EXTRACT_DELAY_SECONDS", 3)
	// 4 total calls: the first attempt plus three backoff retries.
	v.SetDefault("RETRY_ATTEMPTS", 4)
	v.SetDefault("RETRY_DELAY_SECONDS", 2)

	cfg := &Config{
		OpenAIAPIKey:      v.GetString("OPENAI_API_KEY"),
		OpenAIModel:       v.GetString("OPENAI_MODEL"),
		SMTPHost:          v.GetString("SMTP_HOST"),
		SMTPPort:          v.GetInt("SMTP_PORT"),
		SMTPUser:          v.GetString("SMTP_USER"),
		SMTPPassword:      v.GetString("SMTP_PASSWORD"),
		Port:              v.GetInt("PORT"),
		AdminToken:        v.GetString("ADMIN_TOKEN"),
		PublicBaseURL:     v.GetString("PUBLIC_BASE_URL"),
		DBPath:            v.GetString("DB_PATH"),
		SourcesConfigPath: v.GetString("SOURCES_CONFIG_PATH"),
		IngestInterval:    time.Duration(v.GetInt("INGEST_INTERVAL_MINUTES")) * time.Minute,
		ArticleMaxAge:     time.Duration(v.GetInt("ARTICLE_MAX_AGE_DAYS")) * 24 * time.Hour,
		ImageScrapeCap:    v.GetInt("IMAGE_SCRAPE_CAP"),
		ImageScrapeBatch:  v.GetInt("IMAGE_SCRAPE_BATCH"),
		ExtractDelay:      time.Duration(v.GetInt("EXTRACT_DELAY_SECONDS")) * time.Second,
		RetryAttempts:     v.GetInt("RETRY_ATTEMPTS"),
		RetryDelay:        time.Duration(v.GetInt("RETRY_DELAY_SECONDS")) * time.Second,
		Debug:             v.GetString("DEBUG") == "true",
	}

	if raw := v.GetString("DIGEST_RECIPIENTS"); raw != "" {
		for _, r := range strings.Split(raw, ",") {
			r = strings.TrimSpace(r)
			if r != "" {
				cfg.DigestRecipients = append(cfg.DigestRecipients, r)
			}
		}
	}

	return cfg, nil
}

// ExtractionEnabled reports whether the LLM extractor can run.
func (c *Config) ExtractionEnabled() bool {
	return c.OpenAIAPIKey != ""
}

// MailEnabled reports whether the weekly digest can be dispatched.
func (c *Config) MailEnabled() bool {
	return c.SMTPHost != "" && len(c.DigestRecipients) > 0
}
