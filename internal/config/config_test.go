package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", cfg.OpenAIModel)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "hornwatch.db", cfg.DBPath)
	assert.Equal(t, 15*time.Minute, cfg.IngestInterval)
	assert.Equal(t, 7*24*time.Hour, cfg.ArticleMaxAge)
	assert.Equal(t, 60, cfg.ImageScrapeCap)
	assert.Equal(t, 3*time.Second, cfg.ExtractDelay)
	assert.Equal(t, 4, cfg.RetryAttempts, "first call plus three backoff retries")
	assert.Equal(t, 2*time.Second, cfg.RetryDelay)
}

func TestLoadRecipients(t *testing.T) {
	t.Setenv("DIGEST_RECIPIENTS", "a@example.org, b@example.org ,,c@example.org")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"a@example.org", "b@example.org", "c@example.org"},
		cfg.DigestRecipients)
}

func TestFeatureToggles(t *testing.T) {
	cfg := &Config{}
	assert.False(t, cfg.ExtractionEnabled())
	assert.False(t, cfg.MailEnabled())

	cfg.OpenAIAPIKey = "sk-test"
	assert.True(t, cfg.ExtractionEnabled())

	cfg.SMTPHost = "smtp.example.org"
	assert.False(t, cfg.MailEnabled(), "mail needs recipients too")
	cfg.DigestRecipients = []string{"a@example.org"}
	assert.True(t, cfg.MailEnabled())
}
