// Package extract turns clusters into structured events via an external
// LLM. The model is treated as a fallible oracle: every response is schema
// validated and anything borderline or malformed lands in quarantine with
// its raw output preserved.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/okello/hornwatch/internal/cluster"
	"github.com/okello/hornwatch/internal/metrics"
	"github.com/okello/hornwatch/internal/retry"
	"github.com/okello/hornwatch/internal/store"
)

const (
	maxCompletionTokens = 500
	temperature         = 0.1
)

type Extractor struct {
	client *openai.Client
	model  string
	store  *store.Store

	// InterCallDelay paces requests between clusters; the LLM rate limit is
	// the binding constraint, so extraction is strictly serial.
	InterCallDelay time.Duration
	RetryConfig    retry.Config
}

// New builds the extractor. An empty API key yields a disabled extractor;
// the pipeline degrades to an article feed without events.
func New(apiKey, model string, st *store.Store) *Extractor {
	x := &Extractor{
		model:          model,
		store:          st,
		InterCallDelay: 3 * time.Second,
		// 4 attempts: the initial call plus retries at 2s, 4s, 8s.
		RetryConfig: retry.Config{MaxAttempts: 4, Delay: 2 * time.Second, Backoff: true},
	}
	if apiKey != "" {
		x.client = openai.NewClient(apiKey)
	}
	return x
}

func (x *Extractor) Enabled() bool {
	return x.client != nil
}

// ProcessClusters extracts every cluster not already present in the events
// or quarantine tables, serially, pausing between calls.
func (x *Extractor) ProcessClusters(ctx context.Context, clusters []cluster.Cluster) {
	if !x.Enabled() {
		slog.Info("extraction disabled: no API key")
		return
	}

	pending := 0
	for i := range clusters {
		c := &clusters[i]

		exists, err := x.store.Exists(c.Hash)
		if err != nil {
			slog.Error("dedup gate check failed", "cluster", c.Hash, "error", err)
			continue
		}
		if exists {
			continue
		}

		if pending > 0 {
			select {
			case <-ctx.Done():
				slog.Warn("extraction cycle cancelled", "remaining", len(clusters)-i)
				return
			case <-time.After(x.InterCallDelay):
			}
		}
		pending++

		if err := x.ExtractCluster(ctx, c); err != nil {
			slog.Error("extraction failed", "cluster", c.Hash, "title", c.Primary.Title, "error", err)
		}
	}
	slog.Info("extraction pass complete", "clusters", len(clusters), "processed", pending)
}

// ExtractCluster runs one model call and persists either an event or a
// quarantine record. Only store write failures surface as errors.
func (x *Extractor) ExtractCluster(ctx context.Context, c *cluster.Cluster) error {
	raw, err := x.complete(ctx, BuildUserPrompt(c))
	if err != nil {
		return x.quarantine(c, raw, []string{err.Error()})
	}

	payload, err := ParsePayload(raw)
	if err != nil {
		return x.quarantine(c, raw, []string{err.Error()})
	}

	ex, hard, soft := Validate(payload)
	if len(hard) > 0 {
		return x.quarantine(c, raw, hard)
	}
	if ShouldQuarantine(ex, soft) {
		return x.quarantine(c, raw, soft)
	}

	urls := make([]string, 0, len(c.Articles))
	for _, a := range c.Articles {
		urls = append(urls, a.URL)
	}

	event := &store.Event{
		ClusterHash:        c.Hash,
		Summary:            ex.Summary,
		Country:            ex.Country,
		Regions:            ex.Regions,
		EventType:          ex.EventType,
		EventSubtype:       ex.EventSubtype,
		Severity:           ex.Severity,
		Scope:              ex.Scope,
		SourceTier:         DeriveSourceTier(c.Sources),
		VerificationStatus: ex.VerificationStatus,
		Confidence:         ex.Confidence,
		Rationale:          ex.Rationale,
		Actors:             ex.Actors,
		ActorsNormalized:   NormalizeActors(ex.Actors),
		ArticleCount:       len(c.Articles),
		Sources:            c.Sources,
		ArticleURLs:        urls,
		PrimaryURL:         c.Primary.URL,
		PrimaryTitle:       c.Primary.Title,
		PublishedAt:        c.LatestDate,
		ExtractedAt:        time.Now(),
		ModelVersion:       x.model,
		PromptVersion:      PromptVersion,
	}

	if err := x.store.InsertEvent(event); err != nil {
		return fmt.Errorf("persist event: %w", err)
	}
	metrics.Global.IncrementEventsExtracted()
	slog.Info("event extracted", "cluster", c.Hash, "type", event.EventType,
		"severity", event.Severity, "country", event.Country)
	return nil
}

func (x *Extractor) quarantine(c *cluster.Cluster, raw string, reasons []string) error {
	urls := make([]string, 0, len(c.Articles))
	for _, a := range c.Articles {
		urls = append(urls, a.URL)
	}

	rec := &store.QuarantineRecord{
		ClusterHash:   c.Hash,
		RawOutput:     raw,
		ErrorReasons:  reasons,
		PrimaryTitle:  c.Primary.Title,
		PrimaryURL:    c.Primary.URL,
		Sources:       c.Sources,
		ArticleURLs:   urls,
		ModelVersion:  x.model,
		PromptVersion: PromptVersion,
		QuarantinedAt: time.Now(),
	}

	if err := x.store.InsertQuarantine(rec); err != nil {
		return fmt.Errorf("persist quarantine: %w", err)
	}
	metrics.Global.IncrementEventsQuarantined()
	slog.Warn("extraction quarantined", "cluster", c.Hash, "title", c.Primary.Title, "reasons", strings.Join(reasons, "; "))
	return nil
}

// complete makes the chat-completion call, retrying only on rate-limit
// signals with exponential backoff.
func (x *Extractor) complete(ctx context.Context, userPrompt string) (string, error) {
	var content string

	err := retry.Do(ctx, x.RetryConfig, isRateLimit, func() error {
		resp, err := x.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: x.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: userPrompt},
			},
			MaxTokens:   maxCompletionTokens,
			Temperature: temperature,
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("empty completion response")
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	return content, nil
}

// isRateLimit recognizes HTTP 429 responses and 429-bearing messages.
func isRateLimit(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == 429 {
		return true
	}
	return strings.Contains(err.Error(), "429")
}
