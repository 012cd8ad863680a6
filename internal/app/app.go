// Package app wires the pipeline together and owns the schedulers: the
// recurring ingestion cycle and the weekly digest dispatch.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/okello/hornwatch/internal/cluster"
	"github.com/okello/hornwatch/internal/config"
	"github.com/okello/hornwatch/internal/digest"
	"github.com/okello/hornwatch/internal/extract"
	"github.com/okello/hornwatch/internal/feeds"
	"github.com/okello/hornwatch/internal/images"
	"github.com/okello/hornwatch/internal/mailer"
	"github.com/okello/hornwatch/internal/metrics"
	"github.com/okello/hornwatch/internal/resolver"
	"github.com/okello/hornwatch/internal/store"
)

const (
	// Resolved aggregator URLs are stable; cache them across cycles so the
	// trampoline and API strategies are not re-hit for the same article.
	resolveCacheTTL = 24 * time.Hour

	// The latest cluster snapshot backs the articles endpoint between cycles.
	snapshotTTL = 20 * time.Minute
	snapshotKey = "clusters"

	digestWeekday = time.Monday
	digestHour    = 7
)

type App struct {
	Cfg       *config.Config
	Store     *store.Store
	fetcher   *feeds.Fetcher
	resolver  *resolver.Resolver
	scraper   *images.Scraper
	extractor *extract.Extractor
	builder   *digest.Builder
	mailer    *mailer.Mailer
	sources   []feeds.Source
	cache     *gocache.Cache
}

func New(cfg *config.Config) (*App, error) {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	sources, err := feeds.LoadSources(cfg.SourcesConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}

	x := extract.New(cfg.OpenAIAPIKey, cfg.OpenAIModel, st)
	x.InterCallDelay = cfg.ExtractDelay
	x.RetryConfig.MaxAttempts = cfg.RetryAttempts
	x.RetryConfig.Delay = cfg.RetryDelay

	return &App{
		Cfg:       cfg,
		Store:     st,
		fetcher:   feeds.NewFetcher(),
		resolver:  resolver.New(),
		scraper:   images.NewScraper(),
		extractor: x,
		builder:   digest.NewBuilder(st),
		mailer: mailer.New(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword,
			cfg.PublicBaseURL, cfg.AdminToken, st),
		sources: sources,
		cache:   gocache.New(snapshotTTL, 10*time.Minute),
	}, nil
}

func (a *App) Close() error {
	return a.Store.Close()
}

func (a *App) Mailer() *mailer.Mailer {
	return a.mailer
}

// Clusters returns the snapshot from the most recent cycle, if still fresh.
func (a *App) Clusters() []cluster.Cluster {
	if v, ok := a.cache.Get(snapshotKey); ok {
		return v.([]cluster.Cluster)
	}
	return nil
}

// Cycle runs one full ingestion pass: fetch, window, resolve, enrich
// images, cluster, extract.
func (a *App) Cycle(ctx context.Context) error {
	started := time.Now()
	slog.Info("ingestion cycle starting", "sources", len(a.sources))

	articles := a.fetcher.FetchAll(ctx, a.sources)
	metrics.Global.AddArticles(len(articles))

	articles = feeds.Window(articles, a.Cfg.ArticleMaxAge)
	metrics.Global.AddRelevant(len(articles))

	a.resolveURLs(ctx, articles)
	a.enrichImages(ctx, articles)

	clusters := cluster.Build(articles)
	metrics.Global.AddClusters(len(clusters))
	a.cache.Set(snapshotKey, clusters, snapshotTTL)
	slog.Info("clusters built", "articles", len(articles), "clusters", len(clusters))

	a.extractor.ProcessClusters(ctx, clusters)

	metrics.Global.RecordCycleTime(time.Since(started))
	metrics.Global.SetLastRun()
	slog.Info("ingestion cycle complete", "duration", time.Since(started).Round(time.Millisecond))
	return nil
}

// resolveURLs rewrites aggregator links to publisher links in place,
// strategy stages in cost order: cached results, then the local strategies
// (anchor, payload decode), then the batch API over the leftovers, and only
// then per-URL trampoline fetches for whatever the API could not decode.
func (a *App) resolveURLs(ctx context.Context, articles []feeds.Article) {
	var unresolved []string
	idxByURL := make(map[string][]int)

	apply := func(orig, u string) {
		a.cache.Set("url:"+orig, u, resolveCacheTTL)
		for _, i := range idxByURL[orig] {
			articles[i].URL = u
		}
	}

	resolved := 0
	for i := range articles {
		if !resolver.IsAggregatorURL(articles[i].URL) {
			continue
		}

		if v, ok := a.cache.Get("url:" + articles[i].URL); ok {
			articles[i].URL = v.(string)
			resolved++
			continue
		}

		u, ok := a.resolver.Resolve(articles[i].URL, articles[i].RawContent)
		if ok {
			a.cache.Set("url:"+articles[i].URL, u, resolveCacheTTL)
			articles[i].URL = u
			resolved++
			continue
		}

		if len(idxByURL[articles[i].URL]) == 0 {
			unresolved = append(unresolved, articles[i].URL)
		}
		idxByURL[articles[i].URL] = append(idxByURL[articles[i].URL], i)
	}

	if len(unresolved) > 0 {
		decoded := a.resolver.ResolveBatchAPI(ctx, unresolved)
		remaining := unresolved[:0:0]
		for _, orig := range unresolved {
			if u, ok := decoded[orig]; ok {
				apply(orig, u)
				resolved++
				continue
			}
			remaining = append(remaining, orig)
		}
		unresolved = remaining
	}

	failed := 0
	for _, orig := range unresolved {
		if u, ok := a.resolver.ResolveTrampoline(ctx, orig); ok {
			apply(orig, u)
			resolved++
			continue
		}
		failed++
	}

	metrics.Global.AddResolved(resolved)
	metrics.Global.AddUnresolved(failed)
	if resolved+failed > 0 {
		slog.Info("url resolution pass complete", "resolved", resolved, "unresolved", failed)
	}
}

// enrichImages scrapes preview images for articles that have a publisher
// URL but no feed-provided image, up to the per-cycle cap.
func (a *App) enrichImages(ctx context.Context, articles []feeds.Article) {
	var candidates []string
	idxByURL := make(map[string][]int)

	for i := range articles {
		if articles[i].Image != "" || resolver.IsAggregatorURL(articles[i].URL) {
			continue
		}
		if len(idxByURL[articles[i].URL]) == 0 {
			candidates = append(candidates, articles[i].URL)
		}
		idxByURL[articles[i].URL] = append(idxByURL[articles[i].URL], i)
	}
	if len(candidates) == 0 {
		return
	}

	found := a.scraper.ScrapeBatch(ctx, candidates, a.Cfg.ImageScrapeCap, a.Cfg.ImageScrapeBatch)
	for u, img := range found {
		for _, i := range idxByURL[u] {
			articles[i].Image = img
		}
	}
	metrics.Global.AddImagesScraped(len(found))
}

// RunDigest builds the weekly digest and, when mail is configured,
// dispatches it.
func (a *App) RunDigest(now time.Time) (*digest.Digest, error) {
	d, err := a.builder.Build(now)
	if err != nil {
		return nil, err
	}
	if !a.Cfg.MailEnabled() {
		slog.Info("mail disabled, digest built but not sent")
		return d, nil
	}
	if err := a.mailer.SendDigest(d, a.Cfg.DigestRecipients); err != nil {
		return d, err
	}
	return d, nil
}

// NextDigestTime returns the next Monday 07:00 local after now. A process
// started later on Monday waits for the following week rather than sending
// a stale digest immediately.
func NextDigestTime(now time.Time) time.Time {
	year, month, day := now.Date()
	next := time.Date(year, month, day, digestHour, 0, 0, 0, now.Location())

	daysAhead := (int(digestWeekday) - int(now.Weekday()) + 7) % 7
	next = next.AddDate(0, 0, daysAhead)
	if !next.After(now) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}

// Run drives the schedulers until the context is cancelled: an immediate
// cycle, the recurring ingestion ticker, and the weekly digest timer.
func (a *App) Run(ctx context.Context) error {
	if err := a.Cycle(ctx); err != nil {
		metrics.Global.SetError(err.Error())
		slog.Error("initial cycle failed", "error", err)
	}

	ticker := time.NewTicker(a.Cfg.IngestInterval)
	defer ticker.Stop()

	digestAt := NextDigestTime(time.Now())
	digestTimer := time.NewTimer(time.Until(digestAt))
	defer digestTimer.Stop()
	slog.Info("digest scheduled", "at", digestAt.Format(time.RFC3339))

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopping")
			return ctx.Err()

		case <-ticker.C:
			if err := a.Cycle(ctx); err != nil {
				metrics.Global.SetError(err.Error())
				slog.Error("cycle failed", "error", err)
			}

		case <-digestTimer.C:
			if _, err := a.RunDigest(time.Now()); err != nil {
				metrics.Global.SetError(err.Error())
				slog.Error("digest run failed", "error", err)
			}
			digestAt = NextDigestTime(time.Now())
			digestTimer.Reset(time.Until(digestAt))
			slog.Info("digest scheduled", "at", digestAt.Format(time.RFC3339))
		}
	}
}
