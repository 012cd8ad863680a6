package feeds

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/okello/hornwatch/internal/metrics"
)

const (
	browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	acceptHdr = "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.7"

	fetchTimeout = 10 * time.Second
	maxFeedBytes = 5 * 1024 * 1024
)

// Fetcher downloads and parses syndication feeds.
type Fetcher struct {
	client *http.Client
}

func NewFetcher() *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: fetchTimeout},
	}
}

// FetchSource downloads one feed and parses it. Malformed preambles (BOM,
// whitespace, stray bytes before the XML declaration) are stripped first.
func (f *Fetcher) FetchSource(ctx context.Context, src Source) ([]*gofeed.Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("Accept", acceptHdr)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", src.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: HTTP %d", src.Name, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", src.Name, err)
	}

	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(StripPreamble(body)))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", src.Name, err)
	}
	return feed.Items, nil
}

// StripPreamble removes a UTF-8 BOM and any leading garbage before the first
// XML token gofeed can handle.
func StripPreamble(b []byte) []byte {
	b = bytes.TrimPrefix(b, []byte{0xEF, 0xBB, 0xBF})

	first := -1
	for _, token := range [][]byte{[]byte("<?xml"), []byte("<rss"), []byte("<feed")} {
		if idx := bytes.Index(b, token); idx >= 0 && (first < 0 || idx < first) {
			first = idx
		}
	}
	if first > 0 {
		return b[first:]
	}
	return b
}

// FetchAll fetches every source in parallel. A failing source is logged and
// contributes nothing; it never poisons the batch.
func (f *Fetcher) FetchAll(ctx context.Context, sources []Source) []Article {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		articles []Article
		ok, bad  int
	)

	for _, src := range sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()

			items, err := f.FetchSource(ctx, src)
			if err != nil {
				slog.Warn("feed fetch failed", "source", src.Name, "error", err)
				mu.Lock()
				bad++
				mu.Unlock()
				return
			}

			batch := make([]Article, 0, len(items))
			for _, item := range items {
				if item == nil || item.Title == "" || item.Link == "" {
					continue
				}
				if !Relevant(item.Title, item.Description+" "+item.Content) {
					continue
				}
				batch = append(batch, Normalize(item, src))
			}

			mu.Lock()
			articles = append(articles, batch...)
			ok++
			mu.Unlock()
			slog.Debug("feed fetched", "source", src.Name, "items", len(items), "relevant", len(batch))
		}(src)
	}
	wg.Wait()

	metrics.Global.AddFeedsFetched(ok)
	metrics.Global.AddFeedsFailed(bad)
	slog.Info("feed fetch complete", "sources_ok", ok, "sources_failed", bad, "articles", len(articles))
	return articles
}
