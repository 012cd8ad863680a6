// Package images populates article preview images. The cheap pass reads
// image hints straight off the feed item; the scrape pass fetches the
// publisher page and pulls og:image / twitter:image metadata.
package images

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/okello/hornwatch/internal/limiter"
)

const (
	browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

	// Publisher pages are only read far enough to reach <head> metadata.
	maxScrapeBytes = 50 * 1024
)

var imgTagRe = regexp.MustCompile(`(?i)<img[^>]+>`)
var imgSrcRe = regexp.MustCompile(`(?i)src\s*=\s*["']([^"']+)["']`)

// NormalizeURL upgrades protocol-relative URLs and rejects non-http schemes.
func NormalizeURL(u string) string {
	u = strings.TrimSpace(u)
	if strings.HasPrefix(u, "//") {
		u = "https:" + u
	}
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	return ""
}

// FromItem extracts a preview image from the feed item itself, in priority
// order: typed enclosure, media:content / media:thumbnail / media:group,
// typeless enclosure, then <img> tags embedded in the content fields.
func FromItem(item *gofeed.Item) string {
	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		if strings.HasPrefix(enc.Type, "image") {
			if u := NormalizeURL(enc.URL); u != "" {
				return u
			}
		}
	}

	if media, ok := item.Extensions["media"]; ok {
		for _, name := range []string{"content", "thumbnail"} {
			for _, e := range media[name] {
				if u := NormalizeURL(e.Attrs["url"]); u != "" {
					return u
				}
			}
		}
		for _, g := range media["group"] {
			for _, e := range g.Children["content"] {
				if u := NormalizeURL(e.Attrs["url"]); u != "" {
					return u
				}
			}
		}
	}

	for _, enc := range item.Enclosures {
		if enc != nil && enc.URL != "" {
			if u := NormalizeURL(enc.URL); u != "" {
				return u
			}
		}
	}

	for _, field := range []string{item.Content, item.Description} {
		if u := firstInlineImage(field); u != "" {
			return u
		}
	}
	return ""
}

// firstInlineImage scans HTML for the first usable <img>, skipping 1x1
// tracking pixels.
func firstInlineImage(html string) string {
	if html == "" {
		return ""
	}
	for _, tag := range imgTagRe.FindAllString(html, -1) {
		if isTrackingPixel(tag) {
			continue
		}
		m := imgSrcRe.FindStringSubmatch(tag)
		if m == nil {
			continue
		}
		if u := NormalizeURL(m[1]); u != "" {
			return u
		}
	}
	return ""
}

func isTrackingPixel(tag string) bool {
	lower := strings.ToLower(tag)
	if strings.Contains(lower, `width="1"`) || strings.Contains(lower, `height="1"`) {
		return true
	}
	if strings.Contains(lower, "width='1'") || strings.Contains(lower, "height='1'") {
		return true
	}
	return strings.Contains(lower, "1x1")
}

// Scraper fetches publisher pages for preview metadata.
type Scraper struct {
	client  *http.Client
	limiter *limiter.Limiter
}

func NewScraper() *Scraper {
	return &Scraper{
		client:  &http.Client{Timeout: 8 * time.Second},
		limiter: limiter.New(2, 4),
	}
}

// ScrapePreview fetches the article page and returns its og:image or
// twitter:image URL.
func (s *Scraper) ScrapePreview(ctx context.Context, pageURL string) (string, error) {
	if err := s.limiter.Wait(ctx, pageURL); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", browserUA)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxScrapeBytes))
	if err != nil {
		return "", err
	}

	selectors := []string{
		`meta[property="og:image"]`,
		`meta[name="og:image"]`,
		`meta[property="twitter:image"]`,
		`meta[name="twitter:image"]`,
	}
	for _, sel := range selectors {
		if content, ok := doc.Find(sel).First().Attr("content"); ok {
			if u := NormalizeURL(content); u != "" {
				return u, nil
			}
		}
	}
	return "", fmt.Errorf("no preview metadata")
}

// ScrapeBatch resolves preview images for up to limit URLs, batchSize at a
// time. Failures are silent; the article simply keeps no image.
func (s *Scraper) ScrapeBatch(ctx context.Context, urls []string, limit, batchSize int) map[string]string {
	if len(urls) > limit {
		urls = urls[:limit]
	}
	if batchSize <= 0 {
		batchSize = 10
	}

	results := make(map[string]string)
	var mu sync.Mutex

	for start := 0; start < len(urls); start += batchSize {
		end := start + batchSize
		if end > len(urls) {
			end = len(urls)
		}

		var wg sync.WaitGroup
		for _, u := range urls[start:end] {
			wg.Add(1)
			go func(u string) {
				defer wg.Done()
				img, err := s.ScrapePreview(ctx, u)
				if err != nil {
					slog.Debug("image scrape failed", "url", u, "error", err)
					return
				}
				mu.Lock()
				results[u] = img
				mu.Unlock()
			}(u)
		}
		wg.Wait()
	}

	slog.Info("image scrape pass complete", "candidates", len(urls), "found", len(results))
	return results
}
