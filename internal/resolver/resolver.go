// Package resolver turns aggregator redirect URLs into real publisher URLs.
//
// Google News item links are opaque; four strategies are tried in order:
// an anchor embedded in the item payload, a base64url-encoded URL inside the
// article id, the batchexecute decode API, and finally the HTML trampoline
// page. Aggregator URL formats shift over time, so each strategy can be
// toggled independently.
package resolver

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	browserUA      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	aggregatorRoot = "https://news.google.com/"

	resolveTimeout = 8 * time.Second
	maxPageBytes   = 512 * 1024
)

// Domains owned by the aggregator or its operator; a decoded URL landing on
// any of these is not a publisher URL.
var aggregatorDomains = []string{
	"news.google.com",
	"google.com",
	"gstatic.com",
	"googleusercontent.com",
	"googleapis.com",
	"youtube.com",
}

// Strategies toggles the resolution cascade stage by stage.
type Strategies struct {
	Anchor     bool // <a href> in the item payload
	Payload    bool // base64url scan of the article id
	API        bool // batchexecute decode endpoint
	Trampoline bool // fetch the redirect page
}

func AllStrategies() Strategies {
	return Strategies{Anchor: true, Payload: true, API: true, Trampoline: true}
}

type Resolver struct {
	client     *http.Client
	Strategies Strategies
}

func New() *Resolver {
	return &Resolver{
		client:     &http.Client{Timeout: resolveTimeout},
		Strategies: AllStrategies(),
	}
}

// IsAggregatorURL reports whether the article URL needs resolution.
func IsAggregatorURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Host)
	return host == "news.google.com" || strings.HasSuffix(host, ".news.google.com")
}

func isAggregatorDomain(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return true
	}
	host := strings.ToLower(u.Host)
	for _, d := range aggregatorDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

var anchorRe = regexp.MustCompile(`(?i)<a[^>]+href=["'](https?://[^"']+)["']`)

// Resolve applies the cheap local strategies (anchor, payload); no network
// traffic. The remaining strategies run in order afterwards: ResolveBatchAPI
// over the leftovers, then ResolveTrampoline per URL as the last resort.
// Returns the original URL and false when both local strategies fail.
func (r *Resolver) Resolve(articleURL, rawContent string) (string, bool) {
	if !IsAggregatorURL(articleURL) {
		return articleURL, true
	}

	if r.Strategies.Anchor {
		if u := anchorFromPayload(rawContent); u != "" {
			return u, true
		}
	}
	if r.Strategies.Payload {
		if u := decodeArticleID(articleURL); u != "" {
			return u, true
		}
	}
	return articleURL, false
}

// ResolveTrampoline fetches the redirect page itself, one HTTP round trip
// per URL. The most expensive strategy; callers run it only on URLs the
// local and API strategies could not decode.
func (r *Resolver) ResolveTrampoline(ctx context.Context, articleURL string) (string, bool) {
	if !r.Strategies.Trampoline {
		return articleURL, false
	}
	u, err := r.resolveTrampoline(ctx, articleURL)
	if err != nil || u == "" {
		if err != nil {
			slog.Debug("trampoline resolve failed", "url", articleURL, "error", err)
		}
		return articleURL, false
	}
	return u, true
}

// anchorFromPayload scans item HTML for the first outbound anchor that does
// not point back at an aggregator domain.
func anchorFromPayload(rawContent string) string {
	for _, m := range anchorRe.FindAllStringSubmatch(rawContent, -1) {
		if !isAggregatorDomain(m[1]) {
			return m[1]
		}
	}
	return ""
}

var candidateURLRe = regexp.MustCompile(`^https?://[a-z0-9]`)

// decodeArticleID base64url-decodes the path segment after /articles/ and
// scans the raw bytes for an embedded publisher URL.
func decodeArticleID(articleURL string) string {
	id := articleID(articleURL)
	if id == "" {
		return ""
	}

	padded := strings.ReplaceAll(id, "-", "+")
	padded = strings.ReplaceAll(padded, "_", "/")
	if n := len(padded) % 4; n != 0 {
		padded += strings.Repeat("=", 4-n)
	}

	decoded, err := base64.StdEncoding.DecodeString(padded)
	if err != nil {
		return ""
	}
	return scanForURL(decoded)
}

// articleID extracts the opaque id from .../articles/<id>[?...].
func articleID(articleURL string) string {
	u, err := url.Parse(articleURL)
	if err != nil {
		return ""
	}
	parts := strings.Split(u.Path, "/")
	for i, p := range parts {
		if p == "articles" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}

// scanForURL walks decoded bytes looking for a printable-ASCII run starting
// with "http" that forms a plausible publisher URL.
func scanForURL(b []byte) string {
	for i := 0; i+4 <= len(b); i++ {
		if string(b[i:i+4]) != "http" {
			continue
		}
		end := i
		for end < len(b) && b[end] >= 0x21 && b[end] <= 0x7e {
			end++
		}
		candidate := string(b[i:end])
		if candidateURLRe.MatchString(candidate) && !isAggregatorDomain(candidate) {
			return candidate
		}
	}
	return ""
}

var (
	metaRefreshURLRe = regexp.MustCompile(`(?i)url\s*=\s*['"]?([^'";]+)`)
	jsRedirectRe     = regexp.MustCompile(`window\.location(?:\.href)?\s*=\s*["']([^"']+)["']`)
)

// resolveTrampoline fetches the aggregator redirect page and hunts for the
// outbound URL in meta refresh, JS redirects, data-url attributes, then
// plain anchors.
func (r *Resolver) resolveTrampoline(ctx context.Context, articleURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, articleURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("Referer", aggregatorRoot)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}

	if content, ok := doc.Find(`meta[http-equiv="refresh"]`).First().Attr("content"); ok {
		if m := metaRefreshURLRe.FindStringSubmatch(content); m != nil {
			if u := strings.TrimSpace(m[1]); !isAggregatorDomain(u) && strings.HasPrefix(u, "http") {
				return u, nil
			}
		}
	}

	if m := jsRedirectRe.FindStringSubmatch(string(body)); m != nil {
		if u := m[1]; strings.HasPrefix(u, "http") && !isAggregatorDomain(u) {
			return u, nil
		}
	}

	if u, ok := doc.Find("[data-url]").First().Attr("data-url"); ok {
		if strings.HasPrefix(u, "http") && !isAggregatorDomain(u) {
			return u, nil
		}
	}

	found := ""
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if strings.HasPrefix(href, "http") && !isAggregatorDomain(href) {
			found = href
			return false
		}
		return true
	})
	if found != "" {
		return found, nil
	}

	return "", fmt.Errorf("no outbound URL on trampoline page")
}
