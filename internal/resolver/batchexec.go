package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"
)

const (
	batchExecuteURL = "https://news.google.com/_/DotsSplashUi/data/batchexecute"

	apiBatchSize  = 5
	apiBatchPause = 200 * time.Millisecond
)

var responseURLRe = regexp.MustCompile(`https?://[^\s"\\]+`)

// ResolveBatchAPI decodes aggregator ids through the batchexecute endpoint,
// at most apiBatchSize requests in flight with a pause between batches.
// Only URLs that are still unresolved and needed downstream (image
// enrichment) should be passed in. Returns originalURL -> publisherURL for
// the ones that decoded.
func (r *Resolver) ResolveBatchAPI(ctx context.Context, articleURLs []string) map[string]string {
	if !r.Strategies.API {
		return nil
	}

	results := make(map[string]string)
	var mu sync.Mutex

	for start := 0; start < len(articleURLs); start += apiBatchSize {
		end := start + apiBatchSize
		if end > len(articleURLs) {
			end = len(articleURLs)
		}

		var wg sync.WaitGroup
		for _, u := range articleURLs[start:end] {
			wg.Add(1)
			go func(u string) {
				defer wg.Done()
				resolved, err := r.resolveViaAPI(ctx, u)
				if err != nil {
					slog.Debug("batchexecute decode failed", "url", u, "error", err)
					return
				}
				mu.Lock()
				results[u] = resolved
				mu.Unlock()
			}(u)
		}
		wg.Wait()

		if end < len(articleURLs) {
			select {
			case <-ctx.Done():
				return results
			case <-time.After(apiBatchPause):
			}
		}
	}
	return results
}

func (r *Resolver) resolveViaAPI(ctx context.Context, articleURL string) (string, error) {
	id := articleID(articleURL)
	if id == "" {
		return "", fmt.Errorf("no article id in %s", articleURL)
	}

	body, err := buildBatchExecuteBody(id)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, batchExecuteURL, strings.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=UTF-8")
	req.Header.Set("Referer", aggregatorRoot)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", err
	}

	return extractPublisherURL(string(raw))
}

// buildBatchExecuteBody assembles the f.req form payload. The inner tuple is
// ["garturlreq", [[["en-US","US",[<id>]], null x30]]], serialized and wrapped
// in the [[["Fbv4je", <json>, null, "generic"]]] envelope.
func buildBatchExecuteBody(id string) (string, error) {
	locale := []any{"en-US", "US", []any{id}}
	padded := make([]any, 31)
	padded[0] = locale

	inner, err := json.Marshal([]any{"garturlreq", []any{padded}})
	if err != nil {
		return "", err
	}

	envelope, err := json.Marshal([]any{[]any{[]any{"Fbv4je", string(inner), nil, "generic"}}})
	if err != nil {
		return "", err
	}

	return "f.req=" + url.QueryEscape(string(envelope)), nil
}

// extractPublisherURL strips the anti-XSSI prefix ( )]}'<length> ) and scans
// the payload for the first URL outside the aggregator domain family.
func extractPublisherURL(body string) (string, error) {
	body = strings.TrimPrefix(body, ")]}'")

	for _, m := range responseURLRe.FindAllString(body, -1) {
		m = strings.TrimRight(m, `",]`)
		if !isAggregatorDomain(m) {
			return m, nil
		}
	}
	return "", fmt.Errorf("no publisher URL in response")
}
