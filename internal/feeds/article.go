package feeds

import (
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mmcdole/gofeed"

	"github.com/okello/hornwatch/internal/images"
)

const maxDescriptionLen = 500

// Article is a normalized syndication item. Articles are rebuilt on every
// ingestion cycle; only the extracted events persist.
type Article struct {
	ID                string
	Title             string
	Description       string
	URL               string
	Image             string
	PublishedAt       time.Time
	Source            string
	SourceCategory    string
	SourceReliability string

	// RawContent keeps the untruncated item payload for the URL resolver's
	// embedded-anchor scan. Not serialized anywhere.
	RawContent string
}

var htmlTagRe = regexp.MustCompile(`<[^>]*>`)

// StripHTML removes tags and collapses whitespace.
func StripHTML(s string) string {
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	return strings.Join(strings.Fields(s), " ")
}

// Normalize converts a parsed feed item into an Article.
func Normalize(item *gofeed.Item, src Source) Article {
	desc := item.Description
	if desc == "" {
		desc = item.Content
	}
	desc = StripHTML(desc)
	if len(desc) > maxDescriptionLen {
		// Cut on a rune boundary; a byte slice could split a multibyte
		// character and leave invalid UTF-8.
		cut := maxDescriptionLen
		for cut > 0 && !utf8.RuneStart(desc[cut]) {
			cut--
		}
		desc = desc[:cut]
	}

	published := time.Now()
	if item.PublishedParsed != nil {
		published = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		published = *item.UpdatedParsed
	}

	id := item.GUID
	if id == "" {
		id = item.Link
	}
	if id == "" {
		id = src.Name + "||" + item.Title
	}

	raw := item.Content
	if item.Description != "" {
		raw = raw + "\n" + item.Description
	}
	if enc, ok := item.Custom["content:encoded"]; ok {
		raw = raw + "\n" + enc
	}

	return Article{
		ID:                id,
		Title:             strings.TrimSpace(item.Title),
		Description:       desc,
		URL:               item.Link,
		Image:             images.FromItem(item),
		PublishedAt:       published,
		Source:            src.Name,
		SourceCategory:    src.Category,
		SourceReliability: src.Reliability,
		RawContent:        raw,
	}
}

// Window deduplicates by ID, sorts newest first and keeps articles published
// within maxAge of now.
func Window(articles []Article, maxAge time.Duration) []Article {
	seen := make(map[string]struct{}, len(articles))
	deduped := articles[:0:0]
	for _, a := range articles {
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		deduped = append(deduped, a)
	}

	sort.Slice(deduped, func(i, j int) bool {
		return deduped[i].PublishedAt.After(deduped[j].PublishedAt)
	})

	cutoff := time.Now().Add(-maxAge)
	out := deduped[:0:0]
	for _, a := range deduped {
		if a.PublishedAt.Before(cutoff) {
			break
		}
		out = append(out, a)
	}
	return out
}
