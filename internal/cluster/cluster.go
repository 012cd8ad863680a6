// Package cluster groups articles covering the same story by lexical
// similarity and derives a stable dedup hash per cluster.
package cluster

import (
	"crypto/md5"
	"encoding/hex"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/okello/hornwatch/internal/feeds"
)

// SimilarityThreshold is the cosine cutoff for two articles to share a story.
const SimilarityThreshold = 0.35

// Common English particles plus domain-noise tokens that appear in nearly
// every title and would otherwise dominate the similarity signal.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "from": {}, "into": {},
	"that": {}, "this": {}, "are": {}, "was": {}, "were": {}, "been": {},
	"has": {}, "have": {}, "had": {}, "will": {}, "would": {}, "could": {},
	"after": {}, "over": {}, "amid": {}, "about": {}, "more": {}, "than": {},
	"its": {}, "his": {}, "her": {}, "their": {}, "who": {}, "what": {},
	"south": {}, "sudan": {}, "sudanese": {}, "said": {}, "says": {}, "new": {},
}

// Cluster is a set of articles judged to cover the same story.
type Cluster struct {
	Articles    []feeds.Article
	Primary     feeds.Article
	Sources     []string
	SourceCount int
	LatestDate  time.Time
	Category    string
	Image       string
	Hash        string
}

// Tokens builds the term-frequency bag for similarity comparison.
func Tokens(text string) map[string]int {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}

	freq := make(map[string]int)
	for _, tok := range strings.Fields(b.String()) {
		if len(tok) <= 2 {
			continue
		}
		if _, skip := stopwords[tok]; skip {
			continue
		}
		freq[tok]++
	}
	return freq
}

// Cosine computes cosine similarity over term-frequency vectors.
func Cosine(a, b map[string]int) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for tok, fa := range a {
		if fb, ok := b[tok]; ok {
			dot += float64(fa) * float64(fb)
		}
		normA += float64(fa) * float64(fa)
	}
	for _, fb := range b {
		normB += float64(fb) * float64(fb)
	}
	if dot == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// HashTitles derives the cluster dedup key: MD5 of the pipe-joined, sorted,
// lowercased, trimmed titles. Stable under article reordering.
func HashTitles(titles []string) string {
	normalized := make([]string, 0, len(titles))
	for _, t := range titles {
		normalized = append(normalized, strings.ToLower(strings.TrimSpace(t)))
	}
	sort.Strings(normalized)

	sum := md5.Sum([]byte(strings.Join(normalized, "|")))
	return hex.EncodeToString(sum[:])
}

// Build groups articles greedily: each unassigned article opens a cluster
// and absorbs later unassigned articles within the similarity threshold.
// Clusters come back sorted by latest publication, newest first.
func Build(articles []feeds.Article) []Cluster {
	bags := make([]map[string]int, len(articles))
	for i, a := range articles {
		bags[i] = Tokens(a.Title + " " + a.Description)
	}

	assigned := make([]bool, len(articles))
	var clusters []Cluster

	for i := range articles {
		if assigned[i] {
			continue
		}
		assigned[i] = true
		members := []feeds.Article{articles[i]}

		for j := i + 1; j < len(articles); j++ {
			if assigned[j] {
				continue
			}
			if Cosine(bags[i], bags[j]) >= SimilarityThreshold {
				assigned[j] = true
				members = append(members, articles[j])
			}
		}

		clusters = append(clusters, fromMembers(members))
	}

	sort.Slice(clusters, func(i, j int) bool {
		return clusters[i].LatestDate.After(clusters[j].LatestDate)
	})
	return clusters
}

// fromMembers finalizes a cluster: deterministic member order (reliability
// tier, then recency), primary selection, distinct sources, hash.
func fromMembers(members []feeds.Article) Cluster {
	sort.SliceStable(members, func(i, j int) bool {
		ri := feeds.ReliabilityRank(members[i].SourceReliability)
		rj := feeds.ReliabilityRank(members[j].SourceReliability)
		if ri != rj {
			return ri > rj
		}
		return members[i].PublishedAt.After(members[j].PublishedAt)
	})

	c := Cluster{
		Articles: members,
		Primary:  members[0],
		Category: members[0].SourceCategory,
	}

	seen := make(map[string]struct{})
	titles := make([]string, 0, len(members))
	for _, a := range members {
		titles = append(titles, a.Title)
		if _, dup := seen[a.Source]; !dup {
			seen[a.Source] = struct{}{}
			c.Sources = append(c.Sources, a.Source)
		}
		if a.PublishedAt.After(c.LatestDate) {
			c.LatestDate = a.PublishedAt
		}
		if c.Image == "" && a.Image != "" {
			c.Image = a.Image
		}
	}
	c.SourceCount = len(c.Sources)
	c.Hash = HashTitles(titles)
	return c
}
