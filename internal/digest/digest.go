// Package digest builds the weekly Risk Delta: a comparison of the most
// recent 7 days of extracted events against the 7 days before.
package digest

import (
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/okello/hornwatch/internal/extract"
	"github.com/okello/hornwatch/internal/store"
)

const (
	// Below this many last-week events, percent changes are noise; the
	// digest presents raw counts only.
	baselineMinimum = 5

	highSeverityFloor = 4
	maxHighSeverity   = 8
	maxHotRegions     = 10
	maxActorSpikes    = 15
)

// Digest is the structured weekly output; it feeds the JSON, HTML and text
// renderers.
type Digest struct {
	GeneratedAt   time.Time `json:"generatedAt"`
	WeekNumber    int       `json:"weekNumber"`
	Label         string    `json:"label"`
	BaselineWeak  bool      `json:"baselineWeak"`
	TotalThisWeek int       `json:"totalThisWeek"`
	TotalLastWeek int       `json:"totalLastWeek"`
	TotalChange   *int      `json:"totalChangePct,omitempty"`

	HighSeverityCount int `json:"highSeverityCount"`

	Topline      []TypeDelta   `json:"topline"`
	HighSeverity []Bundle      `json:"highSeverity"`
	HotRegions   []RegionDelta `json:"hotRegions"`
	ActorSpikes  []ActorDelta  `json:"actorSpikes"`
}

type TypeDelta struct {
	EventType string `json:"eventType"`
	ThisWeek  int    `json:"thisWeek"`
	LastWeek  int    `json:"lastWeek"`
	Change    *int   `json:"changePct,omitempty"`
}

type RegionDelta struct {
	Region      string  `json:"region"`
	Count       int     `json:"count"`
	Weighted    int     `json:"weightedCount"`
	AvgSeverity float64 `json:"avgSeverity"`
	Change      *int    `json:"changePct,omitempty"`
}

type ActorDelta struct {
	Actor    string `json:"actor"`
	ThisWeek int    `json:"thisWeek"`
	LastWeek int    `json:"lastWeek"`
	Delta    int    `json:"delta"`
	Change   *int   `json:"changePct,omitempty"`
}

// Bundle merges high-severity events that describe the same story.
type Bundle struct {
	Country            string   `json:"country"`
	EventSubtype       string   `json:"eventSubtype"`
	Severity           int      `json:"severity"`
	Summary            string   `json:"summary"`
	Rationale          string   `json:"rationale"`
	VerificationStatus string   `json:"verificationStatus"`
	Regions            []string `json:"regions"`
	DisplayRegions     []string `json:"displayRegions"`
	Sources            []string `json:"sources"`
	ArticleURLs        []string `json:"articleUrls"`
	Actors             []string `json:"actors"`
	SourceCount        int      `json:"sourceCount"`
	EventCount         int      `json:"eventCount"`
	PrimaryURL         string   `json:"primaryUrl"`
	PrimaryTitle       string   `json:"primaryTitle"`
}

type Builder struct {
	store *store.Store
}

func NewBuilder(st *store.Store) *Builder {
	return &Builder{store: st}
}

// Pct is the week-over-week percent change: (0,0) is 0, growth from zero is
// +100, disappearance is -100.
func Pct(cur, prev int) int {
	if prev == 0 && cur == 0 {
		return 0
	}
	if prev == 0 {
		return 100
	}
	return int(math.Round(float64(cur-prev) / float64(prev) * 100))
}

// Build assembles the digest for the two weekly windows ending at now,
// rounded to local day boundaries.
func (b *Builder) Build(now time.Time) (*Digest, error) {
	year, month, day := now.Date()
	end := time.Date(year, month, day, 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	thisFrom := end.AddDate(0, 0, -7)
	lastFrom := end.AddDate(0, 0, -14)

	_, week := now.ISOWeek()
	d := &Digest{
		GeneratedAt: now,
		WeekNumber:  week,
		Label: fmt.Sprintf("%s to %s",
			thisFrom.Format("2006-01-02"),
			end.AddDate(0, 0, -1).Format("2006-01-02")),
	}

	thisWeek, err := b.store.EventsBetween(thisFrom, end)
	if err != nil {
		return nil, fmt.Errorf("digest: %w", err)
	}
	lastWeek, err := b.store.EventsBetween(lastFrom, thisFrom)
	if err != nil {
		return nil, fmt.Errorf("digest: %w", err)
	}

	d.TotalThisWeek = len(thisWeek)
	d.TotalLastWeek = len(lastWeek)
	d.BaselineWeak = d.TotalLastWeek < baselineMinimum
	d.TotalChange = b.pctUnlessWeak(d, d.TotalThisWeek, d.TotalLastWeek)

	b.buildTopline(d, thisFrom, end, lastFrom)
	b.buildHighSeverity(d, thisWeek)
	b.buildHotRegions(d, thisFrom, end, lastFrom)
	b.buildActorSpikes(d, thisWeek, lastWeek)

	slog.Info("digest built", "label", d.Label, "events", d.TotalThisWeek,
		"high_severity", d.HighSeverityCount, "baseline_weak", d.BaselineWeak)
	return d, nil
}

// pctUnlessWeak returns nil under the baseline guard so renderers emit no
// percent strings at all.
func (b *Builder) pctUnlessWeak(d *Digest, cur, prev int) *int {
	if d.BaselineWeak {
		return nil
	}
	p := Pct(cur, prev)
	return &p
}

func (b *Builder) buildTopline(d *Digest, thisFrom, end, lastFrom time.Time) {
	cur, err := b.store.CountsByType(thisFrom, end)
	if err != nil {
		slog.Error("topline counts failed", "error", err)
		return
	}
	prev, err := b.store.CountsByType(lastFrom, thisFrom)
	if err != nil {
		slog.Error("topline counts failed", "error", err)
		return
	}

	types := make(map[string]struct{})
	for t := range cur {
		types[t] = struct{}{}
	}
	for t := range prev {
		// Types present only last week get a synthetic (0, -100%) row.
		types[t] = struct{}{}
	}

	for t := range types {
		d.Topline = append(d.Topline, TypeDelta{
			EventType: t,
			ThisWeek:  cur[t],
			LastWeek:  prev[t],
			Change:    b.pctUnlessWeak(d, cur[t], prev[t]),
		})
	}
	sort.Slice(d.Topline, func(i, j int) bool {
		if d.Topline[i].ThisWeek != d.Topline[j].ThisWeek {
			return d.Topline[i].ThisWeek > d.Topline[j].ThisWeek
		}
		return d.Topline[i].EventType < d.Topline[j].EventType
	})
}

func (b *Builder) buildHighSeverity(d *Digest, thisWeek []*store.Event) {
	var high []*store.Event
	for _, e := range thisWeek {
		if e.Severity >= highSeverityFloor {
			high = append(high, e)
		}
	}
	d.HighSeverityCount = len(high)

	var bundles []Bundle
	for _, e := range high {
		merged := false
		for i := range bundles {
			if bundles[i].absorb(e) {
				merged = true
				break
			}
		}
		if !merged {
			bundles = append(bundles, newBundle(e))
		}
	}

	sort.SliceStable(bundles, func(i, j int) bool {
		if bundles[i].Severity != bundles[j].Severity {
			return bundles[i].Severity > bundles[j].Severity
		}
		return bundles[i].SourceCount > bundles[j].SourceCount
	})
	if len(bundles) > maxHighSeverity {
		bundles = bundles[:maxHighSeverity]
	}

	for i := range bundles {
		bundles[i].DisplayRegions = CollapseRegions(bundles[i].Regions)
		bundles[i].Rationale = CleanRationale(bundles[i].Rationale)
	}
	d.HighSeverity = bundles
}

func newBundle(e *store.Event) Bundle {
	return Bundle{
		Country:            e.Country,
		EventSubtype:       strings.ToLower(e.EventSubtype),
		Severity:           e.Severity,
		Summary:            e.Summary,
		Rationale:          e.Rationale,
		VerificationStatus: e.VerificationStatus,
		Regions:            append([]string(nil), e.Regions...),
		Sources:            append([]string(nil), e.Sources...),
		ArticleURLs:        append([]string(nil), e.ArticleURLs...),
		Actors:             append([]string(nil), e.ActorsNormalized...),
		SourceCount:        len(e.Sources),
		EventCount:         1,
		PrimaryURL:         e.PrimaryURL,
		PrimaryTitle:       e.PrimaryTitle,
	}
}

// absorb merges e into the bundle when country, subtype and severity match
// and the region lists overlap. The first member keeps summary and
// rationale; everything else unions.
func (bn *Bundle) absorb(e *store.Event) bool {
	if !strings.EqualFold(bn.Country, e.Country) {
		return false
	}
	if bn.EventSubtype != strings.ToLower(e.EventSubtype) {
		return false
	}
	if bn.Severity != e.Severity {
		return false
	}
	if !RegionsOverlap(bn.Regions, e.Regions) {
		return false
	}

	bn.SourceCount += len(e.Sources)
	bn.EventCount++
	bn.Regions = unionFold(bn.Regions, e.Regions)
	bn.Sources = unionFold(bn.Sources, e.Sources)
	bn.ArticleURLs = unionFold(bn.ArticleURLs, e.ArticleURLs)
	bn.Actors = unionFold(bn.Actors, e.ActorsNormalized)
	return true
}

func unionFold(dst, extra []string) []string {
	seen := make(map[string]struct{}, len(dst))
	for _, s := range dst {
		seen[strings.ToLower(s)] = struct{}{}
	}
	for _, s := range extra {
		key := strings.ToLower(s)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		dst = append(dst, s)
	}
	return dst
}

func (b *Builder) buildHotRegions(d *Digest, thisFrom, end, lastFrom time.Time) {
	cur, err := b.store.RegionSeverity(thisFrom, end)
	if err != nil {
		slog.Error("hot regions failed", "error", err)
		return
	}
	prev, err := b.store.RegionSeverity(lastFrom, thisFrom)
	if err != nil {
		slog.Error("hot regions failed", "error", err)
		return
	}

	for key, st := range cur {
		d.HotRegions = append(d.HotRegions, RegionDelta{
			Region:      displayName(st.Region),
			Count:       st.Count,
			Weighted:    st.SeveritySum,
			AvgSeverity: math.Round(st.AvgSeverity*10) / 10,
			Change:      b.pctUnlessWeak(d, st.SeveritySum, prev[key].SeveritySum),
		})
	}

	sort.Slice(d.HotRegions, func(i, j int) bool {
		if d.HotRegions[i].Weighted != d.HotRegions[j].Weighted {
			return d.HotRegions[i].Weighted > d.HotRegions[j].Weighted
		}
		return d.HotRegions[i].Region < d.HotRegions[j].Region
	})
	if len(d.HotRegions) > maxHotRegions {
		d.HotRegions = d.HotRegions[:maxHotRegions]
	}
}

func (b *Builder) buildActorSpikes(d *Digest, thisWeek, lastWeek []*store.Event) {
	// Actors are re-normalized at digest time: events persisted under an
	// older alias table still aggregate correctly.
	count := func(events []*store.Event) map[string]int {
		counts := make(map[string]int)
		for _, e := range events {
			seen := make(map[string]struct{})
			for _, a := range extract.NormalizeActors(e.ActorsNormalized) {
				if _, dup := seen[a]; dup {
					continue
				}
				seen[a] = struct{}{}
				counts[a]++
			}
		}
		return counts
	}

	cur := count(thisWeek)
	prev := count(lastWeek)

	actors := make(map[string]struct{})
	for a := range cur {
		actors[a] = struct{}{}
	}
	for a := range prev {
		actors[a] = struct{}{}
	}

	var spikes []ActorDelta
	for a := range actors {
		delta := cur[a] - prev[a]
		if delta == 0 {
			continue
		}
		spikes = append(spikes, ActorDelta{
			Actor:    a,
			ThisWeek: cur[a],
			LastWeek: prev[a],
			Delta:    delta,
			Change:   b.pctUnlessWeak(d, cur[a], prev[a]),
		})
	}

	// Positive spikes first, then by magnitude.
	sort.Slice(spikes, func(i, j int) bool {
		pi, pj := spikes[i].Delta > 0, spikes[j].Delta > 0
		if pi != pj {
			return pi
		}
		ai, aj := abs(spikes[i].Delta), abs(spikes[j].Delta)
		if ai != aj {
			return ai > aj
		}
		return spikes[i].Actor < spikes[j].Actor
	})
	if len(spikes) > maxActorSpikes {
		spikes = spikes[:maxActorSpikes]
	}
	d.ActorSpikes = spikes
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

var rationalePrefixes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^The (severity|verification|confidence)\b`),
	regexp.MustCompile(`(?i)^This is rated\b`),
	regexp.MustCompile(`(?i)^Rated as\b`),
	regexp.MustCompile(`(?i)^Severity \d`),
}

var rationaleJustification = regexp.MustCompile(`(?i)which is a (grave|significant|major|serious)`)

// CleanRationale strips legacy verbose justifications; a stripped rationale
// renders as empty.
func CleanRationale(r string) string {
	trimmed := strings.TrimSpace(r)
	for _, re := range rationalePrefixes {
		if re.MatchString(trimmed) {
			return ""
		}
	}
	if rationaleJustification.MatchString(trimmed) {
		return ""
	}
	return trimmed
}
