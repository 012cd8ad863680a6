package digest

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okello/hornwatch/internal/store"
)

func TestPct(t *testing.T) {
	assert.Equal(t, 0, Pct(0, 0))
	assert.Equal(t, 100, Pct(3, 0))
	assert.Equal(t, -100, Pct(0, 7))
	assert.Equal(t, 50, Pct(15, 10))
	assert.Equal(t, -25, Pct(6, 8))
}

func TestFormatPct(t *testing.T) {
	up, down := 40, -25
	assert.Equal(t, "+40%", FormatPct(&up))
	assert.Equal(t, "-25%", FormatPct(&down))
	assert.Equal(t, "", FormatPct(nil))
}

// buildTestStore seeds a store with events in the current and previous
// weekly windows relative to now.
func buildTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "digest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedEvent(t *testing.T, s *store.Store, hash string, published time.Time, mut func(*store.Event)) {
	t.Helper()
	e := &store.Event{
		ClusterHash:        hash,
		Summary:            "summary for " + hash,
		Country:            "Sudan",
		Regions:            []string{"Khartoum"},
		EventType:          "security",
		EventSubtype:       "shelling",
		Severity:           2,
		Scope:              "state",
		VerificationStatus: "reported",
		Confidence:         0.8,
		ActorsNormalized:   []string{"Rapid Support Forces"},
		Sources:            []string{"Sudan Tribune"},
		ArticleURLs:        []string{"https://a/" + hash},
		PrimaryURL:         "https://a/" + hash,
		PrimaryTitle:       "title " + hash,
		PublishedAt:        published,
		ExtractedAt:        published,
	}
	if mut != nil {
		mut(e)
	}
	require.NoError(t, s.InsertEvent(e))
}

var testNow = time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC) // Wednesday

func thisWeekDay(d int) time.Time { return time.Date(2026, 8, 20+d, 10, 0, 0, 0, time.UTC) }
func lastWeekDay(d int) time.Time { return time.Date(2026, 8, 13+d, 10, 0, 0, 0, time.UTC) }

func TestBuildBundlesOverlappingHighSeverity(t *testing.T) {
	s := buildTestStore(t)

	// Same story reported with different admin-region granularity.
	seedEvent(t, s, "hs-1", thisWeekDay(1), func(e *store.Event) {
		e.Severity = 4
		e.Regions = []string{"El Fasher"}
		e.Sources = []string{"Sudan Tribune", "Radio Dabanga"}
	})
	seedEvent(t, s, "hs-2", thisWeekDay(2), func(e *store.Event) {
		e.Severity = 4
		e.Regions = []string{"North Darfur"}
		e.Sources = []string{"Eye Radio"}
	})
	// Same severity elsewhere must stay separate.
	seedEvent(t, s, "hs-3", thisWeekDay(3), func(e *store.Event) {
		e.Severity = 4
		e.Country = "South Sudan"
		e.Regions = []string{"Jonglei"}
	})

	// Enough prior-week history to keep the baseline strong.
	for i := 0; i < 5; i++ {
		seedEvent(t, s, fmt.Sprintf("prev-%d", i), lastWeekDay(i), func(e *store.Event) {
			e.EventType = "political"
			e.EventSubtype = "statement"
		})
	}

	d, err := NewBuilder(s).Build(testNow)
	require.NoError(t, err)

	assert.False(t, d.BaselineWeak)
	assert.Equal(t, 3, d.HighSeverityCount)
	require.Len(t, d.HighSeverity, 2, "overlapping regions should merge")

	var merged *Bundle
	for i := range d.HighSeverity {
		if d.HighSeverity[i].EventCount == 2 {
			merged = &d.HighSeverity[i]
		}
	}
	require.NotNil(t, merged)
	assert.Equal(t, 3, merged.SourceCount)
	assert.ElementsMatch(t, []string{"Sudan Tribune", "Radio Dabanga", "Eye Radio"}, merged.Sources)
	assert.Equal(t, []string{"North Darfur (El Fasher)"}, merged.DisplayRegions)
}

func TestBuildToplineSyntheticDisappearance(t *testing.T) {
	s := buildTestStore(t)

	seedEvent(t, s, "sec-1", thisWeekDay(1), nil)
	for i := 0; i < 5; i++ {
		seedEvent(t, s, fmt.Sprintf("pol-%d", i), lastWeekDay(i), func(e *store.Event) {
			e.EventType = "political"
		})
	}

	d, err := NewBuilder(s).Build(testNow)
	require.NoError(t, err)
	require.False(t, d.BaselineWeak)

	byType := make(map[string]TypeDelta)
	for _, td := range d.Topline {
		byType[td.EventType] = td
	}

	// political only existed last week: synthetic (0, -100%) row.
	pol, ok := byType["political"]
	require.True(t, ok)
	assert.Equal(t, 0, pol.ThisWeek)
	assert.Equal(t, 5, pol.LastWeek)
	require.NotNil(t, pol.Change)
	assert.Equal(t, -100, *pol.Change)

	sec := byType["security"]
	require.NotNil(t, sec.Change)
	assert.Equal(t, 100, *sec.Change, "growth from zero reads as +100%")
}

func TestBuildWeakBaselineSuppressesPercentages(t *testing.T) {
	s := buildTestStore(t)

	seedEvent(t, s, "cur-1", thisWeekDay(1), nil)
	seedEvent(t, s, "cur-2", thisWeekDay(2), nil)
	// Only two events the week before: below the baseline minimum.
	seedEvent(t, s, "prev-1", lastWeekDay(1), nil)
	seedEvent(t, s, "prev-2", lastWeekDay(2), nil)

	d, err := NewBuilder(s).Build(testNow)
	require.NoError(t, err)

	assert.True(t, d.BaselineWeak)
	assert.Nil(t, d.TotalChange)
	for _, td := range d.Topline {
		assert.Nil(t, td.Change)
	}
	for _, hr := range d.HotRegions {
		assert.Nil(t, hr.Change)
	}
}

func TestBuildActorSpikes(t *testing.T) {
	s := buildTestStore(t)

	for i := 0; i < 3; i++ {
		seedEvent(t, s, fmt.Sprintf("rsf-%d", i), thisWeekDay(i), func(e *store.Event) {
			// Stored under a raw alias; the digest re-normalizes.
			e.ActorsNormalized = []string{"RSF"}
		})
	}
	for i := 0; i < 5; i++ {
		seedEvent(t, s, fmt.Sprintf("prev-%d", i), lastWeekDay(i), func(e *store.Event) {
			e.ActorsNormalized = []string{"UNMISS"}
		})
	}

	d, err := NewBuilder(s).Build(testNow)
	require.NoError(t, err)
	require.NotEmpty(t, d.ActorSpikes)

	// Positive spikes sort ahead of negative ones.
	assert.Equal(t, "Rapid Support Forces", d.ActorSpikes[0].Actor)
	assert.Equal(t, 3, d.ActorSpikes[0].Delta)

	last := d.ActorSpikes[len(d.ActorSpikes)-1]
	assert.Equal(t, "UNMISS", last.Actor)
	assert.Equal(t, -5, last.Delta)
}

func TestBuildWindowBoundaries(t *testing.T) {
	s := buildTestStore(t)

	// Published after the end boundary (start of tomorrow): excluded.
	seedEvent(t, s, "future", time.Date(2026, 8, 27, 1, 0, 0, 0, time.UTC), nil)
	seedEvent(t, s, "today", time.Date(2026, 8, 26, 23, 0, 0, 0, time.UTC), nil)

	d, err := NewBuilder(s).Build(testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, d.TotalThisWeek)
}

func TestSubject(t *testing.T) {
	d := &Digest{WeekNumber: 35, TotalThisWeek: 12, HighSeverityCount: 3}
	assert.Equal(t, "Horn Risk Delta — Week 35 | 12 events, 3 high-severity", Subject(d))

	d.HighSeverityCount = 0
	assert.Equal(t, "Horn Risk Delta — Week 35 | 12 events", Subject(d))
}

func TestRenderersIncludeCoreSections(t *testing.T) {
	up := 40
	d := &Digest{
		GeneratedAt:   testNow,
		WeekNumber:    35,
		Label:         "2026-08-20 to 2026-08-26",
		TotalThisWeek: 2,
		TotalLastWeek: 5,
		TotalChange:   &up,
		Topline:       []TypeDelta{{EventType: "security", ThisWeek: 2, LastWeek: 1, Change: &up}},
		HighSeverity: []Bundle{{
			Country: "Sudan", EventSubtype: "shelling", Severity: 4,
			Summary:            "RSF shelling killed dozens in El Fasher.",
			VerificationStatus: "reported",
			DisplayRegions:     []string{"North Darfur (El Fasher)"},
			Sources:            []string{"Sudan Tribune"},
			SourceCount:        1,
			PrimaryURL:         "https://example.org/story",
		}},
	}

	html, err := RenderHTML(d, "https://hw.example.org/unsubscribe?email=a@b&token=t")
	require.NoError(t, err)
	assert.Contains(t, html, "North Darfur (El Fasher)")
	assert.Contains(t, html, "+40%")
	assert.Contains(t, html, "Unsubscribe")

	text := RenderText(d)
	assert.Contains(t, text, "HORN RISK DELTA — Week 35")
	assert.Contains(t, text, "North Darfur (El Fasher)")

	out, err := RenderJSON(d)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"weekNumber": 35`)
}
