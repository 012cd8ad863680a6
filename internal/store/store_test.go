package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleEvent(hash string, published time.Time) *Event {
	return &Event{
		ClusterHash:        hash,
		Summary:            "RSF shelling killed dozens in El Fasher.",
		Country:            "Sudan",
		Regions:            []string{"North Darfur"},
		EventType:          "security",
		EventSubtype:       "shelling",
		Severity:           4,
		Scope:              "state",
		SourceTier:         "tier2",
		VerificationStatus: "reported",
		Confidence:         0.8,
		Actors:             []string{"RSF"},
		ActorsNormalized:   []string{"Rapid Support Forces"},
		ArticleCount:       2,
		Sources:            []string{"Sudan Tribune", "Radio Dabanga"},
		ArticleURLs:        []string{"https://a/1", "https://b/2"},
		PrimaryURL:         "https://a/1",
		PrimaryTitle:       "RSF shelling kills dozens",
		PublishedAt:        published,
		ExtractedAt:        time.Now(),
		ModelVersion:       "gpt-4o-mini",
		PromptVersion:      "v3",
	}
}

func TestInsertEventAndRoundTrip(t *testing.T) {
	s := openTestStore(t)
	published := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.InsertEvent(sampleEvent("hash-1", published)))

	got, err := s.GetEventByClusterHash("hash-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Sudan", got.Country)
	assert.Equal(t, []string{"North Darfur"}, got.Regions)
	assert.Equal(t, []string{"Rapid Support Forces"}, got.ActorsNormalized)
	assert.Equal(t, 4, got.Severity)
	assert.True(t, published.Equal(got.PublishedAt))
}

func TestInsertEventDuplicateHashIsNoop(t *testing.T) {
	s := openTestStore(t)
	published := time.Now().UTC().Truncate(time.Second)

	first := sampleEvent("dup", published)
	require.NoError(t, s.InsertEvent(first))

	second := sampleEvent("dup", published)
	second.Summary = "a different summary"
	require.NoError(t, s.InsertEvent(second))

	got, err := s.GetEventByClusterHash("dup")
	require.NoError(t, err)
	assert.Equal(t, first.Summary, got.Summary, "first insert wins")
}

func TestExistsGatesBothTables(t *testing.T) {
	s := openTestStore(t)

	exists, err := s.Exists("nope")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.InsertEvent(sampleEvent("ev", time.Now())))
	exists, err = s.Exists("ev")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, s.InsertQuarantine(&QuarantineRecord{
		ClusterHash:   "qr",
		RawOutput:     "not json",
		ErrorReasons:  []string{"invalid JSON"},
		QuarantinedAt: time.Now(),
	}))
	exists, err = s.Exists("qr")
	require.NoError(t, err)
	assert.True(t, exists, "quarantined clusters must not be re-extracted")
}

func TestQuarantineAllowsRepeatedHashes(t *testing.T) {
	s := openTestStore(t)

	for i := 0; i < 2; i++ {
		require.NoError(t, s.InsertQuarantine(&QuarantineRecord{
			ClusterHash: "again", RawOutput: "x", QuarantinedAt: time.Now(),
		}))
	}
	records, err := s.RecentQuarantine(10)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestEventsBetweenWindowAndOrder(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)

	lowSev := sampleEvent("low", base.Add(24*time.Hour))
	lowSev.Severity = 2
	require.NoError(t, s.InsertEvent(lowSev))
	require.NoError(t, s.InsertEvent(sampleEvent("high", base.Add(48*time.Hour))))
	require.NoError(t, s.InsertEvent(sampleEvent("outside", base.Add(30*24*time.Hour))))

	events, err := s.EventsBetween(base, base.Add(7*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "high", events[0].ClusterHash, "severity desc")
	assert.Equal(t, "low", events[1].ClusterHash)
}

func TestReopenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.InsertEvent(sampleEvent("keep", time.Now())))
	require.NoError(t, s.Close())

	// Schema init and migrations run again on reopen without clobbering data.
	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetEventByClusterHash("keep")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestUnsubscribe(t *testing.T) {
	s := openTestStore(t)

	opted, err := s.IsUnsubscribed("analyst@example.org")
	require.NoError(t, err)
	assert.False(t, opted)

	require.NoError(t, s.Unsubscribe("analyst@example.org", "tok"))
	require.NoError(t, s.Unsubscribe("analyst@example.org", "tok2")) // repeat is fine

	opted, err = s.IsUnsubscribed("analyst@example.org")
	require.NoError(t, err)
	assert.True(t, opted)
}

func TestAggregates(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.InsertEvent(sampleEvent("a", base.Add(time.Hour))))
	humanitarian := sampleEvent("b", base.Add(2*time.Hour))
	humanitarian.EventType = "humanitarian"
	humanitarian.Severity = 3
	humanitarian.Regions = []string{"North Darfur", "Khartoum"}
	require.NoError(t, s.InsertEvent(humanitarian))

	from, to := base, base.Add(24*time.Hour)

	byType, err := s.CountsByType(from, to)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"security": 1, "humanitarian": 1}, byType)

	regions, err := s.RegionSeverity(from, to)
	require.NoError(t, err)
	require.Contains(t, regions, "north darfur")
	assert.Equal(t, 2, regions["north darfur"].Count)
	assert.Equal(t, 7, regions["north darfur"].SeveritySum)
	assert.InDelta(t, 3.5, regions["north darfur"].AvgSeverity, 1e-9)
	assert.Equal(t, 1, regions["khartoum"].Count)

	actors, err := s.ActorCounts(from, to)
	require.NoError(t, err)
	assert.Equal(t, 2, actors["Rapid Support Forces"])
}
