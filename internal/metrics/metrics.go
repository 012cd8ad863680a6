package metrics

import (
	"sync"
	"time"
)

// Metrics tracks pipeline counters across ingestion cycles.
type Metrics struct {
	mu sync.RWMutex

	// Counters
	FeedsFetched      int64
	FeedsFailed       int64
	ArticlesIngested  int64
	ArticlesRelevant  int64
	URLsResolved      int64
	URLsUnresolved    int64
	ImagesScraped     int64
	ClustersBuilt     int64
	EventsExtracted   int64
	EventsQuarantined int64
	DigestsSent       int64

	// Timings
	LastCycleTime    time.Duration
	AverageCycleTime time.Duration
	TotalCycleTime   time.Duration
	CycleCount       int64

	// Status
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = &Metrics{IsHealthy: true}

func (m *Metrics) add(field *int64, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*field += n
}

func (m *Metrics) AddFeedsFetched(n int)  { m.add(&m.FeedsFetched, int64(n)) }
func (m *Metrics) AddFeedsFailed(n int)   { m.add(&m.FeedsFailed, int64(n)) }
func (m *Metrics) AddArticles(n int)      { m.add(&m.ArticlesIngested, int64(n)) }
func (m *Metrics) AddRelevant(n int)      { m.add(&m.ArticlesRelevant, int64(n)) }
func (m *Metrics) AddResolved(n int)      { m.add(&m.URLsResolved, int64(n)) }
func (m *Metrics) AddUnresolved(n int)    { m.add(&m.URLsUnresolved, int64(n)) }
func (m *Metrics) AddImagesScraped(n int) { m.add(&m.ImagesScraped, int64(n)) }
func (m *Metrics) AddClusters(n int)      { m.add(&m.ClustersBuilt, int64(n)) }

func (m *Metrics) IncrementEventsExtracted()   { m.add(&m.EventsExtracted, 1) }
func (m *Metrics) IncrementEventsQuarantined() { m.add(&m.EventsQuarantined, 1) }
func (m *Metrics) IncrementDigestsSent()       { m.add(&m.DigestsSent, 1) }

func (m *Metrics) RecordCycleTime(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastCycleTime = duration
	m.TotalCycleTime += duration
	m.CycleCount++

	if m.CycleCount > 0 {
		m.AverageCycleTime = m.TotalCycleTime / time.Duration(m.CycleCount)
	}
}

func (m *Metrics) SetLastRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"feeds_fetched":         m.FeedsFetched,
		"feeds_failed":          m.FeedsFailed,
		"articles_ingested":     m.ArticlesIngested,
		"articles_relevant":     m.ArticlesRelevant,
		"urls_resolved":         m.URLsResolved,
		"urls_unresolved":       m.URLsUnresolved,
		"images_scraped":        m.ImagesScraped,
		"clusters_built":        m.ClustersBuilt,
		"events_extracted":      m.EventsExtracted,
		"events_quarantined":    m.EventsQuarantined,
		"digests_sent":          m.DigestsSent,
		"last_cycle_time_ms":    m.LastCycleTime.Milliseconds(),
		"average_cycle_time_ms": m.AverageCycleTime.Milliseconds(),
		"last_run_time":         m.LastRunTime.Format(time.RFC3339),
		"last_error_time":       m.LastErrorTime.Format(time.RFC3339),
		"last_error":            m.LastError,
		"is_healthy":            m.IsHealthy,
	}
}
