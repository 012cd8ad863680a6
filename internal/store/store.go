// Package store is the embedded event store: extracted events, quarantined
// extractions and mailing-list unsubscribes, in a single SQLite file with
// WAL journaling. Events are append-only; the UNIQUE cluster hash makes
// re-insertion a no-op.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	cluster_hash TEXT UNIQUE NOT NULL,
	summary TEXT,
	country TEXT,
	regions TEXT,
	event_type TEXT,
	event_subtype TEXT,
	severity INTEGER,
	scope TEXT,
	source_tier TEXT,
	verification_status TEXT,
	confidence REAL,
	rationale TEXT,
	actors TEXT,
	actors_normalized TEXT,
	article_count INTEGER,
	sources TEXT,
	article_urls TEXT,
	primary_url TEXT,
	primary_title TEXT,
	published_at TEXT,
	extracted_at TEXT,
	model_version TEXT,
	prompt_version TEXT
);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type);
CREATE INDEX IF NOT EXISTS idx_events_country ON events(country);
CREATE INDEX IF NOT EXISTS idx_events_severity ON events(severity);
CREATE INDEX IF NOT EXISTS idx_events_published ON events(published_at);

CREATE TABLE IF NOT EXISTS quarantine (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	cluster_hash TEXT NOT NULL,
	raw_output TEXT,
	error_reasons TEXT,
	primary_title TEXT,
	primary_url TEXT,
	sources TEXT,
	article_urls TEXT,
	model_version TEXT,
	prompt_version TEXT,
	quarantined_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_quarantine_hash ON quarantine(cluster_hash);

CREATE TABLE IF NOT EXISTS unsubscribes (
	email TEXT PRIMARY KEY,
	token TEXT NOT NULL,
	unsubscribed_at TEXT
);
`

// Event is the persisted, schema-validated description of a cluster.
type Event struct {
	ID                 int64
	ClusterHash        string
	Summary            string
	Country            string
	Regions            []string
	EventType          string
	EventSubtype       string
	Severity           int
	Scope              string
	SourceTier         string
	VerificationStatus string
	Confidence         float64
	Rationale          string
	Actors             []string
	ActorsNormalized   []string
	ArticleCount       int
	Sources            []string
	ArticleURLs        []string
	PrimaryURL         string
	PrimaryTitle       string
	PublishedAt        time.Time
	ExtractedAt        time.Time
	ModelVersion       string
	PromptVersion      string
}

// QuarantineRecord sidelines an extraction that failed validation. The
// cluster hash is intentionally not unique; reruns append.
type QuarantineRecord struct {
	ID            int64
	ClusterHash   string
	RawOutput     string
	ErrorReasons  []string
	PrimaryTitle  string
	PrimaryURL    string
	Sources       []string
	ArticleURLs   []string
	ModelVersion  string
	PromptVersion string
	QuarantinedAt time.Time
}

type Store struct {
	db *sql.DB
}

// Open opens (or creates) the store. An unreadable or corrupt database here
// is the one fatal condition in the pipeline; the error surfaces to main.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return s.migrate()
}

// migrate applies additive migrations only: new columns arrive with default
// NULL and old rows stay valid. Schema version is implicit in column
// presence.
func (s *Store) migrate() error {
	migrations := []struct {
		table, column, ddl string
	}{
		{"events", "source_tier", "ALTER TABLE events ADD COLUMN source_tier TEXT"},
		{"events", "prompt_version", "ALTER TABLE events ADD COLUMN prompt_version TEXT"},
		{"quarantine", "prompt_version", "ALTER TABLE quarantine ADD COLUMN prompt_version TEXT"},
	}

	for _, m := range migrations {
		has, err := s.hasColumn(m.table, m.column)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := s.db.Exec(m.ddl); err != nil {
			return fmt.Errorf("migrate %s.%s: %w", m.table, m.column, err)
		}
		slog.Info("store migration applied", "table", m.table, "column", m.column)
	}
	return nil
}

func (s *Store) hasColumn(table, column string) (bool, error) {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Exists reports whether a cluster hash is present in either the events or
// the quarantine table. Both gate re-extraction.
func (s *Store) Exists(hash string) (bool, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT (SELECT COUNT(*) FROM events WHERE cluster_hash = ?)
		     + (SELECT COUNT(*) FROM quarantine WHERE cluster_hash = ?)`,
		hash, hash).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("exists check: %w", err)
	}
	return n > 0, nil
}

func marshalList(list []string) string {
	if list == nil {
		list = []string{}
	}
	b, _ := json.Marshal(list)
	return string(b)
}

func unmarshalList(raw sql.NullString) []string {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw.String), &list); err != nil {
		return nil
	}
	return list
}

// InsertEvent persists an event. A UNIQUE violation on cluster_hash means
// the event already exists and is treated as success.
func (s *Store) InsertEvent(e *Event) error {
	_, err := s.db.Exec(`
		INSERT INTO events (
			cluster_hash, summary, country, regions, event_type, event_subtype,
			severity, scope, source_tier, verification_status, confidence,
			rationale, actors, actors_normalized, article_count, sources,
			article_urls, primary_url, primary_title, published_at,
			extracted_at, model_version, prompt_version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ClusterHash, e.Summary, e.Country, marshalList(e.Regions),
		e.EventType, e.EventSubtype, e.Severity, e.Scope, e.SourceTier,
		e.VerificationStatus, e.Confidence, e.Rationale,
		marshalList(e.Actors), marshalList(e.ActorsNormalized),
		e.ArticleCount, marshalList(e.Sources), marshalList(e.ArticleURLs),
		e.PrimaryURL, e.PrimaryTitle,
		e.PublishedAt.UTC().Format(time.RFC3339),
		e.ExtractedAt.UTC().Format(time.RFC3339),
		e.ModelVersion, e.PromptVersion)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *Store) InsertQuarantine(q *QuarantineRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO quarantine (
			cluster_hash, raw_output, error_reasons, primary_title,
			primary_url, sources, article_urls, model_version,
			prompt_version, quarantined_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ClusterHash, q.RawOutput, marshalList(q.ErrorReasons),
		q.PrimaryTitle, q.PrimaryURL, marshalList(q.Sources),
		marshalList(q.ArticleURLs), q.ModelVersion, q.PromptVersion,
		q.QuarantinedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert quarantine: %w", err)
	}
	return nil
}

const eventColumns = `id, cluster_hash, summary, country, regions, event_type,
	event_subtype, severity, scope, source_tier, verification_status,
	confidence, rationale, actors, actors_normalized, article_count,
	sources, article_urls, primary_url, primary_title, published_at,
	extracted_at, model_version, prompt_version`

func scanEvent(row interface{ Scan(...any) error }) (*Event, error) {
	var e Event
	var regions, actors, actorsNorm, sources, urls sql.NullString
	var summary, country, etype, esub, scope, tier, verif, rationale sql.NullString
	var purl, ptitle, published, extracted, model, prompt sql.NullString
	var confidence sql.NullFloat64
	var severity, count sql.NullInt64

	err := row.Scan(&e.ID, &e.ClusterHash, &summary, &country, &regions,
		&etype, &esub, &severity, &scope, &tier, &verif, &confidence,
		&rationale, &actors, &actorsNorm, &count, &sources, &urls,
		&purl, &ptitle, &published, &extracted, &model, &prompt)
	if err != nil {
		return nil, err
	}

	e.Summary = summary.String
	e.Country = country.String
	e.Regions = unmarshalList(regions)
	e.EventType = etype.String
	e.EventSubtype = esub.String
	e.Severity = int(severity.Int64)
	e.Scope = scope.String
	e.SourceTier = tier.String
	e.VerificationStatus = verif.String
	e.Confidence = confidence.Float64
	e.Rationale = rationale.String
	e.Actors = unmarshalList(actors)
	e.ActorsNormalized = unmarshalList(actorsNorm)
	e.ArticleCount = int(count.Int64)
	e.Sources = unmarshalList(sources)
	e.ArticleURLs = unmarshalList(urls)
	e.PrimaryURL = purl.String
	e.PrimaryTitle = ptitle.String
	e.PublishedAt, _ = time.Parse(time.RFC3339, published.String)
	e.ExtractedAt, _ = time.Parse(time.RFC3339, extracted.String)
	e.ModelVersion = model.String
	e.PromptVersion = prompt.String
	return &e, nil
}

// GetEventByClusterHash fetches one event, nil when absent.
func (s *Store) GetEventByClusterHash(hash string) (*Event, error) {
	row := s.db.QueryRow(
		"SELECT "+eventColumns+" FROM events WHERE cluster_hash = ?", hash)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// EventsBetween returns events published within [from, to), severity first.
func (s *Store) EventsBetween(from, to time.Time) ([]*Event, error) {
	rows, err := s.db.Query(
		"SELECT "+eventColumns+` FROM events
		 WHERE published_at >= ? AND published_at < ?
		 ORDER BY severity DESC, published_at DESC`,
		from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("events between: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
