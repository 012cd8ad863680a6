package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// CountsByType returns event counts per event type in [from, to).
func (s *Store) CountsByType(from, to time.Time) (map[string]int, error) {
	return s.groupCount("event_type", from, to)
}

// CountsBySeverity returns event counts per severity in [from, to).
func (s *Store) CountsBySeverity(from, to time.Time) (map[string]int, error) {
	return s.groupCount("severity", from, to)
}

// CountsByCountry returns event counts per country in [from, to).
func (s *Store) CountsByCountry(from, to time.Time) (map[string]int, error) {
	return s.groupCount("country", from, to)
}

func (s *Store) groupCount(column string, from, to time.Time) (map[string]int, error) {
	rows, err := s.db.Query(fmt.Sprintf(`
		SELECT CAST(%s AS TEXT), COUNT(*) FROM events
		WHERE published_at >= ? AND published_at < ?
		GROUP BY %s`, column, column),
		from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("counts by %s: %w", column, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key sql.NullString
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		counts[key.String] = n
	}
	return counts, rows.Err()
}

// RegionStat is the severity-weighted aggregate for one region.
type RegionStat struct {
	Region      string
	Count       int
	SeveritySum int
	AvgSeverity float64
}

// RegionSeverity aggregates per-region counts and severity weight for a
// window. Regions live in a JSON list column, so the explode happens here
// rather than in SQL.
func (s *Store) RegionSeverity(from, to time.Time) (map[string]RegionStat, error) {
	events, err := s.EventsBetween(from, to)
	if err != nil {
		return nil, err
	}

	stats := make(map[string]RegionStat)
	for _, e := range events {
		for _, r := range e.Regions {
			key := strings.ToLower(strings.TrimSpace(r))
			if key == "" {
				continue
			}
			st := stats[key]
			if st.Region == "" {
				st.Region = strings.TrimSpace(r)
			}
			st.Count++
			st.SeveritySum += e.Severity
			stats[key] = st
		}
	}
	for key, st := range stats {
		st.AvgSeverity = float64(st.SeveritySum) / float64(st.Count)
		stats[key] = st
	}
	return stats, nil
}

// ActorCounts returns mention counts per normalized actor for a window.
func (s *Store) ActorCounts(from, to time.Time) (map[string]int, error) {
	events, err := s.EventsBetween(from, to)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, e := range events {
		for _, a := range e.ActorsNormalized {
			a = strings.TrimSpace(a)
			if a != "" {
				counts[a]++
			}
		}
	}
	return counts, nil
}

// RecentQuarantine returns the newest quarantine records.
func (s *Store) RecentQuarantine(limit int) ([]*QuarantineRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(`
		SELECT id, cluster_hash, raw_output, error_reasons, primary_title,
		       primary_url, sources, article_urls, model_version,
		       prompt_version, quarantined_at
		FROM quarantine ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent quarantine: %w", err)
	}
	defer rows.Close()

	var records []*QuarantineRecord
	for rows.Next() {
		var q QuarantineRecord
		var raw, reasons, ptitle, purl, sources, urls sql.NullString
		var model, prompt, at sql.NullString
		if err := rows.Scan(&q.ID, &q.ClusterHash, &raw, &reasons, &ptitle,
			&purl, &sources, &urls, &model, &prompt, &at); err != nil {
			return nil, err
		}
		q.RawOutput = raw.String
		q.ErrorReasons = unmarshalList(reasons)
		q.PrimaryTitle = ptitle.String
		q.PrimaryURL = purl.String
		q.Sources = unmarshalList(sources)
		q.ArticleURLs = unmarshalList(urls)
		q.ModelVersion = model.String
		q.PromptVersion = prompt.String
		q.QuarantinedAt, _ = time.Parse(time.RFC3339, at.String)
		records = append(records, &q)
	}
	return records, rows.Err()
}

// DataQuality is the admin snapshot of extraction health.
type DataQuality struct {
	EventCount             int
	QuarantineCount        int
	AcceptRate             float64
	AvgConfidenceThisWeek  float64
	AvgConfidenceLastWeek  float64
	MissingRegionsBySource map[string]int
	RecentQuarantine       []*QuarantineRecord
}

// Quality computes the data-quality snapshot: accept rate, confidence
// trend over two weekly windows, missing-region counts by primary source,
// and the latest quarantine rows.
func (s *Store) Quality(now time.Time) (*DataQuality, error) {
	dq := &DataQuality{MissingRegionsBySource: make(map[string]int)}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM events").Scan(&dq.EventCount); err != nil {
		return nil, fmt.Errorf("quality: %w", err)
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM quarantine").Scan(&dq.QuarantineCount); err != nil {
		return nil, fmt.Errorf("quality: %w", err)
	}
	if total := dq.EventCount + dq.QuarantineCount; total > 0 {
		dq.AcceptRate = float64(dq.EventCount) / float64(total)
	}

	weekAgo := now.Add(-7 * 24 * time.Hour)
	twoWeeksAgo := now.Add(-14 * 24 * time.Hour)
	dq.AvgConfidenceThisWeek = s.avgConfidence(weekAgo, now)
	dq.AvgConfidenceLastWeek = s.avgConfidence(twoWeeksAgo, weekAgo)

	events, err := s.EventsBetween(twoWeeksAgo, now)
	if err != nil {
		return nil, err
	}
	for _, e := range events {
		if len(e.Regions) == 0 && len(e.Sources) > 0 {
			dq.MissingRegionsBySource[e.Sources[0]]++
		}
	}

	dq.RecentQuarantine, err = s.RecentQuarantine(10)
	if err != nil {
		return nil, err
	}
	return dq, nil
}

func (s *Store) avgConfidence(from, to time.Time) float64 {
	var avg sql.NullFloat64
	err := s.db.QueryRow(`
		SELECT AVG(confidence) FROM events
		WHERE published_at >= ? AND published_at < ?`,
		from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339)).Scan(&avg)
	if err != nil {
		return 0
	}
	return avg.Float64
}

// Unsubscribe records an opt-out by token-bearing link.
func (s *Store) Unsubscribe(email, token string) error {
	_, err := s.db.Exec(`
		INSERT INTO unsubscribes (email, token, unsubscribed_at)
		VALUES (?, ?, ?)
		ON CONFLICT(email) DO NOTHING`,
		email, token, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("unsubscribe: %w", err)
	}
	return nil
}

// IsUnsubscribed reports whether an address opted out of the weekly digest.
func (s *Store) IsUnsubscribed(email string) (bool, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM unsubscribes WHERE email = ?", email).Scan(&n); err != nil {
		return false, fmt.Errorf("unsubscribe check: %w", err)
	}
	return n > 0, nil
}
