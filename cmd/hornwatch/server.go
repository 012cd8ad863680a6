package main

import (
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/okello/hornwatch/internal/app"
	"github.com/okello/hornwatch/internal/config"
	"github.com/okello/hornwatch/internal/digest"
	"github.com/okello/hornwatch/internal/metrics"
)

// newServer builds the monitoring and admin HTTP server.
//
// Public: /health, /metrics, /articles, /unsubscribe.
// Admin (token): /events, /digest.json, /quality.
func newServer(a *app.App, cfg *config.Config) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("/metrics", handleMetrics)
	mux.HandleFunc("/articles", handleArticles(a))
	mux.HandleFunc("/unsubscribe", handleUnsubscribe(a))

	mux.HandleFunc("/events", admin(cfg, handleEvents(a)))
	mux.HandleFunc("/digest.json", admin(cfg, handleDigestJSON(a)))
	mux.HandleFunc("/quality", admin(cfg, handleQuality(a)))

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// admin guards an endpoint with the shared token, taken from the
// X-Admin-Token header or a token query parameter.
func admin(cfg *config.Config, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.AdminToken == "" {
			http.Error(w, "admin endpoints disabled", http.StatusForbidden)
			return
		}
		token := r.Header.Get("X-Admin-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token != cfg.AdminToken {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := metrics.Global.GetStats()
	status := "ok"
	code := http.StatusOK
	if healthy, _ := stats["is_healthy"].(bool); !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    version,
		"last_run":   stats["last_run_time"],
		"last_error": stats["last_error"],
	})
}

func handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, metrics.Global.GetStats())
}

// handleArticles serves the latest cluster snapshot: the deduplicated,
// story-grouped view of the current window.
func handleArticles(a *app.App) http.HandlerFunc {
	type clusterView struct {
		Title       string    `json:"title"`
		URL         string    `json:"url"`
		Image       string    `json:"image,omitempty"`
		Source      string    `json:"source"`
		Sources     []string  `json:"sources"`
		SourceCount int       `json:"sourceCount"`
		Category    string    `json:"category"`
		PublishedAt time.Time `json:"publishedAt"`
		Hash        string    `json:"hash"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		clusters := a.Clusters()
		views := make([]clusterView, 0, len(clusters))
		for _, c := range clusters {
			views = append(views, clusterView{
				Title:       c.Primary.Title,
				URL:         c.Primary.URL,
				Image:       c.Image,
				Source:      c.Primary.Source,
				Sources:     c.Sources,
				SourceCount: c.SourceCount,
				Category:    c.Category,
				PublishedAt: c.LatestDate,
				Hash:        c.Hash,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"count":    len(views),
			"clusters": views,
		})
	}
}

func handleEvents(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days := 7
		if raw := r.URL.Query().Get("days"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 90 {
				days = n
			}
		}

		now := time.Now()
		events, err := a.Store.EventsBetween(now.AddDate(0, 0, -days), now)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"days":   days,
			"count":  len(events),
			"events": events,
		})
	}
}

// handleDigestJSON builds the digest on demand without sending mail.
func handleDigestJSON(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := digest.NewBuilder(a.Store).Build(time.Now())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func handleQuality(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dq, err := a.Store.Quality(time.Now())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, dq)
	}
}

// handleUnsubscribe records an opt-out. The token is the HMAC the mailer
// embedded in the digest link, so no pre-registration is needed.
func handleUnsubscribe(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email := r.URL.Query().Get("email")
		token := r.URL.Query().Get("token")
		if email == "" || token == "" {
			http.Error(w, "email and token required", http.StatusBadRequest)
			return
		}
		if !a.Mailer().VerifyToken(email, token) {
			http.Error(w, "invalid token", http.StatusForbidden)
			return
		}
		if err := a.Store.Unsubscribe(email, token); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<html><body><p>%s has been unsubscribed from the weekly digest.</p></body></html>",
			html.EscapeString(email))
		slog.Info("recipient unsubscribed", "email", email)
	}
}
