// Package api serves stored alerts over HTTP and pushes new ones to
// websocket clients.
package api

import (
	"Go2NetGuard/internal/alerter"
	"Go2NetGuard/internal/metrics"
	"Go2NetGuard/internal/mitre"
	"Go2NetGuard/internal/model"
	"Go2NetGuard/internal/query"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// AlertStore persists alerts for the API.
type AlertStore interface {
	Add(ctx context.Context, a *model.Alert) error
	List(ctx context.Context, limit int, minSeverity model.Severity) ([]*model.Alert, error)
	Clear(ctx context.Context) (int64, error)
	Summary(ctx context.Context) (*model.AlertSummary, error)
}

// StreamAnalyzer streams a written analysis of an alert summary.
type StreamAnalyzer interface {
	AnalyzeStream(ctx context.Context, input string, sendChunk func(string) error) error
}

// Server holds the API dependencies. Querier and Analyzer are optional.
type Server struct {
	Store    AlertStore
	Hub      *Hub
	Querier  query.Querier
	Analyzer StreamAnalyzer
	MaxList  int
}

// NewServer creates a server over store with a fresh hub.
func NewServer(store AlertStore, maxList int) *Server {
	if maxList <= 0 {
		maxList = 1000
	}
	return &Server{Store: store, Hub: NewHub(), MaxList: maxList}
}

// Router builds the HTTP routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(countRequests)

	r.HandleFunc("/", s.health).Methods("GET")
	r.Handle("/metrics", metrics.Handler())

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/alerts", s.listAlerts).Methods("GET")
	v1.HandleFunc("/alerts", s.addAlert).Methods("POST")
	v1.HandleFunc("/alerts", s.clearAlerts).Methods("DELETE")
	v1.HandleFunc("/alerts/summary", s.summary).Methods("GET")
	v1.HandleFunc("/alerts/top-sources", s.topSources).Methods("GET")
	v1.HandleFunc("/alerts/analysis", s.analysis).Methods("POST")
	v1.Handle("/alerts/stream", s.Hub)
	v1.HandleFunc("/mitre", s.listTechniques).Methods("GET")
	v1.HandleFunc("/mitre/{id}", s.technique).Methods("GET")

	r.HandleFunc("/alerts", s.listAlerts).Methods("GET")
	r.HandleFunc("/alerts", s.addAlert).Methods("POST")
	r.HandleFunc("/alerts", s.clearAlerts).Methods("DELETE")
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "Go2NetGuard alert API",
		"clients": s.Hub.Len(),
	})
}

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	limit := s.MaxList
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, s.MaxList)
	}
	minSeverity := model.SeverityLow
	if v := r.URL.Query().Get("severity"); v != "" {
		sev, err := model.ParseSeverity(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		minSeverity = sev
	}

	alerts, err := s.Store.List(r.Context(), limit, minSeverity)
	if err != nil {
		log.Printf("ERROR: listing alerts: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(alerts), "alerts": alerts})
}

func (s *Server) addAlert(w http.ResponseWriter, r *http.Request) {
	var a model.Alert
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid alert: %v", err))
		return
	}
	if !a.Severity.Valid() {
		writeError(w, http.StatusBadRequest, "alert severity is required")
		return
	}
	if a.AlertType != model.ThreatSignature && a.AlertType != model.ThreatAnomaly {
		writeError(w, http.StatusBadRequest, "alert_type must be signature or anomaly")
		return
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp == "" {
		a.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	if err := s.Store.Add(r.Context(), &a); err != nil {
		log.Printf("ERROR: storing alert %s: %v", a.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to store alert")
		return
	}
	s.Hub.Broadcast(&a)
	writeJSON(w, http.StatusCreated, map[string]string{"status": "success", "id": a.ID})
}

func (s *Server) clearAlerts(w http.ResponseWriter, r *http.Request) {
	n, err := s.Store.Clear(r.Context())
	if err != nil {
		log.Printf("ERROR: clearing alerts: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to clear alerts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "cleared": n})
}

func parseSince(r *http.Request) (time.Time, error) {
	v := r.URL.Query().Get("since")
	if v == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(v); err == nil {
		return time.Now().Add(-d), nil
	}
	return time.Parse(time.RFC3339, v)
}

func (s *Server) summary(w http.ResponseWriter, r *http.Request) {
	since, err := parseSince(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "since must be a duration or RFC3339 time")
		return
	}
	var sum *model.AlertSummary
	if s.Querier != nil {
		sum, err = s.Querier.Summary(r.Context(), since)
	} else {
		sum, err = s.Store.Summary(r.Context())
	}
	if err != nil {
		log.Printf("ERROR: summarizing alerts: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to summarize alerts")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) topSources(w http.ResponseWriter, r *http.Request) {
	if s.Querier == nil {
		writeError(w, http.StatusNotImplemented, "clickhouse querier is not configured")
		return
	}
	since, err := parseSince(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "since must be a duration or RFC3339 time")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	result, err := s.Querier.TopSources(r.Context(), since, limit)
	if err != nil {
		log.Printf("ERROR: querying top sources: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to query top sources")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// analysis streams an AI analysis of the most recent alerts as plain text.
func (s *Server) analysis(w http.ResponseWriter, r *http.Request) {
	if s.Analyzer == nil {
		writeError(w, http.StatusServiceUnavailable, "AI analysis is not configured")
		return
	}
	alerts, err := s.Store.List(r.Context(), 50, model.SeverityLow)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	if len(alerts) == 0 {
		writeError(w, http.StatusNotFound, "no alerts to analyze")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	err = s.Analyzer.AnalyzeStream(r.Context(), alerter.Summarize(alerts, 0), func(chunk string) error {
		if _, err := fmt.Fprint(w, chunk); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		log.Printf("ERROR: AI analysis stream: %v", err)
	}
}

func (s *Server) listTechniques(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, mitre.All())
}

func (s *Server) technique(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	t, ok := mitre.Lookup(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown technique %s", id))
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Warning: failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the wrapped writer to http.ResponseController.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// countRequests records every request by route template and status code.
func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := "unknown"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		if route == "/api/v1/alerts/stream" {
			next.ServeHTTP(w, r)
			metrics.Get().APIRequests.WithLabelValues(route, "101").Inc()
			return
		}
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.Get().APIRequests.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
	})
}
