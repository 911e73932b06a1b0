// Package api exposes the control and reporting HTTP interface.
package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/visiontrack/visiontrack/internal/db"
	"github.com/visiontrack/visiontrack/internal/exercise"
	"github.com/visiontrack/visiontrack/internal/export"
	"github.com/visiontrack/visiontrack/internal/httputil"
	"github.com/visiontrack/visiontrack/internal/monitoring"
	"github.com/visiontrack/visiontrack/internal/pipeline"
	"github.com/visiontrack/visiontrack/internal/security"
	"github.com/visiontrack/visiontrack/internal/surveillance"
	"github.com/visiontrack/visiontrack/internal/version"
)

// ServerConfig contains configuration options for the HTTP server.
type ServerConfig struct {
	Address string
	Runner  *pipeline.Runner

	// Store is optional; session and analytics endpoints answer 503
	// without it.
	Store *db.DB
}

// Server handles the HTTP interface for pipeline control, live stats and
// session reporting.
type Server struct {
	address string
	runner  *pipeline.Runner
	store   *db.DB
	server  *http.Server
}

// NewServer creates the HTTP server with its routes configured.
func NewServer(config ServerConfig) *Server {
	s := &Server{
		address: config.Address,
		runner:  config.Runner,
		store:   config.Store,
	}
	s.server = &http.Server{
		Addr:    s.address,
		Handler: s.ServeMux(),
	}
	return s
}

// Start begins the HTTP server in a goroutine and blocks until the context
// is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		monitoring.Logf("starting HTTP server on %s", s.address)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			monitoring.Logf("HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()
	monitoring.Logf("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("HTTP server shutdown error: %v", err)
		if err := s.server.Close(); err != nil {
			monitoring.Logf("HTTP server force close error: %v", err)
		}
	}
	return nil
}

// Close shuts down the server immediately.
func (s *Server) Close() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

// ServeMux configures the HTTP routes and handlers.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/control/", s.handleControl)
	mux.HandleFunc("/api/mode/", s.handleMode)
	mux.HandleFunc("/api/exercise/set/", s.handleSetExercise)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/sessions/", s.handleSession)
	mux.HandleFunc("/api/analytics", s.handleAnalytics)
	mux.HandleFunc("/api/surveillance/alerts", s.handleAlerts)
	mux.HandleFunc("/api/surveillance/stats", s.handleSurveillanceStats)
	mux.HandleFunc("/api/surveillance/zones", s.handleZones)
	mux.HandleFunc("/api/alerts/", s.handleResolveAlert)
	mux.HandleFunc("/api/export/", s.handleExport)
	mux.HandleFunc("/charts/sessions", s.handleSessionsChart)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{
		"status":    "ok",
		"service":   "visiontrack",
		"version":   version.Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.runner.Snapshot())
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	action := strings.TrimPrefix(r.URL.Path, "/api/control/")
	switch action {
	case "start":
		if err := s.runner.Start(context.Background()); err != nil {
			httputil.WriteJSONError(w, http.StatusConflict, err.Error())
			return
		}
	case "stop":
		s.runner.Stop()
	case "reset":
		s.runner.Reset()
	default:
		httputil.NotFound(w, fmt.Sprintf("unknown control action %q", action))
		return
	}
	httputil.WriteJSONOK(w, s.runner.Snapshot())
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/api/mode/")
	mode, ok := pipeline.ParseMode(name)
	if !ok {
		httputil.BadRequest(w, fmt.Sprintf("unknown mode %q", name))
		return
	}
	s.runner.SetMode(mode)
	httputil.WriteJSONOK(w, map[string]string{"mode": string(mode)})
}

func (s *Server) handleSetExercise(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/api/exercise/set/")
	if name == "auto" {
		s.runner.SetAutoDetect(true)
		httputil.WriteJSONOK(w, map[string]string{"exercise": "auto"})
		return
	}
	t, ok := exercise.ParseType(name)
	if !ok {
		httputil.BadRequest(w, fmt.Sprintf("unknown exercise %q", name))
		return
	}
	s.runner.SetAutoDetect(false)
	s.runner.SetExercise(t)
	httputil.WriteJSONOK(w, map[string]string{"exercise": string(t)})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.store == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no database configured")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sessions, err := s.store.Sessions(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list sessions: %v", err))
		return
	}
	httputil.WriteJSONOK(w, sessions)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.store == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no database configured")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	report, err := export.BuildSessionReport(s.store, id)
	if errors.Is(err, sql.ErrNoRows) {
		httputil.NotFound(w, fmt.Sprintf("no session %q", id))
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load session: %v", err))
		return
	}
	httputil.WriteJSONOK(w, report)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.store == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no database configured")
		return
	}
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	analytics, err := s.store.AnalyticsSummary(days)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to compute analytics: %v", err))
		return
	}
	httputil.WriteJSONOK(w, analytics)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}
	httputil.WriteJSONOK(w, s.runner.Alerts().Recent(limit))
}

func (s *Server) handleSurveillanceStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.runner.Snapshot().Surveillance)
}

func (s *Server) handleZones(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, s.runner.Zones())
	case http.MethodPost:
		var zone surveillance.Zone
		if err := json.NewDecoder(r.Body).Decode(&zone); err != nil {
			httputil.BadRequest(w, fmt.Sprintf("invalid zone: %v", err))
			return
		}
		if zone.ID == "" || len(zone.Points) < 3 {
			httputil.BadRequest(w, "zone needs an id and at least 3 points")
			return
		}
		s.runner.AddZone(zone)
		httputil.WriteJSON(w, http.StatusCreated, zone)
	case http.MethodDelete:
		id := r.URL.Query().Get("id")
		if id == "" {
			httputil.BadRequest(w, "missing zone id")
			return
		}
		if !s.runner.RemoveZone(id) {
			httputil.NotFound(w, fmt.Sprintf("no zone %q", id))
			return
		}
		httputil.WriteJSONOK(w, map[string]string{"removed": id})
	default:
		httputil.MethodNotAllowed(w)
	}
}

// handleResolveAlert serves POST /api/alerts/{id}/resolve. The alert is
// resolved in memory and, when a store is configured, in the database.
func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/alerts/")
	id, ok := strings.CutSuffix(rest, "/resolve")
	if !ok || id == "" {
		httputil.NotFound(w, "unknown alert endpoint")
		return
	}

	resolved := s.runner.Alerts().Resolve(id)
	if s.store != nil {
		if err := s.store.ResolveAlert(id); err == nil {
			resolved = true
		}
	}
	if !resolved {
		httputil.NotFound(w, fmt.Sprintf("no alert %q", id))
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"resolved": id})
}

// handleExport serves GET /api/export/{session_id}?format=json|csv.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.store == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no database configured")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/export/")
	report, err := export.BuildSessionReport(s.store, id)
	if errors.Is(err, sql.ErrNoRows) {
		httputil.NotFound(w, fmt.Sprintf("no session %q", id))
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load session: %v", err))
		return
	}

	filename := security.SanitizeFilename(id)
	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.json", filename))
		httputil.WriteJSONOK(w, report)
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", filename))
		if err := export.WriteReps(w, report.Reps); err != nil {
			monitoring.Logf("failed to stream CSV export: %v", err)
		}
	default:
		httputil.BadRequest(w, fmt.Sprintf("unknown export format %q", format))
	}
}

// handleSessionsChart renders a bar chart of reps and alerts per recent
// session.
func (s *Server) handleSessionsChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.store == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no database configured")
		return
	}
	sessions, err := s.store.Sessions(30)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list sessions: %v", err))
		return
	}

	// Oldest first reads left to right.
	labels := make([]string, 0, len(sessions))
	reps := make([]opts.BarData, 0, len(sessions))
	alerts := make([]opts.BarData, 0, len(sessions))
	for i := len(sessions) - 1; i >= 0; i-- {
		sess := sessions[i]
		labels = append(labels, sess.StartTime.Format("01-02 15:04"))
		reps = append(reps, opts.BarData{Value: sess.TotalReps})
		alerts = append(alerts, opts.BarData{Value: sess.TotalAlerts})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Session History", Width: "1100px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Session History", Subtitle: fmt.Sprintf("last %d sessions", len(sessions))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(labels).
		AddSeries("reps", reps).
		AddSeries("alerts", alerts)

	var buf bytes.Buffer
	if err := bar.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
