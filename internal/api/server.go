// Package api serves the operator HTTP interface: run status, the pending
// incident review, committed incidents, manual triggers and pedal charts.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/cornercase/internal/capture"
	"github.com/banshee-data/cornercase/internal/db"
	"github.com/banshee-data/cornercase/internal/drive"
	"github.com/banshee-data/cornercase/internal/httputil"
	"github.com/banshee-data/cornercase/internal/incident"
	"github.com/banshee-data/cornercase/internal/monitoring"
	"github.com/banshee-data/cornercase/internal/telemetry"
	"github.com/banshee-data/cornercase/internal/version"
)

var logf = monitoring.Component("api")

// ANSI escape codes used by the request log
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

type LifecycleStats interface {
	Stats() incident.Stats
}

type BufferStats interface {
	Stats() capture.Stats
}

type FeedStats interface {
	Stats() capture.FeedStats
}

// Runner is the part of drive.Runner the API reads and triggers.
type Runner interface {
	Stats() drive.Stats
	ManualTrigger()
}

type IncidentSource interface {
	Incidents(ctx context.Context, limit int) ([]incident.Record, error)
}

type PedalSource interface {
	PedalTrace(ctx context.Context, runID uuid.UUID) ([]db.PedalSample, error)
}

// Options wires a Server. Feed, Incidents and Pedals are optional; their
// endpoints report 404 or omit fields when unset.
type Options struct {
	RunID     uuid.UUID
	Lifecycle LifecycleStats
	Buffer    BufferStats
	Feed      FeedStats
	Runner    Runner
	Reviews   *ReviewQueue
	Incidents IncidentSource
	Pedals    PedalSource
}

type Server struct {
	opts    Options
	started time.Time
}

func NewServer(opts Options) (*Server, error) {
	if opts.Lifecycle == nil || opts.Buffer == nil || opts.Runner == nil || opts.Reviews == nil {
		return nil, errors.New("api server needs lifecycle, buffer, runner and reviews")
	}
	return &Server{opts: opts, started: time.Now()}, nil
}

// Status is the body of GET /api/status.
type Status struct {
	Version   string                  `json:"version"`
	RunID     uuid.UUID               `json:"run_id"`
	UptimeSec float64                 `json:"uptime_s"`
	Lifecycle incident.Stats          `json:"lifecycle"`
	Buffer    capture.Stats           `json:"buffer"`
	Feed      *capture.FeedStats      `json:"feed,omitempty"`
	Drive     drive.Stats             `json:"drive"`
	Recent    []incident.Outcome      `json:"recent"`
	Pending   *incident.ReviewRequest `json:"pending,omitempty"`
}

// DecisionBody is the body of POST /api/review.
type DecisionBody struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason,omitempty"`
	Comment  string `json:"comment,omitempty"`
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/incidents", s.listIncidents)
	mux.HandleFunc("/api/review", s.handleReview)
	mux.HandleFunc("/api/trigger", s.manualTrigger)
	mux.HandleFunc("/api/charts/pedals", s.pedalChart)
	return mux
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	st := Status{
		Version:   version.Version,
		RunID:     s.opts.RunID,
		UptimeSec: time.Since(s.started).Seconds(),
		Lifecycle: s.opts.Lifecycle.Stats(),
		Buffer:    s.opts.Buffer.Stats(),
		Drive:     s.opts.Runner.Stats(),
		Recent:    s.opts.Reviews.History(),
	}
	if s.opts.Feed != nil {
		fs := s.opts.Feed.Stats()
		st.Feed = &fs
	}
	if req, ok := s.opts.Reviews.Pending(); ok {
		st.Pending = &req
	}
	httputil.WriteJSONOK(w, st)
}

func (s *Server) listIncidents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.opts.Incidents == nil {
		httputil.NotFound(w, "incident store not configured")
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	records, err := s.opts.Incidents.Incidents(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve incidents: %v", err))
		return
	}
	if records == nil {
		records = []incident.Record{}
	}
	httputil.WriteJSONOK(w, records)
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		req, ok := s.opts.Reviews.Pending()
		if !ok {
			httputil.NotFound(w, incident.ErrNoPendingReview.Error())
			return
		}
		httputil.WriteJSONOK(w, req)

	case http.MethodPost:
		var body DecisionBody
		if err := httputil.DecodeJSON(r, &body); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		d, err := body.toDecision()
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		req, ok := s.opts.Reviews.Pending()
		if err := s.opts.Reviews.Decide(d); err != nil {
			if errors.Is(err, incident.ErrNoPendingReview) {
				httputil.Conflict(w, err.Error())
				return
			}
			httputil.InternalServerError(w, err.Error())
			return
		}
		if ok {
			logf("session %d: %s requested", req.SessionID, d.Verdict)
		}
		httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"decision": d.Verdict.String()})

	default:
		httputil.MethodNotAllowed(w)
	}
}

func (b DecisionBody) toDecision() (incident.Decision, error) {
	v, err := incident.ParseVerdict(b.Decision)
	if err != nil {
		return incident.Decision{}, err
	}
	d := incident.Decision{Verdict: v, Comment: b.Comment}
	if b.Reason != "" {
		if v != incident.Commit {
			return incident.Decision{}, errors.New("reason is only accepted with commit")
		}
		if d.Reason, err = incident.ParseReason(b.Reason); err != nil {
			return incident.Decision{}, err
		}
	}
	return d, nil
}

func (s *Server) manualTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.opts.Runner.ManualTrigger()
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"trigger": "brake"})
}

func (s *Server) pedalChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.opts.Pedals == nil {
		httputil.NotFound(w, "pedal tracking not configured")
		return
	}

	runID := s.opts.RunID
	if id := r.URL.Query().Get("run_id"); id != "" {
		parsed, err := uuid.Parse(id)
		if err != nil {
			httputil.BadRequest(w, "Invalid 'run_id' parameter")
			return
		}
		runID = parsed
	}

	samples, err := s.opts.Pedals.PedalTrace(r.Context(), runID)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve pedal trace: %v", err))
		return
	}

	var buf bytes.Buffer
	if err := telemetry.WritePedalChart(&buf, samples, "run "+runID.String()); err != nil {
		if errors.Is(err, telemetry.ErrNoSamples) {
			httputil.NotFound(w, err.Error())
			return
		}
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
