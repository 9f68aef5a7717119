// Package diag serves the speechkit diagnostics endpoints:
//
//   - /healthz: liveness probe; always 200 OK.
//   - /readyz: readiness probe; 200 only when every [Checker] passes.
//   - /report: JSON reports of the sessions processed so far.
//   - /report/{name}: the report of a single session.
//   - /metrics: Prometheus exposition of the OpenTelemetry metrics.
//
// Every route is wrapped in [observe.Middleware].
package diag

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/speechkit/internal/observe"
	"github.com/MrWong99/speechkit/internal/pipeline"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named readiness probe, e.g. a Redis PING.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

type status struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Entry is a named session report as served by /report.
type Entry struct {
	Name   string          `json:"name"`
	Report pipeline.Report `json:"report"`
}

// Board collects session reports by name, keeping insertion order. A name
// that is put twice keeps its original position. It is safe for concurrent
// use.
type Board struct {
	mu      sync.RWMutex
	order   []string
	reports map[string]pipeline.Report
}

// NewBoard returns an empty Board.
func NewBoard() *Board {
	return &Board{reports: make(map[string]pipeline.Report)}
}

// Put stores r under name.
func (b *Board) Put(name string, r pipeline.Report) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.reports[name]; !ok {
		b.order = append(b.order, name)
	}
	b.reports[name] = r
}

// Get returns the report stored under name.
func (b *Board) Get(name string) (pipeline.Report, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.reports[name]
	return r, ok
}

// Entries returns all reports in insertion order.
func (b *Board) Entries() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Entry, 0, len(b.order))
	for _, name := range b.order {
		out = append(out, Entry{Name: name, Report: b.reports[name]})
	}
	return out
}

// Server holds the state behind the diagnostics routes.
type Server struct {
	board    *Board
	checkers []Checker
}

// New returns a Server publishing board. The checkers are evaluated in order
// on each /readyz request.
func New(board *Board, checkers ...Checker) *Server {
	if board == nil {
		board = NewBoard()
	}
	return &Server{board: board, checkers: append([]Checker(nil), checkers...)}
}

// Healthz always reports ok.
func (s *Server) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, status{Status: "ok"})
}

// Readyz runs every checker with a [checkTimeout] deadline derived from the
// request context.
func (s *Server) Readyz(w http.ResponseWriter, r *http.Request) {
	res := status{Status: "ok", Checks: make(map[string]string, len(s.checkers))}
	code := http.StatusOK

	for _, c := range s.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			res.Checks[c.Name] = "fail: " + err.Error()
			res.Status = "fail"
			code = http.StatusServiceUnavailable
			continue
		}
		res.Checks[c.Name] = "ok"
	}
	writeJSON(w, code, res)
}

// Reports serves every session report.
func (s *Server) Reports(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.board.Entries())
}

// Report serves the report named by the {name} path value.
func (s *Server) Report(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	rep, ok := s.board.Get(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, status{Status: "unknown session " + name})
		return
	}
	writeJSON(w, http.StatusOK, Entry{Name: name, Report: rep})
}

// Register adds the diagnostics routes, except /metrics, to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.Healthz)
	mux.HandleFunc("GET /readyz", s.Readyz)
	mux.HandleFunc("GET /report", s.Reports)
	mux.HandleFunc("GET /report/{name...}", s.Report)
}

// Handler returns all routes including /metrics, instrumented with m.
func (s *Server) Handler(m *observe.Metrics) http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	return observe.Middleware(m)(mux)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		observe.Logger(context.Background()).Warn("diag: encode response", "err", err)
	}
}
