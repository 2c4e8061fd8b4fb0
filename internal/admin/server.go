// Package admin exposes a dataflow's probe frontier and per-backend
// upsert lag as JSON: each operator surfaces its own progress, rather
// than having something scrape its internal state to reconstruct it.
package admin

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/teskje/materialize/internal/obs"
	"github.com/teskje/materialize/internal/trace"
)

// FrontierFunc reports a dataflow's current probe frontier.
type FrontierFunc func() trace.Time

// UpsertLagFunc reports the latest time a named upsert backend has
// ingested (e.g. an Upserter's LastClosedTime). The server serves it as
// last_closed_time, without subtracting it from any frontier.
type UpsertLagFunc func() trace.Time

// Registry collects the frontier/lag probes a running process wants to
// expose. It is safe for concurrent registration and lookup.
type Registry struct {
	mu        sync.Mutex
	frontiers map[string]FrontierFunc
	lags      map[string]UpsertLagFunc
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		frontiers: map[string]FrontierFunc{},
		lags:      map[string]UpsertLagFunc{},
	}
}

// RegisterFrontier names a dataflow's probe-frontier probe, e.g. a
// join.Join's Frontier method.
func (r *Registry) RegisterFrontier(name string, f FrontierFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frontiers[name] = f
}

// RegisterUpsertBackend names an upsert.Upserter's lag probe.
func (r *Registry) RegisterUpsertBackend(name string, f UpsertLagFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lags[name] = f
}

func (r *Registry) snapshotFrontiers() map[string]trace.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]trace.Time, len(r.frontiers))
	for name, f := range r.frontiers {
		out[name] = f()
	}
	return out
}

func (r *Registry) snapshotLags() map[string]trace.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]trace.Time, len(r.lags))
	for name, f := range r.lags {
		out[name] = f()
	}
	return out
}

// Server is the introspection HTTP surface. It is a thin wrapper over a
// *mux.Router.
type Server struct {
	reg    *Registry
	router *mux.Router
	log    zerolog.Logger
}

// NewServer builds the admin HTTP surface around reg.
func NewServer(reg *Registry) *Server {
	s := &Server{reg: reg, router: mux.NewRouter(), log: obs.New("admin")}
	s.router.HandleFunc("/probe/frontier", s.handleFrontier).Methods(http.MethodGet)
	s.router.HandleFunc("/upsert/lag", s.handleUpsertLag).Methods(http.MethodGet)
	return s
}

// ServeHTTP lets Server be mounted directly as an http.Handler, or wrapped
// in an *http.Server by a caller that also wants timeouts/TLS.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type frontierResponse struct {
	Frontiers map[string]trace.Time `json:"frontiers"`
}

func (s *Server) handleFrontier(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, frontierResponse{Frontiers: s.reg.snapshotFrontiers()})
}

type upsertLagEntry struct {
	LastClosedTime trace.Time `json:"last_closed_time"`
}

type upsertLagResponse struct {
	Backends map[string]upsertLagEntry `json:"backends"`
}

func (s *Server) handleUpsertLag(w http.ResponseWriter, _ *http.Request) {
	lags := s.reg.snapshotLags()
	resp := upsertLagResponse{Backends: make(map[string]upsertLagEntry, len(lags))}
	for name, t := range lags {
		resp.Backends[name] = upsertLagEntry{LastClosedTime: t}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
