// Package web exposes the HTTP API the dashboard collaborator consumes:
// engine status, manual start/stop commands, history queries, and config
// reload. No authentication: the operator is trusted and local.
package web

import (
	"context"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/moragues/pump-controller/internal/engine"
	"github.com/moragues/pump-controller/internal/history"
)

// Controller is the engine surface the API needs.
type Controller interface {
	RequestManualStart()
	RequestManualStop()
	CurrentState() engine.Status
}

// Querier is the history surface the API needs.
type Querier interface {
	Query(since time.Time) ([]history.Maneuver, error)
}

// Server serves the control API over HTTP.
type Server struct {
	httpServer *http.Server
	controller Controller
	store      Querier
	reload     func() error
}

// New creates a Server. reload re-reads the configuration file and hands
// the result to the engine; nil disables the endpoint.
func New(addr string, controller Controller, store Querier, reload func() error) *Server {
	s := &Server{
		controller: controller,
		store:      store,
		reload:     reload,
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/api/status", s.handleStatus).Methods("GET")
	r.HandleFunc("/api/maneuver/start", s.handleStart).Methods("POST")
	r.HandleFunc("/api/maneuver/stop", s.handleStop).Methods("POST")
	r.HandleFunc("/api/history", s.handleHistory).Methods("GET")
	r.HandleFunc("/api/config/reload", s.handleReload).Methods("POST")

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusJSON(s.controller.CurrentState()))
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.controller.RequestManualStart()
	writeJSON(w, http.StatusAccepted, map[string]string{"result": "queued"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.controller.RequestManualStop()
	writeJSON(w, http.StatusAccepted, map[string]string{"result": "queued"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	since := time.Time{}
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.ParseInLocation("2006-01-02", v, time.Local)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "since must be YYYY-MM-DD"})
			return
		}
		since = t
	}

	records, err := s.store.Query(since)
	if err != nil {
		log.Printf("web: history query: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "history query failed"})
		return
	}
	writeJSON(w, http.StatusOK, historyJSON(records))
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.reload == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "reload disabled"})
		return
	}
	if err := s.reload(); err != nil {
		log.Printf("web: config reload rejected: %v", err)
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "reloaded"})
}
