// Package control exposes the local control API served in supervised mode:
// process status, recent captured logs and on-demand dependency
// resynchronization. Requests are authenticated with a bearer token minted
// at startup and printed once to the operator.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pocthealth/demohost/launch"
)

const tokenTTL = 24 * time.Hour

// ProcessController is the slice of the supervisor the control API needs.
type ProcessController interface {
	Status() launch.SupervisorStatus
	Logs() *launch.LogBuffer
	RequestResync()
}

// Server is the control API HTTP server.
type Server struct {
	controller ProcessController
	logger     *slog.Logger
	secret     []byte
	httpServer *http.Server
}

// NewServer creates a control API server with a fresh signing secret.
func NewServer(controller ProcessController, logger *slog.Logger) (*Server, error) {
	secret, err := NewSecret()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		controller: controller,
		logger:     logger.With("component", "ControlServer"),
		secret:     secret,
	}, nil
}

// Token mints a bearer token accepted by this server instance.
func (s *Server) Token() (string, error) {
	return MintToken(s.secret, tokenTTL)
}

// Handler returns the control API route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.requireAuth(s.handleStatus))
	mux.HandleFunc("/api/logs", s.requireAuth(s.handleLogs))
	mux.HandleFunc("/api/resync", s.requireAuth(s.handleResync))
	return mux
}

// Start serves the control API on the given port, bound to localhost only.
// Blocks until Stop is called.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	s.logger.Info("Control API listening", "address", addr)
	return s.httpServer.ListenAndServe()
}

// Stop shuts the control API down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// requireAuth rejects requests without a valid bearer token.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found {
			http.Error(w, "Missing bearer token", http.StatusUnauthorized)
			return
		}
		if err := ValidateToken(s.secret, token); err != nil {
			s.logger.Warn("Rejected control request", "path", r.URL.Path, "error", err)
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, resp interface{}) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("Failed to marshal response", "path", r.URL.Path, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, r, http.StatusOK, s.controller.Status())
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	count := 100
	if v := r.URL.Query().Get("count"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			http.Error(w, "Invalid count parameter", http.StatusBadRequest)
			return
		}
		count = parsed
	}

	var entries []launch.LogEntry
	if v := r.URL.Query().Get("after"); v != "" {
		afterID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			http.Error(w, "Invalid after parameter", http.StatusBadRequest)
			return
		}
		entries = s.controller.Logs().EntriesFromID(afterID)
	} else {
		entries = s.controller.Logs().LatestEntries(count)
	}
	s.writeJSON(w, r, http.StatusOK, entries)
}

func (s *Server) handleResync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.controller.RequestResync()
	s.logger.Info("Resync requested via control API")
	s.writeJSON(w, r, http.StatusAccepted, map[string]string{"status": "resync requested"})
}
