package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/boristopalov/gridplan/pkg/core"
)

const maxBodyBytes = 1 << 20

// PlanResponse is the body of a successful POST /plan
type PlanResponse struct {
	Subgoals []core.Subgoal `json:"subgoals"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server exposes a SubgoalSource over HTTP
type Server struct {
	source  core.SubgoalSource
	logger  *log.Logger
	timeout time.Duration
}

type ServerOption func(*Server)

// WithTimeout bounds each planning call
func WithTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		s.timeout = d
	}
}

func WithLogger(l *log.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

func NewServer(source core.SubgoalSource, opts ...ServerOption) *Server {
	s := &Server{
		source:  source,
		logger:  log.New(os.Stderr, "[server] ", log.LstdFlags),
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/plan", s.handlePlan)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	w.Header().Set("X-Request-Id", id)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		s.writeError(w, id, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, id, http.StatusBadRequest, "failed to read body")
		return
	}
	if !gjson.ValidBytes(body) {
		s.writeError(w, id, http.StatusBadRequest, "body must be JSON")
		return
	}
	summary := strings.TrimSpace(gjson.GetBytes(body, "summary").String())
	if summary == "" {
		s.writeError(w, id, http.StatusBadRequest, "missing summary")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	start := time.Now()
	subgoals, err := s.source.Plan(ctx, summary)
	if err != nil {
		s.logger.Printf("[%s] plan failed after %v: %v", id, time.Since(start), err)
		s.writeError(w, id, http.StatusBadGateway, err.Error())
		return
	}
	if subgoals == nil {
		subgoals = []core.Subgoal{}
	}
	s.logger.Printf("[%s] planned %d subgoals in %v", id, len(subgoals), time.Since(start))
	s.writeJSON(w, id, http.StatusOK, PlanResponse{Subgoals: subgoals})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, `{"status":"ok"}`)
}

func (s *Server) writeError(w http.ResponseWriter, id string, code int, msg string) {
	s.logger.Printf("[%s] %d %s", id, code, msg)
	s.writeJSON(w, id, code, errorResponse{Error: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, id string, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Printf("[%s] failed to write response: %v", id, err)
	}
}
