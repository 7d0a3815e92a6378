package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"ds-trapezoid.com/logs"
	"ds-trapezoid.com/master/icalc"
	"ds-trapezoid.com/report"
)

// Source is what the server reports on; *icalc.Coordinator satisfies it.
type Source interface {
	Status() icalc.Status
	Assignments() []icalc.Assignment
}

// History lists past runs; *report.MySQL satisfies it.
type History interface {
	Recent(ctx context.Context, limit int) ([]report.Summary, error)
}

type Server struct {
	src     Source
	history History
}

func NewServer(src Source) *Server {
	return &Server{src: src}
}

// WithHistory enables GET /history.
func (s *Server) WithHistory(h History) *Server {
	s.history = h
	return s
}

// Response structures
type StatusResponse struct {
	Phase      string  `json:"phase"`
	LowerBound float64 `json:"lower_bound"`
	UpperBound float64 `json:"upper_bound"`
	SliceCount int     `json:"slice_count"`
	Policy     string  `json:"policy"`
	Workers    int     `json:"workers"`
	Sent       int     `json:"sent"`
	Received   int     `json:"received"`
	Progress   float64 `json:"progress_percent"`
	Elapsed    string  `json:"elapsed,omitempty"`
	IsComplete bool    `json:"is_complete"`
	Error      string  `json:"error,omitempty"`
}

type AssignmentResponse struct {
	Rank       int     `json:"rank"`
	LowerBound float64 `json:"lower_bound"`
	SliceWidth float64 `json:"slice_width"`
	StartSlice int32   `json:"start_slice"`
	SliceCount int32   `json:"slice_count"`
	Sent       bool    `json:"sent"`
	Received   bool    `json:"received"`
	Partial    string  `json:"partial,omitempty"`
}

type ResultResponse struct {
	Result string `json:"result"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/assignments", s.handleAssignments)
	mux.HandleFunc("/result", s.handleResult)
	mux.HandleFunc("/history", s.handleHistory)
	mux.HandleFunc("/health", s.handleHealth)

	return s.enableCORS(mux)
}

// Start serves the API on addr until ctx is done.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logs.Log.Warn("API shutdown failed", "err", err)
		}
	}()

	logs.Log.Info("API Server listening", "addr", addr)
	logs.Log.Debug("Available endpoints",
		"status", "GET /status",
		"assignments", "GET /assignments",
		"result", "GET /result?precision=N",
		"history", "GET /history?limit=N",
		"health", "GET /health")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "api server")
	}
	return nil
}

// GET /status - Get calculation status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := s.src.Status()

	response := StatusResponse{
		Phase:      string(status.Phase),
		LowerBound: status.LowerBound,
		UpperBound: status.UpperBound,
		SliceCount: status.SliceCount,
		Policy:     status.Policy,
		Workers:    status.Workers,
		Sent:       status.Sent,
		Received:   status.Received,
		Progress:   status.Progress(),
		IsComplete: status.Phase == icalc.PhaseDone,
		Error:      status.Error,
	}
	if status.Elapsed > 0 {
		response.Elapsed = status.Elapsed.String()
	}

	s.sendJSON(w, response)
}

// GET /assignments - List the slice range given to every worker
func (s *Server) handleAssignments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	assignments := s.src.Assignments()
	response := make([]AssignmentResponse, 0, len(assignments))
	for _, a := range assignments {
		response = append(response, AssignmentResponse{
			Rank:       a.Rank,
			LowerBound: a.Descriptor.LowerBound,
			SliceWidth: a.Descriptor.SliceWidth,
			StartSlice: a.Descriptor.StartSliceIndex,
			SliceCount: a.Descriptor.AssignedSliceCount,
			Sent:       a.Sent,
			Received:   a.Received,
			Partial:    a.Partial,
		})
	}

	s.sendJSON(w, map[string]interface{}{
		"assignments": response,
		"total":       len(response),
	})
}

// GET /result - Get the final result
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := s.src.Status()
	if status.Phase != icalc.PhaseDone || status.Result == nil {
		s.sendError(w, "Result not available, run is "+string(status.Phase), http.StatusConflict)
		return
	}

	precision := 10
	if precStr := r.URL.Query().Get("precision"); precStr != "" {
		if p, err := strconv.Atoi(precStr); err == nil && p > 0 {
			precision = p
		}
	}

	s.sendJSON(w, ResultResponse{Result: status.Result.Text('f', precision)})
}

// GET /history - List past runs, newest first
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.history == nil {
		s.sendError(w, "Run history is not configured", http.StatusNotFound)
		return
	}

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	runs, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		logs.Log.Error("History query failed", "err", err)
		s.sendError(w, "History unavailable", http.StatusServiceUnavailable)
		return
	}
	if runs == nil {
		runs = []report.Summary{}
	}

	s.sendJSON(w, map[string]interface{}{
		"runs":  runs,
		"total": len(runs),
	})
}

// GET /health - Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, map[string]string{
		"status": "ok",
	})
}

func (s *Server) sendJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logs.Log.Warn("Response encode failed", "err", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
