package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/ha1tch/sqlfix/metadata"
)

// Request/response shapes for the JSON API.

// RewriteRequest is the body of POST /rewrite.
type RewriteRequest struct {
	SQL string `json:"sql"`
}

// RewriteResponse is the reply to POST /rewrite. SQL is always a
// complete query: rewritten when a rule applied, the input verbatim
// otherwise.
type RewriteResponse struct {
	SQL       string `json:"sql"`
	Rewritten bool   `json:"rewritten"`
}

// StatusResponse is the reply to GET /status.
type StatusResponse struct {
	Server  string         `json:"server"`
	Version string         `json:"version"`
	Caches  metadata.Stats `json:"caches"`
}

// ErrorResponse is the JSON error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/rewrite", s.handleRewrite)
	mux.HandleFunc("/admin/flush-caches", s.handleFlushCaches)
	return mux
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/" {
		s.handleHealth(w, r)
		return
	}
	http.NotFound(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"server": "sqlfix",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(StatusResponse{
		Server:  "sqlfix",
		Version: s.cfg.Version,
		Caches:  s.store.Stats(),
	})
}

// handleRewrite is the driver-facing surface: it accepts one generated
// query and replies with the query to execute instead. The reply is the
// input verbatim whenever no rule applies or anything goes wrong.
func (s *Server) handleRewrite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 4<<20))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "request body unreadable")
		return
	}

	var req RewriteRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}
	if req.SQL == "" {
		s.writeError(w, http.StatusBadRequest, "missing sql field")
		return
	}

	result := s.rewriter.Rewrite(r.Context(), req.SQL, s.db)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(RewriteResponse{
		SQL:       result,
		Rewritten: result != req.SQL,
	})
}

// handleFlushCaches resets the metadata caches so the next rewrite
// re-reads the catalog. Invoked by deploy tooling after schema changes.
func (s *Server) handleFlushCaches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.store.Flush()
	s.logger.System().Info("metadata caches flushed via admin api")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "flushed",
	})
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{Error: msg})
}
