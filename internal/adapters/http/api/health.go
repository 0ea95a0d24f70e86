package api

import (
	"net/http"
	"time"
)

type healthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// handleHealth reports liveness and whether storage answers.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Version:   s.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    map[string]string{"storage": "ok"},
	}
	status := http.StatusOK
	if err := s.deps.Ping(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Checks["storage"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
