package api

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	service "github.com/okian/ludus/internal/app"
	"github.com/okian/ludus/internal/domain/model"
)

type leaderboardResponse struct {
	Namespace string               `json:"namespace"`
	Records   []model.RankedRecord `json:"performance_records"`
}

type submissionResponse struct {
	ID      string   `json:"id"`
	Outcome string   `json:"outcome"`
	Evicted []string `json:"evicted,omitempty"`
}

// handleGetLeaderboard handles GET /api/v1/leaderboard[/{namespace}].
func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	ns := mux.Vars(r)["namespace"]
	records, err := s.deps.GetLeaderboard(r.Context(), ns)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if records == nil {
		records = []model.RankedRecord{}
	}
	if ns == "" {
		ns = service.GlobalNamespace
	}
	writeJSON(w, http.StatusOK, leaderboardResponse{Namespace: ns, Records: records})
}

// handleSubmitPerformance handles POST /api/v1/performance-record[/{namespace}].
// The record carries its own validation, so no validate tags are involved.
func (s *Server) handleSubmitPerformance(w http.ResponseWriter, r *http.Request) {
	var rec model.PerformanceRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		s.writeError(w, r, badRequest("invalid json", err))
		return
	}
	sub, err := s.deps.SubmitPerformance(r.Context(), mux.Vars(r)["namespace"], rec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, submissionResponse{ID: sub.ID, Outcome: sub.Outcome, Evicted: sub.Evicted})
}
