package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

type presenceResponse struct {
	ChallengeID string `json:"challenge_id"`
	Count       int    `json:"count"`
}

func (s *Server) handleRecordPresence(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	n, err := s.deps.RecordPresence(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, presenceResponse{ChallengeID: id, Count: n})
}

func (s *Server) handleGetPresence(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	n, err := s.deps.GetPresence(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, presenceResponse{ChallengeID: id, Count: n})
}
