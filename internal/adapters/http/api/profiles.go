package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/okian/ludus/internal/domain/model"
)

type profileRequest struct {
	ID   string            `json:"id"`
	Name string            `json:"name" validate:"required|maxLen:128"`
	XP   uint64            `json:"xp"`
	Data map[string]string `json:"data"`
}

type profileResponse struct {
	Profile model.Profile `json:"profile"`
}

type profilesResponse struct {
	Profiles []model.Profile `json:"profiles"`
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.GetProfile(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{Profile: p})
}

// handleSaveProfile upserts a profile. A path id wins over the body id.
func (s *Server) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if id := mux.Vars(r)["id"]; id != "" {
		req.ID = id
	}
	p, err := s.deps.SaveProfile(r.Context(), model.Profile{
		ID:   req.ID,
		Name: req.Name,
		XP:   req.XP,
		Data: req.Data,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{Profile: p})
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.ListProfiles(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []model.Profile{}
	}
	writeJSON(w, http.StatusOK, profilesResponse{Profiles: list})
}
