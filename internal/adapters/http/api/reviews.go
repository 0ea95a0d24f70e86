package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/okian/ludus/internal/domain/model"
)

type reviewRequest struct {
	ChallengeID string `json:"challenge_id" validate:"required"`
	Rating      uint8  `json:"rating" validate:"required|min:1|max:5"`
	Comment     string `json:"comment" validate:"maxLen:2000"`
}

type reviewResponse struct {
	Review model.Review `json:"review"`
}

type reviewsResponse struct {
	Reviews []model.Review `json:"reviews"`
}

type averageResponse struct {
	ChallengeID string  `json:"challenge_id"`
	Average     float64 `json:"average"`
}

func (s *Server) handleSubmitReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	rev, err := s.deps.SubmitReview(r.Context(), model.Review{
		ChallengeID: req.ChallengeID,
		Rating:      req.Rating,
		Comment:     req.Comment,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reviewResponse{Review: rev})
}

func (s *Server) handleReviews(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.GetReviews(r.Context(), mux.Vars(r)["challenge_id"])
	s.writeReviews(w, r, list, err)
}

func (s *Server) handleAllReviews(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.GetAllReviews(r.Context())
	s.writeReviews(w, r, list, err)
}

func (s *Server) writeReviews(w http.ResponseWriter, r *http.Request, list []model.Review, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []model.Review{}
	}
	writeJSON(w, http.StatusOK, reviewsResponse{Reviews: list})
}

func (s *Server) handleAverage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["challenge_id"]
	avg, err := s.deps.GetAverageRating(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, averageResponse{ChallengeID: id, Average: avg})
}
