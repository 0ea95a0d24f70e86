package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/okian/ludus/internal/domain/model"
)

type createCouponRequest struct {
	Code           string    `json:"code" validate:"required|maxLen:64"`
	ChallengeIDs   []string  `json:"challenge_ids" validate:"required"`
	UsesRemaining  uint32    `json:"uses_remaining"`
	ExpirationDate time.Time `json:"expiration_date"`
}

type couponResponse struct {
	Coupon model.Coupon `json:"coupon"`
}

type couponsResponse struct {
	Coupons []model.Coupon `json:"coupons"`
}

type validateResponse struct {
	Valid bool `json:"valid"`
}

func (s *Server) handleCreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req createCouponRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.deps.CreateCoupon(r.Context(), model.Coupon{
		Code:           req.Code,
		ChallengeIDs:   req.ChallengeIDs,
		UsesRemaining:  req.UsesRemaining,
		ExpirationDate: req.ExpirationDate,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, couponResponse{Coupon: c})
}

func (s *Server) handleListCoupons(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.ListCoupons(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []model.Coupon{}
	}
	writeJSON(w, http.StatusOK, couponsResponse{Coupons: list})
}

func (s *Server) handleGetCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := s.deps.GetCoupon(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, couponResponse{Coupon: c})
}

func (s *Server) handleValidateCoupon(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ok, err := s.deps.ValidateCoupon(r.Context(), vars["code"], vars["challenge_id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{Valid: ok})
}

// handleRedeemCoupon consumes one use. Refusals map to 404/410/409/403.
func (s *Server) handleRedeemCoupon(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	c, err := s.deps.RedeemCoupon(r.Context(), vars["code"], vars["challenge_id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, couponResponse{Coupon: c})
}
