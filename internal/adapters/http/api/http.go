// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gookit/validate"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/ludus/internal/adapters/http/site"
	"github.com/okian/ludus/internal/adapters/http/swagger"
	"github.com/okian/ludus/internal/domain/leaderboard"
	"github.com/okian/ludus/internal/domain/model"
	"github.com/okian/ludus/pkg/logger"
	"github.com/okian/ludus/pkg/metrics"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	Ping(ctx context.Context) error
	GetStats() map[string]any

	SubmitPerformance(ctx context.Context, namespace string, rec model.PerformanceRecord) (leaderboard.Submission, error)
	GetLeaderboard(ctx context.Context, namespace string) ([]model.RankedRecord, error)

	RecordPresence(ctx context.Context, namespace string) (int, error)
	GetPresence(ctx context.Context, namespace string) (int, error)

	CreateCoupon(ctx context.Context, c model.Coupon) (model.Coupon, error)
	GetCoupon(ctx context.Context, code string) (model.Coupon, error)
	ListCoupons(ctx context.Context) ([]model.Coupon, error)
	ValidateCoupon(ctx context.Context, code, challengeID string) (bool, error)
	RedeemCoupon(ctx context.Context, code, challengeID string) (model.Coupon, error)

	SubmitReview(ctx context.Context, r model.Review) (model.Review, error)
	GetReviews(ctx context.Context, challengeID string) ([]model.Review, error)
	GetAllReviews(ctx context.Context) ([]model.Review, error)
	GetAverageRating(ctx context.Context, challengeID string) (float64, error)

	GetProfile(ctx context.Context, id string) (model.Profile, error)
	SaveProfile(ctx context.Context, p model.Profile) (model.Profile, error)
	ListProfiles(ctx context.Context) ([]model.Profile, error)

	SendChatMessage(ctx context.Context, channel string, msg model.ChatMessage) (model.ChatMessage, error)
	ReceiveChatMessages(ctx context.Context, channel string) ([]model.ChatMessage, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	deps    Dependencies
	log     logger.Logger
	version string
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithLogger sets the logger used for 5xx responses.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithVersion sets the version reported by /healthz.
func WithVersion(v string) Option {
	return func(s *Server) {
		if v != "" {
			s.version = v
		}
	}
}

// NewServer creates a new API server over deps.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{deps: deps, log: logger.Nop(), version: "dev"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the complete route table.
func (s *Server) Router(ctx context.Context) *mux.Router {
	r := mux.NewRouter()
	r.Use(MetricsMiddleware)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})).Methods(http.MethodGet)
	swagger.Register(ctx, r)

	v1 := r.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/leaderboard", s.handleGetLeaderboard).Methods(http.MethodGet)
	v1.HandleFunc("/leaderboard/{namespace}", s.handleGetLeaderboard).Methods(http.MethodGet)
	v1.HandleFunc("/performance-record", s.handleSubmitPerformance).Methods(http.MethodPost)
	v1.HandleFunc("/performance-record/{namespace}", s.handleSubmitPerformance).Methods(http.MethodPost)

	v1.HandleFunc("/challenges/{id}/presence", s.handleGetPresence).Methods(http.MethodGet)
	v1.HandleFunc("/challenges/{id}/presence/record", s.handleRecordPresence).Methods(http.MethodPost)

	v1.HandleFunc("/coupons", s.handleCreateCoupon).Methods(http.MethodPost)
	v1.HandleFunc("/coupons", s.handleListCoupons).Methods(http.MethodGet)
	v1.HandleFunc("/coupons/{code}", s.handleGetCoupon).Methods(http.MethodGet)
	v1.HandleFunc("/coupons/{code}/validate/{challenge_id}", s.handleValidateCoupon).Methods(http.MethodGet)
	v1.HandleFunc("/coupons/{code}/redeem/{challenge_id}", s.handleRedeemCoupon).Methods(http.MethodPost)

	v1.HandleFunc("/reviews", s.handleSubmitReview).Methods(http.MethodPost)
	v1.HandleFunc("/reviews", s.handleAllReviews).Methods(http.MethodGet)
	v1.HandleFunc("/reviews/{challenge_id}", s.handleReviews).Methods(http.MethodGet)
	v1.HandleFunc("/reviews/{challenge_id}/average", s.handleAverage).Methods(http.MethodGet)

	v1.HandleFunc("/profiles", s.handleListProfiles).Methods(http.MethodGet)
	v1.HandleFunc("/profiles", s.handleSaveProfile).Methods(http.MethodPost)
	v1.HandleFunc("/profiles/{id}", s.handleGetProfile).Methods(http.MethodGet)
	v1.HandleFunc("/profiles/{id}", s.handleSaveProfile).Methods(http.MethodPost, http.MethodPut)

	v1.HandleFunc("/chat/send/{channel}", s.handleSendChat).Methods(http.MethodPost)
	v1.HandleFunc("/chat/receive/{channel}", s.handleReceiveChat).Methods(http.MethodGet)

	site.Register(ctx, r)
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to its status and writes the error body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error(r.Context(), "request failed",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Error(err))
	}
	writeJSON(w, status, errorResponse{Code: code, Message: err.Error()})
}

// decodeBody reads a JSON body into dst and applies its validate tags.
func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return badRequest("invalid json", err)
	}
	v := validate.Struct(dst)
	if !v.Validate() {
		return fmt.Errorf("%w: %s", ErrBadRequest, v.Errors.One())
	}
	return nil
}
