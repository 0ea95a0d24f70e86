package api

import (
	"errors"
	"fmt"
	"net/http"

	service "github.com/okian/ludus/internal/app"
	"github.com/okian/ludus/internal/domain/chat"
	"github.com/okian/ludus/internal/domain/coupon"
	"github.com/okian/ludus/internal/domain/leaderboard"
	"github.com/okian/ludus/internal/domain/model"
	"github.com/okian/ludus/internal/domain/profile"
	"github.com/okian/ludus/internal/domain/review"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// errorMappings is checked in order; the first match wins.
var errorMappings = []errorMapping{
	{ErrBadRequest, http.StatusBadRequest, "bad_request"},
	{model.ErrMalformedChallenge, http.StatusBadRequest, "bad_request"},
	{model.ErrInvalidPercentage, http.StatusBadRequest, "bad_request"},
	{model.ErrMissingSubject, http.StatusBadRequest, "bad_request"},
	{review.ErrInvalidRating, http.StatusBadRequest, "bad_request"},
	{review.ErrMissingChallenge, http.StatusBadRequest, "bad_request"},
	{coupon.ErrInvalid, http.StatusBadRequest, "bad_request"},
	{profile.ErrMissingID, http.StatusBadRequest, "bad_request"},
	{chat.ErrMissingChannel, http.StatusBadRequest, "bad_request"},
	{chat.ErrInvalidMessage, http.StatusBadRequest, "bad_request"},

	{leaderboard.ErrCapacityExceeded, http.StatusConflict, "capacity_exceeded"},

	{coupon.ErrNotFound, http.StatusNotFound, "not_found"},
	{profile.ErrNotFound, http.StatusNotFound, "not_found"},
	{coupon.ErrAlreadyExists, http.StatusConflict, "already_exists"},
	{coupon.ErrExpired, http.StatusGone, "expired"},
	{coupon.ErrExhausted, http.StatusConflict, "exhausted"},
	{coupon.ErrInvalidChallenge, http.StatusForbidden, "invalid_challenge"},
	{coupon.ErrContention, http.StatusServiceUnavailable, "contention"},

	{service.ErrNotStarted, http.StatusServiceUnavailable, "unavailable"},
}

// statusFor maps a domain error to an HTTP status and a stable code.
// Anything unknown, infrastructure failures included, is a 500.
func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

func badRequest(msg string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrBadRequest, msg, err)
}
