package model

import "errors"

// Sentinel errors for model validation and decoding.
var (
	ErrMalformedChallenge = errors.New("challenge performance must be [id, percentage] or [id, percentage, duration_ms]")
	ErrInvalidPercentage  = errors.New("percentage must be between 0 and 100")
	ErrMissingSubject     = errors.New("profile name is required")
)
