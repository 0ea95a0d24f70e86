package coupon

import (
	"errors"
	"fmt"
)

// Sentinel errors. Every refusal with a reportable reason wraps ErrRedemption.
var (
	ErrNotFound      = errors.New("coupon not found")
	ErrAlreadyExists = errors.New("coupon already exists")
	ErrInvalid       = errors.New("invalid coupon")
	ErrContention    = errors.New("coupon redemption contended, retry later")

	ErrRedemption       = errors.New("coupon redemption refused")
	ErrExpired          = fmt.Errorf("%w: expired", ErrRedemption)
	ErrExhausted        = fmt.Errorf("%w: no uses remaining", ErrRedemption)
	ErrInvalidChallenge = fmt.Errorf("%w: not valid for this challenge", ErrRedemption)
)
