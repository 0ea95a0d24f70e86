package coupon

import (
	"time"

	"github.com/okian/ludus/internal/domain/model"
)

// State is the redemption state of a coupon for one challenge at one instant.
type State int

const (
	StateValid State = iota
	StateExpired
	StateExhausted
	StateNotApplicable
	StateNotFound
)

func (s State) String() string {
	switch s {
	case StateValid:
		return "valid"
	case StateExpired:
		return "expired"
	case StateExhausted:
		return "exhausted"
	case StateNotApplicable:
		return "invalid_challenge"
	case StateNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Err returns the error reported for a redemption refused in state s.
func (s State) Err() error {
	switch s {
	case StateValid:
		return nil
	case StateExpired:
		return ErrExpired
	case StateExhausted:
		return ErrExhausted
	case StateNotApplicable:
		return ErrInvalidChallenge
	default:
		return ErrNotFound
	}
}

// Classify returns the state of c for challengeID at now. Scope is checked
// first so a wrong challenge is reported whatever the remaining uses.
func Classify(c *model.Coupon, challengeID string, now time.Time) State {
	switch {
	case c == nil:
		return StateNotFound
	case !c.AppliesTo(challengeID):
		return StateNotApplicable
	case c.ExpiredAt(now):
		return StateExpired
	case c.UsesRemaining == 0:
		return StateExhausted
	default:
		return StateValid
	}
}
