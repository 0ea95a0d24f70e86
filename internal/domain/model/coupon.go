package model

import (
	"slices"
	"time"
)

// Coupon is a redeemable grant scoped to a set of challenges.
type Coupon struct {
	Code           string    `json:"code"`
	ChallengeIDs   []string  `json:"challenge_ids"`
	UsesRemaining  uint32    `json:"uses_remaining"`
	ExpirationDate time.Time `json:"expiration_date"`
	CreatedAt      time.Time `json:"created_at"`
}

// AppliesTo reports whether the coupon may be used for challengeID.
func (c Coupon) AppliesTo(challengeID string) bool {
	return slices.Contains(c.ChallengeIDs, challengeID)
}

// ExpiredAt reports whether the coupon is no longer valid at now.
func (c Coupon) ExpiredAt(now time.Time) bool {
	return !now.Before(c.ExpirationDate)
}
