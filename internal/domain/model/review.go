package model

import "time"

// Review is an immutable rating of a challenge.
type Review struct {
	ID          string    `json:"id"`
	ChallengeID string    `json:"challenge_id"`
	Rating      uint8     `json:"rating"`
	Comment     string    `json:"comment,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
