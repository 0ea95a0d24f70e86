package model

import "time"

// Profile is a player's stored profile.
type Profile struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	XP        uint64            `json:"xp"`
	Data      map[string]string `json:"data,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}
