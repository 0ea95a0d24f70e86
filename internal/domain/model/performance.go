// Package model contains domain models passed between layers and the
// codecs used to persist them.
package model

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/crypto/blake2b"
)

// LegacyChallengeDuration is assumed for challenges stored before durations
// were tracked.
const LegacyChallengeDuration = time.Hour

// ChallengePerformance is one challenge result inside a PerformanceRecord.
// On the wire it is the tuple [challenge_id, percentage, duration_ms]; the
// legacy two-element form omits the duration.
type ChallengePerformance struct {
	ChallengeID string
	Percentage  uint8
	DurationMs  uint64

	legacy bool
}

// MarshalJSON always writes the current three-element form.
func (c ChallengePerformance) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{c.ChallengeID, c.Percentage, c.DurationMs})
}

// UnmarshalJSON accepts both the current and the legacy tuple.
func (c *ChallengePerformance) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedChallenge, err)
	}
	if len(parts) != 2 && len(parts) != 3 {
		return fmt.Errorf("%w: got %d elements", ErrMalformedChallenge, len(parts))
	}

	var out ChallengePerformance
	if err := json.Unmarshal(parts[0], &out.ChallengeID); err != nil {
		return fmt.Errorf("%w: challenge id: %w", ErrMalformedChallenge, err)
	}
	if err := json.Unmarshal(parts[1], &out.Percentage); err != nil {
		return fmt.Errorf("%w: percentage: %w", ErrMalformedChallenge, err)
	}
	if len(parts) == 3 {
		if err := json.Unmarshal(parts[2], &out.DurationMs); err != nil {
			return fmt.Errorf("%w: duration: %w", ErrMalformedChallenge, err)
		}
	} else {
		out.DurationMs = uint64(LegacyChallengeDuration / time.Millisecond)
		out.legacy = true
	}
	*c = out
	return nil
}

// Legacy reports whether the value was decoded from the two-element form.
func (c ChallengePerformance) Legacy() bool { return c.legacy }

// PerformanceRecord is one leaderboard entry. Namespace is carried by the
// storage collection, not the payload.
type PerformanceRecord struct {
	Namespace       string                 `json:"-"`
	GamePathID      string                 `json:"game_path_id"`
	SubjectID       string                 `json:"profile_name"`
	Detail          []ChallengePerformance `json:"challenges_performance"`
	TotalChallenges int                    `json:"total_challenges"`
	Percentage      uint8                  `json:"performance_percentage"`
	RecordedAt      time.Time              `json:"date"`
}

// Validate checks the fields a submission must carry.
func (r PerformanceRecord) Validate() error {
	if r.SubjectID == "" {
		return ErrMissingSubject
	}
	if r.Percentage > 100 {
		return fmt.Errorf("%w: got %d", ErrInvalidPercentage, r.Percentage)
	}
	for _, c := range r.Detail {
		if c.Percentage > 100 {
			return fmt.Errorf("%w: challenge %s got %d", ErrInvalidPercentage, c.ChallengeID, c.Percentage)
		}
	}
	return nil
}

// TotalDuration sums the per-challenge durations.
func (r PerformanceRecord) TotalDuration() time.Duration {
	var ms uint64
	for _, c := range r.Detail {
		ms += c.DurationMs
	}
	return time.Duration(ms) * time.Millisecond //nolint:gosec // bounded by realistic play time
}

// Encode returns the canonical current-schema encoding.
func (r PerformanceRecord) Encode() ([]byte, error) {
	r.RecordedAt = r.RecordedAt.UTC()
	return json.Marshal(r)
}

// Key is the identity of the record: identical submissions share a key.
func (r PerformanceRecord) Key() (string, error) {
	b, err := r.Encode()
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// DecodePerformanceRecord decodes a stored record in either schema. legacy
// is true when the payload should be rewritten in the current schema.
func DecodePerformanceRecord(data []byte) (rec PerformanceRecord, legacy bool, err error) {
	if err = json.Unmarshal(data, &rec); err != nil {
		return PerformanceRecord{}, false, err
	}
	for _, c := range rec.Detail {
		if c.legacy {
			legacy = true
			break
		}
	}
	if !legacy {
		canonical, encErr := rec.Encode()
		if encErr != nil {
			return PerformanceRecord{}, false, encErr
		}
		legacy = !bytes.Equal(canonical, data)
	}
	return rec, legacy, nil
}

// RankedRecord is a record with its display rank and identity key.
type RankedRecord struct {
	Rank int    `json:"rank"`
	ID   string `json:"id"`
	PerformanceRecord
}
