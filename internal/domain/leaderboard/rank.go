package leaderboard

import (
	"cmp"
	"slices"

	"github.com/okian/ludus/internal/domain/model"
)

type entry struct {
	key string
	rec model.PerformanceRecord
}

// outranks reports whether a is strictly better than b by rank key:
// percentage, then the more recent date. Equal rank keys never outrank.
func outranks(a, b model.PerformanceRecord) bool {
	if a.Percentage != b.Percentage {
		return a.Percentage > b.Percentage
	}
	return a.RecordedAt.After(b.RecordedAt)
}

// compareEntries is the total display order, best first. Subject and key
// only separate records whose rank keys are equal.
func compareEntries(a, b entry) int {
	if a.rec.Percentage != b.rec.Percentage {
		return cmp.Compare(b.rec.Percentage, a.rec.Percentage)
	}
	if c := b.rec.RecordedAt.Compare(a.rec.RecordedAt); c != 0 {
		return c
	}
	if c := cmp.Compare(a.rec.SubjectID, b.rec.SubjectID); c != 0 {
		return c
	}
	return cmp.Compare(a.key, b.key)
}

func sortEntries(entries []entry) {
	slices.SortFunc(entries, compareEntries)
}

// rankEntries converts sorted entries to ranked records. Equal percentages
// share a rank and ranks stay consecutive (1, 1, 2, ...).
func rankEntries(entries []entry) []model.RankedRecord {
	out := make([]model.RankedRecord, len(entries))
	rank := 0
	for i, e := range entries {
		if i == 0 || e.rec.Percentage != entries[i-1].rec.Percentage {
			rank++
		}
		out[i] = model.RankedRecord{Rank: rank, ID: e.key, PerformanceRecord: e.rec}
	}
	return out
}
