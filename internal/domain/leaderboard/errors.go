package leaderboard

import "errors"

// ErrCapacityExceeded is returned when a submission does not outrank the
// worst retained record of a full leaderboard. Nothing is written.
var ErrCapacityExceeded = errors.New("leaderboard capacity exceeded")
