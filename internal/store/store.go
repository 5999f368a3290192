// Package store holds the error vocabulary shared by the round and account
// store implementations in its subpackages.
package store

import "errors"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when a write loses an optimistic version check
	// or violates a uniqueness constraint.
	ErrConflict = errors.New("store: conflict")
)

// DefaultHistoryLimit is used when a history query passes a non-positive limit.
const DefaultHistoryLimit = 10

// DefaultLeaderboardLimit is used when a leaderboard query passes a non-positive limit.
const DefaultLeaderboardLimit = 10
