// Package storage defines persistence interfaces for the duet service.
//
// It covers sessions and their participants, the action journal with its
// change feed, responses, level votes and the prompt inventory.
// Implementations (e.g., SQLite) live in subpackages.
//
// Common error types:
//   - ErrNotFound: requested record is missing
//   - ErrConflict: a compare-and-set write lost to a concurrent writer
//   - ErrSessionFull: both seats of a session are taken
//   - ErrVoteRoundStale, ErrVoteAlreadyCast: level vote rejected
package storage
