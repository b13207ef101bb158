// Package session owns the phase and turn state machine of a two-participant
// session.
//
// Decide validates a command against the current State and returns the
// actions it produces; Fold applies one action to a State. Both are pure so
// the server, the reconciliation watchdog, and client mirrors all derive the
// same state from the same action log.
package session
