// Package engine executes session commands.
//
// Execute loads authoritative state, runs the pure decider, folds the
// resulting actions and commits them together with the changed session
// fields. Lost compare-and-set races are retried with backoff against freshly
// loaded state.
package engine
