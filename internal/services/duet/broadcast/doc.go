// Package broadcast fans committed session actions out to the websocket peers
// of each session.
//
// The hub keeps one room per session. A room owns a single feed worker that
// reads the store's change feed after the last delivered seq and writes each
// action to every peer in the room. The worker starts with the first peer and
// stops with the last one; a failed feed is resubscribed from the room cursor
// with exponential backoff, so peers see every seq in order at least once and
// fold duplicates away on their side.
//
// Each peer writes from its own goroutine through a bounded queue. A peer
// that falls a full queue behind is disconnected and catches up from the
// action log when it reconnects.
package broadcast
