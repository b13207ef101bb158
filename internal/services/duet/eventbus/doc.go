// Package eventbus is the in-process surface of duet domain events.
//
// The engine, the voter and the watchdog publish here; the websocket hub and
// the watchdog subscribe. Delivery is synchronous and a panicking handler
// never blocks the others.
package eventbus
