// Package procedures holds the server-side operations clients and the
// watchdog call: creating and joining sessions, turn commands, level votes,
// forced resync, round advance, disconnect detection, stuck-session repair and
// the end-of-session report.
//
// Every operation is either one store transaction or one engine command, so a
// retried or duplicated call is safe: engine commands carry request ids and
// forced transitions carry the round they expect.
package procedures
