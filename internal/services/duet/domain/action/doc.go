// Package action defines the immutable, ordered records that describe every
// state-changing occurrence in a session.
//
// Actions are appended to a per-session log, fanned out to both participants,
// and folded into session state. Each action type carries exactly one typed
// payload; Decode matches them exhaustively so a new type cannot be added
// without the compiler-visible switch changing with it.
package action
