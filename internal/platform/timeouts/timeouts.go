// Package timeouts defines shared timeout constants used across duet.
// Centralizing these values keeps the turn protocol deadlines discoverable.
package timeouts

import "time"

// RankingCall caps a single ranking capability request. It must stay well
// below a human turn so the random fallback never stalls the session.
const RankingCall = 1500 * time.Millisecond

// AnalysisCall caps the relationship-analysis capability request.
const AnalysisCall = 20 * time.Second

// EvaluationStall is the soft deadline after which the watchdog may force a
// turn advance out of the evaluation phase.
const EvaluationStall = 45 * time.Second

// Liveness is how long a participant may go without a ping before it is
// marked disconnected.
const Liveness = 20 * time.Second

// ReconcileInterval is the fixed watchdog and client poll period.
const ReconcileInterval = 2 * time.Second

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long servers wait for in-flight requests during
// graceful shutdown.
const Shutdown = 5 * time.Second
