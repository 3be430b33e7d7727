package monitoring

import (
	"log"
	"sync/atomic"
	"time"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SolveRecord summarises one background alignment solve.
type SolveRecord struct {
	Observations int
	Converged    bool
	Accepted     bool
	X0, Y0, Z0   float64
	AzDeg        float64
	XYSD, ZSD    float64
	AzSDDeg      float64
	Elapsed      time.Duration
}

var (
	solves   atomic.Uint64
	accepted atomic.Uint64
	rejected atomic.Uint64
)

// RecordSolve logs a one-line summary of a solve and updates the counters
// returned by SolveStats.
func RecordSolve(r SolveRecord) {
	solves.Add(1)
	if !r.Converged {
		Logf("[solve] n=%d diverged after %v", r.Observations, r.Elapsed)
		return
	}
	verdict := "rejected"
	if r.Accepted {
		accepted.Add(1)
		verdict = "accepted"
	} else {
		rejected.Add(1)
	}
	Logf("[solve] n=%d %s x0=%.3f y0=%.3f z0=%.3f az=%.2f° sd(xy)=%.3f sd(z)=%.3f sd(az)=%.2f° in %v",
		r.Observations, verdict, r.X0, r.Y0, r.Z0, r.AzDeg, r.XYSD, r.ZSD, r.AzSDDeg, r.Elapsed)
}

// SolveStats returns the number of solves recorded, and how many of the
// converged ones were accepted or rejected.
func SolveStats() (total, acc, rej uint64) {
	return solves.Load(), accepted.Load(), rejected.Load()
}
