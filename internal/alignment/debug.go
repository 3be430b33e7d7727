package alignment

import (
	"io"
	"log"
	"sync/atomic"
)

// The streams are swapped atomically so SetLogWriters may be called while
// the re-estimation worker is logging.
var (
	opsLogger   atomic.Pointer[log.Logger]
	diagLogger  atomic.Pointer[log.Logger]
	traceLogger atomic.Pointer[log.Logger]
)

// SetLogWriters configures the three logging streams for the alignment
// package. Pass nil for any writer to disable that stream.
func SetLogWriters(ops, diag, trace io.Writer) {
	opsLogger.Store(newLogger("[alignment] ", ops))
	diagLogger.Store(newLogger("[alignment] ", diag))
	traceLogger.Store(newLogger("[alignment] ", trace))
}

func newLogger(prefix string, w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)
}

// opsf logs to the ops stream (failed solves, recovered panics).
func opsf(format string, args ...interface{}) {
	if l := opsLogger.Load(); l != nil {
		l.Printf(format, args...)
	}
}

// diagf logs to the diag stream (stage outcomes, reweighting summaries).
func diagf(format string, args ...interface{}) {
	if l := diagLogger.Load(); l != nil {
		l.Printf(format, args...)
	}
}

// tracef logs to the trace stream (per-iteration corrections).
func tracef(format string, args ...interface{}) {
	if l := traceLogger.Load(); l != nil {
		l.Printf(format, args...)
	}
}
