package positioning

import (
	"context"
	"math"

	"github.com/banshee-data/geoalign/internal/monitoring"
	"github.com/banshee-data/geoalign/internal/units"
)

// Start launches the re-estimation worker. It is a no-op if the worker is
// already running.
func (p *Provider) Start(ctx context.Context) {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx, p.done)
	opsf("worker started")
}

// Close stops the worker and waits for it to exit. An in-flight solve
// completes first.
func (p *Provider) Close() {
	p.runMu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	opsf("worker stopped")
}

// Recompute asks the worker to solve even if the store has not changed.
func (p *Provider) Recompute() {
	p.forced.Store(true)
	p.signal()
}

// Solves returns how many times the worker has run the estimator.
func (p *Provider) Solves() uint64 { return p.solves.Load() }

// signal wakes the worker without blocking. Wake-ups coalesce.
func (p *Provider) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Provider) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	timer := p.clock.NewTimer(p.cfg.WorkerTimeout)
	defer timer.Stop()

	lastCount := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		case <-timer.C():
		}

		n := p.store.Len()
		forced := p.forced.Swap(false)
		if n != lastCount || forced {
			lastCount = n
			if p.store.HasPositionAndOrientation() {
				p.solve()
			}
		}

		if !timer.Stop() {
			select {
			case <-timer.C():
			default:
			}
		}
		timer.Reset(p.cfg.WorkerTimeout)
	}
}

// solve runs the estimator over a snapshot of the store and publishes the
// result if it is precise enough.
func (p *Provider) solve() {
	gen := p.generation.Load()
	obs := p.store.Snapshot()
	start := p.clock.Now()

	p.solves.Add(1)
	converged := p.estimator.Adjust(obs)
	params := p.estimator.Parameters()
	accepted := converged && p.cfg.accepts(params)

	p.estMu.Lock()
	if p.generation.Load() != gen {
		p.estMu.Unlock()
		diagf("discarding solve over %d observations started before reset", len(obs))
		return
	}
	p.estimate = Estimate{
		Parameters:   params,
		Converged:    converged,
		Accepted:     accepted,
		Observations: len(obs),
		Time:         start,
	}
	p.accepted = accepted
	if accepted {
		p.published = params
		p.matrix = TransformMatrix(params)
	}
	p.estMu.Unlock()

	if !accepted {
		diagf("solve over %d observations not accepted (converged=%v): %s", len(obs), converged, params)
	}
	monitoring.RecordSolve(monitoring.SolveRecord{
		Observations: len(obs),
		Converged:    converged,
		Accepted:     accepted,
		X0:           params.X0,
		Y0:           params.Y0,
		Z0:           params.Z0,
		AzDeg:        units.Degrees(params.Az),
		XYSD:         math.Sqrt(params.XYSigma2),
		ZSD:          math.Sqrt(params.ZSigma2),
		AzSDDeg:      units.Degrees(math.Sqrt(params.AzSigma2)),
		Elapsed:      p.clock.Since(start),
	})
}
