package scheduler

import (
	"context"
	"log/slog"
	stdsync "sync"
	"time"
)

// Prober is the network-reachability event source: it probes the server
// on an interval and reports edges (reachable <-> unreachable) to the
// subscriber. The very first successful probe also reports, so a daemon
// started online gets its initial reachability signal.
type Prober struct {
	probe    func(ctx context.Context) error
	interval time.Duration
	onChange func(reachable bool)
	logger   *slog.Logger

	mu        stdsync.Mutex
	started   bool
	reachable bool
	known     bool
	stopCh    chan struct{}
	wg        stdsync.WaitGroup
}

// NewProber creates a prober. probe should be cheap (a health endpoint).
func NewProber(probe func(ctx context.Context) error, interval time.Duration, onChange func(bool), logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{probe: probe, interval: interval, onChange: onChange, logger: logger}
}

// Start begins probing. Idempotent.
func (p *Prober) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	p.stopCh = make(chan struct{})
	p.wg.Add(1)
	go p.loop(p.stopCh)
}

// Stop halts probing. Idempotent.
func (p *Prober) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	close(p.stopCh)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Prober) loop(stopCh chan struct{}) {
	defer p.wg.Done()

	p.check()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.check()
		case <-stopCh:
			return
		}
	}
}

func (p *Prober) check() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err := p.probe(ctx)
	cancel()
	reachable := err == nil

	p.mu.Lock()
	changed := !p.known || reachable != p.reachable
	p.known = true
	p.reachable = reachable
	p.mu.Unlock()

	if !changed {
		return
	}
	p.logger.Info("reachability changed", "reachable", reachable)
	if p.onChange != nil {
		p.onChange(reachable)
	}
}

// Reachable returns the last observed state.
func (p *Prober) Reachable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reachable
}
