package process

import (
	"context"
	"sync"
)

// Pool limits the number of concurrently running processes.
type Pool struct {
	max    int
	logger Logger

	mu      sync.Mutex
	running map[*Process]struct{}
	pending int
}

// NewPool returns a Pool allowing max processes at once. max <= 0 means 1.
func NewPool(max int) *Pool {
	if max <= 0 {
		max = 1
	}
	return &Pool{max: max, logger: noopLogger{}, running: make(map[*Process]struct{})}
}

// SetLogger sets the logger for the pool and the processes it starts.
func (p *Pool) SetLogger(logger Logger) {
	p.logger = logger
}

// Start launches cfg unless the pool is full, in which case it returns
// ErrPoolFull. cfg.OnStop still runs when the process exits.
func (p *Pool) Start(ctx context.Context, cfg Config) (*Process, error) {
	p.mu.Lock()
	if len(p.running)+p.pending >= p.max {
		p.mu.Unlock()
		return nil, ErrPoolFull
	}
	p.pending++
	p.mu.Unlock()

	var proc *Process
	ready := make(chan struct{})
	onStop := cfg.OnStop
	cfg.OnStop = func(err error) {
		<-ready
		p.mu.Lock()
		delete(p.running, proc)
		p.mu.Unlock()
		if onStop != nil {
			onStop(err)
		}
	}

	proc, err := Start(ctx, cfg, p.logger)

	p.mu.Lock()
	p.pending--
	if err == nil {
		p.running[proc] = struct{}{}
	}
	p.mu.Unlock()
	close(ready)

	if err != nil {
		return nil, err
	}
	return proc, nil
}

// Running returns the number of live processes.
func (p *Pool) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.running) + p.pending
}

// StopAll stops every live process and waits for them.
func (p *Pool) StopAll() {
	p.mu.Lock()
	procs := make([]*Process, 0, len(p.running))
	for proc := range p.running {
		procs = append(procs, proc)
	}
	p.mu.Unlock()

	for _, proc := range procs {
		if err := proc.Stop(); err != nil {
			p.logger.Warn("stopping process failed", "error", err)
		}
	}
}
