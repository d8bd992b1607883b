package solve

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/pessimist/internal/exec"
	"github.com/felixgeelhaar/pessimist/internal/log"
	"github.com/felixgeelhaar/pessimist/internal/metrics"
	"github.com/felixgeelhaar/pessimist/internal/plan"
)

// Result is the outcome of one dispatched plan. Exactly one Result is
// produced per plan handed to the pool.
type Result struct {
	Plan     *plan.Plan
	Err      error
	Output   string
	Duration time.Duration
	Skipped  bool
	Worker   int
}

// Success reports whether the plan ran and passed.
func (r Result) Success() bool {
	return r.Err == nil && !r.Skipped
}

// PoolConfig configures a worker pool.
type PoolConfig struct {
	Provisioner exec.Provisioner
	Command     string
	Parallelism int
	Fast        bool

	// QueueSize bounds the plan and result channels. It must be at least the
	// number of plans dispatched before results are drained.
	QueueSize int

	Logger    *log.Logger
	Metrics   *metrics.Metrics
	Manifests *exec.ManifestWriter
}

// PoolSize clamps parallelism to at least one worker and at most two in
// fast mode, where only two plans ever run.
func PoolSize(parallelism int, fast bool) int {
	n := parallelism
	if fast && n > 2 {
		n = 2
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Pool is a fixed set of workers, each owning one environment, sharing a
// plan queue and a result queue.
type Pool struct {
	cfg     PoolConfig
	size    int
	logger  *log.Logger
	plans   chan *plan.Plan
	results chan Result

	// cancelled is written only by the aggregator through Cancel.
	cancelled atomic.Bool

	wg        sync.WaitGroup
	started   bool
	closeOnce sync.Once
}

// NewPool creates a pool. Call Start before dispatching.
func NewPool(cfg PoolConfig) *Pool {
	queue := cfg.QueueSize
	if queue < 1 {
		queue = 1
	}
	return &Pool{
		cfg:     cfg,
		size:    PoolSize(cfg.Parallelism, cfg.Fast),
		logger:  log.OrDefault(cfg.Logger),
		plans:   make(chan *plan.Plan, queue),
		results: make(chan Result, queue),
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

// Start launches the workers. Each provisions its environment immediately.
func (p *Pool) Start(ctx context.Context) {
	if p.started {
		return
	}
	p.started = true
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i+1)
	}
}

// Dispatch enqueues a plan.
func (p *Pool) Dispatch(pl *plan.Plan) {
	p.plans <- pl
}

// Results delivers results in completion order.
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Cancel stops workers from starting further plans. Plans already running
// finish; plans dequeued afterwards come back as skipped.
func (p *Pool) Cancel() {
	p.cancelled.Store(true)
}

// Cancelled reports whether Cancel was called.
func (p *Pool) Cancelled() bool {
	return p.cancelled.Load()
}

// Close shuts the plan queue and waits for every worker to dispose of its
// environment.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.plans)
		p.wg.Wait()
		close(p.results)
	})
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	logger := p.logger.With("worker", id)

	env, provErr := p.cfg.Provisioner.Create(ctx)
	if provErr != nil {
		logger.Error("failed to provision environment", "runner", p.cfg.Provisioner.Name(), "error", provErr)
	} else {
		defer func() {
			if err := env.Dispose(); err != nil {
				logger.Warn("failed to dispose environment", "error", err)
			}
		}()
	}

	for pl := range p.plans {
		switch {
		case p.cancelled.Load() || ctx.Err() != nil:
			p.emit(logger, Result{Plan: pl, Skipped: true, Worker: id})
		case provErr != nil:
			p.emit(logger, Result{Plan: pl, Err: provErr, Worker: id})
		default:
			p.emit(logger, p.execute(ctx, env, pl, id))
		}
	}
}

// execute installs the plan's pins and runs the test command. Failures are
// returned on the Result, never as a worker error.
func (p *Pool) execute(ctx context.Context, env exec.Environment, pl *plan.Plan, id int) Result {
	start := time.Now()
	var combined strings.Builder

	out, err := env.Install(ctx, pl.Requirements())
	if out != nil {
		combined.WriteString(out.Combined)
	}
	if err == nil {
		out, err = env.Run(ctx, p.cfg.Command)
		if out != nil {
			combined.WriteString(out.Combined)
		}
	}

	return Result{
		Plan:     pl,
		Err:      err,
		Output:   combined.String(),
		Duration: time.Since(start),
		Worker:   id,
	}
}

func (p *Pool) emit(logger *log.Logger, r Result) {
	kind := r.Plan.Kind().String()
	if r.Skipped {
		p.cfg.Metrics.ObserveSkipped(kind)
		logger.Debug("skipped plan", "plan", r.Plan.Title())
	} else {
		p.cfg.Metrics.ObservePlan(kind, r.Success(), r.Duration)
		if r.Err != nil && r.Output != "" {
			logger.Debug("plan output", "plan", r.Plan.Title(), "output", r.Output)
		}
	}

	if _, err := p.cfg.Manifests.Record(r.Plan.Title(), kind, r.Plan.Requirements(), r.Output, r.Duration, r.Skipped, r.Err); err != nil {
		logger.Warn("failed to write run manifest", "plan", r.Plan.Title(), "error", err)
	}

	p.results <- r
}
