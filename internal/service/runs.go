package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/you/go-flightgrid/internal/results"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var (
	ErrSearchRunning = errors.New("a search is already running")
	ErrRunNotFound   = errors.New("search run not found")
)

type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusDone      RunStatus = "done"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

// RunInfo describes a sweep without its rows.
type RunInfo struct {
	ID          string      `json:"id"`
	Constraints Constraints `json:"constraints"`
	Status      RunStatus   `json:"status"`
	Summary     Summary     `json:"summary"`
	Error       string      `json:"error,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
	FinishedAt  *time.Time  `json:"finished_at,omitempty"`
}

// RunStore keeps runs and their rows beyond the life of the process.
type RunStore interface {
	StartRun(ctx context.Context, info RunInfo) error
	FinishRun(ctx context.Context, info RunInfo) error
	Sink(runID string) results.Sink
	LoadRun(ctx context.Context, runID string) (RunInfo, error)
	LoadRows(ctx context.Context, runID string) ([]results.Row, error)
	ListRuns(ctx context.Context) ([]RunInfo, error)
}

// SinkFactory returns the sink for a new run's table, e.g. a CSV file.
type SinkFactory func(runID string, c Constraints) (results.Sink, error)

// Run is one sweep, live or finished.
type Run struct {
	Table *results.Table

	mu   sync.RWMutex
	info RunInfo
	done chan struct{}
}

func (r *Run) Info() RunInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.info
}

// Done is closed when the sweep has finished.
func (r *Run) Done() <-chan struct{} { return r.done }

// Runner owns the sweeps of the process. Only one sweep runs at a time, so
// the remote API still sees strictly sequential traffic.
type Runner struct {
	search  *SearchService
	store   RunStore
	sinks   SinkFactory
	gate    *semaphore.Weighted
	log     *zap.Logger
	baseCtx context.Context

	mu   sync.RWMutex
	runs map[string]*Run
	wg   sync.WaitGroup
}

// NewRunner wires a runner. store and sinks may be nil. Background runs
// started with Start are cancelled when baseCtx is.
func NewRunner(baseCtx context.Context, search *SearchService, store RunStore, sinks SinkFactory, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		search:  search,
		store:   store,
		sinks:   sinks,
		gate:    semaphore.NewWeighted(1),
		log:     log.Named("runner"),
		baseCtx: baseCtx,
		runs:    make(map[string]*Run),
	}
}

// Execute runs a sweep in the foreground and returns when it is finished.
func (r *Runner) Execute(ctx context.Context, c Constraints) (*Run, error) {
	run, err := r.prepare(ctx, c)
	if err != nil {
		return nil, err
	}
	r.wg.Add(1)
	return run, r.execute(ctx, run, c)
}

// Start launches a sweep in the background.
func (r *Runner) Start(c Constraints) (*Run, error) {
	run, err := r.prepare(r.baseCtx, c)
	if err != nil {
		return nil, err
	}
	r.wg.Add(1)
	go func() { _ = r.execute(r.baseCtx, run, c) }()
	return run, nil
}

// Wait blocks until every background sweep has returned.
func (r *Runner) Wait() { r.wg.Wait() }

func (r *Runner) prepare(ctx context.Context, c Constraints) (*Run, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if !r.gate.TryAcquire(1) {
		return nil, ErrSearchRunning
	}

	id := uuid.NewString()
	var sinks []results.Sink
	if r.sinks != nil {
		s, err := r.sinks(id, c)
		if err != nil {
			r.gate.Release(1)
			return nil, err
		}
		if s != nil {
			sinks = append(sinks, s)
		}
	}
	info := RunInfo{ID: id, Constraints: c, Status: StatusRunning, StartedAt: time.Now().UTC()}
	if r.store != nil {
		if err := r.store.StartRun(ctx, info); err != nil {
			r.gate.Release(1)
			return nil, err
		}
		sinks = append(sinks, r.store.Sink(id))
	}

	run := &Run{
		Table: results.NewTable(results.MultiSink(sinks...)),
		info:  info,
		done:  make(chan struct{}),
	}
	r.mu.Lock()
	r.runs[id] = run
	r.mu.Unlock()
	return run, nil
}

func (r *Runner) execute(ctx context.Context, run *Run, c Constraints) error {
	defer r.wg.Done()
	defer r.gate.Release(1)
	defer close(run.done)
	defer run.Table.Close()

	log := r.log.With(zap.String("run_id", run.info.ID))
	log.Info("search started", zap.String("from", c.DepartureID), zap.String("to", c.ArrivalID))

	sum, err := r.search.Run(ctx, c, run.Table)

	finished := time.Now().UTC()
	run.mu.Lock()
	run.info.Summary = sum
	run.info.FinishedAt = &finished
	switch {
	case err == nil:
		run.info.Status = StatusDone
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		run.info.Status = StatusCancelled
		run.info.Error = err.Error()
	default:
		run.info.Status = StatusFailed
		run.info.Error = err.Error()
	}
	info := run.info
	run.mu.Unlock()

	if r.store != nil {
		// the sweep context may be gone already
		if err := r.store.FinishRun(context.WithoutCancel(ctx), info); err != nil {
			log.Warn("recording run result failed", zap.Error(err))
		} else {
			// recorded runs are served from the store from now on
			r.mu.Lock()
			delete(r.runs, info.ID)
			r.mu.Unlock()
		}
	}
	log.Info("search finished", zap.String("status", string(info.Status)), zap.Int("rows", sum.Rows))
	return err
}

// Get returns a run of this process that is still live, or finished
// without a store to record it.
func (r *Runner) Get(id string) (*Run, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	return run, ok
}

// Info returns a run's description, live or from the store.
func (r *Runner) Info(ctx context.Context, id string) (RunInfo, error) {
	if run, ok := r.Get(id); ok {
		return run.Info(), nil
	}
	if r.store == nil {
		return RunInfo{}, ErrRunNotFound
	}
	return r.store.LoadRun(ctx, id)
}

// Rows returns a run's rows in append order, live or from the store.
func (r *Runner) Rows(ctx context.Context, id string) ([]results.Row, error) {
	if run, ok := r.Get(id); ok {
		return run.Table.Rows(), nil
	}
	if r.store == nil {
		return nil, ErrRunNotFound
	}
	if _, err := r.store.LoadRun(ctx, id); err != nil {
		return nil, err
	}
	return r.store.LoadRows(ctx, id)
}

// List returns all known runs, newest first.
func (r *Runner) List(ctx context.Context) ([]RunInfo, error) {
	seen := map[string]bool{}
	var out []RunInfo

	r.mu.RLock()
	for id, run := range r.runs {
		seen[id] = true
		out = append(out, run.Info())
	}
	r.mu.RUnlock()

	if r.store != nil {
		stored, err := r.store.ListRuns(ctx)
		if err != nil {
			return nil, err
		}
		for _, info := range stored {
			if !seen[info.ID] {
				out = append(out, info)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}
