// Package batch implements the continuous batching scheduler in front of
// the inference backend. Concurrent callers enqueue requests; a single
// scheduler goroutine collects them over a short window, partitions them by
// generation parameters, and fans the results back out through one-shot
// handles. The backend is not re-entrant, so workers serialize on a shared
// inference mutex: the batcher buys concurrency and amortized queuing, not
// parallel decode.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	gwerrors "github.com/blueberrycongee/inferd/pkg/errors"
	"github.com/blueberrycongee/inferd/pkg/types"
)

// InferFunc is the text-in/text-out inference primitive the scheduler
// drives. It must only ever be called with the inference mutex held.
type InferFunc func(ctx context.Context, prompt string, params types.GenerationParams) (string, error)

// Config tunes the scheduler. Zero values fall back to the defaults.
type Config struct {
	// MaxBatchSize caps how many requests one collection window gathers.
	MaxBatchSize int

	// Window is how long the scheduler waits for the batch to fill after
	// the first request arrives.
	Window time.Duration

	// RequestTimeout is the per-request deadline covering queue wait and
	// inference together.
	RequestTimeout time.Duration

	// QueueSize bounds the request channel. A full queue blocks callers
	// until space frees or their deadline expires.
	QueueSize int
}

func (c Config) withDefaults() Config {
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = 4
	}
	if c.Window <= 0 {
		c.Window = 100 * time.Millisecond
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	return c
}

// outcome is what a resolved request delivers to its waiter.
type outcome struct {
	response string
	err      error
}

// request is one queued generation. The handle (done + once) is single
// shot: whichever of scheduler resolution, timeout, or cancellation fires
// first wins, later resolutions are dropped.
type request struct {
	id         string
	prompt     string
	params     types.GenerationParams
	enqueuedAt time.Time
	ctx        context.Context

	once sync.Once
	done chan outcome
}

// resolve delivers the result exactly once.
func (r *request) resolve(response string, err error) {
	r.once.Do(func() {
		r.done <- outcome{response: response, err: err}
	})
}

// Observer receives scheduler measurements as they happen. The metrics
// package satisfies it; a nil observer disables reporting.
type Observer interface {
	ObserveBatch(size int)
	SetQueueDepth(n int)
}

// Scheduler is the continuous batcher.
type Scheduler struct {
	infer    InferFunc
	inferMu  *sync.Mutex
	logger   *slog.Logger
	observer Observer
	cfg      Config

	queue     chan *request
	queueSize atomic.Int64

	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	totalRequests  atomic.Int64
	totalBatches   atomic.Int64
	totalBatchTime atomic.Int64 // milliseconds
}

// Option customizes scheduler construction.
type Option func(*Scheduler)

// WithLogger sets the scheduler's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithInferMutex shares an externally owned inference mutex. Components
// that call the backend outside the batcher must pass the same mutex.
func WithInferMutex(mu *sync.Mutex) Option {
	return func(s *Scheduler) {
		s.inferMu = mu
	}
}

// WithObserver reports batch sizes and queue depth to an observer.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) {
		s.observer = o
	}
}

// New builds and starts a scheduler around the inference primitive.
func New(infer InferFunc, cfg Config, opts ...Option) (*Scheduler, error) {
	if infer == nil {
		return nil, fmt.Errorf("infer function is required")
	}
	cfg = cfg.withDefaults()

	s := &Scheduler{
		infer:   infer,
		cfg:     cfg,
		queue:   make(chan *request, cfg.QueueSize),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.inferMu == nil {
		s.inferMu = &sync.Mutex{}
	}

	go s.run()
	return s, nil
}

// Submit enqueues a generation and blocks until it resolves, its deadline
// expires, or ctx is canceled. The deadline covers both queue wait and
// inference; a request whose deadline fires while queued is dropped by the
// scheduler without touching the backend.
func (s *Scheduler) Submit(ctx context.Context, prompt string, params types.GenerationParams) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	req := &request{
		id:         uuid.NewString(),
		prompt:     prompt,
		params:     params,
		enqueuedAt: time.Now(),
		ctx:        reqCtx,
		done:       make(chan outcome, 1),
	}

	select {
	case s.queue <- req:
		s.noteQueue(1)
		s.totalRequests.Add(1)
	case <-reqCtx.Done():
		return "", s.deadlineError(reqCtx, req)
	case <-s.stop:
		return "", gwerrors.NewInferenceFailedError("batch", "scheduler is shut down")
	}

	select {
	case out := <-req.done:
		return out.response, out.err
	case <-reqCtx.Done():
		// The scheduler may still be holding the request; mark the handle
		// resolved so a late inference result is discarded.
		err := s.deadlineError(reqCtx, req)
		req.resolve("", err)
		return "", err
	}
}

// noteQueue tracks the queue depth and mirrors it to the observer.
func (s *Scheduler) noteQueue(delta int64) {
	n := s.queueSize.Add(delta)
	if s.observer != nil {
		s.observer.SetQueueDepth(int(n))
	}
}

// deadlineError distinguishes the request deadline from caller
// cancellation.
func (s *Scheduler) deadlineError(ctx context.Context, req *request) error {
	if ctx.Err() == context.DeadlineExceeded {
		return gwerrors.NewQueueTimeoutError("batch",
			fmt.Sprintf("request %s timed out after %s", req.id, s.cfg.RequestTimeout))
	}
	return ctx.Err()
}

// Stats reports the monotone counters and the instantaneous queue depth.
func (s *Scheduler) Stats() types.BatchStats {
	requests := s.totalRequests.Load()
	batches := s.totalBatches.Load()
	var avg float64
	if batches > 0 {
		avg = float64(requests) / float64(batches)
	}
	return types.BatchStats{
		TotalRequests:    requests,
		TotalBatches:     batches,
		TotalBatchTimeMS: s.totalBatchTime.Load(),
		AvgBatchSize:     avg,
		QueueSize:        int(s.queueSize.Load()),
	}
}

// Close stops the scheduler. Requests already collected finish; requests
// still queued are resolved with a shutdown error.
func (s *Scheduler) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
		<-s.stopped
	})
}

// run is the scheduler loop: block for the first request, collect more
// until the window closes or the batch fills, then dispatch.
func (s *Scheduler) run() {
	defer close(s.stopped)
	for {
		select {
		case req := <-s.queue:
			s.noteQueue(-1)
			batch := s.collect(req)
			s.dispatch(batch)
		case <-s.stop:
			s.drain()
			return
		}
	}
}

// collect gathers requests for one batch, starting from the first arrival.
func (s *Scheduler) collect(first *request) []*request {
	batch := []*request{first}
	window := time.NewTimer(s.cfg.Window)
	defer window.Stop()

	for len(batch) < s.cfg.MaxBatchSize {
		select {
		case req := <-s.queue:
			s.noteQueue(-1)
			batch = append(batch, req)
		case <-window.C:
			return batch
		case <-s.stop:
			return batch
		}
	}
	return batch
}

// dispatch partitions the batch by exact parameter equality, preserving
// arrival order inside each partition, and runs the partitions.
func (s *Scheduler) dispatch(batch []*request) {
	start := time.Now()
	s.totalBatches.Add(1)
	if s.observer != nil {
		s.observer.ObserveBatch(len(batch))
	}

	var order []types.GenerationParams
	partitions := make(map[types.GenerationParams][]*request)
	for _, req := range batch {
		if _, seen := partitions[req.params]; !seen {
			order = append(order, req.params)
		}
		partitions[req.params] = append(partitions[req.params], req)
	}

	for _, key := range order {
		s.runPartition(partitions[key])
	}

	elapsed := time.Since(start)
	s.totalBatchTime.Add(elapsed.Milliseconds())
	s.logger.Debug("batch dispatched",
		"size", len(batch),
		"partitions", len(order),
		"elapsed", elapsed)
}

// runPartition resolves every request in one parameter group in arrival
// order. Worker fan-out would only queue on the inference mutex, so the
// group runs as a sequential loop; a batched backend later changes this
// method alone. A panic from the inference primitive errors every
// still-unresolved handle in the group instead of killing the scheduler.
func (s *Scheduler) runPartition(group []*request) {
	for _, req := range group {
		if err := s.runOne(req); err != nil {
			for _, sibling := range group {
				sibling.resolve("", err)
			}
			s.logger.Error("inference panic, partition failed",
				"size", len(group),
				"error", err)
			return
		}
	}
}

// runOne executes a single request against the backend under the inference
// mutex and resolves its handle. A request whose deadline already fired is
// resolved with a timeout without calling the backend; a deadline that
// fires mid-inference discards the late result via the one-shot handle.
// The returned error is non-nil only when the backend panicked.
func (s *Scheduler) runOne(req *request) (fatal error) {
	if err := req.ctx.Err(); err != nil {
		req.resolve("", s.deadlineError(req.ctx, req))
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			fatal = gwerrors.NewInferenceFailedError("batch", fmt.Sprintf("inference panic: %v", r))
			req.resolve("", fatal)
		}
	}()

	response, err := func() (string, error) {
		s.inferMu.Lock()
		defer s.inferMu.Unlock() // release even if the backend panics
		return s.infer(req.ctx, req.prompt, req.params)
	}()

	if err != nil {
		req.resolve("", err)
		return nil
	}
	req.resolve(response, nil)
	return nil
}

// drain errors out everything still queued at shutdown.
func (s *Scheduler) drain() {
	for {
		select {
		case req := <-s.queue:
			s.noteQueue(-1)
			req.resolve("", gwerrors.NewInferenceFailedError("batch", "scheduler is shut down"))
		default:
			return
		}
	}
}
