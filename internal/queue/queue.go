package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// rateWindow is the trailing window over which task starts are counted.
const rateWindow = time.Second

// Operation is one unit of retryable work. It is invoked once per attempt;
// a non-nil error makes the attempt count against the task's retry budget.
type Operation func(ctx context.Context) (any, error)

// RetryHint lets an operation error stretch the next backoff beyond the
// exponential default, e.g. to honor a provider's advertised rate-limit
// window.
type RetryHint interface {
	error
	RetryAfter() time.Duration
}

// Options tune a single submission.
type Options struct {
	// MaxAttempts caps how many times the operation runs before the
	// future rejects with the last error. Zero means one attempt.
	MaxAttempts int
	// RetryDelay overrides the queue's base backoff for this task.
	RetryDelay time.Duration
	// Delay holds the task back from its first start. A delayed task does
	// not occupy a concurrency slot while it waits.
	Delay time.Duration
}

// Config bounds the queue.
type Config struct {
	// Concurrency is the maximum number of operations in flight.
	Concurrency int
	// RatePerSecond is the maximum number of operation starts within any
	// trailing one-second window.
	RatePerSecond int
	// RetryDelay is the base backoff; attempt n waits RetryDelay * 2^(n-1).
	RetryDelay time.Duration
}

// Stats is a point-in-time snapshot for observability.
type Stats struct {
	Depth         int  `json:"depth"`
	Delayed       int  `json:"delayed"`
	Running       int  `json:"running"`
	Concurrency   int  `json:"concurrency"`
	RatePerSecond int  `json:"rate_per_second"`
	WindowStarts  int  `json:"window_starts"`
	Paused        bool `json:"paused"`
}

type task struct {
	op          Operation
	ctx         context.Context
	priority    int
	attempts    int
	maxAttempts int
	retryDelay  time.Duration
	delay       time.Duration
	future      *Future
}

// Queue executes submitted operations under two simultaneous constraints:
// at most Concurrency operations running and at most RatePerSecond starts
// in any trailing one-second window. Higher-priority tasks always start
// before lower-priority ones while both are pending; equal priority gives
// no ordering guarantee.
//
// All queue state is mutated under one mutex and never across a suspension
// point. Waiting for a rate-window slot or a backoff is done with timers
// that re-enter the scheduling loop, so one stalled task never blocks the
// rest of the queue.
type Queue struct {
	cfg    Config
	logger *zap.Logger

	mu           sync.Mutex
	pending      []*task
	timers       map[*task]*time.Timer
	running      int
	starts       []time.Time
	paused       bool
	drainWaiters []chan struct{}
}

// New creates a queue. Concurrency and RatePerSecond must be positive.
func New(cfg Config, logger *zap.Logger) *Queue {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	return &Queue{
		cfg:    cfg,
		logger: logger,
		timers: make(map[*task]*time.Timer),
	}
}

// Submit enqueues op and returns a future that settles with the
// operation's result, or with the last error once attempts are exhausted,
// or with ErrCleared if the task is discarded before it starts.
func (q *Queue) Submit(ctx context.Context, op Operation, priority int, opts Options) *Future {
	t := &task{
		op:          op,
		ctx:         ctx,
		priority:    priority,
		maxAttempts: opts.MaxAttempts,
		retryDelay:  opts.RetryDelay,
		delay:       opts.Delay,
		future:      newFuture(),
	}
	if t.maxAttempts <= 0 {
		t.maxAttempts = 1
	}
	if t.retryDelay <= 0 {
		t.retryDelay = q.cfg.RetryDelay
	}

	q.mu.Lock()
	q.insertLocked(t)
	q.dispatchLocked()
	q.mu.Unlock()

	return t.future
}

// SubmitBatch submits every operation at the same priority and returns the
// futures in submission order. Combine with WaitAll for allSettled
// semantics.
func (q *Queue) SubmitBatch(ctx context.Context, ops []Operation, priority int, opts Options) []*Future {
	futures := make([]*Future, len(ops))
	for i, op := range ops {
		futures[i] = q.Submit(ctx, op, priority, opts)
	}
	return futures
}

// Pause stops starting new tasks. Tasks already running continue.
func (q *Queue) Pause() {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()
	q.logger.Info("Queue paused")
}

// Resume restarts the scheduling loop.
func (q *Queue) Resume() {
	q.mu.Lock()
	q.paused = false
	q.dispatchLocked()
	q.mu.Unlock()
	q.logger.Info("Queue resumed")
}

// Clear rejects and discards every task that has not started yet,
// including tasks waiting on an artificial delay or a retry backoff.
// Running tasks are unaffected and still settle normally.
func (q *Queue) Clear() {
	q.mu.Lock()
	discarded := make([]*task, 0, len(q.pending)+len(q.timers))
	discarded = append(discarded, q.pending...)
	q.pending = nil
	for t, timer := range q.timers {
		timer.Stop()
		discarded = append(discarded, t)
	}
	q.timers = make(map[*task]*time.Timer)
	q.notifyIfIdleLocked()
	q.mu.Unlock()

	for _, t := range discarded {
		t.future.reject(ErrCleared)
	}
	q.logger.Info("Queue cleared", zap.Int("discarded", len(discarded)))
}

// Drain blocks until the queue is empty and no task is running, or until
// ctx is canceled.
func (q *Queue) Drain(ctx context.Context) error {
	q.mu.Lock()
	if q.idleLocked() {
		q.mu.Unlock()
		return nil
	}
	waiter := make(chan struct{})
	q.drainWaiters = append(q.drainWaiters, waiter)
	q.mu.Unlock()

	select {
	case <-waiter:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of queue state. It has no side effects beyond
// pruning expired rate-window entries.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pruneWindowLocked(time.Now())
	return Stats{
		Depth:         len(q.pending),
		Delayed:       len(q.timers),
		Running:       q.running,
		Concurrency:   q.cfg.Concurrency,
		RatePerSecond: q.cfg.RatePerSecond,
		WindowStarts:  len(q.starts),
		Paused:        q.paused,
	}
}

func (q *Queue) insertLocked(t *task) {
	q.pending = append(q.pending, t)
	sort.Slice(q.pending, func(i, j int) bool {
		return q.pending[i].priority > q.pending[j].priority
	})
}

func (q *Queue) idleLocked() bool {
	return len(q.pending) == 0 && len(q.timers) == 0 && q.running == 0
}

func (q *Queue) notifyIfIdleLocked() {
	if !q.idleLocked() {
		return
	}
	for _, waiter := range q.drainWaiters {
		close(waiter)
	}
	q.drainWaiters = nil
}

// pruneWindowLocked drops start records older than the rate window. The
// window is evicted lazily on each scheduling attempt, so a burst right
// after an idle period can marginally exceed the nominal cap; the cap on
// starts within the trailing window itself is never exceeded.
func (q *Queue) pruneWindowLocked(now time.Time) {
	cutoff := now.Add(-rateWindow)
	idx := 0
	for idx < len(q.starts) && !q.starts[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		q.starts = q.starts[idx:]
	}
}

// dispatchLocked admits pending tasks while a concurrency slot and a
// rate-window slot are both available. It never blocks: when the window is
// full it arms a timer for the oldest entry's expiry and returns.
func (q *Queue) dispatchLocked() {
	for !q.paused && len(q.pending) > 0 && q.running < q.cfg.Concurrency {
		now := time.Now()
		q.pruneWindowLocked(now)
		if len(q.starts) >= q.cfg.RatePerSecond {
			wait := q.starts[0].Add(rateWindow).Sub(now)
			if wait <= 0 {
				wait = time.Millisecond
			}
			time.AfterFunc(wait, q.kick)
			return
		}

		t := q.pending[0]
		q.pending = q.pending[1:]

		if t.delay > 0 {
			delay := t.delay
			t.delay = 0
			q.holdLocked(t, delay)
			continue
		}

		q.running++
		q.starts = append(q.starts, now)
		go q.execute(t)
	}
	q.notifyIfIdleLocked()
}

func (q *Queue) kick() {
	q.mu.Lock()
	q.dispatchLocked()
	q.mu.Unlock()
}

// holdLocked parks a task off the pending list for d and re-enters it into
// scheduling when the timer fires. A held task holds no concurrency slot.
func (q *Queue) holdLocked(t *task, d time.Duration) {
	q.timers[t] = time.AfterFunc(d, func() {
		q.mu.Lock()
		if _, ok := q.timers[t]; !ok {
			// Cleared while parked; the future was already rejected.
			q.mu.Unlock()
			return
		}
		delete(q.timers, t)
		q.insertLocked(t)
		q.dispatchLocked()
		q.mu.Unlock()
	})
}

func (q *Queue) execute(t *task) {
	value, err := t.op(t.ctx)

	// Settle the future before releasing the concurrency slot so a
	// Drain that observes the idle queue never races a pending Wait.
	retrying := false
	if err == nil {
		t.future.resolve(value)
	} else {
		t.attempts++
		if t.attempts >= t.maxAttempts {
			t.future.reject(err)
			q.logger.Debug("Task failed permanently",
				zap.Int("attempts", t.attempts),
				zap.Error(err))
		} else {
			retrying = true
		}
	}

	q.mu.Lock()
	q.running--
	if retrying {
		// Exponential backoff: retryDelay * 2^(attempts-1), attempts
		// counted from 1 on the first failure. A retried task re-enters
		// the pending list at its original priority. An error carrying a
		// RetryHint can stretch the wait to the provider's window.
		backoff := t.retryDelay << (t.attempts - 1)
		var hint RetryHint
		if errors.As(err, &hint) && hint.RetryAfter() > backoff {
			backoff = hint.RetryAfter()
		}
		q.holdLocked(t, backoff)
		q.logger.Debug("Task failed, retry scheduled",
			zap.Int("attempt", t.attempts),
			zap.Int("max_attempts", t.maxAttempts),
			zap.Duration("backoff", backoff),
			zap.Error(err))
	}
	q.dispatchLocked()
	q.mu.Unlock()
}
