package queue

import (
	"context"
	"errors"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/sflow/user-access/internal/api/metrics"
	"github.com/sflow/user-access/internal/core/domain"
	"github.com/sflow/user-access/internal/core/ports"
)

var _ ports.DeletionQueue = (*Reconciler)(nil)

const (
	defaultWorkers        = 4
	defaultMaxAttempts    = 5
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxElapsed     = 5 * time.Minute
	defaultAttemptTimeout = 10 * time.Second
	channelBuffer         = 256
)

var (
	// ErrQueueFull is returned by Enqueue when the target worker has no room left.
	ErrQueueFull = errors.New("reconciler queue full")
	// ErrReconcilerStopped is returned by Enqueue once Run has returned.
	ErrReconcilerStopped = errors.New("reconciler stopped")
)

// Deleter removes an upstream account.
type Deleter interface {
	DeleteUser(ctx context.Context, subjectID string) error
}

type Options struct {
	Workers        int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxElapsed     time.Duration
	AttemptTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = defaultWorkers
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = defaultMaxAttempts
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = defaultInitialBackoff
	}
	if o.MaxElapsed <= 0 {
		o.MaxElapsed = defaultMaxElapsed
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = defaultAttemptTimeout
	}
	return o
}

// Reconciler retries upstream account deletions that failed on the request
// path. Tasks are sharded by subject id so retries for one subject never run
// concurrently.
type Reconciler struct {
	mu      sync.RWMutex
	stopped bool
	workers []chan ports.DeletionTask
	deleter Deleter
	opts    Options
	log     zerolog.Logger
}

func NewReconciler(deleter Deleter, opts Options, log zerolog.Logger) *Reconciler {
	opts = opts.withDefaults()
	r := &Reconciler{
		workers: make([]chan ports.DeletionTask, opts.Workers),
		deleter: deleter,
		opts:    opts,
		log:     log,
	}
	for i := range r.workers {
		r.workers[i] = make(chan ports.DeletionTask, channelBuffer)
	}
	return r
}

// Run starts the workers and blocks until ctx is cancelled and every worker
// has returned. From then on Enqueue refuses tasks, and tasks still buffered
// are logged as abandoned.
func (r *Reconciler) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i, ch := range r.workers {
		wg.Add(1)
		go func(id int, ch <-chan ports.DeletionTask) {
			defer wg.Done()
			r.runWorker(ctx, id, ch)
		}(i, ch)
	}
	wg.Wait()
	r.stop()
	return nil
}

// Enqueue hands task to the worker responsible for its subject. It never
// blocks.
func (r *Reconciler) Enqueue(task ports.DeletionTask) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.stopped {
		metrics.ReconcileAttemptsTotal.WithLabelValues("dropped").Inc()
		return ErrReconcilerStopped
	}

	idx := r.shardIndex(task.SubjectID)
	select {
	case r.workers[idx] <- task:
		metrics.ReconcileQueueDepth.WithLabelValues(strconv.Itoa(idx)).Inc()
		return nil
	default:
		metrics.ReconcileAttemptsTotal.WithLabelValues("dropped").Inc()
		return ErrQueueFull
	}
}

// stop closes the reconciler to new tasks and abandons whatever is buffered.
// Enqueue sends under the read lock, so nothing lands in a channel after the
// write lock is taken here.
func (r *Reconciler) stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()

	for id, ch := range r.workers {
		for drained := false; !drained; {
			select {
			case task := <-ch:
				metrics.ReconcileQueueDepth.WithLabelValues(strconv.Itoa(id)).Dec()
				r.abandon(id, task, 0, ErrReconcilerStopped)
			default:
				drained = true
			}
		}
	}
}

func (r *Reconciler) shardIndex(subjectID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(subjectID))
	return int(h.Sum32() % uint32(len(r.workers)))
}

func (r *Reconciler) runWorker(ctx context.Context, id int, ch <-chan ports.DeletionTask) {
	depth := metrics.ReconcileQueueDepth.WithLabelValues(strconv.Itoa(id))
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-ch:
			depth.Dec()
			// select picks at random when both are ready.
			if ctx.Err() != nil {
				r.abandon(id, task, 0, ctx.Err())
				continue
			}
			r.reconcile(ctx, id, task)
		}
	}
}

func (r *Reconciler) abandon(workerID int, task ports.DeletionTask, attempts int, reason error) {
	metrics.ReconcileAttemptsTotal.WithLabelValues("abandoned").Inc()
	r.log.Error().
		Err(reason).
		Int64("user_id", task.UserID).
		Str("subject", task.SubjectID).
		Int("attempts", attempts).
		Int("worker_id", workerID).
		Msg("upstream deletion abandoned, manual cleanup required")
}

func (r *Reconciler) reconcile(ctx context.Context, workerID int, task ports.DeletionTask) {
	attempts := 0
	op := func() error {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, r.opts.AttemptTimeout)
		defer cancel()

		err := r.deleter.DeleteUser(attemptCtx, task.SubjectID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrIdentityProviderUnavailable) {
			return backoff.Permanent(err)
		}
		metrics.ReconcileAttemptsTotal.WithLabelValues("retry").Inc()
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.InitialBackoff
	b.MaxElapsedTime = r.opts.MaxElapsed

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.opts.MaxAttempts-1)), ctx))
	if err == nil {
		metrics.ReconcileAttemptsTotal.WithLabelValues("success").Inc()
		r.log.Info().
			Int64("user_id", task.UserID).
			Str("subject", task.SubjectID).
			Int("attempts", attempts).
			Msg("upstream deletion reconciled")
		return
	}

	r.abandon(workerID, task, attempts, err)
}
