package notifications

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"chatwarden/internal/models"
	"chatwarden/internal/observability"
)

const maxBackoff = 30 * time.Second

var (
	// ErrQueueFull is returned by Enqueue when every slot is taken. The marker is
	// untouched, so the violation is still picked up by catch-up.
	ErrQueueFull = errors.New("dispatch queue full")
	// ErrDispatcherClosed is returned by Enqueue after Close.
	ErrDispatcherClosed = errors.New("dispatcher closed")
)

// MarkerAdvancer moves a (moderator, rule) last-seen marker forward.
type MarkerAdvancer interface {
	Advance(ctx context.Context, moderatorID int64, ruleID uint, ts time.Time) error
}

// Job is one pending delivery.
type Job struct {
	ModeratorID int64
	RuleID      uint
	DetectedAt  time.Time
	Payload     Payload
}

// DispatcherConfig sizes the worker pool and retry policy.
type DispatcherConfig struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	Backoff     time.Duration
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	return c
}

// Dispatcher decouples routing from the transport. Workers send each job with
// retry and advance the marker only after the transport accepted it.
type Dispatcher struct {
	transport Transport
	markers   MarkerAdvancer
	cfg       DispatcherConfig
	queue     chan Job

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. Call Start to run its workers.
func NewDispatcher(transport Transport, markers MarkerAdvancer, cfg DispatcherConfig) *Dispatcher {
	cfg = cfg.withDefaults()
	return &Dispatcher{
		transport: transport,
		markers:   markers,
		cfg:       cfg,
		queue:     make(chan Job, cfg.QueueSize),
	}
}

// Start launches the workers. They stop when ctx is cancelled or after Close drains the queue.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-d.queue:
			if !ok {
				return
			}
			observability.DispatchQueueDepth.Dec()
			if err := d.Deliver(ctx, job); err != nil {
				observability.LogAsyncOperationError(ctx, "dispatch", err, map[string]interface{}{
					"moderator_id": job.ModeratorID,
					"rule_id":      job.RuleID,
					"violation_id": job.Payload.ViolationID,
				})
			}
		}
	}
}

// Enqueue hands a job to the workers without blocking.
func (d *Dispatcher) Enqueue(job Job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- job:
		observability.DispatchQueueDepth.Inc()
		return nil
	default:
		observability.NotificationsTotal.WithLabelValues(string(job.Payload.Category), "dropped").Inc()
		return ErrQueueFull
	}
}

// Deliver sends synchronously with retry, then advances the marker to the
// violation's detected_at. A failed send leaves the marker where it was.
func (d *Dispatcher) Deliver(ctx context.Context, job Job) error {
	category := string(job.Payload.Category)

	var err error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		err = d.transport.Send(ctx, job.ModeratorID, job.Payload)
		if err == nil {
			observability.DispatchAttempts.WithLabelValues("success").Inc()
			break
		}
		observability.DispatchAttempts.WithLabelValues("failure").Inc()
		if attempt == d.cfg.MaxAttempts {
			break
		}
		if waitErr := sleepCtx(ctx, backoffFor(d.cfg.Backoff, attempt)); waitErr != nil {
			err = errors.Join(err, waitErr)
			break
		}
	}
	if err != nil {
		observability.NotificationsTotal.WithLabelValues(category, "failed").Inc()
		return models.NewTransportError(job.ModeratorID, err)
	}

	observability.NotificationsTotal.WithLabelValues(category, "delivered").Inc()
	if err := d.markers.Advance(ctx, job.ModeratorID, job.RuleID, job.DetectedAt); err != nil {
		// Delivered but unmarked: the next catch-up resends it.
		observability.L().WarnContext(ctx, "advance last-seen failed after delivery",
			slog.Int64("moderator_id", job.ModeratorID),
			slog.Uint64("rule_id", uint64(job.RuleID)),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// Close stops accepting jobs and waits for the workers to drain the queue.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// Pending reports queued jobs not yet picked up by a worker.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

func backoffFor(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base << (attempt - 1)
	if delay <= 0 || delay > maxBackoff {
		return maxBackoff
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
