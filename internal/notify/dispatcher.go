package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"studentauth/internal/auth"
	"studentauth/internal/logging"
)

// Delivery outcomes reported to the Recorder.
const (
	OutcomeQueued    = "queued"
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
	OutcomeDropped   = "dropped"
)

// Recorder receives delivery metrics.
type Recorder interface {
	RecordNotification(kind, outcome string)
	SetQueueDepth(n int)
}

type nopRecorder struct{}

func (nopRecorder) RecordNotification(string, string) {}
func (nopRecorder) SetQueueDepth(int)                 {}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// Workers is the number of delivery goroutines. Default 2.
	Workers int
	// MaxRetries is the number of retries after the first failed send. Default 3.
	MaxRetries uint64
	// RetryBase is the first backoff interval, doubled on every retry. Default 500ms.
	RetryBase time.Duration
	// SendTimeout bounds a single send attempt. Default 10s.
	SendTimeout time.Duration
}

func (c *DispatcherConfig) setDefaults() {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
}

// Dispatcher implements auth.Notifier. Notify only enqueues; background
// workers render and send with exponential backoff.
type Dispatcher struct {
	queue    Queue
	mailer   Mailer
	cfg      DispatcherConfig
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

var _ auth.Notifier = (*Dispatcher)(nil)

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithDispatcherRecorder sets the metrics recorder.
func WithDispatcherRecorder(r Recorder) DispatcherOption {
	return func(d *Dispatcher) {
		if r != nil {
			d.recorder = r
		}
	}
}

// NewDispatcher creates a Dispatcher. Call Start to begin delivery.
func NewDispatcher(queue Queue, mailer Mailer, cfg DispatcherConfig, opts ...DispatcherOption) (*Dispatcher, error) {
	if queue == nil {
		return nil, oops.Errorf("notification queue is required")
	}
	if mailer == nil {
		return nil, oops.Errorf("mailer is required")
	}
	cfg.setDefaults()

	d := &Dispatcher{
		queue:    queue,
		mailer:   mailer,
		cfg:      cfg,
		logger:   slog.Default(),
		recorder: nopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Notify enqueues n for background delivery.
func (d *Dispatcher) Notify(ctx context.Context, n auth.Notification) error {
	job := NewJob(n, d.now())
	if err := d.queue.Push(ctx, job); err != nil {
		d.recorder.RecordNotification(string(n.Kind), OutcomeDropped)
		return oops.With("job_id", job.ID).With("kind", string(n.Kind)).Wrap(err)
	}
	d.recorder.RecordNotification(string(n.Kind), OutcomeQueued)
	return nil
}

// Start launches the workers. They run until Stop is called or ctx is done.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return oops.Errorf("dispatcher already running")
	}
	ctx, d.cancel = context.WithCancel(ctx)
	d.running = true

	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.work(ctx, i)
	}
	d.logger.Info("notification dispatcher started", "workers", d.cfg.Workers)
	return nil
}

// Stop cancels the workers and waits for in-flight deliveries to return.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.cancel()
	d.running = false
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Info("notification dispatcher stopped")
}

func (d *Dispatcher) work(ctx context.Context, worker int) {
	defer d.wg.Done()
	logger := d.logger.With("worker", worker)

	for {
		job, err := d.queue.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, ErrQueueClosed) {
				logger.Info("notification queue closed, worker exiting")
				return
			}
			logging.LogError(logger, "notification queue pop failed", err)
			if !sleep(ctx, d.cfg.RetryBase) {
				return
			}
			continue
		}
		if job == nil {
			continue
		}

		if n, err := d.queue.Len(ctx); err == nil {
			d.recorder.SetQueueDepth(n)
		}
		d.deliver(ctx, logger, job)
	}
}

// deliver renders and sends job, retrying send failures with exponential
// backoff. Render failures are not retried. The job is acknowledged once it
// is delivered or given up on; a delivery cut short by Stop is left
// unacknowledged.
func (d *Dispatcher) deliver(ctx context.Context, logger *slog.Logger, job *Job) {
	kind := string(job.Notification.Kind)

	email, err := Render(job.Notification)
	if err != nil {
		d.recorder.RecordNotification(kind, OutcomeFailed)
		logging.LogError(logger, "notification render failed", oops.With("job_id", job.ID).Wrap(err))
		d.ack(ctx, logger, job)
		return
	}

	attempts := 0
	backoff := retry.WithMaxRetries(d.cfg.MaxRetries, retry.NewExponential(d.cfg.RetryBase))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
		defer cancel()

		if err := d.mailer.Send(sendCtx, email); err != nil {
			logger.WarnContext(ctx, "notification send failed, will retry",
				"job_id", job.ID,
				"kind", kind,
				"attempt", attempts,
				"error", err,
			)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			logger.Warn("notification delivery interrupted by shutdown", "job_id", job.ID, "kind", kind)
			return
		}
		d.recorder.RecordNotification(kind, OutcomeFailed)
		logging.LogError(logger, "notification delivery failed", oops.
			With("job_id", job.ID).
			With("kind", kind).
			With("attempts", attempts).
			Wrap(err))
		d.ack(ctx, logger, job)
		return
	}

	d.recorder.RecordNotification(kind, OutcomeDelivered)
	logger.Debug("notification delivered", "job_id", job.ID, "kind", kind, "attempts", attempts)
	d.ack(ctx, logger, job)
}

func (d *Dispatcher) ack(ctx context.Context, logger *slog.Logger, job *Job) {
	if err := d.queue.Ack(context.WithoutCancel(ctx), job); err != nil {
		logging.LogError(logger, "notification ack failed", err)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
