package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/ratelimit"

	"chatcore/internal/observability/logging"
	"chatcore/internal/observability/metrics"
)

// Sender delivers a code to one destination (an email address or phone
// number). It is the seam to the external delivery transport.
type Sender interface {
	Send(ctx context.Context, code, destination string) error
}

type Config struct {
	QueueSize      int
	Workers        int
	RatePerSecond  int
	MaxRetries     int
	InitialBackoff time.Duration
	SendTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	return c
}

type job struct {
	code        string
	destination string
}

// Dispatcher queues notifications and delivers them from a small worker
// pool, throttled and retried with exponential backoff. Notify never blocks:
// when the queue is full the notification is dropped and logged.
type Dispatcher struct {
	sender  Sender
	cfg     Config
	limiter ratelimit.Limiter
	log     *slog.Logger

	queue  chan job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(sender Sender, cfg Config, log *slog.Logger) *Dispatcher {
	cfg = cfg.withDefaults()
	if log == nil {
		log = logging.Discard()
	}
	limiter := ratelimit.NewUnlimited()
	if cfg.RatePerSecond > 0 {
		limiter = ratelimit.New(cfg.RatePerSecond, ratelimit.WithoutSlack)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		sender:  sender,
		cfg:     cfg,
		limiter: limiter,
		log:     log.With("component", "notify"),
		queue:   make(chan job, cfg.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Notify enqueues one delivery per destination. The request context is not
// carried into delivery, which outlives the request.
func (d *Dispatcher) Notify(_ context.Context, code string, destinations []string) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, dest := range destinations {
		if d.closed {
			d.log.Warn("dispatcher closed, dropping notification", "destination", dest)
			metrics.NotificationsTotal.WithLabelValues("dropped").Inc()
			continue
		}
		select {
		case d.queue <- job{code: code, destination: dest}:
		default:
			d.log.Error("notification queue full, dropping notification", "destination", dest)
			metrics.NotificationsTotal.WithLabelValues("dropped").Inc()
		}
	}
}

// Close stops accepting notifications and waits for queued ones to drain
// until ctx is done, after which in-flight deliveries are cancelled.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.queue {
		if d.ctx.Err() != nil {
			metrics.NotificationsTotal.WithLabelValues("dropped").Inc()
			continue
		}
		d.limiter.Take()
		d.deliver(j)
	}
}

func (d *Dispatcher) deliver(j job) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = d.cfg.InitialBackoff
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(d.cfg.MaxRetries)), d.ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		ctx, cancel := context.WithTimeout(d.ctx, d.cfg.SendTimeout)
		defer cancel()
		err := d.sender.Send(ctx, j.code, j.destination)
		if err != nil && errors.Is(err, ErrUndeliverable) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)

	if err != nil {
		d.log.Error("notification delivery failed", "destination", j.destination, "attempts", attempt, "error", err)
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
		return
	}
	d.log.Debug("notification delivered", "destination", j.destination, "attempts", attempt)
	metrics.NotificationsTotal.WithLabelValues("sent").Inc()
}
