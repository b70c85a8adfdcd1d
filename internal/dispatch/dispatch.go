// Package dispatch runs notification deliveries in the background so the
// lifecycle event that triggered them never waits on mail I/O.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/shineum/jobmail/internal/email"
	"github.com/shineum/jobmail/internal/metrics"
	"github.com/shineum/jobmail/internal/provider"
	"github.com/shineum/jobmail/internal/smtp"
)

// errPanic marks a delivery aborted by a provider panic.
var errPanic = errors.New("provider panicked")

// reasoner is implemented by provider errors that carry their own metric
// label.
type reasoner interface {
	Reason() string
}

// DefaultMaxInFlight bounds concurrent deliveries when no limit is given.
const DefaultMaxInFlight = 64

// Dispatcher owns every detached delivery task. Each Dispatch call gets its
// own goroutine; recipients within a task are attempted one at a time.
type Dispatcher struct {
	provider provider.Provider
	logger   *slog.Logger
	sem      *semaphore.Weighted
	limit    int

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// New creates a Dispatcher delivering through p with at most maxInFlight
// tasks running at once.
func New(p provider.Provider, maxInFlight int, logger *slog.Logger) *Dispatcher {
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		provider: p,
		logger:   logger,
		sem:      semaphore.NewWeighted(int64(maxInFlight)),
		limit:    maxInFlight,
	}
}

// Dispatch hands req to a detached task and returns immediately. The request
// is copied; the caller may reuse it. If no task can be started the
// notification is logged and dropped.
func (d *Dispatcher) Dispatch(req *email.Request) {
	if req == nil {
		return
	}
	r := *req
	id := uuid.NewString()

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		d.drop(&r, id, "stopped")
		return
	}
	if !d.sem.TryAcquire(1) {
		d.mu.Unlock()
		d.drop(&r, id, "saturated")
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	metrics.Dispatched.Inc()

	go func() {
		defer d.wg.Done()
		defer d.sem.Release(1)
		d.run(&r, id)
	}()
}

// Stop refuses new work and waits for running tasks until ctx is done.
// Tasks still running when ctx ends are left to finish on their own.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Debug("dispatcher stopped")
		return nil
	case <-ctx.Done():
		d.logger.Warn("dispatcher shutdown timeout, some deliveries may still be running")
		return ctx.Err()
	}
}

// run delivers r to each recipient in order. A failed recipient is logged
// and the next one is still attempted.
func (d *Dispatcher) run(r *email.Request, id string) {
	recipients := Recipients(r)
	logger := d.logger.With(
		"delivery_id", id,
		"provider", d.provider.Name(),
		"kind", r.Kind.String(),
		"mailpoint", r.Mailpoint.String(),
	)

	if len(recipients) == 0 {
		logger.Debug("no recipients, nothing to deliver")
		return
	}

	ctx := context.Background()
	for _, rcpt := range recipients {
		start := time.Now()
		err := d.deliver(ctx, r, rcpt)
		if err != nil {
			reason := failureReason(err)
			logger.Error("delivery failed",
				"recipient", rcpt,
				"reason", reason,
				"error", err,
			)
			metrics.DeliveryFailed.WithLabelValues(d.provider.Name(), reason).Inc()
			continue
		}
		logger.Info("delivered",
			"recipient", rcpt,
			"duration", time.Since(start),
		)
		metrics.DeliverySucceeded.WithLabelValues(d.provider.Name()).Inc()
	}
}

// deliver calls the provider, turning a panic into an error so the
// remaining recipients are still attempted.
func (d *Dispatcher) deliver(ctx context.Context, r *email.Request, rcpt string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("panic in delivery recovered",
				"recipient", rcpt,
				"panic", fmt.Sprint(rec),
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("%w: %v", errPanic, rec)
		}
	}()
	return d.provider.Deliver(ctx, r, rcpt)
}

func failureReason(err error) string {
	var r reasoner
	switch {
	case errors.Is(err, errPanic):
		return "panic"
	case errors.As(err, &r):
		return r.Reason()
	default:
		return smtp.Reason(err)
	}
}

func (d *Dispatcher) drop(r *email.Request, id, reason string) {
	d.logger.Error("notification dropped",
		"delivery_id", id,
		"reason", reason,
		"kind", r.Kind.String(),
		"id", r.ID,
		"max_in_flight", d.limit,
	)
	metrics.DispatchDropped.WithLabelValues(reason).Inc()
}

// Recipients returns the delivery targets of r in order. Server
// notifications go to the sender list as a single target; every other kind
// is split on whitespace.
func Recipients(r *email.Request) []string {
	if r.Kind == email.KindServer {
		if to := strings.TrimSpace(r.Recipients); to != "" {
			return []string{to}
		}
		return nil
	}
	return r.RecipientList()
}
