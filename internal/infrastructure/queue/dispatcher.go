package queue

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicore/ehr-api/internal/api/metrics"
	"github.com/clinicore/ehr-api/internal/core/ports"
)

const (
	defaultWorkers = 4
	channelBuffer  = 256

	defaultMaxAttempts = 3
	baseBackoff        = 2 * time.Second
)

// Dispatcher delivers notifications asynchronously through a fixed set of
// workers, sharded by recipient email so messages to the same address keep
// their order. Delivery is best effort: each notification gets a few retries
// with exponential backoff, then a log line. The workflow transition that
// produced it has already committed either way.
type Dispatcher struct {
	workers     []chan ports.Notification
	notifier    ports.Notifier
	maxAttempts int
	log         zerolog.Logger
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers and
// maxAttempts delivery attempts per notification. Non-positive arguments fall
// back to the defaults.
func NewDispatcher(numWorkers, maxAttempts int, notifier ports.Notifier, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	d := &Dispatcher{
		workers:     make([]chan ports.Notification, numWorkers),
		notifier:    notifier,
		maxAttempts: maxAttempts,
		log:         log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan ports.Notification, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		go d.runWorker(ctx, i, ch)
	}
}

// Enqueue hands a notification to the worker responsible for its recipient.
// Non-blocking up to channelBuffer capacity.
func (d *Dispatcher) Enqueue(n ports.Notification) {
	d.workers[d.shardIndex(n.Email)] <- n
}

// shardIndex maps a recipient deterministically to a worker index.
func (d *Dispatcher) shardIndex(email string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(email))
	return int(h.Sum32()) % len(d.workers)
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan ports.Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-ch:
			if !ok {
				return
			}
			d.deliver(ctx, id, n)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, workerID int, n ports.Notification) {
	var err error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		if err = d.notifier.Send(ctx, n); err == nil {
			metrics.NotificationsTotal.WithLabelValues(string(n.Kind), "sent").Inc()
			return
		}
		if attempt < d.maxAttempts {
			metrics.NotificationRetriesTotal.WithLabelValues(string(n.Kind)).Inc()
			select {
			case <-ctx.Done():
				return
			case <-time.After(baseBackoff << (attempt - 1)):
			}
		}
	}

	metrics.NotificationsTotal.WithLabelValues(string(n.Kind), "failed").Inc()
	d.log.Error().Err(err).
		Str("kind", string(n.Kind)).
		Str("email", n.Email).
		Int("worker_id", workerID).
		Int("attempts", d.maxAttempts).
		Msg("notification delivery failed")
}
