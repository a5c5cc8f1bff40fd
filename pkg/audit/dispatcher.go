package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/platinummonkey/stockroom/pkg/observability"
)

// DefaultBufferSize is used when NewDispatcher is given a non-positive size
const DefaultBufferSize = 1024

// writeTimeout bounds a single sink write
const writeTimeout = 5 * time.Second

// Dispatcher hands entries to a sink on a background goroutine. Submit never
// blocks: when the buffer is full the entry is dropped and counted.
type Dispatcher struct {
	sink    Logger
	logger  *observability.Logger
	metrics *observability.Metrics

	ch        chan *Entry
	done      chan struct{}
	finished  chan struct{}
	dropped atomic.Uint64
	failed  atomic.Uint64

	// mu orders Submit's closed check and send against Close
	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts a dispatcher writing to sink. metrics may be nil.
func NewDispatcher(sink Logger, bufferSize int, logger *observability.Logger, metrics *observability.Metrics) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	d := &Dispatcher{
		sink:     sink,
		logger:   logger,
		metrics:  metrics,
		ch:       make(chan *Entry, bufferSize),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.finished)

	for {
		select {
		case entry := <-d.ch:
			d.write(entry)
		case <-d.done:
			for {
				select {
				case entry := <-d.ch:
					d.write(entry)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) write(entry *Entry) {
	defer observability.RecoverPanic(d.logger, "audit dispatcher")
	d.observeDepth()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := d.sink.Log(ctx, entry); err != nil {
		d.failed.Add(1)
		d.count(observability.OutcomeFailure)
		d.logger.WithError(err).
			WithField("action", entry.Action).
			WithField("endpoint", entry.Endpoint).
			Error("Failed to write audit entry")
		return
	}
	d.count(observability.OutcomeSuccess)
}

// Submit queues entry for writing. It reports false when the entry was dropped.
func (d *Dispatcher) Submit(entry *Entry) bool {
	if d == nil {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped.Add(1)
		d.count(observability.OutcomeDropped)
		return false
	}

	select {
	case d.ch <- entry:
		d.observeDepth()
		return true
	default:
		d.dropped.Add(1)
		d.count(observability.OutcomeDropped)
		d.logger.WithField("action", entry.Action).
			WithField("endpoint", entry.Endpoint).
			Warn("Audit buffer full, entry dropped")
		return false
	}
}

// Close stops accepting entries and waits for the buffer to drain, or for ctx
// to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.done)
	}
	d.mu.Unlock()

	select {
	case <-d.finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped returns how many entries were discarded because the buffer was full
// or the dispatcher was closed
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Failed returns how many entries the sink rejected
func (d *Dispatcher) Failed() uint64 {
	if d == nil {
		return 0
	}
	return d.failed.Load()
}

func (d *Dispatcher) count(outcome string) {
	if d.metrics != nil {
		d.metrics.AuditRecordsTotal.WithLabelValues(outcome).Inc()
	}
}

func (d *Dispatcher) observeDepth() {
	if d.metrics != nil {
		d.metrics.AuditQueueDepth.Set(float64(len(d.ch)))
	}
}
