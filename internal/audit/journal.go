package audit

/*
Decision journal: every guardrail verdict and carbon enrichment leaves a trace.

- Non-blocking: Record never waits on the sink. When the buffer is full the event is
  dropped and counted (load shedding). The hot path is never slowed down by the sink.
- Batching: the worker flushes when BatchSize events are collected or on each tick.
- Drain on shutdown: Stop closes the input channel, the worker reads what is left,
  does a final flush and exits.

The journal is an observability stream, not a store: nothing is read back.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Sink is where batches end up (structured log, message bus, ...).
type Sink interface {
	WriteBatch(ctx context.Context, events []Event) error
}

// Recorder is what request handlers depend on.
type Recorder interface {
	Record(event Event)
}

type Options struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.BufferSize <= 0 {
		o.BufferSize = 10000
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 500 * time.Millisecond
	}
	return o
}

type Journal struct {
	ch     chan Event
	sink   Sink
	opts   Options
	logger *zap.Logger
	wg     sync.WaitGroup

	// mu guards closed against a concurrent close(ch)
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

func NewJournal(sink Sink, opts Options, logger *zap.Logger) *Journal {
	opts = opts.withDefaults()
	return &Journal{
		ch:     make(chan Event, opts.BufferSize),
		sink:   sink,
		opts:   opts,
		logger: logger.Named("journal"),
	}
}

func (j *Journal) Start() {
	j.wg.Add(1)
	go j.worker()
}

// Stop refuses new events and waits until the worker has flushed the rest.
func (j *Journal) Stop() {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return
	}
	j.closed = true
	close(j.ch)
	j.mu.Unlock()

	j.logger.Info("stopping journal: draining buffer")
	j.wg.Wait()
	j.logger.Info("journal stopped", zap.Int64("dropped_total", j.dropped.Load()))
}

func (j *Journal) Record(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.closed {
		j.dropped.Add(1)
		j.logger.Warn("journal event dropped: journal is stopped", zap.String("id", event.ID))
		return
	}

	select {
	case j.ch <- event:
	default:
		j.dropped.Add(1)
		j.logger.Error("journal_buffer_overflow",
			zap.String("kind", event.Kind),
			zap.String("trace_id", event.TraceID),
		)
	}
}

// Len is the number of buffered events.
func (j *Journal) Len() int {
	return len(j.ch)
}

// Dropped is the number of events lost to overflow or shutdown.
func (j *Journal) Dropped() int64 {
	return j.dropped.Load()
}

func (j *Journal) worker() {
	defer j.wg.Done()

	batch := make([]Event, 0, j.opts.BatchSize)
	ticker := time.NewTicker(j.opts.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Background: the request contexts are long gone by now
		if err := j.sink.WriteBatch(context.Background(), batch); err != nil {
			j.logger.Error("journal flush failed", zap.Error(err), zap.Int("events", len(batch)))
		}
		batch = make([]Event, 0, j.opts.BatchSize)
	}

	for {
		select {
		case event, ok := <-j.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, event)
			if len(batch) >= j.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
