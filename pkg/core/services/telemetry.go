package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wadjakorntonsri/go-reel-lookup/pkg/core/domain"
)

type eventWriter interface {
	AppendEvents(ctx context.Context, events []domain.Event) error
}

// RecorderOptions sizes the telemetry queue and its workers
type RecorderOptions struct {
	QueueSize     int
	Workers       int
	BatchSize     int
	FlushInterval time.Duration
	WriteTimeout  time.Duration
}

// Recorder writes usage events in the background. Enqueue never blocks:
// when the queue is full the event is dropped and logged.
type Recorder struct {
	writer eventWriter
	log    *zap.Logger
	opts   RecorderOptions

	queue   chan domain.Event
	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	dropped atomic.Int64
	written atomic.Int64
}

func NewRecorder(writer eventWriter, log *zap.Logger, opts RecorderOptions) *Recorder {
	if opts.QueueSize < 1 {
		opts.QueueSize = 1024
	}
	if opts.Workers < 1 {
		opts.Workers = 2
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 2 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	return &Recorder{
		writer: writer,
		log:    log,
		opts:   opts,
		queue:  make(chan domain.Event, opts.QueueSize),
	}
}

// Start launches the worker pool.
func (r *Recorder) Start() {
	for i := 0; i < r.opts.Workers; i++ {
		r.wg.Add(1)
		go func(id int) {
			defer r.wg.Done()
			r.worker(id)
		}(i)
	}
	r.log.Info("telemetry workers started", zap.Int("workers", r.opts.Workers), zap.Int("queue", r.opts.QueueSize))
}

// Enqueue schedules an event for writing. It reports false when the event was dropped.
func (r *Recorder) Enqueue(event domain.Event) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		r.log.Warn("telemetry closed, dropping event", zap.String("item_id", event.ItemID), zap.String("type", string(event.Type)))
		return false
	}
	select {
	case r.queue <- event:
		return true
	default:
		r.dropped.Add(1)
		r.log.Warn("telemetry queue full, dropping event", zap.String("item_id", event.ItemID), zap.String("type", string(event.Type)))
		return false
	}
}

// Dropped is the number of events discarded so far.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// Written is the number of events persisted so far.
func (r *Recorder) Written() int64 { return r.written.Load() }

// Close stops intake and waits for queued events to be flushed.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.log.Info("telemetry workers stopped", zap.Int64("written", r.Written()), zap.Int64("dropped", r.Dropped()))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) worker(id int) {
	batch := make([]domain.Event, 0, r.opts.BatchSize)
	ticker := time.NewTicker(r.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-r.queue:
			if !ok {
				r.flush(id, batch)
				return
			}
			batch = append(batch, event)
			if len(batch) >= r.opts.BatchSize {
				r.flush(id, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				r.flush(id, batch)
				batch = batch[:0]
			}
		}
	}
}

func (r *Recorder) flush(worker int, batch []domain.Event) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.WriteTimeout)
	defer cancel()

	if err := r.writer.AppendEvents(ctx, batch); err != nil {
		r.dropped.Add(int64(len(batch)))
		r.log.Error("failed to write events, batch dropped",
			zap.Int("worker", worker), zap.Int("events", len(batch)), zap.Error(err))
		return
	}
	r.written.Add(int64(len(batch)))
}
