package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// AsyncSink buffers records in memory and drains them to a downstream sink on
// a background goroutine, so the gateway's hot path never blocks on audit
// I/O. When the buffer is full the oldest record is dropped and counted;
// audit here is observability, not a transactional log.
type AsyncSink struct {
	downstream Sink
	logger     *slog.Logger

	mu     sync.Mutex
	buf    []Record
	head   int
	tail   int
	count  int
	signal chan struct{}

	dropped atomic.Int64

	stopOnce sync.Once
	done     chan struct{}
	drained  chan struct{}
}

// NewAsyncSink wraps downstream with a bounded buffer of the given capacity.
// Run must be started for records to flow.
func NewAsyncSink(downstream Sink, capacity int, logger *slog.Logger) *AsyncSink {
	if capacity <= 0 {
		capacity = 1024
	}
	return &AsyncSink{
		downstream: downstream,
		logger:     logger,
		buf:        make([]Record, capacity),
		signal:     make(chan struct{}, 1),
		done:       make(chan struct{}),
		drained:    make(chan struct{}),
	}
}

// Record enqueues rec, dropping the oldest buffered record when full.
func (s *AsyncSink) Record(_ context.Context, rec Record) error {
	s.mu.Lock()
	if s.count == len(s.buf) {
		s.tail = (s.tail + 1) % len(s.buf)
		s.count--
		s.dropped.Add(1)
	}
	s.buf[s.head] = rec
	s.head = (s.head + 1) % len(s.buf)
	s.count++
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
	return nil
}

// Run drains buffered records to the downstream sink until ctx is cancelled
// or Close is called, then flushes what remains.
func (s *AsyncSink) Run(ctx context.Context) error {
	defer close(s.drained)
	for {
		select {
		case <-ctx.Done():
			s.flush(context.Background())
			return ctx.Err()
		case <-s.done:
			s.flush(context.Background())
			return nil
		case <-s.signal:
			s.flush(ctx)
		}
	}
}

// Close stops the worker after a final flush. Safe to call multiple times.
func (s *AsyncSink) Close() {
	s.stopOnce.Do(func() { close(s.done) })
	<-s.drained
}

// Dropped returns the number of records lost to buffer overflow.
func (s *AsyncSink) Dropped() int64 {
	return s.dropped.Load()
}

func (s *AsyncSink) flush(ctx context.Context) {
	for {
		s.mu.Lock()
		if s.count == 0 {
			s.mu.Unlock()
			return
		}
		rec := s.buf[s.tail]
		s.tail = (s.tail + 1) % len(s.buf)
		s.count--
		s.mu.Unlock()

		if err := s.downstream.Record(ctx, rec); err != nil {
			s.logger.Error("audit record write failed",
				"record_id", rec.ID, "operation", rec.Operation, "error", err)
		}
	}
}
