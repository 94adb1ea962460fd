package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"pong-arena/internal/game"
)

// DefaultRecorderBuffer is the number of outcomes that may wait for the
// database before new ones are dropped.
const DefaultRecorderBuffer = 256

// Saver persists one outcome.
type Saver interface {
	SaveOutcome(ctx context.Context, o game.Outcome) error
}

// AsyncRecorder hands outcomes to a Saver on a background goroutine so the
// tick loop never waits on storage. When the buffer is full the newest
// outcome is dropped and logged.
type AsyncRecorder struct {
	saver   Saver
	queue   chan game.Outcome
	quit    chan struct{}
	wg      sync.WaitGroup
	timeout time.Duration
	logger  *zap.Logger

	saved   atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

// RecorderStats are exported for the stats endpoint.
type RecorderStats struct {
	Saved   uint64 `json:"saved"`
	Failed  uint64 `json:"failed"`
	Dropped uint64 `json:"dropped"`
}

// NewAsyncRecorder creates a recorder. buffer <= 0 selects the default.
func NewAsyncRecorder(saver Saver, buffer int, logger *zap.Logger) *AsyncRecorder {
	if buffer <= 0 {
		buffer = DefaultRecorderBuffer
	}
	return &AsyncRecorder{
		saver:   saver,
		queue:   make(chan game.Outcome, buffer),
		quit:    make(chan struct{}),
		timeout: 5 * time.Second,
		logger:  logger.Named("recorder"),
	}
}

// Start begins the dispatcher loop.
func (r *AsyncRecorder) Start() {
	r.wg.Add(1)
	go r.dispatcher()
}

// Stop drains queued outcomes and waits for the dispatcher to exit.
func (r *AsyncRecorder) Stop() {
	close(r.quit)
	r.wg.Wait()
}

// RecordOutcome queues an outcome without blocking.
func (r *AsyncRecorder) RecordOutcome(o game.Outcome) {
	select {
	case r.queue <- o:
	default:
		r.dropped.Add(1)
		r.logger.Warn("outcome queue full, dropping result", zap.Stringer("match_id", o.MatchID))
	}
}

// Stats returns counters.
func (r *AsyncRecorder) Stats() RecorderStats {
	return RecorderStats{
		Saved:   r.saved.Load(),
		Failed:  r.failed.Load(),
		Dropped: r.dropped.Load(),
	}
}

func (r *AsyncRecorder) dispatcher() {
	defer r.wg.Done()
	for {
		select {
		case o := <-r.queue:
			r.save(o)
		case <-r.quit:
			for {
				select {
				case o := <-r.queue:
					r.save(o)
				default:
					return
				}
			}
		}
	}
}

func (r *AsyncRecorder) save(o game.Outcome) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.saver.SaveOutcome(ctx, o); err != nil {
		r.failed.Add(1)
		r.logger.Error("save outcome", zap.Stringer("match_id", o.MatchID), zap.Error(err))
		return
	}
	r.saved.Add(1)
}
