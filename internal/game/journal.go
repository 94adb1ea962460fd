package game

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	JournalBufferSize      = 1024
	MaxJournalEventsPerSec = 2000
	BatchFlushSize         = 64
	BatchFlushInterval     = 100 * time.Millisecond
)

// EventType classifies a journal entry.
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	EventTypeMatchStart
	EventTypeGoal
	EventTypeMatchEnd
)

// EventVersion is bumped when the journal schema changes.
const EventVersion uint8 = 1

func (t EventType) String() string {
	switch t {
	case EventTypeMatchStart:
		return "match_start"
	case EventTypeGoal:
		return "goal"
	case EventTypeMatchEnd:
		return "match_end"
	default:
		return "unknown"
	}
}

// MarshalText writes the event type by name.
func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Event is one line of the match journal.
type Event struct {
	Version   uint8           `json:"version"`
	Type      EventType       `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Sequence  uint64          `json:"sequence"`
	MatchID   MatchID         `json:"matchId"`
	Tick      uint64          `json:"tick"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// MatchStartPayload records who was paired.
type MatchStartPayload struct {
	Player1 string `json:"player1"`
	Player2 string `json:"player2"`
}

// GoalPayload records a scoring tick.
type GoalPayload struct {
	ScorerID string `json:"scorerId"`
	Score1   int    `json:"score1"`
	Score2   int    `json:"score2"`
}

// MatchEndPayload records the final result.
type MatchEndPayload struct {
	WinnerID string `json:"winnerId"`
	LoserID  string `json:"loserId"`
	Score1   int    `json:"score1"`
	Score2   int    `json:"score2"`
	Forfeit  bool   `json:"forfeit"`
}

// Journal is a bounded, rate-limited JSONL log of match lifecycle events.
// Emit never blocks: events are dropped when the buffer is full or the
// rate limit is exceeded. A nil *Journal accepts and discards everything.
type Journal struct {
	events  chan Event
	limiter *rate.Limiter
	out     *bufio.Writer
	closer  io.Closer
	logger  *zap.Logger

	seq      atomic.Uint64
	total    atomic.Uint64
	dropped  atomic.Uint64
	running  atomic.Bool
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// JournalStats is exported for metrics and the stats endpoint.
type JournalStats struct {
	Total   uint64 `json:"total"`
	Dropped uint64 `json:"dropped"`
	Pending int    `json:"pending"`
}

// NewJournal creates a journal writing to w. Call Start before Emit.
func NewJournal(w io.Writer, logger *zap.Logger) *Journal {
	j := &Journal{
		events:  make(chan Event, JournalBufferSize),
		limiter: rate.NewLimiter(MaxJournalEventsPerSec, MaxJournalEventsPerSec/10),
		out:     bufio.NewWriter(w),
		logger:  logger.Named("journal"),
		quit:    make(chan struct{}),
	}
	if c, ok := w.(io.Closer); ok {
		j.closer = c
	}
	return j
}

// OpenJournal appends to the file at path, creating it if needed.
func OpenJournal(path string, logger *zap.Logger) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return NewJournal(f, logger), nil
}

// Start launches the writer goroutine.
func (j *Journal) Start() {
	if j == nil || j.running.Swap(true) {
		return
	}
	j.wg.Add(1)
	go j.writerLoop()
}

// Stop flushes pending events and closes the underlying writer.
func (j *Journal) Stop() {
	if j == nil {
		return
	}
	j.stopOnce.Do(func() {
		j.running.Store(false)
		close(j.quit)
		j.wg.Wait()
		if j.closer != nil {
			if err := j.closer.Close(); err != nil {
				j.logger.Warn("close journal", zap.Error(err))
			}
		}
	})
}

// Emit queues an event. It returns false if the event was dropped.
func (j *Journal) Emit(t EventType, id MatchID, tick uint64, payload any) bool {
	if j == nil || !j.running.Load() {
		return false
	}
	if !j.limiter.Allow() {
		j.dropped.Add(1)
		return false
	}

	ev := Event{
		Version:   EventVersion,
		Type:      t,
		Timestamp: time.Now().UnixNano(),
		Sequence:  j.seq.Add(1),
		MatchID:   id,
		Tick:      tick,
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			j.dropped.Add(1)
			return false
		}
		ev.Payload = data
	}

	select {
	case j.events <- ev:
		j.total.Add(1)
		return true
	default:
		j.dropped.Add(1)
		return false
	}
}

// Stats returns counters for monitoring.
func (j *Journal) Stats() JournalStats {
	if j == nil {
		return JournalStats{}
	}
	return JournalStats{
		Total:   j.total.Load(),
		Dropped: j.dropped.Load(),
		Pending: len(j.events),
	}
}

func (j *Journal) writerLoop() {
	defer j.wg.Done()

	ticker := time.NewTicker(BatchFlushInterval)
	defer ticker.Stop()

	pending := 0
	for {
		select {
		case ev := <-j.events:
			j.write(ev)
			pending++
			if pending >= BatchFlushSize {
				j.flush()
				pending = 0
			}

		case <-ticker.C:
			if pending > 0 {
				j.flush()
				pending = 0
			}

		case <-j.quit:
			for {
				select {
				case ev := <-j.events:
					j.write(ev)
				default:
					j.flush()
					return
				}
			}
		}
	}
}

func (j *Journal) write(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	j.out.Write(data)
	j.out.WriteByte('\n')
}

func (j *Journal) flush() {
	if err := j.out.Flush(); err != nil {
		j.logger.Warn("flush journal", zap.Error(err))
	}
}
