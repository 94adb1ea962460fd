package lobby

import "go.uber.org/zap"

// WaitingEntry is a connection waiting for a random opponent.
type WaitingEntry struct {
	PlayerID string
	ConnID   string
}

// PairFunc receives the two earliest waiting entries once they are paired.
type PairFunc func(first, second WaitingEntry)

// Queue pairs waiting connections in arrival order.
type Queue struct {
	entries []WaitingEntry
	onPair  PairFunc
	logger  *zap.Logger
}

// NewQueue creates an empty queue that hands every pair to onPair.
func NewQueue(onPair PairFunc, logger *zap.Logger) *Queue {
	return &Queue{onPair: onPair, logger: logger}
}

// Enqueue appends a connection and pairs the two earliest entries while at
// least two are waiting. It returns false, without changing anything, if
// the connection is already queued.
func (q *Queue) Enqueue(playerID, connID string) bool {
	if q.Contains(connID) {
		q.logger.Info("connection already queued",
			zap.String("player_id", playerID), zap.String("conn_id", connID))
		return false
	}
	q.entries = append(q.entries, WaitingEntry{PlayerID: playerID, ConnID: connID})
	q.logger.Debug("queued", zap.String("player_id", playerID), zap.Int("waiting", len(q.entries)))

	for len(q.entries) >= 2 {
		first, second := q.entries[0], q.entries[1]
		q.entries = q.entries[2:]
		if q.onPair != nil {
			q.onPair(first, second)
		}
	}
	return true
}

// Remove deletes the entry for connID, if any.
func (q *Queue) Remove(connID string) bool {
	for i, e := range q.entries {
		if e.ConnID == connID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Contains reports whether connID is waiting.
func (q *Queue) Contains(connID string) bool {
	for _, e := range q.entries {
		if e.ConnID == connID {
			return true
		}
	}
	return false
}

// HasPlayer reports whether any connection of playerID is waiting.
func (q *Queue) HasPlayer(playerID string) bool {
	for _, e := range q.entries {
		if e.PlayerID == playerID {
			return true
		}
	}
	return false
}

// Len returns the number of waiting connections.
func (q *Queue) Len() int { return len(q.entries) }

// Entries returns a copy of the waiting entries in arrival order.
func (q *Queue) Entries() []WaitingEntry {
	out := make([]WaitingEntry, len(q.entries))
	copy(out, q.entries)
	return out
}
