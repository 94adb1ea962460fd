package lobby

import (
	"context"

	"pong-arena/internal/game"
)

// Message is an outbound notification addressed to one connection.
type Message struct {
	Event string
	Data  any
}

// Notifier delivers messages to connections. Implementations must not
// block: a slow or unknown connection simply misses the message.
type Notifier interface {
	Notify(connID string, msg Message)
}

// Directory resolves a player to the connection that currently routes to
// them.
type Directory interface {
	Resolve(ctx context.Context, playerID string) (string, error)
}

// OutcomeRecorder receives every finished match exactly once. Calls are
// fire-and-forget; failures are the recorder's to log.
type OutcomeRecorder interface {
	RecordOutcome(o game.Outcome)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(connID string, msg Message)

func (f NotifierFunc) Notify(connID string, msg Message) { f(connID, msg) }

type discardRecorder struct{}

func (discardRecorder) RecordOutcome(game.Outcome) {}
