// Package directory maps player ids to the connection that currently
// routes to them. The in-memory Directory serves a single process; the
// Redis one lets several instances share the mapping.
package directory

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Resolve for players with no live connection.
var ErrNotFound = errors.New("player not connected")

// Store is the full directory contract used by the transport layer.
type Store interface {
	Register(ctx context.Context, playerID, connID string) error
	Unregister(ctx context.Context, playerID, connID string) error

	// Refresh keeps connID's binding alive. It never replaces a binding
	// held by another connection and returns ErrNotFound when the player
	// has no binding at all.
	Refresh(ctx context.Context, playerID, connID string) error
	Resolve(ctx context.Context, playerID string) (string, error)
}
