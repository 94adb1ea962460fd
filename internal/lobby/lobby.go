// Package lobby tracks where every connection is (queued, inviting or
// playing) and turns admission requests into matches.
//
// A Lobby is not safe for concurrent use. The transport hub owns it and
// serializes every call, including Tick, on one goroutine.
package lobby

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"pong-arena/internal/game"
)

// Config wires a Lobby to its collaborators. Recorder and Journal are
// optional.
type Config struct {
	Directory Directory
	Notifier  Notifier
	Recorder  OutcomeRecorder
	Journal   *game.Journal
	Logger    *zap.Logger
}

// Stats is a point-in-time view of the lobby.
type Stats struct {
	Queued  int `json:"queued"`
	Invites int `json:"invites"`
	Matches int `json:"matches"`
}

// Lobby combines the matchmaking queue, the invite broker and the match
// registry, and enforces that a connection occupies at most one of them.
type Lobby struct {
	queue     *Queue
	invites   *InviteBroker
	registry  *Registry
	directory Directory
	notifier  Notifier
	logger    *zap.Logger
}

// New creates an empty lobby.
func New(cfg Config) *Lobby {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("lobby")

	l := &Lobby{
		invites:   NewInviteBroker(),
		registry:  NewRegistry(cfg.Notifier, cfg.Recorder, cfg.Journal, logger),
		directory: cfg.Directory,
		notifier:  cfg.Notifier,
		logger:    logger,
	}
	l.queue = NewQueue(l.pairQueued, logger)
	return l
}

func (l *Lobby) pairQueued(first, second WaitingEntry) {
	l.registry.CreateMatch(
		game.Participant{PlayerID: first.PlayerID, ConnID: first.ConnID},
		game.Participant{PlayerID: second.PlayerID, ConnID: second.ConnID},
	)
}

// Queue exposes the matchmaking queue for inspection.
func (l *Lobby) Queue() *Queue { return l.queue }

// Invites exposes the invite broker for inspection.
func (l *Lobby) Invites() *InviteBroker { return l.invites }

// Registry exposes the match registry for inspection.
func (l *Lobby) Registry() *Registry { return l.registry }

// InMatch reports whether connID currently plays in a match.
func (l *Lobby) InMatch(connID string) bool {
	_, ok := l.registry.FindMatchByConnection(connID)
	return ok
}

// JoinQueue admits connID to random matchmaking. Pairing happens
// immediately when another connection is waiting.
func (l *Lobby) JoinQueue(playerID, connID string) error {
	if playerID == "" || connID == "" {
		return ErrInvalidInput
	}
	if l.InMatch(connID) {
		return ErrAdmissionConflict
	}
	if _, ok := l.invites.OwnedBy(connID); ok {
		return ErrAdmissionConflict
	}
	if !l.queue.Contains(connID) && l.queue.HasPlayer(playerID) {
		return fmt.Errorf("%w: %s already waiting on another connection", ErrAdmissionConflict, playerID)
	}
	if !l.queue.Enqueue(playerID, connID) {
		return ErrAlreadyQueued
	}
	return nil
}

// LeaveQueue withdraws connID from matchmaking.
func (l *Lobby) LeaveQueue(connID string) bool {
	return l.queue.Remove(connID)
}

// SendInvite records a directed invite from playerID to opponentID and
// notifies the opponent. Nothing is recorded if any check fails.
func (l *Lobby) SendInvite(ctx context.Context, playerID, opponentID, connID string) error {
	if playerID == "" || opponentID == "" || connID == "" {
		return ErrInvalidInput
	}
	if playerID == opponentID {
		return fmt.Errorf("%w: cannot invite yourself", ErrInvalidInput)
	}
	if l.InMatch(connID) || l.queue.Contains(connID) {
		return ErrAdmissionConflict
	}
	if _, ok := l.invites.Outgoing(playerID); ok {
		return ErrInviteExists
	}
	if _, ok := l.invites.OwnedBy(connID); ok {
		return ErrInviteExists
	}
	if l.invites.HasIncoming(opponentID) {
		return ErrOpponentBusy
	}

	target, err := l.directory.Resolve(ctx, opponentID)
	if err != nil {
		l.logger.Debug("invite target unresolved", zap.String("opponent_id", opponentID), zap.Error(err))
		return fmt.Errorf("%w: %s", ErrUnknownTarget, opponentID)
	}

	entry := InviteEntry{PlayerID: playerID, OpponentID: opponentID, ConnID: connID}
	if err := l.invites.Add(entry); err != nil {
		return err
	}
	l.notifier.Notify(target, Message{Event: EventSendInvite, Data: InvitePayload{
		PlayerID:   playerID,
		OpponentID: opponentID,
	}})
	l.logger.Debug("invite sent", zap.String("from", playerID), zap.String("to", opponentID))
	return nil
}

// AcceptInvite turns the invite from inviterID to inviteeID into a match.
// The inviter plays as player1. Accepting withdraws the invitee from the
// queue and cancels any invite the invitee had sent. On error the invite
// is left in place.
func (l *Lobby) AcceptInvite(ctx context.Context, inviterID, inviteeID, inviteeConn string) error {
	if inviterID == "" || inviteeID == "" || inviteeConn == "" {
		return ErrInvalidInput
	}
	entry, ok := l.invites.Find(inviterID, inviteeID)
	if !ok {
		return fmt.Errorf("%w: no invite from %s", ErrUnknownTarget, inviterID)
	}
	if entry.ConnID == inviteeConn {
		return ErrInvalidInput
	}
	if l.InMatch(inviteeConn) || l.InMatch(entry.ConnID) {
		return ErrAdmissionConflict
	}

	inviterConn, err := l.directory.Resolve(ctx, inviterID)
	if err != nil || inviterConn != entry.ConnID {
		l.logger.Debug("inviter unresolved", zap.String("inviter_id", inviterID), zap.Error(err))
		return fmt.Errorf("%w: %s", ErrUnknownTarget, inviterID)
	}

	l.invites.Remove(inviterID)
	l.queue.Remove(inviteeConn)
	if own, ok := l.invites.OwnedBy(inviteeConn); ok {
		l.cancelInvite(ctx, own)
	}

	l.registry.CreateMatch(
		game.Participant{PlayerID: inviterID, ConnID: entry.ConnID},
		game.Participant{PlayerID: inviteeID, ConnID: inviteeConn},
	)
	return nil
}

// DeclineInvite removes the invite sent by inviterID. callerID must be
// either party to the invite: the invitee declines, the inviter withdraws.
// Declining an absent invite is a no-op.
func (l *Lobby) DeclineInvite(ctx context.Context, callerID, inviterID string) error {
	entry, ok := l.invites.Outgoing(inviterID)
	if !ok {
		return nil
	}
	switch callerID {
	case entry.OpponentID:
		l.invites.Remove(inviterID)
		l.notifier.Notify(entry.ConnID, Message{Event: EventInviteDeclined, Data: InvitePayload{
			PlayerID:   entry.PlayerID,
			OpponentID: entry.OpponentID,
		}})
	case entry.PlayerID:
		l.cancelInvite(ctx, entry)
	default:
		return ErrInvalidInput
	}
	l.logger.Debug("invite removed", zap.String("inviter_id", inviterID), zap.String("by", callerID))
	return nil
}

// Move forwards a paddle command to the match. The instance ignores
// commands from connections that do not play in it.
func (l *Lobby) Move(connID string, id game.MatchID, direction string) error {
	inst, ok := l.registry.Get(id)
	if !ok {
		return fmt.Errorf("%w: unknown match %s", ErrInvalidInput, id)
	}
	dir, ok := game.ParseDirection(direction)
	if !ok {
		return fmt.Errorf("%w: direction %q", ErrInvalidInput, direction)
	}
	if !inst.HandleMove(connID, dir) {
		return fmt.Errorf("%w: not a participant", ErrInvalidInput)
	}
	return nil
}

// Disconnect sweeps every trace of a closed connection: its queue entry,
// invites it sent or received, and its match, which is forfeited. It
// returns the forfeit outcome if a match ended.
func (l *Lobby) Disconnect(ctx context.Context, connID, playerID string) (game.Outcome, bool) {
	if l.queue.Remove(connID) {
		l.logger.Debug("left queue on disconnect", zap.String("conn_id", connID))
	}

	if own, ok := l.invites.OwnedBy(connID); ok {
		l.cancelInvite(ctx, own)
	}
	if playerID != "" && l.routesTo(ctx, playerID, connID) {
		if in, ok := l.invites.Incoming(playerID); ok {
			l.invites.Remove(in.PlayerID)
			l.notifier.Notify(in.ConnID, Message{Event: EventInviteCancelled, Data: InvitePayload{
				PlayerID:   in.PlayerID,
				OpponentID: in.OpponentID,
			}})
		}
	}

	return l.registry.Forfeit(connID)
}

// routesTo reports whether the directory still sends playerID's traffic
// to connID. An unresolvable player counts as routed there, so a closing
// connection always clears invites nobody else can answer.
func (l *Lobby) routesTo(ctx context.Context, playerID, connID string) bool {
	current, err := l.directory.Resolve(ctx, playerID)
	if err != nil {
		return true
	}
	return current == connID
}

// cancelInvite removes an invite the owner withdrew and tells the invitee
// if they can still be reached.
func (l *Lobby) cancelInvite(ctx context.Context, e InviteEntry) {
	l.invites.Remove(e.PlayerID)
	target, err := l.directory.Resolve(ctx, e.OpponentID)
	if err != nil {
		return
	}
	l.notifier.Notify(target, Message{Event: EventInviteCancelled, Data: InvitePayload{
		PlayerID:   e.PlayerID,
		OpponentID: e.OpponentID,
	}})
}

// Tick advances every live match and returns the outcomes of the matches
// that finished on this tick.
func (l *Lobby) Tick() []game.Outcome {
	return l.registry.Tick()
}

// Stats returns current queue, invite and match counts.
func (l *Lobby) Stats() Stats {
	return Stats{
		Queued:  l.queue.Len(),
		Invites: l.invites.Len(),
		Matches: l.registry.Len(),
	}
}
