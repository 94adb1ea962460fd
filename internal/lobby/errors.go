package lobby

import "errors"

var (
	// ErrAdmissionConflict rejects a connection that already occupies a
	// match, the queue or an outgoing invite.
	ErrAdmissionConflict = errors.New("already in a match")

	// ErrAlreadyQueued is the no-op result of enqueueing a queued connection.
	ErrAlreadyQueued = errors.New("already in the matchmaking queue")

	// ErrInviteExists rejects a second outgoing invite from one player.
	ErrInviteExists = errors.New("invite already pending")

	// ErrOpponentBusy rejects an invite to a player who already has a
	// pending incoming invite.
	ErrOpponentBusy = errors.New("opponent already invited")

	// ErrUnknownTarget covers invites and accepts whose counterpart cannot
	// be resolved or has no matching invite.
	ErrUnknownTarget = errors.New("unknown target")

	// ErrInvalidInput covers malformed or unauthorised commands.
	ErrInvalidInput = errors.New("invalid input")
)
