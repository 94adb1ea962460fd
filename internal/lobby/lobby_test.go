package lobby

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"pong-arena/internal/game"
)

type lobbyFixture struct {
	lobby    *Lobby
	notifier *fakeNotifier
	dir      fakeDirectory
	recorder *fakeRecorder
}

func newLobbyFixture(t *testing.T) *lobbyFixture {
	t.Helper()
	f := &lobbyFixture{
		notifier: newFakeNotifier(),
		dir: fakeDirectory{
			"alice": "c1",
			"bob":   "c2",
			"carol": "c3",
		},
		recorder: &fakeRecorder{},
	}
	f.lobby = New(Config{
		Directory: f.dir,
		Notifier:  f.notifier,
		Recorder:  f.recorder,
		Logger:    zaptest.NewLogger(t),
	})
	return f
}

var ctx = context.Background()

func TestJoinQueuePairsTwoConnections(t *testing.T) {
	f := newLobbyFixture(t)

	require.NoError(t, f.lobby.JoinQueue("alice", "c1"))
	assert.Empty(t, f.notifier.sent["c1"])
	require.NoError(t, f.lobby.JoinQueue("bob", "c2"))

	assert.Equal(t, Stats{Queued: 0, Invites: 0, Matches: 1}, f.lobby.Stats())
	msg, ok := f.notifier.last("c1", EventStartMatch)
	require.True(t, ok)
	p := msg.Data.(StartMatchPayload)
	assert.Equal(t, "alice", p.Player1.PlayerID)
	assert.Equal(t, "bob", p.Player2.PlayerID)
	assert.Equal(t, 1, f.notifier.count("c2", EventStartMatch))
}

func TestJoinQueueWhileInMatchIsRejected(t *testing.T) {
	f := newLobbyFixture(t)
	require.NoError(t, f.lobby.JoinQueue("alice", "c1"))
	require.NoError(t, f.lobby.JoinQueue("bob", "c2"))

	assert.ErrorIs(t, f.lobby.JoinQueue("alice", "c1"), ErrAdmissionConflict)
	assert.Zero(t, f.lobby.Queue().Len())
	assert.Equal(t, 1, f.lobby.Registry().Len())
}

func TestJoinQueueTwiceIsNoop(t *testing.T) {
	f := newLobbyFixture(t)
	require.NoError(t, f.lobby.JoinQueue("alice", "c1"))

	assert.ErrorIs(t, f.lobby.JoinQueue("alice", "c1"), ErrAlreadyQueued)
	assert.Equal(t, 1, f.lobby.Queue().Len())
	assert.Zero(t, f.lobby.Registry().Len())
}

func TestJoinQueueWithOutgoingInviteIsRejected(t *testing.T) {
	f := newLobbyFixture(t)
	require.NoError(t, f.lobby.SendInvite(ctx, "alice", "bob", "c1"))

	assert.ErrorIs(t, f.lobby.JoinQueue("alice", "c1"), ErrAdmissionConflict)
	assert.Zero(t, f.lobby.Queue().Len())
}

func TestLeaveQueue(t *testing.T) {
	f := newLobbyFixture(t)
	require.NoError(t, f.lobby.JoinQueue("alice", "c1"))

	assert.True(t, f.lobby.LeaveQueue("c1"))
	assert.False(t, f.lobby.LeaveQueue("c1"))
	require.NoError(t, f.lobby.JoinQueue("bob", "c2"))
	assert.Zero(t, f.lobby.Registry().Len())
}

func TestSendInviteNotifiesOpponent(t *testing.T) {
	f := newLobbyFixture(t)

	require.NoError(t, f.lobby.SendInvite(ctx, "alice", "bob", "c1"))

	msg, ok := f.notifier.last("c2", EventSendInvite)
	require.True(t, ok)
	assert.Equal(t, InvitePayload{PlayerID: "alice", OpponentID: "bob"}, msg.Data)
	assert.True(t, f.lobby.Invites().HasIncoming("bob"))
	assert.Equal(t, 1, f.lobby.Stats().Invites)
}

func TestSendInviteRejections(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*lobbyFixture)
		player   string
		opponent string
		conn     string
		want     error
	}{
		{"self invite", nil, "alice", "alice", "c1", ErrInvalidInput},
		{"empty opponent", nil, "alice", "", "c1", ErrInvalidInput},
		{"unresolvable opponent", nil, "alice", "zed", "c1", ErrUnknownTarget},
		{
			"inviter queued",
			func(f *lobbyFixture) { f.lobby.JoinQueue("alice", "c1") },
			"alice", "bob", "c1", ErrAdmissionConflict,
		},
		{
			"second outgoing invite",
			func(f *lobbyFixture) { f.lobby.SendInvite(ctx, "alice", "carol", "c1") },
			"alice", "bob", "c1", ErrInviteExists,
		},
		{
			"opponent already invited",
			func(f *lobbyFixture) { f.lobby.SendInvite(ctx, "carol", "bob", "c3") },
			"alice", "bob", "c1", ErrOpponentBusy,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newLobbyFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}
			before := f.lobby.Invites().Len()
			markers := f.lobby.Invites().Markers()

			err := f.lobby.SendInvite(ctx, tt.player, tt.opponent, tt.conn)

			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, before, f.lobby.Invites().Len())
			assert.Equal(t, markers, f.lobby.Invites().Markers())
		})
	}
}

func TestSendInviteWhileInMatchIsRejected(t *testing.T) {
	f := newLobbyFixture(t)
	require.NoError(t, f.lobby.JoinQueue("alice", "c1"))
	require.NoError(t, f.lobby.JoinQueue("bob", "c2"))

	assert.ErrorIs(t, f.lobby.SendInvite(ctx, "alice", "carol", "c1"), ErrAdmissionConflict)
	assert.Zero(t, f.lobby.Invites().Len())
}

func TestAcceptInviteCreatesMatch(t *testing.T) {
	f := newLobbyFixture(t)
	require.NoError(t, f.lobby.SendInvite(ctx, "alice", "bob", "c1"))

	require.NoError(t, f.lobby.AcceptInvite(ctx, "alice", "bob", "c2"))

	assert.Zero(t, f.lobby.Invites().Len())
	assert.Zero(t, f.lobby.Invites().Markers())
	require.Equal(t, 1, f.lobby.Registry().Len())

	msg, ok := f.notifier.last("c2", EventStartMatch)
	require.True(t, ok)
	p := msg.Data.(StartMatchPayload)
	assert.Equal(t, "alice", p.Player1.PlayerID, "inviter plays as player1")
	assert.Equal(t, "bob", p.Player2.PlayerID)
	assert.True(t, f.lobby.InMatch("c1"))
	assert.True(t, f.lobby.InMatch("c2"))
}

func TestAcceptInviteWithoutInvite(t *testing.T) {
	f := newLobbyFixture(t)
	require.NoError(t, f.lobby.SendInvite(ctx, "alice", "bob", "c1"))

	assert.ErrorIs(t, f.lobby.AcceptInvite(ctx, "carol", "bob", "c2"), ErrUnknownTarget)
	assert.ErrorIs(t, f.lobby.AcceptInvite(ctx, "alice", "carol", "c3"), ErrUnknownTarget)
	assert.Zero(t, f.lobby.Registry().Len())
	assert.Equal(t, 1, f.lobby.Invites().Len())
}

func TestAcceptInviteWithUnresolvableInviterLeavesInvite(t *testing.T) {
	f := newLobbyFixture(t)
	require.NoError(t, f.lobby.SendInvite(ctx, "alice", "bob", "c1"))
	delete(f.dir, "alice")

	assert.ErrorIs(t, f.lobby.AcceptInvite(ctx, "alice", "bob", "c2"), ErrUnknownTarget)
	assert.Zero(t, f.lobby.Registry().Len())
	_, ok := f.lobby.Invites().Find("alice", "bob")
	assert.True(t, ok)
	assert.True(t, f.lobby.Invites().HasIncoming("bob"))
}

func TestAcceptInviteWithdrawsInviteeFromQueueAndInvites(t *testing.T) {
	f := newLobbyFixture(t)
	require.NoError(t, f.lobby.SendInvite(ctx, "alice", "bob", "c1"))
	require.NoError(t, f.lobby.SendInvite(ctx, "bob", "carol", "c2"))

	require.NoError(t, f.lobby.AcceptInvite(ctx, "alice", "bob", "c2"))

	assert.Zero(t, f.lobby.Invites().Len())
	assert.Zero(t, f.lobby.Invites().Markers())
	assert.Equal(t, 1, f.notifier.count("c3", EventInviteCancelled))
}

func TestAcceptInviteWithdrawsQueuedInvitee(t *testing.T) {
	f := newLobbyFixture(t)
	require.NoError(t, f.lobby.SendInvite(ctx, "alice", "bob", "c1"))
	require.NoError(t, f.lobby.JoinQueue("bob", "c2"))

	require.NoError(t, f.lobby.AcceptInvite(ctx, "alice", "bob", "c2"))

	assert.Zero(t, f.lobby.Queue().Len())
	require.NoError(t, f.lobby.JoinQueue("carol", "c3"))
	assert.Equal(t, 1, f.lobby.Registry().Len(), "carol waits alone")
}

func TestDeclineInvite(t *testing.T) {
	f := newLobbyFixture(t)
	require.NoError(t, f.lobby.SendInvite(ctx, "alice", "bob", "c1"))

	require.NoError(t, f.lobby.DeclineInvite(ctx, "bob", "alice"))

	assert.Zero(t, f.lobby.Invites().Len())
	assert.False(t, f.lobby.Invites().HasIncoming("bob"))
	assert.Equal(t, 1, f.notifier.count("c1", EventInviteDeclined))

	// Bob can be invited again and alice can invite again.
	require.NoError(t, f.lobby.SendInvite(ctx, "carol", "bob", "c3"))
	require.NoError(t, f.lobby.SendInvite(ctx, "alice", "carol", "c1"))
}

func TestDeclineInviteIsIdempotent(t *testing.T) {
	f := newLobbyFixture(t)
	assert.NoError(t, f.lobby.DeclineInvite(ctx, "bob", "alice"))
}

func TestDeclineInviteByInviterCancels(t *testing.T) {
	f := newLobbyFixture(t)
	require.NoError(t, f.lobby.SendInvite(ctx, "alice", "bob", "c1"))

	require.NoError(t, f.lobby.DeclineInvite(ctx, "alice", "alice"))
	assert.Zero(t, f.lobby.Invites().Len())
	assert.Equal(t, 1, f.notifier.count("c2", EventInviteCancelled))
}

func TestDeclineInviteByThirdPartyIsRejected(t *testing.T) {
	f := newLobbyFixture(t)
	require.NoError(t, f.lobby.SendInvite(ctx, "alice", "bob", "c1"))

	assert.ErrorIs(t, f.lobby.DeclineInvite(ctx, "carol", "alice"), ErrInvalidInput)
	assert.Equal(t, 1, f.lobby.Invites().Len())
}

func TestMove(t *testing.T) {
	f := newLobbyFixture(t)
	require.NoError(t, f.lobby.JoinQueue("alice", "c1"))
	require.NoError(t, f.lobby.JoinQueue("bob", "c2"))
	id := f.lobby.Registry().IDs()[0]

	assert.ErrorIs(t, f.lobby.Move("c1", id+1, "up"), ErrInvalidInput)
	assert.ErrorIs(t, f.lobby.Move("c1", id, "left"), ErrInvalidInput)
	assert.ErrorIs(t, f.lobby.Move("c3", id, "up"), ErrInvalidInput)
	require.NoError(t, f.lobby.Move("c1", id, "up"))

	f.lobby.Tick()
	msg, ok := f.notifier.last("c2", EventStateUpdate)
	require.True(t, ok)
	snap := msg.Data.(game.Snapshot)
	assert.Equal(t, game.FieldHeight/2-game.PaddleSpeed, snap.Paddle1.Y)
	assert.Equal(t, game.FieldHeight/2, snap.Paddle2.Y)
}

func TestDisconnectInMatchForfeits(t *testing.T) {
	f := newLobbyFixture(t)
	require.NoError(t, f.lobby.JoinQueue("alice", "c1"))
	require.NoError(t, f.lobby.JoinQueue("bob", "c2"))

	out, ok := f.lobby.Disconnect(ctx, "c1", "alice")

	require.True(t, ok)
	assert.True(t, out.Forfeit)
	assert.Equal(t, "bob", out.Winner.PlayerID)
	assert.Equal(t, "alice", out.Loser.PlayerID)
	assert.Zero(t, f.lobby.Registry().Len())
	assert.Equal(t, []game.Outcome{out}, f.recorder.outcomes)

	msg, ok := f.notifier.last("c2", EventMatchEnded)
	require.True(t, ok)
	assert.Equal(t, "bob", msg.Data.(MatchEndedPayload).WinnerID)
	assert.Empty(t, f.lobby.Tick())

	_, again := f.lobby.Disconnect(ctx, "c2", "bob")
	assert.False(t, again)
	assert.Len(t, f.recorder.outcomes, 1)
}

func TestDisconnectWhileQueued(t *testing.T) {
	f := newLobbyFixture(t)
	require.NoError(t, f.lobby.JoinQueue("alice", "c1"))

	_, ok := f.lobby.Disconnect(ctx, "c1", "alice")

	assert.False(t, ok)
	assert.Zero(t, f.lobby.Queue().Len())
	require.NoError(t, f.lobby.JoinQueue("bob", "c2"))
	assert.Zero(t, f.lobby.Registry().Len())
}

func TestDisconnectCancelsInvitesBothWays(t *testing.T) {
	f := newLobbyFixture(t)
	require.NoError(t, f.lobby.SendInvite(ctx, "alice", "bob", "c1"))
	require.NoError(t, f.lobby.SendInvite(ctx, "bob", "carol", "c2"))

	f.lobby.Disconnect(ctx, "c2", "bob")

	assert.Zero(t, f.lobby.Invites().Len())
	assert.Zero(t, f.lobby.Invites().Markers())
	assert.Equal(t, 1, f.notifier.count("c1", EventInviteCancelled))
	assert.Equal(t, 1, f.notifier.count("c3", EventInviteCancelled))
}

func TestDisconnectOfStaleConnectionKeepsIncomingInvite(t *testing.T) {
	f := newLobbyFixture(t)
	f.dir["bob"] = "c2b"
	require.NoError(t, f.lobby.SendInvite(ctx, "alice", "bob", "c1"))
	require.Equal(t, 1, f.notifier.count("c2b", EventSendInvite))

	f.lobby.Disconnect(ctx, "c2", "bob")

	assert.Equal(t, 1, f.lobby.Invites().Len())
	assert.True(t, f.lobby.Invites().HasIncoming("bob"))
	assert.Zero(t, f.notifier.count("c1", EventInviteCancelled))

	// The connection the invite was routed to still clears it.
	f.lobby.Disconnect(ctx, "c2b", "bob")
	assert.Zero(t, f.lobby.Invites().Len())
	assert.Equal(t, 1, f.notifier.count("c1", EventInviteCancelled))
}

func TestDisconnectOfUnresolvablePlayerClearsIncomingInvite(t *testing.T) {
	f := newLobbyFixture(t)
	require.NoError(t, f.lobby.SendInvite(ctx, "alice", "bob", "c1"))
	delete(f.dir, "bob")

	f.lobby.Disconnect(ctx, "c2", "bob")

	assert.Zero(t, f.lobby.Invites().Len())
	assert.Equal(t, 1, f.notifier.count("c1", EventInviteCancelled))
}

func TestJoinQueueFromSecondConnectionOfWaitingPlayer(t *testing.T) {
	f := newLobbyFixture(t)
	require.NoError(t, f.lobby.JoinQueue("alice", "c1"))

	err := f.lobby.JoinQueue("alice", "c1b")

	assert.ErrorIs(t, err, ErrAdmissionConflict)
	assert.Equal(t, []WaitingEntry{{PlayerID: "alice", ConnID: "c1"}}, f.lobby.Queue().Entries())
	assert.Zero(t, f.lobby.Registry().Len())

	// The original connection re-enqueueing stays the logged no-op.
	assert.ErrorIs(t, f.lobby.JoinQueue("alice", "c1"), ErrAlreadyQueued)
}

func TestMatchRunsToWinThreshold(t *testing.T) {
	f := newLobbyFixture(t)
	require.NoError(t, f.lobby.JoinQueue("alice", "c1"))
	require.NoError(t, f.lobby.JoinQueue("bob", "c2"))

	var outcomes []game.Outcome
	for i := 0; i < 5000 && f.lobby.Registry().Len() > 0; i++ {
		outcomes = append(outcomes, f.lobby.Tick()...)
	}

	require.Len(t, outcomes, 1)
	assert.Equal(t, game.WinScore, outcomes[0].Score1)
	assert.Equal(t, "alice", outcomes[0].Winner.PlayerID)
	assert.Equal(t, outcomes, f.recorder.outcomes)

	// Both connections are free again.
	require.NoError(t, f.lobby.JoinQueue("alice", "c1"))
	require.NoError(t, f.lobby.JoinQueue("bob", "c2"))
	assert.Equal(t, 1, f.lobby.Registry().Len())
}
