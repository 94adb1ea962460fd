package lobby

import "pong-arena/internal/game"

// Outbound event names.
const (
	EventAlreadyInMatch  = "alreadyInMatch"
	EventSendInvite      = "sendInvite"
	EventInviteDeclined  = "inviteDeclined"
	EventInviteCancelled = "inviteCancelled"
	EventStartMatch      = "startMatch"
	EventStateUpdate     = "stateUpdate"
	EventMatchEnded      = "matchEnded"
)

// InvitePayload is sent to the invitee on sendInvite and to the other
// party when an invite is declined or cancelled.
type InvitePayload struct {
	PlayerID   string `json:"player_id" msgpack:"player_id"`
	OpponentID string `json:"opponent_id" msgpack:"opponent_id"`
}

// StartMatchPayload is sent to both participants of a new match.
type StartMatchPayload struct {
	MatchID game.MatchID     `json:"match_id" msgpack:"match_id"`
	Player1 game.Participant `json:"player1" msgpack:"player1"`
	Player2 game.Participant `json:"player2" msgpack:"player2"`
}

// MatchEndedPayload is sent to both participants when a match leaves the
// registry.
type MatchEndedPayload struct {
	MatchID  game.MatchID `json:"match_id" msgpack:"match_id"`
	WinnerID string       `json:"winner_id" msgpack:"winner_id"`
	Score1   int          `json:"score1" msgpack:"score1"`
	Score2   int          `json:"score2" msgpack:"score2"`
	Forfeit  bool         `json:"forfeit" msgpack:"forfeit"`
}
