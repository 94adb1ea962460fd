package game

import "strconv"

// MatchID identifies a live match. IDs are allocated by the registry and
// never reused within a process lifetime.
type MatchID uint64

// String returns the decimal form used on the wire and in logs.
func (id MatchID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Participant binds a player to the connection it plays from.
type Participant struct {
	PlayerID string `json:"player_id" msgpack:"player_id"`
	ConnID   string `json:"-" msgpack:"-"`
}

// Phase is the lifecycle of a match instance.
type Phase uint8

const (
	PhasePending Phase = iota
	PhaseActive
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseActive:
		return "active"
	case PhaseFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Side selects one of the two participants.
type Side uint8

const (
	SideNone Side = iota
	Side1
	Side2
)

// Match is the durable part of a game session: who plays and the score.
type Match struct {
	ID      MatchID
	Player1 Participant
	Player2 Participant
	Score1  int
	Score2  int
}

// Participant returns the participant playing on the given side.
func (m *Match) Participant(s Side) Participant {
	if s == Side2 {
		return m.Player2
	}
	return m.Player1
}

// SideOf reports which side connID plays on, or SideNone.
func (m *Match) SideOf(connID string) Side {
	switch connID {
	case "":
		return SideNone
	case m.Player1.ConnID:
		return Side1
	case m.Player2.ConnID:
		return Side2
	default:
		return SideNone
	}
}

// Outcome is the final result of a finished match.
type Outcome struct {
	MatchID MatchID
	Winner  Participant
	Loser   Participant
	Score1  int
	Score2  int
	Forfeit bool
}
