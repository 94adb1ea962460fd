package game

import "math"

// Direction is a paddle command from a participant.
type Direction int8

const (
	DirStop Direction = iota
	DirUp
	DirDown
)

// ParseDirection maps the wire form of a move to a Direction.
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "up":
		return DirUp, true
	case "down":
		return DirDown, true
	case "stop", "":
		return DirStop, true
	default:
		return DirStop, false
	}
}

func (d Direction) velocity() float64 {
	switch d {
	case DirUp:
		return -PaddleSpeed
	case DirDown:
		return PaddleSpeed
	default:
		return 0
	}
}

type paddle struct {
	y  float64 // centre
	vy float64
}

// Snapshot is the outbound view of a match after a tick.
type Snapshot struct {
	MatchID MatchID `json:"match_id" msgpack:"match_id"`
	Ball    Vec     `json:"ball" msgpack:"ball"`
	Paddle1 Vec     `json:"paddle1" msgpack:"paddle1"`
	Paddle2 Vec     `json:"paddle2" msgpack:"paddle2"`
	Score1  int     `json:"score1" msgpack:"score1"`
	Score2  int     `json:"score2" msgpack:"score2"`
}

// TickResult describes what a single tick did.
type TickResult struct {
	Snapshot Snapshot
	Changed  bool
	Scorer   Side // SideNone when no goal this tick
	Finished bool
}

// Instance owns one match's authoritative state. It is not safe for
// concurrent use: the caller serializes Tick, HandleMove and
// HandleDisconnect.
type Instance struct {
	match   Match
	phase   Phase
	paddle1 paddle
	paddle2 paddle
	ball    Vec
	vel     Vec
	ticks   uint64
	last    Snapshot
	outcome Outcome
}

// NewInstance creates a pending instance with both participants bound
// and a 0/0 score.
func NewInstance(id MatchID, p1, p2 Participant) *Instance {
	in := &Instance{
		match: Match{ID: id, Player1: p1, Player2: p2},
		phase: PhasePending,
	}
	in.paddle1.y = FieldHeight / 2
	in.paddle2.y = FieldHeight / 2
	in.serve()
	in.last = in.Snapshot()
	return in
}

// Start moves a pending instance to active. It is a no-op otherwise.
func (in *Instance) Start() {
	if in.phase == PhasePending {
		in.phase = PhaseActive
	}
}

// ID returns the match id.
func (in *Instance) ID() MatchID { return in.match.ID }

// Phase returns the current lifecycle phase.
func (in *Instance) Phase() Phase { return in.phase }

// Match returns a copy of the match record.
func (in *Instance) Match() Match { return in.match }

// Ticks returns the number of simulation steps applied so far.
func (in *Instance) Ticks() uint64 { return in.ticks }

// HasConn reports whether connID plays in this match.
func (in *Instance) HasConn(connID string) bool {
	return in.match.SideOf(connID) != SideNone
}

// Outcome returns the final result once the match is finished.
func (in *Instance) Outcome() (Outcome, bool) {
	return in.outcome, in.phase == PhaseFinished
}

// Snapshot returns the current outbound state.
func (in *Instance) Snapshot() Snapshot {
	return Snapshot{
		MatchID: in.match.ID,
		Ball:    in.ball,
		Paddle1: Vec{X: paddle1Left + PaddleWidth/2, Y: in.paddle1.y},
		Paddle2: Vec{X: paddle2Left + PaddleWidth/2, Y: in.paddle2.y},
		Score1:  in.match.Score1,
		Score2:  in.match.Score2,
	}
}

// HandleMove sets the paddle velocity of the participant playing from
// connID for the next tick. Moves from strangers or after the match has
// finished are ignored and reported as false.
func (in *Instance) HandleMove(connID string, dir Direction) bool {
	if in.phase != PhaseActive {
		return false
	}
	switch in.match.SideOf(connID) {
	case Side1:
		in.paddle1.vy = dir.velocity()
	case Side2:
		in.paddle2.vy = dir.velocity()
	default:
		return false
	}
	return true
}

// HandleDisconnect finishes the match immediately with the disconnecting
// participant as the loser. It returns false if connID is not a
// participant or the match is already finished.
func (in *Instance) HandleDisconnect(connID string) (Outcome, bool) {
	if in.phase == PhaseFinished {
		return in.outcome, false
	}
	switch in.match.SideOf(connID) {
	case Side1:
		in.finish(Side2, true)
	case Side2:
		in.finish(Side1, true)
	default:
		return Outcome{}, false
	}
	return in.outcome, true
}

// Tick advances an active match by one step.
func (in *Instance) Tick() TickResult {
	if in.phase != PhaseActive {
		return TickResult{Snapshot: in.last}
	}
	in.ticks++

	in.paddle1.y = Clamp(in.paddle1.y+in.paddle1.vy, PaddleHeight/2, FieldHeight-PaddleHeight/2)
	in.paddle2.y = Clamp(in.paddle2.y+in.paddle2.vy, PaddleHeight/2, FieldHeight-PaddleHeight/2)

	in.ball.X += in.vel.X
	in.ball.Y += in.vel.Y

	in.collidePaddles()
	in.collideWalls()

	var res TickResult
	switch {
	case in.ball.X < 0:
		res.Scorer = Side2
	case in.ball.X > FieldWidth:
		res.Scorer = Side1
	}
	if res.Scorer != SideNone {
		in.score(res.Scorer)
	}

	snap := in.Snapshot()
	res.Snapshot = snap
	res.Changed = snap != in.last
	res.Finished = in.phase == PhaseFinished
	in.last = snap
	return res
}

func (in *Instance) collidePaddles() {
	reach := PaddleHeight/2 + BallRadius

	if in.vel.X < 0 &&
		in.ball.X-BallRadius <= paddle1Right && in.ball.X+BallRadius >= paddle1Left &&
		math.Abs(in.ball.Y-in.paddle1.y) <= reach {
		in.ball.X = paddle1Right + BallRadius
		in.vel.X = -in.vel.X
		in.vel.Y = bounceVY(in.ball.Y, in.paddle1.y)
		return
	}

	if in.vel.X > 0 &&
		in.ball.X+BallRadius >= paddle2Left && in.ball.X-BallRadius <= paddle2Right &&
		math.Abs(in.ball.Y-in.paddle2.y) <= reach {
		in.ball.X = paddle2Left - BallRadius
		in.vel.X = -in.vel.X
		in.vel.Y = bounceVY(in.ball.Y, in.paddle2.y)
	}
}

// bounceVY maps the contact offset from the paddle centre to a vertical
// speed in [-MaxBounceVY, MaxBounceVY].
func bounceVY(ballY, paddleY float64) float64 {
	offset := Clamp((ballY-paddleY)/(PaddleHeight/2), -1, 1)
	return offset * MaxBounceVY
}

func (in *Instance) collideWalls() {
	if in.ball.Y-BallRadius <= 0 {
		in.ball.Y = BallRadius
		in.vel.Y = math.Abs(in.vel.Y)
	} else if in.ball.Y+BallRadius >= FieldHeight {
		in.ball.Y = FieldHeight - BallRadius
		in.vel.Y = -math.Abs(in.vel.Y)
	}
}

func (in *Instance) score(s Side) {
	if s == Side1 {
		in.match.Score1++
	} else {
		in.match.Score2++
	}
	in.serve()

	if in.match.Score1 >= WinScore {
		in.finish(Side1, false)
	} else if in.match.Score2 >= WinScore {
		in.finish(Side2, false)
	}
}

func (in *Instance) serve() {
	in.ball = Vec{X: ServeX, Y: ServeY}
	in.vel = Vec{X: ServeVX, Y: ServeVY}
}

func (in *Instance) finish(winner Side, forfeit bool) {
	loser := Side1
	if winner == Side1 {
		loser = Side2
	}
	in.phase = PhaseFinished
	in.paddle1.vy = 0
	in.paddle2.vy = 0
	in.outcome = Outcome{
		MatchID: in.match.ID,
		Winner:  in.match.Participant(winner),
		Loser:   in.match.Participant(loser),
		Score1:  in.match.Score1,
		Score2:  in.match.Score2,
		Forfeit: forfeit,
	}
}
