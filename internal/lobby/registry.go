package lobby

import (
	"sort"

	"go.uber.org/zap"

	"pong-arena/internal/game"
)

// Registry owns every live match. Teardown is the only path by which a
// match leaves it.
type Registry struct {
	matches  map[game.MatchID]*game.Instance
	nextID   game.MatchID
	notifier Notifier
	recorder OutcomeRecorder
	journal  *game.Journal
	logger   *zap.Logger
}

// NewRegistry creates an empty registry. journal may be nil.
func NewRegistry(n Notifier, rec OutcomeRecorder, journal *game.Journal, logger *zap.Logger) *Registry {
	if rec == nil {
		rec = discardRecorder{}
	}
	return &Registry{
		matches:  make(map[game.MatchID]*game.Instance),
		notifier: n,
		recorder: rec,
		journal:  journal,
		logger:   logger,
	}
}

// CreateMatch allocates a fresh id, starts an instance for the pair and
// tells both participants.
func (r *Registry) CreateMatch(p1, p2 game.Participant) *game.Instance {
	r.nextID++
	inst := game.NewInstance(r.nextID, p1, p2)
	inst.Start()
	r.matches[inst.ID()] = inst

	msg := Message{Event: EventStartMatch, Data: StartMatchPayload{
		MatchID: inst.ID(),
		Player1: p1,
		Player2: p2,
	}}
	r.notifier.Notify(p1.ConnID, msg)
	r.notifier.Notify(p2.ConnID, msg)

	r.journal.Emit(game.EventTypeMatchStart, inst.ID(), 0, game.MatchStartPayload{
		Player1: p1.PlayerID,
		Player2: p2.PlayerID,
	})
	r.logger.Info("match started",
		zap.Stringer("match_id", inst.ID()),
		zap.String("player1", p1.PlayerID),
		zap.String("player2", p2.PlayerID),
	)
	return inst
}

// Get returns the live instance for id.
func (r *Registry) Get(id game.MatchID) (*game.Instance, bool) {
	inst, ok := r.matches[id]
	return inst, ok
}

// FindMatchByConnection returns the match connID plays in, if any.
func (r *Registry) FindMatchByConnection(connID string) (*game.Instance, bool) {
	if connID == "" {
		return nil, false
	}
	for _, inst := range r.matches {
		if inst.HasConn(connID) {
			return inst, true
		}
	}
	return nil, false
}

// Len returns the number of live matches.
func (r *Registry) Len() int { return len(r.matches) }

// IDs returns the live match ids in ascending order.
func (r *Registry) IDs() []game.MatchID {
	ids := make([]game.MatchID, 0, len(r.matches))
	for id := range r.matches {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Tick advances every live match once, broadcasts changed state to both
// participants and tears down the matches that finished. It returns the
// outcomes produced by this tick.
func (r *Registry) Tick() []game.Outcome {
	var finished []*game.Instance
	for _, id := range r.IDs() {
		inst := r.matches[id]
		res := inst.Tick()

		if res.Changed {
			m := inst.Match()
			msg := Message{Event: EventStateUpdate, Data: res.Snapshot}
			r.notifier.Notify(m.Player1.ConnID, msg)
			r.notifier.Notify(m.Player2.ConnID, msg)
		}
		if res.Scorer != game.SideNone {
			m := inst.Match()
			r.journal.Emit(game.EventTypeGoal, id, inst.Ticks(), game.GoalPayload{
				ScorerID: m.Participant(res.Scorer).PlayerID,
				Score1:   m.Score1,
				Score2:   m.Score2,
			})
		}
		if res.Finished {
			finished = append(finished, inst)
		}
	}

	var outcomes []game.Outcome
	for _, inst := range finished {
		out, _ := inst.Outcome()
		if r.Teardown(inst.ID(), out) {
			outcomes = append(outcomes, out)
		}
	}
	return outcomes
}

// Teardown removes a match, records its outcome and tells both
// participants. It returns false if the match was already gone.
func (r *Registry) Teardown(id game.MatchID, out game.Outcome) bool {
	inst, ok := r.matches[id]
	if !ok {
		return false
	}
	delete(r.matches, id)

	r.recorder.RecordOutcome(out)

	m := inst.Match()
	msg := Message{Event: EventMatchEnded, Data: MatchEndedPayload{
		MatchID:  id,
		WinnerID: out.Winner.PlayerID,
		Score1:   out.Score1,
		Score2:   out.Score2,
		Forfeit:  out.Forfeit,
	}}
	r.notifier.Notify(m.Player1.ConnID, msg)
	r.notifier.Notify(m.Player2.ConnID, msg)

	r.journal.Emit(game.EventTypeMatchEnd, id, inst.Ticks(), game.MatchEndPayload{
		WinnerID: out.Winner.PlayerID,
		LoserID:  out.Loser.PlayerID,
		Score1:   out.Score1,
		Score2:   out.Score2,
		Forfeit:  out.Forfeit,
	})
	r.logger.Info("match ended",
		zap.Stringer("match_id", id),
		zap.String("winner", out.Winner.PlayerID),
		zap.Int("score1", out.Score1),
		zap.Int("score2", out.Score2),
		zap.Bool("forfeit", out.Forfeit),
	)
	return true
}

// Forfeit finishes the match connID plays in, with connID as the loser,
// and tears it down.
func (r *Registry) Forfeit(connID string) (game.Outcome, bool) {
	inst, ok := r.FindMatchByConnection(connID)
	if !ok {
		return game.Outcome{}, false
	}
	out, ok := inst.HandleDisconnect(connID)
	if !ok {
		return game.Outcome{}, false
	}
	return out, r.Teardown(inst.ID(), out)
}
