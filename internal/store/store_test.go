package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pong-arena/internal/game"
)

type resultRow struct {
	MatchID  uint64
	WinnerID string
	LoserID  string
	Score1   int
	Score2   int
	Forfeit  bool
	EndedAt  time.Time
}

func recentResults(t *testing.T, db *SQLite) []resultRow {
	t.Helper()
	rows, err := db.conn.Query(`
		SELECT match_id, winner_id, loser_id, score1, score2, forfeit, ended_at
		FROM match_results ORDER BY id DESC`)
	require.NoError(t, err)
	defer rows.Close()

	var out []resultRow
	for rows.Next() {
		var r resultRow
		require.NoError(t, rows.Scan(&r.MatchID, &r.WinnerID, &r.LoserID, &r.Score1, &r.Score2, &r.Forfeit, &r.EndedAt))
		out = append(out, r)
	}
	require.NoError(t, rows.Err())
	return out
}

func outcome(id game.MatchID, winner, loser string, forfeit bool) game.Outcome {
	return game.Outcome{
		MatchID: id,
		Winner:  game.Participant{PlayerID: winner, ConnID: "cw"},
		Loser:   game.Participant{PlayerID: loser, ConnID: "cl"},
		Score1:  game.WinScore,
		Score2:  3,
		Forfeit: forfeit,
	}
}

func TestSQLiteSavesOutcomes(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, db.SaveOutcome(ctx, outcome(1, "alice", "bob", false)))
	require.NoError(t, db.SaveOutcome(ctx, outcome(2, "bob", "alice", true)))

	n, err := db.CountResults(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows := recentResults(t, db)
	require.Len(t, rows, 2)
	assert.Equal(t, uint64(2), rows[0].MatchID)
	assert.Equal(t, "bob", rows[0].WinnerID)
	assert.True(t, rows[0].Forfeit)
	assert.Equal(t, "alice", rows[1].WinnerID)
	assert.Equal(t, game.WinScore, rows[1].Score1)
	assert.False(t, rows[1].EndedAt.IsZero())
}

func TestSQLiteReopenKeepsResults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	ctx := context.Background()

	db, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, db.SaveOutcome(ctx, outcome(1, "alice", "bob", false)))
	require.NoError(t, db.Close())

	db, err = OpenSQLite(path)
	require.NoError(t, err)
	defer db.Close()
	n, err := db.CountResults(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

type fakeSaver struct {
	mu    sync.Mutex
	saved []game.Outcome
	err   error
}

func (f *fakeSaver) SaveOutcome(_ context.Context, o game.Outcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, o)
	return nil
}

func TestAsyncRecorderSavesEverythingBeforeStop(t *testing.T) {
	saver := &fakeSaver{}
	r := NewAsyncRecorder(saver, 8, zap.NewNop())
	r.Start()

	for i := 1; i <= 5; i++ {
		r.RecordOutcome(outcome(game.MatchID(i), "a", "b", false))
	}
	r.Stop()

	assert.Len(t, saver.saved, 5)
	assert.Equal(t, RecorderStats{Saved: 5}, r.Stats())
}

func TestAsyncRecorderDropsNewestWhenFull(t *testing.T) {
	saver := &fakeSaver{}
	r := NewAsyncRecorder(saver, 2, zap.NewNop())

	// Not started: the buffer fills and further outcomes are dropped.
	r.RecordOutcome(outcome(1, "a", "b", false))
	r.RecordOutcome(outcome(2, "a", "b", false))
	r.RecordOutcome(outcome(3, "a", "b", false))

	r.Start()
	r.Stop()

	require.Len(t, saver.saved, 2)
	assert.Equal(t, game.MatchID(1), saver.saved[0].MatchID)
	assert.Equal(t, game.MatchID(2), saver.saved[1].MatchID)
	assert.Equal(t, uint64(1), r.Stats().Dropped)
}

func TestAsyncRecorderCountsFailures(t *testing.T) {
	saver := &fakeSaver{err: errors.New("disk full")}
	r := NewAsyncRecorder(saver, 4, zap.NewNop())
	r.Start()
	r.RecordOutcome(outcome(1, "a", "b", false))
	r.Stop()

	assert.Equal(t, RecorderStats{Failed: 1}, r.Stats())
}

func TestAsyncRecorderWithSQLite(t *testing.T) {
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer db.Close()

	r := NewAsyncRecorder(db, 0, zap.NewNop())
	r.Start()
	r.RecordOutcome(outcome(9, "alice", "bob", true))
	r.Stop()

	n, err := db.CountResults(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
