package lobby

import (
	"context"
	"errors"

	"pong-arena/internal/game"
)

type fakeNotifier struct {
	sent map[string][]Message
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{sent: make(map[string][]Message)}
}

func (f *fakeNotifier) Notify(connID string, msg Message) {
	f.sent[connID] = append(f.sent[connID], msg)
}

func (f *fakeNotifier) events(connID string) []string {
	var out []string
	for _, m := range f.sent[connID] {
		out = append(out, m.Event)
	}
	return out
}

func (f *fakeNotifier) last(connID, event string) (Message, bool) {
	msgs := f.sent[connID]
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Event == event {
			return msgs[i], true
		}
	}
	return Message{}, false
}

func (f *fakeNotifier) count(connID, event string) int {
	n := 0
	for _, m := range f.sent[connID] {
		if m.Event == event {
			n++
		}
	}
	return n
}

var errNotFound = errors.New("not found")

type fakeDirectory map[string]string

func (d fakeDirectory) Resolve(_ context.Context, playerID string) (string, error) {
	conn, ok := d[playerID]
	if !ok {
		return "", errNotFound
	}
	return conn, nil
}

type fakeRecorder struct {
	outcomes []game.Outcome
}

func (r *fakeRecorder) RecordOutcome(o game.Outcome) {
	r.outcomes = append(r.outcomes, o)
}
