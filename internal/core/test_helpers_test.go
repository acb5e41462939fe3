package core

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiremsg-server/internal/proto"
	"github.com/vovakirdan/wiremsg-server/internal/store"
)

func nopLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

// recordingConn captures every payload pushed to it.
type recordingConn struct {
	mu       sync.Mutex
	payloads [][]byte
	err      error
}

func (c *recordingConn) Push(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.payloads = append(c.payloads, payload)
	return nil
}

func (c *recordingConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.payloads)
}

func (c *recordingConn) messages(t *testing.T) []proto.Message {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]proto.Message, 0, len(c.payloads))
	for _, p := range c.payloads {
		var m proto.Message
		if err := json.Unmarshal(p, &m); err != nil {
			t.Fatalf("unmarshal pushed payload: %v", err)
		}
		out = append(out, m)
	}
	return out
}

type panickingConn struct{}

func (panickingConn) Push([]byte) error { panic("transport exploded") }

// fakeRoster is an in-memory RosterSource with call counting and error injection.
type fakeRoster struct {
	mu      sync.Mutex
	groups  map[int64][]string
	err     error
	calls   int
	gate    chan struct{}
	entered chan struct{}
}

func newFakeRoster() *fakeRoster {
	return &fakeRoster{groups: make(map[int64][]string)}
}

func (f *fakeRoster) set(groupID int64, members ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups[groupID] = members
}

func (f *fakeRoster) ListGroupMembers(ctx context.Context, groupID int64) ([]string, error) {
	f.mu.Lock()
	f.calls++
	gate, entered := f.gate, f.entered
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	members, ok := f.groups[groupID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]string(nil), members...), nil
}

func (f *fakeRoster) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var errBrokenPipe = errors.New("broken pipe")

func directMessage(id int64, sender, receiver, text string) *store.Message {
	return &store.Message{
		ID:        id,
		Sender:    sender,
		Receiver:  &receiver,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
}

func groupMessage(id, groupID int64, sender, text string) *store.Message {
	return &store.Message{
		ID:        id,
		Sender:    sender,
		GroupID:   &groupID,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
