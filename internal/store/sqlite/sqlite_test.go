package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/vovakirdan/wiremsg-server/internal/store"
)

func newTestStore(t *testing.T, users ...string) *SQLiteStore {
	t.Helper()

	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	for _, u := range users {
		if _, err := s.CreateUser(context.Background(), u, "hash"); err != nil {
			t.Fatalf("failed to create user %s: %v", u, err)
		}
	}
	return s
}

func TestCreateUserConflict(t *testing.T) {
	s := newTestStore(t, "alice")

	_, err := s.CreateUser(context.Background(), "alice", "other")
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	if _, err := s.GetUserByUsername(context.Background(), "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEnsureContactIsIdempotent(t *testing.T) {
	s := newTestStore(t, "alice", "bob", "carol")
	ctx := context.Background()

	for range 3 {
		if err := s.EnsureContact(ctx, "bob", "alice"); err != nil {
			t.Fatalf("ensure contact: %v", err)
		}
	}
	if err := s.EnsureContact(ctx, "bob", "carol"); err != nil {
		t.Fatalf("ensure contact: %v", err)
	}

	contacts, err := s.ListContacts(ctx, "bob")
	if err != nil {
		t.Fatalf("list contacts: %v", err)
	}
	if len(contacts) != 2 || contacts[0] != "alice" || contacts[1] != "carol" {
		t.Fatalf("unexpected contacts: %v", contacts)
	}

	if err := s.EnsureContact(ctx, "bob", "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown contact, got %v", err)
	}

	if err := s.DeleteContact(ctx, "bob", "alice"); err != nil {
		t.Fatalf("delete contact: %v", err)
	}
	if err := s.DeleteContact(ctx, "bob", "alice"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestDirectMessagesHistory(t *testing.T) {
	s := newTestStore(t, "alice", "bob", "carol")
	ctx := context.Background()

	texts := []struct{ from, to, text string }{
		{"alice", "bob", "hi"},
		{"bob", "alice", "hello"},
		{"alice", "carol", "unrelated"},
		{"alice", "bob", "how are you"},
	}
	var last *store.Message
	for _, m := range texts {
		msg, err := s.CreateDirectMessage(ctx, m.from, m.to, m.text)
		if err != nil {
			t.Fatalf("create message: %v", err)
		}
		if msg.ID == 0 || msg.Receiver == nil || *msg.Receiver != m.to || msg.GroupID != nil {
			t.Fatalf("unexpected stored message: %+v", msg)
		}
		last = msg
	}

	history, err := s.ListDirectMessages(ctx, "bob", "alice", 0, nil)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	want := []string{"hi", "hello", "how are you"}
	if len(history) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(history))
	}
	for i, msg := range history {
		if msg.Text != want[i] {
			t.Fatalf("message %d: expected %q, got %q", i, want[i], msg.Text)
		}
	}

	older, err := s.ListDirectMessages(ctx, "alice", "bob", 1, &last.ID)
	if err != nil {
		t.Fatalf("list older: %v", err)
	}
	if len(older) != 1 || older[0].Text != "hello" {
		t.Fatalf("unexpected page: %+v", older)
	}
}

func TestGroupLifecycle(t *testing.T) {
	s := newTestStore(t, "alice", "bob", "carol")
	ctx := context.Background()

	group, err := s.CreateGroup(ctx, "team", "alice", []string{"bob", "carol", "alice"})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}

	members, err := s.ListGroupMembers(ctx, group.ID)
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 3 || members[0] != "alice" {
		t.Fatalf("expected creator first and three members, got %v", members)
	}

	if _, err := s.CreateGroup(ctx, "team", "bob", nil); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate name, got %v", err)
	}
	if _, err := s.CreateGroup(ctx, "ghosts", "alice", []string{"ghost"}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown member, got %v", err)
	}
	if _, err := s.GetGroup(ctx, 999); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown group, got %v", err)
	}

	if err := s.RemoveGroupMember(ctx, group.ID, "bob"); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	ok, err := s.IsGroupMember(ctx, group.ID, "bob")
	if err != nil || ok {
		t.Fatalf("expected bob removed, ok=%v err=%v", ok, err)
	}

	msg, err := s.CreateGroupMessage(ctx, group.ID, "alice", "welcome")
	if err != nil {
		t.Fatalf("create group message: %v", err)
	}
	if msg.GroupID == nil || *msg.GroupID != group.ID || msg.Receiver != nil {
		t.Fatalf("unexpected group message: %+v", msg)
	}

	history, err := s.ListGroupMessages(ctx, group.ID, 10, nil)
	if err != nil {
		t.Fatalf("list group messages: %v", err)
	}
	if len(history) != 1 || history[0].Text != "welcome" {
		t.Fatalf("unexpected group history: %+v", history)
	}

	groups, err := s.ListGroupsForUser(ctx, "carol")
	if err != nil {
		t.Fatalf("list groups: %v", err)
	}
	if len(groups) != 1 || groups[0].Name != "team" {
		t.Fatalf("unexpected groups: %+v", groups)
	}
}
