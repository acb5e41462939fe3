package messaging

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/vovakirdan/wiremsg-server/internal/log"
	"github.com/vovakirdan/wiremsg-server/internal/service/groups"
	"github.com/vovakirdan/wiremsg-server/internal/store"
	"github.com/vovakirdan/wiremsg-server/internal/store/sqlite"
)

// persistedNotifier checks that every notified message is already readable from the store.
type persistedNotifier struct {
	t        *testing.T
	store    store.Store
	notified []*store.Message
}

func (n *persistedNotifier) Notify(msg *store.Message) bool {
	n.t.Helper()
	var (
		history []*store.Message
		err     error
	)
	if msg.IsGroup() {
		history, err = n.store.ListGroupMessages(context.Background(), *msg.GroupID, 0, nil)
	} else {
		history, err = n.store.ListDirectMessages(context.Background(), msg.Sender, *msg.Receiver, 0, nil)
	}
	if err != nil {
		n.t.Errorf("history at notify time: %v", err)
	}
	found := false
	for _, h := range history {
		if h.ID == msg.ID {
			found = true
		}
	}
	if !found {
		n.t.Errorf("message %d notified before it was stored", msg.ID)
	}
	n.notified = append(n.notified, msg)
	return true
}

type fixture struct {
	svc      *Service
	groups   *groups.Service
	store    store.Store
	notifier *persistedNotifier
}

func newFixture(t *testing.T, users ...string) *fixture {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	for _, u := range users {
		if _, err := st.CreateUser(context.Background(), u, "hash"); err != nil {
			t.Fatalf("create user %s: %v", u, err)
		}
	}

	groupSvc := groups.New(st, nil)
	notifier := &persistedNotifier{t: t, store: st}
	return &fixture{
		svc:      New(st, groupSvc, notifier, 64, log.Nop()),
		groups:   groupSvc,
		store:    st,
		notifier: notifier,
	}
}

func TestSendDirectPersistsThenNotifies(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()

	msg, err := f.svc.SendDirect(ctx, "alice", "bob", "hi")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.ID == 0 || msg.Receiver == nil || *msg.Receiver != "bob" || msg.GroupID != nil {
		t.Fatalf("unexpected stored message: %+v", msg)
	}
	if len(f.notifier.notified) != 1 || f.notifier.notified[0].ID != msg.ID {
		t.Fatalf("expected exactly one notify for message %d, got %d", msg.ID, len(f.notifier.notified))
	}

	// Sender lands in the receiver's contacts, not the other way round.
	contacts, err := f.store.ListContacts(ctx, "bob")
	if err != nil {
		t.Fatalf("list contacts: %v", err)
	}
	if len(contacts) != 1 || contacts[0] != "alice" {
		t.Fatalf("expected bob's contacts to be [alice], got %v", contacts)
	}
	if contacts, _ := f.store.ListContacts(ctx, "alice"); len(contacts) != 0 {
		t.Fatalf("expected alice to have no contacts, got %v", contacts)
	}

	// A second message does not duplicate the contact.
	if _, err := f.svc.SendDirect(ctx, "alice", "bob", "again"); err != nil {
		t.Fatalf("send again: %v", err)
	}
	if contacts, _ := f.store.ListContacts(ctx, "bob"); len(contacts) != 1 {
		t.Fatalf("expected a single contact entry, got %v", contacts)
	}

	history, err := f.svc.DirectHistory(ctx, "bob", "alice", 0, nil)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[0].Text != "hi" || history[1].Text != "again" {
		t.Fatalf("unexpected history: %v", history)
	}
}

func TestSendDirectToSelfSkipsContact(t *testing.T) {
	f := newFixture(t, "alice")
	ctx := context.Background()

	if _, err := f.svc.SendDirect(ctx, "alice", "alice", "note to self"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if contacts, _ := f.store.ListContacts(ctx, "alice"); len(contacts) != 0 {
		t.Fatalf("expected no self contact, got %v", contacts)
	}
	if len(f.notifier.notified) != 1 {
		t.Fatalf("expected one notify, got %d", len(f.notifier.notified))
	}
}

func TestSendDirectRejectsBadInput(t *testing.T) {
	f := newFixture(t, "alice")
	ctx := context.Background()

	cases := []struct {
		name     string
		receiver string
		text     string
		want     error
	}{
		{name: "empty text", receiver: "alice", text: "   ", want: ErrEmptyText},
		{name: "too long", receiver: "alice", text: strings.Repeat("x", 65), want: ErrTextTooLong},
		{name: "invalid utf8", receiver: "alice", text: "\xff\xfe", want: ErrInvalidText},
		{name: "unknown receiver", receiver: "ghost", text: "hi", want: ErrUserNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.SendDirect(ctx, "alice", tc.receiver, tc.text); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if len(f.notifier.notified) != 0 {
		t.Fatalf("rejected sends must not notify, got %d", len(f.notifier.notified))
	}
}

func TestSendDirectFailsWhenStoreFails(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()

	_ = f.store.Close()

	if _, err := f.svc.SendDirect(ctx, "alice", "bob", "hi"); err == nil {
		t.Fatalf("expected persistence failure to surface")
	}
	if len(f.notifier.notified) != 0 {
		t.Fatalf("failed persistence must not notify")
	}
}

func TestSendGroup(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	ctx := context.Background()

	g, err := f.groups.Create(ctx, "team", "alice", []string{"bob"})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}

	msg, err := f.svc.SendGroup(ctx, "bob", g.ID, "hello team")
	if err != nil {
		t.Fatalf("send group: %v", err)
	}
	if !msg.IsGroup() || *msg.GroupID != g.ID || msg.Receiver != nil {
		t.Fatalf("unexpected stored message: %+v", msg)
	}
	if len(f.notifier.notified) != 1 {
		t.Fatalf("expected one notify, got %d", len(f.notifier.notified))
	}

	if _, err := f.svc.SendGroup(ctx, "carol", g.ID, "let me in"); !errors.Is(err, groups.ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}
	if _, err := f.svc.SendGroup(ctx, "alice", g.ID+100, "hi"); !errors.Is(err, groups.ErrGroupNotFound) {
		t.Fatalf("expected ErrGroupNotFound, got %v", err)
	}

	history, err := f.svc.GroupHistory(ctx, "alice", g.ID, 10, nil)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].ID != msg.ID {
		t.Fatalf("unexpected history: %v", history)
	}
	if _, err := f.svc.GroupHistory(ctx, "carol", g.ID, 10, nil); !errors.Is(err, groups.ErrNotMember) {
		t.Fatalf("expected ErrNotMember for outsider history, got %v", err)
	}
}
