package groups

import (
	"context"
	"errors"
	"testing"

	"github.com/vovakirdan/wiremsg-server/internal/store/sqlite"
)

type invalidations struct {
	ids []int64
}

func (i *invalidations) Invalidate(groupID int64) {
	i.ids = append(i.ids, groupID)
}

func newTestService(t *testing.T, users ...string) (*Service, *invalidations) {
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

	inv := &invalidations{}
	return New(st, inv), inv
}

func TestCreateAddsCreator(t *testing.T) {
	svc, _ := newTestService(t, "alice", "bob")
	ctx := context.Background()

	g, err := svc.Create(ctx, "  team  ", "alice", []string{"bob"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if g.Name != "team" {
		t.Fatalf("expected trimmed name, got %q", g.Name)
	}

	members, err := svc.Members(ctx, g.ID, "bob")
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 2 || members[0] != "alice" || members[1] != "bob" {
		t.Fatalf("expected [alice bob], got %v", members)
	}

	if _, err := svc.Create(ctx, "team", "bob", nil); !errors.Is(err, ErrNameTaken) {
		t.Fatalf("expected ErrNameTaken, got %v", err)
	}
	if _, err := svc.Create(ctx, "other", "alice", []string{"ghost"}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := svc.Create(ctx, "   ", "alice", nil); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
}

func TestMembershipChangesInvalidateRoster(t *testing.T) {
	svc, inv := newTestService(t, "alice", "bob", "carol")
	ctx := context.Background()

	g, err := svc.Create(ctx, "team", "alice", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.AddMember(ctx, g.ID, "bob", "carol"); !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected ErrNotMember for outsider, got %v", err)
	}
	if len(inv.ids) != 0 {
		t.Fatalf("rejected change must not invalidate, got %v", inv.ids)
	}

	if err := svc.AddMember(ctx, g.ID, "alice", "bob"); err != nil {
		t.Fatalf("add bob: %v", err)
	}
	if err := svc.AddMember(ctx, g.ID, "alice", "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if err := svc.RemoveMember(ctx, g.ID, "bob", "bob"); err != nil {
		t.Fatalf("bob leaves: %v", err)
	}

	if len(inv.ids) != 2 || inv.ids[0] != g.ID || inv.ids[1] != g.ID {
		t.Fatalf("expected two invalidations of group %d, got %v", g.ID, inv.ids)
	}

	members, err := svc.Members(ctx, g.ID, "alice")
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 1 || members[0] != "alice" {
		t.Fatalf("expected [alice], got %v", members)
	}
}

func TestRequireMember(t *testing.T) {
	svc, _ := newTestService(t, "alice", "bob")
	ctx := context.Background()

	g, err := svc.Create(ctx, "team", "alice", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.RequireMember(ctx, g.ID, "alice"); err != nil {
		t.Fatalf("expected alice to be a member, got %v", err)
	}
	if err := svc.RequireMember(ctx, g.ID, "bob"); !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}
	if err := svc.RequireMember(ctx, g.ID+100, "alice"); !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("expected ErrGroupNotFound, got %v", err)
	}

	groups, err := svc.ListForUser(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(groups) != 1 || groups[0].ID != g.ID {
		t.Fatalf("expected one group, got %v", groups)
	}
}
