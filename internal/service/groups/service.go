package groups

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vovakirdan/wiremsg-server/internal/store"
)

// Common errors for group operations.
var (
	ErrInvalidName   = errors.New("group name must be 1-64 characters")
	ErrNameTaken     = errors.New("group name already exists")
	ErrGroupNotFound = errors.New("group not found")
	ErrUserNotFound  = errors.New("user not found")
	ErrNotMember     = errors.New("not a member of this group")
)

// RosterInvalidator is told about membership changes so cached rosters stay current.
type RosterInvalidator interface {
	Invalidate(groupID int64)
}

// Service provides group management business logic.
type Service struct {
	store  store.Store
	roster RosterInvalidator
}

// New creates a new groups Service. roster may be nil when rosters are not cached.
func New(st store.Store, roster RosterInvalidator) *Service {
	return &Service{store: st, roster: roster}
}

// Create makes a group named name. The creator is always a member.
func (s *Service) Create(ctx context.Context, name, creator string, members []string) (*store.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 64 {
		return nil, ErrInvalidName
	}

	group, err := s.store.CreateGroup(ctx, name, creator, members)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			return nil, ErrNameTaken
		case errors.Is(err, store.ErrNotFound):
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("create group: %w", err)
	}
	return group, nil
}

// ListForUser returns the groups username belongs to.
func (s *Service) ListForUser(ctx context.Context, username string) ([]*store.Group, error) {
	groups, err := s.store.ListGroupsForUser(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return groups, nil
}

// Members returns the roster of groupID. caller must be a member.
func (s *Service) Members(ctx context.Context, groupID int64, caller string) ([]string, error) {
	if err := s.RequireMember(ctx, groupID, caller); err != nil {
		return nil, err
	}
	members, err := s.store.ListGroupMembers(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// AddMember adds username to groupID on behalf of caller.
func (s *Service) AddMember(ctx context.Context, groupID int64, caller, username string) error {
	if err := s.RequireMember(ctx, groupID, caller); err != nil {
		return err
	}

	if err := s.store.AddGroupMember(ctx, groupID, username); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("add member: %w", err)
	}

	s.invalidate(groupID)
	return nil
}

// RemoveMember removes username from groupID on behalf of caller. Members may remove themselves.
func (s *Service) RemoveMember(ctx context.Context, groupID int64, caller, username string) error {
	if err := s.RequireMember(ctx, groupID, caller); err != nil {
		return err
	}

	if err := s.store.RemoveGroupMember(ctx, groupID, username); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("remove member: %w", err)
	}

	s.invalidate(groupID)
	return nil
}

// RequireMember returns ErrGroupNotFound or ErrNotMember unless username belongs to groupID.
func (s *Service) RequireMember(ctx context.Context, groupID int64, username string) error {
	if _, err := s.store.GetGroup(ctx, groupID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrGroupNotFound
		}
		return fmt.Errorf("get group: %w", err)
	}

	ok, err := s.store.IsGroupMember(ctx, groupID, username)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if !ok {
		return ErrNotMember
	}
	return nil
}

func (s *Service) invalidate(groupID int64) {
	if s.roster != nil {
		s.roster.Invalidate(groupID)
	}
}
