package contacts

import (
	"context"
	"errors"
	"fmt"

	"github.com/vovakirdan/wiremsg-server/internal/store"
)

// Common errors for contact operations.
var (
	ErrCannotAddSelf   = errors.New("cannot add yourself as a contact")
	ErrUserNotFound    = errors.New("user not found")
	ErrContactNotFound = errors.New("contact not found")
)

// Service manages per-user contact lists.
type Service struct {
	store store.Store
}

// New creates a new contacts Service.
func New(st store.Store) *Service {
	return &Service{store: st}
}

// Add puts contact into owner's list. Adding an existing contact is a no-op.
func (s *Service) Add(ctx context.Context, owner, contact string) error {
	if owner == contact {
		return ErrCannotAddSelf
	}

	if _, err := s.store.GetUserByUsername(ctx, contact); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("lookup contact: %w", err)
	}

	if err := s.store.EnsureContact(ctx, owner, contact); err != nil {
		return fmt.Errorf("add contact: %w", err)
	}
	return nil
}

// List returns owner's contacts.
func (s *Service) List(ctx context.Context, owner string) ([]string, error) {
	contacts, err := s.store.ListContacts(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return contacts, nil
}

// Remove deletes contact from owner's list.
func (s *Service) Remove(ctx context.Context, owner, contact string) error {
	if err := s.store.DeleteContact(ctx, owner, contact); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrContactNotFound
		}
		return fmt.Errorf("remove contact: %w", err)
	}
	return nil
}
