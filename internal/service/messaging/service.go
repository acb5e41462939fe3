package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiremsg-server/internal/store"
)

// Common errors for message operations.
var (
	ErrEmptyText    = errors.New("message text is empty")
	ErrTextTooLong  = errors.New("message text is too long")
	ErrInvalidText  = errors.New("message text is not valid UTF-8")
	ErrUserNotFound = errors.New("user not found")
)

// Notifier schedules live delivery of a persisted message. It must not block.
type Notifier interface {
	Notify(msg *store.Message) bool
}

// MembershipChecker gates group sends and history.
type MembershipChecker interface {
	RequireMember(ctx context.Context, groupID int64, username string) error
}

// Service accepts messages, stores them and hands them to live delivery.
type Service struct {
	store    store.Store
	members  MembershipChecker
	notifier Notifier
	maxBytes int
	log      *zerolog.Logger
}

// New creates a messaging Service. maxBytes <= 0 disables the length check.
func New(st store.Store, members MembershipChecker, notifier Notifier, maxBytes int, logger *zerolog.Logger) *Service {
	return &Service{
		store:    st,
		members:  members,
		notifier: notifier,
		maxBytes: maxBytes,
		log:      logger,
	}
}

// SendDirect stores a message from sender to receiver and schedules its push.
// Once the message is stored the call succeeds whether or not anyone is online.
func (s *Service) SendDirect(ctx context.Context, sender, receiver, text string) (*store.Message, error) {
	if err := s.validateText(text); err != nil {
		return nil, err
	}

	if _, err := s.store.GetUserByUsername(ctx, receiver); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup receiver: %w", err)
	}

	s.ensureContact(ctx, receiver, sender)

	msg, err := s.store.CreateDirectMessage(ctx, sender, receiver, text)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("store message: %w", err)
	}

	s.notify(msg)
	return msg, nil
}

// SendGroup stores a message from sender to groupID and schedules its push.
func (s *Service) SendGroup(ctx context.Context, sender string, groupID int64, text string) (*store.Message, error) {
	if err := s.validateText(text); err != nil {
		return nil, err
	}
	if err := s.members.RequireMember(ctx, groupID, sender); err != nil {
		return nil, err
	}

	msg, err := s.store.CreateGroupMessage(ctx, groupID, sender, text)
	if err != nil {
		return nil, fmt.Errorf("store group message: %w", err)
	}

	s.notify(msg)
	return msg, nil
}

// DirectHistory returns the conversation between user and peer, oldest first.
func (s *Service) DirectHistory(ctx context.Context, user, peer string, limit int, beforeID *int64) ([]*store.Message, error) {
	msgs, err := s.store.ListDirectMessages(ctx, user, peer, store.NormalizeLimit(limit), beforeID)
	if err != nil {
		return nil, fmt.Errorf("list direct messages: %w", err)
	}
	return msgs, nil
}

// GroupHistory returns a group's messages, oldest first. user must be a member.
func (s *Service) GroupHistory(ctx context.Context, user string, groupID int64, limit int, beforeID *int64) ([]*store.Message, error) {
	if err := s.members.RequireMember(ctx, groupID, user); err != nil {
		return nil, err
	}
	msgs, err := s.store.ListGroupMessages(ctx, groupID, store.NormalizeLimit(limit), beforeID)
	if err != nil {
		return nil, fmt.Errorf("list group messages: %w", err)
	}
	return msgs, nil
}

// ensureContact makes the sender show up in the receiver's contact list.
// Failures are logged and never fail the send.
func (s *Service) ensureContact(ctx context.Context, owner, contact string) {
	if owner == contact {
		return
	}
	if err := s.store.EnsureContact(ctx, owner, contact); err != nil {
		s.log.Warn().Err(err).Str("owner", owner).Str("contact", contact).Msg("ensure contact failed")
	}
}

func (s *Service) notify(msg *store.Message) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(msg)
}

func (s *Service) validateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	if !utf8.ValidString(text) {
		return ErrInvalidText
	}
	if s.maxBytes > 0 && len(text) > s.maxBytes {
		return ErrTextTooLong
	}
	return nil
}
