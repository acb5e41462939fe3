package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint is violated.
	ErrConflict = errors.New("already exists")
	// ErrInvalidMessage is returned for messages without exactly one destination.
	ErrInvalidMessage = errors.New("message must have exactly one of receiver or group")
)

// User represents a registered account. Username is the addressing key for delivery.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Contact is a one-way entry in Owner's contact list.
type Contact struct {
	Owner     string
	Contact   string
	CreatedAt time.Time
}

// Group represents a named group chat.
type Group struct {
	ID        int64
	Name      string
	CreatedBy string
	CreatedAt time.Time
}

// Message is an immutable persisted chat message.
// Exactly one of Receiver or GroupID is set.
type Message struct {
	ID        int64
	Sender    string
	Receiver  *string
	GroupID   *int64
	Text      string
	CreatedAt time.Time
}

// IsGroup reports whether the message was addressed to a group.
func (m *Message) IsGroup() bool {
	return m.GroupID != nil
}

// Validate checks the direct/group exclusivity invariant.
func (m *Message) Validate() error {
	if (m.Receiver == nil) == (m.GroupID == nil) {
		return ErrInvalidMessage
	}
	return nil
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// ContactStore handles contact-list persistence.
type ContactStore interface {
	// EnsureContact records contact in owner's list. Idempotent.
	EnsureContact(ctx context.Context, owner, contact string) error

	// ListContacts returns owner's contacts ordered by name.
	ListContacts(ctx context.Context, owner string) ([]string, error)

	// DeleteContact removes contact from owner's list.
	DeleteContact(ctx context.Context, owner, contact string) error
}

// MessageStore handles message persistence.
type MessageStore interface {
	// CreateDirectMessage persists a message from sender to receiver.
	CreateDirectMessage(ctx context.Context, sender, receiver, text string) (*Message, error)

	// CreateGroupMessage persists a message from sender to a group.
	CreateGroupMessage(ctx context.Context, groupID int64, sender, text string) (*Message, error)

	// ListDirectMessages returns the conversation between a and b, oldest first.
	// If beforeID is provided, only messages older than that ID are returned.
	ListDirectMessages(ctx context.Context, a, b string, limit int, beforeID *int64) ([]*Message, error)

	// ListGroupMessages returns a group's messages, oldest first.
	ListGroupMessages(ctx context.Context, groupID int64, limit int, beforeID *int64) ([]*Message, error)
}

// GroupStore handles group and membership persistence.
type GroupStore interface {
	// CreateGroup creates a group and adds creator plus members atomically.
	CreateGroup(ctx context.Context, name, creator string, members []string) (*Group, error)

	// GetGroup retrieves a group by ID.
	GetGroup(ctx context.Context, id int64) (*Group, error)

	// ListGroupsForUser lists groups username belongs to.
	ListGroupsForUser(ctx context.Context, username string) ([]*Group, error)

	// ListGroupMembers returns the roster of a group in join order.
	ListGroupMembers(ctx context.Context, groupID int64) ([]string, error)

	// AddGroupMember adds username to the group. Idempotent.
	AddGroupMember(ctx context.Context, groupID int64, username string) error

	// RemoveGroupMember removes username from the group.
	RemoveGroupMember(ctx context.Context, groupID int64, username string) error

	// IsGroupMember checks if username belongs to the group.
	IsGroupMember(ctx context.Context, groupID int64, username string) (bool, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ContactStore
	MessageStore
	GroupStore

	// Close closes the underlying database connection.
	Close() error
}

// DefaultHistoryLimit caps history queries when the caller passes no limit.
const DefaultHistoryLimit = 100

// NormalizeLimit clamps a history limit into (0, DefaultHistoryLimit].
func NormalizeLimit(limit int) int {
	if limit <= 0 || limit > DefaultHistoryLimit {
		return DefaultHistoryLimit
	}
	return limit
}

// Reverse flips a slice of messages in place. History queries scan newest-first
// for pagination and reverse before returning.
func Reverse(msgs []*Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
