package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/wiremsg-server/internal/store"
)

//go:embed schema.sql
var schema string

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens the database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// translate maps constraint violations onto store sentinels.
func translate(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%s: %w", what, store.ErrConflict)
		case sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%s: %w", what, store.ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash string) (*store.User, error) {
	query := `
		INSERT INTO users (username, password_hash, created_at)
		VALUES (?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, username, passwordHash, time.Now().UTC()); err != nil {
		return nil, translate(err, "insert user")
	}

	return s.GetUserByUsername(ctx, username)
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, created_at
		FROM users
		WHERE username = ?
	`
	var user store.User
	err := s.db.QueryRowContext(ctx, query, username).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, translate(err, "query user")
	}

	return &user, nil
}

// ==== ContactStore implementation ====

// EnsureContact records contact in owner's list. Idempotent.
func (s *SQLiteStore) EnsureContact(ctx context.Context, owner, contact string) error {
	query := `
		INSERT OR IGNORE INTO contacts (owner, contact, created_at)
		VALUES (?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, owner, contact, time.Now().UTC()); err != nil {
		return translate(err, "insert contact")
	}
	return nil
}

// ListContacts returns owner's contacts ordered by name.
func (s *SQLiteStore) ListContacts(ctx context.Context, owner string) ([]string, error) {
	query := `
		SELECT contact FROM contacts
		WHERE owner = ?
		ORDER BY contact ASC
	`
	return s.queryStrings(ctx, query, owner)
}

// DeleteContact removes contact from owner's list.
func (s *SQLiteStore) DeleteContact(ctx context.Context, owner, contact string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM contacts WHERE owner = ? AND contact = ?`, owner, contact)
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("delete contact: %w", store.ErrNotFound)
	}
	return nil
}

// ==== MessageStore implementation ====

// CreateDirectMessage persists a message from sender to receiver.
func (s *SQLiteStore) CreateDirectMessage(ctx context.Context, sender, receiver, text string) (*store.Message, error) {
	msg := &store.Message{
		Sender:    sender,
		Receiver:  &receiver,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.insertMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// CreateGroupMessage persists a message from sender to a group.
func (s *SQLiteStore) CreateGroupMessage(ctx context.Context, groupID int64, sender, text string) (*store.Message, error) {
	msg := &store.Message{
		Sender:    sender,
		GroupID:   &groupID,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.insertMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *SQLiteStore) insertMessage(ctx context.Context, msg *store.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO messages (sender, receiver, group_id, text, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, msg.Sender, msg.Receiver, msg.GroupID, msg.Text, msg.CreatedAt)
	if err != nil {
		return translate(err, "insert message")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	msg.ID = id
	return nil
}

// ListDirectMessages returns the conversation between a and b, oldest first.
func (s *SQLiteStore) ListDirectMessages(ctx context.Context, a, b string, limit int, beforeID *int64) ([]*store.Message, error) {
	query := `
		SELECT id, sender, receiver, group_id, text, created_at
		FROM messages
		WHERE group_id IS NULL
		  AND ((sender = ? AND receiver = ?) OR (sender = ? AND receiver = ?))
		  AND (? IS NULL OR id < ?)
		ORDER BY id DESC
		LIMIT ?
	`
	return s.queryMessages(ctx, query, a, b, b, a, beforeID, beforeID, store.NormalizeLimit(limit))
}

// ListGroupMessages returns a group's messages, oldest first.
func (s *SQLiteStore) ListGroupMessages(ctx context.Context, groupID int64, limit int, beforeID *int64) ([]*store.Message, error) {
	query := `
		SELECT id, sender, receiver, group_id, text, created_at
		FROM messages
		WHERE group_id = ?
		  AND (? IS NULL OR id < ?)
		ORDER BY id DESC
		LIMIT ?
	`
	return s.queryMessages(ctx, query, groupID, beforeID, beforeID, store.NormalizeLimit(limit))
}

func (s *SQLiteStore) queryMessages(ctx context.Context, query string, args ...any) ([]*store.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*store.Message, 0)
	for rows.Next() {
		var msg store.Message
		var receiver sql.NullString
		var groupID sql.NullInt64
		if err := rows.Scan(&msg.ID, &msg.Sender, &receiver, &groupID, &msg.Text, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if receiver.Valid {
			msg.Receiver = &receiver.String
		}
		if groupID.Valid {
			msg.GroupID = &groupID.Int64
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	store.Reverse(messages)
	return messages, nil
}

// ==== GroupStore implementation ====

// CreateGroup creates a group and adds creator plus members atomically.
func (s *SQLiteStore) CreateGroup(ctx context.Context, name, creator string, members []string) (*store.Group, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx,
		`INSERT INTO chat_groups (name, created_by, created_at) VALUES (?, ?, ?)`,
		name, creator, now)
	if err != nil {
		return nil, translate(err, "insert group")
	}

	groupID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	memberQuery := `
		INSERT OR IGNORE INTO group_members (group_id, username, joined_at)
		VALUES (?, ?, ?)
	`
	for _, member := range append([]string{creator}, members...) {
		if _, err := tx.ExecContext(ctx, memberQuery, groupID, member, now); err != nil {
			return nil, translate(err, fmt.Sprintf("add member %q", member))
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return &store.Group{ID: groupID, Name: name, CreatedBy: creator, CreatedAt: now}, nil
}

// GetGroup retrieves a group by ID.
func (s *SQLiteStore) GetGroup(ctx context.Context, id int64) (*store.Group, error) {
	query := `
		SELECT id, name, created_by, created_at
		FROM chat_groups
		WHERE id = ?
	`
	var group store.Group
	err := s.db.QueryRowContext(ctx, query, id).Scan(&group.ID, &group.Name, &group.CreatedBy, &group.CreatedAt)
	if err != nil {
		return nil, translate(err, "query group")
	}
	return &group, nil
}

// ListGroupsForUser lists groups username belongs to.
func (s *SQLiteStore) ListGroupsForUser(ctx context.Context, username string) ([]*store.Group, error) {
	query := `
		SELECT g.id, g.name, g.created_by, g.created_at
		FROM chat_groups g
		JOIN group_members gm ON g.id = gm.group_id
		WHERE gm.username = ?
		ORDER BY g.id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, username)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()

	groups := make([]*store.Group, 0)
	for rows.Next() {
		var group store.Group
		if err := rows.Scan(&group.ID, &group.Name, &group.CreatedBy, &group.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, &group)
	}

	return groups, rows.Err()
}

// ListGroupMembers returns the roster of a group in join order.
func (s *SQLiteStore) ListGroupMembers(ctx context.Context, groupID int64) ([]string, error) {
	query := `
		SELECT username FROM group_members
		WHERE group_id = ?
		ORDER BY joined_at ASC, rowid ASC
	`
	return s.queryStrings(ctx, query, groupID)
}

// AddGroupMember adds username to the group. Idempotent.
func (s *SQLiteStore) AddGroupMember(ctx context.Context, groupID int64, username string) error {
	query := `
		INSERT OR IGNORE INTO group_members (group_id, username, joined_at)
		VALUES (?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, groupID, username, time.Now().UTC()); err != nil {
		return translate(err, "insert group member")
	}
	return nil
}

// RemoveGroupMember removes username from the group.
func (s *SQLiteStore) RemoveGroupMember(ctx context.Context, groupID int64, username string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM group_members WHERE group_id = ? AND username = ?`, groupID, username)
	if err != nil {
		return fmt.Errorf("delete group member: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("delete group member: %w", store.ErrNotFound)
	}
	return nil
}

// IsGroupMember checks if username belongs to the group.
func (s *SQLiteStore) IsGroupMember(ctx context.Context, groupID int64, username string) (bool, error) {
	query := `
		SELECT 1 FROM group_members
		WHERE group_id = ? AND username = ?
	`
	var exists int
	err := s.db.QueryRowContext(ctx, query, groupID, username).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query membership: %w", err)
	}

	return true, nil
}

func (s *SQLiteStore) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	values := make([]string, 0)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		values = append(values, v)
	}

	return values, rows.Err()
}
