package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vovakirdan/wiremsg-server/internal/store"
)

//go:embed schema.sql
var schema string

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// PostgresStore implements store.Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// New connects to databaseURL and applies the schema.
func New(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func translate(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%s: %w", what, store.ErrConflict)
		case codeForeignKeyViolation:
			return fmt.Errorf("%s: %w", what, store.ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}

// ==== UserStore implementation ====

func (s *PostgresStore) CreateUser(ctx context.Context, username, passwordHash string) (*store.User, error) {
	query := `
		INSERT INTO users (username, password_hash)
		VALUES ($1, $2)
		RETURNING id, username, password_hash, created_at
	`
	var user store.User
	err := s.pool.QueryRow(ctx, query, username, passwordHash).Scan(
		&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return nil, translate(err, "insert user")
	}
	return &user, nil
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, created_at
		FROM users
		WHERE username = $1
	`
	var user store.User
	err := s.pool.QueryRow(ctx, query, username).Scan(
		&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return nil, translate(err, "query user")
	}
	return &user, nil
}

// ==== ContactStore implementation ====

func (s *PostgresStore) EnsureContact(ctx context.Context, owner, contact string) error {
	query := `
		INSERT INTO contacts (owner, contact)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	if _, err := s.pool.Exec(ctx, query, owner, contact); err != nil {
		return translate(err, "insert contact")
	}
	return nil
}

func (s *PostgresStore) ListContacts(ctx context.Context, owner string) ([]string, error) {
	return s.queryStrings(ctx, `SELECT contact FROM contacts WHERE owner = $1 ORDER BY contact`, owner)
}

func (s *PostgresStore) DeleteContact(ctx context.Context, owner, contact string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM contacts WHERE owner = $1 AND contact = $2`, owner, contact)
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete contact: %w", store.ErrNotFound)
	}
	return nil
}

// ==== MessageStore implementation ====

func (s *PostgresStore) CreateDirectMessage(ctx context.Context, sender, receiver, text string) (*store.Message, error) {
	return s.insertMessage(ctx, &store.Message{Sender: sender, Receiver: &receiver, Text: text})
}

func (s *PostgresStore) CreateGroupMessage(ctx context.Context, groupID int64, sender, text string) (*store.Message, error) {
	return s.insertMessage(ctx, &store.Message{Sender: sender, GroupID: &groupID, Text: text})
}

func (s *PostgresStore) insertMessage(ctx context.Context, msg *store.Message) (*store.Message, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO messages (sender, receiver, group_id, text)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := s.pool.QueryRow(ctx, query, msg.Sender, msg.Receiver, msg.GroupID, msg.Text).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return nil, translate(err, "insert message")
	}
	return msg, nil
}

func (s *PostgresStore) ListDirectMessages(ctx context.Context, a, b string, limit int, beforeID *int64) ([]*store.Message, error) {
	query := `
		SELECT id, sender, receiver, group_id, text, created_at
		FROM messages
		WHERE group_id IS NULL
		  AND ((sender = $1 AND receiver = $2) OR (sender = $2 AND receiver = $1))
		  AND ($3::bigint IS NULL OR id < $3)
		ORDER BY id DESC
		LIMIT $4
	`
	return s.queryMessages(ctx, query, a, b, beforeID, store.NormalizeLimit(limit))
}

func (s *PostgresStore) ListGroupMessages(ctx context.Context, groupID int64, limit int, beforeID *int64) ([]*store.Message, error) {
	query := `
		SELECT id, sender, receiver, group_id, text, created_at
		FROM messages
		WHERE group_id = $1
		  AND ($2::bigint IS NULL OR id < $2)
		ORDER BY id DESC
		LIMIT $3
	`
	return s.queryMessages(ctx, query, groupID, beforeID, store.NormalizeLimit(limit))
}

func (s *PostgresStore) queryMessages(ctx context.Context, query string, args ...any) ([]*store.Message, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}

	messages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*store.Message, error) {
		var msg store.Message
		err := row.Scan(&msg.ID, &msg.Sender, &msg.Receiver, &msg.GroupID, &msg.Text, &msg.CreatedAt)
		return &msg, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan messages: %w", err)
	}

	store.Reverse(messages)
	return messages, nil
}

// ==== GroupStore implementation ====

func (s *PostgresStore) CreateGroup(ctx context.Context, name, creator string, members []string) (*store.Group, error) {
	var group store.Group
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO chat_groups (name, created_by) VALUES ($1, $2) RETURNING id, name, created_by, created_at`,
			name, creator,
		).Scan(&group.ID, &group.Name, &group.CreatedBy, &group.CreatedAt)
		if err != nil {
			return translate(err, "insert group")
		}

		batch := &pgx.Batch{}
		for _, member := range append([]string{creator}, members...) {
			batch.Queue(`INSERT INTO group_members (group_id, username) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				group.ID, member)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return translate(err, "add members")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (s *PostgresStore) GetGroup(ctx context.Context, id int64) (*store.Group, error) {
	var group store.Group
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, created_by, created_at FROM chat_groups WHERE id = $1`, id,
	).Scan(&group.ID, &group.Name, &group.CreatedBy, &group.CreatedAt)
	if err != nil {
		return nil, translate(err, "query group")
	}
	return &group, nil
}

func (s *PostgresStore) ListGroupsForUser(ctx context.Context, username string) ([]*store.Group, error) {
	query := `
		SELECT g.id, g.name, g.created_by, g.created_at
		FROM chat_groups g
		JOIN group_members gm ON g.id = gm.group_id
		WHERE gm.username = $1
		ORDER BY g.id
	`
	rows, err := s.pool.Query(ctx, query, username)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	groups, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*store.Group, error) {
		var group store.Group
		err := row.Scan(&group.ID, &group.Name, &group.CreatedBy, &group.CreatedAt)
		return &group, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan groups: %w", err)
	}
	return groups, nil
}

func (s *PostgresStore) ListGroupMembers(ctx context.Context, groupID int64) ([]string, error) {
	return s.queryStrings(ctx,
		`SELECT username FROM group_members WHERE group_id = $1 ORDER BY joined_at, username`, groupID)
}

func (s *PostgresStore) AddGroupMember(ctx context.Context, groupID int64, username string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO group_members (group_id, username) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		groupID, username)
	if err != nil {
		return translate(err, "insert group member")
	}
	return nil
}

func (s *PostgresStore) RemoveGroupMember(ctx context.Context, groupID int64, username string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM group_members WHERE group_id = $1 AND username = $2`, groupID, username)
	if err != nil {
		return fmt.Errorf("delete group member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete group member: %w", store.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) IsGroupMember(ctx context.Context, groupID int64, username string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM group_members WHERE group_id = $1 AND username = $2)`,
		groupID, username,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query membership: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	values, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return values, nil
}
