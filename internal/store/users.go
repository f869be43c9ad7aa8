package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("record not found")

// User mirrors one account. AccountKey authenticates the user against this
// service; APIKey is the user's own OpenAI credential.
type User struct {
	ID         string `db:"id"`
	Username   string `db:"username"`
	AccountKey string `db:"account_key"`
	APIKey     string `db:"api_key"`
	CreatedAt  int64  `db:"created_at"`
}

// CreateUser inserts a new user record
func (s *Store) CreateUser(ctx context.Context, u User) error {
	u.CreatedAt = time.Now().Unix()
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO users (id, username, account_key, api_key, created_at)
		VALUES (:id, :username, :account_key, :api_key, :created_at)`, u)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetUser returns a user by id
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	var u User
	err := s.db.GetContext(ctx, &u, `SELECT * FROM users WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// GetUserByUsername returns a user by username
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	err := s.db.GetContext(ctx, &u, `SELECT * FROM users WHERE username = ?`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	return &u, nil
}

// SetUserAPIKey stores the user's provider credential
func (s *Store) SetUserAPIKey(ctx context.Context, id, apiKey string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET api_key = ? WHERE id = ?`, apiKey, id)
	if err != nil {
		return fmt.Errorf("set api key: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
