package store

import (
	"database/sql"
	"fmt"
	"time"
)

// User is an account identity. Immutable after creation except by admin
// tooling outside this repository's scope.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	PasswordSalt string
	DisplayName  string
	CreatedAt    time.Time
}

// CreateUser inserts a new user row, assigning id and created_at.
func (s *Store) CreateUser(u User) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	s.logQuery("insert user", u.Email)
	res, err := s.conn.Exec(
		`INSERT INTO users (email, password_hash, password_salt, display_name, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		u.Email, u.PasswordHash, u.PasswordSalt, u.DisplayName, now.Unix(),
	)
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return User{}, fmt.Errorf("last insert id: %w", err)
	}
	u.ID = id
	u.CreatedAt = now
	return u, nil
}

// GetUserByEmail looks up a user by their unique email. Returns
// (User{}, false, nil) if no such user exists.
func (s *Store) GetUserByEmail(email string) (User, bool, error) {
	row := s.conn.QueryRow(
		`SELECT id, email, password_hash, password_salt, display_name, created_at
		 FROM users WHERE email = ?`, email)
	return scanUser(row)
}

// GetUser looks up a user by id. Returns (User{}, false, nil) if absent.
func (s *Store) GetUser(userID int64) (User, bool, error) {
	row := s.conn.QueryRow(
		`SELECT id, email, password_hash, password_salt, display_name, created_at
		 FROM users WHERE id = ?`, userID)
	return scanUser(row)
}

func scanUser(row *sql.Row) (User, bool, error) {
	var u User
	var createdAt int64
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.PasswordSalt, &u.DisplayName, &createdAt)
	if err == sql.ErrNoRows {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	return u, true, nil
}

// IssueToken creates a new bearer token row for the given user.
func (s *Store) IssueToken(userID int64, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logQuery("insert user_token", userID)
	_, err := s.conn.Exec(
		`INSERT INTO user_tokens (user_id, token, created_at) VALUES (?, ?, ?)`,
		userID, token, time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

// ResolveToken returns the user owning the given bearer token, or
// (User{}, false, nil) if the token is unknown.
func (s *Store) ResolveToken(token string) (User, bool, error) {
	row := s.conn.QueryRow(
		`SELECT u.id, u.email, u.password_hash, u.password_salt, u.display_name, u.created_at
		 FROM user_tokens t JOIN users u ON u.id = t.user_id
		 WHERE t.token = ?`, token)
	return scanUser(row)
}

// RevokeToken deletes a bearer token row, e.g. on sign-out.
func (s *Store) RevokeToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(`DELETE FROM user_tokens WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}
