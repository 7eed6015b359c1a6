package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const sessionDuration = 24 * time.Hour

// Sentinel errors returned by Login and ValidateSession. Handlers map
// these to 401 without leaking which half of the credential was wrong.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidSession     = errors.New("invalid session")
	ErrSessionExpired     = errors.New("session expired")
)

// Session is an authenticated session handed to the cookie layer.
type Session struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

// Service owns the single-admin credential store and its sessions.
type Service struct {
	db *sql.DB
}

// NewService creates an auth service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Setup creates the admin account if no users exist yet. Returns true
// when an account was created.
func (s *Service) Setup(ctx context.Context, username, password string) (bool, error) {
	has, err := s.HasUsers(ctx)
	if err != nil {
		return false, err
	}
	if has {
		return false, nil
	}
	if err := s.insertUser(ctx, username, password); err != nil {
		return false, err
	}
	return true, nil
}

// ResetCredentials replaces every user account with a fresh admin and
// invalidates all sessions. Used by the reset-credentials subcommand.
func (s *Service) ResetCredentials(ctx context.Context, username, password string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM sessions"); err != nil {
		return fmt.Errorf("clearing sessions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM users"); err != nil {
		return fmt.Errorf("clearing users: %w", err)
	}

	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash)
		VALUES (?, ?, ?)
	`, uuid.New().String(), username, hash)
	if err != nil {
		return fmt.Errorf("creating admin user: %w", err)
	}

	return tx.Commit()
}

// Login verifies the credentials and opens a session.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	var id, hash string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, password_hash FROM users WHERE username = ?
	`, username).Scan(&id, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), prehash(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	sess := &Session{
		Token:     uuid.New().String(),
		UserID:    id,
		ExpiresAt: time.Now().Add(sessionDuration).UTC(),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, expires_at)
		VALUES (?, ?, ?)
	`, sess.Token, sess.UserID, sess.ExpiresAt.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	return sess, nil
}

// ValidateSession resolves a session token to its user ID. Expired
// sessions are deleted on sight.
func (s *Service) ValidateSession(ctx context.Context, token string) (string, error) {
	var userID, expiresAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, expires_at FROM sessions WHERE id = ?
	`, token).Scan(&userID, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidSession
	}
	if err != nil {
		return "", fmt.Errorf("querying session: %w", err)
	}

	expires, err := time.Parse(time.RFC3339, expiresAt)
	if err != nil {
		return "", fmt.Errorf("parsing expiry: %w", err)
	}

	if time.Now().UTC().After(expires) {
		_ = s.Logout(ctx, token)
		return "", ErrSessionExpired
	}

	return userID, nil
}

// Logout deletes a session.
func (s *Service) Logout(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", token)
	return err
}

// CleanExpiredSessions removes all expired sessions.
func (s *Service) CleanExpiredSessions(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM sessions WHERE expires_at < ?
	`, time.Now().UTC().Format(time.RFC3339))
	return err
}

// HasUsers reports whether at least one account exists.
func (s *Service) HasUsers(ctx context.Context) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return false, fmt.Errorf("counting users: %w", err)
	}
	return count > 0, nil
}

func (s *Service) insertUser(ctx context.Context, username, password string) error {
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash)
		VALUES (?, ?, ?)
	`, uuid.New().String(), username, hash)
	if err != nil {
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(prehash(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// prehash folds the password through SHA-256 so inputs longer than
// bcrypt's 72-byte limit still use their full entropy.
func prehash(password string) []byte {
	h := sha256.Sum256([]byte(password))
	return []byte(hex.EncodeToString(h[:]))
}
