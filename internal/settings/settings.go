package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Service provides string settings persisted in the database. Typed getters
// fall back to a default when the key is missing or unparsable, so callers
// never have to special-case first run.
type Service struct {
	db *sql.DB
}

// NewService creates a settings service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Get returns the value for key, or empty string when unset.
func (s *Service) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting setting %s: %w", key, err)
	}
	return value, nil
}

// Set stores the value for key, replacing any previous value.
func (s *Service) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}

// Delete removes a key. Deleting a missing key is not an error.
func (s *Service) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting setting %s: %w", key, err)
	}
	return nil
}

// GetBool returns the boolean value for key, or def when unset.
func (s *Service) GetBool(ctx context.Context, key string, def bool) bool {
	v, err := s.Get(ctx, key)
	if err != nil || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// SetBool stores a boolean value for key.
func (s *Service) SetBool(ctx context.Context, key string, v bool) error {
	return s.Set(ctx, key, strconv.FormatBool(v))
}

// GetInt returns the integer value for key, or def when unset.
func (s *Service) GetInt(ctx context.Context, key string, def int) int {
	v, err := s.Get(ctx, key)
	if err != nil || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// SetInt stores an integer value for key.
func (s *Service) SetInt(ctx context.Context, key string, v int) error {
	return s.Set(ctx, key, strconv.Itoa(v))
}

// GetDuration returns the duration for key (stored as milliseconds), or def.
func (s *Service) GetDuration(ctx context.Context, key string, def time.Duration) time.Duration {
	v, err := s.Get(ctx, key)
	if err != nil || v == "" {
		return def
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms < 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

// SetDuration stores a duration for key as milliseconds.
func (s *Service) SetDuration(ctx context.Context, key string, d time.Duration) error {
	return s.Set(ctx, key, strconv.FormatInt(d.Milliseconds(), 10))
}

// All returns every stored setting.
func (s *Service) All(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("listing settings: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scanning setting: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}
