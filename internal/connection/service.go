package connection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/veldrane/driftwood/internal/encryption"
)

const connectionColumns = `id, name, type, url, api_key, enabled, last_checked_at, last_error, created_at, updated_at`

// Service provides connection data operations. API keys are encrypted at
// rest and decrypted on read.
type Service struct {
	db        *sql.DB
	encryptor *encryption.Encryptor
}

// NewService creates a connection service.
func NewService(db *sql.DB, enc *encryption.Encryptor) *Service {
	return &Service{db: db, encryptor: enc}
}

// Create inserts a new connection.
func (s *Service) Create(ctx context.Context, c *Connection) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validating connection: %w", err)
	}

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	encKey, err := s.encryptor.Encrypt(c.APIKey)
	if err != nil {
		return fmt.Errorf("encrypting api key: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO connections (`+connectionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID, c.Name, c.Type, c.URL, encKey,
		boolToInt(c.Enabled), formatNullableTime(c.LastCheckedAt), c.LastError,
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("creating connection: %w", err)
	}
	return nil
}

// GetByID retrieves a connection by ID with the API key decrypted.
func (s *Service) GetByID(ctx context.Context, id string) (*Connection, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+connectionColumns+` FROM connections WHERE id = ?`, id)
	c, err := s.scanConnection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("connection not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting connection: %w", err)
	}
	return c, nil
}

// List returns all connections with API keys decrypted.
func (s *Service) List(ctx context.Context) ([]Connection, error) {
	return s.list(ctx, `SELECT `+connectionColumns+` FROM connections ORDER BY name`)
}

// ListByType returns connections filtered by type.
func (s *Service) ListByType(ctx context.Context, connType string) ([]Connection, error) {
	return s.list(ctx,
		`SELECT `+connectionColumns+` FROM connections WHERE type = ? ORDER BY name`, connType)
}

func (s *Service) list(ctx context.Context, query string, args ...any) ([]Connection, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing connections: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var connections []Connection
	for rows.Next() {
		c, err := s.scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning connection: %w", err)
		}
		connections = append(connections, *c)
	}
	return connections, rows.Err()
}

// Update modifies an existing connection, re-encrypting the API key.
func (s *Service) Update(ctx context.Context, c *Connection) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validating connection: %w", err)
	}

	c.UpdatedAt = time.Now().UTC()
	encKey, err := s.encryptor.Encrypt(c.APIKey)
	if err != nil {
		return fmt.Errorf("encrypting api key: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE connections SET name = ?, type = ?, url = ?, api_key = ?, enabled = ?, updated_at = ?
		WHERE id = ?
	`,
		c.Name, c.Type, c.URL, encKey, boolToInt(c.Enabled),
		c.UpdatedAt.Format(time.RFC3339), c.ID,
	)
	if err != nil {
		return fmt.Errorf("updating connection: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("connection not found: %s", c.ID)
	}
	return nil
}

// Delete removes a connection by ID.
func (s *Service) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM connections WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting connection: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("connection not found: %s", id)
	}
	return nil
}

// RecordCheck stores the outcome of a reachability check.
func (s *Service) RecordCheck(ctx context.Context, id string, checkErr error) error {
	msg := ""
	if checkErr != nil {
		msg = checkErr.Error()
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		UPDATE connections SET last_checked_at = ?, last_error = ?, updated_at = ? WHERE id = ?
	`, now, msg, now, id)
	if err != nil {
		return fmt.Errorf("recording connection check: %w", err)
	}
	return nil
}

func (s *Service) scanConnection(row interface{ Scan(...any) error }) (*Connection, error) {
	var c Connection
	var encKey string
	var enabled int
	var lastCheckedAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&c.ID, &c.Name, &c.Type, &c.URL, &encKey,
		&enabled, &lastCheckedAt, &c.LastError,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	apiKey, err := s.encryptor.Decrypt(encKey)
	if err != nil {
		return nil, fmt.Errorf("decrypting api key for connection %s: %w", c.ID, err)
	}
	c.APIKey = apiKey
	c.Enabled = enabled == 1
	if lastCheckedAt.Valid {
		t := parseTime(lastCheckedAt.String)
		c.LastCheckedAt = &t
	}
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}
