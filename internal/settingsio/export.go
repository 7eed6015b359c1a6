package settingsio

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/pbkdf2"
	"gopkg.in/yaml.v3"

	"github.com/veldrane/driftwood/internal/connection"
	"github.com/veldrane/driftwood/internal/filesystem"
	"github.com/veldrane/driftwood/internal/library"
	"github.com/veldrane/driftwood/internal/source"
	"github.com/veldrane/driftwood/internal/version"
	"github.com/veldrane/driftwood/internal/webhook"
)

// pbkdf2Iterations is the OWASP-recommended iteration count for
// PBKDF2-SHA256.
const pbkdf2Iterations = 600_000

// Envelope is the outer wrapper of an exported configuration file,
// serialized as YAML. The payload inside Data is encrypted so exports
// can move between instances without leaking API keys.
type Envelope struct {
	Version    string `yaml:"version" json:"version"`
	AppVersion string `yaml:"app_version" json:"app_version"`
	CreatedAt  string `yaml:"created_at" json:"created_at"`
	Salt       string `yaml:"salt" json:"salt"`
	Data       string `yaml:"data" json:"data"`
}

// Encode renders the envelope as a YAML document.
func (e *Envelope) Encode() ([]byte, error) {
	out, err := yaml.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encoding envelope: %w", err)
	}
	return out, nil
}

// ParseEnvelope reads a YAML export file.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := yaml.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parsing envelope: %w", err)
	}
	return &env, nil
}

// Payload is the decrypted inner content of an export.
type Payload struct {
	Settings    map[string]string  `json:"settings"`
	Connections []ConnectionExport `json:"connections"`
	Sources     []SourceExport     `json:"sources"`
	Libraries   []LibraryExport    `json:"libraries"`
	Webhooks    []webhook.Webhook  `json:"webhooks"`
}

// ConnectionExport is a connection with its API key decrypted for
// export.
type ConnectionExport struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	URL     string `json:"url"`
	APIKey  string `json:"api_key"`
	Enabled bool   `json:"enabled"`
}

// SourceExport references its connection by name so exports survive
// regenerated IDs.
type SourceExport struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Path       string `json:"path,omitempty"`
	Connection string `json:"connection,omitempty"`
	Enabled    bool   `json:"enabled"`
}

// LibraryExport references its source by name.
type LibraryExport struct {
	Source     string `json:"source"`
	Name       string `json:"name"`
	MediaKind  string `json:"media_kind"`
	Path       string `json:"path,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
	Enabled    bool   `json:"enabled"`
}

// ImportResult summarizes what was imported.
type ImportResult struct {
	Settings    int `json:"settings"`
	Connections int `json:"connections"`
	Sources     int `json:"sources"`
	Libraries   int `json:"libraries"`
	Webhooks    int `json:"webhooks"`
}

// Service handles configuration export and import.
type Service struct {
	db          *sql.DB
	connections *connection.Service
	sources     *source.Service
	libraries   *library.Service
	webhooks    *webhook.Service
}

// NewService creates an export/import service.
func NewService(
	db *sql.DB,
	cs *connection.Service,
	ss *source.Service,
	ls *library.Service,
	ws *webhook.Service,
) *Service {
	return &Service{
		db:          db,
		connections: cs,
		sources:     ss,
		libraries:   ls,
		webhooks:    ws,
	}
}

// Export collects settings, connections, sources, libraries, and
// webhooks, encrypts them with the passphrase, and returns an Envelope.
func (s *Service) Export(ctx context.Context, passphrase string) (*Envelope, error) {
	payload := Payload{Settings: make(map[string]string)}

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("querying settings: %w", err)
	}
	defer rows.Close() //nolint:errcheck
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scanning setting: %w", err)
		}
		payload.Settings[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating settings: %w", err)
	}

	conns, err := s.connections.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing connections: %w", err)
	}
	connName := make(map[string]string, len(conns))
	for _, c := range conns {
		connName[c.ID] = c.Name
		payload.Connections = append(payload.Connections, ConnectionExport{
			Name:    c.Name,
			Type:    c.Type,
			URL:     c.URL,
			APIKey:  c.APIKey,
			Enabled: c.Enabled,
		})
	}

	srcs, err := s.sources.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", err)
	}
	srcName := make(map[string]string, len(srcs))
	for _, src := range srcs {
		srcName[src.ID] = src.Name
		payload.Sources = append(payload.Sources, SourceExport{
			Name:       src.Name,
			Type:       string(src.Type),
			Path:       src.Path,
			Connection: connName[src.ConnectionID],
			Enabled:    src.Enabled,
		})
	}

	libs, err := s.libraries.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing libraries: %w", err)
	}
	for _, lib := range libs {
		payload.Libraries = append(payload.Libraries, LibraryExport{
			Source:     srcName[lib.SourceID],
			Name:       lib.Name,
			MediaKind:  lib.MediaKind,
			Path:       lib.Path,
			ExternalID: lib.ExternalID,
			Enabled:    lib.Enabled,
		})
	}

	webhooks, err := s.webhooks.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing webhooks: %w", err)
	}
	payload.Webhooks = webhooks

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}

	data, salt, err := encryptWithPassphrase(payloadJSON, passphrase)
	if err != nil {
		return nil, fmt.Errorf("encrypting payload: %w", err)
	}

	return &Envelope{
		Version:    "1.0",
		AppVersion: version.Version,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
		Salt:       salt,
		Data:       data,
	}, nil
}

// ExportToFile writes an encrypted export to path, atomically.
func (s *Service) ExportToFile(ctx context.Context, path, passphrase string) error {
	env, err := s.Export(ctx, passphrase)
	if err != nil {
		return err
	}
	out, err := env.Encode()
	if err != nil {
		return err
	}
	if err := filesystem.WriteFileAtomic(path, out, 0o600); err != nil {
		return fmt.Errorf("writing export file: %w", err)
	}
	return nil
}

// Import decrypts an Envelope and applies its contents. Existing rows
// are matched by natural keys (connection type+url, source name,
// library source+name, webhook name+url) and updated in place.
func (s *Service) Import(ctx context.Context, env *Envelope, passphrase string) (*ImportResult, error) {
	if env.Data == "" {
		return nil, fmt.Errorf("empty export data")
	}

	plaintext, err := decryptWithPassphrase(env.Data, env.Salt, passphrase)
	if err != nil {
		return nil, fmt.Errorf("decrypting export data: %w", err)
	}

	var payload Payload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, fmt.Errorf("parsing export payload: %w", err)
	}

	result := &ImportResult{}

	now := time.Now().UTC().Format(time.RFC3339)
	for k, v := range payload.Settings {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			k, v, now)
		if err != nil {
			return nil, fmt.Errorf("upserting setting %q: %w", k, err)
		}
		result.Settings++
	}

	if err := s.importConnections(ctx, payload.Connections, result); err != nil {
		return nil, err
	}
	if err := s.importSources(ctx, payload.Sources, result); err != nil {
		return nil, err
	}
	if err := s.importLibraries(ctx, payload.Libraries, result); err != nil {
		return nil, err
	}
	if err := s.importWebhooks(ctx, payload.Webhooks, result); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Service) importConnections(ctx context.Context, conns []ConnectionExport, result *ImportResult) error {
	existing, err := s.connections.List(ctx)
	if err != nil {
		return fmt.Errorf("listing connections: %w", err)
	}
	byKey := make(map[string]*connection.Connection)
	for i := range existing {
		byKey[existing[i].Type+"|"+existing[i].URL] = &existing[i]
	}

	for _, ce := range conns {
		if have, ok := byKey[ce.Type+"|"+ce.URL]; ok {
			have.Name = ce.Name
			have.APIKey = ce.APIKey
			have.Enabled = ce.Enabled
			if err := s.connections.Update(ctx, have); err != nil {
				return fmt.Errorf("updating connection %q: %w", ce.Name, err)
			}
		} else {
			c := &connection.Connection{
				Name:    ce.Name,
				Type:    ce.Type,
				URL:     ce.URL,
				APIKey:  ce.APIKey,
				Enabled: ce.Enabled,
			}
			if err := s.connections.Create(ctx, c); err != nil {
				return fmt.Errorf("creating connection %q: %w", ce.Name, err)
			}
		}
		result.Connections++
	}
	return nil
}

func (s *Service) importSources(ctx context.Context, srcs []SourceExport, result *ImportResult) error {
	conns, err := s.connections.List(ctx)
	if err != nil {
		return fmt.Errorf("listing connections: %w", err)
	}
	connID := make(map[string]string, len(conns))
	for _, c := range conns {
		connID[c.Name] = c.ID
	}

	existing, err := s.sources.List(ctx)
	if err != nil {
		return fmt.Errorf("listing sources: %w", err)
	}
	byName := make(map[string]*source.Source)
	for i := range existing {
		byName[existing[i].Name] = &existing[i]
	}

	for _, se := range srcs {
		if se.Connection != "" && connID[se.Connection] == "" {
			return fmt.Errorf("source %q references unknown connection %q", se.Name, se.Connection)
		}
		if have, ok := byName[se.Name]; ok {
			have.Type = source.Type(se.Type)
			have.Path = se.Path
			have.ConnectionID = connID[se.Connection]
			have.Enabled = se.Enabled
			if err := s.sources.Update(ctx, have); err != nil {
				return fmt.Errorf("updating source %q: %w", se.Name, err)
			}
		} else {
			src := &source.Source{
				Name:         se.Name,
				Type:         source.Type(se.Type),
				Path:         se.Path,
				ConnectionID: connID[se.Connection],
				Enabled:      se.Enabled,
			}
			if err := s.sources.Create(ctx, src); err != nil {
				return fmt.Errorf("creating source %q: %w", se.Name, err)
			}
		}
		result.Sources++
	}
	return nil
}

func (s *Service) importLibraries(ctx context.Context, libs []LibraryExport, result *ImportResult) error {
	srcs, err := s.sources.List(ctx)
	if err != nil {
		return fmt.Errorf("listing sources: %w", err)
	}
	srcID := make(map[string]string, len(srcs))
	for _, src := range srcs {
		srcID[src.Name] = src.ID
	}

	existing, err := s.libraries.List(ctx)
	if err != nil {
		return fmt.Errorf("listing libraries: %w", err)
	}
	byKey := make(map[string]*library.Library)
	for i := range existing {
		byKey[existing[i].SourceID+"|"+existing[i].Name] = &existing[i]
	}

	for _, le := range libs {
		sid := srcID[le.Source]
		if sid == "" {
			return fmt.Errorf("library %q references unknown source %q", le.Name, le.Source)
		}
		if have, ok := byKey[sid+"|"+le.Name]; ok {
			have.MediaKind = le.MediaKind
			have.Path = le.Path
			have.ExternalID = le.ExternalID
			have.Enabled = le.Enabled
			if err := s.libraries.Update(ctx, have); err != nil {
				return fmt.Errorf("updating library %q: %w", le.Name, err)
			}
		} else {
			lib := &library.Library{
				SourceID:   sid,
				Name:       le.Name,
				MediaKind:  le.MediaKind,
				Path:       le.Path,
				ExternalID: le.ExternalID,
				Enabled:    le.Enabled,
			}
			if err := s.libraries.Create(ctx, lib); err != nil {
				return fmt.Errorf("creating library %q: %w", le.Name, err)
			}
		}
		result.Libraries++
	}
	return nil
}

func (s *Service) importWebhooks(ctx context.Context, hooks []webhook.Webhook, result *ImportResult) error {
	existing, err := s.webhooks.List(ctx)
	if err != nil {
		return fmt.Errorf("listing webhooks: %w", err)
	}
	byKey := make(map[string]*webhook.Webhook)
	for i := range existing {
		byKey[existing[i].Name+"|"+existing[i].URL] = &existing[i]
	}

	for _, w := range hooks {
		if have, ok := byKey[w.Name+"|"+w.URL]; ok {
			w.ID = have.ID
			if err := s.webhooks.Update(ctx, &w); err != nil {
				return fmt.Errorf("updating webhook %q: %w", w.Name, err)
			}
		} else {
			w.ID = ""
			if err := s.webhooks.Create(ctx, &w); err != nil {
				return fmt.Errorf("creating webhook %q: %w", w.Name, err)
			}
		}
		result.Webhooks++
	}
	return nil
}

// deriveKey uses PBKDF2-SHA256 to derive a 32-byte AES-256 key from a
// passphrase and salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, 32, sha256.New)
}

// encryptWithPassphrase encrypts plaintext using a passphrase-derived
// AES-256-GCM key. Returns base64-encoded ciphertext and salt.
func encryptWithPassphrase(plaintext []byte, passphrase string) (data, salt string, err error) {
	saltBytes := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, saltBytes); err != nil {
		return "", "", fmt.Errorf("generating salt: %w", err)
	}

	key := deriveKey(passphrase, saltBytes)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", "", fmt.Errorf("creating cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", "", fmt.Errorf("creating GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", "", fmt.Errorf("generating nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(ciphertext),
		base64.StdEncoding.EncodeToString(saltBytes),
		nil
}

// decryptWithPassphrase decrypts base64-encoded ciphertext using a
// passphrase-derived AES-256-GCM key with the given base64-encoded
// salt.
func decryptWithPassphrase(data, salt, passphrase string) ([]byte, error) {
	saltBytes, err := base64.StdEncoding.DecodeString(salt)
	if err != nil {
		return nil, fmt.Errorf("decoding salt: %w", err)
	}

	key := deriveKey(passphrase, saltBytes)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decoding ciphertext: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting (wrong passphrase?): %w", err)
	}

	return plaintext, nil
}
