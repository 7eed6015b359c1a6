package settingsio

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/veldrane/driftwood/internal/connection"
	"github.com/veldrane/driftwood/internal/database"
	"github.com/veldrane/driftwood/internal/encryption"
	"github.com/veldrane/driftwood/internal/library"
	"github.com/veldrane/driftwood/internal/source"
	"github.com/veldrane/driftwood/internal/webhook"
)

type fixture struct {
	db          *sql.DB
	svc         *Service
	connections *connection.Service
	sources     *source.Service
	libraries   *library.Service
	webhooks    *webhook.Service
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrating: %v", err)
	}

	key, err := encryption.GenerateKey()
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	enc, err := encryption.New(key)
	if err != nil {
		t.Fatalf("creating encryptor: %v", err)
	}

	f := &fixture{
		db:          db,
		connections: connection.NewService(db, enc),
		sources:     source.NewService(db),
		libraries:   library.NewService(db),
		webhooks:    webhook.NewService(db),
	}
	f.svc = NewService(db, f.connections, f.sources, f.libraries, f.webhooks)
	return f
}

func seed(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()

	if _, err := f.db.Exec(
		`INSERT INTO settings (key, value, updated_at) VALUES ('monitoring_enabled', 'true', datetime('now'))`); err != nil {
		t.Fatalf("seeding settings: %v", err)
	}

	conn := &connection.Connection{
		Name:    "Main Emby",
		Type:    connection.TypeEmby,
		URL:     "http://emby.local:8096",
		APIKey:  "secret-key",
		Enabled: true,
	}
	if err := f.connections.Create(ctx, conn); err != nil {
		t.Fatalf("seeding connection: %v", err)
	}

	local := &source.Source{Name: "NAS", Type: source.TypeLocal, Path: "/data/media", Enabled: true}
	if err := f.sources.Create(ctx, local); err != nil {
		t.Fatalf("seeding local source: %v", err)
	}
	remote := &source.Source{Name: "Emby", Type: source.TypeEmby, ConnectionID: conn.ID, Enabled: true}
	if err := f.sources.Create(ctx, remote); err != nil {
		t.Fatalf("seeding remote source: %v", err)
	}

	lib := &library.Library{SourceID: local.ID, Name: "Movies", MediaKind: library.KindMovie, Path: "/data/media/movies", Enabled: true}
	if err := f.libraries.Create(ctx, lib); err != nil {
		t.Fatalf("seeding library: %v", err)
	}

	hook := &webhook.Webhook{Name: "notify", URL: "https://example.com/hook", Type: webhook.TypeGeneric, Events: []string{"task.completed"}, Enabled: true}
	if err := f.webhooks.Create(ctx, hook); err != nil {
		t.Fatalf("seeding webhook: %v", err)
	}
}

func TestExportImport_RoundTrip(t *testing.T) {
	src := setup(t)
	seed(t, src)
	ctx := context.Background()

	env, err := src.svc.Export(ctx, "passphrase-1")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if env.Salt == "" || env.Data == "" {
		t.Fatal("expected non-empty salt and data")
	}

	// YAML round-trip as the file format.
	raw, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	parsed, err := ParseEnvelope(raw)
	if err != nil {
		t.Fatalf("ParseEnvelope: %v", err)
	}

	dst := setup(t)
	result, err := dst.svc.Import(ctx, parsed, "passphrase-1")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if result.Settings != 1 || result.Connections != 1 || result.Sources != 2 ||
		result.Libraries != 1 || result.Webhooks != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	conns, err := dst.connections.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(conns) != 1 || conns[0].APIKey != "secret-key" {
		t.Fatalf("connection did not survive round trip: %+v", conns)
	}

	srcs, err := dst.sources.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(srcs) != 2 {
		t.Fatalf("sources = %d, want 2", len(srcs))
	}
	for _, s := range srcs {
		if s.Type == source.TypeEmby && s.ConnectionID != conns[0].ID {
			t.Errorf("remote source not relinked to imported connection")
		}
	}

	libs, err := dst.libraries.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(libs) != 1 || libs[0].Path != "/data/media/movies" {
		t.Fatalf("library did not survive round trip: %+v", libs)
	}
}

func TestImport_Idempotent(t *testing.T) {
	f := setup(t)
	seed(t, f)
	ctx := context.Background()

	env, err := f.svc.Export(ctx, "pw")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	// Importing into the same instance must update, not duplicate.
	if _, err := f.svc.Import(ctx, env, "pw"); err != nil {
		t.Fatalf("Import: %v", err)
	}

	srcs, err := f.sources.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(srcs) != 2 {
		t.Fatalf("sources = %d, want 2 after re-import", len(srcs))
	}
	conns, err := f.connections.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(conns) != 1 {
		t.Fatalf("connections = %d, want 1 after re-import", len(conns))
	}
}

func TestImport_WrongPassphrase(t *testing.T) {
	f := setup(t)
	seed(t, f)
	ctx := context.Background()

	env, err := f.svc.Export(ctx, "right")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	if _, err := f.svc.Import(ctx, env, "wrong"); err == nil {
		t.Fatal("expected decryption failure with wrong passphrase")
	}
}

func TestExportToFile(t *testing.T) {
	f := setup(t)
	seed(t, f)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "export", "driftwood.yaml")
	if err := f.svc.ExportToFile(ctx, path, "pw"); err != nil {
		t.Fatalf("ExportToFile: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}
	env, err := ParseEnvelope(raw)
	if err != nil {
		t.Fatalf("ParseEnvelope: %v", err)
	}
	if env.Version != "1.0" {
		t.Errorf("version = %q", env.Version)
	}

	dst := setup(t)
	if _, err := dst.svc.Import(ctx, env, "pw"); err != nil {
		t.Fatalf("Import from file: %v", err)
	}
}
