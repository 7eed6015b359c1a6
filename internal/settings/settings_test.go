package settings

import (
	"context"
	"testing"
	"time"

	"github.com/veldrane/driftwood/internal/database"
)

func setupTestDB(t *testing.T) *Service {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return NewService(db)
}

func TestGetSet(t *testing.T) {
	svc := setupTestDB(t)
	ctx := context.Background()

	got, err := svc.Get(ctx, "missing")
	if err != nil {
		t.Fatal(err)
	}
	if got != "" {
		t.Errorf("missing key should return empty, got %q", got)
	}

	if err := svc.Set(ctx, "log_level", "debug"); err != nil {
		t.Fatal(err)
	}
	got, err = svc.Get(ctx, "log_level")
	if err != nil {
		t.Fatal(err)
	}
	if got != "debug" {
		t.Errorf("got %q, want debug", got)
	}

	// Upsert replaces
	if err := svc.Set(ctx, "log_level", "warn"); err != nil {
		t.Fatal(err)
	}
	got, _ = svc.Get(ctx, "log_level")
	if got != "warn" {
		t.Errorf("got %q after upsert, want warn", got)
	}
}

func TestTypedGetters(t *testing.T) {
	svc := setupTestDB(t)
	ctx := context.Background()

	if svc.GetBool(ctx, "nope", true) != true {
		t.Error("GetBool should return default for missing key")
	}
	if err := svc.SetBool(ctx, "monitoring_enabled", true); err != nil {
		t.Fatal(err)
	}
	if !svc.GetBool(ctx, "monitoring_enabled", false) {
		t.Error("expected stored true")
	}

	if svc.GetInt(ctx, "nope", 7) != 7 {
		t.Error("GetInt should return default for missing key")
	}
	if err := svc.SetInt(ctx, "retention_days", 90); err != nil {
		t.Fatal(err)
	}
	if svc.GetInt(ctx, "retention_days", 0) != 90 {
		t.Error("expected stored 90")
	}

	if svc.GetDuration(ctx, "nope", time.Minute) != time.Minute {
		t.Error("GetDuration should return default for missing key")
	}
	if err := svc.SetDuration(ctx, "monitoring_interval_emby", 45*time.Second); err != nil {
		t.Fatal(err)
	}
	if svc.GetDuration(ctx, "monitoring_interval_emby", 0) != 45*time.Second {
		t.Error("expected stored 45s")
	}
}

func TestTypedGetters_Unparsable(t *testing.T) {
	svc := setupTestDB(t)
	ctx := context.Background()

	if err := svc.Set(ctx, "junk", "not-a-number"); err != nil {
		t.Fatal(err)
	}
	if svc.GetBool(ctx, "junk", true) != true {
		t.Error("GetBool should fall back on junk")
	}
	if svc.GetInt(ctx, "junk", 3) != 3 {
		t.Error("GetInt should fall back on junk")
	}
	if svc.GetDuration(ctx, "junk", time.Second) != time.Second {
		t.Error("GetDuration should fall back on junk")
	}
}

func TestDeleteAndAll(t *testing.T) {
	svc := setupTestDB(t)
	ctx := context.Background()

	if err := svc.Set(ctx, "a", "1"); err != nil {
		t.Fatal(err)
	}
	if err := svc.Set(ctx, "b", "2"); err != nil {
		t.Fatal(err)
	}

	all, err := svc.All(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all["a"] != "1" || all["b"] != "2" {
		t.Errorf("unexpected All: %v", all)
	}

	if err := svc.Delete(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, "a"); err != nil {
		t.Error("deleting missing key should not error")
	}
	got, _ := svc.Get(ctx, "a")
	if got != "" {
		t.Error("expected empty after delete")
	}
}
