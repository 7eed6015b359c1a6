package encryption

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEncryptDecrypt(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	enc, err := New(key)
	if err != nil {
		t.Fatal(err)
	}

	plain := "api-key-abc123"
	cipher, err := enc.Encrypt(plain)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if cipher == plain {
		t.Error("ciphertext equals plaintext")
	}

	got, err := enc.Decrypt(cipher)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if got != plain {
		t.Errorf("roundtrip got %q, want %q", got, plain)
	}
}

func TestEncrypt_UniqueNonce(t *testing.T) {
	key, _ := GenerateKey()
	enc, err := New(key)
	if err != nil {
		t.Fatal(err)
	}
	a, _ := enc.Encrypt("same input")
	b, _ := enc.Encrypt("same input")
	if a == b {
		t.Error("two encryptions of the same input should differ")
	}
}

func TestNew_BadKey(t *testing.T) {
	if _, err := New("not base64!!!"); err == nil {
		t.Error("expected error for invalid base64")
	}
	if _, err := New("c2hvcnQ="); err == nil {
		t.Error("expected error for short key")
	}
}

func TestDecrypt_Garbage(t *testing.T) {
	key, _ := GenerateKey()
	enc, _ := New(key)

	if _, err := enc.Decrypt("AAAA"); err == nil {
		t.Error("expected error for truncated ciphertext")
	}
	if _, err := enc.Decrypt("%%%"); err == nil {
		t.Error("expected error for non-base64 input")
	}
}

func TestLoadKey_InlineWins(t *testing.T) {
	key, err := LoadKey("inline-key", "/nonexistent/path")
	if err != nil {
		t.Fatal(err)
	}
	if key != "inline-key" {
		t.Errorf("got %q, want inline key", key)
	}
}

func TestLoadKey_CreatesFile(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), "keys", "driftwood.key")

	key, err := LoadKey("", keyFile)
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	if key == "" {
		t.Fatal("expected generated key")
	}

	data, err := os.ReadFile(keyFile)
	if err != nil {
		t.Fatalf("key file not written: %v", err)
	}
	if strings.TrimSpace(string(data)) != key {
		t.Error("file content does not match returned key")
	}

	again, err := LoadKey("", keyFile)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if again != key {
		t.Error("second load should return the same key")
	}
}

func TestLoadKey_NothingConfigured(t *testing.T) {
	if _, err := LoadKey("", ""); err == nil {
		t.Error("expected error when neither key nor file configured")
	}
}
