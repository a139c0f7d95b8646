package util

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestEncryptBytesRoundTrip(t *testing.T) {
	t.Parallel()

	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	plaintext := []byte("hello secure world")
	sealed, err := EncryptBytes(key, plaintext)
	if err != nil {
		t.Fatalf("EncryptBytes failed: %v", err)
	}
	if len(sealed) != 16+32 {
		t.Fatalf("expected IV plus two blocks, got %d bytes", len(sealed))
	}
	if bytes.Contains(sealed, plaintext) {
		t.Fatalf("ciphertext appears unencrypted")
	}
	recovered, err := DecryptBytes(key, sealed)
	if err != nil {
		t.Fatalf("DecryptBytes failed: %v", err)
	}
	if string(recovered) != string(plaintext) {
		t.Fatalf("expected %q, got %q", plaintext, recovered)
	}
}

func TestEncryptBytesUsesFreshIV(t *testing.T) {
	t.Parallel()

	a, err := EncryptBytes(MonitorKey(), []byte("same"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := EncryptBytes(MonitorKey(), []byte("same"))
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(a[:16], b[:16]) {
		t.Errorf("two seals share an IV")
	}
}

func TestDecryptBytesRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := DecryptBytes(MonitorKey(), make([]byte, 20)); err != ErrShortCiphertext {
		t.Errorf("expected ErrShortCiphertext, got %v", err)
	}
	if _, err := DecryptBytes(MonitorKey(), make([]byte, 40)); err != ErrShortCiphertext {
		t.Errorf("unaligned blob: expected ErrShortCiphertext, got %v", err)
	}
}

func TestPasswordRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []string{"s3cret", "pässwörd", "a-much-longer-password-that-spans-blocks"}
	for _, pw := range tests {
		blob, err := SealPassword(MonitorKey(), pw)
		if err != nil {
			t.Fatalf("SealPassword(%q) failed: %v", pw, err)
		}
		if got := OpenPassword(MonitorKey(), blob); got != pw {
			t.Errorf("OpenPassword = %q, want %q", got, pw)
		}
	}
}

func TestPasswordPlaintextIsUTF16(t *testing.T) {
	t.Parallel()

	blob, err := SealPassword(MonitorKey(), "ab")
	if err != nil {
		t.Fatal(err)
	}
	wide, err := DecryptBytes(MonitorKey(), blob)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(wide, []byte{'a', 0, 'b', 0, 0, 0}) {
		t.Errorf("expected NUL terminated UTF-16LE, got %v", wide)
	}
}

func TestOpenPasswordTolerance(t *testing.T) {
	t.Parallel()

	if got := OpenPassword(MonitorKey(), nil); got != "" {
		t.Errorf("nil blob: got %q", got)
	}
	if got := OpenPassword(MonitorKey(), []byte{1, 2, 3}); got != "" {
		t.Errorf("short blob: got %q", got)
	}
	blob, _ := SealPassword(MonitorKey(), "pw")
	other := make([]byte, 32)
	if got := OpenPassword(other, blob); got == "pw" {
		t.Errorf("wrong key should not recover the password")
	}
	if blob, _ := SealPassword(MonitorKey(), ""); blob != nil {
		t.Errorf("empty password should seal to nil")
	}
}

func TestLoadOrCreateKeyInvalidLength(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	keyPath := filepath.Join(dir, "bad.key")
	if err := os.WriteFile(keyPath, []byte("short"), 0o600); err != nil {
		t.Fatalf("failed to write temp key: %v", err)
	}
	if _, err := LoadOrCreateKey(keyPath); err == nil {
		t.Fatalf("expected error for invalid key length")
	}
	// Remove bad key and ensure new one is generated
	if err := os.Remove(keyPath); err != nil {
		t.Fatalf("failed to remove temp key: %v", err)
	}
	key, err := LoadOrCreateKey(keyPath)
	if err != nil {
		t.Fatalf("LoadOrCreateKey failed: %v", err)
	}
	if len(key) != 32 {
		t.Fatalf("expected 32-byte key, got %d", len(key))
	}
	again, err := LoadOrCreateKey(keyPath)
	if err != nil || !bytes.Equal(key, again) {
		t.Fatalf("second load should return the stored key")
	}
}
