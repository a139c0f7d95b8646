package util

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/text/encoding/unicode"
)

// KeySize is the AES-256 key length.
const KeySize = 32

// monitorKey is the built-in key password blobs are sealed with. Existing
// port stores written by earlier monitor builds depend on it.
var monitorKey = mustHex("73b6450c24c9fe6b74f8c2be94d4dfd440d3dddd8ea32a56893c75d845b7b934")

// MonitorKey returns a copy of the built-in key.
func MonitorKey() []byte {
	return append([]byte(nil), monitorKey...)
}

var (
	ErrShortCiphertext = errors.New("ciphertext too short")
	ErrBadPadding      = errors.New("invalid padding")
)

// LoadOrCreateKey loads a 32-byte key from file, creating it if missing.
// An existing file of the wrong length is an error.
func LoadOrCreateKey(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err == nil {
		if len(b) != KeySize {
			return nil, fmt.Errorf("key file %s: expected %d bytes, got %d", path, KeySize, len(b))
		}
		return b, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, err
	}
	return key, nil
}

// EncryptBytes seals plaintext with AES-CBC and PKCS#7 padding. The result
// is a random 16-byte IV followed by the ciphertext.
func EncryptBytes(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	padLen := aes.BlockSize - len(plaintext)%aes.BlockSize
	padded := make([]byte, len(plaintext)+padLen)
	copy(padded, plaintext)
	copy(padded[len(plaintext):], bytes.Repeat([]byte{byte(padLen)}, padLen))

	out := make([]byte, aes.BlockSize+len(padded))
	iv := out[:aes.BlockSize]
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, err
	}
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], padded)
	return out, nil
}

// DecryptBytes opens a blob produced by EncryptBytes.
func DecryptBytes(key, sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < 2*aes.BlockSize || len(sealed)%aes.BlockSize != 0 {
		return nil, ErrShortCiphertext
	}

	iv, ct := sealed[:aes.BlockSize], sealed[aes.BlockSize:]
	pt := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(pt, ct)

	padLen := int(pt[len(pt)-1])
	if padLen == 0 || padLen > aes.BlockSize || padLen > len(pt) {
		return nil, ErrBadPadding
	}
	for _, b := range pt[len(pt)-padLen:] {
		if int(b) != padLen {
			return nil, ErrBadPadding
		}
	}
	return pt[:len(pt)-padLen], nil
}

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// SealPassword encrypts a password as NUL terminated UTF-16LE text.
// An empty password seals to nil.
func SealPassword(key []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, nil
	}
	wide, err := utf16le.NewEncoder().Bytes([]byte(password + "\x00"))
	if err != nil {
		return nil, fmt.Errorf("encode password: %w", err)
	}
	return EncryptBytes(key, wide)
}

// OpenPassword reverses SealPassword. Blobs shorter than one IV, or that
// fail to decrypt, yield an empty password.
func OpenPassword(key, blob []byte) string {
	if len(blob) < aes.BlockSize {
		return ""
	}
	wide, err := DecryptBytes(key, blob)
	if err != nil {
		return ""
	}
	text, err := utf16le.NewDecoder().Bytes(wide)
	if err != nil {
		return ""
	}
	if i := bytes.IndexByte(text, 0); i >= 0 {
		text = text[:i]
	}
	return string(text)
}

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}
