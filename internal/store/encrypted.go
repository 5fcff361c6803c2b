package store

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// EncryptedStore seals every value with XChaCha20-Poly1305 before handing it
// to the inner store. The key name is bound as additional data, so a value
// copied under another key fails to open.
type EncryptedStore struct {
	inner Store
	key   []byte
}

func NewEncryptedStore(inner Store, key []byte) (*EncryptedStore, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &EncryptedStore{inner: inner, key: append([]byte(nil), key...)}, nil
}

func (s *EncryptedStore) Get(ctx context.Context, key string) (string, bool, error) {
	raw, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok {
		return "", false, err
	}

	sealed, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", false, fmt.Errorf("%w: %s", ErrCorrupted, key)
	}

	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", false, err
	}
	if len(sealed) < aead.NonceSize() {
		return "", false, fmt.Errorf("%w: %s", ErrCorrupted, key)
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, []byte(key))
	if err != nil {
		return "", false, fmt.Errorf("%w: %s", ErrCorrupted, key)
	}
	return string(plain), true, nil
}

func (s *EncryptedStore) Set(ctx context.Context, key, value string) error {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return err
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(value)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(value), []byte(key))

	return s.inner.Set(ctx, key, base64.StdEncoding.EncodeToString(sealed))
}

func (s *EncryptedStore) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

// LoadOrCreateKey returns the store key. A configured base64 key wins.
// Otherwise the key is read from keyFile, and generated into it with mode
// 0600 on first run. The key never goes into inner, which holds the
// ciphertext. A key left in inner by older versions is moved to keyFile.
func LoadOrCreateKey(ctx context.Context, inner Store, configured, keyFile string) ([]byte, error) {
	if configured != "" {
		return decodeKey(configured)
	}
	if keyFile == "" {
		return nil, errors.New("no encryption key configured and no key file set")
	}

	data, err := os.ReadFile(keyFile)
	if err == nil {
		return decodeKey(strings.TrimSpace(string(data)))
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	legacy, ok, err := inner.Get(ctx, KeyEncryption)
	if err != nil {
		return nil, fmt.Errorf("failed to read encryption key: %w", err)
	}
	var key []byte
	if ok {
		if key, err = decodeKey(legacy); err != nil {
			return nil, err
		}
	} else {
		key = make([]byte, chacha20poly1305.KeySize)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate encryption key: %w", err)
		}
	}

	if err := writeKeyFile(keyFile, key); err != nil {
		return nil, err
	}
	if ok {
		if err := inner.Delete(ctx, KeyEncryption); err != nil && !errors.Is(err, ErrReadOnly) {
			return nil, fmt.Errorf("failed to remove key from store: %w", err)
		}
	}
	return key, nil
}

func writeKeyFile(path string, key []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create key file: %w", err)
	}
	if _, err := f.WriteString(base64.StdEncoding.EncodeToString(key) + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return f.Close()
}

func decodeKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("invalid encryption key: want %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return key, nil
}
