// File: internal/infra/security/sealed_store.go
package security

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"docchat/internal/domain/ports/repository"
)

var _ repository.KeyValueStore = (*SealedStore)(nil)

// sealedPrefix marks a sealed value; it lives inside a JSON string so the
// stored bytes stay valid JSON for JSONB columns.
const sealedPrefix = "sealed:v1:"

var ErrNotSealed = errors.New("stored value is not sealed")

// Cipher seals payloads with AES-GCM. Output is base64(nonce || ciphertext).
type Cipher struct {
	gcm cipher.AEAD
}

// NewCipher accepts a 16, 24 or 32 byte key (AES-128/192/256).
func NewCipher(key string) (*Cipher, error) {
	k := []byte(key)
	if n := len(k); n != 16 && n != 24 && n != 32 {
		return nil, fmt.Errorf("encryption key must be 16, 24, or 32 bytes; got %d", n)
	}
	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &Cipher{gcm: gcm}, nil
}

// Seal binds the ciphertext to key so values cannot be swapped between keys.
func (c *Cipher) Seal(key string, plaintext []byte) (string, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}
	ct := c.gcm.Seal(nonce, nonce, plaintext, []byte(key))
	return base64.StdEncoding.EncodeToString(ct), nil
}

func (c *Cipher) Open(key, b64 string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}
	ns := c.gcm.NonceSize()
	if len(data) < ns {
		return nil, errors.New("ciphertext too short")
	}
	pt, err := c.gcm.Open(nil, data[:ns], data[ns:], []byte(key))
	if err != nil {
		return nil, fmt.Errorf("gcm open: %w", err)
	}
	return pt, nil
}

// SealedStore encrypts values on the way into the wrapped store and
// decrypts them on the way out.
type SealedStore struct {
	inner  repository.KeyValueStore
	cipher *Cipher
}

func NewSealedStore(inner repository.KeyValueStore, c *Cipher) *SealedStore {
	return &SealedStore{inner: inner, cipher: c}
}

func (s *SealedStore) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var wrapped string
	if err := json.Unmarshal(raw, &wrapped); err != nil || !strings.HasPrefix(wrapped, sealedPrefix) {
		return nil, fmt.Errorf("sealed store: key %q: %w", key, ErrNotSealed)
	}
	pt, err := s.cipher.Open(key, strings.TrimPrefix(wrapped, sealedPrefix))
	if err != nil {
		return nil, fmt.Errorf("sealed store: key %q: %w", key, err)
	}
	return pt, nil
}

func (s *SealedStore) Put(ctx context.Context, key string, value []byte) error {
	ct, err := s.cipher.Seal(key, value)
	if err != nil {
		return fmt.Errorf("sealed store: %w", err)
	}
	wrapped, err := json.Marshal(sealedPrefix + ct)
	if err != nil {
		return err
	}
	return s.inner.Put(ctx, key, wrapped)
}

func (s *SealedStore) Close() error { return s.inner.Close() }
