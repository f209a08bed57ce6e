package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// pemBlockType is the PEM type of stored keys (PKCS #8).
const pemBlockType = "PRIVATE KEY"

// CredentialStore holds the client's private keys.
type CredentialStore interface {
	// Keys returns the stored keys in insertion order.
	Keys() ([]ed25519.PrivateKey, error)

	// Append stores an additional key.
	Append(key ed25519.PrivateKey) error
}

// GenerateKey creates a new ed25519 private key.
func GenerateKey() (ed25519.PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return priv, nil
}

// MemoryCredentialStore keeps keys in memory.
type MemoryCredentialStore struct {
	mu   sync.Mutex
	keys []ed25519.PrivateKey
}

// NewMemoryCredentialStore creates a store holding keys.
func NewMemoryCredentialStore(keys ...ed25519.PrivateKey) *MemoryCredentialStore {
	return &MemoryCredentialStore{keys: keys}
}

// Keys returns the stored keys.
func (s *MemoryCredentialStore) Keys() ([]ed25519.PrivateKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ed25519.PrivateKey(nil), s.keys...), nil
}

// Append stores key.
func (s *MemoryCredentialStore) Append(key ed25519.PrivateKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, key)
	return nil
}

// FileCredentialStore keeps keys as concatenated PEM blocks in one file.
type FileCredentialStore struct {
	path string
	mu   sync.Mutex
}

// NewFileCredentialStore creates a store backed by path. The file is
// created on the first Append.
func NewFileCredentialStore(path string) *FileCredentialStore {
	return &FileCredentialStore{path: path}
}

// Path returns the key file path.
func (s *FileCredentialStore) Path() string { return s.path }

// Keys parses every key in the file. A missing file holds no keys.
func (s *FileCredentialStore) Keys() ([]ed25519.PrivateKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	var keys []ed25519.PrivateKey
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != pemBlockType {
			continue
		}
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse key %d: %w", len(keys), err)
		}
		key, ok := parsed.(ed25519.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("key %d is %T, not ed25519", len(keys), parsed)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Append adds key to the end of the file.
func (s *FileCredentialStore) Append(key ed25519.PrivateKey) error {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return fmt.Errorf("encode key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o600)
	if err != nil {
		return fmt.Errorf("open key file: %w", err)
	}
	if err := pem.Encode(f, &pem.Block{Type: pemBlockType, Bytes: der}); err != nil {
		f.Close()
		return fmt.Errorf("write key: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync key file: %w", err)
	}
	return f.Close()
}

// Compile-time interface satisfaction checks.
var (
	_ CredentialStore = (*MemoryCredentialStore)(nil)
	_ CredentialStore = (*FileCredentialStore)(nil)
)
