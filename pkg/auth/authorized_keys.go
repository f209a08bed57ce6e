package auth

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"
)

// AuthorizedKeys is the device-side list of trusted public keys, kept in
// OpenSSH authorized_keys format. An empty path keeps keys in memory.
type AuthorizedKeys struct {
	path string

	mu   sync.RWMutex
	keys []ssh.PublicKey
}

// LoadAuthorizedKeys reads path. A missing file is an empty list.
// Lines that are not ed25519 keys are skipped.
func LoadAuthorizedKeys(path string) (*AuthorizedKeys, error) {
	a := &AuthorizedKeys{path: path}
	if path == "" {
		return a, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return a, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read authorized keys: %w", err)
	}

	for len(bytes.TrimSpace(data)) > 0 {
		key, _, _, rest, err := ssh.ParseAuthorizedKey(data)
		if err != nil {
			// No parsable key remains.
			break
		}
		if key.Type() == ssh.KeyAlgoED25519 {
			a.keys = append(a.keys, key)
		}
		data = rest
	}
	return a, nil
}

// Len returns the number of trusted keys.
func (a *AuthorizedKeys) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.keys)
}

// Contains reports whether pub is trusted.
func (a *AuthorizedKeys) Contains(pub ed25519.PublicKey) bool {
	sshKey, err := ssh.NewPublicKey(pub)
	if err != nil {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.containsLocked(sshKey)
}

func (a *AuthorizedKeys) containsLocked(key ssh.PublicKey) bool {
	want := key.Marshal()
	for _, k := range a.keys {
		if bytes.Equal(k.Marshal(), want) {
			return true
		}
	}
	return false
}

// Add trusts pub and appends it to the file with comment.
func (a *AuthorizedKeys) Add(pub ed25519.PublicKey, comment string) error {
	sshKey, err := ssh.NewPublicKey(pub)
	if err != nil {
		return fmt.Errorf("convert key: %w", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.containsLocked(sshKey) {
		return nil
	}

	if a.path != "" {
		line := strings.TrimSuffix(string(ssh.MarshalAuthorizedKey(sshKey)), "\n")
		if comment != "" {
			line += " " + comment
		}
		f, err := os.OpenFile(a.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o600)
		if err != nil {
			return fmt.Errorf("open authorized keys: %w", err)
		}
		if _, err := f.WriteString(line + "\n"); err != nil {
			f.Close()
			return fmt.Errorf("write authorized keys: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close authorized keys: %w", err)
		}
	}
	a.keys = append(a.keys, sshKey)
	return nil
}

// Fingerprint returns the SHA256 fingerprint of pub as printed by
// ssh-keygen.
func Fingerprint(pub ed25519.PublicKey) string {
	sshKey, err := ssh.NewPublicKey(pub)
	if err != nil {
		return ""
	}
	return ssh.FingerprintSHA256(sshKey)
}
