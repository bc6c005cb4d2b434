// Package auth persists the backend session token between runs. The token
// is sealed with a machine-local secret so it is never readable as plain
// text on disk; losing the secret file simply forces a re-login.
package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

const (
	secretFile = "local.key"
	tokenFile  = "token.bin"

	saltLen  = 16
	nonceLen = 24
	keyLen   = 32
)

// ErrNoToken is returned by Load when no token has been saved.
var ErrNoToken = errors.New("no stored token")

// Store seals the session token under dir.
type Store struct {
	dir  string
	file string
}

// NewStore creates a token store rooted at dir. The directory is created on
// first save.
func NewStore(dir string) *Store {
	return &Store{dir: dir, file: tokenFile}
}

// NewStoreAt creates a store for an explicit token file path. The local key
// lives beside the token.
func NewStoreAt(tokenPath string) *Store {
	return &Store{dir: filepath.Dir(tokenPath), file: filepath.Base(tokenPath)}
}

// localSecret returns the machine-local secret, generating it on first use.
// The file is mode 0600.
func (s *Store) localSecret() ([]byte, error) {
	path := filepath.Join(s.dir, secretFile)
	if b, err := os.ReadFile(path); err == nil && len(b) == keyLen {
		return b, nil
	}
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return nil, err
	}
	b := make([]byte, keyLen)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, b, 0600); err != nil {
		return nil, err
	}
	return b, nil
}

// deriveKey stretches the local secret with the per-token salt.
func deriveKey(secret, salt []byte) (*[keyLen]byte, error) {
	raw, err := scrypt.Key(secret, salt, 1<<15, 8, 1, keyLen)
	if err != nil {
		return nil, err
	}
	var key [keyLen]byte
	copy(key[:], raw)
	return &key, nil
}

// Save seals and writes the token. An empty token clears the store.
func (s *Store) Save(token string) error {
	if token == "" {
		return s.Clear()
	}
	secret, err := s.localSecret()
	if err != nil {
		return err
	}

	var salt [saltLen]byte
	var nonce [nonceLen]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return err
	}
	if _, err := rand.Read(nonce[:]); err != nil {
		return err
	}
	key, err := deriveKey(secret, salt[:])
	if err != nil {
		return err
	}

	// File layout: salt | nonce | sealed token.
	out := make([]byte, 0, saltLen+nonceLen+len(token)+secretbox.Overhead)
	out = append(out, salt[:]...)
	out = append(out, nonce[:]...)
	out = secretbox.Seal(out, []byte(token), &nonce, key)

	return os.WriteFile(filepath.Join(s.dir, s.file), out, 0600)
}

// Load reads and unseals the stored token. Returns ErrNoToken when nothing
// is stored; a corrupt or tampered file is an error.
func (s *Store) Load() (string, error) {
	raw, err := os.ReadFile(filepath.Join(s.dir, s.file))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoToken
		}
		return "", err
	}
	if len(raw) < saltLen+nonceLen+secretbox.Overhead {
		return "", fmt.Errorf("token file truncated (%d bytes)", len(raw))
	}
	secret, err := s.localSecret()
	if err != nil {
		return "", err
	}

	var salt [saltLen]byte
	var nonce [nonceLen]byte
	copy(salt[:], raw[:saltLen])
	copy(nonce[:], raw[saltLen:saltLen+nonceLen])
	key, err := deriveKey(secret, salt[:])
	if err != nil {
		return "", err
	}

	token, ok := secretbox.Open(nil, raw[saltLen+nonceLen:], &nonce, key)
	if !ok {
		return "", errors.New("token file unreadable (wrong local key or tampered)")
	}
	return string(token), nil
}

// Clear removes the stored token. Missing files are fine.
func (s *Store) Clear() error {
	err := os.Remove(filepath.Join(s.dir, s.file))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
