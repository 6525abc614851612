package authsdk

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/karinja/auth/pkg/dpopx"
)

// SessionStore persists the token bundle and the device private key under
// two independent slots. Loads are defensive: a missing or unreadable slot
// yields (nil, nil) rather than an error, so a corrupt store degrades to
// "not authenticated" instead of breaking the client.
type SessionStore interface {
	SaveTokens(*TokenBundle) error
	LoadTokens() (*TokenBundle, error)
	ClearTokens() error

	SaveKey(dpopx.PrivateJWK) error
	LoadKey() (*dpopx.PrivateJWK, error)
	ClearKey() error
}

// Fixed slot names used by FileSessionStore.
const (
	tokensFile = "tokens.json"
	keyFile    = "device_key.jwk"
)

// FileSessionStore keeps session state in a directory, one file per slot,
// written with 0600 permissions.
type FileSessionStore struct {
	dir string
}

// NewFileSessionStore creates the backing directory if needed.
func NewFileSessionStore(dir string) (*FileSessionStore, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, err
	}
	return &FileSessionStore{dir: dir}, nil
}

func (s *FileSessionStore) SaveTokens(b *TokenBundle) error {
	return s.writeJSON(tokensFile, b)
}

func (s *FileSessionStore) LoadTokens() (*TokenBundle, error) {
	var b TokenBundle
	if !s.readJSON(tokensFile, &b) {
		return nil, nil
	}
	return &b, nil
}

func (s *FileSessionStore) ClearTokens() error {
	return s.remove(tokensFile)
}

func (s *FileSessionStore) SaveKey(k dpopx.PrivateJWK) error {
	return s.writeJSON(keyFile, k)
}

func (s *FileSessionStore) LoadKey() (*dpopx.PrivateJWK, error) {
	var k dpopx.PrivateJWK
	if !s.readJSON(keyFile, &k) {
		return nil, nil
	}
	if k.D == "" {
		// Corrupt or truncated key material is treated as absent.
		return nil, nil
	}
	return &k, nil
}

func (s *FileSessionStore) ClearKey() error {
	return s.remove(keyFile)
}

func (s *FileSessionStore) writeJSON(name string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, name), raw, 0600)
}

// readJSON reports whether the slot held a decodable value.
func (s *FileSessionStore) readJSON(name string, v any) bool {
	raw, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}

func (s *FileSessionStore) remove(name string) error {
	err := os.Remove(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// MemorySessionStore is an in-memory SessionStore, mainly for tests and
// short-lived tooling.
type MemorySessionStore struct {
	mu     sync.Mutex
	tokens *TokenBundle
	key    *dpopx.PrivateJWK
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{}
}

func (s *MemorySessionStore) SaveTokens(b *TokenBundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *b
	s.tokens = &cp
	return nil
}

func (s *MemorySessionStore) LoadTokens() (*TokenBundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokens == nil {
		return nil, nil
	}
	cp := *s.tokens
	return &cp, nil
}

func (s *MemorySessionStore) ClearTokens() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = nil
	return nil
}

func (s *MemorySessionStore) SaveKey(k dpopx.PrivateJWK) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := k
	s.key = &cp
	return nil
}

func (s *MemorySessionStore) LoadKey() (*dpopx.PrivateJWK, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key == nil {
		return nil, nil
	}
	cp := *s.key
	return &cp, nil
}

func (s *MemorySessionStore) ClearKey() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = nil
	return nil
}
