package eduwire

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	homedir "github.com/mitchellh/go-homedir"
)

// Credential file keys. The bare keys are the original on-disk encoding; the
// namespaced keys carry the {data, timestamp} wrapper introduced later. Both
// are read on load and both are written on save for backward compatibility.
const (
	legacyAccessKey  = "token"
	legacyRefreshKey = "refresh_token"

	wrappedAccessKey  = "eduwire:token"
	wrappedRefreshKey = "eduwire:refresh_token"
	wrappedExpiryKey  = "eduwire:expires_at"
)

// wrappedValue is the newer on-disk encoding of a single credential.
type wrappedValue struct {
	Data      string `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

// FileCredentialStore persists the credential pair to a JSON file. Saves are
// atomic (write to a temp file, then rename) so a concurrent Load never
// observes a torn write.
type FileCredentialStore struct {
	mu   sync.Mutex
	path string
}

// DefaultCredentialPath returns ~/.eduwire/credentials.json.
func DefaultCredentialPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".eduwire", "credentials.json"), nil
}

// NewFileCredentialStore creates a store backed by the given file path.
func NewFileCredentialStore(path string) *FileCredentialStore {
	return &FileCredentialStore{path: path}
}

// Load reads the credential pair, tolerating both on-disk encodings. The
// wrapped namespace wins when both are present. A missing file yields empty
// credentials, not an error.
func (s *FileCredentialStore) Load() (Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return Credentials{}, nil
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("read credentials: %w", err)
	}

	var record map[string]json.RawMessage
	if err := json.Unmarshal(raw, &record); err != nil {
		return Credentials{}, fmt.Errorf("decode credentials: %w", err)
	}

	creds := Credentials{
		AccessToken:  readCredentialValue(record, wrappedAccessKey, legacyAccessKey),
		RefreshToken: readCredentialValue(record, wrappedRefreshKey, legacyRefreshKey),
	}

	if raw, ok := record[wrappedExpiryKey]; ok {
		var unix int64
		if err := json.Unmarshal(raw, &unix); err == nil && unix > 0 {
			creds.ExpiresAt = time.Unix(unix, 0)
		}
	}

	return creds, nil
}

// readCredentialValue reads one credential under its wrapped key, falling
// back to the legacy bare-string key.
func readCredentialValue(record map[string]json.RawMessage, wrappedKey, legacyKey string) string {
	if raw, ok := record[wrappedKey]; ok {
		var wrapped wrappedValue
		if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Data != "" {
			return wrapped.Data
		}
	}
	if raw, ok := record[legacyKey]; ok {
		var bare string
		if err := json.Unmarshal(raw, &bare); err == nil {
			return bare
		}
	}
	return ""
}

// Save writes both encodings atomically.
func (s *FileCredentialStore) Save(creds Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	record := map[string]interface{}{
		legacyAccessKey:   creds.AccessToken,
		legacyRefreshKey:  creds.RefreshToken,
		wrappedAccessKey:  wrappedValue{Data: creds.AccessToken, Timestamp: now},
		wrappedRefreshKey: wrappedValue{Data: creds.RefreshToken, Timestamp: now},
	}
	if !creds.ExpiresAt.IsZero() {
		record[wrappedExpiryKey] = creds.ExpiresAt.Unix()
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}

	return s.writeAtomic(data)
}

// Clear removes the credential file.
func (s *FileCredentialStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

func (s *FileCredentialStore) writeAtomic(data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create credential directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

// MemoryCredentialStore keeps the credential pair in memory only. It is the
// default store and is also handy in tests.
type MemoryCredentialStore struct {
	mu    sync.Mutex
	creds Credentials
}

// NewMemoryCredentialStore creates an empty in-memory store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{}
}

// Load returns the stored pair.
func (s *MemoryCredentialStore) Load() (Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds, nil
}

// Save overwrites the stored pair.
func (s *MemoryCredentialStore) Save(creds Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = creds
	return nil
}

// Clear drops the stored pair.
func (s *MemoryCredentialStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = Credentials{}
	return nil
}
