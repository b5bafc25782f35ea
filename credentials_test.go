package eduwire

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileStore(t *testing.T) *FileCredentialStore {
	t.Helper()
	return NewFileCredentialStore(filepath.Join(t.TempDir(), "credentials.json"))
}

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	store := newTestFileStore(t)

	creds, err := store.Load()
	require.NoError(t, err)
	assert.True(t, creds.Empty())
}

func TestFileStoreRoundTrip(t *testing.T) {
	store := newTestFileStore(t)

	saved := Credentials{
		AccessToken:  "abc123",
		RefreshToken: "r456",
		ExpiresAt:    time.Unix(1756400000, 0),
	}
	require.NoError(t, store.Save(saved))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "abc123", loaded.AccessToken)
	assert.Equal(t, "r456", loaded.RefreshToken)
	assert.True(t, loaded.ExpiresAt.Equal(saved.ExpiresAt))
}

func TestFileStoreReadsLegacyEncoding(t *testing.T) {
	store := newTestFileStore(t)

	legacy := `{"token":"old-access","refresh_token":"old-refresh"}`
	require.NoError(t, os.WriteFile(store.path, []byte(legacy), 0o600))

	creds, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "old-access", creds.AccessToken)
	assert.Equal(t, "old-refresh", creds.RefreshToken)
}

func TestFileStoreWrappedEncodingWins(t *testing.T) {
	store := newTestFileStore(t)

	mixed := `{
		"token": "legacy-access",
		"refresh_token": "legacy-refresh",
		"eduwire:token": {"data": "wrapped-access", "timestamp": 1756400000000},
		"eduwire:refresh_token": {"data": "wrapped-refresh", "timestamp": 1756400000000}
	}`
	require.NoError(t, os.WriteFile(store.path, []byte(mixed), 0o600))

	creds, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "wrapped-access", creds.AccessToken)
	assert.Equal(t, "wrapped-refresh", creds.RefreshToken)
}

func TestFileStoreEmptyWrappedFallsBackToLegacy(t *testing.T) {
	store := newTestFileStore(t)

	mixed := `{
		"token": "legacy-access",
		"eduwire:token": {"data": "", "timestamp": 0}
	}`
	require.NoError(t, os.WriteFile(store.path, []byte(mixed), 0o600))

	creds, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "legacy-access", creds.AccessToken)
}

func TestFileStoreSaveWritesBothEncodings(t *testing.T) {
	store := newTestFileStore(t)
	require.NoError(t, store.Save(Credentials{AccessToken: "abc", RefreshToken: "r1"}))

	raw, err := os.ReadFile(store.path)
	require.NoError(t, err)

	var record map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &record))

	for _, key := range []string{"token", "refresh_token", "eduwire:token", "eduwire:refresh_token"} {
		assert.Contains(t, record, key)
	}

	var wrapped wrappedValue
	require.NoError(t, json.Unmarshal(record["eduwire:token"], &wrapped))
	assert.Equal(t, "abc", wrapped.Data)
	assert.NotZero(t, wrapped.Timestamp)
}

func TestFileStoreSaveIsPrivate(t *testing.T) {
	store := newTestFileStore(t)
	require.NoError(t, store.Save(Credentials{AccessToken: "abc"}))

	info, err := os.Stat(store.path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileStoreClear(t *testing.T) {
	store := newTestFileStore(t)
	require.NoError(t, store.Save(Credentials{AccessToken: "abc"}))

	require.NoError(t, store.Clear())
	_, err := os.Stat(store.path)
	assert.True(t, os.IsNotExist(err))

	// Clearing an already-missing file is not an error.
	require.NoError(t, store.Clear())
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	store := newTestFileStore(t)
	require.NoError(t, os.WriteFile(store.path, []byte("not json"), 0o600))

	_, err := store.Load()
	assert.Error(t, err)
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryCredentialStore()

	creds, err := store.Load()
	require.NoError(t, err)
	assert.True(t, creds.Empty())

	require.NoError(t, store.Save(Credentials{AccessToken: "abc", RefreshToken: "r1"}))
	creds, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, "abc", creds.AccessToken)

	require.NoError(t, store.Clear())
	creds, err = store.Load()
	require.NoError(t, err)
	assert.True(t, creds.Empty())
}
