package authclient

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryStorage(t *testing.T) {
	s := NewMemoryStorage()

	require.Empty(t, s.Get(KeyAccessToken))
	require.NoError(t, s.Set(KeyAccessToken, "a"))
	require.NoError(t, s.Set(KeySessionID, "sid"))
	require.Equal(t, "a", s.Get(KeyAccessToken))

	require.NoError(t, s.Delete(KeyAccessToken, KeySessionID, "absent"))
	require.Empty(t, s.Get(KeyAccessToken))
	require.Empty(t, s.Get(KeySessionID))
}

func TestFileStorage_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")

	s, err := NewFileStorage(path)
	require.NoError(t, err)
	require.Empty(t, s.Get(KeyAccessToken))

	require.NoError(t, s.Set(KeyAccessToken, "a"))
	require.NoError(t, s.Set(KeyRefreshToken, "r"))

	reopened, err := NewFileStorage(path)
	require.NoError(t, err)
	require.Equal(t, "a", reopened.Get(KeyAccessToken))
	require.Equal(t, "r", reopened.Get(KeyRefreshToken))

	require.NoError(t, reopened.Delete(KeyAccessToken, KeyRefreshToken))

	again, err := NewFileStorage(path)
	require.NoError(t, err)
	require.Empty(t, again.Get(KeyAccessToken))
	require.Empty(t, again.Get(KeyRefreshToken))
}

func TestFileStorage_FileMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions only")
	}

	path := filepath.Join(t.TempDir(), "session.json")
	s, err := NewFileStorage(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(KeyAccessToken, "a"))

	fi, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
}

func TestFileStorage_CorruptedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileStorage(path)
	require.Error(t, err)
}

func TestFileStorage_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	s, err := NewFileStorage(path)
	require.NoError(t, err)
	require.Empty(t, s.Get(KeyAccessToken))
}
