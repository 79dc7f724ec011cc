package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func newFileStore(t *testing.T, path string) *FileStore {
	t.Helper()
	logger := zerolog.Nop()
	s, err := NewFileStore(path, &logger)
	require.NoError(t, err)
	return s
}

func TestFileStoreEmpty(t *testing.T) {
	s := newFileStore(t, filepath.Join(t.TempDir(), "session.yaml"))
	token, ok := s.Token()
	assert.False(t, ok)
	assert.Empty(t, token)
	require.NoError(t, s.ClearToken())
}

func TestFileStoreSetAndClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.yaml")
	s := newFileStore(t, path)
	s.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }

	require.NoError(t, s.SetToken("abc123"))
	token, ok := s.Token()
	require.True(t, ok)
	assert.Equal(t, "abc123", token)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var st state
	require.NoError(t, yaml.Unmarshal(data, &st))
	assert.Equal(t, "abc123", st.Token)
	assert.True(t, s.now().Equal(st.UpdatedAt))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// a second store sees the persisted token
	other := newFileStore(t, path)
	token, ok = other.Token()
	require.True(t, ok)
	assert.Equal(t, "abc123", token)

	require.NoError(t, s.ClearToken())
	_, ok = s.Token()
	assert.False(t, ok)
}

func TestFileStoreReloadsChangedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	s := newFileStore(t, path)
	require.NoError(t, s.SetToken("first"))

	require.NoError(t, os.WriteFile(path, []byte("phpsessid: second\n"), 0o600))
	// make sure the modification time differs on coarse filesystems
	later := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, later, later))

	token, ok := s.Token()
	require.True(t, ok)
	assert.Equal(t, "second", token)

	require.NoError(t, os.Remove(path))
	_, ok = s.Token()
	assert.False(t, ok, "removed file is an empty session")
}

func TestFileStoreReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	require.NoError(t, os.WriteFile(path, []byte("phpsessid: xyz\n"), 0o600))
	s := newFileStore(t, path)
	token, _ := s.Token()
	assert.Equal(t, "xyz", token)

	require.NoError(t, os.WriteFile(path, []byte("phpsessid: [broken"), 0o600))
	assert.Error(t, s.Reload())
}

func TestFileStoreRejectsBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	require.NoError(t, os.WriteFile(path, []byte("phpsessid: [broken"), 0o600))
	logger := zerolog.Nop()
	_, err := NewFileStore(path, &logger)
	assert.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	var p Provider = NewMemoryStore("")
	_, ok := p.Token()
	assert.False(t, ok)

	require.NoError(t, p.SetToken("t1"))
	token, ok := p.Token()
	assert.True(t, ok)
	assert.Equal(t, "t1", token)

	require.NoError(t, p.ClearToken())
	_, ok = p.Token()
	assert.False(t, ok)
}
