package clients

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorage_URL(t *testing.T) {
	dir := t.TempDir()

	c, err := NewLocalStorage(dir, "/files", "http://example.com:8060/")
	require.NoError(t, err)

	u, err := c.URL(context.Background(), "a.xlsx")
	require.NoError(t, err)
	assert.Equal(t, "http://example.com:8060/files/a.xlsx", u)

	c2, err := NewLocalStorage(dir, "files/", "")
	require.NoError(t, err)
	u2, _ := c2.URL(context.Background(), "b.xlsx")
	assert.Equal(t, "/files/b.xlsx", u2)
}

func TestStorage_SaveAndOpen(t *testing.T) {
	c, err := NewLocalStorage(t.TempDir(), "/files", "")
	require.NoError(t, err)

	saved, err := c.Save(context.Background(), "../deals 1.xlsx", []byte("hello"))
	require.NoError(t, err)
	assert.NotContains(t, saved, "..")

	path, original, err := c.Open(saved)
	require.NoError(t, err)
	assert.Equal(t, "deals 1.xlsx", original)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
}

func TestStorage_OpenRejectsTraversal(t *testing.T) {
	c, err := NewLocalStorage(t.TempDir(), "/files", "")
	require.NoError(t, err)

	_, _, err = c.Open("../etc/passwd")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, _, err = c.Open("missing.xlsx")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestStorage_CleanupOlderThan(t *testing.T) {
	dir := t.TempDir()
	c, err := NewLocalStorage(dir, "", "")
	require.NoError(t, err)

	old := filepath.Join(dir, "old.xlsx")
	fresh := filepath.Join(dir, "fresh.xlsx")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(fresh, []byte("y"), 0o644))
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	n, err := c.CleanupOlderThan(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = os.Stat(old)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
}
