package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)
	ctx := context.Background()

	fs := FileStore{Path: filepath.Join(t.TempDir(), "nested", "token")}

	tok, err := fs.Load(ctx)
	require.NoError(err)
	assert.Empty(tok)

	require.NoError(fs.Save(ctx, "abc.def.ghi"))
	tok, err = fs.Load(ctx)
	require.NoError(err)
	assert.Equal("abc.def.ghi", tok)

	info, err := os.Stat(fs.Path)
	require.NoError(err)
	assert.Equal(os.FileMode(0o600), info.Mode().Perm())

	require.NoError(fs.Clear(ctx))
	require.NoError(fs.Clear(ctx))
	tok, err = fs.Load(ctx)
	require.NoError(err)
	assert.Empty(tok)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore("seed")

	tok, _ := m.Load(ctx)
	assert.Equal(t, "seed", tok)

	require.NoError(t, m.Clear(ctx))
	tok, _ = m.Load(ctx)
	assert.Empty(t, tok)
}
