package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/published-content/pkg/publishedcontent"
)

func TestFSStore_BasicOps(t *testing.T) {
	tmp := t.TempDir()
	store, err := New(Config{BaseDir: tmp})
	require.NoError(t, err)

	ctx := context.Background()
	key := "sites/main/umbraco.config"
	data := []byte(`<?xml version="1.0"?><root id="-1"/>`)

	require.NoError(t, store.Put(ctx, key, bytes.NewReader(data)))

	meta, err := store.Stat(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), meta.Size)
	assert.False(t, meta.UpdatedAt.IsZero())
	assert.NotEmpty(t, meta.Version())

	rc, err := store.Get(ctx, key)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// no temporary files are left next to the document
	entries, err := os.ReadDir(filepath.Join(tmp, "sites", "main"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Stat(ctx, key)
	assert.ErrorIs(t, err, publishedcontent.ErrObjectNotFound)

	// empty parents are removed, the base directory stays
	_, err = os.Stat(filepath.Join(tmp, "sites"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(tmp)
	assert.NoError(t, err)
}

func TestFSStore_NotFound(t *testing.T) {
	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Get(ctx, "missing.xml")
	assert.ErrorIs(t, err, publishedcontent.ErrObjectNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "missing.xml"), publishedcontent.ErrObjectNotFound)
}

func TestFSStore_RejectsEscapingKeys(t *testing.T) {
	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	err = store.Put(context.Background(), "../outside.xml", bytes.NewReader(nil))
	var argErr *publishedcontent.InvalidArgumentError
	assert.True(t, errors.As(err, &argErr))
}

func TestFSStore_RequiresBaseDir(t *testing.T) {
	_, err := New(Config{})
	assert.EqualError(t, err, "base directory is required")
}
