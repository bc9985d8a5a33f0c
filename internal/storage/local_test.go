package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemLocal() *Local {
	return &Local{Fs: afero.NewMemMapFs(), BasePath: "/remote"}
}

func TestLocalPutGet(t *testing.T) {
	ctx := context.Background()
	store := newMemLocal()

	require.NoError(t, store.Put(ctx, "p/_env.enc/1.enc", strings.NewReader("payload"), -1, nil))
	ok, err := store.Exists(ctx, "p/_env.enc/1.enc")
	require.NoError(t, err)
	assert.True(t, ok)

	r, err := store.Get(ctx, "p/_env.enc/1.enc")
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	info, err := store.Stat(ctx, "p/_env.enc/1.enc")
	require.NoError(t, err)
	assert.Equal(t, int64(7), info.Size)
	assert.False(t, info.IsManifest)
}

func TestLocalListSortedAndMarksManifests(t *testing.T) {
	ctx := context.Background()
	store := newMemLocal()
	for _, key := range []string{"p/f/2.enc", "p/f/1.enc", ManifestKey("p/f/1.enc"), "other/f/1.enc"} {
		require.NoError(t, store.Put(ctx, key, strings.NewReader("x"), -1, nil))
	}

	items, err := store.List(ctx, "p")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "p/f/1.enc", items[0].Key)
	assert.True(t, items[1].IsManifest)
	assert.Equal(t, "p/f/2.enc", items[2].Key)
}

func TestLocalListMissingPrefix(t *testing.T) {
	items, err := newMemLocal().List(context.Background(), "nothing-here")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestLocalDelete(t *testing.T) {
	ctx := context.Background()
	store := newMemLocal()
	require.NoError(t, store.Put(ctx, "k", strings.NewReader("x"), -1, nil))
	require.NoError(t, store.Delete(ctx, "k"))
	ok, err := store.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := newMemLocal().Put(ctx, "k", strings.NewReader("x"), -1, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocalMissingObject(t *testing.T) {
	ctx := context.Background()
	store := newMemLocal()

	_, err := store.Get(ctx, "p/_env.enc/none.enc")
	assert.ErrorIs(t, err, ErrObjectNotFound)
	_, err = store.Stat(ctx, "p/_env.enc/none.enc")
	assert.ErrorIs(t, err, ErrObjectNotFound)
	err = store.Delete(ctx, "p/_env.enc/none.enc")
	assert.True(t, errors.Is(err, ErrObjectNotFound))
}
