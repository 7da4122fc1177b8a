package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	store, err := New(filepath.Join(t.TempDir(), "root"), nil)
	require.NoError(t, err)
	return store
}

func TestWriteAtomic(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.WriteAtomic(ctx, "cases/a.json", []byte("v1")))
	require.NoError(t, store.WriteAtomic(ctx, "cases/a.json", []byte("v2")))

	data, err := store.Load(ctx, "cases/a.json")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))

	names, err := store.ListFiles(ctx, "cases", ".json")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.json"}, names, "不残留临时文件")
}

func TestWriteExclusive(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.WriteExclusive(ctx, "x", []byte("first")))
	assert.ErrorIs(t, store.WriteExclusive(ctx, "x", []byte("second")), ErrExist)

	data, err := store.Load(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "first", string(data), "已有内容不被修改")
}

func TestPathGuards(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for name, path := range map[string]string{
		"空路径":  "",
		"越界":   "../escape",
		"绝对路径": filepath.Join(os.TempDir(), "abs"),
		"当前目录": ".",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := store.Load(ctx, path)
			assert.ErrorIs(t, err, ErrInvalidPath)
		})
	}
}

func TestLoadMissingAndClosed(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotExist)

	ok, err := store.Exists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	names, err := store.ListFiles(ctx, "nodir", ".json")
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, store.Close())
	assert.ErrorIs(t, store.WriteAtomic(ctx, "a", nil), ErrClosed)
}
