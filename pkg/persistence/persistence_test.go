package persistence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

func TestJSONFileStore_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "whitelist.json")
	store := NewJSONFileStore(path)
	assert.Equal(t, path, store.Path())

	var got doc
	assert.ErrorIs(t, store.Load(&got), ErrNotExists)

	require.NoError(t, store.Save(doc{Name: "AK-47", Value: 12.5}))
	require.NoError(t, store.Load(&got))
	assert.Equal(t, doc{Name: "AK-47", Value: 12.5}, got)

	_, err := os.Stat(store.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err), "临时文件应已被 rename")
}

func TestJSONFileStore_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	var got doc
	assert.ErrorIs(t, NewJSONFileStore(path).Load(&got), ErrNotExists)
}
