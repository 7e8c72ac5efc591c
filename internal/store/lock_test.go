package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLock_ExcludesSecondHolder(t *testing.T) {
	// Given: one holder of the lock
	path := filepath.Join(t.TempDir(), "nested", ".build.lock")
	first := NewFileLock(path)
	require.NoError(t, first.Lock(context.Background()))

	// When: a second lock on the same file tries to acquire
	second := NewFileLock(path)
	ok, err := second.TryLock()

	// Then: it is refused until the first releases
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, first.Unlock())
	ok, err = second.TryLock()
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, second.Unlock())
}

func TestFileLock_LockHonorsContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".lock")
	holder := NewFileLock(path)
	require.NoError(t, holder.Lock(context.Background()))
	defer func() { _ = holder.Unlock() }()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := NewFileLock(path).Lock(ctx)
	assert.Error(t, err)
}

func TestFileLock_UnlockIdempotent(t *testing.T) {
	l := NewFileLock(filepath.Join(t.TempDir(), ".lock"))
	assert.NoError(t, l.Unlock())
	require.NoError(t, l.Lock(context.Background()))
	assert.NoError(t, l.Unlock())
	assert.NoError(t, l.Unlock())
}
