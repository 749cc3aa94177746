package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rushteam/learnkit/core"
)

func TestMemoryStoreGetSetDelete(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	_, err := s.Get(ctx, "model")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, core.IsStoreNotFound(err))

	value := []byte("weights")
	require.NoError(t, s.Set(ctx, "model", value))
	value[0] = 'W'

	got, err := s.Get(ctx, "model")
	require.NoError(t, err)
	assert.Equal(t, []byte("weights"), got)
	assert.Equal(t, 1, s.Len())

	require.NoError(t, s.Delete(ctx, "model"))
	_, err = s.Get(ctx, "model")
	assert.True(t, core.IsStoreNotFound(err))
	require.NoError(t, s.Close())
}

func TestMemoryStoreTTL(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "short", []byte("a"), 5))
	require.NoError(t, s.Set(ctx, "forever", []byte("b")))

	now = now.Add(4 * time.Second)
	_, err := s.Get(ctx, "short")
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	_, err = s.Get(ctx, "short")
	assert.True(t, core.IsStoreNotFound(err))
	assert.Equal(t, 1, s.Len())

	s.evictExpired()
	s.mu.RLock()
	_, present := s.data["short"]
	s.mu.RUnlock()
	assert.False(t, present)
}
