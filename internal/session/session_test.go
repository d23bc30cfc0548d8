package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SaveGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Hour)

	require.NoError(t, s.Save(ctx, &Session{Token: "t1", UserID: 7, CreatedAt: time.Now()}))

	got, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.UserID)
	assert.False(t, got.IsAdmin)

	require.NoError(t, s.Delete(ctx, "t1"))
	_, err = s.Get(ctx, "t1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Expires(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Save(ctx, &Session{Token: "t1", IsAdmin: true, CreatedAt: now}))
	_, err := s.Get(ctx, "t1")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = s.Get(ctx, "t1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisKey(t *testing.T) {
	assert.Equal(t, "session:abc", redisKey("abc"))
}
