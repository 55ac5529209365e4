package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestMemoryStore(t *testing.T, ttl time.Duration) (*MemoryStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	s := NewMemoryStore(ttl, 0)
	s.now = clock.Now
	t.Cleanup(func() { _ = s.Close() })
	return s, clock
}

var sue = Payload{User: User{ID: 1, Username: "sue"}}

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestMemoryStore(t, 10*time.Minute)

	id, err := s.Create(ctx, sue)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := s.Load(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sue.User, got.User)
	assert.Equal(t, clock.t.Add(10*time.Minute), got.ExpiresAt)

	require.NoError(t, s.Destroy(ctx, id))
	got, err = s.Load(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.NoError(t, s.Destroy(ctx, id), "destroying a missing session is not an error")
}

func TestMemoryStoreRejectsAnonymous(t *testing.T) {
	s, _ := newTestMemoryStore(t, time.Minute)

	_, err := s.Create(context.Background(), Payload{})
	assert.ErrorIs(t, err, ErrAnonymous)
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestMemoryStore(t, 10*time.Minute)

	id, err := s.Create(ctx, sue)
	require.NoError(t, err)

	clock.Advance(10*time.Minute - time.Second)
	got, err := s.Load(ctx, id)
	require.NoError(t, err)
	assert.NotNil(t, got)

	clock.Advance(time.Second)
	got, err = s.Load(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got, "session must be absent at exactly its expiry")
}

func TestMemoryStoreTouchExtends(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestMemoryStore(t, 10*time.Minute)

	id, err := s.Create(ctx, sue)
	require.NoError(t, err)

	clock.Advance(9 * time.Minute)
	require.NoError(t, s.Touch(ctx, id))

	clock.Advance(9 * time.Minute)
	got, err := s.Load(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, clock.t.Add(time.Minute), got.ExpiresAt)

	assert.NoError(t, s.Touch(ctx, "missing"))
}

func TestMemoryStoreDeleteExpired(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestMemoryStore(t, time.Minute)

	_, err := s.Create(ctx, sue)
	require.NoError(t, err)
	clock.Advance(30 * time.Second)
	_, err = s.Create(ctx, Payload{User: User{ID: 2, Username: "bob"}})
	require.NoError(t, err)

	clock.Advance(45 * time.Second)
	deleted, err := s.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStoreJanitorStops(t *testing.T) {
	s := NewMemoryStore(time.Millisecond, time.Millisecond)
	_, err := s.Create(context.Background(), sue)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestGenerateIDIsUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id, err := GenerateID()
		require.NoError(t, err)
		assert.Len(t, id, 43)
		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}
	}
}
