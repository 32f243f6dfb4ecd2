package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geodialogue/internal/common/logger"
	"geodialogue/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

func testState(id string, at time.Time) *models.ConversationState {
	st := models.NewConversationState(id, at)
	st.Kind = models.KindSeaLevelRise
	st.Params = models.ParameterSet{"city": "Jakarta", "year": 2020}
	st.Pending = "threshold"
	st.TurnCount = 2
	return st
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newClockedStore(t *testing.T, ttl time.Duration) (*MemoryStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	s := NewMemoryStore(ttl)
	s.now = clock.now
	return s, clock
}

// ==========================
// MemoryStore Tests
// ==========================

func TestMemoryStore_CRUD(t *testing.T) {
	ctx := context.Background()
	s, clock := newClockedStore(t, time.Minute)

	_, err := s.Get(ctx, "s1")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)

	require.NoError(t, s.Create(ctx, testState("s1", clock.t)))
	assert.ErrorIs(t, s.Create(ctx, testState("s1", clock.t)), models.ErrSessionExists)

	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.KindSeaLevelRise, got.Kind)
	assert.Equal(t, 2020, got.Params["year"])

	got.TurnCount = 3
	require.NoError(t, s.Put(ctx, got))
	again, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 3, again.TurnCount)

	require.NoError(t, s.Delete(ctx, "s1"))
	require.NoError(t, s.Delete(ctx, "s1"), "deleting a missing state is not an error")
	_, err = s.Get(ctx, "s1")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s, clock := newClockedStore(t, 0)

	st := testState("s1", clock.t)
	require.NoError(t, s.Create(ctx, st))
	st.Params["year"] = 1999

	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	got.Params["city"] = "Seoul"

	fresh, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.ParameterSet{"city": "Jakarta", "year": 2020}, fresh.Params)
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	s, clock := newClockedStore(t, time.Minute)

	require.NoError(t, s.Create(ctx, testState("old", clock.t)))
	clock.t = clock.t.Add(45 * time.Second)
	require.NoError(t, s.Create(ctx, testState("new", clock.t)))

	clock.t = clock.t.Add(30 * time.Second)
	_, err := s.Get(ctx, "old")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
	_, err = s.Get(ctx, "new")
	assert.NoError(t, err)

	assert.NoError(t, s.Create(ctx, testState("old", clock.t)), "an expired id can be reused")
	clock.t = clock.t.Add(2 * time.Minute)
	assert.Equal(t, 2, s.Sweep())
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStore_Ping(t *testing.T) {
	s := NewMemoryStore(0)
	assert.NoError(t, s.Ping(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Ping(ctx), context.Canceled)
}

// ==========================
// Sweeper Tests
// ==========================

func TestSweeper(t *testing.T) {
	t.Run("invalid schedule", func(t *testing.T) {
		_, err := NewSweeper(NewMemoryStore(time.Minute), "every minute", nil)
		assert.Error(t, err)
	})

	t.Run("run removes expired states", func(t *testing.T) {
		s, clock := newClockedStore(t, time.Minute)
		require.NoError(t, s.Create(context.Background(), testState("s1", clock.t)))
		clock.t = clock.t.Add(time.Hour)

		sw, err := NewSweeper(s, "@every 1m", logger.NewTestLogger(t))
		require.NoError(t, err)
		sw.run()
		assert.Equal(t, 0, s.Len())
	})

	t.Run("start and stop", func(t *testing.T) {
		sw, err := NewSweeper(NewMemoryStore(time.Minute), "@every 1h", nil)
		require.NoError(t, err)
		sw.Start()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		sw.Stop(ctx)
		assert.NoError(t, ctx.Err())
	})
}
