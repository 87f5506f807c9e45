package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemory_Allow(t *testing.T) {
	ctx := context.Background()

	t.Run("blocks hits over limit", func(t *testing.T) {
		m := NewMemory()

		for i := 0; i < 3; i++ {
			allowed, _ := m.Allow(ctx, "ip-1", 3, time.Minute)
			assert.True(t, allowed)
		}

		allowed, resetAt := m.Allow(ctx, "ip-1", 3, time.Minute)
		assert.False(t, allowed)
		assert.True(t, resetAt.After(time.Now()))
	})

	t.Run("tracks keys separately", func(t *testing.T) {
		m := NewMemory()

		m.Allow(ctx, "ip-a", 1, time.Minute)
		allowed, _ := m.Allow(ctx, "ip-b", 1, time.Minute)
		assert.True(t, allowed)
	})

	t.Run("window slides", func(t *testing.T) {
		m := NewMemory()
		now := time.Now()
		m.now = func() time.Time { return now }

		m.Allow(ctx, "ip-c", 1, time.Minute)
		allowed, _ := m.Allow(ctx, "ip-c", 1, time.Minute)
		assert.False(t, allowed)

		now = now.Add(61 * time.Second)
		allowed, _ = m.Allow(ctx, "ip-c", 1, time.Minute)
		assert.True(t, allowed)
	})

	t.Run("idle entries are cleaned up", func(t *testing.T) {
		m := NewMemory()
		now := time.Now()
		m.now = func() time.Time { return now }

		m.Allow(ctx, "ip-d", 1, time.Minute)
		now = now.Add(10 * time.Minute)
		m.Allow(ctx, "ip-e", 1, time.Minute)

		_, ok := m.store["ip-d"]
		assert.False(t, ok)
	})
}
