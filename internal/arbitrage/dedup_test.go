package arbitrage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedupCleanupDropsExpired(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	d := NewDedup(time.Minute)
	d.now = func() time.Time { return now }

	assert.False(t, d.IsDuplicate("a"))
	assert.True(t, d.IsDuplicate("a"))

	now = now.Add(30 * time.Second)
	assert.False(t, d.IsDuplicate("b"))
	assert.Equal(t, 2, d.Len())

	now = now.Add(45 * time.Second)
	d.Cleanup()
	assert.Equal(t, 1, d.Len())
	assert.True(t, d.IsDuplicate("b"))
	assert.False(t, d.IsDuplicate("a"))
}
