package arbitrage

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/surebot/internal/domain"
)

func TestPoolAddCountsDistinctBookmakers(t *testing.T) {
	p := NewPool(PoolConfig{})

	n, err := p.Add(totalsEvent("m1", "alpha", 2.5))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = p.Add(totalsEvent("m1", "alpha", 2.5))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = p.Add(totalsEvent("m1", "beta", 2.5))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 3, p.Size("m1"))
}

func TestPoolRejectsBlankKey(t *testing.T) {
	p := NewPool(PoolConfig{})
	_, err := p.Add(totalsEvent("  ", "alpha", 2.5))
	assert.ErrorIs(t, err, domain.ErrInvalidEvent)
	assert.Zero(t, p.Groups())
}

func TestPoolEvictsOldestOverCap(t *testing.T) {
	p := NewPool(PoolConfig{MaxPerKey: 5})
	for i := 0; i < 12; i++ {
		_, err := p.Add(totalsEvent("m1", fmt.Sprintf("book-%d", i), 2.5))
		require.NoError(t, err)
	}
	assert.Equal(t, 5, p.Size("m1"))

	snap := p.Snapshot("m1")
	require.Len(t, snap, 5)
	assert.Equal(t, "book-7", snap[0].Bookmaker)
	assert.Equal(t, "book-11", snap[4].Bookmaker)
}

func TestPoolSnapshotKeepsLatestPerBookmaker(t *testing.T) {
	p := NewPool(PoolConfig{})
	_, _ = p.Add(totalsEvent("m1", "alpha", 2.5, outcome("o", domain.PositionOver, 1.9)))
	_, _ = p.Add(totalsEvent("m1", "beta", 2.5, outcome("u", domain.PositionUnder, 2.0)))
	_, _ = p.Add(totalsEvent("m1", "alpha", 2.5, outcome("o", domain.PositionOver, 2.2)))

	snap := p.Snapshot("m1")
	require.Len(t, snap, 2)
	assert.Equal(t, "alpha", snap[0].Bookmaker)
	assert.Equal(t, 2.2, snap[0].Markets[0].Outcomes[0].Odds)
	assert.Equal(t, "beta", snap[1].Bookmaker)
}

func TestPoolStampsAndSweeps(t *testing.T) {
	clock := newFakeClock()
	p := NewPool(PoolConfig{Freshness: 5 * time.Second, Now: clock.Now})

	ev := totalsEvent("m1", "alpha", 2.5)
	ev.LastUpdated = time.Time{}
	_, err := p.Add(ev)
	require.NoError(t, err)
	assert.Equal(t, clock.Now(), p.Snapshot("m1")[0].LastUpdated)

	clock.Advance(3 * time.Second)
	_, _ = p.Add(totalsEvent("m2", "beta", 2.5))

	clock.Advance(3 * time.Second)
	assert.Empty(t, p.Snapshot("m1"), "stale entries are hidden before the sweep")

	events, groups := p.Sweep()
	assert.Equal(t, 1, events)
	assert.Equal(t, 1, groups)
	assert.Equal(t, 1, p.Groups())
	assert.Zero(t, p.Size("m1"))
	assert.Equal(t, 1, p.Size("m2"))
}
