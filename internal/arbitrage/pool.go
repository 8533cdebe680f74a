package arbitrage

import (
	"sync"
	"time"

	"github.com/alanyoungcy/surebot/internal/domain"
)

const (
	DefaultMaxPerKey = 50
	DefaultFreshness = 5 * time.Second
)

// PoolConfig bounds the event pool.
type PoolConfig struct {
	MaxPerKey int
	Freshness time.Duration
	Now       func() time.Time
}

// Pool caches recent canonical events per logical event key. Each group is
// capped and time-ordered; the oldest entry is evicted on overflow.
type Pool struct {
	mu        sync.RWMutex
	groups    map[string][]domain.CanonicalEvent
	maxPerKey int
	freshness time.Duration
	now       func() time.Time
}

// NewPool creates an empty pool.
func NewPool(cfg PoolConfig) *Pool {
	if cfg.MaxPerKey <= 0 {
		cfg.MaxPerKey = DefaultMaxPerKey
	}
	if cfg.Freshness <= 0 {
		cfg.Freshness = DefaultFreshness
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Pool{
		groups:    make(map[string][]domain.CanonicalEvent),
		maxPerKey: cfg.MaxPerKey,
		freshness: cfg.Freshness,
		now:       cfg.Now,
	}
}

// Add stamps ev with the current time, appends it to its group and returns
// the number of distinct bookmakers with a fresh entry in that group.
func (p *Pool) Add(ev domain.CanonicalEvent) (int, error) {
	if err := ev.Validate(); err != nil {
		return 0, err
	}
	now := p.now()
	ev.LastUpdated = now

	p.mu.Lock()
	defer p.mu.Unlock()

	g := append(p.groups[ev.EventKey], ev)
	if over := len(g) - p.maxPerKey; over > 0 {
		g = append(g[:0:0], g[over:]...)
	}
	p.groups[ev.EventKey] = g
	return len(p.latestLocked(g, now)), nil
}

// Snapshot returns a point-in-time copy of the latest fresh event of every
// bookmaker in the group, in order of each bookmaker's first appearance.
func (p *Pool) Snapshot(key string) []domain.CanonicalEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latestLocked(p.groups[key], p.now())
}

func (p *Pool) latestLocked(g []domain.CanonicalEvent, now time.Time) []domain.CanonicalEvent {
	idx := make(map[string]int)
	var out []domain.CanonicalEvent
	for _, ev := range g {
		if now.Sub(ev.LastUpdated) > p.freshness {
			continue
		}
		if i, ok := idx[ev.Bookmaker]; ok {
			out[i] = ev
			continue
		}
		idx[ev.Bookmaker] = len(out)
		out = append(out, ev)
	}
	return out
}

// Sweep drops entries older than the freshness window and removes groups
// left empty. It returns the number of events and groups removed.
func (p *Pool) Sweep() (events, groups int) {
	now := p.now()
	p.mu.Lock()
	defer p.mu.Unlock()

	for key, g := range p.groups {
		kept := g[:0:0]
		for _, ev := range g {
			if now.Sub(ev.LastUpdated) <= p.freshness {
				kept = append(kept, ev)
			}
		}
		events += len(g) - len(kept)
		if len(kept) == 0 {
			delete(p.groups, key)
			groups++
			continue
		}
		p.groups[key] = kept
	}
	return events, groups
}

// Size returns the number of cached events for key.
func (p *Pool) Size(key string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.groups[key])
}

// Groups returns the number of logical events currently pooled.
func (p *Pool) Groups() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.groups)
}
