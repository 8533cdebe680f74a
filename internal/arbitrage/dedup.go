package arbitrage

import (
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/surebot/internal/domain"
)

// Dedup suppresses re-emission of an identical opportunity within a TTL.
// It is safe for concurrent use.
type Dedup struct {
	seen map[string]time.Time // fingerprint -> first seen
	ttl  time.Duration
	now  func() time.Time
	mu   sync.Mutex
}

// NewDedup creates a Dedup with the given ttl. A zero ttl disables it.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Fingerprint identifies an opportunity by event, market and both prices.
// Changed odds produce a different fingerprint.
func Fingerprint(arb *domain.Arb) string {
	a, b := arb.LegA(), arb.LegB()
	return fmt.Sprintf("%s|%s|%.2f|%s@%.4f|%s@%.4f",
		arb.EventKey, a.Category, a.Line, a.OutcomeID, a.Odds, b.OutcomeID, b.Odds)
}

// IsDuplicate reports whether fp was seen within the TTL and records it
// otherwise.
func (d *Dedup) IsDuplicate(fp string) bool {
	if d.ttl <= 0 {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if at, ok := d.seen[fp]; ok && now.Sub(at) < d.ttl {
		return true
	}
	d.seen[fp] = now
	return false
}

// Cleanup removes expired fingerprints.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for fp, at := range d.seen {
		if now.Sub(at) >= d.ttl {
			delete(d.seen, fp)
		}
	}
}

// Len returns the number of remembered fingerprints, expired ones included
// until the next Cleanup.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
