package domain

import "context"

// ArbStore persists arbs together with their legs.
type ArbStore interface {
	// SaveArb upserts the arb and its legs keyed by id.
	SaveArb(ctx context.Context, arb *Arb) error
	GetArb(ctx context.Context, id string) (*Arb, error)
	ListRecent(ctx context.Context, limit int) ([]*Arb, error)
}

// CandidateSource ranks persisted ACTIVE arbs so the orchestrator can pull
// work when its inbox is empty.
type CandidateSource interface {
	FetchTopCandidates(ctx context.Context, minProfitPercent float64, limit int) ([]*Arb, error)
}

// LegStore is the authoritative record of individual legs.
type LegStore interface {
	GetLeg(ctx context.Context, id string) (Leg, error)
	SaveLeg(ctx context.Context, leg Leg) error
}

// Wallet reports bookmaker funds.
type Wallet interface {
	Balance(ctx context.Context, bookmaker string) (float64, error)
	CanAfford(ctx context.Context, bookmaker string, amount float64) (bool, error)
}
