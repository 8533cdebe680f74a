package arbitrage

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/surebot/internal/domain"
	"github.com/alanyoungcy/surebot/internal/oddsmath"
)

// positionRank orders positions so the primary side of every pair is
// visited first and becomes leg A.
var positionRank = map[domain.OutcomePosition]int{
	domain.PositionOver:     0,
	domain.PositionHome:     1,
	domain.PositionPrimary:  2,
	domain.PositionUnder:    3,
	domain.PositionAway:     4,
	domain.PositionOpposite: 5,
}

// BuilderConfig configures the opportunity builder.
type BuilderConfig struct {
	// TotalStake is the combined raw stake split across both legs.
	TotalStake float64
	Obfuscator *oddsmath.Obfuscator
	// Wallet sets ShouldBet. A nil wallet leaves every arb unfunded.
	Wallet domain.Wallet
	Logger *slog.Logger
	Now    func() time.Time
}

// Builder pairs opposite outcomes across bookmakers and materializes the
// qualifying pairs as Arbs.
type Builder struct {
	totalStake decimal.Decimal
	obf        *oddsmath.Obfuscator
	wallet     domain.Wallet
	logger     *slog.Logger
	now        func() time.Time
}

// NewBuilder creates a Builder.
func NewBuilder(cfg BuilderConfig) *Builder {
	if cfg.Obfuscator == nil {
		cfg.Obfuscator = oddsmath.NewObfuscator(oddsmath.DefaultObfuscatorConfig(), nil)
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Builder{
		totalStake: decimal.NewFromFloat(cfg.TotalStake),
		obf:        cfg.Obfuscator,
		wallet:     cfg.Wallet,
		logger:     cfg.Logger.With(slog.String("component", "arb_builder")),
		now:        cfg.Now,
	}
}

// candidate is one outcome flattened out of a bookmaker's event.
type candidate struct {
	bookmaker string
	eventKey  string
	category  domain.MarketCategory
	line      float64
	outcome   domain.Outcome
}

// Build evaluates the latest event of each bookmaker for one logical event
// and returns every arbitrage found. Outcomes from the same bookmaker are
// never paired and each opposite pair is evaluated in one direction only.
func (b *Builder) Build(ctx context.Context, events []domain.CanonicalEvent) []*domain.Arb {
	byCategory := make(map[domain.MarketCategory]map[domain.OutcomePosition][]candidate)
	for _, ev := range events {
		for _, m := range ev.Markets {
			for _, o := range m.Outcomes {
				positions, ok := byCategory[m.Category]
				if !ok {
					positions = make(map[domain.OutcomePosition][]candidate)
					byCategory[m.Category] = positions
				}
				positions[o.Position] = append(positions[o.Position], candidate{
					bookmaker: ev.Bookmaker,
					eventKey:  ev.EventKey,
					category:  m.Category,
					line:      m.Line,
					outcome:   o,
				})
			}
		}
	}

	categories := make([]domain.MarketCategory, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })

	var arbs []*domain.Arb
	for _, cat := range categories {
		positions := byCategory[cat]
		processed := make(map[domain.OutcomePosition]bool)
		for _, pos := range orderedPositions(positions) {
			if processed[pos] {
				continue
			}
			opp, ok := pos.Opposite()
			if !ok {
				continue
			}
			processed[pos] = true
			processed[opp] = true

			for _, a := range positions[pos] {
				for _, o := range positions[opp] {
					if a.bookmaker == o.bookmaker || !domain.SameLine(a.line, o.line) {
						continue
					}
					if !oddsmath.IsArbitrage(a.outcome.Odds, o.outcome.Odds) {
						continue
					}
					arbs = append(arbs, b.materialize(ctx, a, o))
				}
			}
		}
	}
	return arbs
}

func orderedPositions(m map[domain.OutcomePosition][]candidate) []domain.OutcomePosition {
	out := make([]domain.OutcomePosition, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, iok := positionRank[out[i]]
		rj, jok := positionRank[out[j]]
		if iok != jok {
			return iok
		}
		if ri != rj {
			return ri < rj
		}
		return out[i] < out[j]
	})
	return out
}

func (b *Builder) materialize(ctx context.Context, a, o candidate) *domain.Arb {
	now := b.now()
	oddsA, oddsB := a.outcome.Odds, o.outcome.Odds
	arbPct := oddsmath.ArbitragePercentage(oddsA, oddsB)

	rawA := oddsmath.StakeForLegA(oddsA, oddsB, b.totalStake).InexactFloat64()
	rawB := oddsmath.StakeForLegB(oddsA, oddsB, b.totalStake).InexactFloat64()
	stakeA := b.obf.Obfuscate(rawA)
	stakeB := b.obf.Obfuscate(rawB)

	arb := &domain.Arb{
		ID:            uuid.NewString(),
		EventKey:      a.eventKey,
		ArbPercent:    arbPct,
		ProfitPercent: oddsmath.ProfitPercentage(arbPct),
		TotalStake:    stakeA + stakeB,
		Status:        domain.ArbActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	arb.Legs = []domain.Leg{
		b.leg(arb.ID, a, rawA, stakeA, now),
		b.leg(arb.ID, o, rawB, stakeB, now),
	}
	arb.ShouldBet = b.affordable(ctx, a.bookmaker, stakeA) && b.affordable(ctx, o.bookmaker, stakeB)
	arb.RecordSnapshot(oddsA, oddsB, now)
	return arb
}

func (b *Builder) leg(arbID string, c candidate, raw, stake float64, now time.Time) domain.Leg {
	return domain.Leg{
		ID:            uuid.NewString(),
		ArbID:         arbID,
		Bookmaker:     c.bookmaker,
		EventKey:      c.eventKey,
		Category:      c.category,
		Line:          c.line,
		Position:      c.outcome.Position,
		OutcomeID:     c.outcome.ID,
		SourceEventID: c.outcome.SourceEventID,
		Odds:          c.outcome.Odds,
		RawStake:      raw,
		Stake:         stake,
		Status:        domain.LegPending,
		UpdatedAt:     now,
	}
}

func (b *Builder) affordable(ctx context.Context, bookmaker string, amount float64) bool {
	if b.wallet == nil {
		return false
	}
	ok, err := b.wallet.CanAfford(ctx, bookmaker, amount)
	if err != nil {
		b.logger.Warn("funds check failed",
			slog.String("bookmaker", bookmaker),
			slog.Float64("amount", amount),
			slog.String("error", err.Error()),
		)
		return false
	}
	return ok
}
