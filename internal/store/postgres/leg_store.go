package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/alanyoungcy/surebot/internal/domain"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const legSelectCols = `id, arb_id, bookmaker, event_key, category, line, position,
	outcome_id, source_event_id, odds, raw_stake, stake, status, attempts,
	failure_reason, updated_at`

// A terminal leg is never moved back to a non-terminal status; the
// orchestrator may persist an arb snapshot that is older than the agent's
// write.
const upsertLegSQL = `
	INSERT INTO bet_legs (
		id, arb_id, bookmaker, event_key, category, line, position,
		outcome_id, source_event_id, odds, raw_stake, stake, status, attempts,
		failure_reason, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7,
		$8, $9, $10, $11, $12, $13, $14,
		$15, $16
	)
	ON CONFLICT (id) DO UPDATE SET
		odds           = EXCLUDED.odds,
		raw_stake      = EXCLUDED.raw_stake,
		stake          = EXCLUDED.stake,
		status         = EXCLUDED.status,
		attempts       = GREATEST(bet_legs.attempts, EXCLUDED.attempts),
		failure_reason = EXCLUDED.failure_reason,
		updated_at     = EXCLUDED.updated_at
	WHERE bet_legs.status NOT IN ('PLACED', 'WON', 'LOST', 'VOID')
	   OR EXCLUDED.status IN ('PLACED', 'WON', 'LOST', 'VOID')`

func upsertLeg(ctx context.Context, q execer, l domain.Leg) error {
	_, err := q.Exec(ctx, upsertLegSQL,
		l.ID, l.ArbID, l.Bookmaker, l.EventKey, string(l.Category), l.Line, string(l.Position),
		l.OutcomeID, l.SourceEventID, l.Odds, l.RawStake, l.Stake, string(l.Status), l.Attempts,
		l.FailureReason, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert leg %s: %w", l.ID, err)
	}
	return nil
}

func scanLeg(row pgx.Row) (domain.Leg, error) {
	var (
		l                          domain.Leg
		category, position, status string
	)
	err := row.Scan(
		&l.ID, &l.ArbID, &l.Bookmaker, &l.EventKey, &category, &l.Line, &position,
		&l.OutcomeID, &l.SourceEventID, &l.Odds, &l.RawStake, &l.Stake, &status, &l.Attempts,
		&l.FailureReason, &l.UpdatedAt,
	)
	if err != nil {
		return domain.Leg{}, err
	}
	l.Category = domain.MarketCategory(category)
	l.Position = domain.OutcomePosition(position)
	l.Status = domain.LegStatus(status)
	return l, nil
}

// LegStore implements domain.LegStore on the bet_legs table.
type LegStore struct {
	db DB
}

// NewLegStore creates a LegStore.
func NewLegStore(db DB) *LegStore {
	return &LegStore{db: db}
}

// GetLeg returns the leg with the given id.
func (s *LegStore) GetLeg(ctx context.Context, id string) (domain.Leg, error) {
	row := s.db.QueryRow(ctx, `SELECT `+legSelectCols+` FROM bet_legs WHERE id = $1`, id)
	l, err := scanLeg(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Leg{}, fmt.Errorf("postgres: get leg %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Leg{}, fmt.Errorf("postgres: get leg %s: %w", id, err)
	}
	return l, nil
}

// SaveLeg upserts a single leg.
func (s *LegStore) SaveLeg(ctx context.Context, leg domain.Leg) error {
	return upsertLeg(ctx, s.db, leg)
}

var _ domain.LegStore = (*LegStore)(nil)
