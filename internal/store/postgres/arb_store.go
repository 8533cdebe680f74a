package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/surebot/internal/domain"
)

// ArbStore implements domain.ArbStore and domain.CandidateSource using
// PostgreSQL. Legs live in bet_legs and are joined back on read.
type ArbStore struct {
	db     DB
	maxAge time.Duration
	now    func() time.Time
}

// NewArbStore creates an ArbStore. Candidates older than candidateMaxAge
// are never offered for execution; zero disables the filter.
func NewArbStore(db DB, candidateMaxAge time.Duration) *ArbStore {
	return &ArbStore{db: db, maxAge: candidateMaxAge, now: time.Now}
}

const arbSelectCols = `id, event_key, arb_percent, profit_percent, total_stake,
	should_bet, status, cause, snapshots, created_at, updated_at`

const upsertArbSQL = `
	INSERT INTO arbs (
		id, event_key, arb_percent, profit_percent, total_stake,
		should_bet, status, cause, snapshots, odds_drift,
		created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8, $9, $10,
		$11, $12
	)
	ON CONFLICT (id) DO UPDATE SET
		arb_percent    = EXCLUDED.arb_percent,
		profit_percent = EXCLUDED.profit_percent,
		should_bet     = EXCLUDED.should_bet,
		status         = EXCLUDED.status,
		cause          = EXCLUDED.cause,
		snapshots      = EXCLUDED.snapshots,
		odds_drift     = EXCLUDED.odds_drift,
		updated_at     = EXCLUDED.updated_at`

// SaveArb upserts the arb row and every leg in one transaction.
func (s *ArbStore) SaveArb(ctx context.Context, arb *domain.Arb) error {
	snapshots, err := json.Marshal(arb.Snapshots)
	if err != nil {
		return fmt.Errorf("postgres: encode snapshots %s: %w", arb.ID, err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin save arb %s: %w", arb.ID, err)
	}

	_, err = tx.Exec(ctx, upsertArbSQL,
		arb.ID, arb.EventKey, arb.ArbPercent, arb.ProfitPercent, arb.TotalStake,
		arb.ShouldBet, string(arb.Status), arb.Cause, snapshots, arb.OddsDrift(),
		arb.CreatedAt, arb.UpdatedAt,
	)
	if err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("postgres: upsert arb %s: %w", arb.ID, err)
	}

	for _, l := range arb.Legs {
		if err := upsertLeg(ctx, tx, l); err != nil {
			_ = tx.Rollback(ctx)
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit arb %s: %w", arb.ID, err)
	}
	return nil
}

func scanArb(row pgx.Row) (*domain.Arb, error) {
	var (
		a         domain.Arb
		status    string
		snapshots []byte
	)
	err := row.Scan(
		&a.ID, &a.EventKey, &a.ArbPercent, &a.ProfitPercent, &a.TotalStake,
		&a.ShouldBet, &status, &a.Cause, &snapshots, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = domain.ArbStatus(status)
	if len(snapshots) > 0 {
		if err := json.Unmarshal(snapshots, &a.Snapshots); err != nil {
			return nil, fmt.Errorf("decode snapshots: %w", err)
		}
	}
	return &a, nil
}

// GetArb returns the arb with its legs.
func (s *ArbStore) GetArb(ctx context.Context, id string) (*domain.Arb, error) {
	row := s.db.QueryRow(ctx, `SELECT `+arbSelectCols+` FROM arbs WHERE id = $1`, id)
	a, err := scanArb(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: get arb %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get arb %s: %w", id, err)
	}
	if err := s.attachLegs(ctx, []*domain.Arb{a}); err != nil {
		return nil, err
	}
	return a, nil
}

// ListRecent returns the most recently detected arbs first.
func (s *ArbStore) ListRecent(ctx context.Context, limit int) ([]*domain.Arb, error) {
	query := `SELECT ` + arbSelectCols + ` FROM arbs ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}
	return s.queryArbs(ctx, "list recent arbs", query, args...)
}

// FetchTopCandidates returns ACTIVE arbs paying at least minProfitPercent,
// ranked by profit discounted by odds drift.
func (s *ArbStore) FetchTopCandidates(ctx context.Context, minProfitPercent float64, limit int) ([]*domain.Arb, error) {
	var cutoff time.Time
	if s.maxAge > 0 {
		cutoff = s.now().Add(-s.maxAge)
	}
	query := `SELECT ` + arbSelectCols + ` FROM arbs
		WHERE status = 'ACTIVE' AND profit_percent >= $1 AND created_at >= $2
		ORDER BY profit_percent - 100 * odds_drift DESC, created_at DESC`
	args := []any{minProfitPercent, cutoff}
	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}
	return s.queryArbs(ctx, "fetch candidates", query, args...)
}

func (s *ArbStore) queryArbs(ctx context.Context, op, query string, args ...any) ([]*domain.Arb, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	defer rows.Close()

	var arbs []*domain.Arb
	for rows.Next() {
		a, err := scanArb(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: %s: scan: %w", op, err)
		}
		arbs = append(arbs, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s rows: %w", op, err)
	}
	rows.Close()

	if err := s.attachLegs(ctx, arbs); err != nil {
		return nil, err
	}
	return arbs, nil
}

func (s *ArbStore) attachLegs(ctx context.Context, arbs []*domain.Arb) error {
	if len(arbs) == 0 {
		return nil
	}
	ids := make([]string, len(arbs))
	byID := make(map[string]*domain.Arb, len(arbs))
	for i, a := range arbs {
		ids[i] = a.ID
		byID[a.ID] = a
	}

	rows, err := s.db.Query(ctx, `SELECT `+legSelectCols+` FROM bet_legs WHERE arb_id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("postgres: load legs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		l, err := scanLeg(rows)
		if err != nil {
			return fmt.Errorf("postgres: scan leg: %w", err)
		}
		if a, ok := byID[l.ArbID]; ok {
			a.Legs = append(a.Legs, l)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("postgres: load legs rows: %w", err)
	}
	for _, a := range arbs {
		domain.SortLegs(a.Legs)
	}
	return nil
}

var (
	_ domain.ArbStore        = (*ArbStore)(nil)
	_ domain.CandidateSource = (*ArbStore)(nil)
)
