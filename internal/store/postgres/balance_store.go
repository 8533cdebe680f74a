package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/surebot/internal/domain"
)

// BalanceStore implements domain.Wallet on bookmaker_balances. A bookmaker
// without a row has a zero balance.
type BalanceStore struct {
	db DB
}

// NewBalanceStore creates a BalanceStore.
func NewBalanceStore(db DB) *BalanceStore {
	return &BalanceStore{db: db}
}

// Balance returns the recorded balance for bookmaker.
func (s *BalanceStore) Balance(ctx context.Context, bookmaker string) (float64, error) {
	var bal float64
	err := s.db.QueryRow(ctx,
		`SELECT balance FROM bookmaker_balances WHERE bookmaker = $1`, bookmaker,
	).Scan(&bal)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: balance %s: %w", bookmaker, err)
	}
	return bal, nil
}

// CanAfford reports whether bookmaker holds at least amount.
func (s *BalanceStore) CanAfford(ctx context.Context, bookmaker string, amount float64) (bool, error) {
	if amount <= 0 {
		return false, nil
	}
	bal, err := s.Balance(ctx, bookmaker)
	if err != nil {
		return false, err
	}
	return bal >= amount, nil
}

// SetBalance records the balance reported by a bookmaker's agent.
func (s *BalanceStore) SetBalance(ctx context.Context, bookmaker string, balance float64) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO bookmaker_balances (bookmaker, balance, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (bookmaker) DO UPDATE SET
			balance    = EXCLUDED.balance,
			updated_at = EXCLUDED.updated_at`,
		bookmaker, balance,
	)
	if err != nil {
		return fmt.Errorf("postgres: set balance %s: %w", bookmaker, err)
	}
	return nil
}

var _ domain.Wallet = (*BalanceStore)(nil)
