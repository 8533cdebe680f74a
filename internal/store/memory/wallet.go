package memory

import (
	"context"
	"sync"

	"github.com/alanyoungcy/surebot/internal/domain"
)

// Wallet holds bookmaker balances in memory.
type Wallet struct {
	mu       sync.RWMutex
	balances map[string]float64
}

// NewWallet creates a wallet seeded with balances.
func NewWallet(balances map[string]float64) *Wallet {
	w := &Wallet{balances: make(map[string]float64, len(balances))}
	for k, v := range balances {
		w.balances[k] = v
	}
	return w
}

// SetBalance overwrites the balance of bookmaker.
func (w *Wallet) SetBalance(bookmaker string, amount float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[bookmaker] = amount
}

// Balance returns the balance of bookmaker; unknown bookmakers hold zero.
func (w *Wallet) Balance(_ context.Context, bookmaker string) (float64, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.balances[bookmaker], nil
}

// CanAfford reports whether bookmaker holds at least amount.
func (w *Wallet) CanAfford(ctx context.Context, bookmaker string, amount float64) (bool, error) {
	b, err := w.Balance(ctx, bookmaker)
	if err != nil {
		return false, err
	}
	return amount > 0 && b >= amount, nil
}

var _ domain.Wallet = (*Wallet)(nil)
