package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/alejandrodnm/lendpool/internal/domain"
)

// Memory implementa ports.TokenLedger y ports.TokenMinter en memoria.
// Sustituye al servicio de custodia real en tests, dry-run y el demo local;
// cada Transfer es atómico bajo el mutex igual que lo sería el servicio real.
type Memory struct {
	mu       sync.Mutex
	balances map[domain.Account]map[domain.Asset]uint64
}

// NewMemory crea un ledger vacío.
func NewMemory() *Memory {
	return &Memory{balances: make(map[domain.Account]map[domain.Asset]uint64)}
}

// Transfer mueve amount entre cuentas. Falla con ErrTransferFailed si la
// cuenta origen no tiene balance suficiente, sin mutar nada.
func (m *Memory) Transfer(ctx context.Context, from, to domain.Account, asset domain.Asset, amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("ledger.Transfer: %w", domain.ErrInvalidAmount)
	}
	if from == to {
		// Sin guard, el debit sobre `have` y el credit pre-calculado se
		// pisarían y la cuenta se inflaría en amount.
		return fmt.Errorf("ledger.Transfer: %s to itself: %w", from, domain.ErrInvalidAmount)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	have := m.balances[from][asset]
	if have < amount {
		return fmt.Errorf("ledger.Transfer: %s has %d %s, need %d: %w",
			from, have, asset, amount, domain.ErrTransferFailed)
	}
	next, err := domain.AddChecked(m.balances[to][asset], amount)
	if err != nil {
		return fmt.Errorf("ledger.Transfer: credit %s: %w", to, err)
	}

	m.balances[from][asset] = have - amount
	m.credit(to, asset, next)

	slog.Debug("transfer",
		"id", uuid.New().String(),
		"from", from,
		"to", to,
		"asset", asset,
		"amount", amount,
	)
	return nil
}

// Balance devuelve el balance actual de la cuenta.
func (m *Memory) Balance(ctx context.Context, account domain.Account, asset domain.Asset) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[account][asset], nil
}

// Mint acredita supply nuevo en la cuenta.
func (m *Memory) Mint(ctx context.Context, to domain.Account, asset domain.Asset, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := domain.AddChecked(m.balances[to][asset], amount)
	if err != nil {
		return fmt.Errorf("ledger.Mint: %w", err)
	}
	m.credit(to, asset, next)
	return nil
}

// Burn destruye amount desde la cuenta.
func (m *Memory) Burn(ctx context.Context, from domain.Account, asset domain.Asset, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	have := m.balances[from][asset]
	if have < amount {
		return fmt.Errorf("ledger.Burn: %s has %d %s, need %d: %w",
			from, have, asset, amount, domain.ErrTransferFailed)
	}
	m.balances[from][asset] = have - amount
	return nil
}

func (m *Memory) credit(account domain.Account, asset domain.Asset, amount uint64) {
	if m.balances[account] == nil {
		m.balances[account] = make(map[domain.Asset]uint64)
	}
	m.balances[account][asset] = amount
}
