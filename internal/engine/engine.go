package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/lendpool/internal/domain"
	"github.com/alejandrodnm/lendpool/internal/ports"
)

const (
	defaultMaxPriceAge = 60 * time.Second
)

// Config holds the engine-wide risk knobs.
type Config struct {
	// MaxPriceAge is how old an oracle quote may be before any
	// risk-dependent operation fails with ErrStalePrice.
	MaxPriceAge time.Duration

	// MinHealthFactor is the ratio below which a position becomes
	// liquidatable. 1.0 unless the deployment wants a buffer.
	MinHealthFactor decimal.Decimal

	// Clock overrides time.Now, for deterministic tests.
	Clock func() time.Time
}

// DefaultConfig devuelve una configuración sensata para producción.
func DefaultConfig() Config {
	return Config{
		MaxPriceAge:     defaultMaxPriceAge,
		MinHealthFactor: decimal.NewFromInt(1),
	}
}

// Engine orquesta las cuatro operaciones de usuario (deposit, withdraw,
// borrow, repay) sobre los stores de pools y posiciones, validando contra el
// RiskEngine y delegando el movimiento real de valor al Token Ledger.
//
// Cada operación es atómica: compute-and-validate puro primero, después UNA
// llamada externa de transferencia, y solo entonces el commit a los stores.
// El mutex serializa operaciones completas — hace de scheduler externo del
// modelo de concurrencia: dos operaciones sobre el mismo pool o la misma
// posición nunca se intercalan.
type Engine struct {
	mu        sync.Mutex
	cfg       Config
	pools     ports.PoolStore
	positions ports.PositionStore
	oracle    ports.Oracle
	ledger    ports.TokenLedger
}

// New crea un Engine con todas las dependencias inyectadas.
func New(cfg Config, pools ports.PoolStore, positions ports.PositionStore, oracle ports.Oracle, ledger ports.TokenLedger) *Engine {
	if cfg.MaxPriceAge <= 0 {
		cfg.MaxPriceAge = defaultMaxPriceAge
	}
	if cfg.MinHealthFactor.IsZero() {
		cfg.MinHealthFactor = decimal.NewFromInt(1)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Engine{
		cfg:       cfg,
		pools:     pools,
		positions: positions,
		oracle:    oracle,
		ledger:    ledger,
	}
}

func (e *Engine) now() time.Time {
	return e.cfg.Clock()
}

// loadPosition devuelve la posición del owner, creándola en la primera
// interacción.
func (e *Engine) loadPosition(ctx context.Context, owner string) (*domain.UserPosition, error) {
	pos, err := e.positions.GetPosition(ctx, owner)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		pos = domain.NewUserPosition(owner)
	}
	return pos, nil
}

// Deposit ingresa amount del asset como colateral del usuario.
func (e *Engine) Deposit(ctx context.Context, user string, asset domain.Asset, amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("engine.Deposit: %w", domain.ErrInvalidAmount)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	pool, err := e.pools.GetPool(ctx, asset)
	if err != nil {
		return fmt.Errorf("engine.Deposit: %w", err)
	}

	now := e.now()
	pool.AccrueInterest(now)

	pos, err := e.loadPosition(ctx, user)
	if err != nil {
		return fmt.Errorf("engine.Deposit: %w", err)
	}

	// Shares contra los totales PRE-depósito; el primer depósito arranca 1:1.
	shares, err := domain.SharesForDeposit(amount, pool.TotalDeposits, pool.TotalDepositShares)
	if err != nil {
		return fmt.Errorf("engine.Deposit: %w", err)
	}

	newTotal, err := domain.AddChecked(pool.TotalDeposits, amount)
	if err != nil {
		return fmt.Errorf("engine.Deposit: %w", err)
	}
	newShares, err := domain.AddChecked(pool.TotalDepositShares, shares)
	if err != nil {
		return fmt.Errorf("engine.Deposit: %w", err)
	}

	// Fase externa: pull del wallet del usuario a la custodia del pool.
	if err := e.ledger.Transfer(ctx, domain.WalletAccount(user), domain.CustodyAccount(asset), asset, amount); err != nil {
		return fmt.Errorf("engine.Deposit: %w", err)
	}

	// Commit.
	pool.TotalDeposits = newTotal
	pool.TotalDepositShares = newShares

	slot := pos.Slot(asset)
	slot.DepositedShares += shares
	pos.SetSlot(asset, slot)
	pos.LastUpdated = now

	if err := e.commit(ctx, pool, pos); err != nil {
		return fmt.Errorf("engine.Deposit: %w", err)
	}

	slog.Debug("deposit",
		"user", user,
		"asset", asset,
		"amount", amount,
		"shares", shares,
	)
	return nil
}

// Withdraw retira amount del colateral depositado del usuario.
//
// Si el usuario tiene deudas pendientes en cualquier pool, se re-ejecuta el
// risk check sobre la posición post-retiro y se rechaza con
// ErrUnderCollateralized si quedaría insolvente. El source original no hacía
// este check; aquí el gap se cierra deliberadamente.
func (e *Engine) Withdraw(ctx context.Context, user string, asset domain.Asset, amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("engine.Withdraw: %w", domain.ErrInvalidAmount)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	pool, err := e.pools.GetPool(ctx, asset)
	if err != nil {
		return fmt.Errorf("engine.Withdraw: %w", err)
	}

	now := e.now()
	pool.AccrueInterest(now)

	pos, err := e.loadPosition(ctx, user)
	if err != nil {
		return fmt.Errorf("engine.Withdraw: %w", err)
	}

	deposited, err := pos.DepositedAmount(pool)
	if err != nil {
		return fmt.Errorf("engine.Withdraw: %w", err)
	}
	if amount > deposited {
		return fmt.Errorf("engine.Withdraw: %d > %d: %w", amount, deposited, domain.ErrInsufficientFunds)
	}

	slot := pos.Slot(asset)
	var shares uint64
	if amount == deposited {
		// Salida completa: retira todas las shares para no dejar dust.
		shares = slot.DepositedShares
	} else {
		shares, err = domain.SharesForAmount(amount, pool.TotalDeposits, pool.TotalDepositShares)
		if err != nil {
			return fmt.Errorf("engine.Withdraw: %w", err)
		}
	}

	// Simula el retiro sobre una copia y re-chequea la salud si hay deuda.
	if pos.HasDebt() {
		after := pos.Clone()
		afterSlot := after.Slot(asset)
		afterSlot.DepositedShares -= shares
		after.SetSlot(asset, afterSlot)

		poolAfter := *pool
		poolAfter.TotalDeposits -= amount
		poolAfter.TotalDepositShares -= shares

		health, err := e.healthFactorLocked(ctx, after, now, map[domain.Asset]*domain.AssetPool{asset: &poolAfter})
		if err != nil {
			return fmt.Errorf("engine.Withdraw: %w", err)
		}
		if health.LessThan(e.cfg.MinHealthFactor) {
			return fmt.Errorf("engine.Withdraw: health %s < %s: %w",
				health, e.cfg.MinHealthFactor, domain.ErrUnderCollateralized)
		}
	}

	// Fase externa: paga al usuario desde la custodia.
	if err := e.ledger.Transfer(ctx, domain.CustodyAccount(asset), domain.WalletAccount(user), asset, amount); err != nil {
		return fmt.Errorf("engine.Withdraw: %w", err)
	}

	// Commit.
	pool.TotalDeposits -= amount
	pool.TotalDepositShares -= shares
	slot.DepositedShares -= shares
	pos.SetSlot(asset, slot)
	pos.LastUpdated = now

	if err := e.commit(ctx, pool, pos); err != nil {
		return fmt.Errorf("engine.Withdraw: %w", err)
	}

	slog.Debug("withdraw",
		"user", user,
		"asset", asset,
		"amount", amount,
		"shares", shares,
	)
	return nil
}

// Borrow presta amount del asset contra el colateral del usuario.
func (e *Engine) Borrow(ctx context.Context, user string, asset domain.Asset, amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("engine.Borrow: %w", domain.ErrInvalidAmount)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	pool, err := e.pools.GetPool(ctx, asset)
	if err != nil {
		return fmt.Errorf("engine.Borrow: %w", err)
	}

	now := e.now()
	pool.AccrueInterest(now)

	pos, err := e.loadPosition(ctx, user)
	if err != nil {
		return fmt.Errorf("engine.Borrow: %w", err)
	}

	borrowable, err := e.borrowableLocked(ctx, pos, asset, now)
	if err != nil {
		return fmt.Errorf("engine.Borrow: %w", err)
	}
	if amount > borrowable {
		return fmt.Errorf("engine.Borrow: %d > borrowable %d: %w",
			amount, borrowable, domain.ErrOverBorrowableAmount)
	}

	// Shares contra los totales PRE-préstamo; el primer borrow arranca 1:1 y
	// los siguientes redondean hacia arriba para que la deuda quede anotada
	// incluso en borrows de dust.
	shares, err := domain.SharesForBorrow(amount, pool.TotalBorrowed, pool.TotalBorrowedShares)
	if err != nil {
		return fmt.Errorf("engine.Borrow: %w", err)
	}

	newTotal, err := domain.AddChecked(pool.TotalBorrowed, amount)
	if err != nil {
		return fmt.Errorf("engine.Borrow: %w", err)
	}
	newShares, err := domain.AddChecked(pool.TotalBorrowedShares, shares)
	if err != nil {
		return fmt.Errorf("engine.Borrow: %w", err)
	}

	// Fase externa: paga al usuario desde la custodia del pool.
	if err := e.ledger.Transfer(ctx, domain.CustodyAccount(asset), domain.WalletAccount(user), asset, amount); err != nil {
		return fmt.Errorf("engine.Borrow: %w", err)
	}

	// Commit.
	pool.TotalBorrowed = newTotal
	pool.TotalBorrowedShares = newShares

	slot := pos.Slot(asset)
	slot.BorrowedShares += shares
	pos.SetSlot(asset, slot)
	pos.LastUpdated = now

	if err := e.commit(ctx, pool, pos); err != nil {
		return fmt.Errorf("engine.Borrow: %w", err)
	}

	slog.Debug("borrow",
		"user", user,
		"asset", asset,
		"amount", amount,
		"shares", shares,
		"borrowable", borrowable,
	)
	return nil
}

// Repay devuelve amount de la deuda del usuario en el asset.
func (e *Engine) Repay(ctx context.Context, user string, asset domain.Asset, amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("engine.Repay: %w", domain.ErrInvalidAmount)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	pool, err := e.pools.GetPool(ctx, asset)
	if err != nil {
		return fmt.Errorf("engine.Repay: %w", err)
	}

	now := e.now()
	pool.AccrueInterest(now)

	pos, err := e.loadPosition(ctx, user)
	if err != nil {
		return fmt.Errorf("engine.Repay: %w", err)
	}

	borrowed, err := pos.BorrowedAmount(pool)
	if err != nil {
		return fmt.Errorf("engine.Repay: %w", err)
	}
	if amount > borrowed {
		return fmt.Errorf("engine.Repay: %d > %d: %w", amount, borrowed, domain.ErrOverRepay)
	}

	slot := pos.Slot(asset)
	var shares uint64
	if amount == borrowed {
		// Repago completo: cancela todas las shares de deuda.
		shares = slot.BorrowedShares
	} else {
		shares, err = domain.SharesForAmount(amount, pool.TotalBorrowed, pool.TotalBorrowedShares)
		if err != nil {
			return fmt.Errorf("engine.Repay: %w", err)
		}
	}

	// Fase externa: pull del wallet del usuario a la custodia.
	if err := e.ledger.Transfer(ctx, domain.WalletAccount(user), domain.CustodyAccount(asset), asset, amount); err != nil {
		return fmt.Errorf("engine.Repay: %w", err)
	}

	// Commit.
	pool.TotalBorrowed -= amount
	pool.TotalBorrowedShares -= shares
	slot.BorrowedShares -= shares
	pos.SetSlot(asset, slot)
	pos.LastUpdated = now

	if err := e.commit(ctx, pool, pos); err != nil {
		return fmt.Errorf("engine.Repay: %w", err)
	}

	slog.Debug("repay",
		"user", user,
		"asset", asset,
		"amount", amount,
		"shares", shares,
	)
	return nil
}

// commit persiste pool y posición. Los stores no fallan en condiciones
// normales (memoria) o fallan juntos (sqlite en la misma conexión).
func (e *Engine) commit(ctx context.Context, pool *domain.AssetPool, pos *domain.UserPosition) error {
	if err := e.pools.PutPool(ctx, pool); err != nil {
		return err
	}
	return e.positions.PutPosition(ctx, pos)
}
