package engine

// risk.go — valoración de colateral y health factor.
//
// La valoración es un fold sobre los assets depositados: añadir un asset
// nuevo al protocolo no toca este loop. Cada lectura del oráculo valida
// signo y edad de la cotización; un precio stale aborta la operación entera
// antes de cualquier mutación.

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/lendpool/internal/domain"
)

// HealthyHealthFactor es el sentinel para posiciones sin deuda: colateral
// infinito relativo a deuda cero.
var HealthyHealthFactor = decimal.NewFromInt(1_000_000_000)

// valuation es el resultado de valorar una posición contra el oráculo.
type valuation struct {
	// Collateral es el valor bruto en USD de todo lo depositado.
	Collateral decimal.Decimal
	// AdjustedCollateral pondera cada asset por el liquidation threshold de
	// su pool: Σ value_i × threshold_i. Es el numerador del health factor.
	AdjustedCollateral decimal.Decimal
	// Debt es el valor en USD de todo lo prestado.
	Debt decimal.Decimal
}

// price obtiene y valida una cotización del oráculo.
func (e *Engine) price(ctx context.Context, asset domain.Asset, now time.Time) (domain.PriceQuote, error) {
	quote, err := e.oracle.GetPrice(ctx, asset)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("price %s: %w", asset, err)
	}
	if err := quote.Validate(now, e.cfg.MaxPriceAge); err != nil {
		return domain.PriceQuote{}, fmt.Errorf("price %s: %w", asset, err)
	}
	return quote, nil
}

// poolForValuation devuelve el pool con interés al día, sin persistir nada:
// las lecturas de riesgo no mutan estado. overrides permite simular una
// operación (withdraw) antes de comprometerla.
func (e *Engine) poolForValuation(ctx context.Context, asset domain.Asset, now time.Time, overrides map[domain.Asset]*domain.AssetPool) (*domain.AssetPool, error) {
	if p, ok := overrides[asset]; ok {
		return p, nil
	}
	stored, err := e.pools.GetPool(ctx, asset)
	if err != nil {
		return nil, err
	}
	cp := *stored
	cp.AccrueInterest(now)
	return &cp, nil
}

// valuate computa la valoración completa de una posición.
func (e *Engine) valuate(ctx context.Context, pos *domain.UserPosition, now time.Time, overrides map[domain.Asset]*domain.AssetPool) (valuation, error) {
	val := valuation{
		Collateral:         decimal.Zero,
		AdjustedCollateral: decimal.Zero,
		Debt:               decimal.Zero,
	}

	for _, asset := range pos.Assets() {
		slot := pos.Slot(asset)
		if slot.DepositedShares == 0 && slot.BorrowedShares == 0 {
			continue
		}

		pool, err := e.poolForValuation(ctx, asset, now, overrides)
		if err != nil {
			return valuation{}, err
		}
		quote, err := e.price(ctx, asset, now)
		if err != nil {
			return valuation{}, err
		}

		if slot.DepositedShares > 0 {
			amount, err := pos.DepositedAmount(pool)
			if err != nil {
				return valuation{}, err
			}
			value := domain.AmountToDecimal(amount).Mul(quote.Price)
			val.Collateral = val.Collateral.Add(value)
			val.AdjustedCollateral = val.AdjustedCollateral.Add(value.Mul(pool.Params.LiquidationThreshold))
		}
		if slot.BorrowedShares > 0 {
			amount, err := pos.BorrowedAmount(pool)
			if err != nil {
				return valuation{}, err
			}
			val.Debt = val.Debt.Add(domain.AmountToDecimal(amount).Mul(quote.Price))
		}
	}
	return val, nil
}

// healthFactorLocked computa el health factor con el lock ya tomado.
func (e *Engine) healthFactorLocked(ctx context.Context, pos *domain.UserPosition, now time.Time, overrides map[domain.Asset]*domain.AssetPool) (decimal.Decimal, error) {
	val, err := e.valuate(ctx, pos, now, overrides)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if val.Debt.IsZero() {
		return HealthyHealthFactor, nil
	}
	return val.AdjustedCollateral.Div(val.Debt), nil
}

// borrowableLocked devuelve cuánto más puede pedir el usuario del asset,
// en unidades del asset: la capacidad restante (colateral ajustado menos
// deuda actual) convertida al precio del asset objetivo.
func (e *Engine) borrowableLocked(ctx context.Context, pos *domain.UserPosition, asset domain.Asset, now time.Time) (uint64, error) {
	val, err := e.valuate(ctx, pos, now, nil)
	if err != nil {
		return 0, err
	}

	capacity := val.AdjustedCollateral.Sub(val.Debt)
	if !capacity.IsPositive() {
		return 0, nil
	}

	quote, err := e.price(ctx, asset, now)
	if err != nil {
		return 0, err
	}
	return domain.DecimalToAmount(capacity.Div(quote.Price))
}

// HealthFactor devuelve el health factor actual del usuario. Read-only:
// no muta pools ni posiciones, ni siquiera el accrual de interés.
func (e *Engine) HealthFactor(ctx context.Context, user string) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, err := e.loadPosition(ctx, user)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("engine.HealthFactor: %w", err)
	}
	health, err := e.healthFactorLocked(ctx, pos, e.now(), nil)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("engine.HealthFactor: %w", err)
	}
	return health, nil
}

// Snapshot valora la posición de un usuario para el monitor de riesgo.
func (e *Engine) Snapshot(ctx context.Context, user string) (domain.RiskSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	pos, err := e.loadPosition(ctx, user)
	if err != nil {
		return domain.RiskSnapshot{}, fmt.Errorf("engine.Snapshot: %w", err)
	}
	val, err := e.valuate(ctx, pos, now, nil)
	if err != nil {
		return domain.RiskSnapshot{}, fmt.Errorf("engine.Snapshot: %w", err)
	}

	health := HealthyHealthFactor
	if !val.Debt.IsZero() {
		health = val.AdjustedCollateral.Div(val.Debt)
	}
	return domain.RiskSnapshot{
		Owner:           user,
		CollateralValue: val.AdjustedCollateral,
		DebtValue:       val.Debt,
		HealthFactor:    health,
		Liquidatable:    health.LessThan(e.cfg.MinHealthFactor),
		ScannedAt:       now,
	}, nil
}

// MinHealthFactor expone el mínimo configurado (el monitor lo reporta).
func (e *Engine) MinHealthFactor() decimal.Decimal {
	return e.cfg.MinHealthFactor
}
