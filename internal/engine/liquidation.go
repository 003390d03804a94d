package engine

// liquidation.go — seize-and-reward de posiciones bajo-colateralizadas.
//
// Cualquier tercero puede liquidar: repaga deuda del objetivo y se lleva el
// colateral equivalente más el bonus. Toda la validación (salud, caps,
// precios, balances) ocurre antes de mover nada; un fallo en cualquier paso
// aborta sin mutación parcial observable.

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/lendpool/internal/domain"
)

// Liquidate repaga hasta repayAmount de la deuda del target en debtAsset y
// entrega al liquidator el colateral equivalente en collateralAsset más el
// liquidation bonus del pool de colateral.
//
// El repago se capa al close factor del pool de deuda (si está configurado)
// y a la deuda derivada real del target.
func (e *Engine) Liquidate(ctx context.Context, liquidator, target string, debtAsset, collateralAsset domain.Asset, repayAmount uint64) (domain.LiquidationResult, error) {
	fail := func(err error) (domain.LiquidationResult, error) {
		return domain.LiquidationResult{}, fmt.Errorf("engine.Liquidate: %w", err)
	}

	if repayAmount == 0 {
		return fail(domain.ErrInvalidAmount)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()

	debtPool, err := e.pools.GetPool(ctx, debtAsset)
	if err != nil {
		return fail(err)
	}
	debtPool.AccrueInterest(now)

	collPool := debtPool
	if collateralAsset != debtAsset {
		collPool, err = e.pools.GetPool(ctx, collateralAsset)
		if err != nil {
			return fail(err)
		}
		collPool.AccrueInterest(now)
	}

	pos, err := e.loadPosition(ctx, target)
	if err != nil {
		return fail(err)
	}

	// La valoración usa los pools ya accrued, no los del store.
	overrides := map[domain.Asset]*domain.AssetPool{
		debtAsset:       debtPool,
		collateralAsset: collPool,
	}

	healthBefore, err := e.healthFactorLocked(ctx, pos, now, overrides)
	if err != nil {
		return fail(err)
	}
	if !healthBefore.LessThan(e.cfg.MinHealthFactor) {
		return fail(fmt.Errorf("health %s >= %s: %w",
			healthBefore, e.cfg.MinHealthFactor, domain.ErrNotUndercollateralized))
	}

	derivedDebt, err := pos.BorrowedAmount(debtPool)
	if err != nil {
		return fail(err)
	}
	if derivedDebt == 0 {
		return fail(domain.ErrOverRepay)
	}

	repay := repayAmount
	if repay > derivedDebt {
		repay = derivedDebt
	}
	if cf := debtPool.Params.LiquidationCloseFactor; cf.IsPositive() {
		maxRepay, err := domain.DecimalToAmount(domain.AmountToDecimal(derivedDebt).Mul(cf))
		if err != nil {
			return fail(err)
		}
		if repay > maxRepay {
			repay = maxRepay
		}
	}
	if repay == 0 {
		return fail(domain.ErrInvalidAmount)
	}

	debtQuote, err := e.price(ctx, debtAsset, now)
	if err != nil {
		return fail(err)
	}
	collQuote, err := e.price(ctx, collateralAsset, now)
	if err != nil {
		return fail(err)
	}

	// seize = equivalente en colateral del repago × (1 + bonus), floor.
	debtValue := domain.AmountToDecimal(repay).Mul(debtQuote.Price)
	bonusMult := decimal.NewFromInt(1).Add(collPool.Params.LiquidationBonus)
	seize, err := domain.DecimalToAmount(debtValue.Div(collQuote.Price).Mul(bonusMult))
	if err != nil {
		return fail(err)
	}

	derivedColl, err := pos.DepositedAmount(collPool)
	if err != nil {
		return fail(err)
	}
	if seize > derivedColl {
		return fail(fmt.Errorf("seize %d > collateral %d: %w",
			seize, derivedColl, domain.ErrInsufficientCollateral))
	}

	debtSlot := pos.Slot(debtAsset)
	var debtShares uint64
	if repay == derivedDebt {
		debtShares = debtSlot.BorrowedShares
	} else {
		debtShares, err = domain.SharesForAmount(repay, debtPool.TotalBorrowed, debtPool.TotalBorrowedShares)
		if err != nil {
			return fail(err)
		}
	}

	collSlot := pos.Slot(collateralAsset)
	var collShares uint64
	if seize == derivedColl {
		collShares = collSlot.DepositedShares
	} else {
		collShares, err = domain.SharesForAmount(seize, collPool.TotalDeposits, collPool.TotalDepositShares)
		if err != nil {
			return fail(err)
		}
	}

	// Pre-valida ambos lados del movimiento antes de tocar el ledger: las
	// dos transferencias deben comportarse como una sola atómica.
	liqBalance, err := e.ledger.Balance(ctx, domain.WalletAccount(liquidator), debtAsset)
	if err != nil {
		return fail(err)
	}
	if liqBalance < repay {
		return fail(fmt.Errorf("liquidator balance %d < %d: %w", liqBalance, repay, domain.ErrTransferFailed))
	}
	custodyBalance, err := e.ledger.Balance(ctx, domain.CustodyAccount(collateralAsset), collateralAsset)
	if err != nil {
		return fail(err)
	}
	if custodyBalance < seize {
		return fail(fmt.Errorf("custody balance %d < %d: %w", custodyBalance, seize, domain.ErrInsufficientCollateral))
	}

	if err := e.ledger.Transfer(ctx, domain.WalletAccount(liquidator), domain.CustodyAccount(debtAsset), debtAsset, repay); err != nil {
		return fail(err)
	}
	if err := e.ledger.Transfer(ctx, domain.CustodyAccount(collateralAsset), domain.WalletAccount(liquidator), collateralAsset, seize); err != nil {
		return fail(err)
	}

	// Commit.
	debtPool.TotalBorrowed -= repay
	debtPool.TotalBorrowedShares -= debtShares
	collPool.TotalDeposits -= seize
	collPool.TotalDepositShares -= collShares

	debtSlot.BorrowedShares -= debtShares
	pos.SetSlot(debtAsset, debtSlot)
	collSlot = pos.Slot(collateralAsset)
	collSlot.DepositedShares -= collShares
	pos.SetSlot(collateralAsset, collSlot)
	pos.LastUpdated = now

	if err := e.pools.PutPool(ctx, debtPool); err != nil {
		return fail(err)
	}
	if collPool != debtPool {
		if err := e.pools.PutPool(ctx, collPool); err != nil {
			return fail(err)
		}
	}
	if err := e.positions.PutPosition(ctx, pos); err != nil {
		return fail(err)
	}

	// Una liquidación parcial (close factor) puede dejar la salud bajo el
	// mínimo; se reporta, no es un error.
	healthAfter, err := e.healthFactorLocked(ctx, pos, now, overrides)
	if err != nil {
		healthAfter = decimal.Decimal{}
		slog.Warn("post-liquidation health unavailable", "target", target, "err", err)
	}

	result := domain.LiquidationResult{
		ID:               uuid.New().String(),
		Liquidator:       liquidator,
		Target:           target,
		DebtAsset:        debtAsset,
		CollateralAsset:  collateralAsset,
		DebtRepaid:       repay,
		CollateralSeized: seize,
		HealthBefore:     healthBefore,
		HealthAfter:      healthAfter,
		ExecutedAt:       now,
	}

	slog.Info("liquidation executed",
		"id", result.ID,
		"liquidator", liquidator,
		"target", target,
		"debt_asset", debtAsset,
		"collateral_asset", collateralAsset,
		"repaid", repay,
		"seized", seize,
		"health_before", healthBefore,
		"health_after", healthAfter,
	)
	return result, nil
}

// ProposeLiquidation elige, para un target bajo-colateralizado, el par
// (asset deuda, asset colateral) de mayor valor y el repago máximo que
// permite el close factor. El monitor lo usa para auto-liquidar.
func (e *Engine) ProposeLiquidation(ctx context.Context, target string) (debtAsset, collateralAsset domain.Asset, repay uint64, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	pos, err := e.loadPosition(ctx, target)
	if err != nil {
		return "", "", 0, fmt.Errorf("engine.ProposeLiquidation: %w", err)
	}

	var (
		bestDebtValue decimal.Decimal
		bestCollValue decimal.Decimal
		debtAmount    uint64
		closeFactor   decimal.Decimal
	)
	for _, asset := range pos.Assets() {
		slot := pos.Slot(asset)
		if slot.DepositedShares == 0 && slot.BorrowedShares == 0 {
			continue
		}
		pool, perr := e.poolForValuation(ctx, asset, now, nil)
		if perr != nil {
			return "", "", 0, fmt.Errorf("engine.ProposeLiquidation: %w", perr)
		}
		quote, perr := e.price(ctx, asset, now)
		if perr != nil {
			return "", "", 0, fmt.Errorf("engine.ProposeLiquidation: %w", perr)
		}

		if slot.BorrowedShares > 0 {
			amount, aerr := pos.BorrowedAmount(pool)
			if aerr != nil {
				return "", "", 0, fmt.Errorf("engine.ProposeLiquidation: %w", aerr)
			}
			if value := domain.AmountToDecimal(amount).Mul(quote.Price); value.GreaterThan(bestDebtValue) {
				bestDebtValue = value
				debtAsset = asset
				debtAmount = amount
				closeFactor = pool.Params.LiquidationCloseFactor
			}
		}
		if slot.DepositedShares > 0 {
			amount, aerr := pos.DepositedAmount(pool)
			if aerr != nil {
				return "", "", 0, fmt.Errorf("engine.ProposeLiquidation: %w", aerr)
			}
			if value := domain.AmountToDecimal(amount).Mul(quote.Price); value.GreaterThan(bestCollValue) {
				bestCollValue = value
				collateralAsset = asset
			}
		}
	}

	if debtAsset == "" || collateralAsset == "" {
		return "", "", 0, fmt.Errorf("engine.ProposeLiquidation: %w", domain.ErrNotUndercollateralized)
	}

	repay = debtAmount
	if closeFactor.IsPositive() {
		capped, cerr := domain.DecimalToAmount(domain.AmountToDecimal(debtAmount).Mul(closeFactor))
		if cerr != nil {
			return "", "", 0, fmt.Errorf("engine.ProposeLiquidation: %w", cerr)
		}
		if capped < repay {
			repay = capped
		}
	}
	return debtAsset, collateralAsset, repay, nil
}
