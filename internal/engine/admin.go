package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/lendpool/internal/domain"
)

// CreatePool da de alta el AssetPool de un asset con sus parámetros de
// riesgo. authority queda como único autorizado para cambiarlos después.
func (e *Engine) CreatePool(ctx context.Context, authority string, asset domain.Asset, params domain.PoolParams) error {
	if err := params.Validate(); err != nil {
		return fmt.Errorf("engine.CreatePool: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.pools.GetPool(ctx, asset); err == nil {
		return fmt.Errorf("engine.CreatePool: %s: %w", asset, domain.ErrPoolExists)
	} else if !errors.Is(err, domain.ErrPoolNotFound) {
		return fmt.Errorf("engine.CreatePool: %w", err)
	}

	pool := &domain.AssetPool{
		Asset:       asset,
		Authority:   authority,
		Params:      params,
		LastUpdated: e.now(),
	}
	if err := e.pools.PutPool(ctx, pool); err != nil {
		return fmt.Errorf("engine.CreatePool: %w", err)
	}

	slog.Info("pool created",
		"asset", asset,
		"authority", authority,
		"liquidation_threshold", params.LiquidationThreshold,
		"max_ltv", params.MaxLTV,
	)
	return nil
}

// UpdatePoolParams cambia los parámetros de riesgo de un pool existente.
// Solo la authority del pool puede hacerlo; el interés pendiente se aplica
// con la tasa vieja antes de cambiarla.
func (e *Engine) UpdatePoolParams(ctx context.Context, caller string, asset domain.Asset, params domain.PoolParams) error {
	if err := params.Validate(); err != nil {
		return fmt.Errorf("engine.UpdatePoolParams: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	pool, err := e.pools.GetPool(ctx, asset)
	if err != nil {
		return fmt.Errorf("engine.UpdatePoolParams: %w", err)
	}
	if pool.Authority != caller {
		return fmt.Errorf("engine.UpdatePoolParams: %q: %w", caller, domain.ErrUnauthorized)
	}

	pool.AccrueInterest(e.now())
	pool.Params = params

	if err := e.pools.PutPool(ctx, pool); err != nil {
		return fmt.Errorf("engine.UpdatePoolParams: %w", err)
	}

	slog.Info("pool params updated", "asset", asset, "caller", caller)
	return nil
}
