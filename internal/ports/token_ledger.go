package ports

import (
	"context"

	"github.com/alejandrodnm/lendpool/internal/domain"
)

// TokenLedger es el servicio externo de custodia que mueve balances fungibles
// entre cuentas. Desde el punto de vista del engine cada llamada es atómica y
// síncrona: o el valor se movió, o nada cambió.
type TokenLedger interface {
	// Transfer mueve amount del asset entre dos cuentas.
	Transfer(ctx context.Context, from, to domain.Account, asset domain.Asset, amount uint64) error

	// Balance devuelve el balance actual de una cuenta. El engine lo usa
	// para pre-validar transferencias compuestas antes de mutar nada.
	Balance(ctx context.Context, account domain.Account, asset domain.Asset) (uint64, error)
}

// TokenMinter crea y destruye supply del asset deuda. Solo lo usa la variante
// vault (el stablecoin se emite contra colateral, no se presta de un pool).
type TokenMinter interface {
	// Mint acredita amount recién emitido en la cuenta.
	Mint(ctx context.Context, to domain.Account, asset domain.Asset, amount uint64) error

	// Burn destruye amount desde la cuenta.
	Burn(ctx context.Context, from domain.Account, asset domain.Asset, amount uint64) error
}
