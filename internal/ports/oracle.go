package ports

import (
	"context"

	"github.com/alejandrodnm/lendpool/internal/domain"
)

// Oracle supplies spot prices for supported assets. Implementations may fail
// or return stale data; callers validate age and sign on every read — an
// outdated high price is exactly what an attacker would borrow against.
type Oracle interface {
	// GetPrice returns the latest quote for the asset.
	GetPrice(ctx context.Context, asset domain.Asset) (domain.PriceQuote, error)
}
