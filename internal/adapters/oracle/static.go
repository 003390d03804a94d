package oracle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/lendpool/internal/domain"
)

// Static implementa ports.Oracle con precios fijados a mano. Se usa en tests
// y en dry-run: precio y antigüedad controlables de forma determinista.
type Static struct {
	mu     sync.RWMutex
	quotes map[domain.Asset]domain.PriceQuote
	clock  func() time.Time
}

// NewStatic crea un oráculo vacío. clock == nil usa time.Now.
func NewStatic(clock func() time.Time) *Static {
	if clock == nil {
		clock = time.Now
	}
	return &Static{
		quotes: make(map[domain.Asset]domain.PriceQuote),
		clock:  clock,
	}
}

// SetPrice fija el precio del asset con timestamp actual.
func (s *Static) SetPrice(asset domain.Asset, price decimal.Decimal) {
	s.SetQuote(domain.PriceQuote{
		Asset:       asset,
		Price:       price,
		PublishedAt: s.clock(),
	})
}

// SetQuote fija la cotización completa, timestamp incluido. Los tests de
// staleness publican cotizaciones viejas por aquí.
func (s *Static) SetQuote(quote domain.PriceQuote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[quote.Asset] = quote
}

// GetPrice devuelve la cotización fijada para el asset.
func (s *Static) GetPrice(_ context.Context, asset domain.Asset) (domain.PriceQuote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	quote, ok := s.quotes[asset]
	if !ok {
		return domain.PriceQuote{}, fmt.Errorf("oracle.GetPrice: no feed for %s: %w", asset, domain.ErrInvalidPrice)
	}
	return quote, nil
}
