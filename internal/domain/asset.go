package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Asset identifica un tipo de activo soportado por el protocolo ("SOL", "USDC").
// El engine trata los assets como keys opacas: añadir un asset nuevo es crear
// su AssetPool, no añadir branches.
type Asset string

// Account identifica una cuenta del Token Ledger externo.
// El engine distingue dos familias: wallets de usuarios y custodias de pool.
type Account string

// WalletAccount devuelve la cuenta externa del usuario dado.
func WalletAccount(user string) Account {
	return Account("wallet:" + user)
}

// CustodyAccount devuelve la cuenta de custodia del pool para un asset.
// Todo el colateral depositado vive aquí, nunca en wallets individuales.
func CustodyAccount(asset Asset) Account {
	return Account("custody:" + string(asset))
}

// PriceQuote es una cotización puntual del oráculo. Se consume en el instante
// de uso y nunca se persiste.
type PriceQuote struct {
	Asset       Asset
	Price       decimal.Decimal // precio en USD por unidad base del asset
	PublishedAt time.Time
}

// Validate rechaza precios no positivos y cotizaciones más viejas que maxAge.
func (q PriceQuote) Validate(now time.Time, maxAge time.Duration) error {
	if !q.Price.IsPositive() {
		return ErrInvalidPrice
	}
	if now.Sub(q.PublishedAt) > maxAge {
		return ErrStalePrice
	}
	return nil
}
