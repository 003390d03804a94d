package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PoolParams are the risk parameters an authority configures per asset.
// All fractions are expressed as decimals in [0, 1] (0.5 = 50%).
type PoolParams struct {
	// LiquidationThreshold is the fraction of collateral value still
	// considered safe to cover debt. Below it, positions become liquidatable.
	LiquidationThreshold decimal.Decimal

	// MaxLTV is the fraction of collateral value borrowable at origination.
	MaxLTV decimal.Decimal

	// LiquidationBonus is the extra fraction of seized collateral paid to
	// the liquidator.
	LiquidationBonus decimal.Decimal

	// LiquidationCloseFactor caps the fraction of a position's debt that a
	// single liquidation call may repay. Zero means no cap.
	LiquidationCloseFactor decimal.Decimal

	// InterestRate is the continuously compounded yearly-ish rate applied
	// per second of elapsed time.
	InterestRate float64
}

// Validate rejects fractions outside [0, 1] and negative rates.
func (p PoolParams) Validate() error {
	one := decimal.NewFromInt(1)
	for _, f := range []struct {
		name string
		val  decimal.Decimal
	}{
		{"liquidation_threshold", p.LiquidationThreshold},
		{"max_ltv", p.MaxLTV},
		{"liquidation_bonus", p.LiquidationBonus},
		{"liquidation_close_factor", p.LiquidationCloseFactor},
	} {
		if f.val.IsNegative() || f.val.GreaterThan(one) {
			return fmt.Errorf("pool params: %s %s out of [0,1]", f.name, f.val)
		}
	}
	if p.InterestRate < 0 {
		return fmt.Errorf("pool params: negative interest rate %f", p.InterestRate)
	}
	return nil
}

// AssetPool is the per-asset aggregate state: pooled totals, their share
// supply, and the risk parameters. One pool per supported asset, created
// once by an administrator and never deleted.
//
// Invariante: TotalDeposits == 0 ⇔ TotalDepositShares == 0 (igual para
// borrowed). Las shares nunca sobreviven al valor que representan.
type AssetPool struct {
	Asset     Asset
	Authority string

	TotalDeposits      uint64
	TotalDepositShares uint64

	TotalBorrowed       uint64
	TotalBorrowedShares uint64

	Params      PoolParams
	LastUpdated time.Time
}

// AccrueInterest compounds both sides of the pool for the time elapsed since
// LastUpdated and advances LastUpdated to now. Lazy: callers invoke it at the
// start of any operation that reads or writes balances.
func (p *AssetPool) AccrueInterest(now time.Time) {
	elapsed := now.Sub(p.LastUpdated)
	if elapsed < 0 {
		elapsed = 0
	}
	p.TotalDeposits = Accrue(p.TotalDeposits, p.Params.InterestRate, elapsed)
	p.TotalBorrowed = Accrue(p.TotalBorrowed, p.Params.InterestRate, elapsed)
	p.LastUpdated = now
}

// AvailableLiquidity is what remains in custody to lend or withdraw.
func (p *AssetPool) AvailableLiquidity() uint64 {
	if p.TotalBorrowed >= p.TotalDeposits {
		return 0
	}
	return p.TotalDeposits - p.TotalBorrowed
}

// CheckInvariants valida la relación shares↔valor en ambos lados del pool.
// Solo se usa en tests y asserts internos.
func (p *AssetPool) CheckInvariants() error {
	if (p.TotalDeposits == 0) != (p.TotalDepositShares == 0) {
		return fmt.Errorf("pool %s: deposits %d vs deposit shares %d", p.Asset, p.TotalDeposits, p.TotalDepositShares)
	}
	if (p.TotalBorrowed == 0) != (p.TotalBorrowedShares == 0) {
		return fmt.Errorf("pool %s: borrowed %d vs borrowed shares %d", p.Asset, p.TotalBorrowed, p.TotalBorrowedShares)
	}
	return nil
}
