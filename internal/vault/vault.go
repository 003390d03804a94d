package vault

// El vault es la variante colapsada del protocolo: un solo asset de
// colateral respaldando un solo asset deuda que se emite y destruye contra
// él (estilo stablecoin). Sin shares — cada posición es un par
// (colateral, deuda) directo contra el sistema.

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

// Config define el par de assets y los parámetros de riesgo del vault.
type Config struct {
	CollateralAsset domain.Asset
	DebtAsset       domain.Asset

	// LiquidationThreshold pondera el colateral en el health factor.
	// 0.5 exige 200% de sobre-colateralización.
	LiquidationThreshold decimal.Decimal

	// LiquidationBonus es la fracción extra de colateral para el liquidador.
	LiquidationBonus decimal.Decimal

	MinHealthFactor decimal.Decimal
	MaxPriceAge     time.Duration

	// Clock overrides time.Now, para tests.
	Clock func() time.Time
}

// Vault emite el asset deuda contra colateral depositado y liquida
// posiciones que caen bajo el health factor mínimo.
type Vault struct {
	mu        sync.Mutex
	cfg       Config
	oracle    ports.Oracle
	ledger    ports.TokenLedger
	minter    ports.TokenMinter
	positions map[string]domain.CollateralPosition
}

// New crea un Vault con las dependencias inyectadas.
func New(cfg Config, oracle ports.Oracle, ledger ports.TokenLedger, minter ports.TokenMinter) *Vault {
	if cfg.MinHealthFactor.IsZero() {
		cfg.MinHealthFactor = decimal.NewFromInt(1)
	}
	if cfg.MaxPriceAge <= 0 {
		cfg.MaxPriceAge = 60 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Vault{
		cfg:       cfg,
		oracle:    oracle,
		ledger:    ledger,
		minter:    minter,
		positions: make(map[string]domain.CollateralPosition),
	}
}

// custodyFor es la cuenta de custodia del colateral de un depositante.
// Cada depositante tiene la suya, como el sol_account del diseño original.
func custodyFor(owner string) domain.Account {
	return domain.Account("vault:" + owner)
}

// price obtiene y valida la cotización del colateral.
func (v *Vault) price(ctx context.Context, now time.Time) (decimal.Decimal, error) {
	quote, err := v.oracle.GetPrice(ctx, v.cfg.CollateralAsset)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if err := quote.Validate(now, v.cfg.MaxPriceAge); err != nil {
		return decimal.Decimal{}, err
	}
	return quote.Price, nil
}

// healthFor computa el health factor de un par (colateral, deuda).
func (v *Vault) healthFor(collateral, debt uint64, price decimal.Decimal) decimal.Decimal {
	if debt == 0 {
		return decimal.NewFromInt(1_000_000_000)
	}
	adjusted := domain.AmountToDecimal(collateral).Mul(price).Mul(v.cfg.LiquidationThreshold)
	return adjusted.Div(domain.AmountToDecimal(debt))
}

// DepositAndMint ingresa colateral y emite debtAmount del asset deuda al
// usuario. La posición resultante debe quedar sana.
func (v *Vault) DepositAndMint(ctx context.Context, user string, collateralAmount, debtAmount uint64) error {
	if collateralAmount == 0 && debtAmount == 0 {
		return fmt.Errorf("vault.DepositAndMint: %w", domain.ErrInvalidAmount)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.cfg.Clock()
	price, err := v.price(ctx, now)
	if err != nil {
		return fmt.Errorf("vault.DepositAndMint: %w", err)
	}

	pos := v.positions[user]

	newCollateral, err := domain.AddChecked(pos.CollateralBalance, collateralAmount)
	if err != nil {
		return fmt.Errorf("vault.DepositAndMint: %w", err)
	}
	newDebt, err := domain.AddChecked(pos.DebtIssued, debtAmount)
	if err != nil {
		return fmt.Errorf("vault.DepositAndMint: %w", err)
	}

	// Valida la posición resultante ANTES de mover nada.
	if health := v.healthFor(newCollateral, newDebt, price); health.LessThan(v.cfg.MinHealthFactor) {
		return fmt.Errorf("vault.DepositAndMint: health %s < %s: %w",
			health, v.cfg.MinHealthFactor, domain.ErrUnderCollateralized)
	}

	if collateralAmount > 0 {
		if err := v.ledger.Transfer(ctx, domain.WalletAccount(user), custodyFor(user), v.cfg.CollateralAsset, collateralAmount); err != nil {
			return fmt.Errorf("vault.DepositAndMint: %w", err)
		}
	}
	if debtAmount > 0 {
		if err := v.minter.Mint(ctx, domain.WalletAccount(user), v.cfg.DebtAsset, debtAmount); err != nil {
			return fmt.Errorf("vault.DepositAndMint: %w", err)
		}
	}

	pos.Owner = user
	pos.CollateralBalance = newCollateral
	pos.DebtIssued = newDebt
	pos.Initialized = true
	pos.LastUpdated = now
	v.positions[user] = pos

	slog.Debug("vault deposit+mint",
		"user", user,
		"collateral", collateralAmount,
		"minted", debtAmount,
	)
	return nil
}

// RedeemAndBurn destruye debtAmount del asset deuda del usuario y le
// devuelve collateralAmount. La posición restante debe quedar sana.
func (v *Vault) RedeemAndBurn(ctx context.Context, user string, collateralAmount, debtAmount uint64) error {
	if collateralAmount == 0 && debtAmount == 0 {
		return fmt.Errorf("vault.RedeemAndBurn: %w", domain.ErrInvalidAmount)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.cfg.Clock()
	price, err := v.price(ctx, now)
	if err != nil {
		return fmt.Errorf("vault.RedeemAndBurn: %w", err)
	}

	pos := v.positions[user]
	if debtAmount > pos.DebtIssued {
		return fmt.Errorf("vault.RedeemAndBurn: burn %d > debt %d: %w",
			debtAmount, pos.DebtIssued, domain.ErrOverRepay)
	}
	if collateralAmount > pos.CollateralBalance {
		return fmt.Errorf("vault.RedeemAndBurn: redeem %d > collateral %d: %w",
			collateralAmount, pos.CollateralBalance, domain.ErrInsufficientFunds)
	}

	newCollateral := pos.CollateralBalance - collateralAmount
	newDebt := pos.DebtIssued - debtAmount

	if health := v.healthFor(newCollateral, newDebt, price); health.LessThan(v.cfg.MinHealthFactor) {
		return fmt.Errorf("vault.RedeemAndBurn: health %s < %s: %w",
			health, v.cfg.MinHealthFactor, domain.ErrUnderCollateralized)
	}

	if debtAmount > 0 {
		if err := v.minter.Burn(ctx, domain.WalletAccount(user), v.cfg.DebtAsset, debtAmount); err != nil {
			return fmt.Errorf("vault.RedeemAndBurn: %w", err)
		}
	}
	if collateralAmount > 0 {
		if err := v.ledger.Transfer(ctx, custodyFor(user), domain.WalletAccount(user), v.cfg.CollateralAsset, collateralAmount); err != nil {
			return fmt.Errorf("vault.RedeemAndBurn: %w", err)
		}
	}

	pos.CollateralBalance = newCollateral
	pos.DebtIssued = newDebt
	pos.LastUpdated = now
	v.positions[user] = pos

	slog.Debug("vault redeem+burn",
		"user", user,
		"collateral", collateralAmount,
		"burned", debtAmount,
	)
	return nil
}

// Liquidate quema burnAmount del asset deuda desde el liquidador y le paga
// el colateral equivalente más el bonus desde la custodia del target.
func (v *Vault) Liquidate(ctx context.Context, liquidator, target string, burnAmount uint64) error {
	if burnAmount == 0 {
		return fmt.Errorf("vault.Liquidate: %w", domain.ErrInvalidAmount)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.cfg.Clock()
	price, err := v.price(ctx, now)
	if err != nil {
		return fmt.Errorf("vault.Liquidate: %w", err)
	}

	pos := v.positions[target]
	if !pos.Initialized {
		return fmt.Errorf("vault.Liquidate: unknown position %q: %w", target, domain.ErrNotUndercollateralized)
	}

	health := v.healthFor(pos.CollateralBalance, pos.DebtIssued, price)
	if !health.LessThan(v.cfg.MinHealthFactor) {
		return fmt.Errorf("vault.Liquidate: health %s >= %s: %w",
			health, v.cfg.MinHealthFactor, domain.ErrNotUndercollateralized)
	}
	if burnAmount > pos.DebtIssued {
		return fmt.Errorf("vault.Liquidate: burn %d > debt %d: %w",
			burnAmount, pos.DebtIssued, domain.ErrOverRepay)
	}

	// Colateral equivalente al valor quemado, más el bonus, floor.
	equivalent := domain.AmountToDecimal(burnAmount).Div(price)
	bonusMult := decimal.NewFromInt(1).Add(v.cfg.LiquidationBonus)
	seize, err := domain.DecimalToAmount(equivalent.Mul(bonusMult))
	if err != nil {
		return fmt.Errorf("vault.Liquidate: %w", err)
	}
	if seize > pos.CollateralBalance {
		return fmt.Errorf("vault.Liquidate: seize %d > collateral %d: %w",
			seize, pos.CollateralBalance, domain.ErrInsufficientCollateral)
	}

	if err := v.minter.Burn(ctx, domain.WalletAccount(liquidator), v.cfg.DebtAsset, burnAmount); err != nil {
		return fmt.Errorf("vault.Liquidate: %w", err)
	}
	if err := v.ledger.Transfer(ctx, custodyFor(target), domain.WalletAccount(liquidator), v.cfg.CollateralAsset, seize); err != nil {
		return fmt.Errorf("vault.Liquidate: %w", err)
	}

	pos.CollateralBalance -= seize
	pos.DebtIssued -= burnAmount
	pos.LastUpdated = now
	v.positions[target] = pos

	slog.Info("vault liquidation",
		"liquidator", liquidator,
		"target", target,
		"burned", burnAmount,
		"seized", seize,
		"health_before", health,
		"health_after", v.healthFor(pos.CollateralBalance, pos.DebtIssued, price),
	)
	return nil
}

// HealthFactor devuelve el health factor actual del usuario. Read-only.
func (v *Vault) HealthFactor(ctx context.Context, user string) (decimal.Decimal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	price, err := v.price(ctx, v.cfg.Clock())
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("vault.HealthFactor: %w", err)
	}
	pos := v.positions[user]
	return v.healthFor(pos.CollateralBalance, pos.DebtIssued, price), nil
}

// Position devuelve una copia de la posición del usuario.
func (v *Vault) Position(user string) domain.CollateralPosition {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.positions[user]
}
