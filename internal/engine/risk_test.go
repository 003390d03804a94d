package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthFactor_NoDebt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mint(t, "alice", solAsset, 100)
	require.NoError(t, f.eng.Deposit(ctx, "alice", solAsset, 100))

	health, err := f.eng.HealthFactor(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, health.Equal(HealthyHealthFactor))
}

func TestHealthFactor_UnknownUserIsHealthy(t *testing.T) {
	f := newFixture(t)
	health, err := f.eng.HealthFactor(context.Background(), "nobody")
	require.NoError(t, err)
	assert.True(t, health.Equal(HealthyHealthFactor))
}

func TestHealthFactor_ThresholdWeighted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mint(t, "lp", usdcAsset, 1000)
	require.NoError(t, f.eng.Deposit(ctx, "lp", usdcAsset, 1000))

	// 100 SOL a $4, threshold 0.5 → ajustado $200; deuda 100 USDC a $1
	f.oracle.SetPrice(solAsset, decimal.NewFromInt(4))
	f.mint(t, "alice", solAsset, 100)
	require.NoError(t, f.eng.Deposit(ctx, "alice", solAsset, 100))
	require.NoError(t, f.eng.Borrow(ctx, "alice", usdcAsset, 100))

	health, err := f.eng.HealthFactor(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, health.Equal(decimal.NewFromInt(2)), "got %s", health)

	// el precio cae a $1.5 → ajustado $75 contra $100 → 0.75
	f.oracle.SetPrice(solAsset, decimal.RequireFromString("1.5"))
	health, err = f.eng.HealthFactor(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, health.Equal(decimal.RequireFromString("0.75")), "got %s", health)
}

func TestHealthFactor_ReadOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	params := solParams()
	params.InterestRate = 0.05
	require.NoError(t, f.eng.CreatePool(ctx, authority, "BTC", params))
	f.oracle.SetPrice("BTC", decimal.NewFromInt(1))

	f.mint(t, "alice", "BTC", 2000)
	require.NoError(t, f.eng.Deposit(ctx, "alice", "BTC", 2000))
	require.NoError(t, f.eng.Borrow(ctx, "alice", "BTC", 500))

	created := f.pool(t, "BTC").LastUpdated

	f.advance(10 * time.Second)
	f.oracle.SetPrice("BTC", decimal.NewFromInt(1))

	h1, err := f.eng.HealthFactor(ctx, "alice")
	require.NoError(t, err)
	h2, err := f.eng.HealthFactor(ctx, "alice")
	require.NoError(t, err)

	// idempotente, y el pool persistido no avanzó su reloj de accrual
	assert.True(t, h1.Equal(h2))
	assert.Equal(t, created, f.pool(t, "BTC").LastUpdated)
}

func TestSnapshot_FlagsLiquidatable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mint(t, "lp", usdcAsset, 1000)
	require.NoError(t, f.eng.Deposit(ctx, "lp", usdcAsset, 1000))
	f.oracle.SetPrice(solAsset, decimal.NewFromInt(4))
	f.mint(t, "alice", solAsset, 100)
	require.NoError(t, f.eng.Deposit(ctx, "alice", solAsset, 100))
	require.NoError(t, f.eng.Borrow(ctx, "alice", usdcAsset, 100))

	snap, err := f.eng.Snapshot(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, snap.Liquidatable)
	assert.Equal(t, "alice", snap.Owner)

	f.oracle.SetPrice(solAsset, decimal.RequireFromString("1.5"))
	snap, err = f.eng.Snapshot(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, snap.Liquidatable)
	assert.True(t, snap.HealthFactor.Equal(decimal.RequireFromString("0.75")))
	assert.True(t, snap.DebtValue.Equal(decimal.NewFromInt(100)))
}
