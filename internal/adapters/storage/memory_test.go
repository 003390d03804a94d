package storage

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/lendpool/internal/domain"
)

func samplePool(asset domain.Asset) *domain.AssetPool {
	return &domain.AssetPool{
		Asset:               asset,
		Authority:           "admin",
		TotalDeposits:       1000,
		TotalDepositShares:  900,
		TotalBorrowed:       400,
		TotalBorrowedShares: 380,
		Params: domain.PoolParams{
			LiquidationThreshold:   decimal.RequireFromString("0.5"),
			MaxLTV:                 decimal.RequireFromString("0.5"),
			LiquidationBonus:       decimal.RequireFromString("0.05"),
			LiquidationCloseFactor: decimal.RequireFromString("0.5"),
			InterestRate:           0.05,
		},
		LastUpdated: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestMemory_PoolNotFound(t *testing.T) {
	m := NewMemory()
	_, err := m.GetPool(context.Background(), "SOL")
	assert.ErrorIs(t, err, domain.ErrPoolNotFound)
}

func TestMemory_PutGetPool(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.PutPool(ctx, samplePool("SOL")))

	got, err := m.GetPool(ctx, "SOL")
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), got.TotalDeposits)
	assert.True(t, got.Params.LiquidationThreshold.Equal(decimal.RequireFromString("0.5")))
}

func TestMemory_GetPoolReturnsCopy(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.PutPool(ctx, samplePool("SOL")))

	got, _ := m.GetPool(ctx, "SOL")
	got.TotalDeposits = 9999 // mutar la copia no toca el store

	again, _ := m.GetPool(ctx, "SOL")
	assert.Equal(t, uint64(1000), again.TotalDeposits)
}

func TestMemory_ListPoolsSorted(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.PutPool(ctx, samplePool("USDC")))
	require.NoError(t, m.PutPool(ctx, samplePool("BTC")))
	require.NoError(t, m.PutPool(ctx, samplePool("SOL")))

	pools, err := m.ListPools(ctx)
	require.NoError(t, err)
	require.Len(t, pools, 3)
	assert.Equal(t, domain.Asset("BTC"), pools[0].Asset)
	assert.Equal(t, domain.Asset("SOL"), pools[1].Asset)
	assert.Equal(t, domain.Asset("USDC"), pools[2].Asset)
}

func TestMemory_PositionNilWhenUnknown(t *testing.T) {
	m := NewMemory()
	pos, err := m.GetPosition(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, pos)
}

func TestMemory_PutGetPosition(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	pos := domain.NewUserPosition("alice")
	pos.SetSlot("SOL", domain.PositionSlot{DepositedShares: 100, BorrowedShares: 20})
	require.NoError(t, m.PutPosition(ctx, pos))

	// mutar el original después del Put no toca el store
	pos.SetSlot("SOL", domain.PositionSlot{DepositedShares: 1})

	got, err := m.GetPosition(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, uint64(100), got.Slot("SOL").DepositedShares)
	assert.Equal(t, uint64(20), got.Slot("SOL").BorrowedShares)
}

func TestMemory_ListPositionsSorted(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for _, owner := range []string{"carol", "alice", "bob"} {
		pos := domain.NewUserPosition(owner)
		pos.SetSlot("SOL", domain.PositionSlot{DepositedShares: 1})
		require.NoError(t, m.PutPosition(ctx, pos))
	}

	all, err := m.ListPositions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "alice", all[0].Owner)
	assert.Equal(t, "bob", all[1].Owner)
	assert.Equal(t, "carol", all[2].Owner)
}
