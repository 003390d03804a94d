package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/lendpool/internal/adapters/ledger"
	"github.com/alejandrodnm/lendpool/internal/adapters/oracle"
	"github.com/alejandrodnm/lendpool/internal/adapters/storage"
	"github.com/alejandrodnm/lendpool/internal/domain"
)

const (
	solAsset  = domain.Asset("SOL")
	usdcAsset = domain.Asset("USDC")
	authority = "admin"
)

// fixture monta un engine completo sobre los adapters en memoria, con reloj
// y oráculo controlados a mano.
type fixture struct {
	eng    *Engine
	oracle *oracle.Static
	ledger *ledger.Memory
	store  *storage.Memory
	now    time.Time
}

func (f *fixture) clock() time.Time { return f.now }

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func solParams() domain.PoolParams {
	return domain.PoolParams{
		LiquidationThreshold:   decimal.RequireFromString("0.5"),
		MaxLTV:                 decimal.RequireFromString("0.5"),
		LiquidationBonus:       decimal.RequireFromString("0.05"),
		LiquidationCloseFactor: decimal.RequireFromString("0.5"),
	}
}

func usdcParams() domain.PoolParams {
	return domain.PoolParams{
		LiquidationThreshold:   decimal.RequireFromString("0.9"),
		MaxLTV:                 decimal.RequireFromString("0.8"),
		LiquidationBonus:       decimal.RequireFromString("0.02"),
		LiquidationCloseFactor: decimal.RequireFromString("0.5"),
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  storage.NewMemory(),
		ledger: ledger.NewMemory(),
		now:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.oracle = oracle.NewStatic(f.clock)
	f.eng = New(Config{Clock: f.clock}, f.store, f.store, f.oracle, f.ledger)

	ctx := context.Background()
	require.NoError(t, f.eng.CreatePool(ctx, authority, solAsset, solParams()))
	require.NoError(t, f.eng.CreatePool(ctx, authority, usdcAsset, usdcParams()))

	f.oracle.SetPrice(solAsset, decimal.NewFromInt(2))
	f.oracle.SetPrice(usdcAsset, decimal.NewFromInt(1))
	return f
}

func (f *fixture) mint(t *testing.T, user string, asset domain.Asset, amount uint64) {
	t.Helper()
	require.NoError(t, f.ledger.Mint(context.Background(), domain.WalletAccount(user), asset, amount))
}

func (f *fixture) walletBalance(t *testing.T, user string, asset domain.Asset) uint64 {
	t.Helper()
	bal, err := f.ledger.Balance(context.Background(), domain.WalletAccount(user), asset)
	require.NoError(t, err)
	return bal
}

func (f *fixture) custodyBalance(t *testing.T, asset domain.Asset) uint64 {
	t.Helper()
	bal, err := f.ledger.Balance(context.Background(), domain.CustodyAccount(asset), asset)
	require.NoError(t, err)
	return bal
}

func (f *fixture) pool(t *testing.T, asset domain.Asset) *domain.AssetPool {
	t.Helper()
	pool, err := f.store.GetPool(context.Background(), asset)
	require.NoError(t, err)
	return pool
}

func (f *fixture) position(t *testing.T, user string) *domain.UserPosition {
	t.Helper()
	pos, err := f.store.GetPosition(context.Background(), user)
	require.NoError(t, err)
	require.NotNil(t, pos)
	return pos
}

// --- Deposit ---

func TestDeposit_BootstrapOneToOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mint(t, "alice", solAsset, 1000)

	require.NoError(t, f.eng.Deposit(ctx, "alice", solAsset, 1000))

	pool := f.pool(t, solAsset)
	assert.Equal(t, uint64(1000), pool.TotalDeposits)
	assert.Equal(t, uint64(1000), pool.TotalDepositShares)
	assert.NoError(t, pool.CheckInvariants())

	pos := f.position(t, "alice")
	assert.Equal(t, uint64(1000), pos.Slot(solAsset).DepositedShares)

	assert.Equal(t, uint64(0), f.walletBalance(t, "alice", solAsset))
	assert.Equal(t, uint64(1000), f.custodyBalance(t, solAsset))
}

func TestDeposit_ZeroAmount(t *testing.T) {
	f := newFixture(t)
	err := f.eng.Deposit(context.Background(), "alice", solAsset, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestDeposit_UnknownPool(t *testing.T) {
	f := newFixture(t)
	err := f.eng.Deposit(context.Background(), "alice", "DOGE", 100)
	assert.ErrorIs(t, err, domain.ErrPoolNotFound)
}

func TestDeposit_TransferFailureNoMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mint(t, "alice", solAsset, 50)

	err := f.eng.Deposit(ctx, "alice", solAsset, 100)
	assert.ErrorIs(t, err, domain.ErrTransferFailed)

	pool := f.pool(t, solAsset)
	assert.Equal(t, uint64(0), pool.TotalDeposits)
	assert.Equal(t, uint64(50), f.walletBalance(t, "alice", solAsset))
}

// --- Withdraw ---

func TestWithdraw_FullExit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mint(t, "alice", solAsset, 1000)
	require.NoError(t, f.eng.Deposit(ctx, "alice", solAsset, 1000))

	require.NoError(t, f.eng.Withdraw(ctx, "alice", solAsset, 1000))

	pool := f.pool(t, solAsset)
	assert.Equal(t, uint64(0), pool.TotalDeposits)
	assert.Equal(t, uint64(0), pool.TotalDepositShares)
	assert.Equal(t, uint64(0), f.position(t, "alice").Slot(solAsset).DepositedShares)
	assert.Equal(t, uint64(1000), f.walletBalance(t, "alice", solAsset))
}

func TestWithdraw_MoreThanDeposited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mint(t, "alice", solAsset, 100)
	require.NoError(t, f.eng.Deposit(ctx, "alice", solAsset, 100))

	err := f.eng.Withdraw(ctx, "alice", solAsset, 101)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
}

func TestWithdraw_RejectedWhenUndercollateralized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// lp aporta la liquidez USDC que alice va a pedir prestada
	f.mint(t, "lp", usdcAsset, 200)
	require.NoError(t, f.eng.Deposit(ctx, "lp", usdcAsset, 200))

	// alice: 100 SOL a $2, threshold 0.5 → colateral ajustado $100
	f.mint(t, "alice", solAsset, 100)
	require.NoError(t, f.eng.Deposit(ctx, "alice", solAsset, 100))
	require.NoError(t, f.eng.Borrow(ctx, "alice", usdcAsset, 50))

	// retirar 80 dejaría $20 ajustado contra $50 de deuda
	err := f.eng.Withdraw(ctx, "alice", solAsset, 80)
	assert.ErrorIs(t, err, domain.ErrUnderCollateralized)

	// nada cambió
	assert.Equal(t, uint64(100), f.pool(t, solAsset).TotalDeposits)

	// retirar 10 deja health 90*2*0.5/50 = 1.8 → permitido
	require.NoError(t, f.eng.Withdraw(ctx, "alice", solAsset, 10))
}

// --- Borrow ---

func TestBorrow_CapEnforced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.oracle.SetPrice(solAsset, decimal.NewFromInt(1))

	f.mint(t, "lp", usdcAsset, 1000)
	require.NoError(t, f.eng.Deposit(ctx, "lp", usdcAsset, 1000))

	// 1000 SOL a $1, threshold 0.5 → capacidad $500
	f.mint(t, "alice", solAsset, 1000)
	require.NoError(t, f.eng.Deposit(ctx, "alice", solAsset, 1000))

	err := f.eng.Borrow(ctx, "alice", usdcAsset, 600)
	assert.ErrorIs(t, err, domain.ErrOverBorrowableAmount)

	require.NoError(t, f.eng.Borrow(ctx, "alice", usdcAsset, 500))
	assert.Equal(t, uint64(500), f.walletBalance(t, "alice", usdcAsset))

	// la capacidad quedó agotada
	err = f.eng.Borrow(ctx, "alice", usdcAsset, 1)
	assert.ErrorIs(t, err, domain.ErrOverBorrowableAmount)
}

func TestBorrow_BootstrapShares(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mint(t, "lp", usdcAsset, 1000)
	require.NoError(t, f.eng.Deposit(ctx, "lp", usdcAsset, 1000))
	f.mint(t, "alice", solAsset, 1000)
	require.NoError(t, f.eng.Deposit(ctx, "alice", solAsset, 1000))

	require.NoError(t, f.eng.Borrow(ctx, "alice", usdcAsset, 200))

	pool := f.pool(t, usdcAsset)
	assert.Equal(t, uint64(200), pool.TotalBorrowed)
	assert.Equal(t, uint64(200), pool.TotalBorrowedShares)
	assert.Equal(t, uint64(200), f.position(t, "alice").Slot(usdcAsset).BorrowedShares)
}

func TestBorrow_DustAfterAccrualRecordsDebt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	params := solParams()
	params.InterestRate = 0.05
	require.NoError(t, f.eng.CreatePool(ctx, authority, "BTC", params))
	f.oracle.SetPrice("BTC", decimal.NewFromInt(1))

	f.mint(t, "alice", "BTC", 3_000_100)
	require.NoError(t, f.eng.Deposit(ctx, "alice", "BTC", 3_000_000))
	require.NoError(t, f.eng.Borrow(ctx, "alice", "BTC", 100))

	// tras el accrual TotalBorrowed (105) > TotalBorrowedShares (100)
	f.advance(time.Second)
	f.oracle.SetPrice("BTC", decimal.NewFromInt(1))

	f.mint(t, "bob", "BTC", 100)
	require.NoError(t, f.eng.Deposit(ctx, "bob", "BTC", 100))
	require.NoError(t, f.eng.Borrow(ctx, "bob", "BTC", 1))

	// el borrow de 1 unidad no puede salir con cero deuda anotada
	pos := f.position(t, "bob")
	assert.Equal(t, uint64(1), pos.Slot("BTC").BorrowedShares)

	pool := f.pool(t, "BTC")
	assert.Equal(t, uint64(101), pool.TotalBorrowedShares)
	assert.Equal(t, uint64(106), pool.TotalBorrowed)

	debt, err := pos.BorrowedAmount(pool)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, debt, uint64(1))
}

// --- Repay ---

func TestRepay_OverRepayRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mint(t, "lp", usdcAsset, 1000)
	require.NoError(t, f.eng.Deposit(ctx, "lp", usdcAsset, 1000))
	f.mint(t, "alice", solAsset, 1000)
	require.NoError(t, f.eng.Deposit(ctx, "alice", solAsset, 1000))
	require.NoError(t, f.eng.Borrow(ctx, "alice", usdcAsset, 200))

	f.mint(t, "alice", usdcAsset, 1) // tiene 201 en wallet
	err := f.eng.Repay(ctx, "alice", usdcAsset, 201)
	assert.ErrorIs(t, err, domain.ErrOverRepay)
}

func TestRepay_FullZeroesShares(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mint(t, "lp", usdcAsset, 1000)
	require.NoError(t, f.eng.Deposit(ctx, "lp", usdcAsset, 1000))
	f.mint(t, "alice", solAsset, 1000)
	require.NoError(t, f.eng.Deposit(ctx, "alice", solAsset, 1000))
	require.NoError(t, f.eng.Borrow(ctx, "alice", usdcAsset, 200))

	require.NoError(t, f.eng.Repay(ctx, "alice", usdcAsset, 200))

	pool := f.pool(t, usdcAsset)
	assert.Equal(t, uint64(0), pool.TotalBorrowed)
	assert.Equal(t, uint64(0), pool.TotalBorrowedShares)
	assert.NoError(t, pool.CheckInvariants())
	assert.Equal(t, uint64(0), f.position(t, "alice").Slot(usdcAsset).BorrowedShares)
}

// --- interés ---

func TestInterest_DebtGrowsAndFullRepayClears(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// pool con interés: 5% continuo por segundo para que un tick sea visible
	params := solParams()
	params.InterestRate = 0.05
	require.NoError(t, f.eng.CreatePool(ctx, authority, "BTC", params))
	f.oracle.SetPrice("BTC", decimal.NewFromInt(1))

	f.mint(t, "alice", "BTC", 4_000_000)
	require.NoError(t, f.eng.Deposit(ctx, "alice", "BTC", 3_000_000))
	require.NoError(t, f.eng.Borrow(ctx, "alice", "BTC", 1_000_000))

	f.advance(time.Second)
	f.oracle.SetPrice("BTC", decimal.NewFromInt(1)) // re-publica con timestamp fresco

	// 1_000_000 * e^0.05 = 1_051_271.09... → floor
	f.mint(t, "alice", "BTC", 100_000)
	err := f.eng.Repay(ctx, "alice", "BTC", 1_051_272)
	assert.ErrorIs(t, err, domain.ErrOverRepay)

	require.NoError(t, f.eng.Repay(ctx, "alice", "BTC", 1_051_271))
	pool := f.pool(t, "BTC")
	assert.Equal(t, uint64(0), pool.TotalBorrowed)
	assert.Equal(t, uint64(0), pool.TotalBorrowedShares)
}

// --- conservación de shares ---

// assertShareConservation comprueba que las shares del pool son exactamente
// la suma de las shares registradas en las posiciones de los usuarios.
func assertShareConservation(t *testing.T, f *fixture, asset domain.Asset, users ...string) {
	t.Helper()
	var deposit, borrow uint64
	for _, u := range users {
		pos := f.position(t, u)
		deposit += pos.Slot(asset).DepositedShares
		borrow += pos.Slot(asset).BorrowedShares
	}
	pool := f.pool(t, asset)
	assert.Equal(t, pool.TotalDepositShares, deposit, "deposit shares de %s", asset)
	assert.Equal(t, pool.TotalBorrowedShares, borrow, "borrow shares de %s", asset)
	assert.NoError(t, pool.CheckInvariants())
}

func TestShares_ConservedAcrossMultiUserSequence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	params := solParams()
	params.InterestRate = 0.05
	require.NoError(t, f.eng.CreatePool(ctx, authority, "BTC", params))
	f.oracle.SetPrice("BTC", decimal.NewFromInt(1))

	f.mint(t, "alice", "BTC", 4_000_000)
	f.mint(t, "bob", "BTC", 1_000_000)

	require.NoError(t, f.eng.Deposit(ctx, "alice", "BTC", 2_000_000))
	require.NoError(t, f.eng.Borrow(ctx, "alice", "BTC", 500_000))
	assertShareConservation(t, f, "BTC", "alice", "bob")

	// el accrual separa amount de shares: el segundo depósito ya no es 1:1
	f.advance(time.Second)
	f.oracle.SetPrice("BTC", decimal.NewFromInt(1))

	require.NoError(t, f.eng.Deposit(ctx, "bob", "BTC", 1_000_000))
	pos := f.position(t, "bob")
	assert.Less(t, pos.Slot("BTC").DepositedShares, uint64(1_000_000))
	assertShareConservation(t, f, "BTC", "alice", "bob")

	require.NoError(t, f.eng.Borrow(ctx, "bob", "BTC", 100_000))
	assertShareConservation(t, f, "BTC", "alice", "bob")

	f.advance(time.Second)
	f.oracle.SetPrice("BTC", decimal.NewFromInt(1))

	require.NoError(t, f.eng.Withdraw(ctx, "alice", "BTC", 300_000))
	require.NoError(t, f.eng.Repay(ctx, "bob", "BTC", 50_000))
	assertShareConservation(t, f, "BTC", "alice", "bob")
}

// --- staleness ---

func TestStalePrice_NoMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mint(t, "lp", usdcAsset, 1000)
	require.NoError(t, f.eng.Deposit(ctx, "lp", usdcAsset, 1000))
	f.mint(t, "alice", solAsset, 100)
	require.NoError(t, f.eng.Deposit(ctx, "alice", solAsset, 100))
	require.NoError(t, f.eng.Borrow(ctx, "alice", usdcAsset, 50))

	// la cotización de SOL envejece más allá del máximo
	f.advance(2 * time.Minute)
	f.oracle.SetQuote(domain.PriceQuote{
		Asset:       usdcAsset,
		Price:       decimal.NewFromInt(1),
		PublishedAt: f.now,
	})

	poolBefore := *f.pool(t, solAsset)
	walletBefore := f.walletBalance(t, "alice", solAsset)

	err := f.eng.Withdraw(ctx, "alice", solAsset, 10)
	assert.ErrorIs(t, err, domain.ErrStalePrice)

	assert.Equal(t, poolBefore.TotalDeposits, f.pool(t, solAsset).TotalDeposits)
	assert.Equal(t, walletBefore, f.walletBalance(t, "alice", solAsset))
}
