package domain

import (
	"sort"
	"time"
)

// PositionSlot holds one user's share balances against one pool.
type PositionSlot struct {
	DepositedShares uint64
	BorrowedShares  uint64
}

// UserPosition tracks a single user's activity across every pool, expressed
// in shares. Created on first interaction and kept forever, even at zero
// balance — cheap to re-use.
type UserPosition struct {
	Owner       string
	Slots       map[Asset]PositionSlot
	LastUpdated time.Time
}

// NewUserPosition crea una posición vacía para el owner dado.
func NewUserPosition(owner string) *UserPosition {
	return &UserPosition{
		Owner: owner,
		Slots: make(map[Asset]PositionSlot),
	}
}

// Slot devuelve el slot del asset, cero si nunca se tocó.
func (u *UserPosition) Slot(asset Asset) PositionSlot {
	return u.Slots[asset]
}

// SetSlot reemplaza el slot del asset.
func (u *UserPosition) SetSlot(asset Asset, slot PositionSlot) {
	if u.Slots == nil {
		u.Slots = make(map[Asset]PositionSlot)
	}
	u.Slots[asset] = slot
}

// Assets devuelve los assets del usuario en orden estable, para que los
// folds de valoración sean deterministas.
func (u *UserPosition) Assets() []Asset {
	out := make([]Asset, 0, len(u.Slots))
	for a := range u.Slots {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DepositedAmount deriva el balance depositado actual contra el pool.
func (u *UserPosition) DepositedAmount(pool *AssetPool) (uint64, error) {
	slot := u.Slot(pool.Asset)
	return AmountForShares(slot.DepositedShares, pool.TotalDeposits, pool.TotalDepositShares)
}

// BorrowedAmount deriva la deuda actual contra el pool.
func (u *UserPosition) BorrowedAmount(pool *AssetPool) (uint64, error) {
	slot := u.Slot(pool.Asset)
	return AmountForShares(slot.BorrowedShares, pool.TotalBorrowed, pool.TotalBorrowedShares)
}

// HasDebt indica si el usuario debe algo en cualquier pool.
func (u *UserPosition) HasDebt() bool {
	for _, slot := range u.Slots {
		if slot.BorrowedShares > 0 {
			return true
		}
	}
	return false
}

// Clone devuelve una copia profunda, para simular una operación antes de
// comprometerla (withdraw re-chequea salud sobre la copia).
func (u *UserPosition) Clone() *UserPosition {
	cp := &UserPosition{
		Owner:       u.Owner,
		Slots:       make(map[Asset]PositionSlot, len(u.Slots)),
		LastUpdated: u.LastUpdated,
	}
	for a, s := range u.Slots {
		cp.Slots[a] = s
	}
	return cp
}
