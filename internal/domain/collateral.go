package domain

import "time"

// CollateralPosition is the single-collateral/single-debt specialization used
// by the vault variant: one counterparty pair, no shares. Same invariants as
// AssetPool/UserPosition collapsed — no derived balance may go negative.
type CollateralPosition struct {
	Owner             string
	CollateralBalance uint64
	DebtIssued        uint64
	Initialized       bool
	LastUpdated       time.Time
}
