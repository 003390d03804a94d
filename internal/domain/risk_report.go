package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RiskSnapshot es la valoración de una posición en un instante: lo que el
// monitor de liquidaciones reporta y lo que la consola imprime.
type RiskSnapshot struct {
	Owner           string
	CollateralValue decimal.Decimal // USD, ajustado por threshold
	DebtValue       decimal.Decimal // USD
	HealthFactor    decimal.Decimal
	Liquidatable    bool
	ScannedAt       time.Time
}

// CycleReport resume un ciclo completo del monitor.
type CycleReport struct {
	ScannedAt    time.Time
	Positions    []RiskSnapshot // todas las posiciones con deuda, peor salud primero
	Liquidations []LiquidationResult
	Errors       int // posiciones que no se pudieron valorar (oracle caído, etc.)
}

// AtRisk devuelve solo las posiciones liquidables.
func (r CycleReport) AtRisk() []RiskSnapshot {
	var out []RiskSnapshot
	for _, p := range r.Positions {
		if p.Liquidatable {
			out = append(out, p)
		}
	}
	return out
}

// LiquidationResult registra una liquidación ejecutada.
type LiquidationResult struct {
	ID               string // uuid de la liquidación
	Liquidator       string
	Target           string
	DebtAsset        Asset
	CollateralAsset  Asset
	DebtRepaid       uint64
	CollateralSeized uint64
	HealthBefore     decimal.Decimal
	HealthAfter      decimal.Decimal
	ExecutedAt       time.Time
}
