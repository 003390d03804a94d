package domain

import (
	"math"
	"time"
)

// maxAccrualFactor limita el factor de interés compuesto por aplicación.
// Con lazy accrual un pool abandonado años acumularía un exponente enorme;
// saturamos el principal en vez de desbordar.
const maxAccrualFactor = 1e6

// Accrue aplica interés compuesto continuo: principal * exp(rate * dt).
//
// Se llama lazy al inicio de cada operación que lee o escribe un balance,
// con dt = now - lastUpdated. Clampa dt < 0 a cero (anomalías de reloj) y
// satura en vez de desbordar para dt muy grandes. Con rate >= 0 el resultado
// nunca es menor que el principal: la deuda de un borrower jamás parece
// encogerse por accrual.
func Accrue(principal uint64, rate float64, elapsed time.Duration) uint64 {
	if principal == 0 || rate <= 0 || elapsed <= 0 {
		return principal
	}

	factor := math.Exp(rate * elapsed.Seconds())
	if math.IsInf(factor, 1) || factor > maxAccrualFactor {
		factor = maxAccrualFactor
	}

	grown := float64(principal) * factor
	if grown >= math.MaxUint64 {
		return math.MaxUint64
	}
	result := uint64(grown)
	if result < principal {
		// la conversión float64→uint64 puede perder precisión cerca del límite
		return principal
	}
	return result
}
