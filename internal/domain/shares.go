package domain

// shares.go — conversión amount↔shares compartida por todos los pools.
//
// Las shares son propiedad proporcional sobre el total del pool: el interés
// acumula sobre los totales y todas las shares se revalorizan a la vez, sin
// reescribir el balance de cada depositante.
//
// Política de redondeo: siempre a favor del pool. En el lado de depósitos
// eso es hacia abajo (el dust se queda en el pool); en el lado de deuda es
// hacia ARRIBA (la deuda registrada nunca es menor que los tokens
// entregados).

import "math/bits"

// mulDiv calcula floor(a*b/den) con intermedio de 128 bits.
// Devuelve ErrArithmeticOverflow si el cociente no cabe en uint64.
func mulDiv(a, b, den uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi >= den {
		// bits.Div64 haría panic: el cociente desborda uint64
		return 0, ErrArithmeticOverflow
	}
	q, _ := bits.Div64(hi, lo, den)
	return q, nil
}

// SharesForDeposit convierte un depósito en shares contra los totales del
// pool ANTES de aplicar el depósito. El primer participante arranca 1:1.
func SharesForDeposit(amount, poolTotalAmount, poolTotalShares uint64) (uint64, error) {
	if poolTotalAmount == 0 {
		return amount, nil
	}
	return mulDiv(amount, poolTotalShares, poolTotalAmount)
}

// AmountForShares devuelve el valor actual de unas shares.
// Con cero shares en el pool no hay valor que repartir.
func AmountForShares(shares, poolTotalAmount, poolTotalShares uint64) (uint64, error) {
	if poolTotalShares == 0 {
		return 0, nil
	}
	return mulDiv(shares, poolTotalAmount, poolTotalShares)
}

// SharesForAmount calcula cuántas shares hay que retirar para sacar amount
// del pool, floor(amount * totalShares / totalAmount). Es la inversa de
// AmountForShares con el mismo redondeo a favor del pool.
func SharesForAmount(amount, poolTotalAmount, poolTotalShares uint64) (uint64, error) {
	if poolTotalAmount == 0 {
		return 0, nil
	}
	return mulDiv(amount, poolTotalShares, poolTotalAmount)
}

// SharesForBorrow convierte un préstamo en shares de deuda contra los
// totales del pool ANTES de aplicarlo. Redondea hacia arriba: sin esto, con
// TotalBorrowed > TotalBorrowedShares un borrow de dust registraría cero
// shares y los tokens saldrían sin deuda anotada. El primer prestatario
// arranca 1:1.
func SharesForBorrow(amount, poolTotalAmount, poolTotalShares uint64) (uint64, error) {
	if poolTotalAmount == 0 {
		return amount, nil
	}
	hi, lo := bits.Mul64(amount, poolTotalShares)
	if hi >= poolTotalAmount {
		return 0, ErrArithmeticOverflow
	}
	q, rem := bits.Div64(hi, lo, poolTotalAmount)
	if rem != 0 {
		return AddChecked(q, 1)
	}
	return q, nil
}

// AddChecked suma con detección de overflow.
func AddChecked(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrArithmeticOverflow
	}
	return sum, nil
}

// SubChecked resta con detección de underflow.
func SubChecked(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrArithmeticOverflow
	}
	return diff, nil
}
