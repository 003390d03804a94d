package domain

import "errors"

// Errores del protocolo. Cada operación aborta entera con uno de estos;
// nunca hay mutación parcial observable. El caller distingue con errors.Is:
// errores de cantidad → reintenta con otros parámetros; precio stale →
// reintenta más tarde; posición sana → no aplica.
var (
	// ErrInvalidAmount: cantidad cero o negativa pasada a un mutador.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInsufficientFunds: retiro mayor que el balance derivado del usuario.
	ErrInsufficientFunds = errors.New("insufficient funds to withdraw")

	// ErrOverRepay: repago mayor que la deuda derivada pendiente.
	ErrOverRepay = errors.New("attempting to repay more than borrowed")

	// ErrOverBorrowableAmount: préstamo mayor que lo que soporta el colateral.
	ErrOverBorrowableAmount = errors.New("attempting to borrow more than allowed")

	// ErrUnderCollateralized: la operación dejaría la posición insolvente.
	ErrUnderCollateralized = errors.New("operation results in an under collateralized position")

	// ErrStalePrice: cotización del oráculo más vieja que la edad máxima.
	ErrStalePrice = errors.New("oracle price is stale")

	// ErrInvalidPrice: precio ausente o no positivo.
	ErrInvalidPrice = errors.New("oracle price is missing or not positive")

	// ErrNotUndercollateralized: liquidación sobre una posición sana.
	ErrNotUndercollateralized = errors.New("position is not undercollateralized")

	// ErrArithmeticOverflow: un paso de aritmética checked desbordaría.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")

	// ErrInsufficientCollateral: el colateral del objetivo no cubre el
	// seize + bonus de la liquidación.
	ErrInsufficientCollateral = errors.New("insufficient collateral to seize")

	// ErrPoolNotFound: no existe AssetPool para el asset pedido.
	ErrPoolNotFound = errors.New("asset pool not found")

	// ErrTransferFailed: el Token Ledger externo rechazó el movimiento.
	ErrTransferFailed = errors.New("token ledger transfer failed")

	// ErrUnauthorized: el caller no es la authority del pool.
	ErrUnauthorized = errors.New("caller is not the pool authority")

	// ErrPoolExists: ya existe un pool para el asset.
	ErrPoolExists = errors.New("asset pool already exists")
)
