package ports

import (
	"context"

	"github.com/alejandrodnm/lendpool/internal/domain"
)

// PoolStore persiste los AssetPool, addressed por asset. El estado compartido
// es explícito: el engine recibe el store como handle, nunca hay singletons.
type PoolStore interface {
	// GetPool devuelve el pool del asset, o domain.ErrPoolNotFound.
	GetPool(ctx context.Context, asset domain.Asset) (*domain.AssetPool, error)

	// PutPool inserta o reemplaza el pool.
	PutPool(ctx context.Context, pool *domain.AssetPool) error

	// ListPools devuelve todos los pools en orden estable por asset.
	ListPools(ctx context.Context) ([]*domain.AssetPool, error)
}

// PositionStore persiste las UserPosition, addressed por owner.
type PositionStore interface {
	// GetPosition devuelve la posición del owner, o nil si nunca interactuó.
	GetPosition(ctx context.Context, owner string) (*domain.UserPosition, error)

	// PutPosition inserta o reemplaza la posición.
	PutPosition(ctx context.Context, position *domain.UserPosition) error

	// ListPositions devuelve todas las posiciones en orden estable por owner.
	ListPositions(ctx context.Context) ([]*domain.UserPosition, error)
}

// Store agrupa ambos stores más el cierre limpio de la conexión subyacente.
type Store interface {
	PoolStore
	PositionStore

	// Close cierra la conexión al storage limpiamente.
	Close() error
}
