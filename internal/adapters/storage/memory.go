package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/alejandrodnm/lendpool/internal/domain"
)

// Memory implementa ports.Store en memoria, para tests y dry-run.
//
// Devuelve y guarda copias, nunca los objetos internos: una operación que
// falla a medias no debe dejar rastro en el store aunque haya mutado su
// copia de trabajo.
type Memory struct {
	mu        sync.RWMutex
	pools     map[domain.Asset]domain.AssetPool
	positions map[string]domain.UserPosition
}

// NewMemory crea un store vacío.
func NewMemory() *Memory {
	return &Memory{
		pools:     make(map[domain.Asset]domain.AssetPool),
		positions: make(map[string]domain.UserPosition),
	}
}

// GetPool devuelve una copia del pool del asset.
func (m *Memory) GetPool(_ context.Context, asset domain.Asset) (*domain.AssetPool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pool, ok := m.pools[asset]
	if !ok {
		return nil, fmt.Errorf("storage.GetPool: %s: %w", asset, domain.ErrPoolNotFound)
	}
	return &pool, nil
}

// PutPool guarda una copia del pool.
func (m *Memory) PutPool(_ context.Context, pool *domain.AssetPool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pools[pool.Asset] = *pool
	return nil
}

// ListPools devuelve todos los pools ordenados por asset.
func (m *Memory) ListPools(_ context.Context) ([]*domain.AssetPool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.AssetPool, 0, len(m.pools))
	for _, pool := range m.pools {
		cp := pool
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out, nil
}

// GetPosition devuelve una copia de la posición, o nil si el owner nunca
// interactuó.
func (m *Memory) GetPosition(_ context.Context, owner string) (*domain.UserPosition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pos, ok := m.positions[owner]
	if !ok {
		return nil, nil
	}
	return pos.Clone(), nil
}

// PutPosition guarda una copia de la posición.
func (m *Memory) PutPosition(_ context.Context, position *domain.UserPosition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[position.Owner] = *position.Clone()
	return nil
}

// ListPositions devuelve todas las posiciones ordenadas por owner.
func (m *Memory) ListPositions(_ context.Context) ([]*domain.UserPosition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.UserPosition, 0, len(m.positions))
	for _, pos := range m.positions {
		out = append(out, pos.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Owner < out[j].Owner })
	return out, nil
}

// Close no hace nada: no hay conexión subyacente.
func (m *Memory) Close() error { return nil }
