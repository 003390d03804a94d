package monitor

// concurrent.go — worker pool para valorar posiciones en paralelo.
//
// Cada Snapshot puede tocar el oráculo; con cientos de posiciones el escaneo
// secuencial tarda más que el intervalo del monitor. Los workers reparten
// las valoraciones y el engine serializa internamente lo que haga falta.

import (
	"context"
	"log/slog"
	"runtime"
	"sync"

	"github.com/alejandrodnm/lendpool/internal/domain"
)

// scanConcurrent valora la salud de los owners dados usando un worker pool.
// Devuelve los snapshots obtenidos y cuántas posiciones fallaron.
//
// Si workers <= 0 usa runtime.NumCPU() × 2.
func (m *Monitor) scanConcurrent(ctx context.Context, owners []string) ([]domain.RiskSnapshot, int) {
	workers := m.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU() * 2
	}

	workCh := make(chan string, len(owners))
	resultCh := make(chan domain.RiskSnapshot, len(owners))
	errCh := make(chan error, len(owners))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for owner := range workCh {
				snap, err := m.engine.Snapshot(ctx, owner)
				if err != nil {
					slog.Debug("snapshot failed", "owner", owner, "err", err)
					errCh <- err
					continue
				}
				resultCh <- snap
			}
		}()
	}

	for _, owner := range owners {
		workCh <- owner
	}
	close(workCh)

	wg.Wait()
	close(resultCh)
	close(errCh)

	snapshots := make([]domain.RiskSnapshot, 0, len(owners))
	for snap := range resultCh {
		snapshots = append(snapshots, snap)
	}
	return snapshots, len(errCh)
}
