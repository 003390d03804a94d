package ports

import (
	"context"

	"github.com/alejandrodnm/lendpool/internal/domain"
)

// Notifier presenta el resultado de un ciclo del monitor al operador.
type Notifier interface {
	// Notify muestra las posiciones ordenadas por salud, peor primero.
	// En la implementación de consola, imprime una tabla formateada.
	Notify(ctx context.Context, report domain.CycleReport) error
}
