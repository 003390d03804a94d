package monitor

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/alejandrodnm/lendpool/internal/domain"
	"github.com/alejandrodnm/lendpool/internal/ports"
)

const defaultScanInterval = 30 * time.Second

// Config contiene la configuración del monitor de liquidaciones.
type Config struct {
	ScanInterval time.Duration
	Workers      int

	// AutoLiquidate ejecuta liquidaciones con la cuenta Liquidator en vez de
	// solo reportar las posiciones en riesgo.
	AutoLiquidate bool
	Liquidator    string

	// DryRun ejecuta un solo ciclo y termina.
	DryRun bool
}

// DefaultConfig devuelve una configuración sensata para producción.
func DefaultConfig() Config {
	return Config{
		ScanInterval: defaultScanInterval,
	}
}

// RiskEngine es lo que el monitor necesita del engine: valorar posiciones y,
// si está configurado, liquidar.
type RiskEngine interface {
	Snapshot(ctx context.Context, user string) (domain.RiskSnapshot, error)
	ProposeLiquidation(ctx context.Context, target string) (debtAsset, collateralAsset domain.Asset, repay uint64, err error)
	Liquidate(ctx context.Context, liquidator, target string, debtAsset, collateralAsset domain.Asset, repayAmount uint64) (domain.LiquidationResult, error)
}

// Monitor es el loop que vigila la salud de todas las posiciones: el papel
// del tercero liquidador en el protocolo. Cualquiera puede correr uno.
type Monitor struct {
	cfg       Config
	engine    RiskEngine
	positions ports.PositionStore
	notifier  ports.Notifier
}

// New crea un Monitor con todas las dependencias inyectadas.
func New(cfg Config, engine RiskEngine, positions ports.PositionStore, notifier ports.Notifier) *Monitor {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = defaultScanInterval
	}
	return &Monitor{
		cfg:       cfg,
		engine:    engine,
		positions: positions,
		notifier:  notifier,
	}
}

// Run ejecuta el loop de escaneo hasta que el contexto se cancele.
// Si cfg.DryRun está activo, solo ejecuta un ciclo.
func (m *Monitor) Run(ctx context.Context) error {
	slog.Info("liquidation monitor starting",
		"interval", m.cfg.ScanInterval,
		"auto_liquidate", m.cfg.AutoLiquidate,
		"dry_run", m.cfg.DryRun,
	)

	if err := m.runCycle(ctx); err != nil {
		slog.Error("monitor cycle failed", "err", err)
		if m.cfg.DryRun {
			return err
		}
	}

	if m.cfg.DryRun {
		return nil
	}

	ticker := time.NewTicker(m.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("liquidation monitor stopped")
			return nil
		case <-ticker.C:
			if err := m.runCycle(ctx); err != nil {
				slog.Error("monitor cycle failed", "err", err)
			}
		}
	}
}

// RunOnce ejecuta exactamente un ciclo y devuelve el reporte.
func (m *Monitor) RunOnce(ctx context.Context) (domain.CycleReport, error) {
	return m.cycle(ctx)
}

// runCycle ejecuta un ciclo completo y notifica el resultado.
func (m *Monitor) runCycle(ctx context.Context) error {
	start := time.Now()

	report, err := m.cycle(ctx)
	if err != nil {
		return err
	}

	if m.notifier != nil {
		if err := m.notifier.Notify(ctx, report); err != nil {
			slog.Warn("notifier error", "err", err)
		}
	}

	slog.Info("monitor cycle done",
		"positions", len(report.Positions),
		"at_risk", len(report.AtRisk()),
		"liquidations", len(report.Liquidations),
		"errors", report.Errors,
		"took", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

// cycle escanea todas las posiciones, valora su salud en paralelo y, con
// AutoLiquidate, liquida las que están bajo el mínimo.
func (m *Monitor) cycle(ctx context.Context) (domain.CycleReport, error) {
	all, err := m.positions.ListPositions(ctx)
	if err != nil {
		return domain.CycleReport{}, err
	}

	var owners []string
	for _, pos := range all {
		if pos.HasDebt() {
			owners = append(owners, pos.Owner)
		}
	}

	report := domain.CycleReport{ScannedAt: time.Now()}
	report.Positions, report.Errors = m.scanConcurrent(ctx, owners)

	// Peor salud primero: lo urgente arriba.
	sort.Slice(report.Positions, func(i, j int) bool {
		return report.Positions[i].HealthFactor.LessThan(report.Positions[j].HealthFactor)
	})

	if m.cfg.AutoLiquidate {
		for _, snap := range report.AtRisk() {
			result, err := m.liquidate(ctx, snap.Owner)
			if err != nil {
				slog.Warn("liquidation failed", "target", snap.Owner, "err", err)
				continue
			}
			report.Liquidations = append(report.Liquidations, result)
		}
	}

	return report, nil
}

// liquidate ejecuta una liquidación sobre el target con el par de assets y
// repago que propone el engine.
func (m *Monitor) liquidate(ctx context.Context, target string) (domain.LiquidationResult, error) {
	debtAsset, collAsset, repay, err := m.engine.ProposeLiquidation(ctx, target)
	if err != nil {
		return domain.LiquidationResult{}, err
	}
	return m.engine.Liquidate(ctx, m.cfg.Liquidator, target, debtAsset, collAsset, repay)
}
