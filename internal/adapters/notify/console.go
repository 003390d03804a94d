package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/lendpool/internal/domain"
)

// Console implementa ports.Notifier.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// Notify imprime el reporte del ciclo en el modo configurado.
func (c *Console) Notify(_ context.Context, report domain.CycleReport) error {
	if c.table {
		c.printFull(report)
	} else {
		c.printCompact(report)
	}
	return nil
}

// printCompact imprime lo esencial en una línea.
func (c *Console) printCompact(report domain.CycleReport) {
	now := report.ScannedAt.Format("15:04:05")
	atRisk := report.AtRisk()

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %d positions → at-risk:%d liquidated:%d",
		now, len(report.Positions), len(atRisk), len(report.Liquidations))
	if report.Errors > 0 {
		fmt.Fprintf(&sb, " errors:%d", report.Errors)
	}

	shown := 0
	for _, snap := range atRisk {
		if shown >= 4 {
			break
		}
		fmt.Fprintf(&sb, " | %s hf=%s debt$%s",
			snap.Owner, snap.HealthFactor.StringFixed(3), snap.DebtValue.StringFixed(2))
		shown++
	}

	fmt.Fprintln(c.out, sb.String())
}

// printFull imprime la tabla completa de posiciones y liquidaciones.
func (c *Console) printFull(report domain.CycleReport) {
	now := report.ScannedAt.Format("15:04:05")
	fmt.Fprintf(c.out, "\n[%s] %d positions with debt — %d at risk, %d errors\n",
		now, len(report.Positions), len(report.AtRisk()), report.Errors)

	if len(report.Positions) > 0 {
		table := tablewriter.NewWriter(c.out)
		table.Header("#", "Owner", "Collateral$", "Debt$", "Health", "Status")

		for i, snap := range report.Positions {
			status := "OK"
			if snap.Liquidatable {
				status = "LIQUIDATABLE"
			}
			table.Append(
				fmt.Sprintf("%d", i+1),
				snap.Owner,
				snap.CollateralValue.StringFixed(2),
				snap.DebtValue.StringFixed(2),
				snap.HealthFactor.StringFixed(4),
				status,
			)
		}
		table.Render()
		fmt.Fprintln(c.out, "  Collateral$ = valor ajustado por threshold | Health < 1.0 → liquidable")
	}

	if len(report.Liquidations) > 0 {
		fmt.Fprintf(c.out, "\n*** %d liquidations executed ***\n", len(report.Liquidations))
		table := tablewriter.NewWriter(c.out)
		table.Header("Target", "Repaid", "Seized", "HF before", "HF after")
		for _, liq := range report.Liquidations {
			table.Append(
				liq.Target,
				fmt.Sprintf("%d %s", liq.DebtRepaid, liq.DebtAsset),
				fmt.Sprintf("%d %s", liq.CollateralSeized, liq.CollateralAsset),
				liq.HealthBefore.StringFixed(4),
				liq.HealthAfter.StringFixed(4),
			)
		}
		table.Render()
	}
}

// PrintPools imprime el estado de todos los pools, para el flag -pools.
func (c *Console) PrintPools(pools []*domain.AssetPool) {
	fmt.Fprintf(c.out, "\n[%s] %d pools\n", time.Now().Format("15:04:05"), len(pools))

	table := tablewriter.NewWriter(c.out)
	table.Header("Asset", "Deposits", "Dep shares", "Borrowed", "Bor shares", "Util%", "Threshold", "Bonus")

	for _, pool := range pools {
		util := 0.0
		if pool.TotalDeposits > 0 {
			util = float64(pool.TotalBorrowed) / float64(pool.TotalDeposits) * 100
		}
		table.Append(
			string(pool.Asset),
			fmt.Sprintf("%d", pool.TotalDeposits),
			fmt.Sprintf("%d", pool.TotalDepositShares),
			fmt.Sprintf("%d", pool.TotalBorrowed),
			fmt.Sprintf("%d", pool.TotalBorrowedShares),
			fmt.Sprintf("%.1f", util),
			pool.Params.LiquidationThreshold.String(),
			pool.Params.LiquidationBonus.String(),
		)
	}
	table.Render()
}
