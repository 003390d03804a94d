package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/lendpool/config"
	"github.com/alejandrodnm/lendpool/internal/adapters/ledger"
	"github.com/alejandrodnm/lendpool/internal/adapters/notify"
	"github.com/alejandrodnm/lendpool/internal/adapters/oracle"
	"github.com/alejandrodnm/lendpool/internal/adapters/storage"
	"github.com/alejandrodnm/lendpool/internal/domain"
	"github.com/alejandrodnm/lendpool/internal/engine"
	"github.com/alejandrodnm/lendpool/internal/monitor"
	"github.com/alejandrodnm/lendpool/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one risk scan cycle and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print full risk tables (default: compact 1-line)")
	pools := flag.Bool("pools", false, "print pool state table after each cycle")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("lendpool starting",
		"config", *configPath,
		"interval", cfg.ScanInterval(),
		"once", *once,
		"auto_liquidate", cfg.Monitor.AutoLiquidate,
	)

	store, err := openStore(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	var priceSource ports.Oracle
	if cfg.Oracle.Static {
		priceSource = oracle.NewStatic(nil)
	} else {
		feeds := make(map[domain.Asset]string, len(cfg.Oracle.Feeds))
		for asset, feed := range cfg.Oracle.Feeds {
			feeds[domain.Asset(asset)] = feed
		}
		priceSource = oracle.NewClient(cfg.Oracle.BaseURL, feeds)
	}

	minHealth, _ := decimal.NewFromString(cfg.Engine.MinHealthFactor)
	eng := engine.New(engine.Config{
		MaxPriceAge:     cfg.MaxPriceAge(),
		MinHealthFactor: minHealth,
	}, store, store, priceSource, ledger.NewMemory())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := seedPools(ctx, eng, cfg); err != nil {
		slog.Error("failed to seed pools", "err", err)
		os.Exit(1)
	}

	console := notify.NewConsole(*table)
	if *pools {
		printPools(ctx, store, console)
	}

	mon := monitor.New(monitor.Config{
		ScanInterval:  cfg.ScanInterval(),
		Workers:       cfg.Monitor.Workers,
		AutoLiquidate: cfg.Monitor.AutoLiquidate,
		Liquidator:    cfg.Monitor.Liquidator,
		DryRun:        *once,
	}, eng, store, console)

	if err := mon.Run(ctx); err != nil {
		slog.Error("monitor exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("lendpool stopped cleanly")
}

// openStore elige el backend según el DSN: "memory" usa el store en RAM,
// cualquier otra cosa es una ruta SQLite (":memory:" incluido).
func openStore(dsn string) (ports.Store, error) {
	if dsn == "memory" {
		return storage.NewMemory(), nil
	}
	return storage.NewSQLite(dsn)
}

// seedPools crea los pools del config que aún no existan. Un pool ya
// persistido conserva su estado; solo se actualizan sus parámetros.
func seedPools(ctx context.Context, eng *engine.Engine, cfg *config.Config) error {
	for asset, pc := range cfg.Pools {
		params, err := poolParams(pc)
		if err != nil {
			return err
		}
		err = eng.CreatePool(ctx, cfg.Engine.Authority, domain.Asset(asset), params)
		if errors.Is(err, domain.ErrPoolExists) {
			err = eng.UpdatePoolParams(ctx, cfg.Engine.Authority, domain.Asset(asset), params)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func poolParams(pc config.PoolConfig) (domain.PoolParams, error) {
	threshold, err := decimal.NewFromString(pc.LiquidationThreshold)
	if err != nil {
		return domain.PoolParams{}, err
	}
	maxLTV, err := decimal.NewFromString(pc.MaxLTV)
	if err != nil {
		return domain.PoolParams{}, err
	}
	bonus, err := decimal.NewFromString(pc.LiquidationBonus)
	if err != nil {
		return domain.PoolParams{}, err
	}
	closeFactor, err := decimal.NewFromString(pc.LiquidationCloseFactor)
	if err != nil {
		return domain.PoolParams{}, err
	}
	return domain.PoolParams{
		LiquidationThreshold:   threshold,
		MaxLTV:                 maxLTV,
		LiquidationBonus:       bonus,
		LiquidationCloseFactor: closeFactor,
		InterestRate:           pc.InterestRate,
	}, nil
}

func printPools(ctx context.Context, store ports.PoolStore, console *notify.Console) {
	list, err := store.ListPools(ctx)
	if err != nil {
		slog.Warn("failed to list pools", "err", err)
		return
	}
	console.PrintPools(list)
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
