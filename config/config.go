package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del daemon de lending.
type Config struct {
	Engine  EngineConfig          `yaml:"engine"`
	Pools   map[string]PoolConfig `yaml:"pools"` // keyed por símbolo del asset
	Oracle  OracleConfig          `yaml:"oracle"`
	Monitor MonitorConfig         `yaml:"monitor"`
	Storage StorageConfig         `yaml:"storage"`
	Log     LogConfig             `yaml:"log"`
}

// EngineConfig controla los parámetros globales del engine.
type EngineConfig struct {
	MaxPriceAgeSeconds int    `yaml:"max_price_age_seconds"` // edad máxima de una cotización
	MinHealthFactor    string `yaml:"min_health_factor"`     // "1" salvo protocolo conservador
	Authority          string `yaml:"authority"`             // cuenta admin de los pools
}

// PoolConfig son los parámetros de riesgo de un pool, como decimales en texto
// para no perder precisión al parsear YAML.
type PoolConfig struct {
	LiquidationThreshold   string  `yaml:"liquidation_threshold"`
	MaxLTV                 string  `yaml:"max_ltv"`
	LiquidationBonus       string  `yaml:"liquidation_bonus"`
	LiquidationCloseFactor string  `yaml:"liquidation_close_factor"`
	InterestRate           float64 `yaml:"interest_rate"` // anual, compounding continuo
}

// OracleConfig contiene el endpoint de precios y el mapeo asset -> feed id.
type OracleConfig struct {
	BaseURL string            `yaml:"base_url"`
	Feeds   map[string]string `yaml:"feeds"`
	Static  bool              `yaml:"static"` // true usa el oracle en memoria (tests, demos)
}

// MonitorConfig controla el loop de escaneo de riesgo.
type MonitorConfig struct {
	IntervalSeconds int    `yaml:"interval_seconds"`
	Workers         int    `yaml:"workers"`
	AutoLiquidate   bool   `yaml:"auto_liquidate"`
	Liquidator      string `yaml:"liquidator"` // cuenta que ejecuta las liquidaciones automáticas
}

// StorageConfig controla dónde se persiste el estado.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, ":memory:", o "memory" para el store sin SQL
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// MaxPriceAge devuelve la edad máxima de cotización como time.Duration.
func (c *Config) MaxPriceAge() time.Duration {
	return time.Duration(c.Engine.MaxPriceAgeSeconds) * time.Second
}

// ScanInterval devuelve el intervalo de escaneo como time.Duration.
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Monitor.IntervalSeconds) * time.Second
}

// Validate comprueba que los decimales de los pools parseen y estén en rango.
func (c *Config) Validate() error {
	if _, err := decimal.NewFromString(c.Engine.MinHealthFactor); err != nil {
		return fmt.Errorf("engine.min_health_factor %q: %w", c.Engine.MinHealthFactor, err)
	}
	for asset, pool := range c.Pools {
		for name, raw := range map[string]string{
			"liquidation_threshold":    pool.LiquidationThreshold,
			"max_ltv":                  pool.MaxLTV,
			"liquidation_bonus":        pool.LiquidationBonus,
			"liquidation_close_factor": pool.LiquidationCloseFactor,
		} {
			d, err := decimal.NewFromString(raw)
			if err != nil {
				return fmt.Errorf("pool %s: %s %q: %w", asset, name, raw, err)
			}
			if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(1)) {
				return fmt.Errorf("pool %s: %s %q fuera de [0,1]", asset, name, raw)
			}
		}
		if pool.InterestRate < 0 {
			return fmt.Errorf("pool %s: interest_rate negativo", asset)
		}
	}
	if !c.Oracle.Static {
		for asset := range c.Pools {
			if c.Oracle.Feeds[asset] == "" {
				return fmt.Errorf("pool %s: sin feed id en oracle.feeds", asset)
			}
		}
	}
	return nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("ORACLE_BASE_URL"); v != "" {
		cfg.Oracle.BaseURL = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Engine.MaxPriceAgeSeconds <= 0 {
		cfg.Engine.MaxPriceAgeSeconds = 60
	}
	if cfg.Engine.MinHealthFactor == "" {
		cfg.Engine.MinHealthFactor = "1"
	}
	if cfg.Engine.Authority == "" {
		cfg.Engine.Authority = "admin"
	}
	if cfg.Monitor.IntervalSeconds <= 0 {
		cfg.Monitor.IntervalSeconds = 30
	}
	if cfg.Oracle.BaseURL == "" {
		cfg.Oracle.BaseURL = "https://hermes.pyth.network"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "lendpool.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
