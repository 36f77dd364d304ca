package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Valuation  ValuationConfig  `yaml:"valuation" mapstructure:"valuation"`
	Simulation SimulationConfig `yaml:"simulation" mapstructure:"simulation"`
	Metrics    MetricsConfig    `yaml:"metrics" mapstructure:"metrics"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend for ledgers and simulation runs.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite or postgres
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"` // postgres pool
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ValuationConfig tunes the deterministic engine.
type ValuationConfig struct {
	QuadratureSteps int     `yaml:"quadrature_steps" mapstructure:"quadrature_steps"`
	MaxDiscountRate float64 `yaml:"max_discount_rate" mapstructure:"max_discount_rate"`
}

// SimulationConfig configures Monte Carlo runs.
type SimulationConfig struct {
	Iterations           int     `yaml:"iterations" mapstructure:"iterations"`
	Seed                 uint64  `yaml:"seed" mapstructure:"seed"`
	Workers              int     `yaml:"workers" mapstructure:"workers"` // 0 = GOMAXPROCS
	ProgressIntervalSecs int     `yaml:"progress_interval_secs" mapstructure:"progress_interval_secs"`
	Correlation          float64 `yaml:"correlation" mapstructure:"correlation"`
}

// MetricsConfig configures the Prometheus textfile export.
type MetricsConfig struct {
	TextfilePath string `yaml:"textfile_path" mapstructure:"textfile_path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RNPV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "rnpv.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("valuation.quadrature_steps", 12)
	v.SetDefault("valuation.max_discount_rate", 1.0)
	v.SetDefault("simulation.iterations", 10000)
	v.SetDefault("simulation.seed", 42)
	v.SetDefault("simulation.workers", 0)
	v.SetDefault("simulation.progress_interval_secs", 5)
	v.SetDefault("simulation.correlation", 0.0)
	v.SetDefault("metrics.textfile_path", "")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes are
// "value", "simulate" and "store".
func (c *Config) Validate(mode string) error {
	var errs []string

	if c.Valuation.QuadratureSteps < 12 {
		errs = append(errs, "valuation.quadrature_steps must be >= 12")
	}
	if c.Valuation.MaxDiscountRate <= 0 {
		errs = append(errs, "valuation.max_discount_rate must be > 0")
	}

	switch mode {
	case "value":
	case "simulate":
		if c.Simulation.Iterations < 1 {
			errs = append(errs, "simulation.iterations must be >= 1")
		}
		if c.Simulation.Workers < 0 {
			errs = append(errs, "simulation.workers must be >= 0")
		}
		if c.Simulation.ProgressIntervalSecs < 0 {
			errs = append(errs, "simulation.progress_interval_secs must be >= 0")
		}
		if c.Simulation.Correlation < -1 || c.Simulation.Correlation > 1 {
			errs = append(errs, "simulation.correlation must be between -1 and 1")
		}
	case "store":
		switch c.Store.Driver {
		case "sqlite", "postgres":
		default:
			errs = append(errs, "store.driver must be sqlite or postgres")
		}
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
		if c.Store.MaxConns < 0 || c.Store.MinConns < 0 {
			errs = append(errs, "store.max_conns and store.min_conns must be >= 0")
		}
		if c.Store.MaxConns > 0 && c.Store.MinConns > c.Store.MaxConns {
			errs = append(errs, "store.min_conns must not exceed store.max_conns")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
