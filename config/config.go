package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Documented per-request limits of the two data sources. These are source
// contracts, not tuning knobs, so they double as the config defaults.
const (
	// DefaultPageLimit is the maximum instruments-info page size.
	DefaultPageLimit = 1000
	// DefaultSymbolBatchSize is the per-request symbol ceiling of the
	// batched ticker/funding endpoints.
	DefaultSymbolBatchSize = 10
	// DefaultMarketBatchSize is the per-request id ceiling of the market
	// data provider, kept low to respect its per-minute call budget.
	DefaultMarketBatchSize = 30
)

type Config struct {
	Fundingflow FundingflowConfig `yaml:"fundingflow"`
	Reader      ReaderConfig      `yaml:"reader"`
	Source      SourceConfig      `yaml:"source"`
	Ranking     RankingConfig     `yaml:"ranking"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type FundingflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ReaderConfig struct {
	Timeout        time.Duration        `yaml:"timeout"`
	UserAgent      string               `yaml:"user_agent"`
	Retry          RetryConfig          `yaml:"retry"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
}

type RetryConfig struct {
	MaxAttempts        int           `yaml:"max_attempts"`
	RateLimitBaseDelay time.Duration `yaml:"rate_limit_base_delay"`
	TransientDelay     time.Duration `yaml:"transient_delay"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

type SourceConfig struct {
	Bybit     BybitSourceConfig     `yaml:"bybit"`
	Coingecko CoingeckoSourceConfig `yaml:"coingecko"`
}

type BybitSourceConfig struct {
	URL               string  `yaml:"url"`
	Category          string  `yaml:"category"`
	SettlementCoin    string  `yaml:"settlement_coin"`
	PageLimit         int     `yaml:"page_limit"`
	BatchSize         int     `yaml:"batch_size"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
}

type CoingeckoSourceConfig struct {
	URL           string        `yaml:"url"`
	BatchSize     int           `yaml:"batch_size"`
	BatchInterval time.Duration `yaml:"batch_interval"`
}

type RankingConfig struct {
	Top             int     `yaml:"top"`
	MinMarketCapUSD float64 `yaml:"min_market_cap_usd"`
	SkipMarketCap   bool    `yaml:"skip_market_cap"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// DefaultConfig returns a configuration that works without any config file,
// pointing at the public production endpoints.
func DefaultConfig() Config {
	return Config{
		Fundingflow: FundingflowConfig{
			Name:    "fundingflow",
			Version: "1.0.0",
		},
		Reader: ReaderConfig{
			Timeout:   15 * time.Second,
			UserAgent: "fundingflow/1.0.0",
			Retry: RetryConfig{
				MaxAttempts:        3,
				RateLimitBaseDelay: 30 * time.Second,
				TransientDelay:     2 * time.Second,
			},
			ConnectionPool: ConnectionPoolConfig{
				MaxIdleConns:    10,
				MaxConnsPerHost: 10,
				IdleConnTimeout: 90 * time.Second,
			},
		},
		Source: SourceConfig{
			Bybit: BybitSourceConfig{
				URL:               "https://api.bybit.com",
				Category:          "linear",
				SettlementCoin:    "USDT",
				PageLimit:         DefaultPageLimit,
				BatchSize:         DefaultSymbolBatchSize,
				RequestsPerSecond: 5,
				BurstSize:         1,
			},
			Coingecko: CoingeckoSourceConfig{
				URL:           "https://api.coingecko.com/api/v3",
				BatchSize:     DefaultMarketBatchSize,
				BatchInterval: 2 * time.Second,
			},
		},
		Ranking: RankingConfig{
			Top:             15,
			MinMarketCapUSD: 100_000_000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
			MaxAge: 7,
		},
	}
}

// LoadConfig reads the configuration file at path over the defaults, then
// applies environment variable overrides. A missing file is not an error;
// the defaults plus environment are enough to run.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case os.IsNotExist(err):
			// fall through to defaults
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	applyEnvOverrides(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("BYBIT_REST")); v != "" {
		cfg.Source.Bybit.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("COINGECKO_REST")); v != "" {
		cfg.Source.Coingecko.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("MARKET_CAP_MIN_USD")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.Ranking.MinMarketCapUSD = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("HTTP_TIMEOUT")); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			cfg.Reader.Timeout = time.Duration(secs * float64(time.Second))
		}
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Fundingflow.Name == "" {
		return fmt.Errorf("fundingflow.name is required")
	}
	if cfg.Reader.Timeout <= 0 {
		return fmt.Errorf("reader.timeout must be greater than 0")
	}
	if cfg.Reader.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("reader.retry.max_attempts must be greater than 0")
	}
	if cfg.Source.Bybit.URL == "" {
		return fmt.Errorf("source.bybit.url is required")
	}
	if cfg.Source.Bybit.PageLimit <= 0 {
		return fmt.Errorf("source.bybit.page_limit must be greater than 0")
	}
	if cfg.Source.Bybit.BatchSize <= 0 {
		return fmt.Errorf("source.bybit.batch_size must be greater than 0")
	}
	if cfg.Source.Bybit.SettlementCoin == "" {
		return fmt.Errorf("source.bybit.settlement_coin is required")
	}
	if cfg.Source.Coingecko.URL == "" {
		return fmt.Errorf("source.coingecko.url is required")
	}
	if cfg.Source.Coingecko.BatchSize <= 0 {
		return fmt.Errorf("source.coingecko.batch_size must be greater than 0")
	}
	if cfg.Ranking.Top <= 0 {
		return fmt.Errorf("ranking.top must be greater than 0")
	}
	if cfg.Ranking.MinMarketCapUSD < 0 {
		return fmt.Errorf("ranking.min_market_cap_usd must not be negative")
	}
	return nil
}
