package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Collector CollectorConfig `mapstructure:"collector"`
	Exchanges ExchangesConfig `mapstructure:"exchanges"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Log       LogConfig       `mapstructure:"log"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
}

type AppConfig struct {
	Environment string `mapstructure:"environment"` // "dev" or "prod"
}

// CollectorConfig drives the snapshot cycles.
type CollectorConfig struct {
	Assets    []string `mapstructure:"assets"`     // tracked P2P assets, e.g. USDT, BTC
	Fiats     []string `mapstructure:"fiats"`      // tracked P2P fiats, e.g. USD, EUR
	SpotBase  string   `mapstructure:"spot_base"`  // optional spot filter
	SpotQuote string   `mapstructure:"spot_quote"` // optional spot filter

	P2PInterval  time.Duration `mapstructure:"p2p_interval"`
	SpotInterval time.Duration `mapstructure:"spot_interval"`

	Concurrency  int           `mapstructure:"concurrency"` // 0 = collectors + 1
	CycleTimeout time.Duration `mapstructure:"cycle_timeout"`
	FailFast     bool          `mapstructure:"fail_fast"`

	ChunkSize      int           `mapstructure:"chunk_size"`
	InsertAttempts int           `mapstructure:"insert_attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
}

type ExchangesConfig struct {
	Binance ExchangeConfig `mapstructure:"binance"`
	Bybit   ExchangeConfig `mapstructure:"bybit"`
	Bitget  ExchangeConfig `mapstructure:"bitget"`
	Mexc    ExchangeConfig `mapstructure:"mexc"`
}

type ExchangeConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	BaseURL  string   `mapstructure:"base_url"`
	P2PURL   string   `mapstructure:"p2p_url"`
	Fiats    []string `mapstructure:"fiats"`
	PageSize int      `mapstructure:"page_size"`

	APIKey     string `mapstructure:"api_key"`
	APISecret  string `mapstructure:"api_secret"`
	Passphrase string `mapstructure:"passphrase"`

	WS WSConfig `mapstructure:"ws"`
}

type WSConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	URL      string        `mapstructure:"url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	MaxStale time.Duration `mapstructure:"max_stale"` // tickers older than this fall back to REST
}

type HTTPConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxRetries    int           `mapstructure:"max_retries"`
	BackoffBase   time.Duration `mapstructure:"backoff_base"`
	BackoffMax    time.Duration `mapstructure:"backoff_max"`
	RetryStatuses []int         `mapstructure:"retry_statuses"`
	RateLimit     float64       `mapstructure:"rate_limit"` // requests per second per client
	Burst         int           `mapstructure:"burst"`
	UserAgent     string        `mapstructure:"user_agent"`
}

type CacheConfig struct {
	TTL                    time.Duration `mapstructure:"ttl"`
	SymbolRefreshInterval  time.Duration `mapstructure:"symbol_refresh_interval"`
	PaymentRefreshInterval time.Duration `mapstructure:"payment_refresh_interval"`
	FailureBackoff         time.Duration `mapstructure:"failure_backoff"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

type AnalysisConfig struct {
	MinProfitPercent float64                  `mapstructure:"min_profit_percent"`
	MaxResults       int                      `mapstructure:"max_results"`
	Transfers        map[string]TransferRoute `mapstructure:"transfers"` // key: "<buy>_to_<sell>", lower case
}

type TransferRoute struct {
	Network  string  `mapstructure:"network"`
	FixedFee float64 `mapstructure:"fixed_fee"`
}

// Options defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"

	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

// Load loads application configuration using Viper.
// It reads from config.yaml and overrides with environment variables.
func Load() *Config {
	cfg, err := LoadFrom(configDir())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// LoadFrom reads config.yaml from dir. A missing file is tolerated so the
// service can run on defaults plus environment variables alone.
func LoadFrom(dir string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load(filepath.Join(dir, "..", ".env"))

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	// Support environment variables with dot notation (e.g., POSTGRES_HOST)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Log.Environment == "" {
		cfg.Log.Environment = cfg.App.Environment
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the collector cannot run with.
func (c *Config) Validate() error {
	if len(c.Collector.Assets) == 0 {
		return errors.New("collector.assets must not be empty")
	}
	if len(c.Collector.Fiats) == 0 {
		return errors.New("collector.fiats must not be empty")
	}
	if c.Collector.P2PInterval <= 0 || c.Collector.SpotInterval <= 0 {
		return errors.New("collector intervals must be positive")
	}
	if c.Collector.ChunkSize <= 0 {
		return errors.New("collector.chunk_size must be positive")
	}
	return nil
}

func configDir() string {
	if dir := os.Getenv("CONFIG_PATH"); dir != "" {
		return dir
	}
	ex, _ := os.Executable()
	if strings.Contains(ex, "go-build") {
		pwd, _ := os.Getwd()
		return filepath.Join(pwd, "../../config")
	}
	return filepath.Join(filepath.Dir(ex), "../config")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "dev")

	v.SetDefault("collector.assets", []string{"USDT", "BTC", "ETH"})
	v.SetDefault("collector.fiats", []string{"USD", "EUR"})
	v.SetDefault("collector.p2p_interval", 5*time.Minute)
	v.SetDefault("collector.spot_interval", 5*time.Minute)
	v.SetDefault("collector.cycle_timeout", 4*time.Minute)
	v.SetDefault("collector.chunk_size", 1000)
	v.SetDefault("collector.insert_attempts", 3)
	v.SetDefault("collector.retry_delay", 200*time.Millisecond)

	v.SetDefault("exchanges.binance.enabled", true)
	v.SetDefault("exchanges.binance.base_url", "https://api.binance.com")
	v.SetDefault("exchanges.binance.p2p_url", "https://p2p.binance.com")
	v.SetDefault("exchanges.binance.page_size", 20)
	v.SetDefault("exchanges.bybit.enabled", true)
	v.SetDefault("exchanges.bybit.base_url", "https://api.bybit.com")
	v.SetDefault("exchanges.bybit.p2p_url", "https://api2.bybit.com")
	v.SetDefault("exchanges.bybit.page_size", 20)
	v.SetDefault("exchanges.bybit.ws.url", "wss://stream.bybit.com/v5/public/spot")
	v.SetDefault("exchanges.bybit.ws.timeout", 10*time.Second)
	v.SetDefault("exchanges.bybit.ws.max_stale", time.Minute)
	v.SetDefault("exchanges.bitget.enabled", true)
	v.SetDefault("exchanges.bitget.base_url", "https://api.bitget.com")
	v.SetDefault("exchanges.bitget.p2p_url", "https://api.bitget.com")
	v.SetDefault("exchanges.bitget.page_size", 20)
	v.SetDefault("exchanges.mexc.enabled", true)
	v.SetDefault("exchanges.mexc.base_url", "https://api.mexc.com")
	v.SetDefault("exchanges.mexc.p2p_url", "https://otc.mexc.com/api")
	v.SetDefault("exchanges.mexc.page_size", 20)

	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_base", 500*time.Millisecond)
	v.SetDefault("http.backoff_max", 10*time.Second)
	v.SetDefault("http.retry_statuses", []int{429, 500, 502, 503, 504})
	v.SetDefault("http.rate_limit", 5.0)
	v.SetDefault("http.burst", 5)
	v.SetDefault("http.user_agent", "p2pcollector/1.0")

	v.SetDefault("cache.ttl", time.Hour)
	v.SetDefault("cache.symbol_refresh_interval", 6*time.Hour)
	v.SetDefault("cache.payment_refresh_interval", 12*time.Hour)
	v.SetDefault("cache.failure_backoff", 30*time.Second)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.lock_ttl", 10*time.Minute)

	v.SetDefault("analysis.min_profit_percent", 2.0)
	v.SetDefault("analysis.max_results", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 7)
	v.SetDefault("log.compress", true)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.timezone", "UTC")
	v.SetDefault("postgres.max_open_conns", 20)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("postgres.ssm_prefix", "/p2pcollector/db/")
}
