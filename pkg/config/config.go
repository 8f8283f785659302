package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type WatchItem struct {
	Symbol     string `yaml:"symbol" validate:"required"`
	AssetClass string `yaml:"asset_class" default:"equity" validate:"oneof=equity etf crypto forex"`
}

type Config struct {
	Environment string `yaml:"environment" default:"dev" validate:"required"`
	Server      struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		CORS            bool          `yaml:"cors" default:"true"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	RateLimit struct {
		Capacity     int     `yaml:"capacity" default:"30" validate:"gte=1"`
		RefillPerSec float64 `yaml:"refill_per_sec" default:"1" validate:"gt=0"`
	} `yaml:"rate_limit"`
	Quotes struct {
		Providers    []string      `yaml:"providers" default:"[\"alphavantage\",\"finnhub\"]" validate:"dive,oneof=alphavantage finnhub"`
		FetchTimeout time.Duration `yaml:"fetch_timeout" default:"5s"`
		RetryDelay   time.Duration `yaml:"retry_delay" default:"250ms"`
		BatchLimit   int           `yaml:"batch_limit" default:"20" validate:"gte=1,lte=100"`
		Workers      int           `yaml:"workers" default:"4" validate:"gte=1,lte=32"`
		AlphaVantage struct {
			BaseURL           string `yaml:"base_url" default:"https://www.alphavantage.co/query"`
			APIKey            string `yaml:"api_key"`
			RequestsPerMinute int    `yaml:"requests_per_minute" default:"5" validate:"gte=1"`
		} `yaml:"alphavantage"`
		Finnhub struct {
			BaseURL           string `yaml:"base_url" default:"https://finnhub.io/api/v1"`
			APIKey            string `yaml:"api_key"`
			RequestsPerMinute int    `yaml:"requests_per_minute" default:"60" validate:"gte=1"`
		} `yaml:"finnhub"`
	} `yaml:"quotes"`
	Fallback struct {
		Enabled bool  `yaml:"enabled" default:"true"`
		Seed    int64 `yaml:"seed"`
	} `yaml:"fallback"`
	Cache struct {
		Backend       string        `yaml:"backend" default:"memory" validate:"oneof=memory redis layered"`
		TTL           time.Duration `yaml:"ttl" default:"60s"`
		MemoryMaxSize int           `yaml:"memory_max_size" default:"1000" validate:"gte=1"`
		MemoryTTL     time.Duration `yaml:"memory_ttl" default:"10s"`
		MemoryCleanup time.Duration `yaml:"memory_cleanup" default:"1m" validate:"gt=0"`
		Redis         struct {
			Host         string        `yaml:"host" default:"localhost"`
			Port         int           `yaml:"port" default:"6379"`
			Password     string        `yaml:"password"`
			DB           int           `yaml:"db"`
			Prefix       string        `yaml:"prefix" default:"finsight"`
			PoolSize     int           `yaml:"pool_size" default:"10" validate:"gte=1"`
			MinIdleConns int           `yaml:"min_idle_conns" default:"2" validate:"gte=0"`
			PoolTimeout  time.Duration `yaml:"pool_timeout" default:"30s"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	History struct {
		Store        string        `yaml:"store" default:"none" validate:"oneof=none sqlite clickhouse"`
		Transport    string        `yaml:"transport" default:"direct" validate:"oneof=direct kafka"`
		SQLitePath   string        `yaml:"sqlite_path" default:"data/finsight.db"`
		BufferSize   int           `yaml:"buffer_size" default:"1000" validate:"gte=1"`
		MinInterval  time.Duration `yaml:"min_interval" default:"1s"`
		RetryBackoff time.Duration `yaml:"retry_backoff" default:"500ms"`
	} `yaml:"history"`
	Kafka struct {
		Brokers      []string `yaml:"brokers" default:"[\"localhost:9092\"]"`
		Topic        string   `yaml:"topic" default:"finsight.insights"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled"`
			GroupID    string        `yaml:"group_id" default:"finsight-history"`
			Workers    int           `yaml:"workers" default:"4"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"finsight.insights.dlq"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"finsight"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Watchlist struct {
		Enabled bool        `yaml:"enabled"`
		Cron    string      `yaml:"cron" default:"0 */5 * * * *"`
		Items   []WatchItem `yaml:"items" validate:"dive"`
	} `yaml:"watchlist"`
	Stream struct {
		MinInterval time.Duration `yaml:"min_interval" default:"5s"`
		MaxInterval time.Duration `yaml:"max_interval" default:"5m"`
		MaxSymbols  int           `yaml:"max_symbols" default:"10" validate:"gte=1"`
	} `yaml:"stream"`
}

// Default returns a config populated from the default tags only.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file. Unset fields take their
// default values.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Defaults go in first so explicit false/zero values in the file win.
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	for i := range c.Watchlist.Items {
		if err := defaults.Set(&c.Watchlist.Items[i]); err != nil {
			return nil, fmt.Errorf("apply defaults: %w", err)
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

// LoadWithEnv loads a .env file if present, then the YAML config, and
// overrides it with environment variables. API keys should come from here.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("ALPHAVANTAGE_API_KEY"); v != "" {
		c.Quotes.AlphaVantage.APIKey = v
	}
	if v := os.Getenv("FINNHUB_API_KEY"); v != "" {
		c.Quotes.Finnhub.APIKey = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("CACHE_BACKEND"); v != "" {
		c.Cache.Backend = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Cache.Redis.Host = host
		if ok {
			if p, err := strconv.Atoi(port); err == nil {
				c.Cache.Redis.Port = p
			}
		}
	}
	if v := os.Getenv("HISTORY_STORE"); v != "" {
		c.History.Store = v
	}
	if v := os.Getenv("HISTORY_TRANSPORT"); v != "" {
		c.History.Transport = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("WATCHLIST"); v != "" {
		c.Watchlist.Items = c.Watchlist.Items[:0]
		for _, s := range strings.Split(v, ",") {
			sym, class, ok := strings.Cut(strings.TrimSpace(s), "@")
			if sym == "" {
				continue
			}
			if !ok {
				class = "equity"
			}
			c.Watchlist.Items = append(c.Watchlist.Items, WatchItem{Symbol: sym, AssetClass: class})
		}
		c.Watchlist.Enabled = len(c.Watchlist.Items) > 0
	}
}

var validate = validator.New()

// Validate checks struct tags and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return err
	}

	if c.Quotes.FetchTimeout <= 0 {
		return fmt.Errorf("quotes.fetch_timeout must be positive")
	}
	if len(c.Quotes.Providers) == 0 && !c.Fallback.Enabled {
		return fmt.Errorf("quotes.providers is empty and fallback is disabled: nothing can answer")
	}
	if c.History.Transport == "kafka" {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required when history.transport is 'kafka'")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("kafka.topic is required when history.transport is 'kafka'")
		}
	}
	if c.History.Transport == "kafka" && c.Kafka.Consumer.Enabled && c.History.Store == "none" {
		return fmt.Errorf("kafka.consumer.enabled needs history.store to persist into")
	}
	if c.History.Store == "sqlite" && c.History.SQLitePath == "" {
		return fmt.Errorf("history.sqlite_path is required for the sqlite store")
	}
	if c.Stream.MinInterval > c.Stream.MaxInterval {
		return fmt.Errorf("stream.min_interval must not exceed stream.max_interval")
	}
	if c.Watchlist.Enabled && len(c.Watchlist.Items) == 0 {
		return fmt.Errorf("watchlist.items cannot be empty when the watchlist is enabled")
	}
	return nil
}

// HasProvider reports whether name is among the configured providers.
func (c *Config) HasProvider(name string) bool {
	for _, p := range c.Quotes.Providers {
		if p == name {
			return true
		}
	}
	return false
}
