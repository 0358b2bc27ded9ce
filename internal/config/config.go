// Package config defines all configuration for the client.
// Config is loaded from a YAML file with sensitive fields overridable via
// MB_* environment variables, or constructed in code starting from Default().
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	BaseURL  string          `mapstructure:"base_url"`
	WSURL    string          `mapstructure:"ws_url"`
	Login    string          `mapstructure:"login"`
	Password string          `mapstructure:"password"`
	HTTP     HTTPConfig      `mapstructure:"http"`
	Breaker  BreakerConfig   `mapstructure:"breaker"`
	Rate     RateLimitConfig `mapstructure:"rate_limit"`
	Cache    CacheConfig     `mapstructure:"cache"`
	WS       WSConfig        `mapstructure:"ws"`
	Tracker  TrackerConfig   `mapstructure:"tracker"`
	Logging  LoggingConfig   `mapstructure:"logging"`
}

// HTTPConfig tunes the request pipeline: per-request deadline and the retry
// schedule. Delay for attempt n is min(max_delay, base_delay·multiplier^(n-1))
// plus uniform jitter in [0, jitter_max); a larger Retry-After header wins.
type HTTPConfig struct {
	Timeout           time.Duration `mapstructure:"timeout"`
	RetryCount        int           `mapstructure:"retry_count"` // attempts beyond the first
	RetryBaseDelay    time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay     time.Duration `mapstructure:"retry_max_delay"`
	RetryMultiplier   float64       `mapstructure:"retry_multiplier"`
	RetryJitterMax    time.Duration `mapstructure:"retry_jitter_max"`
	RespectRetryAfter bool          `mapstructure:"respect_retry_after"`
}

// BreakerConfig tunes the circuit breaker. The breaker opens when at least
// MinimumThroughput requests were seen in the sampling interval and at least
// FailureRatio of them failed; it stays open for BreakDuration, then allows a
// single half-open probe.
type BreakerConfig struct {
	MinimumThroughput uint32        `mapstructure:"minimum_throughput"`
	FailureRatio      float64       `mapstructure:"failure_ratio"`
	BreakDuration     time.Duration `mapstructure:"break_duration"`
	SamplingInterval  time.Duration `mapstructure:"sampling_interval"`
}

// RateLimitConfig sets the hierarchical limiter's bucket sizes.
//
//   - GlobalPerMinute: hard cap across every request (sliding minute).
//   - TradingPerSecond: order placement and cancellation.
//   - PublicPerSecond: unauthenticated market data, per endpoint.
//   - ListOrdersPerSecond: order listing.
//   - WarnUtilization: fraction of the global cap that fires a warning event.
type RateLimitConfig struct {
	GlobalPerMinute     int     `mapstructure:"global_per_minute"`
	TradingPerSecond    int     `mapstructure:"trading_per_second"`
	PublicPerSecond     int     `mapstructure:"public_per_second"`
	ListOrdersPerSecond int     `mapstructure:"list_orders_per_second"`
	WarnUtilization     float64 `mapstructure:"warn_utilization"`
}

// CacheConfig sets TTLs for the public-endpoint cache. NegativeTTL holds
// null results for a shorter window; zero disables negative caching.
type CacheConfig struct {
	TickerTTL    time.Duration `mapstructure:"ticker_ttl"`
	OrderBookTTL time.Duration `mapstructure:"orderbook_ttl"`
	SymbolTTL    time.Duration `mapstructure:"symbol_ttl"`
	NegativeTTL  time.Duration `mapstructure:"negative_ttl"`
}

// WSConfig tunes the WebSocket connection lifecycle.
type WSConfig struct {
	KeepAliveInterval     time.Duration `mapstructure:"keep_alive_interval"`
	KeepAliveTimeout      time.Duration `mapstructure:"keep_alive_timeout"`
	InitialReconnectDelay time.Duration `mapstructure:"initial_reconnect_delay"`
	MaxReconnectDelay     time.Duration `mapstructure:"max_reconnect_delay"`
	MaxReconnectAttempts  int           `mapstructure:"max_reconnect_attempts"` // 0 = unlimited
	StreamBuffer          int           `mapstructure:"stream_buffer"`          // per-subscription channel depth
}

// TrackerConfig tunes the order lifecycle tracker.
type TrackerConfig struct {
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	MinPollInterval    time.Duration `mapstructure:"min_poll_interval"`
	MaxPollInterval    time.Duration `mapstructure:"max_poll_interval"`
	TrackingTimeout    time.Duration `mapstructure:"tracking_timeout"`
	CompletedRetention time.Duration `mapstructure:"completed_retention"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the configuration matching the exchange's published limits
// and the client's documented defaults.
func Default() Config {
	return Config{
		BaseURL: "https://api.mercadobitcoin.net/api/v4",
		WSURL:   "wss://ws.mercadobitcoin.net/ws",
		HTTP: HTTPConfig{
			Timeout:           30 * time.Second,
			RetryCount:        2, // 3 attempts total
			RetryBaseDelay:    time.Second,
			RetryMaxDelay:     30 * time.Second,
			RetryMultiplier:   2,
			RetryJitterMax:    250 * time.Millisecond,
			RespectRetryAfter: true,
		},
		Breaker: BreakerConfig{
			MinimumThroughput: 4,
			FailureRatio:      0.5,
			BreakDuration:     30 * time.Second,
			SamplingInterval:  60 * time.Second,
		},
		Rate: RateLimitConfig{
			GlobalPerMinute:     500,
			TradingPerSecond:    3,
			PublicPerSecond:     1,
			ListOrdersPerSecond: 10,
			WarnUtilization:     0.8,
		},
		Cache: CacheConfig{
			TickerTTL:    2 * time.Second,
			OrderBookTTL: time.Second,
			SymbolTTL:    5 * time.Minute,
			NegativeTTL:  500 * time.Millisecond,
		},
		WS: WSConfig{
			KeepAliveInterval:     15 * time.Second,
			KeepAliveTimeout:      5 * time.Second,
			InitialReconnectDelay: time.Second,
			MaxReconnectDelay:     30 * time.Second,
			MaxReconnectAttempts:  0,
			StreamBuffer:          256,
		},
		Tracker: TrackerConfig{
			PollInterval:       time.Second,
			MinPollInterval:    time.Second,
			MaxPollInterval:    30 * time.Second,
			TrackingTimeout:    24 * time.Hour,
			CompletedRetention: 5 * time.Minute,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads config from a YAML file with env var overrides, on top of
// Default(). Sensitive fields use env vars: MB_LOGIN, MB_PASSWORD.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("MB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override sensitive fields from env
	if login := os.Getenv("MB_LOGIN"); login != "" {
		cfg.Login = login
	}
	if pass := os.Getenv("MB_PASSWORD"); pass != "" {
		cfg.Password = pass
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.HTTP.RetryCount < 0 {
		return fmt.Errorf("http.retry_count must be >= 0")
	}
	if c.HTTP.RetryMultiplier < 1 {
		return fmt.Errorf("http.retry_multiplier must be >= 1")
	}
	if c.Breaker.FailureRatio <= 0 || c.Breaker.FailureRatio > 1 {
		return fmt.Errorf("breaker.failure_ratio must be in (0, 1]")
	}
	if c.Rate.GlobalPerMinute <= 0 {
		return fmt.Errorf("rate_limit.global_per_minute must be > 0")
	}
	if c.Rate.WarnUtilization <= 0 || c.Rate.WarnUtilization >= 1 {
		return fmt.Errorf("rate_limit.warn_utilization must be in (0, 1)")
	}
	if c.WS.KeepAliveTimeout >= c.WS.KeepAliveInterval {
		return fmt.Errorf("ws.keep_alive_timeout must be < ws.keep_alive_interval")
	}
	if c.Tracker.MinPollInterval > c.Tracker.MaxPollInterval {
		return fmt.Errorf("tracker.min_poll_interval must be <= tracker.max_poll_interval")
	}
	return nil
}
