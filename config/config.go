package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Order type preferences accepted by TradingConfig.OrderType.
const (
	OrderTypeMaker = "maker"
	OrderTypeTaker = "taker"
)

// TradingConfig holds every tunable parameter of the momentum pipeline for a
// single asset. It is built once and shared read-only by all components.
type TradingConfig struct {
	Asset                         string  `mapstructure:"asset"`
	PriceMovementThreshold        float64 `mapstructure:"price_movement_threshold"` // fraction, e.g. 0.01
	PriceResolutionMinutes        int     `mapstructure:"price_resolution_minutes"`
	MomentumLookbackWindowMinutes int     `mapstructure:"momentum_lookback_window_minutes"`
	MomentumStdThreshold          float64 `mapstructure:"momentum_std_threshold"`
	OrderSizeFactor               float64 `mapstructure:"order_size_factor"`
	MaxOrderSizeMultiplier        float64 `mapstructure:"max_order_size_multiplier"`
	MakerFeeRate                  float64 `mapstructure:"maker_fee_rate"`
	TakerFeeRate                  float64 `mapstructure:"taker_fee_rate"`
	PriceValidationThreshold      float64 `mapstructure:"price_validation_threshold"`
	PriceAdjustmentOffset         float64 `mapstructure:"price_adjustment_offset"` // price units

	// OrderType selects passive (maker) or aggressive (taker) execution.
	OrderType string `mapstructure:"order_type"`
	// QuantityStep is the lot increment accepted by the exchange; 0 disables rounding.
	QuantityStep float64 `mapstructure:"quantity_step"`
	// MinQuantity below which no order is placed; 0 disables the check.
	MinQuantity float64 `mapstructure:"min_quantity"`
}

// MomentumHistoryWindowMinutes is the detector's warm-up capacity, twice the lookback.
func (c TradingConfig) MomentumHistoryWindowMinutes() int {
	return 2 * c.MomentumLookbackWindowMinutes
}

// LookbackCandles is the number of returns the z-score is computed over.
func (c TradingConfig) LookbackCandles() int {
	if c.PriceResolutionMinutes <= 0 {
		return 0
	}
	return c.MomentumLookbackWindowMinutes / c.PriceResolutionMinutes
}

func (c TradingConfig) HistoryCandles() int {
	if c.PriceResolutionMinutes <= 0 {
		return 0
	}
	return c.MomentumHistoryWindowMinutes() / c.PriceResolutionMinutes
}

func (c TradingConfig) Maker() bool {
	return c.OrderType == "" || strings.EqualFold(c.OrderType, OrderTypeMaker)
}

// Validate checks that all numeric fields are within sensible bounds.
// It returns the first encountered error, so a misconfiguration surfaces
// before any trading starts.
func (c *TradingConfig) Validate() error {
	if strings.TrimSpace(c.Asset) == "" || strings.HasPrefix(c.Asset, "<") {
		return errors.New("trading.asset must be set")
	}
	if !finite(c.PriceMovementThreshold) || c.PriceMovementThreshold < 0 || c.PriceMovementThreshold >= 1 {
		return fmt.Errorf("trading.price_movement_threshold (%f) must be in [0,1)", c.PriceMovementThreshold)
	}
	if c.PriceResolutionMinutes <= 0 {
		return errors.New("trading.price_resolution_minutes must be positive")
	}
	if c.MomentumLookbackWindowMinutes <= 0 {
		return errors.New("trading.momentum_lookback_window_minutes must be positive")
	}
	if c.MomentumLookbackWindowMinutes%c.PriceResolutionMinutes != 0 {
		return fmt.Errorf("trading.momentum_lookback_window_minutes (%d) must be a multiple of price_resolution_minutes (%d)",
			c.MomentumLookbackWindowMinutes, c.PriceResolutionMinutes)
	}
	// A sample standard deviation needs at least two returns.
	if c.LookbackCandles() < 2 {
		return fmt.Errorf("trading lookback covers %d candles, need at least 2", c.LookbackCandles())
	}
	if !finite(c.MomentumStdThreshold) || c.MomentumStdThreshold <= 0 {
		return fmt.Errorf("trading.momentum_std_threshold (%f) must be >0", c.MomentumStdThreshold)
	}
	if !finite(c.OrderSizeFactor) || c.OrderSizeFactor <= 0 {
		return fmt.Errorf("trading.order_size_factor (%f) must be >0", c.OrderSizeFactor)
	}
	if !finite(c.MaxOrderSizeMultiplier) || c.MaxOrderSizeMultiplier < 1 {
		return fmt.Errorf("trading.max_order_size_multiplier (%f) must be >=1", c.MaxOrderSizeMultiplier)
	}
	if !finite(c.MakerFeeRate) || c.MakerFeeRate < 0 || c.MakerFeeRate >= 1 {
		return fmt.Errorf("trading.maker_fee_rate (%f) must be in [0,1)", c.MakerFeeRate)
	}
	if !finite(c.TakerFeeRate) || c.TakerFeeRate < 0 || c.TakerFeeRate >= 1 {
		return fmt.Errorf("trading.taker_fee_rate (%f) must be in [0,1)", c.TakerFeeRate)
	}
	if !finite(c.PriceValidationThreshold) || c.PriceValidationThreshold <= 0 || c.PriceValidationThreshold >= 1 {
		return fmt.Errorf("trading.price_validation_threshold (%f) must be in (0,1)", c.PriceValidationThreshold)
	}
	if !finite(c.PriceAdjustmentOffset) || c.PriceAdjustmentOffset < 0 {
		return fmt.Errorf("trading.price_adjustment_offset (%f) cannot be negative", c.PriceAdjustmentOffset)
	}
	switch strings.ToLower(c.OrderType) {
	case "", OrderTypeMaker, OrderTypeTaker:
	default:
		return fmt.Errorf("trading.order_type %q must be %q or %q", c.OrderType, OrderTypeMaker, OrderTypeTaker)
	}
	if c.QuantityStep < 0 {
		return errors.New("trading.quantity_step cannot be negative")
	}
	if c.MinQuantity < 0 {
		return errors.New("trading.min_quantity cannot be negative")
	}
	return nil
}

// ExchangeConfig parameterises the resilient exchange client.
type ExchangeConfig struct {
	BaseURL                string  `mapstructure:"base_url"`
	APIPrefix              string  `mapstructure:"api_prefix"`
	OrderPath              string  `mapstructure:"order_path"`
	InitialBanSleepSeconds float64 `mapstructure:"initial_ban_sleep_seconds"`
	RequestTimeoutSeconds  float64 `mapstructure:"request_timeout_seconds"`
	MaxRetries             int     `mapstructure:"max_retries"`
	BackoffFactor          float64 `mapstructure:"backoff_factor"`
	TradeMode              string  `mapstructure:"trade_mode"`
	// RequestsPerSecond paces outbound attempts client-side; 0 = unlimited.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

func (c ExchangeConfig) BanSleep() time.Duration {
	return seconds(c.InitialBanSleepSeconds)
}

func (c ExchangeConfig) RequestTimeout() time.Duration {
	return seconds(c.RequestTimeoutSeconds)
}

// OrderURL joins base URL, versioned prefix and order path.
func (c ExchangeConfig) OrderURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(c.APIPrefix, "/") + "/" + strings.TrimLeft(c.OrderPath, "/")
}

func (c *ExchangeConfig) Validate() error {
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("exchange.base_url %q must be an http(s) URL", c.BaseURL)
	}
	if !strings.HasPrefix(c.APIPrefix, "/") {
		return fmt.Errorf("exchange.api_prefix %q must start with /", c.APIPrefix)
	}
	if strings.TrimSpace(c.OrderPath) == "" {
		return errors.New("exchange.order_path must be set")
	}
	if !finite(c.InitialBanSleepSeconds) || c.InitialBanSleepSeconds < 0 {
		return fmt.Errorf("exchange.initial_ban_sleep_seconds (%f) must be >=0", c.InitialBanSleepSeconds)
	}
	if !finite(c.RequestTimeoutSeconds) || c.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("exchange.request_timeout_seconds (%f) must be >0", c.RequestTimeoutSeconds)
	}
	if c.MaxRetries < 0 {
		return errors.New("exchange.max_retries cannot be negative")
	}
	// backoff_factor > 1 is recommended; 1 degenerates to a constant 1s delay.
	if !finite(c.BackoffFactor) || c.BackoffFactor < 1 {
		return fmt.Errorf("exchange.backoff_factor (%f) must be >=1", c.BackoffFactor)
	}
	if c.RequestsPerSecond < 0 {
		return errors.New("exchange.requests_per_second cannot be negative")
	}
	return nil
}

// RuntimeConfig covers process wiring only; the core never reads it.
type RuntimeConfig struct {
	LogLevel     string  `mapstructure:"log_level"`
	MetricsAddr  string  `mapstructure:"metrics_addr"`
	DryRun       bool    `mapstructure:"dry_run"`
	PaperBalance float64 `mapstructure:"paper_balance"`
	FeedURL      string  `mapstructure:"feed_url"`
}

func (c *RuntimeConfig) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("runtime.log_level %q is not a known level", c.LogLevel)
	}
	if c.DryRun && c.PaperBalance <= 0 {
		return errors.New("runtime.paper_balance must be positive in dry_run mode")
	}
	if !strings.HasPrefix(c.FeedURL, "ws://") && !strings.HasPrefix(c.FeedURL, "wss://") {
		return fmt.Errorf("runtime.feed_url %q must be a ws(s) URL", c.FeedURL)
	}
	return nil
}

// Config is the root document read by Load.
type Config struct {
	Trading  TradingConfig  `mapstructure:"trading"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Runtime  RuntimeConfig  `mapstructure:"runtime"`
}

func (c *Config) Validate() error {
	if err := c.Trading.Validate(); err != nil {
		return err
	}
	if err := c.Exchange.Validate(); err != nil {
		return err
	}
	return c.Runtime.Validate()
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
