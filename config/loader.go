package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. MOMENTUM_TRADING_ASSET.
const EnvPrefix = "MOMENTUM"

// defaults only covers values that are safe outside production tuning;
// every strategy and risk parameter must come from the operator.
var defaults = map[string]any{
	"trading.order_type":           OrderTypeMaker,
	"exchange.base_url":            "https://www.okx.com",
	"exchange.api_prefix":          "/api/v5",
	"exchange.order_path":          "/trade/order",
	"exchange.trade_mode":          "cash",
	"exchange.requests_per_second": 0,
	"runtime.log_level":            "info",
	"runtime.metrics_addr":         ":9102",
	"runtime.dry_run":              true,
	"runtime.feed_url":             "wss://ws.okx.com:8443/ws/v5/public",
}

// keys lists every setting so that env-only values reach Unmarshal.
var keys = []string{
	"trading.asset",
	"trading.price_movement_threshold",
	"trading.price_resolution_minutes",
	"trading.momentum_lookback_window_minutes",
	"trading.momentum_std_threshold",
	"trading.order_size_factor",
	"trading.max_order_size_multiplier",
	"trading.maker_fee_rate",
	"trading.taker_fee_rate",
	"trading.price_validation_threshold",
	"trading.price_adjustment_offset",
	"trading.order_type",
	"trading.quantity_step",
	"trading.min_quantity",
	"exchange.base_url",
	"exchange.api_prefix",
	"exchange.order_path",
	"exchange.initial_ban_sleep_seconds",
	"exchange.request_timeout_seconds",
	"exchange.max_retries",
	"exchange.backoff_factor",
	"exchange.trade_mode",
	"exchange.requests_per_second",
	"runtime.log_level",
	"runtime.metrics_addr",
	"runtime.dry_run",
	"runtime.paper_balance",
	"runtime.feed_url",
}

// optionalKeys may be omitted; the zero value disables the feature.
var optionalKeys = map[string]bool{
	"trading.quantity_step": true,
	"trading.min_quantity":  true,
	"runtime.paper_balance": true,
}

// missingRequired returns the first key that is neither defaulted nor
// supplied by the file or the environment. paper_balance is required only
// for dry runs.
func missingRequired(v *viper.Viper) error {
	for _, k := range keys {
		if _, ok := defaults[k]; ok || optionalKeys[k] {
			continue
		}
		if !v.IsSet(k) {
			return fmt.Errorf("%s must be set", k)
		}
	}
	if v.GetBool("runtime.dry_run") && !v.IsSet("runtime.paper_balance") {
		return errors.New("runtime.paper_balance must be set")
	}
	return nil
}

// Load reads the YAML file at path (optional when empty), applies
// MOMENTUM_* environment overrides (a .env file in the working directory is
// honoured) and validates the result. Any error here is a fatal startup error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading .env failed: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", k, err)
		}
	}
	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
		}
	}

	if err := missingRequired(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
