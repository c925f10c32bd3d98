// Package config loads the market maker's static configuration from a
// YAML file via viper, matching the teacher's cmd/binance-spot wiring
// pattern (SetConfigName/SetConfigType/AddConfigPath, multiple search
// paths so the same binary runs from a repo checkout or a deployed
// working directory).
package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/marketcore/mm-engine/pkg/types"
)

// SymbolConfig bundles one symbol's risk limits and maker parameters, the
// two recognized configuration surfaces per the spec's external
// interfaces section.
type SymbolConfig struct {
	Symbol types.Symbol
	Risk   types.RiskLimits
	Maker  types.MakerParams
}

// Config is the fully parsed configuration for one market maker process.
type Config struct {
	NatsURL          string
	FeedWebsocketURL string
	MetricsAddr      string
	QuoteQueueSize   int
	OrderQueueSize   int
	Symbols          []SymbolConfig
}

// Load reads config.yaml from the conventional search paths and unmarshals
// it into a Config. Unknown keys are ignored; missing sections use the
// zero value (empty symbol list, default queue sizes).
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("/configs")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{
		NatsURL:          viper.GetString("nats.url"),
		FeedWebsocketURL: viper.GetString("feed.websocket_url"),
		MetricsAddr:      viper.GetString("metrics.listen_addr"),
		QuoteQueueSize:   viper.GetInt("queues.quote_capacity"),
		OrderQueueSize:   viper.GetInt("queues.order_capacity"),
	}
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = ":9090"
	}

	rawSymbols := viper.Get("symbols")
	entries, ok := rawSymbols.([]interface{})
	if !ok {
		return cfg, nil
	}

	for _, raw := range entries {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		sym, err := parseSymbolEntry(entry)
		if err != nil {
			return nil, fmt.Errorf("symbol entry: %w", err)
		}
		cfg.Symbols = append(cfg.Symbols, sym)
	}

	return cfg, nil
}

func parseSymbolEntry(entry map[string]interface{}) (SymbolConfig, error) {
	symbol, _ := entry["symbol"].(string)
	if symbol == "" {
		return SymbolConfig{}, fmt.Errorf("symbol entry missing name")
	}

	risk, _ := entry["risk"].(map[string]interface{})
	maker, _ := entry["maker"].(map[string]interface{})

	return SymbolConfig{
		Symbol: symbol,
		Risk: types.RiskLimits{
			MaxGrossPosition:    decimalFrom(risk["max_gross_position"]),
			MaxNetPosition:      decimalFrom(risk["max_net_position"]),
			MaxDollarExposure:   decimalFrom(risk["max_dollar_exposure"]),
			VaRLimit:            floatFrom(risk["var_limit"]),
			ESLimit:             floatFrom(risk["es_limit"]),
			MaxDrawdownLimit:    decimalFrom(risk["max_drawdown_limit"]),
			MaxPositionDuration: durationFrom(risk["max_position_duration_seconds"]),
			MaxOrderSize:        decimalFrom(risk["max_order_size"]),
			MaxDailyLoss:        decimalFrom(risk["max_daily_loss"]),
			MaxDailyTrades:      intFrom(risk["max_daily_trades"]),
		},
		Maker: types.MakerParams{
			SpreadPct:    floatFrom(maker["spread_pct"]),
			BaseSize:     decimalFrom(maker["base_size"]),
			SkewFactor:   floatFrom(maker["skew_factor"]),
			TickSize:     floatFrom(maker["tick_size"]),
			Levels:       intFrom(maker["levels"]),
			LevelSpacing: floatFrom(maker["level_spacing"]),
		},
	}, nil
}

func decimalFrom(v interface{}) decimal.Decimal {
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n)
	case int:
		return decimal.NewFromInt(int64(n))
	case string:
		d, err := decimal.NewFromString(n)
		if err == nil {
			return d
		}
	}
	return decimal.Zero
}

func floatFrom(v interface{}) float64 {
	if n, ok := v.(float64); ok {
		return n
	}
	if n, ok := v.(int); ok {
		return float64(n)
	}
	return 0
}

func intFrom(v interface{}) int {
	if n, ok := v.(int); ok {
		return n
	}
	if n, ok := v.(float64); ok {
		return int(n)
	}
	return 0
}

func durationFrom(v interface{}) time.Duration {
	return time.Duration(floatFrom(v)) * time.Second
}
