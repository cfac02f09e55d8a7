package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"SpectreGate/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment"`
	Symbol      string `yaml:"symbol"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"log"`
	ML struct {
		Host                  string        `yaml:"host"`
		Port                  int           `yaml:"port"`
		SendEveryNBars        int           `yaml:"send_every_n_bars"`
		MinConfidence         float64       `yaml:"min_confidence"`
		ReadTimeout           time.Duration `yaml:"read_timeout"`
		WarmupBars            int           `yaml:"warmup_bars"`
		UseSecondaryFilter    bool          `yaml:"use_secondary_filter"`
		SecondaryMinProb      float64       `yaml:"secondary_min_prob"`
		SecondaryStrictParse  bool          `yaml:"secondary_strict_parse"`
	} `yaml:"ml"`
	Trading struct {
		Enabled         bool    `yaml:"enabled"`
		ArmLong         bool    `yaml:"arm_long"`
		ArmShort        bool    `yaml:"arm_short"`
		Qty             int     `yaml:"qty"`
		MaxQty          int     `yaml:"max_qty"`
		StopLossTicks   int     `yaml:"stop_loss_ticks"`
		TakeProfitTicks int     `yaml:"take_profit_ticks"`
		TickSize        float64 `yaml:"tick_size"`
	} `yaml:"trading"`
	Session struct {
		UseTradeWindow       bool `yaml:"use_trade_window"`
		TradeStart           int  `yaml:"trade_start"`  // HHMMSS
		TradeEnd             int  `yaml:"trade_end"`    // HHMMSS
		FlattenTime          int  `yaml:"flatten_time"` // HHMMSS
		UseDailyPause        bool `yaml:"use_daily_pause"`
		FlattenMinsBeforeEnd int  `yaml:"flatten_mins_before_end"`
		ResumeMinsAfterStart int  `yaml:"resume_mins_after_start"`
		Calendar             struct {
			Timezone     string `yaml:"timezone"`
			Begin        string `yaml:"begin"` // HH:MM
			End          string `yaml:"end"`   // HH:MM
			WeekdaysOnly bool   `yaml:"weekdays_only"`
		} `yaml:"calendar"`
	} `yaml:"session"`
	Risk struct {
		CooldownBars        int `yaml:"cooldown_bars"`
		MaxTradesPerSession int `yaml:"max_trades_per_session"`
		Redis               struct {
			Enabled   bool   `yaml:"enabled"`
			Addr      string `yaml:"addr"`
			Password  string `yaml:"password"`
			DB        int    `yaml:"db"`
			KeyPrefix string `yaml:"key_prefix"`
		} `yaml:"redis"`
	} `yaml:"risk"`
	Signals struct {
		TrendLookback        int     `yaml:"trend_lookback"`
		UseCloseConfirmation bool    `yaml:"use_close_confirmation"`
		UseRangeExpansion    bool    `yaml:"use_range_expansion"`
		RangeExpansionMult   float64 `yaml:"range_expansion_mult"`
		MeanEmaLen           int     `yaml:"mean_ema_len"`
		MeanAtrLen           int     `yaml:"mean_atr_len"`
		MeanAtrMult          float64 `yaml:"mean_atr_mult"`
	} `yaml:"signals"`
	Visual struct {
		PlotLevels        bool `yaml:"plot_levels"`
		LevelLineBars     int  `yaml:"level_line_bars"`
		MaxPlottedSignals int  `yaml:"max_plotted_signals"`
	} `yaml:"visual"`
	Host struct {
		WebSocketURL   string        `yaml:"websocket_url"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
	} `yaml:"host"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		Table            string        `yaml:"table"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables
	if v := os.Getenv("SPECTRE_SYMBOL"); v != "" {
		c.Symbol = v
	}
	if v := os.Getenv("SPECTRE_ML_HOST"); v != "" {
		c.ML.Host = v
	}
	c.ML.Port = util.ParseIntDefault(os.Getenv("SPECTRE_ML_PORT"), c.ML.Port)
	if v := os.Getenv("SPECTRE_HOST_WS_URL"); v != "" {
		c.Host.WebSocketURL = v
	}
	if v := os.Getenv("SPECTRE_TRADING_ENABLED"); v != "" {
		c.Trading.Enabled = util.ParseBoolDefault(v, c.Trading.Enabled)
	}
	if v := os.Getenv("SPECTRE_KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SPECTRE_CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("SPECTRE_REDIS_ADDR"); v != "" {
		c.Risk.Redis.Addr = v
	}

	return c, nil
}

// applyDefaults fills unset fields with the strategy's shipped defaults.
func (c *Config) applyDefaults() {
	if c.Environment == "" {
		c.Environment = "dev"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
	if c.ML.Host == "" {
		c.ML.Host = "127.0.0.1"
	}
	if c.ML.Port == 0 {
		c.ML.Port = 5555
	}
	if c.ML.SendEveryNBars <= 0 {
		c.ML.SendEveryNBars = 1
	}
	if c.ML.MinConfidence == 0 {
		c.ML.MinConfidence = 0.60
	}
	if c.ML.ReadTimeout <= 0 {
		c.ML.ReadTimeout = 250 * time.Millisecond
	}
	if c.ML.WarmupBars <= 0 {
		c.ML.WarmupBars = 50
	}
	if c.ML.SecondaryMinProb == 0 {
		c.ML.SecondaryMinProb = 0.55
	}
	if c.Trading.Qty <= 0 {
		c.Trading.Qty = 1
	}
	if c.Trading.MaxQty <= 0 {
		c.Trading.MaxQty = 3
	}
	if c.Trading.StopLossTicks <= 0 {
		c.Trading.StopLossTicks = 80
	}
	if c.Trading.TakeProfitTicks <= 0 {
		c.Trading.TakeProfitTicks = 120
	}
	if c.Trading.TickSize == 0 {
		c.Trading.TickSize = 0.25
	}
	if c.Session.TradeStart == 0 {
		c.Session.TradeStart = 73000
	}
	if c.Session.TradeEnd == 0 {
		c.Session.TradeEnd = 125000
	}
	if c.Session.FlattenTime == 0 {
		c.Session.FlattenTime = 125900
	}
	if c.Session.FlattenMinsBeforeEnd <= 0 {
		c.Session.FlattenMinsBeforeEnd = 15
	}
	if c.Session.ResumeMinsAfterStart <= 0 {
		c.Session.ResumeMinsAfterStart = 15
	}
	if c.Session.Calendar.Timezone == "" {
		c.Session.Calendar.Timezone = "America/New_York"
	}
	if c.Session.Calendar.Begin == "" {
		c.Session.Calendar.Begin = "09:30"
	}
	if c.Session.Calendar.End == "" {
		c.Session.Calendar.End = "16:00"
	}
	if c.Risk.CooldownBars <= 0 {
		c.Risk.CooldownBars = 2
	}
	if c.Risk.MaxTradesPerSession <= 0 {
		c.Risk.MaxTradesPerSession = 50
	}
	if c.Risk.Redis.KeyPrefix == "" {
		c.Risk.Redis.KeyPrefix = "spectregate"
	}
	if c.Signals.TrendLookback <= 0 {
		c.Signals.TrendLookback = 5
	}
	if c.Signals.RangeExpansionMult == 0 {
		c.Signals.RangeExpansionMult = 1.2
	}
	if c.Signals.MeanEmaLen <= 0 {
		c.Signals.MeanEmaLen = 50
	}
	if c.Signals.MeanAtrLen <= 0 {
		c.Signals.MeanAtrLen = 14
	}
	if c.Signals.MeanAtrMult == 0 {
		c.Signals.MeanAtrMult = 0.6
	}
	if c.Visual.LevelLineBars <= 0 {
		c.Visual.LevelLineBars = 12
	}
	if c.Visual.MaxPlottedSignals <= 0 {
		c.Visual.MaxPlottedSignals = 80
	}
	if c.Host.ReconnectDelay <= 0 {
		c.Host.ReconnectDelay = 3 * time.Second
	}
	if c.Host.PingInterval <= 0 {
		c.Host.PingInterval = 15 * time.Second
	}
	if c.ClickHouse.Table == "" {
		c.ClickHouse.Table = "decisions"
	}
}

// Validate checks required fields and rejects nonsensical values.
func (c *Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if c.Host.WebSocketURL == "" {
		return fmt.Errorf("host.websocket_url is required")
	}
	if c.ML.MinConfidence < 0 || c.ML.MinConfidence > 1 {
		return fmt.Errorf("ml.min_confidence must be in [0,1]")
	}
	if c.ML.SecondaryMinProb < 0 || c.ML.SecondaryMinProb > 1 {
		return fmt.Errorf("ml.secondary_min_prob must be in [0,1]")
	}
	if c.Trading.TickSize <= 0 {
		return fmt.Errorf("trading.tick_size must be positive")
	}
	if c.Trading.MaxQty < c.Trading.Qty {
		return fmt.Errorf("trading.max_qty must be >= trading.qty")
	}
	if !validHHMMSS(c.Session.TradeStart) || !validHHMMSS(c.Session.TradeEnd) || !validHHMMSS(c.Session.FlattenTime) {
		return fmt.Errorf("session trade window times must be HHMMSS encoded")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers required when kafka is enabled")
	}
	if c.Kafka.Enabled && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka.topic required when kafka is enabled")
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host required when clickhouse is enabled")
	}
	if c.Risk.Redis.Enabled && c.Risk.Redis.Addr == "" {
		return fmt.Errorf("risk.redis.addr required when redis is enabled")
	}
	return nil
}

func validHHMMSS(v int) bool {
	if v < 0 || v > 235959 {
		return false
	}
	mm := (v / 100) % 100
	ss := v % 100
	return mm < 60 && ss < 60
}

// MLAddr returns host:port of the inference service.
func (c *Config) MLAddr() string {
	return fmt.Sprintf("%s:%d", c.ML.Host, c.ML.Port)
}
