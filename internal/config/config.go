package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server struct {
		Addr        string   `yaml:"addr"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
	Risk     RiskConfig   `yaml:"risk"`
	Signal   SignalConfig `yaml:"signal"`
	Schedule struct {
		IngestCron string `yaml:"ingest_cron"`
		ScanCron   string `yaml:"scan_cron"`
	} `yaml:"schedule"`
	DataSource struct {
		Provider     string `yaml:"provider"`
		HistoryYears int    `yaml:"history_years"`
	} `yaml:"data_source"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
		UserID   int64  `yaml:"user_id"` // portfolio the chat commands act on
	} `yaml:"telegram"`
	AI struct {
		GeminiAPIKey string `yaml:"gemini_api_key"`
		Model        string `yaml:"model"`
	} `yaml:"ai"`
	Proxy string `yaml:"proxy"`
}

// RiskConfig holds the position and cash limits, all in percent unless named *Ratio.
type RiskConfig struct {
	MaxSinglePosition   float64 `yaml:"max_single_position"`
	MaxTotalPosition    float64 `yaml:"max_total_position"`
	MaxIndustryPosition float64 `yaml:"max_industry_position"`
	NearCapRatio        float64 `yaml:"near_cap_ratio"`
	IndustryWarnRatio   float64 `yaml:"industry_warn_ratio"`
	MinCashRatio        float64 `yaml:"min_cash_ratio"`
	MaxDailyTurnover    float64 `yaml:"max_daily_turnover"`
	DisableCash         bool    `yaml:"disable_cash"`
	DisableIndustry     bool    `yaml:"disable_industry"`
	DisableTurnover     bool    `yaml:"disable_turnover"`
}

// SignalConfig controls the signal engine's quality filters.
type SignalConfig struct {
	CooldownDays       int     `yaml:"cooldown_days"`
	DisableCooldown    bool    `yaml:"disable_cooldown"`
	QualityGateEnabled bool    `yaml:"quality_gate_enabled"`
	MinROE             float64 `yaml:"min_roe"`
	PercentileYears    int     `yaml:"percentile_years"`
}

// DefaultRisk returns the stock risk limits.
func DefaultRisk() RiskConfig {
	return RiskConfig{
		MaxSinglePosition:   10,
		MaxTotalPosition:    100,
		MaxIndustryPosition: 30,
		NearCapRatio:        0.8,
		IndustryWarnRatio:   0.8,
		MinCashRatio:        5,
		MaxDailyTurnover:    30,
	}
}

// DefaultSignal returns the stock signal filter settings.
func DefaultSignal() SignalConfig {
	return SignalConfig{
		CooldownDays:    7,
		MinROE:          8,
		PercentileYears: 5,
	}
}

// Load reads config from a YAML file, then applies .env and environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{Risk: DefaultRisk(), Signal: DefaultSignal()}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// .env is optional
	_ = godotenv.Load()

	if v := os.Getenv("SENTINEL_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_PRETTY"); v != "" {
		cfg.Log.Pretty = v == "true" || v == "1"
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("TELEGRAM_USER_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Telegram.UserID = id
		}
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.AI.GeminiAPIKey = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("MAX_SINGLE_POSITION"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Risk.MaxSinglePosition = f
		}
	}
	if v := os.Getenv("COOLDOWN_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Signal.CooldownDays = n
		}
	}
	if v := os.Getenv("CRON_SCAN"); v != "" {
		cfg.Schedule.ScanCron = v
	}
	if v := os.Getenv("CRON_INGEST"); v != "" {
		cfg.Schedule.IngestCron = v
	}

	// Defaults
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/value_sentinel.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Schedule.IngestCron == "" {
		cfg.Schedule.IngestCron = "0 30 15 * * 1-5"
	}
	if cfg.Schedule.ScanCron == "" {
		cfg.Schedule.ScanCron = "0 45 15 * * 1-5"
	}
	if cfg.DataSource.Provider == "" {
		cfg.DataSource.Provider = "yahoo"
	}
	if cfg.DataSource.HistoryYears == 0 {
		cfg.DataSource.HistoryYears = 5
	}
	if cfg.AI.Model == "" {
		cfg.AI.Model = "gemini-2.0-flash"
	}
	if cfg.Telegram.UserID == 0 {
		cfg.Telegram.UserID = 1
	}

	return cfg, nil
}

// Validate checks that the limits are coherent.
func (c *Config) Validate() error {
	if err := c.Risk.Validate(); err != nil {
		return err
	}
	if c.Signal.CooldownDays < 0 {
		return fmt.Errorf("signal.cooldown_days must not be negative")
	}
	if c.Signal.PercentileYears <= 0 {
		return fmt.Errorf("signal.percentile_years must be positive")
	}
	switch strings.ToLower(c.DataSource.Provider) {
	case "yahoo", "mock":
	default:
		return fmt.Errorf("data_source.provider %q is not supported", c.DataSource.Provider)
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	return nil
}

// Validate checks percentages are in (0,100] and ratios in (0,1].
func (r RiskConfig) Validate() error {
	pcts := map[string]float64{
		"risk.max_single_position":   r.MaxSinglePosition,
		"risk.max_total_position":    r.MaxTotalPosition,
		"risk.max_industry_position": r.MaxIndustryPosition,
		"risk.max_daily_turnover":    r.MaxDailyTurnover,
	}
	for name, v := range pcts {
		if v <= 0 || v > 100 {
			return fmt.Errorf("%s must be in (0, 100], got %.2f", name, v)
		}
	}
	if r.MinCashRatio < 0 || r.MinCashRatio >= 100 {
		return fmt.Errorf("risk.min_cash_ratio must be in [0, 100), got %.2f", r.MinCashRatio)
	}
	for name, v := range map[string]float64{
		"risk.near_cap_ratio":      r.NearCapRatio,
		"risk.industry_warn_ratio": r.IndustryWarnRatio,
	} {
		if v <= 0 || v > 1 {
			return fmt.Errorf("%s must be in (0, 1], got %.2f", name, v)
		}
	}
	if r.MaxSinglePosition > r.MaxTotalPosition {
		return fmt.Errorf("risk.max_single_position cannot exceed risk.max_total_position")
	}
	return nil
}
