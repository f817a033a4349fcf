package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/betbot/skinscan/pkg/secretstore"
)

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level" json:"level"`
	File       string `yaml:"file" json:"file"`
	DailyFile  bool   `yaml:"daily_file" json:"daily_file"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"`
}

// PricingConfig 行情数据 API（CSQAQ）配置
type PricingConfig struct {
	BaseURL             string         `yaml:"base_url" json:"base_url"`
	APIToken            string         `yaml:"api_token" json:"api_token"`
	TimeoutSeconds      int            `yaml:"timeout_seconds" json:"timeout_seconds"`
	BindCooldownSeconds int            `yaml:"bind_cooldown_seconds" json:"bind_cooldown_seconds"`
	MaxAttempts         int            `yaml:"max_attempts" json:"max_attempts"`
	BackoffStepMs       int            `yaml:"backoff_step_ms" json:"backoff_step_ms"`
	RateLimitCodes      []int          `yaml:"rate_limit_codes" json:"rate_limit_codes"`
	MinIntervalsMs      map[string]int `yaml:"min_intervals_ms" json:"min_intervals_ms"` // 端点 -> 最小请求间隔
	DefaultIntervalMs   int            `yaml:"default_interval_ms" json:"default_interval_ms"`
	CacheTTLSeconds     int            `yaml:"cache_ttl_seconds" json:"cache_ttl_seconds"`
	RankPages           int            `yaml:"rank_pages" json:"rank_pages"`
	RankPageSize        int            `yaml:"rank_page_size" json:"rank_page_size"`
}

// RankStrategy 排行榜抓取策略（决定请求哪一类饰品）
type RankStrategy struct {
	Name        string   `yaml:"name" json:"name"`
	Types       []string `yaml:"types" json:"types"`
	MinPrice    float64  `yaml:"min_price" json:"min_price"`
	MaxPrice    float64  `yaml:"max_price" json:"max_price"`
	MinYieldPct float64  `yaml:"min_yield_pct" json:"min_yield_pct"`
	MinOnSale   int      `yaml:"min_on_sale" json:"min_on_sale"`
	MinLeased   int      `yaml:"min_leased" json:"min_leased"`
}

// FilterConfig 候选过滤阈值
type FilterConfig struct {
	MinPrice         float64 `yaml:"min_price" json:"min_price"`
	MaxPrice         float64 `yaml:"max_price" json:"max_price"`
	MinYield         float64 `yaml:"min_yield" json:"min_yield"` // 年化，小数
	MaxYield         float64 `yaml:"max_yield" json:"max_yield"`
	MinDailyRent     float64 `yaml:"min_daily_rent" json:"min_daily_rent"`
	MinTrend90       float64 `yaml:"min_trend_90d" json:"min_trend_90d"` // 百分比，例如 -10
	MinLeaseCount    int     `yaml:"min_lease_count" json:"min_lease_count"`
	MinLeaseRatio    float64 `yaml:"min_lease_ratio" json:"min_lease_ratio"`
	StabilityEnabled bool    `yaml:"stability_enabled" json:"stability_enabled"`
	MaxVolatility    float64 `yaml:"max_volatility" json:"max_volatility"`
	MinHistoryPoints int     `yaml:"min_history_points" json:"min_history_points"`
	HistoryKey       string  `yaml:"history_key" json:"history_key"` // short_lease_price 或 sell_price
	HistoryDays      int     `yaml:"history_days" json:"history_days"`
	MaxPremium       float64 `yaml:"max_premium" json:"max_premium"`
}

// TieringConfig 分级阈值
type TieringConfig struct {
	SMaxVolatility    float64 `yaml:"s_max_volatility" json:"s_max_volatility"`
	SMinRelativeHeat  float64 `yaml:"s_min_relative_heat" json:"s_min_relative_heat"`
	SMinDailyRent     float64 `yaml:"s_min_daily_rent" json:"s_min_daily_rent"`
	AMinRelativeHeat  float64 `yaml:"a_min_relative_heat" json:"a_min_relative_heat"`
	BLeaseRatioMargin float64 `yaml:"b_lease_ratio_margin" json:"b_lease_ratio_margin"`
}

// ScannerConfig 扫描配置
type ScannerConfig struct {
	Strategies  []RankStrategy `yaml:"strategies" json:"strategies"`
	Filters     FilterConfig   `yaml:"filters" json:"filters"`
	Tiering     TieringConfig  `yaml:"tiering" json:"tiering"`
	BuyDiscount float64        `yaml:"buy_discount" json:"buy_discount"` // 白名单建议收购价 = 售价 × buy_discount
}

// InvestConfig 执行（下单）配置
type InvestConfig struct {
	MaxAttemptsPerRun      int     `yaml:"max_attempts_per_run" json:"max_attempts_per_run"`
	MaxOrdersPerRun        int     `yaml:"max_orders_per_run" json:"max_orders_per_run"`
	JitterMinSeconds       int     `yaml:"jitter_min_seconds" json:"jitter_min_seconds"`
	JitterMaxSeconds       int     `yaml:"jitter_max_seconds" json:"jitter_max_seconds"`
	BusyThreshold          int     `yaml:"busy_threshold" json:"busy_threshold"`
	BusyRecoverySeconds    int     `yaml:"busy_recovery_seconds" json:"busy_recovery_seconds"`
	SuccessCooldownSeconds int     `yaml:"success_cooldown_seconds" json:"success_cooldown_seconds"`
	PriceTolerance         float64 `yaml:"price_tolerance" json:"price_tolerance"`
	BuyPriceRatio          float64 `yaml:"buy_price_ratio" json:"buy_price_ratio"`
	BidUndercutRatio       float64 `yaml:"bid_undercut_ratio" json:"bid_undercut_ratio"`
	MinBalanceRequired     float64 `yaml:"min_balance_required" json:"min_balance_required"`
	MinPrice               float64 `yaml:"min_price" json:"min_price"`
	MaxPrice               float64 `yaml:"max_price" json:"max_price"`
}

// TradingConfig 交易平台（悠悠有品）配置
type TradingConfig struct {
	BaseURL          string   `yaml:"base_url" json:"base_url"`
	Token            string   `yaml:"token" json:"token"`
	DeviceID         string   `yaml:"device_id" json:"device_id"`
	TimeoutSeconds   int      `yaml:"timeout_seconds" json:"timeout_seconds"`
	MinIntervalMs    int      `yaml:"min_interval_ms" json:"min_interval_ms"`
	DryRun           bool     `yaml:"dry_run" json:"dry_run"` // 纸交易模式：只记录不下单
	DryRunBalance    float64  `yaml:"dry_run_balance" json:"dry_run_balance"` // 纸交易且无令牌时使用的余额
	BusyCodes        []int    `yaml:"busy_codes" json:"busy_codes"`
	BusyKeywords     []string `yaml:"busy_keywords" json:"busy_keywords"`
	AuthExpiredCodes []int    `yaml:"auth_expired_codes" json:"auth_expired_codes"`
}

// StorageConfig 本地存储路径
type StorageConfig struct {
	WhitelistFile string `yaml:"whitelist_file" json:"whitelist_file"`
	SignalDir     string `yaml:"signal_dir" json:"signal_dir"`
	AuditDB       string `yaml:"audit_db" json:"audit_db"`
}

// SecretsConfig 加密令牌库
type SecretsConfig struct {
	DB  string `yaml:"db" json:"db"`
	Key string `yaml:"key" json:"key"`
}

// ServerConfig 状态服务
type ServerConfig struct {
	Listen string `yaml:"listen" json:"listen"`
}

// ScheduleConfig 进程内调度
type ScheduleConfig struct {
	Enabled           bool   `yaml:"enabled" json:"enabled"`
	ScanIntervalHours int    `yaml:"scan_interval_hours" json:"scan_interval_hours"`
	InvestAt          string `yaml:"invest_at" json:"invest_at"` // HH:MM，本地时间
}

// Config 应用配置，每次运行解析一次
type Config struct {
	Log      LogConfig      `yaml:"log" json:"log"`
	Pricing  PricingConfig  `yaml:"pricing" json:"pricing"`
	Scanner  ScannerConfig  `yaml:"scanner" json:"scanner"`
	Invest   InvestConfig   `yaml:"invest" json:"invest"`
	Trading  TradingConfig  `yaml:"trading" json:"trading"`
	Storage  StorageConfig  `yaml:"storage" json:"storage"`
	Secrets  SecretsConfig  `yaml:"secrets" json:"secrets"`
	Server   ServerConfig   `yaml:"server" json:"server"`
	Schedule ScheduleConfig `yaml:"schedule" json:"schedule"`
}

// Default 返回带全部默认值的配置
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:      "info",
			File:       "logs/skinscan.log",
			DailyFile:  true,
			MaxSizeMB:  100,
			MaxBackups: 7,
			MaxAgeDays: 30,
		},
		Pricing: PricingConfig{
			BaseURL:             "https://api.csqaq.com/api/v1",
			TimeoutSeconds:      15,
			BindCooldownSeconds: 35, // 绑定接口 30 秒限一次
			MaxAttempts:         3,
			BackoffStepMs:       1000,
			RateLimitCodes:      []int{429},
			MinIntervalsMs: map[string]int{
				"bind":   1000,
				"rank":   1000,
				"detail": 300,
				"chart":  300,
			},
			DefaultIntervalMs: 500,
			CacheTTLSeconds:   600,
			RankPages:         3,
			RankPageSize:      300,
		},
		Scanner: ScannerConfig{
			Strategies: []RankStrategy{
				{Name: "steady", Types: []string{"不限_步枪", "不限_手枪", "不限_微型冲锋枪", "不限_探员"}, MinPrice: 200, MaxPrice: 3000, MinYieldPct: 20, MinOnSale: 50, MinLeased: 30},
				{Name: "heavy", Types: []string{"不限_匕首", "不限_手套"}, MinPrice: 200, MaxPrice: 8000, MinYieldPct: 30, MinOnSale: 20, MinLeased: 30},
			},
			Filters: FilterConfig{
				MinPrice:         100,
				MaxPrice:         30000,
				MinYield:         0.25,
				MaxYield:         0.60,
				MinDailyRent:     0.5,
				MinTrend90:       -10,
				MinLeaseCount:    30,
				MinLeaseRatio:    0.10,
				StabilityEnabled: true,
				MaxVolatility:    0.25,
				MinHistoryPoints: 5,
				HistoryKey:       "short_lease_price",
				HistoryDays:      30,
				MaxPremium:       0.15,
			},
			Tiering: TieringConfig{
				SMaxVolatility:    0.15,
				SMinRelativeHeat:  1.5,
				SMinDailyRent:     0.5,
				AMinRelativeHeat:  0.8,
				BLeaseRatioMargin: 1.5,
			},
			BuyDiscount: 0.90,
		},
		Invest: InvestConfig{
			MaxAttemptsPerRun:      3,
			MaxOrdersPerRun:        5,
			JitterMinSeconds:       20,
			JitterMaxSeconds:       40,
			BusyThreshold:          2,
			BusyRecoverySeconds:    60,
			SuccessCooldownSeconds: 60,
			PriceTolerance:         0.01,
			BuyPriceRatio:          0.90,
			BidUndercutRatio:       0.98,
			MinBalanceRequired:     100,
			MinPrice:               100,
			MaxPrice:               30000,
		},
		Trading: TradingConfig{
			BaseURL:          "https://api.youpin898.com",
			TimeoutSeconds:   15,
			MinIntervalMs:    1500,
			BusyCodes:        []int{84104, 429, -1},
			BusyKeywords:     []string{"频繁", "系统繁忙"},
			AuthExpiredCodes: []int{84101, 401},
			DryRunBalance:    1000,
		},
		Storage: StorageConfig{
			WhitelistFile: "data/whitelist.json",
			SignalDir:     "data/signals",
			AuditDB:       "data/scan_audit.db",
		},
		Secrets: SecretsConfig{
			DB: "data/secrets.badger",
		},
		Server: ServerConfig{
			Listen: ":8090",
		},
		Schedule: ScheduleConfig{
			ScanIntervalHours: 6,
			InvestAt:          "12:00",
		},
	}
}

// Load 加载配置：默认值 < 配置文件 < 环境变量；令牌最后尝试从密钥库读取
func Load(filePath string) (*Config, error) {
	cfg := Default()
	if filePath != "" {
		if err := loadConfigFile(filePath, cfg); err != nil {
			return nil, fmt.Errorf("加载配置文件失败 %s: %w", filePath, err)
		}
	}
	applyEnv(cfg)

	if err := cfg.resolveTokens(); err != nil {
		return nil, fmt.Errorf("读取密钥库失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}
	return cfg, nil
}

func loadConfigFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("解析 YAML 配置文件失败: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("解析 JSON 配置文件失败: %w", err)
		}
	default:
		return fmt.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", ext)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)
	cfg.Pricing.APIToken = getEnv("CSQAQ_API_TOKEN", cfg.Pricing.APIToken)
	cfg.Pricing.BaseURL = getEnv("CSQAQ_BASE_URL", cfg.Pricing.BaseURL)
	cfg.Trading.Token = getEnv("UU_TOKEN", cfg.Trading.Token)
	cfg.Trading.BaseURL = getEnv("UU_BASE_URL", cfg.Trading.BaseURL)
	cfg.Trading.DryRun = parseBoolEnv("DRY_RUN", cfg.Trading.DryRun)
	cfg.Invest.MaxOrdersPerRun = parseIntEnv("MAX_ORDERS_PER_RUN", cfg.Invest.MaxOrdersPerRun)
	cfg.Invest.MinBalanceRequired = parseFloatEnv("MIN_BALANCE_REQUIRED", cfg.Invest.MinBalanceRequired)
	cfg.Secrets.DB = getEnv("SKINSCAN_SECRET_DB", cfg.Secrets.DB)
	cfg.Secrets.Key = getEnv("SKINSCAN_SECRET_KEY", cfg.Secrets.Key)
	cfg.Server.Listen = getEnv("SKINSCAN_LISTEN", cfg.Server.Listen)
}

// resolveTokens 环境变量和配置文件都没有令牌时，从加密库中读取
func (c *Config) resolveTokens() error {
	if c.Secrets.Key == "" || c.Secrets.DB == "" {
		return nil
	}
	if c.Pricing.APIToken != "" && c.Trading.Token != "" {
		return nil
	}
	if _, err := os.Stat(c.Secrets.DB); err != nil {
		return nil
	}
	if c.Pricing.APIToken == "" {
		tok, err := secretstore.LookupToken(c.Secrets.DB, c.Secrets.Key, secretstore.KeyPricingToken)
		if err != nil {
			return err
		}
		c.Pricing.APIToken = tok
	}
	if c.Trading.Token == "" {
		tok, err := secretstore.LookupToken(c.Secrets.DB, c.Secrets.Key, secretstore.KeyTradingToken)
		if err != nil {
			return err
		}
		c.Trading.Token = tok
	}
	return nil
}

// Validate 验证配置
func (c *Config) Validate() error {
	f := c.Scanner.Filters
	if f.MinPrice < 0 || f.MaxPrice <= f.MinPrice {
		return fmt.Errorf("scanner.filters 价格区间无效: [%.2f, %.2f]", f.MinPrice, f.MaxPrice)
	}
	if f.MinYield < 0 || f.MaxYield <= f.MinYield {
		return fmt.Errorf("scanner.filters 收益率区间无效: [%.2f, %.2f]", f.MinYield, f.MaxYield)
	}
	if f.MinLeaseRatio < 0 || f.MaxPremium < 0 {
		return fmt.Errorf("scanner.filters 比例阈值不能为负数")
	}
	if f.StabilityEnabled {
		if f.MaxVolatility <= 0 {
			return fmt.Errorf("scanner.filters.max_volatility 必须大于 0")
		}
		if f.MinHistoryPoints < 2 {
			return fmt.Errorf("scanner.filters.min_history_points 至少为 2")
		}
		if f.HistoryKey != "short_lease_price" && f.HistoryKey != "sell_price" {
			return fmt.Errorf("scanner.filters.history_key 只支持 short_lease_price / sell_price: %s", f.HistoryKey)
		}
	}
	if len(c.Scanner.Strategies) == 0 {
		return fmt.Errorf("至少需要配置一个扫描策略")
	}
	if c.Scanner.BuyDiscount <= 0 || c.Scanner.BuyDiscount > 1 {
		return fmt.Errorf("scanner.buy_discount 必须在 (0, 1] 之间")
	}
	if c.Pricing.MaxAttempts < 1 || c.Pricing.BindCooldownSeconds <= 0 {
		return fmt.Errorf("pricing.max_attempts 与 bind_cooldown_seconds 必须大于 0")
	}

	inv := c.Invest
	if inv.MaxAttemptsPerRun <= 0 || inv.MaxOrdersPerRun <= 0 {
		return fmt.Errorf("invest 单次运行上限必须大于 0")
	}
	if inv.BusyThreshold < 1 {
		return fmt.Errorf("invest.busy_threshold 至少为 1")
	}
	if inv.JitterMinSeconds < 0 || inv.JitterMaxSeconds < inv.JitterMinSeconds {
		return fmt.Errorf("invest 随机等待区间无效: [%d, %d]", inv.JitterMinSeconds, inv.JitterMaxSeconds)
	}
	if inv.PriceTolerance < 0 || inv.BuyPriceRatio <= 0 || inv.BuyPriceRatio > 1 {
		return fmt.Errorf("invest.price_tolerance / buy_price_ratio 无效")
	}
	if inv.MaxPrice <= inv.MinPrice {
		return fmt.Errorf("invest 价格区间无效: [%.2f, %.2f]", inv.MinPrice, inv.MaxPrice)
	}
	if c.Schedule.Enabled {
		if _, err := time.Parse("15:04", c.Schedule.InvestAt); err != nil {
			return fmt.Errorf("schedule.invest_at 格式应为 HH:MM: %w", err)
		}
		if c.Schedule.ScanIntervalHours <= 0 {
			return fmt.Errorf("schedule.scan_interval_hours 必须大于 0")
		}
	}
	return nil
}

// RequirePricingToken 扫描前检查行情 API 令牌
func (c *Config) RequirePricingToken() error {
	if strings.TrimSpace(c.Pricing.APIToken) == "" {
		return fmt.Errorf("CSQAQ_API_TOKEN 未配置")
	}
	return nil
}

// RequireTradingToken 非纸交易模式下检查交易平台令牌
func (c *Config) RequireTradingToken() error {
	if c.Trading.DryRun {
		return nil
	}
	if strings.TrimSpace(c.Trading.Token) == "" {
		return fmt.Errorf("UU_TOKEN 未配置（或开启 trading.dry_run）")
	}
	return nil
}

// MinIntervals 把毫秒配置转换为 Duration
func (p PricingConfig) MinIntervals() map[string]time.Duration {
	out := make(map[string]time.Duration, len(p.MinIntervalsMs))
	for k, v := range p.MinIntervalsMs {
		out[k] = time.Duration(v) * time.Millisecond
	}
	return out
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// BindCooldown 冷却时长
func (p PricingConfig) BindCooldown() time.Duration { return seconds(p.BindCooldownSeconds) }

// CacheTTL 缓存有效期
func (p PricingConfig) CacheTTL() time.Duration { return seconds(p.CacheTTLSeconds) }

// BusyRecovery 繁忙后的恢复等待
func (i InvestConfig) BusyRecovery() time.Duration { return seconds(i.BusyRecoverySeconds) }

// SuccessCooldown 下单成功后的冷却
func (i InvestConfig) SuccessCooldown() time.Duration { return seconds(i.SuccessCooldownSeconds) }

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseFloatEnv(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1"
}
