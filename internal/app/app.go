// Package app 命令行入口共用的组装代码：加载配置、初始化日志、构建扫描与执行流水线。
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/skinscan/internal/audit"
	"github.com/betbot/skinscan/internal/execution"
	"github.com/betbot/skinscan/internal/ports"
	"github.com/betbot/skinscan/internal/services"
	"github.com/betbot/skinscan/internal/signal"
	"github.com/betbot/skinscan/internal/source"
	"github.com/betbot/skinscan/internal/whitelist"
	"github.com/betbot/skinscan/internal/youpin"
	"github.com/betbot/skinscan/pkg/config"
	"github.com/betbot/skinscan/pkg/logger"
)

var log = logrus.WithField("component", "app")

// DefaultConfigFile 未指定 -config 时尝试的配置文件
const DefaultConfigFile = "yml/config.yaml"

// ConfigPath 显式指定的路径优先；否则默认文件存在时使用它，不存在时只用默认值和环境变量
func ConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("SKINSCAN_CONFIG"); env != "" {
		return env
	}
	if _, err := os.Stat(DefaultConfigFile); err == nil {
		return DefaultConfigFile
	}
	return ""
}

// LoadConfig 读取配置文件并初始化日志。调用前应先加载 .env。
func LoadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(LoggerConfig(cfg.Log)); err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return cfg, nil
}

// LoggerConfig 配置文件中的日志段转换为 logger 配置
func LoggerConfig(l config.LogConfig) logger.Config {
	return logger.Config{
		Level:      l.Level,
		OutputFile: l.File,
		MaxSize:    l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		MaxAge:     l.MaxAgeDays,
		Compress:   true,
		DailyFile:  l.DailyFile,
	}
}

// RotateLogsDaily 每分钟检查一次日期，跨天时切换日志文件
func RotateLogsDaily(ctx context.Context) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if err := logger.RotateDaily(now); err != nil {
				log.Warnf("切换日志文件失败: %v", err)
			}
		}
	}
}

// Stores 本地存储
type Stores struct {
	Whitelist *whitelist.Store
	Journal   *signal.Journal
	Audit     *audit.Store
}

// OpenStores 打开白名单、信号日志与审计库
func OpenStores(cfg config.StorageConfig) (*Stores, error) {
	j, err := signal.NewJournal(cfg.SignalDir)
	if err != nil {
		return nil, err
	}
	a, err := audit.Open(cfg.AuditDB)
	if err != nil {
		return nil, fmt.Errorf("打开审计库 %s: %w", cfg.AuditDB, err)
	}
	return &Stores{
		Whitelist: whitelist.NewStore(cfg.WhitelistFile),
		Journal:   j,
		Audit:     a,
	}, nil
}

func (s *Stores) Close() error {
	if s == nil {
		return nil
	}
	return s.Audit.Close()
}

// NewScanService 行情数据源 + 扫描服务
func NewScanService(cfg *config.Config, src *source.Source, st *Stores) *services.ScanService {
	return services.NewScanService(cfg.Scanner, cfg.Pricing, src, st.Whitelist, st.Audit)
}

// TradingDeps 根据交易配置选择报价、下单与余额的实现：
//   - 正常模式：全部走交易平台
//   - 纸交易且有令牌：报价和余额走交易平台，下单只记录
//   - 纸交易且无令牌：报价改用行情 API 的实时详情，余额使用配置值
func TradingDeps(cfg *config.Config, src *source.Source) (ports.QuoteSource, ports.OrderPlacer, ports.BalanceGetter) {
	t := cfg.Trading
	if !t.DryRun {
		c := youpin.NewClient(t)
		return c, c, c
	}
	placer := youpin.NewDryRunPlacer()
	if t.Token != "" {
		c := youpin.NewClient(t)
		return c, placer, c
	}
	log.Warnf("纸交易模式且未配置 UU_TOKEN：使用行情 API 报价，余额固定为 %.2f", t.DryRunBalance)
	return source.NewQuoteAdapter(src), placer, youpin.FixedBalance(decimal.NewFromFloat(t.DryRunBalance))
}

// NewInvestService 执行循环 + 执行服务
func NewInvestService(cfg *config.Config, src *source.Source, st *Stores) *services.InvestService {
	quotes, placer, balance := TradingDeps(cfg, src)
	loop := execution.New(execution.ConfigFrom(cfg.Invest), execution.Deps{
		Quotes:    quotes,
		Placer:    placer,
		Journal:   st.Journal,
		Generator: signal.NewGenerator(cfg.Invest),
		Gate:      signal.NewGate(cfg.Invest),
	})
	return services.NewInvestService(cfg.Invest, balance, st.Whitelist, loop)
}
