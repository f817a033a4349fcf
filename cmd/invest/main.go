package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/betbot/skinscan/internal/app"
	"github.com/betbot/skinscan/internal/execution"
	"github.com/betbot/skinscan/internal/metrics"
	"github.com/betbot/skinscan/internal/services"
	"github.com/betbot/skinscan/internal/source"
	"github.com/betbot/skinscan/internal/whitelist"
)

// 退出码：0 完成；1 错误；2 断路器打开；3 登录失效；4 无事可做（白名单为空或余额不足）
const (
	exitError       = 1
	exitCircuitOpen = 2
	exitAuthExpired = 3
	exitNothingToDo = 4
)

func main() {
	_ = godotenv.Load()

	var (
		configPath    = flag.String("config", "", "config file (yaml/json), default yml/config.yaml when present")
		dryRun        = flag.Bool("dry-run", false, "paper trading: journal signals but do not place orders")
		maxOrders     = flag.Int("max-orders", 0, "override invest.max_orders_per_run")
		metricsListen = flag.String("metrics-listen", "", "expose /metrics during the run, e.g. :9102")
	)
	flag.Parse()

	cfg, err := app.LoadConfig(app.ConfigPath(*configPath))
	if err != nil {
		fatal(exitError, err)
	}
	if *dryRun {
		cfg.Trading.DryRun = true
	}
	if *maxOrders > 0 {
		cfg.Invest.MaxOrdersPerRun = *maxOrders
	}
	if err := cfg.RequireTradingToken(); err != nil {
		fatal(exitError, err)
	}
	if cfg.Trading.DryRun && cfg.Trading.Token == "" {
		// 纸交易无令牌时用行情 API 报价
		if err := cfg.RequirePricingToken(); err != nil {
			fatal(exitError, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *metricsListen != "" {
		_, _ = metrics.StartAsync(ctx, *metricsListen)
	}

	stores, err := app.OpenStores(cfg.Storage)
	if err != nil {
		fatal(exitError, err)
	}
	defer stores.Close()

	src := source.NewFromConfig(cfg.Pricing)
	rep, err := app.NewInvestService(cfg, src, stores).Invest(ctx)

	fmt.Printf("attempted=%d orders=%d skipped=%d balance=%s\n",
		rep.Attempted, rep.Successes(), len(rep.Skipped), rep.FinalBalance.StringFixed(2))
	for _, o := range rep.Orders {
		fmt.Printf("  order %s %s @ %s\n", o.OrderID, o.Name, o.Price.StringFixed(2))
	}
	if err == nil {
		return
	}

	stores.Close()
	switch {
	case errors.Is(err, execution.ErrCircuitOpen):
		fatal(exitCircuitOpen, err)
	case errors.Is(err, execution.ErrAuthExpired):
		fatal(exitAuthExpired, err)
	case errors.Is(err, whitelist.ErrEmpty), errors.Is(err, services.ErrLowBalance):
		fatal(exitNothingToDo, err)
	default:
		fatal(exitError, err)
	}
}

func fatal(code int, err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(code)
}
