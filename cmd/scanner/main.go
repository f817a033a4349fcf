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
	"github.com/betbot/skinscan/internal/metrics"
	"github.com/betbot/skinscan/internal/source"
	"github.com/betbot/skinscan/pkg/logger"
)

func main() {
	// .env 可选；不存在时使用真实环境变量
	_ = godotenv.Load()

	var (
		configPath    = flag.String("config", "", "config file (yaml/json), default yml/config.yaml when present")
		metricsListen = flag.String("metrics-listen", "", "expose /metrics during the run, e.g. :9101")
	)
	flag.Parse()

	cfg, err := app.LoadConfig(app.ConfigPath(*configPath))
	if err != nil {
		fatal(err)
	}
	if err := cfg.RequirePricingToken(); err != nil {
		fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *metricsListen != "" {
		if _, err := metrics.StartAsync(ctx, *metricsListen); err != nil {
			logger.Warnf("metrics 服务启动失败: %v", err)
		}
	}

	stores, err := app.OpenStores(cfg.Storage)
	if err != nil {
		fatal(err)
	}
	defer stores.Close()

	src := source.NewFromConfig(cfg.Pricing)
	res, err := app.NewScanService(cfg, src, stores).Scan(ctx)
	if err != nil {
		if errors.Is(err, source.ErrCredentialsInvalid) {
			logger.Errorf("行情 API 令牌无效：请更换 CSQAQ_API_TOKEN 后重新运行")
		}
		stores.Close()
		fatal(err)
	}

	fmt.Printf("batch=%s records=%d accepted=%d whitelist=%s\n",
		res.BatchID, res.Records, res.Accepted, stores.Whitelist.Path())
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}
