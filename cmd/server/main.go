package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/betbot/skinscan/internal/app"
	"github.com/betbot/skinscan/internal/controlplane/server"
	"github.com/betbot/skinscan/internal/services"
	"github.com/betbot/skinscan/internal/source"
	"github.com/betbot/skinscan/pkg/logger"
	"github.com/betbot/skinscan/pkg/shutdown"
	"github.com/betbot/skinscan/pkg/syncgroup"
)

func main() {
	// Load .env (best-effort). If missing, fall back to real env vars.
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", "", "config file (yaml/json), default yml/config.yaml when present")
		listenAddr = flag.String("listen", "", "HTTP listen address, overrides server.listen")
		schedule   = flag.Bool("schedule", false, "run scans and daily invest in-process (overrides schedule.enabled)")
	)
	flag.Parse()

	cfg, err := app.LoadConfig(app.ConfigPath(*configPath))
	if err != nil {
		fatal(err)
	}
	if *listenAddr != "" {
		cfg.Server.Listen = *listenAddr
	}
	if *schedule {
		cfg.Schedule.Enabled = true
		if err := cfg.Validate(); err != nil {
			fatal(err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sm := shutdown.NewManager()

	stores, err := app.OpenStores(cfg.Storage)
	if err != nil {
		fatal(err)
	}
	sm.OnShutdown("stores", func(context.Context) error { return stores.Close() })

	srvCfg := server.Config{
		Whitelist: stores.Whitelist,
		Signals:   stores.Journal,
		Audit:     stores.Audit,
	}

	var sched *services.Scheduler
	if cfg.Schedule.Enabled {
		if err := cfg.RequirePricingToken(); err != nil {
			fatal(err)
		}
		if err := cfg.RequireTradingToken(); err != nil {
			fatal(err)
		}
		src := source.NewFromConfig(cfg.Pricing)
		scan := app.NewScanService(cfg, src, stores)
		invest := app.NewInvestService(cfg, src, stores)
		sched, err = services.NewScheduler(
			func(ctx context.Context) error { _, err := scan.Scan(ctx); return err },
			func(ctx context.Context) error { _, err := invest.Invest(ctx); return err },
			time.Duration(cfg.Schedule.ScanIntervalHours)*time.Hour,
			cfg.Schedule.InvestAt,
		)
		if err != nil {
			fatal(err)
		}
		srvCfg.Source = src
		srvCfg.Scheduler = sched
	}

	srv, err := server.New(srvCfg)
	if err != nil {
		fatal(err)
	}
	httpSrv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	// 逆序执行：先停 http，再等后台任务退出，最后关闭存储
	group := syncgroup.NewSyncGroup()
	sm.OnShutdown("background", func(ctx context.Context) error {
		if !group.WaitTimeout(time.Until(deadline(ctx))) {
			return fmt.Errorf("后台任务未退出: %v", group.Running())
		}
		return nil
	})
	sm.OnShutdown("http", httpSrv.Shutdown)

	group.Go("http", func() {
		logger.Infof("状态服务监听 %s", cfg.Server.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("http server error: %v", err)
			cancel()
		}
	})
	group.Go("log-rotate", func() { app.RotateLogsDaily(ctx) })
	if sched != nil {
		group.Go("scheduler", func() { sched.Run(ctx) })
	}

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
wait:
	for {
		select {
		case <-ctx.Done():
			break wait
		case sig := <-stopCh:
			if sig == syscall.SIGHUP {
				if sched != nil {
					logger.Info("收到 SIGHUP，安排一次扫描")
					sched.TriggerScan()
				}
				continue
			}
			break wait
		}
	}

	cancel()
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	sm.Shutdown(shutdownCtx)

	fmt.Println("server stopped")
}

func deadline(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Now().Add(5 * time.Second)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}
