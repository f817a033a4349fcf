// Package execution 按白名单逐个核价、生成信号、检查并下单。
// 单次运行严格串行；连续繁忙触发断路器，登录失效立即中止。
package execution

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/skinscan/internal/domain"
	"github.com/betbot/skinscan/internal/metrics"
	"github.com/betbot/skinscan/internal/ports"
	"github.com/betbot/skinscan/internal/risk"
	"github.com/betbot/skinscan/internal/signal"
	"github.com/betbot/skinscan/pkg/config"
	"github.com/betbot/skinscan/pkg/retry"
)

var log = logrus.WithField("component", "execution")

var (
	ErrCircuitOpen = errors.New("连续触发风控，本次运行已中止；当前 IP/账号可能已被标记，建议等待 30 分钟以上再运行")
	ErrAuthExpired = errors.New("交易平台登录已失效，请在外部刷新令牌后再运行")
)

// Config 单次运行参数
type Config struct {
	MaxAttempts     int
	MaxOrders       int
	JitterMin       time.Duration
	JitterMax       time.Duration
	BusyThreshold   int
	BusyRecovery    time.Duration
	SuccessCooldown time.Duration
}

// ConfigFrom 从执行配置转换
func ConfigFrom(c config.InvestConfig) Config {
	return Config{
		MaxAttempts:     c.MaxAttemptsPerRun,
		MaxOrders:       c.MaxOrdersPerRun,
		JitterMin:       time.Duration(c.JitterMinSeconds) * time.Second,
		JitterMax:       time.Duration(c.JitterMaxSeconds) * time.Second,
		BusyThreshold:   c.BusyThreshold,
		BusyRecovery:    c.BusyRecovery(),
		SuccessCooldown: c.SuccessCooldown(),
	}
}

// SignalRecorder 信号落盘
type SignalRecorder interface {
	Append(s domain.Signal) error
}

// Deps 执行循环依赖
type Deps struct {
	Quotes    ports.QuoteSource
	Placer    ports.OrderPlacer
	Journal   SignalRecorder
	Generator *signal.Generator
	Gate      signal.Gate
	Sleep     retry.Sleeper
	Rand      *rand.Rand
	Now       func() time.Time
}

// Loop 执行循环
type Loop struct {
	cfg  Config
	deps Deps
}

// New 创建执行循环
func New(cfg Config, deps Deps) *Loop {
	if deps.Sleep == nil {
		deps.Sleep = retry.Sleep
	}
	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Loop{cfg: cfg, deps: deps}
}

// Order 成功的下单
type Order struct {
	SignalID string          `json:"signal_id"`
	ItemID   string          `json:"item_id"`
	Name     string          `json:"name"`
	OrderID  string          `json:"order_id"`
	Price    decimal.Decimal `json:"price"`
}

// Skip 被跳过的目标及原因
type Skip struct {
	ItemID string `json:"item_id"`
	Name   string `json:"name"`
	Stage  string `json:"stage"` // quote / signal / gate / order
	Reason string `json:"reason"`
}

// Report 单次运行结果
type Report struct {
	Attempted    int                 `json:"attempted"`
	Orders       []Order             `json:"orders"`
	Skipped      []Skip              `json:"skipped"`
	AbortReason  string              `json:"abort_reason,omitempty"`
	Circuit      domain.CircuitState `json:"circuit"`
	FinalBalance decimal.Decimal     `json:"final_balance"`
}

// Successes 成功下单数
func (r Report) Successes() int { return len(r.Orders) }

// Run 执行一次。目标被打乱后截取前 MaxAttempts 个。
// 繁忙计数在报价或下单得到任何非繁忙响应时清零，只有连续繁忙才会熔断。
// 返回 ErrCircuitOpen / ErrAuthExpired 表示提前中止，Report 仍包含中止前的结果。
func (l *Loop) Run(ctx context.Context, targets []domain.Target, balance decimal.Decimal) (Report, error) {
	breaker := risk.NewCircuitBreaker(risk.CircuitBreakerConfig{BusyThreshold: int64(l.cfg.BusyThreshold)}).WithClock(l.deps.Now)
	rep := Report{FinalBalance: balance}

	queue := make([]domain.Target, len(targets))
	copy(queue, targets)
	l.deps.Rand.Shuffle(len(queue), func(i, j int) { queue[i], queue[j] = queue[j], queue[i] })
	if l.cfg.MaxAttempts > 0 && len(queue) > l.cfg.MaxAttempts {
		queue = queue[:l.cfg.MaxAttempts]
	}
	log.Infof("开始执行: %d 个目标, 余额 %s", len(queue), balance.StringFixed(2))

	err := l.run(ctx, queue, breaker, &rep)
	rep.Circuit = breaker.Snapshot()
	switch {
	case errors.Is(err, ErrCircuitOpen):
		metrics.CircuitTrips.Inc()
		rep.AbortReason = "circuit_open"
		log.Errorf("!!! %v（成功 %d 个）", err, rep.Successes())
	case errors.Is(err, ErrAuthExpired):
		rep.AbortReason = "auth_expired"
		log.Errorf("!!! %v（成功 %d 个）", err, rep.Successes())
	case err != nil:
		rep.AbortReason = err.Error()
		log.Errorf("执行中止: %v", err)
	default:
		log.Infof("执行结束: 尝试 %d 个, 成功 %d 个, 剩余余额 %s", rep.Attempted, rep.Successes(), rep.FinalBalance.StringFixed(2))
	}
	return rep, err
}

func (l *Loop) run(ctx context.Context, queue []domain.Target, breaker *risk.CircuitBreaker, rep *Report) error {
	for i, t := range queue {
		if l.cfg.MaxOrders > 0 && breaker.Successes() >= l.cfg.MaxOrders {
			log.Infof("已达到本次运行最大下单数 (%d)，停止", l.cfg.MaxOrders)
			return nil
		}
		if err := breaker.AllowTrading(); err != nil {
			return ErrCircuitOpen
		}

		wait := l.jitter()
		log.Infof("[%d/%d] %s 等待 %.1f 秒", i+1, len(queue), t.Name, wait.Seconds())
		if err := l.deps.Sleep(ctx, wait); err != nil {
			return err
		}
		rep.Attempted++

		quote, err := l.deps.Quotes.LiveQuote(ctx, t.ItemID)
		switch {
		case errors.Is(err, ports.ErrAuthExpired):
			metrics.ExecutionOutcomes.WithLabelValues(domain.PurchaseAuthExpired.String()).Inc()
			breaker.Halt()
			return ErrAuthExpired
		case errors.Is(err, ports.ErrBusy):
			if err := l.onBusy(ctx, breaker, "查询报价"); err != nil {
				return err
			}
			continue
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			breaker.OnNeutral()
			l.skip(rep, t, "quote", fmt.Sprintf("获取实时报价失败: %v", err))
			continue
		}
		breaker.OnNeutral()

		sig, err := l.deps.Generator.Generate(t, quote)
		if err != nil {
			l.skip(rep, t, "signal", err.Error())
			continue
		}
		if err := l.deps.Journal.Append(sig); err != nil {
			return fmt.Errorf("信号落盘失败，停止下单: %w", err)
		}
		metrics.Signals.Inc()

		if rej := l.deps.Gate.Check(sig, rep.FinalBalance); rej != nil {
			metrics.GateRejections.WithLabelValues(rej.Check).Inc()
			l.skip(rep, t, "gate", rej.Reason)
			continue
		}

		log.Infof("下单 -> %s | 价格 %s, 市场价 %s, 等级 %s", sig.Name, sig.TargetPrice.StringFixed(2), sig.LivePrice.StringFixed(2), sig.Tier)
		res, err := l.deps.Placer.PlaceBuyOrder(ctx, sig)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.skip(rep, t, "order", fmt.Sprintf("下单请求失败: %v", err))
			continue
		}
		metrics.ExecutionOutcomes.WithLabelValues(res.Outcome.String()).Inc()

		switch res.Outcome {
		case domain.PurchaseSuccess:
			breaker.OnSuccess()
			rep.FinalBalance = rep.FinalBalance.Sub(sig.TargetPrice)
			rep.Orders = append(rep.Orders, Order{SignalID: sig.ID, ItemID: sig.ItemID, Name: sig.Name, OrderID: res.OrderID, Price: sig.TargetPrice})
			log.Infof("下单成功 %s 订单号 %s，余额 %s", sig.Name, res.OrderID, rep.FinalBalance.StringFixed(2))
			if i < len(queue)-1 && (l.cfg.MaxOrders <= 0 || breaker.Successes() < l.cfg.MaxOrders) {
				log.Infof("成功后休息 %s", l.cfg.SuccessCooldown)
				if err := l.deps.Sleep(ctx, l.cfg.SuccessCooldown); err != nil {
					return err
				}
			}
		case domain.PurchaseBusy:
			if err := l.onBusy(ctx, breaker, "下单"); err != nil {
				return err
			}
		case domain.PurchaseAuthExpired:
			breaker.Halt()
			return ErrAuthExpired
		default:
			breaker.OnNeutral()
			l.skip(rep, t, "order", fmt.Sprintf("下单被拒绝 code=%d %s", res.Code, res.Message))
		}
	}
	return nil
}

// onBusy 繁忙计数；达到阈值立即中止，否则休息固定时长后继续下一个
func (l *Loop) onBusy(ctx context.Context, breaker *risk.CircuitBreaker, what string) error {
	metrics.ExecutionOutcomes.WithLabelValues(domain.PurchaseBusy.String()).Inc()
	if breaker.OnBusy() {
		return ErrCircuitOpen
	}
	snap := breaker.Snapshot()
	log.Warnf("%s遇到系统繁忙 (%d/%d)，暂停 %s", what, snap.BusyCount, l.cfg.BusyThreshold, l.cfg.BusyRecovery)
	return l.deps.Sleep(ctx, l.cfg.BusyRecovery)
}

func (l *Loop) skip(rep *Report, t domain.Target, stage, reason string) {
	log.Warnf("跳过 %s(%s) [%s] %s", t.Name, t.ItemID, stage, reason)
	rep.Skipped = append(rep.Skipped, Skip{ItemID: t.ItemID, Name: t.Name, Stage: stage, Reason: reason})
}

func (l *Loop) jitter() time.Duration {
	lo, hi := l.cfg.JitterMin, l.cfg.JitterMax
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(l.deps.Rand.Int63n(int64(hi-lo)))
}
