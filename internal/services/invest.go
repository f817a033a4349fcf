package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/skinscan/internal/domain"
	"github.com/betbot/skinscan/internal/execution"
	"github.com/betbot/skinscan/internal/metrics"
	"github.com/betbot/skinscan/internal/ports"
	"github.com/betbot/skinscan/internal/whitelist"
	"github.com/betbot/skinscan/pkg/config"
)

var investLog = logrus.WithField("component", "invest")

// ErrLowBalance 余额低于单次运行的最低要求
var ErrLowBalance = errors.New("账户余额不足，本次不执行")

// TargetLoader 读取白名单，*whitelist.Store 满足该接口
type TargetLoader interface {
	Load() (whitelist.Document, error)
}

// Runner 执行循环，*execution.Loop 满足该接口
type Runner interface {
	Run(ctx context.Context, targets []domain.Target, balance decimal.Decimal) (execution.Report, error)
}

// InvestService 读余额 → 读白名单 → 执行循环
type InvestService struct {
	minBalance decimal.Decimal
	balance    ports.BalanceGetter
	targets    TargetLoader
	loop       Runner
}

// NewInvestService 组装执行服务
func NewInvestService(cfg config.InvestConfig, balance ports.BalanceGetter, targets TargetLoader, loop Runner) *InvestService {
	return &InvestService{
		minBalance: decimal.NewFromFloat(cfg.MinBalanceRequired),
		balance:    balance,
		targets:    targets,
		loop:       loop,
	}
}

// Invest 执行一次下单运行。返回的 Report 在提前中止时仍包含中止前的结果。
func (s *InvestService) Invest(ctx context.Context) (execution.Report, error) {
	rep, err := s.invest(ctx)
	metrics.InvestRuns.WithLabelValues(investResult(err)).Inc()
	return rep, err
}

func (s *InvestService) invest(ctx context.Context) (execution.Report, error) {
	doc, err := s.targets.Load()
	if err != nil {
		return execution.Report{}, err
	}

	bal, err := s.balance.Balance(ctx)
	if err != nil {
		if errors.Is(err, ports.ErrAuthExpired) {
			return execution.Report{}, fmt.Errorf("%w: %v", execution.ErrAuthExpired, err)
		}
		return execution.Report{}, fmt.Errorf("查询余额失败: %w", err)
	}
	if bal.LessThan(s.minBalance) {
		investLog.Warnf("余额 %s 低于最低要求 %s", bal.StringFixed(2), s.minBalance.StringFixed(2))
		return execution.Report{FinalBalance: bal}, fmt.Errorf("%w: %s < %s", ErrLowBalance, bal.StringFixed(2), s.minBalance.StringFixed(2))
	}

	investLog.Infof("开始执行 batch=%s 白名单 %d 项 余额 %s", doc.BatchID, len(doc.Items), bal.StringFixed(2))
	rep, err := s.loop.Run(ctx, doc.Targets(), bal)
	switch {
	case errors.Is(err, execution.ErrCircuitOpen):
		investLog.Errorf("断路器打开: %v", err)
	case errors.Is(err, execution.ErrAuthExpired):
		investLog.Errorf("登录失效: %v", err)
	case err != nil:
		investLog.Errorf("执行中止: %v", err)
	default:
		investLog.Infof("执行完成: 尝试 %d 成功 %d 跳过 %d 剩余余额 %s",
			rep.Attempted, rep.Successes(), len(rep.Skipped), rep.FinalBalance.StringFixed(2))
	}
	return rep, err
}

func investResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, whitelist.ErrEmpty):
		return "empty_whitelist"
	case errors.Is(err, ErrLowBalance):
		return "low_balance"
	case errors.Is(err, execution.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, execution.ErrAuthExpired):
		return "auth_expired"
	}
	return "error"
}
