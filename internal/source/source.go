// Package source 把所有对行情 API 的出站请求串行化到一个连接状态机上：
// 绑定 IP、限流冷却、凭证失效、最小请求间隔与瞬时错误重试都在这里统一处理。
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/skinscan/internal/csqaq"
	"github.com/betbot/skinscan/internal/domain"
	"github.com/betbot/skinscan/internal/metrics"
	"github.com/betbot/skinscan/pkg/cache"
	"github.com/betbot/skinscan/pkg/config"
	"github.com/betbot/skinscan/pkg/ratelimit"
	"github.com/betbot/skinscan/pkg/retry"
)

var log = logrus.WithField("component", "source")

// 连接级错误：结束本次运行
var (
	ErrCredentialsInvalid = errors.New("行情 API 凭证无效，请更换令牌后重启")
	ErrCoolingDown        = errors.New("行情 API 冷却中")
	ErrRateLimited        = errors.New("行情 API 触发限流")
)

// 单条记录级错误：转为该记录的拒绝原因
var (
	ErrUnauthorized = errors.New("行情 API 未授权（本轮已重新绑定过）")
	ErrTransient    = errors.New("行情 API 暂时不可用")
	ErrRejected     = errors.New("行情 API 拒绝请求")
)

// 内部分类标记
var (
	errAuth401      = errors.New("http 401")
	errRetryable    = errors.New("retryable")
	errNotRetryable = errors.New("not retryable")
)

// IsFatal 连接级或认证级错误，调用方应结束本次运行
func IsFatal(err error) bool {
	return errors.Is(err, ErrCredentialsInvalid) ||
		errors.Is(err, ErrCoolingDown) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Options 数据源参数
type Options struct {
	Cooldown        time.Duration
	MaxAttempts     int
	BackoffStep     time.Duration
	RateLimitCodes  []int
	MinIntervals    map[string]time.Duration
	DefaultInterval time.Duration
	CacheTTL        time.Duration
	Now             func() time.Time
	Sleep           retry.Sleeper
}

// Source 行情 API 的限流访问层。一个实例对应一个 API 凭证，由单个运行独占。
type Source struct {
	transport      csqaq.Transport
	pacer          *ratelimit.Pacer
	policy         retry.Policy
	cooldown       time.Duration
	rateLimitCodes map[int]bool
	now            func() time.Time

	mu            sync.RWMutex // 保护状态字段，便于状态服务并发读取
	state         domain.BindState
	cooldownUntil time.Time
	fatalErr      error

	rebindUsed          bool
	consecutiveFailures int
	boundIP             string

	details *cache.TTLCache[string, domain.RawMarketRecord]
	history *cache.TTLCache[string, []float64]
}

// New 创建数据源，初始状态为 Unbound
func New(transport csqaq.Transport, opts Options) *Source {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = 35 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	if len(opts.RateLimitCodes) == 0 {
		opts.RateLimitCodes = []int{http.StatusTooManyRequests}
	}
	codes := make(map[int]bool, len(opts.RateLimitCodes))
	for _, c := range opts.RateLimitCodes {
		codes[c] = true
	}

	return &Source{
		transport: transport,
		pacer:     ratelimit.NewPacer(opts.MinIntervals, opts.DefaultInterval),
		policy: retry.Policy{
			MaxAttempts: opts.MaxAttempts,
			Backoff:     retry.Linear(opts.BackoffStep),
			Retryable:   func(err error) bool { return errors.Is(err, errRetryable) },
			Sleep:       opts.Sleep,
		},
		cooldown:       opts.Cooldown,
		rateLimitCodes: codes,
		now:            opts.Now,
		state:          domain.BindUnbound,
		details:        cache.New[string, domain.RawMarketRecord](opts.CacheTTL, cache.Clock(opts.Now)),
		history:        cache.New[string, []float64](opts.CacheTTL, cache.Clock(opts.Now)),
	}
}

// State 当前连接状态
func (s *Source) State() domain.BindState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// BoundIP 最近一次绑定成功时上游返回的出口 IP
func (s *Source) BoundIP() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.boundIP
}

// Status 状态服务使用的快照
// CooldownUntil 只在冷却中时有值；ConsecutiveFailures 成功一次即清零
type Status struct {
	State               string    `json:"state"`
	BoundIP             string    `json:"bound_ip,omitempty"`
	CooldownUntil       time.Time `json:"cooldown_until,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
}

// Status 当前状态快照，可在其它 goroutine 中调用
func (s *Source) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		State:               s.state.String(),
		BoundIP:             s.boundIP,
		ConsecutiveFailures: s.consecutiveFailures,
	}
	if s.state == domain.BindCooldown {
		st.CooldownUntil = s.cooldownUntil
	}
	if s.fatalErr != nil {
		st.LastError = s.fatalErr.Error()
	}
	return st
}

// BeginBurst 开始新的一轮请求；每轮最多因 401 重新绑定一次
func (s *Source) BeginBurst() {
	s.rebindUsed = false
}

func (s *Source) setState(to domain.BindState) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()
	if from != to {
		log.Debugf("连接状态 %s -> %s", from, to)
		metrics.ObserveBindTransition(from, to)
	}
}

func (s *Source) enterCooldown(reason string) {
	until := s.now().Add(s.cooldown)
	s.mu.Lock()
	s.cooldownUntil = until
	s.mu.Unlock()
	s.setState(domain.BindCooldown)
	log.Warnf("行情 API 进入冷却 %s（%s），冷却结束前不再发出请求", s.cooldown, reason)
}

// admit 本地判断是否允许请求离开进程
func (s *Source) admit() error {
	switch s.State() {
	case domain.BindInvalid:
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.fatalErr
	case domain.BindCooldown:
		now := s.now()
		s.mu.RLock()
		until := s.cooldownUntil
		s.mu.RUnlock()
		if now.Before(until) {
			return fmt.Errorf("%w: 剩余 %s", ErrCoolingDown, until.Sub(now).Round(time.Second))
		}
		s.setState(domain.BindUnbound)
	}
	return nil
}

// bind 调用绑定接口。401/403 进入 Invalid（终态），其它失败进入 Cooldown。
func (s *Source) bind(ctx context.Context) error {
	s.setState(domain.BindBinding)

	if err := s.pacer.Wait(ctx, csqaq.EndpointBind); err != nil {
		s.setState(domain.BindUnbound)
		return err
	}
	resp, err := s.transport.Do(ctx, csqaq.BindCall())
	if err != nil {
		metrics.PricingRequests.WithLabelValues(csqaq.EndpointBind, "error").Inc()
		if ctx.Err() != nil {
			s.setState(domain.BindUnbound)
			return ctx.Err()
		}
		s.enterCooldown("绑定请求失败: " + err.Error())
		return fmt.Errorf("%w: 绑定 IP 失败: %v", ErrCoolingDown, err)
	}

	code := resp.Envelope.Code
	switch {
	case isAuthStatus(resp.HTTPStatus) || isAuthStatus(code):
		metrics.PricingRequests.WithLabelValues(csqaq.EndpointBind, "auth").Inc()
		fatal := fmt.Errorf("%w (HTTP %d, code %d, %s)", ErrCredentialsInvalid, resp.HTTPStatus, code, resp.Envelope.Msg)
		s.mu.Lock()
		s.fatalErr = fatal
		s.mu.Unlock()
		s.setState(domain.BindInvalid)
		log.Errorf("绑定 IP 被拒绝，令牌无效或已过期：%v", fatal)
		return fatal
	case resp.HTTPStatus == http.StatusOK && resp.Envelope.Success():
		metrics.PricingRequests.WithLabelValues(csqaq.EndpointBind, "ok").Inc()
		ip := csqaq.BoundIP(resp.Envelope.Data)
		s.mu.Lock()
		prev := s.boundIP
		if ip != "" {
			s.boundIP = ip
		}
		s.mu.Unlock()
		if ip != "" && prev != "" && ip != prev {
			log.Warnf("检测到出口 IP 变化: %s -> %s", prev, ip)
		}
		s.setState(domain.BindBound)
		log.Infof("行情 API 绑定成功 ip=%s", s.BoundIP())
		return nil
	default:
		metrics.PricingRequests.WithLabelValues(csqaq.EndpointBind, "failed").Inc()
		s.enterCooldown(fmt.Sprintf("绑定失败 HTTP %d code %d %s", resp.HTTPStatus, code, resp.Envelope.Msg))
		return fmt.Errorf("%w: 绑定 IP 失败 (HTTP %d, code %d)", ErrCoolingDown, resp.HTTPStatus, code)
	}
}

func isAuthStatus(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

// Request 通过状态机发出一次请求，返回 envelope 的 data
func (s *Source) Request(ctx context.Context, call csqaq.Call) (json.RawMessage, error) {
	if err := s.admit(); err != nil {
		return nil, err
	}
	if s.State() == domain.BindUnbound {
		if err := s.bind(ctx); err != nil {
			return nil, err
		}
	}

	data, err := s.send(ctx, call)
	if !errors.Is(err, errAuth401) {
		return data, err
	}

	if s.rebindUsed {
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, call.Endpoint)
	}
	s.rebindUsed = true
	log.Warnf("%s 返回 401，立即重新绑定 IP", call.Endpoint)
	if err := s.bind(ctx); err != nil {
		return nil, err
	}
	data, err = s.send(ctx, call)
	if errors.Is(err, errAuth401) {
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, call.Endpoint)
	}
	return data, err
}

// send 在 Bound 状态下发送请求，瞬时错误按线性退避重试
func (s *Source) send(ctx context.Context, call csqaq.Call) (json.RawMessage, error) {
	var data json.RawMessage
	err := s.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		if err := s.pacer.Wait(ctx, call.Endpoint); err != nil {
			return err
		}
		resp, err := s.transport.Do(ctx, call)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, csqaq.ErrMalformed) {
				s.observe(call.Endpoint, "malformed")
				return fmt.Errorf("%w: %v", errNotRetryable, err)
			}
			s.observe(call.Endpoint, "transient")
			log.Debugf("%s 第 %d 次请求失败: %v", call.Endpoint, attempt, err)
			return fmt.Errorf("%w: %v", errRetryable, err)
		}

		env := resp.Envelope
		switch {
		case resp.HTTPStatus == http.StatusUnauthorized || env.Code == http.StatusUnauthorized:
			s.observe(call.Endpoint, "unauthorized")
			return errAuth401
		case resp.HTTPStatus == http.StatusTooManyRequests || s.rateLimitCodes[env.Code]:
			s.observe(call.Endpoint, "rate_limited")
			s.enterCooldown(fmt.Sprintf("%s HTTP %d code %d %s", call.Endpoint, resp.HTTPStatus, env.Code, env.Msg))
			return fmt.Errorf("%w: %s", ErrRateLimited, call.Endpoint)
		case resp.HTTPStatus >= 500 || (resp.HTTPStatus < 300 && env.Code >= 500):
			s.observe(call.Endpoint, "transient")
			log.Debugf("%s 第 %d 次请求服务端错误 HTTP %d code %d", call.Endpoint, attempt, resp.HTTPStatus, env.Code)
			return fmt.Errorf("%w: HTTP %d code %d", errRetryable, resp.HTTPStatus, env.Code)
		case resp.HTTPStatus < 200 || resp.HTTPStatus >= 300 || !env.Success():
			s.observe(call.Endpoint, "rejected")
			return fmt.Errorf("%w: %s HTTP %d code %d %s", ErrRejected, call.Endpoint, resp.HTTPStatus, env.Code, env.Msg)
		}

		s.observe(call.Endpoint, "ok")
		data = env.Data
		return nil
	})

	s.mu.Lock()
	if err == nil {
		s.consecutiveFailures = 0
	} else {
		s.consecutiveFailures++
	}
	s.mu.Unlock()
	if err == nil {
		return data, nil
	}

	var exhausted *retry.ExhaustedError
	switch {
	case errors.As(err, &exhausted):
		return nil, fmt.Errorf("%w: %s 重试 %d 次后仍失败: %v", ErrTransient, call.Endpoint, exhausted.Attempts, exhausted.Err)
	case errors.Is(err, errNotRetryable):
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	return nil, err
}

func (s *Source) observe(endpoint, result string) {
	metrics.PricingRequests.WithLabelValues(endpoint, result).Inc()
}

// OptionsFrom 从行情 API 配置转换
func OptionsFrom(cfg config.PricingConfig) Options {
	return Options{
		Cooldown:        cfg.BindCooldown(),
		MaxAttempts:     cfg.MaxAttempts,
		BackoffStep:     time.Duration(cfg.BackoffStepMs) * time.Millisecond,
		RateLimitCodes:  cfg.RateLimitCodes,
		MinIntervals:    cfg.MinIntervals(),
		DefaultInterval: time.Duration(cfg.DefaultIntervalMs) * time.Millisecond,
		CacheTTL:        cfg.CacheTTL(),
	}
}

// NewFromConfig 使用 HTTP 传输层创建数据源
func NewFromConfig(cfg config.PricingConfig) *Source {
	transport := csqaq.NewHTTPTransport(cfg.BaseURL, cfg.APIToken, time.Duration(cfg.TimeoutSeconds)*time.Second)
	return New(transport, OptionsFrom(cfg))
}
