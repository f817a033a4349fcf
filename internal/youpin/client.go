// Package youpin 悠悠有品交易平台客户端：实时报价、求购下单、余额查询。
// 每个响应按 成功 / 繁忙 / 拒绝 / 登录失效 分类，分类规则来自配置。
package youpin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/betbot/skinscan/internal/domain"
	"github.com/betbot/skinscan/internal/ports"
	"github.com/betbot/skinscan/pkg/config"
	"github.com/betbot/skinscan/pkg/ratelimit"
	sdkhttp "github.com/betbot/skinscan/pkg/sdk/http"
)

var log = logrus.WithField("component", "youpin")

const (
	DefaultBaseURL = "https://api.youpin898.com"

	pathSaleList     = "/api/homepage/pc/goods/market/queryOnSaleCommodityList"
	pathPurchaseList = "/api/youpin/bff/trade/purchase/order/getTemplatePurchaseOrderListPC"
	pathPlaceOrder   = "/api/youpin/bff/trade/purchase/order/savePurchaseOrderInfo"
	pathUserInfo     = "/api/user/Account/getUserInfo"
)

// Classifier 响应分类规则
type Classifier struct {
	BusyCodes    map[int]bool
	BusyKeywords []string
	AuthCodes    map[int]bool
}

// NewClassifier 从交易配置构建
func NewClassifier(cfg config.TradingConfig) Classifier {
	c := Classifier{
		BusyCodes:    make(map[int]bool, len(cfg.BusyCodes)),
		BusyKeywords: cfg.BusyKeywords,
		AuthCodes:    make(map[int]bool, len(cfg.AuthExpiredCodes)),
	}
	for _, code := range cfg.BusyCodes {
		c.BusyCodes[code] = true
	}
	for _, code := range cfg.AuthExpiredCodes {
		c.AuthCodes[code] = true
	}
	return c
}

// Classify 按 HTTP 状态、业务码和消息分类。登录失效优先于繁忙。
func (c Classifier) Classify(status, code int, msg string) domain.PurchaseOutcome {
	if status == http.StatusUnauthorized || c.AuthCodes[code] {
		return domain.PurchaseAuthExpired
	}
	if status == http.StatusTooManyRequests || c.BusyCodes[code] {
		return domain.PurchaseBusy
	}
	for _, kw := range c.BusyKeywords {
		if kw != "" && strings.Contains(msg, kw) {
			return domain.PurchaseBusy
		}
	}
	if status >= 200 && status < 300 && code == 0 {
		return domain.PurchaseSuccess
	}
	return domain.PurchaseRejected
}

type quoteMeta struct {
	name     string
	hashName string
}

// Client 交易平台客户端
type Client struct {
	http       *sdkhttp.Client
	token      string
	deviceID   string
	limiter    *rate.Limiter
	classifier Classifier
	now        func() time.Time

	mu    sync.Mutex
	metas map[string]quoteMeta // 下单需要报价时拿到的 hash name
}

// NewClient 创建客户端
func NewClient(cfg config.TradingConfig) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return &Client{
		http: sdkhttp.NewClient(base, sdkhttp.Options{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
			Headers: map[string]string{"platform": "pc", "app-version": "5.26.0"},
		}),
		token:      cfg.Token,
		deviceID:   cfg.DeviceID,
		limiter:    ratelimit.NewMinInterval(time.Duration(cfg.MinIntervalMs) * time.Millisecond),
		classifier: NewClassifier(cfg),
		now:        time.Now,
		metas:      make(map[string]quoteMeta),
	}
}

// call 发送请求并解析外壳；返回分类结果。网络错误作为 error 返回。
func (c *Client) call(ctx context.Context, method, path string, body any) (*envelope, domain.PurchaseOutcome, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}
	headers := map[string]string{"Authorization": "Bearer " + c.token}
	if c.deviceID != "" {
		headers["deviceid"] = c.deviceID
	}
	resp, err := c.http.DoRequest(ctx, method, path, &sdkhttp.RequestOptions{Headers: headers, Data: body}, nil)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "youpin %s", path)
	}

	env := &envelope{Code: -1}
	if b := resp.Body(); len(b) > 0 {
		if err := json.Unmarshal(b, env); err != nil && resp.IsSuccess() {
			return nil, 0, errors.Wrapf(err, "youpin %s: malformed body", path)
		}
	}
	outcome := c.classifier.Classify(resp.StatusCode(), env.Code, env.Msg)
	return env, outcome, nil
}

func classifiedErr(outcome domain.PurchaseOutcome, env *envelope) error {
	switch outcome {
	case domain.PurchaseBusy:
		return fmt.Errorf("%w: code %d %s", ports.ErrBusy, env.Code, env.Msg)
	case domain.PurchaseAuthExpired:
		return fmt.Errorf("%w: code %d %s", ports.ErrAuthExpired, env.Code, env.Msg)
	}
	return fmt.Errorf("youpin rejected: code %d %s", env.Code, env.Msg)
}

// LiveQuote 当前最低在售价；竞争求购价查询失败时按未知处理（繁忙和登录失效除外）
func (c *Client) LiveQuote(ctx context.Context, itemID string) (domain.Quote, error) {
	env, outcome, err := c.call(ctx, http.MethodPost, pathSaleList, saleListRequest{
		GameID: "730", ListType: "10", TemplateID: itemID, PageIndex: 1, PageSize: 1, SortType: "1",
	})
	if err != nil {
		return domain.Quote{}, err
	}
	if outcome != domain.PurchaseSuccess {
		return domain.Quote{}, classifiedErr(outcome, env)
	}
	var list saleList
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &list); err != nil {
			return domain.Quote{}, errors.Wrap(err, "youpin sale list")
		}
	}
	if len(list) == 0 {
		return domain.Quote{}, fmt.Errorf("饰品 %s 当前无在售", itemID)
	}
	top := list[0]

	c.mu.Lock()
	c.metas[itemID] = quoteMeta{name: top.CommodityName, hashName: top.CommodityHashName}
	c.mu.Unlock()

	bid, err := c.competingBid(ctx, itemID)
	if err != nil {
		if errors.Is(err, ports.ErrBusy) || errors.Is(err, ports.ErrAuthExpired) {
			return domain.Quote{}, err
		}
		log.Debugf("饰品 %s 求购价查询失败，按未知处理: %v", itemID, err)
	}
	return domain.Quote{
		ItemID:       itemID,
		Name:         top.CommodityName,
		LowestPrice:  top.Price,
		CompetingBid: bid,
		FetchedAt:    c.now(),
	}, nil
}

func (c *Client) competingBid(ctx context.Context, itemID string) (decimal.Decimal, error) {
	env, outcome, err := c.call(ctx, http.MethodPost, pathPurchaseList, purchaseListRequest{TemplateID: itemID, PageIndex: 1, PageSize: 1})
	if err != nil {
		return decimal.Zero, err
	}
	if outcome != domain.PurchaseSuccess {
		return decimal.Zero, classifiedErr(outcome, env)
	}
	var orders []purchaseOrder
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &orders); err != nil {
			return decimal.Zero, errors.Wrap(err, "youpin purchase list")
		}
	}
	if len(orders) == 0 {
		return decimal.Zero, nil
	}
	return orders[0].PurchasePrice, nil
}

// PlaceBuyOrder 以信号目标价发布一件求购
func (c *Client) PlaceBuyOrder(ctx context.Context, sig domain.Signal) (domain.PurchaseResult, error) {
	c.mu.Lock()
	meta := c.metas[sig.ItemID]
	c.mu.Unlock()
	if meta.name == "" {
		meta.name = sig.Name
	}

	env, outcome, err := c.call(ctx, http.MethodPost, pathPlaceOrder, placeOrderRequest{
		TemplateID:       sig.ItemID,
		TemplateHashName: meta.hashName,
		CommodityName:    meta.name,
		PurchasePrice:    sig.TargetPrice.StringFixed(2),
		PurchaseNum:      1,
	})
	if err != nil {
		return domain.PurchaseResult{}, err
	}
	res := domain.PurchaseResult{Outcome: outcome, Code: env.Code, Message: env.Msg}
	if outcome == domain.PurchaseSuccess {
		// 下单已成功，订单号解析失败只记录，不改变结果
		var d placeOrderData
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &d); err != nil {
				log.Warnf("求购已发布但订单号解析失败 item=%s data=%s: %v", sig.ItemID, string(env.Data), err)
			}
		}
		if d.OrderNo == "" {
			log.Warnf("求购已发布但响应中没有订单号 item=%s data=%s", sig.ItemID, string(env.Data))
		}
		res.OrderID = d.OrderNo
	}
	return res, nil
}

// Balance 账户可用余额
func (c *Client) Balance(ctx context.Context) (decimal.Decimal, error) {
	env, outcome, err := c.call(ctx, http.MethodGet, pathUserInfo, nil)
	if err != nil {
		return decimal.Zero, err
	}
	if outcome != domain.PurchaseSuccess {
		return decimal.Zero, classifiedErr(outcome, env)
	}
	var u userInfo
	if err := json.Unmarshal(env.Data, &u); err != nil {
		return decimal.Zero, errors.Wrap(err, "youpin user info")
	}
	return u.TotalMoney, nil
}
