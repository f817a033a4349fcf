package youpin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/skinscan/internal/domain"
	"github.com/betbot/skinscan/internal/ports"
	"github.com/betbot/skinscan/pkg/config"
)

func tradingCfg(base string) config.TradingConfig {
	return config.TradingConfig{
		BaseURL:          base,
		Token:            "tok",
		TimeoutSeconds:   5,
		BusyCodes:        []int{84104, 429, -1},
		BusyKeywords:     []string{"频繁", "系统繁忙"},
		AuthExpiredCodes: []int{84101, 401},
	}
}

func TestClassifier(t *testing.T) {
	c := NewClassifier(tradingCfg(""))
	cases := []struct {
		status int
		code   int
		msg    string
		want   domain.PurchaseOutcome
	}{
		{200, 0, "成功", domain.PurchaseSuccess},
		{200, 84104, "", domain.PurchaseBusy},
		{429, 0, "", domain.PurchaseBusy},
		{200, 1001, "操作过于频繁，请稍后再试", domain.PurchaseBusy},
		{200, -1, "", domain.PurchaseBusy},
		{200, 84101, "登录已过期", domain.PurchaseAuthExpired},
		{401, 0, "", domain.PurchaseAuthExpired},
		{200, 2001, "求购价格不合法", domain.PurchaseRejected},
		{500, 0, "", domain.PurchaseRejected},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, c.Classify(tc.status, tc.code, tc.msg), "status=%d code=%d msg=%s", tc.status, tc.code, tc.msg)
	}
}

func newServer(t *testing.T, h map[string]func(w http.ResponseWriter, body map[string]any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		fn, ok := h[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		fn(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_LiveQuoteAndPlaceOrder(t *testing.T) {
	var placed map[string]any
	srv := newServer(t, map[string]func(http.ResponseWriter, map[string]any){
		pathSaleList: func(w http.ResponseWriter, body map[string]any) {
			assert.Equal(t, "42", body["templateId"])
			_, _ = w.Write([]byte(`{"Code":0,"Msg":"成功","Data":{"CommodityList":[{"commodityName":"AK-47 | 红线","commodityHashName":"AK-47 | Redline (Field-Tested)","price":"123.45"}]}}`))
		},
		pathPurchaseList: func(w http.ResponseWriter, _ map[string]any) {
			_, _ = w.Write([]byte(`{"code":0,"msg":"ok","data":[{"purchasePrice":110.5}]}`))
		},
		pathPlaceOrder: func(w http.ResponseWriter, body map[string]any) {
			placed = body
			_, _ = w.Write([]byte(`{"Code":0,"Msg":"成功","Data":{"orderNo":"P123"}}`))
		},
	})
	c := NewClient(tradingCfg(srv.URL))

	q, err := c.LiveQuote(context.Background(), "42")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("123.45").Equal(q.LowestPrice))
	assert.True(t, decimal.RequireFromString("110.5").Equal(q.CompetingBid))
	assert.Equal(t, "AK-47 | 红线", q.Name)

	res, err := c.PlaceBuyOrder(context.Background(), domain.Signal{ItemID: "42", Name: "AK", TargetPrice: decimal.RequireFromString("108.29")})
	require.NoError(t, err)
	assert.Equal(t, domain.PurchaseSuccess, res.Outcome)
	assert.Equal(t, "P123", res.OrderID)
	assert.Equal(t, "108.29", placed["purchasePrice"])
	assert.Equal(t, "AK-47 | Redline (Field-Tested)", placed["templateHashName"])
}

func TestClient_LiveQuoteClassifiesBusyAndAuth(t *testing.T) {
	code := 84104
	srv := newServer(t, map[string]func(http.ResponseWriter, map[string]any){
		pathSaleList: func(w http.ResponseWriter, _ map[string]any) {
			_ = json.NewEncoder(w).Encode(map[string]any{"Code": code, "Msg": "请求频繁"})
		},
	})
	c := NewClient(tradingCfg(srv.URL))

	_, err := c.LiveQuote(context.Background(), "1")
	assert.ErrorIs(t, err, ports.ErrBusy)

	code = 84101
	_, err = c.LiveQuote(context.Background(), "1")
	assert.ErrorIs(t, err, ports.ErrAuthExpired)
}

func TestClient_BidLookupFailureIsUnknownBid(t *testing.T) {
	srv := newServer(t, map[string]func(http.ResponseWriter, map[string]any){
		pathSaleList: func(w http.ResponseWriter, _ map[string]any) {
			_, _ = w.Write([]byte(`{"Code":0,"Data":[{"commodityName":"M4","price":300}]}`))
		},
		pathPurchaseList: func(w http.ResponseWriter, _ map[string]any) {
			_, _ = w.Write([]byte(`{"Code":3001,"Msg":"无求购"}`))
		},
	})
	c := NewClient(tradingCfg(srv.URL))

	q, err := c.LiveQuote(context.Background(), "7")
	require.NoError(t, err)
	assert.True(t, q.CompetingBid.IsZero())
	assert.True(t, decimal.NewFromInt(300).Equal(q.LowestPrice))
}

func TestClient_PlaceOrderOutcomes(t *testing.T) {
	reply := `{"Code":2001,"Msg":"余额不足"}`
	srv := newServer(t, map[string]func(http.ResponseWriter, map[string]any){
		pathPlaceOrder: func(w http.ResponseWriter, _ map[string]any) { _, _ = w.Write([]byte(reply)) },
	})
	c := NewClient(tradingCfg(srv.URL))
	sig := domain.Signal{ItemID: "1", TargetPrice: decimal.NewFromInt(100)}

	res, err := c.PlaceBuyOrder(context.Background(), sig)
	require.NoError(t, err)
	assert.Equal(t, domain.PurchaseRejected, res.Outcome)
	assert.Equal(t, 2001, res.Code)

	reply = `{"Code":-1,"Msg":"系统繁忙"}`
	res, err = c.PlaceBuyOrder(context.Background(), sig)
	require.NoError(t, err)
	assert.Equal(t, domain.PurchaseBusy, res.Outcome)
}

func TestClient_PlaceOrderUndecodableOrderNoIsLogged(t *testing.T) {
	srv := newServer(t, map[string]func(http.ResponseWriter, map[string]any){
		pathPlaceOrder: func(w http.ResponseWriter, _ map[string]any) {
			_, _ = w.Write([]byte(`{"Code":0,"Msg":"成功","Data":["unexpected"]}`))
		},
	})
	hook := logtest.NewGlobal()
	defer hook.Reset()

	res, err := NewClient(tradingCfg(srv.URL)).PlaceBuyOrder(context.Background(), domain.Signal{ItemID: "9", TargetPrice: decimal.NewFromInt(100)})
	require.NoError(t, err)
	assert.Equal(t, domain.PurchaseSuccess, res.Outcome)
	assert.Empty(t, res.OrderID)

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["component"] == "youpin" {
			warned = true
			assert.Contains(t, e.Message, "unexpected")
		}
	}
	assert.True(t, warned, "订单号缺失应留下告警")
}

func TestClient_Balance(t *testing.T) {
	srv := newServer(t, map[string]func(http.ResponseWriter, map[string]any){
		pathUserInfo: func(w http.ResponseWriter, _ map[string]any) {
			_, _ = w.Write([]byte(`{"Code":0,"Data":{"TotalMoney":"1520.66"}}`))
		},
	})
	b, err := NewClient(tradingCfg(srv.URL)).Balance(context.Background())
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("1520.66").Equal(b))
}

func TestDryRunPlacer(t *testing.T) {
	p := NewDryRunPlacer()
	res, err := p.PlaceBuyOrder(context.Background(), domain.Signal{ItemID: "1", TargetPrice: decimal.NewFromInt(5)})
	require.NoError(t, err)
	assert.Equal(t, domain.PurchaseSuccess, res.Outcome)
	assert.Contains(t, res.OrderID, "DRY-")
	assert.Len(t, p.Placed(), 1)

	bal, err := FixedBalance(decimal.NewFromInt(500)).Balance(context.Background())
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(500).Equal(bal))
}
