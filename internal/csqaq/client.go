package csqaq

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"

	sdkhttp "github.com/betbot/skinscan/pkg/sdk/http"
)

// 端点名，同时用作节流与指标的标签
const (
	EndpointBind   = "bind"
	EndpointRank   = "rank"
	EndpointDetail = "detail"
	EndpointChart  = "chart"
)

// DefaultBaseURL 官方 API 地址
const DefaultBaseURL = "https://api.csqaq.com/api/v1"

// ErrMalformed 响应体不是合法的 envelope
var ErrMalformed = errors.New("csqaq: malformed response")

// Call 一次对行情 API 的调用描述
type Call struct {
	Endpoint string
	Method   string
	Path     string
	Query    map[string]any
	Body     any
}

// Response HTTP 状态码与解析后的 envelope
type Response struct {
	HTTPStatus int
	Envelope   Envelope
}

// Transport 发出单次请求；返回 error 仅表示网络层失败（超时、连接失败）或响应无法解析
type Transport interface {
	Do(ctx context.Context, call Call) (*Response, error)
}

// BindCall 为当前令牌绑定本机出口 IP（上游限 30 秒一次）
func BindCall() Call {
	return Call{Endpoint: EndpointBind, Method: http.MethodPost, Path: "/sys/bind_local_ip"}
}

// RankCall 排行榜分页查询，page 从 1 开始
func RankCall(filter RankFilter, page, size int) Call {
	return Call{
		Endpoint: EndpointRank,
		Method:   http.MethodPost,
		Path:     "/info/get_rank_list",
		Body: map[string]any{
			"page_index":          page,
			"page_size":           size,
			"show_recently_price": false,
			"filter":              filter.Payload(),
		},
	}
}

// DetailCall 饰品详情
func DetailCall(id string) Call {
	return Call{
		Endpoint: EndpointDetail,
		Method:   http.MethodGet,
		Path:     "/info/get_good",
		Query:    map[string]any{"id": id},
	}
}

// ChartCall 悠悠平台（platform=2）的历史价格序列
func ChartCall(id, key string, days int) Call {
	return Call{
		Endpoint: EndpointChart,
		Method:   http.MethodPost,
		Path:     "/info/chart",
		Body: map[string]any{
			"good_id":  id,
			"key":      key,
			"platform": 2,
			"period":   days,
			"style":    "all_style",
		},
	}
}

// HTTPTransport 基于 resty 的实现，令牌放在 ApiToken 头
type HTTPTransport struct {
	client *sdkhttp.Client
	token  string
}

// NewHTTPTransport 创建 HTTP 传输层
func NewHTTPTransport(baseURL, token string, timeout time.Duration) *HTTPTransport {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &HTTPTransport{
		client: sdkhttp.NewClient(baseURL, sdkhttp.Options{Timeout: timeout}),
		token:  token,
	}
}

func (t *HTTPTransport) Do(ctx context.Context, call Call) (*Response, error) {
	resp, err := t.client.DoRequest(ctx, call.Method, call.Path, &sdkhttp.RequestOptions{
		Headers: map[string]string{"ApiToken": t.token},
		Params:  call.Query,
		Data:    call.Body,
	}, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "csqaq %s", call.Endpoint)
	}

	out := &Response{HTTPStatus: resp.StatusCode()}
	body := resp.Body()
	if len(body) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(body, &out.Envelope); err != nil {
		// 非 2xx 时响应体常常是网关页面，交给状态码分类
		if resp.IsSuccess() {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, call.Endpoint, err)
		}
	}
	return out, nil
}
