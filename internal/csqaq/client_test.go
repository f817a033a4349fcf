package csqaq

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPTransport_SendsTokenAndDecodesEnvelope(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok", r.Header.Get("ApiToken"))
		assert.Equal(t, "/info/get_rank_list", r.URL.Path)
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		_, _ = w.Write([]byte(`{"code":200,"msg":"ok","data":{"data":[{"id":123,"name":"AK-47 | 红线","yyyp_sell_price":"105.5","yyyp_lease_num":null,"yyyp_lease_annual":31.2,"sell_price_rate_90":-3.5,"buff_sell_price":100}],"total":1}}`))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL, "tok", time.Second)
	resp, err := tr.Do(context.Background(), RankCall(RankFilter{Types: []string{"不限_步枪"}, MinPrice: 200, MinLeased: 30}, 2, 300))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.HTTPStatus)
	require.True(t, resp.Envelope.Success())

	assert.EqualValues(t, 2, gotBody["page_index"])
	filter := gotBody["filter"].(map[string]any)
	assert.EqualValues(t, 200, filter["价格最低价"])
	assert.EqualValues(t, 30, filter["出租最少"])
	assert.NotContains(t, filter, "价格最高价")

	var page RankPage
	require.NoError(t, json.Unmarshal(resp.Envelope.Data, &page))
	require.Len(t, page.Data, 1)
	rec := page.Data[0].ToRecord()
	assert.Equal(t, "123", rec.ID)
	assert.Equal(t, 105.5, rec.SellPrice)
	assert.False(t, rec.HasLeasedCount, "null 的出租数视为缺失")
	assert.False(t, rec.HasOfferedCount, "缺少 yyyp_sell_num 时在售数视为缺失")
	assert.True(t, rec.HasAnnualYield)
	assert.Equal(t, -3.5, rec.Change90D)
	assert.Equal(t, 100.0, rec.ReferencePrice)
}

func TestHTTPTransport_StatusAndMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sys/bind_local_ip":
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte("<html>forbidden</html>"))
		default:
			_, _ = w.Write([]byte("not json"))
		}
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL, "tok", time.Second)

	resp, err := tr.Do(context.Background(), BindCall())
	require.NoError(t, err, "非 2xx 的网关页面交给状态码分类")
	assert.Equal(t, http.StatusForbidden, resp.HTTPStatus)

	_, err = tr.Do(context.Background(), DetailCall("1"))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestChartData_PointsSkipsNull(t *testing.T) {
	var c ChartData
	require.NoError(t, json.Unmarshal([]byte(`{"main_data":[1.5,null,"2.5",3]}`), &c))
	assert.Equal(t, []float64{1.5, 2.5, 3}, c.Points())
}

func TestBoundIP(t *testing.T) {
	assert.Equal(t, "1.2.3.4", BoundIP(json.RawMessage(`"当前绑定IP为：1.2.3.4"`)))
	assert.Empty(t, BoundIP(json.RawMessage(`{"x":1}`)))
}
