package youpin

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// envelope 悠悠有品响应外壳。字段名大小写不固定，encoding/json 的匹配本身不区分大小写。
type envelope struct {
	Code int             `json:"Code"`
	Msg  string          `json:"Msg"`
	Data json.RawMessage `json:"Data"`
}

type commodity struct {
	CommodityName     string          `json:"commodityName"`
	CommodityHashName string          `json:"commodityHashName"`
	Price             decimal.Decimal `json:"price"`
}

// saleList Data 可能直接是列表，也可能是 {CommodityList: [...]}
type saleList []commodity

func (l *saleList) UnmarshalJSON(b []byte) error {
	var arr []commodity
	if err := json.Unmarshal(b, &arr); err == nil {
		*l = arr
		return nil
	}
	var obj struct {
		CommodityList []commodity `json:"CommodityList"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*l = obj.CommodityList
	return nil
}

type purchaseOrder struct {
	PurchasePrice decimal.Decimal `json:"purchasePrice"`
}

type placeOrderData struct {
	OrderNo string `json:"orderNo"`
}

type userInfo struct {
	TotalMoney decimal.Decimal `json:"TotalMoney"`
}

type saleListRequest struct {
	GameID     string `json:"gameId"`
	ListType   string `json:"listType"`
	TemplateID string `json:"templateId"`
	PageIndex  int    `json:"pageIndex"`
	PageSize   int    `json:"pageSize"`
	SortType   string `json:"sortType"`
}

type purchaseListRequest struct {
	TemplateID string `json:"templateId"`
	PageIndex  int    `json:"pageIndex"`
	PageSize   int    `json:"pageSize"`
}

type placeOrderRequest struct {
	TemplateID       string `json:"templateId"`
	TemplateHashName string `json:"templateHashName"`
	CommodityName    string `json:"commodityName"`
	PurchasePrice    string `json:"purchasePrice"`
	PurchaseNum      int    `json:"purchaseNum"`
}
