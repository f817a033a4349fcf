package domain

// PurchaseOutcome 下单响应的分类
type PurchaseOutcome int

const (
	PurchaseSuccess     PurchaseOutcome = iota + 1
	PurchaseBusy                        // 限流或"系统繁忙"业务码
	PurchaseRejected                    // 业务拒绝：价格不合法、服务端余额不足等
	PurchaseAuthExpired                 // 需要重新登录，致命
)

func (o PurchaseOutcome) String() string {
	switch o {
	case PurchaseSuccess:
		return "success"
	case PurchaseBusy:
		return "busy"
	case PurchaseRejected:
		return "rejected"
	case PurchaseAuthExpired:
		return "auth_expired"
	}
	return "unknown"
}

// PurchaseResult 一次求购下单的结果
type PurchaseResult struct {
	Outcome PurchaseOutcome
	OrderID string // 仅成功时有值
	Code    int
	Message string
}
