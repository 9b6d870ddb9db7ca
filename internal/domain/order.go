package domain

// OrderAction is the direction of an order.
type OrderAction string

const (
	OrderActionBuy  OrderAction = "BUY"
	OrderActionSell OrderAction = "SELL"
)

// OrderIntent is the side-annotated order handed to an executor. Its JSON
// form is the executor subprocess wire format.
type OrderIntent struct {
	Action   OrderAction `json:"action"`
	Side     Side        `json:"side"`
	TokenID  string      `json:"tokenId"`
	Price    float64     `json:"price"`
	SizeUSDC float64     `json:"sizeUsdc"`
	Reason   string      `json:"reason"`
}

// OrderResult is the tagged outcome of an execution attempt.
type OrderResult struct {
	OK      bool   `json:"ok"`
	OrderID string `json:"orderId,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    int    `json:"code,omitempty"`
	Raw     string `json:"raw,omitempty"`
}
