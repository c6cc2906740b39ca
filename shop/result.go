package shop

import "time"

type ReceiptKind string

const (
	ReceiptOrderStatus       ReceiptKind = "order_status"
	ReceiptOrderCancellation ReceiptKind = "order_cancellation"
	ReceiptCallback          ReceiptKind = "callback"
)

// Receipt is the human readable summary a tool produces next to its answer
// for the model. Rendering is left to the presentation layer.
type Receipt struct {
	Kind              ReceiptKind
	Caption           string
	CustomerID        string
	OrderID           string
	Status            string
	OrderDate         time.Time
	EstimatedDelivery time.Time
	CancellationDate  time.Time
	RefundAmount      float64
	CallbackTime      string
}

// Result is what every shop tool returns.
type Result struct {
	Text    string
	Receipt *Receipt
}

// ToolOutput is the text the model sees.
func (r Result) ToolOutput() string {
	return r.Text
}
