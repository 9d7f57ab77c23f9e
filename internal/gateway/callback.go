package gateway

import (
	"fmt"

	"github.com/yourorg/payment-gateway/internal/order"
)

// Callback is the normalized form of a gateway's asynchronous payment
// notification.
type Callback struct {
	OrderID       string
	Status        order.Status
	TransactionID string
	Amount        int64
	Currency      string
	Signature     string
}

// ParseCallback normalizes a raw callback payload. Only the order id and a
// recognizable outcome are mandatory; the rest is carried when present.
func ParseCallback(payload map[string]any) (Callback, error) {
	cb := Callback{}

	id, _ := payload["order_id"].(string)
	if id == "" {
		return cb, fmt.Errorf("callback payload missing order_id")
	}
	cb.OrderID = id

	rawStatus, _ := payload["status"].(string)
	switch rawStatus {
	case "completed", "success", "paid":
		cb.Status = order.StatusCompleted
	case "failed", "error":
		cb.Status = order.StatusFailed
	default:
		return cb, fmt.Errorf("callback payload has unrecognized status %q", rawStatus)
	}

	cb.TransactionID, _ = payload["transaction_id"].(string)
	cb.Currency, _ = payload["currency"].(string)
	cb.Signature, _ = payload["signature"].(string)
	if amt, ok := payload["amount"].(float64); ok {
		cb.Amount = int64(amt)
	}
	return cb, nil
}

// CallbackResponse returns the content type and body each external gateway
// expects as acknowledgment. These are gateway-dictated formats, not the
// module's JSON envelope.
func CallbackResponse(m order.Method) (contentType, body string) {
	switch m {
	case order.MethodQRCode:
		return "application/xml", "<xml><return_code><![CDATA[SUCCESS]]></return_code><return_msg><![CDATA[OK]]></return_msg></xml>"
	case order.MethodWalletRedirect:
		return "text/plain", "success"
	case order.MethodCardTokenized:
		return "application/json", `{"received":true}`
	default:
		return "text/plain", "OK"
	}
}
