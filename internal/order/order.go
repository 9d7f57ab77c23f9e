// Package order defines the payment order model, its status state machine,
// and the store contract the orchestrator drives transitions through.
package order

import (
	"fmt"
	"strings"
	"time"
)

// Method identifies the payment gateway an order is bound to. The binding is
// fixed at creation and never changes for the life of the order.
type Method string

const (
	MethodWalletRedirect Method = "wallet_redirect"
	MethodQRCode         Method = "qr_code"
	MethodCardTokenized  Method = "card_tokenized"
	MethodBankTransfer   Method = "bank_transfer"
)

// Methods lists every supported payment method.
func Methods() []Method {
	return []Method{MethodWalletRedirect, MethodQRCode, MethodCardTokenized, MethodBankTransfer}
}

// ParseMethod maps a wire string onto a Method. Hyphenated spellings
// ("wallet-redirect") are accepted as aliases of the canonical underscore
// form.
func ParseMethod(s string) (Method, error) {
	normalized := Method(strings.ReplaceAll(s, "-", "_"))
	switch normalized {
	case MethodWalletRedirect, MethodQRCode, MethodCardTokenized, MethodBankTransfer:
		return normalized, nil
	}
	return "", fmt.Errorf("%w: unsupported payment method %q", ErrInvalidParameters, s)
}

// Status is the order lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRefunded   Status = "refunded"
)

// transitions is the full forward graph. Refund is the sole edge out of a
// terminal state.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusCompleted:  {StatusRefunded},
	StatusFailed:     {},
	StatusRefunded:   {},
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s Status) CanTransitionTo(next Status) bool {
	for _, n := range transitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no forward transition remains. Completed is
// terminal for processing purposes even though refund can still move it.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusRefunded
}

// Order is a single payment intent from creation through terminal resolution.
// Amount is in minor currency units and is immutable after creation.
type Order struct {
	ID            string         `json:"id"`
	OrderNumber   string         `json:"order_number"`
	UserID        string         `json:"user_id"`
	Amount        int64          `json:"amount"`
	Currency      string         `json:"currency"`
	Description   string         `json:"description"`
	Method        Method         `json:"payment_method"`
	Status        Status         `json:"status"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	PaymentData   map[string]any `json:"payment_data,omitempty"`
	TransactionID string         `json:"transaction_id,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	RefundID      string         `json:"refund_id,omitempty"`
	RefundAmount  int64          `json:"refund_amount,omitempty"`
	RefundReason  string         `json:"refund_reason,omitempty"`
	CallbackURL   string         `json:"callback_url,omitempty"`
	ReturnURL     string         `json:"return_url,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	RefundedAt    *time.Time     `json:"refunded_at,omitempty"`
}
