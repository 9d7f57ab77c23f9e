// Package gateway defines the adapter contract for payment providers and the
// simulated per-method implementations this module ships with. Adapters own
// everything method-specific: the shape of initiation payment_data, settle
// and refund behavior, and the callback acknowledgment body each external
// gateway expects. A real integration swaps in at this boundary.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/yourorg/payment-gateway/internal/order"
)

// ErrUnsupportedMethod is returned by the registry for a method no adapter
// serves.
var ErrUnsupportedMethod = errors.New("unsupported payment method")

// PaymentData is the method-specific initiation package handed to the client
// (redirect parameters, QR payload, client secret, transfer reference).
type PaymentData map[string]any

// SettleResult is the normalized outcome of a settle attempt. A declined
// payment is Success=false with Err set; it is not a Go error.
type SettleResult struct {
	Success       bool
	TransactionID string
	Err           string
}

// RefundResult is the normalized outcome of a refund attempt.
type RefundResult struct {
	Success  bool
	RefundID string
	Err      string
}

// Adapter is implemented by each payment gateway integration.
type Adapter interface {
	// Method returns the payment method this adapter serves.
	Method() order.Method

	// Initiate builds the method-specific payment_data for a fresh order.
	Initiate(ctx context.Context, o *order.Order) (PaymentData, error)

	// Settle attempts to capture the payment. Business declines are carried
	// in the result; a Go error means the gateway could not be reached.
	Settle(ctx context.Context, o *order.Order, data PaymentData) (SettleResult, error)

	// Refund returns funds for a completed order, fully or partially.
	Refund(ctx context.Context, o *order.Order, amount int64, reason string) (RefundResult, error)
}

// Registry is the fixed lookup from payment method to adapter.
type Registry struct {
	adapters map[order.Method]Adapter
}

// NewRegistry builds a registry over the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[order.Method]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Method()] = a
	}
	return &Registry{adapters: m}
}

// NewSimulatedRegistry wires every supported method to its simulated adapter.
func NewSimulatedRegistry() *Registry {
	return NewRegistry(
		NewWalletRedirectAdapter(),
		NewQRCodeAdapter(),
		NewCardTokenizedAdapter(),
		NewBankTransferAdapter(),
	)
}

// Adapter returns the adapter for a method, or ErrUnsupportedMethod.
func (r *Registry) Adapter(m order.Method) (Adapter, error) {
	a, ok := r.adapters[m]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, m)
	}
	return a, nil
}
