package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/payment-gateway/internal/order"
)

// randToken returns a short opaque token for simulated gateway identifiers.
func randToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func simulatedTxnID(prefix string) string {
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixMilli(), randToken()[:8])
}

func simulatedRefundID(prefix string) string {
	return fmt.Sprintf("%s_refund_%d", prefix, time.Now().UnixMilli())
}

// WalletRedirectAdapter serves wallet-redirect style payments: the client is
// handed a signed parameter set and redirected into the wallet app.
type WalletRedirectAdapter struct{}

func NewWalletRedirectAdapter() *WalletRedirectAdapter { return &WalletRedirectAdapter{} }

func (a *WalletRedirectAdapter) Method() order.Method { return order.MethodWalletRedirect }

func (a *WalletRedirectAdapter) Initiate(ctx context.Context, o *order.Order) (PaymentData, error) {
	return PaymentData{
		"app_id":    "wallet_app_" + randToken()[:6],
		"method":    "wallet.trade.app.pay",
		"charset":   "utf-8",
		"sign_type": "RSA2",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   "1.0",
	}, nil
}

func (a *WalletRedirectAdapter) Settle(ctx context.Context, o *order.Order, data PaymentData) (SettleResult, error) {
	return SettleResult{Success: true, TransactionID: simulatedTxnID("wallet")}, nil
}

func (a *WalletRedirectAdapter) Refund(ctx context.Context, o *order.Order, amount int64, reason string) (RefundResult, error) {
	return RefundResult{Success: true, RefundID: simulatedRefundID("wallet")}, nil
}

// QRCodeAdapter serves QR-code style payments: the client renders a prepay
// package as a QR code the payer scans.
type QRCodeAdapter struct{}

func NewQRCodeAdapter() *QRCodeAdapter { return &QRCodeAdapter{} }

func (a *QRCodeAdapter) Method() order.Method { return order.MethodQRCode }

func (a *QRCodeAdapter) Initiate(ctx context.Context, o *order.Order) (PaymentData, error) {
	return PaymentData{
		"app_id":    "qr_app_" + randToken()[:6],
		"timestamp": fmt.Sprintf("%d", time.Now().Unix()),
		"nonce_str": randToken(),
		"package":   fmt.Sprintf("prepay_id=qr%d", time.Now().UnixMilli()),
		"sign_type": "MD5",
	}, nil
}

func (a *QRCodeAdapter) Settle(ctx context.Context, o *order.Order, data PaymentData) (SettleResult, error) {
	return SettleResult{Success: true, TransactionID: simulatedTxnID("qr")}, nil
}

func (a *QRCodeAdapter) Refund(ctx context.Context, o *order.Order, amount int64, reason string) (RefundResult, error) {
	return RefundResult{Success: true, RefundID: simulatedRefundID("qr")}, nil
}

// CardTokenizedAdapter serves tokenized card payments: the client confirms a
// payment intent against the returned client secret.
type CardTokenizedAdapter struct{}

func NewCardTokenizedAdapter() *CardTokenizedAdapter { return &CardTokenizedAdapter{} }

func (a *CardTokenizedAdapter) Method() order.Method { return order.MethodCardTokenized }

func (a *CardTokenizedAdapter) Initiate(ctx context.Context, o *order.Order) (PaymentData, error) {
	return PaymentData{
		"publishable_key": "pk_sim_" + randToken(),
		"client_secret":   fmt.Sprintf("pi_%d_secret_%s", time.Now().UnixMilli(), randToken()),
	}, nil
}

func (a *CardTokenizedAdapter) Settle(ctx context.Context, o *order.Order, data PaymentData) (SettleResult, error) {
	return SettleResult{Success: true, TransactionID: simulatedTxnID("card")}, nil
}

func (a *CardTokenizedAdapter) Refund(ctx context.Context, o *order.Order, amount int64, reason string) (RefundResult, error) {
	return RefundResult{Success: true, RefundID: simulatedRefundID("card")}, nil
}

// BankTransferAdapter serves offline bank transfers: the client is handed a
// transfer reference and beneficiary details, settlement is confirmed later
// via callback or manual reconciliation.
type BankTransferAdapter struct{}

func NewBankTransferAdapter() *BankTransferAdapter { return &BankTransferAdapter{} }

func (a *BankTransferAdapter) Method() order.Method { return order.MethodBankTransfer }

func (a *BankTransferAdapter) Initiate(ctx context.Context, o *order.Order) (PaymentData, error) {
	return PaymentData{
		"reference":        "BT" + strings.ToUpper(randToken()),
		"beneficiary":      "Payment Gateway Settlement Account",
		"beneficiary_bank": "Simulated Clearing Bank",
		"amount":           o.Amount,
		"currency":         o.Currency,
	}, nil
}

func (a *BankTransferAdapter) Settle(ctx context.Context, o *order.Order, data PaymentData) (SettleResult, error) {
	return SettleResult{Success: true, TransactionID: simulatedTxnID("bank")}, nil
}

func (a *BankTransferAdapter) Refund(ctx context.Context, o *order.Order, amount int64, reason string) (RefundResult, error) {
	return RefundResult{Success: true, RefundID: simulatedRefundID("bank")}, nil
}
