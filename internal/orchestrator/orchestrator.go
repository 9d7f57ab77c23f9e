// Package orchestrator owns the payment order state machine. It creates
// orders, drives them through status transitions, and delegates
// method-specific work to the gateway adapters. Orders are never cached
// across calls; every operation re-reads current status from the store and
// transitions it conditionally, so exactly one of two racing callers wins.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/yourorg/payment-gateway/internal/gateway"
	"github.com/yourorg/payment-gateway/internal/gateway/circuitbreaker"
	"github.com/yourorg/payment-gateway/internal/metrics"
	"github.com/yourorg/payment-gateway/internal/notify"
	"github.com/yourorg/payment-gateway/internal/order"
	"github.com/yourorg/payment-gateway/internal/policy"
	"github.com/yourorg/payment-gateway/internal/reporting"
)

// CreateOrderParams is the input to CreateOrder.
type CreateOrderParams struct {
	UserID      string
	Amount      int64
	Currency    string
	Description string
	Method      order.Method
	Metadata    map[string]any
	CallbackURL string
	ReturnURL   string
}

// ProcessResult is the business outcome of a settle attempt. A declined
// payment is Success=false with Err set; Go errors are reserved for
// infrastructure failures.
type ProcessResult struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id,omitempty"`
	Err           string `json:"error,omitempty"`
}

// RefundOutcome is the business outcome of a refund request.
type RefundOutcome struct {
	Success  bool   `json:"success"`
	RefundID string `json:"refund_id,omitempty"`
	Err      string `json:"error,omitempty"`
}

// Options carries the orchestrator's optional collaborators; nil fields get
// working defaults.
type Options struct {
	Verifiers    *gateway.VerifierSet
	RefundPolicy *policy.Engine
	Breaker      *circuitbreaker.Breaker
	Metrics      *metrics.Metrics
	Notifier     *notify.Notifier
	Reporter     *reporting.Reporter
	Logger       *logrus.Logger
}

// Orchestrator drives orders through the lifecycle
// pending -> processing -> completed|failed (-> refunded from completed).
type Orchestrator struct {
	store        order.Store
	gateways     *gateway.Registry
	verifiers    *gateway.VerifierSet
	refundPolicy *policy.Engine
	breaker      *circuitbreaker.Breaker
	metrics      *metrics.Metrics
	notifier     *notify.Notifier
	reporter     *reporting.Reporter
	log          *logrus.Logger
	tracer       trace.Tracer
}

// New creates an Orchestrator.
func New(store order.Store, gateways *gateway.Registry, opts Options) *Orchestrator {
	if store == nil {
		panic("order store cannot be nil")
	}
	if gateways == nil {
		panic("gateway registry cannot be nil")
	}
	if opts.Verifiers == nil {
		opts.Verifiers = gateway.NewSimulatedVerifiers()
	}
	if opts.RefundPolicy == nil {
		engine, err := policy.NewEngine(policy.DefaultRefundRules())
		if err != nil {
			panic(fmt.Sprintf("default refund rules failed to compile: %v", err))
		}
		opts.RefundPolicy = engine
	}
	if opts.Breaker == nil {
		opts.Breaker = circuitbreaker.New()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(prometheus.NewRegistry())
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.New(0, opts.Logger)
	}
	if opts.Reporter == nil {
		opts.Reporter = reporting.NewReporter()
	}
	return &Orchestrator{
		store:        store,
		gateways:     gateways,
		verifiers:    opts.Verifiers,
		refundPolicy: opts.RefundPolicy,
		breaker:      opts.Breaker,
		metrics:      opts.Metrics,
		notifier:     opts.Notifier,
		reporter:     opts.Reporter,
		log:          opts.Logger,
		tracer:       otel.Tracer("orchestrator"),
	}
}

// newOrderNumber derives an externally visible, opaque order number. The
// uuid suffix keeps concurrent creations collision-resistant; the store also
// enforces uniqueness on the column.
func newOrderNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("ORD%d%s", time.Now().UnixMilli(), suffix)
}

// CreateOrder validates the parameters, persists a pending order, and
// enriches it with the gateway's initiation payment_data.
func (o *Orchestrator) CreateOrder(ctx context.Context, p CreateOrderParams) (*order.Order, error) {
	ctx, span := o.tracer.Start(ctx, "Orchestrator.CreateOrder")
	defer span.End()

	if p.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be greater than 0", order.ErrInvalidParameters)
	}
	if p.Description == "" {
		return nil, fmt.Errorf("%w: description is required", order.ErrInvalidParameters)
	}
	adapter, err := o.gateways.Adapter(p.Method)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", order.ErrInvalidParameters, err)
	}

	exists, err := o.store.UserExists(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("checking user %s: %w", p.UserID, err)
	}
	if !exists {
		return nil, order.ErrUserNotFound
	}

	now := time.Now().UTC()
	ord := &order.Order{
		ID:          uuid.NewString(),
		OrderNumber: newOrderNumber(),
		UserID:      p.UserID,
		Amount:      p.Amount,
		Currency:    p.Currency,
		Description: p.Description,
		Method:      p.Method,
		Status:      order.StatusPending,
		Metadata:    p.Metadata,
		CallbackURL: p.CallbackURL,
		ReturnURL:   p.ReturnURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if ord.Metadata == nil {
		ord.Metadata = map[string]any{}
	}

	if err := o.store.CreateOrder(ctx, ord); err != nil {
		return nil, fmt.Errorf("creating order: %w", err)
	}

	data, err := adapter.Initiate(ctx, ord)
	if err != nil {
		return nil, fmt.Errorf("initiating %s payment for order %s: %w", p.Method, ord.ID, err)
	}
	if err := o.store.SetPaymentData(ctx, ord.ID, data); err != nil {
		return nil, fmt.Errorf("storing payment data for order %s: %w", ord.ID, err)
	}
	ord.PaymentData = data

	o.metrics.OrdersCreated.WithLabelValues(string(p.Method)).Inc()
	o.reporter.Record(reporting.Entry{
		Timestamp: now, OrderID: ord.ID, UserID: p.UserID,
		Status: "created", Amount: p.Amount, Currency: p.Currency, Method: string(p.Method),
	})
	o.log.WithFields(logrus.Fields{
		"order_id": ord.ID, "order_number": ord.OrderNumber,
		"method": p.Method, "amount": p.Amount,
	}).Info("order created")
	return ord, nil
}

// ProcessPayment drives a pending order through settlement. The order must
// currently be pending; the pending->processing transition is conditional,
// so of two racing callers exactly one proceeds and the other observes a
// status conflict.
func (o *Orchestrator) ProcessPayment(ctx context.Context, orderID string, data gateway.PaymentData, verificationCode string) (ProcessResult, error) {
	ctx, span := o.tracer.Start(ctx, "Orchestrator.ProcessPayment")
	defer span.End()

	ord, err := o.store.GetOrder(ctx, orderID)
	if err != nil {
		return ProcessResult{}, err
	}
	if ord.Status != order.StatusPending {
		return ProcessResult{}, fmt.Errorf("%w: order %s is %s, want pending", order.ErrStatusConflict, orderID, ord.Status)
	}

	if err := o.transition(ctx, ord, order.StatusPending, order.StatusProcessing, order.StatusPatch{}); err != nil {
		return ProcessResult{}, err
	}

	adapter, err := o.gateways.Adapter(ord.Method)
	if err != nil {
		o.markFailed(ctx, ord, err.Error())
		return ProcessResult{}, err
	}

	method := string(ord.Method)
	if !o.breaker.Allow(method) {
		o.markFailed(ctx, ord, "payment gateway temporarily unavailable")
		return ProcessResult{Success: false, Err: "payment gateway temporarily unavailable"}, nil
	}

	start := time.Now()
	res, settleErr := adapter.Settle(ctx, ord, data)
	o.metrics.SettleDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())

	if settleErr != nil {
		o.breaker.RecordFailure(method)
		o.markFailed(ctx, ord, settleErr.Error())
		return ProcessResult{}, fmt.Errorf("settling order %s with %s: %w", orderID, method, settleErr)
	}
	if !res.Success {
		o.breaker.RecordFailure(method)
		o.markFailed(ctx, ord, res.Err)
		return ProcessResult{Success: false, Err: res.Err}, nil
	}
	o.breaker.RecordSuccess(method)

	now := time.Now().UTC()
	patch := order.StatusPatch{TransactionID: &res.TransactionID, CompletedAt: &now}
	if err := o.transition(ctx, ord, order.StatusProcessing, order.StatusCompleted, patch); err != nil {
		return ProcessResult{}, fmt.Errorf("completing order %s: %w", orderID, err)
	}

	o.reporter.Record(reporting.Entry{
		Timestamp: now, OrderID: ord.ID, UserID: ord.UserID,
		Status: "completed", Amount: ord.Amount, Currency: ord.Currency, Method: method,
	})
	o.notifyTerminal(ord, order.StatusCompleted, map[string]any{"transaction_id": res.TransactionID})
	o.log.WithFields(logrus.Fields{"order_id": ord.ID, "transaction_id": res.TransactionID}).Info("payment completed")
	return ProcessResult{Success: true, TransactionID: res.TransactionID}, nil
}

// GetOrderStatus returns the current order, or order.ErrNotFound.
func (o *Orchestrator) GetOrderStatus(ctx context.Context, orderID string) (*order.Order, error) {
	return o.store.GetOrder(ctx, orderID)
}

// ListUserOrders returns a page of the user's orders, most recent first.
func (o *Orchestrator) ListUserOrders(ctx context.Context, userID string, limit, offset int) ([]*order.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return o.store.ListUserOrders(ctx, userID, limit, offset)
}

// RequestRefund refunds a completed order, fully (amount 0) or partially.
// Policy violations are business rejections that leave the order untouched;
// so is an adapter refund failure, which keeps the order completed with no
// intermediate refund state.
func (o *Orchestrator) RequestRefund(ctx context.Context, orderID string, amount int64, reason string) (RefundOutcome, error) {
	ctx, span := o.tracer.Start(ctx, "Orchestrator.RequestRefund")
	defer span.End()

	ord, err := o.store.GetOrder(ctx, orderID)
	if err != nil {
		return RefundOutcome{}, err
	}

	refundAmount := amount
	if refundAmount == 0 {
		refundAmount = ord.Amount
	}
	if reason == "" {
		return RefundOutcome{Success: false, Err: "refund reason is required"}, nil
	}

	decision, err := o.refundPolicy.Evaluate(map[string]interface{}{
		"order_status":  string(ord.Status),
		"order_amount":  float64(ord.Amount),
		"refund_amount": float64(refundAmount),
	})
	if err != nil {
		return RefundOutcome{}, fmt.Errorf("evaluating refund policy for order %s: %w", orderID, err)
	}
	if !decision.Allow {
		return RefundOutcome{Success: false, Err: decision.Reason}, nil
	}

	adapter, err := o.gateways.Adapter(ord.Method)
	if err != nil {
		return RefundOutcome{}, err
	}
	method := string(ord.Method)
	if !o.breaker.Allow(method) {
		return RefundOutcome{Success: false, Err: "payment gateway temporarily unavailable"}, nil
	}

	res, refundErr := adapter.Refund(ctx, ord, refundAmount, reason)
	if refundErr != nil {
		o.breaker.RecordFailure(method)
		return RefundOutcome{}, fmt.Errorf("refunding order %s with %s: %w", orderID, method, refundErr)
	}
	if !res.Success {
		o.breaker.RecordFailure(method)
		o.recordFailedRefundAttempt(ctx, ord, refundAmount, reason, res.Err)
		return RefundOutcome{Success: false, Err: res.Err}, nil
	}
	o.breaker.RecordSuccess(method)

	now := time.Now().UTC()
	patch := order.StatusPatch{
		RefundID:     &res.RefundID,
		RefundAmount: &refundAmount,
		RefundReason: &reason,
		RefundedAt:   &now,
	}
	if err := o.transition(ctx, ord, order.StatusCompleted, order.StatusRefunded, patch); err != nil {
		return RefundOutcome{}, fmt.Errorf("marking order %s refunded: %w", orderID, err)
	}

	o.reporter.Record(reporting.Entry{
		Timestamp: now, OrderID: ord.ID, UserID: ord.UserID,
		Status: "refunded", Amount: refundAmount, Currency: ord.Currency, Method: method,
	})
	o.notifyTerminal(ord, order.StatusRefunded, map[string]any{"refund_id": res.RefundID, "refund_amount": refundAmount})
	o.log.WithFields(logrus.Fields{"order_id": ord.ID, "refund_id": res.RefundID, "amount": refundAmount}).Info("order refunded")
	return RefundOutcome{Success: true, RefundID: res.RefundID}, nil
}

// HandleCallback applies an asynchronous gateway notification. Gateways
// redeliver callbacks, so the handler is idempotent: a duplicate against a
// terminal order is acknowledged as a no-op, and a duplicate reporting a
// different outcome never overwrites the stored terminal state.
func (o *Orchestrator) HandleCallback(ctx context.Context, method order.Method, payload map[string]any) error {
	ctx, span := o.tracer.Start(ctx, "Orchestrator.HandleCallback")
	defer span.End()

	if _, err := o.gateways.Adapter(method); err != nil {
		return err
	}
	if err := o.verifiers.Verify(method, payload); err != nil {
		o.metrics.CallbackResults.WithLabelValues(string(method), "invalid_signature").Inc()
		return err
	}

	cb, err := gateway.ParseCallback(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", order.ErrInvalidParameters, err)
	}

	ord, err := o.store.GetOrder(ctx, cb.OrderID)
	if err != nil {
		return err
	}

	if ord.Status.Terminal() {
		outcome := "duplicate"
		if ord.Status != cb.Status {
			outcome = "divergent_duplicate"
			o.log.WithFields(logrus.Fields{
				"order_id": ord.ID, "stored_status": ord.Status, "callback_status": cb.Status,
			}).Warn("duplicate callback reports a different outcome; keeping stored state")
		}
		o.metrics.CallbackResults.WithLabelValues(string(method), outcome).Inc()
		return nil
	}

	if ord.Status == order.StatusPending {
		if err := o.transition(ctx, ord, order.StatusPending, order.StatusProcessing, order.StatusPatch{}); err != nil {
			if errors.Is(err, order.ErrStatusConflict) {
				// A concurrent caller moved the order; re-read and let the
				// terminal-state branch above absorb it on redelivery.
				return nil
			}
			return err
		}
	}

	now := time.Now().UTC()
	var final order.Status
	var patch order.StatusPatch
	if cb.Status == order.StatusCompleted {
		final = order.StatusCompleted
		txn := cb.TransactionID
		patch = order.StatusPatch{TransactionID: &txn, CompletedAt: &now}
	} else {
		final = order.StatusFailed
		msg := "gateway reported failure"
		patch = order.StatusPatch{ErrorMessage: &msg}
	}

	if err := o.transition(ctx, ord, order.StatusProcessing, final, patch); err != nil {
		if errors.Is(err, order.ErrStatusConflict) {
			o.metrics.CallbackResults.WithLabelValues(string(method), "lost_race").Inc()
			return nil
		}
		return err
	}

	o.metrics.CallbackResults.WithLabelValues(string(method), string(final)).Inc()
	entry := reporting.Entry{
		Timestamp: now, OrderID: ord.ID, UserID: ord.UserID,
		Status: string(final), Amount: ord.Amount, Currency: ord.Currency, Method: string(method),
	}
	if final == order.StatusFailed {
		entry.ErrorCode = "GATEWAY_CALLBACK_FAILURE"
	}
	o.reporter.Record(entry)
	o.notifyTerminal(ord, final, map[string]any{"transaction_id": cb.TransactionID})
	return nil
}

// transition applies a conditional status update and counts it.
func (o *Orchestrator) transition(ctx context.Context, ord *order.Order, from, to order.Status, patch order.StatusPatch) error {
	if err := o.store.UpdateStatus(ctx, ord.ID, from, to, patch); err != nil {
		return err
	}
	o.metrics.Transitions.WithLabelValues(string(from), string(to)).Inc()
	return nil
}

// markFailed best-effort moves a processing order to failed. Called on
// settle declines and on infrastructure errors, where the order must not be
// left looking processable.
func (o *Orchestrator) markFailed(ctx context.Context, ord *order.Order, msg string) {
	patch := order.StatusPatch{ErrorMessage: &msg}
	if err := o.transition(ctx, ord, order.StatusProcessing, order.StatusFailed, patch); err != nil {
		o.log.WithError(err).WithField("order_id", ord.ID).Error("failed to mark order failed")
		return
	}
	o.reporter.Record(reporting.Entry{
		Timestamp: time.Now().UTC(), OrderID: ord.ID, UserID: ord.UserID,
		Status: "failed", Amount: ord.Amount, Currency: ord.Currency, Method: string(ord.Method),
		ErrorCode: "SETTLE_FAILED",
	})
	o.notifyTerminal(ord, order.StatusFailed, map[string]any{"error": msg})
}

// recordFailedRefundAttempt keeps an audit trail of refused refunds in the
// order metadata so status queries can surface them without introducing a
// refund_pending state.
func (o *Orchestrator) recordFailedRefundAttempt(ctx context.Context, ord *order.Order, amount int64, reason, gatewayErr string) {
	if ord.Metadata == nil {
		ord.Metadata = map[string]any{}
	}
	attempts, _ := ord.Metadata["refund_attempts"].([]any)
	attempts = append(attempts, map[string]any{
		"amount": amount, "reason": reason, "error": gatewayErr,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
	ord.Metadata["refund_attempts"] = attempts
	if err := o.store.SetMetadata(ctx, ord.ID, ord.Metadata); err != nil {
		o.log.WithError(err).WithField("order_id", ord.ID).Error("failed to record refund attempt")
	}
	o.log.WithFields(logrus.Fields{"order_id": ord.ID, "amount": amount}).Warn("gateway refused refund")
}

// notifyTerminal fires the merchant webhook for a terminal transition.
func (o *Orchestrator) notifyTerminal(ord *order.Order, status order.Status, extra map[string]any) {
	if ord.CallbackURL == "" {
		return
	}
	event := map[string]any{
		"event":        "order." + string(status),
		"order_id":     ord.ID,
		"order_number": ord.OrderNumber,
		"amount":       ord.Amount,
		"currency":     ord.Currency,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range extra {
		event[k] = v
	}
	o.notifier.SendAsync(ord.CallbackURL, event)
}
