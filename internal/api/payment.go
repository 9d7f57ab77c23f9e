package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yourorg/payment-gateway/internal/gateway"
	"github.com/yourorg/payment-gateway/internal/monitor"
	"github.com/yourorg/payment-gateway/internal/order"
	"github.com/yourorg/payment-gateway/internal/orchestrator"
)

type createOrderRequest struct {
	UserID      string         `json:"user_id"`
	Amount      int64          `json:"amount"`
	Currency    string         `json:"currency"`
	Description string         `json:"description"`
	Method      string         `json:"payment_method"`
	Metadata    map[string]any `json:"metadata"`
	CallbackURL string         `json:"callback_url"`
	ReturnURL   string         `json:"return_url"`
}

func (s *Server) createOrder(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		respondError(c, http.StatusBadRequest, "cannot read request body")
		return
	}

	if s.monitor != nil {
		valid, violations, err := s.monitor.Validate(body)
		if err != nil {
			s.respondServiceError(c, err)
			return
		}
		if !valid {
			respondError(c, http.StatusBadRequest, monitor.FormatErrors(violations))
			return
		}
	}

	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Currency == "" {
		req.Currency = "CNY"
	}
	method, err := order.ParseMethod(req.Method)
	if err != nil {
		s.respondServiceError(c, err)
		return
	}

	ord, err := s.orders.CreateOrder(c.Request.Context(), orchestrator.CreateOrderParams{
		UserID:      req.UserID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
		Method:      method,
		Metadata:    req.Metadata,
		CallbackURL: req.CallbackURL,
		ReturnURL:   req.ReturnURL,
	})
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, gin.H{
		"order_id":     ord.ID,
		"order_number": ord.OrderNumber,
		"status":       ord.Status,
		"amount":       ord.Amount,
		"currency":     ord.Currency,
		"payment_data": ord.PaymentData,
		"created_at":   ord.CreatedAt,
	})
}

type processPaymentRequest struct {
	OrderID          string         `json:"order_id"`
	PaymentData      map[string]any `json:"payment_data"`
	VerificationCode string         `json:"verification_code"`
}

func (s *Server) processPayment(c *gin.Context) {
	var req processPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.OrderID == "" {
		respondError(c, http.StatusBadRequest, "order_id is required")
		return
	}

	res, err := s.orders.ProcessPayment(c.Request.Context(), req.OrderID, gateway.PaymentData(req.PaymentData), req.VerificationCode)
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	if !res.Success {
		respondError(c, http.StatusBadRequest, res.Err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"transaction_id": res.TransactionID})
}

// orderStatus returns the client-facing view of an order. Webhook and return
// URLs stay internal.
func (s *Server) orderStatus(c *gin.Context) {
	ord, err := s.orders.GetOrderStatus(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, sanitizeOrder(ord))
}

func sanitizeOrder(ord *order.Order) gin.H {
	out := gin.H{
		"order_id":       ord.ID,
		"order_number":   ord.OrderNumber,
		"user_id":        ord.UserID,
		"status":         ord.Status,
		"amount":         ord.Amount,
		"currency":       ord.Currency,
		"description":    ord.Description,
		"payment_method": ord.Method,
		"metadata":       ord.Metadata,
		"created_at":     ord.CreatedAt,
		"updated_at":     ord.UpdatedAt,
	}
	if ord.TransactionID != "" {
		out["transaction_id"] = ord.TransactionID
	}
	if ord.ErrorMessage != "" {
		out["error_message"] = ord.ErrorMessage
	}
	if ord.CompletedAt != nil {
		out["completed_at"] = ord.CompletedAt
	}
	if ord.RefundID != "" {
		out["refund_id"] = ord.RefundID
		out["refund_amount"] = ord.RefundAmount
		out["refunded_at"] = ord.RefundedAt
	}
	return out
}

func (s *Server) listUserOrders(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	orders, err := s.orders.ListUserOrders(c.Request.Context(), c.Param("userId"), limit, offset)
	if err != nil {
		s.respondServiceError(c, err)
		return
	}

	out := make([]gin.H, 0, len(orders))
	for _, ord := range orders {
		out = append(out, sanitizeOrder(ord))
	}
	respondOK(c, http.StatusOK, gin.H{"orders": out, "count": len(out)})
}

type refundRequest struct {
	OrderID string `json:"order_id"`
	Amount  int64  `json:"amount"`
	Reason  string `json:"reason"`
}

func (s *Server) requestRefund(c *gin.Context) {
	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.OrderID == "" {
		respondError(c, http.StatusBadRequest, "order_id is required")
		return
	}

	res, err := s.orders.RequestRefund(c.Request.Context(), req.OrderID, req.Amount, req.Reason)
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	if !res.Success {
		respondError(c, http.StatusBadRequest, res.Err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"refund_id": res.RefundID})
}

// paymentCallback acknowledges in whatever format the originating gateway
// dictates, not the JSON envelope the rest of the surface uses.
func (s *Server) paymentCallback(c *gin.Context) {
	method, err := order.ParseMethod(c.Param("method"))
	if err != nil {
		respondError(c, http.StatusNotFound, "unknown payment method")
		return
	}

	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, "invalid callback payload")
		return
	}

	if err := s.orders.HandleCallback(c.Request.Context(), method, payload); err != nil {
		s.respondServiceError(c, err)
		return
	}

	contentType, body := gateway.CallbackResponse(method)
	c.Data(http.StatusOK, contentType, []byte(body))
}

func (s *Server) paymentReport(c *gin.Context) {
	respondOK(c, http.StatusOK, s.reporter.Generate())
}
