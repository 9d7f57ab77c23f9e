package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/payment-gateway/internal/dispatch"
	"github.com/yourorg/payment-gateway/internal/gateway"
	"github.com/yourorg/payment-gateway/internal/metrics"
	"github.com/yourorg/payment-gateway/internal/monitor"
	"github.com/yourorg/payment-gateway/internal/orchestrator"
	"github.com/yourorg/payment-gateway/internal/plugin"
	"github.com/yourorg/payment-gateway/internal/reporting"
	"github.com/yourorg/payment-gateway/internal/store/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) (*gin.Engine, *memory.Store) {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	store := memory.New()
	store.AddUser("u1")

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	reporter := reporting.NewReporter()

	orch := orchestrator.New(store, gateway.NewSimulatedRegistry(), orchestrator.Options{
		Metrics:  m,
		Reporter: reporter,
		Logger:   log,
	})
	plugins := plugin.NewManager(store, log)
	dispatcher := dispatch.New(plugins, nil, store, dispatch.Options{Metrics: m, Logger: log})

	mon, err := monitor.NewCreateOrderMonitor()
	require.NoError(t, err)

	server := NewServer(orch, plugins, dispatcher, mon, reporter, registry, log)
	return server.Router(), store
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func createOrderBody(userID string) map[string]any {
	return map[string]any{
		"user_id":        userID,
		"amount":         1000,
		"currency":       "CNY",
		"description":    "flight ticket",
		"payment_method": "qr_code",
	}
}

func mustCreateOrder(t *testing.T, router *gin.Engine) string {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/api/payment/create-order", createOrderBody("u1"))
	require.Equal(t, http.StatusCreated, w.Code)
	env := decodeEnvelope(t, w)
	data := env["data"].(map[string]any)
	return data["order_id"].(string)
}

func TestCreateOrder(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/payment/create-order", createOrderBody("u1"))
	require.Equal(t, http.StatusCreated, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, true, env["success"])
	data := env["data"].(map[string]any)
	assert.Equal(t, "pending", data["status"])
	assert.Contains(t, data["order_number"], "ORD")
	assert.NotEmpty(t, data["payment_data"])
	assert.NotEmpty(t, data["created_at"])
}

func TestCreateOrderAcceptsHyphenatedMethod(t *testing.T) {
	router, _ := newTestRouter(t)

	body := createOrderBody("u1")
	body["payment_method"] = "wallet-redirect"
	w := doJSON(t, router, http.MethodPost, "/api/payment/create-order", body)
	require.Equal(t, http.StatusCreated, w.Code)

	orderID := decodeEnvelope(t, w)["data"].(map[string]any)["order_id"].(string)
	w = doJSON(t, router, http.MethodGet, "/api/payment/status/"+orderID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w)["data"].(map[string]any)
	assert.Equal(t, "wallet_redirect", data["payment_method"])
}

func TestCreateOrderContractViolations(t *testing.T) {
	router, _ := newTestRouter(t)

	body := createOrderBody("u1")
	delete(body, "amount")
	w := doJSON(t, router, http.MethodPost, "/api/payment/create-order", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, false, env["success"])
	assert.Contains(t, env["error"], "amount")

	body = createOrderBody("u1")
	body["payment_method"] = "carrier_pigeon"
	w = doJSON(t, router, http.MethodPost, "/api/payment/create-order", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateOrderUnknownUser(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/payment/create-order", createOrderBody("ghost"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProcessPayment(t *testing.T) {
	router, _ := newTestRouter(t)
	orderID := mustCreateOrder(t, router)

	w := doJSON(t, router, http.MethodPost, "/api/payment/process", map[string]any{"order_id": orderID})
	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, true, env["success"])
	assert.NotEmpty(t, env["data"].(map[string]any)["transaction_id"])

	// A completed order cannot be processed again.
	w = doJSON(t, router, http.MethodPost, "/api/payment/process", map[string]any{"order_id": orderID})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/payment/process", map[string]any{"order_id": "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOrderStatus(t *testing.T) {
	router, _ := newTestRouter(t)

	body := createOrderBody("u1")
	body["metadata"] = map[string]any{"trip_id": "trip_001"}
	w := doJSON(t, router, http.MethodPost, "/api/payment/create-order", body)
	require.Equal(t, http.StatusCreated, w.Code)
	orderID := decodeEnvelope(t, w)["data"].(map[string]any)["order_id"].(string)

	w = doJSON(t, router, http.MethodGet, "/api/payment/status/"+orderID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w)["data"].(map[string]any)
	assert.Equal(t, "pending", data["status"])
	assert.Equal(t, float64(1000), data["amount"])
	assert.NotContains(t, data, "callback_url")
	metadata, ok := data["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "trip_001", metadata["trip_id"])

	w = doJSON(t, router, http.MethodGet, "/api/payment/status/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListUserOrders(t *testing.T) {
	router, _ := newTestRouter(t)
	mustCreateOrder(t, router)
	mustCreateOrder(t, router)

	w := doJSON(t, router, http.MethodGet, "/api/payment/orders/u1?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w)["data"].(map[string]any)
	assert.Equal(t, float64(1), data["count"])

	w = doJSON(t, router, http.MethodGet, "/api/payment/orders/u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data = decodeEnvelope(t, w)["data"].(map[string]any)
	assert.Equal(t, float64(2), data["count"])
}

func TestRefund(t *testing.T) {
	router, _ := newTestRouter(t)
	orderID := mustCreateOrder(t, router)

	w := doJSON(t, router, http.MethodPost, "/api/payment/process", map[string]any{"order_id": orderID})
	require.Equal(t, http.StatusOK, w.Code)

	// Over the original charge: policy rejection.
	w = doJSON(t, router, http.MethodPost, "/api/payment/refund", map[string]any{
		"order_id": orderID, "amount": 2000, "reason": "too much",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/payment/refund", map[string]any{
		"order_id": orderID, "reason": "customer request",
	})
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w)["data"].(map[string]any)
	assert.NotEmpty(t, data["refund_id"])
}

func TestCallbackAckFormats(t *testing.T) {
	router, _ := newTestRouter(t)

	cases := []struct {
		method      string
		contentType string
		body        string
	}{
		{"qr_code", "application/xml", "<xml><return_code><![CDATA[SUCCESS]]></return_code><return_msg><![CDATA[OK]]></return_msg></xml>"},
		{"wallet_redirect", "text/plain", "success"},
		{"card_tokenized", "application/json", `{"received":true}`},
		{"bank_transfer", "text/plain", "OK"},
	}
	for _, tc := range cases {
		t.Run(tc.method, func(t *testing.T) {
			body := createOrderBody("u1")
			body["payment_method"] = tc.method
			w := doJSON(t, router, http.MethodPost, "/api/payment/create-order", body)
			require.Equal(t, http.StatusCreated, w.Code)
			orderID := decodeEnvelope(t, w)["data"].(map[string]any)["order_id"].(string)

			w = doJSON(t, router, http.MethodPost, "/api/payment/callback/"+tc.method, map[string]any{
				"order_id":       orderID,
				"status":         "completed",
				"transaction_id": "txn_cb",
				"signature":      "valid",
			})
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tc.contentType, w.Header().Get("Content-Type"))
			assert.Equal(t, tc.body, w.Body.String())
		})
	}
}

func TestCallbackRejections(t *testing.T) {
	router, _ := newTestRouter(t)
	orderID := mustCreateOrder(t, router)

	// Missing signature.
	w := doJSON(t, router, http.MethodPost, "/api/payment/callback/qr_code", map[string]any{
		"order_id": orderID, "status": "completed",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Unknown payment method in the path.
	w = doJSON(t, router, http.MethodPost, "/api/payment/callback/cheque", map[string]any{
		"order_id": orderID, "status": "completed", "signature": "valid",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Unknown order.
	w = doJSON(t, router, http.MethodPost, "/api/payment/callback/qr_code", map[string]any{
		"order_id": "missing", "status": "completed", "signature": "valid",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Unrecognized status.
	w = doJSON(t, router, http.MethodPost, "/api/payment/callback/qr_code", map[string]any{
		"order_id": orderID, "status": "maybe", "signature": "valid",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPaymentReport(t *testing.T) {
	router, _ := newTestRouter(t)
	orderID := mustCreateOrder(t, router)
	w := doJSON(t, router, http.MethodPost, "/api/payment/process", map[string]any{"order_id": orderID})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/payment/report", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w)["data"].(map[string]any)
	assert.Equal(t, float64(1), data["orders_created"])
	assert.Equal(t, float64(1), data["completed_payments"])
	assert.Equal(t, float64(1000), data["total_amount_completed"])
}

func registerAndConnect(t *testing.T, router *gin.Engine) (pluginID, connectionID string) {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/api/mcp/plugins", map[string]any{
		"name":    "travel-data",
		"version": "1.0.0",
		"capabilities": map[string]any{
			"actions":    []string{"search_flights", "get_weather"},
			"data_types": []string{"flights", "weather"},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	pluginID = decodeEnvelope(t, w)["data"].(map[string]any)["id"].(string)

	w = doJSON(t, router, http.MethodPost, "/api/mcp/connections", map[string]any{
		"user_id":   "u1",
		"plugin_id": pluginID,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	connectionID = decodeEnvelope(t, w)["data"].(map[string]any)["id"].(string)
	return pluginID, connectionID
}

func TestPluginRoutes(t *testing.T) {
	router, _ := newTestRouter(t)
	_, connectionID := registerAndConnect(t, router)

	w := doJSON(t, router, http.MethodGet, "/api/mcp/plugins", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w)["data"].(map[string]any)
	assert.Equal(t, float64(1), data["count"])

	w = doJSON(t, router, http.MethodGet, "/api/mcp/connections/user/u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data = decodeEnvelope(t, w)["data"].(map[string]any)
	assert.Equal(t, float64(1), data["count"])

	w = doJSON(t, router, http.MethodDelete, "/api/mcp/connections/"+connectionID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/mcp/connections/user/u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data = decodeEnvelope(t, w)["data"].(map[string]any)
	assert.Equal(t, float64(0), data["count"])
}

func TestConnectUnknownPlugin(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/mcp/connections", map[string]any{
		"user_id":   "u1",
		"plugin_id": "unknown",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDataExchangeRoute(t *testing.T) {
	router, _ := newTestRouter(t)
	_, connectionID := registerAndConnect(t, router)

	w := doJSON(t, router, http.MethodPost, "/api/mcp/exchange", map[string]any{
		"connection_id": connectionID,
		"action":        "get_weather",
		"payload":       map[string]any{"location": "Taipei"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, true, env["success"])
	assert.NotEmpty(t, env["message_id"])
	weather := env["data"].(map[string]any)
	assert.Equal(t, "Taipei", weather["location"])
	assert.Equal(t, float64(25), weather["temperature"])

	// Inactive connection is not dispatchable.
	w = doJSON(t, router, http.MethodDelete, "/api/mcp/connections/"+connectionID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, router, http.MethodPost, "/api/mcp/exchange", map[string]any{
		"connection_id": connectionID,
		"action":        "get_weather",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Unknown action.
	_, fresh := registerAndConnect(t, router)
	w = doJSON(t, router, http.MethodPost, "/api/mcp/exchange", map[string]any{
		"connection_id": fresh,
		"action":        "summon_dragon",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	mustCreateOrder(t, router)

	w = doJSON(t, router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), fmt.Sprintf("payment_orders_created_total{method=%q} 1", "qr_code"))
}
