// Package api is the HTTP boundary. Handlers translate between the wire
// envelope and the services; no business decisions live here.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yourorg/payment-gateway/internal/dispatch"
	"github.com/yourorg/payment-gateway/internal/monitor"
	"github.com/yourorg/payment-gateway/internal/orchestrator"
	"github.com/yourorg/payment-gateway/internal/plugin"
	"github.com/yourorg/payment-gateway/internal/reporting"
)

// Server bundles the service dependencies the handlers need.
type Server struct {
	orders     *orchestrator.Orchestrator
	plugins    *plugin.Manager
	dispatcher *dispatch.Dispatcher
	monitor    *monitor.ContractMonitor
	reporter   *reporting.Reporter
	registry   *prometheus.Registry
	log        *logrus.Logger
}

// NewServer creates a Server. The contract monitor and metrics registry are
// optional; without a registry the /metrics route is not mounted.
func NewServer(
	orders *orchestrator.Orchestrator,
	plugins *plugin.Manager,
	dispatcher *dispatch.Dispatcher,
	mon *monitor.ContractMonitor,
	reporter *reporting.Reporter,
	registry *prometheus.Registry,
	log *logrus.Logger,
) *Server {
	if log == nil {
		log = logrus.New()
	}
	return &Server{
		orders:     orders,
		plugins:    plugins,
		dispatcher: dispatcher,
		monitor:    mon,
		reporter:   reporter,
		registry:   registry,
		log:        log,
	}
}

// Router assembles the gin engine with middleware and all routes mounted.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("payment-gateway"))
	s.Register(r)
	return r
}

// Register mounts the routes on an existing engine.
func (s *Server) Register(r *gin.Engine) {
	payment := r.Group("/api/payment")
	{
		payment.POST("/create-order", s.createOrder)
		payment.POST("/process", s.processPayment)
		payment.GET("/status/:orderId", s.orderStatus)
		payment.GET("/orders/:userId", s.listUserOrders)
		payment.POST("/refund", s.requestRefund)
		payment.POST("/callback/:method", s.paymentCallback)
		payment.GET("/report", s.paymentReport)
	}

	mcp := r.Group("/api/mcp")
	{
		mcp.POST("/exchange", s.dataExchange)
		mcp.GET("/plugins", s.listPlugins)
		mcp.POST("/plugins", s.registerPlugin)
		mcp.POST("/connections", s.connectPlugin)
		mcp.DELETE("/connections/:id", s.disconnectPlugin)
		mcp.GET("/connections/user/:userId", s.userConnections)
	}

	if s.registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	}
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
