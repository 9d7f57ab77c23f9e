package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/payment-gateway/internal/api"
	"github.com/yourorg/payment-gateway/internal/config"
	"github.com/yourorg/payment-gateway/internal/dispatch"
	"github.com/yourorg/payment-gateway/internal/gateway"
	"github.com/yourorg/payment-gateway/internal/gateway/circuitbreaker"
	"github.com/yourorg/payment-gateway/internal/metrics"
	"github.com/yourorg/payment-gateway/internal/monitor"
	"github.com/yourorg/payment-gateway/internal/notify"
	"github.com/yourorg/payment-gateway/internal/orchestrator"
	"github.com/yourorg/payment-gateway/internal/order"
	"github.com/yourorg/payment-gateway/internal/plugin"
	"github.com/yourorg/payment-gateway/internal/policy"
	"github.com/yourorg/payment-gateway/internal/reporting"
	"github.com/yourorg/payment-gateway/internal/store/memory"
	"github.com/yourorg/payment-gateway/internal/store/postgres"
	"github.com/yourorg/payment-gateway/internal/telemetry"
)

// stores is the full persistence surface the services share. Both backends
// implement all three contracts.
type stores interface {
	order.Store
	plugin.Store
	dispatch.ExchangeLogStore
}

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg := config.Load(log)
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx)
	if err != nil {
		log.WithError(err).Fatal("telemetry init failed")
	}
	defer func() {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(c); err != nil {
			log.WithError(err).Warn("tracer shutdown failed")
		}
	}()

	var db stores
	if cfg.DatabaseURL != "" {
		pg, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Fatal("database connection failed")
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			log.WithError(err).Fatal("schema setup failed")
		}
		db = pg
		log.Info("using postgres store")
	} else {
		mem := memory.New()
		mem.AddUser("dev_user")
		db = mem
		log.Warn("DATABASE_URL not set, using in-memory store")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	refundPolicy, err := policy.NewEngine(policy.DefaultRefundRules())
	if err != nil {
		log.WithError(err).Fatal("refund policy failed to compile")
	}

	reporter := reporting.NewReporter()
	orch := orchestrator.New(db, gateway.NewSimulatedRegistry(), orchestrator.Options{
		Verifiers:    gateway.NewSimulatedVerifiers(),
		RefundPolicy: refundPolicy,
		Breaker:      circuitbreaker.New(),
		Metrics:      m,
		Notifier:     notify.New(cfg.WebhookTimeout, log),
		Reporter:     reporter,
		Logger:       log,
	})

	plugins := plugin.NewManager(db, log)
	dispatcher := dispatch.New(plugins, nil, db, dispatch.Options{Metrics: m, Logger: log})

	createOrderMonitor, err := monitor.NewCreateOrderMonitor()
	if err != nil {
		log.WithError(err).Fatal("contract schema failed to compile")
	}

	server := api.NewServer(orch, plugins, dispatcher, createOrderMonitor, reporter, registry, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
		os.Exit(1)
	}
}
