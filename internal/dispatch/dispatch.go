// Package dispatch routes typed message envelopes to registered handler
// functions and returns their results synchronously. The handler table is
// extensible at runtime so plugin bootstrap code can add capabilities
// without touching the dispatcher itself.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/yourorg/payment-gateway/internal/metrics"
	"github.com/yourorg/payment-gateway/internal/plugin"
)

// ErrUnknownMethod is returned when no handler is registered for the
// envelope's method.
var ErrUnknownMethod = errors.New("unknown method")

// Message is the envelope routed to handlers.
type Message struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Method string         `json:"method"`
	Params map[string]any `json:"params,omitempty"`
}

// Handler processes one message and returns its result.
type Handler func(ctx context.Context, msg *Message) (any, error)

// ConnectionLookup gates dispatch on connection validity and stamps usage.
// The plugin Manager implements it over its in-process cache with a store
// fallback; tests substitute fakes.
type ConnectionLookup interface {
	Lookup(ctx context.Context, connectionID string) (*plugin.Connection, error)
	Touch(ctx context.Context, connectionID string) error
}

// ExchangeLog is one append-only audit record of a dispatch.
type ExchangeLog struct {
	ID           string         `json:"id"`
	ConnectionID string         `json:"connection_id"`
	Method       string         `json:"method"`
	Action       string         `json:"action,omitempty"`
	Request      map[string]any `json:"request,omitempty"`
	Response     any            `json:"response,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// ExchangeLogStore persists exchange logs. Write-only from the dispatcher's
// perspective.
type ExchangeLogStore interface {
	AppendExchange(ctx context.Context, e *ExchangeLog) error
}

// Options carries the dispatcher's optional collaborators.
type Options struct {
	Metrics *metrics.Metrics
	Logger  *logrus.Logger
}

// Dispatcher routes messages by method name.
type Dispatcher struct {
	conns   ConnectionLookup
	plugins *plugin.Manager
	logs    ExchangeLogStore
	metrics *metrics.Metrics
	log     *logrus.Logger
	tracer  trace.Tracer

	mu       sync.RWMutex
	handlers map[string]Handler
}

// New creates a Dispatcher with the built-in handler set registered.
func New(plugins *plugin.Manager, conns ConnectionLookup, logs ExchangeLogStore, opts Options) *Dispatcher {
	if plugins == nil {
		panic("plugin manager cannot be nil")
	}
	if conns == nil {
		conns = plugins
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	d := &Dispatcher{
		conns:    conns,
		plugins:  plugins,
		logs:     logs,
		metrics:  opts.Metrics,
		log:      opts.Logger,
		tracer:   otel.Tracer("dispatch"),
		handlers: make(map[string]Handler),
	}
	d.RegisterHandler("plugin.register", d.handlePluginRegister)
	d.RegisterHandler("plugin.connect", d.handlePluginConnect)
	d.RegisterHandler("plugin.disconnect", d.handlePluginDisconnect)
	d.RegisterHandler("data.exchange", d.handleDataExchange)
	d.RegisterHandler("status.query", d.handleStatusQuery)
	return d
}

// RegisterHandler binds a handler to a method name, replacing any existing
// binding.
func (d *Dispatcher) RegisterHandler(method string, h Handler) {
	d.mu.Lock()
	d.handlers[method] = h
	d.mu.Unlock()
}

// UnregisterHandler removes a method binding.
func (d *Dispatcher) UnregisterHandler(method string) {
	d.mu.Lock()
	delete(d.handlers, method)
	d.mu.Unlock()
}

// Send routes a message through an active connection to its handler and
// returns the handler's result. The exchange log write and last-used stamp
// happen off the request path, best-effort.
func (d *Dispatcher) Send(ctx context.Context, connectionID string, msg *Message) (any, error) {
	ctx, span := d.tracer.Start(ctx, "Dispatcher.Send")
	defer span.End()

	if msg == nil {
		return nil, fmt.Errorf("message cannot be nil")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	if _, err := d.conns.Lookup(ctx, connectionID); err != nil {
		d.count(msg.Method, "invalid_connection")
		return nil, err
	}

	d.mu.RLock()
	handler, ok := d.handlers[msg.Method]
	d.mu.RUnlock()
	if !ok {
		d.count(msg.Method, "unknown_method")
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, msg.Method)
	}

	result, err := handler(ctx, msg)
	if err != nil {
		d.count(msg.Method, "error")
		return nil, err
	}
	d.count(msg.Method, "ok")

	go d.afterDispatch(connectionID, msg, result)
	return result, nil
}

// afterDispatch appends the audit record and bumps the connection's
// last-used stamp. Failures land in the operational log only; they never
// surface to the caller.
func (d *Dispatcher) afterDispatch(connectionID string, msg *Message, result any) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if d.logs != nil {
		action, _ := msg.Params["action"].(string)
		entry := &ExchangeLog{
			ID:           uuid.NewString(),
			ConnectionID: connectionID,
			Method:       msg.Method,
			Action:       action,
			Request:      msg.Params,
			Response:     result,
			CreatedAt:    time.Now().UTC(),
		}
		if err := d.logs.AppendExchange(ctx, entry); err != nil {
			d.log.WithError(err).WithField("connection_id", connectionID).Warn("exchange log write failed")
		}
	}
	if err := d.conns.Touch(ctx, connectionID); err != nil {
		d.log.WithError(err).WithField("connection_id", connectionID).Warn("last-used update failed")
	}
}

func (d *Dispatcher) count(method, outcome string) {
	if d.metrics != nil {
		d.metrics.Dispatches.WithLabelValues(method, outcome).Inc()
	}
}
