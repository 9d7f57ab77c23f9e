// Package memory provides an in-process implementation of the order, plugin,
// and exchange-log stores. It backs tests and local development when no
// DATABASE_URL is configured; the conditional status update carries the same
// exactly-one-winner semantics as the postgres implementation.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/yourorg/payment-gateway/internal/dispatch"
	"github.com/yourorg/payment-gateway/internal/order"
	"github.com/yourorg/payment-gateway/internal/plugin"
)

// Store holds everything behind one mutex; contention is irrelevant at the
// scale this implementation serves.
type Store struct {
	mu          sync.Mutex
	users       map[string]bool
	orders      map[string]*order.Order
	plugins     map[string]*plugin.Plugin
	connections map[string]*plugin.Connection
	exchanges   []*dispatch.ExchangeLog
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		users:       make(map[string]bool),
		orders:      make(map[string]*order.Order),
		plugins:     make(map[string]*plugin.Plugin),
		connections: make(map[string]*plugin.Connection),
	}
}

// AddUser seeds a user row.
func (s *Store) AddUser(id string) {
	s.mu.Lock()
	s.users[id] = true
	s.mu.Unlock()
}

func (s *Store) UserExists(ctx context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[userID], nil
}

func cloneOrder(o *order.Order) *order.Order {
	c := *o
	c.Metadata = cloneMap(o.Metadata)
	c.PaymentData = cloneMap(o.PaymentData)
	return &c
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *Store) CreateOrder(ctx context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[o.ID]; exists {
		return fmt.Errorf("order %s already exists", o.ID)
	}
	for _, existing := range s.orders {
		if existing.OrderNumber == o.OrderNumber {
			return fmt.Errorf("order number %s already exists", o.OrderNumber)
		}
	}
	s.orders[o.ID] = cloneOrder(o)
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (s *Store) SetPaymentData(ctx context.Context, id string, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	o.PaymentData = cloneMap(data)
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) SetMetadata(ctx context.Context, id string, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	o.Metadata = cloneMap(metadata)
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) UpdateStatus(ctx context.Context, id string, expected, next order.Status, patch order.StatusPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	if o.Status != expected {
		return fmt.Errorf("%w: order %s is %s, expected %s", order.ErrStatusConflict, id, o.Status, expected)
	}

	o.Status = next
	o.UpdatedAt = time.Now().UTC()
	if patch.TransactionID != nil {
		o.TransactionID = *patch.TransactionID
	}
	if patch.ErrorMessage != nil {
		o.ErrorMessage = *patch.ErrorMessage
	}
	if patch.CompletedAt != nil {
		t := *patch.CompletedAt
		o.CompletedAt = &t
	}
	if patch.RefundID != nil {
		o.RefundID = *patch.RefundID
	}
	if patch.RefundAmount != nil {
		o.RefundAmount = *patch.RefundAmount
	}
	if patch.RefundReason != nil {
		o.RefundReason = *patch.RefundReason
	}
	if patch.RefundedAt != nil {
		t := *patch.RefundedAt
		o.RefundedAt = &t
	}
	return nil
}

func (s *Store) ListUserOrders(ctx context.Context, userID string, limit, offset int) ([]*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*order.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// plugin.Store implementation.

func (s *Store) CreatePlugin(ctx context.Context, p *plugin.Plugin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.plugins[p.ID] = &cp
	return nil
}

func (s *Store) GetActivePlugin(ctx context.Context, id string) (*plugin.Plugin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plugins[id]
	if !ok || !p.Active {
		return nil, plugin.ErrPluginNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) ListActivePlugins(ctx context.Context) ([]*plugin.Plugin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*plugin.Plugin
	for _, p := range s.plugins {
		if p.Active {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func cloneConnection(c *plugin.Connection) *plugin.Connection {
	cc := *c
	cc.Config = cloneMap(c.Config)
	if c.LastUsedAt != nil {
		t := *c.LastUsedAt
		cc.LastUsedAt = &t
	}
	return &cc
}

func (s *Store) CreateConnection(ctx context.Context, c *plugin.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[c.ID] = cloneConnection(c)
	return nil
}

func (s *Store) GetConnection(ctx context.Context, id string) (*plugin.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connections[id]
	if !ok {
		return nil, plugin.ErrInvalidConnection
	}
	return cloneConnection(c), nil
}

func (s *Store) SetConnectionStatus(ctx context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connections[id]
	if !ok {
		return plugin.ErrInvalidConnection
	}
	c.Status = status
	return nil
}

func (s *Store) TouchConnection(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connections[id]
	if !ok {
		return plugin.ErrInvalidConnection
	}
	c.LastUsedAt = &at
	return nil
}

func (s *Store) ListUserConnections(ctx context.Context, userID string) ([]*plugin.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*plugin.Connection
	for _, c := range s.connections {
		if c.UserID == userID && c.Status == plugin.ConnectionActive {
			cc := cloneConnection(c)
			if p, ok := s.plugins[c.PluginID]; ok {
				cp := *p
				cc.Plugin = &cp
			}
			out = append(out, cc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// dispatch.ExchangeLogStore implementation.

func (s *Store) AppendExchange(ctx context.Context, e *dispatch.ExchangeLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exchanges = append(s.exchanges, e)
	return nil
}

// ExchangeCount reports the number of appended exchange logs; used by tests
// asserting the best-effort audit write.
func (s *Store) ExchangeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.exchanges)
}
