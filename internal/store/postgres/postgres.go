// Package postgres implements the order, plugin, and exchange-log stores on
// PostgreSQL via pgx. Status transitions are conditional updates: the row is
// only touched while its current status still matches the expected prior
// status, so racing transitions resolve to exactly one winner.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yourorg/payment-gateway/internal/dispatch"
	"github.com/yourorg/payment-gateway/internal/order"
	"github.com/yourorg/payment-gateway/internal/plugin"
)

// Store wraps a pgx connection pool.
type Store struct {
	db *pgxpool.Pool
}

// Connect parses the DSN, opens a bounded pool, and verifies connectivity.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parsing database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Store{db: pool}, nil
}

// NewStore wraps an existing pool.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Close releases the pool.
func (s *Store) Close() {
	s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS payment_orders (
    id              UUID PRIMARY KEY,
    order_number    TEXT NOT NULL UNIQUE,
    user_id         TEXT NOT NULL,
    amount          BIGINT NOT NULL CHECK (amount > 0),
    currency        TEXT NOT NULL,
    description     TEXT NOT NULL,
    payment_method  TEXT NOT NULL,
    status          TEXT NOT NULL,
    metadata        JSONB NOT NULL DEFAULT '{}',
    payment_data    JSONB,
    transaction_id  TEXT,
    error_message   TEXT,
    refund_id       TEXT,
    refund_amount   BIGINT,
    refund_reason   TEXT,
    callback_url    TEXT,
    return_url      TEXT,
    created_at      TIMESTAMPTZ NOT NULL,
    updated_at      TIMESTAMPTZ NOT NULL,
    completed_at    TIMESTAMPTZ,
    refunded_at     TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS payment_orders_user_idx ON payment_orders (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS mcp_plugins (
    id           UUID PRIMARY KEY,
    name         TEXT NOT NULL,
    version      TEXT NOT NULL,
    capabilities JSONB NOT NULL DEFAULT '{}',
    description  TEXT,
    is_active    BOOLEAN NOT NULL DEFAULT TRUE,
    created_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS plugin_connections (
    id           UUID PRIMARY KEY,
    user_id      TEXT NOT NULL,
    plugin_id    UUID NOT NULL REFERENCES mcp_plugins (id),
    config       JSONB NOT NULL DEFAULT '{}',
    status       TEXT NOT NULL,
    last_used_at TIMESTAMPTZ,
    created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS plugin_connections_user_idx ON plugin_connections (user_id, status);

CREATE TABLE IF NOT EXISTS mcp_exchange_logs (
    id            UUID PRIMARY KEY,
    connection_id UUID NOT NULL,
    method        TEXT NOT NULL,
    action        TEXT,
    request       JSONB,
    response      JSONB,
    created_at    TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema creates the tables this module owns. The users table is
// referenced, not owned, and is expected to exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: ensuring schema: %w", err)
	}
	return nil
}

func (s *Store) UserExists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: checking user: %w", err)
	}
	return exists, nil
}

func marshalJSON(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func unmarshalJSON(b []byte) (map[string]any, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Store) CreateOrder(ctx context.Context, o *order.Order) error {
	metadata, err := marshalJSON(o.Metadata)
	if err != nil {
		return fmt.Errorf("postgres: marshal metadata: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO payment_orders
			(id, order_number, user_id, amount, currency, description,
			 payment_method, status, metadata, callback_url, return_url,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		o.ID, o.OrderNumber, o.UserID, o.Amount, o.Currency, o.Description,
		string(o.Method), string(o.Status), metadata, nullable(o.CallbackURL), nullable(o.ReturnURL),
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: creating order: %w", err)
	}
	return nil
}

const orderColumns = `id, order_number, user_id, amount, currency, description,
	payment_method, status, metadata, payment_data,
	COALESCE(transaction_id, ''), COALESCE(error_message, ''),
	COALESCE(refund_id, ''), COALESCE(refund_amount, 0), COALESCE(refund_reason, ''),
	COALESCE(callback_url, ''), COALESCE(return_url, ''),
	created_at, updated_at, completed_at, refunded_at`

func scanOrder(row pgx.Row) (*order.Order, error) {
	var o order.Order
	var method, status string
	var metadata, paymentData []byte
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.UserID, &o.Amount, &o.Currency, &o.Description,
		&method, &status, &metadata, &paymentData,
		&o.TransactionID, &o.ErrorMessage,
		&o.RefundID, &o.RefundAmount, &o.RefundReason,
		&o.CallbackURL, &o.ReturnURL,
		&o.CreatedAt, &o.UpdatedAt, &o.CompletedAt, &o.RefundedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Method = order.Method(method)
	o.Status = order.Status(status)
	if o.Metadata, err = unmarshalJSON(metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata for order %s: %w", o.ID, err)
	}
	if o.PaymentData, err = unmarshalJSON(paymentData); err != nil {
		return nil, fmt.Errorf("unmarshal payment data for order %s: %w", o.ID, err)
	}
	return &o, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*order.Order, error) {
	row := s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM payment_orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, order.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: getting order: %w", err)
	}
	return o, nil
}

func (s *Store) SetPaymentData(ctx context.Context, id string, data map[string]any) error {
	payload, err := marshalJSON(data)
	if err != nil {
		return fmt.Errorf("postgres: marshal payment data: %w", err)
	}
	ct, err := s.db.Exec(ctx,
		`UPDATE payment_orders SET payment_data = $1, updated_at = NOW() WHERE id = $2`,
		payload, id)
	if err != nil {
		return fmt.Errorf("postgres: setting payment data: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func (s *Store) SetMetadata(ctx context.Context, id string, metadata map[string]any) error {
	payload, err := marshalJSON(metadata)
	if err != nil {
		return fmt.Errorf("postgres: marshal metadata: %w", err)
	}
	ct, err := s.db.Exec(ctx,
		`UPDATE payment_orders SET metadata = $1, updated_at = NOW() WHERE id = $2`,
		payload, id)
	if err != nil {
		return fmt.Errorf("postgres: setting metadata: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// UpdateStatus is the conditional transition. Zero rows affected with an
// existing order means the expected status no longer matched.
func (s *Store) UpdateStatus(ctx context.Context, id string, expected, next order.Status, patch order.StatusPatch) error {
	var sets []string
	args := []any{id, string(expected), string(next)}
	sets = append(sets, "status = $3", "updated_at = NOW()")

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.TransactionID != nil {
		add("transaction_id", *patch.TransactionID)
	}
	if patch.ErrorMessage != nil {
		add("error_message", *patch.ErrorMessage)
	}
	if patch.CompletedAt != nil {
		add("completed_at", *patch.CompletedAt)
	}
	if patch.RefundID != nil {
		add("refund_id", *patch.RefundID)
	}
	if patch.RefundAmount != nil {
		add("refund_amount", *patch.RefundAmount)
	}
	if patch.RefundReason != nil {
		add("refund_reason", *patch.RefundReason)
	}
	if patch.RefundedAt != nil {
		add("refunded_at", *patch.RefundedAt)
	}

	query := fmt.Sprintf(
		`UPDATE payment_orders SET %s WHERE id = $1 AND status = $2`,
		strings.Join(sets, ", "))
	ct, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("postgres: updating status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		// Distinguish a missing order from a lost transition race.
		var current string
		err := s.db.QueryRow(ctx, `SELECT status FROM payment_orders WHERE id = $1`, id).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return order.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("postgres: rechecking status: %w", err)
		}
		return fmt.Errorf("%w: order %s is %s, expected %s", order.ErrStatusConflict, id, current, expected)
	}
	return nil
}

func (s *Store) ListUserOrders(ctx context.Context, userID string, limit, offset int) ([]*order.Order, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+orderColumns+` FROM payment_orders
		 WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing orders: %w", err)
	}
	defer rows.Close()

	var out []*order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scanning order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// plugin.Store implementation.

func (s *Store) CreatePlugin(ctx context.Context, p *plugin.Plugin) error {
	caps, err := json.Marshal(p.Capabilities)
	if err != nil {
		return fmt.Errorf("postgres: marshal capabilities: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO mcp_plugins (id, name, version, capabilities, description, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.Name, p.Version, caps, nullable(p.Description), p.Active, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: creating plugin: %w", err)
	}
	return nil
}

func scanPlugin(row pgx.Row) (*plugin.Plugin, error) {
	var p plugin.Plugin
	var caps []byte
	err := row.Scan(&p.ID, &p.Name, &p.Version, &caps, &p.Description, &p.Active, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(caps, &p.Capabilities); err != nil {
		return nil, fmt.Errorf("unmarshal capabilities: %w", err)
	}
	return &p, nil
}

const pluginColumns = `id, name, version, capabilities, COALESCE(description, ''), is_active, created_at`

func (s *Store) GetActivePlugin(ctx context.Context, id string) (*plugin.Plugin, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+pluginColumns+` FROM mcp_plugins WHERE id = $1 AND is_active`, id)
	p, err := scanPlugin(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, plugin.ErrPluginNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: getting plugin: %w", err)
	}
	return p, nil
}

func (s *Store) ListActivePlugins(ctx context.Context) ([]*plugin.Plugin, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+pluginColumns+` FROM mcp_plugins WHERE is_active ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing plugins: %w", err)
	}
	defer rows.Close()

	var out []*plugin.Plugin
	for rows.Next() {
		p, err := scanPlugin(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scanning plugin: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) CreateConnection(ctx context.Context, c *plugin.Connection) error {
	config, err := marshalJSON(c.Config)
	if err != nil {
		return fmt.Errorf("postgres: marshal config: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO plugin_connections (id, user_id, plugin_id, config, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.UserID, c.PluginID, config, c.Status, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: creating connection: %w", err)
	}
	return nil
}

func (s *Store) GetConnection(ctx context.Context, id string) (*plugin.Connection, error) {
	var c plugin.Connection
	var config []byte
	err := s.db.QueryRow(ctx, `
		SELECT id, user_id, plugin_id, config, status, last_used_at, created_at
		FROM plugin_connections WHERE id = $1`, id).
		Scan(&c.ID, &c.UserID, &c.PluginID, &config, &c.Status, &c.LastUsedAt, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, plugin.ErrInvalidConnection
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: getting connection: %w", err)
	}
	if c.Config, err = unmarshalJSON(config); err != nil {
		return nil, fmt.Errorf("postgres: unmarshal connection config: %w", err)
	}
	return &c, nil
}

func (s *Store) SetConnectionStatus(ctx context.Context, id, status string) error {
	ct, err := s.db.Exec(ctx,
		`UPDATE plugin_connections SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("postgres: setting connection status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return plugin.ErrInvalidConnection
	}
	return nil
}

func (s *Store) TouchConnection(ctx context.Context, id string, at time.Time) error {
	ct, err := s.db.Exec(ctx,
		`UPDATE plugin_connections SET last_used_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("postgres: touching connection: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return plugin.ErrInvalidConnection
	}
	return nil
}

func (s *Store) ListUserConnections(ctx context.Context, userID string) ([]*plugin.Connection, error) {
	rows, err := s.db.Query(ctx, `
		SELECT c.id, c.user_id, c.plugin_id, c.config, c.status, c.last_used_at, c.created_at,
		       p.id, p.name, p.version, p.capabilities, COALESCE(p.description, ''), p.is_active, p.created_at
		FROM plugin_connections c
		JOIN mcp_plugins p ON p.id = c.plugin_id
		WHERE c.user_id = $1 AND c.status = $2
		ORDER BY c.created_at DESC`,
		userID, plugin.ConnectionActive)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing connections: %w", err)
	}
	defer rows.Close()

	var out []*plugin.Connection
	for rows.Next() {
		var c plugin.Connection
		var p plugin.Plugin
		var config, caps []byte
		err := rows.Scan(
			&c.ID, &c.UserID, &c.PluginID, &config, &c.Status, &c.LastUsedAt, &c.CreatedAt,
			&p.ID, &p.Name, &p.Version, &caps, &p.Description, &p.Active, &p.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("postgres: scanning connection: %w", err)
		}
		if c.Config, err = unmarshalJSON(config); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal connection config: %w", err)
		}
		if err := json.Unmarshal(caps, &p.Capabilities); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal capabilities: %w", err)
		}
		c.Plugin = &p
		out = append(out, &c)
	}
	return out, rows.Err()
}

// dispatch.ExchangeLogStore implementation.

func (s *Store) AppendExchange(ctx context.Context, e *dispatch.ExchangeLog) error {
	request, err := marshalJSON(e.Request)
	if err != nil {
		return fmt.Errorf("postgres: marshal exchange request: %w", err)
	}
	response, err := json.Marshal(e.Response)
	if err != nil {
		return fmt.Errorf("postgres: marshal exchange response: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO mcp_exchange_logs (id, connection_id, method, action, request, response, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.ConnectionID, e.Method, nullable(e.Action), request, response, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: appending exchange log: %w", err)
	}
	return nil
}

// nullable maps an empty string to NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
