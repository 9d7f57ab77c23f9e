// Package plugin tracks installable capability providers and per-user live
// connections to them. Connections are cached in-process so dispatch does not
// pay a store round-trip for a connection it already holds; the cache sits
// behind the ConnectionLookup interface in package dispatch so tests can
// substitute a store-backed or fake implementation.
package plugin

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrPluginNotFound is returned when a plugin id is unknown or inactive.
	ErrPluginNotFound = errors.New("plugin not found or inactive")

	// ErrInvalidConnection is returned when a connection is unknown or not
	// active; such a connection must never be usable for message dispatch.
	ErrInvalidConnection = errors.New("invalid or inactive connection")
)

const (
	ConnectionActive   = "active"
	ConnectionInactive = "inactive"
)

// Capabilities declares the actions and data types a plugin supports.
type Capabilities struct {
	Actions   []string `json:"actions"`
	DataTypes []string `json:"data_types"`
}

// Plugin is an installable capability provider. No uniqueness constraint is
// enforced on (name, version); duplicate registration policy is an open
// product decision and registration stays a pure insert until it is made.
type Plugin struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Version      string       `json:"version"`
	Capabilities Capabilities `json:"capabilities"`
	Description  string       `json:"description,omitempty"`
	Active       bool         `json:"is_active"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Connection is one user's live binding to a plugin instance.
type Connection struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	PluginID   string         `json:"plugin_id"`
	Config     map[string]any `json:"config,omitempty"`
	Status     string         `json:"status"`
	LastUsedAt *time.Time     `json:"last_used_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`

	// Plugin metadata joined in by ListUserConnections.
	Plugin *Plugin `json:"plugin,omitempty"`
}

// Store is the plugin and connection persistence contract.
type Store interface {
	CreatePlugin(ctx context.Context, p *Plugin) error
	// GetActivePlugin returns the plugin by id if it exists and is active,
	// otherwise ErrPluginNotFound.
	GetActivePlugin(ctx context.Context, id string) (*Plugin, error)
	// ListActivePlugins returns active plugins, most recently created first.
	ListActivePlugins(ctx context.Context) ([]*Plugin, error)

	CreateConnection(ctx context.Context, c *Connection) error
	GetConnection(ctx context.Context, id string) (*Connection, error)
	SetConnectionStatus(ctx context.Context, id, status string) error
	// TouchConnection stamps the connection's last-used time.
	TouchConnection(ctx context.Context, id string, at time.Time) error
	// ListUserConnections returns a user's active connections joined with
	// plugin metadata.
	ListUserConnections(ctx context.Context, userID string) ([]*Connection, error)
}
