package plugin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Manager owns the plugin registry and the connection lifecycle. It keeps an
// in-process cache of connections keyed by id; cache misses fall through to
// the store, so a connection disconnected by another process is still caught
// at dispatch time.
type Manager struct {
	store Store
	log   *logrus.Logger

	mu    sync.RWMutex
	cache map[string]*Connection
}

// NewManager creates a Manager backed by the given store.
func NewManager(store Store, log *logrus.Logger) *Manager {
	if store == nil {
		panic("plugin store cannot be nil")
	}
	if log == nil {
		log = logrus.New()
	}
	return &Manager{
		store: store,
		log:   log,
		cache: make(map[string]*Connection),
	}
}

// Register inserts a new plugin and marks it active.
func (m *Manager) Register(ctx context.Context, name, version string, caps Capabilities, description string) (*Plugin, error) {
	if name == "" || version == "" {
		return nil, fmt.Errorf("plugin name and version are required")
	}
	p := &Plugin{
		ID:           uuid.NewString(),
		Name:         name,
		Version:      version,
		Capabilities: caps,
		Description:  description,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}
	if err := m.store.CreatePlugin(ctx, p); err != nil {
		return nil, fmt.Errorf("register plugin: %w", err)
	}
	m.log.WithFields(logrus.Fields{"plugin_id": p.ID, "name": name, "version": version}).Info("plugin registered")
	return p, nil
}

// AvailablePlugins returns active plugins, newest first.
func (m *Manager) AvailablePlugins(ctx context.Context) ([]*Plugin, error) {
	return m.store.ListActivePlugins(ctx)
}

// Connect creates an active connection between a user and a plugin and
// caches it. The plugin must exist and be active.
func (m *Manager) Connect(ctx context.Context, userID, pluginID string, config map[string]any) (*Connection, error) {
	if _, err := m.store.GetActivePlugin(ctx, pluginID); err != nil {
		return nil, err
	}
	if config == nil {
		config = map[string]any{}
	}
	c := &Connection{
		ID:        uuid.NewString(),
		UserID:    userID,
		PluginID:  pluginID,
		Config:    config,
		Status:    ConnectionActive,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.store.CreateConnection(ctx, c); err != nil {
		return nil, fmt.Errorf("connect plugin: %w", err)
	}

	m.mu.Lock()
	m.cache[c.ID] = c
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{"connection_id": c.ID, "user_id": userID, "plugin_id": pluginID}).Info("plugin connected")
	return c, nil
}

// Disconnect soft-deletes a connection: the row flips to inactive and the
// cache entry is evicted. There is no hard removal.
func (m *Manager) Disconnect(ctx context.Context, connectionID string) error {
	if err := m.store.SetConnectionStatus(ctx, connectionID, ConnectionInactive); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.cache, connectionID)
	m.mu.Unlock()

	m.log.WithField("connection_id", connectionID).Info("plugin disconnected")
	return nil
}

// UserConnections returns the user's active connections with plugin metadata.
func (m *Manager) UserConnections(ctx context.Context, userID string) ([]*Connection, error) {
	return m.store.ListUserConnections(ctx, userID)
}

// Lookup resolves a connection for dispatch. Cache hits are served directly;
// misses fall through to the store and are cached when active. An inactive
// row is evicted and reported as ErrInvalidConnection.
func (m *Manager) Lookup(ctx context.Context, connectionID string) (*Connection, error) {
	m.mu.RLock()
	c, ok := m.cache[connectionID]
	m.mu.RUnlock()

	if !ok {
		stored, err := m.store.GetConnection(ctx, connectionID)
		if err != nil {
			return nil, ErrInvalidConnection
		}
		c = stored
		if c.Status == ConnectionActive {
			m.mu.Lock()
			m.cache[connectionID] = c
			m.mu.Unlock()
		}
	}

	if c.Status != ConnectionActive {
		m.mu.Lock()
		delete(m.cache, connectionID)
		m.mu.Unlock()
		return nil, ErrInvalidConnection
	}
	return c, nil
}

// Touch stamps the connection's last-used time in the store and the cache.
func (m *Manager) Touch(ctx context.Context, connectionID string) error {
	now := time.Now().UTC()
	if err := m.store.TouchConnection(ctx, connectionID, now); err != nil {
		return err
	}
	m.mu.Lock()
	if c, ok := m.cache[connectionID]; ok {
		c.LastUsedAt = &now
	}
	m.mu.Unlock()
	return nil
}
