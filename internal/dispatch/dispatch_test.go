package dispatch_test

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/payment-gateway/internal/dispatch"
	"github.com/yourorg/payment-gateway/internal/plugin"
	"github.com/yourorg/payment-gateway/internal/store/memory"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func newTestDispatcher(t *testing.T) (*dispatch.Dispatcher, *plugin.Manager, *memory.Store) {
	t.Helper()
	store := memory.New()
	manager := plugin.NewManager(store, quietLogger())
	d := dispatch.New(manager, nil, store, dispatch.Options{Logger: quietLogger()})
	return d, manager, store
}

func connect(t *testing.T, manager *plugin.Manager) *plugin.Connection {
	t.Helper()
	ctx := context.Background()
	p, err := manager.Register(ctx, "travel-data", "1.0.0", plugin.Capabilities{
		Actions:   []string{"search_flights", "search_hotels"},
		DataTypes: []string{"flights", "hotels"},
	}, "simulated travel provider")
	require.NoError(t, err)

	conn, err := manager.Connect(ctx, "u1", p.ID, nil)
	require.NoError(t, err)
	return conn
}

func TestSendUnknownMethod(t *testing.T) {
	d, manager, _ := newTestDispatcher(t)
	conn := connect(t, manager)

	_, err := d.Send(context.Background(), conn.ID, &dispatch.Message{Method: "payments.teleport"})
	assert.ErrorIs(t, err, dispatch.ErrUnknownMethod)
}

func TestSendRejectsInvalidConnection(t *testing.T) {
	d, manager, _ := newTestDispatcher(t)
	conn := connect(t, manager)

	_, err := d.Send(context.Background(), "no-such-connection", &dispatch.Message{Method: "status.query"})
	assert.ErrorIs(t, err, plugin.ErrInvalidConnection)

	require.NoError(t, manager.Disconnect(context.Background(), conn.ID))
	_, err = d.Send(context.Background(), conn.ID, &dispatch.Message{Method: "status.query"})
	assert.ErrorIs(t, err, plugin.ErrInvalidConnection)
}

func TestDataExchangeWeather(t *testing.T) {
	d, manager, _ := newTestDispatcher(t)
	conn := connect(t, manager)

	result, err := d.Send(context.Background(), conn.ID, &dispatch.Message{
		Method: "data.exchange",
		Params: map[string]any{
			"action":  "get_weather",
			"payload": map[string]any{"location": "Taipei"},
		},
	})
	require.NoError(t, err)

	weather, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Taipei", weather["location"])
	assert.Equal(t, 25, weather["temperature"])
	assert.Equal(t, "sunny", weather["condition"])
	assert.Equal(t, 60, weather["humidity"])
}

func TestDataExchangeActions(t *testing.T) {
	d, manager, _ := newTestDispatcher(t)
	conn := connect(t, manager)
	ctx := context.Background()

	result, err := d.Send(ctx, conn.ID, &dispatch.Message{
		Method: "data.exchange",
		Params: map[string]any{
			"action":  "search_flights",
			"payload": map[string]any{"origin": "TPE", "destination": "NRT"},
		},
	})
	require.NoError(t, err)
	flights := result.(map[string]any)["flights"].([]map[string]any)
	require.Len(t, flights, 1)
	assert.Equal(t, "flight_001", flights[0]["id"])
	assert.Equal(t, "China Airlines", flights[0]["airline"])
	assert.Equal(t, 1200, flights[0]["price"])

	result, err = d.Send(ctx, conn.ID, &dispatch.Message{
		Method: "data.exchange",
		Params: map[string]any{
			"action":  "search_hotels",
			"payload": map[string]any{"location": "Tokyo"},
		},
	})
	require.NoError(t, err)
	hotels := result.(map[string]any)["hotels"].([]map[string]any)
	require.Len(t, hotels, 1)
	assert.Equal(t, "hotel_001", hotels[0]["id"])
	assert.Equal(t, "Grand Hotel", hotels[0]["name"])

	result, err = d.Send(ctx, conn.ID, &dispatch.Message{
		Method: "data.exchange",
		Params: map[string]any{
			"action":  "convert_currency",
			"payload": map[string]any{"from": "USD", "to": "CNY", "amount": float64(100)},
		},
	})
	require.NoError(t, err)
	converted := result.(map[string]any)
	assert.Equal(t, 6.8, converted["rate"])
	assert.InDelta(t, 680.0, converted["converted"], 0.001)

	_, err = d.Send(ctx, conn.ID, &dispatch.Message{
		Method: "data.exchange",
		Params: map[string]any{"action": "summon_dragon"},
	})
	assert.ErrorIs(t, err, dispatch.ErrUnknownMethod)
}

func TestStatusQuery(t *testing.T) {
	d, manager, _ := newTestDispatcher(t)
	conn := connect(t, manager)

	result, err := d.Send(context.Background(), conn.ID, &dispatch.Message{
		Method: "status.query",
		Params: map[string]any{"connection_id": conn.ID},
	})
	require.NoError(t, err)
	status := result.(map[string]any)
	assert.Equal(t, plugin.ConnectionActive, status["status"])

	result, err = d.Send(context.Background(), conn.ID, &dispatch.Message{
		Method: "status.query",
		Params: map[string]any{"connection_id": "ghost"},
	})
	require.NoError(t, err)
	assert.Equal(t, "not_found", result.(map[string]any)["status"])
}

func TestPluginLifecycleOverDispatch(t *testing.T) {
	d, manager, _ := newTestDispatcher(t)
	conn := connect(t, manager)
	ctx := context.Background()

	result, err := d.Send(ctx, conn.ID, &dispatch.Message{
		Method: "plugin.register",
		Params: map[string]any{
			"name":    "weather-data",
			"version": "2.0.0",
			"capabilities": map[string]any{
				"actions":    []any{"get_weather"},
				"data_types": []any{"weather"},
			},
		},
	})
	require.NoError(t, err)
	registered, ok := result.(*plugin.Plugin)
	require.True(t, ok)
	assert.Equal(t, "weather-data", registered.Name)
	assert.Equal(t, []string{"get_weather"}, registered.Capabilities.Actions)

	result, err = d.Send(ctx, conn.ID, &dispatch.Message{
		Method: "plugin.connect",
		Params: map[string]any{"user_id": "u2", "plugin_id": registered.ID},
	})
	require.NoError(t, err)
	newConn, ok := result.(*plugin.Connection)
	require.True(t, ok)
	assert.Equal(t, plugin.ConnectionActive, newConn.Status)

	result, err = d.Send(ctx, conn.ID, &dispatch.Message{
		Method: "plugin.disconnect",
		Params: map[string]any{"connection_id": newConn.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, true, result.(map[string]any)["success"])

	_, err = manager.Lookup(ctx, newConn.ID)
	assert.ErrorIs(t, err, plugin.ErrInvalidConnection)
}

func TestCustomHandlerRegistration(t *testing.T) {
	d, manager, _ := newTestDispatcher(t)
	conn := connect(t, manager)
	ctx := context.Background()

	d.RegisterHandler("echo", func(ctx context.Context, msg *dispatch.Message) (any, error) {
		return msg.Params["value"], nil
	})

	result, err := d.Send(ctx, conn.ID, &dispatch.Message{Method: "echo", Params: map[string]any{"value": "ping"}})
	require.NoError(t, err)
	assert.Equal(t, "ping", result)

	d.UnregisterHandler("echo")
	_, err = d.Send(ctx, conn.ID, &dispatch.Message{Method: "echo"})
	assert.ErrorIs(t, err, dispatch.ErrUnknownMethod)
}

func TestDispatchAppendsExchangeLogAndTouches(t *testing.T) {
	d, manager, store := newTestDispatcher(t)
	conn := connect(t, manager)

	_, err := d.Send(context.Background(), conn.ID, &dispatch.Message{
		Method: "data.exchange",
		Params: map[string]any{
			"action":  "get_weather",
			"payload": map[string]any{"location": "Taipei"},
		},
	})
	require.NoError(t, err)

	// The audit write and last-used stamp happen off the request path.
	require.Eventually(t, func() bool {
		return store.ExchangeCount() == 1
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		c, err := store.GetConnection(context.Background(), conn.ID)
		return err == nil && c.LastUsedAt != nil
	}, time.Second, 10*time.Millisecond)
}

func TestSendAssignsMessageID(t *testing.T) {
	d, manager, _ := newTestDispatcher(t)
	conn := connect(t, manager)

	msg := &dispatch.Message{Method: "status.query", Params: map[string]any{"connection_id": conn.ID}}
	_, err := d.Send(context.Background(), conn.ID, msg)
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
}
