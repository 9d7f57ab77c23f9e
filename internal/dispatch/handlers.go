package dispatch

import (
	"context"
	"fmt"

	"github.com/yourorg/payment-gateway/internal/plugin"
)

// Built-in handlers. data.exchange sub-dispatches on the action field; the
// data providers behind the actions are simulated, matching the adapter
// boundary on the payment side.

func (d *Dispatcher) handlePluginRegister(ctx context.Context, msg *Message) (any, error) {
	name, _ := msg.Params["name"].(string)
	version, _ := msg.Params["version"].(string)
	description, _ := msg.Params["description"].(string)

	caps := plugin.Capabilities{}
	if raw, ok := msg.Params["capabilities"].(map[string]any); ok {
		caps.Actions = toStrings(raw["actions"])
		caps.DataTypes = toStrings(raw["data_types"])
	}
	return d.plugins.Register(ctx, name, version, caps, description)
}

func (d *Dispatcher) handlePluginConnect(ctx context.Context, msg *Message) (any, error) {
	userID, _ := msg.Params["user_id"].(string)
	pluginID, _ := msg.Params["plugin_id"].(string)
	config, _ := msg.Params["config"].(map[string]any)
	if userID == "" || pluginID == "" {
		return nil, fmt.Errorf("plugin.connect requires user_id and plugin_id")
	}
	return d.plugins.Connect(ctx, userID, pluginID, config)
}

func (d *Dispatcher) handlePluginDisconnect(ctx context.Context, msg *Message) (any, error) {
	connectionID, _ := msg.Params["connection_id"].(string)
	if connectionID == "" {
		return nil, fmt.Errorf("plugin.disconnect requires connection_id")
	}
	if err := d.plugins.Disconnect(ctx, connectionID); err != nil {
		return nil, err
	}
	return map[string]any{"success": true}, nil
}

func (d *Dispatcher) handleDataExchange(ctx context.Context, msg *Message) (any, error) {
	action, _ := msg.Params["action"].(string)
	payload, _ := msg.Params["payload"].(map[string]any)
	if payload == nil {
		payload = map[string]any{}
	}

	switch action {
	case "search_flights":
		return searchFlights(payload), nil
	case "search_hotels":
		return searchHotels(payload), nil
	case "get_weather":
		return getWeather(payload), nil
	case "convert_currency":
		return convertCurrency(payload), nil
	default:
		return nil, fmt.Errorf("%w: data.exchange action %q", ErrUnknownMethod, action)
	}
}

func (d *Dispatcher) handleStatusQuery(ctx context.Context, msg *Message) (any, error) {
	connectionID, _ := msg.Params["connection_id"].(string)
	conn, err := d.conns.Lookup(ctx, connectionID)
	if err != nil {
		return map[string]any{"status": "not_found"}, nil
	}
	return map[string]any{
		"status":    conn.Status,
		"last_used": conn.LastUsedAt,
		"config":    conn.Config,
	}, nil
}

// Simulated data providers.

func searchFlights(payload map[string]any) map[string]any {
	return map[string]any{
		"flights": []map[string]any{{
			"id":        "flight_001",
			"airline":   "China Airlines",
			"departure": payload["origin"],
			"arrival":   payload["destination"],
			"price":     1200,
			"duration":  "2h 30m",
		}},
	}
}

func searchHotels(payload map[string]any) map[string]any {
	return map[string]any{
		"hotels": []map[string]any{{
			"id":       "hotel_001",
			"name":     "Grand Hotel",
			"location": payload["location"],
			"price":    200,
			"rating":   4.5,
		}},
	}
}

func getWeather(payload map[string]any) map[string]any {
	return map[string]any{
		"location":    payload["location"],
		"temperature": 25,
		"condition":   "sunny",
		"humidity":    60,
	}
}

func convertCurrency(payload map[string]any) map[string]any {
	rate := 6.8
	amount, _ := payload["amount"].(float64)
	return map[string]any{
		"from":      payload["from"],
		"to":        payload["to"],
		"amount":    amount,
		"converted": amount * rate,
		"rate":      rate,
	}
}

func toStrings(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
