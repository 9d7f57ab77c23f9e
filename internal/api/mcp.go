package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourorg/payment-gateway/internal/dispatch"
	"github.com/yourorg/payment-gateway/internal/plugin"
)

type exchangeRequest struct {
	ConnectionID string         `json:"connection_id"`
	Action       string         `json:"action"`
	Payload      map[string]any `json:"payload"`
}

func (s *Server) dataExchange(c *gin.Context) {
	var req exchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ConnectionID == "" || req.Action == "" {
		respondError(c, http.StatusBadRequest, "connection_id and action are required")
		return
	}

	msg := &dispatch.Message{
		Type:   "request",
		Method: "data.exchange",
		Params: map[string]any{
			"connection_id": req.ConnectionID,
			"action":        req.Action,
			"payload":       req.Payload,
		},
	}
	result, err := s.dispatcher.Send(c.Request.Context(), req.ConnectionID, msg)
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": result, "message_id": msg.ID})
}

func (s *Server) listPlugins(c *gin.Context) {
	plugins, err := s.plugins.AvailablePlugins(c.Request.Context())
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"plugins": plugins, "count": len(plugins)})
}

type registerPluginRequest struct {
	Name         string              `json:"name"`
	Version      string              `json:"version"`
	Description  string              `json:"description"`
	Capabilities plugin.Capabilities `json:"capabilities"`
}

func (s *Server) registerPlugin(c *gin.Context) {
	var req registerPluginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" || req.Version == "" {
		respondError(c, http.StatusBadRequest, "name and version are required")
		return
	}

	p, err := s.plugins.Register(c.Request.Context(), req.Name, req.Version, req.Capabilities, req.Description)
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, p)
}

type connectPluginRequest struct {
	UserID   string         `json:"user_id"`
	PluginID string         `json:"plugin_id"`
	Config   map[string]any `json:"config"`
}

func (s *Server) connectPlugin(c *gin.Context) {
	var req connectPluginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" || req.PluginID == "" {
		respondError(c, http.StatusBadRequest, "user_id and plugin_id are required")
		return
	}

	conn, err := s.plugins.Connect(c.Request.Context(), req.UserID, req.PluginID, req.Config)
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, conn)
}

func (s *Server) disconnectPlugin(c *gin.Context) {
	if err := s.plugins.Disconnect(c.Request.Context(), c.Param("id")); err != nil {
		s.respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"disconnected": true})
}

func (s *Server) userConnections(c *gin.Context) {
	conns, err := s.plugins.UserConnections(c.Request.Context(), c.Param("userId"))
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"connections": conns, "count": len(conns)})
}
