package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourorg/payment-gateway/internal/dispatch"
	"github.com/yourorg/payment-gateway/internal/gateway"
	"github.com/yourorg/payment-gateway/internal/order"
	"github.com/yourorg/payment-gateway/internal/plugin"
)

func respondOK(c *gin.Context, code int, data any) {
	c.JSON(code, gin.H{"success": true, "data": data})
}

func respondError(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{"success": false, "error": message})
}

// respondServiceError maps service errors onto wire status codes. Anything
// unmapped is an internal failure and is logged but not echoed to the client.
func (s *Server) respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, order.ErrInvalidParameters),
		errors.Is(err, order.ErrStatusConflict),
		errors.Is(err, dispatch.ErrUnknownMethod):
		respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, order.ErrUserNotFound),
		errors.Is(err, plugin.ErrPluginNotFound),
		errors.Is(err, plugin.ErrInvalidConnection),
		errors.Is(err, gateway.ErrUnsupportedMethod):
		respondError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, gateway.ErrInvalidSignature):
		respondError(c, http.StatusUnauthorized, err.Error())
	default:
		s.log.WithError(err).Error("request failed")
		respondError(c, http.StatusInternalServerError, "internal error")
	}
}
