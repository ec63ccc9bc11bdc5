// Package v1 provides the public chat API handlers.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/adpilot-ai/adpilot/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers the public routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Chat API
	e.POST("/v1/chat", h.Chat)
	e.GET("/v1/chat/stream", h.Stream)
	e.POST("/v1/chat/confirm", h.Confirm)
	e.POST("/v1/chat/cancel", h.Cancel)

	// Session history
	e.GET("/v1/sessions/:session_id/messages", h.GetSessionMessages)
	e.GET("/v1/turns/:turn_id", h.GetTurn)
	e.GET("/v1/users/:user_id/balance", h.GetBalance)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}
