package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// GetSessionMessages retrieves messages for a session.
// GET /v1/sessions/:session_id/messages
func (h *Handler) GetSessionMessages(c echo.Context) error {
	sessionID := c.Param("session_id")
	limit := 50
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			limit = val
		}
	}

	messages, err := h.service.GetMessages(c.Request().Context(), sessionID, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"messages": messages,
	})
}

// GetTurn retrieves a turn by id.
// GET /v1/turns/:turn_id
func (h *Handler) GetTurn(c echo.Context) error {
	turn, err := h.service.GetTurn(c.Request().Context(), c.Param("turn_id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if turn == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "turn not found"})
	}
	return c.JSON(http.StatusOK, turn)
}

// GetBalance retrieves a user's credit balance.
// GET /v1/users/:user_id/balance
func (h *Handler) GetBalance(c echo.Context) error {
	balance, err := h.service.Balance(c.Request().Context(), c.Param("user_id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"user_id": c.Param("user_id"),
		"balance": balance,
	})
}
