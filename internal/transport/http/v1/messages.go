package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/xiaot623/chatd/internal/domain"
)

// ListMessages returns the transcript of a conversation.
// GET /api/chats/:chat_id/messages
func (h *Handler) ListMessages(c echo.Context) error {
	messages, err := h.service.GetMessages(c.Request().Context(), userID(c), c.Param("chat_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, messages)
}

// AddMessage appends a message to a conversation.
// POST /api/chats/:chat_id/messages
func (h *Handler) AddMessage(c echo.Context) error {
	var req domain.CreateMessageRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	msg, err := h.service.AddMessage(c.Request().Context(), userID(c), c.Param("chat_id"), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, msg)
}

// GetChatEvents returns the turn trace of a conversation.
// GET /api/chats/:chat_id/events?after_ts=&types=&limit=
func (h *Handler) GetChatEvents(c echo.Context) error {
	var afterTs int64
	if v := c.QueryParam("after_ts"); v != "" {
		var err error
		if afterTs, err = parseInt64(v); err != nil {
			return badRequest(c, "invalid after_ts")
		}
	}
	types := c.QueryParams()["types"]

	events, err := h.service.GetEvents(c.Request().Context(), userID(c), c.Param("chat_id"), afterTs, types, queryInt(c, "limit", 100))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"events": events,
	})
}
