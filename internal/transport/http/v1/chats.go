package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/xiaot623/chatd/internal/domain"
)

// CreateChat creates a conversation.
// POST /api/chats
func (h *Handler) CreateChat(c echo.Context) error {
	var req domain.CreateConversationRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	conv, err := h.service.CreateConversation(c.Request().Context(), userID(c), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, conv)
}

// ListChats lists the caller's conversations.
// GET /api/chats?skip=&limit=
func (h *Handler) ListChats(c echo.Context) error {
	list, err := h.service.ListConversations(c.Request().Context(), userID(c), queryInt(c, "skip", 0), queryInt(c, "limit", 100))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

// GetChat returns a conversation with its messages.
// GET /api/chats/:chat_id
func (h *Handler) GetChat(c echo.Context) error {
	conv, err := h.service.GetConversation(c.Request().Context(), userID(c), c.Param("chat_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, conv)
}

// UpdateChat applies a partial update to a conversation.
// PUT /api/chats/:chat_id
func (h *Handler) UpdateChat(c echo.Context) error {
	var req domain.UpdateConversationRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	conv, err := h.service.UpdateConversation(c.Request().Context(), userID(c), c.Param("chat_id"), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, conv)
}

// DeleteChat deletes a conversation.
// DELETE /api/chats/:chat_id
func (h *Handler) DeleteChat(c echo.Context) error {
	if err := h.service.DeleteConversation(c.Request().Context(), userID(c), c.Param("chat_id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "chat deleted"})
}
