package v1

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/xiaot623/chatd/internal/domain"
)

// sseSink writes turn frames as server-sent events. Headers are written on
// the first frame so that errors before streaming can still be sent as JSON.
type sseSink struct {
	res     *echo.Response
	started bool
}

func newSSESink(res *echo.Response) *sseSink {
	return &sseSink{res: res}
}

func (s *sseSink) Send(event domain.StreamEvent) error {
	if !s.started {
		s.res.Header().Set("Content-Type", "text/event-stream")
		s.res.Header().Set("Cache-Control", "no-cache")
		s.res.Header().Set("Connection", "keep-alive")
		s.res.Header().Set("X-Accel-Buffering", "no")
		s.res.WriteHeader(http.StatusOK)
		s.started = true
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.res, "data: %s\n\n", data); err != nil {
		return err
	}
	s.res.Flush()
	return nil
}

func bindTurnRequest(c echo.Context) (domain.TurnRequest, error) {
	var req domain.TurnRequest
	if c.Request().ContentLength == 0 {
		return req, nil
	}
	err := c.Bind(&req)
	return req, err
}

// StreamChat runs a streaming turn.
// POST /api/chats/:chat_id/stream
func (h *Handler) StreamChat(c echo.Context) error {
	req, err := bindTurnRequest(c)
	if err != nil {
		return badRequest(c, "invalid request body")
	}

	sink := newSSESink(c.Response())
	if _, err := h.service.StreamTurn(c.Request().Context(), userID(c), c.Param("chat_id"), req, sink); err != nil {
		return respondError(c, err)
	}
	return nil
}

// GenerateChat runs a turn and returns the whole response.
// POST /api/chats/:chat_id/generate
func (h *Handler) GenerateChat(c echo.Context) error {
	req, err := bindTurnRequest(c)
	if err != nil {
		return badRequest(c, "invalid request body")
	}
	res, err := h.service.GenerateTurn(c.Request().Context(), userID(c), c.Param("chat_id"), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// CancelChat stops the turn in flight on a conversation.
// POST /api/chats/:chat_id/cancel
func (h *Handler) CancelChat(c echo.Context) error {
	if err := h.service.CancelTurn(c.Request().Context(), userID(c), c.Param("chat_id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "cancelling"})
}
