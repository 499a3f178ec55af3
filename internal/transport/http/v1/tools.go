package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ListToolServers lists tool servers with their tools and flags.
// GET /api/tool-servers
func (h *Handler) ListToolServers(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"servers": h.service.ListToolServers(),
	})
}

func (h *Handler) EnableToolServer(c echo.Context) error {
	return h.setServer(c, true)
}

func (h *Handler) DisableToolServer(c echo.Context) error {
	return h.setServer(c, false)
}

func (h *Handler) EnableTool(c echo.Context) error {
	return h.setTool(c, true)
}

func (h *Handler) DisableTool(c echo.Context) error {
	return h.setTool(c, false)
}

func (h *Handler) setServer(c echo.Context, enabled bool) error {
	server := c.Param("server")
	if err := h.service.SetToolServerEnabled(server, enabled); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"server": server, "enabled": enabled})
}

func (h *Handler) setTool(c echo.Context, enabled bool) error {
	server, tool := c.Param("server"), c.Param("tool")
	if err := h.service.SetToolEnabled(server, tool, enabled); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"server": server, "tool": tool, "enabled": enabled})
}
