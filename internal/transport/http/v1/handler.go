// Package v1 provides the public HTTP API of chatd.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/xiaot623/chatd/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
	mock    bool
}

// NewHandler creates a new handler. mock is reported by /api/info.
func NewHandler(service *service.Service, mock bool) *Handler {
	return &Handler{
		service: service,
		mock:    mock,
	}
}

// RegisterRoutes registers the public routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	e.GET("/api/info", h.Info)

	api := e.Group("/api", RequireUser)

	// Conversations
	api.POST("/chats", h.CreateChat)
	api.GET("/chats", h.ListChats)
	api.GET("/chats/:chat_id", h.GetChat)
	api.PUT("/chats/:chat_id", h.UpdateChat)
	api.DELETE("/chats/:chat_id", h.DeleteChat)
	api.GET("/chats/:chat_id/messages", h.ListMessages)
	api.POST("/chats/:chat_id/messages", h.AddMessage)

	// Turns
	api.POST("/chats/:chat_id/stream", h.StreamChat)
	api.POST("/chats/:chat_id/generate", h.GenerateChat)
	api.POST("/chats/:chat_id/cancel", h.CancelChat)
	api.GET("/chats/:chat_id/events", h.GetChatEvents)

	// Provider configurations
	api.GET("/llm-configs/providers", h.ListProviders)
	api.GET("/llm-configs", h.ListProviderConfigs)
	api.POST("/llm-configs", h.CreateProviderConfig)
	api.GET("/llm-configs/:config_id", h.GetProviderConfig)
	api.PUT("/llm-configs/:config_id", h.UpdateProviderConfig)
	api.DELETE("/llm-configs/:config_id", h.DeleteProviderConfig)
	api.POST("/llm-configs/:config_id/test", h.TestProviderConfig)
	api.POST("/llm-configs/:config_id/set-default", h.SetDefaultProviderConfig)

	// Tool servers
	api.GET("/tool-servers", h.ListToolServers)
	api.POST("/tool-servers/:server/enable", h.EnableToolServer)
	api.POST("/tool-servers/:server/disable", h.DisableToolServer)
	api.POST("/tool-servers/:server/tools/:tool/enable", h.EnableTool)
	api.POST("/tool-servers/:server/tools/:tool/disable", h.DisableTool)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// Info describes the running service.
// GET /api/info
func (h *Handler) Info(c echo.Context) error {
	providers := h.service.ListProviders()
	ids := make([]string, 0, len(providers))
	for _, p := range providers {
		ids = append(ids, p.Provider)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"name":      "chatd",
		"version":   "0.1.0",
		"mock_mode": h.mock,
		"providers": ids,
		"features": []string{
			"multi_provider_llm",
			"streaming_responses",
			"tool_servers",
			"websocket_chat",
		},
	})
}
