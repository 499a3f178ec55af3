package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/xiaot623/chatd/internal/domain"
)

// ListProviders returns the provider catalog.
// GET /api/llm-configs/providers
func (h *Handler) ListProviders(c echo.Context) error {
	return c.JSON(http.StatusOK, h.service.ListProviders())
}

// ListProviderConfigs lists the caller's provider configurations.
// GET /api/llm-configs
func (h *Handler) ListProviderConfigs(c echo.Context) error {
	configs, err := h.service.ListProviderConfigs(c.Request().Context(), userID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, configs)
}

// CreateProviderConfig stores a provider configuration.
// POST /api/llm-configs
func (h *Handler) CreateProviderConfig(c echo.Context) error {
	var req domain.ProviderConfigRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Provider == "" {
		return badRequest(c, "provider is required")
	}
	cfg, err := h.service.CreateProviderConfig(c.Request().Context(), userID(c), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, cfg)
}

// GetProviderConfig returns one provider configuration.
// GET /api/llm-configs/:config_id
func (h *Handler) GetProviderConfig(c echo.Context) error {
	cfg, err := h.service.GetProviderConfig(c.Request().Context(), userID(c), c.Param("config_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, cfg)
}

// UpdateProviderConfig applies a partial update.
// PUT /api/llm-configs/:config_id
func (h *Handler) UpdateProviderConfig(c echo.Context) error {
	var req domain.ProviderConfigRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	cfg, err := h.service.UpdateProviderConfig(c.Request().Context(), userID(c), c.Param("config_id"), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, cfg)
}

// DeleteProviderConfig deletes a provider configuration.
// DELETE /api/llm-configs/:config_id
func (h *Handler) DeleteProviderConfig(c echo.Context) error {
	if err := h.service.DeleteProviderConfig(c.Request().Context(), userID(c), c.Param("config_id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "configuration deleted"})
}

// TestProviderConfig checks a configuration against its provider.
// POST /api/llm-configs/:config_id/test
func (h *Handler) TestProviderConfig(c echo.Context) error {
	res, err := h.service.TestProviderConfig(c.Request().Context(), userID(c), c.Param("config_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// SetDefaultProviderConfig makes a configuration the caller's default.
// POST /api/llm-configs/:config_id/set-default
func (h *Handler) SetDefaultProviderConfig(c echo.Context) error {
	cfg, err := h.service.SetDefaultProviderConfig(c.Request().Context(), userID(c), c.Param("config_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, cfg)
}
