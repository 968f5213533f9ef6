package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/omniagentpay/payguard/internal/domain"
)

// RegisterAgent registers or updates an agent.
// POST /v1/agents
func (h *Handler) RegisterAgent(c echo.Context) error {
	var req domain.Agent
	if err := bind(c, &req); err != nil {
		return h.presentError(c, err)
	}
	agent, err := h.service.RegisterAgent(c.Request().Context(), req)
	if err != nil {
		return h.presentError(c, err)
	}
	return c.JSON(http.StatusOK, agent)
}

// ListAgents lists all registered agents.
// GET /v1/agents
func (h *Handler) ListAgents(c echo.Context) error {
	agents, err := h.service.ListAgents(c.Request().Context())
	if err != nil {
		return h.presentError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"agents": agents})
}

// GetAgent gets a specific agent by ID.
// GET /v1/agents/:agent_id
func (h *Handler) GetAgent(c echo.Context) error {
	agent, err := h.service.GetAgent(c.Request().Context(), c.Param("agent_id"))
	if err != nil {
		return h.presentError(c, err)
	}
	return c.JSON(http.StatusOK, agent)
}
