package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/omniagentpay/payguard/internal/domain"
)

// GuardRequest is the body of guard create and update requests.
type GuardRequest struct {
	ID      string            `json:"id,omitempty"`
	Name    string            `json:"name"`
	Enabled *bool             `json:"enabled,omitempty"`
	Kind    domain.GuardKind  `json:"kind"`
	Config  domain.RuleConfig `json:"config"`
}

func (r GuardRequest) rule() domain.GuardRule {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return domain.GuardRule{ID: r.ID, Name: r.Name, Enabled: enabled, Kind: r.Kind, Config: r.Config}
}

// ListGuards lists every guard in evaluation order.
// GET /v1/guards
func (h *Handler) ListGuards(c echo.Context) error {
	rules, err := h.service.ListGuards(c.Request().Context())
	if err != nil {
		return h.presentError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"guards": rules})
}

// CreateGuard creates a guard rule.
// POST /v1/guards
func (h *Handler) CreateGuard(c echo.Context) error {
	var req GuardRequest
	if err := bind(c, &req); err != nil {
		return h.presentError(c, err)
	}
	rule, err := h.service.CreateGuard(c.Request().Context(), req.rule())
	if err != nil {
		return h.presentError(c, err)
	}
	return c.JSON(http.StatusCreated, rule)
}

// GetGuard gets a guard by ID.
// GET /v1/guards/:guard_id
func (h *Handler) GetGuard(c echo.Context) error {
	rule, err := h.service.GetGuard(c.Request().Context(), c.Param("guard_id"))
	if err != nil {
		return h.presentError(c, err)
	}
	return c.JSON(http.StatusOK, rule)
}

// UpdateGuard replaces a guard rule.
// PUT /v1/guards/:guard_id
func (h *Handler) UpdateGuard(c echo.Context) error {
	var req GuardRequest
	if err := bind(c, &req); err != nil {
		return h.presentError(c, err)
	}
	rule, err := h.service.UpdateGuard(c.Request().Context(), c.Param("guard_id"), req.rule())
	if err != nil {
		return h.presentError(c, err)
	}
	return c.JSON(http.StatusOK, rule)
}

// DeleteGuard deletes a guard rule.
// DELETE /v1/guards/:guard_id
func (h *Handler) DeleteGuard(c echo.Context) error {
	if err := h.service.DeleteGuard(c.Request().Context(), c.Param("guard_id")); err != nil {
		return h.presentError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// EvaluateCandidate dry-runs the current rules against a candidate.
// POST /v1/guards/evaluate
func (h *Handler) EvaluateCandidate(c echo.Context) error {
	var candidate domain.PaymentCandidate
	if err := bind(c, &candidate); err != nil {
		return h.presentError(c, err)
	}
	res, err := h.service.EvaluateCandidate(c.Request().Context(), candidate)
	if err != nil {
		return h.presentError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// BlastRadius estimates the impact of a guard change. GET takes guard_id as
// a query parameter; POST takes a BlastRadiusRequest body with an optional
// proposed rule.
// GET|POST /v1/guards/blast-radius
func (h *Handler) BlastRadius(c echo.Context) error {
	var req domain.BlastRadiusRequest
	if c.Request().Method == http.MethodPost {
		if err := bind(c, &req); err != nil {
			return h.presentError(c, err)
		}
	}
	if id := c.QueryParam("guard_id"); id != "" {
		req.GuardID = id
	}
	report, err := h.service.BlastRadius(c.Request().Context(), req)
	if err != nil {
		return h.presentError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}
