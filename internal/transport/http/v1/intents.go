package v1

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/labstack/echo/v4"

	"github.com/omniagentpay/payguard/internal/domain"
	"github.com/omniagentpay/payguard/internal/repository"
)

// CreateIntent creates a pending payment intent.
// POST /v1/intents
func (h *Handler) CreateIntent(c echo.Context) error {
	var req domain.CreateIntentRequest
	if err := bind(c, &req); err != nil {
		return h.presentError(c, err)
	}
	in, err := h.service.CreateIntent(c.Request().Context(), req)
	if err != nil {
		return h.presentError(c, err)
	}
	return c.JSON(http.StatusCreated, domain.NewIntentResponse(in))
}

// ListIntents lists intents, newest first.
// GET /v1/intents?status=&wallet_id=&agent_id=&limit=
func (h *Handler) ListIntents(c echo.Context) error {
	limit, err := queryInt(c, "limit")
	if err != nil {
		return h.presentError(c, err)
	}
	filter := repository.IntentFilter{
		WalletID: c.QueryParam("wallet_id"),
		AgentID:  c.QueryParam("agent_id"),
		Limit:    limit,
	}
	if raw := c.QueryParam("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			filter.Statuses = append(filter.Statuses, domain.IntentStatus(strings.TrimSpace(s)))
		}
	}

	intents, err := h.service.ListIntents(c.Request().Context(), filter)
	if err != nil {
		return h.presentError(c, err)
	}
	out := make([]domain.IntentResponse, len(intents))
	for i := range intents {
		out[i] = domain.NewIntentResponse(&intents[i])
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"intents": out})
}

// GetIntent gets an intent by ID.
// GET /v1/intents/:intent_id
func (h *Handler) GetIntent(c echo.Context) error {
	in, err := h.service.GetIntent(c.Request().Context(), c.Param("intent_id"))
	if err != nil {
		return h.presentError(c, err)
	}
	return c.JSON(http.StatusOK, domain.NewIntentResponse(in))
}

// GetIntentEvents returns the intent timeline.
// GET /v1/intents/:intent_id/events?after_ts=
func (h *Handler) GetIntentEvents(c echo.Context) error {
	var afterTs int64
	if raw := c.QueryParam("after_ts"); raw != "" {
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return h.presentError(c, errors.Wrap(domain.ErrBadParameter, "after_ts must be an integer"))
		}
		afterTs = ts
	}
	events, err := h.service.GetIntentEvents(c.Request().Context(), c.Param("intent_id"), afterTs)
	if err != nil {
		return h.presentError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"events": events})
}

// SimulateIntent runs guard evaluation for a pending intent.
// POST /v1/intents/:intent_id/simulate
func (h *Handler) SimulateIntent(c echo.Context) error {
	in, err := h.service.SimulateIntent(c.Request().Context(), c.Param("intent_id"))
	if err != nil {
		return h.presentError(c, err)
	}
	return c.JSON(http.StatusOK, domain.NewIntentResponse(in))
}

// ApproveIntent approves an intent awaiting approval.
// POST /v1/intents/:intent_id/approve
func (h *Handler) ApproveIntent(c echo.Context) error {
	var req domain.ApprovalDecisionRequest
	if err := bind(c, &req); err != nil {
		return h.presentError(c, err)
	}
	in, err := h.service.ApproveIntent(c.Request().Context(), c.Param("intent_id"), req)
	if err != nil {
		return h.presentError(c, err)
	}
	return c.JSON(http.StatusOK, domain.NewIntentResponse(in))
}

// RejectIntent rejects an intent waiting on a human decision.
// POST /v1/intents/:intent_id/reject
func (h *Handler) RejectIntent(c echo.Context) error {
	var req domain.ApprovalDecisionRequest
	if err := bind(c, &req); err != nil {
		return h.presentError(c, err)
	}
	in, err := h.service.RejectIntent(c.Request().Context(), c.Param("intent_id"), req)
	if err != nil {
		return h.presentError(c, err)
	}
	return c.JSON(http.StatusOK, domain.NewIntentResponse(in))
}

// ExecuteIntent executes an approved intent.
// POST /v1/intents/:intent_id/execute
func (h *Handler) ExecuteIntent(c echo.Context) error {
	in, err := h.service.ExecuteIntent(c.Request().Context(), c.Param("intent_id"))
	if err != nil {
		return h.presentError(c, err)
	}
	return c.JSON(http.StatusOK, domain.NewIntentResponse(in))
}

// ReplayIntent re-evaluates an intent against the current rules.
// GET /v1/intents/:intent_id/replay
func (h *Handler) ReplayIntent(c echo.Context) error {
	report, err := h.service.ReplayIntent(c.Request().Context(), c.Param("intent_id"))
	if err != nil {
		return h.presentError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}
